// Command homehub is the smart-home hub.
//
// It listens for simulated devices, registers the ones that present the
// shared credentials and lets an operator drive them from a numbered menu.
// Known devices are remembered across restarts in an encrypted registry
// file; they come back online when they reconnect.
//
// Usage:
//
//	homehub [flags]
//
// Flags:
//
//	-config string        YAML configuration file
//	-listen string        Listen address (default "127.0.0.1:8080")
//	-secrets string       Secrets directory (default "./Secrets")
//	-registry string      Registry file (default "./stored_devices.bin")
//	-advertise            Announce the hub with mDNS
//	-instance string      mDNS instance name (default "homehub")
//	-interactive          Run the operator console (default true)
//	-log-level string     Log level: debug, info, warn, error (default "info")
//	-log-file string      Write logs to a rotated file instead of the console
//	-protocol-log string  Record protocol events to a .hlog file
//
// Examples:
//
//	# Generate key material once
//	homehub-init -dir ./Secrets
//
//	# Run the hub on all interfaces and announce it
//	homehub -listen 0.0.0.0:8080 -advertise
//
//	# Run headless with a protocol capture
//	homehub -interactive=false -protocol-log hub.hlog
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/chzyer/readline"

	"github.com/homehub-sim/homehub/cmd/homehub/interactive"
	"github.com/homehub-sim/homehub/internal/config"
	"github.com/homehub-sim/homehub/pkg/discovery"
	"github.com/homehub-sim/homehub/pkg/hub"
	"github.com/homehub-sim/homehub/pkg/keys"
	"github.com/homehub-sim/homehub/pkg/persistence"
	"github.com/homehub-sim/homehub/pkg/registry"
	"github.com/homehub-sim/homehub/pkg/wire"
)

var (
	cfg             = config.DefaultHub()
	configFile      string
	interactiveMode bool
)

func init() {
	flag.StringVar(&configFile, "config", "", "YAML configuration file")
	flag.StringVar(&cfg.Listen, "listen", cfg.Listen, "Listen address")
	flag.StringVar(&cfg.SecretsDir, "secrets", cfg.SecretsDir, "Secrets directory")
	flag.StringVar(&cfg.RegistryFile, "registry", cfg.RegistryFile, "Registry file")
	flag.BoolVar(&cfg.Advertise, "advertise", cfg.Advertise, "Announce the hub with mDNS")
	flag.StringVar(&cfg.Instance, "instance", cfg.Instance, "mDNS instance name")
	flag.Float64Var(&cfg.HandshakeRate, "handshake-rate", cfg.HandshakeRate, "Handshakes per second allowed per address (0 disables)")
	flag.DurationVar(&cfg.CommandTimeout, "command-timeout", cfg.CommandTimeout, "Timeout for one command round trip")
	flag.BoolVar(&interactiveMode, "interactive", true, "Run the operator console")
	flag.StringVar(&cfg.Log.Level, "log-level", cfg.Log.Level, "Log level: debug, info, warn, error")
	flag.StringVar(&cfg.Log.File, "log-file", cfg.Log.File, "Write logs to a rotated file instead of the console")
	flag.StringVar(&cfg.Log.Protocol, "protocol-log", cfg.Log.Protocol, "Record protocol events to a .hlog file")
}

func main() {
	flag.Parse()

	if err := config.Layer(flag.CommandLine, configFile, &cfg); err != nil {
		log.Fatalf("Configuration error: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	log.SetFlags(log.Ltime)
	log.Println("Simulated IoT Device Controller HUB")
	log.Println("This hub listens for connection requests by smart IoT devices.")
	log.Println("It registers devices the first time they connect and gives")
	log.Println("access to their functions from the menu below.")

	// The console owns the terminal; logs go through it so they do not
	// garble the prompt.
	var rl *readline.Instance
	var out io.Writer = os.Stderr
	if interactiveMode {
		var err error
		rl, err = interactive.NewTerminal()
		if err != nil {
			log.Fatalf("Failed to start console: %v", err)
		}
		defer rl.Close()
		out = rl.Stdout()
		log.SetOutput(out)
	}

	logger, logCloser, err := cfg.Log.NewLogger(out)
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}
	defer logCloser.Close()
	slog.SetDefault(logger)

	protoLogger, protoCloser, err := cfg.Log.NewProtocolLogger(logger)
	if err != nil {
		log.Fatalf("Failed to open protocol log: %v", err)
	}
	defer protoCloser.Close()

	store := keys.NewFileStore(cfg.SecretsDir)
	hubKeys, err := store.LoadHub()
	if err != nil {
		log.Fatalf("ERROR: %v", err)
	}

	creds, err := loadCredentials(store, hubKeys.StorageKey)
	if err != nil {
		log.Fatalf("ERROR: %v", err)
	}

	reg := registry.Load(persistence.NewRegistryStore(cfg.RegistryFile, hubKeys.StorageKey), logger)
	log.Printf("Known devices: %d", reg.Len())

	hubCfg := hub.DefaultConfig()
	hubCfg.ListenAddress = cfg.Listen
	hubCfg.PrivateKey = hubKeys.PrivateKey
	hubCfg.DevicePublicKey = hubKeys.DevicePublicKey
	hubCfg.Credentials = creds
	hubCfg.Registry = reg
	hubCfg.HandshakeTimeout = cfg.HandshakeTimeout
	hubCfg.CommandTimeout = cfg.CommandTimeout
	hubCfg.HandshakeRate = cfg.HandshakeRate
	hubCfg.HandshakeBurst = cfg.HandshakeBurst
	hubCfg.Logger = logger
	hubCfg.ProtocolLogger = protoLogger

	if cfg.Advertise {
		adv, err := discovery.NewAdvertiser(discovery.AdvertiserConfig{
			InstanceName: cfg.Instance,
			Interface:    cfg.Interface,
			Logger:       logger,
		})
		if err != nil {
			log.Fatalf("Configuration error: %v", err)
		}
		hubCfg.Advertiser = adv
	}

	h, err := hub.New(hubCfg)
	if err != nil {
		log.Fatalf("Failed to create hub: %v", err)
	}
	h.OnEvent(handleEvent)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := h.Start(ctx); err != nil {
		log.Fatalf("Failed to start hub: %v", err)
	}
	log.Printf("Listening on %s", h.Addr())

	if rl != nil {
		go interactive.New(h, rl, rl.Stdout()).Run(ctx, cancel)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Printf("Received signal: %v", sig)
	case <-ctx.Done():
	}

	log.Println("Shutting down...")
	cancel()
	if err := h.Stop(); err != nil {
		log.Printf("Error stopping hub: %v", err)
	}
	log.Println("Goodbye!")
}

// loadCredentials reads creds.bin unless both halves are set in config.
func loadCredentials(store *keys.FileStore, storageKey []byte) (wire.Credentials, error) {
	if cfg.User != "" && cfg.Pass != "" {
		return wire.Credentials{User: cfg.User, Pass: cfg.Pass}, nil
	}
	creds, err := persistence.NewCredentialsStore(store.Path(keys.CredentialsFile), storageKey).Load()
	if errors.Is(err, persistence.ErrNoCredentials) {
		return wire.Credentials{}, fmt.Errorf("%w (generate it with homehub-init)", err)
	}
	return creds, err
}

func handleEvent(event hub.Event) {
	switch event.Type {
	case hub.EventDeviceRegistered:
		log.Printf("[EVENT] Device registered: %s (%s) from %s", event.DeviceID, event.DeviceType, event.RemoteAddr)
	case hub.EventDeviceReconnected:
		log.Printf("[EVENT] Device reconnected: %s (%s) from %s", event.DeviceID, event.DeviceType, event.RemoteAddr)
	case hub.EventHandshakeRejected:
		log.Printf("[EVENT] Connection from %s rejected: %v", event.RemoteAddr, event.Err)
	case hub.EventDeviceOffline:
		log.Printf("[EVENT] Device offline: %s", event.DeviceID)
	}
}

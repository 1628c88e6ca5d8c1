// Command homedevice runs one simulated smart-home device.
//
// The device connects to the hub, presents the shared credentials and then
// answers the hub's commands until the hub disconnects it. Devices with a
// sensor drift their sensed value every few seconds and act on it.
//
// Usage:
//
//	homedevice [flags]
//
// Flags:
//
//	-config string          YAML configuration file
//	-hub string             Hub address (default "127.0.0.1:8080")
//	-discover               Find the hub with mDNS instead of -hub
//	-reconnect              Reconnect with backoff until the hub dismisses the device
//	-secrets string         Secrets directory (default "./Secrets")
//	-preset string          Device to run, e.g. Light1 (prompts when empty)
//	-sense-interval dur     Self-sensing period (default 5s)
//	-log-level string       Log level: debug, info, warn, error (default "info")
//	-log-file string        Write logs to a rotated file instead of stderr
//	-protocol-log string    Record protocol events to a .hlog file
//
// Examples:
//
//	# Pick a device from the list
//	homedevice
//
//	# Run the first thermostat against a discovered hub
//	homedevice -preset Therm1 -discover
//
//	# Keep a lock attached across hub restarts
//	homedevice -preset Lock1 -reconnect
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
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/chzyer/readline"

	"github.com/homehub-sim/homehub/internal/config"
	"github.com/homehub-sim/homehub/pkg/connection"
	"github.com/homehub-sim/homehub/pkg/device"
	"github.com/homehub-sim/homehub/pkg/discovery"
	"github.com/homehub-sim/homehub/pkg/endpoint"
	"github.com/homehub-sim/homehub/pkg/keys"
	"github.com/homehub-sim/homehub/pkg/persistence"
)

var (
	cfg        = config.DefaultDevice()
	configFile string
)

func init() {
	flag.StringVar(&configFile, "config", "", "YAML configuration file")
	flag.StringVar(&cfg.Hub, "hub", cfg.Hub, "Hub address")
	flag.BoolVar(&cfg.Discover, "discover", cfg.Discover, "Find the hub with mDNS instead of -hub")
	flag.BoolVar(&cfg.Reconnect, "reconnect", cfg.Reconnect, "Reconnect with backoff until the hub dismisses the device")
	flag.StringVar(&cfg.SecretsDir, "secrets", cfg.SecretsDir, "Secrets directory")
	flag.StringVar(&cfg.Preset, "preset", cfg.Preset, "Device to run, e.g. Light1 (prompts when empty)")
	flag.DurationVar(&cfg.SenseInterval, "sense-interval", cfg.SenseInterval, "Self-sensing period")
	flag.StringVar(&cfg.Log.Level, "log-level", cfg.Log.Level, "Log level: debug, info, warn, error")
	flag.StringVar(&cfg.Log.File, "log-file", cfg.Log.File, "Write logs to a rotated file instead of stderr")
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

	dev, err := selectDevice(cfg.Preset)
	if err != nil {
		log.Fatalf("ERROR: %v", err)
	}

	logger, logCloser, err := cfg.Log.NewLogger(os.Stderr)
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
	devKeys, err := store.LoadDevice()
	if err != nil {
		log.Fatalf("ERROR: %v", err)
	}
	creds, err := persistence.NewCredentialsStore(store.Path(keys.CredentialsFile), devKeys.StorageKey).Load()
	if err != nil {
		log.Fatalf("ERROR: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hubAddr := cfg.Hub
	if cfg.Discover {
		log.Println("Looking for a hub...")
		hubAddr, err = discovery.BrowseHub(ctx)
		if err != nil {
			log.Fatalf("Hub discovery failed: %v", err)
		}
		log.Printf("Found hub at %s", hubAddr)
	}

	epCfg := endpoint.Config{
		HubAddress:     hubAddr,
		HubPublicKey:   devKeys.HubPublicKey,
		PrivateKey:     devKeys.PrivateKey,
		Credentials:    creds,
		Device:         dev,
		SenseInterval:  cfg.SenseInterval,
		Logger:         logger,
		ProtocolLogger: protoLogger,
	}

	if cfg.Reconnect {
		sup := connection.NewSupervisor(connection.SupervisorConfig{
			NewSession: func() (connection.Session, error) {
				ep, err := endpoint.New(epCfg)
				if err != nil {
					return nil, err
				}
				return ep, nil
			},
			Fatal: func(err error) bool {
				return errors.Is(err, endpoint.ErrHandshakeRejected) || errors.Is(err, endpoint.ErrConfiguration)
			},
			OnReconnecting: func(attempt int, delay time.Duration, _ error) {
				log.Printf("Reconnecting to %s in %s (attempt %d)", hubAddr, delay.Round(time.Millisecond), attempt)
			},
			Logger: logger,
		})
		if err := sup.Run(ctx); err != nil {
			log.Fatalf("Connection refused by the hub: %v", err)
		}
		log.Printf("Disconnected. %s", dev)
		return
	}

	ep, err := endpoint.New(epCfg)
	if err != nil {
		log.Fatalf("ERROR: %v", err)
	}

	log.Printf("Connecting %s to %s...", dev.ID(), hubAddr)
	if err := ep.Connect(ctx); err != nil {
		if errors.Is(err, endpoint.ErrHandshakeRejected) {
			log.Fatalf("Connection refused by the hub: %v", err)
		}
		log.Fatalf("Failed to connect: %v", err)
	}
	log.Printf("Connected. %s", dev)

	if err := ep.Run(ctx); err != nil {
		log.Printf("Session ended: %v", err)
	}
	log.Printf("Disconnected. %s", dev)
}

// selectDevice returns the preset named id, or asks the user to pick one.
func selectDevice(id string) (device.Device, error) {
	if id != "" {
		dev, ok := device.Lookup(id)
		if !ok {
			return nil, fmt.Errorf("unknown device %q", id)
		}
		return dev, nil
	}

	presets := device.Presets()
	rl, err := readline.NewEx(&readline.Config{Prompt: "Select a device: "})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	defer rl.Close()
	return pickPreset(rl, rl.Stdout(), presets)
}

// pickPreset prints presets and reads a choice until one is valid.
func pickPreset(rl interface{ Readline() (string, error) }, out io.Writer, presets []device.Device) (device.Device, error) {
	fmt.Fprintln(out, "Available devices:")
	for i, d := range presets {
		fmt.Fprintf(out, "  %d: %s (%s)\n", i, d.ID(), d.Kind())
	}

	for {
		line, err := rl.Readline()
		if err != nil {
			return nil, fmt.Errorf("no device selected: %w", err)
		}
		line = strings.TrimSpace(line)

		if n, err := strconv.Atoi(line); err == nil && n >= 0 && n < len(presets) {
			return presets[n], nil
		}
		for _, d := range presets {
			if strings.EqualFold(d.ID(), line) {
				return d, nil
			}
		}
		fmt.Fprintln(out, "Invalid input. Please enter a value from the list.")
	}
}

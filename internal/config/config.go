// Package config holds the settings shared by the homehub commands: YAML
// config files layered under command-line flags, and logger construction.
package config

import (
	"bytes"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/homehub-sim/homehub/pkg/hub"
	"github.com/homehub-sim/homehub/pkg/transport"
)

// Default paths, relative to the working directory.
const (
	DefaultSecretsDir   = "./Secrets"
	DefaultRegistryFile = "./stored_devices.bin"
)

// Hub configures the homehub command.
type Hub struct {
	Listen       string `yaml:"listen"`
	SecretsDir   string `yaml:"secrets_dir"`
	RegistryFile string `yaml:"registry_file"`

	// User and Pass override the pair stored in creds.bin.
	User string `yaml:"user"`
	Pass string `yaml:"pass"`

	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	CommandTimeout   time.Duration `yaml:"command_timeout"`
	HandshakeRate    float64       `yaml:"handshake_rate"`
	HandshakeBurst   int           `yaml:"handshake_burst"`

	Advertise bool   `yaml:"advertise"`
	Instance  string `yaml:"instance"`
	Interface string `yaml:"interface"`

	Log Log `yaml:"log"`
}

// DefaultHub returns the hub defaults.
func DefaultHub() Hub {
	return Hub{
		Listen:           transport.DefaultAddress,
		SecretsDir:       DefaultSecretsDir,
		RegistryFile:     DefaultRegistryFile,
		HandshakeTimeout: hub.DefaultHandshakeTimeout,
		CommandTimeout:   hub.DefaultCommandTimeout,
		HandshakeRate:    hub.DefaultHandshakeRate,
		HandshakeBurst:   hub.DefaultHandshakeBurst,
		Instance:         "homehub",
		Log:              DefaultLog(),
	}
}

// Validate checks the hub settings.
func (c *Hub) Validate() error {
	switch {
	case c.Listen == "":
		return errors.New("listen address is required")
	case c.SecretsDir == "":
		return errors.New("secrets directory is required")
	case c.RegistryFile == "":
		return errors.New("registry file is required")
	case (c.User == "") != (c.Pass == ""):
		return errors.New("user and pass must be overridden together")
	case c.HandshakeRate < 0 || c.HandshakeBurst < 0:
		return errors.New("handshake limits must not be negative")
	}
	return c.Log.Validate()
}

// Device configures the homedevice command.
type Device struct {
	Hub           string        `yaml:"hub"`
	Discover      bool          `yaml:"discover"`
	Reconnect     bool          `yaml:"reconnect"`
	SecretsDir    string        `yaml:"secrets_dir"`
	Preset        string        `yaml:"preset"`
	SenseInterval time.Duration `yaml:"sense_interval"`

	Log Log `yaml:"log"`
}

// DefaultDevice returns the device defaults.
func DefaultDevice() Device {
	return Device{
		Hub:           transport.DefaultAddress,
		SecretsDir:    DefaultSecretsDir,
		SenseInterval: 5 * time.Second,
		Log:           DefaultLog(),
	}
}

// Validate checks the device settings.
func (c *Device) Validate() error {
	if c.Hub == "" && !c.Discover {
		return errors.New("hub address is required unless discovering")
	}
	if c.SenseInterval <= 0 {
		return errors.New("sense interval must be positive")
	}
	return c.Log.Validate()
}

// Load decodes the YAML file at path into v. Unknown keys are rejected.
func Load(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("parsing config %s: %w", path, err)
	}
	return nil
}

// Layer loads the file at path into v and then reapplies the flags that
// were set explicitly on fs, so the command line wins over the file. The
// flags must be bound to v's fields. An empty path is a no-op.
func Layer(fs *flag.FlagSet, path string, v any) error {
	if path == "" {
		return nil
	}

	explicit := make(map[string]string)
	fs.Visit(func(f *flag.Flag) {
		explicit[f.Name] = f.Value.String()
	})

	if err := Load(path, v); err != nil {
		return err
	}

	for name, value := range explicit {
		if err := fs.Set(name, value); err != nil {
			return err
		}
	}
	return nil
}

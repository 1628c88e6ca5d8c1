package hub

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/homehub-sim/homehub/pkg/log"
	"github.com/homehub-sim/homehub/pkg/registry"
	"github.com/homehub-sim/homehub/pkg/transport"
	"github.com/homehub-sim/homehub/pkg/wire"
)

// Hub errors.
var (
	ErrNotStarted     = errors.New("hub not started")
	ErrAlreadyStarted = errors.New("hub already started")
	ErrInvalidConfig  = errors.New("invalid configuration")

	// ErrHandshakeRejected indicates a handshake was answered with failure.
	ErrHandshakeRejected = errors.New("handshake rejected")

	// ErrRateLimited indicates too many handshakes from one address.
	ErrRateLimited = errors.New("handshake rate limit exceeded")

	// ErrUnableToConnect indicates a transport fault during a round trip.
	// The device has been marked offline.
	ErrUnableToConnect = errors.New("unable to connect to device")

	// ErrNotUnderstood indicates the device's response could not be opened
	// or had no result.
	ErrNotUnderstood = errors.New("message not understood")

	// ErrNotConnected indicates the target device has no live connection.
	ErrNotConnected = errors.New("device not connected")
)

// State is the hub lifecycle state.
type State uint8

const (
	StateIdle State = iota
	StateRunning
	StateStopped
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateRunning:
		return "RUNNING"
	case StateStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// Default limits.
const (
	DefaultHandshakeTimeout = 30 * time.Second
	DefaultCommandTimeout   = 30 * time.Second
	DefaultHandshakeRate    = 0.0
	DefaultHandshakeBurst   = 5
)

// Config configures a Hub.
type Config struct {
	// ListenAddress is the TCP address devices connect to.
	ListenAddress string

	// PrivateKey opens envelopes addressed to the hub.
	PrivateKey *rsa.PrivateKey

	// DevicePublicKey seals envelopes addressed to any device.
	DevicePublicKey *rsa.PublicKey

	// Credentials is the shared pair devices must present.
	Credentials wire.Credentials

	// Registry is the device table. Required.
	Registry *registry.Registry

	// HandshakeTimeout bounds the wait for the handshake envelope.
	// Zero waits forever.
	HandshakeTimeout time.Duration

	// CommandTimeout bounds each round trip when the caller's context has
	// no deadline. Zero waits forever.
	CommandTimeout time.Duration

	// HandshakeRate is the sustained handshakes per second allowed per
	// remote IP. Zero, the default, disables limiting: simulated devices
	// usually share one host and would otherwise share one bucket.
	HandshakeRate float64

	// HandshakeBurst is the burst allowed per remote IP.
	HandshakeBurst int

	// Advertiser announces the hub on the local network (optional).
	Advertiser Advertiser

	// Logger receives operational logs. Defaults to slog.Default().
	Logger *slog.Logger

	// ProtocolLogger receives protocol events (optional).
	ProtocolLogger log.Logger
}

// DefaultConfig returns a config with default address and limits. Keys,
// credentials and registry must still be set.
func DefaultConfig() Config {
	return Config{
		ListenAddress:    transport.DefaultAddress,
		HandshakeTimeout: DefaultHandshakeTimeout,
		CommandTimeout:   DefaultCommandTimeout,
		HandshakeRate:    DefaultHandshakeRate,
		HandshakeBurst:   DefaultHandshakeBurst,
	}
}

// Validate checks the config.
func (c *Config) Validate() error {
	switch {
	case c.PrivateKey == nil:
		return fmt.Errorf("%w: hub private key is required", ErrInvalidConfig)
	case c.DevicePublicKey == nil:
		return fmt.Errorf("%w: device public key is required", ErrInvalidConfig)
	case c.Credentials.IsZero():
		return fmt.Errorf("%w: credentials are required", ErrInvalidConfig)
	case c.Registry == nil:
		return fmt.Errorf("%w: registry is required", ErrInvalidConfig)
	case c.HandshakeRate < 0 || c.HandshakeBurst < 0:
		return fmt.Errorf("%w: negative handshake limit", ErrInvalidConfig)
	}
	return nil
}

// Advertiser announces the hub's listening port.
// Implemented by discovery.Advertiser.
type Advertiser interface {
	Advertise(port int) error
	Stop()
}

// EventType identifies hub events.
type EventType uint8

const (
	EventDeviceRegistered EventType = iota
	EventDeviceReconnected
	EventHandshakeRejected
	EventDeviceOffline
)

// String returns the event type name.
func (e EventType) String() string {
	switch e {
	case EventDeviceRegistered:
		return "DEVICE_REGISTERED"
	case EventDeviceReconnected:
		return "DEVICE_RECONNECTED"
	case EventHandshakeRejected:
		return "HANDSHAKE_REJECTED"
	case EventDeviceOffline:
		return "DEVICE_OFFLINE"
	default:
		return "UNKNOWN"
	}
}

// Event reports a change observed by the hub.
type Event struct {
	Type       EventType
	DeviceID   string
	DeviceType string
	RemoteAddr string
	Err        error
}

// EventHandler receives hub events. Handlers run on the goroutine that
// observed the change and must not block.
type EventHandler func(Event)

package endpoint

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"gopkg.in/tomb.v2"

	"github.com/homehub-sim/homehub/pkg/device"
	"github.com/homehub-sim/homehub/pkg/envelope"
	"github.com/homehub-sim/homehub/pkg/log"
	"github.com/homehub-sim/homehub/pkg/transport"
	"github.com/homehub-sim/homehub/pkg/wire"
)

// Endpoint errors.
var (
	// ErrConfiguration indicates missing key material or credentials.
	// It is fatal and not retried.
	ErrConfiguration = errors.New("configuration error")

	// ErrHandshakeRejected indicates the hub did not answer success.
	ErrHandshakeRejected = errors.New("handshake rejected")

	// ErrUnknownAction is logged for requests with no handler.
	ErrUnknownAction = errors.New("unknown action")

	ErrAlreadyConnected = errors.New("endpoint already connected")
	ErrNotConnected     = errors.New("endpoint not connected")
)

// State is the endpoint lifecycle state.
type State uint8

const (
	StateDisconnected State = iota
	StateHandshaking
	StateConnected
	StateCommandLoop
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateHandshaking:
		return "HANDSHAKING"
	case StateConnected:
		return "CONNECTED"
	case StateCommandLoop:
		return "COMMAND_LOOP"
	default:
		return "UNKNOWN"
	}
}

// Defaults.
const (
	DefaultSenseInterval    = 5 * time.Second
	DefaultHandshakeTimeout = 30 * time.Second
)

// Config configures an Endpoint.
type Config struct {
	// HubAddress is the hub's host:port. Defaults to transport.DefaultAddress.
	HubAddress string

	// HubPublicKey seals envelopes addressed to the hub.
	HubPublicKey *rsa.PublicKey

	// PrivateKey opens envelopes addressed to this device.
	PrivateKey *rsa.PrivateKey

	// Credentials is the shared pair presented in the handshake.
	Credentials wire.Credentials

	// Device is the local device model. Required.
	Device device.Device

	// SenseInterval is the self-sensing period. Defaults to 5s.
	SenseInterval time.Duration

	// ConnectTimeout bounds the dial.
	ConnectTimeout time.Duration

	// HandshakeTimeout bounds the wait for the hub's answer. Defaults to 30s.
	HandshakeTimeout time.Duration

	// Rand drives sensor drift. Defaults to a time-seeded source.
	Rand *rand.Rand

	// Logger receives operational logs. Defaults to slog.Default().
	Logger *slog.Logger

	// ProtocolLogger receives protocol events (optional).
	ProtocolLogger log.Logger
}

// Validate checks that everything needed for the handshake is present.
func (c *Config) Validate() error {
	switch {
	case c.HubPublicKey == nil:
		return fmt.Errorf("%w: hub public key not loaded", ErrConfiguration)
	case c.PrivateKey == nil:
		return fmt.Errorf("%w: device private key not loaded", ErrConfiguration)
	case c.Credentials.IsZero():
		return fmt.Errorf("%w: credentials not loaded", ErrConfiguration)
	case c.Device == nil:
		return fmt.Errorf("%w: no device selected", ErrConfiguration)
	case c.SenseInterval < 0:
		return fmt.Errorf("%w: negative sense interval", ErrConfiguration)
	}
	return nil
}

// Endpoint is one device's session with the hub. It is single use: once
// Run returns, create a new Endpoint to reconnect.
type Endpoint struct {
	mu     sync.Mutex
	config Config
	state  State
	conn   *transport.Conn
	used   bool
	logger *slog.Logger

	dismissed bool

	tomb tomb.Tomb
}

// New validates cfg and creates an endpoint.
func New(cfg Config) (*Endpoint, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.HubAddress == "" {
		cfg.HubAddress = transport.DefaultAddress
	}
	if cfg.SenseInterval == 0 {
		cfg.SenseInterval = DefaultSenseInterval
	}
	if cfg.HandshakeTimeout == 0 {
		cfg.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0))
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Endpoint{
		config: cfg,
		state:  StateDisconnected,
		logger: cfg.Logger.With("device", cfg.Device.ID()),
	}, nil
}

// State returns the current state.
func (e *Endpoint) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Device returns the local device model.
func (e *Endpoint) Device() device.Device {
	return e.config.Device
}

func (e *Endpoint) setState(s State, reason string) {
	e.mu.Lock()
	old := e.state
	e.state = s
	conn := e.conn
	e.mu.Unlock()

	if conn != nil && old != s {
		conn.Log().State(log.StateEntitySession, old.String(), s.String(), reason)
	}
}

// Connect dials the hub and performs the handshake. Any failure leaves
// the endpoint disconnected for good.
func (e *Endpoint) Connect(ctx context.Context) error {
	e.mu.Lock()
	if e.used {
		e.mu.Unlock()
		return ErrAlreadyConnected
	}
	e.used = true
	e.state = StateHandshaking
	e.mu.Unlock()

	e.logger.Info("connecting to hub", "address", e.config.HubAddress)

	conn, err := transport.Dial(ctx, e.config.HubAddress, transport.DialConfig{
		EnvelopeSize:   envelope.CiphertextSize(e.config.PrivateKey),
		ConnectTimeout: e.config.ConnectTimeout,
		ProtocolLogger: e.config.ProtocolLogger,
		Role:           log.RoleDevice,
	})
	if err != nil {
		e.setState(StateDisconnected, "")
		return fmt.Errorf("connect to hub: %w", err)
	}

	e.mu.Lock()
	e.conn = conn
	e.mu.Unlock()

	if err := e.handshake(ctx, conn); err != nil {
		e.setState(StateDisconnected, err.Error())
		conn.Close()
		return err
	}

	e.setState(StateConnected, "")
	e.logger.Info("connected to hub")
	return nil
}

func (e *Endpoint) handshake(ctx context.Context, conn *transport.Conn) error {
	dev := e.config.Device
	src := conn.Log().WithDevice(dev.ID())

	req := wire.NewConnectRequest(dev.ID(), string(dev.Kind()), e.config.Credentials)
	data, err := envelope.Seal(req, e.config.HubPublicKey)
	if err != nil {
		return err
	}

	deadline := time.Now().Add(e.config.HandshakeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	conn.SetDeadline(deadline)
	defer conn.SetDeadline(time.Time{})

	stop := context.AfterFunc(ctx, func() { conn.SetDeadline(time.Now()) })
	defer stop()

	if err := conn.WriteEnvelope(data); err != nil {
		return fmt.Errorf("send handshake: %w", err)
	}
	src.Request(log.DirectionOut, string(req.Action), nil)

	reply, err := conn.ReadEnvelope()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrHandshakeRejected, err)
	}

	var resp wire.Response
	if err := envelope.Open(reply, e.config.PrivateKey, &resp); err != nil {
		src.Error(log.LayerWire, err, "handshake reply")
		return fmt.Errorf("%w: %w", ErrHandshakeRejected, err)
	}
	src.Response(log.DirectionIn, resp.Format(), 0)

	if !resp.IsSuccess() {
		return fmt.Errorf("%w: hub answered %s", ErrHandshakeRejected, resp.Format())
	}
	return nil
}

// Run serves hub commands and runs the self-sensing loop until the hub
// closes the connection, a set_disconnect is handled, or ctx is done.
// An orderly end returns nil.
func (e *Endpoint) Run(ctx context.Context) error {
	e.mu.Lock()
	conn := e.conn
	state := e.state
	e.mu.Unlock()

	if state != StateConnected || conn == nil {
		return ErrNotConnected
	}
	// A Close before Run has already killed the tomb.
	if !e.tomb.Alive() {
		conn.Close()
		e.setState(StateDisconnected, "closed before run")
		return ErrNotConnected
	}

	e.tomb.Go(func() error {
		e.tomb.Go(e.senseLoop)
		e.tomb.Go(func() error {
			select {
			case <-ctx.Done():
				conn.Close()
			case <-e.tomb.Dying():
			}
			return nil
		})

		err := e.commandLoop(conn)
		e.tomb.Kill(err)
		return err
	})

	err := e.tomb.Wait()
	conn.Close()
	e.setState(StateDisconnected, "")
	e.logger.Info("session ended")
	return err
}

// Dismissed reports whether the session ended with a set_disconnect from
// the hub.
func (e *Endpoint) Dismissed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dismissed
}

// Close ends a running session.
func (e *Endpoint) Close() error {
	e.mu.Lock()
	conn := e.conn
	e.mu.Unlock()

	e.tomb.Kill(nil)
	if conn != nil {
		return conn.Close()
	}
	return nil
}

func (e *Endpoint) commandLoop(conn *transport.Conn) error {
	dev := e.config.Device
	src := conn.Log().WithDevice(dev.ID())
	e.setState(StateCommandLoop, "")

	for {
		data, err := conn.ReadEnvelope()
		switch {
		case err == nil:
		case errors.Is(err, transport.ErrPeerClosed):
			e.logger.Info("hub closed connection")
			return nil
		case errors.Is(err, transport.ErrConnectionClosed):
			return nil
		default:
			return err
		}

		var req wire.Request
		if err := envelope.Open(data, e.config.PrivateKey, &req); err != nil {
			e.logger.Warn("message not understood", "error", err)
			src.Error(log.LayerWire, err, "open request")
			continue
		}
		src.Request(log.DirectionIn, string(req.Action), req.Value)

		resp, ok := device.Execute(dev, req)
		if !ok {
			err := fmt.Errorf("%w: %s", ErrUnknownAction, req.Action)
			e.logger.Warn("request ignored", "error", err)
			src.Error(log.LayerService, err, "dispatch")
			continue
		}

		out, err := envelope.Seal(resp, e.config.HubPublicKey)
		if err != nil {
			e.logger.Error("could not seal response", "action", req.Action.String(), "error", err)
			continue
		}
		if err := conn.WriteEnvelope(out); err != nil {
			return fmt.Errorf("respond to %s: %w", req.Action, err)
		}
		src.Response(log.DirectionOut, resp.Format(), 0)
		e.logger.Info("responded to hub", "action", req.Action.String(), "result", resp.Format())

		if req.Action == wire.ActionDisconnect {
			e.logger.Info("disconnect requested, shutting down")
			e.mu.Lock()
			e.dismissed = true
			e.mu.Unlock()
			return nil
		}
	}
}

func (e *Endpoint) senseLoop() error {
	dev := e.config.Device
	if !dev.HasSensor() {
		return nil
	}

	ticker := time.NewTicker(e.config.SenseInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.tomb.Dying():
			return nil
		case <-ticker.C:
			if note := dev.Sense(e.config.Rand); note != "" {
				e.logger.Info(note)
			}
			e.logger.Debug("sensed", "readings", dev.String())
		}
	}
}

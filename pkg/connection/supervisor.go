package connection

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrSupervisorRunning is returned by a second concurrent Run.
var ErrSupervisorRunning = errors.New("supervisor already running")

// Session is one connection to the hub. *endpoint.Endpoint implements it.
type Session interface {
	// Connect dials and completes the handshake.
	Connect(ctx context.Context) error

	// Run serves the session until it ends.
	Run(ctx context.Context) error

	// Dismissed reports whether the hub ended the session on purpose.
	Dismissed() bool
}

// State is the supervisor state.
type State uint8

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateStopped
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateReconnecting:
		return "RECONNECTING"
	case StateStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// SupervisorConfig configures a Supervisor.
type SupervisorConfig struct {
	// NewSession creates a fresh session for each attempt. Required.
	NewSession func() (Session, error)

	// Fatal reports errors that must not be retried. Errors from
	// NewSession are always fatal.
	Fatal func(error) bool

	// Backoff sets the retry delays. Defaults to DefaultBackoffConfig().
	Backoff *BackoffConfig

	// OnReconnecting is called before each wait (optional).
	OnReconnecting func(attempt int, delay time.Duration, cause error)

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Supervisor reopens sessions until the hub dismisses the device.
type Supervisor struct {
	mu      sync.Mutex
	config  SupervisorConfig
	state   State
	running bool
	backoff *Backoff
	logger  *slog.Logger
}

// NewSupervisor creates a supervisor.
func NewSupervisor(cfg SupervisorConfig) *Supervisor {
	bc := DefaultBackoffConfig()
	if cfg.Backoff != nil {
		bc = *cfg.Backoff
	}
	if cfg.Fatal == nil {
		cfg.Fatal = func(error) bool { return false }
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Supervisor{
		config:  cfg,
		backoff: NewBackoff(bc),
		logger:  cfg.Logger,
	}
}

// State returns the current state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Supervisor) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// Run blocks until a session is dismissed (nil), a fatal error occurs
// (that error) or ctx is done (nil).
func (s *Supervisor) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrSupervisorRunning
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.state = StateStopped
		s.mu.Unlock()
	}()

	for {
		if ctx.Err() != nil {
			return nil
		}

		session, err := s.config.NewSession()
		if err != nil {
			return err
		}

		s.setState(StateConnecting)
		err = session.Connect(ctx)
		if err == nil {
			s.backoff.Reset()
			s.setState(StateConnected)
			err = session.Run(ctx)
			if session.Dismissed() {
				s.logger.Info("dismissed by hub")
				return nil
			}
		}

		if ctx.Err() != nil {
			return nil
		}
		if err != nil && s.config.Fatal(err) {
			return err
		}

		s.setState(StateReconnecting)
		if !s.wait(ctx, err) {
			return nil
		}
	}
}

// wait sleeps for the next backoff delay. It returns false if ctx ended.
func (s *Supervisor) wait(ctx context.Context, cause error) bool {
	delay := s.backoff.Next()
	attempt := s.backoff.Attempts()

	if cause != nil {
		s.logger.Warn("hub connection lost", "error", cause, "retry_in", delay, "attempt", attempt)
	} else {
		s.logger.Info("hub closed the session", "retry_in", delay, "attempt", attempt)
	}
	if s.config.OnReconnecting != nil {
		s.config.OnReconnecting(attempt, delay, cause)
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/homehub-sim/homehub/pkg/log"
)

// DefaultAddress is the hub's default listen address.
const DefaultAddress = "127.0.0.1:8080"

// Handler serves one accepted connection. It owns conn: the server does not
// close it when the handler returns.
type Handler func(ctx context.Context, conn *Conn)

// ServerConfig configures a Server.
type ServerConfig struct {
	// Address to listen on. Defaults to DefaultAddress.
	Address string

	// EnvelopeSize is the ciphertext size of envelopes addressed to the
	// server (the size of its private key).
	EnvelopeSize int

	// Handler is run in its own goroutine for every accepted connection.
	Handler Handler

	// Logger receives operational logs. Defaults to slog.Default().
	Logger *slog.Logger

	// ProtocolLogger receives protocol events (optional).
	ProtocolLogger log.Logger

	// OnError is called for accept failures and recovered handler panics.
	OnError func(err error)
}

// Server accepts device connections.
type Server struct {
	config   ServerConfig
	listener net.Listener

	conns   map[*Conn]struct{}
	connsMu sync.RWMutex

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewServer creates a server.
func NewServer(config ServerConfig) (*Server, error) {
	if config.Handler == nil {
		return nil, fmt.Errorf("handler is required")
	}
	if config.EnvelopeSize <= 0 {
		return nil, fmt.Errorf("envelope size must be positive")
	}
	if config.Address == "" {
		config.Address = DefaultAddress
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Server{
		config: config,
		conns:  make(map[*Conn]struct{}),
	}, nil
}

// Start listens and begins accepting connections.
func (s *Server) Start(ctx context.Context) error {
	if s.running.Load() {
		return fmt.Errorf("server already running")
	}

	listener, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	s.listener = listener
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.running.Store(true)

	s.wg.Add(1)
	go s.acceptLoop()

	return nil
}

// Stop closes the listener and every open connection, then waits for
// handlers to return.
func (s *Server) Stop() error {
	if !s.running.Swap(false) {
		return nil
	}
	s.cancel()
	s.listener.Close()

	s.connsMu.RLock()
	open := make([]*Conn, 0, len(s.conns))
	for c := range s.conns {
		open = append(open, c)
	}
	s.connsMu.RUnlock()

	for _, c := range open {
		c.Close()
	}

	s.wg.Wait()
	return nil
}

// Addr returns the listen address, or nil before Start.
func (s *Server) Addr() net.Addr {
	if s.listener != nil {
		return s.listener.Addr()
	}
	return nil
}

// ConnectionCount returns the number of open connections.
func (s *Server) ConnectionCount() int {
	s.connsMu.RLock()
	defer s.connsMu.RUnlock()
	return len(s.conns)
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for s.running.Load() {
		nc, err := s.listener.Accept()
		if err != nil {
			if !s.running.Load() || errors.Is(err, net.ErrClosed) {
				return
			}
			s.reportError(fmt.Errorf("accept error: %w", err))
			continue
		}

		s.wg.Add(1)
		go s.handleConnection(nc)
	}
}

func (s *Server) handleConnection(nc net.Conn) {
	defer s.wg.Done()

	conn := NewConn(nc, uuid.New().String(), s.config.EnvelopeSize)
	conn.SetProtocolLogger(s.config.ProtocolLogger, log.RoleHub)
	conn.onClose = s.untrack

	s.connsMu.Lock()
	s.conns[conn] = struct{}{}
	s.connsMu.Unlock()

	// Stop may have run between Accept and tracking.
	if !s.running.Load() {
		conn.Close()
		return
	}

	conn.Log().State(log.StateEntityConnection, "", "CONNECTED", "")
	s.config.Logger.Debug("accepted connection",
		"conn_id", conn.ConnID(),
		"remote", conn.RemoteAddr().String())

	defer func() {
		if r := recover(); r != nil {
			conn.Close()
			s.reportError(fmt.Errorf("handler panic on %s: %v", conn.RemoteAddr(), r))
			s.config.Logger.Error("connection handler panicked",
				"conn_id", conn.ConnID(),
				"panic", r,
				"stack", string(debug.Stack()))
		}
	}()

	s.config.Handler(s.ctx, conn)
}

func (s *Server) untrack(c *Conn) {
	s.connsMu.Lock()
	delete(s.conns, c)
	s.connsMu.Unlock()
}

func (s *Server) reportError(err error) {
	if s.config.OnError != nil {
		s.config.OnError(err)
		return
	}
	s.config.Logger.Warn("transport error", "error", err)
}

package hub

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/homehub-sim/homehub/pkg/envelope"
	"github.com/homehub-sim/homehub/pkg/log"
	"github.com/homehub-sim/homehub/pkg/registry"
	"github.com/homehub-sim/homehub/pkg/transport"
	"github.com/homehub-sim/homehub/pkg/wire"
)

// SessionState is the hub-side state of one connection.
type SessionState uint8

const (
	SessionAwaitingHandshake SessionState = iota
	SessionRegistered
	SessionClosed
)

// String returns the state name.
func (s SessionState) String() string {
	switch s {
	case SessionAwaitingHandshake:
		return "AWAITING_HANDSHAKE"
	case SessionRegistered:
		return "REGISTERED"
	case SessionClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// SessionHandler runs the handshake on accepted connections.
type SessionHandler struct {
	privateKey *rsa.PrivateKey
	devicePub  *rsa.PublicKey
	creds      wire.Credentials
	registry   *registry.Registry
	limiter    *ipRateLimiter
	timeout    time.Duration
	logger     *slog.Logger
	emit       EventHandler
}

// NewSessionHandler creates a handler from cfg. emit may be nil.
func NewSessionHandler(cfg Config, emit EventHandler) *SessionHandler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if emit == nil {
		emit = func(Event) {}
	}
	return &SessionHandler{
		privateKey: cfg.PrivateKey,
		devicePub:  cfg.DevicePublicKey,
		creds:      cfg.Credentials,
		registry:   cfg.Registry,
		limiter:    newIPRateLimiter(cfg.HandshakeRate, cfg.HandshakeBurst),
		timeout:    cfg.HandshakeTimeout,
		logger:     logger,
		emit:       emit,
	}
}

// Handle adapts Serve to transport.Handler.
func (h *SessionHandler) Handle(ctx context.Context, conn *transport.Conn) {
	h.Serve(ctx, conn)
}

// Serve runs one handshake on conn. On success the connection is left open
// and owned by the registry; otherwise it is closed.
func (h *SessionHandler) Serve(ctx context.Context, conn transport.EnvelopeConn) (registry.Identity, error) {
	src := conn.Log()
	addr := ""
	if conn.RemoteAddr() != nil {
		addr = conn.RemoteAddr().String()
	}
	logger := h.logger.With("conn_id", conn.ConnID(), "remote", addr)

	src.State(log.StateEntitySession, "", SessionAwaitingHandshake.String(), "")

	if h.timeout > 0 {
		conn.SetDeadline(time.Now().Add(h.timeout))
	}

	data, err := conn.ReadEnvelope()
	if err != nil {
		conn.Close()
		if errors.Is(err, transport.ErrPeerClosed) {
			logger.Debug("peer hung up before handshake")
			src.State(log.StateEntitySession, SessionAwaitingHandshake.String(), SessionClosed.String(), "empty read")
			return registry.Identity{}, err
		}
		logger.Warn("handshake read failed", "error", err)
		src.Error(log.LayerTransport, err, "handshake read")
		src.State(log.StateEntitySession, SessionAwaitingHandshake.String(), SessionClosed.String(), "read failed")
		return registry.Identity{}, err
	}

	if !h.limiter.allow(remoteIP(conn.RemoteAddr())) {
		return registry.Identity{}, h.reject(conn, logger, wire.Request{}, ErrRateLimited)
	}

	var req wire.Request
	if err := envelope.Open(data, h.privateKey, &req); err != nil {
		src.Error(log.LayerWire, err, "handshake open")
		return registry.Identity{}, h.reject(conn, logger, wire.Request{}, err)
	}
	src.WithDevice(req.DevID).Request(log.DirectionIn, string(req.Action), nil)

	if err := h.check(req); err != nil {
		return registry.Identity{}, h.reject(conn, logger, req, err)
	}

	// Registered before the reply so the device is listed as soon as it
	// learns it is connected.
	isNew := h.registry.Upsert(req.DevID, req.DevType, conn)
	id := registry.Identity{ID: req.DevID, Type: req.DevType}

	if err := h.reply(conn, wire.ResultSuccess); err != nil {
		h.registry.MarkOfflineConn(req.DevID, conn)
		logger.Warn("handshake reply failed", "device", req.DevID, "error", err)
		src.State(log.StateEntitySession, SessionAwaitingHandshake.String(), SessionClosed.String(), "reply failed")
		return id, err
	}
	if h.timeout > 0 {
		conn.SetDeadline(time.Time{})
	}

	src = src.WithDevice(req.DevID)
	src.Response(log.DirectionOut, `"`+wire.ResultSuccess+`"`, 0)
	src.State(log.StateEntitySession, SessionAwaitingHandshake.String(), SessionRegistered.String(), "")
	src.State(log.StateEntityRegistry, "", "ONLINE", "")

	ev := Event{DeviceID: req.DevID, DeviceType: req.DevType, RemoteAddr: addr}
	if isNew {
		logger.Info("new device", "device", req.DevID, "type", req.DevType)
		ev.Type = EventDeviceRegistered
	} else {
		logger.Info("registered device reconnected", "device", req.DevID, "type", req.DevType)
		ev.Type = EventDeviceReconnected
	}
	h.emit(ev)

	return id, nil
}

// check validates a decoded handshake request.
func (h *SessionHandler) check(req wire.Request) error {
	switch {
	case req.Action != wire.ActionConnect:
		return fmt.Errorf("unexpected action %s", req.Action)
	case !h.creds.Match(req.Credentials()):
		return fmt.Errorf("bad credentials for user %q", req.User)
	case req.DevID == "":
		return fmt.Errorf("missing device identifier")
	case req.DevType == "":
		return fmt.Errorf("missing device type")
	}
	return nil
}

// reject answers failure and closes the connection.
func (h *SessionHandler) reject(conn transport.EnvelopeConn, logger *slog.Logger, req wire.Request, cause error) error {
	defer conn.Close()

	err := fmt.Errorf("%w: %w", ErrHandshakeRejected, cause)
	logger.Warn("handshake rejected", "device", req.DevID, "reason", cause)

	src := conn.Log().WithDevice(req.DevID)
	if replyErr := h.reply(conn, wire.ResultFailure); replyErr != nil {
		logger.Debug("failure reply not delivered", "error", replyErr)
	} else {
		src.Response(log.DirectionOut, `"`+wire.ResultFailure+`"`, 0)
	}
	src.State(log.StateEntitySession, SessionAwaitingHandshake.String(), SessionClosed.String(), cause.Error())

	addr := ""
	if conn.RemoteAddr() != nil {
		addr = conn.RemoteAddr().String()
	}
	h.emit(Event{Type: EventHandshakeRejected, DeviceID: req.DevID, RemoteAddr: addr, Err: err})
	return err
}

func (h *SessionHandler) reply(conn transport.EnvelopeConn, result string) error {
	data, err := envelope.Seal(wire.NewResponse(result), h.devicePub)
	if err != nil {
		return err
	}
	return conn.WriteEnvelope(data)
}

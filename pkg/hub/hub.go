package hub

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/homehub-sim/homehub/pkg/envelope"
	"github.com/homehub-sim/homehub/pkg/registry"
	"github.com/homehub-sim/homehub/pkg/transport"
)

// Hub accepts device connections and dispatches operator commands.
type Hub struct {
	mu sync.RWMutex

	config     Config
	state      State
	logger     *slog.Logger
	server     *transport.Server
	session    *SessionHandler
	dispatcher *Dispatcher

	eventHandlers []EventHandler
}

// New creates a hub.
func New(config Config) (*Hub, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.ListenAddress == "" {
		config.ListenAddress = transport.DefaultAddress
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	h := &Hub{
		config: config,
		state:  StateIdle,
		logger: config.Logger,
	}
	h.session = NewSessionHandler(config, h.emitEvent)
	h.dispatcher = NewDispatcher(config, h.emitEvent)
	return h, nil
}

// Start listens for devices.
func (h *Hub) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.state == StateRunning {
		return ErrAlreadyStarted
	}

	server, err := transport.NewServer(transport.ServerConfig{
		Address:        h.config.ListenAddress,
		EnvelopeSize:   envelope.CiphertextSize(h.config.PrivateKey),
		Handler:        h.session.Handle,
		Logger:         h.logger,
		ProtocolLogger: h.config.ProtocolLogger,
	})
	if err != nil {
		return err
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("start listener: %w", err)
	}
	h.server = server

	if h.config.Advertiser != nil {
		if tcp, ok := server.Addr().(*net.TCPAddr); ok {
			if err := h.config.Advertiser.Advertise(tcp.Port); err != nil {
				h.logger.Warn("mDNS advertisement failed", "error", err)
			}
		}
	}

	h.state = StateRunning
	h.logger.Info("hub listening", "address", server.Addr().String())
	return nil
}

// Stop closes every device connection, saves the registry and stops
// listening. Handlers still finishing a handshake may emit events, so h.mu
// is released before waiting on them.
func (h *Hub) Stop() error {
	h.mu.Lock()
	if h.state != StateRunning {
		h.mu.Unlock()
		return ErrNotStarted
	}
	h.state = StateStopped
	server := h.server
	h.mu.Unlock()

	if h.config.Advertiser != nil {
		h.config.Advertiser.Stop()
	}

	err := server.Stop()
	closed := h.config.Registry.CloseAll()
	if !h.config.Registry.Save() {
		h.logger.Warn("registry not saved on shutdown")
	}

	h.logger.Info("hub stopped", "closed_connections", closed)
	return err
}

// State returns the lifecycle state.
func (h *Hub) State() State {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state
}

// Addr returns the listen address, or nil when not running.
func (h *Hub) Addr() net.Addr {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.server == nil {
		return nil
	}
	return h.server.Addr()
}

// Registry returns the device table.
func (h *Hub) Registry() *registry.Registry {
	return h.config.Registry
}

// Dispatcher returns the command dispatcher.
func (h *Hub) Dispatcher() *Dispatcher {
	return h.dispatcher
}

// Forget removes a device from the registry, closing its connection.
func (h *Hub) Forget(deviceID string) bool {
	if !h.config.Registry.Remove(deviceID) {
		return false
	}
	h.logger.Info("device forgotten", "device", deviceID)
	return true
}

// OnEvent registers an event handler.
func (h *Hub) OnEvent(handler EventHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.eventHandlers = append(h.eventHandlers, handler)
}

func (h *Hub) emitEvent(event Event) {
	h.mu.RLock()
	handlers := append([]EventHandler(nil), h.eventHandlers...)
	h.mu.RUnlock()

	for _, handler := range handlers {
		handler(event)
	}
}

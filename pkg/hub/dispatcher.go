package hub

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/homehub-sim/homehub/pkg/envelope"
	"github.com/homehub-sim/homehub/pkg/log"
	"github.com/homehub-sim/homehub/pkg/registry"
	"github.com/homehub-sim/homehub/pkg/transport"
	"github.com/homehub-sim/homehub/pkg/wire"
)

// Target selection errors. Their messages are shown to the operator as is.
var (
	ErrNoConnectedDevices = errors.New("No connected devices")
	ErrInvalidInput       = errors.New("Invalid input")
	ErrOutOfRange         = errors.New("Invalid input. Please enter a value from the menu.")
)

// Target is a selected device, or every connected device.
type Target struct {
	All      bool
	DeviceID string
}

// SelectTarget resolves the operator's choice against a numbered list of
// connected devices. Entries are numbered from 0; when allowBroadcast is
// set, len(connected) selects every device.
func SelectTarget(connected []string, input string, allowBroadcast bool) (Target, error) {
	if len(connected) == 0 {
		return Target{}, ErrNoConnectedDevices
	}

	n, err := strconv.Atoi(strings.ToLower(strings.TrimSpace(input)))
	if err != nil {
		return Target{}, ErrInvalidInput
	}

	switch {
	case n < 0:
		return Target{}, ErrOutOfRange
	case n < len(connected):
		return Target{DeviceID: connected[n]}, nil
	case n == len(connected) && allowBroadcast:
		return Target{All: true}, nil
	default:
		return Target{}, ErrOutOfRange
	}
}

// Result is the outcome of one round trip in a broadcast.
type Result struct {
	DeviceID string
	Response wire.Response
	Err      error
}

// Dispatcher drives command round trips over registered connections.
type Dispatcher struct {
	mu        sync.Mutex
	registry  *registry.Registry
	devicePub *rsa.PublicKey
	hubPriv   *rsa.PrivateKey
	timeout   time.Duration
	logger    *slog.Logger
	emit      EventHandler
}

// NewDispatcher creates a dispatcher from cfg. emit may be nil.
func NewDispatcher(cfg Config, emit EventHandler) *Dispatcher {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if emit == nil {
		emit = func(Event) {}
	}
	return &Dispatcher{
		registry:  cfg.Registry,
		devicePub: cfg.DevicePublicKey,
		hubPriv:   cfg.PrivateKey,
		timeout:   cfg.CommandTimeout,
		logger:    logger,
		emit:      emit,
	}
}

// RoundTrip sends req to the device and returns its response.
//
// A transport fault marks the device offline and returns
// ErrUnableToConnect. A response that cannot be opened or has no result
// returns ErrNotUnderstood. A successful set_disconnect marks the device
// offline and closes the hub side of the connection.
func (d *Dispatcher) RoundTrip(ctx context.Context, deviceID string, req wire.Request) (wire.Response, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	conn, ok := d.registry.Conn(deviceID)
	if !ok {
		return wire.Response{}, fmt.Errorf("%w: %s", ErrNotConnected, deviceID)
	}
	src := conn.Log().WithDevice(deviceID)
	logger := d.logger.With("device", deviceID, "action", req.Action.String())

	data, err := envelope.Seal(req, d.devicePub)
	if err != nil {
		return wire.Response{}, err
	}

	deadline, hasDeadline := ctx.Deadline()
	if !hasDeadline && d.timeout > 0 {
		deadline, hasDeadline = time.Now().Add(d.timeout), true
	}
	if hasDeadline {
		conn.SetDeadline(deadline)
		defer conn.SetDeadline(time.Time{})
	}
	stop := context.AfterFunc(ctx, func() {
		conn.SetDeadline(time.Now())
	})
	defer stop()

	start := time.Now()
	if err := conn.WriteEnvelope(data); err != nil {
		return wire.Response{}, d.lost(deviceID, conn, src, logger, err)
	}
	src.Request(log.DirectionOut, string(req.Action), req.Value)

	reply, err := conn.ReadEnvelope()
	if err != nil {
		return wire.Response{}, d.lost(deviceID, conn, src, logger, err)
	}

	var resp wire.Response
	if err := envelope.Open(reply, d.hubPriv, &resp); err != nil {
		logger.Warn("response not understood", "error", err)
		src.Error(log.LayerWire, err, "open response")
		return wire.Response{}, fmt.Errorf("%w: %w", ErrNotUnderstood, err)
	}
	if !resp.HasResult() {
		logger.Warn("response has no result")
		src.Error(log.LayerWire, ErrNotUnderstood, "response without result")
		return wire.Response{}, ErrNotUnderstood
	}
	src.Response(log.DirectionIn, resp.Format(), time.Since(start))

	if req.Action == wire.ActionDisconnect {
		if d.registry.MarkOfflineConn(deviceID, conn) {
			src.State(log.StateEntityRegistry, "ONLINE", "OFFLINE", "disconnect")
			d.emit(Event{Type: EventDeviceOffline, DeviceID: deviceID})
		}
		logger.Info("device disconnected")
	}

	return resp, nil
}

// lost handles a transport fault: the device is marked offline.
func (d *Dispatcher) lost(deviceID string, conn transport.EnvelopeConn, src log.Source, logger *slog.Logger, cause error) error {
	src.Error(log.LayerTransport, cause, "round trip")
	if d.registry.MarkOfflineConn(deviceID, conn) {
		src.State(log.StateEntityRegistry, "ONLINE", "OFFLINE", cause.Error())
		d.emit(Event{Type: EventDeviceOffline, DeviceID: deviceID, Err: cause})
	}
	logger.Warn("device unreachable, marked offline", "error", cause)
	return fmt.Errorf("%w: %w", ErrUnableToConnect, cause)
}

// Broadcast runs RoundTrip against every connected device in turn. A
// failure on one device does not stop the others.
func (d *Dispatcher) Broadcast(ctx context.Context, req wire.Request) []Result {
	ids := d.registry.ConnectedIDs()
	results := make([]Result, 0, len(ids))
	for _, id := range ids {
		resp, err := d.RoundTrip(ctx, id, req)
		results = append(results, Result{DeviceID: id, Response: resp, Err: err})
	}
	return results
}

// Send resolves target and runs a single or broadcast round trip.
func (d *Dispatcher) Send(ctx context.Context, target Target, req wire.Request) []Result {
	if target.All {
		return d.Broadcast(ctx, req)
	}
	resp, err := d.RoundTrip(ctx, target.DeviceID, req)
	return []Result{{DeviceID: target.DeviceID, Response: resp, Err: err}}
}

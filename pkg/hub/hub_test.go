package hub

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/homehub-sim/homehub/internal/testkeys"
	"github.com/homehub-sim/homehub/pkg/device"
	"github.com/homehub-sim/homehub/pkg/envelope"
	"github.com/homehub-sim/homehub/pkg/persistence"
	"github.com/homehub-sim/homehub/pkg/registry"
	"github.com/homehub-sim/homehub/pkg/transport"
	"github.com/homehub-sim/homehub/pkg/wire"
)

var testCreds = wire.Credentials{User: "admin", Pass: "secret"}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) handle(e Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) types() []EventType {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]EventType, len(l.events))
	for i, e := range l.events {
		out[i] = e.Type
	}
	return out
}

func startHub(t *testing.T, mutate func(*Config)) (*Hub, *eventLog) {
	t.Helper()
	keys := testkeys.Get(t)

	cfg := DefaultConfig()
	cfg.ListenAddress = "127.0.0.1:0"
	cfg.PrivateKey = keys.Hub
	cfg.DevicePublicKey = &keys.Device.PublicKey
	cfg.Credentials = testCreds
	cfg.Registry = registry.New(nil, quietLogger())
	cfg.CommandTimeout = 5 * time.Second
	cfg.Logger = quietLogger()
	if mutate != nil {
		mutate(&cfg)
	}

	h, err := New(cfg)
	require.NoError(t, err)

	events := &eventLog{}
	h.OnEvent(events.handle)

	require.NoError(t, h.Start(context.Background()))
	t.Cleanup(func() { h.Stop() })
	return h, events
}

// testDevice is the device side of one connection.
type testDevice struct {
	t      *testing.T
	conn   *transport.Conn
	priv   *rsa.PrivateKey
	hubPub *rsa.PublicKey
}

func dialHub(t *testing.T, h *Hub) *testDevice {
	t.Helper()
	keys := testkeys.Get(t)

	conn, err := transport.Dial(context.Background(), h.Addr().String(), transport.DialConfig{
		EnvelopeSize: envelope.CiphertextSize(keys.Device),
	})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return &testDevice{t: t, conn: conn, priv: keys.Device, hubPub: &keys.Hub.PublicKey}
}

func (d *testDevice) send(msg any) {
	d.t.Helper()
	data, err := envelope.Seal(msg, d.hubPub)
	require.NoError(d.t, err)
	require.NoError(d.t, d.conn.WriteEnvelope(data))
}

func (d *testDevice) recvRequest() (wire.Request, error) {
	data, err := d.conn.ReadEnvelope()
	if err != nil {
		return wire.Request{}, err
	}
	var req wire.Request
	err = envelope.Open(data, d.priv, &req)
	return req, err
}

func (d *testDevice) recvResult() string {
	d.t.Helper()
	data, err := d.conn.ReadEnvelope()
	require.NoError(d.t, err)
	var resp wire.Response
	require.NoError(d.t, envelope.Open(data, d.priv, &resp))
	s, ok := resp.String()
	require.True(d.t, ok)
	return s
}

func (d *testDevice) handshake(id, devType string, creds wire.Credentials) string {
	d.t.Helper()
	d.send(wire.NewConnectRequest(id, devType, creds))
	return d.recvResult()
}

// serve answers commands for dev until the connection ends.
func (d *testDevice) serve(dev device.Device) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			req, err := d.recvRequest()
			if err != nil {
				return
			}
			resp, ok := device.Execute(dev, req)
			if !ok {
				continue
			}
			data, err := envelope.Seal(resp, d.hubPub)
			if err != nil {
				return
			}
			if d.conn.WriteEnvelope(data) != nil {
				return
			}
			if req.Action == wire.ActionDisconnect {
				d.conn.Close()
				return
			}
		}
	}()
	return done
}

func connectDevice(t *testing.T, h *Hub, dev device.Device) (*testDevice, <-chan struct{}) {
	t.Helper()
	d := dialHub(t, h)
	require.Equal(t, wire.ResultSuccess, d.handshake(dev.ID(), string(dev.Kind()), testCreds))
	return d, d.serve(dev)
}

func TestNewValidatesConfig(t *testing.T) {
	_, err := New(Config{})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestStartStopState(t *testing.T) {
	h, _ := startHub(t, nil)
	assert.Equal(t, StateRunning, h.State())
	assert.ErrorIs(t, h.Start(context.Background()), ErrAlreadyStarted)

	require.NoError(t, h.Stop())
	assert.Equal(t, StateStopped, h.State())
	assert.ErrorIs(t, h.Stop(), ErrNotStarted)
}

func TestHandshakeRegistersDevice(t *testing.T) {
	h, events := startHub(t, nil)

	d := dialHub(t, h)
	assert.Equal(t, wire.ResultSuccess, d.handshake("Light1", "SmartLight", testCreds))

	e, ok := h.Registry().Get("Light1")
	require.True(t, ok)
	assert.Equal(t, "SmartLight", e.Type)
	assert.True(t, e.Connected())

	assert.Eventually(t, func() bool {
		return len(events.types()) == 1
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, []EventType{EventDeviceRegistered}, events.types())
}

func TestHandshakeRejections(t *testing.T) {
	tests := []struct {
		name string
		req  wire.Request
	}{
		{"wrong password", wire.NewConnectRequest("Light1", "SmartLight", wire.Credentials{User: "admin", Pass: "nope"})},
		{"wrong user", wire.NewConnectRequest("Light1", "SmartLight", wire.Credentials{User: "root", Pass: "secret"})},
		{"missing id", wire.NewConnectRequest("", "SmartLight", testCreds)},
		{"missing type", wire.NewConnectRequest("Light1", "", testCreds)},
		{"not a connect", wire.Request{Action: wire.ActionGetReadings, DevID: "Light1", DevType: "SmartLight", User: "admin", Pass: "secret"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, events := startHub(t, nil)

			d := dialHub(t, h)
			d.send(tt.req)
			assert.Equal(t, wire.ResultFailure, d.recvResult())

			_, err := d.conn.ReadEnvelope()
			assert.ErrorIs(t, err, transport.ErrPeerClosed)
			assert.Equal(t, 0, h.Registry().Len())

			assert.Eventually(t, func() bool {
				types := events.types()
				return len(types) == 1 && types[0] == EventHandshakeRejected
			}, time.Second, 10*time.Millisecond)
		})
	}
}

func TestHandshakeUndecryptable(t *testing.T) {
	h, _ := startHub(t, nil)
	keys := testkeys.Get(t)

	d := dialHub(t, h)
	d.hubPub = &keys.Other.PublicKey
	d.send(wire.NewConnectRequest("Light1", "SmartLight", testCreds))

	assert.Equal(t, wire.ResultFailure, d.recvResult())
	assert.Equal(t, 0, h.Registry().Len())
}

func TestHandshakeEmptyReadClosesQuietly(t *testing.T) {
	h, events := startHub(t, nil)

	d := dialHub(t, h)
	d.conn.Close()

	assert.Eventually(t, func() bool {
		return h.server.ConnectionCount() == 0
	}, time.Second, 10*time.Millisecond)
	assert.Empty(t, events.types())
	assert.Equal(t, 0, h.Registry().Len())
}

func TestHandshakeRateLimit(t *testing.T) {
	h, _ := startHub(t, func(c *Config) {
		c.HandshakeRate = 0.001
		c.HandshakeBurst = 1
	})

	first := dialHub(t, h)
	assert.Equal(t, wire.ResultSuccess, first.handshake("Light1", "SmartLight", testCreds))

	second := dialHub(t, h)
	assert.Equal(t, wire.ResultFailure, second.handshake("Light2", "SmartLight", testCreds))

	_, ok := h.Registry().Get("Light2")
	assert.False(t, ok)
}

func TestDefaultConfigAdmitsDevicesFromOneHost(t *testing.T) {
	assert.Zero(t, DefaultConfig().HandshakeRate)

	h, _ := startHub(t, nil)
	for _, p := range device.Presets()[:8] {
		d := dialHub(t, h)
		assert.Equal(t, wire.ResultSuccess, d.handshake(p.ID(), string(p.Kind()), testCreds), p.ID())
	}
	assert.Equal(t, 8, h.Registry().ConnectedCount())
}

// handshakeFrom dials addr and runs one handshake without touching t, so it
// can run on any goroutine.
func handshakeFrom(addr string, keys testkeys.Set, id, devType string) (*transport.Conn, string, error) {
	conn, err := transport.Dial(context.Background(), addr, transport.DialConfig{
		EnvelopeSize: envelope.CiphertextSize(keys.Device),
	})
	if err != nil {
		return nil, "", err
	}
	data, err := envelope.Seal(wire.NewConnectRequest(id, devType, testCreds), &keys.Hub.PublicKey)
	if err == nil {
		err = conn.WriteEnvelope(data)
	}
	if err == nil {
		data, err = conn.ReadEnvelope()
	}
	var resp wire.Response
	if err == nil {
		err = envelope.Open(data, keys.Device, &resp)
	}
	if err != nil {
		conn.Close()
		return nil, "", err
	}
	result, _ := resp.String()
	return conn, result, nil
}

func TestConcurrentHandshakes(t *testing.T) {
	key, err := envelope.GenerateSymmetricKey()
	require.NoError(t, err)
	store := persistence.NewRegistryStore(filepath.Join(t.TempDir(), "stored_devices.bin"), key)

	h, _ := startHub(t, func(c *Config) {
		c.Registry = registry.New(store, quietLogger())
	})
	keys := testkeys.Get(t)
	addr := h.Addr().String()

	const n = 24
	conns := make([]*transport.Conn, n)
	results := make([]string, n)
	errs := make([]error, n)

	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conns[i], results[i], errs[i] = handshakeFrom(addr, keys, fmt.Sprintf("Light%d", i), "SmartLight")
		}()
	}
	wg.Wait()

	for i := range n {
		require.NoError(t, errs[i])
		t.Cleanup(func() { conns[i].Close() })
		assert.Equal(t, wire.ResultSuccess, results[i])
	}

	reg := h.Registry()
	assert.Equal(t, n, reg.Len())
	assert.Equal(t, n, reg.ConnectedCount())
	assert.Len(t, reg.ListConnected(), n)

	d := dialHub(t, h)
	require.Equal(t, wire.ResultSuccess, d.handshake("Light3", "SmartLight", testCreds))

	_, err = conns[3].ReadEnvelope()
	assert.ErrorIs(t, err, transport.ErrPeerClosed)
	assert.Equal(t, n, reg.Len())
	assert.Equal(t, n, reg.ConnectedCount())

	snapshot, err := store.Load()
	require.NoError(t, err)
	assert.Len(t, snapshot, n)
	for i := range n {
		assert.Equal(t, "SmartLight", snapshot[fmt.Sprintf("Light%d", i)].DevType)
	}
}

func TestFailedHandshakeLeavesKnownDeviceAlone(t *testing.T) {
	h, _ := startHub(t, nil)

	_, _ = connectDevice(t, h, device.NewSmartLight("Light1", 50))
	before, ok := h.Registry().Get("Light1")
	require.True(t, ok)

	intruder := dialHub(t, h)
	assert.Equal(t, wire.ResultFailure,
		intruder.handshake("Light1", "MotionSensor", wire.Credentials{User: "admin", Pass: "nope"}))

	after, ok := h.Registry().Get("Light1")
	require.True(t, ok)
	assert.Equal(t, "SmartLight", after.Type)
	assert.True(t, before.Conn == after.Conn, "connection replaced by a rejected handshake")
	assert.Equal(t, before.LastSeenAddress, after.LastSeenAddress)

	resp, err := h.Dispatcher().RoundTrip(context.Background(), "Light1", wire.NewCommand(wire.ActionGetReadings))
	require.NoError(t, err)
	_, ok = resp.Readings()
	assert.True(t, ok)
}

func TestStopWithHandshakesInFlight(t *testing.T) {
	h, _ := startHub(t, nil)
	h.OnEvent(func(Event) { time.Sleep(time.Millisecond) })

	keys := testkeys.Get(t)
	junk := make([]byte, envelope.CiphertextSize(keys.Hub))
	for range 50 {
		d := dialHub(t, h)
		require.NoError(t, d.conn.WriteEnvelope(junk))
	}

	stopped := make(chan error, 1)
	go func() { stopped <- h.Stop() }()

	select {
	case err := <-stopped:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("Stop did not return while handshakes were in flight")
	}
	assert.Equal(t, StateStopped, h.State())
}

func TestReconnectReplacesConnection(t *testing.T) {
	h, events := startHub(t, nil)

	first := dialHub(t, h)
	require.Equal(t, wire.ResultSuccess, first.handshake("Light1", "SmartLight", testCreds))

	second := dialHub(t, h)
	require.Equal(t, wire.ResultSuccess, second.handshake("Light1", "SmartLight", testCreds))

	// The hub closed its side of the superseded connection.
	_, err := first.conn.ReadEnvelope()
	assert.ErrorIs(t, err, transport.ErrPeerClosed)

	assert.Equal(t, 1, h.Registry().Len())
	assert.Equal(t, 1, h.Registry().ConnectedCount())

	assert.Eventually(t, func() bool {
		return len(events.types()) == 2
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, []EventType{EventDeviceRegistered, EventDeviceReconnected}, events.types())
}

func TestLightThresholdAndDisconnect(t *testing.T) {
	h, events := startHub(t, nil)
	ctx := context.Background()

	_, done := connectDevice(t, h, device.NewSmartLight("Light1", 50))
	disp := h.Dispatcher()

	resp, err := disp.RoundTrip(ctx, "Light1", wire.NewThresholdCommand(120))
	require.NoError(t, err)
	assert.True(t, resp.IsSuccess())

	resp, err = disp.RoundTrip(ctx, "Light1", wire.NewCommand(wire.ActionGetReadings))
	require.NoError(t, err)
	readings, ok := resp.Readings()
	require.True(t, ok)
	assert.EqualValues(t, 100, readings["threshold"])
	assert.Equal(t, "active", readings["status"])

	resp, err = disp.RoundTrip(ctx, "Light1", wire.NewCommand(wire.ActionDisconnect))
	require.NoError(t, err)
	assert.True(t, resp.IsSuccess())

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("device did not end its session")
	}

	assert.Len(t, h.Registry().ListAll(), 1)
	assert.Empty(t, h.Registry().ListConnected())

	_, err = disp.RoundTrip(ctx, "Light1", wire.NewCommand(wire.ActionGetReadings))
	assert.ErrorIs(t, err, ErrNotConnected)

	assert.Eventually(t, func() bool {
		types := events.types()
		return len(types) == 2 && types[1] == EventDeviceOffline
	}, time.Second, 10*time.Millisecond)
}

func TestBroadcastContinuesPastFailure(t *testing.T) {
	h, _ := startHub(t, nil)

	_, _ = connectDevice(t, h, device.NewSmartLock("Lock1"))

	dead := dialHub(t, h)
	require.Equal(t, wire.ResultSuccess, dead.handshake("Lock2", "SmartLock", testCreds))
	dead.conn.Close()

	results := h.Dispatcher().Broadcast(context.Background(), wire.NewCommand(wire.ActionDeactivate))
	require.Len(t, results, 2)

	assert.Equal(t, "Lock1", results[0].DeviceID)
	require.NoError(t, results[0].Err)
	s, _ := results[0].Response.String()
	assert.Equal(t, device.ResultSuccess, s)

	assert.Equal(t, "Lock2", results[1].DeviceID)
	assert.ErrorIs(t, results[1].Err, ErrUnableToConnect)

	assert.Equal(t, []string{"Lock1"}, h.Registry().ConnectedIDs())
	assert.Equal(t, 2, h.Registry().Len())
}

func TestRoundTripNotUnderstood(t *testing.T) {
	h, _ := startHub(t, nil)
	keys := testkeys.Get(t)

	d := dialHub(t, h)
	require.Equal(t, wire.ResultSuccess, d.handshake("Therm1", "Thermostat", testCreds))

	go func() {
		if _, err := d.recvRequest(); err != nil {
			return
		}
		// Sealed for the wrong recipient.
		data, err := envelope.Seal(wire.NewResponse(device.ResultSuccess), &keys.Other.PublicKey)
		if err != nil {
			return
		}
		d.conn.WriteEnvelope(data)
	}()

	_, err := h.Dispatcher().RoundTrip(context.Background(), "Therm1", wire.NewCommand(wire.ActionOn))
	assert.ErrorIs(t, err, ErrNotUnderstood)

	_, ok := h.Registry().Conn("Therm1")
	assert.True(t, ok)
}

func TestRoundTripMissingResult(t *testing.T) {
	h, _ := startHub(t, nil)

	d := dialHub(t, h)
	require.Equal(t, wire.ResultSuccess, d.handshake("Motion1", "MotionSensor", testCreds))

	go func() {
		if _, err := d.recvRequest(); err != nil {
			return
		}
		d.send(map[string]string{"other": "field"})
	}()

	_, err := h.Dispatcher().RoundTrip(context.Background(), "Motion1", wire.NewCommand(wire.ActionOn))
	assert.ErrorIs(t, err, ErrNotUnderstood)
}

func TestRoundTripContextCancel(t *testing.T) {
	h, _ := startHub(t, nil)

	d := dialHub(t, h)
	require.Equal(t, wire.ResultSuccess, d.handshake("Therm2", "Thermostat", testCreds))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	// The device never answers.
	_, err := h.Dispatcher().RoundTrip(ctx, "Therm2", wire.NewCommand(wire.ActionGetReadings))
	assert.ErrorIs(t, err, ErrUnableToConnect)

	_, ok := h.Registry().Conn("Therm2")
	assert.False(t, ok)
}

func TestForget(t *testing.T) {
	h, _ := startHub(t, nil)

	_, done := connectDevice(t, h, device.NewSmartLight("Light3", 80))

	assert.True(t, h.Forget("Light3"))
	assert.False(t, h.Forget("Light3"))
	assert.Equal(t, 0, h.Registry().Len())

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("connection not closed")
	}
}

func TestStopClosesDevices(t *testing.T) {
	h, _ := startHub(t, nil)

	_, done := connectDevice(t, h, device.NewThermostat("Therm1", 23))
	require.NoError(t, h.Stop())

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("device connection survived Stop")
	}
	assert.Equal(t, 1, h.Registry().Len())
	assert.Equal(t, 0, h.Registry().ConnectedCount())
}

type recordingAdvertiser struct {
	mu      sync.Mutex
	port    int
	stopped bool
}

func (a *recordingAdvertiser) Advertise(port int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.port = port
	return nil
}

func (a *recordingAdvertiser) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopped = true
}

func TestAdvertiserLifecycle(t *testing.T) {
	adv := &recordingAdvertiser{}
	h, _ := startHub(t, func(c *Config) { c.Advertiser = adv })

	adv.mu.Lock()
	assert.NotZero(t, adv.port)
	adv.mu.Unlock()

	require.NoError(t, h.Stop())
	adv.mu.Lock()
	assert.True(t, adv.stopped)
	adv.mu.Unlock()
}

func TestSelectTarget(t *testing.T) {
	connected := []string{"Light1", "Lock1"}

	tests := []struct {
		name      string
		devices   []string
		input     string
		broadcast bool
		want      Target
		wantErr   error
	}{
		{"first", connected, "0", true, Target{DeviceID: "Light1"}, nil},
		{"second padded", connected, " 1 ", false, Target{DeviceID: "Lock1"}, nil},
		{"all", connected, "2", true, Target{All: true}, nil},
		{"all not offered", connected, "2", false, Target{}, ErrOutOfRange},
		{"too large", connected, "3", true, Target{}, ErrOutOfRange},
		{"negative", connected, "-1", true, Target{}, ErrOutOfRange},
		{"not a number", connected, "x", true, Target{}, ErrInvalidInput},
		{"none connected", nil, "0", true, Target{}, ErrNoConnectedDevices},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SelectTarget(tt.devices, tt.input, tt.broadcast)
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

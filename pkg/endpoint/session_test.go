package endpoint

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/homehub-sim/homehub/internal/testkeys"
	"github.com/homehub-sim/homehub/pkg/device"
	"github.com/homehub-sim/homehub/pkg/hub"
	"github.com/homehub-sim/homehub/pkg/persistence"
	"github.com/homehub-sim/homehub/pkg/registry"
	"github.com/homehub-sim/homehub/pkg/wire"
)

func startRealHub(t *testing.T, storePath string) *hub.Hub {
	t.Helper()
	keys := testkeys.Get(t)

	cfg := hub.DefaultConfig()
	cfg.ListenAddress = "127.0.0.1:0"
	cfg.PrivateKey = keys.Hub
	cfg.DevicePublicKey = &keys.Device.PublicKey
	cfg.Credentials = testCreds
	cfg.Registry = registry.Load(persistence.NewRegistryStore(storePath, keys.StorageKey), quietLogger())
	cfg.Logger = quietLogger()

	h, err := hub.New(cfg)
	require.NoError(t, err)
	require.NoError(t, h.Start(context.Background()))
	t.Cleanup(func() { h.Stop() })
	return h
}

func runDevice(t *testing.T, h *hub.Hub, dev device.Device) <-chan error {
	t.Helper()
	ep, err := New(testConfig(t, h.Addr().String(), dev))
	require.NoError(t, err)
	require.NoError(t, ep.Connect(context.Background()))

	done := make(chan error, 1)
	go func() { done <- ep.Run(context.Background()) }()
	t.Cleanup(func() { ep.Close() })
	return done
}

func TestSessionWithHub(t *testing.T) {
	storePath := t.TempDir() + "/stored_devices.bin"
	h := startRealHub(t, storePath)
	ctx := context.Background()

	done := runDevice(t, h, device.NewSmartLight("Light1", 50))
	disp := h.Dispatcher()

	resp, err := disp.RoundTrip(ctx, "Light1", wire.NewThresholdCommand(120))
	require.NoError(t, err)
	assert.True(t, resp.IsSuccess())

	resp, err = disp.RoundTrip(ctx, "Light1", wire.NewCommand(wire.ActionGetReadings))
	require.NoError(t, err)
	readings, ok := resp.Readings()
	require.True(t, ok)
	assert.EqualValues(t, 100, readings["threshold"])

	resp, err = disp.RoundTrip(ctx, "Light1", wire.NewCommand(wire.ActionDisconnect))
	require.NoError(t, err)
	assert.True(t, resp.IsSuccess())

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("endpoint still running after set_disconnect")
	}

	all := h.Registry().ListAll()
	require.Len(t, all, 1)
	assert.Equal(t, "Light1", all[0].ID)
	assert.Empty(t, h.Registry().ListConnected())

	// The snapshot survives a restart with the device offline.
	reloaded := registry.Load(persistence.NewRegistryStore(storePath, testkeys.Get(t).StorageKey), quietLogger())
	e, ok := reloaded.Get("Light1")
	require.True(t, ok)
	assert.Equal(t, "SmartLight", e.Type)
	assert.False(t, e.Connected())
}

func TestBroadcastWithHub(t *testing.T) {
	h := startRealHub(t, t.TempDir()+"/stored_devices.bin")

	runDevice(t, h, device.NewSmartLock("Lock1"))
	runDevice(t, h, device.NewThermostat("Therm1", 23))

	results := h.Dispatcher().Broadcast(context.Background(), wire.NewCommand(wire.ActionOn))
	require.Len(t, results, 2)

	got := map[string]string{}
	for _, r := range results {
		require.NoError(t, r.Err)
		s, _ := r.Response.String()
		got[r.DeviceID] = s
	}
	assert.Equal(t, map[string]string{
		"Lock1":  "already locked",
		"Therm1": device.ResultAlreadyOn,
	}, got)
}

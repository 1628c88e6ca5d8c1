package envelope_test

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/homehub-sim/homehub/internal/testkeys"
	"github.com/homehub-sim/homehub/pkg/envelope"
)

type handshake struct {
	Action  string `json:"action"`
	DevID   string `json:"devid"`
	DevType string `json:"devtype"`
	User    string `json:"user"`
	Pass    string `json:"pass"`
}

func TestSealOpenRoundTrip(t *testing.T) {
	keys := testkeys.Get(t)

	tests := []struct {
		name string
		msg  any
		into func() any
	}{
		{
			name: "handshake",
			msg:  handshake{Action: "connect", DevID: "Light1", DevType: "SmartLight", User: "user1", Pass: "user1password"},
			into: func() any { return &handshake{} },
		},
		{
			name: "readings",
			msg: map[string]any{"result": map[string]any{
				"identifier": "Therm1", "status": "active", "threshold": float64(23),
				"switch": "on", "temp": 15.3,
			}},
			into: func() any { return &map[string]any{} },
		},
		{
			name: "string result",
			msg:  map[string]any{"result": "success"},
			into: func() any { return &map[string]any{} },
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ct, err := envelope.Seal(tc.msg, &keys.Hub.PublicKey)
			require.NoError(t, err)
			assert.Len(t, ct, envelope.CiphertextSize(keys.Hub))

			got := tc.into()
			require.NoError(t, envelope.Open(ct, keys.Hub, got))

			switch want := tc.msg.(type) {
			case handshake:
				assert.Equal(t, want, *got.(*handshake))
			default:
				assert.Equal(t, want, *got.(*map[string]any))
			}
		})
	}
}

func TestOpenWithMismatchedKey(t *testing.T) {
	keys := testkeys.Get(t)

	ct, err := envelope.Seal(map[string]string{"result": "success"}, &keys.Device.PublicKey)
	require.NoError(t, err)

	var got map[string]string
	err = envelope.Open(ct, keys.Other, &got)
	require.Error(t, err)
	assert.True(t, errors.Is(err, envelope.ErrDecryption))
	assert.Nil(t, got)
}

func TestOpenMalformed(t *testing.T) {
	keys := testkeys.Get(t)

	t.Run("Empty", func(t *testing.T) {
		var v map[string]any
		assert.ErrorIs(t, envelope.Open(nil, keys.Hub, &v), envelope.ErrDecryption)
	})

	t.Run("Garbage", func(t *testing.T) {
		var v map[string]any
		garbage := bytes.Repeat([]byte{0xAB}, envelope.CiphertextSize(keys.Hub))
		assert.ErrorIs(t, envelope.Open(garbage, keys.Hub, &v), envelope.ErrDecryption)
	})

	t.Run("NilKey", func(t *testing.T) {
		var v map[string]any
		assert.ErrorIs(t, envelope.Open([]byte{1}, nil, &v), envelope.ErrDecryption)
	})
}

func TestSealCapacity(t *testing.T) {
	keys := testkeys.Get(t)
	pub := &keys.Hub.PublicKey

	assert.Equal(t, 190, envelope.MaxPlaintextSize(pub))

	// {"v":"..."} adds 8 bytes of framing around the string.
	fits := map[string]string{"v": strings.Repeat("x", 190-8)}
	_, err := envelope.Seal(fits, pub)
	assert.NoError(t, err)

	tooBig := map[string]string{"v": strings.Repeat("x", 190-7)}
	_, err = envelope.Seal(tooBig, pub)
	assert.ErrorIs(t, err, envelope.ErrEncryption)
	assert.ErrorIs(t, err, envelope.ErrMessageTooLarge)
}

func TestSealUnserializable(t *testing.T) {
	keys := testkeys.Get(t)
	_, err := envelope.Seal(map[string]any{"ch": make(chan int)}, &keys.Hub.PublicKey)
	assert.ErrorIs(t, err, envelope.ErrEncryption)
}

func TestSymmetricRoundTrip(t *testing.T) {
	key, err := envelope.GenerateSymmetricKey()
	require.NoError(t, err)

	data := []byte(`{"Light1":{"devtype":"SmartLight"}}`)
	blob, err := envelope.SealSymmetric(data, key)
	require.NoError(t, err)
	assert.Len(t, blob, len(data)+envelope.BlobOverhead)
	assert.Equal(t, envelope.BlobVersion, blob[0])

	got, err := envelope.OpenSymmetric(blob, key)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestOpenSymmetricFaults(t *testing.T) {
	key, err := envelope.GenerateSymmetricKey()
	require.NoError(t, err)
	other, err := envelope.GenerateSymmetricKey()
	require.NoError(t, err)

	blob, err := envelope.SealSymmetric([]byte("payload"), key)
	require.NoError(t, err)

	t.Run("WrongKey", func(t *testing.T) {
		_, err := envelope.OpenSymmetric(blob, other)
		assert.ErrorIs(t, err, envelope.ErrDecryption)
	})

	t.Run("Tampered", func(t *testing.T) {
		tampered := bytes.Clone(blob)
		tampered[len(tampered)-1] ^= 0xFF
		_, err := envelope.OpenSymmetric(tampered, key)
		assert.ErrorIs(t, err, envelope.ErrDecryption)
	})

	t.Run("Truncated", func(t *testing.T) {
		_, err := envelope.OpenSymmetric(blob[:10], key)
		assert.ErrorIs(t, err, envelope.ErrDecryption)
	})

	t.Run("WrongVersion", func(t *testing.T) {
		bad := bytes.Clone(blob)
		bad[0] = 0x02
		_, err := envelope.OpenSymmetric(bad, key)
		assert.ErrorIs(t, err, envelope.ErrDecryption)
	})

	t.Run("ShortKey", func(t *testing.T) {
		_, err := envelope.OpenSymmetric(blob, key[:16])
		assert.ErrorIs(t, err, envelope.ErrDecryption)
	})
}

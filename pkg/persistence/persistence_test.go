package persistence

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/homehub-sim/homehub/pkg/envelope"
	"github.com/homehub-sim/homehub/pkg/wire"
)

func testKey(t *testing.T) []byte {
	t.Helper()
	key, err := envelope.GenerateSymmetricKey()
	if err != nil {
		t.Fatalf("GenerateSymmetricKey() error = %v", err)
	}
	return key
}

func TestRegistryStore(t *testing.T) {
	t.Run("LoadNonExistent", func(t *testing.T) {
		store := NewRegistryStore(filepath.Join(t.TempDir(), "stored_devices.bin"), testKey(t))

		got, err := store.Load()
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if got != nil {
			t.Errorf("Load() = %v, want nil for non-existent file", got)
		}
	})

	t.Run("SaveAndLoad", func(t *testing.T) {
		store := NewRegistryStore(filepath.Join(t.TempDir(), "nested", "stored_devices.bin"), testKey(t))

		want := RegistrySnapshot{
			"Light1": {DevType: "SmartLight"},
			"Lock2":  {DevType: "SmartLock"},
		}
		if err := store.Save(want); err != nil {
			t.Fatalf("Save() error = %v", err)
		}

		got, err := store.Load()
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if len(got) != 2 || got["Light1"].DevType != "SmartLight" || got["Lock2"].DevType != "SmartLock" {
			t.Errorf("Load() = %v, want %v", got, want)
		}
	})

	t.Run("SaveEmpty", func(t *testing.T) {
		store := NewRegistryStore(filepath.Join(t.TempDir(), "r.bin"), testKey(t))

		if err := store.Save(nil); err != nil {
			t.Fatalf("Save(nil) error = %v", err)
		}
		got, err := store.Load()
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if got == nil || len(got) != 0 {
			t.Errorf("Load() = %v, want empty non-nil snapshot", got)
		}
	})

	t.Run("FileIsSealed", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "r.bin")
		store := NewRegistryStore(path, testKey(t))

		if err := store.Save(RegistrySnapshot{"Therm1": {DevType: "Thermostat"}}); err != nil {
			t.Fatal(err)
		}
		raw, err := os.ReadFile(path)
		if err != nil {
			t.Fatal(err)
		}
		if raw[0] != envelope.BlobVersion {
			t.Errorf("version byte = %#x, want %#x", raw[0], envelope.BlobVersion)
		}
		for _, plain := range []string{"Therm1", "Thermostat", "devtype"} {
			if bytes.Contains(raw, []byte(plain)) {
				t.Errorf("stored file contains plaintext %q", plain)
			}
		}

		entries, _ := os.ReadDir(filepath.Dir(path))
		if len(entries) != 1 {
			t.Errorf("directory has %d entries, want only the registry file", len(entries))
		}
	})

	t.Run("WrongKey", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "r.bin")
		if err := NewRegistryStore(path, testKey(t)).Save(RegistrySnapshot{"Light1": {DevType: "SmartLight"}}); err != nil {
			t.Fatal(err)
		}

		_, err := NewRegistryStore(path, testKey(t)).Load()
		if !errors.Is(err, ErrCorrupt) {
			t.Errorf("Load() error = %v, want ErrCorrupt", err)
		}
	})

	t.Run("Garbage", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "r.bin")
		if err := os.WriteFile(path, []byte("not a sealed blob"), 0600); err != nil {
			t.Fatal(err)
		}

		_, err := NewRegistryStore(path, testKey(t)).Load()
		if !errors.Is(err, ErrCorrupt) {
			t.Errorf("Load() error = %v, want ErrCorrupt", err)
		}
	})

	t.Run("Clear", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "r.bin")
		store := NewRegistryStore(path, testKey(t))

		if err := store.Clear(); err != nil {
			t.Errorf("Clear() on missing file error = %v", err)
		}
		if err := store.Save(RegistrySnapshot{}); err != nil {
			t.Fatal(err)
		}
		if err := store.Clear(); err != nil {
			t.Fatalf("Clear() error = %v", err)
		}
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Error("file still exists after Clear")
		}
	})
}

func TestCredentialsStore(t *testing.T) {
	t.Run("Missing", func(t *testing.T) {
		store := NewCredentialsStore(filepath.Join(t.TempDir(), "creds.bin"), testKey(t))

		_, err := store.Load()
		if !errors.Is(err, ErrNoCredentials) {
			t.Errorf("Load() error = %v, want ErrNoCredentials", err)
		}
	})

	t.Run("RoundTrip", func(t *testing.T) {
		key := testKey(t)
		path := filepath.Join(t.TempDir(), "creds.bin")
		want := wire.Credentials{User: "user1", Pass: "user1password"}

		if err := NewCredentialsStore(path, key).Save(want); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
		got, err := NewCredentialsStore(path, key).Load()
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if !got.Match(want) {
			t.Errorf("Load() = %v, want %v", got, want)
		}
	})

	t.Run("WrongKey", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "creds.bin")
		if err := NewCredentialsStore(path, testKey(t)).Save(wire.Credentials{User: "u", Pass: "p"}); err != nil {
			t.Fatal(err)
		}
		_, err := NewCredentialsStore(path, testKey(t)).Load()
		if !errors.Is(err, ErrCorrupt) {
			t.Errorf("Load() error = %v, want ErrCorrupt", err)
		}
	})
}

package persistence

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/homehub-sim/homehub/pkg/envelope"
)

// ErrCorrupt indicates a stored file could not be opened or parsed.
var ErrCorrupt = errors.New("stored data is corrupt")

// sealedFile is a JSON document sealed with a symmetric key.
type sealedFile struct {
	mu   sync.Mutex
	path string
	key  []byte
}

// write seals v and atomically replaces the file.
func (f *sealedFile) write(v any) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	blob, err := envelope.SealSymmetric(data, f.key)
	if err != nil {
		return err
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(f.path)+".*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(blob); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

// read opens the file into v. It reports false, nil when the file does
// not exist.
func (f *sealedFile) read(v any) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	blob, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	data, err := envelope.OpenSymmetric(blob, f.key)
	if err != nil {
		return false, fmt.Errorf("%w: %s: %v", ErrCorrupt, f.path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("%w: %s: %v", ErrCorrupt, f.path, err)
	}
	return true, nil
}

func (f *sealedFile) remove() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	err := os.Remove(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

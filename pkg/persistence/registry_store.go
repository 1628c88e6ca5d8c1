package persistence

import "fmt"

// DefaultRegistryFile is the hub's default registry path.
const DefaultRegistryFile = "stored_devices.bin"

// RegistryRecord is the persisted part of a registry entry.
type RegistryRecord struct {
	DevType string `json:"devtype"`
}

// RegistrySnapshot maps device identifiers to their records.
type RegistrySnapshot map[string]RegistryRecord

// RegistryStore persists registry snapshots.
type RegistryStore struct {
	file sealedFile
}

// NewRegistryStore creates a store at path sealed with key.
func NewRegistryStore(path string, key []byte) *RegistryStore {
	return &RegistryStore{file: sealedFile{path: path, key: key}}
}

// Path returns the file path.
func (s *RegistryStore) Path() string {
	return s.file.path
}

// Save replaces the stored snapshot.
func (s *RegistryStore) Save(snapshot RegistrySnapshot) error {
	if snapshot == nil {
		snapshot = RegistrySnapshot{}
	}
	if err := s.file.write(snapshot); err != nil {
		return fmt.Errorf("save registry: %w", err)
	}
	return nil
}

// Load returns the stored snapshot, or nil, nil when none exists.
func (s *RegistryStore) Load() (RegistrySnapshot, error) {
	var snapshot RegistrySnapshot
	found, err := s.file.read(&snapshot)
	if err != nil {
		return nil, fmt.Errorf("load registry: %w", err)
	}
	if !found {
		return nil, nil
	}
	if snapshot == nil {
		snapshot = RegistrySnapshot{}
	}
	return snapshot, nil
}

// Clear removes the stored snapshot.
func (s *RegistryStore) Clear() error {
	return s.file.remove()
}

package persistence

import (
	"errors"
	"fmt"

	"github.com/homehub-sim/homehub/pkg/wire"
)

// ErrNoCredentials indicates the credentials file does not exist.
var ErrNoCredentials = errors.New("credentials not found")

// CredentialsStore persists the shared username/password pair.
type CredentialsStore struct {
	file sealedFile
}

// NewCredentialsStore creates a store at path sealed with key.
func NewCredentialsStore(path string, key []byte) *CredentialsStore {
	return &CredentialsStore{file: sealedFile{path: path, key: key}}
}

// Save replaces the stored credentials.
func (s *CredentialsStore) Save(creds wire.Credentials) error {
	if err := s.file.write(creds); err != nil {
		return fmt.Errorf("save credentials: %w", err)
	}
	return nil
}

// Load returns the stored credentials. A missing file yields
// ErrNoCredentials.
func (s *CredentialsStore) Load() (wire.Credentials, error) {
	var creds wire.Credentials
	found, err := s.file.read(&creds)
	if err != nil {
		return wire.Credentials{}, fmt.Errorf("load credentials: %w", err)
	}
	if !found {
		return wire.Credentials{}, fmt.Errorf("%w: %s", ErrNoCredentials, s.file.path)
	}
	return creds, nil
}

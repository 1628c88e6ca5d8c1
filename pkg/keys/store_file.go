package keys

import (
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/homehub-sim/homehub/pkg/envelope"
)

// File names inside the secrets directory.
const (
	HubPrivateKeyFile    = "hub_prv.key"
	HubPublicKeyFile     = "hub_pub.key"
	DevicePrivateKeyFile = "dev_prv.key"
	DevicePublicKeyFile  = "dev_pub.key"
	HubStorageKeyFile    = "hub_enc.key"
	DeviceStorageKeyFile = "dev_enc.key"
	CredentialsFile      = "creds.bin"
)

// DefaultBits is the RSA key size generated by Generate.
const DefaultBits = 2048

// ErrNotFound indicates required key material is missing. It is a
// configuration error: callers should exit rather than retry.
var ErrNotFound = errors.New("key material not found")

// HubKeys is the key material a hub needs at startup.
type HubKeys struct {
	// PrivateKey opens envelopes addressed to the hub.
	PrivateKey *rsa.PrivateKey

	// DevicePublicKey seals envelopes addressed to any device.
	DevicePublicKey *rsa.PublicKey

	// StorageKey seals the persisted registry.
	StorageKey []byte
}

// DeviceKeys is the key material a device needs at startup.
type DeviceKeys struct {
	// PrivateKey opens envelopes addressed to the device.
	PrivateKey *rsa.PrivateKey

	// HubPublicKey seals envelopes addressed to the hub.
	HubPublicKey *rsa.PublicKey

	// StorageKey opens the stored credentials.
	StorageKey []byte
}

// FileStore reads and writes key material in a secrets directory.
type FileStore struct {
	baseDir string
}

// NewFileStore creates a store rooted at baseDir.
func NewFileStore(baseDir string) *FileStore {
	return &FileStore{baseDir: baseDir}
}

// Dir returns the secrets directory.
func (s *FileStore) Dir() string {
	return s.baseDir
}

// Path returns the full path of a file in the secrets directory.
func (s *FileStore) Path(name string) string {
	return filepath.Join(s.baseDir, name)
}

// LoadHub loads the hub's private key, the shared device public key and the
// device storage key. The hub seals its registry with the device storage
// key, matching the credentials file.
func (s *FileStore) LoadHub() (*HubKeys, error) {
	priv, err := ReadPrivateKeyFile(s.Path(HubPrivateKeyFile))
	if err != nil {
		return nil, s.wrap(HubPrivateKeyFile, err)
	}
	devPub, err := ReadPublicKeyFile(s.Path(DevicePublicKeyFile))
	if err != nil {
		return nil, s.wrap(DevicePublicKeyFile, err)
	}
	storage, err := ReadSymmetricKeyFile(s.Path(DeviceStorageKeyFile))
	if err != nil {
		return nil, s.wrap(DeviceStorageKeyFile, err)
	}
	return &HubKeys{PrivateKey: priv, DevicePublicKey: devPub, StorageKey: storage}, nil
}

// LoadDevice loads the shared device private key, the hub public key and
// the device storage key.
func (s *FileStore) LoadDevice() (*DeviceKeys, error) {
	priv, err := ReadPrivateKeyFile(s.Path(DevicePrivateKeyFile))
	if err != nil {
		return nil, s.wrap(DevicePrivateKeyFile, err)
	}
	hubPub, err := ReadPublicKeyFile(s.Path(HubPublicKeyFile))
	if err != nil {
		return nil, s.wrap(HubPublicKeyFile, err)
	}
	storage, err := ReadSymmetricKeyFile(s.Path(DeviceStorageKeyFile))
	if err != nil {
		return nil, s.wrap(DeviceStorageKeyFile, err)
	}
	return &DeviceKeys{PrivateKey: priv, HubPublicKey: hubPub, StorageKey: storage}, nil
}

// Generate creates fresh hub and device key pairs and storage keys,
// overwriting any existing files.
func (s *FileStore) Generate(bits int) error {
	if bits == 0 {
		bits = DefaultBits
	}
	if err := os.MkdirAll(s.baseDir, 0700); err != nil {
		return fmt.Errorf("creating secrets dir: %w", err)
	}

	pairs := []struct{ priv, pub string }{
		{HubPrivateKeyFile, HubPublicKeyFile},
		{DevicePrivateKeyFile, DevicePublicKeyFile},
	}
	for _, p := range pairs {
		key, err := rsa.GenerateKey(rand.Reader, bits)
		if err != nil {
			return fmt.Errorf("generating %s: %w", p.priv, err)
		}
		if err := WritePrivateKeyFile(s.Path(p.priv), key); err != nil {
			return fmt.Errorf("writing %s: %w", p.priv, err)
		}
		if err := WritePublicKeyFile(s.Path(p.pub), &key.PublicKey); err != nil {
			return fmt.Errorf("writing %s: %w", p.pub, err)
		}
	}

	for _, name := range []string{HubStorageKeyFile, DeviceStorageKeyFile} {
		key, err := envelope.GenerateSymmetricKey()
		if err != nil {
			return err
		}
		if err := WriteSymmetricKeyFile(s.Path(name), key); err != nil {
			return fmt.Errorf("writing %s: %w", name, err)
		}
	}
	return nil
}

// wrap converts a load failure into an ErrNotFound configuration error
// naming the offending file.
func (s *FileStore) wrap(name string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s (generate it with homehub-init)", ErrNotFound, s.Path(name))
	}
	return fmt.Errorf("%w: %s: %v", ErrNotFound, s.Path(name), err)
}

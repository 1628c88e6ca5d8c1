package keys

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/homehub-sim/homehub/pkg/envelope"
)

// PEM encoding/decoding errors.
var (
	ErrInvalidPEM = errors.New("invalid PEM data")
	ErrInvalidKey = errors.New("invalid key")
	ErrNotRSA     = errors.New("key is not an RSA key")
)

// EncodePrivateKeyPEM encodes an RSA private key as PKCS#8 PEM.
func EncodePrivateKeyPEM(key *rsa.PrivateKey) ([]byte, error) {
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, err
	}
	return pem.EncodeToMemory(&pem.Block{
		Type:  "PRIVATE KEY",
		Bytes: der,
	}), nil
}

// DecodePrivateKeyPEM decodes a PKCS#8 or PKCS#1 PEM-encoded RSA private key.
func DecodePrivateKeyPEM(data []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, ErrInvalidPEM
	}

	switch block.Type {
	case "PRIVATE KEY":
		parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
		}
		key, ok := parsed.(*rsa.PrivateKey)
		if !ok {
			return nil, ErrNotRSA
		}
		return key, nil
	case "RSA PRIVATE KEY":
		key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
		}
		return key, nil
	default:
		return nil, ErrInvalidPEM
	}
}

// EncodePublicKeyPEM encodes an RSA public key as PKIX PEM.
func EncodePublicKeyPEM(key *rsa.PublicKey) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(key)
	if err != nil {
		return nil, err
	}
	return pem.EncodeToMemory(&pem.Block{
		Type:  "PUBLIC KEY",
		Bytes: der,
	}), nil
}

// DecodePublicKeyPEM decodes a PKIX PEM-encoded RSA public key.
func DecodePublicKeyPEM(data []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(data)
	if block == nil || block.Type != "PUBLIC KEY" {
		return nil, ErrInvalidPEM
	}
	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	key, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, ErrNotRSA
	}
	return key, nil
}

// EncodeSymmetricKey encodes a storage key as base64url text.
func EncodeSymmetricKey(key []byte) []byte {
	return []byte(base64.URLEncoding.EncodeToString(key) + "\n")
}

// DecodeSymmetricKey decodes a base64url storage key and checks its size.
func DecodeSymmetricKey(data []byte) ([]byte, error) {
	key, err := base64.URLEncoding.DecodeString(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	if len(key) != envelope.KeySize {
		return nil, fmt.Errorf("%w: storage key is %d bytes, want %d", ErrInvalidKey, len(key), envelope.KeySize)
	}
	return key, nil
}

// WritePrivateKeyFile writes a private key to a PEM file with restricted permissions.
func WritePrivateKeyFile(path string, key *rsa.PrivateKey) error {
	data, err := EncodePrivateKeyPEM(key)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// ReadPrivateKeyFile reads a private key from a PEM file.
func ReadPrivateKeyFile(path string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return DecodePrivateKeyPEM(data)
}

// WritePublicKeyFile writes a public key to a PEM file.
func WritePublicKeyFile(path string, key *rsa.PublicKey) error {
	data, err := EncodePublicKeyPEM(key)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// ReadPublicKeyFile reads a public key from a PEM file.
func ReadPublicKeyFile(path string) (*rsa.PublicKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return DecodePublicKeyPEM(data)
}

// WriteSymmetricKeyFile writes a storage key with restricted permissions.
func WriteSymmetricKeyFile(path string, key []byte) error {
	return os.WriteFile(path, EncodeSymmetricKey(key), 0600)
}

// ReadSymmetricKeyFile reads a storage key file.
func ReadSymmetricKeyFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return DecodeSymmetricKey(data)
}

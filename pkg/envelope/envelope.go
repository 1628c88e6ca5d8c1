package envelope

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
)

// Envelope errors.
var (
	// ErrEncryption indicates a message could not be serialized or sealed.
	ErrEncryption = errors.New("envelope encryption failed")

	// ErrDecryption indicates a ciphertext could not be opened or decoded.
	ErrDecryption = errors.New("envelope decryption failed")

	// ErrMessageTooLarge indicates the serialized message exceeds the key's capacity.
	ErrMessageTooLarge = errors.New("message exceeds envelope capacity")
)

// MaxPlaintextSize returns the largest plaintext that fits in one envelope
// sealed with pub.
func MaxPlaintextSize(pub *rsa.PublicKey) int {
	if pub == nil {
		return 0
	}
	return pub.Size() - 2*sha256.Size - 2
}

// CiphertextSize returns the size of every envelope addressed to the holder
// of priv. Receivers read exactly this many bytes per message.
func CiphertextSize(priv *rsa.PrivateKey) int {
	if priv == nil {
		return 0
	}
	return priv.Size()
}

// Seal serializes msg to JSON and encrypts it for the holder of pub.
func Seal(msg any, pub *rsa.PublicKey) ([]byte, error) {
	if pub == nil {
		return nil, fmt.Errorf("%w: no public key", ErrEncryption)
	}

	plaintext, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncryption, err)
	}
	if max := MaxPlaintextSize(pub); len(plaintext) > max {
		return nil, fmt.Errorf("%w: %w: %d > %d", ErrEncryption, ErrMessageTooLarge, len(plaintext), max)
	}

	ciphertext, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, pub, plaintext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncryption, err)
	}
	return ciphertext, nil
}

// Open decrypts ciphertext with priv and decodes the JSON payload into v.
// Padding faults, key mismatches and malformed JSON all yield ErrDecryption.
func Open(ciphertext []byte, priv *rsa.PrivateKey, v any) error {
	if priv == nil {
		return fmt.Errorf("%w: no private key", ErrDecryption)
	}
	if len(ciphertext) == 0 {
		return fmt.Errorf("%w: empty ciphertext", ErrDecryption)
	}

	plaintext, err := rsa.DecryptOAEP(sha256.New(), nil, priv, ciphertext, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDecryption, err)
	}
	if err := json.Unmarshal(plaintext, v); err != nil {
		return fmt.Errorf("%w: %v", ErrDecryption, err)
	}
	return nil
}

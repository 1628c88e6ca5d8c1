package envelope

import (
	"crypto/rand"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
)

// KeySize is the size in bytes of the symmetric storage key.
const KeySize = chacha20poly1305.KeySize

// BlobVersion is the version byte prepended to every sealed blob. It is
// authenticated as additional data.
const BlobVersion byte = 0x01

// BlobOverhead is the byte overhead of a sealed blob:
// 1 (version) + 24 (nonce) + 16 (tag).
const BlobOverhead = 1 + chacha20poly1305.NonceSizeX + chacha20poly1305.Overhead

// GenerateSymmetricKey returns a fresh random storage key.
func GenerateSymmetricKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("generating storage key: %w", err)
	}
	return key, nil
}

// SealSymmetric encrypts data with key using XChaCha20-Poly1305.
func SealSymmetric(data, key []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncryption, err)
	}

	var nonce [chacha20poly1305.NonceSizeX]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("%w: generating nonce: %v", ErrEncryption, err)
	}

	out := make([]byte, 1+len(nonce), 1+len(nonce)+len(data)+aead.Overhead())
	out[0] = BlobVersion
	copy(out[1:], nonce[:])
	return aead.Seal(out, nonce[:], data, []byte{BlobVersion}), nil
}

// OpenSymmetric decrypts a blob produced by SealSymmetric. A wrong key,
// truncated blob, unknown version or tampered ciphertext yields ErrDecryption.
func OpenSymmetric(blob, key []byte) ([]byte, error) {
	if len(blob) < BlobOverhead {
		return nil, fmt.Errorf("%w: blob is %d bytes, minimum is %d", ErrDecryption, len(blob), BlobOverhead)
	}
	if blob[0] != BlobVersion {
		return nil, fmt.Errorf("%w: blob version %d not supported", ErrDecryption, blob[0])
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryption, err)
	}

	nonce := blob[1 : 1+chacha20poly1305.NonceSizeX]
	plaintext, err := aead.Open(nil, nonce, blob[1+chacha20poly1305.NonceSizeX:], blob[:1])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryption, err)
	}
	return plaintext, nil
}

// Package testkeys provides cached RSA key material for tests.
//
// Generating 2048-bit keys is slow enough to dominate test runtime, so the
// hub and device key pairs are generated once per test binary.
package testkeys

import (
	"crypto/rand"
	"crypto/rsa"
	"sync"
	"testing"
)

// Bits is the key size used by all test keys.
const Bits = 2048

// Set holds the key material shared by a hub and its devices.
type Set struct {
	Hub        *rsa.PrivateKey
	Device     *rsa.PrivateKey
	Other      *rsa.PrivateKey // unrelated key for mismatch tests
	StorageKey []byte
}

var (
	once   sync.Once
	shared Set
	genErr error
)

// Get returns the shared key set, generating it on first use.
func Get(t testing.TB) Set {
	t.Helper()

	once.Do(func() {
		shared.Hub, genErr = rsa.GenerateKey(rand.Reader, Bits)
		if genErr != nil {
			return
		}
		shared.Device, genErr = rsa.GenerateKey(rand.Reader, Bits)
		if genErr != nil {
			return
		}
		shared.Other, genErr = rsa.GenerateKey(rand.Reader, Bits)
		if genErr != nil {
			return
		}
		shared.StorageKey = make([]byte, 32)
		_, genErr = rand.Read(shared.StorageKey)
	})
	if genErr != nil {
		t.Fatalf("generating test keys: %v", genErr)
	}
	return shared
}

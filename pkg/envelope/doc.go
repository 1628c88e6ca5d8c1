// Package envelope implements the message envelope used between the hub and
// its devices, and the symmetric codec used for data at rest.
//
// # Asymmetric envelope
//
// Every protocol message is serialized to JSON and encrypted as a single
// RSA-OAEP block with the recipient's public key:
//
//	┌────────────────────────────────┐
//	│      JSON message (UTF-8)      │
//	├────────────────────────────────┤
//	│ RSA-OAEP (SHA-256, MGF1-SHA-256│
//	│        empty label)            │
//	├────────────────────────────────┤
//	│    one TCP write per envelope  │
//	└────────────────────────────────┘
//
// The plaintext is bounded by the key size: a 2048-bit key carries at most
// 190 bytes. The ciphertext is always exactly the key size in bytes.
//
// # Symmetric codec
//
// Registry snapshots and stored credentials are sealed with
// XChaCha20-Poly1305 under a 32-byte key distributed out of band:
//
//	[Version: 1 byte (0x01)] [Nonce: 24 bytes] [Ciphertext+Tag: N+16 bytes]
package envelope

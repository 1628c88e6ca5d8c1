// Package transport carries envelopes between the hub and its devices.
//
// # Protocol Stack
//
//	┌────────────────────────────────┐
//	│      JSON messages             │
//	├────────────────────────────────┤
//	│   RSA-OAEP envelope (1 block)  │
//	├────────────────────────────────┤
//	│           TCP                  │
//	└────────────────────────────────┘
//
// # Framing
//
// There is no length prefix. Every envelope is one RSA ciphertext block whose
// size equals the recipient's key size, so a receiver reads exactly the size
// of its own private key (256 bytes for RSA-2048). A clean EOF before any
// byte arrives is an empty read (ErrPeerClosed); an EOF part way through is
// ErrEnvelopeTruncated.
//
// # Ownership
//
// The Server hands each accepted connection to a Handler and does not close
// it when the handler returns: the hub keeps registered connections open for
// later commands. Server.Stop closes every connection still open.
package transport

package transport

import (
	"context"
	"net"
	"time"

	"github.com/homehub-sim/homehub/pkg/log"
)

// EnvelopeConn is a connection carrying envelopes.
// Implemented by Conn.
type EnvelopeConn interface {
	// ConnID returns the connection identifier.
	ConnID() string

	// RemoteAddr returns the peer address.
	RemoteAddr() net.Addr

	// ReadEnvelope reads exactly one envelope.
	ReadEnvelope() ([]byte, error)

	// WriteEnvelope writes one envelope.
	WriteEnvelope(data []byte) error

	// SetDeadline bounds the next reads and writes.
	SetDeadline(t time.Time) error

	// Log returns the protocol event source of the connection.
	Log() log.Source

	// Close closes the connection; repeated calls are no-ops.
	Close() error
}

// TransportServer accepts connections.
// Implemented by Server.
type TransportServer interface {
	Start(ctx context.Context) error
	Stop() error
	Addr() net.Addr
	ConnectionCount() int
}

var (
	_ EnvelopeConn    = (*Conn)(nil)
	_ TransportServer = (*Server)(nil)
)

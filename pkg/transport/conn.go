package transport

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/homehub-sim/homehub/pkg/log"
)

// Transport errors.
var (
	// ErrPeerClosed indicates the peer closed the connection before sending
	// any byte of the next envelope (an empty read).
	ErrPeerClosed = errors.New("peer closed connection")

	// ErrEnvelopeTruncated indicates the connection ended mid-envelope.
	ErrEnvelopeTruncated = errors.New("envelope truncated")

	// ErrConnectionClosed indicates the local side already closed the connection.
	ErrConnectionClosed = errors.New("connection closed")

	// ErrEmptyEnvelope indicates an attempt to write zero bytes.
	ErrEmptyEnvelope = errors.New("envelope is empty")
)

// Conn is a TCP connection carrying fixed-size envelopes.
type Conn struct {
	conn         net.Conn
	connID       string
	envelopeSize int
	src          log.Source

	readMu  sync.Mutex
	writeMu sync.Mutex

	closeOnce sync.Once
	closeCh   chan struct{}
	onClose   func(*Conn)
}

// NewConn wraps an established net.Conn. envelopeSize is the ciphertext size
// of envelopes addressed to this side.
func NewConn(nc net.Conn, connID string, envelopeSize int) *Conn {
	return &Conn{
		conn:         nc,
		connID:       connID,
		envelopeSize: envelopeSize,
		closeCh:      make(chan struct{}),
		src: log.Source{
			ConnectionID: connID,
			RemoteAddr:   addrString(nc.RemoteAddr()),
		},
	}
}

// SetProtocolLogger enables protocol capture for this connection.
func (c *Conn) SetProtocolLogger(logger log.Logger, role log.Role) {
	c.src.Logger = logger
	c.src.Role = role
}

// Log returns the protocol event source for this connection.
func (c *Conn) Log() log.Source {
	return c.src
}

// ConnID returns the connection identifier.
func (c *Conn) ConnID() string {
	return c.connID
}

// RemoteAddr returns the peer address.
func (c *Conn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// LocalAddr returns the local address.
func (c *Conn) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

// EnvelopeSize returns the size of envelopes read from this connection.
func (c *Conn) EnvelopeSize() int {
	return c.envelopeSize
}

// SetDeadline sets the read and write deadline.
func (c *Conn) SetDeadline(t time.Time) error {
	return c.conn.SetDeadline(t)
}

// ReadEnvelope reads exactly one envelope.
func (c *Conn) ReadEnvelope() ([]byte, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	if c.IsClosed() {
		return nil, ErrConnectionClosed
	}

	buf := make([]byte, c.envelopeSize)
	n, err := io.ReadFull(c.conn, buf)
	switch {
	case err == nil:
	case errors.Is(err, io.EOF):
		return nil, ErrPeerClosed
	case errors.Is(err, io.ErrUnexpectedEOF):
		return nil, fmt.Errorf("%w: got %d of %d bytes", ErrEnvelopeTruncated, n, c.envelopeSize)
	case c.IsClosed():
		return nil, ErrConnectionClosed
	default:
		return nil, fmt.Errorf("read envelope: %w", err)
	}

	c.src.Envelope(log.DirectionIn, n)
	return buf, nil
}

// WriteEnvelope writes one envelope in a single write.
func (c *Conn) WriteEnvelope(data []byte) error {
	if len(data) == 0 {
		return ErrEmptyEnvelope
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.IsClosed() {
		return ErrConnectionClosed
	}
	if _, err := c.conn.Write(data); err != nil {
		return fmt.Errorf("write envelope: %w", err)
	}

	c.src.Envelope(log.DirectionOut, len(data))
	return nil
}

// IsClosed reports whether Close has been called.
func (c *Conn) IsClosed() bool {
	select {
	case <-c.closeCh:
		return true
	default:
		return false
	}
}

// Done is closed when the connection is closed locally.
func (c *Conn) Done() <-chan struct{} {
	return c.closeCh
}

// Close closes the connection. It is safe to call more than once.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closeCh)
		err = c.conn.Close()
		c.src.State(log.StateEntityConnection, "CONNECTED", "DISCONNECTED", "")
		if c.onClose != nil {
			c.onClose(c)
		}
	})
	return err
}

func addrString(a net.Addr) string {
	if a == nil {
		return ""
	}
	return a.String()
}

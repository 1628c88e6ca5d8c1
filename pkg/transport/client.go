package transport

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/homehub-sim/homehub/pkg/log"
)

// DefaultConnectTimeout bounds Dial when ctx has no deadline.
const DefaultConnectTimeout = 10 * time.Second

// DialConfig configures Dial.
type DialConfig struct {
	// EnvelopeSize is the ciphertext size of envelopes addressed to the
	// dialing side (the size of its private key).
	EnvelopeSize int

	// ConnectTimeout defaults to DefaultConnectTimeout.
	ConnectTimeout time.Duration

	// ProtocolLogger receives protocol events (optional).
	ProtocolLogger log.Logger

	// Role is recorded on protocol events. Defaults to RoleDevice.
	Role log.Role
}

// Dial connects to address.
func Dial(ctx context.Context, address string, config DialConfig) (*Conn, error) {
	if config.EnvelopeSize <= 0 {
		return nil, fmt.Errorf("envelope size must be positive")
	}
	if config.ConnectTimeout == 0 {
		config.ConnectTimeout = DefaultConnectTimeout
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, config.ConnectTimeout)
		defer cancel()
	}

	var dialer net.Dialer
	nc, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("dial failed: %w", err)
	}

	conn := NewConn(nc, uuid.New().String(), config.EnvelopeSize)
	conn.SetProtocolLogger(config.ProtocolLogger, config.Role)
	conn.Log().State(log.StateEntityConnection, "", "CONNECTED", "")
	return conn, nil
}

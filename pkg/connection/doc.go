// Package connection keeps a device attached to its hub.
//
// A Supervisor opens a session, runs it until it ends and opens a new one
// after a backoff delay, so a device survives hub restarts. It stops when
// the hub dismisses the device, when a failure is fatal (bad credentials,
// missing keys) or when its context is done.
//
// # Backoff
//
// Delays grow exponentially from 1s to a 60s ceiling and reset after every
// successful handshake:
//
//	1s, 2s, 4s, 8s, 16s, 32s, 60s, 60s, ...
//
// Jitter spreads devices that lost the same hub:
//
//	actual_delay = base_delay + random(0, base_delay * 0.25)
package connection

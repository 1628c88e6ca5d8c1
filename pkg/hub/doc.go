// Package hub implements the hub side of the device protocol.
//
// # Session handler
//
// Every accepted connection runs one handshake:
//
//	AWAITING_HANDSHAKE ──connect ok──▶ REGISTERED
//	        │
//	        └──empty read / bad envelope / wrong credentials──▶ CLOSED
//
// A successful handshake upserts the device into the registry and answers
// {"result":"success"}; anything else answers {"result":"failure"} (unless
// the peer already hung up) and closes the connection. The handler returns
// as soon as the handshake is done: it never reads from a registered
// connection again.
//
// # Dispatcher
//
// After registration the Dispatcher owns the connection. Each command is a
// synchronous round trip: seal, write, read exactly one envelope, open.
// Round trips are serialized, so at most one request is in flight across
// all devices.
//
// Example usage:
//
//	h, err := hub.New(cfg)
//	if err := h.Start(ctx); err != nil { ... }
//	defer h.Stop()
//
//	resp, err := h.Dispatcher().RoundTrip(ctx, "Light1", wire.NewCommand(wire.ActionGetReadings))
package hub

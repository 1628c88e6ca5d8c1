// Package endpoint runs the device side of a hub session.
//
// An Endpoint dials the hub, performs the encrypted connect handshake and
// then serves commands against a local device.Device until the hub hangs
// up or asks it to disconnect. A self-sensing loop perturbs the device's
// sensed value at a fixed interval alongside the command loop; it never
// touches the connection.
//
//	ep, err := endpoint.New(cfg)
//	if err != nil { ... }
//	if err := ep.Connect(ctx); err != nil { ... }
//	err = ep.Run(ctx)
package endpoint

// Package registry keeps the hub's table of known devices.
//
// Every device that ever completed a handshake has an entry. An entry with
// a live connection is connected; one without is known but offline. Only
// the identifier and type of each entry are persisted, never connections.
// Entries are listed in insertion order; entries restored from disk are
// inserted in sorted identifier order.
package registry

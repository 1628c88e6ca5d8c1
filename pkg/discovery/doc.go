// Package discovery announces and finds hubs on the local network with
// mDNS/DNS-SD.
//
// A hub registers one instance of ServiceType. Its TXT record carries the
// protocol version and a display name:
//
//	ver=1
//	name=homehub
//
// Devices browse for that service type to learn the hub's address instead
// of relying on a configured one.
package discovery

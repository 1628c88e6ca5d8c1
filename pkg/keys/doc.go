// Package keys loads and stores the key material shared by the hub and its
// devices.
//
// Key exchange is out of band: a single secrets directory holds the hub key
// pair, one device key pair shared by all devices, a symmetric storage key
// per side, and the encrypted shared credentials. The homehub-init command
// creates the directory; hub and device processes only read it.
package keys

// Package version parses and compares homehub protocol versions.
package version

import (
	"fmt"
	"strconv"
	"strings"
)

// Current is the protocol version spoken by this module.
const Current = "1.0"

// ProtocolVersion is a parsed "major.minor" version.
type ProtocolVersion struct {
	Major uint16
	Minor uint16
}

// Parse parses "major.minor". A bare "major" means minor 0.
func Parse(s string) (ProtocolVersion, error) {
	majorStr, minorStr, hasMinor := strings.Cut(s, ".")

	major, err := strconv.ParseUint(majorStr, 10, 16)
	if err != nil {
		return ProtocolVersion{}, fmt.Errorf("invalid version %q: bad major component", s)
	}

	var minor uint64
	if hasMinor {
		minor, err = strconv.ParseUint(minorStr, 10, 16)
		if err != nil {
			return ProtocolVersion{}, fmt.Errorf("invalid version %q: bad minor component", s)
		}
	}

	return ProtocolVersion{Major: uint16(major), Minor: uint16(minor)}, nil
}

// MustParse is Parse for constants. It panics on malformed input.
func MustParse(s string) ProtocolVersion {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

// String returns the version as "major.minor".
func (v ProtocolVersion) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// Compatible reports whether other shares v's major version.
func (v ProtocolVersion) Compatible(other ProtocolVersion) bool {
	return v.Major == other.Major
}

// Supports reports whether a peer advertising s can talk to this module.
func Supports(s string) bool {
	peer, err := Parse(s)
	if err != nil {
		return false
	}
	return MustParse(Current).Compatible(peer)
}

package discovery

import (
	"errors"
	"net"
	"strconv"
	"time"

	"github.com/homehub-sim/homehub/pkg/version"
)

const (
	// ServiceType is the DNS-SD service type hubs register.
	ServiceType = "_homehub._tcp"

	// Domain is the mDNS domain.
	Domain = "local."

	// ProtocolVersion is advertised in the ver TXT key.
	ProtocolVersion = version.Current

	// DefaultInstanceName is used when none is configured.
	DefaultInstanceName = "homehub"

	// MaxInstanceNameLen is the DNS label limit for instance names.
	MaxInstanceNameLen = 63

	// DefaultBrowseTimeout bounds FindHub when ctx has no deadline.
	DefaultBrowseTimeout = 10 * time.Second
)

// TXT record keys.
const (
	TXTKeyVersion = "ver"
	TXTKeyName    = "name"
)

// Discovery errors.
var (
	ErrInstanceNameTooLong = errors.New("instance name too long")
	ErrMissingRequired     = errors.New("missing required field")
	ErrUnsupportedVersion  = errors.New("unsupported protocol version")
	ErrNotFound            = errors.New("no hub found")
)

// HubInfo is what a hub advertises.
type HubInfo struct {
	InstanceName string
	Port         int
}

// HubService is a hub found by browsing.
type HubService struct {
	InstanceName string
	Name         string
	Host         string
	Port         int
	Addresses    []string
}

// Address returns a dialable host:port, preferring the first resolved
// address over the host name.
func (s *HubService) Address() string {
	host := s.Host
	if len(s.Addresses) > 0 {
		host = s.Addresses[0]
	}
	return net.JoinHostPort(host, strconv.Itoa(s.Port))
}

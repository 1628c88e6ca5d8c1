package discovery

import (
	"context"
	"fmt"

	"github.com/enbility/zeroconf/v3"
)

// BrowserConfig configures a Browser.
type BrowserConfig struct {
	// Interface restricts browsing to one network interface.
	Interface string
}

// Browser finds hubs with zeroconf.
type Browser struct {
	config BrowserConfig
}

// NewBrowser creates a browser.
func NewBrowser(config BrowserConfig) *Browser {
	return &Browser{config: config}
}

// BrowseHubs streams hubs as they are found. Each instance is reported
// once. The channel closes when ctx is done.
func (b *Browser) BrowseHubs(ctx context.Context) (<-chan *HubService, error) {
	out := make(chan *HubService)
	entries := make(chan *zeroconf.ServiceEntry)
	removed := make(chan *zeroconf.ServiceEntry)

	var opts []zeroconf.ClientOption
	if ifaces := interfaces(b.config.Interface); ifaces != nil {
		opts = append(opts, zeroconf.SelectIfaces(ifaces))
	}

	go func() {
		defer close(out)

		seen := make(map[string]bool)
		for {
			select {
			case entry, ok := <-entries:
				if !ok {
					return
				}
				svc := entryToHub(entry)
				if svc == nil || seen[svc.InstanceName] {
					continue
				}
				seen[svc.InstanceName] = true
				select {
				case out <- svc:
				case <-ctx.Done():
					return
				}

			case entry, ok := <-removed:
				if ok {
					delete(seen, entry.Instance)
				}

			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		_ = zeroconf.Browse(ctx, ServiceType, Domain, entries, removed, opts...)
	}()

	return out, nil
}

// FindHub returns the first hub found.
func (b *Browser) FindHub(ctx context.Context) (*HubService, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultBrowseTimeout)
		defer cancel()
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	hubs, err := b.BrowseHubs(ctx)
	if err != nil {
		return nil, err
	}
	for svc := range hubs {
		return svc, nil
	}
	return nil, fmt.Errorf("%w: %w", ErrNotFound, ctx.Err())
}

// BrowseHub returns the address of the first hub found on the network.
func BrowseHub(ctx context.Context) (string, error) {
	svc, err := NewBrowser(BrowserConfig{}).FindHub(ctx)
	if err != nil {
		return "", err
	}
	return svc.Address(), nil
}

// entryToHub converts a zeroconf entry, dropping entries that are not
// version-compatible hubs.
func entryToHub(entry *zeroconf.ServiceEntry) *HubService {
	name, err := DecodeHubTXT(StringsToTXTRecords(entry.Text))
	if err != nil {
		return nil
	}

	addrs := make([]string, 0, len(entry.AddrIPv4)+len(entry.AddrIPv6))
	for _, ip := range entry.AddrIPv4 {
		addrs = append(addrs, ip.String())
	}
	for _, ip := range entry.AddrIPv6 {
		addrs = append(addrs, ip.String())
	}

	return &HubService{
		InstanceName: entry.Instance,
		Name:         name,
		Host:         entry.HostName,
		Port:         entry.Port,
		Addresses:    addrs,
	}
}

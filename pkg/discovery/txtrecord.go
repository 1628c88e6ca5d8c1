package discovery

import (
	"fmt"
	"slices"
	"strings"

	"github.com/homehub-sim/homehub/pkg/version"
)

// TXTRecordMap is a map of TXT record key-value pairs.
type TXTRecordMap map[string]string

// EncodeHubTXT creates the TXT records for a hub.
func EncodeHubTXT(info *HubInfo) TXTRecordMap {
	return TXTRecordMap{
		TXTKeyVersion: ProtocolVersion,
		TXTKeyName:    info.InstanceName,
	}
}

// DecodeHubTXT checks a hub's TXT records and returns its display name.
// Any minor version of the current major is accepted.
func DecodeHubTXT(txt TXTRecordMap) (string, error) {
	ver, ok := txt[TXTKeyVersion]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeyVersion)
	}
	if !version.Supports(ver) {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedVersion, ver)
	}
	return txt[TXTKeyName], nil
}

// TXTRecordsToStrings converts a TXTRecordMap to sorted "key=value" strings.
func TXTRecordsToStrings(txt TXTRecordMap) []string {
	result := make([]string, 0, len(txt))
	for k, v := range txt {
		result = append(result, k+"="+v)
	}
	slices.Sort(result)
	return result
}

// StringsToTXTRecords parses "key=value" strings into a TXTRecordMap.
func StringsToTXTRecords(strs []string) TXTRecordMap {
	txt := make(TXTRecordMap)
	for _, s := range strs {
		k, v, _ := strings.Cut(s, "=")
		if k != "" {
			txt[k] = v
		}
	}
	return txt
}

// ValidateInstanceName checks if an instance name is valid for mDNS.
func ValidateInstanceName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrMissingRequired)
	}
	if len(name) > MaxInstanceNameLen {
		return ErrInstanceNameTooLong
	}
	return nil
}

package discovery

import (
	"fmt"
	"sort"
	"strings"
)

// TXTRecordMap is a map of TXT record key-value pairs.
type TXTRecordMap map[string]string

// AdvertiseInfo is what a device publishes about itself.
type AdvertiseInfo struct {
	// Name is the brick name, used as the instance name.
	Name string

	// Address is the hardware address in any accepted notation.
	Address string

	// Port is the TCP port the device listens on.
	Port uint16

	// Framing is the framing name ("line" or "utf").
	Framing string
}

// EncodePeerTXT creates TXT records for a device advertisement.
func EncodePeerTXT(info *AdvertiseInfo) (TXTRecordMap, error) {
	addr, err := NormalizeAddress(info.Address)
	if err != nil {
		return nil, err
	}

	txt := TXTRecordMap{
		TXTKeyAddress: addr,
		TXTKeyVersion: ProtocolVersion,
	}
	if info.Framing != "" {
		txt[TXTKeyFraming] = info.Framing
	}
	return txt, nil
}

// DecodePeerTXT parses TXT records from a device advertisement.
func DecodePeerTXT(txt TXTRecordMap) (Peer, error) {
	raw, ok := txt[TXTKeyAddress]
	if !ok {
		return Peer{}, fmt.Errorf("%w: %s", ErrMissingRequired, TXTKeyAddress)
	}
	addr, err := NormalizeAddress(raw)
	if err != nil {
		return Peer{}, fmt.Errorf("%w: %w", ErrInvalidTXTRecord, err)
	}
	return Peer{Address: addr, Framing: txt[TXTKeyFraming]}, nil
}

// TXTRecordsToStrings converts a TXTRecordMap to a slice of "key=value"
// strings, sorted by key.
func TXTRecordsToStrings(txt TXTRecordMap) []string {
	result := make([]string, 0, len(txt))
	for k, v := range txt {
		result = append(result, fmt.Sprintf("%s=%s", k, v))
	}
	sort.Strings(result)
	return result
}

// StringsToTXTRecords parses a slice of "key=value" strings into a TXTRecordMap.
func StringsToTXTRecords(strs []string) TXTRecordMap {
	txt := make(TXTRecordMap)
	for _, s := range strs {
		parts := strings.SplitN(s, "=", 2)
		if len(parts) == 2 {
			txt[parts[0]] = parts[1]
		} else if parts[0] != "" {
			// Key without value (boolean flag)
			txt[parts[0]] = ""
		}
	}
	return txt
}

// ValidateInstanceName checks if an instance name is valid for mDNS.
func ValidateInstanceName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty instance name", ErrMissingRequired)
	}
	if len(name) > MaxInstanceNameLen {
		return ErrInstanceNameTooLong
	}
	return nil
}

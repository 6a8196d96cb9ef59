package discovery

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

// Service constants for mDNS.
const (
	// ServiceType is the DNS-SD service type advertised by devices.
	ServiceType = "_nxblue._tcp"

	// Domain is the mDNS domain.
	Domain = "local"

	// ProtocolVersion is advertised in the VN TXT record.
	ProtocolVersion = "1"
)

// TXT record key constants.
const (
	TXTKeyAddress = "MA" // Hardware address (12 hex digits)
	TXTKeyFraming = "FR" // Message framing (line, utf)
	TXTKeyVersion = "VN" // Protocol version
)

// Timing constants.
const (
	// BrowseTimeout is the default duration of a search.
	BrowseTimeout = 5 * time.Second
)

// Limits.
const (
	// MaxInstanceNameLen is the DNS label limit.
	MaxInstanceNameLen = 63

	// AddressLength is the length of a normalised hardware address.
	AddressLength = 12
)

// Discovery errors.
var (
	ErrInvalidAddress      = errors.New("invalid hardware address")
	ErrInvalidTXTRecord    = errors.New("invalid TXT record format")
	ErrMissingRequired     = errors.New("missing required field")
	ErrInstanceNameTooLong = errors.New("instance name exceeds 63 characters")
	ErrNotFound            = errors.New("peer not found")
	ErrNoDialAddress       = errors.New("peer has no dialable address")
)

// Peer identifies a remote brick and, when known, where to reach it.
type Peer struct {
	// Name is the brick's friendly name.
	Name string

	// Address is the normalised hardware address.
	Address string

	// Host is a host name or IP to dial. Empty when unresolved.
	Host string

	// Port is the TCP port (0 selects the default port).
	Port uint16

	// Addrs are IP addresses learned from discovery.
	Addrs []string

	// Framing is the advertised framing name, if any.
	Framing string
}

// NewPeer builds a Peer from a name and a hardware address in any
// accepted notation.
func NewPeer(name, address string) (Peer, error) {
	addr, err := NormalizeAddress(address)
	if err != nil {
		return Peer{}, err
	}
	return Peer{Name: name, Address: addr}, nil
}

// String returns "name (address)".
func (p Peer) String() string {
	return fmt.Sprintf("%s (%s)", p.Name, p.Address)
}

// Resolved reports whether the peer has something to dial.
func (p Peer) Resolved() bool {
	return p.Host != "" || len(p.Addrs) > 0
}

// DialAddress returns host:port for dialing. Host takes precedence over
// discovered IPs; defaultPort is used when Port is zero.
func (p Peer) DialAddress(defaultPort uint16) (string, error) {
	port := p.Port
	if port == 0 {
		port = defaultPort
	}

	host := p.Host
	if host == "" && len(p.Addrs) > 0 {
		host = p.Addrs[0]
	}
	if host == "" {
		return "", fmt.Errorf("%w: %s", ErrNoDialAddress, p)
	}

	// Host may already carry a port.
	if _, _, err := net.SplitHostPort(host); err == nil {
		return host, nil
	}
	return net.JoinHostPort(host, strconv.Itoa(int(port))), nil
}

// NormalizeAddress strips colons and surrounding whitespace and upper-cases
// the result. The normalised form must be exactly 12 hex digits.
func NormalizeAddress(address string) (string, error) {
	addr := strings.ToUpper(strings.TrimSpace(strings.ReplaceAll(address, ":", "")))
	if len(addr) != AddressLength || !isHexString(addr) {
		return "", fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}
	return addr, nil
}

// FormatAddress renders a normalised address with colons, for display.
func FormatAddress(address string) string {
	if len(address) != AddressLength {
		return address
	}
	var b strings.Builder
	for i := 0; i < AddressLength; i += 2 {
		if i > 0 {
			b.WriteByte(':')
		}
		b.WriteString(address[i : i+2])
	}
	return b.String()
}

// isHexString checks if a string contains only hex characters.
func isHexString(s string) bool {
	for _, c := range s {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')) {
			return false
		}
	}
	return true
}

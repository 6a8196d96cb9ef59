package discovery

import (
	"context"
	"log/slog"
	"time"

	"github.com/enbility/zeroconf/v3/api"
)

// Advertiser publishes a device on the network.
type Advertiser interface {
	// Advertise starts (or replaces) the advertisement.
	Advertise(ctx context.Context, info *AdvertiseInfo) error

	// Stop withdraws the advertisement. Safe to call when not advertising.
	Stop() error
}

// AdvertiserConfig configures advertiser behavior.
type AdvertiserConfig struct {
	// Interface specifies which network interface to use.
	// Empty string means all interfaces.
	Interface string

	// TTL is the record time-to-live (0 uses the library default).
	TTL time.Duration

	// Logger is the optional logger for debug output.
	// If nil, logging is disabled.
	Logger *slog.Logger
}

// DefaultAdvertiserConfig returns the default advertiser configuration.
func DefaultAdvertiserConfig() AdvertiserConfig {
	return AdvertiserConfig{
		TTL: 2 * time.Minute,
	}
}

// BrowserConfig configures browser behavior.
type BrowserConfig struct {
	// Interface specifies which network interface to use.
	// Empty string means all interfaces.
	Interface string

	// ConnFactory opens the multicast connections. Nil uses the
	// zeroconf default.
	ConnFactory api.ConnectionFactory

	// Logger is the optional logger for debug output.
	// If nil, logging is disabled.
	Logger *slog.Logger
}

// DefaultBrowserConfig returns the default browser configuration.
func DefaultBrowserConfig() BrowserConfig {
	return BrowserConfig{}
}

package mdnssd

import (
	"fmt"
	"strings"
	"time"

	"github.com/maeshinshin/mdnssd/dnswire"
)

const (
	// DefaultServiceType enumerates every service type on the link.
	DefaultServiceType = "_services._dns-sd._udp.local"

	// DefaultNotifyDelay coalesces the datagrams of one mDNS exchange into a
	// single callback.
	DefaultNotifyDelay = 25 * time.Millisecond

	// DefaultSilenceTimeout is how long the finder waits before reporting
	// ErrNoServicesFound.
	DefaultSilenceTimeout = 10 * time.Second
)

// Config holds finder configuration.
type Config struct {
	// ServiceType is the DNS-SD service type to browse, e.g. "_http._tcp.local".
	ServiceType string `yaml:"service_type"`

	// KeepExpired disables TTL expiry: instances live until Shutdown and
	// goodbyes are ignored. By default an instance is removed when its PTR
	// TTL runs out and the query is re-issued.
	KeepExpired bool `yaml:"keep_expired"`

	// NotifyDelay is the debounce window for change notifications.
	NotifyDelay time.Duration `yaml:"notify_delay"`

	// SilenceTimeout is the delay after Start before ErrNoServicesFound is
	// reported if nothing was discovered. Zero uses the default, a negative
	// value disables the report.
	SilenceTimeout time.Duration `yaml:"silence_timeout"`

	// BrowseInterval re-issues the query periodically. Zero disables it.
	BrowseInterval time.Duration `yaml:"browse_interval"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		ServiceType:    DefaultServiceType,
		NotifyDelay:    DefaultNotifyDelay,
		SilenceTimeout: DefaultSilenceTimeout,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if err := dnswire.ValidateName(c.ServiceType); err != nil {
		return fmt.Errorf("%w: service type: %w", ErrInvalidConfig, err)
	}
	if c.NotifyDelay < 0 {
		return fmt.Errorf("%w: negative notify delay %s", ErrInvalidConfig, c.NotifyDelay)
	}
	if c.BrowseInterval < 0 {
		return fmt.Errorf("%w: negative browse interval %s", ErrInvalidConfig, c.BrowseInterval)
	}
	return nil
}

func (c Config) withDefaults() Config {
	c.ServiceType = strings.TrimSuffix(c.ServiceType, ".")
	if c.ServiceType == "" {
		c.ServiceType = DefaultServiceType
	}
	if c.NotifyDelay == 0 {
		c.NotifyDelay = DefaultNotifyDelay
	}
	if c.SilenceTimeout == 0 {
		c.SilenceTimeout = DefaultSilenceTimeout
	}
	return c
}

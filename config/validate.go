package config

import (
	"errors"
	"fmt"
	"net/netip"
)

// ErrInvalidConfig 配置无效
var ErrInvalidConfig = errors.New("config: invalid config")

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}

// Validate 校验整个配置
func (c *Config) Validate() error {
	if c == nil {
		return invalid("config is nil")
	}
	if err := c.Listen.Validate(); err != nil {
		return err
	}
	if c.IsRelay() {
		if err := c.Relay.Validate(); err != nil {
			return err
		}
	}
	if err := c.RateLimit.Validate(); err != nil {
		return err
	}
	for name := range c.Credentials {
		if name == "" {
			return invalid("credentials contain an empty username")
		}
	}
	return nil
}

// Validate 校验监听配置
func (c ListenConfig) Validate() error {
	if c.Mode != ModeBinding && c.Mode != ModeRelay {
		return invalid("listen.mode must be %q or %q, got %q", ModeBinding, ModeRelay, c.Mode)
	}
	if c.Port < 0 || c.Port > 65535 {
		return invalid("listen.port %d out of range", c.Port)
	}
	if c.Address != "" {
		addr, err := netip.ParseAddr(c.Address)
		if err != nil {
			return invalid("listen.address %q: %v", c.Address, err)
		}
		if !addr.Unmap().Is4() {
			return invalid("listen.address %q is not IPv4", c.Address)
		}
	}
	if c.ReadBufferSize < 0 {
		return invalid("listen.read_buffer_size must not be negative")
	}
	return nil
}

// Validate 校验中继配置
func (c RelayConfig) Validate() error {
	if c.DefaultLifetime.Duration() <= 0 {
		return invalid("relay.default_lifetime must be positive")
	}
	if c.MaxLifetime.Duration() < c.DefaultLifetime.Duration() {
		return invalid("relay.max_lifetime %s is below default_lifetime %s", c.MaxLifetime, c.DefaultLifetime)
	}
	if c.PortMin < 1 || c.PortMax > 65535 || c.PortMin > c.PortMax {
		return invalid("relay port range %d-%d is invalid", c.PortMin, c.PortMax)
	}
	addr, err := c.RelayIP()
	if err != nil {
		return invalid("relay.relay_address %q: %v", c.RelayAddress, err)
	}
	if !addr.Is4() {
		return invalid("relay.relay_address %q is not IPv4", c.RelayAddress)
	}
	if c.SweepInterval.Duration() <= 0 {
		return invalid("relay.sweep_interval must be positive")
	}
	if c.MaxAllocations < 0 {
		return invalid("relay.max_allocations must not be negative")
	}
	return nil
}

// Validate 校验限流配置
func (c RateLimitConfig) Validate() error {
	if c.RequestsPerSecond < 0 {
		return invalid("rate_limit.requests_per_second must not be negative")
	}
	if c.Enabled() && c.Burst < 1 {
		return invalid("rate_limit.burst must be at least 1 when rate limiting is enabled")
	}
	if c.Enabled() && c.MaxSources < 1 {
		return invalid("rate_limit.max_sources must be at least 1 when rate limiting is enabled")
	}
	return nil
}

package dedupe

import (
	"time"

	"github.com/okian/worthrank/pkg/logger"
)

// Option applies a configuration option to the recency cache.
type Option func(*recencyCache)

// WithSoftCap sets the size past which a Record sweeps stale entries.
func WithSoftCap(n int) Option {
	return func(c *recencyCache) {
		if n > 0 {
			c.softCap = n
		}
	}
}

// WithHardCap sets the absolute size bound. Zero or negative disables it.
func WithHardCap(n int) Option {
	return func(c *recencyCache) {
		c.hardCap = n
	}
}

// WithSweepWindow sets the age beyond which a sweep evicts an entry.
func WithSweepWindow(d time.Duration) Option {
	return func(c *recencyCache) {
		if d > 0 {
			c.sweepWindow = d
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *recencyCache) {
		if now != nil {
			c.now = now
		}
	}
}

// GuardOption applies a configuration option to the Guard.
type GuardOption func(*Guard)

// WithDurableWindow sets the trailing window of the durable layer.
func WithDurableWindow(d time.Duration) GuardOption {
	return func(g *Guard) {
		if d > 0 {
			g.durableWindow = d
		}
	}
}

// WithGuardClock overrides the time source used for the durable window.
func WithGuardClock(now func() time.Time) GuardOption {
	return func(g *Guard) {
		if now != nil {
			g.now = now
		}
	}
}

// WithGuardLogger sets the logger used when the durable layer fails open.
func WithGuardLogger(l logger.Logger) GuardOption {
	return func(g *Guard) {
		if l != nil {
			g.log = l
		}
	}
}

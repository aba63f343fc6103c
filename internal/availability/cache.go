package availability

import (
	"context"
	"sync"
	"time"

	"github.com/cloudpulse/cloudpulse-monitor/pkg/logging"
)

// Status is a point-in-time snapshot of the cached availability verdict.
// Known is false until the first probe (or seed) has produced a verdict.
type Status struct {
	Available   bool      `json:"available"`
	Known       bool      `json:"known"`
	LastChecked time.Time `json:"last_checked"`
}

// Cache holds the most recent availability verdict and refreshes it via the
// prober at most once per staleness window. All mutation of the verdict goes
// through this type.
type Cache struct {
	prober   *Prober
	interval time.Duration
	logger   *logging.Logger

	mu          sync.Mutex
	available   bool
	known       bool
	lastChecked time.Time
	probing     bool
	probeDone   chan struct{}
	onProbe     func(ProbeResult)
}

// NewCache creates an availability cache with the given staleness window.
func NewCache(prober *Prober, interval time.Duration, logger *logging.Logger) *Cache {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if logger == nil {
		logger = logging.GetLogger()
	}
	return &Cache{
		prober:   prober,
		interval: interval,
		logger:   logger,
	}
}

// OnProbe registers an observer invoked after every probe the cache issues.
// Used to feed metrics; must be set before the cache is shared.
func (c *Cache) OnProbe(fn func(ProbeResult)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onProbe = fn
}

// IsAvailable answers whether the store is believed reachable. A fresh
// verdict is returned without any network traffic. When the verdict is stale
// exactly one caller probes; concurrent callers get the previous verdict
// while the probe is in flight, or wait for it when no verdict exists yet.
func (c *Cache) IsAvailable(ctx context.Context) bool {
	c.mu.Lock()

	if c.known && time.Since(c.lastChecked) < c.interval {
		available := c.available
		c.mu.Unlock()
		return available
	}

	if c.probing {
		if c.known {
			available := c.available
			c.mu.Unlock()
			return available
		}
		// No verdict yet, wait for the in-flight probe.
		done := c.probeDone
		c.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
		}
		c.mu.Lock()
		available := c.available
		c.mu.Unlock()
		return available
	}

	c.probing = true
	done := make(chan struct{})
	c.probeDone = done
	c.mu.Unlock()

	result := c.prober.Probe(ctx)

	c.mu.Lock()
	previous := c.available
	previouslyKnown := c.known
	c.available = result.Success
	c.known = true
	c.lastChecked = time.Now()
	c.probing = false
	observer := c.onProbe
	close(done)
	c.mu.Unlock()

	if observer != nil {
		observer(result)
	}

	if !previouslyKnown || previous != result.Success {
		c.logger.LogAvailabilityEvent(ctx, "availability_changed", result.Success, map[string]interface{}{
			"probe_duration_ms": result.Duration.Milliseconds(),
			"probe_error":       result.Err,
		})
	}

	return result.Success
}

// Reset discards the cached verdict so the next IsAvailable call probes
// regardless of window age.
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.known = false
	c.lastChecked = time.Time{}
}

// MarkUnavailable records an externally observed connectivity loss without
// probing. The unavailable verdict holds for a full staleness window.
func (c *Cache) MarkUnavailable() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.available = false
	c.known = true
	c.lastChecked = time.Now()
}

// Seed installs an initial verdict, typically from the startup retry loop.
func (c *Cache) Seed(available bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.available = available
	c.known = true
	c.lastChecked = time.Now()
}

// Snapshot returns the current verdict without probing.
func (c *Cache) Snapshot() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{
		Available:   c.available,
		Known:       c.known,
		LastChecked: c.lastChecked,
	}
}

// Interval returns the staleness window
func (c *Cache) Interval() time.Duration {
	return c.interval
}

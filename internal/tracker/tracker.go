// Package tracker holds the per-UE state the decision pipeline reads and
// updates every measurement cycle: handover history, signal-quality
// derivatives and mobility derivatives.
//
// Each tracker is a thin façade over a cache.TTLBoundedMap keyed by UE ID,
// so idle UEs age out by TTL and total tracked state is capacity-bounded.
// The map lock only guards map membership; per-UE state assumes a single
// writer per UE at a time (one decision in flight per UE), which the
// caller is responsible for.
package tracker

import (
	"time"

	"github.com/PanagiotisVasilakis/thesis-sub000/internal/cache"
)

const (
	// DefaultMaxUEs bounds how many UEs are tracked concurrently.
	DefaultMaxUEs = 10000

	// DefaultTTL evicts UEs after this much inactivity.
	DefaultTTL = 24 * time.Hour
)

// Config is shared by all three trackers.
type Config struct {
	MaxUEs int
	TTL    time.Duration

	// MemoryLimitBytes enables the cache's memory-pressure backstop.
	// Zero disables it.
	MemoryLimitBytes uint64
}

func (c Config) withDefaults() Config {
	if c.MaxUEs <= 0 {
		c.MaxUEs = DefaultMaxUEs
	}
	if c.TTL <= 0 {
		c.TTL = DefaultTTL
	}
	return c
}

func (c Config) cacheConfig() cache.Config {
	return cache.Config{MaxSize: c.MaxUEs, TTL: c.TTL, MemoryLimitBytes: c.MemoryLimitBytes}
}

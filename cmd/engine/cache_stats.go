package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/PanagiotisVasilakis/thesis-sub000/internal/cache"
	"github.com/PanagiotisVasilakis/thesis-sub000/internal/metrics"
)

const cacheStatsInterval = 15 * time.Second

// cacheStatsSource is any bounded-map owner that can report counters.
type cacheStatsSource interface {
	Stats() cache.Stats
}

type cacheStatsGauges struct {
	size      *prometheus.GaugeVec
	hitRate   *prometheus.GaugeVec
	evictions *prometheus.GaugeVec
}

func collectCacheStats(sources map[string]cacheStatsSource, gauges cacheStatsGauges) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("cache stats collection panicked: %v", r)
		}
	}()

	for name, src := range sources {
		if src == nil {
			return fmt.Errorf("cache stats source %q is nil", name)
		}
		st := src.Stats()
		gauges.size.WithLabelValues(name).Set(float64(st.Size))
		gauges.hitRate.WithLabelValues(name).Set(st.HitRate)
		gauges.evictions.WithLabelValues(name).Set(float64(st.Evictions))
	}

	return nil
}

func startCacheStatsPump(ctx context.Context, sources map[string]cacheStatsSource, logger *slog.Logger) {
	if len(sources) == 0 {
		return
	}

	gauges := cacheStatsGauges{
		size:      metrics.CacheSize,
		hitRate:   metrics.CacheHitRate,
		evictions: metrics.CacheEvictions,
	}

	ticker := time.NewTicker(cacheStatsInterval)

	go func() {
		defer ticker.Stop()

		if err := collectCacheStats(sources, gauges); err != nil {
			logger.Warn("failed to collect initial cache stats", "error", err)
		}

		for {
			select {
			case <-ctx.Done():
				logger.Info("cache stats sampler stopped", "cause", "context_done")
				return
			case <-ticker.C:
				if err := collectCacheStats(sources, gauges); err != nil {
					logger.Warn("failed to collect cache stats", "error", err)
				}
			}
		}
	}()
}

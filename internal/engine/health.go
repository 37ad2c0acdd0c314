package engine

import (
	"sync"
	"time"
)

// HealthStatus is the classifier backend's observed health.
type HealthStatus string

const (
	HealthStatusUnknown   HealthStatus = "UNKNOWN"
	HealthStatusHealthy   HealthStatus = "HEALTHY"
	HealthStatusDegraded  HealthStatus = "DEGRADED"
	HealthStatusUnhealthy HealthStatus = "UNHEALTHY"

	// defaultUnhealthyThreshold is the consecutive predict failures
	// before the backend is reported unhealthy.
	defaultUnhealthyThreshold = 5

	// defaultDegradedLatency marks the backend degraded when recent
	// predict calls exceed it on average.
	defaultDegradedLatency = 500 * time.Millisecond

	healthLatencyWindow = 10
)

// PredictorHealth tracks consecutive predict failures and recent predict
// latency. It informs /healthz and the alerter, never the decisions.
type PredictorHealth struct {
	mu                  sync.Mutex
	status              HealthStatus
	consecutiveFailures int
	lastSuccessAt       time.Time
	lastFailureAt       time.Time
	recentLatencies     []time.Duration

	unhealthyThreshold int
	degradedLatency    time.Duration
}

// NewPredictorHealth creates a health tracker with default thresholds.
func NewPredictorHealth() *PredictorHealth {
	return &PredictorHealth{
		status:             HealthStatusUnknown,
		unhealthyThreshold: defaultUnhealthyThreshold,
		degradedLatency:    defaultDegradedLatency,
		recentLatencies:    make([]time.Duration, 0, healthLatencyWindow),
	}
}

// RecordSuccess notes a successful predict call and returns true when
// this success recovers the backend from an unhealthy state.
func (h *PredictorHealth) RecordSuccess(latency time.Duration) (recovered bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	recovered = h.status == HealthStatusUnhealthy
	h.consecutiveFailures = 0
	h.lastSuccessAt = time.Now()

	h.recentLatencies = append(h.recentLatencies, latency)
	if len(h.recentLatencies) > healthLatencyWindow {
		h.recentLatencies = h.recentLatencies[len(h.recentLatencies)-healthLatencyWindow:]
	}

	if h.meanLatencyLocked() > h.degradedLatency {
		h.status = HealthStatusDegraded
	} else {
		h.status = HealthStatusHealthy
	}
	return recovered
}

// RecordFailure notes a failed predict call and returns true when this
// failure crosses the unhealthy threshold.
func (h *PredictorHealth) RecordFailure() (becameUnhealthy bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.consecutiveFailures++
	h.lastFailureAt = time.Now()
	if h.consecutiveFailures >= h.unhealthyThreshold && h.status != HealthStatusUnhealthy {
		h.status = HealthStatusUnhealthy
		return true
	}
	return false
}

// Status returns the current health verdict.
func (h *PredictorHealth) Status() HealthStatus {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status
}

func (h *PredictorHealth) meanLatencyLocked() time.Duration {
	if len(h.recentLatencies) == 0 {
		return 0
	}
	var sum time.Duration
	for _, l := range h.recentLatencies {
		sum += l
	}
	return sum / time.Duration(len(h.recentLatencies))
}

// Package metrics holds the Prometheus collectors for the handover
// decision engine. Collectors are package-level and registered via
// promauto; everything else in the engine is constructor-injected.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Decision pipeline.
	DecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "handover",
		Subsystem: "engine",
		Name:      "decisions_total",
		Help:      "Total handover decisions by outcome",
	}, []string{"outcome"}) // handover, no_change, fallback

	PingPongSuppressions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "handover",
		Subsystem: "engine",
		Name:      "pingpong_suppressions_total",
		Help:      "Handovers suppressed by ping-pong prevention, by reason",
	}, []string{"reason"})

	QoSBiasApplications = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "handover",
		Subsystem: "engine",
		Name:      "qos_bias_applications_total",
		Help:      "Decisions whose probability vector was QoS-biased",
	})

	GeographicOverrides = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "handover",
		Subsystem: "engine",
		Name:      "geographic_overrides_total",
		Help:      "Predictions overridden by the geographic plausibility check",
	})

	LowDiversityWarnings = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "handover",
		Subsystem: "engine",
		Name:      "low_diversity_warnings_total",
		Help:      "Low prediction-diversity warnings raised",
	})

	PredictorFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "handover",
		Subsystem: "engine",
		Name:      "predictor_fallbacks_total",
		Help:      "Decisions degraded to the static fallback cell",
	})

	DecisionStageLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "handover",
		Subsystem: "engine",
		Name:      "stage_duration_seconds",
		Help:      "Decision pipeline stage duration",
		Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"stage"}) // feature_extraction, inference, pingpong_check

	HandoverIntervalSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "handover",
		Subsystem: "engine",
		Name:      "interval_seconds",
		Help:      "Observed time between consecutive handovers per UE",
		Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
	})

	// Async scheduler.
	SchedulerQueueSize = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "handover",
		Subsystem: "scheduler",
		Name:      "queue_size",
		Help:      "Operations currently queued (pending)",
	})

	SchedulerRunning = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "handover",
		Subsystem: "scheduler",
		Name:      "running",
		Help:      "Operations currently executing",
	})

	SchedulerOpsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "handover",
		Subsystem: "scheduler",
		Name:      "operations_total",
		Help:      "Scheduler operations by terminal state",
	}, []string{"state"}) // completed, failed, cancelled, rejected

	SchedulerOpLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "handover",
		Subsystem: "scheduler",
		Name:      "operation_duration_seconds",
		Help:      "Operation execution duration by kind",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
	}, []string{"kind"})

	// Tracker / profiler caches.
	CacheSize = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "handover",
		Subsystem: "cache",
		Name:      "entries",
		Help:      "Entries currently held per bounded map",
	}, []string{"cache"})

	CacheHitRate = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "handover",
		Subsystem: "cache",
		Name:      "hit_rate",
		Help:      "Lifetime hit rate per bounded map",
	}, []string{"cache"})

	CacheEvictions = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "handover",
		Subsystem: "cache",
		Name:      "evictions_total",
		Help:      "Lifetime evictions per bounded map",
	}, []string{"cache"})

	// Alerting.
	AlertsSentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "handover",
		Subsystem: "alert",
		Name:      "sent_total",
		Help:      "Alerts delivered per channel and type",
	}, []string{"channel", "type"})

	AlertsCooldownSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "handover",
		Subsystem: "alert",
		Name:      "cooldown_skipped_total",
		Help:      "Alerts suppressed by the per-key cooldown",
	}, []string{"channel", "type"})
)

// Package engine implements the handover decision pipeline: feature
// assembly, classifier prediction, QoS-bias adjustment, geographic
// plausibility validation, ping-pong prevention and diversity
// monitoring.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/PanagiotisVasilakis/thesis-sub000/internal/alert"
	"github.com/PanagiotisVasilakis/thesis-sub000/internal/antenna"
	"github.com/PanagiotisVasilakis/thesis-sub000/internal/config"
	"github.com/PanagiotisVasilakis/thesis-sub000/internal/domain/model"
	"github.com/PanagiotisVasilakis/thesis-sub000/internal/metrics"
	"github.com/PanagiotisVasilakis/thesis-sub000/internal/predictor"
	"github.com/PanagiotisVasilakis/thesis-sub000/internal/qos"
	"github.com/PanagiotisVasilakis/thesis-sub000/internal/tracing"
	"github.com/PanagiotisVasilakis/thesis-sub000/internal/tracker"
)

// fallbackConfidence is attached to decisions degraded by a predictor
// failure so callers can detect them.
const fallbackConfidence = 0.5

// errEmptyPrediction covers backends that return no candidates without
// an error; the pipeline treats it like any other predictor failure.
var errEmptyPrediction = errors.New("predictor returned no candidates")

// Config carries the decision-pipeline tunables.
type Config struct {
	PingPong config.PingPongConfig
	QoSBias  config.QoSBiasConfig
}

// Engine evaluates one UESnapshot per measurement cycle into a Decision.
// Callers must serialize calls per UE (one decision in flight per UE);
// different UEs may be decided concurrently.
type Engine struct {
	cfg       Config
	guard     *predictor.Guard
	handovers *tracker.HandoverTracker
	signals   *tracker.SignalProcessor
	mobility  *tracker.MobilityProcessor
	profiler  *qos.AntennaQoSProfiler
	registry  *antenna.Registry
	diversity *DiversityMonitor
	health    *PredictorHealth
	alerter   alert.Alerter
	logger    *slog.Logger
	nowFn     func() time.Time
}

// Option customizes an Engine.
type Option func(*Engine)

// WithDiversityMonitor replaces the default diversity monitor.
func WithDiversityMonitor(m *DiversityMonitor) Option {
	return func(e *Engine) { e.diversity = m }
}

// WithAlerter routes advisory alerts (diversity, predictor health).
func WithAlerter(a alert.Alerter) Option {
	return func(e *Engine) { e.alerter = a }
}

// New creates an Engine. All collaborators are injected; none may be nil
// except the logger.
func New(
	cfg Config,
	guard *predictor.Guard,
	handovers *tracker.HandoverTracker,
	signals *tracker.SignalProcessor,
	mobility *tracker.MobilityProcessor,
	profiler *qos.AntennaQoSProfiler,
	registry *antenna.Registry,
	logger *slog.Logger,
	opts ...Option,
) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		cfg:       cfg,
		guard:     guard,
		handovers: handovers,
		signals:   signals,
		mobility:  mobility,
		profiler:  profiler,
		registry:  registry,
		health:    NewPredictorHealth(),
		logger:    logger.With("component", "engine"),
		nowFn:     time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	if e.diversity == nil {
		e.diversity = NewDiversityMonitor(DefaultDiversityWindow, DefaultDiversityEvalSize, DefaultMinUniqueRatio, e.alerter, logger)
	}
	return e
}

// Health exposes the predictor health tracker for /healthz.
func (e *Engine) Health() *PredictorHealth {
	return e.health
}

// Decide runs the full pipeline for one snapshot. A predictor failure
// degrades to the static fallback cell rather than failing: the returned
// decision always names a serving antenna.
func (e *Engine) Decide(ctx context.Context, snap model.UESnapshot) model.Decision {
	ctx, span := tracing.Tracer("engine").Start(ctx, "engine.Decide",
		trace.WithAttributes(attribute.String("ue_id", snap.UEID)),
	)
	defer span.End()

	now := snap.Timestamp
	if now.IsZero() {
		now = e.nowFn()
	}

	// Stage 1: feature assembly (updates signal/mobility trackers).
	start := e.nowFn()
	features := e.assembleFeatures(snap)
	metrics.DecisionStageLatency.WithLabelValues("feature_extraction").Observe(e.nowFn().Sub(start).Seconds())

	// Stage 2: prediction under the shared model lock.
	start = e.nowFn()
	labels, probs, err := e.guard.Predict(features)
	inferenceLatency := e.nowFn().Sub(start)
	metrics.DecisionStageLatency.WithLabelValues("inference").Observe(inferenceLatency.Seconds())

	if err == nil && (len(labels) == 0 || len(labels) != len(probs)) {
		err = errEmptyPrediction
	}
	if err != nil {
		e.recordPredictorFailure(ctx)
		span.SetAttributes(attribute.Bool("fallback", true))
		e.logger.Warn("prediction failed, serving fallback",
			"ue_id", snap.UEID,
			"error", err,
		)
		metrics.PredictorFallbacks.Inc()
		metrics.DecisionsTotal.WithLabelValues("fallback").Inc()
		return model.Decision{
			AntennaID:      e.registry.FallbackCell(),
			Confidence:     fallbackConfidence,
			FallbackReason: model.FallbackPredictorError,
		}
	}
	e.recordPredictorSuccess(ctx, inferenceLatency)

	decision := model.Decision{}

	// Stage 3: QoS-bias adjustment.
	if e.cfg.QoSBias.Enabled && e.profiler != nil {
		e.applyQoSBias(snap.ServiceType, labels, probs, &decision)
	}

	// Stage 4: arg-max selection.
	best := 0
	for i := range probs {
		if probs[i] > probs[best] {
			best = i
		}
	}
	decision.AntennaID = labels[best]
	decision.Confidence = probs[best]

	// Stage 5: geographic plausibility.
	e.applyGeographicCheck(snap, &decision)

	// Stage 6: ping-pong prevention.
	start = e.nowFn()
	if decision.IsHandover(snap.ConnectedCellID) {
		e.applyPingPongPrevention(snap, now, &decision)
	}
	metrics.DecisionStageLatency.WithLabelValues("pingpong_check").Observe(e.nowFn().Sub(start).Seconds())

	// Stage 7: diversity monitoring (alert-only).
	if w := e.diversity.Record(ctx, decision.AntennaID); w != nil {
		decision.Warnings = append(decision.Warnings, *w)
	}

	// Stage 8: commit the final antenna to the handover history. The
	// connected cell seeds the tracker on a UE's first cycle so that a
	// first-cycle handover is recorded like any other.
	prevConnected := snap.ConnectedCellID
	_, sinceLast, hadPrior := e.handovers.Update(snap.UEID, snap.ConnectedCellID, decision.AntennaID, now)
	if decision.IsHandover(prevConnected) {
		if hadPrior {
			metrics.HandoverIntervalSeconds.Observe(sinceLast.Seconds())
		}
		metrics.DecisionsTotal.WithLabelValues("handover").Inc()
	} else {
		metrics.DecisionsTotal.WithLabelValues("no_change").Inc()
	}

	span.SetAttributes(
		attribute.String("antenna_id", decision.AntennaID),
		attribute.Float64("confidence", decision.Confidence),
		attribute.Bool("anti_pingpong", decision.AntiPingPongApplied),
	)
	return decision
}

// applyQoSBias multiplies down the probability of antennas with poor
// historical QoS compliance for the snapshot's traffic class, then
// renormalizes. Mutates probs in place.
func (e *Engine) applyQoSBias(st model.ServiceType, labels []string, probs []float64, decision *model.Decision) {
	cfg := e.cfg.QoSBias
	multipliers := make(map[string]float64)

	for i, id := range labels {
		prof, ok := e.profiler.GetProfile(id, st)
		if !ok || prof.SampleCount < cfg.MinSamples {
			continue
		}
		if prof.SuccessRate >= cfg.SuccessThreshold {
			continue
		}
		mult := prof.SuccessRate / cfg.SuccessThreshold
		if mult < cfg.MinMultiplier {
			mult = cfg.MinMultiplier
		}
		probs[i] *= mult
		multipliers[id] = mult
	}

	if len(multipliers) == 0 {
		return
	}

	var sum float64
	for _, p := range probs {
		sum += p
	}
	if sum > 0 {
		for i := range probs {
			probs[i] /= sum
		}
	}

	decision.QoSBiasApplied = true
	decision.QoSBiasMultipliers = multipliers
	metrics.QoSBiasApplications.Inc()
}

// applyGeographicCheck overrides a prediction that is implausibly far
// from the UE with the nearest configured antenna.
func (e *Engine) applyGeographicCheck(snap model.UESnapshot, decision *model.Decision) {
	ant, ok := e.registry.Get(decision.AntennaID)
	if !ok || ant.RadiusM <= 0 {
		return
	}

	dist := antenna.DistanceM(snap.Latitude, snap.Longitude, ant.Latitude, ant.Longitude)
	if dist <= ant.MaxServingDistanceM() {
		return
	}

	nearest, nearestDist, ok := e.registry.Nearest(snap.Latitude, snap.Longitude)
	if !ok {
		return
	}

	e.logger.Info("geographic override",
		"ue_id", snap.UEID,
		"predicted", decision.AntennaID,
		"predicted_distance_m", dist,
		"override", nearest.ID,
		"override_distance_m", nearestDist,
	)
	metrics.GeographicOverrides.Inc()

	decision.GeoOverride = &model.GeoOverride{
		OriginalAntennaID: decision.AntennaID,
		OriginalDistanceM: dist,
		ChosenDistanceM:   nearestDist,
	}
	decision.FallbackReason = model.FallbackGeographicOverride
	decision.AntennaID = nearest.ID
	decision.Confidence = 1.0
}

func (e *Engine) recordPredictorSuccess(ctx context.Context, latency time.Duration) {
	if e.health.RecordSuccess(latency) && e.alerter != nil {
		a := alert.Alert{
			Type:    alert.TypeRecovery,
			Title:   "Predictor recovered",
			Message: "classifier backend is serving predictions again",
		}
		if err := e.alerter.Send(ctx, a); err != nil {
			e.logger.Warn("recovery alert failed", "error", err)
		}
	}
}

func (e *Engine) recordPredictorFailure(ctx context.Context) {
	if e.health.RecordFailure() && e.alerter != nil {
		a := alert.Alert{
			Type:    alert.TypePredictorUnhealthy,
			Title:   "Predictor unhealthy",
			Message: "classifier backend keeps failing; decisions degrade to the fallback cell",
		}
		if err := e.alerter.Send(ctx, a); err != nil {
			e.logger.Warn("unhealthy alert failed", "error", err)
		}
	}
}

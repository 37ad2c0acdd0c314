package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/PanagiotisVasilakis/thesis-sub000/internal/antenna"
	"github.com/PanagiotisVasilakis/thesis-sub000/internal/circuitbreaker"
	"github.com/PanagiotisVasilakis/thesis-sub000/internal/config"
	"github.com/PanagiotisVasilakis/thesis-sub000/internal/domain/model"
	"github.com/PanagiotisVasilakis/thesis-sub000/internal/predictor"
	"github.com/PanagiotisVasilakis/thesis-sub000/internal/predictor/mocks"
	"github.com/PanagiotisVasilakis/thesis-sub000/internal/qos"
	"github.com/PanagiotisVasilakis/thesis-sub000/internal/tracker"
)

func defaultEngineConfig() Config {
	return Config{
		PingPong: config.PingPongConfig{
			MinHandoverInterval:       2 * time.Second,
			MaxHandoversPerMinute:     3,
			Window:                    10 * time.Second,
			ConfidenceBoost:           0.9,
			ImmediateReturnConfidence: 0.95,
		},
		QoSBias: config.QoSBiasConfig{
			Enabled:          true,
			MinSamples:       5,
			SuccessThreshold: 0.9,
			MinMultiplier:    0.35,
		},
	}
}

// colocatedRegistry places every antenna at the origin with no radius, so
// the geographic check never fires. The first ID is the fallback cell.
func colocatedRegistry(t *testing.T, ids ...string) *antenna.Registry {
	t.Helper()
	antennas := make([]antenna.Antenna, 0, len(ids))
	for _, id := range ids {
		antennas = append(antennas, antenna.Antenna{ID: id})
	}
	reg, err := antenna.NewRegistry(ids[0], antennas)
	require.NoError(t, err)
	return reg
}

type engineFixture struct {
	engine    *Engine
	predictor *mocks.MockPredictor
	handovers *tracker.HandoverTracker
	profiler  *qos.AntennaQoSProfiler
}

func newEngineFixture(t *testing.T, cfg Config, reg *antenna.Registry, breaker *circuitbreaker.Breaker, opts ...Option) *engineFixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	pred := mocks.NewMockPredictor(ctrl)

	handovers, err := tracker.NewHandoverTracker(tracker.Config{})
	require.NoError(t, err)
	signals, err := tracker.NewSignalProcessor(tracker.Config{})
	require.NoError(t, err)
	mobility, err := tracker.NewMobilityProcessor(tracker.Config{})
	require.NoError(t, err)
	profiler, err := qos.NewProfiler(qos.Config{})
	require.NoError(t, err)

	logger := slog.Default()
	guard := predictor.NewGuard(pred, breaker, logger)
	eng := New(cfg, guard, handovers, signals, mobility, profiler, reg, logger, opts...)

	return &engineFixture{
		engine:    eng,
		predictor: pred,
		handovers: handovers,
		profiler:  profiler,
	}
}

func snapshot(ueID, connected string, ts time.Time) model.UESnapshot {
	return model.UESnapshot{
		UEID:            ueID,
		ConnectedCellID: connected,
		ServiceType:     model.ServiceTypeEMBB,
		RFMetrics: map[string]model.RFMetrics{
			connected: {RSRP: -85, SINR: 12, RSRQ: -10, CellLoad: 0.4},
		},
		Timestamp: ts,
	}
}

func TestDecide_ArgMaxSelection(t *testing.T) {
	reg := colocatedRegistry(t, "cell-a", "cell-b", "cell-c")
	f := newEngineFixture(t, defaultEngineConfig(), reg, nil)

	f.predictor.EXPECT().Predict(gomock.Any()).
		Return([]string{"cell-a", "cell-b", "cell-c"}, []float64{0.2, 0.5, 0.3}, nil)

	d := f.engine.Decide(context.Background(), snapshot("ue-1", "cell-b", time.Now()))

	assert.Equal(t, "cell-b", d.AntennaID)
	assert.InDelta(t, 0.5, d.Confidence, 1e-9)
	assert.False(t, d.AntiPingPongApplied)
	assert.Empty(t, d.FallbackReason)
	assert.NotEmpty(t, d.AntennaID)
}

func TestDecide_PredictorErrorServesFallback(t *testing.T) {
	reg := colocatedRegistry(t, "cell-a", "cell-b")
	f := newEngineFixture(t, defaultEngineConfig(), reg, nil)

	f.predictor.EXPECT().Predict(gomock.Any()).
		Return(nil, nil, errors.New("model not loaded"))

	d := f.engine.Decide(context.Background(), snapshot("ue-1", "cell-b", time.Now()))

	assert.Equal(t, "cell-a", d.AntennaID, "fallback cell is served")
	assert.InDelta(t, 0.5, d.Confidence, 1e-9)
	assert.Equal(t, model.FallbackPredictorError, d.FallbackReason)
	assert.Empty(t, f.handovers.History("ue-1"), "degraded decision does not touch handover history")
}

func TestDecide_OpenBreakerSkipsBackend(t *testing.T) {
	reg := colocatedRegistry(t, "cell-a", "cell-b")
	breaker := circuitbreaker.New(circuitbreaker.Options{FailureThreshold: 1})
	f := newEngineFixture(t, defaultEngineConfig(), reg, breaker)

	// A single backend failure trips the breaker; the second decision must
	// not reach the backend at all.
	f.predictor.EXPECT().Predict(gomock.Any()).
		Return(nil, nil, errors.New("backend down")).
		Times(1)

	d := f.engine.Decide(context.Background(), snapshot("ue-1", "cell-b", time.Now()))
	assert.Equal(t, model.FallbackPredictorError, d.FallbackReason)

	d = f.engine.Decide(context.Background(), snapshot("ue-1", "cell-b", time.Now()))
	assert.Equal(t, "cell-a", d.AntennaID)
	assert.Equal(t, model.FallbackPredictorError, d.FallbackReason)
}

func TestDecide_QoSBiasFlipsRanking(t *testing.T) {
	reg := colocatedRegistry(t, "cell-a", "cell-b")
	f := newEngineFixture(t, defaultEngineConfig(), reg, nil)

	// cell-a: 5/10 compliant for eMBB -> success rate 0.5, below the 0.9
	// threshold with enough samples.
	now := time.Now()
	for i := 0; i < 10; i++ {
		f.profiler.Record("cell-a", model.ServiceTypeEMBB,
			map[string]float64{"latency_ms": 40}, i%2 == 0, now)
	}

	f.predictor.EXPECT().Predict(gomock.Any()).
		Return([]string{"cell-a", "cell-b"}, []float64{0.6, 0.4}, nil)

	d := f.engine.Decide(context.Background(), snapshot("ue-1", "cell-b", now))

	// multiplier = 0.5/0.9; biased 0.6 -> 1/3, renormalized against 0.4.
	assert.Equal(t, "cell-b", d.AntennaID, "bias demotes the poor performer")
	assert.True(t, d.QoSBiasApplied)
	require.Contains(t, d.QoSBiasMultipliers, "cell-a")
	assert.InDelta(t, 0.5/0.9, d.QoSBiasMultipliers["cell-a"], 1e-9)
	assert.InDelta(t, 0.4/(0.4+0.6*(0.5/0.9)), d.Confidence, 1e-9)
}

func TestDecide_QoSBiasFloorsMultiplier(t *testing.T) {
	reg := colocatedRegistry(t, "cell-a", "cell-b")
	f := newEngineFixture(t, defaultEngineConfig(), reg, nil)

	// 1/10 compliant -> raw multiplier 0.1/0.9 would undercut the floor.
	now := time.Now()
	for i := 0; i < 10; i++ {
		f.profiler.Record("cell-a", model.ServiceTypeEMBB,
			map[string]float64{"latency_ms": 90}, i == 0, now)
	}

	f.predictor.EXPECT().Predict(gomock.Any()).
		Return([]string{"cell-a", "cell-b"}, []float64{0.9, 0.1}, nil)

	d := f.engine.Decide(context.Background(), snapshot("ue-1", "cell-a", now))

	require.Contains(t, d.QoSBiasMultipliers, "cell-a")
	assert.InDelta(t, 0.35, d.QoSBiasMultipliers["cell-a"], 1e-9)
	assert.Equal(t, "cell-a", d.AntennaID, "floored bias keeps the dominant antenna on top")
}

func TestDecide_QoSBiasSkipsThinProfiles(t *testing.T) {
	reg := colocatedRegistry(t, "cell-a", "cell-b")
	f := newEngineFixture(t, defaultEngineConfig(), reg, nil)

	// Only 3 samples: below MinSamples, no bias regardless of compliance.
	now := time.Now()
	for i := 0; i < 3; i++ {
		f.profiler.Record("cell-a", model.ServiceTypeEMBB, nil, false, now)
	}

	f.predictor.EXPECT().Predict(gomock.Any()).
		Return([]string{"cell-a", "cell-b"}, []float64{0.6, 0.4}, nil)

	d := f.engine.Decide(context.Background(), snapshot("ue-1", "cell-a", now))

	assert.False(t, d.QoSBiasApplied)
	assert.Equal(t, "cell-a", d.AntennaID)
}

func TestDecide_GeographicOverride(t *testing.T) {
	// cell-far is ~1500 km away from the UE, far beyond radius*multiplier;
	// cell-near is ~160 m away.
	antennas := []antenna.Antenna{
		{ID: "cell-far", Latitude: 10.0, Longitude: 10.0, RadiusM: 500},
		{ID: "cell-near", Latitude: 0.001, Longitude: 0.001, RadiusM: 500},
	}
	reg, err := antenna.NewRegistry("cell-near", antennas)
	require.NoError(t, err)
	f := newEngineFixture(t, defaultEngineConfig(), reg, nil)

	f.predictor.EXPECT().Predict(gomock.Any()).
		Return([]string{"cell-far", "cell-near"}, []float64{0.9, 0.1}, nil)

	snap := snapshot("ue-1", "cell-near", time.Now())
	d := f.engine.Decide(context.Background(), snap)

	assert.Equal(t, "cell-near", d.AntennaID)
	assert.InDelta(t, 1.0, d.Confidence, 1e-9)
	assert.Equal(t, model.FallbackGeographicOverride, d.FallbackReason)
	require.NotNil(t, d.GeoOverride)
	assert.Equal(t, "cell-far", d.GeoOverride.OriginalAntennaID)
	assert.Greater(t, d.GeoOverride.OriginalDistanceM, 1_000_000.0)
	assert.Less(t, d.GeoOverride.ChosenDistanceM, 500.0)
}

func TestDecide_GeographicCheckPassesNearbyPrediction(t *testing.T) {
	antennas := []antenna.Antenna{
		{ID: "cell-a", Latitude: 0.001, Longitude: 0.001, RadiusM: 500},
	}
	reg, err := antenna.NewRegistry("cell-a", antennas)
	require.NoError(t, err)
	f := newEngineFixture(t, defaultEngineConfig(), reg, nil)

	f.predictor.EXPECT().Predict(gomock.Any()).
		Return([]string{"cell-a"}, []float64{0.8}, nil)

	d := f.engine.Decide(context.Background(), snapshot("ue-1", "cell-a", time.Now()))

	assert.Equal(t, "cell-a", d.AntennaID)
	assert.Nil(t, d.GeoOverride)
	assert.InDelta(t, 0.8, d.Confidence, 1e-9)
}

func TestDecide_SuppressesTooRecentHandover(t *testing.T) {
	reg := colocatedRegistry(t, "cell-a", "cell-b")
	f := newEngineFixture(t, defaultEngineConfig(), reg, nil)

	// Fixed event time: the ping-pong windows follow snapshot timestamps,
	// not the wall clock.
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	// First cycle: hand over from cell-a to cell-b.
	f.predictor.EXPECT().Predict(gomock.Any()).
		Return([]string{"cell-a", "cell-b"}, []float64{0.2, 0.8}, nil)
	d := f.engine.Decide(context.Background(), snapshot("ue-1", "cell-a", base))
	require.Equal(t, "cell-b", d.AntennaID)

	// 500ms later the model wants to bounce back: under the 2s floor, so
	// the UE stays on cell-b at full confidence.
	f.predictor.EXPECT().Predict(gomock.Any()).
		Return([]string{"cell-a", "cell-b"}, []float64{0.8, 0.2}, nil)
	d = f.engine.Decide(context.Background(), snapshot("ue-1", "cell-b", base.Add(500*time.Millisecond)))

	assert.True(t, d.AntiPingPongApplied)
	assert.Equal(t, model.SuppressionTooRecent, d.SuppressionReason)
	assert.Equal(t, "cell-b", d.AntennaID)
	assert.Equal(t, "cell-a", d.SuppressedAntennaID)
	assert.InDelta(t, 1.0, d.Confidence, 1e-9)
}

func TestDecide_SuppressesTooManyHandovers(t *testing.T) {
	reg := colocatedRegistry(t, "cell-a", "cell-b", "cell-c", "cell-d", "cell-e")
	f := newEngineFixture(t, defaultEngineConfig(), reg, nil)

	// Three handovers inside the last minute, spaced above the 2s floor
	// and onto fresh cells so only the rate check can fire.
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	cells := []string{"cell-a", "cell-b", "cell-c", "cell-d"}
	for i := 0; i < 3; i++ {
		target := cells[i+1]
		f.predictor.EXPECT().Predict(gomock.Any()).
			Return([]string{target}, []float64{0.8}, nil)
		d := f.engine.Decide(context.Background(), snapshot("ue-1", cells[i], base.Add(time.Duration(i)*3*time.Second)))
		require.Equal(t, target, d.AntennaID)
	}

	// Fourth proposed handover with ordinary confidence is suppressed.
	f.predictor.EXPECT().Predict(gomock.Any()).
		Return([]string{"cell-e"}, []float64{0.6}, nil)
	d := f.engine.Decide(context.Background(), snapshot("ue-1", "cell-d", base.Add(9*time.Second)))

	assert.True(t, d.AntiPingPongApplied)
	assert.Equal(t, model.SuppressionTooMany, d.SuppressionReason)
	assert.Equal(t, "cell-d", d.AntennaID)
	assert.Equal(t, "cell-e", d.SuppressedAntennaID)
}

func TestDecide_HighConfidenceOverridesRateLimit(t *testing.T) {
	reg := colocatedRegistry(t, "cell-a", "cell-b", "cell-c", "cell-d", "cell-e")
	f := newEngineFixture(t, defaultEngineConfig(), reg, nil)

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	cells := []string{"cell-a", "cell-b", "cell-c", "cell-d"}
	for i := 0; i < 3; i++ {
		target := cells[i+1]
		f.predictor.EXPECT().Predict(gomock.Any()).
			Return([]string{target}, []float64{0.8}, nil)
		f.engine.Decide(context.Background(), snapshot("ue-1", cells[i], base.Add(time.Duration(i)*3*time.Second)))
	}

	// Confidence at or above the boost threshold pushes through the rate
	// check; the other checks do not apply to a fresh cell.
	f.predictor.EXPECT().Predict(gomock.Any()).
		Return([]string{"cell-e"}, []float64{0.95}, nil)
	d := f.engine.Decide(context.Background(), snapshot("ue-1", "cell-d", base.Add(9*time.Second)))

	assert.False(t, d.AntiPingPongApplied)
	assert.Equal(t, "cell-e", d.AntennaID)
}

func TestDecide_SuppressesImmediateReturn(t *testing.T) {
	reg := colocatedRegistry(t, "cell-x", "cell-a", "cell-b")
	f := newEngineFixture(t, defaultEngineConfig(), reg, nil)

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	// cell-x -> cell-a -> cell-b, both above the interval floor.
	f.predictor.EXPECT().Predict(gomock.Any()).
		Return([]string{"cell-a"}, []float64{0.8}, nil)
	f.engine.Decide(context.Background(), snapshot("ue-1", "cell-x", base))

	f.predictor.EXPECT().Predict(gomock.Any()).
		Return([]string{"cell-b"}, []float64{0.8}, nil)
	f.engine.Decide(context.Background(), snapshot("ue-1", "cell-a", base.Add(3*time.Second)))

	// Returning to cell-a only 5s after leaving it needs very high
	// confidence; 0.8 is suppressed.
	f.predictor.EXPECT().Predict(gomock.Any()).
		Return([]string{"cell-a"}, []float64{0.8}, nil)
	d := f.engine.Decide(context.Background(), snapshot("ue-1", "cell-b", base.Add(8*time.Second)))

	assert.True(t, d.AntiPingPongApplied)
	assert.Equal(t, model.SuppressionImmediateReturn, d.SuppressionReason)
	assert.Equal(t, "cell-b", d.AntennaID)
	assert.Equal(t, "cell-a", d.SuppressedAntennaID)
}

func TestDecide_NoHandoverIsNotSuppressed(t *testing.T) {
	reg := colocatedRegistry(t, "cell-a")
	f := newEngineFixture(t, defaultEngineConfig(), reg, nil)

	// Staying on the connected cell never triggers ping-pong checks and
	// never counts as a handover, however often it repeats.
	for i := 0; i < 3; i++ {
		f.predictor.EXPECT().Predict(gomock.Any()).
			Return([]string{"cell-a"}, []float64{0.9}, nil)
		d := f.engine.Decide(context.Background(), snapshot("ue-1", "cell-a", time.Now()))
		assert.Equal(t, "cell-a", d.AntennaID)
		assert.False(t, d.AntiPingPongApplied)
	}
	assert.Empty(t, f.handovers.History("ue-1"))
}

func TestDecide_AttachesDiversityWarning(t *testing.T) {
	reg := colocatedRegistry(t, "cell-a", "cell-b")
	monitor := NewDiversityMonitor(10, 5, 0.5, nil, slog.Default())
	f := newEngineFixture(t, defaultEngineConfig(), reg, nil, WithDiversityMonitor(monitor))

	var last model.Decision
	for i := 0; i < 5; i++ {
		f.predictor.EXPECT().Predict(gomock.Any()).
			Return([]string{"cell-a", "cell-b"}, []float64{0.9, 0.1}, nil)
		last = f.engine.Decide(context.Background(), snapshot("ue-1", "cell-a", time.Now()))
	}

	require.Len(t, last.Warnings, 1)
	assert.Equal(t, model.WarningLowDiversity, last.Warnings[0].Type)
	assert.Equal(t, "cell-a", last.AntennaID, "warning never changes the decision")
}

func TestDecide_ConcurrentUEs(t *testing.T) {
	reg := colocatedRegistry(t, "cell-a", "cell-b")
	f := newEngineFixture(t, defaultEngineConfig(), reg, nil)

	const ues = 8
	f.predictor.EXPECT().Predict(gomock.Any()).
		Return([]string{"cell-a", "cell-b"}, []float64{0.7, 0.3}, nil).
		Times(ues)

	done := make(chan model.Decision, ues)
	for i := 0; i < ues; i++ {
		go func(i int) {
			snap := snapshot(fmt.Sprintf("ue-%d", i), "cell-a", time.Now())
			done <- f.engine.Decide(context.Background(), snap)
		}(i)
	}
	for i := 0; i < ues; i++ {
		d := <-done
		assert.Equal(t, "cell-a", d.AntennaID)
	}
}

package tracker

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSignalProcessor(t *testing.T) *SignalProcessor {
	t.Helper()
	sp, err := NewSignalProcessor(Config{MaxUEs: 100, TTL: time.Hour})
	require.NoError(t, err)
	return sp
}

func TestSignalProcessor_StdDev(t *testing.T) {
	sp := newSignalProcessor(t)

	rsrpStd, sinrStd := sp.Update("ue1", -90, 10, -12)
	assert.Equal(t, 0.0, rsrpStd, "single sample has no spread")
	assert.Equal(t, 0.0, sinrStd)

	sp.Update("ue1", -92, 12, -12)
	rsrpStd, sinrStd = sp.Update("ue1", -94, 14, -12)

	// Population stddev of {-90,-92,-94} and {10,12,14} is sqrt(8/3).
	want := math.Sqrt(8.0 / 3.0)
	assert.InDelta(t, want, rsrpStd, 1e-9)
	assert.InDelta(t, want, sinrStd, 1e-9)
}

func TestSignalProcessor_WindowIsBounded(t *testing.T) {
	sp := newSignalProcessor(t)

	for i := 0; i < 20; i++ {
		sp.Update("ue1", -100, 5, -12)
	}
	rsrpStd, _ := sp.Update("ue1", -100, 5, -12)
	assert.Equal(t, 0.0, rsrpStd, "constant window has zero spread")

	s, ok := sp.ues.Get("ue1")
	require.True(t, ok)
	assert.Len(t, s.rsrpWindow, signalWindow)
	assert.Len(t, s.sinrWindow, signalWindow)
}

func TestSignalProcessor_Trend(t *testing.T) {
	sp := newSignalProcessor(t)

	assert.Equal(t, 0.0, sp.Trend("ue1", -90, 10, -12), "no previous observation")

	// Deltas: rsrp +3, sinr -1, rsrq +1 -> mean 1.
	got := sp.Trend("ue1", -87, 9, -11)
	assert.InDelta(t, 1.0, got, 1e-9)

	// Per-UE isolation.
	assert.Equal(t, 0.0, sp.Trend("ue2", -80, 20, -10))
}

func TestSignalProcessor_TemporalFeatures(t *testing.T) {
	sp := newSignalProcessor(t)

	sp.Trend("ue1", -90, 10, -12)
	f := sp.TemporalFeatures("ue1", -90, 10)
	assert.Equal(t, 0.0, f.TrendAcceleration)
	assert.Equal(t, -90.0, f.EMAShort, "EMA seeds at first sample")
	assert.Equal(t, -90.0, f.EMALong)
	assert.Equal(t, 0.0, f.EMADivergence)

	sp.Trend("ue1", -84, 13, -9) // trend = (6+3+3)/3 = 4
	f = sp.TemporalFeatures("ue1", -84, 13)
	assert.InDelta(t, 4.0, f.TrendAcceleration, 1e-9, "trend went 0 -> 4")

	wantShort := emaShortAlpha*(-84) + (1-emaShortAlpha)*(-90)
	wantLong := emaLongAlpha*(-84) + (1-emaLongAlpha)*(-90)
	assert.InDelta(t, wantShort, f.EMAShort, 1e-9)
	assert.InDelta(t, wantLong, f.EMALong, 1e-9)
	assert.InDelta(t, wantShort-wantLong, f.EMADivergence, 1e-9)
	assert.Greater(t, f.EMADivergence, 0.0, "short EMA reacts faster to improvement")
}

package tracker

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/PanagiotisVasilakis/thesis-sub000/internal/cache"
)

const (
	// signalWindow is the ring-buffer length for stddev computation.
	signalWindow = 5

	// emaShortAlpha reacts quickly to the latest samples.
	emaShortAlpha = 0.5

	// emaLongAlpha corresponds to a 10-sample window (2/(N+1)).
	emaLongAlpha = 2.0 / 11.0
)

type signalState struct {
	rsrpWindow []float64
	sinrWindow []float64

	hasPrev            bool
	prevRSRP, prevSINR float64
	prevRSRQ           float64

	lastTrend, prevTrend float64

	emaInit           bool
	emaShort, emaLong float64
}

// TemporalFeatures are the second-order signal features derived from the
// per-UE observation stream.
type TemporalFeatures struct {
	TrendAcceleration float64 // delta of the trend between the last two cycles
	EMAShort          float64 // fast RSRP moving average
	EMALong           float64 // slow RSRP moving average
	EMADivergence     float64 // short minus long
}

// SignalProcessor maintains per-UE signal-quality windows and derives
// variability, trend and EMA features from them. Within one measurement
// cycle the expected call order is Update, then Trend, then
// TemporalFeatures.
type SignalProcessor struct {
	ues *cache.TTLBoundedMap[string, *signalState]
}

// NewSignalProcessor creates a processor with the given capacity/TTL.
func NewSignalProcessor(cfg Config) (*SignalProcessor, error) {
	ues, err := cache.New[string, *signalState](cfg.withDefaults().cacheConfig())
	if err != nil {
		return nil, err
	}
	return &SignalProcessor{ues: ues}, nil
}

func (p *SignalProcessor) state(ueID string) *signalState {
	if s, ok := p.ues.Get(ueID); ok {
		return s
	}
	s := &signalState{}
	p.ues.Set(ueID, s)
	return s
}

// Update pushes the cycle's measurements into the fixed-size windows and
// returns the population standard deviation of RSRP and SINR over them.
func (p *SignalProcessor) Update(ueID string, rsrp, sinr, rsrq float64) (rsrpStdDev, sinrStdDev float64) {
	s := p.state(ueID)

	s.rsrpWindow = pushWindow(s.rsrpWindow, rsrp, signalWindow)
	s.sinrWindow = pushWindow(s.sinrWindow, sinr, signalWindow)
	p.ues.Set(ueID, s)

	return popStdDev(s.rsrpWindow), popStdDev(s.sinrWindow)
}

// Trend returns the average of the per-metric deltas against the previous
// observation (0 on the first observation for a UE) and shifts the trend
// history used for acceleration.
func (p *SignalProcessor) Trend(ueID string, rsrp, sinr, rsrq float64) float64 {
	s := p.state(ueID)

	trend := 0.0
	if s.hasPrev {
		trend = ((rsrp - s.prevRSRP) + (sinr - s.prevSINR) + (rsrq - s.prevRSRQ)) / 3.0
	}
	s.prevRSRP, s.prevSINR, s.prevRSRQ = rsrp, sinr, rsrq
	s.hasPrev = true
	s.prevTrend = s.lastTrend
	s.lastTrend = trend
	return trend
}

// TemporalFeatures derives trend acceleration and the short/long RSRP
// exponential moving averages. Call after Trend for the same cycle.
func (p *SignalProcessor) TemporalFeatures(ueID string, rsrp, sinr float64) TemporalFeatures {
	s := p.state(ueID)

	if !s.emaInit {
		s.emaShort = rsrp
		s.emaLong = rsrp
		s.emaInit = true
	} else {
		s.emaShort = emaShortAlpha*rsrp + (1-emaShortAlpha)*s.emaShort
		s.emaLong = emaLongAlpha*rsrp + (1-emaLongAlpha)*s.emaLong
	}

	return TemporalFeatures{
		TrendAcceleration: s.lastTrend - s.prevTrend,
		EMAShort:          s.emaShort,
		EMALong:           s.emaLong,
		EMADivergence:     s.emaShort - s.emaLong,
	}
}

// Stats exposes the underlying map counters.
func (p *SignalProcessor) Stats() cache.Stats {
	return p.ues.Stats()
}

func pushWindow(w []float64, v float64, max int) []float64 {
	w = append(w, v)
	if len(w) > max {
		w = w[len(w)-max:]
	}
	return w
}

// popStdDev is the population standard deviation (divide by N, not N-1),
// matching the window semantics the classifier was trained against.
func popStdDev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	mean := stat.Mean(xs, nil)
	return math.Sqrt(stat.MomentAbout(2, xs, mean, nil))
}

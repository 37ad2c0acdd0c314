package tracker

import (
	"math"

	"github.com/PanagiotisVasilakis/thesis-sub000/internal/cache"
)

// positionWindow is the number of recent positions kept per UE.
const positionWindow = 5

type position struct {
	lat, lon float64
}

type mobilityState struct {
	positions []position

	hasSpeed  bool
	prevSpeed float64
}

// MobilityFeatures are the movement derivatives fed to the classifier.
type MobilityFeatures struct {
	HeadingChangeRate float64 // mean absolute bearing delta, degrees per sample
	PathCurvature     float64 // total bearing change per meter of path
	Acceleration      float64 // speed delta vs previous cycle, m/s^2-equivalent
}

// MobilityProcessor derives heading and curvature features from a short
// per-UE position window.
type MobilityProcessor struct {
	ues *cache.TTLBoundedMap[string, *mobilityState]
}

// NewMobilityProcessor creates a processor with the given capacity/TTL.
func NewMobilityProcessor(cfg Config) (*MobilityProcessor, error) {
	ues, err := cache.New[string, *mobilityState](cfg.withDefaults().cacheConfig())
	if err != nil {
		return nil, err
	}
	return &MobilityProcessor{ues: ues}, nil
}

// Update records the cycle's position and speed and returns the derived
// mobility features. All features are 0 until enough samples accumulate.
func (p *MobilityProcessor) Update(ueID string, lat, lon, speed float64) MobilityFeatures {
	s, ok := p.ues.Get(ueID)
	if !ok {
		s = &mobilityState{}
	}

	s.positions = append(s.positions, position{lat: lat, lon: lon})
	if len(s.positions) > positionWindow {
		s.positions = s.positions[len(s.positions)-positionWindow:]
	}

	var f MobilityFeatures
	if s.hasSpeed {
		f.Acceleration = speed - s.prevSpeed
	}
	s.prevSpeed = speed
	s.hasSpeed = true

	f.HeadingChangeRate, f.PathCurvature = headingFeatures(s.positions)

	p.ues.Set(ueID, s)
	return f
}

// Stats exposes the underlying map counters.
func (p *MobilityProcessor) Stats() cache.Stats {
	return p.ues.Stats()
}

// headingFeatures walks the position window and derives the mean absolute
// bearing change per sample and the total bearing change per meter.
func headingFeatures(ps []position) (changeRate, curvature float64) {
	if len(ps) < 3 {
		return 0, 0
	}

	var (
		totalDelta float64
		deltas     int
		pathLen    float64
	)
	prevBearing := bearingDeg(ps[0], ps[1])
	pathLen += segmentLenM(ps[0], ps[1])

	for i := 2; i < len(ps); i++ {
		b := bearingDeg(ps[i-1], ps[i])
		d := math.Abs(normalizeDeg(b - prevBearing))
		totalDelta += d
		deltas++
		pathLen += segmentLenM(ps[i-1], ps[i])
		prevBearing = b
	}

	changeRate = totalDelta / float64(deltas)
	if pathLen > 0 {
		curvature = totalDelta / pathLen
	}
	return changeRate, curvature
}

// bearingDeg is the initial great-circle bearing from a to b in degrees.
func bearingDeg(a, b position) float64 {
	phi1 := a.lat * math.Pi / 180
	phi2 := b.lat * math.Pi / 180
	dLambda := (b.lon - a.lon) * math.Pi / 180

	y := math.Sin(dLambda) * math.Cos(phi2)
	x := math.Cos(phi1)*math.Sin(phi2) - math.Sin(phi1)*math.Cos(phi2)*math.Cos(dLambda)
	return math.Atan2(y, x) * 180 / math.Pi
}

// normalizeDeg maps an angle difference into [-180, 180].
func normalizeDeg(d float64) float64 {
	for d > 180 {
		d -= 360
	}
	for d < -180 {
		d += 360
	}
	return d
}

func segmentLenM(a, b position) float64 {
	// Equirectangular approximation; window segments are short.
	const mPerDeg = 111195.0
	dLat := (b.lat - a.lat) * mPerDeg
	dLon := (b.lon - a.lon) * mPerDeg * math.Cos(a.lat*math.Pi/180)
	return math.Hypot(dLat, dLon)
}

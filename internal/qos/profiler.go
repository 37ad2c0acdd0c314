// Package qos tracks per-antenna service-quality compliance per traffic
// class. The decision pipeline uses these profiles to bias predictions
// away from antennas with poor historical compliance.
package qos

import (
	"fmt"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/PanagiotisVasilakis/thesis-sub000/internal/cache"
	"github.com/PanagiotisVasilakis/thesis-sub000/internal/domain/model"
)

const (
	// DefaultWindow is how far back samples count toward a profile.
	DefaultWindow = 1800 * time.Second

	// DefaultMaxSamples caps the per-profile sample buffer.
	DefaultMaxSamples = 500

	// DefaultPoorThreshold is the success rate below which an antenna is
	// a poor performer for a traffic class.
	DefaultPoorThreshold = 0.75

	// DefaultPoorMinSamples guards the poor-performer verdict against
	// thin data.
	DefaultPoorMinSamples = 10

	defaultMaxProfiles = 10000
	defaultProfileTTL  = 24 * time.Hour
)

// Config sizes the profiler.
type Config struct {
	Window      time.Duration
	MaxSamples  int
	MaxProfiles int
	ProfileTTL  time.Duration
}

func (c Config) withDefaults() Config {
	if c.Window <= 0 {
		c.Window = DefaultWindow
	}
	if c.MaxSamples <= 0 {
		c.MaxSamples = DefaultMaxSamples
	}
	if c.MaxProfiles <= 0 {
		c.MaxProfiles = defaultMaxProfiles
	}
	if c.ProfileTTL <= 0 {
		c.ProfileTTL = defaultProfileTTL
	}
	return c
}

type sample struct {
	at      time.Time
	metrics map[string]float64
	passed  bool
}

type profileState struct {
	samples []sample // oldest first
}

// MetricSummary aggregates one numeric metric over the window.
type MetricSummary struct {
	Avg float64 `json:"avg"`
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Profile is the point-in-time compliance view of one (antenna, service
// type) pair.
type Profile struct {
	SampleCount    int                      `json:"sample_count"`
	SuccessRate    float64                  `json:"success_rate"`
	ViolationCount int                      `json:"violation_count"`
	Metrics        map[string]MetricSummary `json:"metrics_summary"`
	LastTimestamp  time.Time                `json:"last_timestamp"`
}

// AntennaQoSProfiler keeps rolling QoS compliance windows keyed by
// (antenna, service type).
type AntennaQoSProfiler struct {
	cfg      Config
	profiles *cache.TTLBoundedMap[string, *profileState]
}

// NewProfiler creates a profiler.
func NewProfiler(cfg Config) (*AntennaQoSProfiler, error) {
	cfg = cfg.withDefaults()
	profiles, err := cache.New[string, *profileState](cache.Config{
		MaxSize: cfg.MaxProfiles,
		TTL:     cfg.ProfileTTL,
	})
	if err != nil {
		return nil, err
	}
	return &AntennaQoSProfiler{cfg: cfg, profiles: profiles}, nil
}

func profileKey(antennaID string, st model.ServiceType) string {
	return fmt.Sprintf("%s|%s", antennaID, st)
}

// Record appends one compliance observation, pruning samples that fell
// out of the window.
func (p *AntennaQoSProfiler) Record(antennaID string, st model.ServiceType, metrics map[string]float64, passed bool, ts time.Time) {
	key := profileKey(antennaID, st)
	s, ok := p.profiles.Get(key)
	if !ok {
		s = &profileState{}
	}

	s.samples = append(s.samples, sample{at: ts, metrics: metrics, passed: passed})
	s.prune(ts.Add(-p.cfg.Window))
	if len(s.samples) > p.cfg.MaxSamples {
		s.samples = s.samples[len(s.samples)-p.cfg.MaxSamples:]
	}

	p.profiles.Set(key, s)
}

// GetProfile computes the rolling profile for an (antenna, service type)
// pair. Returns ok=false when no samples are recorded.
func (p *AntennaQoSProfiler) GetProfile(antennaID string, st model.ServiceType) (Profile, bool) {
	s, ok := p.profiles.Get(profileKey(antennaID, st))
	if !ok || len(s.samples) == 0 {
		return Profile{}, false
	}

	prof := Profile{
		SampleCount:   len(s.samples),
		LastTimestamp: s.samples[len(s.samples)-1].at,
		Metrics:       make(map[string]MetricSummary),
	}

	passed := 0
	values := make(map[string][]float64)
	for _, smp := range s.samples {
		if smp.passed {
			passed++
		}
		for name, v := range smp.metrics {
			values[name] = append(values[name], v)
		}
	}
	prof.SuccessRate = float64(passed) / float64(prof.SampleCount)
	prof.ViolationCount = prof.SampleCount - passed

	for name, vs := range values {
		prof.Metrics[name] = MetricSummary{
			Avg: stat.Mean(vs, nil),
			Min: floats.Min(vs),
			Max: floats.Max(vs),
		}
	}
	return prof, true
}

// IsPoorPerformer reports whether the antenna has enough samples and a
// success rate below the threshold for the traffic class.
func (p *AntennaQoSProfiler) IsPoorPerformer(antennaID string, st model.ServiceType, threshold float64, minSamples int) bool {
	prof, ok := p.GetProfile(antennaID, st)
	if !ok {
		return false
	}
	return prof.SampleCount >= minSamples && prof.SuccessRate < threshold
}

// Stats exposes the underlying map counters.
func (p *AntennaQoSProfiler) Stats() cache.Stats {
	return p.profiles.Stats()
}

func (s *profileState) prune(cutoff time.Time) {
	i := 0
	for i < len(s.samples) && s.samples[i].at.Before(cutoff) {
		i++
	}
	if i > 0 {
		s.samples = append(s.samples[:0], s.samples[i:]...)
	}
}

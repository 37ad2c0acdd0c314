package antenna

import (
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultMaxDistanceMultiplier scales an antenna's nominal radius into
// the maximum plausible serving distance.
const DefaultMaxDistanceMultiplier = 2.0

const earthRadiusM = 6371000.0

// Antenna is the static configuration of one cell site.
type Antenna struct {
	ID                    string  `yaml:"id"`
	Latitude              float64 `yaml:"latitude"`
	Longitude             float64 `yaml:"longitude"`
	RadiusM               float64 `yaml:"radius_m"`
	MaxDistanceMultiplier float64 `yaml:"max_distance_multiplier"`
}

// MaxServingDistanceM is the distance beyond which serving this antenna
// is considered geographically implausible.
func (a Antenna) MaxServingDistanceM() float64 {
	mult := a.MaxDistanceMultiplier
	if mult <= 0 {
		mult = DefaultMaxDistanceMultiplier
	}
	return a.RadiusM * mult
}

// Registry holds the statically configured antennas plus the fallback
// cell used when the predictor is unavailable. Immutable after load.
type Registry struct {
	antennas     map[string]Antenna
	fallbackCell string
}

type registryFile struct {
	FallbackCell string    `yaml:"fallback_cell"`
	Antennas     []Antenna `yaml:"antennas"`
}

// NewRegistry builds a registry from static configuration.
func NewRegistry(fallbackCell string, antennas []Antenna) (*Registry, error) {
	if fallbackCell == "" {
		return nil, fmt.Errorf("antenna: fallback cell is required")
	}
	byID := make(map[string]Antenna, len(antennas))
	for _, a := range antennas {
		if a.ID == "" {
			return nil, fmt.Errorf("antenna: antenna with empty ID")
		}
		if _, dup := byID[a.ID]; dup {
			return nil, fmt.Errorf("antenna: duplicate antenna ID %q", a.ID)
		}
		if a.RadiusM < 0 {
			return nil, fmt.Errorf("antenna %s: negative radius %f", a.ID, a.RadiusM)
		}
		byID[a.ID] = a
	}
	return &Registry{antennas: byID, fallbackCell: fallbackCell}, nil
}

// LoadRegistry reads a YAML registry file.
func LoadRegistry(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("antenna: read registry: %w", err)
	}
	var f registryFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("antenna: parse registry: %w", err)
	}
	return NewRegistry(f.FallbackCell, f.Antennas)
}

// Get returns the antenna configuration for an ID.
func (r *Registry) Get(id string) (Antenna, bool) {
	a, ok := r.antennas[id]
	return a, ok
}

// FallbackCell is the static cell returned when no prediction is usable.
func (r *Registry) FallbackCell() string {
	return r.fallbackCell
}

// Len returns the number of configured antennas.
func (r *Registry) Len() int {
	return len(r.antennas)
}

// IDs returns all configured antenna IDs in unspecified order.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.antennas))
	for id := range r.antennas {
		ids = append(ids, id)
	}
	return ids
}

// Nearest returns the configured antenna closest to the given position
// and its distance in meters. ok is false when the registry is empty.
func (r *Registry) Nearest(lat, lon float64) (Antenna, float64, bool) {
	var (
		best     Antenna
		bestDist = math.Inf(1)
		found    bool
	)
	for _, a := range r.antennas {
		d := DistanceM(lat, lon, a.Latitude, a.Longitude)
		if d < bestDist {
			best, bestDist, found = a, d, true
		}
	}
	return best, bestDist, found
}

// DistanceM computes the great-circle (haversine) distance in meters
// between two WGS84 coordinates.
func DistanceM(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	return earthRadiusM * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

package model

// SuppressionReason says which ping-pong check replaced a prediction with
// the currently connected cell.
type SuppressionReason string

const (
	SuppressionNone            SuppressionReason = ""
	SuppressionTooMany         SuppressionReason = "too_many_handovers"
	SuppressionTooRecent       SuppressionReason = "handover_too_recent"
	SuppressionImmediateReturn SuppressionReason = "immediate_return"
)

// FallbackReason says why the pipeline replaced or overrode the raw
// prediction outside of ping-pong prevention.
type FallbackReason string

const (
	FallbackNone               FallbackReason = ""
	FallbackPredictorError     FallbackReason = "predictor_error"
	FallbackGeographicOverride FallbackReason = "geographic_override"
)

// WarningType classifies advisory warnings attached to a decision.
type WarningType string

const WarningLowDiversity WarningType = "low_diversity"

// Warning is an advisory attached to a decision. Warnings never change
// the chosen antenna.
type Warning struct {
	Type    WarningType       `json:"type"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

// GeoOverride records a geographic plausibility override.
type GeoOverride struct {
	OriginalAntennaID string  `json:"original_antenna_id"`
	OriginalDistanceM float64 `json:"original_distance_m"`
	ChosenDistanceM   float64 `json:"chosen_distance_m"`
}

// Decision is the outcome of one handover evaluation for a UE.
type Decision struct {
	AntennaID  string  `json:"antenna_id"`
	Confidence float64 `json:"confidence"` // 0..1

	QoSBiasApplied bool `json:"qos_bias_applied"`
	// QoSBiasMultipliers maps antenna ID to the multiplier applied to its
	// raw probability, recorded for observability.
	QoSBiasMultipliers map[string]float64 `json:"qos_bias_multipliers,omitempty"`

	AntiPingPongApplied bool              `json:"anti_pingpong_applied"`
	SuppressionReason   SuppressionReason `json:"suppression_reason,omitempty"`
	// SuppressedAntennaID is the original prediction when ping-pong
	// prevention kept the UE on its current cell.
	SuppressedAntennaID string `json:"suppressed_antenna_id,omitempty"`

	FallbackReason FallbackReason `json:"fallback_reason,omitempty"`
	GeoOverride    *GeoOverride   `json:"geo_override,omitempty"`

	Warnings []Warning `json:"warnings,omitempty"`
}

// IsHandover reports whether the decision moves the UE off the given
// currently connected cell.
func (d Decision) IsHandover(connectedCellID string) bool {
	return connectedCellID != "" && d.AntennaID != connectedCellID
}

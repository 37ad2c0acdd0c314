package model

import "time"

// ServiceType is the traffic class a UE is running, used to key QoS
// profiles per antenna.
type ServiceType string

const (
	ServiceTypeEMBB  ServiceType = "embb"  // enhanced mobile broadband
	ServiceTypeURLLC ServiceType = "urllc" // ultra-reliable low latency
	ServiceTypeMMTC  ServiceType = "mmtc"  // massive machine-type
	ServiceTypeVoice ServiceType = "voice"
)

// RFMetrics are the per-antenna radio measurements reported by a UE.
type RFMetrics struct {
	RSRP     float64 `json:"rsrp"`      // dBm
	SINR     float64 `json:"sinr"`      // dB
	RSRQ     float64 `json:"rsrq"`      // dB
	CellLoad float64 `json:"cell_load"` // 0..1
}

// QoSRequirement is the target service quality for the UE's traffic class.
type QoSRequirement struct {
	MaxLatencyMs      float64 `json:"max_latency_ms"`
	MinThroughputMbps float64 `json:"min_throughput_mbps"`
	MaxJitterMs       float64 `json:"max_jitter_ms"`
	MaxPacketLoss     float64 `json:"max_packet_loss"`
}

// QoSObserved is the service quality currently measured for the UE.
type QoSObserved struct {
	LatencyMs      float64 `json:"latency_ms"`
	ThroughputMbps float64 `json:"throughput_mbps"`
	JitterMs       float64 `json:"jitter_ms"`
	PacketLoss     float64 `json:"packet_loss"`
}

// UESnapshot is one measurement-cycle observation of a UE. It is the
// immutable input to a handover decision; the engine never mutates it.
type UESnapshot struct {
	UEID string `json:"ue_id"`

	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Altitude  float64 `json:"altitude"`

	Speed        float64 `json:"speed"`        // m/s
	Velocity     float64 `json:"velocity"`     // m/s, signed along heading
	Acceleration float64 `json:"acceleration"` // m/s^2

	ConnectedCellID string `json:"connected_cell_id"`

	// RFMetrics is keyed by antenna/cell ID. Antennas absent from the map
	// get deterministic feature defaults during feature assembly.
	RFMetrics map[string]RFMetrics `json:"rf_metrics"`

	ServiceType ServiceType     `json:"service_type"`
	QoSRequired *QoSRequirement `json:"qos_required,omitempty"`
	QoSObserved *QoSObserved    `json:"qos_observed,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}

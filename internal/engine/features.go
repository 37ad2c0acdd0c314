package engine

import (
	"fmt"

	"github.com/PanagiotisVasilakis/thesis-sub000/internal/domain/model"
)

// Feature defaults for fields absent from a snapshot. These constants are
// part of the classifier's input contract: the model was trained with
// exactly these values standing in for missing measurements, so they must
// not be re-derived.
const (
	// DefaultRSRP is below any plausible measurement, marking "no signal".
	DefaultRSRP = -120.0 // dBm

	// DefaultSINR is the neutral signal-to-noise midpoint.
	DefaultSINR = 0.0 // dB

	// DefaultRSRQ marks poor-but-present reference signal quality.
	DefaultRSRQ = -20.0 // dB

	// DefaultCellLoad assumes a half-loaded cell when load is unreported.
	DefaultCellLoad = 0.5
)

// assembleFeatures flattens the snapshot, tracker outputs and QoS margins
// into the classifier's feature vector. Every configured antenna
// contributes its RF block (defaults where unreported), so the vector
// shape is stable across cycles.
func (e *Engine) assembleFeatures(snap model.UESnapshot) map[string]float64 {
	features := map[string]float64{
		"latitude":     snap.Latitude,
		"longitude":    snap.Longitude,
		"altitude":     snap.Altitude,
		"speed":        snap.Speed,
		"velocity":     snap.Velocity,
		"acceleration": snap.Acceleration,
	}

	for _, id := range e.registry.IDs() {
		rf, ok := snap.RFMetrics[id]
		if !ok {
			rf = model.RFMetrics{
				RSRP:     DefaultRSRP,
				SINR:     DefaultSINR,
				RSRQ:     DefaultRSRQ,
				CellLoad: DefaultCellLoad,
			}
		}
		features[fmt.Sprintf("rsrp_%s", id)] = rf.RSRP
		features[fmt.Sprintf("sinr_%s", id)] = rf.SINR
		features[fmt.Sprintf("rsrq_%s", id)] = rf.RSRQ
		features[fmt.Sprintf("load_%s", id)] = rf.CellLoad
		if id == snap.ConnectedCellID {
			features[fmt.Sprintf("serving_%s", id)] = 1
		} else {
			features[fmt.Sprintf("serving_%s", id)] = 0
		}
	}

	// Serving-cell signal derivatives.
	serving := model.RFMetrics{RSRP: DefaultRSRP, SINR: DefaultSINR, RSRQ: DefaultRSRQ, CellLoad: DefaultCellLoad}
	if rf, ok := snap.RFMetrics[snap.ConnectedCellID]; ok {
		serving = rf
	}
	rsrpStd, sinrStd := e.signals.Update(snap.UEID, serving.RSRP, serving.SINR, serving.RSRQ)
	features["rsrp_stddev"] = rsrpStd
	features["sinr_stddev"] = sinrStd
	features["signal_trend"] = e.signals.Trend(snap.UEID, serving.RSRP, serving.SINR, serving.RSRQ)

	temporal := e.signals.TemporalFeatures(snap.UEID, serving.RSRP, serving.SINR)
	features["trend_acceleration"] = temporal.TrendAcceleration
	features["rsrp_ema_short"] = temporal.EMAShort
	features["rsrp_ema_long"] = temporal.EMALong
	features["rsrp_ema_divergence"] = temporal.EMADivergence

	mob := e.mobility.Update(snap.UEID, snap.Latitude, snap.Longitude, snap.Speed)
	features["heading_change_rate"] = mob.HeadingChangeRate
	features["path_curvature"] = mob.PathCurvature
	features["speed_delta"] = mob.Acceleration

	// QoS margins: positive means the requirement is currently met.
	features["latency_margin"] = 0
	features["throughput_margin"] = 0
	features["jitter_margin"] = 0
	features["loss_margin"] = 0
	if snap.QoSRequired != nil && snap.QoSObserved != nil {
		features["latency_margin"] = snap.QoSRequired.MaxLatencyMs - snap.QoSObserved.LatencyMs
		features["throughput_margin"] = snap.QoSObserved.ThroughputMbps - snap.QoSRequired.MinThroughputMbps
		features["jitter_margin"] = snap.QoSRequired.MaxJitterMs - snap.QoSObserved.JitterMs
		features["loss_margin"] = snap.QoSRequired.MaxPacketLoss - snap.QoSObserved.PacketLoss
	}

	return features
}

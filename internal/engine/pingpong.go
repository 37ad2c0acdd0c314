package engine

import (
	"time"

	"github.com/PanagiotisVasilakis/thesis-sub000/internal/domain/model"
	"github.com/PanagiotisVasilakis/thesis-sub000/internal/metrics"
)

// applyPingPongPrevention runs the oscillation checks against a proposed
// handover. Checks run in a fixed order and the first that fires wins;
// suppression keeps the UE on its connected cell with full confidence.
//
// Order: too many handovers in the last minute (overridable by high
// confidence), handover too soon after the previous one (never
// overridable), immediate return to a just-left cell (overridable by
// very high confidence).
func (e *Engine) applyPingPongPrevention(snap model.UESnapshot, now time.Time, decision *model.Decision) {
	cfg := e.cfg.PingPong
	target := decision.AntennaID

	if e.handovers.RecentHandoverCount(snap.UEID, now) >= cfg.MaxHandoversPerMinute &&
		decision.Confidence < cfg.ConfidenceBoost {
		e.suppress(snap, decision, model.SuppressionTooMany)
		return
	}

	if since, ok := e.handovers.TimeSinceLastHandover(snap.UEID, now); ok &&
		since < cfg.MinHandoverInterval {
		e.suppress(snap, decision, model.SuppressionTooRecent)
		return
	}

	if e.handovers.ImmediatePingPong(snap.UEID, target, now, cfg.Window) &&
		decision.Confidence < cfg.ImmediateReturnConfidence {
		e.suppress(snap, decision, model.SuppressionImmediateReturn)
		return
	}
}

func (e *Engine) suppress(snap model.UESnapshot, decision *model.Decision, reason model.SuppressionReason) {
	e.logger.Debug("handover suppressed",
		"ue_id", snap.UEID,
		"target", decision.AntennaID,
		"reason", string(reason),
	)
	metrics.PingPongSuppressions.WithLabelValues(string(reason)).Inc()

	decision.SuppressedAntennaID = decision.AntennaID
	decision.AntennaID = snap.ConnectedCellID
	decision.Confidence = 1.0
	decision.AntiPingPongApplied = true
	decision.SuppressionReason = reason
}

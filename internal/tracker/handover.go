package tracker

import (
	"time"

	"github.com/PanagiotisVasilakis/thesis-sub000/internal/cache"
)

const (
	// handoverHistoryCap is how many past handovers are kept per UE.
	handoverHistoryCap = 10

	// recentWindow is the sliding window for the handover-rate check.
	recentWindow = 60 * time.Second

	// immediateReturnLookback is how many preceding history entries are
	// inspected for an immediate return to a recently left cell.
	immediateReturnLookback = 4
)

// HandoverRecord is one completed handover.
type HandoverRecord struct {
	CellID string
	At     time.Time
}

type handoverState struct {
	prevCell string
	count    int
	recent   []time.Time      // timestamps inside recentWindow
	history  []HandoverRecord // capped at handoverHistoryCap, oldest first
}

// HandoverTracker records per-UE handover history and exposes the reads
// the ping-pong prevention checks need. All windows are computed against
// the caller-supplied event time, never the wall clock, so replayed or
// delayed snapshots are judged on their own timeline.
type HandoverTracker struct {
	ues *cache.TTLBoundedMap[string, *handoverState]
}

// NewHandoverTracker creates a tracker with the given capacity/TTL.
func NewHandoverTracker(cfg Config) (*HandoverTracker, error) {
	ues, err := cache.New[string, *handoverState](cfg.withDefaults().cacheConfig())
	if err != nil {
		return nil, err
	}
	return &HandoverTracker{ues: ues}, nil
}

func (t *HandoverTracker) state(ueID string) *handoverState {
	if s, ok := t.ues.Get(ueID); ok {
		return s
	}
	s := &handoverState{}
	t.ues.Set(ueID, s)
	return s
}

// Update records the cell the UE ended up on after this cycle's decision.
// connectedCell seeds the prior cell the first time a UE is seen, so a
// handover decided on the very first cycle is recorded like any other.
// A handover is counted only when the cell actually changed; calling
// twice with the same cell never double-counts. Returns the running
// handover count and the time since the previous handover (zero duration
// and false when the UE has no prior handover).
func (t *HandoverTracker) Update(ueID, connectedCell, currentCell string, ts time.Time) (count int, sinceLast time.Duration, hasPrior bool) {
	s := t.state(ueID)
	if s.prevCell == "" {
		s.prevCell = connectedCell
	}

	var prevAt time.Time
	if n := len(s.history); n > 0 {
		prevAt = s.history[n-1].At
	}

	if s.prevCell != "" && currentCell != "" && s.prevCell != currentCell {
		s.count++
		s.recent = append(s.recent, ts)
		s.pruneRecent(ts)

		s.history = append(s.history, HandoverRecord{CellID: currentCell, At: ts})
		if len(s.history) > handoverHistoryCap {
			s.history = s.history[len(s.history)-handoverHistoryCap:]
		}
	}
	if currentCell != "" {
		s.prevCell = currentCell
	}
	t.ues.Set(ueID, s) // refresh TTL

	if !prevAt.IsZero() {
		return s.count, ts.Sub(prevAt), true
	}
	return s.count, 0, false
}

// RecentHandoverCount counts handovers inside the sliding 60s window
// ending at now.
func (t *HandoverTracker) RecentHandoverCount(ueID string, now time.Time) int {
	s, ok := t.ues.Get(ueID)
	if !ok {
		return 0
	}
	s.pruneRecent(now)
	return len(s.recent)
}

// TimeSinceLastHandover returns how long ago the UE last handed over.
func (t *HandoverTracker) TimeSinceLastHandover(ueID string, now time.Time) (time.Duration, bool) {
	s, ok := t.ues.Get(ueID)
	if !ok || len(s.history) == 0 {
		return 0, false
	}
	return now.Sub(s.history[len(s.history)-1].At), true
}

// ImmediatePingPong reports whether targetCell appears among the few
// handovers preceding the current one within the lookback window: the UE
// would be returning to a cell it just left.
func (t *HandoverTracker) ImmediatePingPong(ueID, targetCell string, now time.Time, window time.Duration) bool {
	s, ok := t.ues.Get(ueID)
	if !ok {
		return false
	}
	// The newest entry is the handover onto the currently connected cell,
	// so scanning one extra entry inspects the 4 preceding it.
	start := len(s.history) - (immediateReturnLookback + 1)
	if start < 0 {
		start = 0
	}
	for _, rec := range s.history[start:] {
		if rec.CellID == targetCell && now.Sub(rec.At) <= window {
			return true
		}
	}
	return false
}

// History returns a copy of the UE's recorded handovers, oldest first.
func (t *HandoverTracker) History(ueID string) []HandoverRecord {
	s, ok := t.ues.Get(ueID)
	if !ok {
		return nil
	}
	out := make([]HandoverRecord, len(s.history))
	copy(out, s.history)
	return out
}

// Stats exposes the underlying map counters.
func (t *HandoverTracker) Stats() cache.Stats {
	return t.ues.Stats()
}

func (s *handoverState) pruneRecent(now time.Time) {
	cutoff := now.Add(-recentWindow)
	i := 0
	for i < len(s.recent) && s.recent[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		s.recent = append(s.recent[:0], s.recent[i:]...)
	}
}

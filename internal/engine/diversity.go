package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/PanagiotisVasilakis/thesis-sub000/internal/alert"
	"github.com/PanagiotisVasilakis/thesis-sub000/internal/domain/model"
	"github.com/PanagiotisVasilakis/thesis-sub000/internal/metrics"
)

const (
	// DefaultDiversityWindow is how many final decisions are retained.
	DefaultDiversityWindow = 100

	// DefaultDiversityEvalSize is the tail over which uniqueness is
	// evaluated once enough decisions accumulate.
	DefaultDiversityEvalSize = 50

	// DefaultMinUniqueRatio is the collapse threshold: fewer unique
	// antennas than this share of the evaluation tail raises a warning.
	DefaultMinUniqueRatio = 0.3
)

// DiversityMonitor watches the stream of final decisions for signs of
// model collapse (the classifier converging on a handful of antennas).
// It is strictly alert-only: it never changes a decision.
type DiversityMonitor struct {
	mu       sync.Mutex
	window   []string
	maxLen   int
	evalSize int
	minRatio float64
	warnings int64

	alerter alert.Alerter
	logger  *slog.Logger
}

// NewDiversityMonitor creates a monitor. alerter may be nil.
func NewDiversityMonitor(windowSize, evalSize int, minRatio float64, alerter alert.Alerter, logger *slog.Logger) *DiversityMonitor {
	if windowSize <= 0 {
		windowSize = DefaultDiversityWindow
	}
	if evalSize <= 0 || evalSize > windowSize {
		evalSize = DefaultDiversityEvalSize
	}
	if minRatio <= 0 {
		minRatio = DefaultMinUniqueRatio
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DiversityMonitor{
		window:   make([]string, 0, windowSize),
		maxLen:   windowSize,
		evalSize: evalSize,
		minRatio: minRatio,
		alerter:  alerter,
		logger:   logger.With("component", "diversity_monitor"),
	}
}

// Record appends a final decision and returns a warning when the recent
// unique-antenna ratio indicates collapse, nil otherwise.
func (m *DiversityMonitor) Record(ctx context.Context, antennaID string) *model.Warning {
	m.mu.Lock()
	m.window = append(m.window, antennaID)
	if len(m.window) > m.maxLen {
		m.window = m.window[len(m.window)-m.maxLen:]
	}
	if len(m.window) < m.evalSize {
		m.mu.Unlock()
		return nil
	}

	tail := m.window[len(m.window)-m.evalSize:]
	unique := make(map[string]struct{}, len(tail))
	for _, id := range tail {
		unique[id] = struct{}{}
	}
	ratio := float64(len(unique)) / float64(m.evalSize)
	if ratio >= m.minRatio {
		m.mu.Unlock()
		return nil
	}
	m.warnings++
	m.mu.Unlock()

	metrics.LowDiversityWarnings.Inc()
	m.logger.Warn("low prediction diversity",
		"unique", len(unique),
		"window", m.evalSize,
		"ratio", ratio,
	)

	if m.alerter != nil {
		a := alert.Alert{
			Type:    alert.TypeLowDiversity,
			Title:   "Low prediction diversity",
			Message: "recent decisions are concentrated on few antennas; possible model collapse",
			Fields: map[string]string{
				"unique_antennas": fmt.Sprintf("%d", len(unique)),
				"window":          fmt.Sprintf("%d", m.evalSize),
				"ratio":           fmt.Sprintf("%.3f", ratio),
			},
		}
		if err := m.alerter.Send(ctx, a); err != nil {
			m.logger.Warn("diversity alert failed", "error", err)
		}
	}

	return &model.Warning{
		Type:    model.WarningLowDiversity,
		Message: fmt.Sprintf("only %d unique antennas in last %d decisions (ratio %.2f)", len(unique), m.evalSize, ratio),
		Details: map[string]string{
			"unique_antennas": fmt.Sprintf("%d", len(unique)),
			"window":          fmt.Sprintf("%d", m.evalSize),
			"ratio":           fmt.Sprintf("%.3f", ratio),
		},
	}
}

// WarningCount returns how many warnings the monitor has raised.
func (m *DiversityMonitor) WarningCount() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.warnings
}

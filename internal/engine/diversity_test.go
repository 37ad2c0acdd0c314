package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PanagiotisVasilakis/thesis-sub000/internal/alert"
	"github.com/PanagiotisVasilakis/thesis-sub000/internal/domain/model"
)

type captureAlerter struct {
	mu     sync.Mutex
	alerts []alert.Alert
}

func (c *captureAlerter) Send(_ context.Context, a alert.Alert) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.alerts = append(c.alerts, a)
	return nil
}

func (c *captureAlerter) sent() []alert.Alert {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]alert.Alert, len(c.alerts))
	copy(out, c.alerts)
	return out
}

func TestDiversityMonitor_WarnsOnCollapse(t *testing.T) {
	capture := &captureAlerter{}
	m := NewDiversityMonitor(100, 50, 0.3, capture, nil)

	ctx := context.Background()
	var warning *model.Warning
	for i := 0; i < 50; i++ {
		warning = m.Record(ctx, "cell-a")
	}

	require.NotNil(t, warning)
	assert.Equal(t, model.WarningLowDiversity, warning.Type)
	assert.Equal(t, "1", warning.Details["unique_antennas"])
	assert.Equal(t, "50", warning.Details["window"])

	alerts := capture.sent()
	require.NotEmpty(t, alerts)
	assert.Equal(t, alert.TypeLowDiversity, alerts[len(alerts)-1].Type)
}

func TestDiversityMonitor_SilentBelowEvalSize(t *testing.T) {
	m := NewDiversityMonitor(100, 50, 0.3, nil, nil)

	ctx := context.Background()
	for i := 0; i < 49; i++ {
		assert.Nil(t, m.Record(ctx, "cell-a"))
	}
	assert.Zero(t, m.WarningCount())
}

func TestDiversityMonitor_HealthyDistribution(t *testing.T) {
	m := NewDiversityMonitor(100, 50, 0.3, nil, nil)

	// 25 distinct antennas over 50 decisions: ratio 0.5 >= 0.3.
	ctx := context.Background()
	for i := 0; i < 50; i++ {
		assert.Nil(t, m.Record(ctx, fmt.Sprintf("cell-%d", i%25)))
	}
	assert.Zero(t, m.WarningCount())
}

func TestDiversityMonitor_EvaluatesRecentTailOnly(t *testing.T) {
	m := NewDiversityMonitor(100, 50, 0.3, nil, nil)

	ctx := context.Background()
	// A diverse past does not mask a collapsed present.
	for i := 0; i < 50; i++ {
		m.Record(ctx, fmt.Sprintf("cell-%d", i))
	}

	var warning *model.Warning
	for i := 0; i < 50; i++ {
		warning = m.Record(ctx, "cell-collapse")
	}
	require.NotNil(t, warning)
	assert.Greater(t, m.WarningCount(), int64(0))
}

// Package alert delivers advisory notifications raised by the engine's
// alert-only monitors (prediction diversity, predictor health). Alerts
// never influence serving decisions.
package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/PanagiotisVasilakis/thesis-sub000/internal/metrics"
	"github.com/PanagiotisVasilakis/thesis-sub000/internal/retry"
)

// Type categorizes the kind of alert.
type Type string

const (
	TypeLowDiversity       Type = "LOW_DIVERSITY"
	TypePredictorUnhealthy Type = "PREDICTOR_UNHEALTHY"
	TypeRecovery           Type = "RECOVERY"
)

// Alert is a single alert event.
type Alert struct {
	Type    Type
	Title   string
	Message string
	Fields  map[string]string
}

// Alerter is the interface for sending alerts.
type Alerter interface {
	Send(ctx context.Context, alert Alert) error
}

// MultiAlerter fans out alerts to multiple channels with a per-type
// cooldown and a global rate limit.
type MultiAlerter struct {
	alerters []Alerter
	cooldown time.Duration
	limiter  *rate.Limiter
	logger   *slog.Logger

	mu       sync.Mutex
	lastSent map[Type]time.Time
}

// NewMultiAlerter creates a multi-channel alerter. maxPerMinute bounds
// total alert volume regardless of type.
func NewMultiAlerter(cooldown time.Duration, maxPerMinute int, logger *slog.Logger, alerters ...Alerter) *MultiAlerter {
	if logger == nil {
		logger = slog.Default()
	}
	if maxPerMinute <= 0 {
		maxPerMinute = 30
	}
	return &MultiAlerter{
		alerters: alerters,
		cooldown: cooldown,
		limiter:  rate.NewLimiter(rate.Limit(float64(maxPerMinute)/60.0), maxPerMinute),
		logger:   logger.With("component", "alerter"),
		lastSent: make(map[Type]time.Time),
	}
}

// Send dispatches the alert to all channels, respecting cooldown and the
// global rate limit.
func (m *MultiAlerter) Send(ctx context.Context, alert Alert) error {
	m.mu.Lock()
	if last, ok := m.lastSent[alert.Type]; ok && time.Since(last) < m.cooldown {
		m.mu.Unlock()
		m.logger.Debug("alert suppressed by cooldown", "type", alert.Type)
		for _, a := range m.alerters {
			metrics.AlertsCooldownSkipped.WithLabelValues(channelName(a), string(alert.Type)).Inc()
		}
		return nil
	}
	m.lastSent[alert.Type] = time.Now()
	m.mu.Unlock()

	if !m.limiter.Allow() {
		m.logger.Warn("alert dropped by rate limit", "type", alert.Type)
		return nil
	}

	var firstErr error
	for _, a := range m.alerters {
		if err := a.Send(ctx, alert); err != nil {
			m.logger.Warn("alert send failed",
				"channel", channelName(a),
				"type", alert.Type,
				"error", err,
			)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		metrics.AlertsSentTotal.WithLabelValues(channelName(a), string(alert.Type)).Inc()
	}
	return firstErr
}

func channelName(a Alerter) string {
	switch a.(type) {
	case *WebhookAlerter:
		return "webhook"
	case *LogAlerter:
		return "log"
	default:
		return "unknown"
	}
}

const (
	webhookAttempts  = 3
	webhookBaseDelay = 500 * time.Millisecond
)

// WebhookAlerter POSTs alerts as JSON to a configured endpoint.
// Transient delivery failures (timeouts, 5xx, 429) are retried with
// exponential backoff.
type WebhookAlerter struct {
	url    string
	client *http.Client
}

// NewWebhookAlerter creates a webhook alerter.
func NewWebhookAlerter(url string) *WebhookAlerter {
	return &WebhookAlerter{
		url:    url,
		client: &http.Client{Timeout: 5 * time.Second},
	}
}

type webhookPayload struct {
	Type    string            `json:"type"`
	Title   string            `json:"title"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
	SentAt  time.Time         `json:"sent_at"`
}

// Send delivers the alert to the webhook.
func (w *WebhookAlerter) Send(ctx context.Context, alert Alert) error {
	body, err := json.Marshal(webhookPayload{
		Type:    string(alert.Type),
		Title:   alert.Title,
		Message: alert.Message,
		Fields:  alert.Fields,
		SentAt:  time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}

	return retry.Do(ctx, webhookAttempts, webhookBaseDelay, func() error {
		return w.post(ctx, body)
	})
}

func (w *WebhookAlerter) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return retry.Terminal(fmt.Errorf("build alert request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("post alert: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		err := fmt.Errorf("alert webhook returned status %d", resp.StatusCode)
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return retry.Transient(err)
		}
		return retry.Terminal(err)
	}
	return nil
}

// LogAlerter writes alerts to the structured log. Used when no webhook
// is configured so alerts are never silently lost.
type LogAlerter struct {
	logger *slog.Logger
}

// NewLogAlerter creates a log-backed alerter.
func NewLogAlerter(logger *slog.Logger) *LogAlerter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogAlerter{logger: logger.With("component", "alert")}
}

// Send logs the alert at warning level.
func (l *LogAlerter) Send(_ context.Context, alert Alert) error {
	args := []any{"type", alert.Type, "title", alert.Title, "message", alert.Message}
	for k, v := range alert.Fields {
		args = append(args, k, v)
	}
	l.logger.Warn("alert", args...)
	return nil
}

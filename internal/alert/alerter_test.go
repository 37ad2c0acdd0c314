package alert

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureAlerter struct {
	sent atomic.Int64
}

func (c *captureAlerter) Send(context.Context, Alert) error {
	c.sent.Add(1)
	return nil
}

func TestMultiAlerter_CooldownSuppressesRepeats(t *testing.T) {
	capture := &captureAlerter{}
	m := NewMultiAlerter(time.Minute, 100, nil, capture)

	a := Alert{Type: TypeLowDiversity, Title: "low diversity"}
	require.NoError(t, m.Send(context.Background(), a))
	require.NoError(t, m.Send(context.Background(), a))

	assert.Equal(t, int64(1), capture.sent.Load(), "second alert inside cooldown must be dropped")
}

func TestMultiAlerter_DifferentTypesBypassCooldown(t *testing.T) {
	capture := &captureAlerter{}
	m := NewMultiAlerter(time.Minute, 100, nil, capture)

	require.NoError(t, m.Send(context.Background(), Alert{Type: TypeLowDiversity}))
	require.NoError(t, m.Send(context.Background(), Alert{Type: TypePredictorUnhealthy}))

	assert.Equal(t, int64(2), capture.sent.Load())
}

func TestWebhookAlerter_PostsJSON(t *testing.T) {
	var got webhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	w := NewWebhookAlerter(srv.URL)
	err := w.Send(context.Background(), Alert{
		Type:    TypeLowDiversity,
		Title:   "low diversity",
		Message: "unique ratio 0.02",
		Fields:  map[string]string{"ratio": "0.02"},
	})
	require.NoError(t, err)

	assert.Equal(t, string(TypeLowDiversity), got.Type)
	assert.Equal(t, "0.02", got.Fields["ratio"])
}

func TestWebhookAlerter_ClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	w := NewWebhookAlerter(srv.URL)
	assert.Error(t, w.Send(context.Background(), Alert{Type: TypeRecovery}))
	assert.Equal(t, int64(1), calls.Load(), "4xx responses are terminal")
}

func TestWebhookAlerter_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	w := NewWebhookAlerter(srv.URL)
	require.NoError(t, w.Send(context.Background(), Alert{Type: TypeRecovery}))
	assert.Equal(t, int64(3), calls.Load())
}

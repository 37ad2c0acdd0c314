package admin

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimit_TightEndpointExhausts(t *testing.T) {
	rl := NewRateLimitMiddleware(testLogger())
	defer rl.Stop()
	h := rl.Wrap(okHandler())

	// DELETE /api/v1/operations allows a burst of 3 per IP.
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodDelete, "/api/v1/operations/op-1", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, "request %d within burst", i)
	}

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/operations/op-1", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
}

func TestRateLimit_PerIPIsolation(t *testing.T) {
	rl := NewRateLimitMiddleware(testLogger())
	defer rl.Stop()
	h := rl.Wrap(okHandler())

	// Exhaust the burst for one IP.
	for i := 0; i < 4; i++ {
		req := httptest.NewRequest(http.MethodDelete, "/api/v1/operations/op-1", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		h.ServeHTTP(httptest.NewRecorder(), req)
	}

	// A different client is unaffected.
	req := httptest.NewRequest(http.MethodDelete, "/api/v1/operations/op-1", nil)
	req.RemoteAddr = "10.0.0.2:1234"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimit_DecidePathIsGenerous(t *testing.T) {
	rl := NewRateLimitMiddleware(testLogger())
	defer rl.Stop()
	h := rl.Wrap(okHandler())

	for i := 0; i < 100; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/decide", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, "decide request %d", i)
	}
}

func TestRateLimit_EvictsStaleEntries(t *testing.T) {
	rl := NewRateLimitMiddleware(testLogger())
	defer rl.Stop()
	h := rl.Wrap(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	h.ServeHTTP(httptest.NewRecorder(), req)
	require.Equal(t, 1, rl.LimiterCount())

	rl.nowFunc = func() time.Time { return time.Now().Add(staleLimiterTTL + time.Minute) }
	rl.evictStale()
	assert.Equal(t, 0, rl.LimiterCount())
}

func TestExtractClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.168.1.5:4321"
	assert.Equal(t, "192.168.1.5", extractClientIP(req))

	req.Header.Set("X-Real-IP", "203.0.113.9")
	assert.Equal(t, "203.0.113.9", extractClientIP(req))

	req.Header.Set("X-Forwarded-For", "198.51.100.1, 203.0.113.9")
	assert.Equal(t, "198.51.100.1", extractClientIP(req))
}

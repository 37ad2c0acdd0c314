package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func newTestMap(t *testing.T, maxSize int, ttl time.Duration) *TTLBoundedMap[string, int] {
	t.Helper()
	m, err := New[string, int](Config{MaxSize: maxSize, TTL: ttl})
	require.NoError(t, err)
	return m
}

func TestTTLBoundedMap_BasicGetSet(t *testing.T) {
	m := newTestMap(t, 10, 5*time.Minute)

	m.Set("a", 1)
	m.Set("b", 2)

	v, ok := m.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	v, ok = m.Get("b")
	require.True(t, ok)
	assert.Equal(t, 2, v)

	_, ok = m.Get("missing")
	assert.False(t, ok)
}

func TestTTLBoundedMap_LRUEviction(t *testing.T) {
	m := newTestMap(t, 2, 5*time.Minute)

	m.Set("a", 1)
	m.Set("b", 2)

	// Access "a" so "b" becomes least recently used.
	m.Get("a")

	m.Set("c", 3)

	_, ok := m.Get("b")
	assert.False(t, ok, "b should have been evicted")

	v, ok := m.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	assert.LessOrEqual(t, m.Len(), 2, "size must never exceed max_size")
}

func TestTTLBoundedMap_TTLExpiration(t *testing.T) {
	m := newTestMap(t, 10, time.Minute)

	now := time.Now()
	m.nowFn = func() time.Time { return now }

	m.Set("a", 1)

	_, ok := m.Get("a")
	assert.True(t, ok)

	// Logically absent past TTL even before any sweep ran.
	m.nowFn = func() time.Time { return now.Add(61 * time.Second) }
	_, ok = m.Get("a")
	assert.False(t, ok)

	stats := m.Stats()
	assert.Equal(t, int64(1), stats.TTLExpiries)
}

func TestTTLBoundedMap_SetRefreshesTTL(t *testing.T) {
	m := newTestMap(t, 10, time.Minute)

	now := time.Now()
	m.nowFn = func() time.Time { return now }
	m.Set("a", 1)

	now = now.Add(45 * time.Second)
	m.Set("a", 2)

	now = now.Add(30 * time.Second)
	v, ok := m.Get("a")
	require.True(t, ok, "rewrite should have reset entry age")
	assert.Equal(t, 2, v)
}

func TestTTLBoundedMap_Compact(t *testing.T) {
	m := newTestMap(t, 10, time.Minute)

	now := time.Now()
	m.nowFn = func() time.Time { return now }

	m.Set("a", 1)
	m.Set("b", 2)

	// 30s in: below the compact interval, so this Set sweeps nothing.
	now = now.Add(30 * time.Second)
	m.Set("c", 3)

	// 80s in: a and b are past the TTL, c is 50s old and still alive.
	now = now.Add(50 * time.Second)
	removed := m.Compact()
	assert.Equal(t, 2, removed)
	assert.Equal(t, 1, m.Len())

	v, ok := m.Get("c")
	require.True(t, ok)
	assert.Equal(t, 3, v)

	// Once the compact interval has passed, Set itself sweeps expired
	// entries opportunistically and leaves nothing for an explicit sweep.
	now = now.Add(70 * time.Second)
	m.Set("d", 4)
	assert.Equal(t, 1, m.Len(), "expired entry swept by Set")
	assert.Equal(t, 0, m.Compact())
}

func TestTTLBoundedMap_MemoryPressureEviction(t *testing.T) {
	m, err := New[string, int](Config{
		MaxSize:               100,
		TTL:                   time.Hour,
		MemoryLimitBytes:      1, // always exceeded by the fake probe
		PressureEvictFraction: 0.2,
	})
	require.NoError(t, err)

	now := time.Now()
	m.nowFn = func() time.Time { return now }
	m.heapInUseFn = func() uint64 { return 1 << 30 }

	for i := 0; i < 10; i++ {
		m.Set(string(rune('a'+i)), i)
		now = now.Add(time.Second)
	}

	// Force a probe window and trigger the backstop with one more write.
	m.memProbe = rate.NewLimiter(rate.Inf, 1)
	m.Set("z", 99)

	// 20% of 10 entries dropped oldest-first: "a" and "b" gone.
	_, ok := m.Get("a")
	assert.False(t, ok)
	_, ok = m.Get("b")
	assert.False(t, ok)
	_, ok = m.Get("j")
	assert.True(t, ok)
}

func TestTTLBoundedMap_Stats(t *testing.T) {
	m := newTestMap(t, 2, time.Minute)

	m.Set("a", 1)
	m.Get("a")    // hit
	m.Get("a")    // hit
	m.Get("miss") // miss

	m.Set("b", 2)
	m.Set("c", 3) // evicts "a"

	stats := m.Stats()
	assert.Equal(t, 2, stats.Size)
	assert.Equal(t, int64(2), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(1), stats.Evictions)
	assert.InDelta(t, 2.0/3.0, stats.HitRate, 1e-9)
}

func TestTTLBoundedMap_InvalidConfig(t *testing.T) {
	_, err := New[string, int](Config{MaxSize: 0, TTL: time.Minute})
	assert.Error(t, err)

	_, err = New[string, int](Config{MaxSize: 10, TTL: -time.Second})
	assert.Error(t, err)

	_, err = New[string, int](Config{MaxSize: 10, TTL: time.Minute, PressureEvictFraction: 1.5})
	assert.Error(t, err)
}

func TestTTLBoundedMap_Delete(t *testing.T) {
	m := newTestMap(t, 10, time.Minute)

	m.Set("a", 1)
	m.Delete("a")

	_, ok := m.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 0, m.Len())
}

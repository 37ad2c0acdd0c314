package cache

import (
	"container/list"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultCompactInterval bounds how often expired entries are swept.
	DefaultCompactInterval = 60 * time.Second

	// DefaultPressureEvictFraction is the share of entries dropped when
	// the memory ceiling is exceeded.
	DefaultPressureEvictFraction = 0.20

	memProbeInterval = 5 * time.Second
)

// Config configures a TTLBoundedMap.
type Config struct {
	MaxSize int           // hard capacity; LRU eviction beyond this
	TTL     time.Duration // entry age after which it is logically absent

	CompactInterval time.Duration // expired-entry sweep cadence (default 60s)

	// MemoryLimitBytes enables emergency eviction: when the process heap
	// exceeds this ceiling, PressureEvictFraction of entries are dropped
	// oldest-first regardless of TTL. Zero disables the check.
	MemoryLimitBytes      uint64
	PressureEvictFraction float64
}

func (c Config) validate() error {
	if c.MaxSize <= 0 {
		return fmt.Errorf("cache: max size must be positive, got %d", c.MaxSize)
	}
	if c.TTL <= 0 {
		return fmt.Errorf("cache: ttl must be positive, got %s", c.TTL)
	}
	if c.PressureEvictFraction < 0 || c.PressureEvictFraction >= 1 {
		return fmt.Errorf("cache: pressure evict fraction must be in [0,1), got %f", c.PressureEvictFraction)
	}
	return nil
}

// Stats is a point-in-time snapshot of map counters.
type Stats struct {
	Size        int
	Hits        int64
	Misses      int64
	Evictions   int64
	TTLExpiries int64
	HitRate     float64
}

// TTLBoundedMap is a generic capacity- and time-bounded map with LRU
// eviction. An entry is logically absent once its age exceeds the TTL,
// even if it has not yet been physically purged; physical removal happens
// lazily on Get and in periodic Compact sweeps.
type TTLBoundedMap[K comparable, V any] struct {
	mu    sync.Mutex
	cfg   Config
	items map[K]*list.Element
	order *list.List // front = most recently used
	nowFn func() time.Time

	heapInUseFn func() uint64
	memProbe    *rate.Limiter
	lastCompact time.Time

	hits        int64
	misses      int64
	evictions   int64
	ttlExpiries int64
}

type entry[K comparable, V any] struct {
	key         K
	value       V
	createdAt   time.Time
	accessCount int64
}

// New creates a TTLBoundedMap. Fails fast on an invalid configuration.
func New[K comparable, V any](cfg Config) (*TTLBoundedMap[K, V], error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.CompactInterval <= 0 {
		cfg.CompactInterval = DefaultCompactInterval
	}
	if cfg.MemoryLimitBytes > 0 && cfg.PressureEvictFraction == 0 {
		cfg.PressureEvictFraction = DefaultPressureEvictFraction
	}
	m := &TTLBoundedMap[K, V]{
		cfg:         cfg,
		items:       make(map[K]*list.Element, cfg.MaxSize),
		order:       list.New(),
		nowFn:       time.Now,
		heapInUseFn: heapInUse,
		memProbe:    rate.NewLimiter(rate.Every(memProbeInterval), 1),
	}
	m.lastCompact = m.nowFn()
	return m, nil
}

// MustNew is New for statically known-good configurations.
func MustNew[K comparable, V any](cfg Config) *TTLBoundedMap[K, V] {
	m, err := New[K, V](cfg)
	if err != nil {
		panic(err)
	}
	return m
}

// Get retrieves a value. Returns the zero value and false when the key is
// absent or its entry has outlived the TTL. A hit marks the entry most
// recently used and bumps its access count.
func (m *TTLBoundedMap[K, V]) Get(key K) (V, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	elem, ok := m.items[key]
	if !ok {
		m.misses++
		var zero V
		return zero, false
	}

	e := elem.Value.(*entry[K, V])
	if m.expired(e) {
		m.removeElement(elem)
		m.ttlExpiries++
		m.misses++
		var zero V
		return zero, false
	}

	m.order.MoveToFront(elem)
	e.accessCount++
	m.hits++
	return e.value, true
}

// Set inserts or replaces a value, refreshing its TTL. Inserting beyond
// capacity evicts the least-recently-used entry.
func (m *TTLBoundedMap[K, V]) Set(key K, value V) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.nowFn()
	if now.Sub(m.lastCompact) >= m.cfg.CompactInterval {
		m.compactLocked(now)
		m.lastCompact = now
	}
	m.checkMemoryPressureLocked()

	if elem, ok := m.items[key]; ok {
		m.order.MoveToFront(elem)
		e := elem.Value.(*entry[K, V])
		e.value = value
		e.createdAt = now
		return
	}

	if m.order.Len() >= m.cfg.MaxSize {
		m.evictLRULocked()
	}

	elem := m.order.PushFront(&entry[K, V]{
		key:       key,
		value:     value,
		createdAt: now,
	})
	m.items[key] = elem
}

// Delete removes a key if present.
func (m *TTLBoundedMap[K, V]) Delete(key K) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if elem, ok := m.items[key]; ok {
		m.removeElement(elem)
	}
}

// Len returns the number of physically present entries, expired included.
func (m *TTLBoundedMap[K, V]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.order.Len()
}

// Compact removes every TTL-expired entry now.
func (m *TTLBoundedMap[K, V]) Compact() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.nowFn()
	removed := m.compactLocked(now)
	m.lastCompact = now
	return removed
}

// Stats returns a snapshot of the map counters.
func (m *TTLBoundedMap[K, V]) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := Stats{
		Size:        m.order.Len(),
		Hits:        m.hits,
		Misses:      m.misses,
		Evictions:   m.evictions,
		TTLExpiries: m.ttlExpiries,
	}
	if total := s.Hits + s.Misses; total > 0 {
		s.HitRate = float64(s.Hits) / float64(total)
	}
	return s
}

func (m *TTLBoundedMap[K, V]) expired(e *entry[K, V]) bool {
	return m.nowFn().Sub(e.createdAt) > m.cfg.TTL
}

func (m *TTLBoundedMap[K, V]) compactLocked(now time.Time) int {
	removed := 0
	for elem := m.order.Back(); elem != nil; {
		prev := elem.Prev()
		e := elem.Value.(*entry[K, V])
		if now.Sub(e.createdAt) > m.cfg.TTL {
			m.removeElement(elem)
			m.ttlExpiries++
			removed++
		}
		elem = prev
	}
	return removed
}

// checkMemoryPressureLocked drops the configured fraction of entries
// oldest-first when the heap exceeds the ceiling. This is an emergency
// backstop; routine bounding is capacity + TTL.
func (m *TTLBoundedMap[K, V]) checkMemoryPressureLocked() {
	if m.cfg.MemoryLimitBytes == 0 || !m.memProbe.Allow() {
		return
	}
	if m.heapInUseFn() <= m.cfg.MemoryLimitBytes {
		return
	}

	target := int(float64(m.order.Len()) * m.cfg.PressureEvictFraction)
	if target == 0 && m.order.Len() > 0 {
		target = 1
	}

	entries := make([]*list.Element, 0, m.order.Len())
	for elem := m.order.Front(); elem != nil; elem = elem.Next() {
		entries = append(entries, elem)
	}
	sort.Slice(entries, func(i, j int) bool {
		ei := entries[i].Value.(*entry[K, V])
		ej := entries[j].Value.(*entry[K, V])
		return ei.createdAt.Before(ej.createdAt)
	})
	for i := 0; i < target && i < len(entries); i++ {
		m.removeElement(entries[i])
		m.evictions++
	}
}

func (m *TTLBoundedMap[K, V]) evictLRULocked() {
	elem := m.order.Back()
	if elem == nil {
		return
	}
	m.removeElement(elem)
	m.evictions++
}

func (m *TTLBoundedMap[K, V]) removeElement(elem *list.Element) {
	m.order.Remove(elem)
	e := elem.Value.(*entry[K, V])
	delete(m.items, e.key)
}

func heapInUse() uint64 {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return ms.HeapInuse
}

package cache

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/pauljones0/skuwatch/internal/models"
)

// Memory is an in-process cache.
type Memory struct {
	mu       sync.RWMutex
	entries  map[string]models.CacheEntry
	lifetime time.Duration
	now      func() time.Time
}

func NewMemory(lifetime time.Duration) *Memory {
	return &Memory{
		entries:  make(map[string]models.CacheEntry),
		lifetime: lifetime,
		now:      time.Now,
	}
}

// WithClock replaces the time source, for tests.
func (m *Memory) WithClock(now func() time.Time) *Memory {
	m.now = now
	return m
}

func (m *Memory) Get(_ context.Context, key string) (models.CacheEntry, bool, error) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok || !e.Fresh(m.now(), m.lifetime) {
		return models.CacheEntry{}, false, nil
	}
	return e, true, nil
}

func (m *Memory) Put(_ context.Context, key string, vs models.VariantSet) error {
	m.mu.Lock()
	m.entries[key] = models.CacheEntry{Key: key, Variants: vs, FetchedAt: m.now()}
	m.mu.Unlock()
	return nil
}

func (m *Memory) EvictOlderThan(_ context.Context, lifetime time.Duration) (int, error) {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	evicted := 0
	for k, e := range m.entries {
		if !e.Fresh(now, lifetime) {
			delete(m.entries, k)
			evicted++
		}
	}
	return evicted, nil
}

// Len returns the number of entries, expired ones included.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Run evicts expired entries every interval until ctx is cancelled. A
// non-positive interval disables the loop.
func (m *Memory) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		slog.Warn("Cache sweep loop disabled", "interval", interval)
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, _ := m.EvictOlderThan(ctx, m.lifetime); n > 0 {
				slog.Debug("Evicted expired cache entries", "count", n)
			}
		}
	}
}

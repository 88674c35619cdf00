package cache

import (
	"context"
	"sync"
	"time"

	"github.com/voltadata/metricsync/internal/model"
	"github.com/voltadata/metricsync/internal/store"
)

// Memory is an in-process cache for development and tests. Same sliding
// expiry behavior as the Redis backend.
type Memory struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

type memoryEntry struct {
	metrics   model.DailyMetrics
	expiresAt time.Time
}

// NewMemory creates an in-process cache with the configured TTL.
func NewMemory(cfg Config) *Memory {
	return &Memory{
		entries: make(map[string]memoryEntry),
		ttl:     time.Duration(cfg.ttlDays()) * 24 * time.Hour,
		now:     time.Now,
	}
}

func (m *Memory) Set(ctx context.Context, date string, dm *model.DailyMetrics) error {
	if _, err := model.ParseDay(date); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[date] = memoryEntry{metrics: *dm, expiresAt: m.now().Add(m.ttl)}
	return nil
}

func (m *Memory) Get(ctx context.Context, date string) (*model.DailyMetrics, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[date]
	if !ok {
		return nil, nil
	}
	if m.now().After(e.expiresAt) {
		delete(m.entries, date)
		return nil, nil
	}
	e.expiresAt = m.now().Add(m.ttl)
	m.entries[date] = e

	out := e.metrics
	return &out, nil
}

func (m *Memory) SyncFromStore(ctx context.Context, st store.Store, days int) (int, error) {
	return syncFromStore(ctx, st, days, m.Set)
}

// Len reports live entries, expiring stale ones as a side effect.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for date, e := range m.entries {
		if now.After(e.expiresAt) {
			delete(m.entries, date)
		}
	}
	return len(m.entries)
}

func (m *Memory) Close() error {
	return nil
}

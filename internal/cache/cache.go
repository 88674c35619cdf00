// Package cache keeps recent daily metrics in a fast lookup layer so
// dashboard reads skip the store. The cache is an optimization only:
// every value in it is reconstructible from the store.
package cache

import (
	"context"

	"github.com/voltadata/metricsync/internal/model"
	"github.com/voltadata/metricsync/internal/store"
)

// Cache stores daily metrics by date. Lookups return (nil, nil) on a
// miss. Implementations decide their own expiry policy from Config.
type Cache interface {
	Set(ctx context.Context, date string, m *model.DailyMetrics) error
	Get(ctx context.Context, date string) (*model.DailyMetrics, error)

	// SyncFromStore loads the most recent days from the store into the
	// cache and returns how many entries were written.
	SyncFromStore(ctx context.Context, st store.Store, days int) (int, error)

	Close() error
}

// Config selects and tunes the cache backend.
type Config struct {
	// URL is a redis:// connection string. Empty disables caching.
	URL       string `yaml:"url" mapstructure:"url"`
	KeyPrefix string `yaml:"key_prefix" mapstructure:"key_prefix"`
	TTLDays   int    `yaml:"ttl_days" mapstructure:"ttl_days"`
}

const (
	defaultKeyPrefix = "metricsync:daily:"
	defaultTTLDays   = 14
)

func (c Config) keyPrefix() string {
	if c.KeyPrefix == "" {
		return defaultKeyPrefix
	}
	return c.KeyPrefix
}

func (c Config) ttlDays() int {
	if c.TTLDays <= 0 {
		return defaultTTLDays
	}
	return c.TTLDays
}

// New builds a cache from config: Redis when a URL is set, otherwise
// the no-op cache.
func New(cfg Config) (Cache, error) {
	if cfg.URL == "" {
		return Noop{}, nil
	}
	return NewRedis(cfg)
}

// syncFromStore is the shared SyncFromStore body: it walks the latest
// days present in the store, newest first, and writes each into the
// given setter.
func syncFromStore(ctx context.Context, st store.Store, days int, set func(ctx context.Context, date string, m *model.DailyMetrics) error) (int, error) {
	latest, err := st.GetLatest(ctx)
	if err != nil {
		return 0, err
	}
	if latest == nil {
		return 0, nil
	}

	start, err := model.AddDays(latest.Date, -(days - 1))
	if err != nil {
		return 0, err
	}
	metrics, err := st.GetRange(ctx, start, latest.Date)
	if err != nil {
		return 0, err
	}

	written := 0
	for i := range metrics {
		m := metrics[i]
		if err := set(ctx, m.Date, &m); err != nil {
			return written, err
		}
		written++
	}
	return written, nil
}

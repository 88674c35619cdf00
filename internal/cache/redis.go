package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"

	"github.com/voltadata/metricsync/internal/model"
	"github.com/voltadata/metricsync/internal/store"
)

// Redis caches daily metrics as JSON values with a sliding TTL: reads
// refresh the expiry, so dates dashboards keep asking for stay warm.
type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedis connects to the Redis at cfg.URL and verifies it responds.
func NewRedis(cfg Config) (*Redis, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, eris.Wrap(err, "cache: parse redis url")
	}
	client := redis.NewClient(opts)
	if err := client.Ping(context.Background()).Err(); err != nil {
		client.Close()
		return nil, eris.Wrap(err, "cache: ping redis")
	}
	return &Redis{
		client: client,
		prefix: cfg.keyPrefix(),
		ttl:    time.Duration(cfg.ttlDays()) * 24 * time.Hour,
	}, nil
}

func (r *Redis) key(date string) string {
	return r.prefix + date
}

func (r *Redis) Set(ctx context.Context, date string, m *model.DailyMetrics) error {
	if _, err := model.ParseDay(date); err != nil {
		return err
	}
	data, err := json.Marshal(m)
	if err != nil {
		return eris.Wrapf(err, "cache: marshal metrics %s", date)
	}
	if err := r.client.Set(ctx, r.key(date), data, r.ttl).Err(); err != nil {
		return eris.Wrapf(err, "cache: set %s", date)
	}
	return nil
}

func (r *Redis) Get(ctx context.Context, date string) (*model.DailyMetrics, error) {
	data, err := r.client.Get(ctx, r.key(date)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "cache: get %s", date)
	}

	var m model.DailyMetrics
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, eris.Wrapf(err, "cache: unmarshal %s", date)
	}

	// Sliding expiry: a hit keeps the entry alive another full TTL.
	if err := r.client.Expire(ctx, r.key(date), r.ttl).Err(); err != nil {
		return nil, eris.Wrapf(err, "cache: refresh ttl %s", date)
	}
	return &m, nil
}

func (r *Redis) SyncFromStore(ctx context.Context, st store.Store, days int) (int, error) {
	return syncFromStore(ctx, st, days, r.Set)
}

func (r *Redis) Close() error {
	return r.client.Close()
}

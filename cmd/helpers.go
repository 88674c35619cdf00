package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rotisserie/eris"

	"github.com/voltadata/metricsync/internal/analytics"
	"github.com/voltadata/metricsync/internal/cache"
	"github.com/voltadata/metricsync/internal/extract"
	"github.com/voltadata/metricsync/internal/ratelimit"
	"github.com/voltadata/metricsync/internal/resilience"
	"github.com/voltadata/metricsync/internal/store"
)

// openStore opens the configured store without running migrations.
// Commands that write call ensureMigrated first.
func openStore(ctx context.Context) (store.Store, error) {
	return store.Open(ctx, cfg.Store.DatabaseURL, &cfg.Store.Pool)
}

func ensureMigrated(ctx context.Context, st store.Store) error {
	return st.Migrate(ctx)
}

// buildClient assembles the throttled analytics client. Reports come
// from the fixture directory when one is configured; a live backend
// connection additionally needs a property id.
func buildClient() (analytics.Client, error) {
	var inner analytics.Client
	switch {
	case cfg.Analytics.FixtureDir != "":
		replay, err := analytics.NewReplay(cfg.Analytics.FixtureDir)
		if err != nil {
			return nil, err
		}
		inner = replay
	default:
		return nil, eris.New("no analytics source configured: set analytics.fixture_dir")
	}

	limiter := ratelimit.New(ratelimit.Config{MaxPerSecond: cfg.Analytics.RateLimitRPS})
	retry := resilience.FromValues(
		cfg.Analytics.Retry.MaxAttempts,
		cfg.Analytics.Retry.BaseDelayMs,
		cfg.Analytics.Retry.MaxDelayMs,
		cfg.Analytics.Retry.Multiplier,
		cfg.Analytics.Retry.JitterFraction,
	)
	return analytics.NewThrottled(inner, limiter, retry), nil
}

func buildRegistry(client analytics.Client) *extract.Registry {
	return extract.NewRegistry(client, cfg.Extractors.DelayOverrides)
}

func buildCache() (cache.Cache, error) {
	return cache.New(cfg.Cache)
}

// printJSON writes the command result as indented JSON to stdout.
func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return eris.Wrap(err, "marshal output")
	}
	fmt.Println(string(data))
	return nil
}

// commandTimeout bounds long-running commands so a wedged upstream
// cannot hang a cron invocation forever.
const commandTimeout = 2 * time.Hour

func commandContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, commandTimeout)
}

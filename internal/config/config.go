// Package config loads application configuration from config.yaml and
// METRICSYNC_* environment variables, and initializes the global logger.
package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/voltadata/metricsync/internal/cache"
	"github.com/voltadata/metricsync/internal/store"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Analytics  AnalyticsConfig  `yaml:"analytics" mapstructure:"analytics"`
	Extractors ExtractorsConfig `yaml:"extractors" mapstructure:"extractors"`
	Cache      cache.Config     `yaml:"cache" mapstructure:"cache"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend. DatabaseURL accepts a
// postgres:// URL or a SQLite file path.
type StoreConfig struct {
	DatabaseURL string           `yaml:"database_url" mapstructure:"database_url"`
	Pool        store.PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// AnalyticsConfig configures the upstream analytics connection and the
// client-side throttling applied to it.
type AnalyticsConfig struct {
	PropertyID string `yaml:"property_id" mapstructure:"property_id"`

	// FixtureDir serves reports from recorded JSON files instead of a
	// live backend. Used for local development and replaying exports.
	FixtureDir string `yaml:"fixture_dir" mapstructure:"fixture_dir"`

	RateLimitRPS int         `yaml:"rate_limit_rps" mapstructure:"rate_limit_rps"`
	Retry        RetryConfig `yaml:"retry" mapstructure:"retry"`
}

// RetryConfig tunes the retry policy for upstream report calls.
type RetryConfig struct {
	MaxAttempts    int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	BaseDelayMs    int     `yaml:"base_delay_ms" mapstructure:"base_delay_ms"`
	MaxDelayMs     int     `yaml:"max_delay_ms" mapstructure:"max_delay_ms"`
	Multiplier     float64 `yaml:"multiplier" mapstructure:"multiplier"`
	JitterFraction float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
}

// ExtractorsConfig tunes individual extractors.
type ExtractorsConfig struct {
	// DelayOverrides remaps an extractor's completeness window by
	// name, in days.
	DelayOverrides map[string]int `yaml:"delay_overrides" mapstructure:"delay_overrides"`
}

// LogConfig controls logging output.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads config.yaml (optional) and environment variables.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("METRICSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.database_url", "metricsync.db")
	v.SetDefault("analytics.rate_limit_rps", 9)
	v.SetDefault("analytics.retry.max_attempts", 3)
	v.SetDefault("analytics.retry.base_delay_ms", 2000)
	v.SetDefault("analytics.retry.max_delay_ms", 60000)
	v.SetDefault("analytics.retry.multiplier", 2.0)
	v.SetDefault("analytics.retry.jitter_fraction", 0.25)
	v.SetDefault("cache.ttl_days", 14)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}
	return &cfg, nil
}

// InitLogger configures the global zap logger from LogConfig.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}

// Package config loads process-wide configuration from environment
// variables. Chain and namespace data never lives here — only the
// process knobs that are not part of the ledger itself.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds process configuration.
type Config struct {
	LogLevel string

	WALDir             string
	WALSegmentMaxBytes int64

	PromotionTTL time.Duration

	DefaultQueryDeadline time.Duration

	RegistrySearchPath string
}

// Load loads configuration from environment variables, falling back to
// safe defaults when unset.
func Load() *Config {
	return &Config{
		LogLevel:             envOr("LOG_LEVEL", "INFO"),
		WALDir:               envOr("DECISIONGRAPH_WAL_DIR", "./data/wal"),
		WALSegmentMaxBytes:   envInt64Or("DECISIONGRAPH_WAL_SEGMENT_MAX_BYTES", 64*1024*1024),
		PromotionTTL:         envDurationOr("DECISIONGRAPH_PROMOTION_TTL", 72*time.Hour),
		DefaultQueryDeadline: envDurationOr("DECISIONGRAPH_QUERY_DEADLINE", 5*time.Second),
		RegistrySearchPath:   envOr("DECISIONGRAPH_REGISTRY_PATH", "./registries"),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt64Or(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

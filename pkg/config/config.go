// Package config loads the core's environment-variable configuration.
// Deliberately dependency-free: spec.md §6 names exactly three variables,
// which doesn't warrant a flags/viper layer (see DESIGN.md). The option-
// struct style mirrors the teacher's sqlite.EventStoreOption / nats.Config
// constructors even though there is no CLI surface to route here.
package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config is the fully-resolved process configuration.
type Config struct {
	// UsePersistentStores selects SQLite + NATS JetStream backends when
	// true, or the in-memory backends when false.
	UsePersistentStores bool

	// DatabaseURL is the SQLite DSN. Required when UsePersistentStores.
	DatabaseURL string

	// StreamURL is the durable event-bus URL (spec.md's "Redis URL or
	// equivalent stream service URL" — this core uses NATS JetStream).
	StreamURL string
}

const (
	envUsePersistentStores = "USE_PERSISTENT_STORES"
	envDatabaseURL         = "DATABASE_URL"
	envStreamURL           = "REDIS_URL"

	defaultStreamURL = "nats://localhost:4222"
)

// Load reads Config from the process environment, applying spec.md §6's
// defaults and validation.
func Load() (Config, error) {
	cfg := Config{StreamURL: defaultStreamURL}

	if raw := os.Getenv(envUsePersistentStores); raw != "" {
		use, err := strconv.ParseBool(raw)
		if err != nil {
			return Config{}, fmt.Errorf("%s: invalid bool %q: %w", envUsePersistentStores, raw, err)
		}
		cfg.UsePersistentStores = use
	}

	cfg.DatabaseURL = os.Getenv(envDatabaseURL)
	if cfg.UsePersistentStores && cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("%s is required when %s=true", envDatabaseURL, envUsePersistentStores)
	}

	if raw := os.Getenv(envStreamURL); raw != "" {
		cfg.StreamURL = raw
	}

	return cfg, nil
}

// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all configuration for the worker and the ops API.
type Config struct {
	App struct {
		Env      string `envconfig:"APP_ENV" default:"development"`
		LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	}

	DB struct {
		URL      string `envconfig:"DATABASE_URL" required:"true"`
		MaxConns int32  `envconfig:"DB_MAX_CONNS" default:"25"`
		MinConns int32  `envconfig:"DB_MIN_CONNS" default:"5"`
	}

	Pipeline struct {
		// SeedSearchCode names the stored search producing candidate
		// order ids. Required before a run can start; the runner fails
		// fast when it is absent.
		SeedSearchCode string `envconfig:"SEED_SEARCH_CODE"`

		// ReversalAccountID is the financial account posted on inventory
		// reversals. Its absence is fatal per reversal invocation, not at
		// job start, so it is not marked required here.
		ReversalAccountID string `envconfig:"REVERSAL_ACCOUNT_ID"`

		// TaxChannel designates the sales channel whose lines get the
		// best-effort tax reallocation (case-insensitive substring match).
		TaxChannel string `envconfig:"TAX_CHANNEL" default:"marketplace"`

		MapConcurrency    int `envconfig:"MAP_CONCURRENCY" default:"4"`
		ReduceConcurrency int `envconfig:"REDUCE_CONCURRENCY" default:"4"`

		// Interval, when positive, makes the worker re-run the pipeline
		// on a ticker instead of exiting after one pass.
		Interval time.Duration `envconfig:"PIPELINE_INTERVAL" default:"0"`
	}

	HTTP struct {
		Port      int    `envconfig:"APP_PORT" default:"8080"`
		JWTSecret string `envconfig:"JWT_SECRET" default:"change-me-in-production"`
	}
}

// Load reads configuration from the environment.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("process config: %w", err)
	}
	return &cfg, nil
}

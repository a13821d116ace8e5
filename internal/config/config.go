// Package config loads the process configuration from SAFEWATCH_ prefixed
// environment variables and validates it before any service is wired up.
package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/gabapcia/safewatch/internal/pkg/validator"
)

// envPrefix is prepended (upper-cased) to every variable name below.
const envPrefix = "safewatch"

// Config is the full runtime configuration. Field names map to environment
// variables through the prefix and the split words rule, so ChainID is read
// from SAFEWATCH_CHAIN_ID.
type Config struct {
	// LogLevel is the minimum level of the global logger.
	LogLevel string `split_words:"true" default:"info"`

	// ServiceName identifies this process in telemetry resources.
	ServiceName string `split_words:"true" default:"safewatch"`

	// ChainID selects the chain whose wallets are indexed. It feeds the
	// EIP-712 digest computation of post-1.3.0 wallets.
	ChainID int64 `split_words:"true" validate:"required,min=1"`

	// RPCEndpoint is the JSON-RPC node used for transaction trace lookups.
	// The node must expose the trace_transaction method.
	RPCEndpoint string `split_words:"true" validate:"required,url"`

	// PostgresDSN points at the database holding wallet state, the decoded
	// call queue and the master copy registry.
	PostgresDSN string `split_words:"true" validate:"required"`

	// Redis connection for the wallet denylist.
	RedisAddress  string `split_words:"true" validate:"required,hostname_port"`
	RedisUsername string `split_words:"true"`
	RedisPassword string `split_words:"true"`
	RedisDB       int    `split_words:"true" validate:"min=0"`

	// BatchSize bounds how many pending decoded calls one replay batch takes.
	BatchSize int `split_words:"true" default:"500" validate:"min=1"`

	// PollInterval is how long the pipeline sleeps after draining the queue.
	PollInterval time.Duration `split_words:"true" default:"5s"`

	// GasFloor is the traced gas consumption below which a call is treated as
	// proxy fallback noise and skipped.
	GasFloor uint64 `split_words:"true" default:"1000"`
}

// Load reads the configuration from the environment.
//
// Returns:
//   - Config: the populated configuration
//   - error: an envconfig parse failure, or validator.ErrValidationFailed
//     when a required or malformed value is found
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return Config{}, err
	}

	if err := validator.Validate(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Package config loads process configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// State store backends.
const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

type Config struct {
	Port   string `env:"PORT" envDefault:"8080"`
	DBPath string `env:"DB_PATH" envDefault:"games.db"`

	StateBackend string        `env:"STATE_BACKEND" envDefault:"sqlite"`
	RedisAddr    string        `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisTTL     time.Duration `env:"REDIS_STATE_TTL" envDefault:"24h"`
	StoreTimeout time.Duration `env:"STORE_TIMEOUT" envDefault:"3s"`

	AITurnDelay  time.Duration `env:"AI_TURN_DELAY" envDefault:"700ms"`
	AIRetryDelay time.Duration `env:"AI_RETRY_DELAY" envDefault:"2s"`

	QuestionDuration time.Duration `env:"QUESTION_DURATION" envDefault:"20s"`
	QuestionCount    int           `env:"QUESTION_COUNT" envDefault:"10"`
	QuestionCacheTTL time.Duration `env:"QUESTION_CACHE_TTL" envDefault:"10m"`

	LockIdleTTL       time.Duration `env:"LOCK_IDLE_TTL" envDefault:"10m"`
	LockPruneInterval time.Duration `env:"LOCK_PRUNE_INTERVAL" envDefault:"1m"`

	WSMessageRate  float64 `env:"WS_MESSAGE_RATE" envDefault:"20"`
	WSMessageBurst int     `env:"WS_MESSAGE_BURST" envDefault:"40"`

	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"console"`
}

// Load parses the environment and validates the result.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.StateBackend {
	case BackendSQLite, BackendRedis, BackendMemory:
	default:
		return fmt.Errorf("unknown STATE_BACKEND %q", c.StateBackend)
	}
	if c.StoreTimeout <= 0 {
		return fmt.Errorf("STORE_TIMEOUT must be positive")
	}
	if c.QuestionCount <= 0 {
		return fmt.Errorf("QUESTION_COUNT must be positive")
	}
	return nil
}

// Addr is the listen address for the HTTP server.
func (c Config) Addr() string {
	return ":" + c.Port
}

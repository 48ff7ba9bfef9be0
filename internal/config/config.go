package config

import (
	"fmt"
	"time"

	"github.com/Netflix/go-env"
)

// Config holds settings shared by the CLI and the relay. Credentials are
// optional here; each entrypoint decides whether it needs them.
type Config struct {
	AppToken       string        `env:"PUSHOVER_APP_TOKEN"`
	UserKey        string        `env:"PUSHOVER_USER_KEY"`
	Endpoint       string        `env:"PUSHOVER_ENDPOINT,default=https://api.pushover.net/1/messages.json"`
	RequestTimeout time.Duration `env:"PULLOVER_REQUEST_TIMEOUT,default=3s"`
	RetryInterval  time.Duration `env:"PULLOVER_RETRY_INTERVAL,default=5s"`
	MaxTries       int           `env:"PULLOVER_MAX_TRIES,default=5"`
	APIPort        int           `env:"API_PORT,default=8080"`
	LogLevel       string        `env:"LOG_LEVEL,default=warn"`

	// Relay quota; disabled when RelayRedisURL is empty.
	RelayRedisURL    string        `env:"RELAY_REDIS_URL"`
	RelayQuotaLimit  int           `env:"RELAY_QUOTA_LIMIT,default=60"`
	RelayQuotaWindow time.Duration `env:"RELAY_QUOTA_WINDOW,default=1m"`
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.MaxTries < 1 {
		return nil, fmt.Errorf("failed to load config: PULLOVER_MAX_TRIES must be >= 1, got %d", cfg.MaxTries)
	}
	if cfg.RelayQuotaLimit < 1 {
		return nil, fmt.Errorf("failed to load config: RELAY_QUOTA_LIMIT must be >= 1, got %d", cfg.RelayQuotaLimit)
	}
	return &cfg, nil
}

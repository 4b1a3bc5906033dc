package config

import (
	"fmt"
	"time"

	"github.com/Netflix/go-env"
	"github.com/hydrex-protocol/bribe-batcher/internal/domain"
)

type Config struct {
	DatabaseDSN    string `env:"DATABASE_DSN,required=true"`
	DBMaxOpenConns int    `env:"DB_MAX_OPEN_CONNS,default=25"`
	DBMaxIdleConns int    `env:"DB_MAX_IDLE_CONNS,default=5"`
	RabbitMQURL    string `env:"RABBITMQ_URL,required=true"`
	RedisURL       string `env:"REDIS_URL,required=true"`
	CustodyURL     string `env:"CUSTODY_URL,required=true"`
	SinkURL        string `env:"SINK_URL,required=true"`
	JWTSecret      string `env:"JWT_SECRET,required=true"`

	// EpochOrigin is the RFC3339 timestamp epoch 0 starts at. Every replica
	// must agree on it; the default length is one week.
	EpochOrigin             string `env:"EPOCH_ORIGIN,required=true"`
	EpochLengthSeconds      int    `env:"EPOCH_LENGTH_SECONDS,default=604800"`
	ExecutorIntervalSeconds int    `env:"EXECUTOR_INTERVAL_SECONDS,default=60"`

	APIPort  int    `env:"API_PORT,default=8080"`
	LogLevel string `env:"LOG_LEVEL,default=info"`
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// EpochClock builds the epoch clock from the configured origin and length.
func (c *Config) EpochClock() (domain.EpochClock, error) {
	origin, err := time.Parse(time.RFC3339, c.EpochOrigin)
	if err != nil {
		return domain.EpochClock{}, fmt.Errorf("EPOCH_ORIGIN must be RFC3339: %w", err)
	}
	return domain.NewEpochClock(origin, time.Duration(c.EpochLengthSeconds)*time.Second)
}

func (c *Config) ExecutorInterval() time.Duration {
	return time.Duration(c.ExecutorIntervalSeconds) * time.Second
}

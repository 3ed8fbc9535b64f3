package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

type Config struct {
	AppEnv    string `env:"APP_ENV" default:"development"`
	Port      string `env:"PORT" default:"8080"`
	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"text"`

	// Heartbeat tuning. A connection idle for longer than
	// HeartbeatMissedThreshold gets a liveness probe; one that stays silent
	// for HeartbeatGraceWindow after the probe is evicted.
	HeartbeatInterval        time.Duration `env:"HEARTBEAT_INTERVAL" default:"30s"`
	HeartbeatMissedThreshold time.Duration `env:"HEARTBEAT_MISSED_THRESHOLD" default:"90s"`
	HeartbeatGraceWindow     time.Duration `env:"HEARTBEAT_GRACE_WINDOW" default:"30s"`

	// SendTimeout bounds a single frame write so a stalled client cannot
	// stall a broadcast batch.
	SendTimeout time.Duration `env:"SEND_TIMEOUT" default:"5s"`

	MaxClientsPerPond       int `env:"MAX_CLIENTS_PER_POND" default:"50"`
	MaxWebSocketConnections int `env:"MAX_WEBSOCKET_CONNECTIONS" default:"10000"`

	EventQueueSize int `env:"EVENT_QUEUE_SIZE" default:"256"`

	WSRateLimit float64 `env:"WS_RATE_LIMIT" default:"5"`
	WSRateBurst int     `env:"WS_RATE_BURST" default:"10"`

	EventIngestSecret string `env:"EVENT_INGEST_SECRET"`

	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" default:"10s"`
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	if cfg.EventIngestSecret == "" {
		return fmt.Errorf("EVENT_INGEST_SECRET is required")
	}
	if len(cfg.EventIngestSecret) < 10 || len(cfg.EventIngestSecret) > 100 {
		return fmt.Errorf("EVENT_INGEST_SECRET must be between 10 and 100 characters")
	}

	positive := map[string]time.Duration{
		"HEARTBEAT_INTERVAL":         cfg.HeartbeatInterval,
		"HEARTBEAT_MISSED_THRESHOLD": cfg.HeartbeatMissedThreshold,
		"HEARTBEAT_GRACE_WINDOW":     cfg.HeartbeatGraceWindow,
		"SEND_TIMEOUT":               cfg.SendTimeout,
		"SHUTDOWN_TIMEOUT":           cfg.ShutdownTimeout,
	}
	for name, value := range positive {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}

	if cfg.MaxClientsPerPond <= 0 {
		return fmt.Errorf("MAX_CLIENTS_PER_POND must be positive")
	}
	if cfg.MaxWebSocketConnections <= 0 {
		return fmt.Errorf("MAX_WEBSOCKET_CONNECTIONS must be positive")
	}
	if cfg.EventQueueSize <= 0 {
		return fmt.Errorf("EVENT_QUEUE_SIZE must be positive")
	}

	return nil
}

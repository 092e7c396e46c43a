// internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/jason-s-yu/arena/internal/engine"
	"github.com/jason-s-yu/arena/internal/game"
	"github.com/jason-s-yu/arena/internal/lobby"
	"github.com/jason-s-yu/arena/internal/tournament"
	"github.com/sirupsen/logrus"
)

// History backends.
const (
	HistoryPostgres = "postgres"
	HistoryRedis    = "redis"
)

// Config is read from the process environment. cmd binaries import
// godotenv/autoload so a local .env file is honoured as well.
type Config struct {
	Port     int    `env:"ARENA_PORT" envDefault:"8080"`
	LogLevel string `env:"ARENA_LOG_LEVEL" envDefault:"info"`

	DatabaseURL string `env:"DATABASE_URL"`
	RedisAddr   string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisDB     int    `env:"REDIS_DB" envDefault:"0"`

	HistoryBackend string `env:"ARENA_HISTORY_BACKEND" envDefault:"postgres"`
	HistoryQueue   string `env:"ARENA_HISTORY_QUEUE" envDefault:"arena_matches"`

	QueueScanInterval time.Duration `env:"ARENA_QUEUE_SCAN_INTERVAL" envDefault:"3s"`
	LobbyCountdown    int           `env:"ARENA_LOBBY_COUNTDOWN" envDefault:"60"`
	LobbyTick         time.Duration `env:"ARENA_LOBBY_TICK" envDefault:"1s"`
	TickRate          int           `env:"ARENA_TICK_RATE" envDefault:"60"`
	RoomGrace         time.Duration `env:"ARENA_ROOM_GRACE" envDefault:"10s"`
	TournamentGrace   time.Duration `env:"ARENA_TOURNAMENT_GRACE" envDefault:"30s"`
	PongMaxScore      int           `env:"ARENA_PONG_MAX_SCORE" envDefault:"5"`

	MessageRate  float64 `env:"ARENA_MESSAGE_RATE" envDefault:"60"`
	MessageBurst int     `env:"ARENA_MESSAGE_BURST" envDefault:"120"`

	TokenPublicKey  string `env:"ARENA_TOKEN_PUBLIC_KEY"`
	TokenPrivateKey string `env:"ARENA_TOKEN_PRIVATE_KEY"`

	HistorianBatchSize int `env:"HISTORIAN_BATCH_SIZE" envDefault:"20"`
	HistorianFlushMs   int `env:"HISTORIAN_FLUSH_MS" envDefault:"500"`
}

// Load parses the environment and validates the result.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate rejects values the engine cannot run with.
func (c Config) Validate() error {
	switch {
	case c.Port <= 0 || c.Port > 65535:
		return fmt.Errorf("ARENA_PORT %d out of range", c.Port)
	case c.HistoryBackend != HistoryPostgres && c.HistoryBackend != HistoryRedis:
		return fmt.Errorf("ARENA_HISTORY_BACKEND must be %q or %q, got %q", HistoryPostgres, HistoryRedis, c.HistoryBackend)
	case c.QueueScanInterval <= 0:
		return fmt.Errorf("ARENA_QUEUE_SCAN_INTERVAL must be positive")
	case c.LobbyCountdown <= 0 || c.LobbyTick <= 0:
		return fmt.Errorf("lobby countdown and tick must be positive")
	case c.TickRate <= 0:
		return fmt.Errorf("ARENA_TICK_RATE must be positive")
	case c.PongMaxScore <= 0:
		return fmt.Errorf("ARENA_PONG_MAX_SCORE must be positive")
	case c.HistorianBatchSize <= 0:
		return fmt.Errorf("HISTORIAN_BATCH_SIZE must be positive")
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("ARENA_LOG_LEVEL: %w", err)
	}
	return nil
}

// Level returns the configured log level, defaulting to info.
func (c Config) Level() logrus.Level {
	lvl, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}

// Addr is the listen address of the HTTP server.
func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// HistorianFlush is the historian's idle wait between batches.
func (c Config) HistorianFlush() time.Duration {
	return time.Duration(c.HistorianFlushMs) * time.Millisecond
}

// Engine maps the environment onto the engine's component timings.
func (c Config) Engine() engine.Config {
	rooms := game.DefaultSettings
	rooms.TickRate = c.TickRate
	rooms.Grace = c.RoomGrace
	rooms.PongMaxScore = c.PongMaxScore

	cfg := engine.DefaultConfig
	cfg.QueueScanInterval = c.QueueScanInterval
	cfg.Lobby = lobby.Config{Countdown: c.LobbyCountdown, TickInterval: c.LobbyTick}
	cfg.Tournament = tournament.Config{Grace: c.TournamentGrace}
	cfg.Rooms = rooms
	cfg.MessageRate = c.MessageRate
	cfg.MessageBurst = c.MessageBurst
	return cfg
}

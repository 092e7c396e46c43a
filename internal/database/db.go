// internal/database/db.go
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
)

// Schema creates the tables the stores read and write. Accounts are owned by
// the account service; only the columns used here are declared.
const Schema = `
CREATE TABLE IF NOT EXISTS users (
	id       UUID PRIMARY KEY,
	username TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS matches (
	id            UUID PRIMARY KEY,
	game_type     TEXT NOT NULL,
	tournament_id UUID,
	winner_id     UUID,
	reason        TEXT NOT NULL DEFAULT '',
	ended_at      TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS match_players (
	match_id  UUID NOT NULL REFERENCES matches (id) ON DELETE CASCADE,
	player_id UUID NOT NULL,
	slot      SMALLINT NOT NULL,
	score     INT NOT NULL DEFAULT 0,
	did_win   BOOLEAN NOT NULL DEFAULT FALSE,
	PRIMARY KEY (match_id, player_id)
);
`

// Connect opens a pool on the given DSN and pings it.
func Connect(ctx context.Context, dsn string, logger *logrus.Logger) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to parse pgx config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create pgx pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}

	logger.Infof("connected to database at %s:%d/%s", config.ConnConfig.Host, config.ConnConfig.Port, config.ConnConfig.Database)
	return pool, nil
}

// Migrate applies Schema.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

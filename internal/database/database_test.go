// internal/database/database_test.go
package database

import (
	"context"
	"io"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jason-s-yu/arena/internal/models"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testPool connects to ARENA_TEST_DATABASE_URL, skipping when it is unset.
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("ARENA_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("ARENA_TEST_DATABASE_URL not set")
	}
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	ctx := context.Background()
	pool, err := Connect(ctx, dsn, logger)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, Migrate(ctx, pool))
	return pool
}

func TestFindPlayer(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	store := NewUserStore(pool)

	id := uuid.New()
	_, err := pool.Exec(ctx, `INSERT INTO users (id, username) VALUES ($1, $2)`, id, "ada")
	require.NoError(t, err)

	p, err := store.FindPlayer(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.Player{ID: id, Username: "ada"}, p)

	_, err = store.FindPlayer(ctx, uuid.New())
	assert.ErrorIs(t, err, models.ErrEntityNotFound)
}

func TestRecordMatches(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	store := NewMatchStore(pool)

	a, b := uuid.New(), uuid.New()
	rec := models.MatchRecord{
		MatchID:  uuid.New(),
		GameType: models.GamePong,
		Players:  []uuid.UUID{a, b},
		Winner:   b,
		Score:    [2]int{3, 5},
		Reason:   "score",
		EndedAt:  time.Now().UTC(),
	}
	require.NoError(t, store.RecordMatch(ctx, rec))
	require.NoError(t, store.RecordMatch(ctx, rec), "recording twice is idempotent")

	var winner uuid.UUID
	var tournament *uuid.UUID
	err := pool.QueryRow(ctx, `SELECT winner_id, tournament_id FROM matches WHERE id=$1`, rec.MatchID).Scan(&winner, &tournament)
	require.NoError(t, err)
	assert.Equal(t, b, winner)
	assert.Nil(t, tournament)

	var rows, wins int
	err = pool.QueryRow(ctx,
		`SELECT count(*), count(*) FILTER (WHERE did_win) FROM match_players WHERE match_id=$1`, rec.MatchID,
	).Scan(&rows, &wins)
	require.NoError(t, err)
	assert.Equal(t, 2, rows)
	assert.Equal(t, 1, wins)
}

func TestNullable(t *testing.T) {
	assert.False(t, nullable(uuid.Nil).Valid)
	id := uuid.New()
	assert.Equal(t, uuid.NullUUID{UUID: id, Valid: true}, nullable(id))
}

// internal/database/user.go
package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jason-s-yu/arena/internal/models"
)

// UserStore resolves player identities.
type UserStore struct {
	db *pgxpool.Pool
}

// NewUserStore returns a store backed by pool.
func NewUserStore(pool *pgxpool.Pool) *UserStore {
	return &UserStore{db: pool}
}

// FindPlayer loads the player with the given ID.
func (s *UserStore) FindPlayer(ctx context.Context, id uuid.UUID) (models.Player, error) {
	var p models.Player
	q := `SELECT id, username FROM users WHERE id=$1`
	err := s.db.QueryRow(ctx, q, id).Scan(&p.ID, &p.Username)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Player{}, fmt.Errorf("user %s: %w", id, models.ErrEntityNotFound)
	}
	if err != nil {
		return models.Player{}, fmt.Errorf("query user %s: %w", id, err)
	}
	return p, nil
}

// internal/database/match.go
package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jason-s-yu/arena/internal/models"
)

// MatchStore persists finished matches.
type MatchStore struct {
	db *pgxpool.Pool
}

// NewMatchStore returns a store backed by pool.
func NewMatchStore(pool *pgxpool.Pool) *MatchStore {
	return &MatchStore{db: pool}
}

// RecordMatch stores one finished match.
func (s *MatchStore) RecordMatch(ctx context.Context, rec models.MatchRecord) error {
	return s.RecordMatches(ctx, []models.MatchRecord{rec})
}

// RecordMatches stores a batch of finished matches in a single transaction.
// Re-recording a match overwrites the earlier row.
func (s *MatchStore) RecordMatches(ctx context.Context, recs []models.MatchRecord) error {
	if len(recs) == 0 {
		return nil
	}
	err := pgx.BeginTxFunc(ctx, s.db, pgx.TxOptions{}, func(tx pgx.Tx) error {
		for _, rec := range recs {
			if err := insertMatchTx(ctx, tx, rec); err != nil {
				return fmt.Errorf("match %s: %w", rec.MatchID, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("tx record matches: %w", err)
	}
	return nil
}

func insertMatchTx(ctx context.Context, tx pgx.Tx, rec models.MatchRecord) error {
	upsertMatch := `
		INSERT INTO matches (id, game_type, tournament_id, winner_id, reason, ended_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE
		SET winner_id = EXCLUDED.winner_id, reason = EXCLUDED.reason, ended_at = EXCLUDED.ended_at
	`
	_, err := tx.Exec(ctx, upsertMatch,
		rec.MatchID, string(rec.GameType), nullable(rec.TournamentID), nullable(rec.Winner), rec.Reason, rec.EndedAt,
	)
	if err != nil {
		return err
	}

	upsertPlayer := `
		INSERT INTO match_players (match_id, player_id, slot, score, did_win)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (match_id, player_id)
		DO UPDATE SET score=$4, did_win=$5
	`
	for slot, pid := range rec.Players {
		score := 0
		if slot < len(rec.Score) {
			score = rec.Score[slot]
		}
		if _, err := tx.Exec(ctx, upsertPlayer, rec.MatchID, pid, slot, score, pid == rec.Winner); err != nil {
			return err
		}
	}
	return nil
}

func nullable(id uuid.UUID) uuid.NullUUID {
	return uuid.NullUUID{UUID: id, Valid: id != uuid.Nil}
}

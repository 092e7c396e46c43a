// internal/tournament/tournament.go
package tournament

import (
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/arena/internal/models"
)

// Status is the tournament lifecycle state.
type Status string

const (
	StatusWaiting    Status = "waiting"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// Tournament is a bracket of matches played one at a time by the players of
// a converted lobby. Fields are guarded by the Scheduler lock.
type Tournament struct {
	ID           uuid.UUID
	GameType     models.GameType
	Format       Format
	Players      []models.Player
	Matches      []*Match
	CurrentMatch uuid.UUID
	Status       Status
	Winner       uuid.UUID
	Ranking      []Placement
	CreatedAt    time.Time
	EndedAt      time.Time

	removal *time.Timer
}

func (t *Tournament) active() bool {
	return t.Status == StatusWaiting || t.Status == StatusInProgress
}

func (t *Tournament) player(id uuid.UUID) models.Player {
	for _, p := range t.Players {
		if p.ID == id {
			return p
		}
	}
	return models.Player{ID: id}
}

func (t *Tournament) match(id uuid.UUID) *Match {
	for _, m := range t.Matches {
		if m.ID == id {
			return m
		}
	}
	return nil
}

func (t *Tournament) playerIDs() []uuid.UUID {
	return models.PlayerIDs(t.Players)
}

// spectators are the players not taking part in the current match.
func (t *Tournament) spectators() []uuid.UUID {
	cur := t.match(t.CurrentMatch)
	out := make([]uuid.UUID, 0, len(t.Players))
	for _, p := range t.Players {
		if cur != nil && cur.Has(p.ID) {
			continue
		}
		out = append(out, p.ID)
	}
	return out
}

// Snapshot is a read-only copy of a tournament.
type Snapshot struct {
	ID           uuid.UUID
	GameType     models.GameType
	Format       Format
	Status       Status
	Players      []models.Player
	Matches      []Match
	CurrentMatch uuid.UUID
	Winner       uuid.UUID
	Ranking      []Placement
}

func (t *Tournament) snapshot() Snapshot {
	matches := make([]Match, len(t.Matches))
	for i, m := range t.Matches {
		matches[i] = *m
	}
	return Snapshot{
		ID:           t.ID,
		GameType:     t.GameType,
		Format:       t.Format,
		Status:       t.Status,
		Players:      append([]models.Player(nil), t.Players...),
		Matches:      matches,
		CurrentMatch: t.CurrentMatch,
		Winner:       t.Winner,
		Ranking:      append([]Placement(nil), t.Ranking...),
	}
}

func nullable(id uuid.UUID) uuid.NullUUID {
	return uuid.NullUUID{UUID: id, Valid: id != uuid.Nil}
}

// StartingPayload announces a new tournament to its players.
type StartingPayload struct {
	TournamentID uuid.UUID       `json:"tournamentId"`
	GameType     models.GameType `json:"gameType"`
	Format       Format          `json:"format"`
	Players      []models.Player `json:"players"`
}

// MatchView is the wire form of a bracket match.
type MatchView struct {
	ID      uuid.UUID     `json:"id"`
	Round   int           `json:"round"`
	Index   int           `json:"index"`
	Player1 uuid.NullUUID `json:"player1"`
	Player2 uuid.NullUUID `json:"player2"`
	Winner  uuid.NullUUID `json:"winner"`
	Status  MatchStatus   `json:"status"`
	Bye     bool          `json:"bye"`
}

// BracketPayload is the full bracket state.
type BracketPayload struct {
	TournamentID uuid.UUID     `json:"tournamentId"`
	Status       Status        `json:"status"`
	CurrentMatch uuid.NullUUID `json:"currentMatch"`
	Matches      []MatchView   `json:"matches"`
	Spectators   []uuid.UUID   `json:"spectators"`
}

func (t *Tournament) bracketPayload() BracketPayload {
	views := make([]MatchView, len(t.Matches))
	for i, m := range t.Matches {
		views[i] = MatchView{
			ID:      m.ID,
			Round:   m.Round,
			Index:   m.Index,
			Player1: nullable(m.Player1),
			Player2: nullable(m.Player2),
			Winner:  nullable(m.Winner),
			Status:  m.Status,
			Bye:     m.Bye,
		}
	}
	return BracketPayload{
		TournamentID: t.ID,
		Status:       t.Status,
		CurrentMatch: nullable(t.CurrentMatch),
		Matches:      views,
		Spectators:   t.spectators(),
	}
}

// MatchStartingPayload tells every tournament member which match is up next.
type MatchStartingPayload struct {
	TournamentID uuid.UUID     `json:"tournamentId"`
	MatchID      uuid.UUID     `json:"matchId"`
	RoomID       uuid.UUID     `json:"roomId"`
	Round        int           `json:"round"`
	Player1      models.Player `json:"player1"`
	Player2      models.Player `json:"player2"`
}

// MatchEndedPayload reports a finished or bye-resolved match.
type MatchEndedPayload struct {
	TournamentID uuid.UUID     `json:"tournamentId"`
	MatchID      uuid.UUID     `json:"matchId"`
	Winner       uuid.NullUUID `json:"winner"`
	Bye          bool          `json:"bye"`
}

// RankView is one ranking line.
type RankView struct {
	PlayerID uuid.UUID `json:"playerId"`
	Username string    `json:"username"`
	Rank     int       `json:"rank"`
}

// EndedPayload announces the tournament winner and final ranking.
type EndedPayload struct {
	TournamentID uuid.UUID     `json:"tournamentId"`
	Winner       models.Player `json:"winner"`
	Ranking      []RankView    `json:"ranking"`
}

// CancelledPayload reports a voided tournament.
type CancelledPayload struct {
	TournamentID uuid.UUID `json:"tournamentId"`
	Reason       string    `json:"reason"`
}

func (t *Tournament) endedPayload() EndedPayload {
	ranking := make([]RankView, len(t.Ranking))
	for i, pl := range t.Ranking {
		p := t.player(pl.PlayerID)
		ranking[i] = RankView{PlayerID: p.ID, Username: p.Username, Rank: pl.Rank}
	}
	return EndedPayload{TournamentID: t.ID, Winner: t.player(t.Winner), Ranking: ranking}
}

func matchEnded(t *Tournament, m *Match) models.Event {
	return models.Event{Type: models.OutTournamentMatchEnded, Payload: MatchEndedPayload{
		TournamentID: t.ID,
		MatchID:      m.ID,
		Winner:       nullable(m.Winner),
		Bye:          m.Bye,
	}}
}

// internal/lobby/lobby.go
package lobby

import (
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/arena/internal/matchmaking"
	"github.com/jason-s-yu/arena/internal/models"
)

const (
	MaxPlayers = 8
	MinPlayers = 2
)

// Lobby is a transient group of queued players counting down to a tournament.
// Its fields are guarded by the owning Manager's lock.
type Lobby struct {
	ID        uuid.UUID
	GameType  models.GameType
	Entries   []matchmaking.Entry
	Countdown int
	CreatedAt time.Time

	stop chan struct{}
}

// Snapshot is a copy of a lobby's membership, safe to use after the lock is released.
type Snapshot struct {
	ID        uuid.UUID
	GameType  models.GameType
	Players   []models.Player
	Countdown int
}

// Players returns the lobby members in join order.
func (l *Lobby) Players() []models.Player {
	out := make([]models.Player, 0, len(l.Entries))
	for _, e := range l.Entries {
		out = append(out, e.Player)
	}
	return out
}

func (l *Lobby) has(id uuid.UUID) bool {
	for _, e := range l.Entries {
		if e.Player.ID == id {
			return true
		}
	}
	return false
}

func (l *Lobby) remove(id uuid.UUID) bool {
	for i, e := range l.Entries {
		if e.Player.ID == id {
			l.Entries = append(l.Entries[:i], l.Entries[i+1:]...)
			return true
		}
	}
	return false
}

func (l *Lobby) snapshot() Snapshot {
	return Snapshot{ID: l.ID, GameType: l.GameType, Players: l.Players(), Countdown: l.Countdown}
}

// RosterPayload is broadcast for lobby-created and lobby-updated.
type RosterPayload struct {
	LobbyID   uuid.UUID       `json:"lobbyId"`
	GameType  models.GameType `json:"gameType"`
	Players   []models.Player `json:"players"`
	Countdown int             `json:"countdown"`
}

// CountdownPayload is broadcast once per countdown tick.
type CountdownPayload struct {
	LobbyID   uuid.UUID `json:"lobbyId"`
	Countdown int       `json:"countdown"`
}

// CancelledPayload is broadcast when a lobby is dissolved without a tournament.
type CancelledPayload struct {
	LobbyID uuid.UUID `json:"lobbyId"`
	Reason  string    `json:"reason"`
}

func (l *Lobby) rosterPayload() RosterPayload {
	return RosterPayload{LobbyID: l.ID, GameType: l.GameType, Players: l.Players(), Countdown: l.Countdown}
}

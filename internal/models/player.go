// internal/models/player.go
package models

import "github.com/google/uuid"

// Player is the identity of a connected user. Components hold players by value and
// refer to them by ID; the live connection lives only in the registry.
type Player struct {
	ID       uuid.UUID `json:"id"`
	Username string    `json:"username"`
}

// GameType selects the simulation kernel a match runs on.
type GameType string

const (
	GamePong  GameType = "PONG"
	GameShoot GameType = "SHOOT"
)

// GameTypes lists every playable game type in a stable order.
var GameTypes = []GameType{GamePong, GameShoot}

// Valid reports whether t names a known game type.
func (t GameType) Valid() bool {
	switch t {
	case GamePong, GameShoot:
		return true
	}
	return false
}

// PlayerIDs extracts the IDs of the given players, preserving order.
func PlayerIDs(players []Player) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(players))
	for _, p := range players {
		ids = append(ids, p.ID)
	}
	return ids
}

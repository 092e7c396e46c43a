// internal/game/player_config.go
package game

import (
	"fmt"
	"regexp"

	"github.com/google/uuid"
	"github.com/jason-s-yu/arena/internal/models"
)

var colorPattern = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

var defaultColors = [2]string{"#4da6ff", "#ff4d4d"}

// PlayerConfig is a participant's pre-match selection.
type PlayerConfig struct {
	Color string  `json:"color"`
	Speed float64 `json:"speed,omitempty"`
	MapID string  `json:"mapId,omitempty"`
	Ready bool    `json:"ready"`
}

func defaultConfig(t models.GameType, slot int) PlayerConfig {
	c := PlayerConfig{Color: defaultColors[slot]}
	if t == models.GamePong {
		c.Speed = DefaultPaddleSpeed
	}
	return c
}

// ConfigUpdate is the body of a player-config message. Absent fields are left unchanged.
type ConfigUpdate struct {
	RoomID uuid.UUID `json:"roomId"`
	Color  *string   `json:"color,omitempty"`
	Speed  *float64  `json:"speed,omitempty"`
	MapID  *string   `json:"mapId,omitempty"`
	Ready  *bool     `json:"ready,omitempty"`
}

// apply validates u against the game type and merges it into c.
func (c *PlayerConfig) apply(t models.GameType, u ConfigUpdate) error {
	next := *c
	if u.Color != nil {
		if !colorPattern.MatchString(*u.Color) {
			return fmt.Errorf("color %q: %w", *u.Color, models.ErrAccessDenied)
		}
		next.Color = *u.Color
	}
	if u.Speed != nil {
		if t != models.GamePong {
			return fmt.Errorf("speed is a %s option: %w", models.GamePong, models.ErrAccessDenied)
		}
		next.Speed = clamp(*u.Speed, MinPaddleSpeed, MaxPaddleSpeed)
	}
	if u.MapID != nil {
		if t != models.GameShoot {
			return fmt.Errorf("map is a %s option: %w", models.GameShoot, models.ErrAccessDenied)
		}
		if _, ok := Maps[*u.MapID]; !ok {
			return fmt.Errorf("map %q: %w", *u.MapID, models.ErrEntityNotFound)
		}
		next.MapID = *u.MapID
	}
	if u.Ready != nil {
		next.Ready = *u.Ready
	}
	*c = next
	return nil
}

// ConfigEntry is one line of a config-update payload.
type ConfigEntry struct {
	PlayerID uuid.UUID `json:"playerId"`
	PlayerConfig
}

// ConfigUpdatePayload is broadcast whenever a participant changes config or readiness.
type ConfigUpdatePayload struct {
	RoomID  uuid.UUID     `json:"roomId"`
	Configs []ConfigEntry `json:"configs"`
}

// MatchConfigPayload routes a participant to the config step.
type MatchConfigPayload struct {
	RoomID       uuid.UUID        `json:"roomId"`
	GameType     models.GameType  `json:"gameType"`
	TournamentID uuid.NullUUID    `json:"tournamentId"`
	Players      [2]models.Player `json:"players"`
	You          PlayerConfig     `json:"you"`
	Maps         []string         `json:"maps,omitempty"`
}

// SpectatorPayload routes an observer to the spectator view.
type SpectatorPayload struct {
	RoomID   uuid.UUID        `json:"roomId"`
	GameType models.GameType  `json:"gameType"`
	Players  [2]models.Player `json:"players"`
}

// GameEndedPayload carries a match's final outcome.
type GameEndedPayload struct {
	RoomID     uuid.UUID     `json:"roomId"`
	Winner     uuid.NullUUID `json:"winner"`
	FinalScore Score         `json:"finalScore"`
	Reason     string        `json:"reason"`
}

// InGamePayload is a full room snapshot, sent on start and on reconnect.
type InGamePayload struct {
	RoomID   uuid.UUID        `json:"roomId"`
	GameType models.GameType  `json:"gameType"`
	Status   Status           `json:"status"`
	Players  [2]models.Player `json:"players"`
	State    interface{}      `json:"state,omitempty"`
}

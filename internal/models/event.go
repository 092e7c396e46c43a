// internal/models/event.go
package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventType names a message exchanged with clients.
type EventType string

// Inbound event types.
const (
	InRegisterQueue    EventType = "register-queue"
	InUnregisterQueue  EventType = "unregister-queue"
	InPlayerConfig     EventType = "player-config"
	InPaddleMove       EventType = "paddle-move"
	InPlayerAction     EventType = "player-action"
	InReadyUser        EventType = "ready-user"
	InCancelReadyUser  EventType = "cancel-ready-user"
	InSpectateGame     EventType = "spectate-game"
	InChallengePlayer  EventType = "challenge-player"
	InAcceptChallenge  EventType = "accept-challenge"
	InDeclineChallenge EventType = "decline-challenge"
	InPing             EventType = "ping"
)

var inbound = map[EventType]struct{}{
	InRegisterQueue:    {},
	InUnregisterQueue:  {},
	InPlayerConfig:     {},
	InPaddleMove:       {},
	InPlayerAction:     {},
	InReadyUser:        {},
	InCancelReadyUser:  {},
	InSpectateGame:     {},
	InChallengePlayer:  {},
	InAcceptChallenge:  {},
	InDeclineChallenge: {},
	InPing:             {},
}

// KnownInbound reports whether t is an event clients may send.
func KnownInbound(t EventType) bool {
	_, ok := inbound[t]
	return ok
}

// Outbound event types.
const (
	OutRegisterQueue           EventType = "register-queue"
	OutLobbyCreated            EventType = "lobby-created"
	OutLobbyUpdated            EventType = "lobby-updated"
	OutLobbyCountdown          EventType = "lobby-countdown"
	OutLobbyCancelled          EventType = "lobby-cancelled"
	OutTournamentStarting      EventType = "tournament-starting"
	OutTournamentBracket       EventType = "tournament-bracket"
	OutTournamentMatchStarting EventType = "tournament-match-starting"
	OutTournamentMatchEnded    EventType = "tournament-match-ended"
	OutTournamentEnded         EventType = "tournament-ended"
	OutTournamentCancelled     EventType = "tournament-cancelled"
	OutMatchConfig             EventType = "match-config"
	OutSpectatorMode           EventType = "spectator-mode"
	OutConfigUpdate            EventType = "config-update"
	OutInGameComm              EventType = "ingame-comm"
	OutPongUpdate              EventType = "pong-update"
	OutShootUpdate             EventType = "shoot-update"
	OutGameEnded               EventType = "game-ended"
	OutChallengeSent           EventType = "challenge-sent"
	OutChallengeReceived       EventType = "challenge-received"
	OutChallengeDeclined       EventType = "challenge-declined"
	OutPong                    EventType = "pong"
	OutError                   EventType = "error"
)

// Event is the envelope of every outbound message. Payloads are plain structs
// holding identifiers and primitive fields only.
type Event struct {
	Type    EventType   `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// InboundMessage is the envelope of every message read from a client.
type InboundMessage struct {
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ErrorPayload is sent to a caller whose action was rejected.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewErrorEvent builds the error event for err.
func NewErrorEvent(err error) Event {
	return Event{Type: OutError, Payload: ErrorPayload{Code: ErrorCode(err), Message: err.Error()}}
}

// MatchRecord is what the history collaborator persists for a finished match.
type MatchRecord struct {
	MatchID      uuid.UUID   `json:"match_id"`
	GameType     GameType    `json:"game_type"`
	Players      []uuid.UUID `json:"players"`
	Winner       uuid.UUID   `json:"winner"`
	Score        [2]int      `json:"score"`
	Reason       string      `json:"reason,omitempty"`
	TournamentID uuid.UUID   `json:"tournament_id"`
	EndedAt      time.Time   `json:"ended_at"`
}

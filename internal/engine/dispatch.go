// internal/engine/dispatch.go
package engine

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jason-s-yu/arena/internal/game"
	"github.com/jason-s-yu/arena/internal/matchmaking"
	"github.com/jason-s-yu/arena/internal/models"
	"github.com/jason-s-yu/arena/internal/registry"
	"github.com/sirupsen/logrus"
)

// Inbound payloads.
type (
	registerQueueRequest struct {
		GameType models.GameType `json:"gameType"`
	}
	paddleMoveRequest struct {
		RoomID    uuid.UUID      `json:"roomId"`
		Direction game.Direction `json:"direction"`
	}
	playerActionRequest struct {
		RoomID uuid.UUID `json:"roomId"`
		game.Action
	}
	spectateRequest struct {
		RoomID uuid.UUID `json:"roomId"`
	}
	challengeRequest struct {
		PlayerID uuid.UUID       `json:"playerId"`
		GameType models.GameType `json:"gameType"`
	}
	challengeReply struct {
		ChallengeID uuid.UUID `json:"challengeId"`
	}
)

// QueueStatusPayload answers register-queue and unregister-queue.
type QueueStatusPayload struct {
	Status   matchmaking.Status `json:"status"`
	GameType models.GameType    `json:"gameType,omitempty"`
}

// HandleMessage processes one inbound frame. Rejected actions are answered
// with an error event to the caller only and never affect anyone else.
func (e *Engine) HandleMessage(conn *registry.Connection, data []byte) {
	p := conn.Player
	if !conn.Allow() {
		e.metrics.IncMessagesDropped()
		e.logger.WithField("player", p.ID).Warn("rate limit exceeded, dropping message")
		return
	}

	var msg models.InboundMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		e.reject(p, fmt.Errorf("malformed message: %v: %w", err, models.ErrAccessDenied))
		return
	}
	label := string(msg.Type)
	if !models.KnownInbound(msg.Type) {
		label = "unknown"
	}
	e.metrics.IncMessagesReceived(label)
	e.logger.WithFields(logrus.Fields{"player": p.ID, "type": msg.Type}).Debug("inbound message")

	if err := e.dispatch(p, msg); err != nil {
		e.reject(p, err)
	}
}

func (e *Engine) reject(p models.Player, err error) {
	e.logger.WithField("player", p.ID).Warnf("action rejected: %v", err)
	e.registry.Send(p.ID, models.NewErrorEvent(err))
}

func decode(raw json.RawMessage, v interface{}) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("bad payload: %v: %w", err, models.ErrAccessDenied)
	}
	return nil
}

func (e *Engine) dispatch(p models.Player, msg models.InboundMessage) error {
	switch msg.Type {
	case models.InRegisterQueue:
		var req registerQueueRequest
		if err := decode(msg.Payload, &req); err != nil {
			return err
		}
		return e.registerQueue(p, req.GameType)

	case models.InUnregisterQueue:
		status, _ := e.queue.Dequeue(p.ID)
		e.registry.Send(p.ID, models.Event{Type: models.OutRegisterQueue, Payload: QueueStatusPayload{Status: status}})
		e.refreshGauges()
		return nil

	case models.InPlayerConfig:
		var req game.ConfigUpdate
		if err := decode(msg.Payload, &req); err != nil {
			return err
		}
		return e.rooms.Configure(p.ID, req)

	case models.InPaddleMove:
		var req paddleMoveRequest
		if err := decode(msg.Payload, &req); err != nil {
			return err
		}
		return e.rooms.Move(p.ID, req.RoomID, req.Direction)

	case models.InPlayerAction:
		var req playerActionRequest
		if err := decode(msg.Payload, &req); err != nil {
			return err
		}
		return e.rooms.Act(p.ID, req.RoomID, req.Action)

	case models.InReadyUser:
		return e.rooms.SetReady(p.ID, true)

	case models.InCancelReadyUser:
		return e.rooms.SetReady(p.ID, false)

	case models.InSpectateGame:
		var req spectateRequest
		if err := decode(msg.Payload, &req); err != nil {
			return err
		}
		return e.rooms.Spectate(p, req.RoomID)

	case models.InChallengePlayer:
		var req challengeRequest
		if err := decode(msg.Payload, &req); err != nil {
			return err
		}
		return e.challengePlayer(p, req.PlayerID, req.GameType)

	case models.InAcceptChallenge:
		var req challengeReply
		if err := decode(msg.Payload, &req); err != nil {
			return err
		}
		return e.acceptChallenge(p, req.ChallengeID)

	case models.InDeclineChallenge:
		var req challengeReply
		if err := decode(msg.Payload, &req); err != nil {
			return err
		}
		return e.declineChallenge(p, req.ChallengeID)

	case models.InPing:
		e.registry.Send(p.ID, models.Event{Type: models.OutPong})
		return nil
	}
	return fmt.Errorf("unknown event %q: %w", msg.Type, models.ErrAccessDenied)
}

// registerQueue enqueues an idle player. The reply always carries the
// queue status; a refused request is answered NOT_REGISTERED followed by
// the error.
func (e *Engine) registerQueue(p models.Player, t models.GameType) error {
	var refusal error
	switch {
	case !t.Valid():
		refusal = fmt.Errorf("game type %q: %w", t, models.ErrAccessDenied)
	case !e.queue.Contains(p.ID) && e.busy(p.ID):
		refusal = fmt.Errorf("player %s is already in a lobby or match: %w", p.ID, models.ErrAccessDenied)
	}
	if refusal != nil {
		e.registry.Send(p.ID, models.Event{Type: models.OutRegisterQueue, Payload: QueueStatusPayload{Status: matchmaking.StatusNotRegistered}})
		return refusal
	}
	status, _ := e.queue.Enqueue(p, t)
	e.registry.Send(p.ID, models.Event{Type: models.OutRegisterQueue, Payload: QueueStatusPayload{Status: status, GameType: t}})
	e.refreshGauges()
	return nil
}

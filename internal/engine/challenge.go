// internal/engine/challenge.go
package engine

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/arena/internal/game"
	"github.com/jason-s-yu/arena/internal/models"
	"github.com/jason-s-yu/arena/internal/registry"
)

// challenge is a pending invitation to a one-off match.
type challenge struct {
	ID        uuid.UUID
	From      models.Player
	To        models.Player
	GameType  models.GameType
	CreatedAt time.Time
}

// ChallengePayload is sent as challenge-sent to the challenger and
// challenge-received to the target.
type ChallengePayload struct {
	ChallengeID uuid.UUID       `json:"challengeId"`
	From        models.Player   `json:"from"`
	To          models.Player   `json:"to"`
	GameType    models.GameType `json:"gameType"`
}

// ChallengeDeclinedPayload tells the other side a challenge is gone.
type ChallengeDeclinedPayload struct {
	ChallengeID uuid.UUID `json:"challengeId"`
	By          uuid.UUID `json:"by"`
	Reason      string    `json:"reason"`
}

type challengeBook struct {
	mu   sync.Mutex
	byID map[uuid.UUID]*challenge
}

func newChallengeBook() *challengeBook {
	return &challengeBook{byID: make(map[uuid.UUID]*challenge)}
}

func (b *challengeBook) add(c *challenge) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, other := range b.byID {
		if other.From.ID == c.From.ID && other.To.ID == c.To.ID {
			return fmt.Errorf("challenge to %s already pending: %w", c.To.ID, models.ErrAccessDenied)
		}
	}
	b.byID[c.ID] = c
	return nil
}

// take removes and returns a challenge addressed to playerID.
func (b *challengeBook) take(id, playerID uuid.UUID) (*challenge, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.byID[id]
	if !ok {
		return nil, fmt.Errorf("challenge %s: %w", id, models.ErrEntityNotFound)
	}
	if c.To.ID != playerID {
		return nil, fmt.Errorf("challenge %s is not addressed to %s: %w", id, playerID, models.ErrAccessDenied)
	}
	delete(b.byID, id)
	return c, nil
}

// dropPlayer discards every challenge involving id and tells the other side.
func (b *challengeBook) dropPlayer(id uuid.UUID, bc registry.Broadcaster) {
	b.mu.Lock()
	var dropped []*challenge
	for cid, c := range b.byID {
		if c.From.ID == id || c.To.ID == id {
			dropped = append(dropped, c)
			delete(b.byID, cid)
		}
	}
	b.mu.Unlock()

	for _, c := range dropped {
		other := c.From.ID
		if other == id {
			other = c.To.ID
		}
		bc.Send(other, models.Event{Type: models.OutChallengeDeclined, Payload: ChallengeDeclinedPayload{
			ChallengeID: c.ID,
			By:          id,
			Reason:      "disconnected",
		}})
	}
}

func (b *challengeBook) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.byID)
}

// challengePlayer invites an idle, online player to a one-off match.
func (e *Engine) challengePlayer(from models.Player, targetID uuid.UUID, gameType models.GameType) error {
	if !gameType.Valid() {
		return fmt.Errorf("game type %q: %w", gameType, models.ErrAccessDenied)
	}
	if targetID == from.ID {
		return fmt.Errorf("cannot challenge yourself: %w", models.ErrAccessDenied)
	}
	target, ok := e.registry.Get(targetID)
	if !ok {
		return fmt.Errorf("player %s is not online: %w", targetID, models.ErrEntityNotFound)
	}
	if e.busy(from.ID) || e.busy(targetID) {
		return fmt.Errorf("both players must be idle: %w", models.ErrAccessDenied)
	}

	c := &challenge{
		ID:        uuid.New(),
		From:      from,
		To:        target.Player,
		GameType:  gameType,
		CreatedAt: time.Now(),
	}
	if err := e.challenges.add(c); err != nil {
		return err
	}

	payload := ChallengePayload{ChallengeID: c.ID, From: c.From, To: c.To, GameType: gameType}
	e.registry.Send(from.ID, models.Event{Type: models.OutChallengeSent, Payload: payload})
	e.registry.Send(targetID, models.Event{Type: models.OutChallengeReceived, Payload: payload})
	return nil
}

// acceptChallenge starts the one-off match.
func (e *Engine) acceptChallenge(p models.Player, challengeID uuid.UUID) error {
	c, err := e.challenges.take(challengeID, p.ID)
	if err != nil {
		return err
	}
	if !e.registry.Online(c.From.ID) {
		return fmt.Errorf("challenger %s left: %w", c.From.ID, models.ErrEntityNotFound)
	}
	if e.busy(c.From.ID) || e.busy(p.ID) {
		return fmt.Errorf("both players must be idle: %w", models.ErrAccessDenied)
	}

	r, err := e.rooms.Create(game.Options{
		GameType: c.GameType,
		Players:  [2]models.Player{c.From, c.To},
	})
	if err != nil {
		return err
	}
	e.logger.Infof("challenge %s accepted, room %s", c.ID, r.ID)
	for _, id := range []uuid.UUID{c.From.ID, c.To.ID} {
		if !e.registry.Online(id) && r.Forfeit(id) {
			e.logger.WithField("player", id).Info("challenge match forfeited, player left before the room opened")
			break
		}
	}
	e.refreshGauges()
	return nil
}

// declineChallenge refuses an invitation.
func (e *Engine) declineChallenge(p models.Player, challengeID uuid.UUID) error {
	c, err := e.challenges.take(challengeID, p.ID)
	if err != nil {
		return err
	}
	e.registry.Send(c.From.ID, models.Event{Type: models.OutChallengeDeclined, Payload: ChallengeDeclinedPayload{
		ChallengeID: c.ID,
		By:          p.ID,
		Reason:      "declined",
	}})
	return nil
}

// Package registrytest provides an in-memory Broadcaster for tests.
package registrytest

import (
	"sync"

	"github.com/google/uuid"
	"github.com/jason-s-yu/arena/internal/models"
)

// Broadcaster collects events instead of sending them over a socket.
type Broadcaster struct {
	mu     sync.Mutex
	events map[uuid.UUID][]models.Event
}

// New returns an empty recording broadcaster.
func New() *Broadcaster {
	return &Broadcaster{events: make(map[uuid.UUID][]models.Event)}
}

func (b *Broadcaster) Send(userID uuid.UUID, ev models.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events[userID] = append(b.events[userID], ev)
}

func (b *Broadcaster) SendMany(userIDs []uuid.UUID, ev models.Event) {
	for _, id := range userIDs {
		b.Send(id, ev)
	}
}

// Events returns a copy of everything sent to userID.
func (b *Broadcaster) Events(userID uuid.UUID) []models.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]models.Event(nil), b.events[userID]...)
}

// OfType returns the events of type t sent to userID.
func (b *Broadcaster) OfType(userID uuid.UUID, t models.EventType) []models.Event {
	var out []models.Event
	for _, ev := range b.Events(userID) {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

// Last returns the most recent event of type t sent to userID.
func (b *Broadcaster) Last(userID uuid.UUID, t models.EventType) (models.Event, bool) {
	evs := b.OfType(userID, t)
	if len(evs) == 0 {
		return models.Event{}, false
	}
	return evs[len(evs)-1], true
}

// Clear forgets every recorded event.
func (b *Broadcaster) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = make(map[uuid.UUID][]models.Event)
}

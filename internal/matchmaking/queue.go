// internal/matchmaking/queue.go
package matchmaking

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/arena/internal/models"
)

// Status is the reply sent for register/unregister requests.
type Status string

const (
	StatusRegistered        Status = "REGISTERED"
	StatusAlreadyRegistered Status = "ALREADY_REGISTERED"
	StatusNotRegistered     Status = "NOT_REGISTERED"
	StatusUnregistered      Status = "UNREGISTERED"
)

// Entry is a player waiting for a match of a given game type.
type Entry struct {
	Player     models.Player
	GameType   models.GameType
	EnqueuedAt time.Time
}

// Queue holds waiting players ordered by enqueue time. A player has at most
// one entry at any instant.
type Queue struct {
	mu      sync.Mutex
	entries []Entry
	members map[uuid.UUID]models.GameType
	now     func() time.Time
}

// NewQueue returns an empty queue.
func NewQueue() *Queue {
	return &Queue{
		members: make(map[uuid.UUID]models.GameType),
		now:     time.Now,
	}
}

// Enqueue appends the player for game type t.
func (q *Queue) Enqueue(p models.Player, t models.GameType) (Status, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.members[p.ID]; ok {
		return StatusAlreadyRegistered, fmt.Errorf("enqueue %s: %w", p.ID, models.ErrAlreadyQueued)
	}
	q.entries = append(q.entries, Entry{Player: p, GameType: t, EnqueuedAt: q.now()})
	q.members[p.ID] = t
	return StatusRegistered, nil
}

// Dequeue removes the player's entry if present.
func (q *Queue) Dequeue(id uuid.UUID) (Status, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.removeUnsafe(id) {
		return StatusNotRegistered, fmt.Errorf("dequeue %s: %w", id, models.ErrNotQueued)
	}
	return StatusUnregistered, nil
}

// removeUnsafe deletes a player's entry. Assumes lock is held.
func (q *Queue) removeUnsafe(id uuid.UUID) bool {
	if _, ok := q.members[id]; !ok {
		return false
	}
	delete(q.members, id)
	for i, e := range q.entries {
		if e.Player.ID == id {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			break
		}
	}
	return true
}

// Contains reports whether the player is queued.
func (q *Queue) Contains(id uuid.UUID) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.members[id]
	return ok
}

// Len returns the number of queued players for t.
func (q *Queue) Len(t models.GameType) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, e := range q.entries {
		if e.GameType == t {
			n++
		}
	}
	return n
}

// Drain removes and returns up to limit of the oldest entries for t.
func (q *Queue) Drain(t models.GameType, limit int) []Entry {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.drainUnsafe(t, limit)
}

func (q *Queue) drainUnsafe(t models.GameType, limit int) []Entry {
	if limit <= 0 {
		return nil
	}
	var taken []Entry
	kept := q.entries[:0]
	for _, e := range q.entries {
		if e.GameType == t && len(taken) < limit {
			taken = append(taken, e)
			delete(q.members, e.Player.ID)
			continue
		}
		kept = append(kept, e)
	}
	q.entries = kept
	return taken
}

// DrainSeparated removes and returns queued players partitioned by game type,
// each list capped at limit, oldest first.
func (q *Queue) DrainSeparated(limit int) map[models.GameType][]Entry {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make(map[models.GameType][]Entry)
	for _, t := range models.GameTypes {
		if taken := q.drainUnsafe(t, limit); len(taken) > 0 {
			out[t] = taken
		}
	}
	return out
}

// Requeue puts entries back keeping their original enqueue time, so players
// returned from a cancelled lobby keep their place. Players that queued again
// in the meantime are skipped.
func (q *Queue) Requeue(entries ...Entry) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, e := range entries {
		if _, ok := q.members[e.Player.ID]; ok {
			continue
		}
		q.entries = append(q.entries, e)
		q.members[e.Player.ID] = e.GameType
	}
	sort.SliceStable(q.entries, func(i, j int) bool {
		return q.entries[i].EnqueuedAt.Before(q.entries[j].EnqueuedAt)
	})
}

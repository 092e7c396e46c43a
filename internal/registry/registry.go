// internal/registry/registry.go
package registry

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/jason-s-yu/arena/internal/models"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Broadcaster delivers events to players by ID. Components receive it at
// construction and never touch connections directly.
type Broadcaster interface {
	Send(userID uuid.UUID, ev models.Event)
	SendMany(userIDs []uuid.UUID, ev models.Event)
}

// Connection is one authenticated client. Outbound frames are queued on OutChan
// and written to the socket by the handler's write pump.
type Connection struct {
	Player  models.Player
	OutChan chan []byte
	Cancel  context.CancelFunc

	limiter *rate.Limiter
	once    sync.Once
}

// NewConnection creates a connection with an outbound buffer of size buf and an
// inbound limiter of perSec messages per second with the given burst.
// A perSec of zero disables limiting.
func NewConnection(p models.Player, buf int, perSec float64, burst int, cancel context.CancelFunc) *Connection {
	c := &Connection{
		Player:  p,
		OutChan: make(chan []byte, buf),
		Cancel:  cancel,
	}
	if perSec > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(perSec), burst)
	}
	return c
}

// Allow reports whether another inbound message may be processed now.
func (c *Connection) Allow() bool {
	if c.limiter == nil {
		return true
	}
	return c.limiter.Allow()
}

// WriteRaw queues an already encoded frame without blocking. It reports false
// when the buffer is full or the connection is closed.
func (c *Connection) WriteRaw(data []byte) (ok bool) {
	defer func() {
		// send on a channel closed by a concurrent replace
		if recover() != nil {
			ok = false
		}
	}()
	select {
	case c.OutChan <- data:
		return true
	default:
		return false
	}
}

// close releases the connection's resources. Safe to call more than once.
func (c *Connection) close() {
	c.once.Do(func() {
		close(c.OutChan)
		if c.Cancel != nil {
			c.Cancel()
		}
	})
}

// Registry maps player IDs to their single live connection.
type Registry struct {
	mu     sync.RWMutex
	conns  map[uuid.UUID]*Connection
	logger *logrus.Logger
}

// New returns an empty registry.
func New(logger *logrus.Logger) *Registry {
	return &Registry{
		conns:  make(map[uuid.UUID]*Connection),
		logger: logger,
	}
}

// Register makes conn the live connection for its player. A previous
// connection for the same player is closed and reported as replaced.
func (r *Registry) Register(conn *Connection) (replaced bool) {
	r.mu.Lock()
	old, ok := r.conns[conn.Player.ID]
	r.conns[conn.Player.ID] = conn
	r.mu.Unlock()

	if ok && old != conn {
		r.logger.Infof("registry: player %s reconnected, closing previous connection", conn.Player.ID)
		old.close()
		return true
	}
	return false
}

// Unregister removes conn if it is still the live connection for its player.
// It returns false for a connection that was already replaced, in which case
// the player is still online and no disconnect handling should run.
func (r *Registry) Unregister(conn *Connection) bool {
	r.mu.Lock()
	cur, ok := r.conns[conn.Player.ID]
	current := ok && cur == conn
	if current {
		delete(r.conns, conn.Player.ID)
	}
	r.mu.Unlock()

	conn.close()
	return current
}

// Get returns the live connection of a player.
func (r *Registry) Get(userID uuid.UUID) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[userID]
	return c, ok
}

// Online reports whether the player has a live connection.
func (r *Registry) Online(userID uuid.UUID) bool {
	_, ok := r.Get(userID)
	return ok
}

// Count returns the number of live connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Send delivers ev to one player if connected.
func (r *Registry) Send(userID uuid.UUID, ev models.Event) {
	r.SendMany([]uuid.UUID{userID}, ev)
}

// SendMany encodes ev once and queues it for every listed player that is connected.
func (r *Registry) SendMany(userIDs []uuid.UUID, ev models.Event) {
	if len(userIDs) == 0 {
		return
	}
	data, err := json.Marshal(ev)
	if err != nil {
		r.logger.Errorf("registry: failed to marshal event %s: %v", ev.Type, err)
		return
	}

	r.mu.RLock()
	targets := make([]*Connection, 0, len(userIDs))
	for _, id := range userIDs {
		if c, ok := r.conns[id]; ok {
			targets = append(targets, c)
		}
	}
	r.mu.RUnlock()

	for _, c := range targets {
		if !c.WriteRaw(data) {
			r.logger.Warnf("registry: outbound buffer for player %s full or closed, dropped %s", c.Player.ID, ev.Type)
		}
	}
}

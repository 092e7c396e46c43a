// internal/lobby/lobby_manager.go
package lobby

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/arena/internal/matchmaking"
	"github.com/jason-s-yu/arena/internal/models"
	"github.com/jason-s-yu/arena/internal/registry"
	"github.com/sirupsen/logrus"
)

// Config controls lobby countdowns.
type Config struct {
	// Countdown is the number of ticks a new lobby waits before converting.
	Countdown int
	// TickInterval is the duration of one countdown tick.
	TickInterval time.Duration
}

// DefaultConfig is a 60 second countdown decremented once per second.
var DefaultConfig = Config{Countdown: 60, TickInterval: time.Second}

// Manager owns every active lobby, at most one per game type, and forms them
// from the matchmaking queue on each Tick.
type Manager struct {
	mu      sync.Mutex
	lobbies map[uuid.UUID]*Lobby
	byType  map[models.GameType]*Lobby

	queue  *matchmaking.Queue
	bc     registry.Broadcaster
	cfg    Config
	logger *logrus.Logger

	// OnReady receives a lobby that reached zero with enough players.
	// It is called without any lobby lock held.
	OnReady func(Snapshot)
}

// NewManager creates a manager draining q.
func NewManager(q *matchmaking.Queue, bc registry.Broadcaster, cfg Config, logger *logrus.Logger) *Manager {
	if cfg.Countdown <= 0 {
		cfg.Countdown = DefaultConfig.Countdown
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultConfig.TickInterval
	}
	return &Manager{
		lobbies: make(map[uuid.UUID]*Lobby),
		byType:  make(map[models.GameType]*Lobby),
		queue:   q,
		bc:      bc,
		cfg:     cfg,
		logger:  logger,
	}
}

// Tick moves queued players into lobbies. It is driven by the periodic
// matchmaking scan rather than by each enqueue so arrivals are batched.
// Drained players that find no room are requeued before the lock is released,
// so a concurrent RemovePlayer observes them either in a lobby or queued.
func (m *Manager) Tick() {
	var (
		notices []models.Event
		targets [][]uuid.UUID
		started []*Lobby
	)

	m.mu.Lock()
	for t, entries := range m.queue.DrainSeparated(MaxPlayers) {
		if l, ok := m.byType[t]; ok {
			free := MaxPlayers - len(l.Entries)
			var rest []matchmaking.Entry
			added := 0
			for _, e := range entries {
				if added >= free || l.has(e.Player.ID) {
					rest = append(rest, e)
					continue
				}
				l.Entries = append(l.Entries, e)
				added++
			}
			m.queue.Requeue(rest...)
			if added == 0 {
				continue
			}
			m.logger.Infof("lobby %s: merged %d queued players (%d total)", l.ID, added, len(l.Entries))
			notices = append(notices, models.Event{Type: models.OutLobbyUpdated, Payload: l.rosterPayload()})
			targets = append(targets, models.PlayerIDs(l.Players()))
			continue
		}

		if len(entries) < MinPlayers {
			m.queue.Requeue(entries...)
			continue
		}
		l := &Lobby{
			ID:        uuid.New(),
			GameType:  t,
			Entries:   entries,
			Countdown: m.cfg.Countdown,
			CreatedAt: time.Now(),
			stop:      make(chan struct{}),
		}
		m.lobbies[l.ID] = l
		m.byType[t] = l
		started = append(started, l)
		m.logger.WithFields(logrus.Fields{"lobby": l.ID, "game": t, "players": len(entries)}).Info("lobby formed")
		notices = append(notices, models.Event{Type: models.OutLobbyCreated, Payload: l.rosterPayload()})
		targets = append(targets, models.PlayerIDs(l.Players()))
	}
	m.mu.Unlock()

	for i, ev := range notices {
		m.bc.SendMany(targets[i], ev)
	}
	for _, l := range started {
		go m.run(l.ID, l.stop)
	}
}

// run drives one lobby's countdown until it converts, is cancelled or emptied.
func (m *Manager) run(id uuid.UUID, stop <-chan struct{}) {
	ticker := time.NewTicker(m.cfg.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if m.step(id) {
				return
			}
		}
	}
}

// step decrements a lobby's countdown and resolves it at zero. It reports
// true once the lobby no longer exists.
func (m *Manager) step(id uuid.UUID) bool {
	m.mu.Lock()
	l, ok := m.lobbies[id]
	if !ok {
		m.mu.Unlock()
		return true
	}

	l.Countdown--
	ids := models.PlayerIDs(l.Players())
	if l.Countdown > 0 {
		payload := CountdownPayload{LobbyID: l.ID, Countdown: l.Countdown}
		m.mu.Unlock()
		m.bc.SendMany(ids, models.Event{Type: models.OutLobbyCountdown, Payload: payload})
		return false
	}

	l.Countdown = 0
	m.deleteUnsafe(l)
	snap := l.snapshot()
	entries := append([]matchmaking.Entry(nil), l.Entries...)
	if len(entries) < MinPlayers {
		m.queue.Requeue(entries...)
	}
	m.mu.Unlock()

	m.bc.SendMany(ids, models.Event{Type: models.OutLobbyCountdown, Payload: CountdownPayload{LobbyID: l.ID, Countdown: 0}})

	if len(entries) < MinPlayers {
		m.logger.Infof("lobby %s: cancelled with %d players, returned them to the queue", l.ID, len(entries))
		m.bc.SendMany(ids, models.Event{Type: models.OutLobbyCancelled, Payload: CancelledPayload{
			LobbyID: l.ID,
			Reason:  "not enough players",
		}})
		return true
	}

	m.logger.Infof("lobby %s: countdown finished with %d players", l.ID, len(entries))
	if m.OnReady != nil {
		m.OnReady(snap)
	}
	return true
}

// deleteUnsafe unregisters a lobby and stops its countdown. Assumes lock is held.
func (m *Manager) deleteUnsafe(l *Lobby) {
	if _, ok := m.lobbies[l.ID]; !ok {
		return
	}
	delete(m.lobbies, l.ID)
	if cur, ok := m.byType[l.GameType]; ok && cur == l {
		delete(m.byType, l.GameType)
	}
	close(l.stop)
}

// RemovePlayer takes a player out of whatever lobby holds them. An emptied
// lobby is deleted and its countdown cancelled.
func (m *Manager) RemovePlayer(id uuid.UUID) bool {
	m.mu.Lock()
	var l *Lobby
	for _, cand := range m.lobbies {
		if cand.has(id) {
			l = cand
			break
		}
	}
	if l == nil {
		m.mu.Unlock()
		return false
	}
	l.remove(id)
	if len(l.Entries) == 0 {
		m.deleteUnsafe(l)
		m.mu.Unlock()
		m.logger.Infof("lobby %s: emptied, deleted", l.ID)
		return true
	}
	ids := models.PlayerIDs(l.Players())
	payload := l.rosterPayload()
	m.mu.Unlock()

	m.logger.Infof("lobby %s: player %s left (%d remain)", l.ID, id, len(ids))
	m.bc.SendMany(ids, models.Event{Type: models.OutLobbyUpdated, Payload: payload})
	return true
}

// LobbyOf returns a snapshot of the lobby holding the player.
func (m *Manager) LobbyOf(id uuid.UUID) (Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range m.lobbies {
		if l.has(id) {
			return l.snapshot(), true
		}
	}
	return Snapshot{}, false
}

// Contains reports whether the player is in any lobby.
func (m *Manager) Contains(id uuid.UUID) bool {
	_, ok := m.LobbyOf(id)
	return ok
}

// Get returns a snapshot of a lobby by ID.
func (m *Manager) Get(id uuid.UUID) (Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.lobbies[id]
	if !ok {
		return Snapshot{}, false
	}
	return l.snapshot(), true
}

// ForGameType returns the forming lobby for t.
func (m *Manager) ForGameType(t models.GameType) (Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.byType[t]
	if !ok {
		return Snapshot{}, false
	}
	return l.snapshot(), true
}

// Count returns the number of active lobbies.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.lobbies)
}

// Close cancels every lobby countdown.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range m.lobbies {
		m.deleteUnsafe(l)
	}
}

// RosterEvent builds the lobby-updated event for a snapshot, used to resync a
// reconnecting player.
func RosterEvent(s Snapshot) models.Event {
	return models.Event{Type: models.OutLobbyUpdated, Payload: RosterPayload{
		LobbyID:   s.ID,
		GameType:  s.GameType,
		Players:   s.Players,
		Countdown: s.Countdown,
	}}
}

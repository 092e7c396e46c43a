// internal/game/room_store.go
package game

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/arena/internal/models"
	"github.com/jason-s-yu/arena/internal/registry"
	"github.com/sirupsen/logrus"
)

// Manager keeps every live room and the single authoritative mapping from a
// participant to their current room.
type Manager struct {
	mu       sync.Mutex
	rooms    map[uuid.UUID]*Room
	byPlayer map[uuid.UUID]uuid.UUID

	bc       registry.Broadcaster
	recorder Recorder
	settings Settings
	logger   *logrus.Logger
	now      func() time.Time

	// OnMatchEnd receives every finished match after its players are released.
	OnMatchEnd func(Result)
	// ObserveTick, if set, receives the duration of each simulation tick.
	ObserveTick func(time.Duration)
}

// NewManager creates an empty room manager.
func NewManager(bc registry.Broadcaster, recorder Recorder, settings Settings, logger *logrus.Logger) *Manager {
	return &Manager{
		rooms:    make(map[uuid.UUID]*Room),
		byPlayer: make(map[uuid.UUID]uuid.UUID),
		bc:       bc,
		recorder: recorder,
		settings: settings,
		logger:   logger,
		now:      time.Now,
	}
}

// Create registers a room for two players and opens its config handshake.
func (m *Manager) Create(opts Options) (*Room, error) {
	if !opts.GameType.Valid() {
		return nil, fmt.Errorf("game type %q: %w", opts.GameType, models.ErrAccessDenied)
	}
	if opts.Players[0].ID == opts.Players[1].ID {
		return nil, fmt.Errorf("a player cannot face themselves: %w", models.ErrAccessDenied)
	}

	r := newRoom(opts, m)

	m.mu.Lock()
	if _, ok := m.rooms[r.ID]; ok {
		m.mu.Unlock()
		return nil, fmt.Errorf("room %s already exists: %w", r.ID, models.ErrAccessDenied)
	}
	for _, p := range opts.Players {
		if cur, ok := m.byPlayer[p.ID]; ok {
			m.mu.Unlock()
			return nil, fmt.Errorf("player %s already in room %s: %w", p.ID, cur, models.ErrAccessDenied)
		}
	}
	m.rooms[r.ID] = r
	for _, p := range opts.Players {
		m.byPlayer[p.ID] = r.ID
	}
	m.mu.Unlock()

	r.Open()
	return r, nil
}

// Get returns a room by id.
func (m *Manager) Get(id uuid.UUID) (*Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[id]
	if !ok {
		return nil, fmt.Errorf("room %s: %w", id, models.ErrEntityNotFound)
	}
	return r, nil
}

// RoomOf returns the room the player is currently playing in.
func (m *Manager) RoomOf(playerID uuid.UUID) (*Room, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byPlayer[playerID]
	if !ok {
		return nil, false
	}
	r, ok := m.rooms[id]
	return r, ok
}

// roomFor resolves the room a participant command targets. A zero roomID
// means the caller's current room. Commands for any other room fail.
func (m *Manager) roomFor(playerID, roomID uuid.UUID) (*Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.byPlayer[playerID]
	if !ok {
		if roomID != uuid.Nil {
			if _, exists := m.rooms[roomID]; !exists {
				return nil, fmt.Errorf("room %s: %w", roomID, models.ErrEntityNotFound)
			}
		}
		return nil, fmt.Errorf("player %s has no active room: %w", playerID, models.ErrAccessDenied)
	}
	if roomID != uuid.Nil && roomID != cur {
		return nil, fmt.Errorf("player %s is not in room %s: %w", playerID, roomID, models.ErrAccessDenied)
	}
	r, ok := m.rooms[cur]
	if !ok {
		return nil, fmt.Errorf("room %s: %w", cur, models.ErrEntityNotFound)
	}
	return r, nil
}

// Configure routes a player-config message.
func (m *Manager) Configure(playerID uuid.UUID, u ConfigUpdate) error {
	r, err := m.roomFor(playerID, u.RoomID)
	if err != nil {
		return err
	}
	return r.Configure(playerID, u)
}

// SetReady routes ready-user and cancel-ready-user.
func (m *Manager) SetReady(playerID uuid.UUID, ready bool) error {
	r, err := m.roomFor(playerID, uuid.Nil)
	if err != nil {
		return err
	}
	return r.SetReady(playerID, ready)
}

// Move routes a paddle-move message.
func (m *Manager) Move(playerID, roomID uuid.UUID, dir Direction) error {
	r, err := m.roomFor(playerID, roomID)
	if err != nil {
		return err
	}
	return r.Move(playerID, dir)
}

// Act routes a player-action message.
func (m *Manager) Act(playerID, roomID uuid.UUID, a Action) error {
	r, err := m.roomFor(playerID, roomID)
	if err != nil {
		return err
	}
	return r.Act(playerID, a)
}

// Spectate adds p as an observer of a room.
func (m *Manager) Spectate(p models.Player, roomID uuid.UUID) error {
	r, err := m.Get(roomID)
	if err != nil {
		return err
	}
	return r.Spectate(p)
}

// HandleDisconnect drops a departed player from spectator lists and, for a
// non-tournament room, forfeits their match. Tournament rooms are torn down
// by the scheduler instead.
func (m *Manager) HandleDisconnect(playerID uuid.UUID) bool {
	for _, r := range m.all() {
		r.RemoveSpectator(playerID)
	}
	r, ok := m.RoomOf(playerID)
	if !ok || r.TournamentID != uuid.Nil {
		return false
	}
	return r.Forfeit(playerID)
}

// TerminateTournament tears down every room of a tournament.
func (m *Manager) TerminateTournament(tournamentID uuid.UUID) int {
	var rooms []*Room
	for _, r := range m.all() {
		if r.TournamentID == tournamentID {
			rooms = append(rooms, r)
		}
	}
	for _, r := range rooms {
		r.Terminate(ReasonCancelled)
	}
	return len(rooms)
}

// SyncEvents returns the room view for a reconnecting player, either as
// participant or as spectator.
func (m *Manager) SyncEvents(playerID uuid.UUID) []models.Event {
	if r, ok := m.RoomOf(playerID); ok {
		return r.SyncEvents(playerID)
	}
	for _, r := range m.all() {
		if r.HasSpectator(playerID) {
			return r.SyncEvents(playerID)
		}
	}
	return nil
}

// Count returns the number of live rooms.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rooms)
}

// Close terminates every room.
func (m *Manager) Close() {
	for _, r := range m.all() {
		r.Terminate(ReasonCancelled)
	}
}

func (m *Manager) all() []*Room {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		out = append(out, r)
	}
	return out
}

// release frees a room's participants for their next activity.
func (m *Manager) release(r *Room) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range r.Players {
		if m.byPlayer[p.ID] == r.ID {
			delete(m.byPlayer, p.ID)
		}
	}
}

func (m *Manager) matchEnded(r *Room, res Result) {
	m.release(r)
	if m.OnMatchEnd != nil {
		m.OnMatchEnd(res)
	}
}

// remove forgets a destroyed room.
func (m *Manager) remove(r *Room) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.rooms[r.ID]; ok && cur == r {
		delete(m.rooms, r.ID)
	}
	for _, p := range r.Players {
		if m.byPlayer[p.ID] == r.ID {
			delete(m.byPlayer, p.ID)
		}
	}
	m.logger.Debugf("room %s removed", r.ID)
}

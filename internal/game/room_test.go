// internal/game/room_test.go
package game

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/arena/internal/models"
	"github.com/jason-s-yu/arena/internal/registry/registrytest"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memRecorder keeps recorded matches in memory.
type memRecorder struct {
	mu      sync.Mutex
	records []models.MatchRecord
}

func (r *memRecorder) RecordMatch(_ context.Context, rec models.MatchRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
	return nil
}

func (r *memRecorder) all() []models.MatchRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.MatchRecord(nil), r.records...)
}

// manualSettings keeps the room ticker idle so tests drive tick() themselves.
var manualSettings = Settings{
	TickInterval:  time.Hour,
	Grace:         time.Hour,
	PongMaxScore:  5,
	RecordTimeout: time.Second,
}

type fixture struct {
	m     *Manager
	bc    *registrytest.Broadcaster
	rec   *memRecorder
	ended chan Result
}

func newFixture(t *testing.T, settings Settings) *fixture {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	f := &fixture{
		bc:    registrytest.New(),
		rec:   &memRecorder{},
		ended: make(chan Result, 8),
	}
	f.m = NewManager(f.bc, f.rec, settings, logger)
	f.m.OnMatchEnd = func(res Result) { f.ended <- res }
	t.Cleanup(f.m.Close)
	return f
}

func twoPlayers() [2]models.Player {
	return [2]models.Player{
		{ID: uuid.New(), Username: "left"},
		{ID: uuid.New(), Username: "right"},
	}
}

func (f *fixture) startRoom(t *testing.T, opts Options) *Room {
	t.Helper()
	r, err := f.m.Create(opts)
	require.NoError(t, err)
	require.NoError(t, f.m.SetReady(opts.Players[0].ID, true))
	require.NoError(t, f.m.SetReady(opts.Players[1].ID, true))
	require.Equal(t, StatusInProgress, r.Status())
	return r
}

func TestCreateOpensConfigHandshake(t *testing.T) {
	f := newFixture(t, manualSettings)
	ps := twoPlayers()
	watcher := models.Player{ID: uuid.New(), Username: "watcher"}

	r, err := f.m.Create(Options{GameType: models.GameShoot, Players: ps, Spectators: []models.Player{watcher}})
	require.NoError(t, err)
	assert.Equal(t, StatusLobby, r.Status())

	ev, ok := f.bc.Last(ps[0].ID, models.OutMatchConfig)
	require.True(t, ok)
	cfg := ev.Payload.(MatchConfigPayload)
	assert.Equal(t, r.ID, cfg.RoomID)
	assert.Equal(t, MapIDs(), cfg.Maps)
	assert.False(t, cfg.TournamentID.Valid)

	_, ok = f.bc.Last(watcher.ID, models.OutSpectatorMode)
	assert.True(t, ok)
	_, ok = f.bc.Last(watcher.ID, models.OutMatchConfig)
	assert.False(t, ok)

	_, err = f.m.Create(Options{GameType: models.GameShoot, Players: ps})
	assert.True(t, errors.Is(err, models.ErrAccessDenied), "players hold one room at a time")
}

func TestConfigureValidatesAndStarts(t *testing.T) {
	f := newFixture(t, manualSettings)
	ps := twoPlayers()
	r, err := f.m.Create(Options{GameType: models.GamePong, Players: ps})
	require.NoError(t, err)

	bad := "red"
	err = f.m.Configure(ps[0].ID, ConfigUpdate{RoomID: r.ID, Color: &bad})
	assert.True(t, errors.Is(err, models.ErrAccessDenied))

	mapID := "arena"
	err = f.m.Configure(ps[0].ID, ConfigUpdate{MapID: &mapID})
	assert.True(t, errors.Is(err, models.ErrAccessDenied), "maps belong to the combat game")

	color, speed := "#00ff00", 50.0
	require.NoError(t, f.m.Configure(ps[0].ID, ConfigUpdate{RoomID: r.ID, Color: &color, Speed: &speed}))

	ev, ok := f.bc.Last(ps[1].ID, models.OutConfigUpdate)
	require.True(t, ok)
	entries := ev.Payload.(ConfigUpdatePayload).Configs
	assert.Equal(t, "#00ff00", entries[0].Color)
	assert.Equal(t, MaxPaddleSpeed, entries[0].Speed)

	require.NoError(t, f.m.SetReady(ps[0].ID, true))
	require.NoError(t, f.m.SetReady(ps[0].ID, false))
	require.NoError(t, f.m.SetReady(ps[1].ID, true))
	assert.Equal(t, StatusLobby, r.Status(), "both must be ready at once")

	require.NoError(t, f.m.SetReady(ps[0].ID, true))
	assert.Equal(t, StatusInProgress, r.Status())

	r.mu.Lock()
	st := r.state.(*PongState)
	assert.Equal(t, MaxPaddleSpeed, st.Paddles[0].Speed)
	assert.Equal(t, DefaultPaddleSpeed, st.Paddles[1].Speed)
	assert.Equal(t, "#00ff00", st.Paddles[0].Color)
	r.mu.Unlock()

	_, ok = f.bc.Last(ps[0].ID, models.OutInGameComm)
	assert.True(t, ok)

	err = f.m.Configure(ps[0].ID, ConfigUpdate{Color: &color})
	assert.True(t, errors.Is(err, models.ErrAccessDenied), "config is closed once the match runs")
}

func TestPaddleMatchToMaxScore(t *testing.T) {
	f := newFixture(t, manualSettings)
	ps := twoPlayers()
	r := f.startRoom(t, Options{GameType: models.GamePong, Players: ps})

	for i := 0; i < 10 && r.Status() == StatusInProgress; i++ {
		r.mu.Lock()
		st := r.state.(*PongState)
		st.Ball.Pos = Vec{PongWidth - 5, 100}
		st.Ball.Vel = Vec{BallSpeed, 0}
		r.mu.Unlock()
		r.tick()
	}

	assert.Equal(t, StatusIntermission, r.Status())

	ev, ok := f.bc.Last(ps[1].ID, models.OutGameEnded)
	require.True(t, ok)
	ended := ev.Payload.(GameEndedPayload)
	assert.Equal(t, 5, ended.FinalScore.Player1)
	assert.Equal(t, 0, ended.FinalScore.Player2)
	assert.Equal(t, ps[0].ID, ended.Winner.UUID)
	assert.Equal(t, ReasonScore, ended.Reason)

	updates := f.bc.OfType(ps[0].ID, models.OutPongUpdate)
	require.Len(t, updates, 5)
	assert.Equal(t, 4, updates[3].Payload.(PongUpdate).Score.Player1)

	records := f.rec.all()
	require.Len(t, records, 1)
	assert.Equal(t, ps[0].ID, records[0].Winner)
	assert.Equal(t, [2]int{5, 0}, records[0].Score)
	assert.Equal(t, r.ID, records[0].MatchID)

	res := <-f.ended
	assert.Equal(t, ps[0].ID, res.Winner)
	_, busy := f.m.RoomOf(ps[0].ID)
	assert.False(t, busy, "players are released when the match ends")

	err := f.m.Move(ps[0].ID, r.ID, DirUp)
	assert.True(t, errors.Is(err, models.ErrAccessDenied))
}

func TestCombatKnockoutEndsMatch(t *testing.T) {
	f := newFixture(t, manualSettings)
	ps := twoPlayers()
	r := f.startRoom(t, Options{GameType: models.GameShoot, Players: ps})

	r.mu.Lock()
	st := r.state.(*ShootState)
	st.Actors[1].Health = ProjectileDamage
	target := st.Actors[1].Pos
	st.Projectiles = []Projectile{{Owner: 0, Pos: Vec{target.X - 30, target.Y}, Vel: Vec{ProjectileSpeed, 0}, Radius: ProjectileRadius}}
	r.mu.Unlock()

	r.tick()
	assert.Equal(t, StatusIntermission, r.Status())
	res, ok := r.Result()
	require.True(t, ok)
	assert.Equal(t, ps[0].ID, res.Winner)
	assert.Equal(t, ReasonKnockout, res.Reason)
	assert.Equal(t, [2]int{1, 0}, res.Score)
}

func TestShootMapChosenFromConfigs(t *testing.T) {
	f := newFixture(t, manualSettings)
	ps := twoPlayers()
	r, err := f.m.Create(Options{GameType: models.GameShoot, Players: ps})
	require.NoError(t, err)

	pillars := "pillars"
	require.NoError(t, f.m.Configure(ps[1].ID, ConfigUpdate{MapID: &pillars}))
	unknown := "moon"
	err = f.m.Configure(ps[0].ID, ConfigUpdate{MapID: &unknown})
	assert.True(t, errors.Is(err, models.ErrEntityNotFound))

	require.NoError(t, f.m.SetReady(ps[0].ID, true))
	require.NoError(t, f.m.SetReady(ps[1].ID, true))

	r.mu.Lock()
	defer r.mu.Unlock()
	assert.Equal(t, "pillars", r.state.(*ShootState).MapID)
}

func TestCommandsAreRoutedToOwnRoomOnly(t *testing.T) {
	f := newFixture(t, manualSettings)
	ps := twoPlayers()
	other := twoPlayers()
	r := f.startRoom(t, Options{GameType: models.GamePong, Players: ps})
	r2 := f.startRoom(t, Options{GameType: models.GameShoot, Players: other})

	assert.NoError(t, f.m.Move(ps[0].ID, r.ID, DirDown))
	assert.NoError(t, f.m.Move(ps[0].ID, uuid.Nil, DirUp))

	err := f.m.Move(ps[0].ID, r2.ID, DirDown)
	assert.True(t, errors.Is(err, models.ErrAccessDenied))

	err = f.m.Move(uuid.New(), r.ID, DirDown)
	assert.True(t, errors.Is(err, models.ErrAccessDenied))

	err = f.m.Move(ps[0].ID, r.ID, Direction("sideways"))
	assert.True(t, errors.Is(err, models.ErrAccessDenied))

	err = f.m.Act(ps[0].ID, r.ID, Action{Fire: true})
	assert.True(t, errors.Is(err, models.ErrAccessDenied), "combat actions in a paddle room")

	assert.NoError(t, f.m.Act(other[0].ID, r2.ID, Action{Fire: true}))

	err = f.m.Move(uuid.New(), uuid.New(), DirDown)
	assert.True(t, errors.Is(err, models.ErrEntityNotFound))
}

func TestSpectatorsGetProjection(t *testing.T) {
	f := newFixture(t, manualSettings)
	now := time.Unix(5000, 0)
	f.m.now = func() time.Time { return now }
	ps := twoPlayers()
	watcher := models.Player{ID: uuid.New(), Username: "watcher"}
	r := f.startRoom(t, Options{GameType: models.GameShoot, Players: ps})

	require.NoError(t, f.m.Spectate(watcher, r.ID))
	assert.True(t, errors.Is(f.m.Spectate(ps[0], r.ID), models.ErrAccessDenied))
	_, ok := f.bc.Last(watcher.ID, models.OutInGameComm)
	assert.True(t, ok)

	require.NoError(t, f.m.Act(ps[0].ID, r.ID, Action{Fire: true}))
	r.tick()

	ev, ok := f.bc.Last(ps[0].ID, models.OutShootUpdate)
	require.True(t, ok)
	assert.Equal(t, FireCooldown.Milliseconds(), ev.Payload.(ShootUpdate).Actors[0].FireCooldownMs)

	ev, ok = f.bc.Last(watcher.ID, models.OutShootUpdate)
	require.True(t, ok)
	spec := ev.Payload.(ShootUpdate)
	assert.Zero(t, spec.Actors[0].FireCooldownMs)
	assert.Len(t, spec.Projectiles, 1)

	evs := f.m.SyncEvents(watcher.ID)
	require.Len(t, evs, 2)
	assert.Equal(t, models.OutSpectatorMode, evs[0].Type)

	f.m.HandleDisconnect(watcher.ID)
	assert.False(t, r.HasSpectator(watcher.ID))
}

func TestDisconnectForfeitsOneOffMatch(t *testing.T) {
	f := newFixture(t, manualSettings)
	ps := twoPlayers()
	r := f.startRoom(t, Options{GameType: models.GamePong, Players: ps})

	assert.True(t, f.m.HandleDisconnect(ps[1].ID))
	assert.Equal(t, StatusIntermission, r.Status())

	ev, ok := f.bc.Last(ps[0].ID, models.OutGameEnded)
	require.True(t, ok)
	assert.Equal(t, ps[0].ID, ev.Payload.(GameEndedPayload).Winner.UUID)
	assert.Equal(t, ReasonForfeit, ev.Payload.(GameEndedPayload).Reason)

	records := f.rec.all()
	require.Len(t, records, 1)
	assert.Equal(t, ReasonForfeit, records[0].Reason)

	assert.False(t, f.m.HandleDisconnect(ps[0].ID), "nothing left to forfeit")
}

func TestDisconnectBeforeStartForfeits(t *testing.T) {
	f := newFixture(t, manualSettings)
	ps := twoPlayers()
	r, err := f.m.Create(Options{GameType: models.GameShoot, Players: ps})
	require.NoError(t, err)

	assert.True(t, f.m.HandleDisconnect(ps[0].ID))
	res, ok := r.Result()
	require.True(t, ok)
	assert.Equal(t, ps[1].ID, res.Winner)
}

func TestTournamentRoomsAreTornDownNotForfeited(t *testing.T) {
	f := newFixture(t, manualSettings)
	ps := twoPlayers()
	tid := uuid.New()
	r := f.startRoom(t, Options{GameType: models.GamePong, Players: ps, TournamentID: tid, MatchID: uuid.New()})

	assert.False(t, f.m.HandleDisconnect(ps[0].ID))
	assert.Equal(t, StatusInProgress, r.Status())

	assert.Equal(t, 1, f.m.TerminateTournament(tid))
	assert.Equal(t, StatusTerminated, r.Status())
	assert.Equal(t, 0, f.m.Count())
	assert.Empty(t, f.rec.all(), "cancelled matches are not recorded")

	_, err := f.m.Get(r.ID)
	assert.True(t, errors.Is(err, models.ErrEntityNotFound))
	err = f.m.Move(ps[0].ID, r.ID, DirUp)
	assert.True(t, errors.Is(err, models.ErrEntityNotFound), "stale room lookups fail closed")
}

func TestInvariantViolationIsolatedToRoom(t *testing.T) {
	f := newFixture(t, manualSettings)
	ps := twoPlayers()
	other := twoPlayers()
	broken := f.startRoom(t, Options{GameType: models.GamePong, Players: ps})
	healthy := f.startRoom(t, Options{GameType: models.GamePong, Players: other})

	broken.mu.Lock()
	broken.state = nil
	broken.mu.Unlock()

	err := f.m.Move(ps[0].ID, broken.ID, DirUp)
	assert.True(t, errors.Is(err, models.ErrInvariantViolation))
	assert.Equal(t, StatusTerminated, broken.Status())

	ev, ok := f.bc.Last(ps[1].ID, models.OutGameEnded)
	require.True(t, ok)
	assert.Equal(t, ReasonError, ev.Payload.(GameEndedPayload).Reason)

	assert.Equal(t, StatusInProgress, healthy.Status())
	assert.NoError(t, f.m.Move(other[0].ID, healthy.ID, DirUp))
	assert.Equal(t, 1, f.m.Count())
}

func TestTickerDrivesSimulationAndGraceRemovesRoom(t *testing.T) {
	f := newFixture(t, Settings{
		TickInterval:  2 * time.Millisecond,
		Grace:         10 * time.Millisecond,
		PongMaxScore:  5,
		RecordTimeout: time.Second,
	})
	ps := twoPlayers()
	r := f.startRoom(t, Options{GameType: models.GamePong, Players: ps})

	require.Eventually(t, func() bool {
		return len(f.bc.OfType(ps[0].ID, models.OutPongUpdate)) > 3
	}, time.Second, 2*time.Millisecond)

	assert.True(t, r.Forfeit(ps[0].ID))
	require.Eventually(t, func() bool { return f.m.Count() == 0 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, StatusTerminated, r.Status())
}

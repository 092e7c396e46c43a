// internal/game/room.go
package game

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/arena/internal/models"
	"github.com/jason-s-yu/arena/internal/registry"
	"github.com/sirupsen/logrus"
)

// Status is the room lifecycle state.
type Status string

const (
	StatusWaiting      Status = "waiting_for_players"
	StatusLobby        Status = "lobby"
	StatusInProgress   Status = "in_progress"
	StatusIntermission Status = "intermission"
	StatusTerminated   Status = "terminated"
)

// End reasons reported in game-ended and match records.
const (
	ReasonScore     = "score"
	ReasonKnockout  = "knockout"
	ReasonForfeit   = "forfeit"
	ReasonCancelled = "cancelled"
	ReasonError     = "error"
)

// State is a room's simulation state, either *PongState or *ShootState.
type State interface {
	gameState()
}

// Recorder is the match history collaborator.
type Recorder interface {
	RecordMatch(ctx context.Context, rec models.MatchRecord) error
}

// Settings are shared by every room.
type Settings struct {
	TickRate int
	// TickInterval overrides TickRate when set.
	TickInterval  time.Duration
	Grace         time.Duration
	PongMaxScore  int
	RecordTimeout time.Duration
}

// DefaultSettings runs rooms at 60Hz.
var DefaultSettings = Settings{
	TickRate:      60,
	Grace:         10 * time.Second,
	PongMaxScore:  DefaultMaxScore,
	RecordTimeout: 5 * time.Second,
}

func (s Settings) tickInterval() time.Duration {
	if s.TickInterval > 0 {
		return s.TickInterval
	}
	if s.TickRate <= 0 {
		return time.Second / time.Duration(DefaultSettings.TickRate)
	}
	return time.Second / time.Duration(s.TickRate)
}

// Options describe the match a room is created for.
type Options struct {
	ID           uuid.UUID
	GameType     models.GameType
	Players      [2]models.Player
	Spectators   []models.Player
	TournamentID uuid.UUID
	MatchID      uuid.UUID
}

// Result is a finished match's outcome.
type Result struct {
	RoomID       uuid.UUID
	TournamentID uuid.UUID
	MatchID      uuid.UUID
	GameType     models.GameType
	Players      [2]models.Player
	Winner       uuid.UUID
	Score        [2]int
	Reason       string
}

type outbound struct {
	to []uuid.UUID
	ev models.Event
}

// Room owns one match: its config handshake, simulation and tick loop.
type Room struct {
	ID           uuid.UUID
	GameType     models.GameType
	TournamentID uuid.UUID
	MatchID      uuid.UUID
	Players      [2]models.Player

	mu         sync.Mutex
	status     Status
	configs    [2]PlayerConfig
	spectators []models.Player
	state      State
	result     *Result
	stop       chan struct{}
	destroy    *time.Timer

	bc          registry.Broadcaster
	recorder    Recorder
	settings    Settings
	logger      *logrus.Entry
	now         func() time.Time
	onEnd       func(*Room, Result)
	onDestroy   func(*Room)
	observeTick func(time.Duration)
}

func newRoom(opts Options, m *Manager) *Room {
	if opts.ID == uuid.Nil {
		opts.ID = uuid.New()
	}
	r := &Room{
		ID:           opts.ID,
		GameType:     opts.GameType,
		TournamentID: opts.TournamentID,
		MatchID:      opts.MatchID,
		Players:      opts.Players,
		status:       StatusWaiting,
		spectators:   append([]models.Player(nil), opts.Spectators...),
		bc:           m.bc,
		recorder:     m.recorder,
		settings:     m.settings,
		logger: m.logger.WithFields(logrus.Fields{
			"room": opts.ID,
			"game": opts.GameType,
		}),
		now:         m.now,
		onEnd:       m.matchEnded,
		onDestroy:   m.remove,
		observeTick: m.ObserveTick,
	}
	for i := range r.configs {
		r.configs[i] = defaultConfig(opts.GameType, i)
	}
	return r
}

func (r *Room) slot(playerID uuid.UUID) int {
	for i, p := range r.Players {
		if p.ID == playerID {
			return i
		}
	}
	return -1
}

func (r *Room) participantIDs() []uuid.UUID {
	return []uuid.UUID{r.Players[0].ID, r.Players[1].ID}
}

// spectatorIDs assumes lock is held.
func (r *Room) spectatorIDs() []uuid.UUID {
	return models.PlayerIDs(r.spectators)
}

func (r *Room) everyoneUnsafe() []uuid.UUID {
	return append(r.participantIDs(), r.spectatorIDs()...)
}

func (r *Room) send(out []outbound) {
	for _, o := range out {
		if len(o.to) > 0 {
			r.bc.SendMany(o.to, o.ev)
		}
	}
}

// Status returns the room's lifecycle state.
func (r *Room) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// Result returns the outcome once the match has ended.
func (r *Room) Result() (Result, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.result == nil {
		return Result{}, false
	}
	return *r.result, true
}

// Open moves the room into the config handshake and routes participants and
// spectators to their views.
func (r *Room) Open() {
	r.mu.Lock()
	if r.status != StatusWaiting {
		r.mu.Unlock()
		return
	}
	r.status = StatusLobby
	var out []outbound
	for i, p := range r.Players {
		out = append(out, outbound{to: []uuid.UUID{p.ID}, ev: r.matchConfigUnsafe(i)})
	}
	out = append(out, outbound{to: r.spectatorIDs(), ev: r.spectatorModeEvent()})
	r.mu.Unlock()

	r.logger.Info("room opened for configuration")
	r.send(out)
}

func (r *Room) matchConfigUnsafe(slot int) models.Event {
	p := MatchConfigPayload{
		RoomID:       r.ID,
		GameType:     r.GameType,
		TournamentID: uuid.NullUUID{UUID: r.TournamentID, Valid: r.TournamentID != uuid.Nil},
		Players:      r.Players,
		You:          r.configs[slot],
	}
	if r.GameType == models.GameShoot {
		p.Maps = MapIDs()
	}
	return models.Event{Type: models.OutMatchConfig, Payload: p}
}

func (r *Room) spectatorModeEvent() models.Event {
	return models.Event{Type: models.OutSpectatorMode, Payload: SpectatorPayload{
		RoomID:   r.ID,
		GameType: r.GameType,
		Players:  r.Players,
	}}
}

func (r *Room) configUpdateUnsafe() models.Event {
	entries := make([]ConfigEntry, len(r.Players))
	for i, p := range r.Players {
		entries[i] = ConfigEntry{PlayerID: p.ID, PlayerConfig: r.configs[i]}
	}
	return models.Event{Type: models.OutConfigUpdate, Payload: ConfigUpdatePayload{RoomID: r.ID, Configs: entries}}
}

// Configure applies a participant's config change. The match starts as soon
// as both participants are ready.
func (r *Room) Configure(playerID uuid.UUID, u ConfigUpdate) error {
	r.mu.Lock()
	slot := r.slot(playerID)
	if slot < 0 {
		r.mu.Unlock()
		return fmt.Errorf("player %s is not in room %s: %w", playerID, r.ID, models.ErrAccessDenied)
	}
	if r.status != StatusLobby {
		r.mu.Unlock()
		return fmt.Errorf("room %s is %s: %w", r.ID, r.status, models.ErrAccessDenied)
	}
	if err := r.configs[slot].apply(r.GameType, u); err != nil {
		r.mu.Unlock()
		return err
	}

	everyone := r.everyoneUnsafe()
	out := []outbound{{to: everyone, ev: r.configUpdateUnsafe()}}
	if r.configs[0].Ready && r.configs[1].Ready {
		out = append(out, r.startUnsafe()...)
	}
	r.mu.Unlock()

	r.send(out)
	return nil
}

// SetReady toggles the participant's readiness.
func (r *Room) SetReady(playerID uuid.UUID, ready bool) error {
	return r.Configure(playerID, ConfigUpdate{Ready: &ready})
}

func (r *Room) seed() int64 {
	return int64(binary.BigEndian.Uint64(r.ID[:8]))
}

// startUnsafe builds the simulation from the submitted configs and starts
// the tick loop. Assumes lock is held.
func (r *Room) startUnsafe() []outbound {
	ids := [2]uuid.UUID{r.Players[0].ID, r.Players[1].ID}
	switch r.GameType {
	case models.GamePong:
		st := NewPongState(ids, r.configs, r.settings.PongMaxScore, r.seed())
		st.Kickoff()
		r.state = st
	case models.GameShoot:
		mapID := r.configs[0].MapID
		if mapID == "" {
			mapID = r.configs[1].MapID
		}
		r.state = NewShootState(ids, r.configs, mapID)
	}
	r.status = StatusInProgress
	r.stop = make(chan struct{})
	go r.loop(r.stop)

	r.logger.Info("match started")
	return []outbound{
		{to: r.participantIDs(), ev: r.inGameUnsafe(false)},
		{to: r.spectatorIDs(), ev: r.inGameUnsafe(true)},
	}
}

func (r *Room) loop(stop <-chan struct{}) {
	defer func() {
		if rec := recover(); rec != nil {
			r.fail(fmt.Errorf("tick panicked: %v: %w", rec, models.ErrInvariantViolation))
		}
	}()
	ticker := time.NewTicker(r.settings.tickInterval())
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			r.tick()
		}
	}
}

// tick runs one simulation step and broadcasts its result. Ticks of one
// room never overlap because only the loop goroutine calls it.
func (r *Room) tick() {
	start := time.Now()
	out, res, err := r.step()
	if err != nil {
		r.fail(err)
		return
	}
	r.send(out)
	if res != nil {
		r.finish(*res)
	}
	if r.observeTick != nil {
		r.observeTick(time.Since(start))
	}
}

func (r *Room) step() ([]outbound, *Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status != StatusInProgress {
		return nil, nil, nil
	}

	var res *Result
	switch st := r.state.(type) {
	case *PongState:
		scorer, over := st.Step()
		if over {
			res = r.endUnsafe(scorer, ReasonScore)
		}
	case *ShootState:
		if winner := st.Step(); winner >= 0 {
			res = r.endUnsafe(winner, ReasonKnockout)
		}
	default:
		return nil, nil, fmt.Errorf("room %s has no simulation state: %w", r.ID, models.ErrInvariantViolation)
	}
	return r.updatesUnsafe(), res, nil
}

// updatesUnsafe builds the per-tick update for participants and the
// projection for spectators. Assumes lock is held.
func (r *Room) updatesUnsafe() []outbound {
	var full, spectator interface{}
	var t models.EventType
	switch st := r.state.(type) {
	case *PongState:
		t = models.OutPongUpdate
		full, spectator = st.update(r.ID, false), st.update(r.ID, true)
	case *ShootState:
		t = models.OutShootUpdate
		now := r.now()
		full, spectator = st.update(r.ID, false, now), st.update(r.ID, true, now)
	default:
		return nil
	}
	return []outbound{
		{to: r.participantIDs(), ev: models.Event{Type: t, Payload: full}},
		{to: r.spectatorIDs(), ev: models.Event{Type: t, Payload: spectator}},
	}
}

func (r *Room) inGameUnsafe(spectator bool) models.Event {
	p := InGamePayload{
		RoomID:   r.ID,
		GameType: r.GameType,
		Status:   r.status,
		Players:  r.Players,
	}
	switch st := r.state.(type) {
	case *PongState:
		p.State = st.update(r.ID, spectator)
	case *ShootState:
		p.State = st.update(r.ID, spectator, r.now())
	}
	return models.Event{Type: models.OutInGameComm, Payload: p}
}

// Move applies a paddle-move command.
func (r *Room) Move(playerID uuid.UUID, dir Direction) error {
	switch dir {
	case DirUp, DirDown, DirStop:
	default:
		return fmt.Errorf("direction %q: %w", dir, models.ErrAccessDenied)
	}

	r.mu.Lock()
	slot, err := r.actionSlotUnsafe(playerID, models.GamePong)
	if err != nil {
		r.mu.Unlock()
		return err
	}
	st, ok := r.state.(*PongState)
	if !ok {
		r.mu.Unlock()
		err := fmt.Errorf("room %s has no paddle state: %w", r.ID, models.ErrInvariantViolation)
		r.fail(err)
		return err
	}
	st.Move(slot, dir)
	r.mu.Unlock()
	return nil
}

// Act applies a player-action command.
func (r *Room) Act(playerID uuid.UUID, a Action) error {
	r.mu.Lock()
	slot, err := r.actionSlotUnsafe(playerID, models.GameShoot)
	if err != nil {
		r.mu.Unlock()
		return err
	}
	st, ok := r.state.(*ShootState)
	if !ok {
		r.mu.Unlock()
		err := fmt.Errorf("room %s has no combat state: %w", r.ID, models.ErrInvariantViolation)
		r.fail(err)
		return err
	}
	st.Apply(slot, a, r.now())
	r.mu.Unlock()
	return nil
}

// actionSlotUnsafe checks that playerID may act in a running room of type t.
func (r *Room) actionSlotUnsafe(playerID uuid.UUID, t models.GameType) (int, error) {
	slot := r.slot(playerID)
	if slot < 0 {
		return -1, fmt.Errorf("player %s is not in room %s: %w", playerID, r.ID, models.ErrAccessDenied)
	}
	if r.GameType != t {
		return -1, fmt.Errorf("room %s plays %s: %w", r.ID, r.GameType, models.ErrAccessDenied)
	}
	if r.status != StatusInProgress {
		return -1, fmt.Errorf("room %s is %s: %w", r.ID, r.status, models.ErrAccessDenied)
	}
	return slot, nil
}

// Spectate adds p as a read-only observer.
func (r *Room) Spectate(p models.Player) error {
	r.mu.Lock()
	if r.status == StatusTerminated {
		r.mu.Unlock()
		return fmt.Errorf("room %s: %w", r.ID, models.ErrEntityNotFound)
	}
	if r.slot(p.ID) >= 0 {
		r.mu.Unlock()
		return fmt.Errorf("player %s plays in room %s: %w", p.ID, r.ID, models.ErrAccessDenied)
	}
	found := false
	for _, s := range r.spectators {
		if s.ID == p.ID {
			found = true
			break
		}
	}
	if !found {
		r.spectators = append(r.spectators, p)
	}
	out := []outbound{{to: []uuid.UUID{p.ID}, ev: r.spectatorModeEvent()}}
	if r.state != nil {
		out = append(out, outbound{to: []uuid.UUID{p.ID}, ev: r.inGameUnsafe(true)})
	}
	r.mu.Unlock()

	r.send(out)
	return nil
}

// RemoveSpectator drops an observer.
func (r *Room) RemoveSpectator(id uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, s := range r.spectators {
		if s.ID == id {
			r.spectators = append(r.spectators[:i], r.spectators[i+1:]...)
			return true
		}
	}
	return false
}

// HasSpectator reports whether id is watching the room.
func (r *Room) HasSpectator(id uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.spectators {
		if s.ID == id {
			return true
		}
	}
	return false
}

// SyncEvents returns what a reconnecting participant or spectator needs to
// rebuild their view of the room.
func (r *Room) SyncEvents(playerID uuid.UUID) []models.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status == StatusTerminated {
		return nil
	}
	slot := r.slot(playerID)
	if slot < 0 {
		return []models.Event{r.spectatorModeEvent(), r.inGameUnsafe(true)}
	}
	if r.status == StatusLobby {
		return []models.Event{r.matchConfigUnsafe(slot), r.configUpdateUnsafe()}
	}
	return []models.Event{r.inGameUnsafe(false)}
}

// endUnsafe stops the simulation and records the outcome. Assumes lock is held.
func (r *Room) endUnsafe(winnerSlot int, reason string) *Result {
	r.stopUnsafe()
	r.status = StatusIntermission

	res := Result{
		RoomID:       r.ID,
		TournamentID: r.TournamentID,
		MatchID:      r.MatchID,
		GameType:     r.GameType,
		Players:      r.Players,
		Reason:       reason,
	}
	if winnerSlot >= 0 {
		res.Winner = r.Players[winnerSlot].ID
	}
	switch st := r.state.(type) {
	case *PongState:
		res.Score = st.Score
	default:
		if winnerSlot >= 0 {
			res.Score[winnerSlot] = 1
		}
	}
	r.result = &res
	return &res
}

func (r *Room) stopUnsafe() {
	if r.stop != nil {
		close(r.stop)
		r.stop = nil
	}
}

// finish announces and records a result, then schedules the room's removal.
func (r *Room) finish(res Result) {
	r.mu.Lock()
	everyone := r.everyoneUnsafe()
	r.mu.Unlock()

	r.logger.WithFields(logrus.Fields{
		"winner": res.Winner,
		"score":  res.Score,
		"reason": res.Reason,
	}).Info("match ended")

	r.bc.SendMany(everyone, models.Event{Type: models.OutGameEnded, Payload: GameEndedPayload{
		RoomID:     r.ID,
		Winner:     uuid.NullUUID{UUID: res.Winner, Valid: res.Winner != uuid.Nil},
		FinalScore: Score{Player1: res.Score[0], Player2: res.Score[1]},
		Reason:     res.Reason,
	}})

	r.record(res)

	if r.onEnd != nil {
		r.onEnd(r, res)
	}

	r.mu.Lock()
	if r.status == StatusIntermission {
		r.destroy = time.AfterFunc(r.settings.Grace, r.expire)
	}
	r.mu.Unlock()
}

func (r *Room) record(res Result) {
	if r.recorder == nil {
		return
	}
	matchID := res.MatchID
	if matchID == uuid.Nil {
		matchID = res.RoomID
	}
	rec := models.MatchRecord{
		MatchID:      matchID,
		GameType:     res.GameType,
		Players:      []uuid.UUID{res.Players[0].ID, res.Players[1].ID},
		Winner:       res.Winner,
		Score:        res.Score,
		Reason:       res.Reason,
		TournamentID: res.TournamentID,
		EndedAt:      r.now(),
	}
	ctx, cancel := context.WithTimeout(context.Background(), r.settings.RecordTimeout)
	defer cancel()
	if err := r.recorder.RecordMatch(ctx, rec); err != nil {
		r.logger.WithError(err).Error("failed to record match")
	}
}

// Forfeit ends an unfinished match in favour of the other participant.
func (r *Room) Forfeit(loserID uuid.UUID) bool {
	r.mu.Lock()
	slot := r.slot(loserID)
	if slot < 0 || r.status == StatusIntermission || r.status == StatusTerminated {
		r.mu.Unlock()
		return false
	}
	res := r.endUnsafe(1-slot, ReasonForfeit)
	r.mu.Unlock()

	r.finish(*res)
	return true
}

// Terminate tears the room down immediately without recording a result.
func (r *Room) Terminate(reason string) {
	r.mu.Lock()
	if r.status == StatusTerminated {
		r.mu.Unlock()
		return
	}
	notify := r.status != StatusIntermission
	r.stopUnsafe()
	r.status = StatusTerminated
	if r.destroy != nil {
		r.destroy.Stop()
	}
	everyone := r.everyoneUnsafe()
	var score Score
	if st, ok := r.state.(*PongState); ok {
		score = Score{Player1: st.Score[0], Player2: st.Score[1]}
	}
	r.mu.Unlock()

	r.logger.Infof("room terminated: %s", reason)
	if notify {
		r.bc.SendMany(everyone, models.Event{Type: models.OutGameEnded, Payload: GameEndedPayload{
			RoomID:     r.ID,
			FinalScore: score,
			Reason:     reason,
		}})
	}
	if r.onDestroy != nil {
		r.onDestroy(r)
	}
}

// fail isolates a broken room: it is terminated, nothing else is touched.
func (r *Room) fail(err error) {
	r.logger.WithError(err).Error("room failed")
	r.Terminate(ReasonError)
}

// expire removes a finished room once its grace period is over.
func (r *Room) expire() {
	r.mu.Lock()
	if r.status != StatusIntermission {
		r.mu.Unlock()
		return
	}
	r.status = StatusTerminated
	r.mu.Unlock()

	if r.onDestroy != nil {
		r.onDestroy(r)
	}
}

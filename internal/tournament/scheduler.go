// internal/tournament/scheduler.go
package tournament

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/arena/internal/models"
	"github.com/jason-s-yu/arena/internal/registry"
	"github.com/sirupsen/logrus"
)

// MatchSpec describes a bracket match that needs a game room.
type MatchSpec struct {
	TournamentID uuid.UUID
	MatchID      uuid.UUID
	RoomID       uuid.UUID
	Round        int
	GameType     models.GameType
	Players      [2]models.Player
	// Spectators are the tournament members sitting out this match.
	Spectators []models.Player
}

// RoomLauncher starts and tears down the game rooms a tournament plays in.
type RoomLauncher interface {
	LaunchMatch(spec MatchSpec) error
	TeardownTournament(tournamentID uuid.UUID)
}

// Config holds scheduler timings.
type Config struct {
	// Grace is how long a finished or cancelled tournament stays readable.
	Grace time.Duration
}

// Scheduler runs every tournament's bracket, starting one match at a time and
// advancing winners as results arrive.
type Scheduler struct {
	mu          sync.Mutex
	tournaments map[uuid.UUID]*Tournament
	byPlayer    map[uuid.UUID]uuid.UUID

	launcher RoomLauncher
	bc       registry.Broadcaster
	cfg      Config
	logger   *logrus.Logger

	// OnFinish, if set, is called after a tournament completes or is cancelled.
	OnFinish func(Snapshot)
}

// NewScheduler creates a scheduler. The launcher may be nil until SetLauncher.
func NewScheduler(launcher RoomLauncher, bc registry.Broadcaster, cfg Config, logger *logrus.Logger) *Scheduler {
	return &Scheduler{
		tournaments: make(map[uuid.UUID]*Tournament),
		byPlayer:    make(map[uuid.UUID]uuid.UUID),
		launcher:    launcher,
		bc:          bc,
		cfg:         cfg,
		logger:      logger,
	}
}

// SetLauncher installs the room launcher.
func (s *Scheduler) SetLauncher(l RoomLauncher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.launcher = l
}

// Create builds a tournament from a lobby's roster and starts its first match.
func (s *Scheduler) Create(gameType models.GameType, players []models.Player) (uuid.UUID, error) {
	format, matches, err := BuildBracket(players)
	if err != nil {
		return uuid.Nil, fmt.Errorf("create tournament: %w", err)
	}

	t := &Tournament{
		ID:        uuid.New(),
		GameType:  gameType,
		Format:    format,
		Players:   append([]models.Player(nil), players...),
		Matches:   matches,
		Status:    StatusWaiting,
		CreatedAt: time.Now(),
	}

	s.mu.Lock()
	for _, p := range players {
		if other, ok := s.byPlayer[p.ID]; ok {
			s.mu.Unlock()
			return uuid.Nil, fmt.Errorf("player %s already in tournament %s: %w", p.ID, other, models.ErrAccessDenied)
		}
	}
	s.tournaments[t.ID] = t
	for _, p := range players {
		s.byPlayer[p.ID] = t.ID
	}
	ids := t.playerIDs()
	var byes []models.Event
	for _, m := range matches {
		if m.Bye {
			byes = append(byes, matchEnded(t, m))
		}
	}
	starting := StartingPayload{TournamentID: t.ID, GameType: gameType, Format: format, Players: t.Players}
	bracket := t.bracketPayload()
	s.mu.Unlock()

	s.logger.WithFields(logrus.Fields{
		"tournament": t.ID,
		"game":       gameType,
		"format":     format,
		"players":    len(players),
	}).Info("tournament created")

	s.bc.SendMany(ids, models.Event{Type: models.OutTournamentStarting, Payload: starting})
	for _, ev := range byes {
		s.bc.SendMany(ids, ev)
	}
	s.bc.SendMany(ids, models.Event{Type: models.OutTournamentBracket, Payload: bracket})

	s.advance(t.ID)
	return t.ID, nil
}

// advance starts the next playable match, or completes the tournament when
// every match is done. It does nothing while a match is running.
func (s *Scheduler) advance(tid uuid.UUID) {
	s.mu.Lock()
	t, ok := s.tournaments[tid]
	if !ok || !t.active() || t.CurrentMatch != uuid.Nil {
		s.mu.Unlock()
		return
	}

	var events []models.Event
	for _, m := range Advance(t.Matches) {
		events = append(events, matchEnded(t, m))
	}
	ids := t.playerIDs()

	next := NextPlayable(t.Matches)
	if next == nil {
		if !AllCompleted(t.Matches) {
			s.mu.Unlock()
			s.logger.Errorf("tournament %s: no playable match but bracket incomplete", tid)
			s.Cancel(tid, "bracket could not advance")
			return
		}
		s.completeUnsafe(t)
		events = append(events,
			models.Event{Type: models.OutTournamentBracket, Payload: t.bracketPayload()},
			models.Event{Type: models.OutTournamentEnded, Payload: t.endedPayload()},
		)
		snap := t.snapshot()
		s.mu.Unlock()

		s.logger.Infof("tournament %s: completed, winner %s", tid, snap.Winner)
		for _, ev := range events {
			s.bc.SendMany(ids, ev)
		}
		if s.OnFinish != nil {
			s.OnFinish(snap)
		}
		return
	}

	next.Status = MatchInProgress
	next.RoomID = uuid.New()
	t.CurrentMatch = next.ID
	t.Status = StatusInProgress

	spec := MatchSpec{
		TournamentID: t.ID,
		MatchID:      next.ID,
		RoomID:       next.RoomID,
		Round:        next.Round,
		GameType:     t.GameType,
		Players:      [2]models.Player{t.player(next.Player1), t.player(next.Player2)},
	}
	for _, id := range t.spectators() {
		spec.Spectators = append(spec.Spectators, t.player(id))
	}
	events = append(events,
		models.Event{Type: models.OutTournamentMatchStarting, Payload: MatchStartingPayload{
			TournamentID: t.ID,
			MatchID:      next.ID,
			RoomID:       next.RoomID,
			Round:        next.Round,
			Player1:      spec.Players[0],
			Player2:      spec.Players[1],
		}},
		models.Event{Type: models.OutTournamentBracket, Payload: t.bracketPayload()},
	)
	launcher := s.launcher
	s.mu.Unlock()

	for _, ev := range events {
		s.bc.SendMany(ids, ev)
	}

	s.logger.WithFields(logrus.Fields{
		"tournament": tid,
		"match":      spec.MatchID,
		"room":       spec.RoomID,
		"round":      spec.Round,
	}).Info("starting tournament match")

	if launcher == nil {
		s.Cancel(tid, "no game rooms available")
		return
	}
	if err := launcher.LaunchMatch(spec); err != nil {
		s.logger.WithError(err).Errorf("tournament %s: launching match %s failed", tid, spec.MatchID)
		s.Cancel(tid, "could not start match")
		return
	}

	// A disconnect may have cancelled the tournament while the room was being created.
	s.mu.Lock()
	cancelled := t.Status == StatusCancelled
	s.mu.Unlock()
	if cancelled {
		launcher.TeardownTournament(tid)
	}
}

// completeUnsafe marks t completed and releases its players. Assumes lock is held.
func (s *Scheduler) completeUnsafe(t *Tournament) {
	final := Final(t.Matches)
	t.Status = StatusCompleted
	t.CurrentMatch = uuid.Nil
	t.Winner = final.Winner
	t.Ranking = Ranking(t.Format, t.Matches)
	t.EndedAt = time.Now()
	s.releaseUnsafe(t)
}

// releaseUnsafe frees t's players and schedules its removal. Assumes lock is held.
func (s *Scheduler) releaseUnsafe(t *Tournament) {
	for _, p := range t.Players {
		if s.byPlayer[p.ID] == t.ID {
			delete(s.byPlayer, p.ID)
		}
	}
	id := t.ID
	t.removal = time.AfterFunc(s.cfg.Grace, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.tournaments, id)
	})
}

// MatchEnded records the winner of a running match and advances the bracket.
func (s *Scheduler) MatchEnded(tid, matchID, winner uuid.UUID) error {
	s.mu.Lock()
	t, ok := s.tournaments[tid]
	if !ok || !t.active() {
		s.mu.Unlock()
		return fmt.Errorf("tournament %s: %w", tid, models.ErrEntityNotFound)
	}
	m := t.match(matchID)
	if m == nil {
		s.mu.Unlock()
		return fmt.Errorf("match %s: %w", matchID, models.ErrEntityNotFound)
	}
	if m.Status != MatchInProgress {
		s.mu.Unlock()
		return fmt.Errorf("match %s is %s: %w", matchID, m.Status, models.ErrAccessDenied)
	}
	if !m.Has(winner) {
		s.mu.Unlock()
		return fmt.Errorf("winner %s not in match %s: %w", winner, matchID, models.ErrAccessDenied)
	}

	m.Winner = winner
	m.Status = MatchCompleted
	if t.CurrentMatch == m.ID {
		t.CurrentMatch = uuid.Nil
	}
	ids := t.playerIDs()
	ended := matchEnded(t, m)
	s.mu.Unlock()

	s.logger.Infof("tournament %s: match %s (round %d) won by %s", tid, matchID, m.Round, winner)
	s.bc.SendMany(ids, ended)

	s.advance(tid)
	return nil
}

// Cancel voids an active tournament, tearing down its rooms. It reports
// whether the tournament was active.
func (s *Scheduler) Cancel(tid uuid.UUID, reason string) bool {
	s.mu.Lock()
	t, ok := s.tournaments[tid]
	if !ok || !t.active() {
		s.mu.Unlock()
		return false
	}
	t.Status = StatusCancelled
	t.CurrentMatch = uuid.Nil
	t.EndedAt = time.Now()
	for _, m := range t.Matches {
		if m.Status == MatchInProgress {
			m.Status = MatchPending
		}
	}
	s.releaseUnsafe(t)
	ids := t.playerIDs()
	snap := t.snapshot()
	launcher := s.launcher
	s.mu.Unlock()

	s.logger.WithField("tournament", tid).Warnf("tournament cancelled: %s", reason)

	if launcher != nil {
		launcher.TeardownTournament(tid)
	}
	s.bc.SendMany(ids, models.Event{Type: models.OutTournamentCancelled, Payload: CancelledPayload{
		TournamentID: tid,
		Reason:       reason,
	}})
	if s.OnFinish != nil {
		s.OnFinish(snap)
	}
	return true
}

// HandleDisconnect cancels the active tournament the player belongs to.
func (s *Scheduler) HandleDisconnect(p models.Player) bool {
	s.mu.Lock()
	tid, ok := s.byPlayer[p.ID]
	s.mu.Unlock()
	if !ok {
		return false
	}
	name := p.Username
	if name == "" {
		name = p.ID.String()
	}
	return s.Cancel(tid, fmt.Sprintf("%s disconnected", name))
}

// TournamentOf returns the active tournament holding the player.
func (s *Scheduler) TournamentOf(playerID uuid.UUID) (uuid.UUID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tid, ok := s.byPlayer[playerID]
	return tid, ok
}

// Get returns a snapshot of a tournament, including finished ones still in grace.
func (s *Scheduler) Get(tid uuid.UUID) (Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tournaments[tid]
	if !ok {
		return Snapshot{}, false
	}
	return t.snapshot(), true
}

// BracketEvent returns the current tournament-bracket event for tid.
func (s *Scheduler) BracketEvent(tid uuid.UUID) (models.Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tournaments[tid]
	if !ok {
		return models.Event{}, false
	}
	return models.Event{Type: models.OutTournamentBracket, Payload: t.bracketPayload()}, true
}

// Count returns the number of active tournaments.
func (s *Scheduler) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.tournaments {
		if t.active() {
			n++
		}
	}
	return n
}

// Close stops pending removal timers.
func (s *Scheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tournaments {
		if t.removal != nil {
			t.removal.Stop()
		}
	}
}

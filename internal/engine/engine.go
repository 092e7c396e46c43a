// internal/engine/engine.go
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/arena/internal/game"
	"github.com/jason-s-yu/arena/internal/lobby"
	"github.com/jason-s-yu/arena/internal/matchmaking"
	"github.com/jason-s-yu/arena/internal/models"
	"github.com/jason-s-yu/arena/internal/monitor"
	"github.com/jason-s-yu/arena/internal/registry"
	"github.com/jason-s-yu/arena/internal/tournament"
	"github.com/sirupsen/logrus"
)

// PlayerFinder is the identity collaborator.
type PlayerFinder interface {
	FindPlayer(ctx context.Context, id uuid.UUID) (models.Player, error)
}

// Config collects the timings of every engine component.
type Config struct {
	// QueueScanInterval is how often queued players are moved into lobbies.
	QueueScanInterval time.Duration
	Lobby             lobby.Config
	Tournament        tournament.Config
	Rooms             game.Settings
	// OutboundBuffer is the per-connection frame buffer.
	OutboundBuffer int
	MessageRate    float64
	MessageBurst   int
}

// DefaultConfig mirrors the production defaults.
var DefaultConfig = Config{
	QueueScanInterval: 3 * time.Second,
	Lobby:             lobby.DefaultConfig,
	Tournament:        tournament.Config{Grace: 30 * time.Second},
	Rooms:             game.DefaultSettings,
	OutboundBuffer:    256,
	MessageRate:       60,
	MessageBurst:      120,
}

// Engine couples the queue, lobbies, tournaments and rooms, and routes every
// client event to them.
type Engine struct {
	registry    *registry.Registry
	queue       *matchmaking.Queue
	lobbies     *lobby.Manager
	tournaments *tournament.Scheduler
	rooms       *game.Manager
	challenges  *challengeBook

	finder  PlayerFinder
	metrics *monitor.Metrics
	cfg     Config
	logger  *logrus.Logger
}

// New wires an engine. metrics may be nil.
func New(cfg Config, finder PlayerFinder, recorder game.Recorder, metrics *monitor.Metrics, logger *logrus.Logger) *Engine {
	if cfg.QueueScanInterval <= 0 {
		cfg.QueueScanInterval = DefaultConfig.QueueScanInterval
	}
	if cfg.OutboundBuffer <= 0 {
		cfg.OutboundBuffer = DefaultConfig.OutboundBuffer
	}

	reg := registry.New(logger)
	q := matchmaking.NewQueue()
	e := &Engine{
		registry:   reg,
		queue:      q,
		lobbies:    lobby.NewManager(q, reg, cfg.Lobby, logger),
		rooms:      game.NewManager(reg, recorder, cfg.Rooms, logger),
		challenges: newChallengeBook(),
		finder:     finder,
		metrics:    metrics,
		cfg:        cfg,
		logger:     logger,
	}
	e.tournaments = tournament.NewScheduler(e, reg, cfg.Tournament, logger)

	e.lobbies.OnReady = e.startTournament
	e.rooms.OnMatchEnd = e.matchEnded
	e.rooms.ObserveTick = metrics.ObserveTick
	e.tournaments.OnFinish = func(tournament.Snapshot) { e.refreshGauges() }
	return e
}

// Registry returns the connection registry.
func (e *Engine) Registry() *registry.Registry { return e.registry }

// Queue returns the matchmaking queue.
func (e *Engine) Queue() *matchmaking.Queue { return e.queue }

// Lobbies returns the lobby manager.
func (e *Engine) Lobbies() *lobby.Manager { return e.lobbies }

// Tournaments returns the tournament scheduler.
func (e *Engine) Tournaments() *tournament.Scheduler { return e.tournaments }

// Rooms returns the room manager.
func (e *Engine) Rooms() *game.Manager { return e.rooms }

// Run scans the queue periodically until ctx is done, then shuts every
// component down.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.QueueScanInterval)
	defer ticker.Stop()

	e.logger.Infof("engine: scanning the queue every %s", e.cfg.QueueScanInterval)
	for {
		select {
		case <-ctx.Done():
			e.shutdown()
			return
		case <-ticker.C:
			e.Scan()
		}
	}
}

// Scan runs one queue drain pass.
func (e *Engine) Scan() {
	e.lobbies.Tick()
	e.refreshGauges()
}

func (e *Engine) shutdown() {
	e.logger.Info("engine: shutting down")
	e.lobbies.Close()
	e.rooms.Close()
	e.tournaments.Close()
}

func (e *Engine) refreshGauges() {
	if e.metrics == nil {
		return
	}
	e.metrics.SetOnlinePlayers(e.registry.Count())
	for _, t := range models.GameTypes {
		e.metrics.SetQueued(string(t), e.queue.Len(t))
	}
	e.metrics.SetActive(e.lobbies.Count(), e.tournaments.Count(), e.rooms.Count())
}

// Connect registers a verified player's connection. A player already online
// has the old connection replaced without any disconnect handling, and is
// resynced with whatever they currently belong to.
func (e *Engine) Connect(ctx context.Context, playerID uuid.UUID, cancel context.CancelFunc) (*registry.Connection, error) {
	p, err := e.finder.FindPlayer(ctx, playerID)
	if err != nil {
		return nil, fmt.Errorf("find player %s: %w", playerID, err)
	}

	conn := registry.NewConnection(p, e.cfg.OutboundBuffer, e.cfg.MessageRate, e.cfg.MessageBurst, cancel)
	replaced := e.registry.Register(conn)
	e.logger.WithFields(logrus.Fields{"player": p.ID, "username": p.Username, "replaced": replaced}).Info("player connected")

	e.sync(p.ID)
	e.refreshGauges()
	return conn, nil
}

// sync resends lobby, tournament and room state to a player.
func (e *Engine) sync(playerID uuid.UUID) {
	if snap, ok := e.lobbies.LobbyOf(playerID); ok {
		e.registry.Send(playerID, lobby.RosterEvent(snap))
	}
	if tid, ok := e.tournaments.TournamentOf(playerID); ok {
		if ev, ok := e.tournaments.BracketEvent(tid); ok {
			e.registry.Send(playerID, ev)
		}
	}
	for _, ev := range e.rooms.SyncEvents(playerID) {
		e.registry.Send(playerID, ev)
	}
}

// Disconnect releases everything a departed player held. It does nothing for
// a connection that was already replaced by a reconnect.
func (e *Engine) Disconnect(conn *registry.Connection) {
	if !e.registry.Unregister(conn) {
		return
	}
	p := conn.Player
	log := e.logger.WithField("player", p.ID)
	log.Info("player disconnected")

	if _, err := e.queue.Dequeue(p.ID); err == nil {
		log.Debug("removed from queue")
	}
	if e.lobbies.RemovePlayer(p.ID) {
		log.Debug("removed from lobby")
	}
	// A scan holding the player while the first dequeue ran may have
	// returned them to the queue.
	if _, err := e.queue.Dequeue(p.ID); err == nil {
		log.Debug("removed from queue after scan")
	}
	e.challenges.dropPlayer(p.ID, e.registry)
	if e.tournaments.HandleDisconnect(p) {
		log.Info("tournament cancelled by disconnect")
	}
	if e.rooms.HandleDisconnect(p.ID) {
		log.Info("match forfeited by disconnect")
	}
	e.refreshGauges()
}

// busy reports whether the player already has an activity.
func (e *Engine) busy(id uuid.UUID) bool {
	if e.queue.Contains(id) || e.lobbies.Contains(id) {
		return true
	}
	if _, ok := e.tournaments.TournamentOf(id); ok {
		return true
	}
	_, ok := e.rooms.RoomOf(id)
	return ok
}

// startTournament converts a finished lobby.
func (e *Engine) startTournament(snap lobby.Snapshot) {
	tid, err := e.tournaments.Create(snap.GameType, snap.Players)
	if err != nil {
		e.logger.WithError(err).Errorf("lobby %s: could not start tournament", snap.ID)
		for _, p := range snap.Players {
			if _, ok := e.registry.Get(p.ID); ok {
				e.queue.Enqueue(p, snap.GameType)
			}
		}
		return
	}
	e.logger.Infof("lobby %s became tournament %s", snap.ID, tid)
	// A player who left after the lobby closed was in no lobby or tournament
	// when their disconnect ran.
	for _, p := range snap.Players {
		if !e.registry.Online(p.ID) && e.tournaments.HandleDisconnect(p) {
			e.logger.WithField("player", p.ID).Info("tournament cancelled, player left during conversion")
			break
		}
	}
	e.refreshGauges()
}

// LaunchMatch opens the room for a tournament match.
func (e *Engine) LaunchMatch(spec tournament.MatchSpec) error {
	_, err := e.rooms.Create(game.Options{
		ID:           spec.RoomID,
		GameType:     spec.GameType,
		Players:      spec.Players,
		Spectators:   spec.Spectators,
		TournamentID: spec.TournamentID,
		MatchID:      spec.MatchID,
	})
	e.refreshGauges()
	return err
}

// TeardownTournament terminates every room of a cancelled tournament.
func (e *Engine) TeardownTournament(tournamentID uuid.UUID) {
	n := e.rooms.TerminateTournament(tournamentID)
	e.logger.Debugf("tournament %s: tore down %d rooms", tournamentID, n)
	e.refreshGauges()
}

// matchEnded forwards tournament results to the scheduler.
func (e *Engine) matchEnded(res game.Result) {
	if res.TournamentID != uuid.Nil {
		if err := e.tournaments.MatchEnded(res.TournamentID, res.MatchID, res.Winner); err != nil {
			e.logger.WithError(err).Warnf("room %s: result not applied to tournament", res.RoomID)
		}
	}
	e.refreshGauges()
}

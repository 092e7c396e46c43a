// internal/tournament/scheduler_test.go
package tournament

import (
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/arena/internal/models"
	"github.com/jason-s-yu/arena/internal/registry/registrytest"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockLauncher struct {
	mock.Mock
}

func (l *mockLauncher) LaunchMatch(spec MatchSpec) error {
	return l.Called(spec).Error(0)
}

func (l *mockLauncher) TeardownTournament(tournamentID uuid.UUID) {
	l.Called(tournamentID)
}

func (l *mockLauncher) specs() []MatchSpec {
	var out []MatchSpec
	for _, c := range l.Calls {
		if c.Method == "LaunchMatch" {
			out = append(out, c.Arguments.Get(0).(MatchSpec))
		}
	}
	return out
}

func newScheduler(t *testing.T) (*Scheduler, *mockLauncher, *registrytest.Broadcaster) {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	l := &mockLauncher{}
	l.On("LaunchMatch", mock.Anything).Return(nil)
	l.On("TeardownTournament", mock.Anything).Return()
	bc := registrytest.New()
	s := NewScheduler(l, bc, Config{Grace: time.Hour}, logger)
	t.Cleanup(s.Close)
	return s, l, bc
}

func TestCreateStartsFirstMatch(t *testing.T) {
	s, l, bc := newScheduler(t)
	ps := makePlayers(3)

	tid, err := s.Create(models.GameShoot, ps)
	require.NoError(t, err)

	snap, ok := s.Get(tid)
	require.True(t, ok)
	assert.Equal(t, StatusInProgress, snap.Status)
	assert.Equal(t, FormatSemifinal, snap.Format)

	var round0 []Match
	for _, m := range snap.Matches {
		if m.Round == 0 {
			round0 = append(round0, m)
		}
	}
	require.Len(t, round0, 2)
	assert.Equal(t, MatchInProgress, round0[0].Status)
	assert.Equal(t, MatchCompleted, round0[1].Status, "bye resolves immediately")
	assert.Equal(t, round0[0].ID, snap.CurrentMatch)

	specs := l.specs()
	require.Len(t, specs, 1)
	assert.Equal(t, [2]models.Player{ps[0], ps[1]}, specs[0].Players)
	assert.Equal(t, []models.Player{ps[2]}, specs[0].Spectators)
	assert.Equal(t, models.GameShoot, specs[0].GameType)

	for _, p := range ps {
		_, ok := bc.Last(p.ID, models.OutTournamentStarting)
		assert.True(t, ok)
		ev, ok := bc.Last(p.ID, models.OutTournamentMatchStarting)
		require.True(t, ok)
		assert.Equal(t, specs[0].RoomID, ev.Payload.(MatchStartingPayload).RoomID)
		tid2, ok := s.TournamentOf(p.ID)
		assert.True(t, ok)
		assert.Equal(t, tid, tid2)
	}

	byes := bc.OfType(ps[2].ID, models.OutTournamentMatchEnded)
	require.Len(t, byes, 1)
	assert.True(t, byes[0].Payload.(MatchEndedPayload).Bye)
}

func TestTournamentRunsToCompletion(t *testing.T) {
	s, l, bc := newScheduler(t)
	ps := makePlayers(4)
	var finished []Snapshot
	s.OnFinish = func(snap Snapshot) { finished = append(finished, snap) }

	tid, err := s.Create(models.GamePong, ps)
	require.NoError(t, err)

	// Player 1 of each match wins.
	for i := 0; i < 3; i++ {
		specs := l.specs()
		require.Len(t, specs, i+1)
		cur := specs[i]
		require.NoError(t, s.MatchEnded(tid, cur.MatchID, cur.Players[0].ID))
	}

	snap, ok := s.Get(tid)
	require.True(t, ok)
	assert.Equal(t, StatusCompleted, snap.Status)
	assert.Equal(t, ps[0].ID, snap.Winner)
	for _, m := range snap.Matches {
		assert.Equal(t, MatchCompleted, m.Status)
	}
	final := snap.Matches[len(snap.Matches)-1]
	assert.Equal(t, final.Winner, snap.Winner)

	ev, ok := bc.Last(ps[3].ID, models.OutTournamentEnded)
	require.True(t, ok)
	ended := ev.Payload.(EndedPayload)
	assert.Equal(t, ps[0], ended.Winner)
	require.Len(t, ended.Ranking, 4)
	assert.Equal(t, RankView{PlayerID: ps[2].ID, Username: ps[2].Username, Rank: 2}, ended.Ranking[1])

	_, busy := s.TournamentOf(ps[0].ID)
	assert.False(t, busy, "players are released on completion")
	assert.Equal(t, 0, s.Count())
	require.Len(t, finished, 1)
}

func TestDuelCompletesAfterOneMatch(t *testing.T) {
	s, l, _ := newScheduler(t)
	ps := makePlayers(2)
	tid, err := s.Create(models.GamePong, ps)
	require.NoError(t, err)

	spec := l.specs()[0]
	assert.Empty(t, spec.Spectators)
	require.NoError(t, s.MatchEnded(tid, spec.MatchID, ps[1].ID))

	snap, _ := s.Get(tid)
	assert.Equal(t, StatusCompleted, snap.Status)
	assert.Equal(t, ps[1].ID, snap.Winner)
	assert.Len(t, l.specs(), 1)
}

func TestMatchEndedRejectsBadResults(t *testing.T) {
	s, l, _ := newScheduler(t)
	ps := makePlayers(4)
	tid, err := s.Create(models.GamePong, ps)
	require.NoError(t, err)
	spec := l.specs()[0]

	err = s.MatchEnded(tid, spec.MatchID, ps[3].ID)
	assert.True(t, errors.Is(err, models.ErrAccessDenied), "winner must have played")

	err = s.MatchEnded(uuid.New(), spec.MatchID, ps[0].ID)
	assert.True(t, errors.Is(err, models.ErrEntityNotFound))

	require.NoError(t, s.MatchEnded(tid, spec.MatchID, ps[0].ID))
	err = s.MatchEnded(tid, spec.MatchID, ps[0].ID)
	assert.True(t, errors.Is(err, models.ErrAccessDenied), "a match ends once")
}

func TestDisconnectCancelsTournament(t *testing.T) {
	s, l, bc := newScheduler(t)
	ps := makePlayers(4)
	tid, err := s.Create(models.GameShoot, ps)
	require.NoError(t, err)

	assert.True(t, s.HandleDisconnect(ps[3]))

	snap, ok := s.Get(tid)
	require.True(t, ok)
	assert.Equal(t, StatusCancelled, snap.Status)
	l.AssertCalled(t, "TeardownTournament", tid)

	for _, p := range ps[:3] {
		ev, ok := bc.Last(p.ID, models.OutTournamentCancelled)
		require.True(t, ok)
		assert.NotEmpty(t, ev.Payload.(CancelledPayload).Reason)
		_, busy := s.TournamentOf(p.ID)
		assert.False(t, busy)
	}

	assert.False(t, s.HandleDisconnect(ps[0]), "already cancelled")
	assert.False(t, s.Cancel(tid, "again"))
	assert.Equal(t, 0, s.Count())

	spec := l.specs()[0]
	err = s.MatchEnded(tid, spec.MatchID, ps[0].ID)
	assert.True(t, errors.Is(err, models.ErrEntityNotFound), "late results are ignored")
}

func TestLaunchFailureCancels(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	l := &mockLauncher{}
	l.On("LaunchMatch", mock.Anything).Return(errors.New("boom"))
	l.On("TeardownTournament", mock.Anything).Return()
	bc := registrytest.New()
	s := NewScheduler(l, bc, Config{Grace: time.Hour}, logger)
	defer s.Close()

	ps := makePlayers(2)
	tid, err := s.Create(models.GamePong, ps)
	require.NoError(t, err)

	snap, _ := s.Get(tid)
	assert.Equal(t, StatusCancelled, snap.Status)
	_, ok := bc.Last(ps[0].ID, models.OutTournamentCancelled)
	assert.True(t, ok)
}

func TestFinishedTournamentRemovedAfterGrace(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	l := &mockLauncher{}
	l.On("LaunchMatch", mock.Anything).Return(nil)
	l.On("TeardownTournament", mock.Anything).Return()
	s := NewScheduler(l, registrytest.New(), Config{Grace: 10 * time.Millisecond}, logger)
	defer s.Close()

	tid, err := s.Create(models.GamePong, makePlayers(2))
	require.NoError(t, err)
	require.True(t, s.Cancel(tid, "test"))

	require.Eventually(t, func() bool {
		_, ok := s.Get(tid)
		return !ok
	}, time.Second, 5*time.Millisecond)
}

func TestCreateRejectsBusyPlayers(t *testing.T) {
	s, _, _ := newScheduler(t)
	ps := makePlayers(2)
	_, err := s.Create(models.GamePong, ps)
	require.NoError(t, err)

	_, err = s.Create(models.GamePong, []models.Player{ps[0], makePlayers(1)[0]})
	assert.True(t, errors.Is(err, models.ErrAccessDenied))
}

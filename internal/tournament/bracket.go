// internal/tournament/bracket.go
package tournament

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/jason-s-yu/arena/internal/models"
)

// Format is the bracket shape chosen from the lobby's final player count.
type Format string

const (
	FormatDuel         Format = "DUEL"
	FormatSemifinal    Format = "SEMIFINAL"
	FormatQuarterfinal Format = "QUARTERFINAL"
)

// MatchStatus tracks a single bracket match.
type MatchStatus string

const (
	MatchPending    MatchStatus = "pending"
	MatchInProgress MatchStatus = "in_progress"
	MatchCompleted  MatchStatus = "completed"
)

// Match is one bracket slot. Empty player slots are uuid.Nil.
type Match struct {
	ID      uuid.UUID
	Round   int
	Index   int
	Player1 uuid.UUID
	Player2 uuid.UUID
	Winner  uuid.UUID
	Status  MatchStatus
	RoomID  uuid.UUID
	// Bye is set when the match resolved without being played.
	Bye bool
}

// Loser returns the player who lost a completed, played match.
func (m *Match) Loser() uuid.UUID {
	if m.Status != MatchCompleted || m.Bye || m.Winner == uuid.Nil {
		return uuid.Nil
	}
	if m.Winner == m.Player1 {
		return m.Player2
	}
	return m.Player1
}

// Playable reports whether the match is waiting with both slots filled.
func (m *Match) Playable() bool {
	return m.Status == MatchPending && m.Player1 != uuid.Nil && m.Player2 != uuid.Nil
}

// Has reports whether id occupies one of the match slots.
func (m *Match) Has(id uuid.UUID) bool {
	return id != uuid.Nil && (m.Player1 == id || m.Player2 == id)
}

// FormatFor picks the bracket format for n players.
func FormatFor(n int) (Format, error) {
	switch {
	case n == 2:
		return FormatDuel, nil
	case n >= 3 && n <= 4:
		return FormatSemifinal, nil
	case n >= 5 && n <= 8:
		return FormatQuarterfinal, nil
	}
	return "", fmt.Errorf("no bracket for %d players", n)
}

// Rounds returns how many rounds a format has.
func (f Format) Rounds() int {
	switch f {
	case FormatDuel:
		return 1
	case FormatSemifinal:
		return 2
	case FormatQuarterfinal:
		return 3
	}
	return 0
}

// BuildBracket creates every match of the bracket up front. Round 0 is
// filled with sequential pairs in the given order; later rounds start empty.
// Round-0 byes are resolved before returning.
func BuildBracket(players []models.Player) (Format, []*Match, error) {
	format, err := FormatFor(len(players))
	if err != nil {
		return "", nil, err
	}

	rounds := format.Rounds()
	var matches []*Match
	for r := 0; r < rounds; r++ {
		count := 1 << (rounds - 1 - r)
		for i := 0; i < count; i++ {
			matches = append(matches, &Match{
				ID:     uuid.New(),
				Round:  r,
				Index:  i,
				Status: MatchPending,
			})
		}
	}

	for i, p := range players {
		m := matches[i/2]
		if i%2 == 0 {
			m.Player1 = p.ID
		} else {
			m.Player2 = p.ID
		}
	}

	Advance(matches)
	return format, matches, nil
}

// find returns the match at (round, index).
func find(matches []*Match, round, index int) *Match {
	for _, m := range matches {
		if m.Round == round && m.Index == index {
			return m
		}
	}
	return nil
}

// feedersDone reports whether both matches feeding m have completed.
// Round-0 matches have no feeders.
func feedersDone(matches []*Match, m *Match) bool {
	if m.Round == 0 {
		return true
	}
	a := find(matches, m.Round-1, 2*m.Index)
	b := find(matches, m.Round-1, 2*m.Index+1)
	return a != nil && b != nil && a.Status == MatchCompleted && b.Status == MatchCompleted
}

// FillForward copies completed matches' winners into the next round's empty
// slots. Match 2k feeds Player1 and match 2k+1 feeds Player2 of match k.
// Slots that are already filled are never changed. It reports whether any
// slot was filled.
func FillForward(matches []*Match) bool {
	changed := false
	for _, m := range matches {
		if m.Round == 0 || m.Status != MatchPending {
			continue
		}
		if a := find(matches, m.Round-1, 2*m.Index); a != nil && m.Player1 == uuid.Nil &&
			a.Status == MatchCompleted && a.Winner != uuid.Nil {
			m.Player1 = a.Winner
			changed = true
		}
		if b := find(matches, m.Round-1, 2*m.Index+1); b != nil && m.Player2 == uuid.Nil &&
			b.Status == MatchCompleted && b.Winner != uuid.Nil {
			m.Player2 = b.Winner
			changed = true
		}
	}
	return changed
}

// resolveByes completes pending matches that can never receive a second
// player. A lone player advances; a match with nobody is voided.
func resolveByes(matches []*Match) []*Match {
	var resolved []*Match
	for _, m := range matches {
		if m.Status != MatchPending || !feedersDone(matches, m) {
			continue
		}
		switch {
		case m.Player1 != uuid.Nil && m.Player2 != uuid.Nil:
			continue
		case m.Player1 != uuid.Nil:
			m.Winner = m.Player1
		case m.Player2 != uuid.Nil:
			m.Winner = m.Player2
		}
		m.Status = MatchCompleted
		m.Bye = true
		resolved = append(resolved, m)
	}
	return resolved
}

// Advance fills forward and resolves byes until the bracket is stable. It
// returns the matches that were resolved as byes, in resolution order.
func Advance(matches []*Match) []*Match {
	var byes []*Match
	for {
		filled := FillForward(matches)
		resolved := resolveByes(matches)
		byes = append(byes, resolved...)
		if !filled && len(resolved) == 0 {
			return byes
		}
	}
}

// NextPlayable returns the earliest pending match with both slots filled.
func NextPlayable(matches []*Match) *Match {
	for _, m := range matches {
		if m.Playable() {
			return m
		}
	}
	return nil
}

// AllCompleted reports whether every match is completed.
func AllCompleted(matches []*Match) bool {
	for _, m := range matches {
		if m.Status != MatchCompleted {
			return false
		}
	}
	return true
}

// Final returns the last round's only match.
func Final(matches []*Match) *Match {
	var final *Match
	for _, m := range matches {
		if final == nil || m.Round > final.Round {
			final = m
		}
	}
	return final
}

// RoundZero returns the players seeded into round 0, in slot order.
func RoundZero(matches []*Match) []uuid.UUID {
	var out []uuid.UUID
	for _, m := range matches {
		if m.Round != 0 {
			continue
		}
		for _, id := range []uuid.UUID{m.Player1, m.Player2} {
			if id != uuid.Nil {
				out = append(out, id)
			}
		}
	}
	return out
}

// Placement is a player's final rank.
type Placement struct {
	PlayerID uuid.UUID
	Rank     int
}

// Ranking derives placements from a completed bracket: the winner is 1st,
// the losing finalist 2nd, semifinal losers share 3rd, quarterfinal losers
// share 5th. Players eliminated in the same round keep bracket order.
func Ranking(format Format, matches []*Match) []Placement {
	final := Final(matches)
	if final == nil || final.Winner == uuid.Nil {
		return nil
	}
	rounds := format.Rounds()
	out := []Placement{{PlayerID: final.Winner, Rank: 1}}
	for r := rounds - 1; r >= 0; r-- {
		rank := 1<<(rounds-1-r) + 1
		for _, m := range matches {
			if m.Round != r {
				continue
			}
			if loser := m.Loser(); loser != uuid.Nil {
				out = append(out, Placement{PlayerID: loser, Rank: rank})
			}
		}
	}
	return out
}

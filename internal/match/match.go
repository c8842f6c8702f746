// Package match holds the round, score and tie-break lifecycle of a best-of-N duel.
package match

import (
	"sort"
	"time"

	"github.com/rotisserie/eris"

	"github.com/biswa/coduel-signal/internal/perf"
)

// Status is the lifecycle stage of a match.
type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusTiebreak   Status = "tiebreak"
	StatusCompleted  Status = "completed"
)

// Tie is the winner name recorded for drawn rounds and drawn matches.
const Tie = "TIE"

var ErrMatchCompleted = eris.New("match already finished")

// RoundResult is appended once per resolved round and never modified afterwards.
type RoundResult struct {
	Round      int                      `json:"round"`
	Winner     string                   `json:"winner"`
	Comparison perf.Outcome             `json:"comparison"`
	Snapshots  map[string]perf.Snapshot `json:"performance"`
	Timestamp  time.Time                `json:"timestamp"`
}

// Standing is one entry of the leaderboard.
type Standing struct {
	Name  string `json:"username"`
	Score int    `json:"score"`
}

// State is the match progress of a single room.
type State struct {
	Status          Status         `json:"status"`
	ScheduledRounds int            `json:"scheduledRounds"`
	TotalRounds     int            `json:"totalRounds"`
	RoundsPlayed    int            `json:"roundsPlayed"`
	Scores          map[string]int `json:"scores"`
	Rounds          []RoundResult  `json:"roundResults"`
	OverallWinner   string         `json:"overallWinner,omitempty"`
}

// New starts a match of the given number of rounds for the named players.
// Non-positive round counts fall back to a single round.
func New(rounds int, players []string) *State {
	if rounds <= 0 {
		rounds = 1
	}
	scores := make(map[string]int, len(players))
	for _, name := range players {
		scores[name] = 0
	}
	return &State{
		Status:          StatusInProgress,
		ScheduledRounds: rounds,
		TotalRounds:     rounds,
		Scores:          scores,
		Rounds:          []RoundResult{},
	}
}

// Completed reports whether the match has a final result.
func (s *State) Completed() bool {
	return s.Status == StatusCompleted
}

// CurrentRound is the 1-based number of the round being played.
func (s *State) CurrentRound() int {
	return s.RoundsPlayed + 1
}

// TiebreakUsed reports whether the single extra round has already been granted.
func (s *State) TiebreakUsed() bool {
	return s.TotalRounds > s.ScheduledRounds
}

// Resolve decides the current round between two named snapshots and advances the match.
// nameA must be the earlier submission; it is side A for the comparator.
func (s *State) Resolve(cmp perf.Comparator, nameA string, a perf.Snapshot, nameB string, b perf.Snapshot,
	now time.Time,
) (RoundResult, error) {
	if s.Completed() {
		return RoundResult{}, eris.Wrapf(ErrMatchCompleted, "round %d", s.CurrentRound())
	}

	outcome := cmp.Compare(a, b)
	winner := Tie
	switch outcome.Winner {
	case perf.SideA:
		winner = nameA
	case perf.SideB:
		winner = nameB
	case perf.SideTie:
	}

	result := RoundResult{
		Round:      s.CurrentRound(),
		Winner:     winner,
		Comparison: outcome,
		Snapshots:  map[string]perf.Snapshot{nameA: a, nameB: b},
		Timestamp:  now,
	}
	s.Rounds = append(s.Rounds, result)
	s.RoundsPlayed++
	s.enter(nameA)
	s.enter(nameB)
	if winner != Tie {
		s.Scores[winner]++
	}

	s.advance()
	return result, nil
}

// enter gives a player who was seated after the match started a zero score.
func (s *State) enter(name string) {
	if s.Scores == nil {
		s.Scores = make(map[string]int)
	}
	if _, ok := s.Scores[name]; !ok {
		s.Scores[name] = 0
	}
}

func (s *State) advance() {
	if s.RoundsPlayed < s.TotalRounds {
		return
	}
	leaders := s.Leaders()
	switch {
	case len(leaders) == 1:
		s.Status = StatusCompleted
		s.OverallWinner = leaders[0]
	case !s.TiebreakUsed():
		s.Status = StatusTiebreak
		s.TotalRounds++
	default:
		s.Status = StatusCompleted
		s.OverallWinner = Tie
	}
}

// Standings sorts scores descending, breaking ties by name so the order is deterministic.
func (s *State) Standings() []Standing {
	out := make([]Standing, 0, len(s.Scores))
	for name, score := range s.Scores {
		out = append(out, Standing{Name: name, Score: score})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Leaders returns every name sharing the top score.
func (s *State) Leaders() []string {
	standings := s.Standings()
	if len(standings) == 0 {
		return nil
	}
	var leaders []string
	for _, st := range standings {
		if st.Score != standings[0].Score {
			break
		}
		leaders = append(leaders, st.Name)
	}
	return leaders
}

// Clone returns a deep copy safe to hand to another goroutine.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	c := *s
	c.Scores = make(map[string]int, len(s.Scores))
	for k, v := range s.Scores {
		c.Scores[k] = v
	}
	c.Rounds = append([]RoundResult{}, s.Rounds...)
	return &c
}

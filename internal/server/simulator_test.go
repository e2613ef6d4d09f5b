package server

import (
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/npezzotti/go-matchcenter/internal/fixtures"
	"github.com/npezzotti/go-matchcenter/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdvanceClock(t *testing.T) {
	tcases := []struct {
		name       string
		in         types.Match
		expected   types.Match
		expectedOk bool
	}{
		{
			name:       "first half ticks",
			in:         types.Match{Status: types.StatusFirstHalf, Minute: 23},
			expected:   types.Match{Status: types.StatusFirstHalf, Minute: 24},
			expectedOk: true,
		},
		{
			name:       "first half ends at 45",
			in:         types.Match{Status: types.StatusFirstHalf, Minute: 44},
			expected:   types.Match{Status: types.StatusHalfTime, Minute: 45},
			expectedOk: true,
		},
		{
			name:       "half time restarts",
			in:         types.Match{Status: types.StatusHalfTime, Minute: 45},
			expected:   types.Match{Status: types.StatusSecondHalf, Minute: 46},
			expectedOk: true,
		},
		{
			name:       "second half ticks",
			in:         types.Match{Status: types.StatusSecondHalf, Minute: 67},
			expected:   types.Match{Status: types.StatusSecondHalf, Minute: 68},
			expectedOk: true,
		},
		{
			name:       "full time at 90",
			in:         types.Match{Status: types.StatusSecondHalf, Minute: 89},
			expected:   types.Match{Status: types.StatusFullTime, Minute: 90},
			expectedOk: true,
		},
		{
			name:     "full time is final",
			in:       types.Match{Status: types.StatusFullTime, Minute: 90},
			expected: types.Match{Status: types.StatusFullTime, Minute: 90},
		},
		{
			name:     "not started stays put",
			in:       types.Match{Status: types.StatusNotStarted},
			expected: types.Match{Status: types.StatusNotStarted},
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := AdvanceClock(tc.in)
			assert.Equal(t, tc.expectedOk, ok)
			assert.Equal(t, tc.expected, got)
		})
	}
}

func TestDriftStats(t *testing.T) {
	sim := NewSimulator(rand.New(rand.NewSource(42)))
	stats := fixtures.Matches(time.Now())[0].Statistics

	for i := 0; i < 500; i++ {
		prev := stats
		stats = sim.DriftStats(stats)

		assert.Equal(t, 100, stats.Possession.Home+stats.Possession.Away, "possession must sum to 100")
		assert.GreaterOrEqual(t, stats.Possession.Home, 30)
		assert.LessOrEqual(t, stats.Possession.Home, 70)
		assert.LessOrEqual(t, abs(stats.Possession.Home-prev.Possession.Home), 1, "possession drifts by at most one point")

		assert.GreaterOrEqual(t, stats.Shots.Home, prev.Shots.Home)
		assert.GreaterOrEqual(t, stats.Shots.Away, prev.Shots.Away)
		assert.LessOrEqual(t, stats.ShotsOnTarget.Home-prev.ShotsOnTarget.Home, stats.Shots.Home-prev.Shots.Home,
			"shots on target only grow with shots")
		assert.LessOrEqual(t, stats.ShotsOnTarget.Away-prev.ShotsOnTarget.Away, stats.Shots.Away-prev.Shots.Away,
			"shots on target only grow with shots")
		assert.Equal(t, prev.YellowCards, stats.YellowCards)
	}
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

func TestDriftStats_Deterministic(t *testing.T) {
	stats := fixtures.Matches(time.Now())[1].Statistics

	a := NewSimulator(rand.New(rand.NewSource(7)))
	b := NewSimulator(rand.New(rand.NewSource(7)))
	for i := 0; i < 20; i++ {
		assert.Equal(t, a.DriftStats(stats), b.DriftStats(stats))
	}
}

func TestMaybeEvent(t *testing.T) {
	sim := NewSimulator(rand.New(rand.NewSource(1)))
	start := fixtures.Matches(time.Now())[0]
	m := start

	var fired, goals int
	for i := 0; i < 400; i++ {
		before := len(m.Events)
		next, ev := sim.MaybeEvent(m)
		if ev == nil {
			assert.Equal(t, m, next, "no event leaves the match untouched")
			continue
		}

		fired++
		require.Len(t, next.Events, before+1)
		assert.Equal(t, *ev, next.Events[before])
		assert.Len(t, m.Events, before, "input events are not mutated")
		if ev.Type == types.EventGoal {
			goals++
		}
		m = next
	}

	assert.Greater(t, fired, 20, "expected roughly fifteen percent of ticks to fire")
	assert.Less(t, fired, 100, "expected roughly fifteen percent of ticks to fire")
	assert.Equal(t, start.HomeScore+start.AwayScore+goals, m.HomeScore+m.AwayScore, "each goal scores once")
}

func TestRandomEvent(t *testing.T) {
	sim := NewSimulator(rand.New(rand.NewSource(3)))
	now := time.Date(2025, 5, 1, 15, 0, 0, 0, time.UTC)
	sim.now = func() time.Time { return now }
	match := fixtures.Matches(now)[0].Match

	for i := 0; i < 100; i++ {
		ev := sim.RandomEvent(match)

		assert.True(t, strings.HasPrefix(ev.Id, "evt-"), "unexpected id %q", ev.Id)
		assert.Contains(t, simulatedEventTypes, ev.Type)
		assert.Contains(t, []types.Side{types.SideHome, types.SideAway}, ev.Team)
		assert.Contains(t, simulatedPlayers, ev.Player)
		assert.Equal(t, match.Minute, ev.Minute)
		assert.Equal(t, now, ev.Timestamp)
		assert.NoError(t, ev.Validate())

		if ev.Type == types.EventGoal {
			assert.True(t, strings.HasPrefix(ev.Description, "Goal by "+ev.Player))
		} else {
			assert.Empty(t, ev.AssistPlayer)
		}
	}
}

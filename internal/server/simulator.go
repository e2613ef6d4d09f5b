package server

import (
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/npezzotti/go-matchcenter/internal/types"
	"github.com/teris-io/shortid"
)

const eventProbability = 0.15

var (
	simulatedEventTypes = []types.EventType{types.EventGoal, types.EventYellowCard, types.EventShot, types.EventFoul}
	simulatedPlayers    = []string{
		"John Smith", "Mike Johnson", "David Williams", "James Brown",
		"Robert Jones", "Michael Davis", "William Miller", "Richard Wilson",
	}
)

// Simulator produces random match activity. Its methods are pure apart from
// drawing from rng, so a seeded source gives reproducible matches.
type Simulator struct {
	rng   *rand.Rand
	newId func() string
	now   func() time.Time
}

func NewSimulator(rng *rand.Rand) *Simulator {
	return &Simulator{
		rng:   rng,
		newId: newEventId,
		now:   Now,
	}
}

func newEventId() string {
	id, err := shortid.Generate()
	if err != nil {
		return fmt.Sprintf("evt-%d", time.Now().UnixNano())
	}
	return "evt-" + id
}

// AdvanceClock moves the match clock one minute. The first half ends at 45,
// half time lasts one tick and the match ends at 90. It reports whether the
// status or minute changed.
func AdvanceClock(m types.Match) (types.Match, bool) {
	switch {
	case m.Status == types.StatusFirstHalf && m.Minute < 45:
		m.Minute++
		if m.Minute >= 45 {
			m.Status = types.StatusHalfTime
			m.Minute = 45
		}
	case m.Status == types.StatusHalfTime:
		m.Status = types.StatusSecondHalf
		m.Minute = 46
	case m.Status == types.StatusSecondHalf && m.Minute < 90:
		m.Minute++
		if m.Minute >= 90 {
			m.Status = types.StatusFullTime
			m.Minute = 90
		}
	default:
		return m, false
	}
	return m, true
}

// DriftStats nudges possession by at most one point, keeping it within
// 30..70 and summing to 100, and occasionally adds shots, corners and fouls.
func (s *Simulator) DriftStats(stats types.MatchStats) types.MatchStats {
	home := stats.Possession.Home + s.rng.Intn(3) - 1
	home = max(30, min(70, home))
	stats.Possession = types.StatPair{Home: home, Away: 100 - home}

	if s.rng.Float64() > 0.7 {
		homeSide := s.coin()
		*counter(&stats.Shots, homeSide)++
		if s.rng.Float64() > 0.4 {
			*counter(&stats.ShotsOnTarget, homeSide)++
		}
	}
	if s.rng.Float64() > 0.9 {
		*counter(&stats.Corners, s.coin())++
	}
	if s.rng.Float64() > 0.8 {
		*counter(&stats.Fouls, s.coin())++
	}
	return stats
}

func (s *Simulator) coin() bool {
	return s.rng.Float64() > 0.5
}

func counter(p *types.StatPair, home bool) *int {
	if home {
		return &p.Home
	}
	return &p.Away
}

// MaybeEvent generates an event with a fifteen percent chance. Goals are
// reflected in the returned match score.
func (s *Simulator) MaybeEvent(m types.MatchDetail) (types.MatchDetail, *types.MatchEvent) {
	if s.rng.Float64() > eventProbability {
		return m, nil
	}
	ev := s.RandomEvent(m.Match)
	m.Events = append(append([]types.MatchEvent(nil), m.Events...), ev)
	if ev.Type == types.EventGoal {
		if ev.Team == types.SideHome {
			m.HomeScore++
		} else {
			m.AwayScore++
		}
	}
	return m, &ev
}

func (s *Simulator) RandomEvent(m types.Match) types.MatchEvent {
	typ := simulatedEventTypes[s.rng.Intn(len(simulatedEventTypes))]
	side, team := types.SideHome, m.HomeTeam
	if s.coin() {
		side, team = types.SideAway, m.AwayTeam
	}
	player := simulatedPlayers[s.rng.Intn(len(simulatedPlayers))]

	ev := types.MatchEvent{
		Id:          s.newId(),
		Type:        typ,
		Minute:      m.Minute,
		Team:        side,
		Player:      player,
		Description: fmt.Sprintf("%s - %s (%s)", strings.ReplaceAll(string(typ), "_", " "), player, team.ShortName),
		Timestamp:   s.now(),
	}

	if typ == types.EventGoal {
		ev.Description = "Goal by " + player
		if s.coin() {
			ev.AssistPlayer = simulatedPlayers[s.rng.Intn(len(simulatedPlayers))]
			ev.Description += " (assisted by " + ev.AssistPlayer + ")"
		}
	}
	return ev
}

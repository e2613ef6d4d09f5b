package match

import (
	"encoding/json"
	"log"
	"slices"
	"sync"

	"github.com/npezzotti/go-matchcenter/internal/realtime"
	"github.com/npezzotti/go-matchcenter/internal/types"
)

// ListReconciler keeps the match list current from the score_update and
// status_change broadcasts every client receives.
type ListReconciler struct {
	ch  realtime.Channel
	log *log.Logger

	mu        sync.Mutex
	matches   []types.Match
	observers []func([]types.Match)
	offs      []func()
}

func NewListReconciler(ch realtime.Channel, logger *log.Logger) *ListReconciler {
	return &ListReconciler{ch: ch, log: logger}
}

// Set replaces the list, typically with the result of GET /api/matches.
func (l *ListReconciler) Set(matches []types.Match) {
	l.mu.Lock()
	l.matches = slices.Clone(matches)
	next := slices.Clone(l.matches)
	l.mu.Unlock()

	l.notify(next)
}

func (l *ListReconciler) Matches() []types.Match {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.matches)
}

// Live returns the matches currently in the first or second half.
func (l *ListReconciler) Live() []types.Match {
	l.mu.Lock()
	defer l.mu.Unlock()

	var live []types.Match
	for _, m := range l.matches {
		if m.Status.Live() {
			live = append(live, m)
		}
	}
	return live
}

func (l *ListReconciler) OnChange(fn func([]types.Match)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.observers = append(l.observers, fn)
}

func (l *ListReconciler) Start() func() {
	l.mu.Lock()
	if l.offs == nil {
		l.offs = []func(){
			l.ch.On(types.EventScoreUpdate, l.handleScore),
			l.ch.On(types.EventStatusChange, l.handleStatus),
		}
	}
	l.mu.Unlock()
	return l.Stop
}

func (l *ListReconciler) Stop() {
	l.mu.Lock()
	offs := l.offs
	l.offs = nil
	l.mu.Unlock()

	for _, off := range offs {
		off()
	}
}

func (l *ListReconciler) handleScore(data json.RawMessage) {
	u, err := realtime.Decode[types.ScoreUpdate](data)
	if err != nil || u.HomeScore < 0 || u.AwayScore < 0 {
		l.log.Printf("match list: dropping score_update: %s", data)
		return
	}
	l.update(u.MatchId, func(m *types.Match) {
		m.HomeScore = u.HomeScore
		m.AwayScore = u.AwayScore
	})
}

func (l *ListReconciler) handleStatus(data json.RawMessage) {
	s, err := realtime.Decode[types.StatusChange](data)
	if err != nil || !s.Status.Valid() || s.Minute < 0 {
		l.log.Printf("match list: dropping status_change: %s", data)
		return
	}
	l.update(s.MatchId, func(m *types.Match) {
		m.Status = s.Status
		m.Minute = s.Minute
	})
}

func (l *ListReconciler) update(id string, fn func(*types.Match)) {
	l.mu.Lock()
	i := slices.IndexFunc(l.matches, func(m types.Match) bool { return m.Id == id })
	if i < 0 {
		l.mu.Unlock()
		return
	}
	next := slices.Clone(l.matches)
	fn(&next[i])
	l.matches = next
	out := slices.Clone(next)
	l.mu.Unlock()

	l.notify(out)
}

func (l *ListReconciler) notify(matches []types.Match) {
	l.mu.Lock()
	observers := slices.Clone(l.observers)
	l.mu.Unlock()

	for _, fn := range observers {
		fn(slices.Clone(matches))
	}
}

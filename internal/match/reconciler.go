package match

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/npezzotti/go-matchcenter/internal/realtime"
	"github.com/npezzotti/go-matchcenter/internal/types"
)

type State int

const (
	Unsubscribed State = iota
	Subscribing
	Subscribed
)

func (s State) String() string {
	switch s {
	case Unsubscribed:
		return "unsubscribed"
	case Subscribing:
		return "subscribing"
	case Subscribed:
		return "subscribed"
	}
	return "unknown"
}

// Reconciler folds realtime deltas for one match into an immutable
// snapshot. Deltas are applied only while Subscribed and only when they
// carry the reconciler's match id.
type Reconciler struct {
	ch      realtime.Channel
	log     *log.Logger
	matchId string

	mu          sync.Mutex
	state       State
	snapshot    types.MatchDetail
	hasSnapshot bool
	observers   []func(types.MatchDetail)
	offs        []func()
}

func NewReconciler(ch realtime.Channel, matchId string, logger *log.Logger) *Reconciler {
	return &Reconciler{
		ch:      ch,
		log:     logger,
		matchId: matchId,
	}
}

func (r *Reconciler) MatchId() string {
	return r.matchId
}

// Seed installs an initial snapshot, typically from the HTTP detail
// endpoint. It is ignored for other matches and once the server snapshot
// has arrived.
func (r *Reconciler) Seed(d types.MatchDetail) {
	r.mu.Lock()
	if d.Id != r.matchId || r.state == Subscribed {
		r.mu.Unlock()
		return
	}
	r.snapshot = Clone(d)
	r.hasSnapshot = true
	r.mu.Unlock()

	r.notify(d)
}

// OnChange registers fn to be called with every new snapshot.
func (r *Reconciler) OnChange(fn func(types.MatchDetail)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observers = append(r.observers, fn)
}

// Start attaches the event handlers and subscribes to the match topic.
// The returned function is equivalent to Stop.
func (r *Reconciler) Start() func() {
	r.mu.Lock()
	if r.state != Unsubscribed {
		r.mu.Unlock()
		return r.Stop
	}
	r.state = Subscribing
	r.offs = []func(){
		r.ch.On(types.EventSubscribed, r.handleSubscribed),
		r.ch.On(types.EventScoreUpdate, r.handleScore),
		r.ch.On(types.EventMatchEvent, r.handleEvent),
		r.ch.On(types.EventStatsUpdate, r.handleStats),
		r.ch.On(types.EventStatusChange, r.handleStatus),
		r.ch.On(types.EventDisconnect, r.handleDisconnect),
	}
	r.mu.Unlock()

	r.ch.Subscribe(r.matchId)
	return r.Stop
}

// Stop detaches the handlers and unsubscribes. The snapshot is kept.
func (r *Reconciler) Stop() {
	r.mu.Lock()
	if r.state == Unsubscribed {
		r.mu.Unlock()
		return
	}
	r.state = Unsubscribed
	offs := r.offs
	r.offs = nil
	r.mu.Unlock()

	for _, off := range offs {
		off()
	}
	r.ch.Unsubscribe(r.matchId)
}

func (r *Reconciler) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Snapshot returns the current snapshot and whether one has been received
// or seeded.
func (r *Reconciler) Snapshot() (types.MatchDetail, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Clone(r.snapshot), r.hasSnapshot
}

func (r *Reconciler) handleSubscribed(data json.RawMessage) {
	sub, err := realtime.Decode[types.Subscribed](data)
	if err != nil {
		r.log.Printf("match %s: decode subscribed: %v", r.matchId, err)
		return
	}
	if sub.CurrentState.Id != r.matchId {
		return
	}
	if err := sub.CurrentState.Validate(); err != nil {
		r.log.Printf("match %s: dropping snapshot: %v", r.matchId, err)
		return
	}

	r.mu.Lock()
	if r.state == Unsubscribed {
		r.mu.Unlock()
		return
	}
	r.state = Subscribed
	r.snapshot = Clone(sub.CurrentState)
	r.hasSnapshot = true
	r.mu.Unlock()

	r.notify(sub.CurrentState)
}

func (r *Reconciler) handleScore(data json.RawMessage) {
	u, err := realtime.Decode[types.ScoreUpdate](data)
	if err != nil || u.HomeScore < 0 || u.AwayScore < 0 {
		r.log.Printf("match %s: dropping score_update: %s", r.matchId, data)
		return
	}
	r.apply(u.MatchId, func(d types.MatchDetail) types.MatchDetail { return ApplyScore(d, u) })
}

func (r *Reconciler) handleEvent(data json.RawMessage) {
	ev, err := realtime.Decode[types.MatchEventUpdate](data)
	if err == nil {
		err = ev.MatchEvent.Validate()
	}
	if err != nil {
		r.log.Printf("match %s: dropping match_event: %v", r.matchId, err)
		return
	}
	r.apply(ev.MatchId, func(d types.MatchDetail) types.MatchDetail { return AppendEvent(d, ev.MatchEvent) })
}

func (r *Reconciler) handleStats(data json.RawMessage) {
	s, err := realtime.Decode[types.StatsUpdate](data)
	if err != nil {
		r.log.Printf("match %s: dropping stats_update: %v", r.matchId, err)
		return
	}
	r.apply(s.MatchId, func(d types.MatchDetail) types.MatchDetail { return ApplyStats(d, s.Statistics) })
}

func (r *Reconciler) handleStatus(data json.RawMessage) {
	s, err := realtime.Decode[types.StatusChange](data)
	if err != nil || !s.Status.Valid() || s.Minute < 0 {
		r.log.Printf("match %s: dropping status_change: %s", r.matchId, data)
		return
	}
	r.apply(s.MatchId, func(d types.MatchDetail) types.MatchDetail { return ApplyStatus(d, s) })
}

// handleDisconnect waits for a fresh snapshot, which the channel requests
// again on reconnect.
func (r *Reconciler) handleDisconnect(json.RawMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == Subscribed {
		r.state = Subscribing
	}
}

func (r *Reconciler) apply(matchId string, fn func(types.MatchDetail) types.MatchDetail) {
	if matchId != r.matchId {
		return
	}

	r.mu.Lock()
	if r.state != Subscribed {
		r.mu.Unlock()
		return
	}
	r.snapshot = fn(r.snapshot)
	next := r.snapshot
	r.mu.Unlock()

	r.notify(next)
}

func (r *Reconciler) notify(d types.MatchDetail) {
	r.mu.Lock()
	observers := make([]func(types.MatchDetail), len(r.observers))
	copy(observers, r.observers)
	r.mu.Unlock()

	for _, fn := range observers {
		fn(Clone(d))
	}
}

package realtime

import (
	"encoding/json"
	"sync"

	"github.com/npezzotti/go-matchcenter/internal/types"
)

// Emitted is a frame recorded by FakeChannel.
type Emitted struct {
	Event   string
	Payload any
	Ack     AckFunc
}

// FakeChannel is an in-memory Channel. Deliver dispatches synchronously on
// the calling goroutine, so tests observe handler effects immediately.
type FakeChannel struct {
	handlers *registry
	session  session

	mu        sync.Mutex
	connected bool
	emitted   []Emitted
}

func NewFakeChannel(connected bool) *FakeChannel {
	return &FakeChannel{
		handlers:  newRegistry(),
		connected: connected,
	}
}

func (f *FakeChannel) On(event string, h Handler) func() {
	return f.handlers.on(event, h)
}

func (f *FakeChannel) Emit(event string, payload any, ack AckFunc) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.connected {
		return false
	}
	f.emitted = append(f.emitted, Emitted{Event: event, Payload: payload, Ack: ack})
	return true
}

func (f *FakeChannel) Subscribe(matchId string) {
	f.session.subscribe(matchId)
	f.Emit(types.EventSubscribeMatch, types.MatchTopic{MatchId: matchId}, nil)
}

func (f *FakeChannel) Unsubscribe(matchId string) {
	f.session.unsubscribe(matchId)
	f.Emit(types.EventUnsubscribeMatch, types.MatchTopic{MatchId: matchId}, nil)
}

func (f *FakeChannel) JoinChat(m types.ChatMembership) {
	f.session.join(m)
	f.Emit(types.EventJoinChat, m, nil)
}

func (f *FakeChannel) LeaveChat(m types.ChatMembership) {
	f.session.leave(m)
	f.Emit(types.EventLeaveChat, m, nil)
}

func (f *FakeChannel) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

// SetConnected simulates a connection change. Connecting replays the
// session like Client does before dispatching the connect event.
func (f *FakeChannel) SetConnected(connected bool) {
	f.mu.Lock()
	changed := f.connected != connected
	f.connected = connected
	f.mu.Unlock()

	if !changed {
		return
	}
	if connected {
		for _, o := range f.session.replay() {
			f.Emit(o.event, o.payload, nil)
		}
		f.handlers.dispatch(types.EventConnect, nil)
		return
	}
	f.handlers.dispatch(types.EventDisconnect, nil)
}

// Deliver marshals payload and dispatches it as an inbound event.
func (f *FakeChannel) Deliver(event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	f.handlers.dispatch(event, data)
	return nil
}

// Emitted returns a copy of every recorded frame.
func (f *FakeChannel) Emitted() []Emitted {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]Emitted, len(f.emitted))
	copy(out, f.emitted)
	return out
}

// EmittedEvents returns the recorded frames for event.
func (f *FakeChannel) EmittedEvents(event string) []Emitted {
	var out []Emitted
	for _, e := range f.Emitted() {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}

func (f *FakeChannel) Reset() {
	f.mu.Lock()
	f.emitted = nil
	f.mu.Unlock()
}

// HandlerCount reports how many handlers are registered for event.
func (f *FakeChannel) HandlerCount(event string) int {
	return f.handlers.count(event)
}

// Ack invokes the ack callback of a recorded frame with payload.
func (f *FakeChannel) Ack(e Emitted, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if e.Ack != nil {
		e.Ack(data)
	}
	return nil
}

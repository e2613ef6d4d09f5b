package realtime

import (
	"encoding/json"
	"sync"

	"github.com/npezzotti/go-matchcenter/internal/types"
)

// Handler receives the raw data of an inbound event. Handlers run on the
// channel's dispatch goroutine, one at a time, in arrival order.
type Handler func(data json.RawMessage)

// AckFunc receives the data of the acknowledgment for an emitted event.
type AckFunc func(data json.RawMessage)

// Channel is the realtime surface the reconcilers depend on.
type Channel interface {
	On(event string, h Handler) (off func())
	Emit(event string, payload any, ack AckFunc) bool
	Subscribe(matchId string)
	Unsubscribe(matchId string)
	JoinChat(m types.ChatMembership)
	LeaveChat(m types.ChatMembership)
	Connected() bool
}

// Decode unmarshals event data into a value of type T.
func Decode[T any](data json.RawMessage) (T, error) {
	var v T
	err := json.Unmarshal(data, &v)
	return v, err
}

type handlerEntry struct {
	id int
	h  Handler
}

type registry struct {
	mu       sync.Mutex
	nextId   int
	handlers map[string][]handlerEntry
}

func newRegistry() *registry {
	return &registry{handlers: make(map[string][]handlerEntry)}
}

func (r *registry) on(event string, h Handler) func() {
	r.mu.Lock()
	r.nextId++
	id := r.nextId
	r.handlers[event] = append(r.handlers[event], handlerEntry{id: id, h: h})
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()

			entries := r.handlers[event]
			for i, e := range entries {
				if e.id == id {
					r.handlers[event] = append(entries[:i:i], entries[i+1:]...)
					break
				}
			}
			if len(r.handlers[event]) == 0 {
				delete(r.handlers, event)
			}
		})
	}
}

func (r *registry) dispatch(event string, data json.RawMessage) {
	r.mu.Lock()
	entries := make([]handlerEntry, len(r.handlers[event]))
	copy(entries, r.handlers[event])
	r.mu.Unlock()

	for _, e := range entries {
		e.h(data)
	}
}

func (r *registry) count(event string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handlers[event])
}

// session is the membership a channel re-issues on every connect.
type session struct {
	mu         sync.Mutex
	topic      string
	membership *types.ChatMembership
}

func (s *session) subscribe(matchId string) {
	s.mu.Lock()
	s.topic = matchId
	s.mu.Unlock()
}

func (s *session) unsubscribe(matchId string) {
	s.mu.Lock()
	if s.topic == matchId {
		s.topic = ""
	}
	s.mu.Unlock()
}

func (s *session) join(m types.ChatMembership) {
	s.mu.Lock()
	s.membership = &m
	s.mu.Unlock()
}

func (s *session) leave(m types.ChatMembership) {
	s.mu.Lock()
	if s.membership != nil && s.membership.MatchId == m.MatchId {
		s.membership = nil
	}
	s.mu.Unlock()
}

// replay returns the frames to send after a connection is established.
func (s *session) replay() []outbound {
	s.mu.Lock()
	defer s.mu.Unlock()

	var frames []outbound
	if s.topic != "" {
		frames = append(frames, outbound{event: types.EventSubscribeMatch, payload: types.MatchTopic{MatchId: s.topic}})
	}
	if s.membership != nil {
		frames = append(frames, outbound{event: types.EventJoinChat, payload: *s.membership})
	}
	return frames
}

func (s *session) activeTopic() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.topic
}

type outbound struct {
	event   string
	payload any
}

var (
	_ Channel = (*Client)(nil)
	_ Channel = (*FakeChannel)(nil)
)

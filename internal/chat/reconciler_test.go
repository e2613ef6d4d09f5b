package chat

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/npezzotti/go-matchcenter/internal/realtime"
	"github.com/npezzotti/go-matchcenter/internal/testutil"
	"github.com/npezzotti/go-matchcenter/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	mu   sync.Mutex
	name string
	err  error
}

func (s *memStore) Username() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.name, s.err
}

func (s *memStore) SetUsername(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.name = name
	return s.err
}

func newTestReconciler(t *testing.T, username string, opts ...Option) (*Reconciler, *realtime.FakeChannel) {
	t.Helper()
	ch := realtime.NewFakeChannel(true)
	opts = append([]Option{
		WithUsernameStore(&memStore{name: username}),
		WithClock(func() time.Time { return base }),
	}, opts...)
	r := NewReconciler(ch, "1", "alice", testutil.TestLogger(t), opts...)
	t.Cleanup(r.Stop)
	r.Start()
	return r, ch
}

func TestSend_Rejected(t *testing.T) {
	tcases := []struct {
		name      string
		username  string
		connected bool
		body      string
	}{
		{name: "blank body", username: "alice", connected: true, body: "   \n\t"},
		{name: "no username", username: "", connected: true, body: "hello"},
		{name: "disconnected", username: "alice", connected: false, body: "hello"},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			r, ch := newTestReconciler(t, tc.username)
			ch.SetConnected(tc.connected)
			ch.Reset()

			assert.False(t, r.Send(tc.body))
			assert.Empty(t, r.View().Entries, "expected no local state change")
			assert.Empty(t, ch.EmittedEvents(types.EventSendMessage), "expected nothing to be transmitted")
		})
	}
}

func TestSend_BroadcastConfirms(t *testing.T) {
	r, ch := newTestReconciler(t, "alice")

	require.True(t, r.Send("  hello  "))
	v := r.View()
	require.Len(t, v.Entries, 1)
	assert.True(t, v.Entries[0].Pending())
	assert.Equal(t, "hello", v.Entries[0].Message.Message, "expected body to be trimmed")

	sends := ch.EmittedEvents(types.EventSendMessage)
	require.Len(t, sends, 1)
	payload := sends[0].Payload.(types.SendMessage)
	assert.True(t, strings.HasPrefix(payload.TempId, "tmp-"))
	assert.Equal(t, "alice", payload.Username)
	assert.NotNil(t, sends[0].Ack, "expected send to request an acknowledgment")

	require.NoError(t, ch.Deliver(types.EventChatMessage, types.ChatMessage{
		Id:        "m1",
		MatchId:   "1",
		UserId:    "alice",
		Username:  "alice",
		Message:   "hello",
		Timestamp: base.Add(time.Second),
		TempId:    payload.TempId,
	}))

	v = r.View()
	require.Len(t, v.Entries, 1, "expected broadcast to replace the pending entry")
	assert.False(t, v.Entries[0].Pending())
	assert.Equal(t, "m1", v.Entries[0].Message.Id)

	// the ack arriving after the broadcast changes nothing
	require.NoError(t, ch.Ack(sends[0], types.SendMessageAck{
		Success: true,
		Message: &types.ChatMessage{Id: "m1", MatchId: "1", UserId: "alice", Username: "alice", Message: "hello", Timestamp: base.Add(time.Second), TempId: payload.TempId},
	}))
	assert.Len(t, r.View().Entries, 1)
}

func TestSend_AckConfirms(t *testing.T) {
	r, ch := newTestReconciler(t, "alice")

	require.NoError(t, ch.Deliver(types.EventChatMessage, msg("bob", "before", 0)))
	require.True(t, r.Send("hello"))
	require.NoError(t, ch.Deliver(types.EventChatMessage, msg("bob", "after", 2)))

	send := ch.EmittedEvents(types.EventSendMessage)[0]
	tempId := send.Payload.(types.SendMessage).TempId

	require.NoError(t, ch.Ack(send, types.SendMessageAck{Success: false, Error: "rate limited"}))
	assert.True(t, r.View().Entries[1].Pending(), "expected failed ack to leave the entry pending")

	canonical := withTemp(withId(msg("alice", "hello", 1), "m9"), tempId)
	require.NoError(t, ch.Ack(send, types.SendMessageAck{Success: true, Message: &canonical}))

	entries := r.View().Entries
	require.Len(t, entries, 3)
	assert.Equal(t, "hello", entries[1].Message.Message, "expected position to be preserved")
	assert.False(t, entries[1].Pending())

	require.NoError(t, ch.Deliver(types.EventChatMessage, canonical))
	assert.Len(t, r.View().Entries, 3, "expected the broadcast after the ack to be deduplicated")
}

func TestSend_Truncates(t *testing.T) {
	r, ch := newTestReconciler(t, "alice")

	require.True(t, r.Send(strings.Repeat("a", MaxMessageLength+1)))
	payload := ch.EmittedEvents(types.EventSendMessage)[0].Payload.(types.SendMessage)
	assert.Len(t, payload.Message, MaxMessageLength)
}

func TestChatHistory(t *testing.T) {
	r, ch := newTestReconciler(t, "alice")

	history := types.ChatHistory{
		MatchId:  "1",
		Messages: []types.ChatMessage{msg("bob", "one", 0), msg("carol", "two", 1)},
	}
	require.NoError(t, ch.Deliver(types.EventChatHistory, history))
	require.NoError(t, ch.Deliver(types.EventChatHistory, history))
	require.NoError(t, ch.Deliver(types.EventChatHistory, types.ChatHistory{MatchId: "2", Messages: []types.ChatMessage{msg("x", "y", 0)}}))

	entries := r.View().Entries
	require.Len(t, entries, 2, "expected replayed history to be deduplicated")
	assert.Equal(t, "one", entries[0].Message.Message)
	assert.Equal(t, "two", entries[1].Message.Message)
}

func TestTyping(t *testing.T) {
	idle := 40 * time.Millisecond

	t.Run("once per burst then idle stop", func(t *testing.T) {
		r, ch := newTestReconciler(t, "alice", WithTypingIdle(idle))
		ch.Reset()

		r.OnInput("h")
		r.OnInput("he")
		r.OnInput("hel")
		assert.Len(t, ch.EmittedEvents(types.EventTypingStart), 1, "expected a single typing_start per burst")

		assert.Eventually(t, func() bool {
			return len(ch.EmittedEvents(types.EventTypingStop)) == 1
		}, time.Second, 5*time.Millisecond)

		time.Sleep(3 * idle)
		assert.Len(t, ch.EmittedEvents(types.EventTypingStop), 1, "expected typing_stop exactly once")

		r.OnInput("hell")
		assert.Len(t, ch.EmittedEvents(types.EventTypingStart), 2, "expected a new burst after the idle stop")
	})

	t.Run("clearing input stops immediately", func(t *testing.T) {
		r, ch := newTestReconciler(t, "alice", WithTypingIdle(time.Hour))
		ch.Reset()

		r.OnInput("x")
		r.OnInput("")
		stops := ch.EmittedEvents(types.EventTypingStop)
		require.Len(t, stops, 1)
		assert.Equal(t, types.Typing{MatchId: "1", UserId: "alice"}, stops[0].Payload)

		r.OnInput("")
		assert.Len(t, ch.EmittedEvents(types.EventTypingStop), 1, "expected no stop without a start")
	})

	t.Run("send stops immediately", func(t *testing.T) {
		r, ch := newTestReconciler(t, "alice", WithTypingIdle(time.Hour))
		ch.Reset()

		r.OnInput("hello")
		r.Send("hello")

		var events []string
		for _, e := range ch.Emitted() {
			events = append(events, e.Event)
		}
		assert.Equal(t, []string{types.EventTypingStart, types.EventTypingStop, types.EventSendMessage}, events)
	})

	t.Run("no typing without username", func(t *testing.T) {
		r, ch := newTestReconciler(t, "", WithTypingIdle(idle))
		r.OnInput("hi")
		assert.Empty(t, ch.Emitted())
	})
}

func TestPresence(t *testing.T) {
	r, ch := newTestReconciler(t, "alice")

	require.NoError(t, ch.Deliver(types.EventTypingStart, types.Typing{MatchId: "1", UserId: "alice", Username: "alice"}))
	require.NoError(t, ch.Deliver(types.EventTypingStart, types.Typing{MatchId: "1", UserId: "other-session", Username: "alice"}))
	require.NoError(t, ch.Deliver(types.EventTypingStart, types.Typing{MatchId: "2", UserId: "bob", Username: "bob"}))
	assert.Empty(t, r.View().Typing, "expected own and foreign-match typing to be filtered")

	require.NoError(t, ch.Deliver(types.EventTypingStart, types.Typing{MatchId: "1", UserId: "bob", Username: "bob"}))
	require.NoError(t, ch.Deliver(types.EventTypingStart, types.Typing{MatchId: "1", UserId: "carol", Username: "carol"}))
	assert.Equal(t, []string{"bob", "carol"}, r.View().Typing)

	require.NoError(t, ch.Deliver(types.EventTypingStop, types.Typing{MatchId: "1", UserId: "bob"}))
	assert.Equal(t, []string{"carol"}, r.View().Typing)

	require.NoError(t, ch.Deliver(types.EventUserJoined, types.UserPresence{MatchId: "1", Username: "alice", Timestamp: base}))
	assert.Empty(t, r.View().Notices, "expected own join not to be reflected")

	require.NoError(t, ch.Deliver(types.EventUserLeft, types.UserPresence{MatchId: "1", Username: "carol", Timestamp: base}))
	v := r.View()
	require.Len(t, v.Notices, 1)
	assert.Equal(t, types.PresenceLeft, v.Notices[0].Action)
	assert.Empty(t, v.Typing, "expected a departed user to stop typing")

	for i := 0; i < MaxNotices+10; i++ {
		require.NoError(t, ch.Deliver(types.EventUserJoined, types.UserPresence{MatchId: "1", Username: "fan", Timestamp: base.Add(time.Duration(i) * time.Second)}))
	}
	v = r.View()
	assert.Len(t, v.Notices, MaxNotices)
	assert.Equal(t, base.Add(time.Duration(MaxNotices+9)*time.Second), v.Notices[MaxNotices-1].Timestamp)

	require.NoError(t, ch.Deliver(types.EventTypingStart, types.Typing{MatchId: "1", UserId: "dave", Username: "dave"}))
	ch.SetConnected(false)
	assert.Empty(t, r.View().Typing, "expected typers to be cleared on disconnect")
}

func TestMembership(t *testing.T) {
	store := &memStore{name: "alice"}
	ch := realtime.NewFakeChannel(true)
	r := NewReconciler(ch, "1", "u1", testutil.TestLogger(t), WithUsernameStore(store))

	assert.Empty(t, ch.Emitted(), "expected no join before start")
	r.Start()
	r.Start()
	joins := ch.EmittedEvents(types.EventJoinChat)
	require.Len(t, joins, 1, "expected join to be idempotent")
	assert.Equal(t, types.ChatMembership{MatchId: "1", UserId: "u1", Username: "alice"}, joins[0].Payload)
	assert.True(t, r.View().Joined)

	r.SetUsername(" alice ")
	assert.Len(t, ch.EmittedEvents(types.EventJoinChat), 1, "expected unchanged username not to rejoin")

	r.SetUsername("alicia")
	leaves := ch.EmittedEvents(types.EventLeaveChat)
	require.Len(t, leaves, 1)
	assert.Equal(t, "alice", leaves[0].Payload.(types.ChatMembership).Username)
	joins = ch.EmittedEvents(types.EventJoinChat)
	require.Len(t, joins, 2)
	assert.Equal(t, "alicia", joins[1].Payload.(types.ChatMembership).Username)
	assert.Equal(t, "alicia", store.name, "expected username to be persisted")

	r.SetUsername("")
	assert.Len(t, ch.EmittedEvents(types.EventLeaveChat), 2, "expected clearing the username to leave")
	assert.False(t, r.View().Joined)

	// reconnecting does not rejoin a room that was left
	ch.Reset()
	ch.SetConnected(false)
	ch.SetConnected(true)
	assert.Empty(t, ch.EmittedEvents(types.EventJoinChat))

	r.SetUsername("alice")
	r.Stop()
	assert.Len(t, ch.EmittedEvents(types.EventLeaveChat), 1, "expected stop to leave the room")
	assert.Equal(t, 0, ch.HandlerCount(types.EventChatMessage))

	r.Stop()
	assert.Len(t, ch.EmittedEvents(types.EventLeaveChat), 1)
}

func TestStoreErrors(t *testing.T) {
	store := &memStore{name: "ignored", err: errors.New("disk full")}
	ch := realtime.NewFakeChannel(true)
	r := NewReconciler(ch, "1", "u1", testutil.TestLogger(t), WithUsernameStore(store))
	assert.Equal(t, "ignored", r.Username(), "expected a partial read to still be used")

	r.SetUsername("bob")
	assert.Equal(t, "bob", r.Username(), "expected a failed save not to block the change")
}

func TestScenario_AliceHello(t *testing.T) {
	r, ch := newTestReconciler(t, "alice")

	var views []View
	r.OnChange(func(v View) { views = append(views, v) })

	require.True(t, r.Send("hello"))
	require.Len(t, r.View().Entries, 1)
	assert.True(t, r.View().Entries[0].Pending())

	tempId := ch.EmittedEvents(types.EventSendMessage)[0].Payload.(types.SendMessage).TempId
	require.NoError(t, ch.Deliver(types.EventChatMessage, map[string]any{
		"matchId":   "1",
		"userId":    "alice",
		"username":  "alice",
		"message":   "hello",
		"timestamp": base.Add(time.Second),
		"tempId":    tempId,
	}))

	entries := r.View().Entries
	require.Len(t, entries, 1)
	assert.False(t, entries[0].Pending())
	assert.NotEmpty(t, views)
}

func TestNewIds(t *testing.T) {
	a, b := NewTempId(base), NewTempId(base)
	assert.NotEqual(t, a, b, "expected correlation ids to be unique within a session")
	assert.True(t, strings.HasPrefix(a, "tmp-"))

	assert.NotEqual(t, NewUserId(), NewUserId())
	assert.True(t, strings.HasPrefix(NewUserId(), "user-"))
}

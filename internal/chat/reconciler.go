package chat

import (
	"encoding/json"
	"log"
	"slices"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/npezzotti/go-matchcenter/internal/realtime"
	"github.com/npezzotti/go-matchcenter/internal/types"
	"github.com/teris-io/shortid"
)

const (
	DefaultTypingIdle = 1500 * time.Millisecond
	MaxNotices        = 50
)

// UsernameStore persists the username across sessions.
type UsernameStore interface {
	Username() (string, error)
	SetUsername(name string) error
}

// View is a copy of the chat state for rendering.
type View struct {
	Entries  []Entry
	Typing   []string
	Notices  []types.PresenceNotice
	Username string
	Joined   bool
}

// Reconciler owns the chat state of one match: the message window, the
// local typing signal, remote typers and join/leave notices.
type Reconciler struct {
	ch         realtime.Channel
	log        *log.Logger
	matchId    string
	userId     string
	typingIdle time.Duration
	store      UsernameStore
	now        func() time.Time

	mu          sync.Mutex
	started     bool
	username    string
	joined      bool
	entries     []Entry
	typers      map[string]string
	notices     []types.PresenceNotice
	typing      bool
	typingTimer *time.Timer
	typingGen   int
	observers   []func(View)
	offs        []func()
}

type Option func(*Reconciler)

func WithTypingIdle(d time.Duration) Option {
	return func(r *Reconciler) { r.typingIdle = d }
}

func WithUsernameStore(s UsernameStore) Option {
	return func(r *Reconciler) { r.store = s }
}

func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) { r.now = now }
}

func NewReconciler(ch realtime.Channel, matchId, userId string, logger *log.Logger, opts ...Option) *Reconciler {
	r := &Reconciler{
		ch:         ch,
		log:        logger,
		matchId:    matchId,
		userId:     userId,
		typingIdle: DefaultTypingIdle,
		now:        time.Now,
		typers:     make(map[string]string),
	}
	for _, opt := range opts {
		opt(r)
	}

	if r.store != nil {
		name, err := r.store.Username()
		if err != nil {
			r.log.Printf("chat %s: load username: %v", matchId, err)
		}
		r.username = strings.TrimSpace(name)
	}
	return r
}

// NewUserId returns an identifier for an anonymous chat session.
func NewUserId() string {
	return "user-" + uuid.NewString()
}

var tempSeq atomic.Uint64

// NewTempId returns a correlation id for an optimistic send.
func NewTempId(now time.Time) string {
	suffix, err := shortid.Generate()
	if err != nil {
		suffix = strconv.FormatUint(tempSeq.Add(1), 36)
	}
	return "tmp-" + strconv.FormatInt(now.UnixMilli(), 10) + "-" + suffix
}

func (r *Reconciler) OnChange(fn func(View)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observers = append(r.observers, fn)
}

// Start attaches the event handlers and joins the chat room when a username
// is set. The returned function is equivalent to Stop.
func (r *Reconciler) Start() func() {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return r.Stop
	}
	r.started = true
	r.offs = []func(){
		r.ch.On(types.EventChatMessage, r.handleMessage),
		r.ch.On(types.EventChatHistory, r.handleHistory),
		r.ch.On(types.EventTypingStart, r.handleTypingStart),
		r.ch.On(types.EventTypingStop, r.handleTypingStop),
		r.ch.On(types.EventUserJoined, r.handlePresence(types.PresenceJoined)),
		r.ch.On(types.EventUserLeft, r.handlePresence(types.PresenceLeft)),
		r.ch.On(types.EventConnect, r.handleConnect),
		r.ch.On(types.EventDisconnect, r.handleDisconnect),
	}
	join := r.joinLocked()
	r.mu.Unlock()

	join()
	r.notify()
	return r.Stop
}

// Stop leaves the chat room and detaches the handlers.
func (r *Reconciler) Stop() {
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return
	}
	r.started = false
	offs := r.offs
	r.offs = nil
	stopTyping := r.stopTypingLocked()
	leave := r.leaveLocked()
	r.mu.Unlock()

	stopTyping()
	leave()
	for _, off := range offs {
		off()
	}
}

// SetUsername changes the identity used for the chat room. Clearing it
// leaves the room; changing it leaves under the old name and joins under
// the new one.
func (r *Reconciler) SetUsername(name string) {
	name = strings.TrimSpace(name)

	r.mu.Lock()
	if name == r.username {
		r.mu.Unlock()
		return
	}
	stopTyping := r.stopTypingLocked()
	leave := r.leaveLocked()
	r.username = name
	join := r.joinLocked()
	r.mu.Unlock()

	if r.store != nil {
		if err := r.store.SetUsername(name); err != nil {
			r.log.Printf("chat %s: save username: %v", r.matchId, err)
		}
	}

	stopTyping()
	leave()
	join()
	r.notify()
}

func (r *Reconciler) Username() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.username
}

// CanSend reports whether Send and OnInput would have any effect.
func (r *Reconciler) CanSend() bool {
	r.mu.Lock()
	named := r.username != ""
	r.mu.Unlock()
	return named && r.ch.Connected()
}

// Send appends body as a pending message and transmits it. It is a no-op
// when body is blank, no username is set or the channel is disconnected.
func (r *Reconciler) Send(body string) bool {
	body = strings.TrimSpace(body)
	if body == "" || !r.ch.Connected() {
		return false
	}
	body = Truncate(body)

	r.mu.Lock()
	if r.username == "" {
		r.mu.Unlock()
		return false
	}
	now := r.now()
	tempId := NewTempId(now)
	msg := types.ChatMessage{
		MatchId:   r.matchId,
		UserId:    r.userId,
		Username:  r.username,
		Message:   body,
		Timestamp: now,
	}
	r.entries = AppendPending(r.entries, msg, tempId)
	stopTyping := r.stopTypingLocked()
	r.mu.Unlock()

	stopTyping()
	r.notify()

	ok := r.ch.Emit(types.EventSendMessage, types.SendMessage{
		MatchId:  msg.MatchId,
		UserId:   msg.UserId,
		Username: msg.Username,
		Message:  msg.Message,
		TempId:   tempId,
	}, r.handleAck)
	if !ok {
		r.log.Printf("chat %s: send %s not queued, waiting for broadcast", r.matchId, tempId)
	}
	return true
}

// OnInput reports the current contents of the message input. The first
// non-blank input of a burst emits typing_start; typing_stop follows after
// the idle timeout or at once when the input is cleared.
func (r *Reconciler) OnInput(text string) {
	if !r.ch.Connected() {
		return
	}

	r.mu.Lock()
	if r.username == "" {
		r.mu.Unlock()
		return
	}
	if strings.TrimSpace(text) == "" {
		stopTyping := r.stopTypingLocked()
		r.mu.Unlock()
		stopTyping()
		return
	}

	start := !r.typing
	r.typing = true
	if r.typingTimer != nil {
		r.typingTimer.Stop()
	}
	r.typingGen++
	gen := r.typingGen
	r.typingTimer = time.AfterFunc(r.typingIdle, func() { r.typingIdleExpired(gen) })
	payload := types.Typing{MatchId: r.matchId, UserId: r.userId, Username: r.username}
	r.mu.Unlock()

	if start {
		r.ch.Emit(types.EventTypingStart, payload, nil)
	}
}

func (r *Reconciler) typingIdleExpired(gen int) {
	r.mu.Lock()
	if gen != r.typingGen {
		r.mu.Unlock()
		return
	}
	stopTyping := r.stopTypingLocked()
	r.mu.Unlock()
	stopTyping()
}

// stopTypingLocked clears the local typing state and returns the emission
// to perform after the lock is released.
func (r *Reconciler) stopTypingLocked() func() {
	if r.typingTimer != nil {
		r.typingTimer.Stop()
		r.typingTimer = nil
	}
	r.typingGen++
	if !r.typing {
		return func() {}
	}
	r.typing = false
	payload := types.Typing{MatchId: r.matchId, UserId: r.userId}
	return func() { r.ch.Emit(types.EventTypingStop, payload, nil) }
}

func (r *Reconciler) joinLocked() func() {
	if !r.started || r.joined || r.username == "" {
		return func() {}
	}
	r.joined = true
	m := r.membershipLocked()
	return func() { r.ch.JoinChat(m) }
}

func (r *Reconciler) leaveLocked() func() {
	if !r.joined {
		return func() {}
	}
	r.joined = false
	m := r.membershipLocked()
	return func() { r.ch.LeaveChat(m) }
}

func (r *Reconciler) membershipLocked() types.ChatMembership {
	return types.ChatMembership{MatchId: r.matchId, UserId: r.userId, Username: r.username}
}

// View returns a copy of the current state.
func (r *Reconciler) View() View {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.viewLocked()
}

func (r *Reconciler) viewLocked() View {
	typing := make([]string, 0, len(r.typers))
	for _, name := range r.typers {
		typing = append(typing, name)
	}
	slices.Sort(typing)

	notices := make([]types.PresenceNotice, len(r.notices))
	copy(notices, r.notices)

	return View{
		Entries:  clone(r.entries),
		Typing:   typing,
		Notices:  notices,
		Username: r.username,
		Joined:   r.joined,
	}
}

func (r *Reconciler) handleAck(data json.RawMessage) {
	ack, err := realtime.Decode[types.SendMessageAck](data)
	if err != nil {
		r.log.Printf("chat %s: decode ack: %v", r.matchId, err)
		return
	}
	if !ack.Success || ack.Message == nil {
		r.log.Printf("chat %s: send rejected: %s", r.matchId, ack.Error)
		return
	}
	if ack.Message.MatchId != r.matchId {
		return
	}

	r.mu.Lock()
	r.entries = MergeAck(r.entries, *ack.Message)
	r.mu.Unlock()
	r.notify()
}

func (r *Reconciler) handleMessage(data json.RawMessage) {
	msg, err := realtime.Decode[types.ChatMessage](data)
	if err != nil {
		r.log.Printf("chat %s: decode chat_message: %v", r.matchId, err)
		return
	}
	if msg.MatchId != r.matchId {
		return
	}

	r.mu.Lock()
	r.entries = Merge(r.entries, msg)
	r.mu.Unlock()
	r.notify()
}

func (r *Reconciler) handleHistory(data json.RawMessage) {
	h, err := realtime.Decode[types.ChatHistory](data)
	if err != nil {
		r.log.Printf("chat %s: decode chat_history: %v", r.matchId, err)
		return
	}
	if h.MatchId != r.matchId {
		return
	}

	r.mu.Lock()
	for _, msg := range h.Messages {
		r.entries = Merge(r.entries, msg)
	}
	r.mu.Unlock()
	r.notify()
}

func (r *Reconciler) handleTypingStart(data json.RawMessage) {
	t, err := realtime.Decode[types.Typing](data)
	if err != nil || t.MatchId != r.matchId || t.UserId == "" {
		return
	}

	r.mu.Lock()
	if r.isSelfLocked(t.UserId, t.Username) {
		r.mu.Unlock()
		return
	}
	name := t.Username
	if name == "" {
		name = t.UserId
	}
	r.typers[t.UserId] = name
	r.mu.Unlock()
	r.notify()
}

func (r *Reconciler) handleTypingStop(data json.RawMessage) {
	t, err := realtime.Decode[types.Typing](data)
	if err != nil || t.MatchId != r.matchId {
		return
	}

	r.mu.Lock()
	_, ok := r.typers[t.UserId]
	delete(r.typers, t.UserId)
	r.mu.Unlock()
	if ok {
		r.notify()
	}
}

func (r *Reconciler) handlePresence(action types.PresenceAction) realtime.Handler {
	return func(data json.RawMessage) {
		p, err := realtime.Decode[types.UserPresence](data)
		if err != nil || p.MatchId != r.matchId || p.Username == "" {
			return
		}

		r.mu.Lock()
		if r.isSelfLocked("", p.Username) {
			r.mu.Unlock()
			return
		}
		ts := p.Timestamp
		if ts.IsZero() {
			ts = r.now()
		}
		r.notices = append(r.notices, types.PresenceNotice{Username: p.Username, Action: action, Timestamp: ts})
		if len(r.notices) > MaxNotices {
			r.notices = append([]types.PresenceNotice(nil), r.notices[len(r.notices)-MaxNotices:]...)
		}
		if action == types.PresenceLeft {
			for id, name := range r.typers {
				if name == p.Username {
					delete(r.typers, id)
				}
			}
		}
		r.mu.Unlock()
		r.notify()
	}
}

func (r *Reconciler) handleConnect(json.RawMessage) {
	r.notify()
}

// handleDisconnect drops state that only the live connection can keep
// current.
func (r *Reconciler) handleDisconnect(json.RawMessage) {
	r.mu.Lock()
	if r.typingTimer != nil {
		r.typingTimer.Stop()
		r.typingTimer = nil
	}
	r.typingGen++
	r.typing = false
	r.typers = make(map[string]string)
	r.mu.Unlock()
	r.notify()
}

func (r *Reconciler) isSelfLocked(userId, username string) bool {
	if userId != "" && userId == r.userId {
		return true
	}
	return username != "" && username == r.username
}

func (r *Reconciler) notify() {
	r.mu.Lock()
	observers := make([]func(View), len(r.observers))
	copy(observers, r.observers)
	var v View
	if len(observers) > 0 {
		v = r.viewLocked()
	}
	r.mu.Unlock()

	for _, fn := range observers {
		fn(v)
	}
}

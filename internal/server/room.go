package server

import (
	"encoding/json"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/npezzotti/go-matchcenter/internal/stats"
	"github.com/npezzotti/go-matchcenter/internal/types"
	"github.com/teris-io/shortid"
)

const (
	historySize      = 200
	historyReplay    = 50
	maxMessageLength = 500
)

// Room owns one match: its state, the simulator driving it, the clients
// subscribed to its topic and the members of its chat.
type Room struct {
	matchId   string
	hub       *Hub
	log       *log.Logger
	stats     stats.StatsProvider
	sim       *Simulator
	intervals HubConfig

	matchLock sync.RWMutex
	match     types.MatchDetail

	subscribers map[*Client]struct{}
	members     map[*Client]types.ChatMembership
	history     []types.ChatMessage

	clientMsgChan chan *ClientMessage
	leaveChan     chan *Client
	exit          chan struct{}
	done          chan struct{}
}

func newRoom(h *Hub, m types.MatchDetail, sim *Simulator) *Room {
	return &Room{
		matchId:       m.Id,
		hub:           h,
		log:           h.log,
		stats:         h.stats,
		sim:           sim,
		intervals:     h.cfg,
		match:         m,
		subscribers:   make(map[*Client]struct{}),
		members:       make(map[*Client]types.ChatMembership),
		clientMsgChan: make(chan *ClientMessage, 256),
		leaveChan:     make(chan *Client, 256),
		exit:          make(chan struct{}),
		done:          make(chan struct{}),
	}
}

func (r *Room) start() {
	r.log.Printf("starting room for match %q", r.matchId)
	defer close(r.done)

	clock := time.NewTicker(r.intervals.ClockInterval)
	statsTicker := time.NewTicker(r.intervals.StatsInterval)
	events := time.NewTicker(r.intervals.EventInterval)
	defer func() {
		clock.Stop()
		statsTicker.Stop()
		events.Stop()
	}()

	for {
		select {
		case msg := <-r.clientMsgChan:
			r.handleClientMessage(msg)
		case c := <-r.leaveChan:
			r.handleClientGone(c)
		case <-clock.C:
			r.tick()
		case <-statsTicker.C:
			r.driftStats()
		case <-events.C:
			r.maybeEvent()
		case <-r.exit:
			r.log.Printf("room for match %q is exiting", r.matchId)
			return
		}
	}
}

// Snapshot returns a copy of the match state.
func (r *Room) Snapshot() types.MatchDetail {
	r.matchLock.RLock()
	defer r.matchLock.RUnlock()

	m := r.match
	m.Events = append([]types.MatchEvent(nil), r.match.Events...)
	return m
}

func (r *Room) handleClientMessage(msg *ClientMessage) {
	switch msg.Event {
	case types.EventSubscribeMatch:
		r.handleSubscribe(msg)
	case types.EventUnsubscribeMatch:
		r.handleUnsubscribe(msg)
	case types.EventJoinChat:
		r.handleJoin(msg)
	case types.EventLeaveChat:
		r.handleLeave(msg)
	case types.EventSendMessage:
		r.saveAndBroadcast(msg)
	case types.EventTypingStart, types.EventTypingStop:
		r.relayTyping(msg)
	}
}

func (r *Room) handleSubscribe(msg *ClientMessage) {
	c := msg.client
	if _, ok := r.subscribers[c]; !ok {
		r.subscribers[c] = struct{}{}
		c.addRoom(r)
		r.stats.Incr(stats.MatchSubscriptions)
	}

	c.queueMessage(Event(types.EventSubscribed, types.Subscribed{CurrentState: r.Snapshot()}))
	if msg.Id > 0 {
		c.queueMessage(NoErrOK(msg.Id))
	}
}

func (r *Room) handleUnsubscribe(msg *ClientMessage) {
	c := msg.client
	if _, ok := r.subscribers[c]; ok {
		delete(r.subscribers, c)
		r.stats.Decr(stats.MatchSubscriptions)
		r.release(c)
	}
	if msg.Id > 0 {
		c.queueMessage(NoErrOK(msg.Id))
	}
}

func (r *Room) handleJoin(msg *ClientMessage) {
	c := msg.client
	var m types.ChatMembership
	if err := json.Unmarshal(msg.Data, &m); err != nil || strings.TrimSpace(m.Username) == "" {
		if msg.Id > 0 {
			c.queueMessage(ErrInvalidMessage(msg.Id))
		}
		return
	}

	_, existing := r.members[c]
	r.members[c] = m
	if !existing {
		c.addRoom(r)
		r.stats.Incr(stats.ChatMembers)
	}

	if len(r.history) > 0 {
		replay := r.history[max(0, len(r.history)-historyReplay):]
		c.queueMessage(Event(types.EventChatHistory, types.ChatHistory{
			MatchId:  r.matchId,
			Messages: append([]types.ChatMessage(nil), replay...),
		}))
	}

	if msg.Id > 0 {
		c.queueMessage(NoErrOK(msg.Id))
	}

	if !existing {
		join := Event(types.EventUserJoined, types.UserPresence{MatchId: r.matchId, Username: m.Username, Timestamp: msg.Timestamp})
		join.SkipClient = c
		r.toMembers(join)
	}
}

func (r *Room) handleLeave(msg *ClientMessage) {
	c := msg.client
	if _, ok := r.members[c]; ok {
		r.removeMember(c, msg.Timestamp)
		r.release(c)
	}
	if msg.Id > 0 {
		c.queueMessage(NoErrOK(msg.Id))
	}
}

func (r *Room) handleClientGone(c *Client) {
	if _, ok := r.subscribers[c]; ok {
		delete(r.subscribers, c)
		r.stats.Decr(stats.MatchSubscriptions)
	}
	if _, ok := r.members[c]; ok {
		r.removeMember(c, Now())
	}
	c.delRoom(r.matchId)
}

func (r *Room) removeMember(c *Client, ts time.Time) {
	m := r.members[c]
	delete(r.members, c)
	r.stats.Decr(stats.ChatMembers)

	left := Event(types.EventUserLeft, types.UserPresence{MatchId: r.matchId, Username: m.Username, Timestamp: ts})
	left.SkipClient = c
	r.toMembers(left)
}

// release forgets the room on the client once it neither follows the topic
// nor belongs to the chat.
func (r *Room) release(c *Client) {
	_, subscribed := r.subscribers[c]
	_, member := r.members[c]
	if !subscribed && !member {
		c.delRoom(r.matchId)
	}
}

func (r *Room) saveAndBroadcast(msg *ClientMessage) {
	c := msg.client
	var send types.SendMessage
	if err := json.Unmarshal(msg.Data, &send); err != nil {
		if msg.Id > 0 {
			c.queueMessage(ErrInvalidMessage(msg.Id))
		}
		return
	}

	body := strings.TrimSpace(send.Message)
	if body == "" || strings.TrimSpace(send.Username) == "" {
		if msg.Id > 0 {
			c.queueMessage(Ack(msg.Id, types.SendMessageAck{Error: "username and message are required"}))
		}
		return
	}
	if runes := []rune(body); len(runes) > maxMessageLength {
		body = string(runes[:maxMessageLength])
	}

	chatMsg := types.ChatMessage{
		Id:        newMessageId(),
		MatchId:   r.matchId,
		UserId:    send.UserId,
		Username:  send.Username,
		Message:   body,
		Timestamp: msg.Timestamp,
		TempId:    send.TempId,
	}

	r.history = append(r.history, chatMsg)
	if len(r.history) > historySize {
		r.history = append([]types.ChatMessage(nil), r.history[len(r.history)-historySize:]...)
	}
	r.stats.Incr(stats.ChatMessages)

	if msg.Id > 0 {
		c.queueMessage(Ack(msg.Id, types.SendMessageAck{Success: true, Message: &chatMsg}))
	}

	// the sender receives the broadcast too
	r.toMembers(Event(types.EventChatMessage, chatMsg))
}

func newMessageId() string {
	id, err := shortid.Generate()
	if err != nil {
		return "msg-" + Now().Format("20060102150405.000")
	}
	return "msg-" + id
}

func (r *Room) relayTyping(msg *ClientMessage) {
	var t types.Typing
	if err := json.Unmarshal(msg.Data, &t); err != nil {
		return
	}
	t.MatchId = r.matchId

	relay := Event(msg.Event, t)
	relay.SkipClient = msg.client
	r.toMembers(relay)
}

func (r *Room) tick() {
	r.matchLock.Lock()
	wasLive := r.match.Status.Live()
	m, changed := AdvanceClock(r.match.Match)
	r.match.Match = m
	r.matchLock.Unlock()

	if changed {
		r.toAll(Event(types.EventStatusChange, types.StatusChange{MatchId: r.matchId, Status: m.Status, Minute: m.Minute}))
	}
	if wasLive {
		r.toAll(Event(types.EventScoreUpdate, types.ScoreUpdate{MatchId: r.matchId, HomeScore: m.HomeScore, AwayScore: m.AwayScore}))
	}
}

func (r *Room) driftStats() {
	r.matchLock.Lock()
	if !r.match.Status.Live() {
		r.matchLock.Unlock()
		return
	}
	r.match.Statistics = r.sim.DriftStats(r.match.Statistics)
	s := r.match.Statistics
	r.matchLock.Unlock()

	r.toSubscribers(Event(types.EventStatsUpdate, types.StatsUpdate{MatchId: r.matchId, Statistics: s}))
}

func (r *Room) maybeEvent() {
	r.matchLock.Lock()
	if !r.match.Status.Live() {
		r.matchLock.Unlock()
		return
	}
	next, ev := r.sim.MaybeEvent(r.match)
	r.match = next
	r.matchLock.Unlock()

	if ev == nil {
		return
	}

	r.stats.Incr(stats.MatchEvents)
	r.toSubscribers(Event(types.EventMatchEvent, types.MatchEventUpdate{MatchEvent: *ev, MatchId: r.matchId}))
	if ev.Type == types.EventGoal {
		r.toAll(Event(types.EventScoreUpdate, types.ScoreUpdate{MatchId: r.matchId, HomeScore: next.HomeScore, AwayScore: next.AwayScore}))
	}
}

func (r *Room) toSubscribers(msg *ServerMessage) {
	for c := range r.subscribers {
		c.queueMessage(msg)
	}
}

func (r *Room) toMembers(msg *ServerMessage) {
	for c := range r.members {
		if c == msg.SkipClient {
			continue
		}
		c.queueMessage(msg)
	}
}

// toAll hands msg to the hub for delivery to every connected client.
func (r *Room) toAll(msg *ServerMessage) {
	select {
	case r.hub.broadcastChan <- msg:
	case <-r.exit:
	}
}

package types

import (
	"encoding/json"
	"time"
)

// Realtime event names.
const (
	EventConnect    = "connect"
	EventDisconnect = "disconnect"
	EventAck        = "ack"

	EventSubscribed   = "subscribed"
	EventScoreUpdate  = "score_update"
	EventMatchEvent   = "match_event"
	EventStatsUpdate  = "stats_update"
	EventStatusChange = "status_change"
	EventChatMessage  = "chat_message"
	EventChatHistory  = "chat_history"
	EventTypingStart  = "typing_start"
	EventTypingStop   = "typing_stop"
	EventUserJoined   = "user_joined"
	EventUserLeft     = "user_left"

	EventSubscribeMatch   = "subscribe_match"
	EventUnsubscribeMatch = "unsubscribe_match"
	EventJoinChat         = "join_chat"
	EventLeaveChat        = "leave_chat"
	EventSendMessage      = "send_message"
)

// Envelope is the frame exchanged over the realtime socket. A positive Id on
// a client frame requests an acknowledgment, which the server returns as an
// EventAck frame carrying the same Id.
type Envelope struct {
	Id    int             `json:"id,omitempty"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope marshals payload into an envelope for event.
func NewEnvelope(event string, payload any) (*Envelope, error) {
	env := &Envelope{Event: event}
	if payload == nil {
		return env, nil
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	env.Data = data
	return env, nil
}

type Subscribed struct {
	CurrentState MatchDetail `json:"currentState"`
}

type ScoreUpdate struct {
	MatchId   string `json:"matchId"`
	HomeScore int    `json:"homeScore"`
	AwayScore int    `json:"awayScore"`
}

type MatchEventUpdate struct {
	MatchEvent
	MatchId string `json:"matchId"`
}

type StatsUpdate struct {
	MatchId    string     `json:"matchId"`
	Statistics MatchStats `json:"statistics"`
}

type StatusChange struct {
	MatchId string      `json:"matchId"`
	Status  MatchStatus `json:"status"`
	Minute  int         `json:"minute"`
}

type ChatHistory struct {
	MatchId  string        `json:"matchId"`
	Messages []ChatMessage `json:"messages"`
}

type MatchTopic struct {
	MatchId string `json:"matchId"`
}

// ChatMembership is the payload of join_chat and leave_chat.
type ChatMembership struct {
	MatchId  string `json:"matchId"`
	UserId   string `json:"userId"`
	Username string `json:"username"`
}

type SendMessage struct {
	MatchId  string `json:"matchId"`
	UserId   string `json:"userId"`
	Username string `json:"username"`
	Message  string `json:"message"`
	TempId   string `json:"tempId"`
}

type SendMessageAck struct {
	Success bool         `json:"success"`
	Message *ChatMessage `json:"message,omitempty"`
	Error   string       `json:"error,omitempty"`
}

type Typing struct {
	MatchId  string `json:"matchId"`
	UserId   string `json:"userId"`
	Username string `json:"username,omitempty"`
}

type UserPresence struct {
	MatchId   string    `json:"matchId"`
	Username  string    `json:"username"`
	Timestamp time.Time `json:"timestamp"`
}

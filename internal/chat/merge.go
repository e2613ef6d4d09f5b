package chat

import (
	"github.com/npezzotti/go-matchcenter/internal/types"
)

const (
	WindowSize       = 200
	MaxMessageLength = 500
)

// Delivery is either Pending or Confirmed.
type Delivery interface {
	isDelivery()
}

// Pending marks a locally sent message awaiting server confirmation.
type Pending struct {
	TempId string
}

type Confirmed struct{}

func (Pending) isDelivery()   {}
func (Confirmed) isDelivery() {}

type Entry struct {
	Message  types.ChatMessage
	Delivery Delivery
}

func (e Entry) Pending() bool {
	_, ok := e.Delivery.(Pending)
	return ok
}

func (e Entry) tempId() string {
	if p, ok := e.Delivery.(Pending); ok {
		return p.TempId
	}
	return ""
}

func confirmed(msg types.ChatMessage) Entry {
	msg.TempId = ""
	return Entry{Message: msg, Delivery: Confirmed{}}
}

// AppendPending adds an optimistic entry for msg, correlated by tempId.
func AppendPending(list []Entry, msg types.ChatMessage, tempId string) []Entry {
	msg.TempId = tempId
	return appendTrimmed(list, Entry{Message: msg, Delivery: Pending{TempId: tempId}})
}

// Merge folds a chat_message broadcast into list. In order:
//  1. a pending entry with the same correlation id is confirmed in place
//  2. a confirmed duplicate makes the merge a no-op
//  3. the first pending entry with the same user and body is confirmed in place
//  4. otherwise msg is appended as confirmed
//
// The input list is never modified.
func Merge(list []Entry, msg types.ChatMessage) []Entry {
	return merge(list, msg, true)
}

// MergeAck folds the canonical message from a send_message acknowledgment
// into list. It matches by correlation id only; user and body inference is
// reserved for broadcasts.
func MergeAck(list []Entry, msg types.ChatMessage) []Entry {
	return merge(list, msg, false)
}

func merge(list []Entry, msg types.ChatMessage, infer bool) []Entry {
	if msg.TempId != "" {
		if i := indexOf(list, func(e Entry) bool { return e.tempId() == msg.TempId }); i >= 0 {
			return replaceAt(list, i, confirmed(msg))
		}
	}

	if indexOf(list, func(e Entry) bool { return !e.Pending() && duplicate(e.Message, msg) }) >= 0 {
		return clone(list)
	}

	if infer {
		i := indexOf(list, func(e Entry) bool {
			return e.Pending() && e.Message.UserId == msg.UserId && e.Message.Message == msg.Message
		})
		if i >= 0 {
			return replaceAt(list, i, confirmed(msg))
		}
	}

	return appendTrimmed(list, confirmed(msg))
}

// duplicate reports whether a and b share a server id or the same
// (timestamp, user, body).
func duplicate(a, b types.ChatMessage) bool {
	if a.Id != "" && a.Id == b.Id {
		return true
	}
	return a.Timestamp.Equal(b.Timestamp) && a.UserId == b.UserId && a.Message == b.Message
}

func indexOf(list []Entry, fn func(Entry) bool) int {
	for i, e := range list {
		if fn(e) {
			return i
		}
	}
	return -1
}

func clone(list []Entry) []Entry {
	out := make([]Entry, len(list))
	copy(out, list)
	return out
}

func replaceAt(list []Entry, i int, e Entry) []Entry {
	out := clone(list)
	out[i] = e
	return out
}

func appendTrimmed(list []Entry, e Entry) []Entry {
	start := 0
	if len(list)+1 > WindowSize {
		start = len(list) + 1 - WindowSize
	}
	out := make([]Entry, 0, len(list)-start+1)
	out = append(out, list[start:]...)
	return append(out, e)
}

// Truncate limits body to MaxMessageLength characters.
func Truncate(body string) string {
	runes := []rune(body)
	if len(runes) <= MaxMessageLength {
		return body
	}
	return string(runes[:MaxMessageLength])
}

package server

import (
	"encoding/json"
	"time"

	"github.com/npezzotti/go-matchcenter/internal/types"
)

// ClientMessage is a frame received from a client, tagged with the match it
// targets.
type ClientMessage struct {
	types.Envelope
	MatchId   string    `json:"-"`
	Timestamp time.Time `json:"-"`
	client    *Client   `json:"-"`
}

// ServerMessage is a frame queued for delivery to clients.
type ServerMessage struct {
	types.Envelope
	SkipClient *Client `json:"-"`
}

type AckResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

func Event(event string, payload any) *ServerMessage {
	env, err := types.NewEnvelope(event, payload)
	if err != nil {
		env = &types.Envelope{Event: event}
	}
	return &ServerMessage{Envelope: *env}
}

func Ack(id int, payload any) *ServerMessage {
	msg := Event(types.EventAck, payload)
	msg.Id = id
	return msg
}

func NoErrOK(id int) *ServerMessage {
	return Ack(id, AckResponse{Success: true})
}

func ErrMatchNotFound(id int) *ServerMessage {
	return Ack(id, AckResponse{Error: "match not found"})
}

func ErrServiceUnavailable(id int) *ServerMessage {
	return Ack(id, AckResponse{Error: "service unavailable"})
}

func ErrInvalidMessage(id int) *ServerMessage {
	msg := Event(types.EventAck, AckResponse{Error: "invalid message format"})
	if id > 0 {
		msg.Id = id
	}
	return msg
}

func serializeMessage(msg *ServerMessage) ([]byte, error) {
	return json.Marshal(msg)
}

// Now returns the current time in the resolution used on the wire.
func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}

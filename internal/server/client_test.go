package server

import (
	"encoding/json"
	"testing"

	"github.com/npezzotti/go-matchcenter/internal/testutil"
	"github.com/npezzotti/go-matchcenter/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h *Hub) *Client {
	return &Client{
		hub:   h,
		log:   testutil.TestLogger(t),
		send:  make(chan *ServerMessage, 64),
		rooms: make(map[string]*Room),
		stop:  make(chan struct{}),
	}
}

// drain returns every message queued on c.
func drain(c *Client) []*ServerMessage {
	var msgs []*ServerMessage
	for {
		select {
		case msg := <-c.send:
			msgs = append(msgs, msg)
		default:
			return msgs
		}
	}
}

func decodeData[T any](t *testing.T, msg *ServerMessage) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(msg.Data, &v), "expected %q payload to decode", msg.Event)
	return v
}

func Test_queueMessage(t *testing.T) {
	t.Run("successful queue", func(t *testing.T) {
		c := &Client{
			send: make(chan *ServerMessage, 1),
			log:  testutil.TestLogger(t),
		}

		res := c.queueMessage(&ServerMessage{})
		assert.True(t, res, "expected queueMessage to return true when channel is not full")

		select {
		case msg := <-c.send:
			assert.NotNil(t, msg, "expected a message to be sent to the client")
		default:
			t.Error("expected a message to be sent to the client, but none was sent")
		}
	})
	t.Run("channel full", func(t *testing.T) {
		c := &Client{
			send: make(chan *ServerMessage, 1),
			log:  testutil.TestLogger(t),
		}

		c.send <- &ServerMessage{}
		res := c.queueMessage(&ServerMessage{})
		assert.False(t, res, "expected queueMessage to return false when channel is full")
	})
}

func Test_serializeMessage(t *testing.T) {
	tcases := []struct {
		name     string
		msg      *ServerMessage
		expected string
	}{
		{
			name:     "event",
			msg:      Event(types.EventScoreUpdate, types.ScoreUpdate{MatchId: "1", HomeScore: 2, AwayScore: 1}),
			expected: `{"event":"score_update","data":{"matchId":"1","homeScore":2,"awayScore":1}}`,
		},
		{
			name:     "ack",
			msg:      NoErrOK(7),
			expected: `{"id":7,"event":"ack","data":{"success":true}}`,
		},
		{
			name:     "error ack",
			msg:      ErrMatchNotFound(3),
			expected: `{"id":3,"event":"ack","data":{"success":false,"error":"match not found"}}`,
		},
		{
			name:     "invalid message without id",
			msg:      ErrInvalidMessage(-1),
			expected: `{"event":"ack","data":{"success":false,"error":"invalid message format"}}`,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			bytes, err := serializeMessage(tc.msg)
			assert.NoError(t, err, "expected no error during serialization")
			assert.JSONEq(t, tc.expected, string(bytes))
		})
	}
}

func Test_stopClient(t *testing.T) {
	c := &Client{
		stop: make(chan struct{}),
	}

	c.stopClient()
	c.stopClient()

	select {
	case <-c.stop:
	default:
		t.Error("expected stop channel to be closed")
	}
}

func Test_leaveAllRooms(t *testing.T) {
	rooms := []*Room{
		{matchId: "1", leaveChan: make(chan *Client, 1), exit: make(chan struct{})},
		{matchId: "2", leaveChan: make(chan *Client, 1), exit: make(chan struct{})},
	}

	c := &Client{rooms: make(map[string]*Room)}
	for _, room := range rooms {
		c.addRoom(room)
	}

	c.leaveAllRooms()

	for _, room := range rooms {
		select {
		case got := <-room.leaveChan:
			assert.Equal(t, c, got, "expected client on leave chan of room %s", room.matchId)
		default:
			t.Errorf("expected leave to be sent for room %s", room.matchId)
		}
	}
}

func Test_leaveAllRooms_exitedRoom(t *testing.T) {
	room := &Room{matchId: "1", leaveChan: make(chan *Client), exit: make(chan struct{})}
	close(room.exit)

	c := &Client{rooms: make(map[string]*Room)}
	c.addRoom(room)

	// must not block on a room that has exited
	c.leaveAllRooms()
}

func Test_addRoom_delRoom(t *testing.T) {
	c := &Client{rooms: make(map[string]*Room)}
	r := &Room{matchId: "1"}

	c.addRoom(r)
	assert.Equal(t, r, c.getRoom("1"))

	c.delRoom("1")
	assert.Nil(t, c.getRoom("1"))
}

func Test_route(t *testing.T) {
	tcases := []struct {
		name      string
		event     string
		matchId   string
		fillRoom  bool
		routed    bool
		expectErr string
	}{
		{name: "routes to room", event: types.EventSubscribeMatch, matchId: "1", routed: true},
		{name: "unknown event", event: "kick_off", matchId: "1", expectErr: "invalid message format"},
		{name: "unknown match", event: types.EventJoinChat, matchId: "99", expectErr: "match not found"},
		{name: "room busy", event: types.EventSendMessage, matchId: "1", fillRoom: true, expectErr: "service unavailable"},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			room := &Room{matchId: "1", clientMsgChan: make(chan *ClientMessage, 1)}
			h := &Hub{rooms: map[string]*Room{"1": room}}
			c := newTestClient(t, h)
			if tc.fillRoom {
				room.clientMsgChan <- &ClientMessage{}
			}

			msg := &ClientMessage{Envelope: types.Envelope{Id: 5, Event: tc.event}, MatchId: tc.matchId, client: c}
			c.route(msg)

			if tc.routed {
				require.Len(t, room.clientMsgChan, 1)
				assert.Equal(t, msg, <-room.clientMsgChan)
				assert.Empty(t, drain(c))
				return
			}

			msgs := drain(c)
			require.Len(t, msgs, 1)
			assert.Equal(t, 5, msgs[0].Id)
			ack := decodeData[AckResponse](t, msgs[0])
			assert.False(t, ack.Success)
			assert.Equal(t, tc.expectErr, ack.Error)
		})
	}
}

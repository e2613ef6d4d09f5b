package realtime

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/go-matchcenter/internal/types"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 64 << 10
	sendBuffer     = 256

	DefaultReconnectDelay    = time.Second
	DefaultMaxReconnectDelay = 5 * time.Second
)

// Client is a realtime channel over a single websocket connection. It
// reconnects indefinitely and re-issues the active match subscription and
// chat membership after every connect. All handlers and ack callbacks run
// on the read goroutine.
type Client struct {
	url       string
	dialer    *websocket.Dialer
	header    http.Header
	log       *log.Logger
	baseDelay time.Duration
	maxDelay  time.Duration

	handlers *registry
	session  session

	connected atomic.Bool

	mu     sync.Mutex
	send   chan []byte
	nextId int
	acks   map[int]AckFunc

	cancel context.CancelFunc
	done   chan struct{}
}

type ClientOption func(*Client)

func WithDialer(d *websocket.Dialer) ClientOption {
	return func(c *Client) { c.dialer = d }
}

func WithHeader(h http.Header) ClientOption {
	return func(c *Client) { c.header = h }
}

// WithReconnectDelay sets the first reconnect delay and its cap. The delay
// doubles after each failed attempt.
func WithReconnectDelay(base, max time.Duration) ClientOption {
	return func(c *Client) {
		c.baseDelay = base
		c.maxDelay = max
	}
}

func NewClient(url string, logger *log.Logger, opts ...ClientOption) *Client {
	c := &Client{
		url:       url,
		dialer:    websocket.DefaultDialer,
		log:       logger,
		baseDelay: DefaultReconnectDelay,
		maxDelay:  DefaultMaxReconnectDelay,
		handlers:  newRegistry(),
		acks:      make(map[int]AckFunc),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start connects in the background. It returns immediately; connection
// state is reported through the connect and disconnect events.
func (c *Client) Start(ctx context.Context) {
	c.mu.Lock()
	if c.done != nil {
		c.mu.Unlock()
		return
	}
	ctx, c.cancel = context.WithCancel(ctx)
	c.done = make(chan struct{})
	c.mu.Unlock()

	go c.run(ctx)
}

// Stop closes the connection and waits for the background loop to exit.
func (c *Client) Stop() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (c *Client) Connected() bool {
	return c.connected.Load()
}

func (c *Client) On(event string, h Handler) func() {
	return c.handlers.on(event, h)
}

// Emit sends event with payload. If ack is non-nil the frame requests an
// acknowledgment and ack is invoked with its data. Emit reports false when
// the frame could not be queued, including when disconnected.
func (c *Client) Emit(event string, payload any, ack AckFunc) bool {
	env, err := types.NewEnvelope(event, payload)
	if err != nil {
		c.log.Printf("emit %s: %v", event, err)
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected.Load() || c.send == nil {
		c.log.Printf("emit %s: not connected", event)
		return false
	}

	if ack != nil {
		c.nextId++
		env.Id = c.nextId
	}

	b, err := json.Marshal(env)
	if err != nil {
		c.log.Printf("emit %s: %v", event, err)
		return false
	}

	select {
	case c.send <- b:
	default:
		c.log.Printf("emit %s: send buffer full", event)
		return false
	}

	if ack != nil {
		c.acks[env.Id] = ack
	}
	return true
}

// Subscribe makes matchId the active topic and requests it from the server.
func (c *Client) Subscribe(matchId string) {
	c.session.subscribe(matchId)
	c.Emit(types.EventSubscribeMatch, types.MatchTopic{MatchId: matchId}, nil)
}

func (c *Client) Unsubscribe(matchId string) {
	c.session.unsubscribe(matchId)
	c.Emit(types.EventUnsubscribeMatch, types.MatchTopic{MatchId: matchId}, nil)
}

// JoinChat records the chat membership and announces it to the server.
func (c *Client) JoinChat(m types.ChatMembership) {
	c.session.join(m)
	c.Emit(types.EventJoinChat, m, nil)
}

func (c *Client) LeaveChat(m types.ChatMembership) {
	c.session.leave(m)
	c.Emit(types.EventLeaveChat, m, nil)
}

func (c *Client) ActiveTopic() string {
	return c.session.activeTopic()
}

func (c *Client) run(ctx context.Context) {
	defer close(c.done)

	delay := c.baseDelay
	for {
		conn, _, err := c.dialer.DialContext(ctx, c.url, c.header)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.log.Printf("dial %s: %v, retrying in %s", c.url, err, delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return
			}
			delay = nextDelay(delay, c.maxDelay)
			continue
		}

		delay = c.baseDelay
		c.serve(ctx, conn)
		if ctx.Err() != nil {
			return
		}
	}
}

func nextDelay(d, max time.Duration) time.Duration {
	return min(d*2, max)
}

// serve owns conn until it fails. The calling goroutine is the dispatch
// goroutine for everything received on conn.
func (c *Client) serve(ctx context.Context, conn *websocket.Conn) {
	send := make(chan []byte, sendBuffer)
	stop := make(chan struct{})

	c.mu.Lock()
	c.send = send
	c.connected.Store(true)
	c.mu.Unlock()

	go c.write(ctx, conn, send, stop)

	c.log.Printf("connected to %s", c.url)
	for _, f := range c.session.replay() {
		c.Emit(f.event, f.payload, nil)
	}
	c.handlers.dispatch(types.EventConnect, nil)

	c.read(conn)

	close(stop)
	conn.Close()

	c.mu.Lock()
	c.connected.Store(false)
	c.send = nil
	dropped := len(c.acks)
	c.acks = make(map[int]AckFunc)
	c.mu.Unlock()

	if dropped > 0 {
		c.log.Printf("dropped %d pending acks", dropped)
	}
	c.log.Printf("disconnected from %s", c.url)
	c.handlers.dispatch(types.EventDisconnect, nil)
}

func (c *Client) read(conn *websocket.Conn) {
	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error { conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	conn.SetPingHandler(func(appData string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		err := conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(writeWait))
		if err == websocket.ErrCloseSent {
			return nil
		}
		return err
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.log.Printf("ws: read: %v", err)
			}
			return
		}

		var env types.Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			c.log.Println("error parsing frame:", err)
			continue
		}

		if env.Event == types.EventAck {
			c.resolveAck(env)
			continue
		}
		c.handlers.dispatch(env.Event, env.Data)
	}
}

func (c *Client) resolveAck(env types.Envelope) {
	c.mu.Lock()
	ack, ok := c.acks[env.Id]
	delete(c.acks, env.Id)
	c.mu.Unlock()

	if !ok {
		c.log.Printf("ack %d: no pending callback", env.Id)
		return
	}
	ack(env.Data)
}

func (c *Client) write(ctx context.Context, conn *websocket.Conn, send <-chan []byte, stop <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case b := <-send:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
				c.log.Printf("write message: %s", err)
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-ctx.Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		case <-stop:
			return
		}
	}
}

package server

import (
	"context"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/npezzotti/go-matchcenter/internal/stats"
	"github.com/npezzotti/go-matchcenter/internal/types"
)

type HubConfig struct {
	ClockInterval time.Duration
	StatsInterval time.Duration
	EventInterval time.Duration
	// Seed for the simulators. Zero seeds from the clock.
	Seed int64
}

// Hub is the mock match server: it tracks connected clients, owns one Room
// per match and fans out broadcasts meant for every client.
type Hub struct {
	log            *log.Logger
	stats          stats.StatsProvider
	cfg            HubConfig
	clients        map[*Client]struct{}
	clientsLock    sync.Mutex
	RegisterChan   chan *Client
	deRegisterChan chan *Client
	broadcastChan  chan *ServerMessage
	rooms          map[string]*Room
	order          []string
	stop           chan struct{}
	done           chan struct{}
	shutdownOnce   sync.Once
}

func NewHub(logger *log.Logger, sp stats.StatsProvider, matches []types.MatchDetail, cfg HubConfig) *Hub {
	h := &Hub{
		log:            logger,
		stats:          sp,
		cfg:            cfg,
		clients:        make(map[*Client]struct{}),
		RegisterChan:   make(chan *Client),
		deRegisterChan: make(chan *Client),
		broadcastChan:  make(chan *ServerMessage, 256),
		rooms:          make(map[string]*Room),
		stop:           make(chan struct{}),
		done:           make(chan struct{}),
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	for i, m := range matches {
		sim := NewSimulator(rand.New(rand.NewSource(seed + int64(i))))
		h.rooms[m.Id] = newRoom(h, m, sim)
		h.order = append(h.order, m.Id)
	}

	return h
}

func (h *Hub) Run() {
	for _, r := range h.rooms {
		go r.start()
	}

	for {
		select {
		case client := <-h.RegisterChan:
			h.addClient(client)
			h.stats.Incr(stats.ConnectedClients)
		case client := <-h.deRegisterChan:
			h.removeClient(client)
			h.stats.Decr(stats.ConnectedClients)
		case msg := <-h.broadcastChan:
			h.broadcast(msg)
		case <-h.stop:
			h.log.Println("shutting down rooms")
			for _, r := range h.rooms {
				close(r.exit)
				<-r.done
			}

			close(h.done)
			return
		}
	}
}

// RegisterClient hands c to the hub. It returns false once the hub has
// stopped.
func (h *Hub) RegisterClient(c *Client) bool {
	select {
	case h.RegisterChan <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) addClient(c *Client) {
	h.clientsLock.Lock()
	defer h.clientsLock.Unlock()
	h.clients[c] = struct{}{}
}

func (h *Hub) removeClient(c *Client) {
	h.clientsLock.Lock()
	defer h.clientsLock.Unlock()
	delete(h.clients, c)
}

func (h *Hub) broadcast(msg *ServerMessage) {
	h.clientsLock.Lock()
	defer h.clientsLock.Unlock()

	for c := range h.clients {
		if c == msg.SkipClient {
			continue
		}
		c.queueMessage(msg)
	}
}

func (h *Hub) ClientCount() int {
	h.clientsLock.Lock()
	defer h.clientsLock.Unlock()
	return len(h.clients)
}

func (h *Hub) room(matchId string) *Room {
	return h.rooms[matchId]
}

// Matches returns the summaries of every match in seed order.
func (h *Hub) Matches() []types.Match {
	matches := make([]types.Match, 0, len(h.order))
	for _, id := range h.order {
		matches = append(matches, h.rooms[id].Snapshot().Match)
	}
	return matches
}

func (h *Hub) LiveMatches() []types.Match {
	var live []types.Match
	for _, m := range h.Matches() {
		if m.Status.Live() {
			live = append(live, m)
		}
	}
	return live
}

func (h *Hub) Match(id string) (types.MatchDetail, bool) {
	r, ok := h.rooms[id]
	if !ok {
		return types.MatchDetail{}, false
	}
	return r.Snapshot(), true
}

// Shutdown stops every client and room, waiting until the hub has exited or
// ctx is done.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.shutdownOnce.Do(func() {
		h.log.Println("received shutdown signal")
		h.clientsLock.Lock()
		for c := range h.clients {
			c.stopClient()
		}
		h.clientsLock.Unlock()

		close(h.stop)
	})

	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

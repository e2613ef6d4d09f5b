package tui

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"
)

// updatesMsg carries every message posted since the last delivery.
type updatesMsg []tea.Msg

// mailbox moves state changes from realtime handlers into the program
// without blocking the handler. Every posted message is a full snapshot, so
// a newer message replaces an undelivered one of the same kind.
type mailbox struct {
	mu      sync.Mutex
	pending map[string]tea.Msg
	order   []string
	signal  chan struct{}
}

func newMailbox() *mailbox {
	return &mailbox{
		pending: make(map[string]tea.Msg),
		signal:  make(chan struct{}, 1),
	}
}

func (b *mailbox) put(kind string, msg tea.Msg) {
	b.mu.Lock()
	if _, ok := b.pending[kind]; !ok {
		b.order = append(b.order, kind)
	}
	b.pending[kind] = msg
	b.mu.Unlock()

	select {
	case b.signal <- struct{}{}:
	default:
	}
}

// take returns the pending messages in the order their kinds were first
// posted.
func (b *mailbox) take() updatesMsg {
	b.mu.Lock()
	defer b.mu.Unlock()

	msgs := make(updatesMsg, 0, len(b.order))
	for _, kind := range b.order {
		msgs = append(msgs, b.pending[kind])
	}
	clear(b.pending)
	b.order = b.order[:0]
	return msgs
}

// wait is a tea.Cmd that blocks until something is posted.
func (b *mailbox) wait() tea.Msg {
	<-b.signal
	return b.take()
}

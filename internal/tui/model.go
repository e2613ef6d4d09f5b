// Package tui is the terminal view of the match center: a live match list
// and a detail page with timeline, statistics and chat.
package tui

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/npezzotti/go-matchcenter/internal/chat"
	"github.com/npezzotti/go-matchcenter/internal/fetch"
	"github.com/npezzotti/go-matchcenter/internal/match"
	"github.com/npezzotti/go-matchcenter/internal/realtime"
	"github.com/npezzotti/go-matchcenter/internal/types"
)

const (
	fetchTimeout = 30 * time.Second
	nameCommand  = "/name"
)

// Fetcher loads the HTTP snapshots.
type Fetcher interface {
	Matches(ctx context.Context) ([]types.Match, error)
	Match(ctx context.Context, id string) (types.MatchDetail, error)
}

type Options struct {
	Channel realtime.Channel
	Fetcher Fetcher
	Store   chat.UsernameStore
	UserId  string
	Logger  *log.Logger
	// Fallback is shown when the API cannot be reached.
	Fallback []types.MatchDetail
}

type page int

const (
	pageList page = iota
	pageDetail
)

type (
	matchesLoadedMsg struct {
		matches []types.Match
		offline bool
	}
	detailLoadedMsg struct {
		id       string
		detail   types.MatchDetail
		notFound bool
		offline  bool
	}
	listMsg   []types.Match
	connMsg   bool
	detailMsg struct {
		id     string
		detail types.MatchDetail
	}
	chatMsg struct {
		id   string
		view chat.View
	}
)

type Model struct {
	opts Options
	log  *log.Logger
	box  *mailbox

	list     *match.ListReconciler
	stopList func()
	offConn  []func()

	page      page
	matches   []types.Match
	cursor    int
	connected bool
	offline   bool
	status    string

	openId     string
	detail     *match.Reconciler
	chat       *chat.Reconciler
	stopDetail func()
	stopChat   func()
	current    types.MatchDetail
	hasCurrent bool
	notFound   bool
	chatView   chat.View

	viewport viewport.Model
	input    textinput.Model
	width    int
	height   int
	ready    bool
}

func New(opts Options) *Model {
	ti := textinput.New()
	ti.Placeholder = "Type a message, or /name <username>"
	ti.CharLimit = chat.MaxMessageLength
	ti.Width = 40

	m := &Model{
		opts:      opts,
		log:       opts.Logger,
		box:       newMailbox(),
		list:      match.NewListReconciler(opts.Channel, opts.Logger),
		connected: opts.Channel.Connected(),
		input:     ti,
	}

	m.list.OnChange(func(matches []types.Match) { m.box.put("list", listMsg(matches)) })
	m.stopList = m.list.Start()
	m.offConn = []func(){
		opts.Channel.On(types.EventConnect, func(json.RawMessage) { m.box.put("conn", connMsg(true)) }),
		opts.Channel.On(types.EventDisconnect, func(json.RawMessage) { m.box.put("conn", connMsg(false)) }),
	}

	return m
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.loadMatches, m.box.wait, textinput.Blink)
}

// Close detaches every reconciler from the channel.
func (m *Model) Close() {
	m.closeDetail()
	m.stopList()
	for _, off := range m.offConn {
		off()
	}
	m.offConn = nil
}

func (m *Model) loadMatches() tea.Msg {
	ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
	defer cancel()

	matches, err := m.opts.Fetcher.Matches(ctx)
	if err != nil {
		m.log.Printf("load matches: %v, using fallback data", err)
		fallback := make([]types.Match, 0, len(m.opts.Fallback))
		for _, d := range m.opts.Fallback {
			fallback = append(fallback, d.Match)
		}
		return matchesLoadedMsg{matches: fallback, offline: true}
	}
	return matchesLoadedMsg{matches: matches}
}

func (m *Model) loadDetail(id string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
		defer cancel()

		d, err := m.opts.Fetcher.Match(ctx, id)
		switch {
		case err == nil:
			return detailLoadedMsg{id: id, detail: d}
		case errors.Is(err, fetch.ErrNotFound):
			return detailLoadedMsg{id: id, notFound: true}
		}

		m.log.Printf("load match %s: %v, using fallback data", id, err)
		for _, d := range m.opts.Fallback {
			if d.Id == id {
				return detailLoadedMsg{id: id, detail: match.Clone(d), offline: true}
			}
		}
		return detailLoadedMsg{id: id, notFound: true}
	}
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil

	case updatesMsg:
		for _, u := range msg {
			m.apply(u)
		}
		m.refresh()
		return m, m.box.wait

	case matchesLoadedMsg:
		m.offline = msg.offline
		m.list.Set(msg.matches)
		m.apply(listMsg(msg.matches))
		return m, nil

	case detailLoadedMsg:
		if msg.id != m.openId {
			return m, nil
		}
		if msg.notFound {
			m.notFound = true
			return m, nil
		}
		m.offline = m.offline || msg.offline
		m.detail.Seed(msg.detail)
		if d, ok := m.detail.Snapshot(); ok {
			m.apply(detailMsg{id: msg.id, detail: d})
		}
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			m.Close()
			return m, tea.Quit
		}
		if m.page == pageList {
			return m.updateList(msg)
		}
		return m.updateDetail(msg)
	}

	if m.page == pageDetail {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *Model) apply(msg tea.Msg) {
	switch msg := msg.(type) {
	case listMsg:
		m.matches = msg
		m.cursor = max(0, min(m.cursor, len(m.matches)-1))
	case connMsg:
		m.connected = bool(msg)
	case detailMsg:
		if msg.id == m.openId {
			m.current = msg.detail
			m.hasCurrent = true
		}
	case chatMsg:
		if msg.id == m.openId {
			m.chatView = msg.view
		}
	}
}

func (m *Model) updateList(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q":
		m.Close()
		return m, tea.Quit
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.matches)-1 {
			m.cursor++
		}
	case "enter":
		if len(m.matches) > 0 {
			return m, m.openDetail(m.matches[m.cursor].Id)
		}
	}
	return m, nil
}

func (m *Model) updateDetail(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.closeDetail()
		return m, nil
	case tea.KeyEnter:
		m.submit(m.input.Value())
		m.input.Reset()
		m.refresh()
		return m, nil
	case tea.KeyPgUp, tea.KeyPgDown:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	m.chat.OnInput(m.input.Value())
	return m, cmd
}

func (m *Model) submit(line string) {
	line = strings.TrimSpace(line)
	m.status = ""
	switch {
	case line == "":
		return
	case line == nameCommand || strings.HasPrefix(line, nameCommand+" "):
		name := strings.TrimSpace(strings.TrimPrefix(line, nameCommand))
		m.chat.SetUsername(name)
		if name == "" {
			m.status = "left the chat"
		} else {
			m.status = "chatting as " + name
		}
	case m.chat.Username() == "":
		m.status = "set a name first with /name <username>"
	case !m.opts.Channel.Connected():
		m.status = "not connected, message not sent"
	default:
		m.chat.Send(line)
	}
	m.chatView = m.chat.View()
}

func (m *Model) openDetail(id string) tea.Cmd {
	m.closeDetail()

	m.page = pageDetail
	m.openId = id
	m.detail = match.NewReconciler(m.opts.Channel, id, m.log)
	m.detail.OnChange(func(d types.MatchDetail) { m.box.put("detail", detailMsg{id: id, detail: d}) })
	m.chat = chat.NewReconciler(m.opts.Channel, id, m.opts.UserId, m.log, chat.WithUsernameStore(m.opts.Store))
	m.chat.OnChange(func(v chat.View) { m.box.put("chat", chatMsg{id: id, view: v}) })

	m.stopDetail = m.detail.Start()
	m.stopChat = m.chat.Start()
	m.chatView = m.chat.View()
	m.input.Focus()
	m.refresh()

	return m.loadDetail(id)
}

func (m *Model) closeDetail() {
	if m.stopChat != nil {
		m.stopChat()
	}
	if m.stopDetail != nil {
		m.stopDetail()
	}

	m.page = pageList
	m.openId = ""
	m.detail, m.chat = nil, nil
	m.stopDetail, m.stopChat = nil, nil
	m.current, m.hasCurrent, m.notFound = types.MatchDetail{}, false, false
	m.chatView = chat.View{}
	m.status = ""
	m.input.Reset()
	m.input.Blur()
}

func (m *Model) resize(width, height int) {
	m.width, m.height = width, height
	vpHeight := max(3, height-headerHeight-footerHeight)
	if !m.ready {
		m.viewport = viewport.New(width, vpHeight)
		m.ready = true
	} else {
		m.viewport.Width = width
		m.viewport.Height = vpHeight
	}
	m.input.Width = max(10, width-4)
	m.refresh()
}

// refresh re-renders the detail page into the viewport, following the chat
// when the view was already at the bottom.
func (m *Model) refresh() {
	if !m.ready || m.page != pageDetail {
		return
	}
	atBottom := m.viewport.AtBottom()
	m.viewport.SetContent(m.detailBody())
	if atBottom {
		m.viewport.GotoBottom()
	}
}

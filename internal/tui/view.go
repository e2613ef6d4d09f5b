package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/npezzotti/go-matchcenter/internal/chat"
	"github.com/npezzotti/go-matchcenter/internal/match"
	"github.com/npezzotti/go-matchcenter/internal/types"
)

const (
	headerHeight = 2
	footerHeight = 3
	barWidth     = 20
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true)
	onlineStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	offlineStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	faintStyle   = lipgloss.NewStyle().Faint(true)
	cursorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("6")).Bold(true)
	sectionStyle = lipgloss.NewStyle().Bold(true).Underline(true)
	scoreStyle   = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	borderStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#505050"))

	eventStyles = map[types.EventType]lipgloss.Style{
		types.EventGoal:         lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Bold(true),
		types.EventYellowCard:   lipgloss.NewStyle().Foreground(lipgloss.Color("3")),
		types.EventRedCard:      lipgloss.NewStyle().Foreground(lipgloss.Color("1")),
		types.EventShot:         lipgloss.NewStyle().Foreground(lipgloss.Color("4")),
		types.EventSubstitution: lipgloss.NewStyle().Foreground(lipgloss.Color("5")),
	}
)

func (m *Model) View() string {
	header := m.header()
	if m.page == pageList {
		return header + "\n" + renderList(m.matches, m.cursor) + "\n" + faintStyle.Render("↑/↓ select · enter open · q quit")
	}
	if !m.ready {
		return header + "\n  Initializing..."
	}

	width := max(m.viewport.Width, 1)
	footer := borderStyle.Render(strings.Repeat("─", width)) + "\n" + m.input.View() + "\n"
	if m.status != "" {
		footer += faintStyle.Render(m.status)
	} else {
		footer += faintStyle.Render("esc back · pgup/pgdn scroll · /name <username>")
	}
	return header + "\n" + m.viewport.View() + "\n" + footer
}

func (m *Model) header() string {
	title := titleStyle.Render("Match Center")
	line := title + "  " + renderConnectivity(m.connected)
	if m.offline {
		line += "  " + faintStyle.Render("(offline data)")
	}
	return line
}

func (m *Model) detailBody() string {
	if m.notFound {
		return "\n  Match not found. Press esc to go back."
	}
	if !m.hasCurrent {
		return "\n  Loading match..."
	}

	var b strings.Builder
	b.WriteString(renderScoreboard(m.current.Match))
	b.WriteString("\n\n")
	b.WriteString(sectionStyle.Render("Timeline"))
	b.WriteString("\n")
	b.WriteString(renderTimeline(m.current.Events))
	b.WriteString("\n")
	b.WriteString(sectionStyle.Render("Statistics"))
	b.WriteString("\n")
	b.WriteString(renderStats(m.current.Statistics))
	b.WriteString("\n")
	b.WriteString(sectionStyle.Render("Match Chat"))
	if m.chatView.Username != "" {
		b.WriteString(faintStyle.Render(" as " + m.chatView.Username))
	}
	b.WriteString("\n")
	b.WriteString(renderChat(m.chatView))
	return b.String()
}

func renderConnectivity(connected bool) string {
	if connected {
		return onlineStyle.Render("● Live updates connected")
	}
	return offlineStyle.Render("○ Reconnecting...")
}

func renderList(matches []types.Match, cursor int) string {
	if len(matches) == 0 {
		return "\n  No matches right now.\n"
	}

	var b strings.Builder
	b.WriteString("\n")
	for i, m := range matches {
		line := fmt.Sprintf("%s %d - %d %s   %s", m.HomeTeam.ShortName, m.HomeScore, m.AwayScore, m.AwayTeam.ShortName, phase(m))
		if i == cursor {
			b.WriteString(cursorStyle.Render("> " + line))
		} else {
			b.WriteString("  " + line)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func phase(m types.Match) string {
	label := strings.ReplaceAll(string(m.Status), "_", " ")
	if m.Status == types.StatusNotStarted {
		return label
	}
	return fmt.Sprintf("%s · %d'", label, m.Minute)
}

func renderScoreboard(m types.Match) string {
	teams := titleStyle.Render(fmt.Sprintf("%s vs %s", m.HomeTeam.Name, m.AwayTeam.Name))
	score := scoreStyle.Render(fmt.Sprintf("%s %d : %d %s", m.HomeTeam.ShortName, m.HomeScore, m.AwayScore, m.AwayTeam.ShortName))
	return teams + "\n" + score + "\n" + faintStyle.Render(phase(m))
}

// renderTimeline lists events grouped by minute, earliest first.
func renderTimeline(events []types.MatchEvent) string {
	if len(events) == 0 {
		return faintStyle.Render("  No events yet.") + "\n"
	}

	var b strings.Builder
	sorted := match.SortedEvents(events)
	for i := 0; i < len(sorted); {
		minute := sorted[i].Minute
		b.WriteString(fmt.Sprintf("%3d'", minute))
		for ; i < len(sorted) && sorted[i].Minute == minute; i++ {
			b.WriteString("  ")
			b.WriteString(renderEvent(sorted[i]))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func renderEvent(ev types.MatchEvent) string {
	text := fmt.Sprintf("%s - %s", strings.ReplaceAll(string(ev.Type), "_", " "), ev.Player)
	if ev.AssistPlayer != "" {
		text += fmt.Sprintf(" (Assist: %s)", ev.AssistPlayer)
	}
	if style, ok := eventStyles[ev.Type]; ok {
		return style.Render(text)
	}
	return text
}

func renderStats(s types.MatchStats) string {
	rows := []struct {
		label string
		pair  types.StatPair
	}{
		{"Possession %", s.Possession},
		{"Shots", s.Shots},
		{"On target", s.ShotsOnTarget},
		{"Corners", s.Corners},
		{"Fouls", s.Fouls},
		{"Yellow cards", s.YellowCards},
		{"Red cards", s.RedCards},
	}

	var b strings.Builder
	for _, r := range rows {
		b.WriteString(fmt.Sprintf("  %-13s %3d %s %-3d\n", r.label, r.pair.Home, statBar(r.pair), r.pair.Away))
	}
	return b.String()
}

// statBar splits barWidth cells between home and away in proportion to
// their values.
func statBar(p types.StatPair) string {
	total := p.Home + p.Away
	if total <= 0 {
		return faintStyle.Render(strings.Repeat("·", barWidth))
	}
	home := (p.Home*barWidth + total/2) / total
	return onlineStyle.Render(strings.Repeat("█", home)) + cursorStyle.Render(strings.Repeat("█", barWidth-home))
}

// renderChat interleaves messages and join/leave notices by time.
func renderChat(v chat.View) string {
	var b strings.Builder
	if len(v.Entries) == 0 && len(v.Notices) == 0 {
		b.WriteString(faintStyle.Render("  No messages yet."))
		b.WriteString("\n")
	}

	notices := v.Notices
	for _, e := range v.Entries {
		for len(notices) > 0 && notices[0].Timestamp.Before(e.Message.Timestamp) {
			b.WriteString(renderNotice(notices[0]))
			notices = notices[1:]
		}
		b.WriteString(renderEntry(e))
	}
	for _, n := range notices {
		b.WriteString(renderNotice(n))
	}

	if line := typingLine(v.Typing); line != "" {
		b.WriteString(faintStyle.Render(line))
		b.WriteString("\n")
	}
	if v.Username == "" {
		b.WriteString(faintStyle.Render("Set a name with /name <username> to join the chat."))
		b.WriteString("\n")
	}
	return b.String()
}

func renderEntry(e chat.Entry) string {
	line := fmt.Sprintf("%s %s: %s", e.Message.Timestamp.Local().Format("15:04"), titleStyle.Render(e.Message.Username), e.Message.Message)
	if e.Pending() {
		line = faintStyle.Render(line + " (sending)")
	}
	return line + "\n"
}

func renderNotice(n types.PresenceNotice) string {
	verb := "joined"
	if n.Action == types.PresenceLeft {
		verb = "left"
	}
	return faintStyle.Render(fmt.Sprintf("%s %s %s the chat", n.Timestamp.Local().Format("15:04"), n.Username, verb)) + "\n"
}

func typingLine(typing []string) string {
	switch len(typing) {
	case 0:
		return ""
	case 1:
		return typing[0] + " is typing..."
	case 2:
		return typing[0] + " and " + typing[1] + " are typing..."
	}
	return "Several people are typing..."
}

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/npezzotti/go-matchcenter/internal/chat"
	"github.com/npezzotti/go-matchcenter/internal/config"
	"github.com/npezzotti/go-matchcenter/internal/fetch"
	"github.com/npezzotti/go-matchcenter/internal/fixtures"
	"github.com/npezzotti/go-matchcenter/internal/realtime"
	"github.com/npezzotti/go-matchcenter/internal/store"
	"github.com/npezzotti/go-matchcenter/internal/tui"
)

var (
	apiBaseURL string
	socketURL  string
	statePath  string
	logPath    string
)

func defaultStatePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "matchcenter", "state.json")
}

func main() {
	if err := config.LoadDotEnv(".env"); err != nil {
		fmt.Fprintln(os.Stderr, "env:", err)
		os.Exit(1)
	}

	flag.StringVar(&apiBaseURL, "api", config.EnvOr("MATCHCENTER_API_BASE_URL", "http://localhost:4000"), "match API base URL")
	flag.StringVar(&socketURL, "socket", config.EnvOr("MATCHCENTER_SOCKET_URL", "ws://localhost:4000/ws"), "realtime socket URL")
	flag.StringVar(&statePath, "state", config.EnvOr("MATCHCENTER_STATE_PATH", defaultStatePath()), "file holding the saved username")
	flag.StringVar(&logPath, "log", "matchcenter.log", "log file")
	flag.Parse()

	f, err := tea.LogToFile(logPath, "matchcenter")
	if err != nil {
		fmt.Fprintln(os.Stderr, "log:", err)
		os.Exit(1)
	}
	defer f.Close()
	logger := log.New(f, "[matchcenter] ", log.LstdFlags)

	cfg, err := config.NewClientConfig(apiBaseURL, socketURL, statePath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	st, err := store.NewFileStore(cfg.StatePath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "store:", err)
		os.Exit(1)
	}

	ch := realtime.NewClient(cfg.SocketURL, logger)
	ch.Start(context.Background())
	defer ch.Stop()

	model := tui.New(tui.Options{
		Channel:  ch,
		Fetcher:  fetch.NewClient(cfg.APIBaseURL, logger),
		Store:    st,
		UserId:   chat.NewUserId(),
		Logger:   logger,
		Fallback: fixtures.Matches(time.Now()),
	})

	p := tea.NewProgram(model, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		logger.Println("program:", err)
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/npezzotti/go-matchcenter/internal/api"
	"github.com/npezzotti/go-matchcenter/internal/config"
	"github.com/npezzotti/go-matchcenter/internal/fixtures"
	"github.com/npezzotti/go-matchcenter/internal/server"
	"github.com/npezzotti/go-matchcenter/internal/stats"
	"golang.org/x/sync/errgroup"
)

type stringSliceFlag []string

func (s *stringSliceFlag) String() string {
	return strings.Join(*s, ",")
}

func (s *stringSliceFlag) Set(value string) error {
	*s = append(*s, strings.Split(value, ",")...)
	return nil
}

var (
	addr           string
	allowedOrigins stringSliceFlag
	clockInterval  time.Duration
	statsInterval  time.Duration
	eventInterval  time.Duration
	seed           int64
)

func main() {
	logger := log.New(os.Stderr, "[match-server] ", log.LstdFlags)

	if err := config.LoadDotEnv(".env"); err != nil {
		logger.Fatal("env:", err)
	}

	flag.StringVar(&addr, "addr", config.EnvOr("MATCHCENTER_ADDR", "localhost:4000"), "server address")
	flag.Var(&allowedOrigins, "allowed-origins", "comma-separated list of allowed origins for CORS")
	flag.DurationVar(&clockInterval, "clock-interval", config.EnvDuration("MATCHCENTER_CLOCK_INTERVAL", 5*time.Second), "match clock tick")
	flag.DurationVar(&statsInterval, "stats-interval", config.EnvDuration("MATCHCENTER_STATS_INTERVAL", 8*time.Second), "statistics drift interval")
	flag.DurationVar(&eventInterval, "event-interval", config.EnvDuration("MATCHCENTER_EVENT_INTERVAL", 15*time.Second), "random event interval")
	flag.Int64Var(&seed, "seed", 0, "simulator seed, 0 for random")
	flag.Parse()

	if len(allowedOrigins) == 0 {
		allowedOrigins.Set(config.EnvOr("MATCHCENTER_ALLOWED_ORIGINS", "http://localhost:3000"))
	}

	cfg, err := config.NewConfig(addr, allowedOrigins, clockInterval, statsInterval, eventInterval)
	if err != nil {
		logger.Fatal("config:", err)
	}

	mux := http.NewServeMux()

	statsUpdater := stats.NewStatsUpdater(mux, "matchcenter")
	statsUpdater.Run()
	defer statsUpdater.Stop()

	hub := server.NewHub(logger, statsUpdater, fixtures.Matches(time.Now()), server.HubConfig{
		ClockInterval: cfg.ClockInterval,
		StatsInterval: cfg.StatsInterval,
		EventInterval: cfg.EventInterval,
		Seed:          seed,
	})

	srv := api.NewMatchCenterApp(mux, logger, hub, cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.Run()
		return nil
	})
	g.Go(func() error {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Println("shutting down...")

		shutDownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutDownCtx); err != nil {
			return err
		}

		logger.Println("shutting down match hub...")
		return hub.Shutdown(shutDownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Fatalln("server:", err)
	}

	logger.Println("shutdown complete")
}

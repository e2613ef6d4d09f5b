package api

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/npezzotti/go-matchcenter/internal/config"
	"github.com/npezzotti/go-matchcenter/internal/server"
)

type MatchCenterApp struct {
	log            *log.Logger
	hub            *server.Hub
	srv            *http.Server
	allowedOrigins []string
}

// NewMatchCenterApp registers the API and websocket routes on mux and wraps
// it with CORS and panic recovery.
func NewMatchCenterApp(mux *http.ServeMux, logger *log.Logger, hub *server.Hub, cfg *config.Config) *MatchCenterApp {
	s := &MatchCenterApp{
		log:            logger,
		hub:            hub,
		allowedOrigins: cfg.AllowedOrigins,
	}

	mux.HandleFunc("GET /api/matches", s.noStore(s.getMatches))
	mux.HandleFunc("GET /api/matches/live", s.noStore(s.getLiveMatches))
	mux.HandleFunc("GET /api/matches/{id}", s.noStore(s.getMatch))
	mux.HandleFunc("GET /healthz", s.healthz)
	mux.HandleFunc("GET /ws", s.serveWs)
	mux.HandleFunc("/api/", s.notFound)

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept"}),
	)(mux)

	h = s.errorHandler(h)

	s.srv = &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: h,
	}

	return s
}

func (s *MatchCenterApp) Handler() http.Handler {
	return s.srv.Handler
}

func (s *MatchCenterApp) Start() error {
	s.log.Printf("starting server on %s\n", s.srv.Addr)
	return s.srv.ListenAndServe()
}

func (s *MatchCenterApp) Shutdown(ctx context.Context) error {
	s.log.Println("shutting down HTTP server...")
	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}

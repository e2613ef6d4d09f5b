package api

import (
	"encoding/json"
	"net/http"
	"slices"
	"time"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/go-matchcenter/internal/server"
	"github.com/npezzotti/go-matchcenter/internal/types"
)

// Response is the envelope wrapping every API reply.
type Response struct {
	Success bool      `json:"success"`
	Data    any       `json:"data,omitempty"`
	Error   *ApiError `json:"error,omitempty"`
}

type MatchList struct {
	Matches []types.Match `json:"matches"`
	Total   int           `json:"total"`
}

func (s *MatchCenterApp) writeJson(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Printf("json encode: %v", err)
	}
}

func (s *MatchCenterApp) writeData(w http.ResponseWriter, data any) {
	s.writeJson(w, http.StatusOK, Response{Success: true, Data: data})
}

func (s *MatchCenterApp) writeError(w http.ResponseWriter, apiErr *ApiError) {
	if apiErr.Err != nil {
		s.log.Println(apiErr.Error())
	}
	s.writeJson(w, apiErr.StatusCode, Response{Error: apiErr})
}

func (s *MatchCenterApp) getMatches(w http.ResponseWriter, r *http.Request) {
	matches := s.hub.Matches()
	s.writeData(w, MatchList{Matches: matches, Total: len(matches)})
}

func (s *MatchCenterApp) getLiveMatches(w http.ResponseWriter, r *http.Request) {
	matches := s.hub.LiveMatches()
	if matches == nil {
		matches = []types.Match{}
	}
	s.writeData(w, MatchList{Matches: matches, Total: len(matches)})
}

func (s *MatchCenterApp) getMatch(w http.ResponseWriter, r *http.Request) {
	m, ok := s.hub.Match(r.PathValue("id"))
	if !ok {
		s.writeError(w, NewNotFoundError("match not found"))
		return
	}

	s.writeData(w, m)
}

func (s *MatchCenterApp) notFound(w http.ResponseWriter, r *http.Request) {
	s.writeError(w, NewNotFoundError(""))
}

func (s *MatchCenterApp) healthz(w http.ResponseWriter, r *http.Request) {
	s.writeData(w, map[string]int{"clients": s.hub.ClientCount()})
}

func (s *MatchCenterApp) serveWs(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			// only allow connections from allowed origins
			origin := r.Header.Get("Origin")
			if origin == "" {
				// non-browser clients send no origin
				return true
			}

			return slices.Contains(s.allowedOrigins, origin)
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Println("error upgrading connection:", err)
		return
	}

	client := server.NewClient(conn, s.hub, s.log)
	if !s.hub.RegisterClient(client) {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "shutting down"), time.Now().Add(time.Second))
		conn.Close()
		return
	}

	go client.Write()
	go client.Read()
}

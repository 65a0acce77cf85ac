package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Same-origin clients only; the API and feed share one host.
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || origin == "http://"+r.Host || origin == "https://"+r.Host
	},
}

const (
	wsWriteTimeout = 10 * time.Second
	wsPingInterval = 30 * time.Second
)

type wsSnapshot struct {
	Players []playerJSON        `json:"players"`
	History []sessionRecordJSON `json:"history"`
}

func (s *Server) snapshot() wsSnapshot {
	players := s.mirror.Players()
	sessions := s.mirror.Sessions()

	snap := wsSnapshot{
		Players: make([]playerJSON, 0, len(players)),
		History: make([]sessionRecordJSON, 0, len(sessions)),
	}
	for _, p := range players {
		snap.Players = append(snap.Players, toPlayerJSON(p))
	}
	for _, rec := range sessions {
		snap.History = append(snap.History, toSessionRecordJSON(rec))
	}
	return snap
}

// handleWebSocket streams ledger snapshots: one on connect, then one after
// every mirror reload. Slow clients get disconnected rather than holding
// everyone else up.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.WarnContext(r.Context(), "WebSocket upgrade failed",
			"client_ip", clientIP(r), "error", err)
		return
	}
	defer conn.Close()

	ctx := r.Context()
	changes, cancel := s.mirror.Subscribe()
	defer cancel()

	slog.InfoContext(ctx, "WebSocket client connected", "client_ip", clientIP(r))

	// Drain reads so close frames and pongs are processed.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	send := func() error {
		conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		return conn.WriteJSON(s.snapshot())
	}

	if err := send(); err != nil {
		slog.WarnContext(ctx, "WebSocket initial send failed", "error", err)
		return
	}

	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-changes:
			if err := send(); err != nil {
				slog.InfoContext(ctx, "WebSocket client disconnected",
					"client_ip", clientIP(r), "error", err)
				return
			}
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

package http

import (
	"context"
	"net/http"
	"sync"

	"duchybank/internal/ledger"
	applog "duchybank/internal/log"
	"duchybank/internal/middleware/ratelimit"
	"duchybank/internal/middleware/security"
	"duchybank/internal/middleware/trace"
	"duchybank/internal/mirror"
	"duchybank/internal/session"
)

// Server is the fines-ledger HTTP surface: a JSON API for the roster,
// match history and the admin session wizard, plus a WebSocket feed that
// pushes the latest snapshot after every ledger change.
type Server struct {
	http.Server

	ledger   *ledger.Service
	wizard   *session.Wizard
	mirror   *mirror.Mirror
	adminKey string
	teamName string

	rateLimiter  *ratelimit.Limiter
	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run
// http.Server.
func NewServer(addr, adminKey, teamName string, svc *ledger.Service, wizard *session.Wizard, m *mirror.Mirror) *Server {
	mux := http.NewServeMux()

	s := &Server{
		ledger:      svc,
		wizard:      wizard,
		mirror:      m,
		adminKey:    adminKey,
		teamName:    teamName,
		rateLimiter: ratelimit.NewLimiter(ratelimit.DefaultConfig()),
	}

	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", handleReady)

	// Public read surface.
	mux.HandleFunc("GET /api/team", s.handleTeam)
	mux.HandleFunc("GET /api/players", s.handleListPlayers)
	mux.HandleFunc("GET /api/history", s.handleListHistory)
	mux.HandleFunc("GET /ws", s.handleWebSocket)

	// Admin surface: roster and history mutations.
	mux.HandleFunc("POST /api/admin/login", s.handleAdminLogin)
	mux.Handle("POST /api/players", s.requireAdmin(s.handleCreatePlayer))
	mux.Handle("PATCH /api/players/{id}", s.requireAdmin(s.handleUpdatePlayer))
	mux.Handle("POST /api/players/{id}/payoff", s.requireAdmin(s.handlePayOffPlayer))
	mux.Handle("DELETE /api/players/{id}", s.requireAdmin(s.handleDeletePlayer))
	mux.Handle("DELETE /api/history/{id}", s.requireAdmin(s.handleDeleteSession))

	// Admin surface: session wizard.
	mux.Handle("GET /api/session", s.requireAdmin(s.handleSessionState))
	mux.Handle("POST /api/session/select", s.requireAdmin(s.handleSessionSelect))
	mux.Handle("POST /api/session/deselect", s.requireAdmin(s.handleSessionDeselect))
	mux.Handle("POST /api/session/opponent", s.requireAdmin(s.handleSessionOpponent))
	mux.Handle("POST /api/session/advance", s.requireAdmin(s.handleSessionAdvance))
	mux.Handle("POST /api/session/back", s.requireAdmin(s.handleSessionBack))
	mux.Handle("POST /api/session/vote", s.requireAdmin(s.handleSessionVote))
	mux.Handle("POST /api/session/finalize-voting", s.requireAdmin(s.handleSessionFinalizeVoting))
	mux.Handle("POST /api/session/skip-voting", s.requireAdmin(s.handleSessionSkipVoting))
	mux.Handle("POST /api/session/reopen-voting", s.requireAdmin(s.handleSessionReopenVoting))
	mux.Handle("POST /api/session/tap", s.requireAdmin(s.handleSessionTap))
	mux.Handle("POST /api/session/item", s.requireAdmin(s.handleSessionItem))
	mux.Handle("POST /api/session/payoff", s.requireAdmin(s.handleSessionPayOff))
	mux.Handle("POST /api/session/finish", s.requireAdmin(s.handleSessionFinish))
	mux.Handle("POST /api/session/cancel", s.requireAdmin(s.handleSessionCancel))

	traceMW := trace.NewMiddleware(clientIP)
	headersMW := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	limitMW := s.rateLimiter.Middleware(clientIP, nil)

	// Handlers pull a request-scoped logger out of the context; the trace
	// middleware mints the request id the logger is tagged with.
	logMW := applog.Middleware(applog.New(applog.Config{Component: applog.ComponentHTTP}))
	reqIDMW := applog.RequestIDMiddleware(func(r *http.Request) string {
		return trace.GetRequestID(r.Context())
	})

	s.Server = http.Server{
		Addr:    addr,
		Handler: logMW(traceMW.Middleware(reqIDMW(headersMW.Middleware(limitMW(mux))))),
	}

	return s
}

// Shutdown gracefully shuts down the server and its cleanup routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		if s.rateLimiter != nil {
			s.rateLimiter.Stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func handleReady(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func (s *Server) handleTeam(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"team_name": s.teamName})
}

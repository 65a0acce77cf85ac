package http

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
)

// AdminKeyHeader carries the shared admin secret on mutating requests.
const AdminKeyHeader = "X-Admin-Key"

// handleAdminLogin verifies the shared secret so the client can unlock its
// admin views. The same secret must accompany every mutating request.
func (s *Server) handleAdminLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Password string `json:"password"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if !s.adminKeyMatches(req.Password) {
		slog.WarnContext(r.Context(), "Admin login rejected", "client_ip", clientIP(r))
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "invalid admin password"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"admin": true})
}

// requireAdmin gates a handler behind the shared admin secret.
func (s *Server) requireAdmin(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.adminKeyMatches(r.Header.Get(AdminKeyHeader)) {
			slog.WarnContext(r.Context(), "Rejected unauthenticated admin request",
				"method", r.Method, "path", r.URL.Path, "client_ip", clientIP(r))
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "admin key required"})
			return
		}
		next(w, r)
	})
}

func (s *Server) adminKeyMatches(candidate string) bool {
	if s.adminKey == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(candidate), []byte(s.adminKey)) == 1
}

package http

import (
	"net/http"

	"duchybank/internal/core"
)

type playerJSON struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	TotalOwedCents int64  `json:"total_owed_cents"`
	TotalOwed      string `json:"total_owed"`
}

func toPlayerJSON(p core.Player) playerJSON {
	return playerJSON{
		ID:             p.ID,
		Name:           p.Name,
		TotalOwedCents: p.TotalOwed.Cents,
		TotalOwed:      p.TotalOwed.String(),
	}
}

// handleListPlayers serves the leaderboard from the mirror, sorted by name.
func (s *Server) handleListPlayers(w http.ResponseWriter, r *http.Request) {
	players := s.mirror.Players()
	out := make([]playerJSON, 0, len(players))
	for _, p := range players {
		out = append(out, toPlayerJSON(p))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreatePlayer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	p, err := s.ledger.AddPlayer(r.Context(), sanitizeInput(req.Name))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPlayerJSON(p))
}

// handleUpdatePlayer renames a player and/or overwrites their balance.
// The balance comes in as decimal text ("12.50") the way the admin typed it.
func (s *Server) handleUpdatePlayer(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req struct {
		Name      *string `json:"name"`
		TotalOwed *string `json:"total_owed"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Name == nil && req.TotalOwed == nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "nothing to update"})
		return
	}

	if req.Name != nil {
		if err := s.ledger.RenamePlayer(r.Context(), id, sanitizeInput(*req.Name)); err != nil {
			writeError(w, r, err)
			return
		}
	}
	if req.TotalOwed != nil {
		cents, err := core.ParseBalanceToCents(*req.TotalOwed)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if err := s.ledger.SetPlayerTotal(r.Context(), id, core.Money{Cents: cents}); err != nil {
			writeError(w, r, err)
			return
		}
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePayOffPlayer(w http.ResponseWriter, r *http.Request) {
	if err := s.ledger.PayOffPlayer(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeletePlayer(w http.ResponseWriter, r *http.Request) {
	if err := s.ledger.RemovePlayer(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

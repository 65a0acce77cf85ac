package http

import (
	"net/http"

	"duchybank/internal/session"
)

type sessionEntryJSON struct {
	AddedCents        int64    `json:"added_cents"`
	SessionAddedCents int64    `json:"session_added_cents"`
	IsPaidOff         bool     `json:"is_paid_off"`
	ItemBrought       bool     `json:"item_brought"`
	Tags              []string `json:"tags"`
}

type sessionStateJSON struct {
	Step            session.Step                `json:"step"`
	Opponent        string                      `json:"opponent"`
	Entries         map[string]sessionEntryJSON `json:"entries"`
	ManOfMatchVotes map[string]int              `json:"motm_votes"`
	DickOfDayVotes  map[string]int              `json:"dotd_votes"`
}

func toSessionStateJSON(snap session.Snapshot) sessionStateJSON {
	out := sessionStateJSON{
		Step:            snap.Step,
		Opponent:        snap.Opponent,
		Entries:         make(map[string]sessionEntryJSON, len(snap.Entries)),
		ManOfMatchVotes: snap.ManOfMatchVotes,
		DickOfDayVotes:  snap.DickOfDayVotes,
	}
	for id, entry := range snap.Entries {
		tags := make([]string, 0, len(entry.Tags))
		for _, t := range entry.Tags {
			tags = append(tags, string(t))
		}
		out.Entries[id] = sessionEntryJSON{
			AddedCents:        entry.Added.Cents,
			SessionAddedCents: entry.SessionAdded().Cents,
			IsPaidOff:         entry.IsPaidOff,
			ItemBrought:       entry.ItemBrought,
			Tags:              tags,
		}
	}
	return out
}

func (s *Server) writeSessionState(w http.ResponseWriter, status int) {
	writeJSON(w, status, toSessionStateJSON(s.wizard.State()))
}

func (s *Server) handleSessionState(w http.ResponseWriter, r *http.Request) {
	s.writeSessionState(w, http.StatusOK)
}

// playerRequest covers the wizard endpoints that act on one player.
type playerRequest struct {
	PlayerID string `json:"player_id"`
}

func (s *Server) handleSessionSelect(w http.ResponseWriter, r *http.Request) {
	var req playerRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.wizard.Select(req.PlayerID); err != nil {
		writeError(w, r, err)
		return
	}
	s.writeSessionState(w, http.StatusOK)
}

func (s *Server) handleSessionDeselect(w http.ResponseWriter, r *http.Request) {
	var req playerRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.wizard.Deselect(req.PlayerID); err != nil {
		writeError(w, r, err)
		return
	}
	s.writeSessionState(w, http.StatusOK)
}

func (s *Server) handleSessionOpponent(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Opponent string `json:"opponent"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.wizard.SetOpponent(sanitizeInput(req.Opponent)); err != nil {
		writeError(w, r, err)
		return
	}
	s.writeSessionState(w, http.StatusOK)
}

func (s *Server) handleSessionAdvance(w http.ResponseWriter, r *http.Request) {
	if err := s.wizard.AdvanceToVoting(); err != nil {
		writeError(w, r, err)
		return
	}
	s.writeSessionState(w, http.StatusOK)
}

func (s *Server) handleSessionBack(w http.ResponseWriter, r *http.Request) {
	if err := s.wizard.BackToSelect(); err != nil {
		writeError(w, r, err)
		return
	}
	s.writeSessionState(w, http.StatusOK)
}

func (s *Server) handleSessionVote(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Category string `json:"category"`
		PlayerID string `json:"player_id"`
		Delta    int    `json:"delta"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.wizard.Vote(req.Category, req.PlayerID, req.Delta); err != nil {
		writeError(w, r, err)
		return
	}
	s.writeSessionState(w, http.StatusOK)
}

func (s *Server) handleSessionFinalizeVoting(w http.ResponseWriter, r *http.Request) {
	if err := s.wizard.FinalizeVoting(); err != nil {
		writeError(w, r, err)
		return
	}
	s.writeSessionState(w, http.StatusOK)
}

func (s *Server) handleSessionSkipVoting(w http.ResponseWriter, r *http.Request) {
	if err := s.wizard.SkipVoting(); err != nil {
		writeError(w, r, err)
		return
	}
	s.writeSessionState(w, http.StatusOK)
}

func (s *Server) handleSessionReopenVoting(w http.ResponseWriter, r *http.Request) {
	if err := s.wizard.BackToVoting(); err != nil {
		writeError(w, r, err)
		return
	}
	s.writeSessionState(w, http.StatusOK)
}

func (s *Server) handleSessionTap(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PlayerID string `json:"player_id"`
		Kind     string `json:"kind"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.wizard.Tap(req.PlayerID, req.Kind); err != nil {
		writeError(w, r, err)
		return
	}
	s.writeSessionState(w, http.StatusOK)
}

func (s *Server) handleSessionItem(w http.ResponseWriter, r *http.Request) {
	var req playerRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.wizard.ToggleItem(req.PlayerID); err != nil {
		writeError(w, r, err)
		return
	}
	s.writeSessionState(w, http.StatusOK)
}

func (s *Server) handleSessionPayOff(w http.ResponseWriter, r *http.Request) {
	var req playerRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.wizard.TogglePaidOff(req.PlayerID); err != nil {
		writeError(w, r, err)
		return
	}
	s.writeSessionState(w, http.StatusOK)
}

// handleSessionFinish commits the session. The response carries the
// committed record, or a zero ID when there was nothing to record.
func (s *Server) handleSessionFinish(w http.ResponseWriter, r *http.Request) {
	rec, err := s.wizard.Finish(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionRecordJSON(rec))
}

func (s *Server) handleSessionCancel(w http.ResponseWriter, r *http.Request) {
	if err := s.wizard.Cancel(); err != nil {
		writeError(w, r, err)
		return
	}
	s.writeSessionState(w, http.StatusOK)
}

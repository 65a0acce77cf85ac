package http

import (
	"net/http"

	"duchybank/internal/core"
)

type transactionJSON struct {
	PlayerID    string   `json:"player_id"`
	PlayerName  string   `json:"player_name"`
	AmountCents int64    `json:"amount_cents"`
	Amount      string   `json:"amount"`
	Tags        []string `json:"tags"`
	IsPaidOff   bool     `json:"is_paid_off"`
}

type sessionRecordJSON struct {
	ID           string            `json:"id"`
	Timestamp    int64             `json:"timestamp"`
	Opponent     string            `json:"opponent"`
	TotalCents   int64             `json:"total_cents"`
	Total        string            `json:"total"`
	Transactions []transactionJSON `json:"transactions"`
}

func toSessionRecordJSON(rec core.SessionRecord) sessionRecordJSON {
	out := sessionRecordJSON{
		ID:           rec.ID,
		Timestamp:    rec.Timestamp,
		Opponent:     rec.Opponent,
		TotalCents:   rec.Total().Cents,
		Total:        rec.Total().String(),
		Transactions: make([]transactionJSON, 0, len(rec.Transactions)),
	}
	for _, tx := range rec.Transactions {
		tags := make([]string, 0, len(tx.Tags))
		for _, t := range tx.Tags {
			tags = append(tags, string(t))
		}
		out.Transactions = append(out.Transactions, transactionJSON{
			PlayerID:    tx.PlayerID,
			PlayerName:  tx.PlayerName,
			AmountCents: tx.Amount.Cents,
			Amount:      tx.Amount.String(),
			Tags:        tags,
			IsPaidOff:   tx.IsPaidOff,
		})
	}
	return out
}

// handleListHistory serves the match history from the mirror, newest first.
func (s *Server) handleListHistory(w http.ResponseWriter, r *http.Request) {
	records := s.mirror.Sessions()
	out := make([]sessionRecordJSON, 0, len(records))
	for _, rec := range records {
		out = append(out, toSessionRecordJSON(rec))
	}
	writeJSON(w, http.StatusOK, out)
}

// handleDeleteSession removes a record and reverses its fines.
func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.ledger.DeleteSession(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

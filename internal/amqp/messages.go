package amqp

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event kinds carried on the ledger_events queue.
const (
	KindSessionCommitted = "session_committed"
	KindSessionDeleted   = "session_deleted"
	KindPlayerUpdated    = "player_updated"
)

// LedgerEventMessage is a lightweight notification about a ledger change.
// It carries only the kind and the document ID; consumers fetch the full
// record from the database.
type LedgerEventMessage struct {
	Kind      string    `json:"kind"`
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
}

func NewLedgerEventMessage(kind, id string) *LedgerEventMessage {
	return &LedgerEventMessage{
		Kind:      kind,
		ID:        id,
		Timestamp: time.Now(),
	}
}

func (m *LedgerEventMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func LedgerEventMessageFromJSON(data []byte) (*LedgerEventMessage, error) {
	var msg LedgerEventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.Kind == "" {
		return nil, fmt.Errorf("missing event kind")
	}
	return &msg, nil
}

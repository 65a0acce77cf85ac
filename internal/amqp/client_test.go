package amqp

import "testing"

func TestLedgerEventMessageRoundTrip(t *testing.T) {
	msg := NewLedgerEventMessage(KindSessionCommitted, "abc-123")

	data, err := msg.ToJSON()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	got, err := LedgerEventMessageFromJSON(data)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Kind != KindSessionCommitted || got.ID != "abc-123" {
		t.Fatalf("unexpected message: %+v", got)
	}
}

func TestLedgerEventMessageRejectsMissingKind(t *testing.T) {
	if _, err := LedgerEventMessageFromJSON([]byte(`{"id":"x"}`)); err == nil {
		t.Fatal("expected error for missing kind")
	}
	if _, err := LedgerEventMessageFromJSON([]byte(`not json`)); err == nil {
		t.Fatal("expected error for malformed body")
	}
}

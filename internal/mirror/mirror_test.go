package mirror

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"duchybank/internal/core"
)

type fakeLoader struct {
	mu       sync.Mutex
	players  []core.Player
	sessions []core.SessionRecord
	err      error
	loads    int
}

func (f *fakeLoader) ListPlayers(ctx context.Context) ([]core.Player, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loads++
	if f.err != nil {
		return nil, f.err
	}
	return append([]core.Player(nil), f.players...), nil
}

func (f *fakeLoader) ListSessions(ctx context.Context) ([]core.SessionRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return append([]core.SessionRecord(nil), f.sessions...), nil
}

func (f *fakeLoader) set(players []core.Player, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.players = players
	f.err = err
}

func waitSignal(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for mirror notification")
	}
}

func startMirror(t *testing.T, loader *fakeLoader) (*Mirror, <-chan struct{}) {
	t.Helper()
	m := New(loader)
	sub, cancelSub := m.Subscribe()
	t.Cleanup(cancelSub)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		m.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	// Initial load.
	waitSignal(t, sub)
	return m, sub
}

func TestMirrorReloadsOnNotify(t *testing.T) {
	loader := &fakeLoader{
		players: []core.Player{{ID: "p1", Name: "Alice", TotalOwed: core.Money{Cents: 100}}},
	}
	m, sub := startMirror(t, loader)

	players := m.Players()
	if len(players) != 1 || players[0].Name != "Alice" {
		t.Fatalf("unexpected initial snapshot: %+v", players)
	}

	loader.set([]core.Player{
		{ID: "p1", Name: "Alice", TotalOwed: core.Money{Cents: 100}},
		{ID: "p2", Name: "Bob"},
	}, nil)
	m.NotifyChanged()
	waitSignal(t, sub)

	if got := len(m.Players()); got != 2 {
		t.Fatalf("expected 2 players after reload, got %d", got)
	}
}

func TestMirrorKeepsSnapshotOnReloadFailure(t *testing.T) {
	loader := &fakeLoader{
		players: []core.Player{{ID: "p1", Name: "Alice"}},
	}
	m, _ := startMirror(t, loader)

	loader.set(nil, errors.New("database is locked"))
	m.NotifyChanged()

	// Recovery proves the failed reload was absorbed without dropping data.
	loader.set([]core.Player{{ID: "p1", Name: "Alice"}, {ID: "p2", Name: "Bob"}}, nil)
	sub, cancelSub := m.Subscribe()
	defer cancelSub()
	m.NotifyChanged()
	waitSignal(t, sub)

	if got := len(m.Players()); got != 2 {
		t.Fatalf("expected recovered snapshot, got %d players", got)
	}
}

func TestSnapshotsAreCopies(t *testing.T) {
	loader := &fakeLoader{
		players: []core.Player{{ID: "p1", Name: "Alice"}},
	}
	m, _ := startMirror(t, loader)

	players := m.Players()
	players[0].Name = "mutated"

	if got := m.Players()[0].Name; got != "Alice" {
		t.Fatalf("snapshot mutation leaked into the mirror: %s", got)
	}
}

func TestNotifyCoalesces(t *testing.T) {
	m := New(&fakeLoader{})
	// No reader on the wake channel; repeated nudges must not block.
	for i := 0; i < 100; i++ {
		m.NotifyChanged()
	}
}

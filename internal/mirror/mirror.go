package mirror

import (
	"context"
	"log/slog"
	"sync"

	"duchybank/internal/core"
)

// Loader is the storage surface the mirror reloads from. Satisfied by
// *storage.SQLiteRepository.
type Loader interface {
	ListPlayers(ctx context.Context) ([]core.Player, error)
	ListSessions(ctx context.Context) ([]core.SessionRecord, error)
}

// Mirror keeps an in-memory copy of the roster and match history. A single
// goroutine (Run) performs all reloads; writers only nudge it through
// NotifyChanged, so bursts of writes coalesce into one reload. Readers get
// point-in-time copies and never touch the database.
type Mirror struct {
	loader Loader

	mu       sync.RWMutex
	players  []core.Player
	sessions []core.SessionRecord

	wake chan struct{}

	subMu sync.Mutex
	subs  map[chan struct{}]struct{}
}

func New(loader Loader) *Mirror {
	return &Mirror{
		loader: loader,
		wake:   make(chan struct{}, 1),
		subs:   make(map[chan struct{}]struct{}),
	}
}

// NotifyChanged wakes the reload loop. Never blocks; a nudge that arrives
// while one is already pending is absorbed.
func (m *Mirror) NotifyChanged() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// Run loads the initial snapshot and then reloads on every nudge until ctx
// is cancelled. A failed reload keeps the previous snapshot.
func (m *Mirror) Run(ctx context.Context) error {
	if err := m.reload(ctx); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-m.wake:
			if err := m.reload(ctx); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				slog.ErrorContext(ctx, "Mirror reload failed, keeping previous snapshot", "error", err)
			}
		}
	}
}

func (m *Mirror) reload(ctx context.Context) error {
	players, err := m.loader.ListPlayers(ctx)
	if err != nil {
		return err
	}
	sessions, err := m.loader.ListSessions(ctx)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.players = players
	m.sessions = sessions
	m.mu.Unlock()

	slog.DebugContext(ctx, "Mirror reloaded",
		"players", len(players),
		"sessions", len(sessions))

	m.broadcast()
	return nil
}

// Players returns a copy of the current roster, sorted by name.
func (m *Mirror) Players() []core.Player {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]core.Player, len(m.players))
	copy(out, m.players)
	return out
}

// Sessions returns a copy of the match history, newest first.
func (m *Mirror) Sessions() []core.SessionRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]core.SessionRecord, len(m.sessions))
	copy(out, m.sessions)
	return out
}

// Subscribe registers for reload notifications. The returned channel is
// signalled (coalesced, never blocking) after every successful reload.
// Call the returned cancel func to unsubscribe.
func (m *Mirror) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	m.subMu.Lock()
	m.subs[ch] = struct{}{}
	m.subMu.Unlock()

	cancel := func() {
		m.subMu.Lock()
		delete(m.subs, ch)
		m.subMu.Unlock()
	}
	return ch, cancel
}

func (m *Mirror) broadcast() {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	for ch := range m.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

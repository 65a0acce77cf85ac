package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"duchybank/internal/amqp"
	"duchybank/internal/core"
	applog "duchybank/internal/log"
	"duchybank/internal/storage"
)

// ErrNothingToCommit is returned when a finished session has no effect at
// all: no reportable transactions and no balance changes to apply.
var ErrNothingToCommit = errors.New("session has no reportable transactions")

// ChangeNotifier is signalled after every successful write so that read
// mirrors can reload. Implementations must not block.
type ChangeNotifier interface {
	NotifyChanged()
}

// Service orchestrates ledger writes across SQLite and AMQP.
type Service struct {
	storage    *storage.SQLiteRepository
	amqpClient *amqp.Client
	notifier   ChangeNotifier
	logs       *applog.StructuredLogger
}

func NewService(storage *storage.SQLiteRepository, amqpClient *amqp.Client, notifier ChangeNotifier) *Service {
	return &Service{
		storage:    storage,
		amqpClient: amqpClient,
		notifier:   notifier,
		logs: applog.NewStructuredLogger(applog.New(applog.Config{
			Handler:   slog.Default().Handler(),
			Component: applog.ComponentLedger,
		})),
	}
}

// AddPlayer creates a roster entry with a zero balance.
func (s *Service) AddPlayer(ctx context.Context, name string) (core.Player, error) {
	p := core.Player{ID: uuid.NewString(), Name: name}
	if err := p.Validate(); err != nil {
		return core.Player{}, err
	}

	if err := s.storage.CreatePlayer(ctx, p); err != nil {
		return core.Player{}, fmt.Errorf("create player: %w", err)
	}

	slog.InfoContext(ctx, "Added player",
		applog.FieldPlayerID, p.ID,
		applog.FieldPlayerName, p.Name)

	s.changed(ctx, amqp.KindPlayerUpdated, p.ID)
	return p, nil
}

// RenamePlayer changes a player's display name. Past history records keep
// the name the player had when they were committed.
func (s *Service) RenamePlayer(ctx context.Context, id, name string) error {
	probe := core.Player{ID: id, Name: name}
	if err := probe.Validate(); err != nil {
		return err
	}

	if err := s.storage.RenamePlayer(ctx, id, name); err != nil {
		return fmt.Errorf("rename player: %w", err)
	}

	s.changed(ctx, amqp.KindPlayerUpdated, id)
	return nil
}

// SetPlayerTotal overwrites a player's balance with an admin-entered value.
func (s *Service) SetPlayerTotal(ctx context.Context, id string, total core.Money) error {
	if total.Cents < 0 {
		return core.ErrInvalidAmount
	}

	if err := s.storage.SetPlayerTotal(ctx, id, total); err != nil {
		return fmt.Errorf("set player total: %w", err)
	}

	s.changed(ctx, amqp.KindPlayerUpdated, id)
	return nil
}

// PayOffPlayer zeroes a player's balance outside of any session.
func (s *Service) PayOffPlayer(ctx context.Context, id string) error {
	if err := s.storage.SetPlayerTotal(ctx, id, core.Money{}); err != nil {
		return fmt.Errorf("pay off player: %w", err)
	}

	s.changed(ctx, amqp.KindPlayerUpdated, id)
	return nil
}

// RemovePlayer deletes a player from the roster. History records that
// mention them are left untouched.
func (s *Service) RemovePlayer(ctx context.Context, id string) error {
	if err := s.storage.DeletePlayer(ctx, id); err != nil {
		return fmt.Errorf("remove player: %w", err)
	}

	s.changed(ctx, amqp.KindPlayerUpdated, id)
	return nil
}

// CommitSession turns a finished match session into one atomic batch:
// balance updates for every participating player with a net change plus a
// history record of the reportable transactions. Entries for players no
// longer on the roster are skipped. The roster snapshot supplies the base
// balances the projections are computed from; a concurrent balance edit
// between snapshot and commit is silently overwritten (last writer wins).
func (s *Service) CommitSession(ctx context.Context, opponent string, entries map[string]*core.SessionEntry, roster []core.Player) (core.SessionRecord, error) {
	byID := make(map[string]core.Player, len(roster))
	for _, p := range roster {
		byID[p.ID] = p
	}

	rec := core.SessionRecord{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UnixMilli(),
		Opponent:  opponent,
	}

	var updates []storage.BalanceUpdate
	for id, entry := range entries {
		p, ok := byID[id]
		if !ok {
			// Removed from the roster mid-session, likely by another
			// admin. Drop their adjustment so everyone else's still lands.
			slog.WarnContext(ctx, "Skipping session entry for removed player",
				applog.FieldPlayerID, id,
				applog.FieldOpponent, opponent)
			continue
		}

		// Pay-offs zero the balance; any other non-zero net applies, even
		// a negative one from undo taps. A zero net is left alone rather
		// than written back, so it cannot race with concurrent edits.
		if entry.IsPaidOff || !entry.SessionAdded().IsZero() {
			updates = append(updates, storage.BalanceUpdate{
				PlayerID: id,
				NewTotal: entry.ProjectedTotal(p.TotalOwed),
			})
		}
		// Only positive nets and pay-offs land in history; a negative
		// correction adjusts the balance without a transaction.
		if entry.Reportable() {
			rec.Transactions = append(rec.Transactions, entry.BuildTransaction(p))
		}
	}

	if len(rec.Transactions) == 0 && len(updates) == 0 {
		return core.SessionRecord{}, ErrNothingToCommit
	}

	// Map iteration order is random; keep records readable and stable.
	sort.Slice(rec.Transactions, func(i, j int) bool {
		return rec.Transactions[i].PlayerName < rec.Transactions[j].PlayerName
	})
	sort.Slice(updates, func(i, j int) bool {
		return updates[i].PlayerID < updates[j].PlayerID
	})

	if err := rec.Validate(); err != nil {
		return core.SessionRecord{}, err
	}

	if err := s.storage.CommitSession(ctx, rec, updates); err != nil {
		return core.SessionRecord{}, fmt.Errorf("commit session: %w", err)
	}

	if len(rec.Transactions) == 0 {
		// Balance corrections only; no history record was written.
		slog.InfoContext(ctx, "Committed session without a record",
			applog.FieldOpponent, opponent,
			"balance_updates", len(updates))
		for _, u := range updates {
			s.changed(ctx, amqp.KindPlayerUpdated, u.PlayerID)
		}
		return core.SessionRecord{}, nil
	}

	s.logs.LogSessionCommitted(ctx, rec.ID, opponent, rec.Total().Cents, len(rec.Transactions))

	s.changed(ctx, amqp.KindSessionCommitted, rec.ID)
	return rec, nil
}

// DeleteSession removes a history record and reverses each of its
// transactions against current balances. Reversals for players that have
// since left the roster are skipped.
func (s *Service) DeleteSession(ctx context.Context, id string) error {
	rec, err := s.storage.GetSession(ctx, id)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}

	if err := s.storage.DeleteSession(ctx, rec); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}

	slog.InfoContext(ctx, "Deleted session",
		applog.FieldSessionID, id,
		applog.FieldOpponent, rec.Opponent)

	s.changed(ctx, amqp.KindSessionDeleted, id)
	return nil
}

// changed fans out a successful write: wake the mirror, then publish the
// event for the export worker. Publishing is best effort and never fails
// the request.
func (s *Service) changed(ctx context.Context, kind, id string) {
	if s.notifier != nil {
		s.notifier.NotifyChanged()
	}

	if s.amqpClient == nil {
		slog.WarnContext(ctx, "AMQP client not available, skipping ledger event", "kind", kind)
		return
	}
	if err := s.amqpClient.PublishLedgerEvent(ctx, kind, id); err != nil {
		s.logs.LogError(ctx, "Failed to publish ledger event", err,
			applog.ComponentAMQP, "publish", applog.NewFields())
	}
}

// Close closes both storage and AMQP connections.
func (s *Service) Close() error {
	var errs []error

	if s.storage != nil {
		if err := s.storage.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}

	if s.amqpClient != nil {
		if err := s.amqpClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close ledger service: %v", errs)
	}

	return nil
}

package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"duchybank/internal/core"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func addPlayer(t *testing.T, repo *SQLiteRepository, id, name string, cents int64) core.Player {
	t.Helper()
	p := core.Player{ID: id, Name: name, TotalOwed: core.Money{Cents: cents}}
	if err := repo.CreatePlayer(context.Background(), p); err != nil {
		t.Fatalf("create player %s: %v", name, err)
	}
	return p
}

func TestPlayerCRUD(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	addPlayer(t, repo, "p1", "Alice", 250)
	addPlayer(t, repo, "p2", "Bob", 0)

	players, err := repo.ListPlayers(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(players) != 2 {
		t.Fatalf("expected 2 players, got %d", len(players))
	}

	if err := repo.RenamePlayer(ctx, "p1", "Alicia"); err != nil {
		t.Fatal(err)
	}
	p, err := repo.GetPlayer(ctx, "p1")
	if err != nil {
		t.Fatal(err)
	}
	if p.Name != "Alicia" || p.TotalOwed.Cents != 250 {
		t.Fatalf("rename corrupted player: %+v", p)
	}

	if err := repo.SetPlayerTotal(ctx, "p1", core.Money{}); err != nil {
		t.Fatal(err)
	}
	p, _ = repo.GetPlayer(ctx, "p1")
	if p.TotalOwed.Cents != 0 {
		t.Fatalf("pay-off should zero the balance, got %d", p.TotalOwed.Cents)
	}

	if err := repo.DeletePlayer(ctx, "p2"); err != nil {
		t.Fatal(err)
	}
	if _, err := repo.GetPlayer(ctx, "p2"); !errors.Is(err, ErrPlayerNotFound) {
		t.Fatalf("expected ErrPlayerNotFound, got %v", err)
	}
	if err := repo.DeletePlayer(ctx, "p2"); !errors.Is(err, ErrPlayerNotFound) {
		t.Fatalf("double delete expected ErrPlayerNotFound, got %v", err)
	}
}

func TestCommitSessionWithoutRecord(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	addPlayer(t, repo, "a", "A", 500)

	// Balance corrections carry no transactions; the batch updates the
	// player without inserting a session row.
	rec := core.SessionRecord{ID: "s1", Timestamp: 1000, Opponent: "Riverside"}
	updates := []BalanceUpdate{{PlayerID: "a", NewTotal: core.Money{Cents: 400}}}
	if err := repo.CommitSession(ctx, rec, updates); err != nil {
		t.Fatalf("commit: %v", err)
	}

	p, err := repo.GetPlayer(ctx, "a")
	if err != nil {
		t.Fatal(err)
	}
	if p.TotalOwed.Cents != 400 {
		t.Fatalf("expected 400, got %d", p.TotalOwed.Cents)
	}
	if _, err := repo.GetSession(ctx, "s1"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("no session row should exist, got %v", err)
	}
	sessions, err := repo.ListSessions(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(sessions) != 0 {
		t.Fatalf("expected no sessions, got %d", len(sessions))
	}
}

func TestCommitSessionPersistsBatch(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	addPlayer(t, repo, "a", "A", 0)
	addPlayer(t, repo, "b", "B", 250)

	rec := core.SessionRecord{
		ID:        "s1",
		Timestamp: 1700000000000,
		Opponent:  "Riverside",
		Transactions: []core.Transaction{
			{PlayerID: "a", PlayerName: "A", Amount: core.Money{Cents: 150}, Tags: []core.Tag{core.TagMissingItem}},
			{PlayerID: "b", PlayerName: "B", Amount: core.Money{Cents: 100}, IsPaidOff: true},
		},
	}
	updates := []BalanceUpdate{
		{PlayerID: "a", NewTotal: core.Money{Cents: 150}},
		{PlayerID: "b", NewTotal: core.Money{}},
	}
	if err := repo.CommitSession(ctx, rec, updates); err != nil {
		t.Fatalf("commit: %v", err)
	}

	a, _ := repo.GetPlayer(ctx, "a")
	b, _ := repo.GetPlayer(ctx, "b")
	if a.TotalOwed.Cents != 150 {
		t.Fatalf("A expected 150, got %d", a.TotalOwed.Cents)
	}
	if b.TotalOwed.Cents != 0 {
		t.Fatalf("B expected 0, got %d", b.TotalOwed.Cents)
	}

	got, err := repo.GetSession(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Opponent != "Riverside" || len(got.Transactions) != 2 {
		t.Fatalf("unexpected record: %+v", got)
	}
	if len(got.Transactions[0].Tags) != 1 || got.Transactions[0].Tags[0] != core.TagMissingItem {
		t.Fatalf("tags did not round-trip: %v", got.Transactions[0].Tags)
	}
	if !got.Transactions[1].IsPaidOff {
		t.Fatal("paid-off flag did not round-trip")
	}
	// Displayed session total equals the sum of transaction amounts.
	if got.Total().Cents != 250 {
		t.Fatalf("round-trip total expected 250, got %d", got.Total().Cents)
	}
}

func TestCommitSessionIsAtomic(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	addPlayer(t, repo, "a", "A", 100)

	// The second update names a player that does not exist, which must
	// abort the whole batch: no balance change, no history record.
	rec := core.SessionRecord{
		ID:        "s1",
		Timestamp: 1700000000000,
		Opponent:  "Riverside",
		Transactions: []core.Transaction{
			{PlayerID: "a", PlayerName: "A", Amount: core.Money{Cents: 50}},
		},
	}
	updates := []BalanceUpdate{
		{PlayerID: "a", NewTotal: core.Money{Cents: 150}},
		{PlayerID: "ghost", NewTotal: core.Money{Cents: 500}},
	}

	err := repo.CommitSession(ctx, rec, updates)
	if !errors.Is(err, ErrPlayerNotFound) {
		t.Fatalf("expected ErrPlayerNotFound, got %v", err)
	}

	a, _ := repo.GetPlayer(ctx, "a")
	if a.TotalOwed.Cents != 100 {
		t.Fatalf("failed commit must not change balances, got %d", a.TotalOwed.Cents)
	}
	if _, err := repo.GetSession(ctx, "s1"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("failed commit must not create a record, got %v", err)
	}
}

func TestDeleteSessionReversesCommit(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	addPlayer(t, repo, "p1", "P1", 0)
	addPlayer(t, repo, "p2", "P2", 100)

	rec := core.SessionRecord{
		ID:        "s1",
		Timestamp: 1700000000000,
		Opponent:  "Riverside",
		Transactions: []core.Transaction{
			{PlayerID: "p1", PlayerName: "P1", Amount: core.Money{Cents: 250}},
			{PlayerID: "p2", PlayerName: "P2", Amount: core.Money{Cents: 100}},
		},
	}
	updates := []BalanceUpdate{
		{PlayerID: "p1", NewTotal: core.Money{Cents: 250}},
		{PlayerID: "p2", NewTotal: core.Money{Cents: 200}},
	}
	if err := repo.CommitSession(ctx, rec, updates); err != nil {
		t.Fatal(err)
	}

	stored, err := repo.GetSession(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if err := repo.DeleteSession(ctx, stored); err != nil {
		t.Fatalf("delete session: %v", err)
	}

	p1, _ := repo.GetPlayer(ctx, "p1")
	p2, _ := repo.GetPlayer(ctx, "p2")
	if p1.TotalOwed.Cents != 0 || p2.TotalOwed.Cents != 100 {
		t.Fatalf("balances not restored: p1=%d p2=%d", p1.TotalOwed.Cents, p2.TotalOwed.Cents)
	}
	if _, err := repo.GetSession(ctx, "s1"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("record should be gone, got %v", err)
	}
}

func TestDeleteSessionSkipsRemovedPlayers(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	addPlayer(t, repo, "p1", "P1", 0)
	addPlayer(t, repo, "p2", "P2", 0)

	rec := core.SessionRecord{
		ID:        "s1",
		Timestamp: 1700000000000,
		Opponent:  "Riverside",
		Transactions: []core.Transaction{
			{PlayerID: "p1", PlayerName: "P1", Amount: core.Money{Cents: 250}},
			{PlayerID: "p2", PlayerName: "P2", Amount: core.Money{Cents: 100}},
		},
	}
	updates := []BalanceUpdate{
		{PlayerID: "p1", NewTotal: core.Money{Cents: 250}},
		{PlayerID: "p2", NewTotal: core.Money{Cents: 100}},
	}
	if err := repo.CommitSession(ctx, rec, updates); err != nil {
		t.Fatal(err)
	}

	// P2 leaves the club before the record is deleted.
	if err := repo.DeletePlayer(ctx, "p2"); err != nil {
		t.Fatal(err)
	}

	stored, err := repo.GetSession(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if err := repo.DeleteSession(ctx, stored); err != nil {
		t.Fatalf("reversal should skip the missing player, got %v", err)
	}

	p1, _ := repo.GetPlayer(ctx, "p1")
	if p1.TotalOwed.Cents != 0 {
		t.Fatalf("P1 reversal should still apply, got %d", p1.TotalOwed.Cents)
	}
	if _, err := repo.GetSession(ctx, "s1"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("record should be gone, got %v", err)
	}
}

func TestListSessionsNewestFirst(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	addPlayer(t, repo, "p1", "P1", 0)

	for i, ts := range []int64{1000, 3000, 2000} {
		rec := core.SessionRecord{
			ID:        []string{"s1", "s2", "s3"}[i],
			Timestamp: ts,
			Opponent:  "Opp",
			Transactions: []core.Transaction{
				{PlayerID: "p1", PlayerName: "P1", Amount: core.Money{Cents: 50}},
			},
		}
		if err := repo.CommitSession(ctx, rec, nil); err != nil {
			t.Fatal(err)
		}
	}

	records, err := repo.ListSessions(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
	for i, want := range []int64{3000, 2000, 1000} {
		if records[i].Timestamp != want {
			t.Fatalf("record %d: expected timestamp %d, got %d", i, want, records[i].Timestamp)
		}
	}
}

func TestExportBookkeeping(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	addPlayer(t, repo, "p1", "P1", 0)
	rec := core.SessionRecord{
		ID:        "s1",
		Timestamp: 1000,
		Opponent:  "Opp",
		Transactions: []core.Transaction{
			{PlayerID: "p1", PlayerName: "P1", Amount: core.Money{Cents: 50}},
		},
	}
	if err := repo.CommitSession(ctx, rec, nil); err != nil {
		t.Fatal(err)
	}

	pending, err := repo.ListUnexportedSessions(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 || pending[0].ID != "s1" {
		t.Fatalf("expected s1 pending, got %+v", pending)
	}
	if len(pending[0].Transactions) != 1 {
		t.Fatalf("pending session should carry transactions, got %+v", pending[0])
	}

	if err := repo.MarkSessionExported(ctx, "s1"); err != nil {
		t.Fatal(err)
	}
	pending, err = repo.ListUnexportedSessions(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 0 {
		t.Fatalf("expected no pending sessions, got %d", len(pending))
	}
}

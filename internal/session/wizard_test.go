package session

import (
	"context"
	"errors"
	"testing"

	"duchybank/internal/core"
	"duchybank/internal/ledger"
)

type fakeCommitter struct {
	opponent string
	entries  map[string]*core.SessionEntry
	roster   []core.Player
	err      error

	entered chan struct{}
	release chan struct{}
}

func (f *fakeCommitter) CommitSession(ctx context.Context, opponent string, entries map[string]*core.SessionEntry, roster []core.Player) (core.SessionRecord, error) {
	if f.entered != nil {
		close(f.entered)
		<-f.release
	}
	f.opponent = opponent
	f.entries = entries
	f.roster = roster
	if f.err != nil {
		return core.SessionRecord{}, f.err
	}
	return core.SessionRecord{ID: "rec-1", Opponent: opponent}, nil
}

type fakeRoster []core.Player

func (f fakeRoster) Players() []core.Player { return f }

func testRoster() fakeRoster {
	return fakeRoster{
		{ID: "p1", Name: "Alice", TotalOwed: core.Money{Cents: 100}},
		{ID: "p2", Name: "Bob", TotalOwed: core.Money{Cents: 200}},
	}
}

func startActiveSession(t *testing.T, w *Wizard, ids ...string) {
	t.Helper()
	for _, id := range ids {
		if err := w.Select(id); err != nil {
			t.Fatalf("select %s: %v", id, err)
		}
	}
	if err := w.SetOpponent("Riverside"); err != nil {
		t.Fatal(err)
	}
	if err := w.AdvanceToVoting(); err != nil {
		t.Fatal(err)
	}
	if err := w.SkipVoting(); err != nil {
		t.Fatal(err)
	}
}

func TestAdvanceRequiresSelectionAndOpponent(t *testing.T) {
	w := NewWizard(&fakeCommitter{}, testRoster())

	if err := w.AdvanceToVoting(); !errors.Is(err, ErrNoPlayersSelected) {
		t.Fatalf("expected ErrNoPlayersSelected, got %v", err)
	}
	if err := w.Select("p1"); err != nil {
		t.Fatal(err)
	}
	if err := w.AdvanceToVoting(); !errors.Is(err, core.ErrEmptyOpponent) {
		t.Fatalf("expected ErrEmptyOpponent, got %v", err)
	}
	if err := w.SetOpponent("Riverside"); err != nil {
		t.Fatal(err)
	}
	if err := w.AdvanceToVoting(); err != nil {
		t.Fatal(err)
	}
	if got := w.State().Step; got != StepVoting {
		t.Fatalf("expected VOTING, got %s", got)
	}
}

func TestStepGuards(t *testing.T) {
	w := NewWizard(&fakeCommitter{}, testRoster())

	if err := w.Tap("p1", TapStandard); !errors.Is(err, ErrWrongStep) {
		t.Fatalf("tap in SELECT expected ErrWrongStep, got %v", err)
	}
	if err := w.Vote(CategoryManOfMatch, "p1", 1); !errors.Is(err, ErrWrongStep) {
		t.Fatalf("vote in SELECT expected ErrWrongStep, got %v", err)
	}
	if _, err := w.Finish(context.Background()); !errors.Is(err, ErrWrongStep) {
		t.Fatalf("finish in SELECT expected ErrWrongStep, got %v", err)
	}

	startActiveSession(t, w, "p1")
	if err := w.Select("p2"); !errors.Is(err, ErrWrongStep) {
		t.Fatalf("select in ACTIVE expected ErrWrongStep, got %v", err)
	}
}

func TestDeselectDropsEntryAndVotes(t *testing.T) {
	w := NewWizard(&fakeCommitter{}, testRoster())

	if err := w.Select("p1"); err != nil {
		t.Fatal(err)
	}
	if err := w.Deselect("p1"); err != nil {
		t.Fatal(err)
	}
	if len(w.State().Entries) != 0 {
		t.Fatal("deselect should drop the entry")
	}
}

func TestVoting(t *testing.T) {
	w := NewWizard(&fakeCommitter{}, testRoster())
	if err := w.Select("p1"); err != nil {
		t.Fatal(err)
	}
	if err := w.Select("p2"); err != nil {
		t.Fatal(err)
	}
	if err := w.SetOpponent("Riverside"); err != nil {
		t.Fatal(err)
	}
	if err := w.AdvanceToVoting(); err != nil {
		t.Fatal(err)
	}

	if err := w.Vote("best_hair", "p1", 1); !errors.Is(err, ErrUnknownCategory) {
		t.Fatalf("expected ErrUnknownCategory, got %v", err)
	}
	if err := w.Vote(CategoryManOfMatch, "ghost", 1); !errors.Is(err, ErrNotSelected) {
		t.Fatalf("expected ErrNotSelected, got %v", err)
	}
	if err := w.Vote(CategoryManOfMatch, "p1", 2); err != nil {
		t.Fatal(err)
	}
	if err := w.Vote(CategoryDickOfDay, "p2", 1); err != nil {
		t.Fatal(err)
	}
	if err := w.FinalizeVoting(); err != nil {
		t.Fatal(err)
	}

	state := w.State()
	if state.Step != StepActive {
		t.Fatalf("expected ACTIVE, got %s", state.Step)
	}
	p1 := state.Entries["p1"]
	if p1.Added.Cents != core.ManOfMatchBonus.Cents || !core.HasTag(p1.Tags, core.TagManOfMatch) {
		t.Fatalf("p1 should carry the award fine, got %+v", p1)
	}
	p2 := state.Entries["p2"]
	if p2.Added.Cents != core.DickOfDayBonus.Cents || !core.HasTag(p2.Tags, core.TagDickOfDay) {
		t.Fatalf("p2 should carry the award fine, got %+v", p2)
	}
}

func TestRevoteDoesNotDoubleCharge(t *testing.T) {
	w := NewWizard(&fakeCommitter{}, testRoster())
	if err := w.Select("p1"); err != nil {
		t.Fatal(err)
	}
	if err := w.Select("p2"); err != nil {
		t.Fatal(err)
	}
	if err := w.SetOpponent("Riverside"); err != nil {
		t.Fatal(err)
	}
	if err := w.AdvanceToVoting(); err != nil {
		t.Fatal(err)
	}
	if err := w.Vote(CategoryManOfMatch, "p1", 1); err != nil {
		t.Fatal(err)
	}
	if err := w.FinalizeVoting(); err != nil {
		t.Fatal(err)
	}

	// Re-open voting and hand the award to the other player instead.
	if err := w.BackToVoting(); err != nil {
		t.Fatal(err)
	}
	if err := w.Vote(CategoryManOfMatch, "p1", -1); err != nil {
		t.Fatal(err)
	}
	if err := w.Vote(CategoryManOfMatch, "p2", 1); err != nil {
		t.Fatal(err)
	}
	if err := w.FinalizeVoting(); err != nil {
		t.Fatal(err)
	}

	state := w.State()
	p1 := state.Entries["p1"]
	if p1.Added.Cents != 0 || core.HasTag(p1.Tags, core.TagManOfMatch) {
		t.Fatalf("p1 award should be stripped, got %+v", p1)
	}
	p2 := state.Entries["p2"]
	if p2.Added.Cents != core.ManOfMatchBonus.Cents || !core.HasTag(p2.Tags, core.TagManOfMatch) {
		t.Fatalf("p2 should hold the award, got %+v", p2)
	}
}

func TestTaps(t *testing.T) {
	w := NewWizard(&fakeCommitter{}, testRoster())
	startActiveSession(t, w, "p1")

	if err := w.Tap("p1", "mystery"); !errors.Is(err, ErrUnknownTapKind) {
		t.Fatalf("expected ErrUnknownTapKind, got %v", err)
	}
	if err := w.Tap("ghost", TapStandard); !errors.Is(err, ErrNotSelected) {
		t.Fatalf("expected ErrNotSelected, got %v", err)
	}

	// Undo with nothing added goes negative: the commit treats it as a
	// balance correction with no history transaction.
	if err := w.Tap("p1", TapUndo); err != nil {
		t.Fatal(err)
	}
	if got := w.State().Entries["p1"].Added.Cents; got != -core.StandardIncrement.Cents {
		t.Fatalf("undo on empty entry should go negative, got %d", got)
	}

	if err := w.Tap("p1", TapStandard); err != nil {
		t.Fatal(err)
	}
	if err := w.Tap("p1", TapStandard); err != nil {
		t.Fatal(err)
	}
	if err := w.Tap("p1", TapUndo); err != nil {
		t.Fatal(err)
	}
	if err := w.Tap("p1", TapYellow); err != nil {
		t.Fatal(err)
	}

	// -50 undo, two standard taps, one undo, then the card: net 500.
	entry := w.State().Entries["p1"]
	if entry.Added.Cents != core.YellowCardFine.Cents {
		t.Fatalf("expected 500, got %d", entry.Added.Cents)
	}
	if !core.HasTag(entry.Tags, core.TagYellowCard) {
		t.Fatalf("expected YLW tag, got %v", entry.Tags)
	}
}

func TestTapClearsPayOff(t *testing.T) {
	w := NewWizard(&fakeCommitter{}, testRoster())
	startActiveSession(t, w, "p1")

	if err := w.TogglePaidOff("p1"); err != nil {
		t.Fatal(err)
	}
	if !w.State().Entries["p1"].IsPaidOff {
		t.Fatal("expected paid off")
	}
	if err := w.Tap("p1", TapStandard); err != nil {
		t.Fatal(err)
	}
	if w.State().Entries["p1"].IsPaidOff {
		t.Fatal("tap after pay-off must clear the flag")
	}
	if err := w.TogglePaidOff("p1"); err != nil {
		t.Fatal(err)
	}
	if err := w.ToggleItem("p1"); err != nil {
		t.Fatal(err)
	}
	if w.State().Entries["p1"].IsPaidOff {
		t.Fatal("item toggle after pay-off must clear the flag")
	}
}

func TestFinishCommitsAndResets(t *testing.T) {
	committer := &fakeCommitter{}
	w := NewWizard(committer, testRoster())
	startActiveSession(t, w, "p1", "p2")
	if err := w.Tap("p1", TapStandard); err != nil {
		t.Fatal(err)
	}

	rec, err := w.Finish(context.Background())
	if err != nil {
		t.Fatalf("finish: %v", err)
	}
	if rec.ID != "rec-1" {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if committer.opponent != "Riverside" || len(committer.entries) != 2 || len(committer.roster) != 2 {
		t.Fatalf("commit received wrong inputs: opponent=%q entries=%d roster=%d",
			committer.opponent, len(committer.entries), len(committer.roster))
	}

	state := w.State()
	if state.Step != StepSelect || len(state.Entries) != 0 || state.Opponent != "" {
		t.Fatalf("finish should reset the wizard, got %+v", state)
	}
}

func TestFinishNothingToCommitStillClears(t *testing.T) {
	committer := &fakeCommitter{err: ledger.ErrNothingToCommit}
	w := NewWizard(committer, testRoster())
	startActiveSession(t, w, "p1")

	rec, err := w.Finish(context.Background())
	if err != nil {
		t.Fatalf("finish with nothing reportable should not fail, got %v", err)
	}
	if rec.ID != "" {
		t.Fatalf("expected no record, got %+v", rec)
	}
	if got := w.State().Step; got != StepSelect {
		t.Fatalf("wizard should reset, got %s", got)
	}
}

func TestFinishFailureKeepsSession(t *testing.T) {
	committer := &fakeCommitter{err: errors.New("database is locked")}
	w := NewWizard(committer, testRoster())
	startActiveSession(t, w, "p1")
	if err := w.Tap("p1", TapStandard); err != nil {
		t.Fatal(err)
	}

	if _, err := w.Finish(context.Background()); err == nil {
		t.Fatal("expected commit failure")
	}

	state := w.State()
	if state.Step != StepActive {
		t.Fatalf("failed finish should keep the session, got %s", state.Step)
	}
	if state.Entries["p1"].Added.Cents != 50 {
		t.Fatal("failed finish should keep the adjustments")
	}
	// The session can be finished again once the fault clears.
	committer.err = nil
	if _, err := w.Finish(context.Background()); err != nil {
		t.Fatalf("retry finish: %v", err)
	}
}

func TestMutationsRejectedDuringCommit(t *testing.T) {
	committer := &fakeCommitter{
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	w := NewWizard(committer, testRoster())
	startActiveSession(t, w, "p1")
	if err := w.Tap("p1", TapStandard); err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := w.Finish(context.Background())
		done <- err
	}()

	<-committer.entered
	if err := w.Tap("p1", TapStandard); !errors.Is(err, ErrCommitInProgress) {
		t.Fatalf("expected ErrCommitInProgress, got %v", err)
	}
	if err := w.Cancel(); !errors.Is(err, ErrCommitInProgress) {
		t.Fatalf("cancel expected ErrCommitInProgress, got %v", err)
	}
	close(committer.release)

	if err := <-done; err != nil {
		t.Fatalf("finish: %v", err)
	}
}

func TestCancelResets(t *testing.T) {
	w := NewWizard(&fakeCommitter{}, testRoster())
	startActiveSession(t, w, "p1")
	if err := w.Tap("p1", TapRed); err != nil {
		t.Fatal(err)
	}

	if err := w.Cancel(); err != nil {
		t.Fatal(err)
	}
	state := w.State()
	if state.Step != StepSelect || len(state.Entries) != 0 {
		t.Fatalf("cancel should reset, got %+v", state)
	}
}

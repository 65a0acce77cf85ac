package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"duchybank/internal/core"
	"duchybank/internal/ledger"
)

// Step is the wizard's position in the match-day flow.
type Step string

const (
	StepSelect Step = "SELECT"
	StepVoting Step = "VOTING"
	StepActive Step = "ACTIVE"
)

// Tap kinds accepted while a session is active.
const (
	TapStandard = "standard"
	TapUndo     = "undo"
	TapGreen    = "green"
	TapYellow   = "yellow"
	TapRed      = "red"
)

// Voting categories.
const (
	CategoryManOfMatch = "motm"
	CategoryDickOfDay  = "dotd"
)

var (
	ErrWrongStep         = errors.New("operation not allowed in current step")
	ErrNotSelected       = errors.New("player is not part of the session")
	ErrNoPlayersSelected = errors.New("no players selected")
	ErrUnknownTapKind    = errors.New("unknown tap kind")
	ErrUnknownCategory   = errors.New("unknown voting category")
	ErrCommitInProgress  = errors.New("session commit already in progress")
)

// Committer commits a finished session. Satisfied by *ledger.Service.
type Committer interface {
	CommitSession(ctx context.Context, opponent string, entries map[string]*core.SessionEntry, roster []core.Player) (core.SessionRecord, error)
}

// RosterSource supplies the roster snapshot the commit projects balances
// from. Satisfied by *mirror.Mirror.
type RosterSource interface {
	Players() []core.Player
}

// Wizard is the single admin-driven match session. There is at most one
// session at a time; all methods are safe for concurrent use.
type Wizard struct {
	mu sync.Mutex

	step       Step
	opponent   string
	entries    map[string]*core.SessionEntry
	motm       core.VoteTally
	dotd       core.VoteTally
	committing bool

	committer Committer
	roster    RosterSource
}

func NewWizard(committer Committer, roster RosterSource) *Wizard {
	w := &Wizard{committer: committer, roster: roster}
	w.resetLocked()
	return w
}

func (w *Wizard) resetLocked() {
	w.step = StepSelect
	w.opponent = ""
	w.entries = make(map[string]*core.SessionEntry)
	w.motm = make(core.VoteTally)
	w.dotd = make(core.VoteTally)
	w.committing = false
}

// guardLocked rejects mutations in the wrong step or during a commit.
func (w *Wizard) guardLocked(step Step) error {
	if w.committing {
		return ErrCommitInProgress
	}
	if w.step != step {
		return fmt.Errorf("%w: in %s, need %s", ErrWrongStep, w.step, step)
	}
	return nil
}

// Select adds a player to the session. Re-selecting keeps any adjustment
// already recorded for them.
func (w *Wizard) Select(playerID string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.guardLocked(StepSelect); err != nil {
		return err
	}
	if _, ok := w.entries[playerID]; !ok {
		w.entries[playerID] = core.NewSessionEntry()
	}
	return nil
}

// Deselect drops a player and their in-progress adjustment.
func (w *Wizard) Deselect(playerID string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.guardLocked(StepSelect); err != nil {
		return err
	}
	delete(w.entries, playerID)
	delete(w.motm, playerID)
	delete(w.dotd, playerID)
	return nil
}

func (w *Wizard) SetOpponent(name string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.guardLocked(StepSelect); err != nil {
		return err
	}
	w.opponent = name
	return nil
}

// AdvanceToVoting moves SELECT -> VOTING. Requires an opponent name and at
// least one selected player.
func (w *Wizard) AdvanceToVoting() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.guardLocked(StepSelect); err != nil {
		return err
	}
	if len(w.entries) == 0 {
		return ErrNoPlayersSelected
	}
	if w.opponent == "" {
		return core.ErrEmptyOpponent
	}
	w.step = StepVoting
	return nil
}

// BackToSelect moves VOTING -> SELECT, keeping selections and votes.
func (w *Wizard) BackToSelect() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.guardLocked(StepVoting); err != nil {
		return err
	}
	w.step = StepSelect
	return nil
}

// Vote adjusts a player's tally in one category. Counts never go below
// zero.
func (w *Wizard) Vote(category, playerID string, delta int) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.guardLocked(StepVoting); err != nil {
		return err
	}
	if _, ok := w.entries[playerID]; !ok {
		return ErrNotSelected
	}
	switch category {
	case CategoryManOfMatch:
		w.motm.Vote(playerID, delta)
	case CategoryDickOfDay:
		w.dotd.Vote(playerID, delta)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownCategory, category)
	}
	return nil
}

// FinalizeVoting applies the award fines to the vote leaders and moves
// VOTING -> ACTIVE. Safe to run again after BackToVoting: previous awards
// are stripped before the current leaders are charged.
func (w *Wizard) FinalizeVoting() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.guardLocked(StepVoting); err != nil {
		return err
	}
	selected := make(map[string]bool, len(w.entries))
	for id := range w.entries {
		selected[id] = true
	}
	core.ApplyVoting(w.entries, w.motm, w.dotd, selected)
	w.step = StepActive
	return nil
}

// SkipVoting discards all votes, strips any previously applied awards and
// moves VOTING -> ACTIVE.
func (w *Wizard) SkipVoting() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.guardLocked(StepVoting); err != nil {
		return err
	}
	w.motm = make(core.VoteTally)
	w.dotd = make(core.VoteTally)
	selected := make(map[string]bool, len(w.entries))
	for id := range w.entries {
		selected[id] = true
	}
	core.ApplyVoting(w.entries, w.motm, w.dotd, selected)
	w.step = StepActive
	return nil
}

// BackToVoting moves ACTIVE -> VOTING so the awards can be re-decided.
func (w *Wizard) BackToVoting() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.guardLocked(StepActive); err != nil {
		return err
	}
	w.step = StepVoting
	return nil
}

// Tap records a fine tap for a selected player during the active session.
func (w *Wizard) Tap(playerID, kind string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.guardLocked(StepActive); err != nil {
		return err
	}
	entry, ok := w.entries[playerID]
	if !ok {
		return ErrNotSelected
	}
	switch kind {
	case TapStandard:
		entry.ApplyTap(core.StandardIncrement)
	case TapUndo:
		// Undoing past zero is allowed: the commit applies the negative
		// net to the balance without recording a history transaction.
		entry.ApplyTap(core.StandardIncrement.Neg())
	case TapGreen:
		entry.ApplyTap(core.GreenCardFine, core.TagGreenCard)
	case TapYellow:
		entry.ApplyTap(core.YellowCardFine, core.TagYellowCard)
	case TapRed:
		entry.ApplyTap(core.RedCardFine, core.TagRedCard)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownTapKind, kind)
	}
	return nil
}

func (w *Wizard) ToggleItem(playerID string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.guardLocked(StepActive); err != nil {
		return err
	}
	entry, ok := w.entries[playerID]
	if !ok {
		return ErrNotSelected
	}
	entry.ToggleItem()
	return nil
}

func (w *Wizard) TogglePaidOff(playerID string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.guardLocked(StepActive); err != nil {
		return err
	}
	entry, ok := w.entries[playerID]
	if !ok {
		return ErrNotSelected
	}
	entry.TogglePaidOff()
	return nil
}

// Finish commits the active session and resets the wizard. The commit runs
// outside the wizard lock; concurrent mutations are rejected while it is
// in flight. A session with nothing reportable clears without writing a
// record.
func (w *Wizard) Finish(ctx context.Context) (core.SessionRecord, error) {
	w.mu.Lock()
	if err := w.guardLocked(StepActive); err != nil {
		w.mu.Unlock()
		return core.SessionRecord{}, err
	}
	w.committing = true
	opponent := w.opponent
	entries := w.entries
	w.mu.Unlock()

	roster := w.roster.Players()
	rec, err := w.committer.CommitSession(ctx, opponent, entries, roster)

	w.mu.Lock()
	defer w.mu.Unlock()
	if err != nil {
		if errors.Is(err, ledger.ErrNothingToCommit) {
			slog.InfoContext(ctx, "Session finished with nothing to record", "opponent", opponent)
			w.resetLocked()
			return core.SessionRecord{}, nil
		}
		w.committing = false
		return core.SessionRecord{}, err
	}
	w.resetLocked()
	return rec, nil
}

// Cancel abandons the session from any step without writing anything.
func (w *Wizard) Cancel() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.committing {
		return ErrCommitInProgress
	}
	w.resetLocked()
	return nil
}

// Snapshot is a point-in-time copy of the wizard for rendering.
type Snapshot struct {
	Step            Step
	Opponent        string
	Entries         map[string]core.SessionEntry
	ManOfMatchVotes map[string]int
	DickOfDayVotes  map[string]int
}

func (w *Wizard) State() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()

	snap := Snapshot{
		Step:            w.step,
		Opponent:        w.opponent,
		Entries:         make(map[string]core.SessionEntry, len(w.entries)),
		ManOfMatchVotes: make(map[string]int, len(w.motm)),
		DickOfDayVotes:  make(map[string]int, len(w.dotd)),
	}
	for id, entry := range w.entries {
		e := *entry
		e.Tags = append([]core.Tag(nil), entry.Tags...)
		snap.Entries[id] = e
	}
	for id, n := range w.motm {
		snap.ManOfMatchVotes[id] = n
	}
	for id, n := range w.dotd {
		snap.DickOfDayVotes[id] = n
	}
	return snap
}

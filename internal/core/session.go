package core

// SessionEntry is one player's transient adjustment while a session is in
// progress. Absence of an entry means the player is not part of the
// session, not that their adjustment is zero. Entries are discarded after
// commit or cancel.
type SessionEntry struct {
	// Added accumulates manual taps and voting bonuses. The item fine is
	// kept separate so the item toggle stays reversible.
	Added       Money
	IsPaidOff   bool
	Tags        []Tag
	ItemBrought bool
}

// NewSessionEntry returns the initial adjustment for a selected player:
// nothing added, item not yet confirmed brought.
func NewSessionEntry() *SessionEntry {
	return &SessionEntry{}
}

// ApplyTap records a manual fine or undo tap. Mutating the amount after a
// pay-off un-pays it, so the operator must re-confirm.
func (e *SessionEntry) ApplyTap(amount Money, tags ...Tag) {
	e.Added = e.Added.Add(amount)
	e.Tags = append(e.Tags, tags...)
	e.IsPaidOff = false
}

// ToggleItem flips the item-brought flag. Like a tap, this changes the
// session amount and therefore clears any pay-off.
func (e *SessionEntry) ToggleItem() {
	e.ItemBrought = !e.ItemBrought
	e.IsPaidOff = false
}

// TogglePaidOff flips the pay-off flag.
func (e *SessionEntry) TogglePaidOff() {
	e.IsPaidOff = !e.IsPaidOff
}

// SessionAdded is the net fine this session would apply: manual taps and
// bonuses plus the missing-item fine.
func (e *SessionEntry) SessionAdded() Money {
	added := e.Added
	if !e.ItemBrought {
		added = added.Add(MissingItemFine)
	}
	return added
}

// ProjectedTotal is the balance the player would hold after commit.
func (e *SessionEntry) ProjectedTotal(base Money) Money {
	if e.IsPaidOff {
		return Money{}
	}
	return base.Add(e.SessionAdded())
}

// Reportable reports whether the entry belongs in the committed history:
// a positive net fine, or a pay-off.
func (e *SessionEntry) Reportable() bool {
	return e.SessionAdded().Cents > 0 || e.IsPaidOff
}

// BuildTransaction freezes the entry into a history transaction for the
// given player. The ITEM tag is attached here, when the missing-item fine
// becomes part of the net amount.
func (e *SessionEntry) BuildTransaction(p Player) Transaction {
	tags := make([]Tag, len(e.Tags), len(e.Tags)+1)
	copy(tags, e.Tags)
	if !e.ItemBrought {
		tags = append(tags, TagMissingItem)
	}
	return Transaction{
		PlayerID:   p.ID,
		PlayerName: p.Name,
		Amount:     e.SessionAdded(),
		Tags:       tags,
		IsPaidOff:  e.IsPaidOff,
	}
}

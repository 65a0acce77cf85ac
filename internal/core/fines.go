package core

// Fine schedule in pence. These are fixed club constants: the standard tap
// applied during a session, card fines, the two voted awards and the fine
// for not bringing the required item to a match.
var (
	StandardIncrement = Money{Cents: 50}
	GreenCardFine     = Money{Cents: 200}
	YellowCardFine    = Money{Cents: 500}
	RedCardFine       = Money{Cents: 1000}
	ManOfMatchBonus   = Money{Cents: 200}
	DickOfDayBonus    = Money{Cents: 200}
	MissingItemFine   = Money{Cents: 100}
)

package core

import (
	"errors"
	"fmt"
	"strings"
)

// Tag is a short code attached to a transaction for a qualifying match
// event. The set is closed: unknown codes are rejected on parse.
type Tag string

const (
	TagGreenCard   Tag = "GRN"
	TagYellowCard  Tag = "YLW"
	TagRedCard     Tag = "RED"
	TagMissingItem Tag = "ITEM"
	TagManOfMatch  Tag = "MOTM"
	TagDickOfDay   Tag = "DOTD"
)

var (
	ErrInvalidAmount = errors.New("invalid amount")
	ErrEmptyName     = errors.New("empty player name")
	ErrEmptyOpponent = errors.New("empty opponent name")
	ErrUnknownTag    = errors.New("unknown tag code")
)

// ParseTag validates a raw tag code against the closed tag set.
func ParseTag(s string) (Tag, error) {
	switch Tag(s) {
	case TagGreenCard, TagYellowCard, TagRedCard, TagMissingItem, TagManOfMatch, TagDickOfDay:
		return Tag(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownTag, s)
}

// ParseTags validates a slice of raw codes, preserving order.
func ParseTags(raw []string) ([]Tag, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	tags := make([]Tag, 0, len(raw))
	for _, s := range raw {
		t, err := ParseTag(s)
		if err != nil {
			return nil, err
		}
		tags = append(tags, t)
	}
	return tags, nil
}

// HasTag reports whether tags contains t.
func HasTag(tags []Tag, t Tag) bool {
	for _, have := range tags {
		if have == t {
			return true
		}
	}
	return false
}

// RemoveTag returns tags without any occurrence of t, preserving order.
func RemoveTag(tags []Tag, t Tag) []Tag {
	out := tags[:0]
	for _, have := range tags {
		if have != t {
			out = append(out, have)
		}
	}
	return out
}

// Player is a roster member with a running balance. TotalOwed is
// non-negative by convention but not enforced.
type Player struct {
	ID        string
	Name      string
	TotalOwed Money
}

func (p Player) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return ErrEmptyName
	}
	if len(p.Name) > 100 {
		return errors.New("player name too long (max 100 characters)")
	}
	return nil
}

// Transaction is one player's net fine in a committed session: a
// denormalized snapshot of the player name at match time, so it survives
// later renames and deletion. Amount is the net fine applied at commit
// and is never renegotiated except by deleting the whole session record.
type Transaction struct {
	PlayerID   string
	PlayerName string
	Amount     Money
	Tags       []Tag
	IsPaidOff  bool
}

// SessionRecord is one match's committed fines. Immutable once created
// except for deletion, which reverses every transaction it holds.
type SessionRecord struct {
	ID           string
	Timestamp    int64 // epoch milliseconds
	Opponent     string
	Transactions []Transaction
}

func (r SessionRecord) Validate() error {
	if strings.TrimSpace(r.Opponent) == "" {
		return ErrEmptyOpponent
	}
	if r.Timestamp <= 0 {
		return errors.New("session timestamp must be set")
	}
	return nil
}

// Total is the displayed total fine for the session: the sum of its
// transactions' amounts.
func (r SessionRecord) Total() Money {
	var sum Money
	for _, tx := range r.Transactions {
		sum = sum.Add(tx.Amount)
	}
	return sum
}

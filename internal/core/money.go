// Package core provides the fines-ledger domain: money handling, the fine
// schedule, tags, session arithmetic and voting resolution.
package core

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// Money is an amount in pence. Balances and fines are stored as integer
// pence to avoid floating point errors; the UI treats them as pounds.
type Money struct {
	Cents int64
}

// Pounds returns the pound value as a float64 for display purposes.
// Use cents for calculations.
func (m Money) Pounds() float64 {
	return float64(m.Cents) / 100.0
}

// Add returns the sum of two amounts.
func (m Money) Add(other Money) Money {
	return Money{Cents: m.Cents + other.Cents}
}

// Sub returns the difference of two amounts.
func (m Money) Sub(other Money) Money {
	return Money{Cents: m.Cents - other.Cents}
}

// Neg returns the negated amount.
func (m Money) Neg() Money {
	return Money{Cents: -m.Cents}
}

// IsZero reports whether the amount is exactly zero.
func (m Money) IsZero() bool {
	return m.Cents == 0
}

// String formats the amount as pounds, e.g. "£1.50" or "-£0.50".
func (m Money) String() string {
	cents := m.Cents
	neg := cents < 0
	if neg {
		cents = -cents
	}
	s := strconv.FormatInt(cents/100, 10) + "." + fmt.Sprintf("%02d", cents%100)
	if neg {
		return "-£" + s
	}
	return "£" + s
}

// ParseBalanceToCents converts a decimal string to cents with half-up
// rounding on the third decimal place. Used for admin balance edits, so
// zero is allowed; negative values and malformed input are rejected.
//
// Both dot (12.34) and comma (12,34) decimal separators are accepted.
func ParseBalanceToCents(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidAmount
	}
	// Normalize decimal comma to dot
	s = strings.ReplaceAll(s, ",", ".")
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return 0, ErrInvalidAmount
	}
	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return 0, ErrInvalidAmount
	}
	intPart := parts[0]
	fracPart := ""
	if len(parts) == 2 {
		fracPart = parts[1]
	}
	if intPart == "" {
		intPart = "0"
	}
	for _, r := range intPart {
		if !unicode.IsDigit(r) {
			return 0, ErrInvalidAmount
		}
	}
	for _, r := range fracPart {
		if !unicode.IsDigit(r) {
			return 0, ErrInvalidAmount
		}
	}
	iv, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	// Take first two fractional digits; then half-up rounding on third
	var fracCents int64
	if len(fracPart) > 0 {
		d1 := int64(fracPart[0] - '0')
		fracCents = d1 * 10
		if len(fracPart) > 1 {
			d2 := int64(fracPart[1] - '0')
			fracCents += d2
			if len(fracPart) > 2 && fracPart[2] >= '5' {
				fracCents++
			}
		}
	}
	// Prevent overflow in iv*100 + fracCents
	const (
		maxSafeInt64 = (1<<63 - 1) / 100
		maxSafeFrac  = (1<<63 - 1) % 100
	)
	if iv > maxSafeInt64 || (iv == maxSafeInt64 && fracCents > maxSafeFrac) {
		return 0, ErrInvalidAmount
	}
	return iv*100 + fracCents, nil
}

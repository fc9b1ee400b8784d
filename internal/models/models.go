// Package models provides domain models for the trading journal.
package models

import "strings"

// Side represents the direction of a trade.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Is reports whether s matches other case-insensitively.
// Sides are stored as entered ("BUY", "Buy", "buy" are all a buy).
func (s Side) Is(other Side) bool {
	return strings.EqualFold(strings.TrimSpace(string(s)), string(other))
}

// Valid returns true for buy or sell in any letter case.
func (s Side) Valid() bool {
	return s.Is(SideBuy) || s.Is(SideSell)
}

// Status is an outcome tag attached to a closed trade.
// The set is open: unknown tags are stored as-is.
type Status string

const (
	StatusTakeProfit Status = "tp"
	StatusStopLoss   Status = "sl"
	StatusBreakEven  Status = "be"
	StatusManual     Status = "manual"
)

// KnownStatuses lists the outcome tags the journal understands.
var KnownStatuses = []Status{StatusTakeProfit, StatusStopLoss, StatusBreakEven, StatusManual}

// IsKnown returns true if the status is one of KnownStatuses.
func (s Status) IsKnown() bool {
	for _, k := range KnownStatuses {
		if strings.EqualFold(string(s), string(k)) {
			return true
		}
	}
	return false
}

// User is the identity returned by the identity provider.
type User struct {
	UID           string `json:"uid"`
	Email         string `json:"email"`
	DisplayName   string `json:"displayName"`
	PhotoURL      string `json:"photoURL"`
	EmailVerified bool   `json:"emailVerified"`
}

package model

import (
	"strings"

	"golang.org/x/text/cases"
)

// Outcome is a normalized outcome label. Build it with NewOutcome only;
// comparing raw labels inline lets normalization drift between call sites.
type Outcome string

// NewOutcome trims whitespace and case-folds an outcome label.
func NewOutcome(raw string) Outcome {
	return Outcome(fold(raw))
}

// IsZero reports whether the label was empty after normalization.
func (o Outcome) IsZero() bool { return o == "" }

func (o Outcome) String() string { return string(o) }

// MarketID is a normalized market identifier.
type MarketID string

// NewMarketID trims whitespace and case-folds a market identifier.
func NewMarketID(raw string) MarketID {
	return MarketID(fold(raw))
}

func (m MarketID) IsZero() bool { return m == "" }

func (m MarketID) String() string { return string(m) }

// PositionKey uniquely identifies a position: market id and outcome.
type PositionKey string

// NewPositionKey joins a market id and an outcome as "market::outcome".
// It returns the empty key if either part is empty.
func NewPositionKey(market MarketID, outcome Outcome) PositionKey {
	if market.IsZero() || outcome.IsZero() {
		return ""
	}
	return PositionKey(string(market) + "::" + string(outcome))
}

// fold builds a fresh Caser per call; cases.Caser is not safe for
// concurrent use.
func fold(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	return cases.Fold().String(s)
}

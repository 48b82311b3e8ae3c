package model

import "time"

// MarketMeta is the canonical market metadata the engine consumes. Every
// upstream shape is decoded into this struct at the system boundary.
type MarketMeta struct {
	MarketID MarketID `json:"market_id"`
	Closed   bool     `json:"closed"`

	// WinningOutcome is zero until the market reports a winner.
	WinningOutcome Outcome `json:"winning_outcome,omitempty"`

	// Outcomes and OutcomePrices are parallel arrays. Prices may be NaN
	// when the upstream value could not be parsed.
	Outcomes      []Outcome `json:"outcomes,omitempty"`
	OutcomePrices []float64 `json:"outcome_prices,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

// PriceFor returns the listed price of outcome o when the outcome and price
// arrays are the same length and o appears in them.
func (m *MarketMeta) PriceFor(o Outcome) (float64, bool) {
	if m == nil || o.IsZero() || len(m.Outcomes) != len(m.OutcomePrices) {
		return 0, false
	}
	for i, candidate := range m.Outcomes {
		if candidate == o {
			return m.OutcomePrices[i], true
		}
	}
	return 0, false
}

// Package normalize validates raw order records and converts them into the
// canonical trade-lot shape used by the position grouper.
//
// Malformed records are dropped, never reported as errors: upstream order
// sources are heterogeneous and partial data is expected.
package normalize

import (
	"math"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/atmx/pnl-engine/internal/model"
)

// Reason explains why an order was dropped.
type Reason string

const (
	ReasonNone       Reason = ""
	ReasonSide       Reason = "invalid_side"
	ReasonPrice      Reason = "invalid_price"
	ReasonSize       Reason = "invalid_size"
	ReasonMissingKey Reason = "missing_key"
)

// Order normalizes one raw order. The boolean is false when the order must
// be excluded from accounting.
func Order(o model.Order) (model.NormalizedOrder, bool) {
	n, reason := OrderWithReason(o)
	return n, reason == ReasonNone
}

// OrderWithReason is Order, reporting why a record was dropped.
func OrderWithReason(o model.Order) (model.NormalizedOrder, Reason) {
	side, ok := parseSide(o.Side)
	if !ok {
		return model.NormalizedOrder{}, ReasonSide
	}

	price, ok := positive(firstPresent(o.PriceWhenCopied, o.EntryPrice, o.Price))
	if !ok {
		return model.NormalizedOrder{}, ReasonPrice
	}

	size, ok := positive(firstPresent(o.FilledSize, o.Size))
	if !ok {
		return model.NormalizedOrder{}, ReasonSize
	}

	market := model.NewMarketID(o.MarketID)
	outcome := model.NewOutcome(o.Outcome)
	if market.IsZero() || outcome.IsZero() {
		return model.NormalizedOrder{}, ReasonMissingKey
	}

	n := model.NormalizedOrder{
		Side:           side,
		MarketID:       market,
		Outcome:        outcome,
		Price:          price,
		Size:           size,
		Timestamp:      o.Timestamp,
		MarketResolved: o.MarketResolved,
	}
	if o.CurrentPrice != nil && finite(*o.CurrentPrice) {
		cp := decimal.NewFromFloat(*o.CurrentPrice)
		n.CurrentPrice = &cp
	}
	if o.ResolvedOutcome != nil {
		n.ResolvedOutcome = model.NewOutcome(*o.ResolvedOutcome)
	}
	return n, ReasonNone
}

func parseSide(raw string) (model.Side, bool) {
	switch model.Side(strings.ToLower(strings.TrimSpace(raw))) {
	case model.SideBuy:
		return model.SideBuy, true
	case model.SideSell:
		return model.SideSell, true
	}
	return "", false
}

// firstPresent returns the first non-nil candidate. A present but invalid
// value is not skipped in favour of a later field.
func firstPresent(candidates ...*float64) *float64 {
	for _, c := range candidates {
		if c != nil {
			return c
		}
	}
	return nil
}

func positive(v *float64) (decimal.Decimal, bool) {
	if v == nil || !finite(*v) || *v <= 0 {
		return decimal.Zero, false
	}
	return decimal.NewFromFloat(*v), true
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

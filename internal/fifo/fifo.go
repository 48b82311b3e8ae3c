// Package fifo settles positions: it matches sells against the oldest open
// buy lots to realize PnL, then force-settles any open tail once the market
// has resolved.
//
// Settlement is a pure function of the Position's lots and market signals.
// Running it twice on the same Position yields identical results.
package fifo

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/atmx/pnl-engine/internal/model"
)

// Resolution price sources, in priority order.
const (
	SourceMarkPrice      = "mark_price"
	SourceWinningOutcome = "winning_outcome"
	SourceOutcomePrices  = "outcome_prices"
)

// AgreementTolerance is the largest accepted gap between a resolved
// position's mark price and its binary payoff before the two are reported
// as disagreeing.
var AgreementTolerance = decimal.NewFromFloat(0.05)

var one = decimal.NewFromInt(1)

// Settle computes RealizedPnL, RemainingSize, RemainingCost, MatchedCost and
// ClosedByResolution for p. meta may be nil.
func Settle(p *model.Position, meta *model.MarketMeta) {
	p.RealizedPnL = decimal.Zero
	p.MatchedCost = decimal.Zero
	p.ResolutionPrice = nil
	p.ResolutionSource = ""
	p.ClosedByResolution = false

	q := newLotQueue(p.Buys)
	for _, sell := range p.Sells {
		want := sell.Size
		for want.IsPositive() && !q.empty() {
			size, cost := q.take(want)
			proceeds := sell.Price.Mul(size)
			p.RealizedPnL = p.RealizedPnL.Add(proceeds.Sub(cost))
			p.MatchedCost = p.MatchedCost.Add(cost)
			want = want.Sub(size)
		}
		// Whatever is left of want had no inventory behind it and is ignored.
	}

	p.RemainingSize, p.RemainingCost = q.remaining()

	if !p.RemainingSize.GreaterThan(model.Epsilon) {
		// A dust tail is flat. Its cost is written off like a popped lot.
		p.RealizedPnL = p.RealizedPnL.Sub(p.RemainingCost)
		p.MatchedCost = p.MatchedCost.Add(p.RemainingCost)
		p.RemainingSize = decimal.Zero
		p.RemainingCost = decimal.Zero
		return
	}
	if !p.MarketResolved {
		return
	}

	price, source, ok := ResolutionPrice(p, meta)
	if !ok {
		// Flagged resolved but no usable signal yet; stays open.
		return
	}

	settlement := p.RemainingSize.Mul(price).Sub(p.RemainingCost)
	p.RealizedPnL = p.RealizedPnL.Add(settlement)
	p.ResolutionPrice = &price
	p.ResolutionSource = source
	p.ClosedByResolution = true
	p.RemainingSize = decimal.Zero
	p.RemainingCost = decimal.Zero
}

// ResolutionPrice derives the per-share settlement value for p. The first
// available source wins: the attached mark price, then the binary payoff
// from the resolved outcome, then the outcome's entry in the metadata price
// array.
func ResolutionPrice(p *model.Position, meta *model.MarketMeta) (decimal.Decimal, string, bool) {
	if p.CurrentPrice != nil {
		return *p.CurrentPrice, SourceMarkPrice, true
	}

	if !p.ResolvedOutcome.IsZero() {
		return binaryPayoff(p), SourceWinningOutcome, true
	}

	if price, ok := meta.PriceFor(p.Outcome); ok && !math.IsNaN(price) && !math.IsInf(price, 0) {
		return decimal.NewFromFloat(price), SourceOutcomePrices, true
	}

	return decimal.Zero, "", false
}

// ResolutionAgreement reports the absolute gap between a resolved position's
// mark price and its binary payoff. ok is false unless both are present.
func ResolutionAgreement(p *model.Position) (gap decimal.Decimal, ok bool) {
	if !p.MarketResolved || p.CurrentPrice == nil || p.ResolvedOutcome.IsZero() {
		return decimal.Zero, false
	}
	return p.CurrentPrice.Sub(binaryPayoff(p)).Abs(), true
}

// Disagrees reports whether the mark price and binary payoff of p differ by
// more than AgreementTolerance.
func Disagrees(p *model.Position) bool {
	gap, ok := ResolutionAgreement(p)
	return ok && gap.GreaterThan(AgreementTolerance)
}

func binaryPayoff(p *model.Position) decimal.Decimal {
	if p.ResolvedOutcome == p.Outcome {
		return one
	}
	return decimal.Zero
}

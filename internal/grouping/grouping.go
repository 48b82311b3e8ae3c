// Package grouping buckets normalized orders into positions keyed by
// market id and outcome.
//
// Input must already be in chronological order; the grouper appends lots in
// the order it sees them and never re-sorts.
package grouping

import (
	"github.com/atmx/pnl-engine/internal/model"
)

// Grouper accumulates positions from a stream of normalized orders.
// It is not safe for concurrent use.
type Grouper struct {
	index     map[model.PositionKey]*model.Position
	positions []*model.Position // first-seen order
	buys      int
	sells     int
}

// New creates an empty grouper.
func New() *Grouper {
	return &Grouper{index: make(map[model.PositionKey]*model.Position)}
}

// Add folds one order into its position. Orders whose key cannot be formed
// are ignored and Add returns false.
func (g *Grouper) Add(o model.NormalizedOrder) bool {
	key := o.Key()
	if key == "" {
		return false
	}

	p, ok := g.index[key]
	if !ok {
		p = &model.Position{
			Key:      key,
			MarketID: o.MarketID,
			Outcome:  o.Outcome,
		}
		g.index[key] = p
		g.positions = append(g.positions, p)
	}

	amount := o.Price.Mul(o.Size)
	lot := model.Lot{
		Price:     o.Price,
		Size:      o.Size,
		Amount:    amount,
		Timestamp: o.Timestamp,
	}

	switch o.Side {
	case model.SideBuy:
		p.Buys = append(p.Buys, lot)
		p.TotalCost = p.TotalCost.Add(amount)
		p.TotalBuyShares = p.TotalBuyShares.Add(o.Size)
		p.NetSize = p.NetSize.Add(o.Size)
		g.buys++
	case model.SideSell:
		p.Sells = append(p.Sells, lot)
		p.TotalProceeds = p.TotalProceeds.Add(amount)
		p.NetSize = p.NetSize.Sub(o.Size)
		g.sells++
	default:
		return false
	}

	if o.CurrentPrice != nil {
		cp := *o.CurrentPrice
		p.CurrentPrice = &cp
	}
	if o.MarketResolved != nil {
		p.MarketResolved = *o.MarketResolved
	}
	if !o.ResolvedOutcome.IsZero() {
		p.ResolvedOutcome = o.ResolvedOutcome
	}
	return true
}

// Positions returns the accumulated positions in first-seen order.
func (g *Grouper) Positions() []*model.Position {
	return g.positions
}

// TradeCounts returns the number of buy and sell orders folded so far.
func (g *Grouper) TradeCounts() (buys, sells int) {
	return g.buys, g.sells
}

// Group is a convenience wrapper folding a whole ordered stream.
func Group(orders []model.NormalizedOrder) []*model.Position {
	g := New()
	for _, o := range orders {
		g.Add(o)
	}
	return g.Positions()
}

// Package engine turns one entity's order history and market metadata into
// a reconciled position ledger and summary.
//
// Summarize is pure and synchronous: no I/O, no shared state. Independent
// entities can be summarized concurrently as long as each call gets its own
// order slice and the metadata map is only read.
package engine

import (
	"errors"
	"fmt"
	"sort"

	"github.com/atmx/pnl-engine/internal/aggregate"
	"github.com/atmx/pnl-engine/internal/fifo"
	"github.com/atmx/pnl-engine/internal/grouping"
	"github.com/atmx/pnl-engine/internal/model"
	"github.com/atmx/pnl-engine/internal/normalize"
)

// ErrNoData means no order could be turned into a position. It is distinct
// from a summary that computed to zero.
var ErrNoData = errors.New("engine: no data")

// Result is the outcome of one Summarize call.
type Result struct {
	Summary   model.Summary     `json:"summary"`
	Positions []*model.Position `json:"positions"`

	// Dropped counts excluded orders by reason.
	Dropped map[normalize.Reason]int `json:"dropped"`

	// Disagreements lists resolved positions whose mark price and binary
	// payoff differ by more than fifo.AgreementTolerance.
	Disagreements []model.PositionKey `json:"disagreements,omitempty"`
}

// Summarize computes the position ledger and summary for one entity.
// metas is keyed by normalized market id and may be nil.
func Summarize(orders []model.Order, metas map[model.MarketID]model.MarketMeta) (*Result, error) {
	if len(orders) == 0 {
		return nil, fmt.Errorf("%w: no orders", ErrNoData)
	}

	// Stable sort on a private copy: timestamp ties keep ingestion order.
	sorted := make([]model.Order, len(orders))
	copy(sorted, orders)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	res := &Result{Dropped: make(map[normalize.Reason]int)}
	g := grouping.New()
	for _, o := range sorted {
		n, reason := normalize.OrderWithReason(o)
		if reason != normalize.ReasonNone {
			res.Dropped[reason]++
			continue
		}
		if !g.Add(n) {
			res.Dropped[normalize.ReasonMissingKey]++
		}
	}

	positions := g.Positions()
	if len(positions) == 0 {
		return nil, fmt.Errorf("%w: all %d orders dropped", ErrNoData, len(orders))
	}

	for _, p := range positions {
		var meta *model.MarketMeta
		if m, ok := metas[p.MarketID]; ok {
			meta = &m
			applyMeta(p, meta)
		}
		fifo.Settle(p, meta)
		if fifo.Disagrees(p) {
			res.Disagreements = append(res.Disagreements, p.Key)
		}
	}

	buys, sells := g.TradeCounts()
	summary, err := aggregate.Summarize(positions, buys, sells)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoData, err)
	}

	res.Summary = summary
	res.Positions = positions
	return res, nil
}

// applyMeta merges market metadata into a position before settlement.
// Order-level signals take precedence; metadata fills the gaps.
func applyMeta(p *model.Position, meta *model.MarketMeta) {
	if meta.Closed {
		p.MarketResolved = true
	}
	if p.ResolvedOutcome.IsZero() {
		p.ResolvedOutcome = meta.WinningOutcome
	}
}

// MarketIDs returns the distinct normalized market ids referenced by
// orders, in first-seen order. Callers use it to fetch metadata.
func MarketIDs(orders []model.Order) []model.MarketID {
	seen := make(map[model.MarketID]bool)
	var ids []model.MarketID
	for _, o := range orders {
		id := model.NewMarketID(o.MarketID)
		if id.IsZero() || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids
}

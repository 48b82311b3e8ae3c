// Package model defines the core domain types shared across the PnL engine.
// All monetary values use shopspring/decimal. Raw upstream order records are
// the only place float64 appears; the normalizer converts them on the way in.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Epsilon absorbs rounding drift from repeated proportional reduction.
// Remaining sizes below it are treated as exactly zero.
var Epsilon = decimal.New(1, -5)

// Side is the normalized direction of an order.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Order is a raw trade-order record as delivered by the upstream order store.
// Optional fields are pointers; nil means the source did not carry a value.
type Order struct {
	ID       string `json:"id"`
	EntityID string `json:"entity_id"` // user id or simulated wallet id
	Side     string `json:"side"`
	MarketID string `json:"market_id"`
	Outcome  string `json:"outcome"`

	// Price candidates, most specific first.
	PriceWhenCopied *float64 `json:"price_when_copied,omitempty"`
	EntryPrice      *float64 `json:"entry_price,omitempty"`
	Price           *float64 `json:"price,omitempty"`

	FilledSize *float64 `json:"filled_size,omitempty"`
	Size       *float64 `json:"size,omitempty"` // nominal size, fallback for FilledSize

	Timestamp time.Time `json:"timestamp"`

	CurrentPrice    *float64 `json:"current_price,omitempty"`
	MarketResolved  *bool    `json:"market_resolved,omitempty"`
	ResolvedOutcome *string  `json:"resolved_outcome,omitempty"`
}

// NormalizedOrder is an order that passed validation and is ready to be
// folded into a position.
type NormalizedOrder struct {
	Side      Side
	MarketID  MarketID
	Outcome   Outcome
	Price     decimal.Decimal
	Size      decimal.Decimal
	Timestamp time.Time

	CurrentPrice    *decimal.Decimal
	MarketResolved  *bool
	ResolvedOutcome Outcome // zero when the order carried none
}

// Key returns the position key for this order.
func (o NormalizedOrder) Key() PositionKey {
	return NewPositionKey(o.MarketID, o.Outcome)
}

// Lot is an immutable record of one buy or sell execution.
// Amount is the cost for buys and the proceeds for sells.
type Lot struct {
	Price     decimal.Decimal `json:"price"`
	Size      decimal.Decimal `json:"size"`
	Amount    decimal.Decimal `json:"amount"`
	Timestamp time.Time       `json:"timestamp"`
}

// Position is the accounting unit for one market outcome across an entity's
// order history. It lives for a single computation pass.
type Position struct {
	Key      PositionKey `json:"key"`
	MarketID MarketID    `json:"market_id"`
	Outcome  Outcome     `json:"outcome"`

	Buys  []Lot `json:"buys"`
	Sells []Lot `json:"sells"`

	// Running accumulators from ingestion.
	NetSize        decimal.Decimal `json:"net_size"`
	TotalCost      decimal.Decimal `json:"total_cost"` // never reduced
	TotalProceeds  decimal.Decimal `json:"total_proceeds"`
	TotalBuyShares decimal.Decimal `json:"total_buy_shares"`

	// Latest observed market signals, later orders win.
	CurrentPrice    *decimal.Decimal `json:"current_price"`
	MarketResolved  bool             `json:"market_resolved"`
	ResolvedOutcome Outcome          `json:"resolved_outcome,omitempty"`

	// Settlement results.
	RealizedPnL        decimal.Decimal  `json:"realized_pnl"`
	UnrealizedPnL      *decimal.Decimal `json:"unrealized_pnl"` // nil when no mark price
	RemainingSize      decimal.Decimal  `json:"remaining_size"`
	RemainingCost      decimal.Decimal  `json:"remaining_cost"`
	MatchedCost        decimal.Decimal  `json:"matched_cost"`
	ResolutionPrice    *decimal.Decimal `json:"resolution_price"`
	ResolutionSource   string           `json:"resolution_source,omitempty"`
	ClosedByResolution bool             `json:"closed_by_resolution"`
}

// AvgEntryPrice is total buy cost over total bought shares, or zero.
func (p *Position) AvgEntryPrice() decimal.Decimal {
	if !p.TotalBuyShares.IsPositive() {
		return decimal.Zero
	}
	return p.TotalCost.Div(p.TotalBuyShares)
}

// IsOpen reports whether unmatched inventory remains after settlement.
func (p *Position) IsOpen() bool {
	return !p.ClosedByResolution && p.RemainingSize.GreaterThan(Epsilon)
}

// IsClosed is the complement of IsOpen.
func (p *Position) IsClosed() bool {
	return !p.IsOpen()
}

// LastTradeAt is the timestamp of the position's latest accepted order.
func (p *Position) LastTradeAt() time.Time {
	var last time.Time
	for _, l := range p.Buys {
		if l.Timestamp.After(last) {
			last = l.Timestamp
		}
	}
	for _, l := range p.Sells {
		if l.Timestamp.After(last) {
			last = l.Timestamp
		}
	}
	return last
}

// WindowStats reduces the positions last traded inside one look-back window.
type WindowStats struct {
	Positions      int             `json:"positions"`
	Trades         int             `json:"trades"`
	RealizedPnL    decimal.Decimal `json:"realized_pnl"`
	Volume         decimal.Decimal `json:"volume"`
	ROI            decimal.Decimal `json:"roi"`
	WinRate        decimal.Decimal `json:"win_rate"`
	AvgPnLPerTrade decimal.Decimal `json:"avg_pnl_per_trade"`
}

// Windows holds lifetime, 30-day and 7-day stats. Windows end at the
// entity's latest trade, not the wall clock, so recomputation is repeatable.
type Windows struct {
	AsOf     time.Time   `json:"as_of"`
	Lifetime WindowStats `json:"lifetime"`
	D30      WindowStats `json:"d30"`
	D7       WindowStats `json:"d7"`
}

// Summary is the portfolio-level reduction of an entity's positions.
type Summary struct {
	RealizedPnL      decimal.Decimal `json:"realized_pnl"`
	UnrealizedPnL    decimal.Decimal `json:"unrealized_pnl"`
	TotalPnL         decimal.Decimal `json:"total_pnl"`
	TotalVolume      decimal.Decimal `json:"total_volume"`
	ROI              decimal.Decimal `json:"roi"`
	WinRate          decimal.Decimal `json:"win_rate"`
	OpenPositions    int             `json:"open_positions"`
	ClosedPositions  int             `json:"closed_positions"`
	WinningPositions int             `json:"winning_positions"`
	LosingPositions  int             `json:"losing_positions"`
	BuyTradeCount    int             `json:"buy_trade_count"`
	SellTradeCount   int             `json:"sell_trade_count"`

	// Realized PnL of closed positions; nil when none are closed.
	AvgPositionPnL   *decimal.Decimal `json:"avg_position_pnl"`
	BestPositionPnL  *decimal.Decimal `json:"best_position_pnl"`
	WorstPositionPnL *decimal.Decimal `json:"worst_position_pnl"`

	Windows Windows `json:"windows"`
}

// SummaryRecord is a cached summary row keyed by entity id.
// CalcVersion increases by one on every upsert for the same entity.
type SummaryRecord struct {
	EntityID     string      `json:"entity_id"`
	Summary      Summary     `json:"summary"`
	Positions    []*Position `json:"positions,omitempty"`
	CalculatedAt time.Time   `json:"calculated_at"`
	CalcVersion  int64       `json:"calc_version"`
}

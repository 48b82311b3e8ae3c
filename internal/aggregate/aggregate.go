// Package aggregate reduces settled positions into portfolio-level totals:
// volume, realized and unrealized PnL, ROI, win rate and position counts,
// plus per-position extremes and lifetime/30-day/7-day window stats.
package aggregate

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atmx/pnl-engine/internal/model"
)

// ErrNoPositions is returned when there is nothing to aggregate. Callers
// must be able to tell "nothing to show" from "computed to zero".
var ErrNoPositions = errors.New("aggregate: no positions")

// Look-back windows, measured back from the latest trade.
const (
	Window30d = 30 * 24 * time.Hour
	Window7d  = 7 * 24 * time.Hour
)

// Summarize reduces settled positions into a summary. It also fills in each
// open position's UnrealizedPnL when a mark price is known. buys and sells
// are the accepted order counts per side.
func Summarize(positions []*model.Position, buys, sells int) (model.Summary, error) {
	if len(positions) == 0 {
		return model.Summary{}, ErrNoPositions
	}

	s := model.Summary{
		BuyTradeCount:  buys,
		SellTradeCount: sells,
	}

	for _, p := range positions {
		s.TotalVolume = s.TotalVolume.Add(p.TotalCost)
		s.RealizedPnL = s.RealizedPnL.Add(p.RealizedPnL)
		p.UnrealizedPnL = nil

		if p.IsOpen() {
			s.OpenPositions++
			if p.CurrentPrice != nil {
				u := p.RemainingSize.Mul(*p.CurrentPrice).Sub(p.RemainingCost)
				p.UnrealizedPnL = &u
				s.UnrealizedPnL = s.UnrealizedPnL.Add(u)
			}
			continue
		}

		s.ClosedPositions++
		switch p.RealizedPnL.Sign() {
		case 1:
			s.WinningPositions++
		case -1:
			s.LosingPositions++
		}
	}

	s.TotalPnL = s.RealizedPnL.Add(s.UnrealizedPnL)
	positionExtremes(&s, positions)
	s.Windows = windows(positions)

	if s.ClosedPositions > 0 {
		s.WinRate = decimal.NewFromInt(int64(s.WinningPositions)).
			Div(decimal.NewFromInt(int64(s.ClosedPositions)))
	}
	if s.TotalVolume.IsPositive() {
		s.ROI = s.TotalPnL.Div(s.TotalVolume)
	}

	return s, nil
}

// positionExtremes fills the average, best and worst realized PnL over
// closed positions.
func positionExtremes(s *model.Summary, positions []*model.Position) {
	var (
		sum         decimal.Decimal
		best, worst decimal.Decimal
		n           int64
	)
	for _, p := range positions {
		if p.IsOpen() {
			continue
		}
		if n == 0 || p.RealizedPnL.GreaterThan(best) {
			best = p.RealizedPnL
		}
		if n == 0 || p.RealizedPnL.LessThan(worst) {
			worst = p.RealizedPnL
		}
		sum = sum.Add(p.RealizedPnL)
		n++
	}
	if n == 0 {
		return
	}
	avg := sum.Div(decimal.NewFromInt(n))
	s.AvgPositionPnL = &avg
	s.BestPositionPnL = &best
	s.WorstPositionPnL = &worst
}

func windows(positions []*model.Position) model.Windows {
	var w model.Windows
	for _, p := range positions {
		if last := p.LastTradeAt(); last.After(w.AsOf) {
			w.AsOf = last
		}
	}
	w.Lifetime = window(positions, time.Time{})
	w.D30 = window(positions, w.AsOf.Add(-Window30d))
	w.D7 = window(positions, w.AsOf.Add(-Window7d))
	return w
}

// window reduces the positions whose latest trade is at or after since.
// Realized PnL only: open marks are not attributed to a window.
func window(positions []*model.Position, since time.Time) model.WindowStats {
	var (
		ws           model.WindowStats
		closed, wins int64
	)
	for _, p := range positions {
		if p.LastTradeAt().Before(since) {
			continue
		}
		ws.Positions++
		ws.Trades += len(p.Buys) + len(p.Sells)
		ws.RealizedPnL = ws.RealizedPnL.Add(p.RealizedPnL)
		ws.Volume = ws.Volume.Add(p.TotalCost)
		if p.IsClosed() {
			closed++
			if p.RealizedPnL.IsPositive() {
				wins++
			}
		}
	}

	if closed > 0 {
		ws.WinRate = decimal.NewFromInt(wins).Div(decimal.NewFromInt(closed))
	}
	if ws.Volume.IsPositive() {
		ws.ROI = ws.RealizedPnL.Div(ws.Volume)
	}
	if ws.Trades > 0 {
		ws.AvgPnLPerTrade = ws.RealizedPnL.Div(decimal.NewFromInt(int64(ws.Trades)))
	}
	return ws
}

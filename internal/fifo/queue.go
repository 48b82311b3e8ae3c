package fifo

import (
	"github.com/shopspring/decimal"

	"github.com/atmx/pnl-engine/internal/model"
)

// lotQueue walks an immutable slice of buy lots with a cursor. Only the head
// lot's unconsumed size and cost are tracked; the lots themselves are never
// written, so the same Position can be settled any number of times.
type lotQueue struct {
	lots []model.Lot
	head int
	size decimal.Decimal // unconsumed size of lots[head]
	cost decimal.Decimal // unconsumed cost of lots[head]
}

func newLotQueue(lots []model.Lot) *lotQueue {
	q := &lotQueue{lots: lots}
	q.load()
	return q
}

func (q *lotQueue) load() {
	if q.head < len(q.lots) {
		q.size = q.lots[q.head].Size
		q.cost = q.lots[q.head].Amount
	} else {
		q.size = decimal.Zero
		q.cost = decimal.Zero
	}
}

func (q *lotQueue) empty() bool {
	return q.head >= len(q.lots)
}

// take consumes up to want shares from the head lot and returns the matched
// size and its cost. When the head drops below Epsilon it is popped and any
// residual cost is folded into this match, so cost is conserved exactly.
func (q *lotQueue) take(want decimal.Decimal) (size, cost decimal.Decimal) {
	size = decimal.Min(want, q.size)
	left := q.size.Sub(size)

	if left.LessThan(model.Epsilon) {
		cost = q.cost
		q.head++
		q.load()
		return size, cost
	}

	cost = q.cost.Mul(size).Div(q.size)
	q.size = left
	q.cost = q.cost.Sub(cost)
	return size, cost
}

// remaining sums the unmatched tail: the partial head plus every later lot.
func (q *lotQueue) remaining() (size, cost decimal.Decimal) {
	if q.empty() {
		return decimal.Zero, decimal.Zero
	}
	size, cost = q.size, q.cost
	for _, lot := range q.lots[q.head+1:] {
		size = size.Add(lot.Size)
		cost = cost.Add(lot.Amount)
	}
	return size, cost
}

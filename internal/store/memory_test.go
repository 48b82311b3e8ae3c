package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atmx/pnl-engine/internal/model"
)

var t0 = time.Date(2025, 2, 9, 18, 0, 0, 0, time.UTC)

func testOrder(id, entity string, minute int) *model.Order {
	return &model.Order{
		ID:        id,
		EntityID:  entity,
		Side:      "buy",
		MarketID:  "m1",
		Outcome:   "Yes",
		Timestamp: t0.Add(time.Duration(minute) * time.Minute),
	}
}

func TestMemoryStore_OrdersSortedWithInsertionTieBreak(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	for _, o := range []*model.Order{
		testOrder("late", "u1", 5),
		testOrder("tie-a", "u1", 1),
		testOrder("other", "u2", 0),
		testOrder("tie-b", "u1", 1),
		testOrder("early", "u1", 0),
	} {
		if err := s.InsertOrder(ctx, o); err != nil {
			t.Fatalf("insert %s: %v", o.ID, err)
		}
	}

	orders, err := s.GetOrdersByEntity(ctx, "u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"early", "tie-a", "tie-b", "late"}
	if len(orders) != len(want) {
		t.Fatalf("expected %d orders, got %d", len(want), len(orders))
	}
	for i, id := range want {
		if orders[i].ID != id {
			t.Errorf("position %d: expected %s, got %s", i, id, orders[i].ID)
		}
	}

	entities, _ := s.ListEntities(ctx)
	if len(entities) != 2 || entities[0] != "u1" || entities[1] != "u2" {
		t.Errorf("expected [u1 u2], got %v", entities)
	}
}

func TestMemoryStore_InsertOrderRequiresEntity(t *testing.T) {
	s := NewMemoryStore()
	if err := s.InsertOrder(context.Background(), testOrder("x", "", 0)); err == nil {
		t.Error("expected error for order without entity id")
	}
}

func TestMemoryStore_MarketMetas(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	meta := &model.MarketMeta{
		MarketID:      "m1",
		Closed:        true,
		Outcomes:      []model.Outcome{"yes", "no"},
		OutcomePrices: []float64{1, 0},
	}
	if err := s.UpsertMarketMeta(ctx, meta); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := s.GetMarketMetas(ctx, []model.MarketID{"m1", "missing"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 meta, got %d", len(got))
	}
	m := got["m1"]
	if !m.Closed || m.UpdatedAt.IsZero() {
		t.Errorf("unexpected stored meta: %+v", m)
	}

	// Returned slices are copies.
	m.OutcomePrices[0] = 0.5
	again, _ := s.GetMarketMetas(ctx, []model.MarketID{"m1"})
	if again["m1"].OutcomePrices[0] != 1 {
		t.Error("mutating a returned meta must not change the store")
	}

	if err := s.UpsertMarketMeta(ctx, &model.MarketMeta{}); err == nil {
		t.Error("expected error for meta without market id")
	}
}

func TestMemoryStore_SummaryVersioning(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	now := t0
	s.now = func() time.Time { return now }

	_, err := s.GetSummary(ctx, "u1")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	rec := &model.SummaryRecord{
		EntityID: "u1",
		Summary:  model.Summary{RealizedPnL: decimal.NewFromInt(22)},
	}
	first, err := s.UpsertSummary(ctx, rec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.CalcVersion != 1 || !first.CalculatedAt.Equal(t0) {
		t.Errorf("expected version 1 at t0, got %d at %s", first.CalcVersion, first.CalculatedAt)
	}

	now = t0.Add(time.Minute)
	second, _ := s.UpsertSummary(ctx, rec)
	if second.CalcVersion != 2 || !second.CalculatedAt.Equal(now) {
		t.Errorf("expected version 2 at t0+1m, got %d at %s", second.CalcVersion, second.CalculatedAt)
	}

	got, err := s.GetSummary(ctx, "u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.CalcVersion != 2 || !got.Summary.RealizedPnL.Equal(decimal.NewFromInt(22)) {
		t.Errorf("unexpected stored summary: %+v", got)
	}

	// Caller-supplied version is ignored.
	rec.CalcVersion = 99
	third, _ := s.UpsertSummary(ctx, rec)
	if third.CalcVersion != 3 {
		t.Errorf("expected version 3, got %d", third.CalcVersion)
	}
}

package model

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"
)

func TestNewOutcome_Normalizes(t *testing.T) {
	tests := []struct {
		raw  string
		want Outcome
	}{
		{"Yes", "yes"},
		{"  YES  ", "yes"},
		{"\tNo\n", "no"},
		{"Kansas City Chiefs", "kansas city chiefs"},
		{"STRASSE", "strasse"},
		{"", ""},
		{"   ", ""},
	}
	for _, tt := range tests {
		if got := NewOutcome(tt.raw); got != tt.want {
			t.Errorf("NewOutcome(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func TestNewPositionKey(t *testing.T) {
	k := NewPositionKey(NewMarketID(" 0xABC "), NewOutcome("Yes"))
	if k != "0xabc::yes" {
		t.Errorf("expected 0xabc::yes, got %s", k)
	}

	if NewPositionKey("", "yes") != "" {
		t.Error("empty market should yield empty key")
	}
	if NewPositionKey("m1", "") != "" {
		t.Error("empty outcome should yield empty key")
	}
}

func TestPositionKey_OutcomesAreDistinct(t *testing.T) {
	m := NewMarketID("m1")
	if NewPositionKey(m, NewOutcome("Yes")) == NewPositionKey(m, NewOutcome("No")) {
		t.Error("two outcomes of one market must not share a key")
	}
}

func TestMarketMeta_PriceFor(t *testing.T) {
	meta := &MarketMeta{
		Outcomes:      []Outcome{"yes", "no"},
		OutcomePrices: []float64{0.8, 0.2},
	}
	if p, ok := meta.PriceFor("no"); !ok || p != 0.2 {
		t.Errorf("expected 0.2, got %v (ok=%v)", p, ok)
	}
	if _, ok := meta.PriceFor("maybe"); ok {
		t.Error("unknown outcome should not resolve")
	}

	misaligned := &MarketMeta{
		Outcomes:      []Outcome{"yes", "no"},
		OutcomePrices: []float64{1},
	}
	if _, ok := misaligned.PriceFor("yes"); ok {
		t.Error("misaligned arrays should not resolve")
	}

	var nilMeta *MarketMeta
	if _, ok := nilMeta.PriceFor("yes"); ok {
		t.Error("nil metadata should not resolve")
	}

	nan := &MarketMeta{Outcomes: []Outcome{"yes"}, OutcomePrices: []float64{math.NaN()}}
	if p, ok := nan.PriceFor("yes"); !ok || !math.IsNaN(p) {
		t.Error("PriceFor returns the raw value; finiteness is the caller's check")
	}
}

func TestPosition_OpenClosed(t *testing.T) {
	p := &Position{RemainingSize: decimal.NewFromFloat(0.000001)}
	if p.IsOpen() {
		t.Error("remaining size below epsilon should count as closed")
	}

	p.RemainingSize = decimal.NewFromInt(5)
	if !p.IsOpen() {
		t.Error("remaining size above epsilon should count as open")
	}

	p.ClosedByResolution = true
	if !p.IsClosed() {
		t.Error("resolution-closed position should count as closed")
	}
}

func TestPosition_AvgEntryPrice(t *testing.T) {
	p := &Position{
		TotalCost:      decimal.NewFromInt(65),
		TotalBuyShares: decimal.NewFromInt(150),
	}
	want := decimal.NewFromInt(65).Div(decimal.NewFromInt(150))
	if !p.AvgEntryPrice().Equal(want) {
		t.Errorf("expected %s, got %s", want, p.AvgEntryPrice())
	}

	empty := &Position{}
	if !empty.AvgEntryPrice().IsZero() {
		t.Error("no buys should give zero average entry")
	}
}

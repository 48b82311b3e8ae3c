package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/atmx/pnl-engine/internal/engine"
)

func writeTemp(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadAndSummarize(t *testing.T) {
	ordersPath := writeTemp(t, "orders.json", `[
		{"side":"buy","market_id":"0xabc","outcome":"Yes","price":0.4,"size":100,"timestamp":"2025-02-09T18:00:00Z"},
		{"side":"buy","market_id":"0xabc","outcome":"Yes","price":0.5,"size":50,"timestamp":"2025-02-09T18:01:00Z"},
		{"side":"sell","market_id":"0xabc","outcome":"Yes","price":0.6,"size":120,"timestamp":"2025-02-09T18:02:00Z"},
		{"side":"hold","market_id":"0xabc","outcome":"Yes","price":0.6,"size":1,"timestamp":"2025-02-09T18:03:00Z"}
	]`)
	marketsPath := writeTemp(t, "markets.json", `[
		{"conditionId":"0xABC","closed":true,"outcomes":"[\"Yes\",\"No\"]","outcomePrices":"[\"1\",\"0\"]"}
	]`)

	orders, err := loadOrders(ordersPath)
	if err != nil {
		t.Fatalf("load orders: %v", err)
	}
	metas, err := loadMetas(marketsPath)
	if err != nil {
		t.Fatalf("load metas: %v", err)
	}

	res, err := engine.Summarize(orders, metas)
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}

	var buf bytes.Buffer
	writeText(&buf, res)
	out := buf.String()

	for _, want := range []string{
		"0xabc::yes",
		"resolved (outcome_prices)",
		"Realized PnL:    37.0000",
		"invalid_side=1",
		"Position PnL:    avg 37.0000, best 37.0000, worst 37.0000",
		"Windows ending 2025-02-09T18:02:00Z",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestLoadOrders_Malformed(t *testing.T) {
	path := writeTemp(t, "orders.json", `{"not":"an array"}`)
	if _, err := loadOrders(path); err == nil {
		t.Error("expected error for non-array orders file")
	}
}

package portfolio_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"github.com/atmx/pnl-engine/internal/model"
	"github.com/atmx/pnl-engine/internal/portfolio"
	"github.com/atmx/pnl-engine/internal/recompute"
	"github.com/atmx/pnl-engine/internal/store"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

// newTestEnv creates a portfolio Service with in-memory store and chi router.
func newTestEnv(t *testing.T, hub *portfolio.WSHub) (*store.MemoryStore, chi.Router) {
	t.Helper()
	ms := store.NewMemoryStore()
	var notifier recompute.Notifier
	if hub != nil {
		notifier = hub
	}
	svc := portfolio.NewService(ms, recompute.NewService(ms, 2, notifier))

	r := chi.NewRouter()
	r.Route("/api/v1", func(r chi.Router) {
		svc.Routes(r)
		if hub != nil {
			r.Get("/ws", hub.HandleWS)
		}
	})
	return ms, r
}

func do(t *testing.T, router chi.Router, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func postOrder(t *testing.T, router chi.Router, entity, side string, price, size float64, minute int) {
	t.Helper()
	ts := time.Date(2025, 2, 9, 18, minute, 0, 0, time.UTC)
	body, _ := json.Marshal(map[string]any{
		"entity_id": entity,
		"side":      side,
		"market_id": "0xABC",
		"outcome":   "Yes",
		"price":     price,
		"size":      size,
		"timestamp": ts,
	})
	w := do(t, router, "POST", "/api/v1/orders", string(body))
	if w.Code != http.StatusCreated {
		t.Fatalf("ingest order: expected 201, got %d: %s", w.Code, w.Body.String())
	}
}

func seedPartialSell(t *testing.T, router chi.Router, entity string) {
	t.Helper()
	postOrder(t, router, entity, "buy", 0.40, 100, 0)
	postOrder(t, router, entity, "buy", 0.50, 50, 1)
	postOrder(t, router, entity, "sell", 0.60, 120, 2)
}

// --- Ingest tests ---

func TestIngestOrder_AssignsID(t *testing.T) {
	ms, router := newTestEnv(t, nil)

	w := do(t, router, "POST", "/api/v1/orders",
		`{"entity_id":"u1","side":"buy","market_id":"m1","outcome":"Yes","price":0.4,"size":10}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	var o model.Order
	json.NewDecoder(w.Body).Decode(&o)
	if o.ID == "" {
		t.Error("expected server-assigned id")
	}
	if o.Timestamp.IsZero() {
		t.Error("expected server-assigned timestamp")
	}

	orders, _ := ms.GetOrdersByEntity(context.Background(), "u1")
	if len(orders) != 1 {
		t.Errorf("expected 1 stored order, got %d", len(orders))
	}
}

func TestIngestOrder_Validation(t *testing.T) {
	_, router := newTestEnv(t, nil)

	tests := []struct {
		name string
		body string
	}{
		{"not json", `{`},
		{"missing entity", `{"side":"buy","market_id":"m1"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, router, "POST", "/api/v1/orders", tt.body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", w.Code)
			}
		})
	}
}

// --- Market metadata tests ---

func TestPutMarket_GammaShape(t *testing.T) {
	ms, router := newTestEnv(t, nil)

	w := do(t, router, "PUT", "/api/v1/markets/0xabc",
		`{"conditionId":"0xABC","closed":true,"outcomes":"[\"Yes\",\"No\"]","outcomePrices":"[\"1\",\"0\"]"}`)
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", w.Code, w.Body.String())
	}

	metas, _ := ms.GetMarketMetas(context.Background(), []model.MarketID{"0xabc"})
	m, ok := metas["0xabc"]
	if !ok || !m.Closed || len(m.Outcomes) != 2 {
		t.Errorf("unexpected stored meta: %+v (found=%v)", m, ok)
	}
}

func TestPutMarket_Rejects(t *testing.T) {
	_, router := newTestEnv(t, nil)

	tests := []struct {
		name, path, body string
	}{
		{"malformed", "/api/v1/markets/m1", `{"closed":`},
		{"missing id", "/api/v1/markets/m1", `{"closed":true}`},
		{"id mismatch", "/api/v1/markets/m1", `{"market_id":"m2","closed":true}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, router, "PUT", tt.path, tt.body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", w.Code)
			}
		})
	}
}

// --- Summary tests ---

func TestSummary_RecomputeThenGet(t *testing.T) {
	_, router := newTestEnv(t, nil)
	seedPartialSell(t, router, "u1")

	w := do(t, router, "GET", "/api/v1/summary/u1", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 before recompute, got %d", w.Code)
	}

	w = do(t, router, "POST", "/api/v1/summary/u1/recompute", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var rec model.SummaryRecord
	json.NewDecoder(w.Body).Decode(&rec)
	if !rec.Summary.RealizedPnL.Equal(d(22)) {
		t.Errorf("expected realized 22, got %s", rec.Summary.RealizedPnL)
	}
	if rec.CalcVersion != 1 {
		t.Errorf("expected version 1, got %d", rec.CalcVersion)
	}

	w = do(t, router, "GET", "/api/v1/summary/u1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var cached model.SummaryRecord
	json.NewDecoder(w.Body).Decode(&cached)
	if !cached.Summary.TotalVolume.Equal(d(65)) {
		t.Errorf("expected volume 65, got %s", cached.Summary.TotalVolume)
	}
}

func TestSummary_ResolvedByMetadata(t *testing.T) {
	_, router := newTestEnv(t, nil)
	seedPartialSell(t, router, "u1")

	w := do(t, router, "PUT", "/api/v1/markets/0xabc",
		`{"condition_id":"0xabc","status":"resolved","winning_side":{"label":"Yes"}}`)
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", w.Code, w.Body.String())
	}

	w = do(t, router, "POST", "/api/v1/summary/u1/recompute", "")
	var rec model.SummaryRecord
	json.NewDecoder(w.Body).Decode(&rec)
	if !rec.Summary.RealizedPnL.Equal(d(37)) {
		t.Errorf("expected realized 37, got %s", rec.Summary.RealizedPnL)
	}
	if !rec.Summary.WinRate.Equal(d(1)) {
		t.Errorf("expected win rate 1, got %s", rec.Summary.WinRate)
	}
}

func TestRecomputeEntity_NoData(t *testing.T) {
	_, router := newTestEnv(t, nil)

	w := do(t, router, "POST", "/api/v1/summary/ghost/recompute", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

// --- Positions tests ---

func TestGetPositions(t *testing.T) {
	ms, router := newTestEnv(t, nil)
	seedPartialSell(t, router, "u1")
	postOrder(t, router, "u1", "buy", 0, 10, 3) // dropped: zero price

	w := do(t, router, "GET", "/api/v1/positions/u1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp portfolio.PositionsResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Positions) != 1 {
		t.Fatalf("expected 1 position, got %d", len(resp.Positions))
	}
	p := resp.Positions[0]
	if p.Key != "0xabc::yes" {
		t.Errorf("expected key 0xabc::yes, got %s", p.Key)
	}
	if !p.RemainingSize.Equal(d(30)) || !p.RemainingCost.Equal(d(15)) {
		t.Errorf("expected 30 shares at cost 15 remaining, got %s / %s", p.RemainingSize, p.RemainingCost)
	}
	if resp.Dropped["invalid_price"] != 1 {
		t.Errorf("expected 1 invalid_price drop, got %v", resp.Dropped)
	}

	// Live computation stores nothing.
	if _, err := ms.GetSummary(context.Background(), "u1"); err == nil {
		t.Error("GET positions must not store a summary")
	}
}

func TestGetPositions_NoData(t *testing.T) {
	_, router := newTestEnv(t, nil)
	w := do(t, router, "GET", "/api/v1/positions/ghost", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

// --- Batch recompute tests ---

func TestRecomputeAll(t *testing.T) {
	_, router := newTestEnv(t, nil)
	seedPartialSell(t, router, "u1")
	seedPartialSell(t, router, "u2")

	w := do(t, router, "POST", "/api/v1/recompute", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var report recompute.Report
	json.NewDecoder(w.Body).Decode(&report)
	if report.Total != 2 || report.Computed != 2 {
		t.Errorf("unexpected report: %+v", report)
	}

	body, _ := json.Marshal(portfolio.RecomputeRequest{EntityIDs: []string{"u2", "ghost"}})
	w = do(t, router, "POST", "/api/v1/recompute", string(body))
	json.NewDecoder(w.Body).Decode(&report)
	if report.Total != 2 || report.Computed != 1 || report.Skipped != 1 {
		t.Errorf("unexpected report: %+v", report)
	}

	w = do(t, router, "POST", "/api/v1/recompute", `{"entity_ids":`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for malformed body, got %d", w.Code)
	}
}

// --- WebSocket tests ---

func TestWS_SummaryUpdated(t *testing.T) {
	hub := portfolio.NewWSHub()
	go hub.Run()
	_, router := newTestEnv(t, hub)

	srv := httptest.NewServer(router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	seedPartialSell(t, router, "u1")
	w := do(t, router, "POST", "/api/v1/summary/u1/recompute", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg portfolio.WSMessage
	if err := json.NewDecoder(bytes.NewReader(data)).Decode(&msg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msg.Type != "summary_updated" || msg.EntityID != "u1" || msg.CalcVersion != 1 {
		t.Errorf("unexpected message: %+v", msg)
	}
	if msg.RealizedPnL != "22" {
		t.Errorf("expected realized 22, got %s", msg.RealizedPnL)
	}
}

// Package portfolio provides the HTTP handlers for ingesting orders and
// market metadata and for querying per-entity PnL summaries, plus the
// WebSocket hub that pushes summary updates.
//
// All monetary values use shopspring/decimal and are rendered as strings.
package portfolio

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/atmx/pnl-engine/internal/engine"
	"github.com/atmx/pnl-engine/internal/marketmeta"
	"github.com/atmx/pnl-engine/internal/metrics"
	"github.com/atmx/pnl-engine/internal/model"
	"github.com/atmx/pnl-engine/internal/normalize"
	"github.com/atmx/pnl-engine/internal/recompute"
	"github.com/atmx/pnl-engine/internal/store"
)

// maxBodyBytes caps request bodies for ingest and metadata uploads.
const maxBodyBytes = 1 << 20

// Service serves the portfolio API.
type Service struct {
	store     store.Store
	recompute *recompute.Service
}

// NewService creates a new portfolio service.
func NewService(st store.Store, rc *recompute.Service) *Service {
	return &Service{store: st, recompute: rc}
}

// Routes mounts the API handlers on r.
func (s *Service) Routes(r chi.Router) {
	r.Post("/orders", s.IngestOrder)
	r.Put("/markets/{marketID}", s.PutMarket)
	r.Get("/summary/{entityID}", s.GetSummary)
	r.Post("/summary/{entityID}/recompute", s.RecomputeEntity)
	r.Get("/positions/{entityID}", s.GetPositions)
	r.Post("/recompute", s.RecomputeAll)
}

// --- Request/Response types ---

// RecomputeRequest is the JSON body for POST /recompute.
// An empty list means every known entity.
type RecomputeRequest struct {
	EntityIDs []string `json:"entity_ids"`
}

// PositionsResponse is the live per-position breakdown for one entity.
type PositionsResponse struct {
	EntityID      string                   `json:"entity_id"`
	Summary       model.Summary            `json:"summary"`
	Positions     []*model.Position        `json:"positions"`
	Dropped       map[normalize.Reason]int `json:"dropped"`
	Disagreements []model.PositionKey      `json:"disagreements"`
}

// --- HTTP Handlers ---

// IngestOrder handles POST /api/v1/orders
// Stores one raw order. Validation of prices and sizes happens at
// computation time; malformed orders are kept and later dropped.
func (s *Service) IngestOrder(w http.ResponseWriter, r *http.Request) {
	var o model.Order
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&o); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if strings.TrimSpace(o.EntityID) == "" {
		writeError(w, "entity_id is required", http.StatusBadRequest)
		return
	}
	if o.ID == "" {
		o.ID = uuid.New().String()
	}
	if o.Timestamp.IsZero() {
		o.Timestamp = time.Now().UTC()
	}

	if err := s.store.InsertOrder(r.Context(), &o); err != nil {
		slog.Error("order insert failed", "entity", o.EntityID, "err", err)
		writeError(w, "failed to record order", http.StatusInternalServerError)
		return
	}
	metrics.OrdersIngested.Inc()

	slog.Info("order ingested",
		"id", o.ID,
		"entity", o.EntityID,
		"market", o.MarketID,
		"side", o.Side,
	)

	writeJSON(w, http.StatusCreated, o)
}

// PutMarket handles PUT /api/v1/markets/{marketID}
// Accepts any supported upstream metadata shape.
func (s *Service) PutMarket(w http.ResponseWriter, r *http.Request) {
	pathID := model.NewMarketID(chi.URLParam(r, "marketID"))

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	meta, err := marketmeta.Decode(body)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if meta.MarketID != pathID {
		writeError(w, "market id in body does not match path", http.StatusBadRequest)
		return
	}

	if err := s.store.UpsertMarketMeta(r.Context(), &meta); err != nil {
		slog.Error("market meta upsert failed", "market", meta.MarketID, "err", err)
		writeError(w, "failed to store market metadata", http.StatusInternalServerError)
		return
	}

	slog.Info("market metadata updated",
		"market", meta.MarketID,
		"closed", meta.Closed,
		"winner", meta.WinningOutcome,
	)

	// Outcome prices may hold NaN, which JSON cannot carry; nothing is echoed.
	w.WriteHeader(http.StatusNoContent)
}

// GetSummary handles GET /api/v1/summary/{entityID}
func (s *Service) GetSummary(w http.ResponseWriter, r *http.Request) {
	entityID := chi.URLParam(r, "entityID")

	rec, err := s.store.GetSummary(r.Context(), entityID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, "summary not found", http.StatusNotFound)
		return
	}
	if err != nil {
		writeError(w, "failed to load summary", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

// RecomputeEntity handles POST /api/v1/summary/{entityID}/recompute
func (s *Service) RecomputeEntity(w http.ResponseWriter, r *http.Request) {
	entityID := chi.URLParam(r, "entityID")

	rec, err := s.recompute.Recompute(r.Context(), entityID)
	if errors.Is(err, engine.ErrNoData) {
		writeError(w, "no usable orders for entity", http.StatusNotFound)
		return
	}
	if err != nil {
		slog.Error("recompute failed", "entity", entityID, "err", err)
		writeError(w, "failed to recompute summary", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

// GetPositions handles GET /api/v1/positions/{entityID}
// Computes the ledger live; nothing is stored.
func (s *Service) GetPositions(w http.ResponseWriter, r *http.Request) {
	entityID := chi.URLParam(r, "entityID")

	res, err := s.recompute.Compute(r.Context(), entityID)
	if errors.Is(err, engine.ErrNoData) {
		writeError(w, "no usable orders for entity", http.StatusNotFound)
		return
	}
	if err != nil {
		slog.Error("position computation failed", "entity", entityID, "err", err)
		writeError(w, "failed to compute positions", http.StatusInternalServerError)
		return
	}

	disagreements := res.Disagreements
	if disagreements == nil {
		disagreements = []model.PositionKey{}
	}

	writeJSON(w, http.StatusOK, PositionsResponse{
		EntityID:      entityID,
		Summary:       res.Summary,
		Positions:     res.Positions,
		Dropped:       res.Dropped,
		Disagreements: disagreements,
	})
}

// RecomputeAll handles POST /api/v1/recompute
func (s *Service) RecomputeAll(w http.ResponseWriter, r *http.Request) {
	var req RecomputeRequest
	err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req)
	if err != nil && !errors.Is(err, io.EOF) {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	report, err := s.recompute.RecomputeAll(r.Context(), req.EntityIDs)
	if err != nil {
		slog.Error("recompute run failed", "run_id", report.RunID, "err", err)
		writeError(w, "recompute run failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, report)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

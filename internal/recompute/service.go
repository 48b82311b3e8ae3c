// Package recompute loads an entity's order history and market metadata,
// runs the engine, and stores the resulting summary with a freshness
// timestamp and calculation version.
package recompute

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/atmx/pnl-engine/internal/engine"
	"github.com/atmx/pnl-engine/internal/metrics"
	"github.com/atmx/pnl-engine/internal/model"
	"github.com/atmx/pnl-engine/internal/store"
	"github.com/atmx/pnl-engine/internal/tracing"
)

// Notifier is told about every stored summary. The WebSocket hub implements it.
type Notifier interface {
	SummaryUpdated(rec *model.SummaryRecord)
}

// Report tallies one RecomputeAll run.
type Report struct {
	RunID    string   `json:"run_id"`
	Total    int      `json:"total"`
	Computed int      `json:"computed"`
	Skipped  int      `json:"skipped"` // entities with no usable orders
	Failed   int      `json:"failed"`
	Errors   []string `json:"errors,omitempty"`
}

// Service recomputes summaries. Each entity is computed independently, so
// RecomputeAll runs up to workers entities at once.
type Service struct {
	store    store.Store
	workers  int
	notifier Notifier // optional
}

// NewService creates a recompute service. Pass nil for n if nothing needs
// to hear about updates.
func NewService(st store.Store, workers int, n Notifier) *Service {
	if workers < 1 {
		workers = 1
	}
	return &Service{store: st, workers: workers, notifier: n}
}

// Compute runs the engine for one entity without storing anything.
func (s *Service) Compute(ctx context.Context, entityID string) (*engine.Result, error) {
	orders, err := s.store.GetOrdersByEntity(ctx, entityID)
	if err != nil {
		return nil, fmt.Errorf("load orders for %s: %w", entityID, err)
	}

	metas, err := s.store.GetMarketMetas(ctx, engine.MarketIDs(orders))
	if err != nil {
		return nil, fmt.Errorf("load market metadata for %s: %w", entityID, err)
	}

	res, err := engine.Summarize(orders, metas)
	if err != nil {
		return nil, err
	}

	for reason, n := range res.Dropped {
		metrics.OrdersDropped.WithLabelValues(string(reason)).Add(float64(n))
	}
	for _, key := range res.Disagreements {
		metrics.ResolutionDisagreements.Inc()
		slog.Warn("resolution mark price disagrees with payoff",
			"entity", entityID,
			"position", key,
		)
	}
	return res, nil
}

// Recompute computes and stores one entity's summary. engine.ErrNoData is
// returned as is and nothing is stored.
func (s *Service) Recompute(ctx context.Context, entityID string) (rec *model.SummaryRecord, err error) {
	ctx, span := tracing.StartSpan(ctx, "recompute.entity", attribute.String("entity_id", entityID))
	start := time.Now()
	defer func() {
		metrics.RecomputeLatency.Observe(time.Since(start).Seconds())
		switch {
		case err == nil:
			metrics.SummariesTotal.WithLabelValues("computed").Inc()
		case errors.Is(err, engine.ErrNoData):
			metrics.SummariesTotal.WithLabelValues("skipped").Inc()
		default:
			metrics.SummariesTotal.WithLabelValues("failed").Inc()
		}
		tracing.EndSpan(span, err)
	}()

	res, err := s.Compute(ctx, entityID)
	if err != nil {
		return nil, err
	}

	for _, p := range res.Positions {
		if p.ClosedByResolution {
			metrics.ResolutionSettlements.WithLabelValues(p.ResolutionSource).Inc()
		}
	}

	rec, err = s.store.UpsertSummary(ctx, &model.SummaryRecord{
		EntityID:  entityID,
		Summary:   res.Summary,
		Positions: res.Positions,
	})
	if err != nil {
		return nil, fmt.Errorf("store summary for %s: %w", entityID, err)
	}

	span.SetAttributes(attribute.Int64("calc_version", rec.CalcVersion))
	slog.Info("summary recomputed",
		"entity", entityID,
		"calc_version", rec.CalcVersion,
		"total_pnl", rec.Summary.TotalPnL.String(),
		"positions", len(res.Positions),
	)

	if s.notifier != nil {
		s.notifier.SummaryUpdated(rec)
	}
	return rec, nil
}

// RecomputeAll recomputes every entity in ids, or every known entity when ids
// is empty. Per-entity failures are tallied, not returned; the error is
// non-nil only when the entity list cannot be loaded or ctx is cancelled.
func (s *Service) RecomputeAll(ctx context.Context, ids []string) (Report, error) {
	report := Report{RunID: uuid.New().String()}

	ctx, span := tracing.StartSpan(ctx, "recompute.all", attribute.String("run_id", report.RunID))
	var err error
	defer func() { tracing.EndSpan(span, err) }()

	if len(ids) == 0 {
		ids, err = s.store.ListEntities(ctx)
		if err != nil {
			err = fmt.Errorf("list entities: %w", err)
			return report, err
		}
	}
	report.Total = len(ids)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)

	for _, id := range ids {
		if gctx.Err() != nil {
			break
		}
		id := id // per-iteration copy; module targets go 1.21 loop semantics
		g.Go(func() error {
			_, rerr := s.Recompute(gctx, id)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case rerr == nil:
				report.Computed++
			case errors.Is(rerr, engine.ErrNoData):
				report.Skipped++
			default:
				report.Failed++
				report.Errors = append(report.Errors, rerr.Error())
			}
			return nil
		})
	}
	_ = g.Wait()

	slog.Info("recompute run finished",
		"run_id", report.RunID,
		"total", report.Total,
		"computed", report.Computed,
		"skipped", report.Skipped,
		"failed", report.Failed,
	)

	if ctx.Err() != nil {
		err = ctx.Err()
		return report, err
	}
	return report, nil
}

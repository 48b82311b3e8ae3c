// Package store defines the persistence interface for the PnL engine.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache), and in-memory (for testing).
package store

import (
	"context"
	"errors"

	"github.com/atmx/pnl-engine/internal/model"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("store: not found")

// Store is the persistence interface. PostgreSQL is the source of truth;
// Redis provides a read-through cache layer.
type Store interface {
	// --- Order history ---

	// InsertOrder appends a raw order. Orders are never updated.
	InsertOrder(ctx context.Context, o *model.Order) error

	// GetOrdersByEntity returns an entity's orders ordered by timestamp,
	// then by insertion sequence.
	GetOrdersByEntity(ctx context.Context, entityID string) ([]model.Order, error)

	// ListEntities returns every entity id that has at least one order.
	ListEntities(ctx context.Context) ([]string, error)

	// --- Market metadata ---

	// UpsertMarketMeta creates or replaces a market's canonical metadata.
	UpsertMarketMeta(ctx context.Context, m *model.MarketMeta) error

	// GetMarketMetas returns the metadata found for ids. Missing ids are
	// simply absent from the result.
	GetMarketMetas(ctx context.Context, ids []model.MarketID) (map[model.MarketID]model.MarketMeta, error)

	// --- Summary cache ---

	// UpsertSummary stores rec, stamping CalculatedAt and assigning the next
	// CalcVersion for the entity. The stored record is returned.
	UpsertSummary(ctx context.Context, rec *model.SummaryRecord) (*model.SummaryRecord, error)

	// GetSummary returns the latest summary for an entity, or ErrNotFound.
	GetSummary(ctx context.Context, entityID string) (*model.SummaryRecord, error)
}

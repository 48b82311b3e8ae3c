package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/atmx/pnl-engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache for summaries and market metadata. A cached summary is replaced only
// when a recompute stores a new one; order writes go straight to the primary.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Writes ---

func (s *CachedStore) InsertOrder(ctx context.Context, o *model.Order) error {
	return s.primary.InsertOrder(ctx, o)
}

func (s *CachedStore) UpsertMarketMeta(ctx context.Context, m *model.MarketMeta) error {
	if err := s.primary.UpsertMarketMeta(ctx, m); err != nil {
		return err
	}
	// Invalidate cache; next read will re-populate with the stored timestamp.
	s.rdb.Del(ctx, marketKey(m.MarketID))
	return nil
}

func (s *CachedStore) UpsertSummary(ctx context.Context, rec *model.SummaryRecord) (*model.SummaryRecord, error) {
	stored, err := s.primary.UpsertSummary(ctx, rec)
	if err != nil {
		return nil, err
	}
	s.cacheSummary(ctx, stored)
	return stored, nil
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetSummary(ctx context.Context, entityID string) (*model.SummaryRecord, error) {
	// Try cache.
	data, err := s.rdb.Get(ctx, summaryKey(entityID)).Bytes()
	if err == nil {
		var rec model.SummaryRecord
		if json.Unmarshal(data, &rec) == nil {
			return &rec, nil
		}
	}

	// Cache miss: read from primary.
	rec, err := s.primary.GetSummary(ctx, entityID)
	if err != nil {
		return nil, err
	}

	s.cacheSummary(ctx, rec)
	return rec, nil
}

func (s *CachedStore) GetMarketMetas(ctx context.Context, ids []model.MarketID) (map[model.MarketID]model.MarketMeta, error) {
	result := make(map[model.MarketID]model.MarketMeta, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = marketKey(id)
	}

	// Try cache; anything missing or undecodable goes to the primary.
	var missing []model.MarketID
	vals, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		missing = ids
	} else {
		for i, v := range vals {
			raw, ok := v.(string)
			var m model.MarketMeta
			if !ok || json.Unmarshal([]byte(raw), &m) != nil {
				missing = append(missing, ids[i])
				continue
			}
			result[ids[i]] = m
		}
	}
	if len(missing) == 0 {
		return result, nil
	}

	// Cache miss.
	fetched, err := s.primary.GetMarketMetas(ctx, missing)
	if err != nil {
		return nil, err
	}
	for id, m := range fetched {
		result[id] = m
		// NaN prices cannot be JSON-encoded; those rows are simply not cached.
		if data, err := json.Marshal(m); err == nil {
			s.rdb.Set(ctx, marketKey(id), data, s.ttl)
		}
	}
	return result, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) GetOrdersByEntity(ctx context.Context, entityID string) ([]model.Order, error) {
	return s.primary.GetOrdersByEntity(ctx, entityID)
}

func (s *CachedStore) ListEntities(ctx context.Context) ([]string, error) {
	return s.primary.ListEntities(ctx)
}

// --- Cache helpers ---

func (s *CachedStore) cacheSummary(ctx context.Context, rec *model.SummaryRecord) {
	if data, err := json.Marshal(rec); err == nil {
		s.rdb.Set(ctx, summaryKey(rec.EntityID), data, s.ttl)
	}
}

func marketKey(id model.MarketID) string { return fmt.Sprintf("pnl:market:%s", id) }
func summaryKey(entityID string) string  { return fmt.Sprintf("pnl:summary:%s", entityID) }

package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/atmx/pnl-engine/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu        sync.RWMutex
	orders    map[string][]model.Order
	metas     map[model.MarketID]model.MarketMeta
	summaries map[string]*model.SummaryRecord

	now func() time.Time
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		orders:    make(map[string][]model.Order),
		metas:     make(map[model.MarketID]model.MarketMeta),
		summaries: make(map[string]*model.SummaryRecord),
		now:       time.Now,
	}
}

func (s *MemoryStore) InsertOrder(_ context.Context, o *model.Order) error {
	if o.EntityID == "" {
		return fmt.Errorf("insert order %s: missing entity id", o.ID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.orders[o.EntityID] = append(s.orders[o.EntityID], *o)
	return nil
}

func (s *MemoryStore) GetOrdersByEntity(_ context.Context, entityID string) ([]model.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// Insertion order is the tie-breaker, so a stable sort on a copy is enough.
	result := make([]model.Order, len(s.orders[entityID]))
	copy(result, s.orders[entityID])
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Timestamp.Before(result[j].Timestamp)
	})
	return result, nil
}

func (s *MemoryStore) ListEntities(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.orders))
	for id := range s.orders {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *MemoryStore) UpsertMarketMeta(_ context.Context, m *model.MarketMeta) error {
	if m.MarketID.IsZero() {
		return fmt.Errorf("upsert market meta: missing market id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored := cloneMeta(*m)
	stored.UpdatedAt = s.now().UTC()
	s.metas[m.MarketID] = stored
	return nil
}

func (s *MemoryStore) GetMarketMetas(_ context.Context, ids []model.MarketID) (map[model.MarketID]model.MarketMeta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[model.MarketID]model.MarketMeta, len(ids))
	for _, id := range ids {
		if m, ok := s.metas[id]; ok {
			result[id] = cloneMeta(m)
		}
	}
	return result, nil
}

func (s *MemoryStore) UpsertSummary(_ context.Context, rec *model.SummaryRecord) (*model.SummaryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *rec
	stored.CalculatedAt = s.now().UTC()
	stored.CalcVersion = 1
	if prev, ok := s.summaries[rec.EntityID]; ok {
		stored.CalcVersion = prev.CalcVersion + 1
	}
	s.summaries[rec.EntityID] = &stored

	out := stored
	return &out, nil
}

func (s *MemoryStore) GetSummary(_ context.Context, entityID string) (*model.SummaryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.summaries[entityID]
	if !ok {
		return nil, fmt.Errorf("summary for %s: %w", entityID, ErrNotFound)
	}
	out := *rec
	return &out, nil
}

// cloneMeta copies the slices so callers cannot mutate stored state.
func cloneMeta(m model.MarketMeta) model.MarketMeta {
	if m.Outcomes != nil {
		m.Outcomes = append([]model.Outcome(nil), m.Outcomes...)
	}
	if m.OutcomePrices != nil {
		m.OutcomePrices = append([]float64(nil), m.OutcomePrices...)
	}
	return m
}

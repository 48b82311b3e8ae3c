package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/atmx/pnl-engine/internal/model"
)

// Schema creates the tables PostgresStore reads and writes. Summary money
// columns are NUMERIC for exact decimal precision.
const Schema = `
CREATE TABLE IF NOT EXISTS pnl_orders (
	seq               BIGSERIAL PRIMARY KEY,
	id                TEXT NOT NULL,
	entity_id         TEXT NOT NULL,
	side              TEXT NOT NULL,
	market_id         TEXT NOT NULL,
	outcome           TEXT NOT NULL,
	price_when_copied DOUBLE PRECISION,
	entry_price       DOUBLE PRECISION,
	price             DOUBLE PRECISION,
	filled_size       DOUBLE PRECISION,
	size              DOUBLE PRECISION,
	timestamp         TIMESTAMPTZ NOT NULL,
	current_price     DOUBLE PRECISION,
	market_resolved   BOOLEAN,
	resolved_outcome  TEXT
);
CREATE INDEX IF NOT EXISTS pnl_orders_entity_idx ON pnl_orders (entity_id, timestamp, seq);

CREATE TABLE IF NOT EXISTS pnl_market_meta (
	market_id       TEXT PRIMARY KEY,
	closed          BOOLEAN NOT NULL,
	winning_outcome TEXT NOT NULL DEFAULT '',
	outcomes        TEXT[],
	outcome_prices  DOUBLE PRECISION[],
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS pnl_summaries (
	entity_id         TEXT PRIMARY KEY,
	realized_pnl      NUMERIC NOT NULL,
	unrealized_pnl    NUMERIC NOT NULL,
	total_pnl         NUMERIC NOT NULL,
	total_volume      NUMERIC NOT NULL,
	roi               NUMERIC NOT NULL,
	win_rate          NUMERIC NOT NULL,
	open_positions    INTEGER NOT NULL,
	closed_positions  INTEGER NOT NULL,
	winning_positions INTEGER NOT NULL,
	losing_positions  INTEGER NOT NULL,
	buy_trade_count   INTEGER NOT NULL,
	sell_trade_count  INTEGER NOT NULL,
	positions         JSONB,
	calculated_at     TIMESTAMPTZ NOT NULL,
	calc_version      BIGINT NOT NULL
);
ALTER TABLE pnl_summaries ADD COLUMN IF NOT EXISTS stats JSONB;`

// summaryStats is the JSONB stats column: per-position extremes and window
// stats. decimal encodes as a JSON string, so values round-trip exactly.
type summaryStats struct {
	AvgPositionPnL   *decimal.Decimal `json:"avg_position_pnl"`
	BestPositionPnL  *decimal.Decimal `json:"best_position_pnl"`
	WorstPositionPnL *decimal.Decimal `json:"worst_position_pnl"`
	Windows          model.Windows    `json:"windows"`
}

// PostgresStore implements Store using PostgreSQL as the source of truth.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Migrate applies Schema. It is safe to run on every start.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (s *PostgresStore) InsertOrder(ctx context.Context, o *model.Order) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO pnl_orders (id, entity_id, side, market_id, outcome,
		                         price_when_copied, entry_price, price,
		                         filled_size, size, timestamp,
		                         current_price, market_resolved, resolved_outcome)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		o.ID, o.EntityID, o.Side, o.MarketID, o.Outcome,
		o.PriceWhenCopied, o.EntryPrice, o.Price,
		o.FilledSize, o.Size, o.Timestamp,
		o.CurrentPrice, o.MarketResolved, o.ResolvedOutcome,
	)
	if err != nil {
		return fmt.Errorf("insert order %s: %w", o.ID, err)
	}
	return nil
}

func (s *PostgresStore) GetOrdersByEntity(ctx context.Context, entityID string) ([]model.Order, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, entity_id, side, market_id, outcome,
		        price_when_copied, entry_price, price,
		        filled_size, size, timestamp,
		        current_price, market_resolved, resolved_outcome
		 FROM pnl_orders WHERE entity_id = $1 ORDER BY timestamp, seq`, entityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanOrders(rows)
}

func (s *PostgresStore) ListEntities(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT DISTINCT entity_id FROM pnl_orders ORDER BY entity_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *PostgresStore) UpsertMarketMeta(ctx context.Context, m *model.MarketMeta) error {
	outcomes := make([]string, len(m.Outcomes))
	for i, o := range m.Outcomes {
		outcomes[i] = o.String()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO pnl_market_meta (market_id, closed, winning_outcome, outcomes, outcome_prices, updated_at)
		 VALUES ($1, $2, $3, $4, $5, now())
		 ON CONFLICT (market_id) DO UPDATE SET
		     closed          = EXCLUDED.closed,
		     winning_outcome = EXCLUDED.winning_outcome,
		     outcomes        = EXCLUDED.outcomes,
		     outcome_prices  = EXCLUDED.outcome_prices,
		     updated_at      = now()`,
		m.MarketID.String(), m.Closed, m.WinningOutcome.String(), outcomes, m.OutcomePrices,
	)
	if err != nil {
		return fmt.Errorf("upsert market meta %s: %w", m.MarketID, err)
	}
	return nil
}

func (s *PostgresStore) GetMarketMetas(ctx context.Context, ids []model.MarketID) (map[model.MarketID]model.MarketMeta, error) {
	result := make(map[model.MarketID]model.MarketMeta, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = id.String()
	}

	rows, err := s.pool.Query(ctx,
		`SELECT market_id, closed, winning_outcome, outcomes, outcome_prices, updated_at
		 FROM pnl_market_meta WHERE market_id = ANY($1)`, keys)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id, winner string
			m          model.MarketMeta
			outcomes   []string
		)
		if err := rows.Scan(&id, &m.Closed, &winner, &outcomes, &m.OutcomePrices, &m.UpdatedAt); err != nil {
			return nil, err
		}
		m.MarketID = model.MarketID(id)
		m.WinningOutcome = model.Outcome(winner)
		for _, o := range outcomes {
			m.Outcomes = append(m.Outcomes, model.Outcome(o))
		}
		result[m.MarketID] = m
	}
	return result, rows.Err()
}

func (s *PostgresStore) UpsertSummary(ctx context.Context, rec *model.SummaryRecord) (*model.SummaryRecord, error) {
	positions, err := json.Marshal(rec.Positions)
	if err != nil {
		return nil, fmt.Errorf("encode positions for %s: %w", rec.EntityID, err)
	}

	sum := rec.Summary
	stats, err := json.Marshal(summaryStats{
		AvgPositionPnL:   sum.AvgPositionPnL,
		BestPositionPnL:  sum.BestPositionPnL,
		WorstPositionPnL: sum.WorstPositionPnL,
		Windows:          sum.Windows,
	})
	if err != nil {
		return nil, fmt.Errorf("encode stats for %s: %w", rec.EntityID, err)
	}

	out := *rec
	err = s.pool.QueryRow(ctx,
		`INSERT INTO pnl_summaries (entity_id,
		     realized_pnl, unrealized_pnl, total_pnl, total_volume, roi, win_rate,
		     open_positions, closed_positions, winning_positions, losing_positions,
		     buy_trade_count, sell_trade_count, positions, stats, calculated_at, calc_version)
		 VALUES ($1, $2::NUMERIC, $3::NUMERIC, $4::NUMERIC, $5::NUMERIC, $6::NUMERIC, $7::NUMERIC,
		         $8, $9, $10, $11, $12, $13, $14::JSONB, $15::JSONB, now(), 1)
		 ON CONFLICT (entity_id) DO UPDATE SET
		     realized_pnl      = EXCLUDED.realized_pnl,
		     unrealized_pnl    = EXCLUDED.unrealized_pnl,
		     total_pnl         = EXCLUDED.total_pnl,
		     total_volume      = EXCLUDED.total_volume,
		     roi               = EXCLUDED.roi,
		     win_rate          = EXCLUDED.win_rate,
		     open_positions    = EXCLUDED.open_positions,
		     closed_positions  = EXCLUDED.closed_positions,
		     winning_positions = EXCLUDED.winning_positions,
		     losing_positions  = EXCLUDED.losing_positions,
		     buy_trade_count   = EXCLUDED.buy_trade_count,
		     sell_trade_count  = EXCLUDED.sell_trade_count,
		     positions         = EXCLUDED.positions,
		     stats             = EXCLUDED.stats,
		     calculated_at     = now(),
		     calc_version      = pnl_summaries.calc_version + 1
		 RETURNING calculated_at, calc_version`,
		rec.EntityID,
		sum.RealizedPnL.String(), sum.UnrealizedPnL.String(), sum.TotalPnL.String(),
		sum.TotalVolume.String(), sum.ROI.String(), sum.WinRate.String(),
		sum.OpenPositions, sum.ClosedPositions, sum.WinningPositions, sum.LosingPositions,
		sum.BuyTradeCount, sum.SellTradeCount, string(positions), string(stats),
	).Scan(&out.CalculatedAt, &out.CalcVersion)
	if err != nil {
		return nil, fmt.Errorf("upsert summary %s: %w", rec.EntityID, err)
	}
	return &out, nil
}

func (s *PostgresStore) GetSummary(ctx context.Context, entityID string) (*model.SummaryRecord, error) {
	var (
		rec                                                model.SummaryRecord
		realized, unrealized, total, volume, roi, winRate string
		positions, stats                                   []byte
	)

	err := s.pool.QueryRow(ctx,
		`SELECT entity_id,
		        realized_pnl::TEXT, unrealized_pnl::TEXT, total_pnl::TEXT,
		        total_volume::TEXT, roi::TEXT, win_rate::TEXT,
		        open_positions, closed_positions, winning_positions, losing_positions,
		        buy_trade_count, sell_trade_count, positions, stats, calculated_at, calc_version
		 FROM pnl_summaries WHERE entity_id = $1`, entityID).
		Scan(&rec.EntityID,
			&realized, &unrealized, &total,
			&volume, &roi, &winRate,
			&rec.Summary.OpenPositions, &rec.Summary.ClosedPositions,
			&rec.Summary.WinningPositions, &rec.Summary.LosingPositions,
			&rec.Summary.BuyTradeCount, &rec.Summary.SellTradeCount,
			&positions, &stats, &rec.CalculatedAt, &rec.CalcVersion)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("summary for %s: %w", entityID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get summary %s: %w", entityID, err)
	}

	rec.Summary.RealizedPnL, _ = decimal.NewFromString(realized)
	rec.Summary.UnrealizedPnL, _ = decimal.NewFromString(unrealized)
	rec.Summary.TotalPnL, _ = decimal.NewFromString(total)
	rec.Summary.TotalVolume, _ = decimal.NewFromString(volume)
	rec.Summary.ROI, _ = decimal.NewFromString(roi)
	rec.Summary.WinRate, _ = decimal.NewFromString(winRate)

	if len(stats) > 0 {
		var st summaryStats
		if err := json.Unmarshal(stats, &st); err != nil {
			return nil, fmt.Errorf("decode stats for %s: %w", entityID, err)
		}
		rec.Summary.AvgPositionPnL = st.AvgPositionPnL
		rec.Summary.BestPositionPnL = st.BestPositionPnL
		rec.Summary.WorstPositionPnL = st.WorstPositionPnL
		rec.Summary.Windows = st.Windows
	}
	if len(positions) > 0 {
		if err := json.Unmarshal(positions, &rec.Positions); err != nil {
			return nil, fmt.Errorf("decode positions for %s: %w", entityID, err)
		}
	}
	return &rec, nil
}

// scanOrders reads pgx rows into Order slices.
type pgxRows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

func scanOrders(rows pgxRows) ([]model.Order, error) {
	var orders []model.Order
	for rows.Next() {
		var o model.Order
		if err := rows.Scan(&o.ID, &o.EntityID, &o.Side, &o.MarketID, &o.Outcome,
			&o.PriceWhenCopied, &o.EntryPrice, &o.Price,
			&o.FilledSize, &o.Size, &o.Timestamp,
			&o.CurrentPrice, &o.MarketResolved, &o.ResolvedOutcome); err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

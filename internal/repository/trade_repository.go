package repository

import (
	"context"
	"time"

	"updown-trader/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// TradeRepository mirrors pending trades to Postgres. The settlement engine
// stays authoritative; every write here is best-effort.
type TradeRepository struct {
	pool   PgxPool
	tracer trace.Tracer
}

func NewTradeRepository(pool PgxPool, tracer trace.Tracer) *TradeRepository {
	return &TradeRepository{pool: pool, tracer: tracer}
}

func (r *TradeRepository) SaveEntry(ctx context.Context, t domain.PendingTrade) error {
	_, span := r.tracer.Start(ctx, "trade-repo.save-entry")
	defer span.End()
	span.SetAttributes(attribute.String("trade_id", t.ID))

	_, err := r.pool.Exec(ctx, `
INSERT INTO pending_trades (
    id, market_id, window_start_ms, side,
    entry_price, size, price_to_beat, live, entered_at
) VALUES (
    $1, $2, $3, $4,
    $5, $6, $7, $8, $9
)
ON CONFLICT (id) DO UPDATE SET
    entry_price = EXCLUDED.entry_price,
    size = EXCLUDED.size,
    price_to_beat = EXCLUDED.price_to_beat`,
		t.ID,
		t.MarketID,
		t.WindowStartMs,
		string(t.Side),
		t.EntryPrice,
		t.Size,
		t.PriceToBeat,
		t.Live,
		t.EnteredAt.UTC(),
	)
	return err
}

// MarkResolved records the outcome once; a trade that is already resolved
// reports pgx.ErrNoRows.
func (r *TradeRepository) MarkResolved(ctx context.Context, t domain.PendingTrade) error {
	_, span := r.tracer.Start(ctx, "trade-repo.mark-resolved")
	defer span.End()
	span.SetAttributes(attribute.String("trade_id", t.ID))

	tag, err := r.pool.Exec(ctx, `
UPDATE pending_trades
SET resolved = TRUE,
    won = $2,
    pnl = $3,
    settle_price = $4,
    resolved_at = NOW()
WHERE id = $1
  AND resolved = FALSE`, t.ID, t.Won, t.PnL, t.SettlePrice)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// ListUnresolved returns open trades entered after since, oldest first.
func (r *TradeRepository) ListUnresolved(ctx context.Context, since time.Time, limit int) ([]domain.PendingTrade, error) {
	_, span := r.tracer.Start(ctx, "trade-repo.list-unresolved")
	defer span.End()

	if limit <= 0 {
		limit = 500
	}
	rows, err := r.pool.Query(ctx, `
SELECT id, market_id, window_start_ms, side,
       entry_price, size, price_to_beat, live, entered_at
FROM pending_trades
WHERE resolved = FALSE
  AND entered_at >= $1
ORDER BY entered_at ASC
LIMIT $2`, since.UTC(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.PendingTrade
	for rows.Next() {
		var t domain.PendingTrade
		var side string
		if err := rows.Scan(
			&t.ID,
			&t.MarketID,
			&t.WindowStartMs,
			&side,
			&t.EntryPrice,
			&t.Size,
			&t.PriceToBeat,
			&t.Live,
			&t.EnteredAt,
		); err != nil {
			return nil, err
		}
		t.Side = domain.Side(side)
		t.EnteredAt = t.EnteredAt.UTC()
		out = append(out, t)
	}
	return out, rows.Err()
}

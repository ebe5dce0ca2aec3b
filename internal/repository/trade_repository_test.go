package repository

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"updown-trader/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel/trace"
)

type fakeRows struct {
	pgx.Rows
	data [][]any
	idx  int
}

func (r *fakeRows) Next() bool {
	r.idx++
	return r.idx <= len(r.data)
}

func (r *fakeRows) Scan(dest ...any) error {
	row := r.data[r.idx-1]
	for i := range dest {
		switch d := dest[i].(type) {
		case *string:
			*d = row[i].(string)
		case *int64:
			*d = row[i].(int64)
		case *float64:
			*d = row[i].(float64)
		case *bool:
			*d = row[i].(bool)
		case *time.Time:
			*d = row[i].(time.Time)
		}
	}
	return nil
}

func (r *fakeRows) Close()     {}
func (r *fakeRows) Err() error { return nil }

type fakePool struct {
	execSQL  []string
	execArgs [][]any
	tag      string
	rows     *fakeRows
	queryErr error
	lastArgs []any
}

func (p *fakePool) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	p.execSQL = append(p.execSQL, sql)
	p.execArgs = append(p.execArgs, args)
	return pgconn.NewCommandTag(p.tag), nil
}

func (p *fakePool) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	p.lastArgs = args
	if p.queryErr != nil {
		return nil, p.queryErr
	}
	return p.rows, nil
}

func newRepo(p *fakePool) *TradeRepository {
	return NewTradeRepository(p, trace.NewNoopTracerProvider().Tracer("test"))
}

func TestSaveEntryUpserts(t *testing.T) {
	p := &fakePool{tag: "INSERT 0 1"}
	entered := time.Date(2026, 1, 2, 12, 3, 0, 0, time.FixedZone("x", 3600))
	err := newRepo(p).SaveEntry(context.Background(), domain.PendingTrade{
		ID: "t1", MarketID: "BTC", WindowStartMs: 1767355200000, Side: domain.SideUp,
		EntryPrice: 0.55, Size: 10, PriceToBeat: 100000, EnteredAt: entered,
	})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if !strings.Contains(p.execSQL[0], "ON CONFLICT (id) DO UPDATE") {
		t.Fatalf("expected upsert, got %s", p.execSQL[0])
	}
	args := p.execArgs[0]
	if args[3] != "UP" || args[8].(time.Time).Location() != time.UTC {
		t.Fatalf("unexpected args %v", args)
	}
}

func TestMarkResolved(t *testing.T) {
	p := &fakePool{tag: "UPDATE 1"}
	repo := newRepo(p)
	trade := domain.PendingTrade{ID: "t1", Won: true, PnL: 4.5, SettlePrice: 100100}
	if err := repo.MarkResolved(context.Background(), trade); err != nil {
		t.Fatalf("mark resolved: %v", err)
	}
	if !strings.Contains(p.execSQL[0], "resolved = FALSE") {
		t.Fatalf("update must only touch unresolved rows: %s", p.execSQL[0])
	}

	p.tag = "UPDATE 0"
	if err := repo.MarkResolved(context.Background(), trade); !errors.Is(err, pgx.ErrNoRows) {
		t.Fatalf("expected ErrNoRows for an already resolved trade, got %v", err)
	}
}

func TestListUnresolved(t *testing.T) {
	entered := time.Date(2026, 1, 2, 12, 3, 0, 0, time.UTC)
	p := &fakePool{rows: &fakeRows{data: [][]any{
		{"t1", "BTC", int64(1767355200000), "DOWN", 0.45, 10.0, 100000.0, true, entered},
	}}}
	trades, err := newRepo(p).ListUnresolved(context.Background(), entered.Add(-time.Hour), 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(trades))
	}
	got := trades[0]
	if got.Side != domain.SideDown || !got.Live || got.Resolved || got.PriceToBeat != 100000 {
		t.Fatalf("unexpected trade %+v", got)
	}
	if p.lastArgs[1] != 500 {
		t.Fatalf("expected default limit 500, got %v", p.lastArgs[1])
	}

	p.queryErr = errors.New("down")
	if _, err := newRepo(p).ListUnresolved(context.Background(), entered, 10); err == nil {
		t.Fatal("expected query error")
	}
}

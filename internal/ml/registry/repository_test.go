package registry

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"testing"
	"time"

	"updown-trader/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel/trace"
)

type fakeRow struct {
	values []any
	err    error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	for i := range dest {
		switch d := dest[i].(type) {
		case *int64:
			*d = r.values[i].(int64)
		case *int:
			*d = r.values[i].(int)
		case *string:
			*d = r.values[i].(string)
		case *[]byte:
			*d = r.values[i].([]byte)
		case *bool:
			*d = r.values[i].(bool)
		case *time.Time:
			*d = r.values[i].(time.Time)
		}
	}
	return nil
}

type fakeTx struct {
	pgx.Tx
	execs     []string
	rows      int64
	committed bool
}

func (tx *fakeTx) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	tx.execs = append(tx.execs, sql)
	return pgconn.NewCommandTag("UPDATE " + strconv.FormatInt(tx.rows, 10)), nil
}

func (tx *fakeTx) Commit(ctx context.Context) error {
	tx.committed = true
	return nil
}

func (tx *fakeTx) Rollback(ctx context.Context) error { return nil }

type fakePool struct {
	row      fakeRow
	lastSQL  string
	lastArgs []any
	tx       *fakeTx
}

func (p *fakePool) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag("UPDATE 0"), nil
}

func (p *fakePool) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	p.lastSQL = sql
	p.lastArgs = args
	return p.row
}

func (p *fakePool) Begin(ctx context.Context) (pgx.Tx, error) {
	return p.tx, nil
}

func newTestRepo(p *fakePool) *Repository {
	return NewRepository(p, trace.NewNoopTracerProvider().Tracer("test"))
}

func TestInsertModelVersion(t *testing.T) {
	now := time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC)
	p := &fakePool{row: fakeRow{values: []any{
		int64(7), "quality_logreg", 3, 120, "json/logreg-v2", []byte("{}"), `{"auc":0.6}`, false, now, now,
	}}}
	repo := newTestRepo(p)

	out, err := repo.InsertModelVersion(context.Background(), domain.QualityModelVersion{
		ModelKey:       "quality_logreg",
		Version:        3,
		SampleCount:    120,
		ArtifactFormat: "json/logreg-v2",
		ArtifactBlob:   []byte("{}"),
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if out.ID != 7 || out.Version != 3 || out.SampleCount != 120 {
		t.Fatalf("unexpected row %+v", out)
	}
	if !strings.Contains(p.lastSQL, "INSERT INTO quality_model_versions") {
		t.Fatalf("unexpected sql %s", p.lastSQL)
	}
	if p.lastArgs[5] != "{}" {
		t.Fatalf("empty metrics should default to {}, got %v", p.lastArgs[5])
	}
	if p.lastArgs[7] != nil {
		t.Fatalf("zero trained_at should be NULL, got %v", p.lastArgs[7])
	}

	if _, err := repo.InsertModelVersion(context.Background(), domain.QualityModelVersion{ModelKey: "k"}); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestGetActiveModelNoRows(t *testing.T) {
	repo := newTestRepo(&fakePool{row: fakeRow{err: pgx.ErrNoRows}})
	out, err := repo.GetActiveModel(context.Background(), "quality_logreg")
	if err != nil || out != nil {
		t.Fatalf("expected nil, nil for no rows, got %v %v", out, err)
	}

	repo = newTestRepo(&fakePool{row: fakeRow{err: errors.New("boom")}})
	if _, err := repo.GetActiveModel(context.Background(), "quality_logreg"); err == nil {
		t.Fatal("expected error to propagate")
	}
}

func TestActivateModel(t *testing.T) {
	tx := &fakeTx{rows: 1}
	repo := newTestRepo(&fakePool{tx: tx})
	if err := repo.ActivateModel(context.Background(), "quality_logreg", 2); err != nil {
		t.Fatalf("activate: %v", err)
	}
	if len(tx.execs) != 2 || !tx.committed {
		t.Fatalf("expected two updates and a commit, got %d execs committed=%v", len(tx.execs), tx.committed)
	}

	missing := &fakeTx{rows: 0}
	repo = newTestRepo(&fakePool{tx: missing})
	if err := repo.ActivateModel(context.Background(), "quality_logreg", 9); !errors.Is(err, pgx.ErrNoRows) {
		t.Fatalf("expected ErrNoRows, got %v", err)
	}
	if missing.committed {
		t.Fatal("must not commit when the version is missing")
	}
}

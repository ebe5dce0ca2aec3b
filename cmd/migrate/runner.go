package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog/log"
)

type pgConn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// runner applies migrations one transaction per version and records each in
// schema_migrations.
type runner struct {
	conn pgConn
}

func newRunner(conn pgConn) *runner {
	return &runner{conn: conn}
}

func (r *runner) ensureTable(ctx context.Context) error {
	_, err := r.conn.Exec(ctx, `
CREATE TABLE IF NOT EXISTS schema_migrations (
    version     BIGINT PRIMARY KEY,
    name        TEXT NOT NULL,
    applied_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`)
	if err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}
	return nil
}

func (r *runner) applied(ctx context.Context) (map[int64]struct{}, error) {
	if err := r.ensureTable(ctx); err != nil {
		return nil, err
	}
	rows, err := r.conn.Query(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("list applied migrations: %w", err)
	}
	defer rows.Close()

	out := make(map[int64]struct{})
	for rows.Next() {
		var v int64
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out[v] = struct{}{}
	}
	return out, rows.Err()
}

func (r *runner) Up(ctx context.Context, all []migration) (int, error) {
	applied, err := r.applied(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, m := range pendingUp(all, applied) {
		err := r.inTx(ctx, m.UpSQL, `INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`, m.Version, m.Name)
		if err != nil {
			return n, fmt.Errorf("version %d up: %w", m.Version, err)
		}
		log.Info().Int64("version", m.Version).Str("name", m.Name).Msg("migration applied")
		n++
	}
	return n, nil
}

func (r *runner) Down(ctx context.Context, all []migration, steps int) (int, error) {
	applied, err := r.applied(ctx)
	if err != nil {
		return 0, err
	}
	plan, err := rollbackPlan(all, applied, steps)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, m := range plan {
		if err := r.inTx(ctx, m.DownSQL, `DELETE FROM schema_migrations WHERE version = $1`, m.Version); err != nil {
			return n, fmt.Errorf("version %d down: %w", m.Version, err)
		}
		log.Info().Int64("version", m.Version).Str("name", m.Name).Msg("migration rolled back")
		n++
	}
	return n, nil
}

func (r *runner) Version(ctx context.Context) (int64, string, error) {
	if err := r.ensureTable(ctx); err != nil {
		return 0, "", err
	}
	var v int64
	var name string
	err := r.conn.QueryRow(ctx, `SELECT version, name FROM schema_migrations ORDER BY version DESC LIMIT 1`).Scan(&v, &name)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, "", nil
	}
	if err != nil {
		return 0, "", fmt.Errorf("read schema version: %w", err)
	}
	return v, name, nil
}

// inTx runs a migration body and its bookkeeping statement atomically.
func (r *runner) inTx(ctx context.Context, body, bookkeeping string, args ...any) error {
	tx, err := r.conn.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, body); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, bookkeeping, args...); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

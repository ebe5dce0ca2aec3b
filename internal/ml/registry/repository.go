package registry

import (
	"context"
	"errors"
	"time"

	"updown-trader/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel/trace"
)

type pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Repository stores versioned signal-quality model artifacts.
type Repository struct {
	pool   pool
	tracer trace.Tracer
}

func NewRepository(pool pool, tracer trace.Tracer) *Repository {
	return &Repository{pool: pool, tracer: tracer}
}

const selectColumns = `id, model_key, version, sample_count,
       artifact_format, artifact_blob, metrics_json,
       is_active, trained_at, created_at`

func (r *Repository) NextVersion(ctx context.Context, modelKey string) (int, error) {
	_, span := r.tracer.Start(ctx, "quality-model-registry.next-version")
	defer span.End()

	var version int
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(MAX(version), 0) + 1 FROM quality_model_versions WHERE model_key = $1`, modelKey).Scan(&version)
	return version, err
}

func (r *Repository) InsertModelVersion(ctx context.Context, model domain.QualityModelVersion) (*domain.QualityModelVersion, error) {
	_, span := r.tracer.Start(ctx, "quality-model-registry.insert")
	defer span.End()

	if model.ModelKey == "" || model.Version <= 0 || len(model.ArtifactBlob) == 0 {
		return nil, errors.New("invalid model version payload")
	}
	return r.scanOne(r.pool.QueryRow(ctx, `
INSERT INTO quality_model_versions (
    model_key, version, sample_count,
    artifact_format, artifact_blob, metrics_json,
    is_active, trained_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, COALESCE($8, NOW()))
RETURNING `+selectColumns,
		model.ModelKey,
		model.Version,
		model.SampleCount,
		model.ArtifactFormat,
		model.ArtifactBlob,
		fallbackJSON(model.MetricsJSON),
		model.IsActive,
		nullIfZeroTime(model.TrainedAt),
	))
}

func (r *Repository) GetActiveModel(ctx context.Context, modelKey string) (*domain.QualityModelVersion, error) {
	_, span := r.tracer.Start(ctx, "quality-model-registry.get-active")
	defer span.End()

	return r.scanOne(r.pool.QueryRow(ctx, `
SELECT `+selectColumns+`
FROM quality_model_versions
WHERE model_key = $1 AND is_active = TRUE
ORDER BY version DESC
LIMIT 1`, modelKey))
}

// ActivateModel makes one version the only active one for its key.
func (r *Repository) ActivateModel(ctx context.Context, modelKey string, version int) error {
	_, span := r.tracer.Start(ctx, "quality-model-registry.activate")
	defer span.End()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `UPDATE quality_model_versions SET is_active = FALSE WHERE model_key = $1 AND is_active = TRUE`, modelKey); err != nil {
		return err
	}
	tag, err := tx.Exec(ctx, `UPDATE quality_model_versions SET is_active = TRUE WHERE model_key = $1 AND version = $2`, modelKey, version)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return tx.Commit(ctx)
}

// scanOne returns nil, nil when no row matched.
func (r *Repository) scanOne(row pgx.Row) (*domain.QualityModelVersion, error) {
	var out domain.QualityModelVersion
	err := row.Scan(
		&out.ID,
		&out.ModelKey,
		&out.Version,
		&out.SampleCount,
		&out.ArtifactFormat,
		&out.ArtifactBlob,
		&out.MetricsJSON,
		&out.IsActive,
		&out.TrainedAt,
		&out.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	out.TrainedAt = out.TrainedAt.UTC()
	out.CreatedAt = out.CreatedAt.UTC()
	return &out, nil
}

func fallbackJSON(v string) string {
	if v == "" {
		return "{}"
	}
	return v
}

func nullIfZeroTime(v time.Time) any {
	if v.IsZero() {
		return nil
	}
	return v.UTC()
}

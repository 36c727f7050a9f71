package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/housing-service/internal/domain"
)

// SettingsRepository persists typed policy values.
type SettingsRepository interface {
	GetInt(ctx context.Context, category, key string) (*domain.SettingRecord, error)
	UpsertInt(ctx context.Context, record *domain.SettingRecord) error
}

type settingsRepository struct {
	pool *pgxpool.Pool
}

// NewSettingsRepository instantiates the repository.
func NewSettingsRepository(pool *pgxpool.Pool) SettingsRepository {
	return &settingsRepository{pool: pool}
}

func (r *settingsRepository) GetInt(ctx context.Context, category, key string) (*domain.SettingRecord, error) {
	const query = `
        SELECT category, key, int_value, updated_by, updated_at
        FROM settings WHERE category=$1 AND key=$2`
	var rec domain.SettingRecord
	if err := r.pool.QueryRow(ctx, query, category, key).Scan(
		&rec.Category,
		&rec.Key,
		&rec.Value,
		&rec.UpdatedBy,
		&rec.UpdatedAt,
	); err != nil {
		return nil, translate(err)
	}
	return &rec, nil
}

func (r *settingsRepository) UpsertInt(ctx context.Context, record *domain.SettingRecord) error {
	const query = `
        INSERT INTO settings (category, key, int_value, updated_by, updated_at)
        VALUES ($1,$2,$3,$4,NOW())
        ON CONFLICT (category, key)
        DO UPDATE SET int_value=EXCLUDED.int_value, updated_by=EXCLUDED.updated_by, updated_at=NOW()
        RETURNING updated_at`
	return r.pool.QueryRow(ctx, query,
		record.Category,
		record.Key,
		record.Value,
		record.UpdatedBy,
	).Scan(&record.UpdatedAt)
}

package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"aivisibility/internal/models"
)

// UsageRepository handles usage record database operations.
type UsageRepository struct {
	db *DB
}

// NewUsageRepository creates a new usage repository.
func NewUsageRepository(db *DB) *UsageRepository {
	return &UsageRepository{db: db}
}

// Create inserts a single usage record.
func (r *UsageRepository) Create(ctx context.Context, rec *models.UsageRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO usage_records (
			id, scan_id, request_id, provider, model_key, prompt_id,
			tokens_estimate, response_time_ms, error_kind, error_message, created_at
		) VALUES (
			:id, :scan_id, :request_id, :provider, :model_key, :prompt_id,
			:tokens_estimate, :response_time_ms, :error_kind, :error_message, :created_at
		)
	`
	if _, err := r.db.conn.NamedExecContext(ctx, query, rec); err != nil {
		return fmt.Errorf("failed to insert usage record: %w", err)
	}
	return nil
}

// CreateBatch inserts usage records in a single transaction.
func (r *UsageRepository) CreateBatch(ctx context.Context, records []*models.UsageRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO usage_records (
			id, scan_id, request_id, provider, model_key, prompt_id,
			tokens_estimate, response_time_ms, error_kind, error_message, created_at
		) VALUES (
			:id, :scan_id, :request_id, :provider, :model_key, :prompt_id,
			:tokens_estimate, :response_time_ms, :error_kind, :error_message, :created_at
		)
	`
	for _, rec := range records {
		if rec.ID == uuid.Nil {
			rec.ID = uuid.New()
		}
		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = time.Now()
		}
		if _, err := tx.NamedExecContext(ctx, query, rec); err != nil {
			return fmt.Errorf("failed to insert usage record: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// ListByScan returns the audit trail for one scan, oldest first.
func (r *UsageRepository) ListByScan(ctx context.Context, scanID uuid.UUID) ([]models.UsageRecord, error) {
	var records []models.UsageRecord
	query := `
		SELECT id, scan_id, request_id, provider, model_key, prompt_id,
		       tokens_estimate, response_time_ms, error_kind, error_message, created_at
		FROM usage_records
		WHERE scan_id = $1
		ORDER BY created_at ASC
	`
	if err := r.db.conn.SelectContext(ctx, &records, query, scanID); err != nil {
		return nil, fmt.Errorf("failed to list usage records: %w", err)
	}
	return records, nil
}

// TokensByProvider aggregates token usage per provider since a cutoff.
func (r *UsageRepository) TokensByProvider(ctx context.Context, since time.Time) (map[string]int, error) {
	rows := []struct {
		Provider string `db:"provider"`
		Tokens   int    `db:"tokens"`
	}{}

	query := `
		SELECT provider, COALESCE(SUM(tokens_estimate), 0) AS tokens
		FROM usage_records
		WHERE created_at >= $1
		GROUP BY provider
	`
	if err := r.db.conn.SelectContext(ctx, &rows, query, since); err != nil {
		return nil, fmt.Errorf("failed to aggregate usage: %w", err)
	}

	totals := make(map[string]int, len(rows))
	for _, row := range rows {
		totals[row.Provider] = row.Tokens
	}
	return totals, nil
}

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"aivisibility/internal/models"
)

// ScanRepository handles scan database operations.
type ScanRepository struct {
	db *DB
}

// NewScanRepository creates a new scan repository.
func NewScanRepository(db *DB) *ScanRepository {
	return &ScanRepository{db: db}
}

// Create inserts a new scan in running state.
func (r *ScanRepository) Create(ctx context.Context, scan *models.Scan) error {
	if scan.ID == uuid.Nil {
		scan.ID = uuid.New()
	}
	if scan.CreatedAt.IsZero() {
		scan.CreatedAt = time.Now()
	}
	if scan.Status == "" {
		scan.Status = models.ScanStatusRunning
	}

	query := `
		INSERT INTO scans (id, api_key_id, url, domain, tier, status, report, created_at, completed_at)
		VALUES (:id, :api_key_id, :url, :domain, :tier, :status, :report, :created_at, :completed_at)
	`
	if _, err := r.db.conn.NamedExecContext(ctx, query, scan); err != nil {
		return fmt.Errorf("failed to insert scan: %w", err)
	}
	return nil
}

// GetByID retrieves a scan by id.
func (r *ScanRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Scan, error) {
	var scan models.Scan
	query := `
		SELECT id, api_key_id, url, domain, tier, status, report, created_at, completed_at
		FROM scans
		WHERE id = $1
	`
	if err := r.db.conn.GetContext(ctx, &scan, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrScanNotFound
		}
		return nil, fmt.Errorf("failed to get scan: %w", err)
	}
	return &scan, nil
}

// Complete stores the finished report and marks the scan completed.
func (r *ScanRepository) Complete(ctx context.Context, id uuid.UUID, report models.JSONB) error {
	return r.finish(ctx, id, models.ScanStatusCompleted, report)
}

// Fail marks the scan failed with an error report.
func (r *ScanRepository) Fail(ctx context.Context, id uuid.UUID, report models.JSONB) error {
	return r.finish(ctx, id, models.ScanStatusFailed, report)
}

func (r *ScanRepository) finish(ctx context.Context, id uuid.UUID, status string, report models.JSONB) error {
	query := `
		UPDATE scans
		SET status = $2, report = $3, completed_at = $4
		WHERE id = $1
	`
	result, err := r.db.conn.ExecContext(ctx, query, id, status, report, time.Now())
	if err != nil {
		return fmt.Errorf("failed to update scan: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if rows == 0 {
		return ErrScanNotFound
	}
	return nil
}

// ListByAPIKey returns the most recent scans for an API key.
func (r *ScanRepository) ListByAPIKey(ctx context.Context, apiKeyID string, limit int) ([]models.Scan, error) {
	if limit <= 0 {
		limit = 20
	}

	var scans []models.Scan
	query := `
		SELECT id, api_key_id, url, domain, tier, status, report, created_at, completed_at
		FROM scans
		WHERE api_key_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	if err := r.db.conn.SelectContext(ctx, &scans, query, apiKeyID, limit); err != nil {
		return nil, fmt.Errorf("failed to list scans: %w", err)
	}
	return scans, nil
}

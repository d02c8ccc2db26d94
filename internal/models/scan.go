package models

import (
	"time"

	"github.com/google/uuid"
)

// Scan statuses.
const (
	ScanStatusRunning   = "running"
	ScanStatusCompleted = "completed"
	ScanStatusFailed    = "failed"
)

// Scan is one persisted visibility analysis request (scans table).
type Scan struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	APIKeyID    string     `db:"api_key_id" json:"api_key_id"`
	URL         string     `db:"url" json:"url"`
	Domain      string     `db:"domain" json:"domain"`
	Tier        string     `db:"tier" json:"tier"`
	Status      string     `db:"status" json:"status"`
	Report      JSONB      `db:"report" json:"report,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	CompletedAt *time.Time `db:"completed_at" json:"completed_at,omitempty"`
}

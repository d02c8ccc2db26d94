package models

import (
	"time"

	"github.com/google/uuid"
)

// UsageRecord is one provider-call audit row (usage_records table).
// Records are enqueued during a run and batch-inserted by the usage worker.
type UsageRecord struct {
	ID             uuid.UUID `db:"id" json:"id"`
	ScanID         uuid.UUID `db:"scan_id" json:"scan_id"`
	RequestID      uuid.UUID `db:"request_id" json:"request_id"`
	Provider       string    `db:"provider" json:"provider"`
	ModelKey       string    `db:"model_key" json:"model_key"`
	PromptID       string    `db:"prompt_id" json:"prompt_id"`
	TokensEstimate int       `db:"tokens_estimate" json:"tokens_estimate"`
	ResponseTimeMS int       `db:"response_time_ms" json:"response_time_ms"`
	ErrorKind      string    `db:"error_kind" json:"error_kind,omitempty"`
	ErrorMessage   string    `db:"error_message" json:"error_message,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

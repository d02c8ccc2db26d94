package models

import "time"

// HealthRecord is the mutable probe state for one model. A record exists
// only after at least one probe attempt; models without a record are
// treated per the monitor's unknown-model policy.
type HealthRecord struct {
	Healthy           bool      `json:"healthy"`
	LastCheckedAt     time.Time `json:"last_checked_at"`
	ResponseTimeMs    *int64    `json:"response_time_ms"`
	Error             string    `json:"error,omitempty"`
	IsRateLimited     bool      `json:"is_rate_limited"`
	RetryAfterSeconds *int      `json:"retry_after_seconds,omitempty"`
}

// HealthSnapshot is the diagnostic view returned to the admin endpoint.
type HealthSnapshot struct {
	LastCheckedAt time.Time               `json:"last_checked_at"`
	Models        map[string]HealthRecord `json:"models"`
}

package queue

import (
	"context"
	"encoding/json"
	"time"
)

// Package queue carries the asynchronous audit trail: every provider call
// made during a visibility run is recorded off the request path, so a slow
// or unavailable database never delays a scan.
//
// Two backends implement the same contract:
//
//  1. Memory (channel-based): no persistence, no external dependencies.
//     The right choice for standalone and development deployments.
//  2. Redis (list-based): persistent across restarts and shared between
//     replicas. The production choice.
//
// Items that a worker cannot persist after retries land in a dead letter
// queue for later inspection or re-enqueueing.

// Queue is a FIFO byte-payload queue. Payloads are JSON documents; the
// queue never interprets them.
type Queue interface {
	// Enqueue appends one payload.
	Enqueue(ctx context.Context, payload []byte) error

	// Pull waits up to wait for the first payload, then drains up to max
	// payloads without blocking further. A timeout yields an empty slice,
	// not an error.
	Pull(ctx context.Context, max int, wait time.Duration) ([]json.RawMessage, error)

	// Length reports the number of pending payloads.
	Length(ctx context.Context) (int, error)

	// Close releases the queue. Enqueue and Pull fail afterwards.
	Close() error
}

// DeadLetterQueue parks payloads that exhausted their retries.
type DeadLetterQueue interface {
	// Add parks a payload together with the error that defeated it.
	Add(ctx context.Context, payload []byte, cause error) error

	// List returns up to max parked items; max <= 0 returns everything.
	List(ctx context.Context, max int) ([]DeadLetterItem, error)

	// Remove deletes one parked item by id.
	Remove(ctx context.Context, id string) error

	Close() error
}

// DeadLetterItem is one parked payload.
type DeadLetterItem struct {
	ID       string          `json:"id"`
	Payload  json.RawMessage `json:"payload"`
	Error    string          `json:"error"`
	FailedAt time.Time       `json:"failed_at"`
}

// Config holds queue tuning shared by both backends.
type Config struct {
	// Name distinguishes queues sharing one Redis instance.
	Name string

	// BatchSize caps how many payloads a worker pulls at once.
	BatchSize int

	// BatchWait is how long a worker waits before processing a partial
	// batch.
	BatchWait time.Duration

	// MaxRetries bounds per-item persistence attempts before the item
	// moves to the dead letter queue.
	MaxRetries int

	// RetryBackoff is the initial backoff between persistence attempts.
	RetryBackoff time.Duration
}

// DefaultConfig returns the tuning used in production.
func DefaultConfig(name string) *Config {
	return &Config{
		Name:         name,
		BatchSize:    100,
		BatchWait:    5 * time.Second,
		MaxRetries:   3,
		RetryBackoff: 1 * time.Second,
	}
}

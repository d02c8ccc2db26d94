package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"aivisibility/internal/models"
	"aivisibility/internal/queue"
	"aivisibility/internal/utils"
)

// UsageInserter is the slice of UsageRepository the worker needs.
type UsageInserter interface {
	Create(ctx context.Context, rec *models.UsageRecord) error
	CreateBatch(ctx context.Context, records []*models.UsageRecord) error
}

// UsageQueueWorker persists provider-call audit records asynchronously.
// The orchestrator hands records to Record, which enqueues and returns
// immediately; the worker loop batches them into the database and parks
// undeliverable records in the dead letter queue.
type UsageQueueWorker struct {
	queue  queue.Queue
	dlq    queue.DeadLetterQueue
	repo   UsageInserter
	config *queue.Config
	logger *utils.Logger

	stopChan    chan struct{}
	stoppedChan chan struct{}
}

// NewUsageQueueWorker creates a usage queue worker.
func NewUsageQueueWorker(q queue.Queue, dlq queue.DeadLetterQueue, repo UsageInserter, config *queue.Config) *UsageQueueWorker {
	if config == nil {
		config = queue.DefaultConfig("usage")
	}
	return &UsageQueueWorker{
		queue:       q,
		dlq:         dlq,
		repo:        repo,
		config:      config,
		logger:      utils.NewLogger("usage-worker"),
		stopChan:    make(chan struct{}),
		stoppedChan: make(chan struct{}),
	}
}

// Record enqueues one audit record. Emission is best effort: a full or
// closed queue is logged and dropped, never surfaced to the scan path.
func (w *UsageQueueWorker) Record(ctx context.Context, rec *models.UsageRecord) {
	payload, err := json.Marshal(rec)
	if err != nil {
		w.logger.Error("Failed to marshal usage record", "error", err)
		return
	}
	if err := w.queue.Enqueue(ctx, payload); err != nil {
		w.logger.Warn("Failed to enqueue usage record", "request_id", rec.RequestID, "error", err)
	}
}

// Start starts the worker goroutine.
func (w *UsageQueueWorker) Start(ctx context.Context) {
	go w.run(ctx)
}

// Stop gracefully stops the worker after the in-flight batch.
func (w *UsageQueueWorker) Stop() error {
	close(w.stopChan)
	<-w.stoppedChan
	return nil
}

func (w *UsageQueueWorker) run(ctx context.Context) {
	defer close(w.stoppedChan)

	for {
		select {
		case <-w.stopChan:
			w.logger.Info("Usage worker stopping")
			return
		case <-ctx.Done():
			w.logger.Info("Usage worker context cancelled")
			return
		default:
			w.processBatch(ctx)
		}
	}
}

func (w *UsageQueueWorker) processBatch(ctx context.Context) {
	payloads, err := w.queue.Pull(ctx, w.config.BatchSize, w.config.BatchWait)
	if err != nil {
		w.logger.Error("Failed to pull usage records", "error", err)
		time.Sleep(1 * time.Second) // back off on error
		return
	}
	if len(payloads) == 0 {
		return
	}

	w.logger.Debug("Processing usage batch", "count", len(payloads))

	records := make([]*models.UsageRecord, 0, len(payloads))
	for _, payload := range payloads {
		var rec models.UsageRecord
		if err := json.Unmarshal(payload, &rec); err != nil {
			w.logger.Error("Failed to unmarshal usage record", "error", err)
			continue
		}
		records = append(records, &rec)
	}
	if len(records) == 0 {
		return
	}

	if err := w.repo.CreateBatch(ctx, records); err != nil {
		w.logger.Error("Batch insert failed, falling back to individual inserts", "error", err)
		for _, rec := range records {
			if err := w.processRecord(ctx, rec); err != nil {
				w.logger.Error("Failed to persist usage record", "request_id", rec.RequestID, "error", err)
			}
		}
	}
}

// processRecord retries one record with exponential backoff, then parks
// it in the DLQ.
func (w *UsageQueueWorker) processRecord(ctx context.Context, rec *models.UsageRecord) error {
	var lastErr error
	for attempt := 0; attempt <= w.config.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := w.config.RetryBackoff * time.Duration(1<<uint(attempt-1))
			w.logger.Debug("Retrying usage record", "attempt", attempt, "backoff", backoff)
			time.Sleep(backoff)
		}

		if err := w.repo.Create(ctx, rec); err != nil {
			lastErr = err
			continue
		}
		return nil
	}

	if w.dlq != nil {
		payload, err := json.Marshal(rec)
		if err != nil {
			w.logger.Error("Failed to marshal record for DLQ", "error", err)
		} else if err := w.dlq.Add(ctx, payload, lastErr); err != nil {
			w.logger.Error("Failed to add to dead letter queue", "error", err)
		} else {
			w.logger.Warn("Usage record moved to DLQ", "request_id", rec.RequestID, "error", lastErr)
		}
	}
	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

// QueueLength returns the number of pending records.
func (w *UsageQueueWorker) QueueLength(ctx context.Context) (int, error) {
	return w.queue.Length(ctx)
}

// DeadLetterItems returns parked records.
func (w *UsageQueueWorker) DeadLetterItems(ctx context.Context, max int) ([]queue.DeadLetterItem, error) {
	if w.dlq == nil {
		return nil, fmt.Errorf("dead letter queue not configured")
	}
	return w.dlq.List(ctx, max)
}

// RetryDeadLetterItem re-enqueues one parked record and removes it from
// the DLQ.
func (w *UsageQueueWorker) RetryDeadLetterItem(ctx context.Context, id string) error {
	if w.dlq == nil {
		return fmt.Errorf("dead letter queue not configured")
	}

	items, err := w.dlq.List(ctx, 0)
	if err != nil {
		return fmt.Errorf("failed to list dead letter items: %w", err)
	}
	for _, item := range items {
		if item.ID != id {
			continue
		}
		if err := w.queue.Enqueue(ctx, item.Payload); err != nil {
			return fmt.Errorf("failed to re-enqueue item: %w", err)
		}
		if err := w.dlq.Remove(ctx, id); err != nil {
			return fmt.Errorf("failed to remove from DLQ: %w", err)
		}
		return nil
	}
	return queue.ErrItemNotFound
}

package queue

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryQueue implements Queue on a buffered channel. Payloads are copied
// on enqueue so callers may reuse their buffers.
type MemoryQueue struct {
	payloads chan json.RawMessage

	mu     sync.RWMutex
	closed bool
}

// NewMemoryQueue creates an in-memory queue sized for ten full batches.
func NewMemoryQueue(config *Config) *MemoryQueue {
	if config == nil {
		config = DefaultConfig("memory")
	}
	return &MemoryQueue{
		payloads: make(chan json.RawMessage, config.BatchSize*10),
	}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, payload []byte) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}

	buf := make([]byte, len(payload))
	copy(buf, payload)

	select {
	case q.payloads <- buf:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *MemoryQueue) Pull(ctx context.Context, max int, wait time.Duration) ([]json.RawMessage, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return nil, ErrQueueClosed
	}

	items := make([]json.RawMessage, 0, max)

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case p := <-q.payloads:
		items = append(items, p)
	case <-timer.C:
		return items, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	// Drain whatever else is already buffered.
	for len(items) < max {
		select {
		case p := <-q.payloads:
			items = append(items, p)
		default:
			return items, nil
		}
	}
	return items, nil
}

func (q *MemoryQueue) Length(ctx context.Context) (int, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return 0, ErrQueueClosed
	}
	return len(q.payloads), nil
}

func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	q.closed = true
	close(q.payloads)
	return nil
}

// MemoryDeadLetterQueue keeps parked payloads in memory, in arrival order.
type MemoryDeadLetterQueue struct {
	mu     sync.RWMutex
	order  []string
	byID   map[string]DeadLetterItem
	closed bool
}

// NewMemoryDeadLetterQueue creates an empty in-memory dead letter queue.
func NewMemoryDeadLetterQueue() *MemoryDeadLetterQueue {
	return &MemoryDeadLetterQueue{byID: make(map[string]DeadLetterItem)}
}

func (q *MemoryDeadLetterQueue) Add(ctx context.Context, payload []byte, cause error) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}

	buf := make([]byte, len(payload))
	copy(buf, payload)

	item := DeadLetterItem{
		ID:       uuid.NewString(),
		Payload:  buf,
		Error:    cause.Error(),
		FailedAt: time.Now(),
	}
	q.order = append(q.order, item.ID)
	q.byID[item.ID] = item
	return nil
}

func (q *MemoryDeadLetterQueue) List(ctx context.Context, max int) ([]DeadLetterItem, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return nil, ErrQueueClosed
	}

	if max <= 0 || max > len(q.order) {
		max = len(q.order)
	}
	items := make([]DeadLetterItem, 0, max)
	for _, id := range q.order[:max] {
		items = append(items, q.byID[id])
	}
	return items, nil
}

func (q *MemoryDeadLetterQueue) Remove(ctx context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}

	if _, ok := q.byID[id]; !ok {
		return ErrItemNotFound
	}
	delete(q.byID, id)
	for i, existing := range q.order {
		if existing == id {
			q.order = append(q.order[:i], q.order[i+1:]...)
			break
		}
	}
	return nil
}

func (q *MemoryDeadLetterQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.order = nil
	q.byID = nil
	return nil
}

package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestMemoryQueue_EnqueuePull(t *testing.T) {
	q := NewMemoryQueue(DefaultConfig("test"))
	defer q.Close()

	ctx := context.Background()

	payload := []byte(`{"scan_id":"abc"}`)
	if err := q.Enqueue(ctx, payload); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	items, err := q.Pull(ctx, 1, time.Second)
	if err != nil {
		t.Fatalf("Pull failed: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("Expected 1 item, got %d", len(items))
	}
	if string(items[0]) != string(payload) {
		t.Errorf("Expected %s, got %s", payload, items[0])
	}
}

func TestMemoryQueue_PullDrainsUpToMax(t *testing.T) {
	q := NewMemoryQueue(DefaultConfig("test"))
	defer q.Close()

	ctx := context.Background()
	for i := 0; i < 10; i++ {
		if err := q.Enqueue(ctx, []byte(fmt.Sprintf(`{"n":%d}`, i))); err != nil {
			t.Fatalf("Enqueue failed: %v", err)
		}
	}

	items, err := q.Pull(ctx, 5, time.Second)
	if err != nil {
		t.Fatalf("Pull failed: %v", err)
	}
	if len(items) != 5 {
		t.Fatalf("Expected 5 items, got %d", len(items))
	}
	if string(items[0]) != `{"n":0}` {
		t.Errorf("FIFO order broken: first item %s", items[0])
	}

	length, err := q.Length(ctx)
	if err != nil {
		t.Fatalf("Length failed: %v", err)
	}
	if length != 5 {
		t.Errorf("Expected 5 remaining, got %d", length)
	}
}

func TestMemoryQueue_PullTimeoutReturnsEmpty(t *testing.T) {
	q := NewMemoryQueue(DefaultConfig("test"))
	defer q.Close()

	start := time.Now()
	items, err := q.Pull(context.Background(), 10, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("Pull failed: %v", err)
	}
	if len(items) != 0 {
		t.Errorf("Expected empty batch, got %d items", len(items))
	}
	if time.Since(start) > time.Second {
		t.Error("Pull blocked well past the wait")
	}
}

func TestMemoryQueue_PayloadCopied(t *testing.T) {
	q := NewMemoryQueue(DefaultConfig("test"))
	defer q.Close()

	ctx := context.Background()
	payload := []byte(`{"n":1}`)
	if err := q.Enqueue(ctx, payload); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	payload[5] = '9' // mutate the caller's buffer after enqueue

	items, err := q.Pull(ctx, 1, time.Second)
	if err != nil {
		t.Fatalf("Pull failed: %v", err)
	}
	if string(items[0]) != `{"n":1}` {
		t.Errorf("Payload not copied on enqueue: %s", items[0])
	}
}

func TestMemoryQueue_ConcurrentProducers(t *testing.T) {
	q := NewMemoryQueue(DefaultConfig("test"))
	defer q.Close()

	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := q.Enqueue(ctx, []byte(fmt.Sprintf(`{"n":%d}`, i))); err != nil {
				t.Errorf("Enqueue failed: %v", err)
			}
		}(i)
	}
	wg.Wait()

	length, err := q.Length(ctx)
	if err != nil {
		t.Fatalf("Length failed: %v", err)
	}
	if length != 20 {
		t.Errorf("Expected 20 items, got %d", length)
	}
}

func TestMemoryQueue_ClosedOperations(t *testing.T) {
	q := NewMemoryQueue(DefaultConfig("test"))
	if err := q.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	ctx := context.Background()
	if err := q.Enqueue(ctx, []byte(`{}`)); !errors.Is(err, ErrQueueClosed) {
		t.Errorf("Enqueue on closed queue: err = %v", err)
	}
	if _, err := q.Pull(ctx, 1, time.Millisecond); !errors.Is(err, ErrQueueClosed) {
		t.Errorf("Pull on closed queue: err = %v", err)
	}
	if err := q.Close(); err != nil {
		t.Errorf("Second close should be a no-op: %v", err)
	}
}

func TestMemoryDeadLetterQueue(t *testing.T) {
	dlq := NewMemoryDeadLetterQueue()
	defer dlq.Close()

	ctx := context.Background()
	cause := errors.New("insert failed")

	for i := 0; i < 3; i++ {
		if err := dlq.Add(ctx, []byte(fmt.Sprintf(`{"n":%d}`, i)), cause); err != nil {
			t.Fatalf("Add failed: %v", err)
		}
	}

	items, err := dlq.List(ctx, 0)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("Expected 3 items, got %d", len(items))
	}
	if items[0].Error != "insert failed" {
		t.Errorf("Error = %q", items[0].Error)
	}
	if string(items[0].Payload) != `{"n":0}` {
		t.Errorf("Arrival order broken: %s", items[0].Payload)
	}
	var parsed map[string]int
	if err := json.Unmarshal(items[1].Payload, &parsed); err != nil {
		t.Errorf("Payload not valid JSON: %v", err)
	}

	if err := dlq.Remove(ctx, items[1].ID); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if err := dlq.Remove(ctx, items[1].ID); !errors.Is(err, ErrItemNotFound) {
		t.Errorf("Second remove: err = %v, want ErrItemNotFound", err)
	}

	items, err = dlq.List(ctx, 0)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(items) != 2 {
		t.Errorf("Expected 2 items after remove, got %d", len(items))
	}
}

package queue

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func TestRedisQueue_EnqueuePull(t *testing.T) {
	client := newTestRedis(t)
	defer client.Close()

	q, err := NewRedisQueue(client, DefaultConfig("test-usage"))
	if err != nil {
		t.Fatalf("NewRedisQueue failed: %v", err)
	}

	ctx := context.Background()
	payload := []byte(`{"scan_id":"abc"}`)
	if err := q.Enqueue(ctx, payload); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	length, err := q.Length(ctx)
	if err != nil {
		t.Fatalf("Length failed: %v", err)
	}
	if length != 1 {
		t.Fatalf("Expected length 1, got %d", length)
	}

	items, err := q.Pull(ctx, 10, time.Second)
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

func TestRedisQueue_PullBatches(t *testing.T) {
	client := newTestRedis(t)
	defer client.Close()

	q, err := NewRedisQueue(client, DefaultConfig("test-usage"))
	if err != nil {
		t.Fatalf("NewRedisQueue failed: %v", err)
	}

	ctx := context.Background()
	for i := 0; i < 7; i++ {
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
	if length != 2 {
		t.Errorf("Expected 2 remaining, got %d", length)
	}
}

func TestRedisQueue_SurvivesReconnect(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	q, err := NewRedisQueue(client, DefaultConfig("test-usage"))
	if err != nil {
		t.Fatalf("NewRedisQueue failed: %v", err)
	}

	ctx := context.Background()
	if err := q.Enqueue(ctx, []byte(`{"n":1}`)); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	// A second queue over the same backing store sees the payload: the
	// list outlives any one process.
	second, err := NewRedisQueue(redis.NewClient(&redis.Options{Addr: mr.Addr()}), DefaultConfig("test-usage"))
	if err != nil {
		t.Fatalf("NewRedisQueue failed: %v", err)
	}
	items, err := second.Pull(ctx, 1, time.Second)
	if err != nil {
		t.Fatalf("Pull failed: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("Expected the persisted item, got %d", len(items))
	}
}

func TestRedisDeadLetterQueue(t *testing.T) {
	client := newTestRedis(t)
	defer client.Close()

	dlq, err := NewRedisDeadLetterQueue(client, DefaultConfig("test-usage"))
	if err != nil {
		t.Fatalf("NewRedisDeadLetterQueue failed: %v", err)
	}

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

	if err := dlq.Remove(ctx, items[0].ID); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if err := dlq.Remove(ctx, items[0].ID); !errors.Is(err, ErrItemNotFound) {
		t.Errorf("Second remove: err = %v, want ErrItemNotFound", err)
	}

	items, err = dlq.List(ctx, 2)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(items) != 2 {
		t.Errorf("Expected 2 items, got %d", len(items))
	}
}

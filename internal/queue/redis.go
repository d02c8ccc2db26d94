package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisQueue implements Queue on a Redis list. The client is shared with
// the rest of the process; closing the queue does not close it.
type RedisQueue struct {
	client *redis.Client
	key    string
}

// NewRedisQueue creates a Redis-backed queue and verifies connectivity.
func NewRedisQueue(client *redis.Client, config *Config) (*RedisQueue, error) {
	if config == nil {
		return nil, fmt.Errorf("config is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisQueue{
		client: client,
		key:    fmt.Sprintf("queue:%s", config.Name),
	}, nil
}

func (q *RedisQueue) Enqueue(ctx context.Context, payload []byte) error {
	if err := q.client.RPush(ctx, q.key, payload).Err(); err != nil {
		return fmt.Errorf("failed to push to Redis: %w", err)
	}
	return nil
}

func (q *RedisQueue) Pull(ctx context.Context, max int, wait time.Duration) ([]json.RawMessage, error) {
	// BLPop for the first payload; a timeout is an empty batch, not an
	// error.
	result, err := q.client.BLPop(ctx, wait, q.key).Result()
	if err == redis.Nil {
		return []json.RawMessage{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to pop from Redis: %w", err)
	}

	// result[0] is the key, result[1] the payload.
	items := []json.RawMessage{json.RawMessage(result[1])}
	if max <= 1 {
		return items, nil
	}

	rest, err := q.client.LPopCount(ctx, q.key, max-1).Result()
	if err != nil && err != redis.Nil {
		return items, nil // keep what we have
	}
	for _, payload := range rest {
		items = append(items, json.RawMessage(payload))
	}
	return items, nil
}

func (q *RedisQueue) Length(ctx context.Context) (int, error) {
	length, err := q.client.LLen(ctx, q.key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get queue length: %w", err)
	}
	return int(length), nil
}

// Close is a no-op; the shared client is owned by the caller.
func (q *RedisQueue) Close() error {
	return nil
}

// RedisDeadLetterQueue parks payloads in a Redis hash keyed by item id.
type RedisDeadLetterQueue struct {
	client *redis.Client
	key    string
}

// NewRedisDeadLetterQueue creates a Redis-backed dead letter queue.
func NewRedisDeadLetterQueue(client *redis.Client, config *Config) (*RedisDeadLetterQueue, error) {
	if config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return &RedisDeadLetterQueue{
		client: client,
		key:    fmt.Sprintf("dlq:%s", config.Name),
	}, nil
}

func (q *RedisDeadLetterQueue) Add(ctx context.Context, payload []byte, cause error) error {
	item := DeadLetterItem{
		ID:       uuid.NewString(),
		Payload:  payload,
		Error:    cause.Error(),
		FailedAt: time.Now(),
	}

	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to marshal dead letter item: %w", err)
	}
	if err := q.client.HSet(ctx, q.key, item.ID, data).Err(); err != nil {
		return fmt.Errorf("failed to add to dead letter queue: %w", err)
	}
	return nil
}

func (q *RedisDeadLetterQueue) List(ctx context.Context, max int) ([]DeadLetterItem, error) {
	results, err := q.client.HGetAll(ctx, q.key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list dead letter items: %w", err)
	}

	items := make([]DeadLetterItem, 0, len(results))
	for _, data := range results {
		var item DeadLetterItem
		if err := json.Unmarshal([]byte(data), &item); err != nil {
			continue // skip malformed entries
		}
		items = append(items, item)
		if max > 0 && len(items) >= max {
			break
		}
	}
	return items, nil
}

func (q *RedisDeadLetterQueue) Remove(ctx context.Context, id string) error {
	removed, err := q.client.HDel(ctx, q.key, id).Result()
	if err != nil {
		return fmt.Errorf("failed to remove from dead letter queue: %w", err)
	}
	if removed == 0 {
		return ErrItemNotFound
	}
	return nil
}

func (q *RedisDeadLetterQueue) Close() error {
	return nil
}

package offline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	// Fixed keys for the persisted queue: an ordered list of item ids and a
	// hash of id -> JSON record.
	queueOrderKey = "careview:offline:order"
	queueDataKey  = "careview:offline:items"
)

// RedisStore is the durable QueueStore backed by a redis list + hash. The
// list keeps enqueue order; the hash holds the serialized records so retry
// counts can be updated in place without disturbing ordering.
type RedisStore struct {
	client *redis.Client
	log    zerolog.Logger
}

// NewRedisStore connects to redis and verifies the connection.
func NewRedisStore(redisURL string, log zerolog.Logger) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return &RedisStore{client: client, log: log}, nil
}

// NewRedisStoreWithClient wraps an existing client (used by tests).
func NewRedisStoreWithClient(client *redis.Client, log zerolog.Logger) *RedisStore {
	return &RedisStore{client: client, log: log}
}

func (s *RedisStore) Append(ctx context.Context, item *QueueItem) error {
	raw, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("marshal queue item: %w", err)
	}
	// Record and ordering entry land together so a crash between the two
	// cannot produce a dangling id.
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, queueDataKey, item.ID, raw)
	pipe.RPush(ctx, queueOrderKey, item.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("persist queue item: %w", err)
	}
	return nil
}

func (s *RedisStore) Snapshot(ctx context.Context) ([]*QueueItem, error) {
	ids, err := s.client.LRange(ctx, queueOrderKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read queue order: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	var items []*QueueItem
	for _, id := range ids {
		raw, err := s.client.HGet(ctx, queueDataKey, id).Result()
		if err == redis.Nil {
			// Dangling ordering entry; drop it and keep going.
			s.dropRecord(ctx, id, "missing record for queued id")
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read queue item %s: %w", id, err)
		}
		var item QueueItem
		if err := json.Unmarshal([]byte(raw), &item); err != nil {
			// A corrupt record must not poison the rest of the queue.
			s.dropRecord(ctx, id, "malformed queue record dropped")
			continue
		}
		items = append(items, &item)
	}
	return items, nil
}

func (s *RedisStore) dropRecord(ctx context.Context, id, reason string) {
	s.log.Warn().Str("item_id", id).Msg(reason)
	pipe := s.client.TxPipeline()
	pipe.LRem(ctx, queueOrderKey, 1, id)
	pipe.HDel(ctx, queueDataKey, id)
	if _, err := pipe.Exec(ctx); err != nil {
		s.log.Error().Err(err).Str("item_id", id).Msg("failed to drop queue record")
	}
}

func (s *RedisStore) Remove(ctx context.Context, id string) error {
	pipe := s.client.TxPipeline()
	pipe.LRem(ctx, queueOrderKey, 1, id)
	pipe.HDel(ctx, queueDataKey, id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("remove queue item %s: %w", id, err)
	}
	return nil
}

func (s *RedisStore) IncrementRetry(ctx context.Context, id string) (int, error) {
	raw, err := s.client.HGet(ctx, queueDataKey, id).Result()
	if err == redis.Nil {
		return 0, fmt.Errorf("queue item %s not found", id)
	}
	if err != nil {
		return 0, fmt.Errorf("read queue item %s: %w", id, err)
	}
	var item QueueItem
	if err := json.Unmarshal([]byte(raw), &item); err != nil {
		return 0, fmt.Errorf("decode queue item %s: %w", id, err)
	}
	item.RetryCount++
	updated, err := json.Marshal(&item)
	if err != nil {
		return 0, fmt.Errorf("encode queue item %s: %w", id, err)
	}
	if err := s.client.HSet(ctx, queueDataKey, id, updated).Err(); err != nil {
		return 0, fmt.Errorf("update queue item %s: %w", id, err)
	}
	return item.RetryCount, nil
}

func (s *RedisStore) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, queueOrderKey, queueDataKey).Err(); err != nil {
		return fmt.Errorf("clear queue: %w", err)
	}
	return nil
}

func (s *RedisStore) Len(ctx context.Context) (int, error) {
	n, err := s.client.LLen(ctx, queueOrderKey).Result()
	if err != nil {
		return 0, fmt.Errorf("queue length: %w", err)
	}
	return int(n), nil
}

// Close releases the redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

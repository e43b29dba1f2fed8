package taskqueue

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisQueue is a Queue kept in a Redis sorted set at <prefix>:tasks,
// scored by NotBefore in unix nanoseconds. Members are JSON tasks.
type RedisQueue struct {
	client       redis.UniversalClient
	key          string
	pollInterval time.Duration
}

// NewRedisQueue constructs a Redis-backed Queue. prefix defaults to
// "pocketflow".
func NewRedisQueue(client redis.UniversalClient, prefix string) *RedisQueue {
	if prefix == "" {
		prefix = "pocketflow"
	}
	return &RedisQueue{
		client:       client,
		key:          prefix + ":tasks",
		pollInterval: 50 * time.Millisecond,
	}
}

var _ Queue = (*RedisQueue)(nil)

func (q *RedisQueue) Enqueue(ctx context.Context, t Task) error {
	data, err := EncodeTask(t)
	if err != nil {
		return err
	}
	score := t.NotBefore
	if score.IsZero() {
		score = time.Now()
	}
	return q.client.ZAdd(ctx, q.key, redis.Z{
		Score:  float64(score.UnixNano()),
		Member: string(data),
	}).Err()
}

// Dequeue polls for the lowest-scored ready member. ZREM decides which of
// several competing workers gets it.
func (q *RedisQueue) Dequeue(ctx context.Context) (*Task, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		members, err := q.client.ZRangeByScore(ctx, q.key, &redis.ZRangeBy{
			Min:   "-inf",
			Max:   strconv.FormatInt(time.Now().UnixNano(), 10),
			Count: 1,
		}).Result()
		if err != nil {
			return nil, err
		}
		if len(members) == 0 {
			if err := waitFor(ctx, q.pollInterval); err != nil {
				return nil, err
			}
			continue
		}

		removed, err := q.client.ZRem(ctx, q.key, members[0]).Result()
		if err != nil {
			return nil, err
		}
		if removed == 0 {
			continue // claimed by another worker
		}
		return DecodeTask([]byte(members[0]))
	}
}

func (q *RedisQueue) Len() int {
	n, err := q.client.ZCard(context.Background(), q.key).Result()
	if err != nil {
		slog.Warn("redis queue: count failed", "error", err)
		return 0
	}
	return int(n)
}

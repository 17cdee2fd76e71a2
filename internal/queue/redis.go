package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultKey is the Redis list used for pending job ids.
const DefaultKey = "creative:jobs"

type listClient interface {
	LPush(ctx context.Context, key string, values ...any) *redis.IntCmd
	BRPop(ctx context.Context, timeout time.Duration, keys ...string) *redis.StringSliceCmd
}

// Redis is a queue backed by a Redis list: LPUSH to enqueue, BRPOP to
// dequeue, so ids survive restarts of the worker process.
type Redis struct {
	client  listClient
	key     string
	timeout time.Duration
}

// NewRedis returns a queue on key.
func NewRedis(client listClient, key string) *Redis {
	if key == "" {
		key = DefaultKey
	}
	return &Redis{client: client, key: key, timeout: 2 * time.Second}
}

func (q *Redis) Push(ctx context.Context, jobID string) error {
	if err := q.client.LPush(ctx, q.key, jobID).Err(); err != nil {
		return fmt.Errorf("queue: lpush %s: %w", q.key, err)
	}
	return nil
}

func (q *Redis) Pop(ctx context.Context) (string, error) {
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		result, err := q.client.BRPop(ctx, q.timeout, q.key).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			return "", fmt.Errorf("queue: brpop %s: %w", q.key, err)
		}
		if len(result) < 2 {
			continue
		}
		// result[0] is the list name, result[1] the job id.
		return result[1], nil
	}
}

var _ Queue = (*Redis)(nil)

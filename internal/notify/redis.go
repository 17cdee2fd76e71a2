package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

type redisPublisher interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// RedisPublisher forwards events to a Redis pub/sub channel so API processes
// can relay events produced by standalone workers.
type RedisPublisher struct {
	client  redisPublisher
	channel string
}

// NewRedisPublisher publishes on channel.
func NewRedisPublisher(client redisPublisher, channel string) *RedisPublisher {
	return &RedisPublisher{client: client, channel: channel}
}

func (p *RedisPublisher) Publish(ctx context.Context, e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("notify: encode event: %w", err)
	}
	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("notify: redis publish: %w", err)
	}
	return nil
}

// RedisRelay subscribes to a Redis channel and republishes events locally.
type RedisRelay struct {
	client  *redis.Client
	channel string
	target  Publisher
	logger  zerolog.Logger
}

// NewRedisRelay relays events from channel to target.
func NewRedisRelay(client *redis.Client, channel string, target Publisher, logger *zerolog.Logger) *RedisRelay {
	l := zerolog.New(io.Discard)
	if logger != nil {
		l = *logger
	}
	return &RedisRelay{client: client, channel: channel, target: target, logger: l}
}

// Run blocks until ctx is cancelled.
func (r *RedisRelay) Run(ctx context.Context) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("notify: subscribe %s: %w", r.channel, err)
	}
	r.logger.Info().Str("channel", r.channel).Msg("notify: relay subscribed")
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			r.deliver(ctx, msg.Payload)
		}
	}
}

func (r *RedisRelay) deliver(ctx context.Context, payload string) {
	var e Event
	if err := json.Unmarshal([]byte(payload), &e); err != nil {
		r.logger.Warn().Err(err).Msg("notify: discard malformed event")
		return
	}
	if err := r.target.Publish(ctx, e); err != nil {
		r.logger.Warn().Err(err).Str("job_id", e.JobID).Msg("notify: relay publish failed")
	}
}

var _ Publisher = (*RedisPublisher)(nil)

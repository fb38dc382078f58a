package notification

import (
	"context"

	"github.com/go-redis/redis/v8"
)

// Publisher pushes a payload to subscribers of a channel
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// RedisPublisher fans notifications out through redis pub/sub
type RedisPublisher struct {
	client *redis.Client
}

func NewRedisPublisher(client *redis.Client) *RedisPublisher {
	return &RedisPublisher{client: client}
}

func (p *RedisPublisher) Publish(ctx context.Context, channel string, payload []byte) error {
	return p.client.Publish(ctx, channel, string(payload)).Err()
}

// NoOpPublisher is used when no redis is configured, notifications are still stored
type NoOpPublisher struct{}

func (NoOpPublisher) Publish(context.Context, string, []byte) error {
	return nil
}

package broadcast

import (
	"context"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// EventChannel is the Redis pub/sub channel carrying mirrored classroom
// events.
const EventChannel = "classpulse:events"

// RedisPublisher mirrors hub events to a Redis channel for dashboards or
// sibling instances that are not directly subscribed.
type RedisPublisher struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisPublisher creates a Redis-backed event mirror.
func NewRedisPublisher(client *redis.Client, logger *zap.Logger) *RedisPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisPublisher{client: client, logger: logger}
}

// PublishEvent publishes one encoded event line to the event channel. The
// event name travels inside the payload; a single channel keeps consumers
// simple.
func (p *RedisPublisher) PublishEvent(event string, payload []byte) error {
	return p.client.Publish(context.Background(), EventChannel, payload).Err()
}

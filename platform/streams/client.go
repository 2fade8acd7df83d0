// Package streams implements the event bus on Redis Streams.
//
// Each topic is one stream. Every subscribing service owns a consumer group
// named <service>_<topic> on that stream, which gives fan-out across services
// and a durable, acknowledged queue per service.
package streams

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"vetclinic_backend/platform/config"

	"github.com/redis/go-redis/v9"
)

const (
	streamPrefix     = "events:"
	deadLetterPrefix = "deadletter:"
)

// StreamKey is the Redis key of the stream carrying topic.
func StreamKey(topic string) string {
	return streamPrefix + topic
}

// QueueName is the consumer group a service uses for topic.
func QueueName(service, topic string) string {
	return service + "_" + topic
}

// DeadLetterKey is the stream receiving messages queue gave up on.
func DeadLetterKey(queue string) string {
	return deadLetterPrefix + queue
}

// NewClient creates a Redis client with bounded timeouts and performs a health check.
func NewClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	if cfg.GetRedisURL() == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opts, err := redis.ParseURL(cfg.GetRedisURL())
	if err != nil {
		return nil, err
	}

	if cfg.GetRedisTLSInsecure() {
		if opts.TLSConfig != nil {
			opts.TLSConfig = opts.TLSConfig.Clone()
			opts.TLSConfig.InsecureSkipVerify = true
		} else {
			opts.TLSConfig = &tls.Config{InsecureSkipVerify: true}
		}
	}

	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 10 * time.Second
	opts.WriteTimeout = 5 * time.Second

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}

	return client, nil
}

// Health exposes a Redis client as a readiness checker.
type Health struct {
	client redis.UniversalClient
}

// NewHealth wraps client for readiness checks.
func NewHealth(client redis.UniversalClient) *Health {
	return &Health{client: client}
}

// Ping checks Redis is reachable.
func (h *Health) Ping(ctx context.Context) error {
	return h.client.Ping(ctx).Err()
}

package streams

import (
	"context"
	"fmt"

	"vetclinic_backend/platform/events"

	"github.com/redis/go-redis/v9"
)

const defaultMaxLen = 100_000

// Publisher appends envelopes to topic streams.
type Publisher struct {
	client redis.Cmdable
	source string
	maxLen int64
}

// NewPublisher creates a publisher stamping source on envelopes that lack one.
func NewPublisher(client redis.Cmdable, source string) *Publisher {
	return &Publisher{client: client, source: source, maxLen: defaultMaxLen}
}

// Publish implements events.Publisher.
func (p *Publisher) Publish(ctx context.Context, topic string, env events.Envelope) error {
	if env.Source == "" {
		env.Source = p.source
	}
	if err := env.Validate(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}

	raw, err := env.Marshal()
	if err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}

	err = p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamKey(topic),
		MaxLen: p.maxLen,
		Approx: true,
		Values: map[string]any{
			fieldEventID:  env.EventID.String(),
			fieldType:     env.Type,
			fieldEnvelope: string(raw),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

var _ events.Publisher = (*Publisher)(nil)

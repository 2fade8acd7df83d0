package outbox

import (
	"context"
	"time"

	"vetclinic_backend/platform/apperr"
	"vetclinic_backend/platform/events"
	"vetclinic_backend/platform/logger"

	"github.com/google/uuid"
)

// DefaultGrace delays the dispatcher's claim on a fresh row so the
// immediate publish after commit normally wins.
const DefaultGrace = 10 * time.Second

// DefaultPublishTimeout bounds the publish attempt made on the request path.
const DefaultPublishTimeout = 3 * time.Second

// Store is the part of Repository the relay writes through.
type Store interface {
	Insert(ctx context.Context, topic string, env events.Envelope, runAt time.Time) error
	MarkPublished(ctx context.Context, id uuid.UUID) error
}

// Relay records events inside a unit of work and publishes them after commit.
type Relay struct {
	store          Store
	publisher      events.Publisher
	log            *logger.Logger
	grace          time.Duration
	publishTimeout time.Duration
	now            func() time.Time
}

func NewRelay(store Store, publisher events.Publisher, log *logger.Logger) *Relay {
	return &Relay{
		store:          store,
		publisher:      publisher,
		log:            log,
		grace:          DefaultGrace,
		publishTimeout: DefaultPublishTimeout,
		now:            time.Now,
	}
}

// Add stores env for topic. Call it inside the transaction that persists the
// entity; a failure aborts that transaction.
func (r *Relay) Add(ctx context.Context, topic string, env events.Envelope) error {
	if err := r.store.Insert(ctx, topic, env, r.now().UTC().Add(r.grace)); err != nil {
		return apperr.Persistence("failed to record event", err)
	}
	return nil
}

// Deliver publishes env once. It never fails the caller: on error the row
// stays pending and the dispatcher retries it.
func (r *Relay) Deliver(ctx context.Context, topic string, env events.Envelope) {
	if r.publisher == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.publishTimeout)
	defer cancel()

	if err := r.publisher.Publish(ctx, topic, env); err != nil {
		r.log.WithContext(ctx).DeliveryError(topic, env.EventID.String(), err)
		return
	}
	if err := r.store.MarkPublished(ctx, env.EventID); err != nil {
		r.log.WithContext(ctx).DatabaseError("outbox mark published", err)
	}
}

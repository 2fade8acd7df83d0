package scheduler

import (
	"context"
	"errors"
	"strconv"
	"time"

	"vetclinic_backend/internal/outbox"
	"vetclinic_backend/platform/config"
	"vetclinic_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// OutboxClaimer is the part of the outbox repository the dispatcher uses.
type OutboxClaimer interface {
	ClaimPending(ctx context.Context, limit int) ([]outbox.Record, error)
	ReleaseStale(ctx context.Context, olderThan time.Duration) (int64, error)
	MarkPending(ctx context.Context, id uuid.UUID, lastError *string) error
}

type enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	Close() error
}

// OutboxDispatcher moves due outbox rows onto the asynq queue, where the
// worker publishes them with retries.
type OutboxDispatcher struct {
	client   enqueuer
	queue    string
	repo     OutboxClaimer
	interval   time.Duration
	batch      int
	maxRetry   int
	staleAfter time.Duration
	log        *logger.Logger
}

func NewOutboxDispatcher(cfg config.SchedulerConfig, repo OutboxClaimer, log *logger.Logger) (*OutboxDispatcher, error) {
	conn, err := newConnection(cfg)
	if err != nil {
		return nil, err
	}

	interval := cfg.GetOutboxPollInterval()
	if interval <= 0 {
		interval = 2 * time.Second
	}

	maxRetry := cfg.GetOutboxMaxAttempts() - 1
	if maxRetry < 0 {
		maxRetry = 0
	}

	staleAfter := cfg.GetOutboxStaleAfter()
	if staleAfter <= 0 {
		staleAfter = 10 * time.Minute
	}

	return &OutboxDispatcher{
		client:     asynq.NewClient(conn.redis),
		queue:      conn.queue,
		repo:       repo,
		interval:   interval,
		batch:      cfg.GetOutboxBatchSize(),
		maxRetry:   maxRetry,
		staleAfter: staleAfter,
		log:        log,
	}, nil
}

func (d *OutboxDispatcher) Close() error {
	if d == nil || d.client == nil {
		return nil
	}
	return d.client.Close()
}

func (d *OutboxDispatcher) Run(ctx context.Context) {
	if d == nil || d.client == nil || d.repo == nil {
		return
	}

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if _, err := d.DispatchOnce(ctx); err != nil && ctx.Err() == nil {
			d.log.Warn("outbox claim failed", "error", err)
		}
	}
}

// DispatchOnce releases stale rows, then claims one batch and enqueues a
// publish task per row. Rows that cannot be enqueued go back to pending.
func (d *OutboxDispatcher) DispatchOnce(ctx context.Context) (int, error) {
	released, err := d.repo.ReleaseStale(ctx, d.staleAfter)
	if err != nil {
		d.log.Warn("outbox stale release failed", "error", err)
	} else if released > 0 {
		d.log.Info("released stale outbox rows", "count", released)
	}

	records, err := d.repo.ClaimPending(ctx, d.batch)
	if err != nil {
		return 0, err
	}

	enqueued := 0
	for _, rec := range records {
		task, err := NewOutboxPublishTask(OutboxPublishPayload{
			EventID: rec.ID.String(),
			Topic:   rec.Topic,
		})
		if err != nil {
			d.release(ctx, rec.ID, err)
			continue
		}

		_, err = d.client.EnqueueContext(ctx, task,
			asynq.Queue(d.queue),
			asynq.MaxRetry(d.maxRetry),
			asynq.TaskID(outboxTaskID(rec)),
		)
		if err != nil && !errors.Is(err, asynq.ErrTaskIDConflict) {
			d.release(ctx, rec.ID, err)
			continue
		}
		enqueued++
	}
	return enqueued, nil
}

func (d *OutboxDispatcher) release(ctx context.Context, id uuid.UUID, cause error) {
	msg := cause.Error()
	if err := d.repo.MarkPending(ctx, id, &msg); err != nil {
		d.log.Warn("outbox release failed", "outboxId", id, "error", err)
	}
}

// outboxTaskID dedupes enqueues of one delivery attempt. A row released
// after its task started processing has more attempts and gets a new task.
func outboxTaskID(rec outbox.Record) string {
	return "outbox:" + rec.ID.String() + ":" + strconv.Itoa(rec.Attempts)
}

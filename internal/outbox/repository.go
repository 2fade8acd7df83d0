// Package outbox stores events in the same transaction as the entity they
// describe and hands them to the bus once that transaction has committed.
package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"vetclinic_backend/platform/apperr"
	"vetclinic_backend/platform/db"
	"vetclinic_backend/platform/events"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusEnqueued   Status = "enqueued"
	StatusProcessing Status = "processing"
	StatusPublished  Status = "published"
	StatusFailed     Status = "failed"

	errRepoNotConfigured = "outbox repository not configured"
)

// Record is one stored event. ID equals the envelope's event id.
type Record struct {
	ID       uuid.UUID
	Topic    string
	Envelope events.Envelope
	RunAt    time.Time
	Status   Status
	Attempts int
}

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert writes env for topic. It joins the transaction carried by ctx.
func (r *Repository) Insert(ctx context.Context, topic string, env events.Envelope, runAt time.Time) error {
	if r == nil || r.pool == nil {
		return errors.New(errRepoNotConfigured)
	}
	if topic == "" {
		return fmt.Errorf("topic is required")
	}
	if err := env.Validate(); err != nil {
		return err
	}
	if runAt.IsZero() {
		runAt = time.Now().UTC()
	}

	raw, err := env.Marshal()
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	_, err = db.Conn(ctx, r.pool).Exec(ctx,
		`INSERT INTO event_outbox (id, topic, aggregate_id, envelope, run_at, status)
		 VALUES ($1, $2, $3, $4, $5, 'pending')`,
		env.EventID, topic, env.AggregateID, raw, runAt,
	)
	return err
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (Record, error) {
	if r == nil || r.pool == nil {
		return Record{}, errors.New(errRepoNotConfigured)
	}

	rec, err := scanRecord(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT id, topic, envelope, run_at, status, attempts
		 FROM event_outbox
		 WHERE id = $1`,
		id,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, apperr.NotFound("outbox record not found")
	}
	return rec, err
}

// ClaimPending moves up to limit due rows to enqueued and returns them.
// Concurrent dispatchers never claim the same row.
func (r *Repository) ClaimPending(ctx context.Context, limit int) ([]Record, error) {
	if r == nil || r.pool == nil {
		return nil, errors.New(errRepoNotConfigured)
	}
	if limit < 1 {
		limit = 50
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `WITH cte AS (
		SELECT id
		FROM event_outbox
		WHERE status = 'pending' AND run_at <= now()
		ORDER BY run_at ASC
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	)
	UPDATE event_outbox o
	SET status = 'enqueued', updated_at = now()
	FROM cte
	WHERE o.id = cte.id
	RETURNING o.id, o.topic, o.envelope, o.run_at, o.status, o.attempts`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return results, nil
}

// ReleaseStale returns rows left enqueued or processing for longer than
// olderThan to pending, so rows orphaned by a crashed dispatcher or worker
// are claimed again.
func (r *Repository) ReleaseStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	if r == nil || r.pool == nil {
		return 0, errors.New(errRepoNotConfigured)
	}
	tag, err := r.pool.Exec(ctx,
		`UPDATE event_outbox
		 SET status = 'pending', updated_at = now()
		 WHERE status IN ('enqueued', 'processing')
		   AND updated_at < now() - make_interval(secs => $1)`,
		olderThan.Seconds(),
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *Repository) MarkPending(ctx context.Context, id uuid.UUID, lastError *string) error {
	return r.exec(ctx,
		`UPDATE event_outbox
		 SET status = 'pending', last_error = $2, updated_at = now()
		 WHERE id = $1 AND status <> 'published'`,
		id, lastError,
	)
}

func (r *Repository) MarkProcessing(ctx context.Context, id uuid.UUID) error {
	return r.exec(ctx,
		`UPDATE event_outbox
		 SET status = 'processing', attempts = attempts + 1, updated_at = now()
		 WHERE id = $1`,
		id,
	)
}

func (r *Repository) MarkPublished(ctx context.Context, id uuid.UUID) error {
	return r.exec(ctx,
		`UPDATE event_outbox
		 SET status = 'published', last_error = NULL, published_at = now(), updated_at = now()
		 WHERE id = $1`,
		id,
	)
}

func (r *Repository) MarkFailed(ctx context.Context, id uuid.UUID, lastError string) error {
	return r.exec(ctx,
		`UPDATE event_outbox
		 SET status = 'failed', last_error = $2, updated_at = now()
		 WHERE id = $1`,
		id, lastError,
	)
}

func (r *Repository) exec(ctx context.Context, sql string, args ...any) error {
	if r == nil || r.pool == nil {
		return errors.New(errRepoNotConfigured)
	}
	_, err := db.Conn(ctx, r.pool).Exec(ctx, sql, args...)
	return err
}

func scanRecord(row pgx.Row) (Record, error) {
	var (
		rec    Record
		raw    []byte
		status string
	)
	if err := row.Scan(&rec.ID, &rec.Topic, &raw, &rec.RunAt, &status, &rec.Attempts); err != nil {
		return Record{}, err
	}
	if err := json.Unmarshal(raw, &rec.Envelope); err != nil {
		return Record{}, fmt.Errorf("decode outbox envelope %s: %w", rec.ID, err)
	}
	rec.Status = Status(status)
	return rec, nil
}

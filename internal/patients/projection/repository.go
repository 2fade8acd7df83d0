package projection

import (
	"context"
	"errors"
	"fmt"

	"vetclinic_backend/platform/apperr"
	"vetclinic_backend/platform/db"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const projectionNotFoundMsg = "projection not found"

// Repository stores projections and the processed-event inbox in Postgres.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// MarkProcessed records eventID for consumer. It reports false when the
// event was already recorded.
func (r *Repository) MarkProcessed(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error) {
	result, err := db.Conn(ctx, r.pool).Exec(ctx,
		`INSERT INTO processed_events (consumer, event_id, processed_at)
		 VALUES ($1, $2, now())
		 ON CONFLICT (consumer, event_id) DO NOTHING`,
		consumer, eventID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to record processed event: %w", err)
	}
	return result.RowsAffected() == 1, nil
}

// Upsert writes rec unless the stored version is already >= rec.Version.
func (r *Repository) Upsert(ctx context.Context, rec Record) (bool, error) {
	result, err := db.Conn(ctx, r.pool).Exec(ctx,
		`INSERT INTO projections (kind, id, patient_id, version, document, source_event_id, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (kind, id) DO UPDATE SET
			patient_id = EXCLUDED.patient_id,
			version = EXCLUDED.version,
			document = EXCLUDED.document,
			source_event_id = EXCLUDED.source_event_id,
			updated_at = EXCLUDED.updated_at
		 WHERE projections.version < EXCLUDED.version`,
		string(rec.Kind), rec.ID, rec.PatientID, rec.Version, []byte(rec.Document), rec.SourceEventID, rec.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to upsert %s projection: %w", rec.Kind, err)
	}
	return result.RowsAffected() == 1, nil
}

func (r *Repository) Get(ctx context.Context, kind Kind, id string) (Record, error) {
	rec, err := scanRecord(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT kind, id, patient_id, version, document, source_event_id, updated_at
		 FROM projections WHERE kind = $1 AND id = $2`,
		string(kind), id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, apperr.NotFound(projectionNotFoundMsg)
		}
		return Record{}, fmt.Errorf("failed to get %s projection: %w", kind, err)
	}
	return rec, nil
}

func (r *Repository) ListByPatient(ctx context.Context, kind Kind, patientID string) ([]Record, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx,
		`SELECT kind, id, patient_id, version, document, source_event_id, updated_at
		 FROM projections WHERE kind = $1 AND patient_id = $2
		 ORDER BY updated_at DESC`,
		string(kind), patientID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s projections: %w", kind, err)
	}
	defer rows.Close()

	items := make([]Record, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan projection: %w", err)
		}
		items = append(items, rec)
	}
	return items, rows.Err()
}

func scanRecord(row pgx.Row) (Record, error) {
	var (
		rec  Record
		kind string
		doc  []byte
	)
	if err := row.Scan(&kind, &rec.ID, &rec.PatientID, &rec.Version, &doc, &rec.SourceEventID, &rec.UpdatedAt); err != nil {
		return Record{}, err
	}
	rec.Kind = Kind(kind)
	rec.Document = doc
	return rec, nil
}

package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"vetclinic_backend/internal/records/domain"
	"vetclinic_backend/platform/apperr"
	"vetclinic_backend/platform/db"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	recordNotFoundMsg = "record not found"
	patientMismatch   = "record belongs to another patient"
)

// Repository stores clinical records as JSONB documents keyed by (kind, id).
type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Upsert writes document and returns the record's new version: 1 on insert,
// previous+1 on update. A record cannot move to another patient.
func (r *Repository) Upsert(ctx context.Context, kind domain.Kind, id, patientID string, document []byte, updatedAt time.Time) (int64, error) {
	query := `
		INSERT INTO clinical_records (kind, id, patient_id, version, document, updated_at)
		VALUES ($1, $2, $3, 1, $4, $5)
		ON CONFLICT (kind, id) DO UPDATE SET
			document = EXCLUDED.document,
			version = clinical_records.version + 1,
			updated_at = EXCLUDED.updated_at
		WHERE clinical_records.patient_id = EXCLUDED.patient_id
		RETURNING version`

	var version int64
	err := db.Conn(ctx, r.pool).QueryRow(ctx, query, string(kind), id, patientID, document, updatedAt).Scan(&version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, apperr.Validation(patientMismatch)
		}
		return 0, fmt.Errorf("failed to upsert %s record: %w", kind, err)
	}
	return version, nil
}

func (r *Repository) Get(ctx context.Context, kind domain.Kind, id string) (domain.Stored, error) {
	query := `SELECT kind, id, patient_id, version, document, updated_at
		FROM clinical_records WHERE kind = $1 AND id = $2`

	var (
		rec     domain.Stored
		kindRaw string
	)
	err := db.Conn(ctx, r.pool).QueryRow(ctx, query, string(kind), id).Scan(
		&kindRaw, &rec.ID, &rec.PatientID, &rec.Version, &rec.Document, &rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Stored{}, apperr.NotFound(recordNotFoundMsg)
		}
		return domain.Stored{}, fmt.Errorf("failed to get %s record: %w", kind, err)
	}
	rec.Kind = domain.Kind(kindRaw)
	return rec, nil
}

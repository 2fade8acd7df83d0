package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"vetclinic_backend/internal/appointments/domain"
	"vetclinic_backend/platform/apperr"
	"vetclinic_backend/platform/db"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	appointmentNotFoundMsg = "appointment not found"
	slotTakenMsg           = "veterinarian already has an appointment in this time window"
	concurrentUpdateMsg    = "appointment was modified concurrently"

	selectColumns = `id, client_id, patient_id, veterinarian_id, appointment_date, duration_minutes,
		status, reason, notes, confirmed_by, started_by, completed_by, completed_notes,
		cancelled_by, cancellation_reason, created_at, updated_at, version`
)

// Repository provides database operations for appointments. Every method
// joins the transaction carried by ctx when there is one.
type Repository struct {
	pool *pgxpool.Pool
}

// New creates a new appointments repository
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// FindByID retrieves an appointment by its ID
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	query := `SELECT ` + selectColumns + ` FROM appointments WHERE id = $1`

	appt, err := scanAppointment(db.Conn(ctx, r.pool).QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Appointment{}, apperr.NotFound(appointmentNotFoundMsg)
		}
		return domain.Appointment{}, fmt.Errorf("failed to get appointment: %w", err)
	}
	return appt, nil
}

// FindByVeterinarianIDAndDateRange returns the veterinarian's bookings whose
// interval overlaps [start, end), cancelled ones included.
func (r *Repository) FindByVeterinarianIDAndDateRange(ctx context.Context, vetID uuid.UUID, start, end time.Time) ([]domain.Appointment, error) {
	query := `SELECT ` + selectColumns + `
		FROM appointments
		WHERE veterinarian_id = $1
		  AND appointment_date < $3
		  AND appointment_date + make_interval(mins => duration_minutes) > $2
		ORDER BY appointment_date ASC`

	return r.list(ctx, "failed to list veterinarian appointments", query, vetID, start.UTC(), end.UTC())
}

// FindByClientID lists a client's appointments, most recent first.
func (r *Repository) FindByClientID(ctx context.Context, clientID uuid.UUID) ([]domain.Appointment, error) {
	query := `SELECT ` + selectColumns + `
		FROM appointments
		WHERE client_id = $1
		ORDER BY appointment_date DESC`

	return r.list(ctx, "failed to list client appointments", query, clientID)
}

// Save inserts a new appointment. An overlap caught by the exclusion
// constraint is reported as a scheduling conflict.
func (r *Repository) Save(ctx context.Context, appt domain.Appointment) error {
	query := `
		INSERT INTO appointments (
			id, client_id, patient_id, veterinarian_id, appointment_date, duration_minutes,
			status, reason, notes, confirmed_by, started_by, completed_by, completed_notes,
			cancelled_by, cancellation_reason, created_at, updated_at, version
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18
		)`

	_, err := db.Conn(ctx, r.pool).Exec(ctx, query,
		appt.ID, appt.ClientID, appt.PatientID, appt.VeterinarianID, appt.AppointmentDate, appt.Duration,
		string(appt.Status), appt.Reason, appt.Notes, appt.ConfirmedBy, appt.StartedBy, appt.CompletedBy,
		appt.CompletedNotes, appt.CancelledBy, appt.CancellationReason, appt.CreatedAt, appt.UpdatedAt, appt.Version,
	)
	if err != nil {
		if db.IsExclusionViolation(err) {
			return apperr.SchedulingConflict(slotTakenMsg)
		}
		return fmt.Errorf("failed to create appointment: %w", err)
	}
	return nil
}

// Update writes appt if the stored row is still at appt.Version-1.
func (r *Repository) Update(ctx context.Context, appt domain.Appointment) error {
	query := `
		UPDATE appointments SET
			status = $2,
			confirmed_by = $3,
			started_by = $4,
			completed_by = $5,
			completed_notes = $6,
			cancelled_by = $7,
			cancellation_reason = $8,
			notes = $9,
			updated_at = $10,
			version = $11
		WHERE id = $1 AND version = $12`

	result, err := db.Conn(ctx, r.pool).Exec(ctx, query,
		appt.ID, string(appt.Status), appt.ConfirmedBy, appt.StartedBy, appt.CompletedBy, appt.CompletedNotes,
		appt.CancelledBy, appt.CancellationReason, appt.Notes, appt.UpdatedAt, appt.Version, appt.Version-1,
	)
	if err != nil {
		if db.IsExclusionViolation(err) {
			return apperr.SchedulingConflict(slotTakenMsg)
		}
		return fmt.Errorf("failed to update appointment: %w", err)
	}

	if result.RowsAffected() == 0 {
		exists, err := r.Exists(ctx, appt.ID)
		if err != nil {
			return err
		}
		if !exists {
			return apperr.NotFound(appointmentNotFoundMsg)
		}
		return apperr.InvalidState(concurrentUpdateMsg)
	}
	return nil
}

// Delete removes an appointment
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := db.Conn(ctx, r.pool).Exec(ctx, `DELETE FROM appointments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete appointment: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperr.NotFound(appointmentNotFoundMsg)
	}
	return nil
}

func (r *Repository) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	var exists bool
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM appointments WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check appointment: %w", err)
	}
	return exists, nil
}

// LockVeterinarian takes a transaction-scoped advisory lock on the
// veterinarian's calendar. It must run inside a transaction.
func (r *Repository) LockVeterinarian(ctx context.Context, vetID uuid.UUID) error {
	tx, ok := db.TxFromContext(ctx)
	if !ok {
		return errors.New("lock veterinarian: no transaction in context")
	}
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1::text, 0))`, vetID.String()); err != nil {
		return fmt.Errorf("failed to lock veterinarian calendar: %w", err)
	}
	return nil
}

func (r *Repository) list(ctx context.Context, errMsg, query string, args ...any) ([]domain.Appointment, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errMsg, err)
	}
	defer rows.Close()

	items := make([]domain.Appointment, 0)
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan appointment: %w", err)
		}
		items = append(items, appt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", errMsg, err)
	}
	return items, nil
}

func scanAppointment(row pgx.Row) (domain.Appointment, error) {
	var (
		appt   domain.Appointment
		status string
	)
	err := row.Scan(
		&appt.ID, &appt.ClientID, &appt.PatientID, &appt.VeterinarianID, &appt.AppointmentDate, &appt.Duration,
		&status, &appt.Reason, &appt.Notes, &appt.ConfirmedBy, &appt.StartedBy, &appt.CompletedBy,
		&appt.CompletedNotes, &appt.CancelledBy, &appt.CancellationReason, &appt.CreatedAt, &appt.UpdatedAt, &appt.Version,
	)
	if err != nil {
		return domain.Appointment{}, err
	}
	appt.Status = domain.Status(status)
	appt.AppointmentDate = appt.AppointmentDate.UTC()
	return appt, nil
}

// Package domain holds the appointment entity, its lifecycle rules and the
// scheduling conflict detector. Nothing here touches storage or the bus.
package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of an appointment.
type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusConfirmed Status = "confirmed"
	StatusStarted   Status = "started"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// MaxDurationMinutes bounds a single booking.
const MaxDurationMinutes = 480

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusScheduled, StatusConfirmed, StatusStarted, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is allowed from s.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

var (
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrInvalidDuration    = fmt.Errorf("duration must be between 1 and %d minutes", MaxDurationMinutes)
	ErrDateInPast         = errors.New("appointment date must not be in the past")
	ErrMissingParticipant = errors.New("clientId, patientId and veterinarianId are required")
	ErrActorRequired      = errors.New("actor is required")
)

// TransitionError describes a rejected transition.
type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	if e.From.IsTerminal() {
		return fmt.Sprintf("appointment is %s and cannot become %s", e.From, e.To)
	}
	return fmt.Sprintf("appointment cannot move from %s to %s", e.From, e.To)
}

// Is lets errors.Is match ErrInvalidTransition.
func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// CanTransition reports whether the lifecycle allows from -> to.
//
//	scheduled -> confirmed | cancelled
//	confirmed -> started   | cancelled
//	started   -> completed | cancelled
func CanTransition(from, to Status) bool {
	switch from {
	case StatusScheduled:
		return to == StatusConfirmed || to == StatusCancelled
	case StatusConfirmed:
		return to == StatusStarted || to == StatusCancelled
	case StatusStarted:
		return to == StatusCompleted || to == StatusCancelled
	default:
		return false
	}
}

// Appointment is an immutable booking value. Transitions return a new value.
type Appointment struct {
	ID                 uuid.UUID
	ClientID           uuid.UUID
	PatientID          uuid.UUID
	VeterinarianID     uuid.UUID
	AppointmentDate    time.Time
	Duration           int
	Status             Status
	Reason             string
	Notes              string
	ConfirmedBy        string
	StartedBy          string
	CompletedBy        string
	CompletedNotes     string
	CancelledBy        string
	CancellationReason string
	CreatedAt          time.Time
	UpdatedAt          time.Time
	Version            int64
}

// NewAppointmentParams are the caller-supplied fields of a booking.
type NewAppointmentParams struct {
	ClientID        uuid.UUID
	PatientID       uuid.UUID
	VeterinarianID  uuid.UUID
	AppointmentDate time.Time
	Duration        int
	Reason          string
	Notes           string
}

// NewAppointment builds a scheduled appointment at version 1.
func NewAppointment(id uuid.UUID, p NewAppointmentParams, now time.Time) (Appointment, error) {
	if p.ClientID == uuid.Nil || p.PatientID == uuid.Nil || p.VeterinarianID == uuid.Nil {
		return Appointment{}, ErrMissingParticipant
	}
	if p.Duration <= 0 || p.Duration > MaxDurationMinutes {
		return Appointment{}, ErrInvalidDuration
	}
	if p.AppointmentDate.Before(now) {
		return Appointment{}, ErrDateInPast
	}

	now = now.UTC()
	return Appointment{
		ID:              id,
		ClientID:        p.ClientID,
		PatientID:       p.PatientID,
		VeterinarianID:  p.VeterinarianID,
		AppointmentDate: p.AppointmentDate.UTC(),
		Duration:        p.Duration,
		Status:          StatusScheduled,
		Reason:          p.Reason,
		Notes:           p.Notes,
		CreatedAt:       now,
		UpdatedAt:       now,
		Version:         1,
	}, nil
}

// End is the exclusive end of the booked interval.
func (a Appointment) End() time.Time {
	return a.AppointmentDate.Add(time.Duration(a.Duration) * time.Minute)
}

func (a Appointment) transition(to Status, actor string, now time.Time) (Appointment, error) {
	if !CanTransition(a.Status, to) {
		return Appointment{}, &TransitionError{From: a.Status, To: to}
	}
	if actor == "" {
		return Appointment{}, ErrActorRequired
	}

	next := a
	next.Status = to
	next.UpdatedAt = now.UTC()
	next.Version = a.Version + 1
	return next, nil
}

// Confirm moves a scheduled appointment to confirmed.
func (a Appointment) Confirm(actor string, now time.Time) (Appointment, error) {
	next, err := a.transition(StatusConfirmed, actor, now)
	if err != nil {
		return Appointment{}, err
	}
	next.ConfirmedBy = actor
	return next, nil
}

// Start checks the patient in.
func (a Appointment) Start(actor string, now time.Time) (Appointment, error) {
	next, err := a.transition(StatusStarted, actor, now)
	if err != nil {
		return Appointment{}, err
	}
	next.StartedBy = actor
	return next, nil
}

// Complete closes a started appointment.
func (a Appointment) Complete(actor, notes string, now time.Time) (Appointment, error) {
	next, err := a.transition(StatusCompleted, actor, now)
	if err != nil {
		return Appointment{}, err
	}
	next.CompletedBy = actor
	next.CompletedNotes = notes
	return next, nil
}

// Cancel releases the slot from any non-terminal state.
func (a Appointment) Cancel(actor, reason string, now time.Time) (Appointment, error) {
	next, err := a.transition(StatusCancelled, actor, now)
	if err != nil {
		return Appointment{}, err
	}
	next.CancelledBy = actor
	next.CancellationReason = reason
	return next, nil
}

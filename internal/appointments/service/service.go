package service

import (
	"context"
	"errors"
	"time"

	"vetclinic_backend/internal/appointments/domain"
	"vetclinic_backend/internal/appointments/transport"
	"vetclinic_backend/internal/scheduler"
	"vetclinic_backend/platform/apperr"
	"vetclinic_backend/platform/db"
	eventbus "vetclinic_backend/platform/events"
	"vetclinic_backend/platform/logger"
	"vetclinic_backend/platform/sanitize"

	"github.com/google/uuid"
)

const (
	errSlotTaken     = "veterinarian already has an appointment in this time window"
	errStoreFailure  = "failed to store appointment"
	errLoadFailure   = "failed to load appointments"
	errWindowInvalid = "to must be after from"
	reminderLeadTime = 24 * time.Hour
)

// Repository is the appointment store the use cases run against.
type Repository interface {
	FindByID(ctx context.Context, id uuid.UUID) (domain.Appointment, error)
	FindByVeterinarianIDAndDateRange(ctx context.Context, vetID uuid.UUID, start, end time.Time) ([]domain.Appointment, error)
	FindByClientID(ctx context.Context, clientID uuid.UUID) ([]domain.Appointment, error)
	Save(ctx context.Context, appt domain.Appointment) error
	Update(ctx context.Context, appt domain.Appointment) error
	Delete(ctx context.Context, id uuid.UUID) error
	LockVeterinarian(ctx context.Context, vetID uuid.UUID) error
}

// EventRecorder writes events inside the unit of work and delivers them
// after it commits.
type EventRecorder interface {
	Add(ctx context.Context, topic string, env eventbus.Envelope) error
	Deliver(ctx context.Context, topic string, env eventbus.Envelope)
}

// Service provides business logic for appointments
type Service struct {
	repo      Repository
	scope     db.Scope
	events    EventRecorder
	reminders scheduler.ReminderScheduler
	locks     *calendarLocks
	log       *logger.Logger
	now       func() time.Time
}

// New creates a new appointments service. reminders may be nil.
func New(repo Repository, scope db.Scope, recorder EventRecorder, reminders scheduler.ReminderScheduler, log *logger.Logger) *Service {
	return &Service{
		repo:      repo,
		scope:     scope,
		events:    recorder,
		reminders: reminders,
		locks:     newCalendarLocks(),
		log:       log,
		now:       time.Now,
	}
}

// Create books an appointment after checking the veterinarian's calendar.
func (s *Service) Create(ctx context.Context, actor string, req transport.CreateAppointmentRequest) (domain.Appointment, error) {
	appt, err := domain.NewAppointment(uuid.New(), domain.NewAppointmentParams{
		ClientID:        req.ClientID,
		PatientID:       req.PatientID,
		VeterinarianID:  req.VeterinarianID,
		AppointmentDate: req.AppointmentDate,
		Duration:        req.Duration,
		Reason:          sanitize.Text(req.Reason),
		Notes:           sanitize.Text(req.Notes),
	}, s.now())
	if err != nil {
		return domain.Appointment{}, apperr.Validation(err.Error())
	}

	topic, env, err := s.book(ctx, appt)
	if err != nil {
		return domain.Appointment{}, storeError(err, errStoreFailure)
	}

	s.log.WithContext(ctx).Info("appointment booked",
		"appointmentId", appt.ID,
		"veterinarianId", appt.VeterinarianID,
		"actor", actor,
	)
	s.events.Deliver(ctx, topic, env)
	s.scheduleReminder(ctx, appt)
	return appt, nil
}

// book checks the calendar and stores appt with its outbox row. The
// veterinarian's calendar lock is held only until the transaction ends.
func (s *Service) book(ctx context.Context, appt domain.Appointment) (topic string, env eventbus.Envelope, err error) {
	unlock := s.locks.Lock(appt.VeterinarianID)
	defer unlock()

	err = s.scope.Execute(ctx, func(ctx context.Context) error {
		if err := s.repo.LockVeterinarian(ctx, appt.VeterinarianID); err != nil {
			return err
		}

		start, end := domain.Window(appt.AppointmentDate, appt.Duration)
		existing, err := s.repo.FindByVeterinarianIDAndDateRange(ctx, appt.VeterinarianID, start, end)
		if err != nil {
			return err
		}
		if domain.HasConflict(appt.VeterinarianID, start, appt.Duration, domain.ActiveOnly(existing)) {
			return apperr.SchedulingConflict(errSlotTaken)
		}

		if err := s.repo.Save(ctx, appt); err != nil {
			return err
		}

		topic, env, err = envelopeFor(appt)
		if err != nil {
			return err
		}
		return s.events.Add(ctx, topic, env)
	})
	return topic, env, err
}

// Confirm moves a scheduled appointment to confirmed.
func (s *Service) Confirm(ctx context.Context, id uuid.UUID, actor string) (domain.Appointment, error) {
	return s.transition(ctx, id, domain.StatusConfirmed, func(a domain.Appointment, now time.Time) (domain.Appointment, error) {
		return a.Confirm(actor, now)
	})
}

// Start checks the patient in.
func (s *Service) Start(ctx context.Context, id uuid.UUID, actor string) (domain.Appointment, error) {
	return s.transition(ctx, id, domain.StatusStarted, func(a domain.Appointment, now time.Time) (domain.Appointment, error) {
		return a.Start(actor, now)
	})
}

// Complete closes a started appointment.
func (s *Service) Complete(ctx context.Context, id uuid.UUID, actor, notes string) (domain.Appointment, error) {
	return s.transition(ctx, id, domain.StatusCompleted, func(a domain.Appointment, now time.Time) (domain.Appointment, error) {
		return a.Complete(actor, sanitize.Text(notes), now)
	})
}

// Cancel releases the appointment's slot.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, actor, reason string) (domain.Appointment, error) {
	return s.transition(ctx, id, domain.StatusCancelled, func(a domain.Appointment, now time.Time) (domain.Appointment, error) {
		return a.Cancel(actor, sanitize.Text(reason), now)
	})
}

// GetByID retrieves an appointment
func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	appt, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return domain.Appointment{}, storeError(err, errLoadFailure)
	}
	return appt, nil
}

// ListByClient lists a client's appointments.
func (s *Service) ListByClient(ctx context.Context, clientID uuid.UUID) ([]domain.Appointment, error) {
	items, err := s.repo.FindByClientID(ctx, clientID)
	if err != nil {
		return nil, storeError(err, errLoadFailure)
	}
	return items, nil
}

// ListForVeterinarian returns every booking of vetID overlapping [from, to).
func (s *Service) ListForVeterinarian(ctx context.Context, vetID uuid.UUID, from, to time.Time) ([]domain.Appointment, error) {
	if !to.After(from) {
		return nil, apperr.Validation(errWindowInvalid)
	}
	items, err := s.repo.FindByVeterinarianIDAndDateRange(ctx, vetID, from, to)
	if err != nil {
		return nil, storeError(err, errLoadFailure)
	}
	return items, nil
}

// Delete removes an appointment without emitting an event.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return storeError(err, errStoreFailure)
	}
	return nil
}

// transition loads the appointment, applies fn and persists the result with
// its event. Asking for the status it already has returns it unchanged.
func (s *Service) transition(ctx context.Context, id uuid.UUID, target domain.Status, fn func(domain.Appointment, time.Time) (domain.Appointment, error)) (domain.Appointment, error) {
	var (
		next    domain.Appointment
		topic   string
		env     eventbus.Envelope
		changed bool
	)

	err := s.scope.Execute(ctx, func(ctx context.Context) error {
		current, err := s.repo.FindByID(ctx, id)
		if err != nil {
			return err
		}
		if current.Status == target {
			next = current
			return nil
		}

		next, err = fn(current, s.now())
		if err != nil {
			return transitionError(err)
		}
		if err := s.repo.Update(ctx, next); err != nil {
			return err
		}

		topic, env, err = envelopeFor(next)
		if err != nil {
			return err
		}
		changed = true
		return s.events.Add(ctx, topic, env)
	})
	if err != nil {
		return domain.Appointment{}, storeError(err, errStoreFailure)
	}

	if changed {
		s.log.WithContext(ctx).Info("appointment status changed",
			"appointmentId", next.ID,
			"status", next.Status,
			"version", next.Version,
		)
		s.events.Deliver(ctx, topic, env)
	}
	return next, nil
}

func (s *Service) scheduleReminder(ctx context.Context, appt domain.Appointment) {
	if s.reminders == nil {
		return
	}
	runAt := appt.AppointmentDate.Add(-reminderLeadTime)
	if runAt.Before(s.now()) {
		return
	}

	err := s.reminders.ScheduleAppointmentReminder(ctx, scheduler.AppointmentReminderPayload{
		AppointmentID:  appt.ID.String(),
		VeterinarianID: appt.VeterinarianID.String(),
	}, runAt)
	if err != nil {
		s.log.WithContext(ctx).Warn("failed to schedule appointment reminder", "appointmentId", appt.ID, "error", err)
	}
}

func transitionError(err error) error {
	var terr *domain.TransitionError
	if errors.As(err, &terr) {
		return apperr.InvalidState(terr.Error())
	}
	return apperr.Validation(err.Error())
}

// storeError passes typed errors through and hides everything else behind a
// persistence error.
func storeError(err error, msg string) error {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return err
	}
	return apperr.Persistence(msg, err)
}

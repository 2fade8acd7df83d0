package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

var now = time.Date(2030, 3, 1, 9, 0, 0, 0, time.UTC)

func newScheduled(t *testing.T) Appointment {
	t.Helper()
	appt, err := NewAppointment(uuid.New(), NewAppointmentParams{
		ClientID:        uuid.New(),
		PatientID:       uuid.New(),
		VeterinarianID:  uuid.New(),
		AppointmentDate: now.Add(24 * time.Hour),
		Duration:        30,
	}, now)
	if err != nil {
		t.Fatalf("new appointment: %v", err)
	}
	return appt
}

func TestNewAppointmentValidation(t *testing.T) {
	base := NewAppointmentParams{
		ClientID:        uuid.New(),
		PatientID:       uuid.New(),
		VeterinarianID:  uuid.New(),
		AppointmentDate: now.Add(time.Hour),
		Duration:        30,
	}

	zero := base
	zero.Duration = 0
	if _, err := NewAppointment(uuid.New(), zero, now); !errors.Is(err, ErrInvalidDuration) {
		t.Fatalf("expected ErrInvalidDuration, got %v", err)
	}

	past := base
	past.AppointmentDate = now.Add(-time.Minute)
	if _, err := NewAppointment(uuid.New(), past, now); !errors.Is(err, ErrDateInPast) {
		t.Fatalf("expected ErrDateInPast, got %v", err)
	}

	noVet := base
	noVet.VeterinarianID = uuid.Nil
	if _, err := NewAppointment(uuid.New(), noVet, now); !errors.Is(err, ErrMissingParticipant) {
		t.Fatalf("expected ErrMissingParticipant, got %v", err)
	}

	appt, err := NewAppointment(uuid.New(), base, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if appt.Status != StatusScheduled || appt.Version != 1 {
		t.Fatalf("expected scheduled v1, got %s v%d", appt.Status, appt.Version)
	}
}

func TestCanTransitionTable(t *testing.T) {
	all := []Status{StatusScheduled, StatusConfirmed, StatusStarted, StatusCompleted, StatusCancelled}
	allowed := map[[2]Status]bool{
		{StatusScheduled, StatusConfirmed}: true,
		{StatusScheduled, StatusCancelled}: true,
		{StatusConfirmed, StatusStarted}:   true,
		{StatusConfirmed, StatusCancelled}: true,
		{StatusStarted, StatusCompleted}:   true,
		{StatusStarted, StatusCancelled}:   true,
	}

	for _, from := range all {
		for _, to := range all {
			want := allowed[[2]Status{from, to}]
			if got := CanTransition(from, to); got != want {
				t.Fatalf("%s -> %s: expected %v, got %v", from, to, want, got)
			}
		}
	}
}

func TestFullLifecycleStampsActorsAndVersions(t *testing.T) {
	appt := newScheduled(t)

	confirmed, err := appt.Confirm("reception", now)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	started, err := confirmed.Start("dr-who", now)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	completed, err := started.Complete("dr-who", "all good", now)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}

	if completed.ConfirmedBy != "reception" || completed.StartedBy != "dr-who" || completed.CompletedBy != "dr-who" {
		t.Fatalf("audit fields not stamped: %+v", completed)
	}
	if completed.CompletedNotes != "all good" {
		t.Fatalf("expected completion notes, got %q", completed.CompletedNotes)
	}
	if completed.Version != 4 {
		t.Fatalf("expected version 4, got %d", completed.Version)
	}
	if appt.Status != StatusScheduled || appt.Version != 1 {
		t.Fatal("transition must not mutate the original value")
	}
}

func TestTerminalStatesRejectTransitions(t *testing.T) {
	appt := newScheduled(t)
	cancelled, err := appt.Cancel("client", "moved away", now)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.CancellationReason != "moved away" || cancelled.CancelledBy != "client" {
		t.Fatalf("cancel fields not stamped: %+v", cancelled)
	}

	_, err = cancelled.Confirm("reception", now)
	var terr *TransitionError
	if !errors.As(err, &terr) || !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected TransitionError, got %v", err)
	}
	if terr.From != StatusCancelled || terr.To != StatusConfirmed {
		t.Fatalf("unexpected transition error %+v", terr)
	}

	if _, err := cancelled.Cancel("client", "again", now); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected cancel of cancelled to be rejected, got %v", err)
	}
}

func TestOutOfOrderTransitionsRejected(t *testing.T) {
	appt := newScheduled(t)

	if _, err := appt.Start("dr-who", now); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("start before confirm must fail, got %v", err)
	}
	if _, err := appt.Complete("dr-who", "", now); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("complete before start must fail, got %v", err)
	}
}

func TestTransitionRequiresActor(t *testing.T) {
	if _, err := newScheduled(t).Confirm("", now); !errors.Is(err, ErrActorRequired) {
		t.Fatalf("expected ErrActorRequired, got %v", err)
	}
}

func TestEndAddsDuration(t *testing.T) {
	appt := newScheduled(t)
	if got := appt.End().Sub(appt.AppointmentDate); got != 30*time.Minute {
		t.Fatalf("expected 30m, got %s", got)
	}
}

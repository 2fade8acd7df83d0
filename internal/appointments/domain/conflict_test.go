package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

var day = time.Date(2030, 3, 4, 0, 0, 0, 0, time.UTC)

func at(hour, minute int) time.Time {
	return day.Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
}

func booking(vet uuid.UUID, start time.Time, duration int, status Status) Appointment {
	return Appointment{ID: uuid.New(), VeterinarianID: vet, AppointmentDate: start, Duration: duration, Status: status}
}

func TestHasConflictIgnoresOtherVeterinarians(t *testing.T) {
	vet, other := uuid.New(), uuid.New()
	existing := []Appointment{booking(other, at(10, 0), 30, StatusScheduled)}

	if HasConflict(vet, at(10, 0), 30, existing) {
		t.Fatal("booking for another veterinarian must not conflict")
	}
}

func TestHasConflictBackToBackIsAllowed(t *testing.T) {
	vet := uuid.New()
	existing := []Appointment{booking(vet, at(10, 0), 30, StatusScheduled)}

	if HasConflict(vet, at(10, 30), 30, existing) {
		t.Fatal("booking starting at the previous end must not conflict")
	}
	if HasConflict(vet, at(9, 30), 30, existing) {
		t.Fatal("booking ending at the next start must not conflict")
	}
}

func TestHasConflictDetectsOverlap(t *testing.T) {
	vet := uuid.New()
	existing := []Appointment{booking(vet, at(10, 0), 30, StatusScheduled)}

	cases := []struct {
		name     string
		start    time.Time
		duration int
	}{
		{"same slot", at(10, 0), 30},
		{"starts inside", at(10, 15), 30},
		{"ends inside", at(9, 45), 30},
		{"contains existing", at(9, 0), 120},
		{"inside existing", at(10, 10), 5},
	}
	for _, tc := range cases {
		if !HasConflict(vet, tc.start, tc.duration, existing) {
			t.Fatalf("%s: expected conflict", tc.name)
		}
	}
}

func TestHasConflictEmptyList(t *testing.T) {
	if HasConflict(uuid.New(), at(10, 0), 30, nil) {
		t.Fatal("empty calendar cannot conflict")
	}
}

func TestOverlapsIsSymmetric(t *testing.T) {
	intervals := [][2]time.Time{
		{at(9, 0), at(10, 0)},
		{at(9, 30), at(10, 30)},
		{at(10, 0), at(11, 0)},
		{at(8, 0), at(12, 0)},
		{at(13, 0), at(13, 15)},
	}
	for _, a := range intervals {
		for _, b := range intervals {
			if Overlaps(a[0], a[1], b[0], b[1]) != Overlaps(b[0], b[1], a[0], a[1]) {
				t.Fatalf("overlap not symmetric for %v and %v", a, b)
			}
		}
	}
}

func TestActiveOnlyDropsCancelled(t *testing.T) {
	vet := uuid.New()
	list := []Appointment{
		booking(vet, at(10, 0), 30, StatusCancelled),
		booking(vet, at(11, 0), 30, StatusConfirmed),
	}

	active := ActiveOnly(list)
	if len(active) != 1 || active[0].Status != StatusConfirmed {
		t.Fatalf("expected only the confirmed booking, got %+v", active)
	}
	if HasConflict(vet, at(10, 0), 30, active) {
		t.Fatal("cancelled booking must not block its slot")
	}
}

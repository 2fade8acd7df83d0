package domain

import (
	"time"

	"github.com/google/uuid"
)

// Window returns the half-open interval [start, end) of a booking.
func Window(start time.Time, durationMinutes int) (time.Time, time.Time) {
	return start, start.Add(time.Duration(durationMinutes) * time.Minute)
}

// Overlaps reports whether [aStart, aEnd) and [bStart, bEnd) intersect.
// Touching intervals do not overlap.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && aEnd.After(bStart)
}

// HasConflict reports whether a booking for veterinarianID starting at
// proposedStart for durationMinutes overlaps any of existing. Bookings of
// other veterinarians are ignored. Callers drop cancelled bookings first
// (see ActiveOnly).
func HasConflict(veterinarianID uuid.UUID, proposedStart time.Time, durationMinutes int, existing []Appointment) bool {
	start, end := Window(proposedStart, durationMinutes)
	for _, appt := range existing {
		if appt.VeterinarianID != veterinarianID {
			continue
		}
		if Overlaps(start, end, appt.AppointmentDate, appt.End()) {
			return true
		}
	}
	return false
}

// ActiveOnly drops cancelled bookings, which no longer hold their slot.
func ActiveOnly(list []Appointment) []Appointment {
	active := make([]Appointment, 0, len(list))
	for _, appt := range list {
		if appt.Status != StatusCancelled {
			active = append(active, appt)
		}
	}
	return active
}

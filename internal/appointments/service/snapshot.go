package service

import (
	"vetclinic_backend/internal/appointments/domain"
	"vetclinic_backend/internal/events"
	eventbus "vetclinic_backend/platform/events"
)

// topicFor maps the status an appointment just entered to its event topic.
var topicFor = map[domain.Status]string{
	domain.StatusScheduled: events.TopicAppointmentCreated,
	domain.StatusConfirmed: events.TopicAppointmentConfirmed,
	domain.StatusStarted:   events.TopicAppointmentStarted,
	domain.StatusCompleted: events.TopicAppointmentCompleted,
	domain.StatusCancelled: events.TopicAppointmentCancelled,
}

func snapshot(a domain.Appointment) events.AppointmentSnapshot {
	return events.AppointmentSnapshot{
		AppointmentID:      a.ID,
		ClientID:           a.ClientID,
		PatientID:          a.PatientID,
		VeterinarianID:     a.VeterinarianID,
		AppointmentDate:    a.AppointmentDate,
		Duration:           a.Duration,
		Status:             string(a.Status),
		Reason:             a.Reason,
		Notes:              a.Notes,
		ConfirmedBy:        a.ConfirmedBy,
		StartedBy:          a.StartedBy,
		CompletedBy:        a.CompletedBy,
		CompletedNotes:     a.CompletedNotes,
		CancelledBy:        a.CancelledBy,
		CancellationReason: a.CancellationReason,
		CreatedAt:          a.CreatedAt,
		UpdatedAt:          a.UpdatedAt,
		Version:            a.Version,
	}
}

// envelopeFor builds the event describing the state a now holds.
func envelopeFor(a domain.Appointment) (string, eventbus.Envelope, error) {
	topic := topicFor[a.Status]
	env, err := eventbus.New(topic, a.ID.String(), a.Version, a.UpdatedAt, snapshot(a))
	return topic, env, err
}

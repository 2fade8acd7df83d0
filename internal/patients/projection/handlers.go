package projection

import (
	"context"
	"fmt"
	"time"

	"vetclinic_backend/internal/events"
	eventbus "vetclinic_backend/platform/events"
)

// topicKinds lists every topic the patient service projects.
var topicKinds = map[string]Kind{
	events.TopicVisitUpdated:         KindVisit,
	events.TopicAllergyUpdated:       KindAllergy,
	events.TopicVaccinationUpdated:   KindVaccination,
	events.TopicPatientNoteUpdated:   KindNote,
	events.TopicAppointmentCreated:   KindAppointment,
	events.TopicAppointmentConfirmed: KindAppointment,
	events.TopicAppointmentStarted:   KindAppointment,
	events.TopicAppointmentCompleted: KindAppointment,
	events.TopicAppointmentCancelled: KindAppointment,
}

// patientRef is the part every payload shares.
type patientRef struct {
	PatientID string    `json:"patientId"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Handlers turns delivered events into projection writes.
type Handlers struct {
	svc *Service
}

func NewHandlers(svc *Service) *Handlers {
	return &Handlers{svc: svc}
}

// Register subscribes the handlers on router.
func (h *Handlers) Register(router *eventbus.Router) {
	for topic, kind := range topicKinds {
		router.Handle(topic, topic, h.project(kind))
	}
}

func (h *Handlers) project(kind Kind) eventbus.Handler {
	return eventbus.HandlerFunc(func(ctx context.Context, env eventbus.Envelope) error {
		var ref patientRef
		if err := env.Decode(&ref); err != nil {
			return err
		}
		if ref.PatientID == "" {
			return fmt.Errorf("%s %s: payload has no patientId", env.Type, env.AggregateID)
		}

		updatedAt := ref.UpdatedAt
		if updatedAt.IsZero() {
			updatedAt = env.OccurredAt
		}

		_, err := h.svc.Apply(ctx, Record{
			Kind:          kind,
			ID:            env.AggregateID,
			PatientID:     ref.PatientID,
			Version:       env.Version,
			Document:      env.Payload,
			SourceEventID: env.EventID,
			UpdatedAt:     updatedAt,
		})
		return err
	})
}

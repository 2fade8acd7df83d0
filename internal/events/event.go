// Package events defines the topics and payloads exchanged between the
// clinic and patient services. Envelope and routing live in platform/events.
package events

import (
	"time"

	"github.com/google/uuid"
)

// Topic names. Each is also the event type carried on that topic.
const (
	TopicAppointmentCreated   = "AppointmentCreated"
	TopicAppointmentConfirmed = "AppointmentConfirmed"
	TopicAppointmentStarted   = "AppointmentStarted"
	TopicAppointmentCompleted = "AppointmentCompleted"
	TopicAppointmentCancelled = "AppointmentCancelled"

	TopicVisitUpdated       = "VisitUpdated"
	TopicAllergyUpdated     = "AllergyUpdated"
	TopicVaccinationUpdated = "VaccinationUpdated"
	TopicPatientNoteUpdated = "PatientNoteUpdated"
)

// AppointmentTopics lists the appointment lifecycle topics.
var AppointmentTopics = []string{
	TopicAppointmentCreated,
	TopicAppointmentConfirmed,
	TopicAppointmentStarted,
	TopicAppointmentCompleted,
	TopicAppointmentCancelled,
}

// RecordTopics lists the clinical record topics.
var RecordTopics = []string{
	TopicVisitUpdated,
	TopicAllergyUpdated,
	TopicVaccinationUpdated,
	TopicPatientNoteUpdated,
}

// =============================================================================
// Appointment Events
// =============================================================================

// AppointmentSnapshot is the payload of every appointment topic: the full
// state after the transition, including the audit field it stamped.
type AppointmentSnapshot struct {
	AppointmentID      uuid.UUID `json:"appointmentId"`
	ClientID           uuid.UUID `json:"clientId"`
	PatientID          uuid.UUID `json:"patientId"`
	VeterinarianID     uuid.UUID `json:"veterinarianId"`
	AppointmentDate    time.Time `json:"appointmentDate"`
	Duration           int       `json:"duration"`
	Status             string    `json:"status"`
	Reason             string    `json:"reason,omitempty"`
	Notes              string    `json:"notes,omitempty"`
	ConfirmedBy        string    `json:"confirmedBy,omitempty"`
	StartedBy          string    `json:"startedBy,omitempty"`
	CompletedBy        string    `json:"completedBy,omitempty"`
	CompletedNotes     string    `json:"completedNotes,omitempty"`
	CancelledBy        string    `json:"cancelledBy,omitempty"`
	CancellationReason string    `json:"cancellationReason,omitempty"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
	Version            int64     `json:"version"`
}

// =============================================================================
// Clinical Record Events
// =============================================================================

// VisitUpdated carries the full state of a visit record.
type VisitUpdated struct {
	VisitID        string    `json:"visitId"`
	PatientID      string    `json:"patientId"`
	AppointmentID  string    `json:"appointmentId,omitempty"`
	VeterinarianID string    `json:"veterinarianId,omitempty"`
	VisitDate      time.Time `json:"visitDate"`
	Status         string    `json:"status"`
	ChiefComplaint string    `json:"chiefComplaint,omitempty"`
	Diagnosis      string    `json:"diagnosis,omitempty"`
	Treatment      string    `json:"treatment,omitempty"`
	Notes          string    `json:"notes,omitempty"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// AllergyUpdated carries the full state of an allergy record.
type AllergyUpdated struct {
	AllergyID string    `json:"allergyId"`
	PatientID string    `json:"patientId"`
	Allergen  string    `json:"allergen"`
	Reaction  string    `json:"reaction,omitempty"`
	Severity  string    `json:"severity"`
	Active    bool      `json:"active"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// VaccinationUpdated carries the full state of a vaccination record.
type VaccinationUpdated struct {
	VaccinationID  string     `json:"vaccinationId"`
	PatientID      string     `json:"patientId"`
	VaccineName    string     `json:"vaccineName"`
	AdministeredAt time.Time  `json:"administeredAt"`
	NextDueDate    *time.Time `json:"nextDueDate,omitempty"`
	BatchNumber    string     `json:"batchNumber,omitempty"`
	AdministeredBy string     `json:"administeredBy,omitempty"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

// PatientNoteUpdated carries the full state of a free-text patient note.
type PatientNoteUpdated struct {
	NoteID    string    `json:"noteId"`
	PatientID string    `json:"patientId"`
	AuthorID  string    `json:"authorId,omitempty"`
	Content   string    `json:"content"`
	UpdatedAt time.Time `json:"updatedAt"`
}

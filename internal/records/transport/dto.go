package transport

import (
	"encoding/json"
	"time"

	"vetclinic_backend/internal/records/domain"
	"vetclinic_backend/platform/sanitize"
)

type VisitRequest struct {
	AppointmentID  string    `json:"appointmentId,omitempty" validate:"omitempty,uuid"`
	VeterinarianID string    `json:"veterinarianId,omitempty" validate:"omitempty,uuid"`
	VisitDate      time.Time `json:"visitDate" validate:"required"`
	Status         string    `json:"status" validate:"required,oneof=scheduled in_progress completed cancelled"`
	ChiefComplaint string    `json:"chiefComplaint,omitempty" validate:"max=1000"`
	Diagnosis      string    `json:"diagnosis,omitempty" validate:"max=4000"`
	Treatment      string    `json:"treatment,omitempty" validate:"max=4000"`
	Notes          string    `json:"notes,omitempty" validate:"max=4000"`
}

type AllergyRequest struct {
	Allergen string `json:"allergen" validate:"required,max=200"`
	Reaction string `json:"reaction,omitempty" validate:"max=1000"`
	Severity string `json:"severity" validate:"required,oneof=mild moderate severe"`
	Active   *bool  `json:"active,omitempty"`
}

type VaccinationRequest struct {
	VaccineName    string     `json:"vaccineName" validate:"required,max=200"`
	AdministeredAt time.Time  `json:"administeredAt" validate:"required"`
	NextDueDate    *time.Time `json:"nextDueDate,omitempty"`
	BatchNumber    string     `json:"batchNumber,omitempty" validate:"max=100"`
	AdministeredBy string     `json:"administeredBy,omitempty" validate:"max=200"`
}

type NoteRequest struct {
	Content string `json:"content" validate:"required,max=10000"`
}

func (r VisitRequest) ToDomain(id, patientID string) domain.Visit {
	v := domain.NewVisit(id, patientID)
	v.AppointmentID = r.AppointmentID
	v.VeterinarianID = r.VeterinarianID
	v.VisitDate = r.VisitDate
	v.Status = r.Status
	v.ChiefComplaint = sanitize.Text(r.ChiefComplaint)
	v.Diagnosis = sanitize.Text(r.Diagnosis)
	v.Treatment = sanitize.Text(r.Treatment)
	v.Notes = sanitize.Text(r.Notes)
	return v
}

// ToDomain maps the request. Allergies are active unless stated otherwise.
func (r AllergyRequest) ToDomain(id, patientID string) domain.Allergy {
	a := domain.NewAllergy(id, patientID)
	a.Allergen = r.Allergen
	a.Reaction = sanitize.Text(r.Reaction)
	a.Severity = r.Severity
	a.Active = r.Active == nil || *r.Active
	return a
}

// ToDomain maps the request, defaulting the administering person to actor.
func (r VaccinationRequest) ToDomain(id, patientID, actor string) domain.Vaccination {
	v := domain.NewVaccination(id, patientID)
	v.VaccineName = r.VaccineName
	v.AdministeredAt = r.AdministeredAt
	v.NextDueDate = r.NextDueDate
	v.BatchNumber = r.BatchNumber
	v.AdministeredBy = r.AdministeredBy
	if v.AdministeredBy == "" {
		v.AdministeredBy = actor
	}
	return v
}

func (r NoteRequest) ToDomain(id, patientID, actor string) domain.PatientNote {
	n := domain.NewPatientNote(id, patientID)
	n.AuthorID = actor
	n.Content = sanitize.Text(r.Content)
	return n
}

// RecordResponse is the response body for a stored record
type RecordResponse struct {
	Kind      string          `json:"kind"`
	ID        string          `json:"id"`
	PatientID string          `json:"patientId"`
	Version   int64           `json:"version"`
	Document  json.RawMessage `json:"document"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

func ToResponse(s domain.Stored) RecordResponse {
	return RecordResponse{
		Kind:      string(s.Kind),
		ID:        s.ID,
		PatientID: s.PatientID,
		Version:   s.Version,
		Document:  json.RawMessage(s.Document),
		UpdatedAt: s.UpdatedAt,
	}
}

// Package domain defines the clinical records the clinic service owns.
// Each record is published in full on every change.
package domain

import (
	"errors"
	"time"

	"vetclinic_backend/internal/events"
)

// Kind names a record collection.
type Kind string

const (
	KindVisit       Kind = "visit"
	KindAllergy     Kind = "allergy"
	KindVaccination Kind = "vaccination"
	KindNote        Kind = "note"
)

var kindTopics = map[Kind]string{
	KindVisit:       events.TopicVisitUpdated,
	KindAllergy:     events.TopicAllergyUpdated,
	KindVaccination: events.TopicVaccinationUpdated,
	KindNote:        events.TopicPatientNoteUpdated,
}

// ParseKind accepts a known kind name.
func ParseKind(s string) (Kind, bool) {
	k := Kind(s)
	_, ok := kindTopics[k]
	return k, ok
}

// Topic is the event topic announcing changes to records of this kind.
func (k Kind) Topic() string {
	return kindTopics[k]
}

// Record is implemented by every clinical record.
type Record interface {
	Kind() Kind
	RecordID() string
	PatientRef() string
	Validate() error
	// Payload is the full-state event body as of updatedAt.
	Payload(updatedAt time.Time) any
}

var (
	ErrIDRequired        = errors.New("record id is required")
	ErrPatientRequired   = errors.New("patientId is required")
	ErrInvalidVisitState = errors.New("status must be one of scheduled, in_progress, completed, cancelled")
	ErrVisitDate         = errors.New("visitDate is required")
	ErrAllergen          = errors.New("allergen is required")
	ErrSeverity          = errors.New("severity must be one of mild, moderate, severe")
	ErrVaccineName       = errors.New("vaccineName is required")
	ErrAdministeredAt    = errors.New("administeredAt is required")
	ErrNextDueDate       = errors.New("nextDueDate must be after administeredAt")
	ErrContent           = errors.New("content is required")
)

type keys struct {
	ID        string
	PatientID string
}

func (k keys) RecordID() string   { return k.ID }
func (k keys) PatientRef() string { return k.PatientID }

func (k keys) validate() error {
	if k.ID == "" {
		return ErrIDRequired
	}
	if k.PatientID == "" {
		return ErrPatientRequired
	}
	return nil
}

// Visit is a clinical encounter, usually tied to an appointment.
type Visit struct {
	keys
	AppointmentID  string
	VeterinarianID string
	VisitDate      time.Time
	Status         string
	ChiefComplaint string
	Diagnosis      string
	Treatment      string
	Notes          string
}

func NewVisit(id, patientID string) Visit {
	return Visit{keys: keys{ID: id, PatientID: patientID}}
}

func (Visit) Kind() Kind { return KindVisit }

func (v Visit) Validate() error {
	if err := v.validate(); err != nil {
		return err
	}
	switch v.Status {
	case "scheduled", "in_progress", "completed", "cancelled":
	default:
		return ErrInvalidVisitState
	}
	if v.VisitDate.IsZero() {
		return ErrVisitDate
	}
	return nil
}

func (v Visit) Payload(updatedAt time.Time) any {
	return events.VisitUpdated{
		VisitID:        v.ID,
		PatientID:      v.PatientID,
		AppointmentID:  v.AppointmentID,
		VeterinarianID: v.VeterinarianID,
		VisitDate:      v.VisitDate.UTC(),
		Status:         v.Status,
		ChiefComplaint: v.ChiefComplaint,
		Diagnosis:      v.Diagnosis,
		Treatment:      v.Treatment,
		Notes:          v.Notes,
		UpdatedAt:      updatedAt,
	}
}

type Allergy struct {
	keys
	Allergen string
	Reaction string
	Severity string
	Active   bool
}

func NewAllergy(id, patientID string) Allergy {
	return Allergy{keys: keys{ID: id, PatientID: patientID}}
}

func (Allergy) Kind() Kind { return KindAllergy }

func (a Allergy) Validate() error {
	if err := a.validate(); err != nil {
		return err
	}
	if a.Allergen == "" {
		return ErrAllergen
	}
	switch a.Severity {
	case "mild", "moderate", "severe":
		return nil
	}
	return ErrSeverity
}

func (a Allergy) Payload(updatedAt time.Time) any {
	return events.AllergyUpdated{
		AllergyID: a.ID,
		PatientID: a.PatientID,
		Allergen:  a.Allergen,
		Reaction:  a.Reaction,
		Severity:  a.Severity,
		Active:    a.Active,
		UpdatedAt: updatedAt,
	}
}

type Vaccination struct {
	keys
	VaccineName    string
	AdministeredAt time.Time
	NextDueDate    *time.Time
	BatchNumber    string
	AdministeredBy string
}

func NewVaccination(id, patientID string) Vaccination {
	return Vaccination{keys: keys{ID: id, PatientID: patientID}}
}

func (Vaccination) Kind() Kind { return KindVaccination }

func (v Vaccination) Validate() error {
	if err := v.validate(); err != nil {
		return err
	}
	if v.VaccineName == "" {
		return ErrVaccineName
	}
	if v.AdministeredAt.IsZero() {
		return ErrAdministeredAt
	}
	if v.NextDueDate != nil && !v.NextDueDate.After(v.AdministeredAt) {
		return ErrNextDueDate
	}
	return nil
}

func (v Vaccination) Payload(updatedAt time.Time) any {
	var next *time.Time
	if v.NextDueDate != nil {
		due := v.NextDueDate.UTC()
		next = &due
	}
	return events.VaccinationUpdated{
		VaccinationID:  v.ID,
		PatientID:      v.PatientID,
		VaccineName:    v.VaccineName,
		AdministeredAt: v.AdministeredAt.UTC(),
		NextDueDate:    next,
		BatchNumber:    v.BatchNumber,
		AdministeredBy: v.AdministeredBy,
		UpdatedAt:      updatedAt,
	}
}

// PatientNote is free text attached to a patient.
type PatientNote struct {
	keys
	AuthorID string
	Content  string
}

func NewPatientNote(id, patientID string) PatientNote {
	return PatientNote{keys: keys{ID: id, PatientID: patientID}}
}

func (PatientNote) Kind() Kind { return KindNote }

func (n PatientNote) Validate() error {
	if err := n.validate(); err != nil {
		return err
	}
	if n.Content == "" {
		return ErrContent
	}
	return nil
}

func (n PatientNote) Payload(updatedAt time.Time) any {
	return events.PatientNoteUpdated{
		NoteID:    n.ID,
		PatientID: n.PatientID,
		AuthorID:  n.AuthorID,
		Content:   n.Content,
		UpdatedAt: updatedAt,
	}
}

// Stored is a record as persisted: its document is the latest payload.
type Stored struct {
	Kind      Kind
	ID        string
	PatientID string
	Version   int64
	Document  []byte
	UpdatedAt time.Time
}

package transport

import (
	"time"

	"vetclinic_backend/internal/appointments/domain"

	"github.com/google/uuid"
)

// CreateAppointmentRequest is the request body for booking an appointment
type CreateAppointmentRequest struct {
	ClientID        uuid.UUID `json:"clientId" validate:"required"`
	PatientID       uuid.UUID `json:"patientId" validate:"required"`
	VeterinarianID  uuid.UUID `json:"veterinarianId" validate:"required"`
	AppointmentDate time.Time `json:"appointmentDate" validate:"required"`
	Duration        int       `json:"duration" validate:"required,gt=0,max=480"`
	Reason          string    `json:"reason,omitempty" validate:"max=500"`
	Notes           string    `json:"notes,omitempty" validate:"max=2000"`
}

// CompleteAppointmentRequest is the optional body of the complete transition
type CompleteAppointmentRequest struct {
	Notes string `json:"notes,omitempty" validate:"max=4000"`
}

// CancelAppointmentRequest is the optional body of the cancel transition
type CancelAppointmentRequest struct {
	Reason string `json:"reason,omitempty" validate:"max=500"`
}

// ListByClientRequest is the query for GET /appointments
type ListByClientRequest struct {
	ClientID string `form:"clientId" validate:"required,uuid"`
}

// CalendarRequest is the query for a veterinarian's calendar window
type CalendarRequest struct {
	From time.Time `form:"from" time_format:"2006-01-02T15:04:05Z07:00" validate:"required"`
	To   time.Time `form:"to" time_format:"2006-01-02T15:04:05Z07:00" validate:"required,gtfield=From"`
}

// AppointmentResponse is the response body for an appointment
type AppointmentResponse struct {
	ID                 uuid.UUID `json:"id"`
	ClientID           uuid.UUID `json:"clientId"`
	PatientID          uuid.UUID `json:"patientId"`
	VeterinarianID     uuid.UUID `json:"veterinarianId"`
	AppointmentDate    time.Time `json:"appointmentDate"`
	EndDate            time.Time `json:"endDate"`
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

// AppointmentListResponse wraps a list of appointments
type AppointmentListResponse struct {
	Items []AppointmentResponse `json:"items"`
	Total int                   `json:"total"`
}

// ToResponse maps the entity to its JSON form.
func ToResponse(a domain.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:                 a.ID,
		ClientID:           a.ClientID,
		PatientID:          a.PatientID,
		VeterinarianID:     a.VeterinarianID,
		AppointmentDate:    a.AppointmentDate,
		EndDate:            a.End(),
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

// ToListResponse maps a slice of entities.
func ToListResponse(items []domain.Appointment) AppointmentListResponse {
	out := make([]AppointmentResponse, 0, len(items))
	for _, a := range items {
		out = append(out, ToResponse(a))
	}
	return AppointmentListResponse{Items: out, Total: len(out)}
}

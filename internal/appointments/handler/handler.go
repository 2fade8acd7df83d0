package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"vetclinic_backend/internal/appointments/domain"
	"vetclinic_backend/internal/appointments/transport"
	"vetclinic_backend/platform/httpkit"
	"vetclinic_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
)

// AppointmentService is what the handler needs from the service layer.
type AppointmentService interface {
	Create(ctx context.Context, actor string, req transport.CreateAppointmentRequest) (domain.Appointment, error)
	Confirm(ctx context.Context, id uuid.UUID, actor string) (domain.Appointment, error)
	Start(ctx context.Context, id uuid.UUID, actor string) (domain.Appointment, error)
	Complete(ctx context.Context, id uuid.UUID, actor, notes string) (domain.Appointment, error)
	Cancel(ctx context.Context, id uuid.UUID, actor, reason string) (domain.Appointment, error)
	GetByID(ctx context.Context, id uuid.UUID) (domain.Appointment, error)
	ListByClient(ctx context.Context, clientID uuid.UUID) ([]domain.Appointment, error)
	ListForVeterinarian(ctx context.Context, vetID uuid.UUID, from, to time.Time) ([]domain.Appointment, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// Handler handles HTTP requests for appointments
type Handler struct {
	svc AppointmentService
	val *validator.Validator
}

// New creates a new appointments handler
func New(svc AppointmentService, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

// RegisterRoutes registers the read routes on public and the mutating ones on protected.
func (h *Handler) RegisterRoutes(public, protected *gin.RouterGroup) {
	public.GET("/appointments", h.ListByClient)
	public.GET("/appointments/:id", h.GetByID)
	public.GET("/veterinarians/:id/appointments", h.ListForVeterinarian)

	protected.POST("/appointments", h.Create)
	protected.PATCH("/appointments/:id/confirm", h.Confirm)
	protected.PATCH("/appointments/:id/start", h.Start)
	protected.PATCH("/appointments/:id/complete", h.Complete)
	protected.PATCH("/appointments/:id/cancel", h.Cancel)
	protected.DELETE("/appointments/:id", h.Delete)
}

// Create handles POST /api/v1/appointments
func (h *Handler) Create(c *gin.Context) {
	var req transport.CreateAppointmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, validator.FieldErrors(err))
		return
	}

	actor, ok := httpkit.MustActor(c)
	if !ok {
		return
	}

	result, err := h.svc.Create(c.Request.Context(), actor, req)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.JSON(c, http.StatusCreated, transport.ToResponse(result))
}

// GetByID handles GET /api/v1/appointments/:id
func (h *Handler) GetByID(c *gin.Context) {
	id, ok := httpkit.ParamUUID(c, "id")
	if !ok {
		return
	}

	result, err := h.svc.GetByID(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.ToResponse(result))
}

// ListByClient handles GET /api/v1/appointments?clientId=
func (h *Handler) ListByClient(c *gin.Context) {
	var req transport.ListByClientRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, validator.FieldErrors(err))
		return
	}

	result, err := h.svc.ListByClient(c.Request.Context(), uuid.MustParse(req.ClientID))
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.ToListResponse(result))
}

// ListForVeterinarian handles GET /api/v1/veterinarians/:id/appointments?from=&to=
func (h *Handler) ListForVeterinarian(c *gin.Context) {
	vetID, ok := httpkit.ParamUUID(c, "id")
	if !ok {
		return
	}

	var req transport.CalendarRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, validator.FieldErrors(err))
		return
	}

	result, err := h.svc.ListForVeterinarian(c.Request.Context(), vetID, req.From, req.To)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.ToListResponse(result))
}

// Confirm handles PATCH /api/v1/appointments/:id/confirm
func (h *Handler) Confirm(c *gin.Context) {
	h.transition(c, func(ctx context.Context, id uuid.UUID, actor string) (domain.Appointment, error) {
		return h.svc.Confirm(ctx, id, actor)
	})
}

// Start handles PATCH /api/v1/appointments/:id/start
func (h *Handler) Start(c *gin.Context) {
	h.transition(c, func(ctx context.Context, id uuid.UUID, actor string) (domain.Appointment, error) {
		return h.svc.Start(ctx, id, actor)
	})
}

// Complete handles PATCH /api/v1/appointments/:id/complete
func (h *Handler) Complete(c *gin.Context) {
	var req transport.CompleteAppointmentRequest
	if !h.bindOptional(c, &req) {
		return
	}
	h.transition(c, func(ctx context.Context, id uuid.UUID, actor string) (domain.Appointment, error) {
		return h.svc.Complete(ctx, id, actor, req.Notes)
	})
}

// Cancel handles PATCH /api/v1/appointments/:id/cancel
func (h *Handler) Cancel(c *gin.Context) {
	var req transport.CancelAppointmentRequest
	if !h.bindOptional(c, &req) {
		return
	}
	h.transition(c, func(ctx context.Context, id uuid.UUID, actor string) (domain.Appointment, error) {
		return h.svc.Cancel(ctx, id, actor, req.Reason)
	})
}

// Delete handles DELETE /api/v1/appointments/:id
func (h *Handler) Delete(c *gin.Context) {
	id, ok := httpkit.ParamUUID(c, "id")
	if !ok {
		return
	}
	if _, ok := httpkit.MustActor(c); !ok {
		return
	}

	if httpkit.HandleError(c, h.svc.Delete(c.Request.Context(), id)) {
		return
	}
	httpkit.NoContent(c)
}

func (h *Handler) transition(c *gin.Context, apply func(ctx context.Context, id uuid.UUID, actor string) (domain.Appointment, error)) {
	id, ok := httpkit.ParamUUID(c, "id")
	if !ok {
		return
	}
	actor, ok := httpkit.MustActor(c)
	if !ok {
		return
	}

	result, err := apply(c.Request.Context(), id, actor)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ToResponse(result))
}

// bindOptional decodes a JSON body when one is sent. An empty body is fine.
func (h *Handler) bindOptional(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil && !errors.Is(err, io.EOF) {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return false
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, validator.FieldErrors(err))
		return false
	}
	return true
}

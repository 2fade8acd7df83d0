package handler

import (
	"context"
	"net/http"

	"vetclinic_backend/internal/records/domain"
	"vetclinic_backend/internal/records/transport"
	"vetclinic_backend/platform/httpkit"
	"vetclinic_backend/platform/validator"

	"github.com/gin-gonic/gin"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
	msgUnknownKind      = "unknown record kind"
	maxRecordIDLength   = 128
)

type RecordService interface {
	Save(ctx context.Context, rec domain.Record) (domain.Stored, error)
	Get(ctx context.Context, kind domain.Kind, id string) (domain.Stored, error)
}

type Handler struct {
	svc RecordService
	val *validator.Validator
}

func New(svc RecordService, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

func (h *Handler) RegisterRoutes(public, protected *gin.RouterGroup) {
	public.GET("/records/:kind/:id", h.Get)

	patients := protected.Group("/patients/:patientId")
	patients.PUT("/visits/:id", h.PutVisit)
	patients.PUT("/allergies/:id", h.PutAllergy)
	patients.PUT("/vaccinations/:id", h.PutVaccination)
	patients.PUT("/notes/:id", h.PutNote)
}

// Get handles GET /api/v1/records/:kind/:id
func (h *Handler) Get(c *gin.Context) {
	kind, ok := domain.ParseKind(c.Param("kind"))
	if !ok {
		httpkit.Error(c, http.StatusNotFound, msgUnknownKind, nil)
		return
	}

	rec, err := h.svc.Get(c.Request.Context(), kind, c.Param("id"))
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ToResponse(rec))
}

func (h *Handler) PutVisit(c *gin.Context) {
	var req transport.VisitRequest
	h.put(c, &req, func(id, patientID, _ string) domain.Record {
		return req.ToDomain(id, patientID)
	})
}

func (h *Handler) PutAllergy(c *gin.Context) {
	var req transport.AllergyRequest
	h.put(c, &req, func(id, patientID, _ string) domain.Record {
		return req.ToDomain(id, patientID)
	})
}

func (h *Handler) PutVaccination(c *gin.Context) {
	var req transport.VaccinationRequest
	h.put(c, &req, func(id, patientID, actor string) domain.Record {
		return req.ToDomain(id, patientID, actor)
	})
}

func (h *Handler) PutNote(c *gin.Context) {
	var req transport.NoteRequest
	h.put(c, &req, func(id, patientID, actor string) domain.Record {
		return req.ToDomain(id, patientID, actor)
	})
}

// put binds req, builds the record and saves it. Record ids are supplied
// by the caller, so PUT is an upsert.
func (h *Handler) put(c *gin.Context, req any, build func(id, patientID, actor string) domain.Record) {
	id, patientID := c.Param("id"), c.Param("patientId")
	if len(id) > maxRecordIDLength || len(patientID) > maxRecordIDLength {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := c.ShouldBindJSON(req); err != nil {
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

	rec, err := h.svc.Save(c.Request.Context(), build(id, patientID, actor))
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ToResponse(rec))
}

package handler

import (
	"context"
	"net/http"

	"vetclinic_backend/internal/patients/projection"
	"vetclinic_backend/platform/httpkit"

	"github.com/gin-gonic/gin"
)

const msgUnknownCollection = "unknown collection"

type ProjectionReader interface {
	Get(ctx context.Context, kind projection.Kind, id string) (projection.Record, error)
	ListByPatient(ctx context.Context, kind projection.Kind, patientID string) ([]projection.Record, error)
}

// Handler serves read-only views over the projections.
type Handler struct {
	reader ProjectionReader
}

func New(reader ProjectionReader) *Handler {
	return &Handler{reader: reader}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/patients/:patientId/:collection", h.ListByPatient)
	rg.GET("/projections/:kind/:id", h.Get)
}

// ListByPatient handles GET /api/v1/patients/:patientId/:collection
func (h *Handler) ListByPatient(c *gin.Context) {
	kind, ok := projection.KindForCollection(c.Param("collection"))
	if !ok {
		httpkit.Error(c, http.StatusNotFound, msgUnknownCollection, nil)
		return
	}

	items, err := h.reader.ListByPatient(c.Request.Context(), kind, c.Param("patientId"))
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"items": items, "total": len(items)})
}

// Get handles GET /api/v1/projections/:kind/:id
func (h *Handler) Get(c *gin.Context) {
	kind, ok := projection.ParseKind(c.Param("kind"))
	if !ok {
		httpkit.Error(c, http.StatusNotFound, msgUnknownCollection, nil)
		return
	}

	rec, err := h.reader.Get(c.Request.Context(), kind, c.Param("id"))
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, rec)
}

// Package records provides the clinical records module of the clinic service.
package records

import (
	apphttp "vetclinic_backend/internal/http"
	"vetclinic_backend/internal/records/handler"
	"vetclinic_backend/internal/records/repository"
	"vetclinic_backend/internal/records/service"
	"vetclinic_backend/platform/db"
	"vetclinic_backend/platform/logger"
	"vetclinic_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Module struct {
	handler *handler.Handler
	Service *service.Service
}

func NewModule(pool *pgxpool.Pool, recorder service.EventRecorder, val *validator.Validator, log *logger.Logger) *Module {
	svc := service.New(repository.New(pool), db.NewScope(pool), recorder, log)
	return &Module{
		handler: handler.New(svc, val),
		Service: svc,
	}
}

func (m *Module) Name() string {
	return "records"
}

func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.V1, ctx.Protected)
}

var _ apphttp.Module = (*Module)(nil)

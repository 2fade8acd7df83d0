// Package patients provides the patient service: projections of clinic
// records kept current from the event stream, and a read API over them.
package patients

import (
	apphttp "vetclinic_backend/internal/http"
	"vetclinic_backend/internal/patients/handler"
	"vetclinic_backend/internal/patients/projection"
	"vetclinic_backend/platform/db"
	eventbus "vetclinic_backend/platform/events"
	"vetclinic_backend/platform/logger"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Module struct {
	handler  *handler.Handler
	handlers *projection.Handlers
	Service  *projection.Service
}

// NewModule wires the projection service. consumer names the inbox, usually
// the service name.
func NewModule(pool *pgxpool.Pool, consumer string, log *logger.Logger) *Module {
	svc := projection.NewService(projection.NewRepository(pool), db.NewScope(pool), consumer, log)
	return &Module{
		handler:  handler.New(svc),
		handlers: projection.NewHandlers(svc),
		Service:  svc,
	}
}

func (m *Module) Name() string {
	return "patients"
}

// Subscribe registers the projection handlers on router.
func (m *Module) Subscribe(router *eventbus.Router) {
	m.handlers.Register(router)
}

func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.V1)
}

var _ apphttp.Module = (*Module)(nil)

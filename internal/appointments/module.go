// Package appointments is the clinic's booking module: conflict-checked
// creation and the confirm/start/complete/cancel lifecycle.
package appointments

import (
	"vetclinic_backend/internal/appointments/handler"
	"vetclinic_backend/internal/appointments/repository"
	"vetclinic_backend/internal/appointments/service"
	apphttp "vetclinic_backend/internal/http"
	"vetclinic_backend/internal/scheduler"
	"vetclinic_backend/platform/db"
	"vetclinic_backend/platform/logger"
	"vetclinic_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Module struct {
	handler *handler.Handler
	Service *service.Service
}

// NewModule wires the module. Lifecycle events go through recorder;
// reminders may be nil when no scheduler is configured.
func NewModule(pool *pgxpool.Pool, recorder service.EventRecorder, reminders scheduler.ReminderScheduler, val *validator.Validator, log *logger.Logger) *Module {
	svc := service.New(repository.New(pool), db.NewScope(pool), recorder, reminders, log)
	return &Module{
		handler: handler.New(svc, val),
		Service: svc,
	}
}

func (m *Module) Name() string {
	return "appointments"
}

func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.V1, ctx.Protected)
}

var _ apphttp.Module = (*Module)(nil)

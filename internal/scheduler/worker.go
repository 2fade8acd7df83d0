package scheduler

import (
	"context"
	"fmt"

	"vetclinic_backend/internal/appointments/domain"
	"vetclinic_backend/internal/outbox"
	"vetclinic_backend/platform/apperr"
	"vetclinic_backend/platform/config"
	eventbus "vetclinic_backend/platform/events"
	"vetclinic_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// OutboxStore is the part of the outbox repository the worker uses.
type OutboxStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (outbox.Record, error)
	MarkProcessing(ctx context.Context, id uuid.UUID) error
	MarkPublished(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, lastError string) error
}

// AppointmentReader loads appointments for reminders.
type AppointmentReader interface {
	FindByID(ctx context.Context, id uuid.UUID) (domain.Appointment, error)
}

type Worker struct {
	server       *asynq.Server
	mux          *asynq.ServeMux
	outbox       OutboxStore
	publisher    eventbus.Publisher
	appointments AppointmentReader
	log          *logger.Logger
	exhausted    func(ctx context.Context) bool
}

func NewWorker(cfg config.SchedulerConfig, store OutboxStore, publisher eventbus.Publisher, appointments AppointmentReader, log *logger.Logger) (*Worker, error) {
	conn, err := newConnection(cfg)
	if err != nil {
		return nil, err
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	w := newWorker(store, publisher, appointments, log)
	w.server = asynq.NewServer(conn.redis, asynq.Config{
		Concurrency: concurrency,
		Queues:      map[string]int{conn.queue: 1},
	})
	return w, nil
}

func newWorker(store OutboxStore, publisher eventbus.Publisher, appointments AppointmentReader, log *logger.Logger) *Worker {
	mux := asynq.NewServeMux()
	w := &Worker{
		mux:          mux,
		outbox:       store,
		publisher:    publisher,
		appointments: appointments,
		log:          log,
		exhausted:    retriesExhausted,
	}

	mux.HandleFunc(TaskOutboxPublish, w.handleOutboxPublish)
	mux.HandleFunc(TaskAppointmentReminder, w.handleAppointmentReminder)
	return w
}

// Run processes tasks until ctx is cancelled, then waits for in-flight
// handlers to finish.
func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	if err := w.server.Start(w.mux); err != nil {
		w.log.Error("scheduler worker failed to start", "error", err)
		return
	}
	<-ctx.Done()
	w.server.Shutdown()
}

// handleOutboxPublish publishes one outbox row. asynq retries on error and
// archives the task once MaxRetry is used up; the row is then marked failed.
func (w *Worker) handleOutboxPublish(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseOutboxPublishPayload(task)
	if err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}

	id, err := uuid.Parse(payload.EventID)
	if err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}

	rec, err := w.outbox.GetByID(ctx, id)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
		}
		return err
	}
	if rec.Status == outbox.StatusPublished {
		return nil
	}

	if err := w.outbox.MarkProcessing(ctx, id); err != nil {
		return err
	}

	if err := w.publisher.Publish(ctx, rec.Topic, rec.Envelope); err != nil {
		w.log.WithContext(ctx).DeliveryError(rec.Topic, id.String(), err)
		if w.exhausted(ctx) {
			if markErr := w.outbox.MarkFailed(ctx, id, err.Error()); markErr != nil {
				w.log.Warn("outbox mark failed", "outboxId", id, "error", markErr)
			}
		}
		return err
	}

	return w.outbox.MarkPublished(ctx, id)
}

func (w *Worker) handleAppointmentReminder(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseAppointmentReminderPayload(task)
	if err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}

	apptID, err := uuid.Parse(payload.AppointmentID)
	if err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}

	appt, err := w.appointments.FindByID(ctx, apptID)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return nil
		}
		return err
	}

	if appt.Status != domain.StatusScheduled && appt.Status != domain.StatusConfirmed {
		return nil
	}

	w.log.Info("appointment reminder due",
		"appointmentId", appt.ID,
		"clientId", appt.ClientID,
		"patientId", appt.PatientID,
		"veterinarianId", appt.VeterinarianID,
		"appointmentDate", appt.AppointmentDate,
		"status", appt.Status,
	)
	return nil
}

func retriesExhausted(ctx context.Context) bool {
	retried, ok := asynq.GetRetryCount(ctx)
	if !ok {
		return false
	}
	maxRetry, ok := asynq.GetMaxRetry(ctx)
	if !ok {
		return false
	}
	return retried >= maxRetry
}

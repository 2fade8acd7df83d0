package scheduler

import (
	"context"
	"errors"
	"time"

	"vetclinic_backend/platform/config"

	"github.com/hibiken/asynq"
)

// ReminderScheduler queues the reminder for an upcoming appointment.
type ReminderScheduler interface {
	ScheduleAppointmentReminder(ctx context.Context, payload AppointmentReminderPayload, runAt time.Time) error
}

// ReminderClient enqueues reminder tasks processed by the scheduler worker.
type ReminderClient struct {
	client enqueuer
	queue  string
}

func NewReminderClient(cfg config.SchedulerConfig) (*ReminderClient, error) {
	conn, err := newConnection(cfg)
	if err != nil {
		return nil, err
	}
	return &ReminderClient{client: asynq.NewClient(conn.redis), queue: conn.queue}, nil
}

func (c *ReminderClient) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// ScheduleAppointmentReminder enqueues one reminder per appointment; a second
// call for the same appointment is ignored.
func (c *ReminderClient) ScheduleAppointmentReminder(ctx context.Context, payload AppointmentReminderPayload, runAt time.Time) error {
	if c == nil || c.client == nil {
		return nil
	}

	task, err := NewAppointmentReminderTask(payload)
	if err != nil {
		return err
	}

	_, err = c.client.EnqueueContext(ctx, task,
		asynq.ProcessAt(runAt),
		asynq.Queue(c.queue),
		asynq.TaskID(reminderTaskID(payload.AppointmentID)),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	return err
}

func reminderTaskID(appointmentID string) string {
	return "reminder:" + appointmentID
}

package scheduler

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const TaskAppointmentReminder = "appointments.reminder"

const TaskOutboxPublish = "outbox.publish"

type AppointmentReminderPayload struct {
	AppointmentID  string `json:"appointmentId"`
	VeterinarianID string `json:"veterinarianId"`
}

type OutboxPublishPayload struct {
	EventID string `json:"eventId"`
	Topic   string `json:"topic"`
}

func NewAppointmentReminderTask(payload AppointmentReminderPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAppointmentReminder, data), nil
}

func ParseAppointmentReminderPayload(task *asynq.Task) (AppointmentReminderPayload, error) {
	var payload AppointmentReminderPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return AppointmentReminderPayload{}, err
	}
	return payload, nil
}

func NewOutboxPublishTask(payload OutboxPublishPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskOutboxPublish, data), nil
}

func ParseOutboxPublishPayload(task *asynq.Task) (OutboxPublishPayload, error) {
	var payload OutboxPublishPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return OutboxPublishPayload{}, err
	}
	return payload, nil
}

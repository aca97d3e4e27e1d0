package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"

	"github.com/emporia/console/internal/platform/mail"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueueMail carries outbound email so bulk sends do not starve other work.
	QueueMail = "mail"
	// TaskTypeSendEmail is the task type for sending a single email.
	TaskTypeSendEmail = "mail:send"
	// TaskNotificationsDispatch evaluates notification templates for one day.
	TaskNotificationsDispatch = "notifications:dispatch"
)

// SendEmailPayload describes the information required to send an email.
type SendEmailPayload = mail.Message

// DispatchPayload selects the day to dispatch. An empty date means today in
// the worker's notification time zone.
type DispatchPayload struct {
	Date string `json:"date,omitempty"`
}

// NewSendEmailTask constructs an Asynq task.
func NewSendEmailTask(payload SendEmailPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeSendEmail, data), nil
}

// NewDispatchTask constructs a notifications dispatch task. A zero day defers
// the choice of day to the worker.
func NewDispatchTask(day time.Time) (*asynq.Task, error) {
	payload := DispatchPayload{}
	if !day.IsZero() {
		payload.Date = day.Format("2006-01-02")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskNotificationsDispatch, data), nil
}

package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/emporia/console/internal/jobs"
	"github.com/emporia/console/internal/platform/mail"
)

// MailJob delivers queued email.
type MailJob struct {
	Sender  mail.Sender
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewMailJob initialises the mail handler.
func NewMailJob(sender mail.Sender, logger *slog.Logger, metrics *jobmetrics.Metrics) *MailJob {
	return &MailJob{Sender: sender, Logger: logger, Metrics: metrics}
}

// Handle processes TaskTypeSendEmail tasks. Malformed payloads are not retried.
func (j *MailJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Sender == nil {
		return errors.New("mail job: sender not configured")
	}
	tracker := j.Metrics.Track(TaskTypeSendEmail)
	defer func() {
		err = tracker.End(err)
	}()

	var payload SendEmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("decode mail payload: %v: %w", err, asynq.SkipRetry)
	}
	if err := j.Sender.Send(ctx, payload); err != nil {
		if errors.Is(err, mail.ErrInvalidMessage) {
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		j.logger().Warn("mail delivery failed", slog.String("to", payload.To), slog.Any("error", err))
		return err
	}
	j.logger().Debug("mail sent", slog.String("to", payload.To), slog.String("subject", payload.Subject))
	return nil
}

func (j *MailJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}

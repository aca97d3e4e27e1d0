package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/emporia/console/internal/jobs"
	"github.com/emporia/console/internal/notifications"
)

// Dispatcher evaluates notification templates for a day.
type Dispatcher interface {
	Run(ctx context.Context, day time.Time) (notifications.Summary, error)
}

// DispatchJob runs the daily notification pass.
type DispatchJob struct {
	Dispatcher Dispatcher
	Location   *time.Location
	Logger     *slog.Logger
	Metrics    *jobmetrics.Metrics
	clock      func() time.Time
}

// NewDispatchJob initialises the dispatch handler. loc decides which calendar
// day "today" is; nil means UTC.
func NewDispatchJob(dispatcher Dispatcher, loc *time.Location, logger *slog.Logger, metrics *jobmetrics.Metrics) *DispatchJob {
	if loc == nil {
		loc = time.UTC
	}
	return &DispatchJob{Dispatcher: dispatcher, Location: loc, Logger: logger, Metrics: metrics, clock: time.Now}
}

// Handle executes TaskNotificationsDispatch.
func (j *DispatchJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Dispatcher == nil {
		return errors.New("notifications dispatch: handler not configured")
	}
	tracker := j.Metrics.Track(TaskNotificationsDispatch)
	defer func() {
		err = tracker.End(err)
	}()

	var payload DispatchPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("decode dispatch payload: %v: %w", err, asynq.SkipRetry)
		}
	}
	day, err := j.day(payload)
	if err != nil {
		return err
	}

	logger := j.logger().With(slog.String("day", day.Format("2006-01-02")))
	logger.Info("starting notifications dispatch")
	summary, err := j.Dispatcher.Run(ctx, day)
	if err != nil {
		logger.Error("notifications dispatch failed", slog.Int("queued", summary.Queued), slog.Any("error", err))
		return err
	}
	logger.Info("completed notifications dispatch",
		slog.Int("templates", summary.Templates),
		slog.Int("queued", summary.Queued),
	)
	return nil
}

func (j *DispatchJob) day(payload DispatchPayload) (time.Time, error) {
	if payload.Date != "" {
		day, err := time.Parse("2006-01-02", payload.Date)
		if err != nil {
			return time.Time{}, fmt.Errorf("dispatch date %q: %v: %w", payload.Date, err, asynq.SkipRetry)
		}
		return day, nil
	}
	now := j.clock().In(j.Location)
	y, m, d := now.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
}

func (j *DispatchJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}

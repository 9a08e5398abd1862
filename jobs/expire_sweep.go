package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/eventdesk/backoffice/internal/jobs"
)

// TaskQuotesExpireSweep persists the expiry of sent quotes past their validity.
const TaskQuotesExpireSweep = "quotes:expire-sweep"

// ExpireSweepPayload bounds one sweep run.
type ExpireSweepPayload struct {
	Limit int `json:"limit"`
}

// NewExpireSweepTask builds a sweep task.
func NewExpireSweepTask(limit int) (*asynq.Task, error) {
	body, err := json.Marshal(ExpireSweepPayload{Limit: limit})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskQuotesExpireSweep, body, asynq.Queue(QueueDefault)), nil
}

// QuoteExpirer transitions overdue quotes to EXPIRED.
type QuoteExpirer interface {
	ExpireOverdue(ctx context.Context, limit int) (int, error)
}

// ExpireSweepJob runs the quote expiry sweep.
type ExpireSweepJob struct {
	Quotes  QuoteExpirer
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewExpireSweepJob wires dependencies for the sweep handler.
func NewExpireSweepJob(quotes QuoteExpirer, logger *slog.Logger, metrics *jobmetrics.Metrics) *ExpireSweepJob {
	return &ExpireSweepJob{Quotes: quotes, Logger: logger, Metrics: metrics}
}

// Handle processes sweep tasks.
func (j *ExpireSweepJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Quotes == nil {
		return errors.New("expire sweep: handler not configured")
	}
	var payload ExpireSweepPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}

	tracker := j.Metrics.Track(TaskQuotesExpireSweep)
	defer func() {
		err = tracker.End(err)
	}()

	logger := j.logger()
	expired, err := j.Quotes.ExpireOverdue(ctx, payload.Limit)
	j.Metrics.AddExpired(expired)
	if err != nil {
		logger.Error("expire sweep", slog.Int("expired", expired), slog.Any("error", err))
		return err
	}
	logger.Info("expire sweep completed", slog.Int("expired", expired))
	return nil
}

func (j *ExpireSweepJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}

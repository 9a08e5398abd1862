package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hibiken/asynq"

	"github.com/eventdesk/backoffice/internal/quotes"
)

// Notifier turns quote lifecycle events into notification requests.
type Notifier struct {
	dispatcher *Dispatcher
	entities   EntityReader
	channels   []Channel
	logger     *slog.Logger
}

// NewNotifier constructs a Notifier. Empty channels use DefaultChannels.
func NewNotifier(dispatcher *Dispatcher, entities EntityReader, logger *slog.Logger, channels ...Channel) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	if len(channels) == 0 {
		channels = DefaultChannels()
	}
	return &Notifier{dispatcher: dispatcher, entities: entities, channels: channels, logger: logger}
}

// RequestFor builds the dispatch request for an event. Client-facing events
// reach the client contact on the configured channels; every other event
// stays internal and only produces the creator's in-app entry.
func (n *Notifier) RequestFor(ctx context.Context, evt quotes.LifecycleEvent) Request {
	recipient := Recipient{UserID: evt.CreatedBy}
	external := clientFacing(evt)
	channels := []Channel{ChannelInApp}
	if external {
		channels = n.channels
	}
	if external && n.entities != nil && evt.ClientID != 0 {
		client, err := n.entities.GetClient(ctx, evt.TenantID, evt.ClientID)
		if err != nil {
			n.logger.Warn("notification recipient lookup failed",
				slog.Int64("tenant_id", evt.TenantID), slog.Int64("client_id", evt.ClientID), slog.Any("error", err))
		} else {
			recipient.Name = client.Name
			recipient.Email = client.Email
			recipient.Phone = client.Phone
		}
	}
	metadata := map[string]string{"quoteNumber": evt.QuoteNumber}
	if evt.From != "" {
		metadata["fromStatus"] = string(evt.From)
	}
	if evt.To != "" {
		metadata["toStatus"] = string(evt.To)
	}
	if evt.Reason != "" {
		metadata["reason"] = evt.Reason
	}
	return Request{
		TenantID:  evt.TenantID,
		Type:      Type(evt.Type),
		Entity:    EntityRef{Type: EntityQuote, ID: evt.QuoteID},
		Recipient: recipient,
		Channels:  channels,
		Metadata:  metadata,
	}
}

func clientFacing(evt quotes.LifecycleEvent) bool {
	switch evt.Type {
	case quotes.EventQuoteSent, quotes.EventQuoteAccepted:
		return true
	case quotes.EventQuoteUpdated:
		return evt.To == quotes.StatusClientRequestedChanges
	default:
		return false
	}
}

// Notify dispatches the notification for an event.
func (n *Notifier) Notify(ctx context.Context, evt quotes.LifecycleEvent) Result {
	result := n.dispatcher.Dispatch(ctx, n.RequestFor(ctx, evt))
	if !result.Success {
		n.logger.Warn("notification dispatch failed",
			slog.Int64("tenant_id", evt.TenantID),
			slog.Int64("quote_id", evt.QuoteID),
			slog.String("type", string(evt.Type)),
			slog.Any("errors", result.Errors))
	}
	return result
}

// AsyncNotifier dispatches in a detached goroutine bounded by a timeout.
type AsyncNotifier struct {
	notifier *Notifier
	timeout  time.Duration
	wg       sync.WaitGroup
}

// NewAsyncNotifier constructs the publisher.
func NewAsyncNotifier(notifier *Notifier, timeout time.Duration) *AsyncNotifier {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &AsyncNotifier{notifier: notifier, timeout: timeout}
}

// Publish implements quotes.EventPublisher.
func (a *AsyncNotifier) Publish(ctx context.Context, evt quotes.LifecycleEvent) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer func() {
			if rec := recover(); rec != nil {
				a.notifier.logger.Error("notification dispatch panic", slog.Any("panic", rec))
			}
		}()
		dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.timeout)
		defer cancel()
		a.notifier.Notify(dctx, evt)
	}()
}

// Wait blocks until in-flight dispatches finish.
func (a *AsyncNotifier) Wait() {
	a.wg.Wait()
}

// TaskDispatch is the task type carrying a lifecycle event to the worker.
const TaskDispatch = "notification:dispatch"

// NewDispatchTask wraps a lifecycle event as a background task.
func NewDispatchTask(evt quotes.LifecycleEvent) (*asynq.Task, error) {
	data, err := json.Marshal(evt)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskDispatch, data, asynq.MaxRetry(3)), nil
}

// QueueNotifier hands lifecycle events to the worker queue.
type QueueNotifier struct {
	queue  TaskEnqueuer
	logger *slog.Logger
}

// NewQueueNotifier constructs the publisher.
func NewQueueNotifier(queue TaskEnqueuer, logger *slog.Logger) *QueueNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &QueueNotifier{queue: queue, logger: logger}
}

// Publish implements quotes.EventPublisher.
func (q *QueueNotifier) Publish(ctx context.Context, evt quotes.LifecycleEvent) {
	task, err := NewDispatchTask(evt)
	if err == nil {
		_, err = q.queue.EnqueueContext(ctx, task)
	}
	if err != nil {
		q.logger.Warn("enqueue notification failed",
			slog.Int64("tenant_id", evt.TenantID),
			slog.Int64("quote_id", evt.QuoteID),
			slog.String("type", string(evt.Type)),
			slog.Any("error", err))
	}
}

// HandleDispatchTask returns the worker handler for notification:dispatch.
// Channel failures are recorded by the dispatcher and never retried.
func HandleDispatchTask(notifier *Notifier) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var evt quotes.LifecycleEvent
		if err := json.Unmarshal(t.Payload(), &evt); err != nil {
			return fmt.Errorf("decode notification payload: %v: %w", err, asynq.SkipRetry)
		}
		notifier.Notify(ctx, evt)
		return nil
	}
}

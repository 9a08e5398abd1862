package quotes

import (
	"context"
	"time"
)

// EventType names the lifecycle event emitted after a committed change.
type EventType string

const (
	EventQuoteCreated  EventType = "quote_created"
	EventQuoteSent     EventType = "quote_sent"
	EventQuoteAccepted EventType = "quote_accepted"
	EventQuoteRejected EventType = "quote_rejected"
	EventQuoteUpdated  EventType = "quote_updated"
)

// LifecycleEvent describes one accepted change of a quote.
type LifecycleEvent struct {
	Type        EventType
	TenantID    int64
	QuoteID     int64
	QuoteNumber string
	ClientID    int64
	EventID     *int64
	From        Status
	To          Status
	ActorID     int64
	CreatedBy   int64
	Reason      string
	OccurredAt  time.Time
}

// EventPublisher receives lifecycle events after the transaction commits.
// Implementations must not block the caller and must swallow their own failures.
type EventPublisher interface {
	Publish(ctx context.Context, evt LifecycleEvent)
}

// EventTypeForTransition maps a target status to the event emitted for it.
func EventTypeForTransition(to Status) EventType {
	switch to {
	case StatusSentToClient:
		return EventQuoteSent
	case StatusAcceptedByClient:
		return EventQuoteAccepted
	case StatusRejectedByManager:
		return EventQuoteRejected
	default:
		return EventQuoteUpdated
	}
}

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, LifecycleEvent) {}

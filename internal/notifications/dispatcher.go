package notifications

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// Request asks the dispatcher to deliver one notification.
type Request struct {
	TenantID  int64
	Type      Type
	Entity    EntityRef
	Recipient Recipient
	Channels  []Channel
	Metadata  map[string]string
	Priority  Priority
}

// ChannelResult reports the outcome of one channel attempt.
type ChannelResult struct {
	Channel Channel `json:"channel"`
	Success bool    `json:"success"`
	Error   string  `json:"error,omitempty"`
}

// Result aggregates the channel outcomes of a dispatch. Success is true when
// at least one channel delivered.
type Result struct {
	Success bool            `json:"success"`
	Results []ChannelResult `json:"results"`
	Errors  []string        `json:"errors,omitempty"`
}

// LogEntry is one persisted delivery attempt.
type LogEntry struct {
	TenantID   int64     `json:"tenantId"`
	Type       Type      `json:"type"`
	Channel    Channel   `json:"channel"`
	Recipient  string    `json:"recipient"`
	EntityType string    `json:"entityType,omitempty"`
	EntityID   int64     `json:"entityId,omitempty"`
	Success    bool      `json:"success"`
	Error      string    `json:"error,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// LogWriter persists delivery attempts.
type LogWriter interface {
	Write(ctx context.Context, entry LogEntry) error
}

// Metrics records delivery outcomes.
type Metrics interface {
	ObserveNotification(channel, status string)
}

// Dispatcher renders templates and delivers them over the requested channels.
type Dispatcher struct {
	templates *Registry
	senders   map[Channel]Sender
	resolver  variableResolver
	logs      LogWriter
	metrics   Metrics
	logger    *slog.Logger
	now       func() time.Time
}

// NewDispatcher wires a dispatcher. A nil registry uses DefaultRegistry, and
// types missing from a custom registry also fall back to the defaults.
func NewDispatcher(templates *Registry, entities EntityReader, formatter Formatter, logger *slog.Logger, senders ...Sender) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if templates == nil {
		templates = DefaultRegistry()
	}
	index := make(map[Channel]Sender, len(senders))
	for _, s := range senders {
		if s != nil {
			index[s.Channel()] = s
		}
	}
	return &Dispatcher{
		templates: templates,
		senders:   index,
		resolver:  variableResolver{entities: entities, formatter: formatter, logger: logger},
		logger:    logger,
		now:       time.Now,
	}
}

// WithLogWriter persists every channel attempt.
func (d *Dispatcher) WithLogWriter(w LogWriter) *Dispatcher {
	d.logs = w
	return d
}

// WithMetrics records outcomes per channel.
func (d *Dispatcher) WithMetrics(m Metrics) *Dispatcher {
	d.metrics = m
	return d
}

// WithClock overrides the time source.
func (d *Dispatcher) WithClock(now func() time.Time) *Dispatcher {
	if now != nil {
		d.now = now
	}
	return d
}

// Template returns the template used for a type.
func (d *Dispatcher) Template(t Type) (Template, bool) {
	if tpl, ok := d.templates.Lookup(t); ok {
		return tpl, true
	}
	return DefaultRegistry().Lookup(t)
}

// Dispatch renders and delivers the request. Failures are reported in the
// result and logged, never returned.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) Result {
	tpl, ok := d.Template(req.Type)
	if !ok {
		msg := fmt.Sprintf("no template for notification type %q", req.Type)
		d.logger.Warn("notification dispatch skipped", slog.String("type", string(req.Type)))
		return Result{Errors: []string{msg}}
	}

	vars := d.resolver.resolve(ctx, req.TenantID, req.Entity, req.Metadata)
	rendered := tpl.Render(vars)
	priority := req.Priority
	if priority == "" {
		priority = defaultPriority(req.Type)
	}
	msg := Message{
		TenantID:  req.TenantID,
		Type:      req.Type,
		Entity:    req.Entity,
		Recipient: req.Recipient,
		Subject:   rendered.Subject,
		HTML:      rendered.HTML,
		Text:      rendered.Text,
		Metadata:  req.Metadata,
		Priority:  priority,
		CreatedAt: d.now().UTC(),
	}

	channels := req.Channels
	if len(channels) == 0 {
		channels = DefaultChannels()
	}
	results := make([]ChannelResult, len(channels))
	var g errgroup.Group
	for i, ch := range channels {
		g.Go(func() error {
			results[i] = d.deliver(ctx, ch, msg)
			return nil
		})
	}
	_ = g.Wait()

	out := Result{Results: results}
	for _, r := range results {
		if r.Success {
			out.Success = true
			continue
		}
		out.Errors = append(out.Errors, fmt.Sprintf("%s: %s", r.Channel, r.Error))
	}
	return out
}

func (d *Dispatcher) deliver(ctx context.Context, ch Channel, msg Message) (result ChannelResult) {
	result.Channel = ch
	defer func() {
		if rec := recover(); rec != nil {
			result.Success = false
			result.Error = fmt.Sprintf("panic: %v", rec)
		}
		d.record(ctx, msg, result)
	}()

	sender, ok := d.senders[ch]
	if !ok {
		result.Error = ErrUnknownChannel.Error()
		return result
	}
	if err := sender.Send(ctx, msg); err != nil {
		result.Error = err.Error()
		return result
	}
	result.Success = true
	return result
}

func (d *Dispatcher) record(ctx context.Context, msg Message, result ChannelResult) {
	status := "success"
	if !result.Success {
		status = "failure"
		d.logger.Warn("notification channel failed",
			slog.Int64("tenant_id", msg.TenantID),
			slog.String("type", string(msg.Type)),
			slog.String("channel", string(result.Channel)),
			slog.String("error", result.Error))
	}
	if d.metrics != nil {
		d.metrics.ObserveNotification(string(result.Channel), status)
	}
	if d.logs == nil {
		return
	}
	entry := LogEntry{
		TenantID:   msg.TenantID,
		Type:       msg.Type,
		Channel:    result.Channel,
		Recipient:  address(result.Channel, msg.Recipient),
		EntityType: string(msg.Entity.Type),
		EntityID:   msg.Entity.ID,
		Success:    result.Success,
		Error:      result.Error,
		CreatedAt:  msg.CreatedAt,
	}
	if err := d.logs.Write(context.WithoutCancel(ctx), entry); err != nil {
		d.logger.Warn("notification log write failed", slog.Any("error", err))
	}
}

func defaultPriority(t Type) Priority {
	switch t {
	case TypePaymentOverdue, TypeQuoteAccepted:
		return PriorityHigh
	case TypeReminder:
		return PriorityLow
	default:
		return PriorityNormal
	}
}

package notifications

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/eventdesk/backoffice/internal/quotes"
	"github.com/eventdesk/backoffice/internal/shared"
)

const (
	tenantID   int64 = 1
	quoteID    int64 = 5
	clientID   int64 = 10
	eventID    int64 = 20
	businessID int64 = 30
	creatorID  int64 = 7
)

var fixedNow = time.Date(2026, time.March, 10, 10, 0, 0, 0, time.UTC)

type fakeEntities struct {
	quotes     map[int64]quotes.Quote
	clients    map[int64]quotes.Client
	events     map[int64]quotes.Event
	businesses map[int64]quotes.BusinessIdentity
}

func newFakeEntities() *fakeEntities {
	eventDate := time.Date(2026, time.May, 1, 0, 0, 0, 0, time.UTC)
	ev, biz := eventID, businessID
	return &fakeEntities{
		quotes: map[int64]quotes.Quote{quoteID: {
			ID:                 quoteID,
			TenantID:           tenantID,
			QuoteNumber:        "QUO-2026-001",
			Status:             quotes.StatusSentToClient,
			ClientID:           clientID,
			EventID:            &ev,
			BusinessIdentityID: &biz,
			Total:              decimal.RequireFromString("302.5"),
			ValidUntil:         time.Date(2026, time.April, 9, 0, 0, 0, 0, time.UTC),
			CreatedBy:          creatorID,
		}},
		clients: map[int64]quotes.Client{clientID: {
			ID: clientID, TenantID: tenantID, Name: "Ana Ruiz", Email: "ana@example.com", Phone: "+34600000000",
		}},
		events: map[int64]quotes.Event{eventID: {
			ID: eventID, TenantID: tenantID, ClientID: clientID, Title: "Spring Gala", Date: &eventDate,
		}},
		businesses: map[int64]quotes.BusinessIdentity{businessID: {
			ID: businessID, TenantID: tenantID, Name: "Eventos Sol",
		}},
	}
}

func (f *fakeEntities) GetQuote(_ context.Context, tenant, id int64) (*quotes.Quote, error) {
	q, ok := f.quotes[id]
	if !ok || q.TenantID != tenant {
		return nil, fmt.Errorf("%w: quote %d", shared.ErrNotFound, id)
	}
	return &q, nil
}

func (f *fakeEntities) GetClient(_ context.Context, tenant, id int64) (*quotes.Client, error) {
	c, ok := f.clients[id]
	if !ok || c.TenantID != tenant {
		return nil, fmt.Errorf("%w: client %d", shared.ErrNotFound, id)
	}
	return &c, nil
}

func (f *fakeEntities) GetEvent(_ context.Context, tenant, id int64) (*quotes.Event, error) {
	e, ok := f.events[id]
	if !ok || e.TenantID != tenant {
		return nil, fmt.Errorf("%w: event %d", shared.ErrNotFound, id)
	}
	return &e, nil
}

func (f *fakeEntities) GetBusinessIdentity(_ context.Context, tenant, id int64) (*quotes.BusinessIdentity, error) {
	b, ok := f.businesses[id]
	if !ok || b.TenantID != tenant {
		return nil, fmt.Errorf("%w: business identity %d", shared.ErrNotFound, id)
	}
	return &b, nil
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []Mail
	err  error
}

func (m *recordingMailer) Send(_ context.Context, mail Mail) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, mail)
	return nil
}

func (m *recordingMailer) mails() []Mail {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Mail(nil), m.sent...)
}

type memoryLogs struct {
	mu      sync.Mutex
	entries []LogEntry
}

func (l *memoryLogs) Write(_ context.Context, entry LogEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry)
	return nil
}

func (l *memoryLogs) ListForEntity(_ context.Context, tenant int64, entityType string, entityID int64, _ int) ([]LogEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []LogEntry
	for _, e := range l.entries {
		if e.TenantID == tenant && e.EntityType == entityType && e.EntityID == entityID {
			out = append(out, e)
		}
	}
	return out, nil
}

type countingMetrics struct {
	mu     sync.Mutex
	counts map[string]int
}

func (m *countingMetrics) ObserveNotification(channel, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counts == nil {
		m.counts = make(map[string]int)
	}
	m.counts[channel+"/"+status]++
}

type fakeEnqueuer struct {
	mu    sync.Mutex
	tasks []*asynq.Task
	err   error
}

func (q *fakeEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return nil, q.err
	}
	q.tasks = append(q.tasks, task)
	return &asynq.TaskInfo{Type: task.Type()}, nil
}

type panickingSender struct{}

func (panickingSender) Channel() Channel { return ChannelWhatsApp }

func (panickingSender) Send(context.Context, Message) error { panic("provider exploded") }

var errSMTPDown = errors.New("smtp down")

func newTestStore(t *testing.T) (*InAppStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store := NewInAppStore(client, 30*24*time.Hour, 3)
	store.now = func() time.Time { return fixedNow }
	return store, mr
}

func testFormatter(t *testing.T) Formatter {
	t.Helper()
	f, err := NewFormatter("en", "EUR", "")
	require.NoError(t, err)
	return f
}

type dispatchFixture struct {
	dispatcher *Dispatcher
	mailer     *recordingMailer
	store      *InAppStore
	logs       *memoryLogs
	metrics    *countingMetrics
}

func newDispatchFixture(t *testing.T, registry *Registry, extra ...Sender) dispatchFixture {
	t.Helper()
	store, _ := newTestStore(t)
	mailer := &recordingMailer{}
	logs := &memoryLogs{}
	metrics := &countingMetrics{}
	senders := append([]Sender{NewEmailSender(mailer), NewInAppSender(store)}, extra...)
	d := NewDispatcher(registry, newFakeEntities(), testFormatter(t), nil, senders...).
		WithLogWriter(logs).
		WithMetrics(metrics).
		WithClock(func() time.Time { return fixedNow })
	return dispatchFixture{dispatcher: d, mailer: mailer, store: store, logs: logs, metrics: metrics}
}

func quoteRequest(t Type, channels ...Channel) Request {
	return Request{
		TenantID:  tenantID,
		Type:      t,
		Entity:    EntityRef{Type: EntityQuote, ID: quoteID},
		Recipient: Recipient{UserID: creatorID, Name: "Ana Ruiz", Email: "ana@example.com"},
		Channels:  channels,
	}
}

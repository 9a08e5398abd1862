package quotes

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/eventdesk/backoffice/internal/shared"
)

type memoryRepo struct {
	mu     sync.Mutex
	txMu   sync.Mutex
	nextID int64

	// serialize runs transactions one at a time. Without it concurrent
	// creates race on the sequence and rely on the uniqueness check.
	serialize bool
	// failInserts forces the next N InsertQuote calls to report a taken number.
	failInserts int
	// failItemInserts makes InsertPackageItem fail with this error.
	failItemInserts error
	// txEventReads counts event lookups made inside a transaction.
	txEventReads int

	quotes     map[int64]Quote
	clients    map[int64]Client
	events     map[int64]Event
	businesses map[int64]BusinessIdentity
	templates  map[int64]PackageTemplate
}

type memoryTx struct {
	repo *memoryRepo
	// before holds the pre-transaction value of every quote the transaction
	// touched. IDs are not reused after a rollback, like a database sequence.
	before map[int64]*Quote
}

// touch records the state of quote id before its first change. Callers hold repo.mu.
func (tx *memoryTx) touch(id int64) {
	if _, ok := tx.before[id]; ok {
		return
	}
	if q, ok := tx.repo.quotes[id]; ok {
		prev := cloneQuote(q)
		tx.before[id] = &prev
		return
	}
	tx.before[id] = nil
}

func (tx *memoryTx) rollback() {
	tx.repo.mu.Lock()
	defer tx.repo.mu.Unlock()
	for id, prev := range tx.before {
		if prev == nil {
			delete(tx.repo.quotes, id)
			continue
		}
		tx.repo.quotes[id] = *prev
	}
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		serialize:  true,
		quotes:     make(map[int64]Quote),
		clients:    make(map[int64]Client),
		events:     make(map[int64]Event),
		businesses: make(map[int64]BusinessIdentity),
		templates:  make(map[int64]PackageTemplate),
	}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r.serialize {
		r.txMu.Lock()
		defer r.txMu.Unlock()
	}
	tx := &memoryTx{repo: r, before: make(map[int64]*Quote)}
	if err := fn(ctx, tx); err != nil {
		tx.rollback()
		return err
	}
	return nil
}

func (r *memoryRepo) GetQuote(ctx context.Context, tenantID, id int64) (*Quote, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	q, ok := r.quotes[id]
	if !ok || q.TenantID != tenantID {
		return nil, fmt.Errorf("%w: quote %d", shared.ErrNotFound, id)
	}
	out := cloneQuote(q)
	return &out, nil
}

func (r *memoryRepo) ListQuotes(ctx context.Context, filter ListFilter) ([]Quote, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var matched []Quote
	for _, q := range r.quotes {
		if q.TenantID != filter.TenantID {
			continue
		}
		if filter.Status != nil && !statusMatches(filter, q) {
			continue
		}
		if filter.ClientID != nil && q.ClientID != *filter.ClientID {
			continue
		}
		if filter.EventID != nil && (q.EventID == nil || *q.EventID != *filter.EventID) {
			continue
		}
		q.Packages = nil
		matched = append(matched, q)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID > matched[j].ID })
	total := len(matched)
	if filter.Offset >= len(matched) {
		return nil, total, nil
	}
	matched = matched[filter.Offset:]
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	return matched, total, nil
}

func statusMatches(filter ListFilter, q Quote) bool {
	if filter.AsOf.IsZero() {
		return q.Status == *filter.Status
	}
	return EffectiveStatus(q, filter.AsOf) == *filter.Status
}

func (r *memoryRepo) GetClient(ctx context.Context, tenantID, id int64) (*Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.clients[id]
	if !ok || c.TenantID != tenantID {
		return nil, fmt.Errorf("%w: client %d", shared.ErrNotFound, id)
	}
	return &c, nil
}

func (r *memoryRepo) GetEvent(ctx context.Context, tenantID, id int64) (*Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.events[id]
	if !ok || e.TenantID != tenantID {
		return nil, fmt.Errorf("%w: event %d", shared.ErrNotFound, id)
	}
	return &e, nil
}

func (r *memoryRepo) GetBusinessIdentity(ctx context.Context, tenantID, id int64) (*BusinessIdentity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.businesses[id]
	if !ok || b.TenantID != tenantID {
		return nil, fmt.Errorf("%w: business identity %d", shared.ErrNotFound, id)
	}
	return &b, nil
}

func (r *memoryRepo) GetPackageTemplate(ctx context.Context, tenantID, id int64) (*PackageTemplate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.templates[id]
	if !ok || t.TenantID != tenantID {
		return nil, fmt.Errorf("%w: package template %d", shared.ErrNotFound, id)
	}
	return &t, nil
}

func (r *memoryRepo) ListExpiredCandidates(ctx context.Context, asOf time.Time, limit int) ([]ExpiredCandidate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []ExpiredCandidate
	for _, q := range r.quotes {
		if q.Status == StatusSentToClient && IsPastValidity(q.ValidUntil, asOf) {
			out = append(out, ExpiredCandidate{TenantID: q.TenantID, QuoteID: q.ID})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QuoteID < out[j].QuoteID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memoryRepo) status(id int64) Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.quotes[id].Status
}

func (tx *memoryTx) nextID() int64 {
	tx.repo.nextID++
	return tx.repo.nextID
}

func (tx *memoryTx) MaxQuoteSequence(ctx context.Context, tenantID int64, year int) (int, error) {
	tx.repo.mu.Lock()
	defer tx.repo.mu.Unlock()
	maxSeq := 0
	for _, q := range tx.repo.quotes {
		if q.TenantID != tenantID {
			continue
		}
		y, seq, err := ParseQuoteNumber(q.QuoteNumber)
		if err != nil || y != year {
			continue
		}
		if seq > maxSeq {
			maxSeq = seq
		}
	}
	return maxSeq, nil
}

func (tx *memoryTx) InsertQuote(ctx context.Context, q Quote) (int64, error) {
	tx.repo.mu.Lock()
	defer tx.repo.mu.Unlock()
	if tx.repo.failInserts > 0 {
		tx.repo.failInserts--
		return 0, ErrQuoteNumberTaken
	}
	for _, existing := range tx.repo.quotes {
		if existing.TenantID == q.TenantID && existing.QuoteNumber == q.QuoteNumber {
			return 0, ErrQuoteNumberTaken
		}
	}
	q.ID = tx.nextID()
	q.Packages = nil
	tx.touch(q.ID)
	tx.repo.quotes[q.ID] = q
	return q.ID, nil
}

func (tx *memoryTx) InsertPackage(ctx context.Context, pkg Package) (int64, error) {
	tx.repo.mu.Lock()
	defer tx.repo.mu.Unlock()
	q, ok := tx.repo.quotes[pkg.QuoteID]
	if !ok {
		return 0, fmt.Errorf("%w: quote %d", shared.ErrNotFound, pkg.QuoteID)
	}
	tx.touch(q.ID)
	pkg.ID = tx.nextID()
	pkg.Items = nil
	q.Packages = append(q.Packages, pkg)
	tx.repo.quotes[q.ID] = q
	return pkg.ID, nil
}

func (tx *memoryTx) InsertPackageItem(ctx context.Context, item PackageItem) (int64, error) {
	tx.repo.mu.Lock()
	defer tx.repo.mu.Unlock()
	if tx.repo.failItemInserts != nil {
		return 0, tx.repo.failItemInserts
	}
	for id, q := range tx.repo.quotes {
		for i := range q.Packages {
			if q.Packages[i].ID == item.PackageID {
				tx.touch(id)
				item.ID = tx.nextID()
				q.Packages[i].Items = append(q.Packages[i].Items, item)
				tx.repo.quotes[id] = q
				return item.ID, nil
			}
		}
	}
	return 0, fmt.Errorf("%w: package %d", shared.ErrNotFound, item.PackageID)
}

func (tx *memoryTx) LockQuote(ctx context.Context, tenantID, id int64) (*Quote, error) {
	return tx.repo.GetQuote(ctx, tenantID, id)
}

func (tx *memoryTx) GetEvent(ctx context.Context, tenantID, id int64) (*Event, error) {
	tx.repo.mu.Lock()
	tx.repo.txEventReads++
	tx.repo.mu.Unlock()
	return tx.repo.GetEvent(ctx, tenantID, id)
}

func (tx *memoryTx) UpdateQuote(ctx context.Context, q Quote) error {
	tx.repo.mu.Lock()
	defer tx.repo.mu.Unlock()
	existing, ok := tx.repo.quotes[q.ID]
	if !ok || existing.TenantID != q.TenantID {
		return fmt.Errorf("%w: quote %d", shared.ErrNotFound, q.ID)
	}
	tx.touch(q.ID)
	q.Status = existing.Status
	q.QuoteNumber = existing.QuoteNumber
	q.Packages = existing.Packages
	tx.repo.quotes[q.ID] = q
	return nil
}

func (tx *memoryTx) UpdateQuoteStatus(ctx context.Context, tenantID, id int64, status Status) error {
	tx.repo.mu.Lock()
	defer tx.repo.mu.Unlock()
	q, ok := tx.repo.quotes[id]
	if !ok || q.TenantID != tenantID {
		return fmt.Errorf("%w: quote %d", shared.ErrNotFound, id)
	}
	tx.touch(id)
	q.Status = status
	tx.repo.quotes[id] = q
	return nil
}

func (tx *memoryTx) DeletePackages(ctx context.Context, quoteID int64) error {
	tx.repo.mu.Lock()
	defer tx.repo.mu.Unlock()
	q, ok := tx.repo.quotes[quoteID]
	if !ok {
		return nil
	}
	tx.touch(quoteID)
	q.Packages = nil
	tx.repo.quotes[quoteID] = q
	return nil
}

func (tx *memoryTx) DeleteQuote(ctx context.Context, tenantID, id int64) error {
	tx.repo.mu.Lock()
	defer tx.repo.mu.Unlock()
	q, ok := tx.repo.quotes[id]
	if !ok || q.TenantID != tenantID {
		return fmt.Errorf("%w: quote %d", shared.ErrNotFound, id)
	}
	tx.touch(id)
	delete(tx.repo.quotes, id)
	return nil
}

func cloneQuote(q Quote) Quote {
	out := q
	out.Packages = make([]Package, len(q.Packages))
	for i, p := range q.Packages {
		p.Items = append([]PackageItem(nil), p.Items...)
		out.Packages[i] = p
	}
	return out
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []LifecycleEvent
}

func (p *recordingPublisher) Publish(ctx context.Context, evt LifecycleEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
}

func (p *recordingPublisher) types() []EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]EventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type memoryAudit struct {
	mu   sync.Mutex
	logs []shared.AuditLog
}

func (a *memoryAudit) Record(ctx context.Context, log shared.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.logs = append(a.logs, log)
	return nil
}

func (a *memoryAudit) actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.logs))
	for _, l := range a.logs {
		out = append(out, l.Action)
	}
	return out
}

type memoryIdempotency struct {
	mu   sync.Mutex
	keys map[string]bool
}

func (m *memoryIdempotency) CheckAndInsert(ctx context.Context, tenantID int64, key, module string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := fmt.Sprintf("%d:%s", tenantID, key)
	if m.keys[k] {
		return shared.ErrIdempotencyConflict
	}
	if m.keys == nil {
		m.keys = make(map[string]bool)
	}
	m.keys[k] = true
	return nil
}

func (m *memoryIdempotency) Delete(ctx context.Context, tenantID int64, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, fmt.Sprintf("%d:%s", tenantID, key))
	return nil
}

// Fixture identifiers.
const (
	tenantA int64 = 1
	tenantB int64 = 2

	clientDiscounted int64 = 10
	clientPlain      int64 = 11
	clientOtherTen   int64 = 50

	eventOfDiscounted int64 = 20
	eventOfPlain      int64 = 21
	eventConfirmed    int64 = 22

	businessDefault int64 = 30
	businessReduced int64 = 31

	templateCustom  int64 = 40
	templateCatalog int64 = 41
)

var fixedNow = time.Date(2026, time.March, 10, 10, 0, 0, 0, time.UTC)

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func decPtr(v string) *decimal.Decimal {
	d := dec(v)
	return &d
}

func int64Ptr(v int64) *int64 {
	return &v
}

func seedRepo() *memoryRepo {
	r := newMemoryRepo()
	r.clients[clientDiscounted] = Client{ID: clientDiscounted, TenantID: tenantA, Name: "Ana Ruiz", Email: "ana@example.com", DiscountPercent: decPtr("10")}
	r.clients[clientPlain] = Client{ID: clientPlain, TenantID: tenantA, Name: "Bruno Diaz", Email: "bruno@example.com"}
	r.clients[clientOtherTen] = Client{ID: clientOtherTen, TenantID: tenantB, Name: "Carla Gomez"}

	r.events[eventOfDiscounted] = Event{ID: eventOfDiscounted, TenantID: tenantA, ClientID: clientDiscounted, Title: "Ana's wedding", Status: "PLANNED"}
	r.events[eventOfPlain] = Event{ID: eventOfPlain, TenantID: tenantA, ClientID: clientPlain, Title: "Bruno's gala", Status: "PLANNED"}
	r.events[eventConfirmed] = Event{ID: eventConfirmed, TenantID: tenantA, ClientID: clientPlain, Title: "Confirmed dinner", Status: EventStatusConfirmed}

	r.businesses[businessDefault] = BusinessIdentity{ID: businessDefault, TenantID: tenantA, Name: "Eventos SL"}
	r.businesses[businessReduced] = BusinessIdentity{ID: businessReduced, TenantID: tenantA, Name: "Eventos Canarias", TaxRate: decPtr("0.07")}

	r.templates[templateCustom] = PackageTemplate{ID: templateCustom, TenantID: tenantA, Name: "Premium", Items: []TemplateItem{
		{ProductID: int64Ptr(100), Description: "Catering", Quantity: 1, ProductPrice: decPtr("400")},
	}}
	r.templates[templateCatalog] = PackageTemplate{ID: templateCatalog, TenantID: tenantA, Name: "Basic", Items: []TemplateItem{
		{ProductID: int64Ptr(101), Description: "Chairs", Quantity: 2, ProductPrice: decPtr("100")},
		{ServiceID: int64Ptr(201), Description: "DJ", Quantity: 1, ServicePrice: decPtr("50")},
		{ProductID: int64Ptr(102), Description: "Unpriced", Quantity: 3},
	}}
	return r
}

func staff() shared.Actor {
	return shared.Actor{ID: 7, TenantID: tenantA, Role: shared.RoleStaff}
}

func manager() shared.Actor {
	return shared.Actor{ID: 8, TenantID: tenantA, Role: shared.RoleManager}
}

func clientLink(quoteID int64) shared.Actor {
	return shared.Actor{TenantID: tenantA, Role: shared.RoleClient, QuoteID: quoteID}
}

type harness struct {
	repo      *memoryRepo
	publisher *recordingPublisher
	audit     *memoryAudit
	service   *Service
	now       time.Time
}

func newHarness(maxAttempts int) *harness {
	h := &harness{
		repo:      seedRepo(),
		publisher: &recordingPublisher{},
		audit:     &memoryAudit{},
		now:       fixedNow,
	}
	h.service = NewService(h.repo, Config{TaxRate: dec("0.21"), Validity: 30 * 24 * time.Hour},
		NewSequenceAllocator(maxAttempts, nil, nil), h.publisher, h.audit, nil).
		WithClock(func() time.Time { return h.now })
	return h
}

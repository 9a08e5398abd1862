package quotes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/eventdesk/backoffice/internal/shared"
)

const (
	auditEntity       = "quote"
	idempotencyModule = "quotes.create"
	defaultListLimit  = 50
)

// AuditPort records lifecycle history.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// IdempotencyPort guards create requests carrying an Idempotency-Key.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, tenantID int64, key, module string) error
	Delete(ctx context.Context, tenantID int64, key string) error
}

// TransitionMetrics observes accepted status changes.
type TransitionMetrics interface {
	ObserveQuoteTransition(from, to string)
}

// Config carries pricing and validity defaults.
type Config struct {
	TaxRate  decimal.Decimal
	Validity time.Duration
}

// Service orchestrates quote pricing, numbering, persistence and lifecycle.
type Service struct {
	repo        RepositoryPort
	calc        Calculator
	validity    time.Duration
	sequence    *SequenceAllocator
	publisher   EventPublisher
	audit       AuditPort
	idempotency IdempotencyPort
	metrics     TransitionMetrics
	validator   *RequestValidator
	logger      *slog.Logger
	now         func() time.Time
}

// NewService constructs the quote service. publisher, audit and the optional
// collaborators set through With* may be nil.
func NewService(repo RepositoryPort, cfg Config, sequence *SequenceAllocator, publisher EventPublisher, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if sequence == nil {
		sequence = NewSequenceAllocator(DefaultMaxAttempts, nil, logger)
	}
	if publisher == nil {
		publisher = noopPublisher{}
	}
	validity := cfg.Validity
	if validity <= 0 {
		validity = 30 * 24 * time.Hour
	}
	return &Service{
		repo:      repo,
		calc:      NewCalculator(cfg.TaxRate),
		validity:  validity,
		sequence:  sequence,
		publisher: publisher,
		audit:     audit,
		validator: NewRequestValidator(),
		logger:    logger,
		now:       time.Now,
	}
}

// WithIdempotency enables Idempotency-Key handling on Create.
func (s *Service) WithIdempotency(store IdempotencyPort) *Service {
	s.idempotency = store
	return s
}

// WithMetrics registers a transition observer.
func (s *Service) WithMetrics(m TransitionMetrics) *Service {
	s.metrics = m
	return s
}

// WithClock overrides the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// priced is a fully resolved and priced quote body.
type priced struct {
	totals   Totals
	packages []Package
}

// Preview prices a request without persisting anything.
func (s *Service) Preview(ctx context.Context, actor shared.Actor, req CreateQuoteRequest) (*Quote, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}
	if err := s.validator.Create(req); err != nil {
		return nil, err
	}
	p, err := s.price(ctx, actor.TenantID, req.ClientID, req.EventID, req.BusinessIdentityID, req.Packages, req.Items)
	if err != nil {
		return nil, err
	}
	now := s.now()
	q := Quote{
		TenantID:           actor.TenantID,
		Status:             StatusDraft,
		ClientID:           req.ClientID,
		EventID:            req.EventID,
		BusinessIdentityID: req.BusinessIdentityID,
		ValidUntil:         parseValidUntil(req.ValidUntil, now, s.validity),
		Notes:              req.Notes,
		CreatedBy:          actor.ID,
	}
	applyTotals(&q, p)
	return &q, nil
}

// Create prices and persists a new quote with a freshly allocated number.
func (s *Service) Create(ctx context.Context, actor shared.Actor, req CreateQuoteRequest, idempotencyKey string) (*Quote, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}
	if err := s.validator.Create(req); err != nil {
		return nil, err
	}
	status, err := CheckInitialStatus(actor, req.Status)
	if err != nil {
		return nil, err
	}
	p, err := s.price(ctx, actor.TenantID, req.ClientID, req.EventID, req.BusinessIdentityID, req.Packages, req.Items)
	if err != nil {
		return nil, err
	}

	inserted := false
	if s.idempotency != nil && idempotencyKey != "" {
		if err := s.idempotency.CheckAndInsert(ctx, actor.TenantID, idempotencyKey, idempotencyModule); err != nil {
			return nil, err
		}
		inserted = true
	}

	now := s.now()
	q := Quote{
		TenantID:           actor.TenantID,
		Status:             status,
		ClientID:           req.ClientID,
		EventID:            req.EventID,
		BusinessIdentityID: req.BusinessIdentityID,
		ValidUntil:         parseValidUntil(req.ValidUntil, now, s.validity),
		Notes:              req.Notes,
		CreatedBy:          actor.ID,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	applyTotals(&q, p)

	year := now.Year()
	err = s.sequence.Run(ctx, actor.TenantID, year, func(ctx context.Context) error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			number, err := s.sequence.NextQuoteNumber(ctx, tx, actor.TenantID, year)
			if err != nil {
				return err
			}
			q.QuoteNumber = number
			id, err := tx.InsertQuote(ctx, q)
			if err != nil {
				return err
			}
			q.ID = id
			return insertPackages(ctx, tx, id, q.Packages)
		})
	})
	if err != nil {
		if inserted {
			_ = s.idempotency.Delete(context.WithoutCancel(ctx), actor.TenantID, idempotencyKey)
		}
		return nil, fmt.Errorf("create quote: %w", err)
	}

	s.recordAudit(ctx, actor, "QUOTE_CREATE", q.ID, map[string]any{
		"quote_number": q.QuoteNumber,
		"status":       string(q.Status),
		"total":        q.Total.StringFixed(2),
	})
	s.observeTransition("", q.Status)
	s.publish(ctx, LifecycleEvent{
		Type:        EventQuoteCreated,
		TenantID:    q.TenantID,
		QuoteID:     q.ID,
		QuoteNumber: q.QuoteNumber,
		ClientID:    q.ClientID,
		EventID:     q.EventID,
		To:          q.Status,
		ActorID:     actor.ID,
		CreatedBy:   q.CreatedBy,
		OccurredAt:  now,
	})
	return &q, nil
}

// Update replaces the packages and editable header fields of a quote that is
// still being drafted, recomputing every total.
func (s *Service) Update(ctx context.Context, actor shared.Actor, id int64, req UpdateQuoteRequest) (*Quote, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}
	if err := s.validator.Update(req); err != nil {
		return nil, err
	}
	current, err := s.repo.GetQuote(ctx, actor.TenantID, id)
	if err != nil {
		return nil, err
	}

	eventID := current.EventID
	if req.EventID != nil {
		eventID = req.EventID
	}
	businessID := current.BusinessIdentityID
	if req.BusinessIdentityID != nil {
		businessID = req.BusinessIdentityID
	}
	p, err := s.price(ctx, actor.TenantID, current.ClientID, eventID, businessID, req.Packages, req.Items)
	if err != nil {
		return nil, err
	}

	now := s.now()
	updated := *current
	updated.EventID = eventID
	updated.BusinessIdentityID = businessID
	if req.ValidUntil != "" {
		updated.ValidUntil = parseValidUntil(req.ValidUntil, now, s.validity)
	}
	if req.Notes != nil {
		updated.Notes = req.Notes
	}
	updated.UpdatedAt = now
	applyTotals(&updated, p)

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		locked, err := tx.LockQuote(ctx, actor.TenantID, id)
		if err != nil {
			return err
		}
		if !isEditable(locked.Status) {
			return fmt.Errorf("%w: quote in status %s cannot be edited", shared.ErrConflict, locked.Status)
		}
		updated.Status = locked.Status
		if err := tx.UpdateQuote(ctx, updated); err != nil {
			return err
		}
		if err := tx.DeletePackages(ctx, id); err != nil {
			return err
		}
		return insertPackages(ctx, tx, id, updated.Packages)
	})
	if err != nil {
		return nil, fmt.Errorf("update quote: %w", err)
	}

	s.recordAudit(ctx, actor, "QUOTE_UPDATE", id, map[string]any{
		"total": updated.Total.StringFixed(2),
	})
	s.publish(ctx, LifecycleEvent{
		Type:        EventQuoteUpdated,
		TenantID:    updated.TenantID,
		QuoteID:     id,
		QuoteNumber: updated.QuoteNumber,
		ClientID:    updated.ClientID,
		EventID:     updated.EventID,
		From:        updated.Status,
		To:          updated.Status,
		ActorID:     actor.ID,
		CreatedBy:   updated.CreatedBy,
		OccurredAt:  now,
	})
	return &updated, nil
}

// Get returns a quote visible to the actor with lazy expiry applied.
func (s *Service) Get(ctx context.Context, actor shared.Actor, id int64) (*Quote, error) {
	if !actor.CanAccessQuote(id) {
		return nil, fmt.Errorf("%w: quote %d", shared.ErrNotFound, id)
	}
	q, err := s.repo.GetQuote(ctx, actor.TenantID, id)
	if err != nil {
		return nil, err
	}
	q.Status = EffectiveStatus(*q, s.now())
	return q, nil
}

// List returns the tenant's quotes matching the request.
func (s *Service) List(ctx context.Context, actor shared.Actor, req ListQuotesRequest) ([]Quote, int, error) {
	if err := requireStaff(actor); err != nil {
		return nil, 0, err
	}
	if err := s.validator.List(req); err != nil {
		return nil, 0, err
	}
	limit := req.Limit
	if limit == 0 {
		limit = defaultListLimit
	}
	now := s.now()
	quotes, total, err := s.repo.ListQuotes(ctx, ListFilter{
		TenantID: actor.TenantID,
		Status:   req.Status,
		ClientID: req.ClientID,
		EventID:  req.EventID,
		AsOf:     now,
		Limit:    limit,
		Offset:   req.Offset,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("list quotes: %w", err)
	}
	for i := range quotes {
		quotes[i].Status = EffectiveStatus(quotes[i], now)
	}
	return quotes, total, nil
}

// Transition moves a quote to the requested status. Rejected attempts leave the
// quote untouched and emit nothing.
func (s *Service) Transition(ctx context.Context, actor shared.Actor, id int64, req TransitionRequest) (*Quote, error) {
	if err := s.validator.Transition(req); err != nil {
		return nil, err
	}
	if !actor.CanAccessQuote(id) {
		return nil, fmt.Errorf("%w: quote %d", shared.ErrNotFound, id)
	}

	now := s.now()
	var q *Quote
	var from Status
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		q, err = tx.LockQuote(ctx, actor.TenantID, id)
		if err != nil {
			return err
		}
		from = transitionSource(*q, req.Status, now)
		if err := CheckTransition(actor, from, req.Status); err != nil {
			return err
		}
		return tx.UpdateQuoteStatus(ctx, actor.TenantID, id, req.Status)
	})
	if err != nil {
		return nil, err
	}
	q.Status = req.Status
	q.UpdatedAt = now

	meta := map[string]any{"from": string(from), "to": string(req.Status)}
	if req.Reason != "" {
		meta["reason"] = req.Reason
	}
	s.recordAudit(ctx, actor, "QUOTE_TRANSITION", id, meta)
	s.observeTransition(from, req.Status)
	s.publish(ctx, LifecycleEvent{
		Type:        EventTypeForTransition(req.Status),
		TenantID:    q.TenantID,
		QuoteID:     q.ID,
		QuoteNumber: q.QuoteNumber,
		ClientID:    q.ClientID,
		EventID:     q.EventID,
		From:        from,
		To:          req.Status,
		ActorID:     actor.ID,
		CreatedBy:   q.CreatedBy,
		Reason:      req.Reason,
		OccurredAt:  now,
	})
	return q, nil
}

// Delete removes a quote that never reached the client or was closed, unless a
// confirmed event still references it.
func (s *Service) Delete(ctx context.Context, actor shared.Actor, id int64) error {
	if err := requireStaff(actor); err != nil {
		return err
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		q, err := tx.LockQuote(ctx, actor.TenantID, id)
		if err != nil {
			return err
		}
		if !isDeletable(q.Status) {
			return fmt.Errorf("%w: quote in status %s cannot be deleted", shared.ErrConflict, q.Status)
		}
		if q.EventID != nil {
			evt, err := tx.GetEvent(ctx, actor.TenantID, *q.EventID)
			if err != nil && !errors.Is(err, shared.ErrNotFound) {
				return err
			}
			if evt != nil && evt.Status == EventStatusConfirmed {
				return fmt.Errorf("%w: quote is referenced by confirmed event %d", shared.ErrConflict, evt.ID)
			}
		}
		return tx.DeleteQuote(ctx, actor.TenantID, id)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actor, "QUOTE_DELETE", id, nil)
	return nil
}

// ExpireOverdue persists the expiry of sent quotes past their validity. Failures
// on single quotes are logged and skipped.
func (s *Service) ExpireOverdue(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = 500
	}
	candidates, err := s.repo.ListExpiredCandidates(ctx, s.now(), limit)
	if err != nil {
		return 0, fmt.Errorf("list expired quotes: %w", err)
	}
	expired := 0
	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return expired, err
		}
		_, err := s.Transition(ctx, shared.SystemActor(c.TenantID), c.QuoteID, TransitionRequest{
			Status: StatusExpired,
			Reason: "validity elapsed",
		})
		if err != nil {
			s.logger.Warn("expire quote failed",
				slog.Int64("tenant_id", c.TenantID),
				slog.Int64("quote_id", c.QuoteID),
				slog.Any("error", err))
			continue
		}
		expired++
	}
	return expired, nil
}

// price resolves every reference within the tenant and prices the packages.
func (s *Service) price(ctx context.Context, tenantID, clientID int64, eventID, businessID *int64, pkgReqs []PackageRequest, items []ItemRequest) (*priced, error) {
	client, err := s.repo.GetClient(ctx, tenantID, clientID)
	if err != nil {
		return nil, err
	}
	if eventID != nil {
		evt, err := s.repo.GetEvent(ctx, tenantID, *eventID)
		if err != nil {
			return nil, err
		}
		if evt.ClientID != client.ID {
			return nil, fmt.Errorf("%w: event %d for client %d", shared.ErrNotFound, evt.ID, client.ID)
		}
	}

	calc := s.calc
	if businessID != nil {
		b, err := s.repo.GetBusinessIdentity(ctx, tenantID, *businessID)
		if err != nil {
			return nil, err
		}
		if b.TaxRate != nil {
			calc = calc.WithTaxRate(*b.TaxRate)
		}
	}

	inputs := make([]PackageInput, 0, len(pkgReqs)+1)
	for _, pr := range pkgReqs {
		tpl, err := s.repo.GetPackageTemplate(ctx, tenantID, pr.PackageTemplateID)
		if err != nil {
			return nil, err
		}
		inputs = append(inputs, PackageFromTemplate(*tpl, pr.Quantity, pr.CustomPrice))
	}
	if len(items) > 0 {
		lines := make([]LineInput, 0, len(items))
		for _, it := range items {
			lines = append(lines, LineInput{
				ProductID:   it.ProductID,
				ServiceID:   it.ServiceID,
				Description: it.Description,
				Quantity:    it.Quantity,
				UnitPrice:   it.UnitPrice,
			})
		}
		inputs = append(inputs, AdditionalItemsPackage(lines))
	}

	totals := calc.ComputeQuoteTotals(inputs, client.DiscountPercent)
	return &priced{totals: totals, packages: BuildPackages(inputs, totals)}, nil
}

func applyTotals(q *Quote, p *priced) {
	q.Subtotal = p.totals.Subtotal
	q.TaxRate = p.totals.TaxRate
	q.TaxAmount = p.totals.TaxAmount
	q.DiscountPercent = p.totals.DiscountPercent
	q.Discount = p.totals.Discount
	q.Total = p.totals.Total
	q.Packages = p.packages
}

func insertPackages(ctx context.Context, tx TxRepository, quoteID int64, packages []Package) error {
	for i := range packages {
		pkg := &packages[i]
		pkg.QuoteID = quoteID
		pkgID, err := tx.InsertPackage(ctx, *pkg)
		if err != nil {
			return fmt.Errorf("insert package %d: %w", pkg.Position, err)
		}
		pkg.ID = pkgID
		for j := range pkg.Items {
			item := &pkg.Items[j]
			item.PackageID = pkgID
			itemID, err := tx.InsertPackageItem(ctx, *item)
			if err != nil {
				return fmt.Errorf("insert package item %d: %w", item.Position, err)
			}
			item.ID = itemID
		}
	}
	return nil
}

// transitionSource is the status a transition starts from. A sent quote past
// its validity reads as EXPIRED except for the expiry itself.
func transitionSource(q Quote, to Status, now time.Time) Status {
	effective := EffectiveStatus(q, now)
	if effective == StatusExpired && q.Status == StatusSentToClient && to == StatusExpired {
		return q.Status
	}
	return effective
}

func isEditable(status Status) bool {
	return status == StatusDraft || status == StatusClientRequestedChanges
}

func isDeletable(status Status) bool {
	switch status {
	case StatusDraft, StatusCancelled, StatusRejectedByManager:
		return true
	}
	return false
}

func requireStaff(actor shared.Actor) error {
	if actor.TenantID == 0 {
		return fmt.Errorf("%w: tenant required", shared.ErrForbidden)
	}
	if !actor.Role.IsStaff() {
		return fmt.Errorf("%w: role %s may not manage quotes", shared.ErrForbidden, actor.Role)
	}
	return nil
}

func (s *Service) publish(ctx context.Context, evt LifecycleEvent) {
	s.publisher.Publish(context.WithoutCancel(ctx), evt)
}

func (s *Service) observeTransition(from, to Status) {
	if s.metrics != nil {
		s.metrics.ObserveQuoteTransition(string(from), string(to))
	}
}

func (s *Service) recordAudit(ctx context.Context, actor shared.Actor, action string, quoteID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		TenantID: actor.TenantID,
		ActorID:  actor.ID,
		Action:   action,
		Entity:   auditEntity,
		EntityID: strconv.FormatInt(quoteID, 10),
		Meta:     meta,
		At:       s.now(),
	})
	if err != nil {
		s.logger.Warn("record quote audit failed", slog.String("action", action), slog.Int64("quote_id", quoteID), slog.Any("error", err))
	}
}

package quotes

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/eventdesk/backoffice/internal/platform/db"
	"github.com/eventdesk/backoffice/internal/shared"
)

const quoteNumberConstraint = "quotes_tenant_number_key"

// ErrConcurrentModification reports a transaction that lost a race on the same rows.
var ErrConcurrentModification = errors.New("quotes: concurrent modification")

// RepositoryPort describes the persistence operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetQuote(ctx context.Context, tenantID, id int64) (*Quote, error)
	ListQuotes(ctx context.Context, filter ListFilter) ([]Quote, int, error)
	GetClient(ctx context.Context, tenantID, id int64) (*Client, error)
	GetEvent(ctx context.Context, tenantID, id int64) (*Event, error)
	GetBusinessIdentity(ctx context.Context, tenantID, id int64) (*BusinessIdentity, error)
	GetPackageTemplate(ctx context.Context, tenantID, id int64) (*PackageTemplate, error)
	ListExpiredCandidates(ctx context.Context, asOf time.Time, limit int) ([]ExpiredCandidate, error)
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	MaxQuoteSequence(ctx context.Context, tenantID int64, year int) (int, error)
	InsertQuote(ctx context.Context, q Quote) (int64, error)
	InsertPackage(ctx context.Context, pkg Package) (int64, error)
	InsertPackageItem(ctx context.Context, item PackageItem) (int64, error)
	LockQuote(ctx context.Context, tenantID, id int64) (*Quote, error)
	GetEvent(ctx context.Context, tenantID, id int64) (*Event, error)
	UpdateQuote(ctx context.Context, q Quote) error
	UpdateQuoteStatus(ctx context.Context, tenantID, id int64, status Status) error
	DeletePackages(ctx context.Context, quoteID int64) error
	DeleteQuote(ctx context.Context, tenantID, id int64) error
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx wraps callback in repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
	if err != nil && db.IsSerializationFailure(err) {
		return fmt.Errorf("%w: %w", shared.ErrConflict, ErrConcurrentModification)
	}
	return err
}

const quoteColumns = `id, tenant_id, quote_number, status, client_id, event_id, business_identity_id,
	subtotal, tax_rate, tax_amount, discount_percent, discount, total, valid_until, notes,
	created_by, created_at, updated_at`

func scanQuote(row pgx.Row) (*Quote, error) {
	var q Quote
	var status string
	err := row.Scan(
		&q.ID, &q.TenantID, &q.QuoteNumber, &status, &q.ClientID, &q.EventID, &q.BusinessIdentityID,
		&q.Subtotal, &q.TaxRate, &q.TaxAmount, &q.DiscountPercent, &q.Discount, &q.Total, &q.ValidUntil, &q.Notes,
		&q.CreatedBy, &q.CreatedAt, &q.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	q.Status = Status(status)
	return &q, nil
}

func notFound(err error, what string, id int64) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %s %d", shared.ErrNotFound, what, id)
	}
	return err
}

// GetQuote loads a quote with its packages and items.
func (r *Repository) GetQuote(ctx context.Context, tenantID, id int64) (*Quote, error) {
	q, err := scanQuote(r.pool.QueryRow(ctx, `SELECT `+quoteColumns+` FROM quotes WHERE tenant_id = $1 AND id = $2`, tenantID, id))
	if err != nil {
		return nil, notFound(err, "quote", id)
	}
	packages, err := r.loadPackages(ctx, q.ID)
	if err != nil {
		return nil, err
	}
	q.Packages = packages
	return q, nil
}

func (r *Repository) loadPackages(ctx context.Context, quoteID int64) ([]Package, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, quote_id, package_template_id, name, quantity, custom_price, subtotal, position
		FROM quote_packages WHERE quote_id = $1 ORDER BY position, id`, quoteID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var packages []Package
	index := make(map[int64]int)
	for rows.Next() {
		var p Package
		if err := rows.Scan(&p.ID, &p.QuoteID, &p.PackageTemplateID, &p.Name, &p.Quantity, &p.CustomPrice, &p.Subtotal, &p.Position); err != nil {
			return nil, err
		}
		index[p.ID] = len(packages)
		packages = append(packages, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(packages) == 0 {
		return packages, nil
	}

	ids := make([]int64, 0, len(packages))
	for _, p := range packages {
		ids = append(ids, p.ID)
	}
	itemRows, err := r.pool.Query(ctx, `
		SELECT id, package_id, product_id, service_id, description, quantity, unit_price, total_price, position
		FROM quote_package_items WHERE package_id = ANY($1) ORDER BY package_id, position, id`, ids)
	if err != nil {
		return nil, err
	}
	defer itemRows.Close()
	for itemRows.Next() {
		var it PackageItem
		if err := itemRows.Scan(&it.ID, &it.PackageID, &it.ProductID, &it.ServiceID, &it.Description,
			&it.Quantity, &it.UnitPrice, &it.TotalPrice, &it.Position); err != nil {
			return nil, err
		}
		if i, ok := index[it.PackageID]; ok {
			packages[i].Items = append(packages[i].Items, it)
		}
	}
	return packages, itemRows.Err()
}

// ListQuotes returns quote headers matching filter and the total count.
func (r *Repository) ListQuotes(ctx context.Context, filter ListFilter) ([]Quote, int, error) {
	conditions := []string{"tenant_id = $1"}
	args := []any{filter.TenantID}
	argPos := 2

	if filter.Status != nil {
		switch {
		case filter.AsOf.IsZero():
			conditions = append(conditions, fmt.Sprintf("status = $%d", argPos))
			args = append(args, string(*filter.Status))
			argPos++
		case *filter.Status == StatusExpired:
			conditions = append(conditions, fmt.Sprintf("(status = $%d OR (status = $%d AND valid_until < $%d::date))",
				argPos, argPos+1, argPos+2))
			args = append(args, string(StatusExpired), string(StatusSentToClient), filter.AsOf)
			argPos += 3
		case *filter.Status == StatusSentToClient:
			conditions = append(conditions, fmt.Sprintf("status = $%d AND valid_until >= $%d::date", argPos, argPos+1))
			args = append(args, string(StatusSentToClient), filter.AsOf)
			argPos += 2
		default:
			conditions = append(conditions, fmt.Sprintf("status = $%d", argPos))
			args = append(args, string(*filter.Status))
			argPos++
		}
	}
	if filter.ClientID != nil {
		conditions = append(conditions, fmt.Sprintf("client_id = $%d", argPos))
		args = append(args, *filter.ClientID)
		argPos++
	}
	if filter.EventID != nil {
		conditions = append(conditions, fmt.Sprintf("event_id = $%d", argPos))
		args = append(args, *filter.EventID)
		argPos++
	}
	where := "WHERE " + strings.Join(conditions, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM quotes "+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT %s FROM quotes %s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		quoteColumns, where, argPos, argPos+1)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var quotes []Quote
	for rows.Next() {
		q, err := scanQuote(rows)
		if err != nil {
			return nil, 0, err
		}
		quotes = append(quotes, *q)
	}
	return quotes, total, rows.Err()
}

// GetClient loads a client of the tenant.
func (r *Repository) GetClient(ctx context.Context, tenantID, id int64) (*Client, error) {
	var c Client
	err := r.pool.QueryRow(ctx, `
		SELECT id, tenant_id, name, COALESCE(email, ''), COALESCE(phone, ''), discount_percent
		FROM clients WHERE tenant_id = $1 AND id = $2`, tenantID, id).
		Scan(&c.ID, &c.TenantID, &c.Name, &c.Email, &c.Phone, &c.DiscountPercent)
	if err != nil {
		return nil, notFound(err, "client", id)
	}
	return &c, nil
}

// GetEvent loads an event of the tenant.
func (r *Repository) GetEvent(ctx context.Context, tenantID, id int64) (*Event, error) {
	var e Event
	err := r.pool.QueryRow(ctx, `
		SELECT id, tenant_id, client_id, title, status, event_date
		FROM events WHERE tenant_id = $1 AND id = $2`, tenantID, id).
		Scan(&e.ID, &e.TenantID, &e.ClientID, &e.Title, &e.Status, &e.Date)
	if err != nil {
		return nil, notFound(err, "event", id)
	}
	return &e, nil
}

// GetBusinessIdentity loads the issuing business of the tenant.
func (r *Repository) GetBusinessIdentity(ctx context.Context, tenantID, id int64) (*BusinessIdentity, error) {
	var b BusinessIdentity
	err := r.pool.QueryRow(ctx, `
		SELECT id, tenant_id, name, tax_rate
		FROM business_identities WHERE tenant_id = $1 AND id = $2`, tenantID, id).
		Scan(&b.ID, &b.TenantID, &b.Name, &b.TaxRate)
	if err != nil {
		return nil, notFound(err, "business identity", id)
	}
	return &b, nil
}

// GetPackageTemplate loads a template with catalog prices resolved.
func (r *Repository) GetPackageTemplate(ctx context.Context, tenantID, id int64) (*PackageTemplate, error) {
	var tpl PackageTemplate
	err := r.pool.QueryRow(ctx, `
		SELECT id, tenant_id, name FROM package_templates WHERE tenant_id = $1 AND id = $2`, tenantID, id).
		Scan(&tpl.ID, &tpl.TenantID, &tpl.Name)
	if err != nil {
		return nil, notFound(err, "package template", id)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT i.product_id, i.service_id, COALESCE(i.description, p.name, s.name, ''), i.quantity, p.price, s.price
		FROM package_template_items i
		LEFT JOIN products p ON p.id = i.product_id AND p.tenant_id = $2
		LEFT JOIN services s ON s.id = i.service_id AND s.tenant_id = $2
		WHERE i.template_id = $1
		ORDER BY i.position, i.id`, tpl.ID, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var item TemplateItem
		if err := rows.Scan(&item.ProductID, &item.ServiceID, &item.Description, &item.Quantity, &item.ProductPrice, &item.ServicePrice); err != nil {
			return nil, err
		}
		tpl.Items = append(tpl.Items, item)
	}
	return &tpl, rows.Err()
}

// ListExpiredCandidates returns sent quotes whose validity day ended before asOf.
func (r *Repository) ListExpiredCandidates(ctx context.Context, asOf time.Time, limit int) ([]ExpiredCandidate, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT tenant_id, id FROM quotes
		WHERE status = $1 AND valid_until < $2::date
		ORDER BY valid_until, id
		LIMIT $3`, string(StatusSentToClient), asOf, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ExpiredCandidate
	for rows.Next() {
		var c ExpiredCandidate
		if err := rows.Scan(&c.TenantID, &c.QuoteID); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (t *txRepo) MaxQuoteSequence(ctx context.Context, tenantID int64, year int) (int, error) {
	var maxSeq int
	err := t.tx.QueryRow(ctx, `
		SELECT COALESCE(MAX(CAST(split_part(quote_number, '-', 3) AS INTEGER)), 0)
		FROM quotes WHERE tenant_id = $1 AND quote_number LIKE $2`,
		tenantID, fmt.Sprintf("%s-%04d-%%", QuoteNumberPrefix, year)).Scan(&maxSeq)
	return maxSeq, err
}

func (t *txRepo) InsertQuote(ctx context.Context, q Quote) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO quotes (tenant_id, quote_number, status, client_id, event_id, business_identity_id,
			subtotal, tax_rate, tax_amount, discount_percent, discount, total, valid_until, notes,
			created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $16)
		RETURNING id`,
		q.TenantID, q.QuoteNumber, string(q.Status), q.ClientID, q.EventID, q.BusinessIdentityID,
		q.Subtotal, q.TaxRate, q.TaxAmount, q.DiscountPercent, q.Discount, q.Total, q.ValidUntil, q.Notes,
		q.CreatedBy, q.CreatedAt).Scan(&id)
	if err != nil {
		if db.IsUniqueViolation(err) && db.ConstraintName(err) == quoteNumberConstraint {
			return 0, ErrQuoteNumberTaken
		}
		return 0, err
	}
	return id, nil
}

func (t *txRepo) InsertPackage(ctx context.Context, pkg Package) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO quote_packages (quote_id, package_template_id, name, quantity, custom_price, subtotal, position)
		VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
		pkg.QuoteID, pkg.PackageTemplateID, pkg.Name, pkg.Quantity, pkg.CustomPrice, pkg.Subtotal, pkg.Position).Scan(&id)
	return id, err
}

func (t *txRepo) InsertPackageItem(ctx context.Context, item PackageItem) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO quote_package_items (package_id, product_id, service_id, description, quantity, unit_price, total_price, position)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`,
		item.PackageID, item.ProductID, item.ServiceID, item.Description, item.Quantity,
		item.UnitPrice, item.TotalPrice, item.Position).Scan(&id)
	return id, err
}

func (t *txRepo) LockQuote(ctx context.Context, tenantID, id int64) (*Quote, error) {
	q, err := scanQuote(t.tx.QueryRow(ctx, `SELECT `+quoteColumns+` FROM quotes WHERE tenant_id = $1 AND id = $2 FOR UPDATE`, tenantID, id))
	if err != nil {
		return nil, notFound(err, "quote", id)
	}
	return q, nil
}

// GetEvent reads the event under a share lock so a concurrent confirmation
// waits for the transaction.
func (t *txRepo) GetEvent(ctx context.Context, tenantID, id int64) (*Event, error) {
	var e Event
	err := t.tx.QueryRow(ctx, `
		SELECT id, tenant_id, client_id, title, status, event_date
		FROM events WHERE tenant_id = $1 AND id = $2 FOR SHARE`, tenantID, id).
		Scan(&e.ID, &e.TenantID, &e.ClientID, &e.Title, &e.Status, &e.Date)
	if err != nil {
		return nil, notFound(err, "event", id)
	}
	return &e, nil
}

func (t *txRepo) UpdateQuote(ctx context.Context, q Quote) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE quotes SET event_id = $3, business_identity_id = $4, subtotal = $5, tax_rate = $6,
			tax_amount = $7, discount_percent = $8, discount = $9, total = $10, valid_until = $11,
			notes = $12, updated_at = $13
		WHERE tenant_id = $1 AND id = $2`,
		q.TenantID, q.ID, q.EventID, q.BusinessIdentityID, q.Subtotal, q.TaxRate,
		q.TaxAmount, q.DiscountPercent, q.Discount, q.Total, q.ValidUntil, q.Notes, q.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: quote %d", shared.ErrNotFound, q.ID)
	}
	return nil
}

func (t *txRepo) UpdateQuoteStatus(ctx context.Context, tenantID, id int64, status Status) error {
	tag, err := t.tx.Exec(ctx, `UPDATE quotes SET status = $3, updated_at = NOW() WHERE tenant_id = $1 AND id = $2`,
		tenantID, id, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: quote %d", shared.ErrNotFound, id)
	}
	return nil
}

func (t *txRepo) DeletePackages(ctx context.Context, quoteID int64) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM quote_packages WHERE quote_id = $1`, quoteID)
	return err
}

func (t *txRepo) DeleteQuote(ctx context.Context, tenantID, id int64) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM quotes WHERE tenant_id = $1 AND id = $2`, tenantID, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: quote %d", shared.ErrNotFound, id)
	}
	return nil
}

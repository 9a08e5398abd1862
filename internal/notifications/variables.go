package notifications

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/eventdesk/backoffice/internal/quotes"
)

// EntityReader is the read-only view of the records templates may reference.
type EntityReader interface {
	GetQuote(ctx context.Context, tenantID, id int64) (*quotes.Quote, error)
	GetClient(ctx context.Context, tenantID, id int64) (*quotes.Client, error)
	GetEvent(ctx context.Context, tenantID, id int64) (*quotes.Event, error)
	GetBusinessIdentity(ctx context.Context, tenantID, id int64) (*quotes.BusinessIdentity, error)
}

// DefaultDateLayout is used when a Formatter is built without a layout.
const DefaultDateLayout = "02 Jan 2006"

// Formatter renders money and dates for template variables.
type Formatter struct {
	printer  *message.Printer
	currency currency.Unit
	layout   string
}

// NewFormatter builds a formatter for the locale and ISO currency code.
func NewFormatter(locale, code, layout string) (Formatter, error) {
	tag, err := language.Parse(locale)
	if err != nil {
		return Formatter{}, fmt.Errorf("notifications: locale %q: %w", locale, err)
	}
	unit, err := currency.ParseISO(code)
	if err != nil {
		return Formatter{}, fmt.Errorf("notifications: currency %q: %w", code, err)
	}
	if layout == "" {
		layout = DefaultDateLayout
	}
	return Formatter{printer: message.NewPrinter(tag), currency: unit, layout: layout}, nil
}

func (f Formatter) ensure() Formatter {
	if f.printer == nil {
		f.printer = message.NewPrinter(language.English)
		f.currency = currency.EUR
	}
	if f.layout == "" {
		f.layout = DefaultDateLayout
	}
	return f
}

// Money formats an amount as "<ISO> <amount>" with two decimals.
func (f Formatter) Money(amount decimal.Decimal) string {
	f = f.ensure()
	fixed := amount.StringFixed(2)
	sign := ""
	if strings.HasPrefix(fixed, "-") {
		sign, fixed = "-", fixed[1:]
	}
	whole, frac, _ := strings.Cut(fixed, ".")
	group, point := f.separators()
	return f.currency.String() + " " + sign + groupDigits(whole, group) + point + frac
}

// separators reads the locale's grouping and decimal marks off the printer.
func (f Formatter) separators() (group, point string) {
	group = strings.TrimSuffix(strings.TrimPrefix(f.printer.Sprintf("%d", 1000), "1"), "000")
	point = strings.TrimSuffix(strings.TrimPrefix(f.printer.Sprintf("%.1f", 1.5), "1"), "5")
	if point == "" {
		point = "."
	}
	return group, point
}

func groupDigits(digits, sep string) string {
	if sep == "" || len(digits) <= 3 {
		return digits
	}
	var b strings.Builder
	head := len(digits) % 3
	if head > 0 {
		b.WriteString(digits[:head])
	}
	for i := head; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteString(sep)
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}

// Date formats a calendar date.
func (f Formatter) Date(t time.Time) string {
	f = f.ensure()
	if t.IsZero() {
		return ""
	}
	return t.Format(f.layout)
}

// EntityRef identifies the record a notification is about.
type EntityRef struct {
	Type EntityType
	ID   int64
}

// EntityType names the kind of record behind a notification.
type EntityType string

const (
	EntityQuote   EntityType = "quote"
	EntityEvent   EntityType = "event"
	EntityPayment EntityType = "payment"
)

// variableResolver derives template variables from stored records.
type variableResolver struct {
	entities  EntityReader
	formatter Formatter
	logger    *slog.Logger
}

// resolve returns entity-derived variables overlaid with caller metadata.
// Lookup failures leave the affected variables blank.
func (v variableResolver) resolve(ctx context.Context, tenantID int64, ref EntityRef, metadata map[string]string) map[string]string {
	vars := make(map[string]string)
	if v.entities != nil && ref.ID != 0 {
		switch ref.Type {
		case EntityQuote:
			v.quoteVariables(ctx, tenantID, ref.ID, vars)
		case EntityEvent:
			v.eventVariables(ctx, tenantID, ref.ID, vars)
		}
	}
	for key, value := range metadata {
		vars[key] = value
	}
	if raw, ok := metadata["amount"]; ok {
		if amount, err := decimal.NewFromString(strings.TrimSpace(raw)); err == nil {
			vars["amount"] = v.formatter.Money(amount)
		}
	}
	return vars
}

func (v variableResolver) quoteVariables(ctx context.Context, tenantID, quoteID int64, vars map[string]string) {
	q, err := v.entities.GetQuote(ctx, tenantID, quoteID)
	if err != nil {
		v.lookupFailed("quote", quoteID, err)
		return
	}
	vars["quoteNumber"] = q.QuoteNumber
	vars["total"] = v.formatter.Money(q.Total)
	vars["validUntil"] = v.formatter.Date(q.ValidUntil)
	v.clientVariables(ctx, tenantID, q.ClientID, vars)
	if q.EventID != nil {
		v.eventVariables(ctx, tenantID, *q.EventID, vars)
	}
	if q.BusinessIdentityID != nil {
		business, err := v.entities.GetBusinessIdentity(ctx, tenantID, *q.BusinessIdentityID)
		if err != nil {
			v.lookupFailed("business_identity", *q.BusinessIdentityID, err)
			return
		}
		vars["businessName"] = business.Name
	}
}

func (v variableResolver) eventVariables(ctx context.Context, tenantID, eventID int64, vars map[string]string) {
	event, err := v.entities.GetEvent(ctx, tenantID, eventID)
	if err != nil {
		v.lookupFailed("event", eventID, err)
		return
	}
	vars["eventTitle"] = event.Title
	if event.Date != nil {
		vars["eventDate"] = v.formatter.Date(*event.Date)
	}
	if _, ok := vars["clientName"]; !ok {
		v.clientVariables(ctx, tenantID, event.ClientID, vars)
	}
}

func (v variableResolver) clientVariables(ctx context.Context, tenantID, clientID int64, vars map[string]string) {
	client, err := v.entities.GetClient(ctx, tenantID, clientID)
	if err != nil {
		v.lookupFailed("client", clientID, err)
		return
	}
	vars["clientName"] = client.Name
}

func (v variableResolver) lookupFailed(entity string, id int64, err error) {
	if v.logger == nil {
		return
	}
	v.logger.Warn("notification variable lookup failed",
		slog.String("entity", entity), slog.Int64("id", id), slog.Any("error", err))
}

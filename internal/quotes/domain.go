package quotes

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status is the externally visible quote status. Values are case-sensitive.
type Status string

const (
	StatusDraft                  Status = "DRAFT"
	StatusPendingManager         Status = "PENDING_MANAGER"
	StatusRejectedByManager      Status = "REJECTED_BY_MANAGER"
	StatusApprovedByManager      Status = "APPROVED_BY_MANAGER"
	StatusSentToClient           Status = "SENT_TO_CLIENT"
	StatusClientRequestedChanges Status = "CLIENT_REQUESTED_CHANGES"
	StatusAcceptedByClient       Status = "ACCEPTED_BY_CLIENT"
	StatusExpired                Status = "EXPIRED"
	StatusCancelled              Status = "CANCELLED"
)

// AllStatuses lists every status in lifecycle order.
func AllStatuses() []Status {
	return []Status{
		StatusDraft,
		StatusPendingManager,
		StatusRejectedByManager,
		StatusApprovedByManager,
		StatusSentToClient,
		StatusClientRequestedChanges,
		StatusAcceptedByClient,
		StatusExpired,
		StatusCancelled,
	}
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	for _, known := range AllStatuses() {
		if s == known {
			return true
		}
	}
	return false
}

// Quote is the central aggregate.
type Quote struct {
	ID                 int64           `json:"id"`
	TenantID           int64           `json:"tenantId"`
	QuoteNumber        string          `json:"quoteNumber"`
	Status             Status          `json:"status"`
	ClientID           int64           `json:"clientId"`
	EventID            *int64          `json:"eventId,omitempty"`
	BusinessIdentityID *int64          `json:"businessIdentityId,omitempty"`
	Subtotal           decimal.Decimal `json:"subtotal"`
	TaxRate            decimal.Decimal `json:"taxRate"`
	TaxAmount          decimal.Decimal `json:"taxAmount"`
	DiscountPercent    decimal.Decimal `json:"discountPercent"`
	Discount           decimal.Decimal `json:"discount"`
	Total              decimal.Decimal `json:"total"`
	ValidUntil         time.Time       `json:"validUntil"`
	Notes              *string         `json:"notes,omitempty"`
	CreatedBy          int64           `json:"createdBy"`
	CreatedAt          time.Time       `json:"createdAt"`
	UpdatedAt          time.Time       `json:"updatedAt"`
	Packages           []Package       `json:"packages,omitempty"`
}

// Package belongs to exactly one quote.
type Package struct {
	ID                int64            `json:"id"`
	QuoteID           int64            `json:"quoteId"`
	PackageTemplateID *int64           `json:"packageTemplateId,omitempty"`
	Name              string           `json:"name"`
	Quantity          int              `json:"quantity"`
	CustomPrice       *decimal.Decimal `json:"customPrice,omitempty"`
	Subtotal          decimal.Decimal  `json:"subtotal"`
	Position          int              `json:"position"`
	Items             []PackageItem    `json:"items,omitempty"`
}

// PackageItem references a product XOR a service, or neither for a free-text line.
type PackageItem struct {
	ID          int64           `json:"id"`
	PackageID   int64           `json:"packageId"`
	ProductID   *int64          `json:"productId,omitempty"`
	ServiceID   *int64          `json:"serviceId,omitempty"`
	Description string          `json:"description,omitempty"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	TotalPrice  decimal.Decimal `json:"totalPrice"`
	Position    int             `json:"position"`
}

// Client is the read model of a tenant client.
type Client struct {
	ID              int64
	TenantID        int64
	Name            string
	Email           string
	Phone           string
	DiscountPercent *decimal.Decimal
}

// EventStatusConfirmed marks an event whose quote must not be deleted.
const EventStatusConfirmed = "CONFIRMED"

// Event is the read model of a client event.
type Event struct {
	ID       int64
	TenantID int64
	ClientID int64
	Title    string
	Status   string
	Date     *time.Time
}

// BusinessIdentity is the issuing business of a quote.
type BusinessIdentity struct {
	ID       int64
	TenantID int64
	Name     string
	// TaxRate overrides the configured default when set.
	TaxRate *decimal.Decimal
}

// PackageTemplate is a reusable catalog entry.
type PackageTemplate struct {
	ID       int64
	TenantID int64
	Name     string
	Items    []TemplateItem
}

// TemplateItem references a product or a service with a quantity. Prices are
// resolved from the catalog at read time and may be missing.
type TemplateItem struct {
	ProductID    *int64
	ServiceID    *int64
	Description  string
	Quantity     int
	ProductPrice *decimal.Decimal
	ServicePrice *decimal.Decimal
}

// ResolvedPrice prefers the product price, falls back to the service price and
// defaults to zero.
func (t TemplateItem) ResolvedPrice() decimal.Decimal {
	if t.ProductPrice != nil {
		return *t.ProductPrice
	}
	if t.ServicePrice != nil {
		return *t.ServicePrice
	}
	return decimal.Zero
}

// ListFilter narrows quote listings. TenantID is always applied. When AsOf is
// set the status filter matches the effective status, so sent quotes past
// their validity count as EXPIRED.
type ListFilter struct {
	TenantID int64
	Status   *Status
	ClientID *int64
	EventID  *int64
	AsOf     time.Time
	Limit    int
	Offset   int
}

// ExpiredCandidate identifies a sent quote past its validity.
type ExpiredCandidate struct {
	TenantID int64
	QuoteID  int64
}

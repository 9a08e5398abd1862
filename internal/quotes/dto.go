package quotes

import (
	"errors"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/eventdesk/backoffice/internal/shared"
)

// DateLayout is the wire format of validUntil.
const DateLayout = "2006-01-02"

// PackageRequest selects a catalog template.
type PackageRequest struct {
	PackageTemplateID int64            `json:"packageTemplateId" validate:"required,gt=0"`
	Quantity          int              `json:"quantity" validate:"gte=1"`
	CustomPrice       *decimal.Decimal `json:"customPrice,omitempty"`
}

// ItemRequest is an ad-hoc line grouped into the additional items package.
type ItemRequest struct {
	ProductID   *int64          `json:"productId,omitempty" validate:"omitempty,gt=0,excluded_with=ServiceID"`
	ServiceID   *int64          `json:"serviceId,omitempty" validate:"omitempty,gt=0"`
	Description string          `json:"description,omitempty" validate:"max=500"`
	Quantity    int             `json:"quantity" validate:"gte=1"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
}

// CreateQuoteRequest is the input of Create and Preview.
type CreateQuoteRequest struct {
	ClientID           int64            `json:"clientId" validate:"required,gt=0"`
	EventID            *int64           `json:"eventId,omitempty" validate:"omitempty,gt=0"`
	BusinessIdentityID *int64           `json:"businessIdentityId,omitempty" validate:"omitempty,gt=0"`
	ValidUntil         string           `json:"validUntil,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Notes              *string          `json:"notes,omitempty" validate:"omitempty,max=2000"`
	Status             Status           `json:"status,omitempty"`
	Packages           []PackageRequest `json:"packages,omitempty" validate:"dive"`
	Items              []ItemRequest    `json:"items,omitempty" validate:"dive"`
}

// UpdateQuoteRequest replaces the editable parts of a quote. Header fields left
// empty keep their value; packages and items are always replaced.
type UpdateQuoteRequest struct {
	EventID            *int64           `json:"eventId,omitempty" validate:"omitempty,gt=0"`
	BusinessIdentityID *int64           `json:"businessIdentityId,omitempty" validate:"omitempty,gt=0"`
	ValidUntil         string           `json:"validUntil,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Notes              *string          `json:"notes,omitempty" validate:"omitempty,max=2000"`
	Packages           []PackageRequest `json:"packages,omitempty" validate:"dive"`
	Items              []ItemRequest    `json:"items,omitempty" validate:"dive"`
}

// TransitionRequest asks for a status change.
type TransitionRequest struct {
	Status Status `json:"status" validate:"required"`
	Reason string `json:"reason,omitempty" validate:"max=1000"`
}

// ListQuotesRequest is the query of List.
type ListQuotesRequest struct {
	Status   *Status
	ClientID *int64
	EventID  *int64
	Limit    int `validate:"gte=0,lte=200"`
	Offset   int `validate:"gte=0"`
}

// RequestValidator checks request structs and reports field level failures.
type RequestValidator struct {
	validate *validator.Validate
}

// NewRequestValidator builds a validator reporting JSON field names.
func NewRequestValidator() *RequestValidator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return &RequestValidator{validate: v}
}

// Create validates a create or preview request.
func (v *RequestValidator) Create(req CreateQuoteRequest) error {
	verr := v.collect(req)
	if req.Status != "" && !req.Status.Valid() {
		verr.Add("status", "unknown status")
	}
	checkLines(verr, req.Packages, req.Items)
	return verr.OrNil()
}

// Update validates an update request.
func (v *RequestValidator) Update(req UpdateQuoteRequest) error {
	verr := v.collect(req)
	checkLines(verr, req.Packages, req.Items)
	return verr.OrNil()
}

// Transition validates a transition request.
func (v *RequestValidator) Transition(req TransitionRequest) error {
	verr := v.collect(req)
	if req.Status != "" && !req.Status.Valid() {
		verr.Add("status", "unknown status")
	}
	return verr.OrNil()
}

// List validates a listing query.
func (v *RequestValidator) List(req ListQuotesRequest) error {
	verr := v.collect(req)
	if req.Status != nil && !req.Status.Valid() {
		verr.Add("status", "unknown status")
	}
	return verr.OrNil()
}

func (v *RequestValidator) collect(req any) *shared.ValidationError {
	verr := &shared.ValidationError{}
	err := v.validate.Struct(req)
	if err == nil {
		return verr
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		verr.Add("request", err.Error())
		return verr
	}
	for _, fe := range fieldErrs {
		verr.Add(fieldPath(fe), fieldMessage(fe))
	}
	return verr
}

func checkLines(verr *shared.ValidationError, packages []PackageRequest, items []ItemRequest) {
	for i, p := range packages {
		if p.CustomPrice != nil && p.CustomPrice.IsNegative() {
			verr.Add("packages["+strconv.Itoa(i)+"].customPrice", "must be greater than or equal to 0")
		}
	}
	for i, it := range items {
		if it.UnitPrice.IsNegative() {
			verr.Add("items["+strconv.Itoa(i)+"].unitPrice", "must be greater than or equal to 0")
		}
	}
}

// fieldPath strips the root struct name from the validator namespace.
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gt":
		return "must be greater than " + fe.Param()
	case "gte":
		return "must be greater than or equal to " + fe.Param()
	case "lte":
		return "must be less than or equal to " + fe.Param()
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "datetime":
		return "must be a date formatted as YYYY-MM-DD"
	case "excluded_with":
		return "productId and serviceId are mutually exclusive"
	default:
		return "is invalid"
	}
}

// parseValidUntil returns the requested date or the default validity from now.
func parseValidUntil(raw string, now time.Time, validity time.Duration) time.Time {
	if raw != "" {
		if t, err := time.Parse(DateLayout, raw); err == nil {
			return t
		}
	}
	y, m, d := now.Add(validity).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

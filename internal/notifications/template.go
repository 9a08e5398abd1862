package notifications

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
)

// Type identifies a notification template.
type Type string

const (
	TypeQuoteCreated    Type = "quote_created"
	TypeQuoteSent       Type = "quote_sent"
	TypeQuoteAccepted   Type = "quote_accepted"
	TypeQuoteRejected   Type = "quote_rejected"
	TypeQuoteUpdated    Type = "quote_updated"
	TypeEventCreated    Type = "event_created"
	TypeEventUpdated    Type = "event_updated"
	TypePaymentReceived Type = "payment_received"
	TypePaymentOverdue  Type = "payment_overdue"
	TypeReminder        Type = "reminder"
	TypeCustom          Type = "custom"
)

// AllTypes lists every notification type with a default template.
func AllTypes() []Type {
	return []Type{
		TypeQuoteCreated, TypeQuoteSent, TypeQuoteAccepted, TypeQuoteRejected, TypeQuoteUpdated,
		TypeEventCreated, TypeEventUpdated, TypePaymentReceived, TypePaymentOverdue,
		TypeReminder, TypeCustom,
	}
}

var tokenPattern = regexp.MustCompile(`\{\{(\w+)\}\}`)

// Template holds the subject and bodies rendered for a notification type.
type Template struct {
	Type      Type
	Subject   string
	HTML      string
	Text      string
	Variables []string
}

// Rendered is a template after variable substitution.
type Rendered struct {
	Subject string
	HTML    string
	Text    string
}

// Tokens returns the distinct variable names referenced by the template.
func (t Template) Tokens() []string {
	seen := make(map[string]struct{})
	for _, part := range []string{t.Subject, t.HTML, t.Text} {
		for _, m := range tokenPattern.FindAllStringSubmatch(part, -1) {
			seen[m[1]] = struct{}{}
		}
	}
	tokens := make([]string, 0, len(seen))
	for name := range seen {
		tokens = append(tokens, name)
	}
	sort.Strings(tokens)
	return tokens
}

// Validate checks that every referenced token is declared.
func (t Template) Validate() error {
	if t.Type == "" {
		return errors.New("notifications: template type required")
	}
	if strings.TrimSpace(t.Subject) == "" && strings.TrimSpace(t.Text) == "" {
		return fmt.Errorf("notifications: template %s has no content", t.Type)
	}
	declared := make(map[string]struct{}, len(t.Variables))
	for _, v := range t.Variables {
		declared[v] = struct{}{}
	}
	var missing []string
	for _, token := range t.Tokens() {
		if _, ok := declared[token]; !ok {
			missing = append(missing, token)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("notifications: template %s uses undeclared variables: %s", t.Type, strings.Join(missing, ", "))
	}
	return nil
}

// Render substitutes {{name}} tokens. Unknown tokens become empty strings.
func (t Template) Render(vars map[string]string) Rendered {
	return Rendered{
		Subject: Render(t.Subject, vars),
		HTML:    Render(t.HTML, vars),
		Text:    Render(t.Text, vars),
	}
}

// Render replaces every {{name}} token in text with vars[name].
func Render(text string, vars map[string]string) string {
	if text == "" {
		return ""
	}
	return tokenPattern.ReplaceAllStringFunc(text, func(token string) string {
		return vars[token[2:len(token)-2]]
	})
}

// Registry is an immutable set of validated templates keyed by type.
type Registry struct {
	templates map[Type]Template
}

// NewRegistry validates and indexes templates. Later entries replace earlier
// ones of the same type.
func NewRegistry(templates ...Template) (*Registry, error) {
	reg := &Registry{templates: make(map[Type]Template, len(templates))}
	for _, tpl := range templates {
		if err := tpl.Validate(); err != nil {
			return nil, err
		}
		reg.templates[tpl.Type] = tpl
	}
	return reg, nil
}

// Lookup returns the template registered for the type.
func (r *Registry) Lookup(t Type) (Template, bool) {
	if r == nil {
		return Template{}, false
	}
	tpl, ok := r.templates[t]
	return tpl, ok
}

// Types lists the registered types in stable order.
func (r *Registry) Types() []Type {
	if r == nil {
		return nil
	}
	types := make([]Type, 0, len(r.templates))
	for t := range r.templates {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

var defaultRegistry = sync.OnceValue(func() *Registry {
	reg, err := NewRegistry(DefaultTemplates()...)
	if err != nil {
		panic(err)
	}
	return reg
})

// DefaultRegistry returns the process-wide fallback template set.
func DefaultRegistry() *Registry {
	return defaultRegistry()
}

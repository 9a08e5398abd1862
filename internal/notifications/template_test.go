package notifications

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderReplacesTokensAndBlanksUnknown(t *testing.T) {
	out := Render("Hi {{clientName}}, total {{total}} {{missing}}!", map[string]string{
		"clientName": "Ana",
		"total":      "EUR 10.00",
	})
	assert.Equal(t, "Hi Ana, total EUR 10.00 !", out)
	assert.Equal(t, "", Render("", map[string]string{"a": "b"}))
	assert.Equal(t, "{{ spaced }}", Render("{{ spaced }}", nil))
}

func TestTemplateTokensAreDistinctAndSorted(t *testing.T) {
	tpl := Template{
		Type:    TypeCustom,
		Subject: "{{b}} {{a}}",
		Text:    "{{a}} {{c}}",
		HTML:    "<p>{{b}}</p>",
	}
	assert.Equal(t, []string{"a", "b", "c"}, tpl.Tokens())
}

func TestValidateRejectsUndeclaredTokens(t *testing.T) {
	tpl := Template{
		Type:      TypeReminder,
		Subject:   "{{title}}",
		Text:      "{{message}} due {{dueDate}}",
		Variables: []string{"title", "message"},
	}
	err := tpl.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dueDate")

	_, err = NewRegistry(tpl)
	assert.Error(t, err)

	tpl.Variables = append(tpl.Variables, "dueDate", "unused")
	assert.NoError(t, tpl.Validate(), "declared variables may exceed the used ones")
}

func TestValidateRequiresTypeAndContent(t *testing.T) {
	assert.Error(t, Template{Subject: "x"}.Validate())
	assert.Error(t, Template{Type: TypeCustom}.Validate())
}

func TestDefaultTemplatesCoverEveryType(t *testing.T) {
	reg := DefaultRegistry()
	for _, typ := range AllTypes() {
		tpl, ok := reg.Lookup(typ)
		require.True(t, ok, typ)
		assert.NoError(t, tpl.Validate(), typ)
		assert.NotEmpty(t, tpl.Subject, typ)
		assert.NotEmpty(t, tpl.Text, typ)
	}
	assert.Len(t, reg.Types(), len(AllTypes()))
}

func TestTemplateRenderAllParts(t *testing.T) {
	tpl, ok := DefaultRegistry().Lookup(TypeQuoteRejected)
	require.True(t, ok)
	out := tpl.Render(map[string]string{"quoteNumber": "QUO-2026-004", "clientName": "Ana", "reason": "Over budget"})
	assert.Equal(t, "Quote QUO-2026-004 rejected", out.Subject)
	assert.Contains(t, out.Text, "Reason: Over budget")
	assert.Contains(t, out.HTML, "<strong>QUO-2026-004</strong>")
}

func TestRegistryLaterTemplateWins(t *testing.T) {
	reg, err := NewRegistry(
		Template{Type: TypeCustom, Subject: "first", Text: "one"},
		Template{Type: TypeCustom, Subject: "second", Text: "two"},
	)
	require.NoError(t, err)
	tpl, ok := reg.Lookup(TypeCustom)
	require.True(t, ok)
	assert.Equal(t, "second", tpl.Subject)

	_, ok = reg.Lookup(TypeQuoteSent)
	assert.False(t, ok)
}

func TestFormatterMoneyAndDate(t *testing.T) {
	f := testFormatter(t)
	assert.Equal(t, "EUR 302.50", f.Money(mustDecimal("302.5")))
	assert.Equal(t, "EUR 0.13", f.Money(mustDecimal("0.125")))
	assert.Equal(t, "EUR 1,250.00", f.Money(mustDecimal("1250")))
	assert.Equal(t, "EUR 12,345,678,901,234,567.89", f.Money(mustDecimal("12345678901234567.89")))
	assert.Equal(t, "EUR -1,000.10", f.Money(mustDecimal("-1000.1")))
	assert.Equal(t, "10 Mar 2026", f.Date(fixedNow))
	assert.Equal(t, "", f.Date(time.Time{}))

	var zero Formatter
	assert.Equal(t, "EUR 1.50", zero.Money(mustDecimal("1.5")), "zero formatter falls back to English euros")
}

func mustDecimal(raw string) decimal.Decimal {
	return decimal.RequireFromString(raw)
}

package notifications

// DefaultTemplates returns the built-in template for every notification type.
func DefaultTemplates() []Template {
	return []Template{
		{
			Type:      TypeQuoteCreated,
			Subject:   "Quote {{quoteNumber}} created",
			HTML:      "<p>Hello {{clientName}},</p><p>Quote <strong>{{quoteNumber}}</strong> for {{eventTitle}} has been prepared for a total of <strong>{{total}}</strong>.</p><p>{{businessName}}</p>",
			Text:      "Hello {{clientName}}, quote {{quoteNumber}} for {{eventTitle}} has been prepared for a total of {{total}}. {{businessName}}",
			Variables: []string{"clientName", "quoteNumber", "eventTitle", "total", "businessName"},
		},
		{
			Type:      TypeQuoteSent,
			Subject:   "Your quote {{quoteNumber}} from {{businessName}}",
			HTML:      "<p>Hello {{clientName}},</p><p>Please find quote <strong>{{quoteNumber}}</strong> for {{eventTitle}}. Total: <strong>{{total}}</strong>.</p><p>This quote is valid until {{validUntil}}.</p>",
			Text:      "Hello {{clientName}}, please find quote {{quoteNumber}} for {{eventTitle}}. Total: {{total}}. Valid until {{validUntil}}.",
			Variables: []string{"clientName", "quoteNumber", "eventTitle", "total", "validUntil", "businessName"},
		},
		{
			Type:      TypeQuoteAccepted,
			Subject:   "Quote {{quoteNumber}} accepted",
			HTML:      "<p>{{clientName}} accepted quote <strong>{{quoteNumber}}</strong> for {{eventTitle}} ({{total}}).</p>",
			Text:      "{{clientName}} accepted quote {{quoteNumber}} for {{eventTitle}} ({{total}}).",
			Variables: []string{"clientName", "quoteNumber", "eventTitle", "total"},
		},
		{
			Type:      TypeQuoteRejected,
			Subject:   "Quote {{quoteNumber}} rejected",
			HTML:      "<p>Quote <strong>{{quoteNumber}}</strong> for {{clientName}} was rejected.</p><p>Reason: {{reason}}</p>",
			Text:      "Quote {{quoteNumber}} for {{clientName}} was rejected. Reason: {{reason}}",
			Variables: []string{"quoteNumber", "clientName", "reason"},
		},
		{
			Type:      TypeQuoteUpdated,
			Subject:   "Quote {{quoteNumber}} updated",
			HTML:      "<p>Quote <strong>{{quoteNumber}}</strong> for {{clientName}} was updated. Current total: {{total}}.</p><p>{{reason}}</p>",
			Text:      "Quote {{quoteNumber}} for {{clientName}} was updated. Current total: {{total}}. {{reason}}",
			Variables: []string{"quoteNumber", "clientName", "total", "reason"},
		},
		{
			Type:      TypeEventCreated,
			Subject:   "Event {{eventTitle}} scheduled",
			HTML:      "<p>Hello {{clientName}},</p><p>Your event <strong>{{eventTitle}}</strong> is scheduled for {{eventDate}}.</p>",
			Text:      "Hello {{clientName}}, your event {{eventTitle}} is scheduled for {{eventDate}}.",
			Variables: []string{"clientName", "eventTitle", "eventDate"},
		},
		{
			Type:      TypeEventUpdated,
			Subject:   "Event {{eventTitle}} updated",
			HTML:      "<p>Hello {{clientName}},</p><p>The details of <strong>{{eventTitle}}</strong> ({{eventDate}}) have changed.</p>",
			Text:      "Hello {{clientName}}, the details of {{eventTitle}} ({{eventDate}}) have changed.",
			Variables: []string{"clientName", "eventTitle", "eventDate"},
		},
		{
			Type:      TypePaymentReceived,
			Subject:   "Payment received",
			HTML:      "<p>Hello {{clientName}},</p><p>We received your payment of <strong>{{amount}}</strong> for {{eventTitle}}. Thank you.</p>",
			Text:      "Hello {{clientName}}, we received your payment of {{amount}} for {{eventTitle}}. Thank you.",
			Variables: []string{"clientName", "amount", "eventTitle"},
		},
		{
			Type:      TypePaymentOverdue,
			Subject:   "Payment overdue",
			HTML:      "<p>Hello {{clientName}},</p><p>The payment of <strong>{{amount}}</strong> for {{eventTitle}} was due on {{dueDate}}.</p>",
			Text:      "Hello {{clientName}}, the payment of {{amount}} for {{eventTitle}} was due on {{dueDate}}.",
			Variables: []string{"clientName", "amount", "eventTitle", "dueDate"},
		},
		{
			Type:      TypeReminder,
			Subject:   "Reminder: {{title}}",
			HTML:      "<p>{{message}}</p>",
			Text:      "{{message}}",
			Variables: []string{"title", "message"},
		},
		{
			Type:      TypeCustom,
			Subject:   "{{title}}",
			HTML:      "<p>{{message}}</p>",
			Text:      "{{message}}",
			Variables: []string{"title", "message"},
		},
	}
}

package notifications

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Channel is a delivery medium.
type Channel string

const (
	ChannelEmail    Channel = "email"
	ChannelWhatsApp Channel = "whatsapp"
	ChannelInApp    Channel = "in_app"
)

// DefaultChannels are used when a request names none.
func DefaultChannels() []Channel {
	return []Channel{ChannelEmail, ChannelInApp}
}

// Priority orders in-app entries for display.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

var (
	// ErrChannelNotImplemented is reported by channels without a transport.
	ErrChannelNotImplemented = errors.New("notifications: channel not implemented")
	// ErrNoRecipient means the recipient has no address for the channel.
	ErrNoRecipient = errors.New("notifications: recipient has no address for channel")
	// ErrUnknownChannel means no sender is registered for the channel.
	ErrUnknownChannel = errors.New("notifications: unknown channel")
)

// Recipient carries the addresses a notification may be delivered to.
type Recipient struct {
	UserID int64
	Name   string
	Email  string
	Phone  string
}

// Message is a rendered notification addressed to one recipient.
type Message struct {
	TenantID  int64
	Type      Type
	Entity    EntityRef
	Recipient Recipient
	Subject   string
	HTML      string
	Text      string
	Metadata  map[string]string
	Priority  Priority
	CreatedAt time.Time
}

// Sender delivers messages over one channel.
type Sender interface {
	Channel() Channel
	Send(ctx context.Context, msg Message) error
}

// address returns the recipient identifier used for a channel in logs.
func address(ch Channel, r Recipient) string {
	switch ch {
	case ChannelEmail:
		return r.Email
	case ChannelWhatsApp:
		return r.Phone
	case ChannelInApp:
		if r.UserID != 0 {
			return fmt.Sprintf("user:%d", r.UserID)
		}
	}
	return ""
}

// EmailSender hands rendered messages to a Mailer.
type EmailSender struct {
	mailer Mailer
}

// NewEmailSender constructs the email channel.
func NewEmailSender(mailer Mailer) *EmailSender {
	return &EmailSender{mailer: mailer}
}

// Channel implements Sender.
func (s *EmailSender) Channel() Channel { return ChannelEmail }

// Send implements Sender.
func (s *EmailSender) Send(ctx context.Context, msg Message) error {
	if msg.Recipient.Email == "" {
		return ErrNoRecipient
	}
	if s.mailer == nil {
		return errors.New("notifications: mailer not configured")
	}
	return s.mailer.Send(ctx, Mail{
		To:      msg.Recipient.Email,
		Subject: msg.Subject,
		HTML:    msg.HTML,
		Text:    msg.Text,
	})
}

// WhatsAppSender is a placeholder until a messaging provider is chosen.
type WhatsAppSender struct{}

// Channel implements Sender.
func (WhatsAppSender) Channel() Channel { return ChannelWhatsApp }

// Send always fails.
func (WhatsAppSender) Send(context.Context, Message) error {
	return ErrChannelNotImplemented
}

// InAppSender appends messages to the recipient's in-app log.
type InAppSender struct {
	store *InAppStore
}

// NewInAppSender constructs the in-app channel.
func NewInAppSender(store *InAppStore) *InAppSender {
	return &InAppSender{store: store}
}

// Channel implements Sender.
func (s *InAppSender) Channel() Channel { return ChannelInApp }

// Send implements Sender.
func (s *InAppSender) Send(ctx context.Context, msg Message) error {
	if msg.Recipient.UserID == 0 {
		return ErrNoRecipient
	}
	entry := InAppEntry{
		Type:      msg.Type,
		Title:     msg.Subject,
		Message:   msg.Text,
		Timestamp: msg.CreatedAt,
		Metadata:  msg.Metadata,
		Priority:  msg.Priority,
	}
	if msg.Entity.ID != 0 {
		id := msg.Entity.ID
		entry.EntityID = &id
		entry.EntityType = string(msg.Entity.Type)
	}
	_, err := s.store.Append(ctx, msg.TenantID, msg.Recipient.UserID, entry)
	return err
}

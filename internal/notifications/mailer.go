package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"gopkg.in/gomail.v2"
)

// Mail is a rendered email.
type Mail struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html,omitempty"`
	Text    string `json:"text"`
}

// Mailer delivers emails.
type Mailer interface {
	Send(ctx context.Context, mail Mail) error
}

// SMTPConfig configures SMTPMailer.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPMailer sends mail synchronously through an SMTP relay.
type SMTPMailer struct {
	dialer *gomail.Dialer
	from   string
}

// NewSMTPMailer constructs the mailer.
func NewSMTPMailer(cfg SMTPConfig) *SMTPMailer {
	return &SMTPMailer{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   cfg.From,
	}
}

// Send implements Mailer.
func (m *SMTPMailer) Send(ctx context.Context, mail Mail) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if mail.To == "" {
		return ErrNoRecipient
	}
	return m.dialer.DialAndSend(buildMessage(m.from, mail))
}

func buildMessage(from string, mail Mail) *gomail.Message {
	msg := gomail.NewMessage()
	msg.SetHeader("From", from)
	msg.SetHeader("To", mail.To)
	msg.SetHeader("Subject", mail.Subject)
	msg.SetBody("text/plain", mail.Text)
	if mail.HTML != "" {
		msg.AddAlternative("text/html", mail.HTML)
	}
	return msg
}

// TaskEnqueuer submits background tasks. *asynq.Client satisfies it.
type TaskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// TaskSendEmail is the task type for queued emails.
const TaskSendEmail = "mail:send"

// NewSendEmailTask wraps a mail as a background task.
func NewSendEmailTask(mail Mail) (*asynq.Task, error) {
	data, err := json.Marshal(mail)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSendEmail, data, asynq.MaxRetry(5)), nil
}

// QueueMailer defers delivery to the worker through a mail:send task.
type QueueMailer struct {
	queue TaskEnqueuer
}

// NewQueueMailer constructs the mailer.
func NewQueueMailer(queue TaskEnqueuer) *QueueMailer {
	return &QueueMailer{queue: queue}
}

// Send implements Mailer.
func (m *QueueMailer) Send(ctx context.Context, mail Mail) error {
	if mail.To == "" {
		return ErrNoRecipient
	}
	task, err := NewSendEmailTask(mail)
	if err != nil {
		return err
	}
	if _, err := m.queue.EnqueueContext(ctx, task); err != nil {
		return fmt.Errorf("enqueue mail: %w", err)
	}
	return nil
}

// HandleSendEmailTask returns the worker handler for mail:send tasks.
func HandleSendEmailTask(mailer Mailer) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var mail Mail
		if err := json.Unmarshal(t.Payload(), &mail); err != nil {
			return fmt.Errorf("decode mail payload: %v: %w", err, asynq.SkipRetry)
		}
		if mail.To == "" {
			return fmt.Errorf("mail without recipient: %w", asynq.SkipRetry)
		}
		if err := mailer.Send(ctx, mail); err != nil {
			if errors.Is(err, ErrNoRecipient) {
				return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
			}
			return err
		}
		return nil
	}
}

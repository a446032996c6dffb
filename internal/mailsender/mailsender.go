package mailsender

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"webpub/internal/lib/logger/sl"
	"webpub/internal/lib/recovery"
	"webpub/internal/models"

	"gopkg.in/gomail.v2"
)

var ErrBadMessage = errors.New("malformed mail message")

// Sender is satisfied by *gomail.Dialer.
type Sender interface {
	DialAndSend(m ...*gomail.Message) error
}

type Mailer struct {
	log    *slog.Logger
	sender Sender
	from   string
}

func New(log *slog.Logger, sender Sender, from string) *Mailer {
	return &Mailer{log: log, sender: sender, from: from}
}

func NewSMTP(log *slog.Logger, host string, port int, username, password, from string) *Mailer {
	return New(log, gomail.NewDialer(host, port, username, password), from)
}

// Handle decodes one queue payload and mails it.
func (m *Mailer) Handle(body []byte) error {
	const op = "mailsender.Handle"

	var msg models.Message
	if err := json.Unmarshal(body, &msg); err != nil {
		return fmt.Errorf("%s: %w: %w", op, ErrBadMessage, err)
	}
	if msg.Email == "" || msg.Link == "" {
		return fmt.Errorf("%s: %w: missing recipient or link", op, ErrBadMessage)
	}

	if err := m.sender.DialAndSend(Compose(msg, m.from)); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// Consume adapts Handle to the queue callback, logging instead of returning.
func (m *Mailer) Consume(body []byte) {
	if err := m.Handle(body); err != nil {
		m.log.Error("failed to deliver message", sl.Err(err))
		return
	}

	m.log.Info("message sent successfully")
}

func Compose(msg models.Message, from string) *gomail.Message {
	out := gomail.NewMessage()
	out.SetHeader("To", msg.Email)
	out.SetHeader("From", from)
	out.SetHeader("Subject", subject(msg.Purpose))
	out.SetBody("text/plain", body(msg))

	return out
}

func subject(purpose string) string {
	switch purpose {
	case recovery.PurposePasswordReset:
		return "Password reset"
	default:
		return "Notification"
	}
}

func body(msg models.Message) string {
	switch msg.Purpose {
	case recovery.PurposePasswordReset:
		text := "To choose a new password open the link below."
		if !msg.ExpiresAt.IsZero() {
			text += " It expires at " + msg.ExpiresAt.UTC().Format("2006-01-02 15:04") + " UTC."
		}

		return text + "\n\n" + msg.Link
	default:
		return msg.Link
	}
}

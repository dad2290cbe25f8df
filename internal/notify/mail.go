package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/jordan-wright/email"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("schulmanager.notify")

type SmtpConfig struct {
	Server       string
	Port         int
	EmailAddress string
	Password     string
}

func (c SmtpConfig) addr() string {
	return fmt.Sprintf("%s:%d", c.Server, c.Port)
}

// Sender delivers a single plain text message.
type Sender interface {
	Send(ctx context.Context, subject, body string) error
}

// MailSender sends messages over smtp to a fixed list of recipients.
type MailSender struct {
	smtp SmtpConfig
	to   []string
}

func NewMailSender(smtp SmtpConfig, to []string) MailSender {
	return MailSender{smtp: smtp, to: to}
}

func (s MailSender) Send(ctx context.Context, subject, body string) error {
	_, span := tracer.Start(ctx, "Send")
	defer span.End()

	mail := email.NewEmail()
	mail.From = fmt.Sprintf("Schulmanager Online <%s>", s.smtp.EmailAddress)
	mail.To = s.to
	mail.Subject = subject
	mail.Text = []byte(body)

	err := mail.Send(
		s.smtp.addr(),
		smtp.PlainAuth("", s.smtp.EmailAddress, s.smtp.Password, s.smtp.Server),
	)
	if err != nil && strings.Contains(err.Error(), "server doesn't support AUTH") {
		err = mail.Send(s.smtp.addr(), nil)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to send email")
		return err
	}
	return nil
}

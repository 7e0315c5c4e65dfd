package notify

import (
	"context"
	"fmt"
	"html"

	"toolshare-backend/internal/logger"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

type mailClient interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

// EmailSink sends each message through SendGrid. Recipients without an
// address on file are skipped.
type EmailSink struct {
	client    mailClient
	fromEmail string
	fromName  string
}

func NewEmailSink(apiKey, fromEmail, fromName string) *EmailSink {
	return &EmailSink{
		client:    sendgrid.NewSendClient(apiKey),
		fromEmail: fromEmail,
		fromName:  fromName,
	}
}

func (s *EmailSink) Name() string { return "email" }

func (s *EmailSink) Deliver(ctx context.Context, msg Message) error {
	if msg.Recipient.Email == "" {
		return nil
	}
	from := mail.NewEmail(s.fromName, s.fromEmail)
	to := mail.NewEmail(msg.Recipient.Name, msg.Recipient.Email)
	htmlContent := fmt.Sprintf("<html><body><h2>%s</h2><p>%s</p></body></html>",
		html.EscapeString(msg.Title), html.EscapeString(msg.Body))
	message := mail.NewSingleEmail(from, msg.Title, to, msg.Body, htmlContent)

	logger.ExternalServiceCall("sendgrid", "Send", "to", msg.Recipient.Email, "event", msg.Event.Type)
	response, err := s.client.SendWithContext(ctx, message)
	if err == nil && response.StatusCode >= 400 {
		err = fmt.Errorf("sendgrid error: status %d, body: %s", response.StatusCode, response.Body)
	}
	logger.ExternalServiceResult("sendgrid", "Send", err)
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

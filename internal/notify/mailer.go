package notify

import (
	"context"
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.uber.org/zap"

	"task-manager/pkg/logger"
)

// SendGridMailer delivers through the SendGrid v3 API.
type SendGridMailer struct {
	client *sendgrid.Client
	from   *mail.Email
}

func NewSendGridMailer(apiKey, from string) *SendGridMailer {
	return &SendGridMailer{
		client: sendgrid.NewSendClient(apiKey),
		from:   mail.NewEmail("Task Manager", from),
	}
}

func (m *SendGridMailer) Send(ctx context.Context, msg Message) error {
	email := mail.NewSingleEmail(m.from, msg.Subject, mail.NewEmail(msg.ToName, msg.To), msg.Text, "")
	resp, err := m.client.SendWithContext(ctx, email)
	if err != nil {
		return fmt.Errorf("sendgrid: %w", err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("sendgrid: unexpected status %d: %s", resp.StatusCode, resp.Body)
	}
	return nil
}

// LogMailer only records messages; used when no mail API key is configured.
type LogMailer struct{}

func (LogMailer) Send(_ context.Context, msg Message) error {
	logger.SystemLogger.Info("Email not sent, no mail provider configured",
		zap.String("to", msg.To), zap.String("subject", msg.Subject))
	return nil
}

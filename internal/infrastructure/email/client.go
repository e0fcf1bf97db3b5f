// Package email provides the email client for sending transactional emails.
package email

import (
	"fmt"

	"github.com/PrepDeckHQ/prepdeck-go/internal/infrastructure/email/templates"
	"github.com/resendlabs/resend-go"
)

// Service defines the interface for sending emails, allowing for mock implementations in tests.
type Service interface {
	SendInterviewReminderEmail(toEmail string, props templates.ReminderEmailProps) error
}

// ResendClient is the concrete implementation of the email Service using the Resend API.
type ResendClient struct {
	client    *resend.Client
	fromEmail string
	fromName  string
}

// NewService creates a new email service client for one tenant's API key.
func NewService(apiKey, fromEmail string) (Service, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("resend API key is required")
	}
	if fromEmail == "" {
		fromEmail = "noreply@prepdeck.app"
	}

	return &ResendClient{
		client:    resend.NewClient(apiKey),
		fromEmail: fromEmail,
		fromName:  "PrepDeck",
	}, nil
}

// SendInterviewReminderEmail composes and sends the interview reminder.
func (c *ResendClient) SendInterviewReminderEmail(toEmail string, props templates.ReminderEmailProps) error {
	subject := fmt.Sprintf("Your %s interview is coming up", props.Company)

	content := templates.GetReminderEmailContent(props)
	htmlContent := templates.GetEmailLayout(templates.EmailLayoutProps{
		Preheader: subject,
		Content:   content,
	})

	params := &resend.SendEmailRequest{
		From:    fmt.Sprintf("%s <%s>", c.fromName, c.fromEmail),
		To:      []string{toEmail},
		Subject: subject,
		Html:    htmlContent,
	}

	_, err := c.client.Emails.Send(params)
	if err != nil {
		return fmt.Errorf("failed to send reminder email via Resend: %w", err)
	}

	return nil
}

package notify

import (
	"fmt"
	"os"

	"github.com/keighl/postmark"
	"go.uber.org/zap"
)

type Mailer interface {
	SendEmail(toEmail, subject, htmlContent string) error
}

// EmailService handles sending emails using Postmark
type EmailService struct {
	client *postmark.Client
	from   string
	logger *zap.Logger
}

func NewEmailService(logger *zap.Logger) (*EmailService, error) {
	apiToken := os.Getenv("POSTMARK_API_TOKEN")
	if apiToken == "" {
		return nil, fmt.Errorf("POSTMARK_API_TOKEN is not set in environment variables")
	}
	return &EmailService{
		client: postmark.NewClient(apiToken, ""),
		from:   os.Getenv("EMAIL_SENDER"),
		logger: logger,
	}, nil
}

func (es *EmailService) SendEmail(toEmail, subject, htmlContent string) error {
	_, err := es.client.SendEmail(postmark.Email{
		From:     es.from,
		To:       toEmail,
		Subject:  subject,
		HtmlBody: htmlContent,
		TextBody: htmlContent,
	})
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	es.logger.Info("Email sent", zap.String("to", toEmail), zap.String("subject", subject))
	return nil
}

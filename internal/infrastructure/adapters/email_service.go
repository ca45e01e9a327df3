package adapters

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"html"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.uber.org/zap"

	"github.com/payout-service/payout_service/internal/domain/entities"
)

// EmailServiceConfig holds email service configuration
type EmailServiceConfig struct {
	Provider    string
	APIKey      string
	FromEmail   string
	FromName    string
	Environment string // "development", "staging", "production"
	// SMTP settings (for mailpit, smtp providers)
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPUseTLS   bool
}

// EmailService delivers operational notifications to the payout admins.
type EmailService struct {
	logger *zap.Logger
	config EmailServiceConfig
	client *sendgrid.Client
}

// NewEmailService creates a new email service
func NewEmailService(logger *zap.Logger, config EmailServiceConfig) (*EmailService, error) {
	provider := strings.ToLower(strings.TrimSpace(config.Provider))
	if provider == "" {
		return nil, fmt.Errorf("email provider is required")
	}

	if strings.TrimSpace(config.FromEmail) == "" {
		return nil, fmt.Errorf("email from address is required")
	}

	var client *sendgrid.Client

	switch provider {
	case "sendgrid":
		if strings.TrimSpace(config.APIKey) == "" {
			return nil, fmt.Errorf("sendgrid api key is required")
		}
		client = sendgrid.NewSendClient(config.APIKey)
	case "mailpit", "smtp":
		if config.SMTPHost == "" {
			return nil, fmt.Errorf("smtp host is required for %s provider", provider)
		}
		if config.SMTPPort == 0 {
			config.SMTPPort = 1025 // default mailpit port
		}
	default:
		return nil, fmt.Errorf("unsupported email provider: %s", provider)
	}

	return &EmailService{
		logger: logger,
		config: config,
		client: client,
	}, nil
}

// sendEmail is a helper method to send emails via the configured provider
func (e *EmailService) sendEmail(ctx context.Context, to, subject, htmlContent, textContent string) error {
	provider := strings.ToLower(e.config.Provider)

	ctxWithTimeout, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	switch provider {
	case "sendgrid":
		return e.sendViaSendgrid(ctxWithTimeout, to, subject, htmlContent, textContent)
	case "mailpit", "smtp":
		return e.sendViaSMTP(ctxWithTimeout, to, subject, htmlContent, textContent)
	default:
		return fmt.Errorf("unsupported email provider: %s", provider)
	}
}

func (e *EmailService) sendViaSendgrid(ctx context.Context, to, subject, htmlContent, textContent string) error {
	if e.client == nil {
		return fmt.Errorf("sendgrid client not configured")
	}

	from := mail.NewEmail(e.config.FromName, e.config.FromEmail)
	toEmail := mail.NewEmail("", to)
	message := mail.NewSingleEmail(from, subject, toEmail, textContent, htmlContent)

	response, err := e.client.SendWithContext(ctx, message)
	if err != nil {
		e.logger.Error("Failed to send email",
			zap.String("provider", "sendgrid"),
			zap.String("to", to),
			zap.String("subject", subject),
			zap.Error(err))
		return fmt.Errorf("failed to send email: %w", err)
	}

	if response.StatusCode >= 400 {
		e.logger.Error("Email service returned error",
			zap.String("provider", "sendgrid"),
			zap.String("to", to),
			zap.String("subject", subject),
			zap.Int("status_code", response.StatusCode),
			zap.String("response_body", response.Body))
		return fmt.Errorf("email service error: status %d, body: %s", response.StatusCode, response.Body)
	}

	e.logger.Info("Email sent successfully",
		zap.String("provider", "sendgrid"),
		zap.String("to", to),
		zap.String("subject", subject),
		zap.Int("status_code", response.StatusCode))

	return nil
}

func (e *EmailService) sendViaSMTP(_ context.Context, to, subject, htmlContent, textContent string) error {
	from := e.config.FromEmail
	if e.config.FromName != "" {
		from = fmt.Sprintf("%s <%s>", e.config.FromName, e.config.FromEmail)
	}

	// Build MIME message
	var msg bytes.Buffer
	msg.WriteString(fmt.Sprintf("From: %s\r\n", from))
	msg.WriteString(fmt.Sprintf("To: %s\r\n", to))
	msg.WriteString(fmt.Sprintf("Subject: %s\r\n", subject))
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(htmlContent)

	addr := fmt.Sprintf("%s:%d", e.config.SMTPHost, e.config.SMTPPort)

	var auth smtp.Auth
	if e.config.SMTPUsername != "" {
		auth = smtp.PlainAuth("", e.config.SMTPUsername, e.config.SMTPPassword, e.config.SMTPHost)
	}

	var err error
	if e.config.SMTPUseTLS {
		err = e.sendSMTPWithTLS(addr, auth, e.config.FromEmail, to, msg.Bytes())
	} else {
		err = e.sendSMTPWithSTARTTLS(addr, auth, e.config.FromEmail, to, msg.Bytes())
	}

	if err != nil {
		e.logger.Error("Failed to send email via SMTP",
			zap.String("provider", e.config.Provider),
			zap.String("to", to),
			zap.String("host", e.config.SMTPHost),
			zap.Error(err))
		return fmt.Errorf("smtp send failed: %w", err)
	}

	e.logger.Info("Email sent successfully",
		zap.String("provider", e.config.Provider),
		zap.String("to", to),
		zap.String("subject", subject))

	return nil
}

func (e *EmailService) sendSMTPWithTLS(addr string, auth smtp.Auth, from, to string, msg []byte) error {
	conn, err := tls.DialWithDialer(&net.Dialer{Timeout: 10 * time.Second}, "tcp", addr, &tls.Config{ServerName: e.config.SMTPHost})
	if err != nil {
		return fmt.Errorf("tls dial failed: %w", err)
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, e.config.SMTPHost)
	if err != nil {
		return err
	}
	defer client.Close()

	if auth != nil {
		if err = client.Auth(auth); err != nil {
			return err
		}
	}
	if err = client.Mail(from); err != nil {
		return err
	}
	if err = client.Rcpt(to); err != nil {
		return err
	}
	w, err := client.Data()
	if err != nil {
		return err
	}
	_, err = w.Write(msg)
	if err != nil {
		return err
	}
	err = w.Close()
	if err != nil {
		return err
	}
	return client.Quit()
}

func (e *EmailService) sendSMTPWithSTARTTLS(addr string, auth smtp.Auth, from, to string, msg []byte) error {
	conn, err := net.DialTimeout("tcp", addr, 10*time.Second)
	if err != nil {
		return fmt.Errorf("smtp dial failed: %w", err)
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, e.config.SMTPHost)
	if err != nil {
		return err
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err = client.StartTLS(&tls.Config{ServerName: e.config.SMTPHost}); err != nil {
			return fmt.Errorf("starttls failed: %w", err)
		}
	}

	if auth != nil {
		if err = client.Auth(auth); err != nil {
			return err
		}
	}
	if err = client.Mail(from); err != nil {
		return err
	}
	if err = client.Rcpt(to); err != nil {
		return err
	}
	w, err := client.Data()
	if err != nil {
		return err
	}
	_, err = w.Write(msg)
	if err != nil {
		return err
	}
	err = w.Close()
	if err != nil {
		return err
	}
	return client.Quit()
}

func alertShell(heading, body, detailRows string) string {
	detail := ""
	if detailRows != "" {
		detail = fmt.Sprintf(`<table width="100%%" cellpadding="0" cellspacing="0" style="background-color:#f5f5f7;border-radius:12px;"><tr><td style="padding:20px 24px;"><table width="100%%" cellpadding="0" cellspacing="0">%s</table></td></tr></table>`, detailRows)
	}

	return fmt.Sprintf(`<!DOCTYPE html>
<html><head><meta charset="UTF-8"><meta name="viewport" content="width=device-width,initial-scale=1.0"></head>
<body style="margin:0;padding:0;background-color:#f5f5f7;-webkit-font-smoothing:antialiased;">
<table width="100%%" cellpadding="0" cellspacing="0" style="background-color:#f5f5f7;padding:40px 20px;">
<tr><td align="center">
<table width="480" cellpadding="0" cellspacing="0" style="background-color:#ffffff;border-radius:16px;overflow:hidden;">
<tr><td style="padding:40px 40px 0 40px;">
  <p style="font-family:-apple-system,Helvetica Neue,Helvetica,Arial,sans-serif;font-size:28px;font-weight:700;color:#1d1d1f;margin:0 0 8px 0;letter-spacing:-0.5px;">Payouts</p>
</td></tr>
<tr><td style="padding:32px 40px;">
  <p style="font-family:-apple-system,Helvetica Neue,Helvetica,Arial,sans-serif;font-size:22px;font-weight:600;color:#1d1d1f;margin:0 0 16px 0;letter-spacing:-0.3px;">%s</p>
  <p style="font-family:-apple-system,Helvetica Neue,Helvetica,Arial,sans-serif;font-size:15px;color:#1d1d1f;margin:0 0 24px 0;line-height:1.5;">%s</p>%s
</td></tr>
<tr><td style="padding:0 40px 40px 40px;border-top:1px solid #f5f5f7;">
  <p style="font-family:-apple-system,Helvetica Neue,Helvetica,Arial,sans-serif;font-size:12px;color:#86868b;margin:20px 0 0 0;line-height:1.5;">Payout operations — automated notification.</p>
</td></tr>
</table>
</td></tr></table>
</body></html>`, html.EscapeString(heading), html.EscapeString(body), detail)
}

func detailRow(label, value string) string {
	return fmt.Sprintf(`<tr><td style="padding:4px 0;"><p style="font-family:-apple-system,Helvetica Neue,Helvetica,Arial,sans-serif;font-size:13px;color:#86868b;margin:0;">%s</p><p style="font-family:-apple-system,Helvetica Neue,Helvetica,Arial,sans-serif;font-size:14px;color:#1d1d1f;margin:2px 0 12px 0;">%s</p></td></tr>`,
		html.EscapeString(label), html.EscapeString(value))
}

// SendWithdrawalFailedAlert notifies admins that a withdrawal exhausted its
// retries and the reserved funds were returned to the user.
func (e *EmailService) SendWithdrawalFailedAlert(ctx context.Context, recipients []string, w *entities.Withdrawal, reason string) error {
	subject := fmt.Sprintf("Payout failed permanently: %s", w.Reference())

	rows := detailRow("Reference", w.Reference()) +
		detailRow("User", w.UserID.String()) +
		detailRow("Amount", fmt.Sprintf("%s %s", entities.FormatMinor(w.AmountMinor), w.SourceCurrency)) +
		detailRow("Provider", string(w.Provider)) +
		detailRow("Attempts", fmt.Sprintf("%d of %d", w.RetryCount, w.MaxRetries)) +
		detailRow("Reason", reason)

	htmlContent := alertShell(
		"Payout failed permanently.",
		"A withdrawal exhausted all retry attempts. The reserved amount has been refunded to the user's balance. Manual follow-up may be required.",
		rows)

	textContent := fmt.Sprintf(`A payout failed permanently and was refunded.

Reference: %s
User: %s
Amount: %s %s
Provider: %s
Attempts: %d of %d
Reason: %s
`, w.Reference(), w.UserID, entities.FormatMinor(w.AmountMinor), w.SourceCurrency, w.Provider, w.RetryCount, w.MaxRetries, reason)

	return e.sendToAll(ctx, recipients, subject, htmlContent, textContent)
}

// SendLargeWithdrawalAlert notifies admins that a withdrawal above the
// automatic threshold is waiting for manual review.
func (e *EmailService) SendLargeWithdrawalAlert(ctx context.Context, recipients []string, w *entities.Withdrawal) error {
	subject := fmt.Sprintf("Payout awaiting review: %s", w.Reference())

	rows := detailRow("Reference", w.Reference()) +
		detailRow("User", w.UserID.String()) +
		detailRow("Amount", fmt.Sprintf("%s %s", entities.FormatMinor(w.AmountMinor), w.SourceCurrency)) +
		detailRow("Method", string(w.MethodType)) +
		detailRow("Requested (UTC)", w.CreatedAt.UTC().Format(time.RFC1123))

	htmlContent := alertShell(
		"Manual review needed.",
		"A withdrawal exceeds the automatic payout threshold and is waiting for an admin decision.",
		rows)

	textContent := fmt.Sprintf(`A withdrawal is awaiting manual review.

Reference: %s
User: %s
Amount: %s %s
Method: %s
Requested (UTC): %s
`, w.Reference(), w.UserID, entities.FormatMinor(w.AmountMinor), w.SourceCurrency, w.MethodType, w.CreatedAt.UTC().Format(time.RFC1123))

	return e.sendToAll(ctx, recipients, subject, htmlContent, textContent)
}

// sendToAll fans an alert out to every configured admin address. A failed
// recipient does not stop delivery to the rest.
func (e *EmailService) sendToAll(ctx context.Context, recipients []string, subject, htmlContent, textContent string) error {
	var firstErr error
	for _, to := range recipients {
		to = strings.TrimSpace(to)
		if to == "" {
			continue
		}
		if err := e.sendEmail(ctx, to, subject, htmlContent, textContent); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

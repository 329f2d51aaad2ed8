package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"

	"github.com/enterprisehub/alertstream/internal/notify/emailapi"
	"github.com/enterprisehub/alertstream/internal/shared"
)

// EmailConfig selects the email delivery strategy and its settings.
// Mode is one of "mock", "smtp", "resend", "ses".
type EmailConfig struct {
	Mode string
	From string

	SMTPHost     string
	SMTPPort     string
	SMTPUser     string
	SMTPPassword string
}

// EmailConfigFromEnv builds an email config from environment variables.
func EmailConfigFromEnv(mode string) EmailConfig {
	return EmailConfig{
		Mode:         mode,
		From:         shared.GetEnvOrDefault("EMAIL_FROM", "alerts@alertstream.local"),
		SMTPHost:     shared.GetEnvOrDefault("SMTP_HOST", "localhost"),
		SMTPPort:     shared.GetEnvOrDefault("SMTP_PORT", "1025"),
		SMTPUser:     shared.GetEnvOrDefault("SMTP_USER", ""),
		SMTPPassword: shared.GetEnvOrDefault("SMTP_PASSWORD", ""),
	}
}

// EmailProvider delivers notifications by email via SMTP or an API
// backend, or logs them in mock mode.
type EmailProvider struct {
	cfg      EmailConfig
	registry *emailapi.Registry
}

// NewEmailProvider creates an email provider for the configured mode.
// API modes register both Resend and SES backends so the registry can
// fall back when the primary is unconfigured.
func NewEmailProvider(cfg EmailConfig) *EmailProvider {
	if cfg.From == "" {
		cfg.From = "alerts@alertstream.local"
	}
	p := &EmailProvider{cfg: cfg}

	if cfg.Mode == "resend" || cfg.Mode == "ses" {
		registry := emailapi.NewRegistry()
		registry.Register(emailapi.NewResend())
		registry.Register(emailapi.NewSES())
		if err := registry.SetPrimary(cfg.Mode); err != nil {
			slog.Error("Unknown email backend", "mode", cfg.Mode, "error", err)
		}
		if cfg.Mode == "resend" {
			_ = registry.SetFallback("ses")
		} else {
			_ = registry.SetFallback("resend")
		}
		p.registry = registry
	}
	return p
}

// Channel returns the delivery channel this provider handles.
func (p *EmailProvider) Channel() Channel { return ChannelEmail }

// ValidateRecipient requires an email address with an @ sign.
func (p *EmailProvider) ValidateRecipient(r *Recipient) bool {
	return r.Email != "" && strings.Contains(r.Email, "@")
}

// Send delivers the notification to the recipient's email address.
func (p *EmailProvider) Send(ctx context.Context, n *Notification, r *Recipient) error {
	subject := fmt.Sprintf("[%s] %s", strings.ToUpper(string(n.Priority)), n.Title)
	body := formatEmailBody(n)

	switch p.cfg.Mode {
	case "mock":
		slog.Info("Mock email delivery",
			"to", r.Email,
			"subject", subject,
			"notification_id", n.ID,
		)
		return nil
	case "smtp":
		return p.sendSMTP(r.Email, subject, body)
	default:
		if p.registry == nil {
			return fmt.Errorf("email mode %q has no backend registry", p.cfg.Mode)
		}
		return p.registry.Send(ctx, &emailapi.Request{
			From:    p.cfg.From,
			To:      []string{r.Email},
			Subject: subject,
			Body:    body,
		})
	}
}

func (p *EmailProvider) sendSMTP(to, subject, body string) error {
	addr := p.cfg.SMTPHost + ":" + p.cfg.SMTPPort

	var auth smtp.Auth
	if p.cfg.SMTPUser != "" && p.cfg.SMTPPassword != "" {
		auth = smtp.PlainAuth("", p.cfg.SMTPUser, p.cfg.SMTPPassword, p.cfg.SMTPHost)
	}

	msg := buildEmailMessage(p.cfg.From, to, subject, body)
	if err := smtp.SendMail(addr, auth, p.cfg.From, []string{to}, msg); err != nil {
		return fmt.Errorf("smtp send to %s: %w", to, err)
	}
	return nil
}

func buildEmailMessage(from, to, subject, body string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	return []byte(b.String())
}

func formatEmailBody(n *Notification) string {
	var b strings.Builder
	b.WriteString(n.Message)
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "Priority: %s\n", n.Priority)
	if n.AlertType != "" {
		fmt.Fprintf(&b, "Alert type: %s\n", n.AlertType)
	}
	if n.ModelName != "" {
		fmt.Fprintf(&b, "Model: %s (%s)\n", n.ModelName, n.ModelID)
	}
	if n.Regulation != "" {
		fmt.Fprintf(&b, "Regulation: %s\n", n.Regulation)
	}
	fmt.Fprintf(&b, "Time: %s\n", n.Timestamp.Format("2006-01-02 15:04:05 UTC"))
	for k, v := range n.Data {
		fmt.Fprintf(&b, "%s: %v\n", k, v)
	}
	return b.String()
}

package emailapi

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/resend/resend-go/v2"

	"github.com/enterprisehub/alertstream/internal/shared"
)

// Resend sends email through the Resend API. The API key comes from
// the RESEND_API_KEY environment variable.
type Resend struct {
	client *resend.Client
	apiKey string
}

// NewResend creates a Resend backend. Without an API key the backend
// registers as unconfigured rather than failing startup.
func NewResend() *Resend {
	apiKey := shared.GetEnvOrDefault("RESEND_API_KEY", "")
	if apiKey == "" {
		slog.Warn("RESEND_API_KEY not set, Resend backend unavailable")
		return &Resend{}
	}
	return &Resend{
		client: resend.NewClient(apiKey),
		apiKey: apiKey,
	}
}

// Name returns the backend name.
func (p *Resend) Name() string { return "resend" }

// IsConfigured reports whether an API key was provided.
func (p *Resend) IsConfigured() bool { return p.client != nil && p.apiKey != "" }

// Send delivers the email via the Resend API.
func (p *Resend) Send(ctx context.Context, req *Request) error {
	if p.client == nil {
		return fmt.Errorf("resend client not initialized")
	}
	if len(req.To) == 0 {
		return fmt.Errorf("no recipients specified")
	}

	params := &resend.SendEmailRequest{
		From:    req.From,
		To:      req.To,
		Subject: req.Subject,
	}
	if req.HTML != "" {
		params.Html = req.HTML
	} else {
		params.Text = req.Body
	}

	result, err := p.client.Emails.SendWithContext(ctx, params)
	if err != nil {
		return fmt.Errorf("resend send failed: %w", err)
	}
	slog.Debug("Email sent via Resend", "email_id", result.Id, "to", req.To)
	return nil
}

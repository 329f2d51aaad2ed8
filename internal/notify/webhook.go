package notify

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// WebhookProvider delivers the raw notification JSON to a recipient's
// webhook endpoint, for machine consumers rather than humans.
type WebhookProvider struct {
	mock       bool
	httpClient *http.Client
}

// NewWebhookProvider creates a webhook provider.
func NewWebhookProvider(mock bool) *WebhookProvider {
	return &WebhookProvider{
		mock: mock,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Channel returns the delivery channel this provider handles.
func (p *WebhookProvider) Channel() Channel { return ChannelWebhook }

// ValidateRecipient requires a webhook URL.
func (p *WebhookProvider) ValidateRecipient(r *Recipient) bool {
	return isValidURL(r.WebhookURL)
}

// Send posts the full notification to the recipient's webhook URL.
func (p *WebhookProvider) Send(ctx context.Context, n *Notification, r *Recipient) error {
	if p.mock {
		slog.Info("Mock webhook delivery",
			"url", maskURL(r.WebhookURL),
			"notification_id", n.ID,
		)
		return nil
	}

	headers := map[string]string{
		"X-Notification-ID": n.ID,
		"X-Priority":        string(n.Priority),
	}
	return postJSON(ctx, p.httpClient, r.WebhookURL, n, headers)
}

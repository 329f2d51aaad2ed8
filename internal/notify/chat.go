package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

func isValidURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

func maskURL(url string) string {
	if len(url) > 50 {
		return url[:30] + "..." + url[len(url)-10:]
	}
	return url
}

// priorityColor maps priority to the attachment color bar used by
// Slack-compatible chat webhooks.
func priorityColor(p Priority) string {
	switch p {
	case PriorityCritical:
		return "#d32f2f"
	case PriorityHigh:
		return "#f57c00"
	case PriorityMedium:
		return "#fbc02d"
	default:
		return "#388e3c"
	}
}

// ChatProvider delivers notifications to Slack-compatible incoming
// webhooks. In mock mode messages are logged instead of posted.
type ChatProvider struct {
	mock       bool
	httpClient *http.Client
}

// NewChatProvider creates a chat provider.
func NewChatProvider(mock bool) *ChatProvider {
	return &ChatProvider{
		mock: mock,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Channel returns the delivery channel this provider handles.
func (p *ChatProvider) Channel() Channel { return ChannelChat }

// ValidateRecipient requires a chat webhook URL.
func (p *ChatProvider) ValidateRecipient(r *Recipient) bool {
	return isValidURL(r.ChatWebhook)
}

// Send posts the notification to the recipient's chat webhook.
func (p *ChatProvider) Send(ctx context.Context, n *Notification, r *Recipient) error {
	payload := map[string]any{
		"text": fmt.Sprintf("*%s*\n%s", n.Title, n.Message),
		"attachments": []map[string]any{
			{
				"color": priorityColor(n.Priority),
				"fields": []map[string]any{
					{"title": "Priority", "value": string(n.Priority), "short": true},
					{"title": "Model", "value": n.ModelName, "short": true},
					{"title": "Time", "value": n.Timestamp.Format(time.RFC3339), "short": true},
				},
			},
		},
	}

	if p.mock {
		slog.Info("Mock chat delivery",
			"webhook", maskURL(r.ChatWebhook),
			"title", n.Title,
			"notification_id", n.ID,
		)
		return nil
	}

	return postJSON(ctx, p.httpClient, r.ChatWebhook, payload, nil)
}

// postJSON posts a JSON body and maps the response status to errors.
// HTTP 429 surfaces as ErrRateLimited so callers skip retries.
func postJSON(ctx context.Context, client *http.Client, url string, payload any, headers map[string]string) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("post to %s: %w", maskURL(url), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("post to %s: %w", maskURL(url), ErrRateLimited)
	}
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("post to %s: status %d: %s", maskURL(url), resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

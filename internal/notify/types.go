// Package notify fans alerts out to human recipients over email, chat,
// and webhook delivery channels, with per-channel rate limiting, retry
// with exponential backoff, and low-priority batching.
package notify

import (
	"time"

	"github.com/google/uuid"

	"github.com/enterprisehub/alertstream/internal/alert"
)

// Priority orders notifications for the worker loop.
type Priority string

// Notification priorities, most urgent first.
const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// Channel is a delivery medium, distinct from pub/sub channels.
type Channel string

// Supported delivery channels.
const (
	ChannelEmail   Channel = "email"
	ChannelChat    Channel = "chat"
	ChannelWebhook Channel = "webhook"
)

// DeliveryStatus tracks one delivery attempt's lifecycle.
type DeliveryStatus string

// Delivery statuses.
const (
	StatusPending   DeliveryStatus = "pending"
	StatusQueued    DeliveryStatus = "queued"
	StatusSending   DeliveryStatus = "sending"
	StatusDelivered DeliveryStatus = "delivered"
	StatusFailed    DeliveryStatus = "failed"
	StatusRetrying  DeliveryStatus = "retrying"
)

// QuietHours suppresses non-critical notifications inside a daily
// window. Start and End are hours of day; a window may wrap midnight.
type QuietHours struct {
	Enabled bool `json:"enabled"`
	Start   int  `json:"start"`
	End     int  `json:"end"`
}

// Contains reports whether t falls inside the quiet window.
func (q QuietHours) Contains(t time.Time) bool {
	if !q.Enabled {
		return false
	}
	h := t.Hour()
	if q.Start <= q.End {
		return h >= q.Start && h < q.End
	}
	return h >= q.Start || h < q.End
}

// Preferences restrict what a recipient receives. Empty lists mean no
// restriction.
type Preferences struct {
	Channels   []Channel    `json:"channels,omitempty"`
	AlertTypes []alert.Type `json:"alert_types,omitempty"`
	QuietHours QuietHours   `json:"quiet_hours,omitempty"`
}

// Recipient is a registered notification target with per-channel
// contact fields.
type Recipient struct {
	ID           string      `json:"id"`
	Name         string      `json:"name"`
	Email        string      `json:"email,omitempty"`
	ChatWebhook  string      `json:"chat_webhook,omitempty"`
	WebhookURL   string      `json:"webhook_url,omitempty"`
	Active       bool        `json:"active"`
	Preferences  Preferences `json:"preferences,omitempty"`
	RegisteredAt time.Time   `json:"registered_at"`
}

// AcceptsChannel reports whether the recipient's preferences allow the
// channel. An empty channel list allows every channel.
func (r *Recipient) AcceptsChannel(ch Channel) bool {
	if len(r.Preferences.Channels) == 0 {
		return true
	}
	for _, c := range r.Preferences.Channels {
		if c == ch {
			return true
		}
	}
	return false
}

// AcceptsAlertType reports whether the recipient's preferences allow
// the alert type. An empty type list allows every type.
func (r *Recipient) AcceptsAlertType(t alert.Type) bool {
	if len(r.Preferences.AlertTypes) == 0 {
		return true
	}
	for _, at := range r.Preferences.AlertTypes {
		if at == t {
			return true
		}
	}
	return false
}

// Notification is one outbound message, created per send request and
// consumed exactly once by the worker loop.
type Notification struct {
	ID           string         `json:"id"`
	Title        string         `json:"title"`
	Message      string         `json:"message"`
	Priority     Priority       `json:"priority"`
	AlertType    alert.Type     `json:"alert_type,omitempty"`
	ModelID      string         `json:"model_id,omitempty"`
	ModelName    string         `json:"model_name,omitempty"`
	Regulation   string         `json:"regulation,omitempty"`
	Timestamp    time.Time      `json:"timestamp"`
	Data         map[string]any `json:"data,omitempty"`
	Channels     []Channel      `json:"channels,omitempty"`
	RecipientIDs []string       `json:"recipient_ids,omitempty"`
}

// NewNotification creates a notification with a generated ID and the
// current time.
func NewNotification(title, message string, priority Priority) *Notification {
	if priority == "" {
		priority = PriorityMedium
	}
	return &Notification{
		ID:        "notif_" + uuid.NewString(),
		Title:     title,
		Message:   message,
		Priority:  priority,
		Timestamp: time.Now().UTC(),
		Data:      map[string]any{},
	}
}

// DeliveryResult records the outcome of one (notification, recipient,
// channel) delivery.
type DeliveryResult struct {
	NotificationID string         `json:"notification_id"`
	RecipientID    string         `json:"recipient_id"`
	Channel        Channel        `json:"channel"`
	Status         DeliveryStatus `json:"status"`
	Timestamp      time.Time      `json:"timestamp"`
	Error          string         `json:"error,omitempty"`
	Response       map[string]any `json:"response,omitempty"`
	RetryCount     int            `json:"retry_count"`
}

package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWebhookProvider_SendPostsNotificationJSON(t *testing.T) {
	var gotBody Notification
	var gotHeaders http.Header
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeaders = r.Header.Clone()
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &gotBody)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	p := NewWebhookProvider(false)
	r := &Recipient{ID: "svc-1", WebhookURL: server.URL, Active: true}
	n := NewNotification("Breach", "threshold crossed", PriorityCritical)

	if err := p.Send(context.Background(), n, r); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if gotBody.ID != n.ID || gotBody.Title != n.Title {
		t.Errorf("posted notification = %+v, want id %s", gotBody, n.ID)
	}
	if got := gotHeaders.Get("X-Notification-ID"); got != n.ID {
		t.Errorf("X-Notification-ID = %q, want %q", got, n.ID)
	}
	if got := gotHeaders.Get("X-Priority"); got != "critical" {
		t.Errorf("X-Priority = %q, want critical", got)
	}
	if got := gotHeaders.Get("Content-Type"); got != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", got)
	}
}

func TestWebhookProvider_ValidateRecipient(t *testing.T) {
	p := NewWebhookProvider(false)
	if p.ValidateRecipient(&Recipient{WebhookURL: ""}) {
		t.Error("empty webhook URL accepted")
	}
	if !p.ValidateRecipient(&Recipient{WebhookURL: "https://api.example.com/hooks/alerts"}) {
		t.Error("valid webhook URL rejected")
	}
}

func TestEmailProvider_ValidateRecipient(t *testing.T) {
	p := NewEmailProvider(EmailConfig{Mode: "mock"})
	tests := []struct {
		email string
		want  bool
	}{
		{"ops@example.com", true},
		{"not-an-address", false},
		{"", false},
	}
	for _, tt := range tests {
		r := &Recipient{Email: tt.email}
		if got := p.ValidateRecipient(r); got != tt.want {
			t.Errorf("ValidateRecipient(%q) = %v, want %v", tt.email, got, tt.want)
		}
	}
}

func TestEmailProvider_MockSend(t *testing.T) {
	p := NewEmailProvider(EmailConfig{Mode: "mock"})
	r := &Recipient{ID: "r1", Email: "ops@example.com", Active: true}
	n := NewNotification("Expiry", "certification expiring", PriorityMedium)
	n.ModelName = "Credit Model"
	n.Data["days_remaining"] = 14

	if err := p.Send(context.Background(), n, r); err != nil {
		t.Errorf("Send() in mock mode error = %v", err)
	}
}

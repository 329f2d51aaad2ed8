package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestChatProvider_Send(t *testing.T) {
	var received map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &received)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	p := NewChatProvider(false)
	r := &Recipient{ID: "r1", ChatWebhook: server.URL, Active: true}
	n := NewNotification("Violation detected", "PII exposure", PriorityCritical)

	if err := p.Send(context.Background(), n, r); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	text, _ := received["text"].(string)
	if text == "" {
		t.Error("chat payload missing text field")
	}
	attachments, ok := received["attachments"].([]any)
	if !ok || len(attachments) != 1 {
		t.Errorf("chat payload attachments = %v, want one attachment", received["attachments"])
	}
}

func TestChatProvider_SendErrorStatuses(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		wantErr     bool
		rateLimited bool
	}{
		{"ok", http.StatusOK, false, false},
		{"server error", http.StatusInternalServerError, true, false},
		{"rate limited", http.StatusTooManyRequests, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			p := NewChatProvider(false)
			r := &Recipient{ID: "r1", ChatWebhook: server.URL, Active: true}
			err := p.Send(context.Background(), NewNotification("t", "m", PriorityHigh), r)

			if (err != nil) != tt.wantErr {
				t.Errorf("Send() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.rateLimited && !errors.Is(err, ErrRateLimited) {
				t.Errorf("Send() error = %v, want ErrRateLimited", err)
			}
		})
	}
}

func TestChatProvider_ValidateRecipient(t *testing.T) {
	p := NewChatProvider(true)
	tests := []struct {
		name    string
		webhook string
		want    bool
	}{
		{"https url", "https://hooks.example.com/services/x", true},
		{"http url", "http://localhost:9000/hook", true},
		{"channel name", "#alerts", false},
		{"empty", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &Recipient{ChatWebhook: tt.webhook}
			if got := p.ValidateRecipient(r); got != tt.want {
				t.Errorf("ValidateRecipient(%q) = %v, want %v", tt.webhook, got, tt.want)
			}
		})
	}
}

func TestChatProvider_MockModeSkipsNetwork(t *testing.T) {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
	}))
	defer server.Close()

	p := NewChatProvider(true)
	r := &Recipient{ID: "r1", ChatWebhook: server.URL, Active: true}
	if err := p.Send(context.Background(), NewNotification("t", "m", PriorityLow), r); err != nil {
		t.Fatalf("Send() in mock mode error = %v", err)
	}
	if requests != 0 {
		t.Errorf("mock mode made %d HTTP requests, want 0", requests)
	}
}

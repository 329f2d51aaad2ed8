package alert

import (
	"encoding/json"
	"testing"
	"time"
)

func TestNewAlert_Defaults(t *testing.T) {
	a := NewAlert(TypeScoreChanged, "", "Score Changed", "Score changed message")

	if a.ID == "" {
		t.Error("NewAlert() should generate an ID")
	}
	if a.Severity != SeverityMedium {
		t.Errorf("NewAlert() severity = %v, want %v", a.Severity, SeverityMedium)
	}
	if a.Acknowledged {
		t.Error("NewAlert() acknowledged should default to false")
	}
	if a.Source != "compliance_engine" {
		t.Errorf("NewAlert() source = %q, want compliance_engine", a.Source)
	}
	if a.Data == nil {
		t.Error("NewAlert() data map should be initialized")
	}
}

func TestAlert_JSON(t *testing.T) {
	a := NewAlert(TypeViolationDetected, SeverityHigh, "Test Alert", "Test message")
	a.ModelID = "model_001"

	data, err := json.Marshal(a)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if decoded["severity"] != string(SeverityHigh) {
		t.Errorf("severity = %v, want %v", decoded["severity"], SeverityHigh)
	}
	if _, ok := decoded["id"]; !ok {
		t.Error("JSON should contain id field")
	}
	if _, ok := decoded["alert_type"]; !ok {
		t.Error("JSON should contain alert_type field")
	}
}

func TestEvent_Channel(t *testing.T) {
	tests := []struct {
		name      string
		eventType Type
		want      string
	}{
		{"assessment completed", TypeAssessmentCompleted, "compliance:assessments"},
		{"violation detected", TypeViolationDetected, "compliance:violations"},
		{"remediation completed", TypeRemediationCompleted, "compliance:remediations"},
		{"score changed", TypeScoreChanged, "compliance:scores"},
		{"threshold breach falls back to general", TypeThresholdBreach, "compliance:general"},
		{"certification expiring falls back to general", TypeCertificationExpiring, "compliance:general"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEvent(tt.eventType, "test")
			if got := e.Channel("compliance"); got != tt.want {
				t.Errorf("Channel() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEvent_MarshalRoundTrip(t *testing.T) {
	e := NewEvent(TypeScoreChanged, "scoring_service")
	e.ModelID = "model_001"
	e.Payload["old_score"] = 72.5
	e.Metadata["tenant"] = "acme"

	data, err := e.Marshal()
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	got, err := UnmarshalEvent(data)
	if err != nil {
		t.Fatalf("UnmarshalEvent() error = %v", err)
	}
	if got.EventID != e.EventID {
		t.Errorf("EventID = %q, want %q", got.EventID, e.EventID)
	}
	if got.Type != TypeScoreChanged {
		t.Errorf("Type = %q, want %q", got.Type, TypeScoreChanged)
	}
	if got.Metadata["tenant"] != "acme" {
		t.Errorf("Metadata[tenant] = %q, want acme", got.Metadata["tenant"])
	}
	if !got.Timestamp.Equal(e.Timestamp.Truncate(time.Nanosecond)) {
		t.Errorf("Timestamp = %v, want %v", got.Timestamp, e.Timestamp)
	}
}

func TestUnmarshalEvent_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"malformed JSON", `{"event_id": "evt_1",`},
		{"missing event_type", `{"event_id": "evt_1"}`},
		{"missing event_id", `{"event_type": "score_changed"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := UnmarshalEvent([]byte(tt.data)); err == nil {
				t.Error("UnmarshalEvent() should return error")
			}
		})
	}
}

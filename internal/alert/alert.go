// Package alert defines the alert and event types distributed by the
// real-time pipeline, together with their wire representations.
package alert

import (
	"time"

	"github.com/google/uuid"
)

// Severity classifies how urgent an alert is.
type Severity string

// Alert severities, most urgent first.
const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

// Type identifies what kind of occurrence an alert or event describes.
type Type string

// Known alert/event types.
const (
	TypeViolationDetected     Type = "violation_detected"
	TypeScoreChanged          Type = "score_changed"
	TypeThresholdBreach       Type = "threshold_breach"
	TypeAssessmentCompleted   Type = "assessment_completed"
	TypeRemediationCompleted  Type = "remediation_completed"
	TypeCertificationExpiring Type = "certification_expiring"
)

// Status tracks the lifecycle of an alert once raised.
type Status string

// Alert lifecycle states.
const (
	StatusActive       Status = "active"
	StatusAcknowledged Status = "acknowledged"
	StatusResolved     Status = "resolved"
)

// Alert is a single notable occurrence to be distributed to connected
// dashboard clients and notification recipients. Alerts are immutable
// after creation except for acknowledgment.
type Alert struct {
	ID           string         `json:"id"`
	Type         Type           `json:"alert_type"`
	Severity     Severity       `json:"severity"`
	Title        string         `json:"title"`
	Message      string         `json:"message"`
	ModelID      string         `json:"model_id,omitempty"`
	ModelName    string         `json:"model_name,omitempty"`
	Regulation   string         `json:"regulation,omitempty"`
	Source       string         `json:"source"`
	Timestamp    time.Time      `json:"timestamp"`
	Data         map[string]any `json:"data,omitempty"`
	Acknowledged bool           `json:"acknowledged"`
}

// NewAlert creates an alert with a generated ID, the given type, severity
// medium by default, and the current time.
func NewAlert(alertType Type, severity Severity, title, message string) *Alert {
	if severity == "" {
		severity = SeverityMedium
	}
	return &Alert{
		ID:        "alert_" + uuid.NewString(),
		Type:      alertType,
		Severity:  severity,
		Title:     title,
		Message:   message,
		Source:    "compliance_engine",
		Timestamp: time.Now().UTC(),
		Data:      map[string]any{},
	}
}

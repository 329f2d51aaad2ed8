// Package monitor evaluates threshold rules against compliance metrics
// and raises alerts through the WebSocket, event bus, and notification
// layers. Repeated triggers of the same rule/model/metric are
// suppressed for the threshold's cooldown period.
package monitor

import (
	"time"

	"github.com/google/uuid"

	"github.com/enterprisehub/alertstream/internal/alert"
)

// Operator compares a metric value against a threshold value.
type Operator string

// Threshold comparison operators.
const (
	OpLT  Operator = "lt"
	OpGT  Operator = "gt"
	OpEQ  Operator = "eq"
	OpLTE Operator = "lte"
	OpGTE Operator = "gte"
	OpNEQ Operator = "neq"
)

// describe returns the operator's phrasing for alert messages.
func (o Operator) describe() string {
	switch o {
	case OpLT:
		return "below"
	case OpGT:
		return "above"
	case OpEQ:
		return "equal to"
	case OpLTE:
		return "at or below"
	case OpGTE:
		return "at or above"
	case OpNEQ:
		return "not equal to"
	default:
		return "compared against"
	}
}

// Threshold is one metric comparison that can trigger an alert.
type Threshold struct {
	Metric      string         `json:"metric"`
	Operator    Operator       `json:"operator"`
	Value       float64        `json:"value"`
	Severity    alert.Severity `json:"severity"`
	Cooldown    time.Duration  `json:"cooldown"`
	Description string         `json:"description,omitempty"`
}

// Evaluate reports whether the actual value trips this threshold.
func (t Threshold) Evaluate(actual float64) bool {
	switch t.Operator {
	case OpLT:
		return actual < t.Value
	case OpGT:
		return actual > t.Value
	case OpEQ:
		return actual == t.Value
	case OpLTE:
		return actual <= t.Value
	case OpGTE:
		return actual >= t.Value
	case OpNEQ:
		return actual != t.Value
	default:
		return false
	}
}

// Rule groups thresholds with targeting and scheduling metadata. An
// empty ModelIDs list targets every model.
type Rule struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	Description   string        `json:"description,omitempty"`
	Enabled       bool          `json:"enabled"`
	ModelIDs      []string      `json:"model_ids,omitempty"`
	Thresholds    []Threshold   `json:"thresholds"`
	CheckInterval time.Duration `json:"check_interval"`
	LastTriggered time.Time     `json:"last_triggered,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	Tags          []string      `json:"tags,omitempty"`
}

// NewRule creates an enabled rule with a generated id.
func NewRule(name string, thresholds ...Threshold) *Rule {
	return &Rule{
		ID:            "rule_" + uuid.NewString()[:12],
		Name:          name,
		Enabled:       true,
		Thresholds:    thresholds,
		CheckInterval: 5 * time.Minute,
		CreatedAt:     time.Now().UTC(),
	}
}

// appliesTo reports whether the rule targets the given model.
func (r *Rule) appliesTo(modelID string) bool {
	if len(r.ModelIDs) == 0 {
		return true
	}
	for _, id := range r.ModelIDs {
		if id == modelID {
			return true
		}
	}
	return false
}

// DefaultRules returns out-of-the-box monitoring for common compliance
// scenarios.
func DefaultRules() []*Rule {
	return []*Rule{
		{
			ID:          "default_critical_score",
			Name:        "Critical Compliance Score",
			Description: "Alert when compliance score drops below 50%",
			Enabled:     true,
			Thresholds: []Threshold{{
				Metric:      "compliance_score",
				Operator:    OpLT,
				Value:       50.0,
				Severity:    alert.SeverityCritical,
				Cooldown:    30 * time.Minute,
				Description: "Compliance score critically low",
			}},
			CheckInterval: time.Minute,
			CreatedAt:     time.Now().UTC(),
			Tags:          []string{"compliance", "critical"},
		},
		{
			ID:          "default_score_drop",
			Name:        "Significant Score Drop",
			Description: "Alert when score drops more than 10% in 24 hours",
			Enabled:     true,
			Thresholds: []Threshold{{
				Metric:      "score_change_24h",
				Operator:    OpLT,
				Value:       -10.0,
				Severity:    alert.SeverityHigh,
				Cooldown:    2 * time.Hour,
				Description: "Score dropped significantly",
			}},
			CheckInterval: 5 * time.Minute,
			CreatedAt:     time.Now().UTC(),
			Tags:          []string{"compliance", "trend"},
		},
		{
			ID:          "default_critical_violation",
			Name:        "Critical Violations Detected",
			Description: "Alert when any critical violation is detected",
			Enabled:     true,
			Thresholds: []Threshold{{
				Metric:      "critical_violations",
				Operator:    OpGTE,
				Value:       1.0,
				Severity:    alert.SeverityCritical,
				Cooldown:    15 * time.Minute,
				Description: "Critical violation requires immediate attention",
			}},
			CheckInterval: time.Minute,
			CreatedAt:     time.Now().UTC(),
			Tags:          []string{"violations", "critical"},
		},
		{
			ID:          "default_multiple_violations",
			Name:        "Multiple Violations",
			Description: "Alert when 5 or more violations exist",
			Enabled:     true,
			Thresholds: []Threshold{{
				Metric:      "violation_count",
				Operator:    OpGTE,
				Value:       5.0,
				Severity:    alert.SeverityMedium,
				Cooldown:    4 * time.Hour,
				Description: "Multiple violations need review",
			}},
			CheckInterval: 5 * time.Minute,
			CreatedAt:     time.Now().UTC(),
			Tags:          []string{"violations"},
		},
		{
			ID:          "default_warning_score",
			Name:        "Compliance Warning",
			Description: "Warning when compliance score drops below 70%",
			Enabled:     true,
			Thresholds: []Threshold{{
				Metric:      "compliance_score",
				Operator:    OpLT,
				Value:       70.0,
				Severity:    alert.SeverityLow,
				Cooldown:    6 * time.Hour,
				Description: "Compliance score in warning zone",
			}},
			CheckInterval: 10 * time.Minute,
			CreatedAt:     time.Now().UTC(),
			Tags:          []string{"compliance", "warning"},
		},
		{
			ID:          "default_stale_assessment",
			Name:        "Stale Assessment",
			Description: "Alert when assessment is more than 30 days old",
			Enabled:     true,
			Thresholds: []Threshold{{
				Metric:      "days_since_assessment",
				Operator:    OpGT,
				Value:       30.0,
				Severity:    alert.SeverityMedium,
				Cooldown:    24 * time.Hour,
				Description: "Assessment needs refresh",
			}},
			CheckInterval: time.Hour,
			CreatedAt:     time.Now().UTC(),
			Tags:          []string{"assessments"},
		},
		{
			ID:          "default_pending_remediations",
			Name:        "Pending Remediations",
			Description: "Alert when there are too many pending remediations",
			Enabled:     true,
			Thresholds: []Threshold{{
				Metric:      "pending_remediations",
				Operator:    OpGTE,
				Value:       3.0,
				Severity:    alert.SeverityHigh,
				Cooldown:    8 * time.Hour,
				Description: "Multiple remediations pending",
			}},
			CheckInterval: 10 * time.Minute,
			CreatedAt:     time.Now().UTC(),
			Tags:          []string{"remediation"},
		},
		{
			ID:          "default_cert_expiring",
			Name:        "Certifications Expiring",
			Description: "Alert when certifications are expiring within 30 days",
			Enabled:     true,
			Thresholds: []Threshold{{
				Metric:      "certifications_expiring_30d",
				Operator:    OpGTE,
				Value:       1.0,
				Severity:    alert.SeverityLow,
				Cooldown:    48 * time.Hour,
				Description: "Certification renewal needed",
			}},
			CheckInterval: 24 * time.Hour,
			CreatedAt:     time.Now().UTC(),
			Tags:          []string{"certification"},
		},
		{
			ID:          "default_high_risk",
			Name:        "High Risk Level",
			Description: "Alert when model has high or unacceptable risk",
			Enabled:     true,
			Thresholds: []Threshold{{
				Metric:      "risk_level_numeric",
				Operator:    OpGTE,
				Value:       2.0,
				Severity:    alert.SeverityHigh,
				Cooldown:    12 * time.Hour,
				Description: "High risk level requires review",
			}},
			CheckInterval: 10 * time.Minute,
			CreatedAt:     time.Now().UTC(),
			Tags:          []string{"risk"},
		},
	}
}

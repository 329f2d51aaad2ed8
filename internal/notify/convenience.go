package notify

import (
	"fmt"

	"github.com/enterprisehub/alertstream/internal/alert"
)

// severityPriority maps alert severities to notification priorities.
func severityPriority(severity string) Priority {
	switch severity {
	case "critical":
		return PriorityCritical
	case "high":
		return PriorityHigh
	case "medium":
		return PriorityMedium
	default:
		return PriorityLow
	}
}

// breachPriority maps a threshold breach percentage to a priority.
func breachPriority(breachPct float64) Priority {
	switch {
	case breachPct >= 50:
		return PriorityCritical
	case breachPct >= 25:
		return PriorityHigh
	case breachPct >= 10:
		return PriorityMedium
	default:
		return PriorityLow
	}
}

// expiryPriority maps days remaining until expiry to a priority.
func expiryPriority(daysRemaining int) Priority {
	switch {
	case daysRemaining <= 7:
		return PriorityCritical
	case daysRemaining <= 30:
		return PriorityHigh
	case daysRemaining <= 60:
		return PriorityMedium
	default:
		return PriorityLow
	}
}

// SendViolationAlert queues a notification for a detected compliance
// violation. Priority follows the violation's severity.
func (s *Service) SendViolationAlert(modelID, modelName string, violation map[string]any) *Notification {
	severity, _ := violation["severity"].(string)
	description, _ := violation["description"].(string)
	if description == "" {
		description = "A compliance violation was detected."
	}

	n := NewNotification(
		fmt.Sprintf("Compliance violation: %s", modelName),
		description,
		severityPriority(severity),
	)
	n.AlertType = alert.TypeViolationDetected
	n.ModelID = modelID
	n.ModelName = modelName
	if reg, ok := violation["regulation"].(string); ok {
		n.Regulation = reg
	}
	for k, v := range violation {
		n.Data[k] = v
	}

	s.QueueNotification(n)
	return n
}

// SendThresholdBreachAlert queues a notification for a metric that
// crossed its threshold. Priority scales with the breach percentage.
func (s *Service) SendThresholdBreachAlert(modelID, modelName, metric string, value, threshold, breachPct float64) *Notification {
	n := NewNotification(
		fmt.Sprintf("Threshold breach: %s on %s", metric, modelName),
		fmt.Sprintf("%s is %.2f against a threshold of %.2f (%.1f%% breach).", metric, value, threshold, breachPct),
		breachPriority(breachPct),
	)
	n.AlertType = alert.TypeThresholdBreach
	n.ModelID = modelID
	n.ModelName = modelName
	n.Data["metric"] = metric
	n.Data["value"] = value
	n.Data["threshold"] = threshold
	n.Data["breach_percentage"] = breachPct

	s.QueueNotification(n)
	return n
}

// SendCertificationExpiryAlert queues a notification for an expiring
// certification. Priority scales with how soon it expires.
func (s *Service) SendCertificationExpiryAlert(certification string, daysRemaining int) *Notification {
	n := NewNotification(
		fmt.Sprintf("Certification expiring: %s", certification),
		fmt.Sprintf("%s expires in %d days.", certification, daysRemaining),
		expiryPriority(daysRemaining),
	)
	n.AlertType = alert.TypeCertificationExpiring
	n.Data["certification_name"] = certification
	n.Data["days_remaining"] = daysRemaining

	s.QueueNotification(n)
	return n
}

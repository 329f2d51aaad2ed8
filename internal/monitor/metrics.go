package monitor

import "time"

// Metrics is one compliance snapshot for a model, the input to rule
// evaluation.
type Metrics struct {
	ModelID                   string             `json:"model_id"`
	ModelName                 string             `json:"model_name"`
	ComplianceScore           float64            `json:"compliance_score"`
	RiskLevel                 string             `json:"risk_level"`
	ViolationCount            int                `json:"violation_count"`
	CriticalViolations        int                `json:"critical_violations"`
	HighViolations            int                `json:"high_violations"`
	PendingRemediations       int                `json:"pending_remediations"`
	ScoreChange24h            float64            `json:"score_change_24h"`
	DaysSinceAssessment       int                `json:"days_since_assessment"`
	CertificationsExpiring30d int                `json:"certifications_expiring_30d"`
	RegulationScores          map[string]float64 `json:"regulation_scores,omitempty"`
	CollectedAt               time.Time          `json:"collected_at"`
}

// riskLevelNumeric converts the EU AI Act risk tier to a comparable
// number. Unknown tiers map to -1.
func riskLevelNumeric(level string) float64 {
	switch level {
	case "minimal":
		return 0
	case "limited":
		return 1
	case "high":
		return 2
	case "unacceptable":
		return 3
	default:
		return -1
	}
}

// values exposes the snapshot's threshold-comparable fields by metric
// name.
func (m *Metrics) values() map[string]float64 {
	return map[string]float64{
		"compliance_score":            m.ComplianceScore,
		"risk_level_numeric":          riskLevelNumeric(m.RiskLevel),
		"violation_count":             float64(m.ViolationCount),
		"critical_violations":         float64(m.CriticalViolations),
		"high_violations":             float64(m.HighViolations),
		"pending_remediations":        float64(m.PendingRemediations),
		"score_change_24h":            m.ScoreChange24h,
		"days_since_assessment":       float64(m.DaysSinceAssessment),
		"certifications_expiring_30d": float64(m.CertificationsExpiring30d),
	}
}

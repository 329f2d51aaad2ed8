package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/enterprisehub/alertstream/internal/alert"
	"github.com/enterprisehub/alertstream/internal/notify"
)

// Broadcaster pushes a triggered alert to connected dashboard clients.
type Broadcaster interface {
	BroadcastAlert(a *alert.Alert) int
}

// Publisher distributes a triggered alert over the event bus.
type Publisher interface {
	Publish(ctx context.Context, e *alert.Event) int64
}

// Notifier queues a notification for human recipients.
type Notifier interface {
	QueueNotification(n *notify.Notification)
}

const defaultHistoryLimit = 500

// EventSource is the source name stamped on alerts and bus events this
// package produces. Consumers that also broadcast locally use it to
// recognize their own events coming back off the bus.
const EventSource = "monitoring"

// Record is one triggered alert with its evaluation context and
// lifecycle state.
type Record struct {
	Alert          *alert.Alert   `json:"alert"`
	RuleID         string         `json:"rule_id"`
	RuleName       string         `json:"rule_name"`
	Metric         string         `json:"metric"`
	MetricValue    float64        `json:"metric_value"`
	ThresholdValue float64        `json:"threshold_value"`
	Status         alert.Status   `json:"status"`
	TriggeredAt    time.Time      `json:"triggered_at"`
	AcknowledgedAt time.Time      `json:"acknowledged_at,omitempty"`
	AcknowledgedBy string         `json:"acknowledged_by,omitempty"`
	ResolvedAt     time.Time      `json:"resolved_at,omitempty"`
	ResolvedBy     string         `json:"resolved_by,omitempty"`
	Notes          map[string]any `json:"notes,omitempty"`
}

// Manager owns the rule set, evaluates metrics against it, and fans
// triggered alerts out to the wired sinks. Any sink may be nil.
type Manager struct {
	broadcaster Broadcaster
	publisher   Publisher
	notifier    Notifier

	historyLimit int

	mu        sync.Mutex
	rules     map[string]*Rule
	cooldowns map[string]time.Time
	history   []*Record

	now func() time.Time // stubbed in tests
}

// NewManager creates a monitoring manager wired to the given sinks.
func NewManager(b Broadcaster, p Publisher, n Notifier) *Manager {
	return &Manager{
		broadcaster:  b,
		publisher:    p,
		notifier:     n,
		historyLimit: defaultHistoryLimit,
		rules:        map[string]*Rule{},
		cooldowns:    map[string]time.Time{},
		now:          time.Now,
	}
}

// AddRule registers a rule, replacing any rule with the same id.
func (m *Manager) AddRule(r *Rule) {
	m.mu.Lock()
	m.rules[r.ID] = r
	m.mu.Unlock()
	slog.Info("Monitoring rule added", "rule_id", r.ID, "name", r.Name)
}

// RemoveRule deletes a rule by id.
func (m *Manager) RemoveRule(id string) bool {
	m.mu.Lock()
	_, ok := m.rules[id]
	delete(m.rules, id)
	m.mu.Unlock()
	return ok
}

// GetRule returns the rule with the given id.
func (m *Manager) GetRule(id string) (*Rule, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rules[id]
	return r, ok
}

// Rules returns all rules, optionally only enabled ones.
func (m *Manager) Rules(enabledOnly bool) []*Rule {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Rule, 0, len(m.rules))
	for _, r := range m.rules {
		if enabledOnly && !r.Enabled {
			continue
		}
		out = append(out, r)
	}
	return out
}

// EnableRule enables a rule by id.
func (m *Manager) EnableRule(id string) bool { return m.setEnabled(id, true) }

// DisableRule disables a rule by id.
func (m *Manager) DisableRule(id string) bool { return m.setEnabled(id, false) }

func (m *Manager) setEnabled(id string, enabled bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rules[id]
	if ok {
		r.Enabled = enabled
	}
	return ok
}

// LoadDefaultRules installs the built-in rule set.
func (m *Manager) LoadDefaultRules() {
	for _, r := range DefaultRules() {
		m.AddRule(r)
	}
}

// CheckThresholds evaluates every enabled rule against the snapshot and
// triggers alerts for tripped thresholds. At most one alert fires per
// rule per check; cooldown suppression is keyed by rule, model, and
// metric.
func (m *Manager) CheckThresholds(ctx context.Context, metrics *Metrics) []*Record {
	var triggered []*Record
	for _, rule := range m.Rules(true) {
		if rec := m.evaluateRule(ctx, rule, metrics); rec != nil {
			triggered = append(triggered, rec)
		}
	}
	return triggered
}

func (m *Manager) evaluateRule(ctx context.Context, rule *Rule, metrics *Metrics) *Record {
	if !rule.appliesTo(metrics.ModelID) {
		return nil
	}

	values := metrics.values()
	for _, th := range rule.Thresholds {
		actual, ok := values[th.Metric]
		if !ok || !th.Evaluate(actual) {
			continue
		}

		key := fmt.Sprintf("%s:%s:%s", rule.ID, metrics.ModelID, th.Metric)
		if m.inCooldown(key, th.Cooldown) {
			slog.Debug("Alert suppressed by cooldown", "key", key)
			continue
		}

		rec := m.buildRecord(rule, th, metrics, actual)
		m.trigger(ctx, rec)

		now := m.now().UTC()
		m.mu.Lock()
		m.cooldowns[key] = now
		m.mu.Unlock()
		rule.LastTriggered = now
		return rec
	}
	return nil
}

func (m *Manager) inCooldown(key string, cooldown time.Duration) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	last, ok := m.cooldowns[key]
	if !ok {
		return false
	}
	return m.now().Before(last.Add(cooldown))
}

func (m *Manager) buildRecord(rule *Rule, th Threshold, metrics *Metrics, actual float64) *Record {
	a := alert.NewAlert(
		alert.TypeThresholdBreach,
		th.Severity,
		fmt.Sprintf("%s: %s threshold breached", rule.Name, th.Metric),
		fmt.Sprintf("Model %q has %s %s threshold. Current value: %.2f, Threshold: %.2f",
			metrics.ModelName, th.Metric, th.Operator.describe(), actual, th.Value),
	)
	a.ModelID = metrics.ModelID
	a.ModelName = metrics.ModelName
	a.Source = EventSource
	a.Data["rule_id"] = rule.ID
	a.Data["metric"] = th.Metric
	a.Data["metric_value"] = actual
	a.Data["threshold_value"] = th.Value
	a.Data["risk_level"] = metrics.RiskLevel
	a.Data["compliance_score"] = metrics.ComplianceScore

	return &Record{
		Alert:          a,
		RuleID:         rule.ID,
		RuleName:       rule.Name,
		Metric:         th.Metric,
		MetricValue:    actual,
		ThresholdValue: th.Value,
		Status:         alert.StatusActive,
		TriggeredAt:    m.now().UTC(),
	}
}

// trigger records the alert and fans it out to every wired sink. A
// failing sink never blocks the others.
func (m *Manager) trigger(ctx context.Context, rec *Record) {
	m.mu.Lock()
	m.history = append(m.history, rec)
	if len(m.history) > m.historyLimit {
		m.history = m.history[len(m.history)-m.historyLimit:]
	}
	m.mu.Unlock()

	slog.Warn("Alert triggered",
		"alert_id", rec.Alert.ID,
		"rule_id", rec.RuleID,
		"model_id", rec.Alert.ModelID,
		"severity", rec.Alert.Severity,
		"metric_value", rec.MetricValue,
		"threshold_value", rec.ThresholdValue,
	)

	if m.broadcaster != nil {
		m.broadcaster.BroadcastAlert(rec.Alert)
	}

	if m.publisher != nil {
		e := alert.NewEvent(alert.TypeThresholdBreach, EventSource)
		e.ModelID = rec.Alert.ModelID
		e.ModelName = rec.Alert.ModelName
		e.Payload["alert_id"] = rec.Alert.ID
		e.Payload["rule_id"] = rec.RuleID
		e.Payload["metric"] = rec.Metric
		e.Payload["metric_value"] = rec.MetricValue
		e.Payload["threshold_value"] = rec.ThresholdValue
		e.Payload["severity"] = string(rec.Alert.Severity)
		m.publisher.Publish(ctx, e)
	}

	if m.notifier != nil {
		n := notify.NewNotification(rec.Alert.Title, rec.Alert.Message, severityToPriority(rec.Alert.Severity))
		n.AlertType = alert.TypeThresholdBreach
		n.ModelID = rec.Alert.ModelID
		n.ModelName = rec.Alert.ModelName
		n.Data["rule_id"] = rec.RuleID
		n.Data["metric"] = rec.Metric
		n.Data["metric_value"] = rec.MetricValue
		n.Data["threshold_value"] = rec.ThresholdValue
		m.notifier.QueueNotification(n)
	}
}

func severityToPriority(s alert.Severity) notify.Priority {
	switch s {
	case alert.SeverityCritical:
		return notify.PriorityCritical
	case alert.SeverityHigh:
		return notify.PriorityHigh
	case alert.SeverityMedium:
		return notify.PriorityMedium
	default:
		return notify.PriorityLow
	}
}

// AcknowledgeAlert marks an alert as acknowledged.
func (m *Manager) AcknowledgeAlert(alertID, by, notes string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.history {
		if rec.Alert.ID != alertID {
			continue
		}
		rec.Status = alert.StatusAcknowledged
		rec.Alert.Acknowledged = true
		rec.AcknowledgedAt = m.now().UTC()
		rec.AcknowledgedBy = by
		if notes != "" {
			if rec.Notes == nil {
				rec.Notes = map[string]any{}
			}
			rec.Notes["acknowledgment_notes"] = notes
		}
		slog.Info("Alert acknowledged", "alert_id", alertID, "by", by)
		return true
	}
	return false
}

// ResolveAlert marks an alert as resolved.
func (m *Manager) ResolveAlert(alertID, by, notes string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.history {
		if rec.Alert.ID != alertID {
			continue
		}
		rec.Status = alert.StatusResolved
		rec.ResolvedAt = m.now().UTC()
		rec.ResolvedBy = by
		if notes != "" {
			if rec.Notes == nil {
				rec.Notes = map[string]any{}
			}
			rec.Notes["resolution_notes"] = notes
		}
		slog.Info("Alert resolved", "alert_id", alertID, "by", by)
		return true
	}
	return false
}

// ActiveAlerts returns unresolved alerts, optionally scoped to a model.
func (m *Manager) ActiveAlerts(modelID string) []*Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Record
	for _, rec := range m.history {
		if rec.Status == alert.StatusResolved {
			continue
		}
		if modelID != "" && rec.Alert.ModelID != modelID {
			continue
		}
		out = append(out, rec)
	}
	return out
}

// AlertHistory returns alerts triggered within the lookback window,
// newest first.
func (m *Manager) AlertHistory(modelID string, lookback time.Duration) []*Record {
	cutoff := m.now().UTC().Add(-lookback)
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*Record
	for i := len(m.history) - 1; i >= 0; i-- {
		rec := m.history[i]
		if rec.TriggeredAt.Before(cutoff) {
			continue
		}
		if modelID != "" && rec.Alert.ModelID != modelID {
			continue
		}
		out = append(out, rec)
	}
	return out
}

// Stats returns monitoring counters for dashboards.
func (m *Manager) Stats() map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()

	enabled := 0
	for _, r := range m.rules {
		if r.Enabled {
			enabled++
		}
	}
	active := 0
	for _, rec := range m.history {
		if rec.Status != alert.StatusResolved {
			active++
		}
	}
	return map[string]any{
		"rules":         len(m.rules),
		"rules_enabled": enabled,
		"alerts_total":  len(m.history),
		"alerts_active": active,
		"cooldowns":     len(m.cooldowns),
	}
}

// Package eventbus provides Redis pub/sub event distribution for the
// alert pipeline. The publisher degrades to fallback logging when the
// transport is down; subscribers reconnect with exponential backoff and
// resubscribe to their channels.
package eventbus

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/enterprisehub/alertstream/internal/alert"
)

const (
	// DefaultChannelPrefix is the prefix for all pub/sub channel names.
	DefaultChannelPrefix = "compliance"
	// DefaultRetryAttempts is how many times a publish is retried.
	DefaultRetryAttempts = 3
	// DefaultRetryDelay is the fixed delay between publish retries.
	DefaultRetryDelay = 500 * time.Millisecond
)

// publishClient is the slice of the Redis client API the publisher uses.
// Narrowed for testing with fakes.
type publishClient interface {
	Ping(ctx context.Context) *redis.StatusCmd
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// PublisherConfig holds publisher configuration.
type PublisherConfig struct {
	RedisAddr     string
	ChannelPrefix string
	Source        string // producing component name stamped on built events
	RetryAttempts int
	RetryDelay    time.Duration
}

// Publisher publishes typed events to Redis pub/sub channels.
//
// When the transport cannot be reached the publisher enters fallback
// mode: publishes are logged and counted as failed but never raise.
// Event loss is acceptable; process death is not.
type Publisher struct {
	cfg PublisherConfig

	mu        sync.Mutex
	client    publishClient
	connected bool

	eventsPublished atomic.Uint64
	eventsFailed    atomic.Uint64

	// newClient is swapped in tests to inject a fake transport.
	newClient func(addr string) publishClient
}

// NewPublisher creates a publisher. The transport connection is
// established lazily on first use.
func NewPublisher(cfg PublisherConfig) *Publisher {
	if cfg.ChannelPrefix == "" {
		cfg.ChannelPrefix = DefaultChannelPrefix
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = DefaultRetryAttempts
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	return &Publisher{
		cfg: cfg,
		newClient: func(addr string) publishClient {
			return redis.NewClient(&redis.Options{Addr: addr})
		},
	}
}

// Connect establishes the pooled transport connection. Returns false if
// the transport is unreachable; the publisher then operates in fallback
// mode until a later publish re-establishes the connection.
func (p *Publisher) Connect(ctx context.Context) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connectLocked(ctx)
}

func (p *Publisher) connectLocked(ctx context.Context) bool {
	if p.client == nil {
		p.client = p.newClient(p.cfg.RedisAddr)
	}
	if err := p.client.Ping(ctx).Err(); err != nil {
		slog.Warn("Event publisher could not reach transport, entering fallback mode",
			"redis_addr", p.cfg.RedisAddr,
			"error", err,
		)
		p.connected = false
		return false
	}
	p.connected = true
	return true
}

// ensureConnected retries Connect if the last known state was down.
func (p *Publisher) ensureConnected(ctx context.Context) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.connected {
		return true
	}
	return p.connectLocked(ctx)
}

// Publish sends the event to its type-derived channel and to the
// reserved "all" channel. Returns the transport's reported subscriber
// count for the typed channel, or 0 on total failure. Publish never
// returns an error: transport failures are logged and counted.
func (p *Publisher) Publish(ctx context.Context, e *alert.Event) int64 {
	data, err := e.Marshal()
	if err != nil {
		slog.Error("Failed to serialize event", "event_id", e.EventID, "error", err)
		p.eventsFailed.Add(1)
		return 0
	}

	channel := e.Channel(p.cfg.ChannelPrefix)
	allChannel := p.cfg.ChannelPrefix + ":" + alert.ChannelAll

	for attempt := 0; attempt < p.cfg.RetryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				p.eventsFailed.Add(1)
				return 0
			case <-time.After(p.cfg.RetryDelay):
			}
		}

		if !p.ensureConnected(ctx) {
			continue
		}

		receivers, err := p.client.Publish(ctx, channel, data).Result()
		if err != nil {
			slog.Warn("Publish failed, will retry",
				"event_id", e.EventID,
				"channel", channel,
				"attempt", attempt+1,
				"error", err,
			)
			p.markDisconnected()
			continue
		}

		if err := p.client.Publish(ctx, allChannel, data).Err(); err != nil {
			slog.Warn("Publish to catch-all channel failed",
				"event_id", e.EventID,
				"channel", allChannel,
				"error", err,
			)
		}

		p.eventsPublished.Add(1)
		slog.Debug("Event published",
			"event_id", e.EventID,
			"event_type", e.Type,
			"channel", channel,
			"receivers", receivers,
		)
		return receivers
	}

	// Fallback mode: the event still gets logged so operators can
	// reconstruct what was lost.
	slog.Info("Event not published, transport unavailable",
		"event_id", e.EventID,
		"event_type", e.Type,
		"channel", channel,
		"payload", e.Payload,
	)
	p.eventsFailed.Add(1)
	return 0
}

func (p *Publisher) markDisconnected() {
	p.mu.Lock()
	p.connected = false
	p.mu.Unlock()
}

// Connected reports the last known transport state.
func (p *Publisher) Connected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

// Metrics returns publisher counters for external monitoring.
func (p *Publisher) Metrics() map[string]any {
	return map[string]any{
		"events_published": p.eventsPublished.Load(),
		"events_failed":    p.eventsFailed.Load(),
		"connected":        p.Connected(),
	}
}

// PublishViolation builds and publishes a violation_detected event.
func (p *Publisher) PublishViolation(ctx context.Context, modelID, modelName string, violation map[string]any) *alert.Event {
	e := alert.NewEvent(alert.TypeViolationDetected, p.cfg.Source)
	e.ModelID = modelID
	e.ModelName = modelName
	for k, v := range violation {
		e.Payload[k] = v
	}
	p.Publish(ctx, e)
	return e
}

// PublishScoreChange builds and publishes a score_changed event. The
// payload flags significant changes (|delta| >= 5) and crossings of the
// 70-point compliance threshold in either direction.
func (p *Publisher) PublishScoreChange(ctx context.Context, modelID, modelName string, oldScore, newScore float64) *alert.Event {
	const scoreThreshold = 70.0

	delta := newScore - oldScore
	e := alert.NewEvent(alert.TypeScoreChanged, p.cfg.Source)
	e.ModelID = modelID
	e.ModelName = modelName
	e.Payload["old_score"] = oldScore
	e.Payload["new_score"] = newScore
	e.Payload["change"] = delta
	e.Payload["significant_change"] = math.Abs(delta) >= 5.0
	e.Payload["threshold_crossed"] = (oldScore < scoreThreshold) != (newScore < scoreThreshold)
	p.Publish(ctx, e)
	return e
}

// PublishThresholdBreach builds and publishes a threshold_breach event.
// The payload carries the breach percentage relative to the threshold
// and flags breaches of 20% or more as critical.
func (p *Publisher) PublishThresholdBreach(ctx context.Context, modelID, modelName, metric string, value, threshold float64) *alert.Event {
	breachPct := 100.0
	if threshold != 0 {
		breachPct = math.Abs(value-threshold) / math.Abs(threshold) * 100
	}

	e := alert.NewEvent(alert.TypeThresholdBreach, p.cfg.Source)
	e.ModelID = modelID
	e.ModelName = modelName
	e.Payload["metric"] = metric
	e.Payload["value"] = value
	e.Payload["threshold"] = threshold
	e.Payload["breach_percentage"] = breachPct
	e.Payload["critical"] = breachPct >= 20.0
	p.Publish(ctx, e)
	return e
}

// PublishAssessmentCompleted builds and publishes an
// assessment_completed event.
func (p *Publisher) PublishAssessmentCompleted(ctx context.Context, modelID, modelName string, score float64) *alert.Event {
	e := alert.NewEvent(alert.TypeAssessmentCompleted, p.cfg.Source)
	e.ModelID = modelID
	e.ModelName = modelName
	e.Payload["compliance_score"] = score
	p.Publish(ctx, e)
	return e
}

// PublishRemediationCompleted builds and publishes a
// remediation_completed event.
func (p *Publisher) PublishRemediationCompleted(ctx context.Context, modelID, modelName, remediationID string) *alert.Event {
	e := alert.NewEvent(alert.TypeRemediationCompleted, p.cfg.Source)
	e.ModelID = modelID
	e.ModelName = modelName
	e.Payload["remediation_id"] = remediationID
	p.Publish(ctx, e)
	return e
}

// PublishCertificationExpiring builds and publishes a
// certification_expiring event.
func (p *Publisher) PublishCertificationExpiring(ctx context.Context, certification string, daysRemaining int) *alert.Event {
	e := alert.NewEvent(alert.TypeCertificationExpiring, p.cfg.Source)
	e.Payload["certification_name"] = certification
	e.Payload["days_remaining"] = daysRemaining
	p.Publish(ctx, e)
	return e
}

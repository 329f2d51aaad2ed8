// Package metrics provides pipeline metrics collection and reporting.
// Components write counters here; a background loop persists snapshots
// to Redis for dashboards and external monitoring.
package metrics

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// KeyPrefix is the Redis key prefix for pipeline metrics.
	KeyPrefix = "metrics:"
	// TTL is how long metrics stay in Redis if not refreshed.
	TTL = 2 * time.Minute
	// DefaultReportInterval is the default interval for writing metrics to Redis.
	DefaultReportInterval = 30 * time.Second
)

// Snapshot holds a point-in-time view of pipeline metrics.
type Snapshot struct {
	ServiceName string    `json:"service_name"`
	StartedAt   time.Time `json:"started_at"`
	LastUpdated time.Time `json:"last_updated"`
	Status      string    `json:"status"` // "healthy" or "unhealthy"

	// Counters (monotonically increasing since start)
	AlertsBroadcast        uint64 `json:"alerts_broadcast"`
	EventsPublished        uint64 `json:"events_published"`
	EventsFailed           uint64 `json:"events_failed"`
	NotificationsDelivered uint64 `json:"notifications_delivered"`
	NotificationsFailed    uint64 `json:"notifications_failed"`
	SendsRetried           uint64 `json:"sends_retried"`
	Reconnections          uint64 `json:"reconnections"`

	// Service-specific counters (flexible map)
	CustomCounters map[string]uint64 `json:"custom_counters,omitempty"`
}

// Collector collects and reports metrics for the pipeline.
type Collector struct {
	serviceName    string
	redis          *redis.Client
	startedAt      time.Time
	reportInterval time.Duration

	alertsBroadcast        atomic.Uint64
	eventsPublished        atomic.Uint64
	eventsFailed           atomic.Uint64
	notificationsDelivered atomic.Uint64
	notificationsFailed    atomic.Uint64
	sendsRetried           atomic.Uint64
	reconnections          atomic.Uint64

	customMu       sync.RWMutex
	customCounters map[string]*atomic.Uint64

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewCollector creates a new metrics collector. The Redis client may be
// nil; the collector then keeps counters in memory only.
func NewCollector(serviceName string, redisClient *redis.Client) *Collector {
	return &Collector{
		serviceName:    serviceName,
		redis:          redisClient,
		startedAt:      time.Now().UTC(),
		reportInterval: DefaultReportInterval,
		customCounters: make(map[string]*atomic.Uint64),
		stopCh:         make(chan struct{}),
	}
}

// SetReportInterval sets the interval for writing metrics to Redis.
func (c *Collector) SetReportInterval(interval time.Duration) {
	c.reportInterval = interval
}

// Start begins the periodic metrics reporting to Redis.
func (c *Collector) Start(ctx context.Context) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.reportInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				c.write(context.Background()) // Final write
				return
			case <-c.stopCh:
				c.write(context.Background()) // Final write
				return
			case <-ticker.C:
				c.write(ctx)
			}
		}
	}()
}

// Stop stops the metrics reporting.
func (c *Collector) Stop() {
	close(c.stopCh)
	c.wg.Wait()
}

// RecordBroadcast increments the alerts broadcast counter.
func (c *Collector) RecordBroadcast() { c.alertsBroadcast.Add(1) }

// RecordPublished increments the events published counter.
func (c *Collector) RecordPublished() { c.eventsPublished.Add(1) }

// RecordPublishFailed increments the events failed counter.
func (c *Collector) RecordPublishFailed() { c.eventsFailed.Add(1) }

// RecordDelivered increments the notifications delivered counter.
func (c *Collector) RecordDelivered() { c.notificationsDelivered.Add(1) }

// RecordDeliveryFailed increments the notifications failed counter.
func (c *Collector) RecordDeliveryFailed() { c.notificationsFailed.Add(1) }

// RecordRetry increments the sends retried counter.
func (c *Collector) RecordRetry() { c.sendsRetried.Add(1) }

// RecordReconnection increments the reconnections counter.
func (c *Collector) RecordReconnection() { c.reconnections.Add(1) }

// IncrementCustom increments a custom counter by name.
func (c *Collector) IncrementCustom(name string) {
	c.AddCustom(name, 1)
}

// AddCustom adds a value to a custom counter.
func (c *Collector) AddCustom(name string, value uint64) {
	c.customMu.RLock()
	counter, exists := c.customCounters[name]
	c.customMu.RUnlock()

	if !exists {
		c.customMu.Lock()
		// Double-check after acquiring write lock
		if counter, exists = c.customCounters[name]; !exists {
			counter = &atomic.Uint64{}
			c.customCounters[name] = counter
		}
		c.customMu.Unlock()
	}
	counter.Add(value)
}

// GetSnapshot returns current metrics without writing to Redis.
func (c *Collector) GetSnapshot() *Snapshot {
	c.customMu.RLock()
	customCounters := make(map[string]uint64, len(c.customCounters))
	for name, counter := range c.customCounters {
		customCounters[name] = counter.Load()
	}
	c.customMu.RUnlock()

	return &Snapshot{
		ServiceName:            c.serviceName,
		StartedAt:              c.startedAt,
		LastUpdated:            time.Now().UTC(),
		Status:                 "healthy",
		AlertsBroadcast:        c.alertsBroadcast.Load(),
		EventsPublished:        c.eventsPublished.Load(),
		EventsFailed:           c.eventsFailed.Load(),
		NotificationsDelivered: c.notificationsDelivered.Load(),
		NotificationsFailed:    c.notificationsFailed.Load(),
		SendsRetried:           c.sendsRetried.Load(),
		Reconnections:          c.reconnections.Load(),
		CustomCounters:         customCounters,
	}
}

// write persists current metrics to Redis.
func (c *Collector) write(ctx context.Context) {
	if c.redis == nil {
		return
	}

	snapshot := c.GetSnapshot()
	data, err := json.Marshal(snapshot)
	if err != nil {
		slog.Error("Failed to marshal metrics", "service", c.serviceName, "error", err)
		return
	}

	key := KeyPrefix + c.serviceName
	if err := c.redis.Set(ctx, key, data, TTL).Err(); err != nil {
		slog.Error("Failed to write metrics to Redis", "service", c.serviceName, "error", err)
		return
	}

	slog.Debug("Metrics written to Redis", "service", c.serviceName, "key", key)
}

// Reader reads pipeline metrics back from Redis.
type Reader struct {
	redis *redis.Client
}

// NewReader creates a new metrics reader.
func NewReader(redisClient *redis.Client) *Reader {
	return &Reader{redis: redisClient}
}

// GetServiceMetrics retrieves the metrics snapshot for a service.
func (r *Reader) GetServiceMetrics(ctx context.Context, serviceName string) (*Snapshot, error) {
	key := KeyPrefix + serviceName
	data, err := r.redis.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, fmt.Errorf("no metrics found for service: %s", serviceName)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read metrics: %w", err)
	}

	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metrics: %w", err)
	}

	// Mark stale snapshots as unhealthy
	if time.Since(snapshot.LastUpdated) > TTL {
		snapshot.Status = "unhealthy"
	}

	return &snapshot, nil
}

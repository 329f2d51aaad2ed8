package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/enterprisehub/alertstream/internal/metrics"
)

const (
	// DefaultMaxRetries bounds retry attempts per delivery; the total
	// attempt count is DefaultMaxRetries+1.
	DefaultMaxRetries = 3
	// DefaultRetryDelayBase seeds the exponential backoff.
	DefaultRetryDelayBase = time.Second
	// DefaultRetryDelayMax caps the backoff between attempts.
	DefaultRetryDelayMax = 30 * time.Second
	// DefaultQueueSize bounds the async notification queue. A full
	// queue blocks the producer rather than dropping.
	DefaultQueueSize = 1024
	// DefaultBatchSize is how many low-priority notifications
	// accumulate before the batch flushes to the queue.
	DefaultBatchSize = 10
	// DefaultHighPriorityDelay is the small pause before sending HIGH
	// notifications, allowing bursts to micro-batch.
	DefaultHighPriorityDelay = 250 * time.Millisecond
	// DefaultRateLimit and DefaultRateWindow bound sends per channel.
	DefaultRateLimit  = 60
	DefaultRateWindow = time.Minute
	// historyLimit bounds the in-memory delivery history.
	historyLimit = 1000
)

// ServiceConfig holds notification service configuration.
type ServiceConfig struct {
	MaxRetries        int
	RetryDelayBase    time.Duration
	RetryDelayMax     time.Duration
	QueueSize         int
	BatchSize         int
	HighPriorityDelay time.Duration
	RateLimit         int
	RateWindow        time.Duration
}

func (c *ServiceConfig) applyDefaults() {
	if c.MaxRetries < 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.RetryDelayBase <= 0 {
		c.RetryDelayBase = DefaultRetryDelayBase
	}
	if c.RetryDelayMax <= 0 {
		c.RetryDelayMax = DefaultRetryDelayMax
	}
	if c.QueueSize <= 0 {
		c.QueueSize = DefaultQueueSize
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.HighPriorityDelay <= 0 {
		c.HighPriorityDelay = DefaultHighPriorityDelay
	}
	if c.RateLimit <= 0 {
		c.RateLimit = DefaultRateLimit
	}
	if c.RateWindow <= 0 {
		c.RateWindow = DefaultRateWindow
	}
}

// Service fans notifications out to registered recipients across the
// registered delivery channels.
type Service struct {
	cfg       ServiceConfig
	collector *metrics.Collector

	mu         sync.RWMutex
	registry   *ProviderRegistry
	recipients map[string]*Recipient
	limiters   map[Channel]*RateLimiter

	queue   chan *Notification
	batchMu sync.Mutex
	batch   []*Notification

	historyMu sync.Mutex
	history   []*DeliveryResult
	callbacks []func(*DeliveryResult)

	delivered atomic.Uint64
	failed    atomic.Uint64
	retried   atomic.Uint64
	skipped   atomic.Uint64

	workerRunning atomic.Bool
	cancel        context.CancelFunc
	workerDone    chan struct{}
}

// NewService creates a notification service. The collector may be nil.
func NewService(cfg ServiceConfig, collector *metrics.Collector) *Service {
	cfg.applyDefaults()
	return &Service{
		cfg:        cfg,
		collector:  collector,
		registry:   NewProviderRegistry(),
		recipients: map[string]*Recipient{},
		limiters:   map[Channel]*RateLimiter{},
		queue:      make(chan *Notification, cfg.QueueSize),
	}
}

// RegisterProvider installs a provider and creates its rate limiter.
func (s *Service) RegisterProvider(p Provider) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.registry.Register(p)
	s.limiters[p.Channel()] = NewRateLimiter(s.cfg.RateLimit, s.cfg.RateWindow)
	slog.Info("Registered notification provider", "channel", p.Channel())
}

// RegisterRecipient adds or replaces a recipient.
func (s *Service) RegisterRecipient(r *Recipient) {
	if r.RegisteredAt.IsZero() {
		r.RegisteredAt = time.Now().UTC()
	}
	s.mu.Lock()
	s.recipients[r.ID] = r
	s.mu.Unlock()
	slog.Info("Registered recipient", "recipient_id", r.ID, "name", r.Name)
}

// UnregisterRecipient removes a recipient by id.
func (s *Service) UnregisterRecipient(id string) bool {
	s.mu.Lock()
	_, ok := s.recipients[id]
	delete(s.recipients, id)
	s.mu.Unlock()
	return ok
}

// Recipients returns the current roster.
func (s *Service) Recipients() []*Recipient {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Recipient, 0, len(s.recipients))
	for _, r := range s.recipients {
		out = append(out, r)
	}
	return out
}

// targetRecipients resolves the notification's recipient ids, or the
// whole roster when none are specified.
func (s *Service) targetRecipients(n *Notification) []*Recipient {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(n.RecipientIDs) == 0 {
		out := make([]*Recipient, 0, len(s.recipients))
		for _, r := range s.recipients {
			out = append(out, r)
		}
		return out
	}
	out := make([]*Recipient, 0, len(n.RecipientIDs))
	for _, id := range n.RecipientIDs {
		if r, ok := s.recipients[id]; ok {
			out = append(out, r)
		}
	}
	return out
}

// SendNotification fans the notification out synchronously: every
// target recipient times every target channel, honoring recipient
// preferences and provider validation. Returns one result per
// attempted delivery; skipped pairs produce no result.
func (s *Service) SendNotification(ctx context.Context, n *Notification) []*DeliveryResult {
	channels := n.Channels
	if len(channels) == 0 {
		channels = []Channel{ChannelEmail, ChannelChat}
	}

	now := time.Now().UTC()
	var results []*DeliveryResult
	for _, r := range s.targetRecipients(n) {
		if !r.Active || !r.AcceptsAlertType(n.AlertType) {
			s.skipped.Add(1)
			continue
		}
		if n.Priority != PriorityCritical && r.Preferences.QuietHours.Contains(now) {
			s.skipped.Add(1)
			slog.Debug("Suppressed by quiet hours", "recipient_id", r.ID, "notification_id", n.ID)
			continue
		}

		for _, ch := range channels {
			if !r.AcceptsChannel(ch) {
				s.skipped.Add(1)
				continue
			}

			s.mu.RLock()
			p, ok := s.registry.Get(ch)
			limiter := s.limiters[ch]
			s.mu.RUnlock()
			if !ok {
				slog.Warn("No provider registered for channel", "channel", ch)
				continue
			}
			if !p.ValidateRecipient(r) {
				s.skipped.Add(1)
				slog.Debug("Recipient missing contact field for channel",
					"recipient_id", r.ID,
					"channel", ch,
				)
				continue
			}

			result := s.sendWithRetry(ctx, p, limiter, n, r)
			s.record(result)
			results = append(results, result)
		}
	}
	return results
}

// sendWithRetry attempts one delivery up to MaxRetries+1 times with
// capped exponential backoff. Rate-limited attempts fail immediately
// without consuming retries.
func (s *Service) sendWithRetry(ctx context.Context, p Provider, limiter *RateLimiter, n *Notification, r *Recipient) *DeliveryResult {
	result := &DeliveryResult{
		NotificationID: n.ID,
		RecipientID:    r.ID,
		Channel:        p.Channel(),
		Status:         StatusSending,
		Timestamp:      time.Now().UTC(),
	}

	for attempt := 0; attempt <= s.cfg.MaxRetries; attempt++ {
		result.RetryCount = attempt

		if limiter != nil && !limiter.Allow() {
			result.Status = StatusFailed
			result.Error = ErrRateLimited.Error()
			s.failed.Add(1)
			if s.collector != nil {
				s.collector.RecordDeliveryFailed()
			}
			return result
		}

		err := p.Send(ctx, n, r)
		if err == nil {
			result.Status = StatusDelivered
			result.Timestamp = time.Now().UTC()
			s.delivered.Add(1)
			if s.collector != nil {
				s.collector.RecordDelivered()
			}
			return result
		}

		result.Error = err.Error()
		if errors.Is(err, ErrRateLimited) {
			break
		}

		if attempt < s.cfg.MaxRetries {
			result.Status = StatusRetrying
			s.retried.Add(1)
			if s.collector != nil {
				s.collector.RecordRetry()
			}
			backoff := s.cfg.RetryDelayBase << attempt
			if backoff > s.cfg.RetryDelayMax {
				backoff = s.cfg.RetryDelayMax
			}
			slog.Warn("Delivery failed, retrying",
				"notification_id", n.ID,
				"recipient_id", r.ID,
				"channel", p.Channel(),
				"attempt", attempt+1,
				"backoff", backoff,
				"error", err,
			)
			select {
			case <-ctx.Done():
				result.Status = StatusFailed
				result.Error = ctx.Err().Error()
				s.failed.Add(1)
				return result
			case <-time.After(backoff):
			}
		}
	}

	result.Status = StatusFailed
	s.failed.Add(1)
	if s.collector != nil {
		s.collector.RecordDeliveryFailed()
	}
	slog.Error("Delivery failed permanently",
		"notification_id", n.ID,
		"recipient_id", r.ID,
		"channel", p.Channel(),
		"retries", result.RetryCount,
		"error", result.Error,
	)
	return result
}

func (s *Service) record(result *DeliveryResult) {
	s.historyMu.Lock()
	s.history = append(s.history, result)
	if len(s.history) > historyLimit {
		s.history = s.history[len(s.history)-historyLimit:]
	}
	callbacks := s.callbacks
	s.historyMu.Unlock()

	for _, cb := range callbacks {
		cb(result)
	}
}

// OnDelivery registers a callback invoked for every recorded result.
func (s *Service) OnDelivery(cb func(*DeliveryResult)) {
	s.historyMu.Lock()
	s.callbacks = append(s.callbacks, cb)
	s.historyMu.Unlock()
}

// History returns the most recent delivery results, oldest first.
func (s *Service) History(limit int) []*DeliveryResult {
	s.historyMu.Lock()
	defer s.historyMu.Unlock()
	if limit <= 0 || limit > len(s.history) {
		limit = len(s.history)
	}
	out := make([]*DeliveryResult, limit)
	copy(out, s.history[len(s.history)-limit:])
	return out
}

// QueueNotification hands the notification to the async worker.
// CRITICAL/HIGH/MEDIUM go straight to the queue; LOW accumulates in a
// batch that flushes atomically once it reaches BatchSize. A full
// queue blocks the producer.
func (s *Service) QueueNotification(n *Notification) {
	if n.Priority == PriorityLow {
		s.batchMu.Lock()
		s.batch = append(s.batch, n)
		if len(s.batch) < s.cfg.BatchSize {
			s.batchMu.Unlock()
			return
		}
		flush := s.batch
		s.batch = nil
		s.batchMu.Unlock()

		for _, b := range flush {
			s.queue <- b
		}
		slog.Debug("Flushed low-priority batch", "count", len(flush))
		return
	}
	s.queue <- n
}

// QueueDepth returns the number of notifications waiting in the queue.
func (s *Service) QueueDepth() int { return len(s.queue) }

// PendingBatch returns the current low-priority batch size.
func (s *Service) PendingBatch() int {
	s.batchMu.Lock()
	defer s.batchMu.Unlock()
	return len(s.batch)
}

// StartWorker launches the single background consumer.
func (s *Service) StartWorker(ctx context.Context) {
	if !s.workerRunning.CompareAndSwap(false, true) {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.workerDone = make(chan struct{})
	go s.workerLoop(ctx)
	slog.Info("Notification worker started")
}

func (s *Service) workerLoop(ctx context.Context) {
	defer close(s.workerDone)
	for {
		select {
		case <-ctx.Done():
			return
		case n := <-s.queue:
			// HIGH waits briefly so a burst of related alerts can
			// micro-batch; CRITICAL goes out immediately.
			if n.Priority == PriorityHigh {
				select {
				case <-ctx.Done():
					return
				case <-time.After(s.cfg.HighPriorityDelay):
				}
			}
			s.SendNotification(ctx, n)
		}
	}
}

// StopWorker flushes any pending low-priority batch into the queue,
// then stops the consumer.
func (s *Service) StopWorker() {
	s.batchMu.Lock()
	flush := s.batch
	s.batch = nil
	s.batchMu.Unlock()
	for _, n := range flush {
		select {
		case s.queue <- n:
		default:
			slog.Warn("Queue full during shutdown, dropping batched notification", "notification_id", n.ID)
		}
	}

	if !s.workerRunning.CompareAndSwap(true, false) {
		return
	}
	s.cancel()
	<-s.workerDone
	slog.Info("Notification worker stopped", "queued_remaining", len(s.queue))
}

// Stats returns service counters for external monitoring.
func (s *Service) Stats() map[string]any {
	s.mu.RLock()
	channels := s.registry.List()
	recipients := len(s.recipients)
	s.mu.RUnlock()

	s.historyMu.Lock()
	historySize := len(s.history)
	s.historyMu.Unlock()

	return map[string]any{
		"delivered":     s.delivered.Load(),
		"failed":        s.failed.Load(),
		"retried":       s.retried.Load(),
		"skipped":       s.skipped.Load(),
		"queue_depth":   len(s.queue),
		"pending_batch": s.PendingBatch(),
		"recipients":    recipients,
		"channels":      channels,
		"history_size":  historySize,
	}
}

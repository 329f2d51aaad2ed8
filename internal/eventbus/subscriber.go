package eventbus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/enterprisehub/alertstream/internal/alert"
)

const (
	// DefaultReconnectDelay seeds the subscriber's backoff sequence.
	DefaultReconnectDelay = time.Second
	// MaxReconnectDelay caps the subscriber's backoff between attempts.
	MaxReconnectDelay = 30 * time.Second
)

// Handler processes one decoded event. Handlers run sequentially on the
// listener goroutine; a slow handler delays subsequent events.
type Handler func(ctx context.Context, e *alert.Event) error

// SubscriberConfig holds subscriber configuration.
type SubscriberConfig struct {
	RedisAddr      string
	ChannelPrefix  string
	ReconnectDelay time.Duration
	MaxReconnect   time.Duration
}

// Subscriber consumes events from Redis pub/sub channels and dispatches
// them to registered handlers. Unlike the publisher there is no fallback
// mode: a subscriber that cannot connect reports the error so the caller
// can decide whether to run without live events.
type Subscriber struct {
	cfg SubscriberConfig

	client *redis.Client
	pubsub *redis.PubSub

	mu       sync.Mutex
	handlers map[string][]Handler // channel name -> handlers
	channels []string             // subscription order preserved for resubscribe

	running atomic.Bool
	cancel  context.CancelFunc
	done    chan struct{}

	// resub rebuilds the subscription after a stream error. Tests
	// swap it out to exercise the reconnect loop without a broker.
	resub func(ctx context.Context) error

	eventsReceived  atomic.Uint64
	eventsProcessed atomic.Uint64
	handlerErrors   atomic.Uint64
	decodeErrors    atomic.Uint64
	reconnections   atomic.Uint64
}

// NewSubscriber creates a subscriber. Call Connect before Subscribe.
func NewSubscriber(cfg SubscriberConfig) *Subscriber {
	if cfg.ChannelPrefix == "" {
		cfg.ChannelPrefix = DefaultChannelPrefix
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = DefaultReconnectDelay
	}
	if cfg.MaxReconnect <= 0 {
		cfg.MaxReconnect = MaxReconnectDelay
	}
	s := &Subscriber{
		cfg:      cfg,
		handlers: map[string][]Handler{},
	}
	s.resub = s.resubscribe
	return s
}

// Connect establishes the transport connection. Connection failures are
// returned to the caller; the subscriber never silently degrades.
func (s *Subscriber) Connect(ctx context.Context) error {
	client := redis.NewClient(&redis.Options{Addr: s.cfg.RedisAddr})
	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("event subscriber connect %s: %w", s.cfg.RedisAddr, err)
	}
	s.client = client
	return nil
}

// Subscribe registers the handler for the channels derived from the
// given event types and subscribes to them on the transport.
func (s *Subscriber) Subscribe(ctx context.Context, eventTypes []alert.Type, handler Handler) error {
	channels := make([]string, 0, len(eventTypes))
	for _, t := range eventTypes {
		channels = append(channels, alert.ChannelFor(t, s.cfg.ChannelPrefix))
	}
	return s.subscribeChannels(ctx, channels, handler)
}

// SubscribeAll registers the handler on the catch-all channel, which
// receives every published event regardless of type.
func (s *Subscriber) SubscribeAll(ctx context.Context, handler Handler) error {
	return s.subscribeChannels(ctx, []string{s.cfg.ChannelPrefix + ":" + alert.ChannelAll}, handler)
}

func (s *Subscriber) subscribeChannels(ctx context.Context, channels []string, handler Handler) error {
	if s.client == nil {
		return fmt.Errorf("event subscriber not connected")
	}

	s.mu.Lock()
	var fresh []string
	for _, ch := range channels {
		if _, ok := s.handlers[ch]; !ok {
			fresh = append(fresh, ch)
			s.channels = append(s.channels, ch)
		}
		s.handlers[ch] = append(s.handlers[ch], handler)
	}
	if s.pubsub == nil {
		s.pubsub = s.client.Subscribe(ctx, fresh...)
		fresh = nil
	}
	pubsub := s.pubsub
	s.mu.Unlock()

	if len(fresh) > 0 {
		if err := pubsub.Subscribe(ctx, fresh...); err != nil {
			return fmt.Errorf("subscribe %v: %w", fresh, err)
		}
	}
	slog.Info("Subscribed to channels", "channels", channels)
	return nil
}

// StartListening launches the listener goroutine. It is a no-op if the
// listener is already running.
func (s *Subscriber) StartListening(ctx context.Context) error {
	if s.pubsub == nil {
		return fmt.Errorf("event subscriber has no subscriptions")
	}
	if !s.running.CompareAndSwap(false, true) {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.listen(ctx)
	return nil
}

// StopListening stops the listener goroutine and waits for it to exit.
func (s *Subscriber) StopListening() {
	if !s.running.CompareAndSwap(true, false) {
		return
	}
	s.cancel()
	<-s.done
	if s.pubsub != nil {
		_ = s.pubsub.Close()
	}
	slog.Info("Event subscriber stopped",
		"events_received", s.eventsReceived.Load(),
		"events_processed", s.eventsProcessed.Load(),
	)
}

func (s *Subscriber) listen(ctx context.Context) {
	defer close(s.done)

	delay := s.cfg.ReconnectDelay
	for {
		msg, err := s.pubsub.ReceiveMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Warn("Event stream interrupted, reconnecting",
				"delay", delay,
				"error", err,
			)
			delay = s.reconnect(ctx, delay)
			continue
		}

		// A delivered message means the connection is healthy again.
		if delay != s.cfg.ReconnectDelay {
			delay = s.cfg.ReconnectDelay
		}
		s.handleMessage(ctx, msg.Channel, []byte(msg.Payload))
	}
}

// reconnect waits out the current backoff, attempts to rebuild the
// subscription, and returns the delay for the next attempt. Rebuilding
// successfully restarts the backoff sequence; a quiet channel must not
// inherit a stale doubled delay.
func (s *Subscriber) reconnect(ctx context.Context, delay time.Duration) time.Duration {
	select {
	case <-ctx.Done():
		return delay
	case <-time.After(delay):
	}
	if err := s.resub(ctx); err != nil {
		slog.Warn("Resubscribe failed", "error", err)
		return nextReconnectDelay(delay, s.cfg.MaxReconnect)
	}
	return s.cfg.ReconnectDelay
}

// nextReconnectDelay doubles the delay up to the cap.
func nextReconnectDelay(current, max time.Duration) time.Duration {
	next := current * 2
	if next > max {
		return max
	}
	return next
}

// resubscribe tears down the pub/sub handle and re-registers every
// channel on a fresh one.
func (s *Subscriber) resubscribe(ctx context.Context) error {
	s.mu.Lock()
	channels := make([]string, len(s.channels))
	copy(channels, s.channels)
	old := s.pubsub
	s.mu.Unlock()

	if old != nil {
		_ = old.Close()
	}
	pubsub := s.client.Subscribe(ctx, channels...)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return err
	}

	s.mu.Lock()
	s.pubsub = pubsub
	s.mu.Unlock()
	s.reconnections.Add(1)
	slog.Info("Event subscriber reconnected", "channels", channels)
	return nil
}

// handleMessage decodes one raw message and dispatches it to the
// handlers registered for its channel. Malformed messages are counted
// and dropped; handler errors and panics never stop the listener.
func (s *Subscriber) handleMessage(ctx context.Context, channel string, payload []byte) {
	s.eventsReceived.Add(1)

	e, err := alert.UnmarshalEvent(payload)
	if err != nil {
		s.decodeErrors.Add(1)
		slog.Warn("Dropping undecodable event", "channel", channel, "error", err)
		return
	}

	s.mu.Lock()
	handlers := make([]Handler, len(s.handlers[channel]))
	copy(handlers, s.handlers[channel])
	s.mu.Unlock()

	for _, h := range handlers {
		s.invoke(ctx, h, e)
	}
	s.eventsProcessed.Add(1)
}

func (s *Subscriber) invoke(ctx context.Context, h Handler, e *alert.Event) {
	defer func() {
		if r := recover(); r != nil {
			s.handlerErrors.Add(1)
			slog.Error("Event handler panicked", "event_id", e.EventID, "panic", r)
		}
	}()
	if err := h(ctx, e); err != nil {
		s.handlerErrors.Add(1)
		slog.Warn("Event handler failed",
			"event_id", e.EventID,
			"event_type", e.Type,
			"error", err,
		)
	}
}

// Running reports whether the listener goroutine is active.
func (s *Subscriber) Running() bool { return s.running.Load() }

// Metrics returns subscriber counters for external monitoring.
func (s *Subscriber) Metrics() map[string]any {
	return map[string]any{
		"events_received":  s.eventsReceived.Load(),
		"events_processed": s.eventsProcessed.Load(),
		"handler_errors":   s.handlerErrors.Load(),
		"decode_errors":    s.decodeErrors.Load(),
		"reconnections":    s.reconnections.Load(),
		"running":          s.running.Load(),
	}
}

package eventbus

import (
	"context"
	"time"
)

// Bus bundles a publisher and a subscriber sharing one channel prefix,
// for components that both emit and consume events.
type Bus struct {
	ServiceName string
	Publisher   *Publisher
	Subscriber  *Subscriber
}

// Config holds shared bus configuration.
type Config struct {
	ServiceName    string
	RedisAddr      string
	ChannelPrefix  string
	RetryAttempts  int
	RetryDelay     time.Duration
	ReconnectDelay time.Duration
	MaxReconnect   time.Duration
}

// NewBus builds a bus from a single shared configuration.
func NewBus(cfg Config) *Bus {
	return &Bus{
		ServiceName: cfg.ServiceName,
		Publisher: NewPublisher(PublisherConfig{
			RedisAddr:     cfg.RedisAddr,
			ChannelPrefix: cfg.ChannelPrefix,
			Source:        cfg.ServiceName,
			RetryAttempts: cfg.RetryAttempts,
			RetryDelay:    cfg.RetryDelay,
		}),
		Subscriber: NewSubscriber(SubscriberConfig{
			RedisAddr:      cfg.RedisAddr,
			ChannelPrefix:  cfg.ChannelPrefix,
			ReconnectDelay: cfg.ReconnectDelay,
			MaxReconnect:   cfg.MaxReconnect,
		}),
	}
}

// Start connects both sides and begins listening. The publisher's
// connection failure is tolerated (fallback mode); the subscriber's is
// not and aborts startup.
func (b *Bus) Start(ctx context.Context) error {
	b.Publisher.Connect(ctx)
	if err := b.Subscriber.Connect(ctx); err != nil {
		return err
	}
	return nil
}

// Stop shuts down the subscriber's listener if it is running.
func (b *Bus) Stop() {
	b.Subscriber.StopListening()
}

// Metrics merges publisher and subscriber counters.
func (b *Bus) Metrics() map[string]any {
	m := map[string]any{"service": b.ServiceName}
	for k, v := range b.Publisher.Metrics() {
		m["publisher_"+k] = v
	}
	for k, v := range b.Subscriber.Metrics() {
		m["subscriber_"+k] = v
	}
	return m
}

package eventbus

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/enterprisehub/alertstream/internal/alert"
)

func TestNextReconnectDelay(t *testing.T) {
	max := 30 * time.Second
	want := []time.Duration{
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		30 * time.Second,
		30 * time.Second,
	}

	delay := time.Second
	for i, w := range want {
		delay = nextReconnectDelay(delay, max)
		if delay != w {
			t.Errorf("step %d: delay = %v, want %v", i, delay, w)
		}
	}
}

func TestSubscriber_ReconnectDelayResetsAfterResubscribe(t *testing.T) {
	s := NewSubscriber(SubscriberConfig{
		ReconnectDelay: time.Millisecond,
		MaxReconnect:   8 * time.Millisecond,
	})

	failures := 2
	s.resub = func(ctx context.Context) error {
		if failures > 0 {
			failures--
			return errors.New("broker still down")
		}
		return nil
	}

	ctx := context.Background()
	delay := s.reconnect(ctx, s.cfg.ReconnectDelay)
	if delay != 2*time.Millisecond {
		t.Errorf("delay after first failure = %v, want 2ms", delay)
	}
	delay = s.reconnect(ctx, delay)
	if delay != 4*time.Millisecond {
		t.Errorf("delay after second failure = %v, want 4ms", delay)
	}

	// The third attempt rebuilds the subscription; the next transient
	// error must start from the seed delay again, even if no message
	// arrives in between.
	delay = s.reconnect(ctx, delay)
	if delay != s.cfg.ReconnectDelay {
		t.Errorf("delay after successful resubscribe = %v, want %v", delay, s.cfg.ReconnectDelay)
	}
}

func TestSubscriber_HandleMessageDispatch(t *testing.T) {
	s := NewSubscriber(SubscriberConfig{ChannelPrefix: "compliance"})

	var got []*alert.Event
	s.handlers["compliance:violations"] = []Handler{
		func(ctx context.Context, e *alert.Event) error {
			got = append(got, e)
			return nil
		},
	}

	e := alert.NewEvent(alert.TypeViolationDetected, "test")
	data, err := e.Marshal()
	if err != nil {
		t.Fatal(err)
	}
	s.handleMessage(context.Background(), "compliance:violations", data)

	if len(got) != 1 {
		t.Fatalf("handler invoked %d times, want 1", len(got))
	}
	if got[0].EventID != e.EventID {
		t.Errorf("handler saw event %q, want %q", got[0].EventID, e.EventID)
	}
	if s.eventsProcessed.Load() != 1 {
		t.Errorf("events_processed = %d, want 1", s.eventsProcessed.Load())
	}
}

func TestSubscriber_HandleMessageDropsUndecodable(t *testing.T) {
	s := NewSubscriber(SubscriberConfig{})

	called := false
	s.handlers["compliance:all"] = []Handler{
		func(ctx context.Context, e *alert.Event) error {
			called = true
			return nil
		},
	}

	s.handleMessage(context.Background(), "compliance:all", []byte("not json"))

	if called {
		t.Error("handler invoked for undecodable message")
	}
	if s.decodeErrors.Load() != 1 {
		t.Errorf("decode_errors = %d, want 1", s.decodeErrors.Load())
	}
}

func TestSubscriber_HandlerFailuresIsolated(t *testing.T) {
	s := NewSubscriber(SubscriberConfig{})

	var order []string
	s.handlers["compliance:scores"] = []Handler{
		func(ctx context.Context, e *alert.Event) error {
			order = append(order, "panics")
			panic("handler bug")
		},
		func(ctx context.Context, e *alert.Event) error {
			order = append(order, "errors")
			return errors.New("downstream unavailable")
		},
		func(ctx context.Context, e *alert.Event) error {
			order = append(order, "succeeds")
			return nil
		},
	}

	e := alert.NewEvent(alert.TypeScoreChanged, "test")
	data, _ := e.Marshal()
	s.handleMessage(context.Background(), "compliance:scores", data)

	if len(order) != 3 {
		t.Fatalf("invoked %v, want all three handlers", order)
	}
	if s.handlerErrors.Load() != 2 {
		t.Errorf("handler_errors = %d, want 2", s.handlerErrors.Load())
	}
	if s.eventsProcessed.Load() != 1 {
		t.Errorf("events_processed = %d, want 1", s.eventsProcessed.Load())
	}
}

func TestSubscriber_SubscribeRequiresConnection(t *testing.T) {
	s := NewSubscriber(SubscriberConfig{})
	err := s.Subscribe(context.Background(), []alert.Type{alert.TypeViolationDetected}, func(ctx context.Context, e *alert.Event) error { return nil })
	if err == nil {
		t.Error("Subscribe() before Connect() returned nil error")
	}
}

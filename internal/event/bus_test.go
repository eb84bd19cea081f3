package event

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/carbonloop/edgesentry/pkg/plugin"
	"go.uber.org/zap"
)

func testEvent(topic string, payload any) plugin.Event {
	return plugin.Event{
		Topic:     topic,
		Source:    "test",
		Timestamp: time.Now(),
		Payload:   payload,
	}
}

func TestPublish_DeliversToTopicSubscribers(t *testing.T) {
	bus := NewBus(zap.NewNop())

	var got []any
	bus.Subscribe("engine.anomaly.detected", func(_ context.Context, e plugin.Event) {
		got = append(got, e.Payload)
	})
	bus.Subscribe("engine.summary.transmitted", func(_ context.Context, e plugin.Event) {
		t.Errorf("unexpected delivery to other topic: %v", e.Topic)
	})

	if err := bus.Publish(context.Background(), testEvent("engine.anomaly.detected", 42)); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if len(got) != 1 || got[0] != 42 {
		t.Errorf("got %v, want [42]", got)
	}
}

func TestSubscribeAll_SeesEveryTopic(t *testing.T) {
	bus := NewBus(zap.NewNop())

	var topics []string
	bus.SubscribeAll(func(_ context.Context, e plugin.Event) {
		topics = append(topics, e.Topic)
	})

	bus.Publish(context.Background(), testEvent("a", nil))
	bus.Publish(context.Background(), testEvent("b", nil))

	if len(topics) != 2 || topics[0] != "a" || topics[1] != "b" {
		t.Errorf("topics = %v, want [a b]", topics)
	}
}

func TestUnsubscribe_StopsDelivery(t *testing.T) {
	bus := NewBus(zap.NewNop())

	calls := 0
	unsub := bus.Subscribe("t", func(_ context.Context, _ plugin.Event) { calls++ })

	bus.Publish(context.Background(), testEvent("t", nil))
	unsub()
	bus.Publish(context.Background(), testEvent("t", nil))

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestPublish_PanickingHandlerIsolated(t *testing.T) {
	bus := NewBus(zap.NewNop())

	bus.Subscribe("t", func(_ context.Context, _ plugin.Event) { panic("boom") })
	delivered := false
	bus.Subscribe("t", func(_ context.Context, _ plugin.Event) { delivered = true })

	if err := bus.Publish(context.Background(), testEvent("t", nil)); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if !delivered {
		t.Error("second handler not called after first panicked")
	}
}

func TestPublishAsync_DeliversConcurrently(t *testing.T) {
	bus := NewBus(zap.NewNop())

	var wg sync.WaitGroup
	wg.Add(2)
	bus.Subscribe("t", func(_ context.Context, _ plugin.Event) { wg.Done() })
	bus.Subscribe("t", func(_ context.Context, _ plugin.Event) { wg.Done() })

	bus.PublishAsync(context.Background(), testEvent("t", nil))

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("async handlers not invoked within deadline")
	}
}

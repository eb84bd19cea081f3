package sensor

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/carbonloop/edgesentry/pkg/models"
	"github.com/carbonloop/edgesentry/pkg/plugin"
)

// recordingBus captures published events for assertions.
type recordingBus struct {
	mu     sync.Mutex
	events []plugin.Event
}

func (b *recordingBus) Publish(_ context.Context, event plugin.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
	return nil
}

func (b *recordingBus) PublishAsync(ctx context.Context, event plugin.Event) {
	_ = b.Publish(ctx, event)
}

func (b *recordingBus) Subscribe(string, plugin.EventHandler) func() { return func() {} }
func (b *recordingBus) SubscribeAll(plugin.EventHandler) func()      { return func() {} }

func (b *recordingBus) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}

func TestSimulator_ProducesValidReadings(t *testing.T) {
	sim := NewSimulator("co2-001", DefaultConfig(), 1)

	now := time.Date(2026, 3, 14, 14, 0, 0, 0, time.UTC)
	for i := 0; i < 500; i++ {
		r := sim.Next(now.Add(time.Duration(i) * 30 * time.Second))

		if r.SensorID != "co2-001" {
			t.Fatalf("SensorID = %q", r.SensorID)
		}
		if r.CO2PPM < 0 {
			t.Fatalf("reading %d: CO2PPM = %v, want non-negative", i, r.CO2PPM)
		}
		if r.BatteryLevel < 0 || r.BatteryLevel > 100 {
			t.Fatalf("reading %d: BatteryLevel = %v", i, r.BatteryLevel)
		}
		if r.SignalStrength >= 0 {
			t.Fatalf("reading %d: SignalStrength = %d, want negative dBm", i, r.SignalStrength)
		}
	}
}

func TestSimulator_BatteryDrains(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BatteryDrainPerReading = 1
	sim := NewSimulator("co2-001", cfg, 1)

	now := time.Now()
	for i := 0; i < 30; i++ {
		sim.Next(now)
	}
	if got := sim.Battery(); got != 70 {
		t.Errorf("Battery() = %v, want 70 after 30 readings", got)
	}

	for i := 0; i < 200; i++ {
		sim.Next(now)
	}
	if got := sim.Battery(); got != 0 {
		t.Errorf("Battery() = %v, want floor at 0", got)
	}
}

func TestSimulator_SeedsDiffer(t *testing.T) {
	cfg := DefaultConfig()
	now := time.Now()

	a := NewSimulator("co2-001", cfg, seedFor("co2-001")).Next(now)
	b := NewSimulator("co2-002", cfg, seedFor("co2-002")).Next(now)
	if a.CO2PPM == b.CO2PPM {
		t.Error("different sensors produced identical first readings")
	}

	// Same sensor, same seed: deterministic replay.
	c := NewSimulator("co2-001", cfg, seedFor("co2-001")).Next(now)
	if a.CO2PPM != c.CO2PPM {
		t.Error("same seed produced different readings")
	}
}

func TestPacer_BoostAndRevert(t *testing.T) {
	p := newPacer(time.Hour, 4)

	// The first token is available immediately; the second would take an
	// hour at base rate.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := p.Wait(ctx); err != nil {
		t.Fatalf("first Wait: %v", err)
	}
	if err := p.Wait(ctx); err == nil {
		t.Fatal("second Wait returned before the base interval elapsed")
	}

	p.Boost(time.Minute)
	// Boosted rate is 4x, still 15 minutes per token, so this only
	// verifies the limiter survives SetLimit without panicking.
	ctx2, cancel2 := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel2()
	_ = p.Wait(ctx2)
}

func TestModule_PublishesReadings(t *testing.T) {
	bus := &recordingBus{}
	m := New()
	deps := plugin.Dependencies{Logger: zap.NewNop(), Bus: bus}
	if err := m.Init(context.Background(), deps); err != nil {
		t.Fatalf("Init: %v", err)
	}
	m.cfg.Interval = 5 * time.Millisecond
	m.cfg.SensorIDs = []string{"co2-001", "co2-002"}

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for bus.count() < 4 {
		select {
		case <-deadline:
			t.Fatalf("only %d events published", bus.count())
		case <-time.After(5 * time.Millisecond):
		}
	}
	if err := m.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	bus.mu.Lock()
	defer bus.mu.Unlock()
	seen := make(map[string]bool)
	for _, ev := range bus.events {
		if ev.Topic != TopicReadingCollected {
			t.Fatalf("topic = %q", ev.Topic)
		}
		r, ok := ev.Payload.(models.SensorReading)
		if !ok {
			t.Fatalf("payload type %T", ev.Payload)
		}
		seen[r.SensorID] = true
	}
	if !seen["co2-001"] || !seen["co2-002"] {
		t.Errorf("sensors seen = %v, want both", seen)
	}
}

func TestModule_ReadingsStayOrderedPerSensor(t *testing.T) {
	bus := &recordingBus{}
	m := New()
	if err := m.Init(context.Background(), plugin.Dependencies{Logger: zap.NewNop(), Bus: bus}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	m.cfg.Interval = time.Millisecond
	m.cfg.SensorIDs = []string{"co2-001"}

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	deadline := time.After(2 * time.Second)
	for bus.count() < 20 {
		select {
		case <-deadline:
			t.Fatalf("only %d events published", bus.count())
		case <-time.After(time.Millisecond):
		}
	}
	if err := m.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	bus.mu.Lock()
	defer bus.mu.Unlock()
	var prev time.Time
	for i, ev := range bus.events {
		r := ev.Payload.(models.SensorReading)
		if r.Timestamp.Before(prev) {
			t.Fatalf("event %d arrived out of order: %v before %v", i, r.Timestamp, prev)
		}
		prev = r.Timestamp
	}
}

func TestModule_BoostUnknownSensor(t *testing.T) {
	m := New()
	if err := m.Init(context.Background(), plugin.Dependencies{Logger: zap.NewNop(), Bus: &recordingBus{}}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	m.BoostSampling("co2-404", time.Minute) // must not panic
}

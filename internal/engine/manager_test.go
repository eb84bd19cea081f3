package engine

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/carbonloop/edgesentry/pkg/models"
)

// slowCache stalls selected writes so tests can back up the pipeline.
type slowCache struct {
	*fakeCache
	readDelay    time.Duration
	summaryDelay time.Duration
}

func (c *slowCache) AppendReading(ctx context.Context, r models.SensorReading) error {
	time.Sleep(c.readDelay)
	return c.fakeCache.AppendReading(ctx, r)
}

func (c *slowCache) AppendSummary(ctx context.Context, s models.WindowSummary, transmitted bool) error {
	time.Sleep(c.summaryDelay)
	return c.fakeCache.AppendSummary(ctx, s, transmitted)
}

func newTestManager(pub Publisher, cache Cache) *Manager {
	cfg := DefaultConfig()
	esc := NewEscalator(cfg, zap.NewNop())
	esc.SetPublisher(pub)
	esc.SetCache(cache)

	m := NewManager(cfg, zap.NewNop(), esc)
	m.SetPublisher(pub)
	m.SetCache(cache)
	return m
}

func TestManager_ProcessesPerSensor(t *testing.T) {
	cache := newFakeCache()
	m := newTestManager(&fakePublisher{}, cache)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		a := steadyReading(i, 420)
		b := steadyReading(i, 430)
		b.SensorID = "co2-002"
		if !m.Submit(ctx, a) || !m.Submit(ctx, b) {
			t.Fatalf("Submit refused at reading %d", i)
		}
	}
	m.Stop()

	stats := m.Report()
	if len(stats) != 2 {
		t.Fatalf("Report() sensors = %d, want 2", len(stats))
	}
	// Sorted by sensor ID.
	if stats[0].SensorID != "co2-001" || stats[1].SensorID != "co2-002" {
		t.Errorf("Report() order = %q, %q", stats[0].SensorID, stats[1].SensorID)
	}
	for _, s := range stats {
		if s.TotalReadings != 10 {
			t.Errorf("%s: TotalReadings = %d, want 10", s.SensorID, s.TotalReadings)
		}
		if s.ProcessedWindows != 1 {
			t.Errorf("%s: ProcessedWindows = %d, want 1", s.SensorID, s.ProcessedWindows)
		}
	}
	if len(cache.readings) != 20 {
		t.Errorf("cached readings = %d, want 20", len(cache.readings))
	}
}

func TestManager_StopDrainsQueuedReadings(t *testing.T) {
	m := newTestManager(&fakePublisher{}, newFakeCache())
	ctx := context.Background()

	for i := 0; i < 40; i++ {
		if !m.Submit(ctx, steadyReading(i, 420)) {
			t.Fatalf("Submit refused at reading %d", i)
		}
	}
	m.Stop()

	// Every accepted reading must be processed before Stop returns.
	stats := m.Report()
	if len(stats) != 1 || stats[0].TotalReadings != 40 {
		t.Fatalf("Report() = %+v, want 40 drained readings", stats)
	}
}

func TestManager_SubmitAfterStop(t *testing.T) {
	m := newTestManager(&fakePublisher{}, newFakeCache())
	m.Stop()

	if m.Submit(context.Background(), steadyReading(0, 420)) {
		t.Error("Submit accepted a reading after Stop")
	}
}

func TestManager_StopIdempotent(t *testing.T) {
	m := newTestManager(&fakePublisher{}, newFakeCache())
	m.Submit(context.Background(), steadyReading(0, 420))
	m.Stop()
	m.Stop()
}

func TestManager_StopDuringBlockedSubmit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.IngestBuffer = 1
	m := NewManager(cfg, zap.NewNop(), NewEscalator(cfg, zap.NewNop()))
	m.SetCache(&slowCache{fakeCache: newFakeCache(), readDelay: 20 * time.Millisecond})
	ctx := context.Background()

	// The first reading occupies the worker, the second fills the buffer.
	if !m.Submit(ctx, steadyReading(0, 420)) || !m.Submit(ctx, steadyReading(1, 420)) {
		t.Fatal("warm-up submissions refused")
	}

	accepted := make(chan bool)
	go func() {
		accepted <- m.Submit(ctx, steadyReading(2, 420))
	}()

	// Stop must let the blocked sender clear instead of closing under it.
	time.Sleep(10 * time.Millisecond)
	m.Stop()

	want := int64(2)
	if <-accepted {
		want = 3
	}
	stats := m.Report()
	if len(stats) != 1 || stats[0].TotalReadings != want {
		t.Errorf("Report() = %+v, want %d drained readings", stats, want)
	}
}

func TestManager_SubmitHonorsContext(t *testing.T) {
	cfg := DefaultConfig()
	cfg.IngestBuffer = 1
	m := NewManager(cfg, zap.NewNop(), NewEscalator(cfg, zap.NewNop()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// A cancelled context must not block even if the pipeline is backed up.
	for i := 0; i < 100; i++ {
		if !m.Submit(ctx, steadyReading(i, 420)) {
			m.Stop()
			return
		}
	}
	m.Stop()
	t.Log("pipeline kept up with all submissions")
}

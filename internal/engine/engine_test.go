package engine

import (
	"context"
	"math"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/carbonloop/edgesentry/pkg/models"
)

func newTestEngine(pub Publisher, cache Cache) *Engine {
	cfg := DefaultConfig()
	esc := NewEscalator(cfg, zap.NewNop())
	esc.SetPublisher(pub)
	esc.SetCache(cache)

	eng := NewEngine("co2-001", cfg, zap.NewNop(),
		NewClassifier(cfg), NewTransmissionPolicy(cfg), esc)
	eng.SetPublisher(pub)
	eng.SetCache(cache)
	return eng
}

func TestIngest_RejectsUnusableReadings(t *testing.T) {
	eng := newTestEngine(&fakePublisher{}, newFakeCache())
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(*models.SensorReading)
	}{
		{"missing sensor id", func(r *models.SensorReading) { r.SensorID = "" }},
		{"negative co2", func(r *models.SensorReading) { r.CO2PPM = -5 }},
		{"nan co2", func(r *models.SensorReading) { r.CO2PPM = math.NaN() }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := steadyReading(0, 420)
			tt.mutate(&r)
			if got := eng.Ingest(ctx, r); got != models.OutcomeRejected {
				t.Errorf("Ingest() = %v, want rejected", got)
			}
		})
	}

	stats := eng.Report()
	if stats.IngestionErrors != int64(len(tests)) {
		t.Errorf("IngestionErrors = %d, want %d", stats.IngestionErrors, len(tests))
	}
	if stats.TotalReadings != 0 {
		t.Errorf("TotalReadings = %d, want rejected readings excluded", stats.TotalReadings)
	}
}

func TestIngest_LatencyCoversDispatch(t *testing.T) {
	cache := &slowCache{fakeCache: newFakeCache(), summaryDelay: 20 * time.Millisecond}
	eng := newTestEngine(&fakePublisher{}, cache)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		eng.Ingest(ctx, steadyReading(i, 420))
	}

	// One window, withheld: the summary write stalls 20ms inside dispatch,
	// which must show up in the reported processing time.
	stats := eng.Report()
	if stats.ProcessedWindows != 1 {
		t.Fatalf("ProcessedWindows = %d, want 1", stats.ProcessedWindows)
	}
	if stats.AvgProcessingSeconds < 0.02 {
		t.Errorf("AvgProcessingSeconds = %v, want >= 0.02", stats.AvgProcessingSeconds)
	}
}

func TestSanitize_RecoverableDefaults(t *testing.T) {
	eng := newTestEngine(&fakePublisher{}, newFakeCache())

	r := steadyReading(0, 420)
	r.Temperature = math.NaN()
	r.Humidity = 140
	r.BatteryLevel = math.NaN()
	r.SignalStrength = 5

	got, ok := eng.sanitize(r)
	if !ok {
		t.Fatal("sanitize rejected a recoverable reading")
	}
	if got.Temperature != 20 {
		t.Errorf("Temperature = %v, want 20", got.Temperature)
	}
	if got.Humidity != 50 {
		t.Errorf("Humidity = %v, want 50", got.Humidity)
	}
	if got.BatteryLevel != 100 {
		t.Errorf("BatteryLevel = %v, want 100", got.BatteryLevel)
	}
	if got.SignalStrength != -60 {
		t.Errorf("SignalStrength = %v, want -60", got.SignalStrength)
	}

	r = steadyReading(0, 420)
	r.BatteryLevel = 130
	got, _ = eng.sanitize(r)
	if got.BatteryLevel != 100 {
		t.Errorf("BatteryLevel = %v, want clamp to 100", got.BatteryLevel)
	}
}

func TestIngest_SteadyStream(t *testing.T) {
	pub := &fakePublisher{}
	cache := newFakeCache()
	eng := newTestEngine(pub, cache)
	ctx := context.Background()

	var transmitted, withheld, buffering int
	for i := 0; i < 50; i++ {
		switch eng.Ingest(ctx, steadyReading(i, 420)) {
		case models.OutcomeTransmitted:
			transmitted++
		case models.OutcomeWithheld:
			withheld++
		case models.OutcomeBuffering:
			buffering++
		default:
			t.Fatalf("unexpected outcome at reading %d", i)
		}
	}

	// Window size 10 with half overlap: windows complete at readings
	// 10, 15, 20, ... 50. Only the fifth window is a heartbeat transmit.
	if transmitted != 1 || withheld != 8 || buffering != 41 {
		t.Errorf("outcomes = %d transmitted, %d withheld, %d buffering; want 1/8/41",
			transmitted, withheld, buffering)
	}

	stats := eng.Report()
	if stats.ProcessedWindows != 9 {
		t.Errorf("ProcessedWindows = %d, want 9", stats.ProcessedWindows)
	}
	almostEqual(t, stats.BandwidthSavedRatio, 1-1.0/50, 1e-9)
	if stats.BandwidthSavedBytes == 0 {
		t.Error("BandwidthSavedBytes = 0, want withheld payload bytes counted")
	}

	if got := pub.calls(); len(got) != 1 || got[0] != "scin/sensors/co2-001/processed" {
		t.Errorf("publishes = %v", got)
	}
	if len(cache.readings) != 50 {
		t.Errorf("cached readings = %d, want 50", len(cache.readings))
	}
	if len(cache.summaries) != 9 {
		t.Errorf("cached summaries = %d, want every window persisted", len(cache.summaries))
	}
}

func TestIngest_AnomalyBypassesPolicy(t *testing.T) {
	pub := &fakePublisher{}
	cache := newFakeCache()
	eng := newTestEngine(pub, cache)
	ctx := context.Background()

	var outcome models.ProcessingOutcome
	for i := 0; i < 10; i++ {
		outcome = eng.Ingest(ctx, steadyReading(i, 1100))
	}
	if outcome != models.OutcomeAnomaly {
		t.Fatalf("outcome = %v, want anomaly dispatch on the first window", outcome)
	}

	// Alert goes out first at high priority, then the summary.
	topics := pub.calls()
	if len(topics) != 2 {
		t.Fatalf("publishes = %v, want alert plus summary", topics)
	}
	if topics[0] != "scin/alerts/co2-001/anomaly" || topics[1] != "scin/sensors/co2-001/processed" {
		t.Errorf("publish order = %v", topics)
	}
	if pub.prios[0] != models.PriorityHigh || pub.prios[1] != models.PriorityNormal {
		t.Errorf("priorities = %v", pub.prios)
	}

	if len(cache.anomalies) != 1 {
		t.Errorf("cached anomalies = %d, want 1", len(cache.anomalies))
	}
	if got := eng.Report().AnomaliesDetected; got != 1 {
		t.Errorf("AnomaliesDetected = %d, want 1", got)
	}
}

func TestIngest_PublishFailureLeavesSummaryUnsent(t *testing.T) {
	pub := &fakePublisher{failN: 100}
	cache := newFakeCache()
	eng := newTestEngine(pub, cache)
	ctx := context.Background()

	// The fifth window is a heartbeat transmit; with the broker down the
	// attempt fails and the summary stays cached as unsent.
	var outcome models.ProcessingOutcome
	for i := 0; i < 30; i++ {
		outcome = eng.Ingest(ctx, steadyReading(i, 420))
	}

	if outcome != models.OutcomeTransmitted {
		t.Fatalf("outcome = %v, want transmit attempt despite broker failure", outcome)
	}

	unsent, err := cache.UnsentSummaries(ctx, 10)
	if err != nil {
		t.Fatalf("UnsentSummaries: %v", err)
	}
	// Four withheld windows plus the failed heartbeat.
	if len(unsent) != 5 {
		t.Errorf("unsent summaries = %d, want 5", len(unsent))
	}
}

func TestIngest_CacheFailureDoesNotBlockPipeline(t *testing.T) {
	pub := &fakePublisher{}
	cache := newFakeCache()
	cache.failAll = true
	eng := newTestEngine(pub, cache)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		if got := eng.Ingest(ctx, steadyReading(i, 420)); got == models.OutcomeRejected {
			t.Fatalf("reading %d rejected on cache failure", i)
		}
	}
	if got := eng.Report().ProcessedWindows; got != 1 {
		t.Errorf("ProcessedWindows = %d, want analysis to continue offline", got)
	}
}

func TestIngest_OfflineWithoutCollaborators(t *testing.T) {
	cfg := DefaultConfig()
	eng := NewEngine("co2-001", cfg, zap.NewNop(),
		NewClassifier(cfg), NewTransmissionPolicy(cfg), NewEscalator(cfg, zap.NewNop()))

	ctx := context.Background()
	for i := 0; i < 10; i++ {
		eng.Ingest(ctx, steadyReading(i, 1100))
	}
	if got := eng.Report().AnomaliesDetected; got != 1 {
		t.Errorf("AnomaliesDetected = %d, want detection with nil publisher and cache", got)
	}
}

func TestIngest_ZeroTimestampDefaultsToNow(t *testing.T) {
	eng := newTestEngine(&fakePublisher{}, newFakeCache())

	r := steadyReading(0, 420)
	r.Timestamp = time.Time{}
	got, ok := eng.sanitize(r)
	if !ok {
		t.Fatal("sanitize rejected reading with zero timestamp")
	}
	if got.Timestamp.IsZero() {
		t.Error("zero timestamp not defaulted")
	}
}

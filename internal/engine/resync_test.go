package engine

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/carbonloop/edgesentry/pkg/models"
)

func seedUnsent(cache *fakeCache, n int) {
	for i := 0; i < n; i++ {
		s := models.WindowSummary{
			SensorID:  "co2-001",
			Timestamp: time.Now().UTC(),
			AvgCO2:    420,
		}
		_ = cache.AppendSummary(context.Background(), s, false)
	}
}

func TestRunOnce_UploadsAndMarksSent(t *testing.T) {
	pub := &fakePublisher{}
	cache := newFakeCache()
	seedUnsent(cache, 3)

	r := NewResyncer(DefaultConfig(), zap.NewNop(), cache, pub)
	n, err := r.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if n != 3 {
		t.Errorf("uploaded = %d, want 3", n)
	}
	if got := pub.calls(); len(got) != 3 {
		t.Errorf("publishes = %d, want 3", len(got))
	}

	remaining, _ := cache.UnsentSummaries(context.Background(), 10)
	if len(remaining) != 0 {
		t.Errorf("remaining unsent = %d, want 0", len(remaining))
	}
}

func TestRunOnce_StopsAtPublishFailure(t *testing.T) {
	pub := &fakePublisher{failN: 1}
	cache := newFakeCache()
	seedUnsent(cache, 3)

	r := NewResyncer(DefaultConfig(), zap.NewNop(), cache, pub)
	n, err := r.RunOnce(context.Background())
	if err == nil {
		t.Fatal("expected error on publish failure")
	}
	if n != 0 {
		t.Errorf("uploaded = %d, want 0 before the failure", n)
	}

	// The backlog stays intact for the next pass.
	remaining, _ := cache.UnsentSummaries(context.Background(), 10)
	if len(remaining) != 3 {
		t.Errorf("remaining unsent = %d, want 3", len(remaining))
	}

	n, err = r.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("second RunOnce: %v", err)
	}
	if n != 3 {
		t.Errorf("second pass uploaded = %d, want 3", n)
	}
}

func TestResyncer_StartStop(t *testing.T) {
	pub := &fakePublisher{}
	cache := newFakeCache()
	seedUnsent(cache, 1)

	cfg := DefaultConfig()
	cfg.ResyncInterval = 10 * time.Millisecond

	r := NewResyncer(cfg, zap.NewNop(), cache, pub)
	r.Start(context.Background())

	deadline := time.After(2 * time.Second)
	for {
		if len(pub.calls()) > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("resync loop never uploaded the pending summary")
		case <-time.After(5 * time.Millisecond):
		}
	}
	r.Stop()
}

func TestResyncer_DisabledWithoutCollaborators(t *testing.T) {
	r := NewResyncer(DefaultConfig(), zap.NewNop(), nil, nil)
	r.Start(context.Background())
	r.Stop() // must not hang or panic with no loop running
}

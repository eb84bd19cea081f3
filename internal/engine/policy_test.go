package engine

import (
	"testing"

	"github.com/carbonloop/edgesentry/pkg/models"
)

func TestDecide_LowQualityAlwaysTransmits(t *testing.T) {
	p := NewTransmissionPolicy(DefaultConfig())

	s := healthySummary()
	s.DataQuality = 0.2
	stats := models.EngineStats{ProcessedWindows: 1, BandwidthSavedRatio: 0.1}

	got := p.Decide(s, stats)
	if !got.Transmit || got.Reason != ReasonLowQuality {
		t.Errorf("Decide() = %+v, want transmit with %q", got, ReasonLowQuality)
	}
}

func TestDecide_SignificantTrendTransmits(t *testing.T) {
	p := NewTransmissionPolicy(DefaultConfig())

	for _, trend := range []float64{15, -15} {
		s := healthySummary()
		s.Trend = trend
		got := p.Decide(s, models.EngineStats{ProcessedWindows: 1})
		if !got.Transmit || got.Reason != ReasonSignificantTrend {
			t.Errorf("trend %v: Decide() = %+v, want transmit with %q", trend, got, ReasonSignificantTrend)
		}
	}
}

func TestDecide_BelowTargetWithholds(t *testing.T) {
	p := NewTransmissionPolicy(DefaultConfig())

	// Even on a heartbeat window, a ratio below target withholds first.
	stats := models.EngineStats{ProcessedWindows: 5, BandwidthSavedRatio: 0.4}
	got := p.Decide(healthySummary(), stats)
	if got.Transmit || got.Reason != ReasonBuildingSavings {
		t.Errorf("Decide() = %+v, want withhold with %q", got, ReasonBuildingSavings)
	}
}

func TestDecide_PeriodicHeartbeat(t *testing.T) {
	p := NewTransmissionPolicy(DefaultConfig())
	s := healthySummary()

	for windows := int64(1); windows <= 10; windows++ {
		stats := models.EngineStats{ProcessedWindows: windows, BandwidthSavedRatio: 0.9}
		got := p.Decide(s, stats)

		wantTransmit := windows%5 == 0
		if got.Transmit != wantTransmit {
			t.Errorf("window %d: Transmit = %v, want %v", windows, got.Transmit, wantTransmit)
		}
		if wantTransmit && got.Reason != ReasonPeriodic {
			t.Errorf("window %d: Reason = %q, want %q", windows, got.Reason, ReasonPeriodic)
		}
		if !wantTransmit && got.Reason != ReasonFiltered {
			t.Errorf("window %d: Reason = %q, want %q", windows, got.Reason, ReasonFiltered)
		}
	}
}

func TestDecide_Idempotent(t *testing.T) {
	p := NewTransmissionPolicy(DefaultConfig())

	s := healthySummary()
	stats := models.EngineStats{ProcessedWindows: 7, BandwidthSavedRatio: 0.8}

	first := p.Decide(s, stats)
	for i := 0; i < 5; i++ {
		if got := p.Decide(s, stats); got != first {
			t.Fatalf("repeat %d: Decide() = %+v, want %+v", i, got, first)
		}
	}
}

func TestDecide_RuleOrder(t *testing.T) {
	p := NewTransmissionPolicy(DefaultConfig())

	// Quality outranks trend; trend outranks the savings target.
	s := healthySummary()
	s.DataQuality = 0.1
	s.Trend = 100
	stats := models.EngineStats{ProcessedWindows: 1, BandwidthSavedRatio: 0.1}
	if got := p.Decide(s, stats); got.Reason != ReasonLowQuality {
		t.Errorf("Reason = %q, want quality rule first", got.Reason)
	}

	s.DataQuality = 0.9
	if got := p.Decide(s, stats); got.Reason != ReasonSignificantTrend {
		t.Errorf("Reason = %q, want trend rule before savings", got.Reason)
	}
}

func TestDecide_DisabledHeartbeat(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PeriodicTransmitEvery = 0
	p := NewTransmissionPolicy(cfg)

	stats := models.EngineStats{ProcessedWindows: 5, BandwidthSavedRatio: 0.9}
	if got := p.Decide(healthySummary(), stats); got.Transmit {
		t.Errorf("Decide() = %+v, want withhold with heartbeat disabled", got)
	}
}

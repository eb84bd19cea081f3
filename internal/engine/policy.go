package engine

import (
	"math"

	"github.com/carbonloop/edgesentry/pkg/models"
)

// Decision reasons, recorded on events and metrics labels.
const (
	ReasonLowQuality       = "low_quality"
	ReasonSignificantTrend = "significant_trend"
	ReasonBuildingSavings  = "building_savings"
	ReasonPeriodic         = "periodic"
	ReasonFiltered         = "filtered"
)

// minTransmitQuality is the data quality below which a summary always
// transmits so upstream can see the degradation.
const minTransmitQuality = 0.3

// Decision is the transmission verdict for one window summary.
type Decision struct {
	Transmit bool
	Reason   string
}

// TransmissionPolicy decides which window summaries are worth upstream
// bandwidth. It is a pure function of the summary and a stats snapshot,
// so the same inputs always yield the same decision.
type TransmissionPolicy struct {
	cfg Config
}

// NewTransmissionPolicy creates a policy with the given thresholds.
func NewTransmissionPolicy(cfg Config) *TransmissionPolicy {
	return &TransmissionPolicy{cfg: cfg}
}

// Decide evaluates the rules in fixed order:
//
//  1. degraded quality always transmits
//  2. a significant trend always transmits
//  3. below the savings target, withhold to build headroom
//  4. every Nth processed window transmits as a heartbeat
//  5. otherwise withhold
//
// Counter updates are the caller's job; Decide never mutates state.
func (p *TransmissionPolicy) Decide(s models.WindowSummary, stats models.EngineStats) Decision {
	if s.DataQuality < minTransmitQuality {
		return Decision{Transmit: true, Reason: ReasonLowQuality}
	}

	if math.Abs(s.Trend) > p.cfg.SignificantTrend {
		return Decision{Transmit: true, Reason: ReasonSignificantTrend}
	}

	if stats.BandwidthSavedRatio < p.cfg.BandwidthSaveTarget {
		return Decision{Transmit: false, Reason: ReasonBuildingSavings}
	}

	if p.cfg.PeriodicTransmitEvery > 0 && stats.ProcessedWindows%int64(p.cfg.PeriodicTransmitEvery) == 0 {
		return Decision{Transmit: true, Reason: ReasonPeriodic}
	}

	return Decision{Transmit: false, Reason: ReasonFiltered}
}

package engine

import (
	"sync"
	"time"

	"github.com/carbonloop/edgesentry/pkg/models"
)

const (
	// latencyAlpha is the EWMA smoothing factor for processing latency:
	// new sample weight 0.1, history weight 0.9.
	latencyAlpha = 0.1

	// batteryConversion converts a bandwidth-savings ratio into estimated
	// battery percentage points saved from reduced transmission power.
	batteryConversion = 40.0
)

// Tracker accumulates one engine instance's counters. Counters are
// monotonic and reset only on restart. Safe for concurrent use so the
// reporting endpoint can snapshot while the pipeline runs.
type Tracker struct {
	mu sync.Mutex

	sensorID string

	totalReadings       int64
	processedWindows    int64
	transmittedWindows  int64
	withheldWindows     int64
	anomaliesDetected   int64
	ingestionErrors     int64
	bandwidthSavedBytes int64

	latencyAvg     float64
	latencySamples int64
}

// NewTracker creates a zeroed stats tracker for one sensor.
func NewTracker(sensorID string) *Tracker {
	return &Tracker{sensorID: sensorID}
}

// ReadingIngested records one accepted raw reading.
func (t *Tracker) ReadingIngested() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.totalReadings++
}

// ReadingRejected records a malformed reading that was refused.
func (t *Tracker) ReadingRejected() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ingestionErrors++
}

// WindowProcessed records one evaluated window.
func (t *Tracker) WindowProcessed() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.processedWindows++
}

// ProcessingTime folds one full ingest-to-dispatch duration into the
// running average. The first sample seeds the average directly;
// afterwards it is exponentially smoothed.
func (t *Tracker) ProcessingTime(latency time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	seconds := latency.Seconds()
	if t.latencySamples == 0 {
		t.latencyAvg = seconds
	} else {
		t.latencyAvg = t.latencyAvg*(1-latencyAlpha) + seconds*latencyAlpha
	}
	t.latencySamples++
}

// Transmitted records one summary forwarded upstream.
func (t *Tracker) Transmitted() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.transmittedWindows++
}

// Withheld records one summary held back, crediting its serialized size
// to the bandwidth-saved counter.
func (t *Tracker) Withheld(payloadBytes int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.withheldWindows++
	t.bandwidthSavedBytes += int64(payloadBytes)
}

// AnomalyDetected records one classified anomaly.
func (t *Tracker) AnomalyDetected() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.anomaliesDetected++
}

// SavingsRatio returns the running bandwidth-savings ratio: the fraction
// of would-be transmissions avoided so far, clamped to [0, 1]. Zero until
// the first reading arrives.
func (t *Tracker) SavingsRatio() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.savingsRatioLocked()
}

func (t *Tracker) savingsRatioLocked() float64 {
	if t.totalReadings == 0 {
		return 0
	}
	ratio := 1 - float64(t.transmittedWindows)/float64(t.totalReadings)
	return clamp01(ratio)
}

// Snapshot returns a read-only copy of the current counters plus the
// derived savings ratio and battery estimate.
func (t *Tracker) Snapshot() models.EngineStats {
	t.mu.Lock()
	defer t.mu.Unlock()

	ratio := t.savingsRatioLocked()
	return models.EngineStats{
		SensorID:             t.sensorID,
		TotalReadings:        t.totalReadings,
		ProcessedWindows:     t.processedWindows,
		TransmittedWindows:   t.transmittedWindows,
		WithheldWindows:      t.withheldWindows,
		AnomaliesDetected:    t.anomaliesDetected,
		IngestionErrors:      t.ingestionErrors,
		BandwidthSavedBytes:  t.bandwidthSavedBytes,
		BandwidthSavedRatio:  ratio,
		AvgProcessingSeconds: t.latencyAvg,
		BatterySavedPercent:  ratio * batteryConversion,
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

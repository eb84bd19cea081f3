package engine

import (
	"math"
	"time"

	"github.com/carbonloop/edgesentry/pkg/models"
)

// WindowAnalyzer maintains one sensor's rolling analysis window. Readings
// must be added in non-decreasing timestamp order; out-of-order readings
// degrade trend accuracy but are never rejected here.
//
// Not safe for concurrent use; each sensor pipeline owns exactly one.
type WindowAnalyzer struct {
	sensorID     string
	size         int
	highVariance float64
	buffer       []models.SensorReading
}

// NewWindowAnalyzer creates an analyzer for one sensor.
func NewWindowAnalyzer(sensorID string, cfg Config) *WindowAnalyzer {
	size := cfg.WindowSize
	if size < 2 {
		size = DefaultConfig().WindowSize
	}
	return &WindowAnalyzer{
		sensorID:     sensorID,
		size:         size,
		highVariance: cfg.HighVariance,
		buffer:       make([]models.SensorReading, 0, size),
	}
}

// Len returns the current buffer length.
func (w *WindowAnalyzer) Len() int {
	return len(w.buffer)
}

// Add appends a reading to the window. When the buffer reaches the
// configured window size it computes and returns the window summary and
// retains the most recent half of the buffer, so consecutive windows see
// overlapping context. Returns nil while the window is still filling.
func (w *WindowAnalyzer) Add(r models.SensorReading) *models.WindowSummary {
	w.buffer = append(w.buffer, r)
	if len(w.buffer) < w.size {
		return nil
	}

	values := make([]float64, len(w.buffer))
	times := make([]time.Time, len(w.buffer))
	for i := range w.buffer {
		values[i] = w.buffer[i].CO2PPM
		times[i] = w.buffer[i].Timestamp
	}

	summary := &models.WindowSummary{
		SensorID:     w.sensorID,
		Timestamp:    time.Now().UTC(),
		AvgCO2:       mean(values),
		Trend:        weightedTrend(values, times),
		AnomalyScore: anomalyScore(values),
		DataQuality:  w.qualityScore(values),
		EdgeFiltered: true,
	}

	// Overlapping-window semantics: keep the newest half, never a full reset.
	keep := w.size / 2
	w.buffer = append(w.buffer[:0:0], w.buffer[len(w.buffer)-keep:]...)

	return summary
}

// weightedTrend returns the least-squares slope of value vs. elapsed
// seconds, dampened by the absolute correlation coefficient so a noisy fit
// contributes little. Returns 0 for fewer than 3 points or when all
// timestamps coincide.
func weightedTrend(values []float64, times []time.Time) float64 {
	n := len(values)
	if n < 3 {
		return 0
	}

	elapsed := make([]float64, n)
	for i, t := range times {
		elapsed[i] = t.Sub(times[0]).Seconds()
	}

	meanX := mean(elapsed)
	meanY := mean(values)

	var ssXY, ssXX, ssYY float64
	for i := 0; i < n; i++ {
		dx := elapsed[i] - meanX
		dy := values[i] - meanY
		ssXY += dx * dy
		ssXX += dx * dx
		ssYY += dy * dy
	}

	if ssXX == 0 || ssYY == 0 {
		return 0
	}

	slope := ssXY / ssXX
	r := ssXY / math.Sqrt(ssXX*ssYY)
	return slope * math.Abs(r)
}

// anomalyScore measures how far the latest value sits from the rest of the
// window, as a z-score normalized to [0, 1]. A z-score of 4 or more maps
// to 1. Returns 0 for fewer than 3 points or zero variance.
func anomalyScore(values []float64) float64 {
	n := len(values)
	if n < 3 {
		return 0
	}

	rest := values[:n-1]
	m := mean(rest)
	sd := stdDev(rest)
	if sd == 0 {
		return 0
	}

	z := math.Abs(values[n-1]-m) / sd
	return math.Min(z/4, 1)
}

// qualityScore assesses window data quality with multiplicative penalties:
// under-filled buffer, weak batteries, poor signal, and high measurement
// variance each degrade the score. Floored at 0.1.
func (w *WindowAnalyzer) qualityScore(values []float64) float64 {
	quality := 1.0

	if len(w.buffer) < w.size {
		quality *= 0.8
	}

	var batterySum, signalSum float64
	for i := range w.buffer {
		batterySum += w.buffer[i].BatteryLevel
		signalSum += float64(w.buffer[i].SignalStrength)
	}
	n := float64(len(w.buffer))

	switch avgBattery := batterySum / n; {
	case avgBattery < 20:
		quality *= 0.7
	case avgBattery < 50:
		quality *= 0.9
	}

	switch avgSignal := signalSum / n; {
	case avgSignal < -80:
		quality *= 0.6
	case avgSignal < -60:
		quality *= 0.8
	}

	if w.highVariance > 0 && stdDev(values) > w.highVariance {
		quality *= 0.8
	}

	return math.Max(quality, 0.1)
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// stdDev returns the population standard deviation.
func stdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	m := mean(values)
	var ss float64
	for _, v := range values {
		d := v - m
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(values)))
}

// Package models defines the shared data types exchanged between EdgeSentry
// modules: raw sensor readings, derived window summaries, anomaly events,
// and engine statistics.
package models

import "time"

// SensorReading is a single timestamped observation from one sensor.
// Immutable once created; the window analyzer owns it until eviction.
type SensorReading struct {
	SensorID       string    `json:"sensor_id"`
	Timestamp      time.Time `json:"timestamp"`
	CO2PPM         float64   `json:"co2_ppm"`
	Temperature    float64   `json:"temperature"`
	Humidity       float64   `json:"humidity"`
	Latitude       float64   `json:"lat"`
	Longitude      float64   `json:"lon"`
	BatteryLevel   float64   `json:"battery_level"`   // 0-100
	SignalStrength int       `json:"signal_strength"` // dBm, typically negative
}

// WindowSummary is the statistical digest of one full analysis window.
// Created once per full window and never mutated afterwards.
type WindowSummary struct {
	SensorID       string    `json:"sensor_id"`
	Timestamp      time.Time `json:"timestamp"`
	AvgCO2         float64   `json:"avg_co2"`
	Trend          float64   `json:"co2_trend"`
	AnomalyScore   float64   `json:"anomaly_score"` // 0-1
	DataQuality    float64   `json:"data_quality"`  // 0.1-1
	EdgeFiltered   bool      `json:"edge_filtered"`
	BandwidthSaved float64   `json:"bandwidth_saved"` // savings ratio at emission time
}

// EngineStats is a point-in-time snapshot of one engine instance's counters.
// Counters are monotonic; they reset only when the process restarts.
type EngineStats struct {
	SensorID             string  `json:"sensor_id"`
	TotalReadings        int64   `json:"total_readings"`
	ProcessedWindows     int64   `json:"processed_windows"`
	TransmittedWindows   int64   `json:"transmitted_windows"`
	WithheldWindows      int64   `json:"withheld_windows"`
	AnomaliesDetected    int64   `json:"anomalies_detected"`
	IngestionErrors      int64   `json:"ingestion_errors"`
	BandwidthSavedBytes  int64   `json:"bandwidth_saved_bytes"`
	BandwidthSavedRatio  float64 `json:"bandwidth_saved_ratio"`
	AvgProcessingSeconds float64 `json:"processing_time_avg"`
	BatterySavedPercent  float64 `json:"battery_saved_percent"`
}

// ProcessingOutcome describes what the engine did with one ingested reading.
type ProcessingOutcome int

const (
	// OutcomeBuffering means the window is not yet full; nothing was emitted.
	OutcomeBuffering ProcessingOutcome = iota
	// OutcomeWithheld means a summary was produced but held back to save bandwidth.
	OutcomeWithheld
	// OutcomeTransmitted means a summary was produced and published upstream.
	OutcomeTransmitted
	// OutcomeAnomaly means a summary was classified as anomalous and dispatched
	// immediately, bypassing the transmission policy.
	OutcomeAnomaly
	// OutcomeRejected means the reading was malformed and not processed.
	OutcomeRejected
)

func (o ProcessingOutcome) String() string {
	switch o {
	case OutcomeBuffering:
		return "buffering"
	case OutcomeWithheld:
		return "withheld"
	case OutcomeTransmitted:
		return "transmitted"
	case OutcomeAnomaly:
		return "anomaly_dispatched"
	case OutcomeRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Priority selects the delivery class for an upstream publish.
type Priority int

const (
	// PriorityNormal is used for routine window summaries.
	PriorityNormal Priority = iota
	// PriorityHigh is used for anomaly alerts (at-least-once delivery).
	PriorityHigh
)

package testutil

import (
	"time"

	"github.com/google/uuid"

	"github.com/carbonloop/edgesentry/pkg/models"
)

// NewReading returns a healthy SensorReading with sensible defaults,
// suitable for test fixtures. Override individual fields with options.
func NewReading(opts ...func(*models.SensorReading)) models.SensorReading {
	r := models.SensorReading{
		SensorID:       "co2-test",
		Timestamp:      time.Now().UTC(),
		CO2PPM:         420,
		Temperature:    21,
		Humidity:       45,
		BatteryLevel:   90,
		SignalStrength: -55,
	}
	for _, opt := range opts {
		opt(&r)
	}
	return r
}

// WithSensorID sets the reading's sensor ID.
func WithSensorID(id string) func(*models.SensorReading) {
	return func(r *models.SensorReading) { r.SensorID = id }
}

// WithCO2 sets the CO2 concentration in ppm.
func WithCO2(ppm float64) func(*models.SensorReading) {
	return func(r *models.SensorReading) { r.CO2PPM = ppm }
}

// WithTimestamp sets the reading's timestamp.
func WithTimestamp(t time.Time) func(*models.SensorReading) {
	return func(r *models.SensorReading) { r.Timestamp = t }
}

// WithBattery sets the battery level percentage.
func WithBattery(level float64) func(*models.SensorReading) {
	return func(r *models.SensorReading) { r.BatteryLevel = level }
}

// WithSignal sets the signal strength in dBm.
func WithSignal(dbm int) func(*models.SensorReading) {
	return func(r *models.SensorReading) { r.SignalStrength = dbm }
}

// NewAnomaly returns an AnomalyEvent with sensible defaults.
func NewAnomaly(opts ...func(*models.AnomalyEvent)) models.AnomalyEvent {
	e := models.AnomalyEvent{
		ID:         uuid.New().String(),
		SensorID:   "co2-test",
		Timestamp:  time.Now().UTC(),
		Type:       models.AnomalyStatistical,
		Severity:   models.SeverityMedium,
		Confidence: 0.85,
	}
	for _, opt := range opts {
		opt(&e)
	}
	return e
}

// WithSeverity sets the anomaly severity.
func WithSeverity(s models.Severity) func(*models.AnomalyEvent) {
	return func(e *models.AnomalyEvent) { e.Severity = s }
}

// WithType sets the anomaly type.
func WithType(t models.AnomalyType) func(*models.AnomalyEvent) {
	return func(e *models.AnomalyEvent) { e.Type = t }
}

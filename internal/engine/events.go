package engine

import (
	"time"

	"github.com/carbonloop/edgesentry/pkg/models"
	"github.com/carbonloop/edgesentry/pkg/plugin"
)

// Bus topics published by the engine.
const (
	// TopicReadingIngested fires after every accepted reading.
	TopicReadingIngested = "engine.reading.ingested"

	// TopicWindowProcessed fires after every evaluated window.
	TopicWindowProcessed = "engine.window.processed"

	// TopicAnomalyDetected fires after every classified anomaly.
	TopicAnomalyDetected = "engine.anomaly.detected"

	// topicSensorReading is where the sensor module publishes raw
	// readings. The engine subscribes, it never publishes here.
	topicSensorReading = "sensor.reading.collected"
)

// ReadingEvent is the payload for TopicReadingIngested.
type ReadingEvent struct {
	Reading models.SensorReading     `json:"reading"`
	Outcome models.ProcessingOutcome `json:"outcome"`
}

// WindowEvent is the payload for TopicWindowProcessed.
type WindowEvent struct {
	Summary      models.WindowSummary `json:"summary"`
	Transmitted  bool                 `json:"transmitted"`
	Reason       string               `json:"reason"`
	PayloadBytes int                  `json:"payload_bytes"`
	Latency      time.Duration        `json:"latency"`
}

// AnomalyDetectedEvent is the payload for TopicAnomalyDetected.
type AnomalyDetectedEvent struct {
	Event models.AnomalyEvent `json:"event"`
}

// ReadingFromEvent extracts a sensor reading from a bus event, accepting
// either a bare reading or a pointer so producers keep some latitude.
func ReadingFromEvent(event plugin.Event) (models.SensorReading, bool) {
	switch p := event.Payload.(type) {
	case models.SensorReading:
		return p, true
	case *models.SensorReading:
		if p != nil {
			return *p, true
		}
	}
	return models.SensorReading{}, false
}

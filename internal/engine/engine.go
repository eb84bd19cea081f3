// Package engine implements the edge processing pipeline: windowed
// statistical analysis of sensor readings, anomaly classification and
// escalation, and a bandwidth-aware transmission policy.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/carbonloop/edgesentry/pkg/models"
	"github.com/carbonloop/edgesentry/pkg/plugin"
)

// Publisher sends a payload upstream. Implemented by the mqtt module;
// nil-safe call sites let the engine run fully offline.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte, priority models.Priority) error
}

// StoredSummary is a cached window summary with its storage key.
type StoredSummary struct {
	ID      int64
	Summary models.WindowSummary
}

// Cache is the local store-and-forward layer. Implemented by the cache
// module on SQLite.
type Cache interface {
	AppendReading(ctx context.Context, r models.SensorReading) error
	AppendSummary(ctx context.Context, s models.WindowSummary, transmitted bool) error
	AppendAnomaly(ctx context.Context, e models.AnomalyEvent) error
	UnsentSummaries(ctx context.Context, limit int) ([]StoredSummary, error)
	MarkSummarySent(ctx context.Context, id int64) error
}

// Engine processes one sensor's readings. Ingest is the single entry
// point; it runs the full analyze-classify-decide transaction for each
// reading. Not safe for concurrent use; the Manager serializes calls
// per sensor.
type Engine struct {
	sensorID string
	cfg      Config
	logger   *zap.Logger

	window     *WindowAnalyzer
	tracker    *Tracker
	classifier *Classifier
	policy     *TransmissionPolicy
	escalator  *Escalator

	publisher Publisher
	cache     Cache
	bus       plugin.EventBus
}

// NewEngine creates a processing engine for one sensor. The classifier,
// policy, and escalator are shared across sensors; window and stats
// state is per sensor.
func NewEngine(sensorID string, cfg Config, logger *zap.Logger, classifier *Classifier, policy *TransmissionPolicy, escalator *Escalator) *Engine {
	return &Engine{
		sensorID:   sensorID,
		cfg:        cfg,
		logger:     logger.With(zap.String("sensor_id", sensorID)),
		window:     NewWindowAnalyzer(sensorID, cfg),
		tracker:    NewTracker(sensorID),
		classifier: classifier,
		policy:     policy,
		escalator:  escalator,
	}
}

// SetPublisher wires the upstream publisher. Nil keeps the engine offline.
func (e *Engine) SetPublisher(p Publisher) { e.publisher = p }

// SetCache wires the local persistence layer.
func (e *Engine) SetCache(c Cache) { e.cache = c }

// SetBus wires the event bus for pipeline notifications.
func (e *Engine) SetBus(bus plugin.EventBus) { e.bus = bus }

// Ingest runs one reading through the pipeline and reports what happened
// to it. Cache and publish failures are logged, counted, and never fail
// the ingest; the reading's analysis always completes locally.
func (e *Engine) Ingest(ctx context.Context, r models.SensorReading) models.ProcessingOutcome {
	started := time.Now()

	r, ok := e.sanitize(r)
	if !ok {
		e.tracker.ReadingRejected()
		e.logger.Debug("reading rejected", zap.Float64("co2_ppm", r.CO2PPM))
		return models.OutcomeRejected
	}

	e.tracker.ReadingIngested()
	if e.cache != nil {
		if err := e.cache.AppendReading(ctx, r); err != nil {
			e.logger.Error("caching reading failed", zap.Error(err))
		}
	}

	summary := e.window.Add(r)
	if summary == nil {
		e.emitReading(ctx, r, models.OutcomeBuffering)
		return models.OutcomeBuffering
	}

	e.tracker.WindowProcessed()
	summary.BandwidthSaved = e.tracker.SavingsRatio()

	outcome := e.dispatch(ctx, *summary, started)
	// The full transaction: sanitize, window math, classify, publish, cache.
	e.tracker.ProcessingTime(time.Since(started))
	e.emitReading(ctx, r, outcome)
	return outcome
}

// dispatch routes a completed window summary: anomalies escalate and
// transmit immediately, everything else goes through the policy.
func (e *Engine) dispatch(ctx context.Context, summary models.WindowSummary, started time.Time) models.ProcessingOutcome {
	if anomaly := e.classifier.Classify(summary); anomaly != nil {
		e.tracker.AnomalyDetected()
		e.logger.Warn("anomaly detected",
			zap.String("type", string(anomaly.Type)),
			zap.String("severity", string(anomaly.Severity)),
			zap.Float64("confidence", anomaly.Confidence))

		if err := e.escalator.Escalate(ctx, *anomaly); err != nil {
			e.logger.Error("anomaly escalation incomplete", zap.Error(err))
		}
		e.emitAnomaly(ctx, *anomaly)

		// Anomalous windows bypass the transmission policy.
		payload := e.transmit(ctx, summary)
		e.emitWindow(ctx, summary, true, "anomaly", len(payload), time.Since(started))
		return models.OutcomeAnomaly
	}

	decision := e.policy.Decide(summary, e.tracker.Snapshot())
	if decision.Transmit {
		payload := e.transmit(ctx, summary)
		e.emitWindow(ctx, summary, true, decision.Reason, len(payload), time.Since(started))
		return models.OutcomeTransmitted
	}

	payload, err := json.Marshal(summary)
	if err != nil {
		e.logger.Error("marshaling summary failed", zap.Error(err))
	}
	e.tracker.Withheld(len(payload))
	e.persistSummary(ctx, summary, false)
	e.emitWindow(ctx, summary, false, decision.Reason, len(payload), time.Since(started))
	return models.OutcomeWithheld
}

// transmit publishes the summary upstream at normal priority and records
// the attempt. A failed publish leaves the summary cached as unsent so
// the resync loop can retry it. Returns the serialized payload.
func (e *Engine) transmit(ctx context.Context, summary models.WindowSummary) []byte {
	e.tracker.Transmitted()

	payload, err := json.Marshal(summary)
	if err != nil {
		e.logger.Error("marshaling summary failed", zap.Error(err))
		return nil
	}

	delivered := false
	if e.publisher != nil {
		topic := fmt.Sprintf("%s/sensors/%s/processed", e.cfg.TopicPrefix, e.sensorID)
		if err := e.publisher.Publish(ctx, topic, payload, models.PriorityNormal); err != nil {
			e.logger.Error("summary publish failed", zap.Error(err))
		} else {
			delivered = true
		}
	}

	e.persistSummary(ctx, summary, delivered)
	return payload
}

func (e *Engine) persistSummary(ctx context.Context, summary models.WindowSummary, transmitted bool) {
	if e.cache == nil {
		return
	}
	if err := e.cache.AppendSummary(ctx, summary, transmitted); err != nil {
		e.logger.Error("caching summary failed", zap.Error(err))
	}
}

// Report returns a snapshot of this sensor's processing statistics.
func (e *Engine) Report() models.EngineStats {
	return e.tracker.Snapshot()
}

// Buffered returns how many readings sit in the current partial window.
func (e *Engine) Buffered() int {
	return e.window.Len()
}

// sanitize validates a reading, substituting safe defaults for recoverable
// fields. An unusable CO2 value or a missing sensor ID rejects the whole
// reading.
func (e *Engine) sanitize(r models.SensorReading) (models.SensorReading, bool) {
	if r.SensorID == "" {
		return r, false
	}
	if math.IsNaN(r.CO2PPM) || r.CO2PPM < 0 {
		return r, false
	}

	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now().UTC()
	}
	if math.IsNaN(r.Temperature) {
		r.Temperature = 20
	}
	if math.IsNaN(r.Humidity) || r.Humidity < 0 || r.Humidity > 100 {
		r.Humidity = 50
	}
	if math.IsNaN(r.BatteryLevel) {
		r.BatteryLevel = 100
	}
	r.BatteryLevel = math.Min(math.Max(r.BatteryLevel, 0), 100)
	if r.SignalStrength >= 0 {
		r.SignalStrength = -60
	}
	return r, true
}

func (e *Engine) emitReading(ctx context.Context, r models.SensorReading, outcome models.ProcessingOutcome) {
	if e.bus == nil {
		return
	}
	e.bus.PublishAsync(ctx, plugin.Event{
		Topic:     TopicReadingIngested,
		Source:    "engine",
		Timestamp: time.Now().UTC(),
		Payload:   ReadingEvent{Reading: r, Outcome: outcome},
	})
}

func (e *Engine) emitWindow(ctx context.Context, s models.WindowSummary, transmitted bool, reason string, payloadBytes int, latency time.Duration) {
	if e.bus == nil {
		return
	}
	e.bus.PublishAsync(ctx, plugin.Event{
		Topic:     TopicWindowProcessed,
		Source:    "engine",
		Timestamp: time.Now().UTC(),
		Payload: WindowEvent{
			Summary:      s,
			Transmitted:  transmitted,
			Reason:       reason,
			PayloadBytes: payloadBytes,
			Latency:      latency,
		},
	})
}

func (e *Engine) emitAnomaly(ctx context.Context, a models.AnomalyEvent) {
	if e.bus == nil {
		return
	}
	e.bus.PublishAsync(ctx, plugin.Event{
		Topic:     TopicAnomalyDetected,
		Source:    "engine",
		Timestamp: time.Now().UTC(),
		Payload:   AnomalyDetectedEvent{Event: a},
	})
}

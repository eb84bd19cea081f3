package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/carbonloop/edgesentry/pkg/models"
)

// EmergencyHandler receives critical anomalies for out-of-band response.
type EmergencyHandler interface {
	HandleEmergency(ctx context.Context, event models.AnomalyEvent) error
}

// SamplingController raises a sensor's sampling rate for a bounded period.
type SamplingController interface {
	BoostSampling(sensorID string, d time.Duration)
}

// MaintenanceScheduler queues a sensor for a maintenance visit.
type MaintenanceScheduler interface {
	ScheduleCheck(sensorID string, reason string)
}

// Escalator routes classified anomalies by severity. The alert is always
// published upstream first; the severity-specific action runs after, so a
// failing hook never suppresses the alert. All hooks are optional and
// fall back to logging.
type Escalator struct {
	logger    *zap.Logger
	publisher Publisher
	cache     Cache
	cfg       Config

	emergency   EmergencyHandler
	sampling    SamplingController
	maintenance MaintenanceScheduler
}

// NewEscalator creates an escalator with log-only defaults for all hooks.
func NewEscalator(cfg Config, logger *zap.Logger) *Escalator {
	return &Escalator{cfg: cfg, logger: logger}
}

// SetPublisher wires the upstream alert publisher.
func (e *Escalator) SetPublisher(p Publisher) { e.publisher = p }

// SetCache wires the local persistence layer for anomaly records.
func (e *Escalator) SetCache(c Cache) { e.cache = c }

// SetEmergencyHandler wires the critical-severity hook.
func (e *Escalator) SetEmergencyHandler(h EmergencyHandler) { e.emergency = h }

// SetSamplingController wires the high-severity hook.
func (e *Escalator) SetSamplingController(s SamplingController) { e.sampling = s }

// SetMaintenanceScheduler wires the medium-severity hook.
func (e *Escalator) SetMaintenanceScheduler(m MaintenanceScheduler) { e.maintenance = m }

// Escalate publishes the alert, persists it, and runs the severity action.
// Publish and persistence failures are logged and do not block the
// severity action. The returned error reports the publish outcome only.
func (e *Escalator) Escalate(ctx context.Context, event models.AnomalyEvent) error {
	pubErr := e.publishAlert(ctx, event)
	if pubErr != nil {
		e.logger.Error("alert publish failed",
			zap.String("sensor_id", event.SensorID),
			zap.String("anomaly_id", event.ID),
			zap.Error(pubErr))
	}

	if e.cache != nil {
		if err := e.cache.AppendAnomaly(ctx, event); err != nil {
			e.logger.Error("anomaly persistence failed",
				zap.String("anomaly_id", event.ID),
				zap.Error(err))
		}
	}

	e.applySeverityAction(ctx, event)
	return pubErr
}

// publishAlert sends the anomaly upstream at high priority, retrying once
// on failure. A nil publisher degrades to log-only operation.
func (e *Escalator) publishAlert(ctx context.Context, event models.AnomalyEvent) error {
	if e.publisher == nil {
		e.logger.Warn("no publisher configured, alert logged only",
			zap.String("sensor_id", event.SensorID),
			zap.String("type", string(event.Type)),
			zap.String("severity", string(event.Severity)))
		return nil
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling alert: %w", err)
	}

	topic := fmt.Sprintf("%s/alerts/%s/anomaly", e.cfg.TopicPrefix, event.SensorID)
	if err := e.publisher.Publish(ctx, topic, payload, models.PriorityHigh); err == nil {
		return nil
	}
	if err := e.publisher.Publish(ctx, topic, payload, models.PriorityHigh); err != nil {
		return fmt.Errorf("publishing alert after retry: %w", err)
	}
	return nil
}

func (e *Escalator) applySeverityAction(ctx context.Context, event models.AnomalyEvent) {
	switch event.Severity {
	case models.SeverityCritical:
		if e.emergency != nil {
			if err := e.emergency.HandleEmergency(ctx, event); err != nil {
				e.logger.Error("emergency handler failed",
					zap.String("anomaly_id", event.ID),
					zap.Error(err))
			}
			return
		}
		e.logger.Error("critical anomaly with no emergency handler",
			zap.String("sensor_id", event.SensorID),
			zap.String("type", string(event.Type)),
			zap.String("action", event.SuggestedAction))

	case models.SeverityHigh:
		if e.sampling != nil {
			e.sampling.BoostSampling(event.SensorID, e.cfg.BoostDuration)
			return
		}
		e.logger.Warn("high anomaly with no sampling controller",
			zap.String("sensor_id", event.SensorID),
			zap.String("type", string(event.Type)))

	case models.SeverityMedium:
		if e.maintenance != nil {
			e.maintenance.ScheduleCheck(event.SensorID, string(event.Type))
			return
		}
		e.logger.Warn("medium anomaly with no maintenance scheduler",
			zap.String("sensor_id", event.SensorID),
			zap.String("type", string(event.Type)))

	default:
		e.logger.Info("low severity anomaly",
			zap.String("sensor_id", event.SensorID),
			zap.String("type", string(event.Type)),
			zap.Float64("confidence", event.Confidence))
	}
}

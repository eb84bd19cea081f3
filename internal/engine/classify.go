package engine

import (
	"math"
	"time"

	"github.com/carbonloop/edgesentry/pkg/models"
	"github.com/google/uuid"
)

// suggestedActions maps each anomaly type to a fixed operator hint.
var suggestedActions = map[models.AnomalyType]string{
	models.AnomalyHighConcentration:     "Check ventilation systems, verify sensor calibration",
	models.AnomalyElevatedConcentration: "Monitor trend, prepare for intervention",
	models.AnomalyRapidChange:           "Investigate cause of sudden change",
	models.AnomalyDataQuality:           "Check sensor connections and battery",
	models.AnomalyStatistical:           "Manual review recommended",
}

// Classifier maps window statistics to typed anomalies using fixed
// threshold rules.
type Classifier struct {
	cfg Config
}

// NewClassifier creates a classifier with the given thresholds.
func NewClassifier(cfg Config) *Classifier {
	return &Classifier{cfg: cfg}
}

// Classify evaluates the threshold rules against a window summary and
// returns the resulting anomaly, or nil when no rule fires. Later rules
// may override the anomaly type, but severity only ever escalates within
// one classification. Confidence defaults to the summary's anomaly score.
func (c *Classifier) Classify(s models.WindowSummary) *models.AnomalyEvent {
	var (
		kind     models.AnomalyType
		severity models.Severity
	)
	confidence := s.AnomalyScore

	switch {
	case s.AvgCO2 > c.cfg.HighConcentration:
		kind = models.AnomalyHighConcentration
		severity = models.SeverityHigh
	case s.AvgCO2 > c.cfg.ElevatedConcentration:
		kind = models.AnomalyElevatedConcentration
		severity = models.SeverityMedium
	}

	if math.Abs(s.Trend) > c.cfg.RapidChange {
		kind = models.AnomalyRapidChange
		severity = severity.Escalate(models.SeverityMedium)
	}

	if s.DataQuality < c.cfg.QualityAlert {
		if kind == "" {
			kind = models.AnomalyDataQuality
		}
		severity = severity.Escalate(models.SeverityLow)
	}

	if s.AnomalyScore > c.cfg.StatisticalThreshold {
		if kind == "" {
			kind = models.AnomalyStatistical
		}
		severity = severity.Escalate(models.SeverityHigh)
		confidence = s.AnomalyScore
	}

	if kind == "" {
		return nil
	}

	return &models.AnomalyEvent{
		ID:              uuid.New().String(),
		SensorID:        s.SensorID,
		Timestamp:       time.Now().UTC(),
		Type:            kind,
		Severity:        severity,
		Confidence:      confidence,
		SuggestedAction: suggestedActions[kind],
	}
}

package models

import "time"

// Severity grades an anomaly. Within one classification pass severity may
// only escalate, never downgrade.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank returns an ordering value for escalation comparisons. Unknown
// severities rank below low.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	default:
		return 0
	}
}

// Escalate returns the higher of s and other.
func (s Severity) Escalate(other Severity) Severity {
	if other.Rank() > s.Rank() {
		return other
	}
	return s
}

// AnomalyType identifies which classification rule produced an anomaly.
type AnomalyType string

const (
	AnomalyHighConcentration     AnomalyType = "high_concentration"
	AnomalyElevatedConcentration AnomalyType = "elevated_concentration"
	AnomalyRapidChange           AnomalyType = "rapid_change"
	AnomalyDataQuality           AnomalyType = "data_quality"
	AnomalyStatistical           AnomalyType = "statistical_anomaly"
)

// AnomalyEvent is a classified anomaly ready for escalation.
// Created by the classifier; never mutated.
type AnomalyEvent struct {
	ID              string      `json:"id"`
	SensorID        string      `json:"sensor_id"`
	Timestamp       time.Time   `json:"timestamp"`
	Type            AnomalyType `json:"anomaly_type"`
	Severity        Severity    `json:"severity"`
	Confidence      float64     `json:"confidence"` // 0-1
	SuggestedAction string      `json:"suggested_action"`
}

// Package cache persists readings, window summaries, and anomalies to the
// shared SQLite store. It is the local source of truth when the uplink is
// down: summaries are stored before any transmit attempt and flagged once
// delivered, so the engine's resync loop can backfill upstream.
package cache

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/carbonloop/edgesentry/internal/engine"
	"github.com/carbonloop/edgesentry/pkg/models"
)

// CacheStore provides database access for the cache module.
type CacheStore struct {
	db *sql.DB
}

// NewCacheStore creates a CacheStore backed by the given database.
func NewCacheStore(db *sql.DB) *CacheStore {
	return &CacheStore{db: db}
}

// AppendReading stores one raw reading.
func (s *CacheStore) AppendReading(ctx context.Context, r models.SensorReading) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cache_readings (
			sensor_id, recorded_at, co2_ppm, temperature, humidity,
			lat, lon, battery_level, signal_strength
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.SensorID, r.Timestamp, r.CO2PPM, r.Temperature, r.Humidity,
		r.Latitude, r.Longitude, r.BatteryLevel, r.SignalStrength,
	)
	if err != nil {
		return fmt.Errorf("insert reading: %w", err)
	}
	return nil
}

// AppendSummary stores one window summary with its delivery state.
func (s *CacheStore) AppendSummary(ctx context.Context, sum models.WindowSummary, transmitted bool) error {
	filtered := 0
	if sum.EdgeFiltered {
		filtered = 1
	}
	sent := 0
	if transmitted {
		sent = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cache_summaries (
			sensor_id, recorded_at, avg_co2, co2_trend, anomaly_score,
			data_quality, edge_filtered, bandwidth_saved, transmitted
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sum.SensorID, sum.Timestamp, sum.AvgCO2, sum.Trend, sum.AnomalyScore,
		sum.DataQuality, filtered, sum.BandwidthSaved, sent,
	)
	if err != nil {
		return fmt.Errorf("insert summary: %w", err)
	}
	return nil
}

// AppendAnomaly stores one classified anomaly.
func (s *CacheStore) AppendAnomaly(ctx context.Context, e models.AnomalyEvent) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cache_anomalies (
			id, sensor_id, recorded_at, anomaly_type, severity, confidence, suggested_action
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.SensorID, e.Timestamp, string(e.Type), string(e.Severity),
		e.Confidence, e.SuggestedAction,
	)
	if err != nil {
		return fmt.Errorf("insert anomaly: %w", err)
	}
	return nil
}

// UnsentSummaries returns up to limit undelivered summaries, oldest first.
func (s *CacheStore) UnsentSummaries(ctx context.Context, limit int) ([]engine.StoredSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sensor_id, recorded_at, avg_co2, co2_trend, anomaly_score,
			data_quality, edge_filtered, bandwidth_saved
		FROM cache_summaries WHERE transmitted = 0 ORDER BY id LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query unsent summaries: %w", err)
	}
	defer rows.Close()

	var out []engine.StoredSummary
	for rows.Next() {
		var (
			stored   engine.StoredSummary
			filtered int
		)
		if err := rows.Scan(
			&stored.ID, &stored.Summary.SensorID, &stored.Summary.Timestamp,
			&stored.Summary.AvgCO2, &stored.Summary.Trend, &stored.Summary.AnomalyScore,
			&stored.Summary.DataQuality, &filtered, &stored.Summary.BandwidthSaved,
		); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		stored.Summary.EdgeFiltered = filtered != 0
		out = append(out, stored)
	}
	return out, rows.Err()
}

// MarkSummarySent flags a cached summary as delivered upstream.
func (s *CacheStore) MarkSummarySent(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE cache_summaries SET transmitted = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("mark summary sent: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("mark summary sent: no summary with id %d", id)
	}
	return nil
}

// ReadingsBetween returns a sensor's readings in [from, to], oldest first.
func (s *CacheStore) ReadingsBetween(ctx context.Context, sensorID string, from, to time.Time) ([]models.SensorReading, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sensor_id, recorded_at, co2_ppm, temperature, humidity,
			lat, lon, battery_level, signal_strength
		FROM cache_readings
		WHERE sensor_id = ? AND recorded_at >= ? AND recorded_at <= ?
		ORDER BY recorded_at`,
		sensorID, from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("query readings: %w", err)
	}
	defer rows.Close()

	var out []models.SensorReading
	for rows.Next() {
		var r models.SensorReading
		if err := rows.Scan(
			&r.SensorID, &r.Timestamp, &r.CO2PPM, &r.Temperature, &r.Humidity,
			&r.Latitude, &r.Longitude, &r.BatteryLevel, &r.SignalStrength,
		); err != nil {
			return nil, fmt.Errorf("scan reading: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// AnomaliesBetween returns a sensor's anomalies in [from, to], oldest first.
func (s *CacheStore) AnomaliesBetween(ctx context.Context, sensorID string, from, to time.Time) ([]models.AnomalyEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sensor_id, recorded_at, anomaly_type, severity, confidence, suggested_action
		FROM cache_anomalies
		WHERE sensor_id = ? AND recorded_at >= ? AND recorded_at <= ?
		ORDER BY recorded_at`,
		sensorID, from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("query anomalies: %w", err)
	}
	defer rows.Close()

	var out []models.AnomalyEvent
	for rows.Next() {
		var (
			e        models.AnomalyEvent
			kind     string
			severity string
		)
		if err := rows.Scan(
			&e.ID, &e.SensorID, &e.Timestamp, &kind, &severity,
			&e.Confidence, &e.SuggestedAction,
		); err != nil {
			return nil, fmt.Errorf("scan anomaly: %w", err)
		}
		e.Type = models.AnomalyType(kind)
		e.Severity = models.Severity(severity)
		out = append(out, e)
	}
	return out, rows.Err()
}

// PruneBefore deletes readings and delivered summaries older than cutoff.
// Undelivered summaries and anomalies are kept regardless of age.
func (s *CacheStore) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var pruned int64

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM cache_readings WHERE recorded_at < ?`, cutoff)
	if err != nil {
		return pruned, fmt.Errorf("prune readings: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil {
		pruned += n
	}

	res, err = s.db.ExecContext(ctx,
		`DELETE FROM cache_summaries WHERE transmitted = 1 AND recorded_at < ?`, cutoff)
	if err != nil {
		return pruned, fmt.Errorf("prune summaries: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil {
		pruned += n
	}

	return pruned, nil
}

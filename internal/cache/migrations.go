package cache

import (
	"database/sql"

	"github.com/carbonloop/edgesentry/pkg/plugin"
)

func migrations() []plugin.Migration {
	return []plugin.Migration{
		{
			Version:     1,
			Description: "create local telemetry cache tables",
			Up: func(tx *sql.Tx) error {
				stmts := []string{
					`CREATE TABLE IF NOT EXISTS cache_readings (
						id INTEGER PRIMARY KEY AUTOINCREMENT,
						sensor_id TEXT NOT NULL,
						recorded_at DATETIME NOT NULL,
						co2_ppm REAL NOT NULL,
						temperature REAL NOT NULL,
						humidity REAL NOT NULL,
						lat REAL NOT NULL DEFAULT 0,
						lon REAL NOT NULL DEFAULT 0,
						battery_level REAL NOT NULL,
						signal_strength INTEGER NOT NULL
					)`,
					`CREATE INDEX IF NOT EXISTS idx_cache_readings_sensor_time ON cache_readings(sensor_id, recorded_at)`,

					`CREATE TABLE IF NOT EXISTS cache_summaries (
						id INTEGER PRIMARY KEY AUTOINCREMENT,
						sensor_id TEXT NOT NULL,
						recorded_at DATETIME NOT NULL,
						avg_co2 REAL NOT NULL,
						co2_trend REAL NOT NULL,
						anomaly_score REAL NOT NULL,
						data_quality REAL NOT NULL,
						edge_filtered INTEGER NOT NULL DEFAULT 1,
						bandwidth_saved REAL NOT NULL DEFAULT 0,
						transmitted INTEGER NOT NULL DEFAULT 0
					)`,
					`CREATE INDEX IF NOT EXISTS idx_cache_summaries_sensor_time ON cache_summaries(sensor_id, recorded_at)`,
					`CREATE INDEX IF NOT EXISTS idx_cache_summaries_unsent ON cache_summaries(transmitted, id)`,

					`CREATE TABLE IF NOT EXISTS cache_anomalies (
						id TEXT PRIMARY KEY,
						sensor_id TEXT NOT NULL,
						recorded_at DATETIME NOT NULL,
						anomaly_type TEXT NOT NULL,
						severity TEXT NOT NULL,
						confidence REAL NOT NULL,
						suggested_action TEXT NOT NULL DEFAULT ''
					)`,
					`CREATE INDEX IF NOT EXISTS idx_cache_anomalies_sensor_time ON cache_anomalies(sensor_id, recorded_at)`,
				}
				for _, stmt := range stmts {
					if _, err := tx.Exec(stmt); err != nil {
						return err
					}
				}
				return nil
			},
		},
	}
}

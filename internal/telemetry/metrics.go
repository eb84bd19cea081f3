package telemetry

import "github.com/prometheus/client_golang/prometheus"

// Pipeline metrics, fed from engine bus events.
var (
	readingsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edgesentry_readings_total",
			Help: "Total readings ingested, by processing outcome.",
		},
		[]string{"outcome"},
	)
	windowsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edgesentry_windows_total",
			Help: "Total processed windows, by policy reason and delivery.",
		},
		[]string{"reason", "transmitted"},
	)
	anomaliesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edgesentry_anomalies_total",
			Help: "Total classified anomalies, by type and severity.",
		},
		[]string{"type", "severity"},
	)
	bandwidthSavedBytes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "edgesentry_bandwidth_saved_bytes_total",
			Help: "Bytes withheld from upstream transmission.",
		},
	)
	windowLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "edgesentry_window_processing_seconds",
			Help:    "Time from window-closing reading to dispatch decision.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
		},
	)
	windowCO2 = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "edgesentry_window_co2_ppm",
			Help: "Average CO2 of the most recent window, per sensor.",
		},
		[]string{"sensor_id"},
	)
	windowQuality = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "edgesentry_window_data_quality",
			Help: "Data quality of the most recent window, per sensor.",
		},
		[]string{"sensor_id"},
	)
)

func init() {
	prometheus.MustRegister(readingsTotal)
	prometheus.MustRegister(windowsTotal)
	prometheus.MustRegister(anomaliesTotal)
	prometheus.MustRegister(bandwidthSavedBytes)
	prometheus.MustRegister(windowLatency)
	prometheus.MustRegister(windowCO2)
	prometheus.MustRegister(windowQuality)
}

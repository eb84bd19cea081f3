package engine

import (
	"time"

	"github.com/carbonloop/edgesentry/pkg/plugin"
)

// Config holds the edge processing parameters. All thresholds are
// override-able from the modules.engine config section.
type Config struct {
	// WindowSize is the number of readings per analysis window.
	WindowSize int `mapstructure:"window_size"`

	// BandwidthSaveTarget is the savings ratio the policy defends (0-1).
	BandwidthSaveTarget float64 `mapstructure:"bandwidth_save_target"`

	// SignificantTrend is the |trend| above which a summary always transmits.
	SignificantTrend float64 `mapstructure:"significant_trend"`

	// PeriodicTransmitEvery forces a heartbeat transmit on every Nth
	// processed window, bounding upstream staleness.
	PeriodicTransmitEvery int `mapstructure:"periodic_transmit_every"`

	// Classifier thresholds.
	HighConcentration     float64 `mapstructure:"high_concentration"`
	ElevatedConcentration float64 `mapstructure:"elevated_concentration"`
	RapidChange           float64 `mapstructure:"rapid_change"`
	QualityAlert          float64 `mapstructure:"quality_alert"`
	StatisticalThreshold  float64 `mapstructure:"statistical_threshold"`

	// HighVariance is the measurement stddev above which data quality is
	// penalized.
	HighVariance float64 `mapstructure:"high_variance"`

	// TopicPrefix is prepended to upstream publish topics.
	TopicPrefix string `mapstructure:"topic_prefix"`

	// IngestBuffer is the per-sensor queue depth between the bus handler
	// and the sensor's processing goroutine.
	IngestBuffer int `mapstructure:"ingest_buffer"`

	// BoostDuration is how long sampling stays raised after a
	// high-severity anomaly.
	BoostDuration time.Duration `mapstructure:"boost_duration"`

	// ResyncInterval is how often withheld/unsent summaries are retried
	// upstream. Zero disables the resync loop.
	ResyncInterval time.Duration `mapstructure:"resync_interval"`
}

// DefaultConfig returns the documented defaults for the processing engine.
func DefaultConfig() Config {
	return Config{
		WindowSize:            10,
		BandwidthSaveTarget:   0.7,
		SignificantTrend:      10,
		PeriodicTransmitEvery: 5,
		HighConcentration:     1000,
		ElevatedConcentration: 800,
		RapidChange:           50,
		QualityAlert:          0.5,
		StatisticalThreshold:  0.8,
		HighVariance:          100,
		TopicPrefix:           "scin",
		IngestBuffer:          64,
		BoostDuration:         time.Hour,
		ResyncInterval:        5 * time.Minute,
	}
}

// applyOverrides layers explicitly-set config keys over defaults.
func (c *Config) applyOverrides(cfg plugin.Config) {
	if cfg == nil {
		return
	}
	if cfg.IsSet("window_size") {
		c.WindowSize = cfg.GetInt("window_size")
	}
	if cfg.IsSet("bandwidth_save_target") {
		c.BandwidthSaveTarget = cfg.GetFloat64("bandwidth_save_target")
	}
	if cfg.IsSet("significant_trend") {
		c.SignificantTrend = cfg.GetFloat64("significant_trend")
	}
	if cfg.IsSet("periodic_transmit_every") {
		c.PeriodicTransmitEvery = cfg.GetInt("periodic_transmit_every")
	}
	if cfg.IsSet("high_concentration") {
		c.HighConcentration = cfg.GetFloat64("high_concentration")
	}
	if cfg.IsSet("elevated_concentration") {
		c.ElevatedConcentration = cfg.GetFloat64("elevated_concentration")
	}
	if cfg.IsSet("rapid_change") {
		c.RapidChange = cfg.GetFloat64("rapid_change")
	}
	if cfg.IsSet("quality_alert") {
		c.QualityAlert = cfg.GetFloat64("quality_alert")
	}
	if cfg.IsSet("statistical_threshold") {
		c.StatisticalThreshold = cfg.GetFloat64("statistical_threshold")
	}
	if cfg.IsSet("high_variance") {
		c.HighVariance = cfg.GetFloat64("high_variance")
	}
	if p := cfg.GetString("topic_prefix"); p != "" {
		c.TopicPrefix = p
	}
	if cfg.IsSet("ingest_buffer") {
		c.IngestBuffer = cfg.GetInt("ingest_buffer")
	}
	if d := cfg.GetDuration("boost_duration"); d > 0 {
		c.BoostDuration = d
	}
	if cfg.IsSet("resync_interval") {
		c.ResyncInterval = cfg.GetDuration("resync_interval")
	}
}

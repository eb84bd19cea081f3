package mqtt

import "time"

// Config holds MQTT uplink configuration.
type Config struct {
	BrokerURL string `mapstructure:"broker_url"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"` //nolint:gosec // G101: config field name, not a credential
	ClientID  string `mapstructure:"client_id"`

	// QoSNormal carries routine summaries; QoSAlert carries anomaly alerts
	// with at-least-once delivery.
	QoSNormal byte `mapstructure:"qos_normal"`
	QoSAlert  byte `mapstructure:"qos_alert"`

	Retain  bool          `mapstructure:"retain"`
	UseTLS  bool          `mapstructure:"use_tls"`
	Timeout time.Duration `mapstructure:"timeout"`

	// StatusTopic carries online/offline presence for this edge node via
	// a retained last-will message. Empty disables presence reporting.
	StatusTopic string `mapstructure:"status_topic"`

	// Home Assistant MQTT auto-discovery settings.
	HADiscovery       bool   `mapstructure:"ha_discovery"`        // Enable HA auto-discovery (default: false)
	HADiscoveryPrefix string `mapstructure:"ha_discovery_prefix"` // HA discovery topic prefix (default: "homeassistant")
	SensorTopicPrefix string `mapstructure:"sensor_topic_prefix"` // Prefix of processed-reading topics (default: "scin")
}

// DefaultConfig returns sensible defaults for the MQTT uplink.
func DefaultConfig() Config {
	return Config{
		BrokerURL:         "", // disabled by default
		ClientID:          "edgesentry",
		QoSNormal:         0,
		QoSAlert:          1,
		Retain:            false,
		Timeout:           5 * time.Second,
		StatusTopic:       "scin/status/edgesentry",
		HADiscovery:       false,
		HADiscoveryPrefix: "homeassistant",
		SensorTopicPrefix: "scin",
	}
}

package mqtt

import (
	"encoding/json"
	"regexp"
	"strings"
)

// nonAlphanumeric matches any character that is not alphanumeric or underscore.
var nonAlphanumeric = regexp.MustCompile(`[^a-zA-Z0-9_]`)

// DiscoveryConfig holds a single HA MQTT discovery payload.
type DiscoveryConfig struct {
	Topic   string // Full MQTT topic (homeassistant/...)
	Payload []byte // JSON-encoded config (empty = remove)
}

// HADevice is the "device" block in HA discovery payloads.
type HADevice struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Model        string   `json:"model,omitempty"`
	Manufacturer string   `json:"manufacturer,omitempty"`
}

// SensorEntityConfig is the HA discovery payload for a sensor entity fed
// from the processed-summary topic.
type SensorEntityConfig struct {
	Name              string   `json:"name"`
	ObjectID          string   `json:"object_id"`
	UniqueID          string   `json:"unique_id"`
	StateTopic        string   `json:"state_topic"`
	ValueTemplate     string   `json:"value_template,omitempty"`
	UnitOfMeasurement string   `json:"unit_of_measurement,omitempty"`
	DeviceClass       string   `json:"device_class,omitempty"`
	Icon              string   `json:"icon,omitempty"`
	Device            HADevice `json:"device"`
}

// SafeObjectID sanitizes a string for use as an HA object_id.
// Replaces any non-alphanumeric character (except underscore) with underscore,
// lowercases, and trims leading/trailing underscores.
func SafeObjectID(s string) string {
	s = strings.ToLower(s)
	s = nonAlphanumeric.ReplaceAllString(s, "_")
	s = strings.Trim(s, "_")
	if s == "" {
		return "unknown"
	}
	return s
}

// sensorEntity describes one derived HA entity per sensor.
type sensorEntity struct {
	suffix      string
	name        string
	template    string
	unit        string
	deviceClass string
	icon        string
}

var sensorEntities = []sensorEntity{
	{
		suffix:      "co2",
		name:        "CO2",
		template:    "{{ value_json.avg_co2 | round(1) }}",
		unit:        "ppm",
		deviceClass: "carbon_dioxide",
	},
	{
		suffix:   "trend",
		name:     "CO2 Trend",
		template: "{{ value_json.co2_trend | round(3) }}",
		unit:     "ppm/s",
		icon:     "mdi:trending-up",
	},
	{
		suffix:   "quality",
		name:     "Data Quality",
		template: "{{ value_json.data_quality | round(2) }}",
		icon:     "mdi:check-decagram",
	},
	{
		suffix:   "anomaly_score",
		name:     "Anomaly Score",
		template: "{{ value_json.anomaly_score | round(2) }}",
		icon:     "mdi:alert-circle-outline",
	},
}

// BuildSensorDiscoveryConfigs returns the HA discovery payloads announcing
// one CO2 sensor's entities. The state topic is the sensor's processed
// summary topic; each entity extracts its field with a value template.
func BuildSensorDiscoveryConfigs(sensorID, topicPrefix, haPrefix string) []DiscoveryConfig {
	objectBase := SafeObjectID(sensorID)
	stateTopic := topicPrefix + "/sensors/" + sensorID + "/processed"

	device := HADevice{
		Identifiers:  []string{"edgesentry_" + sensorID},
		Name:         sensorID,
		Model:        "CO2 edge sensor",
		Manufacturer: "EdgeSentry",
	}

	configs := make([]DiscoveryConfig, 0, len(sensorEntities))
	for _, entity := range sensorEntities {
		objectID := objectBase + "_" + entity.suffix
		cfg := SensorEntityConfig{
			Name:              entity.name,
			ObjectID:          objectID,
			UniqueID:          "edgesentry_" + objectID,
			StateTopic:        stateTopic,
			ValueTemplate:     entity.template,
			UnitOfMeasurement: entity.unit,
			DeviceClass:       entity.deviceClass,
			Icon:              entity.icon,
			Device:            device,
		}
		payload, err := json.Marshal(cfg)
		if err != nil {
			continue
		}
		configs = append(configs, DiscoveryConfig{
			Topic:   haPrefix + "/sensor/" + objectID + "/config",
			Payload: payload,
		})
	}
	return configs
}

// BuildSensorRemovalConfigs returns empty retained payloads that delete a
// sensor's entities from HA.
func BuildSensorRemovalConfigs(sensorID, haPrefix string) []DiscoveryConfig {
	objectBase := SafeObjectID(sensorID)
	configs := make([]DiscoveryConfig, 0, len(sensorEntities))
	for _, entity := range sensorEntities {
		configs = append(configs, DiscoveryConfig{
			Topic: haPrefix + "/sensor/" + objectBase + "_" + entity.suffix + "/config",
		})
	}
	return configs
}

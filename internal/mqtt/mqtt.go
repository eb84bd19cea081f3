// Package mqtt is the upstream uplink: it publishes processed summaries
// and anomaly alerts to an MQTT broker on behalf of the engine, and can
// announce sensors to Home Assistant via MQTT auto-discovery.
package mqtt

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"sync"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/carbonloop/edgesentry/internal/engine"
	"github.com/carbonloop/edgesentry/pkg/models"
	"github.com/carbonloop/edgesentry/pkg/plugin"
)

// Compile-time interface guards.
var (
	_ plugin.Plugin          = (*Module)(nil)
	_ plugin.EventSubscriber = (*Module)(nil)
	_ plugin.HealthChecker   = (*Module)(nil)
	_ engine.Publisher       = (*Module)(nil)
)

// ErrNotConnected is returned when a publish is attempted with no broker
// connection. Callers keep the payload cached and retry via resync.
var ErrNotConnected = errors.New("mqtt: not connected to broker")

// Module implements the MQTT uplink plugin.
type Module struct {
	logger *zap.Logger
	cfg    Config

	mu     sync.RWMutex
	client pahomqtt.Client

	// announced tracks sensors already published to HA discovery.
	announced map[string]bool
}

// New creates a new MQTT uplink plugin instance.
func New() *Module {
	return &Module{announced: make(map[string]bool)}
}

func (m *Module) Info() plugin.PluginInfo {
	return plugin.PluginInfo{
		Name:        "mqtt",
		Version:     "0.1.0",
		Description: "Publishes summaries and alerts to an MQTT broker",
	}
}

func (m *Module) Init(_ context.Context, deps plugin.Dependencies) error {
	m.logger = deps.Logger
	m.cfg = DefaultConfig()

	if deps.Config != nil {
		if u := deps.Config.GetString("broker_url"); u != "" {
			m.cfg.BrokerURL = u
		}
		if u := deps.Config.GetString("username"); u != "" {
			m.cfg.Username = u
		}
		if p := deps.Config.GetString("password"); p != "" {
			m.cfg.Password = p
		}
		if c := deps.Config.GetString("client_id"); c != "" {
			m.cfg.ClientID = c
		}
		if deps.Config.IsSet("qos_normal") {
			m.cfg.QoSNormal = byte(deps.Config.GetInt("qos_normal"))
		}
		if deps.Config.IsSet("qos_alert") {
			m.cfg.QoSAlert = byte(deps.Config.GetInt("qos_alert"))
		}
		if deps.Config.IsSet("retain") {
			m.cfg.Retain = deps.Config.GetBool("retain")
		}
		if deps.Config.IsSet("use_tls") {
			m.cfg.UseTLS = deps.Config.GetBool("use_tls")
		}
		if d := deps.Config.GetDuration("timeout"); d > 0 {
			m.cfg.Timeout = d
		}
		if deps.Config.IsSet("status_topic") {
			m.cfg.StatusTopic = deps.Config.GetString("status_topic")
		}
		if deps.Config.IsSet("ha_discovery") {
			m.cfg.HADiscovery = deps.Config.GetBool("ha_discovery")
		}
		if p := deps.Config.GetString("ha_discovery_prefix"); p != "" {
			m.cfg.HADiscoveryPrefix = p
		}
		if p := deps.Config.GetString("sensor_topic_prefix"); p != "" {
			m.cfg.SensorTopicPrefix = p
		}
	}

	if m.cfg.BrokerURL == "" {
		m.logger.Warn("MQTT broker URL not configured; summaries stay cached locally",
			zap.String("component", "mqtt"),
		)
	}

	m.logger.Info("mqtt module initialized",
		zap.String("broker_url", m.cfg.BrokerURL),
		zap.String("client_id", m.cfg.ClientID),
		zap.Uint8("qos_normal", m.cfg.QoSNormal),
		zap.Uint8("qos_alert", m.cfg.QoSAlert),
		zap.Bool("ha_discovery", m.cfg.HADiscovery),
	)
	return nil
}

func (m *Module) Start(_ context.Context) error {
	if m.cfg.BrokerURL == "" {
		m.logger.Info("mqtt module started (no broker configured)")
		return nil
	}

	opts := pahomqtt.NewClientOptions().
		AddBroker(m.cfg.BrokerURL).
		SetClientID(m.cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(m.cfg.Timeout)

	if m.cfg.Username != "" {
		opts.SetUsername(m.cfg.Username)
		opts.SetPassword(m.cfg.Password) //nolint:gosec // G101: config field
	}
	if m.cfg.UseTLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}
	if m.cfg.StatusTopic != "" {
		// Retained last-will so upstream sees an unclean disconnect.
		opts.SetWill(m.cfg.StatusTopic, "offline", m.cfg.QoSAlert, true)
		opts.SetOnConnectHandler(func(c pahomqtt.Client) {
			c.Publish(m.cfg.StatusTopic, m.cfg.QoSAlert, true, "online")
		})
	}

	client := pahomqtt.NewClient(opts)
	m.mu.Lock()
	m.client = client
	m.mu.Unlock()

	token := client.Connect()
	switch {
	case !token.WaitTimeout(m.cfg.Timeout):
		m.logger.Warn("mqtt connection timed out; will reconnect in background")
	case token.Error() != nil:
		m.logger.Warn("mqtt connection failed; will reconnect in background",
			zap.Error(token.Error()),
		)
	default:
		m.logger.Info("mqtt connected to broker",
			zap.String("broker_url", m.cfg.BrokerURL),
		)
	}
	return nil
}

func (m *Module) Stop(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.client != nil && m.client.IsConnected() {
		if m.cfg.StatusTopic != "" {
			m.client.Publish(m.cfg.StatusTopic, m.cfg.QoSAlert, true, "offline")
		}
		m.client.Disconnect(250)
		m.logger.Info("mqtt disconnected")
	}
	return nil
}

// Publish implements engine.Publisher. Priority selects the QoS class.
// Returns ErrNotConnected when the broker is unavailable so the caller's
// store-and-forward path takes over.
func (m *Module) Publish(_ context.Context, topic string, payload []byte, priority models.Priority) error {
	m.mu.RLock()
	client := m.client
	m.mu.RUnlock()

	if client == nil || !client.IsConnected() {
		return ErrNotConnected
	}

	qos := m.cfg.QoSNormal
	if priority == models.PriorityHigh {
		qos = m.cfg.QoSAlert
	}

	token := client.Publish(topic, qos, m.cfg.Retain, payload)
	if !token.WaitTimeout(m.cfg.Timeout) {
		return fmt.Errorf("mqtt: publish to %q timed out", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt: publish to %q: %w", topic, err)
	}

	m.logger.Debug("mqtt published",
		zap.String("topic", topic),
		zap.Uint8("qos", qos),
		zap.Int("bytes", len(payload)),
	)
	return nil
}

// Subscriptions implements plugin.EventSubscriber: the uplink watches the
// engine's reading events to announce new sensors to Home Assistant.
func (m *Module) Subscriptions() []plugin.Subscription {
	return []plugin.Subscription{
		{Topic: engine.TopicReadingIngested, Handler: m.onReading},
	}
}

// Health implements plugin.HealthChecker.
func (m *Module) Health(_ context.Context) plugin.HealthStatus {
	if m.cfg.BrokerURL == "" {
		return plugin.HealthStatus{
			Status:  "degraded",
			Message: "no broker configured, summaries stay cached",
		}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.client == nil || !m.client.IsConnected() {
		return plugin.HealthStatus{
			Status:  "degraded",
			Message: "not connected to MQTT broker",
		}
	}
	return plugin.HealthStatus{
		Status:  "healthy",
		Message: "connected to " + m.cfg.BrokerURL,
	}
}

// onReading announces a sensor to HA discovery the first time it is seen.
func (m *Module) onReading(_ context.Context, event plugin.Event) {
	if !m.cfg.HADiscovery {
		return
	}

	re, ok := event.Payload.(engine.ReadingEvent)
	if !ok {
		return
	}
	sensorID := re.Reading.SensorID

	m.mu.Lock()
	if m.announced[sensorID] {
		m.mu.Unlock()
		return
	}
	client := m.client
	if client == nil || !client.IsConnected() {
		m.mu.Unlock()
		return
	}
	m.announced[sensorID] = true
	m.mu.Unlock()

	configs := BuildSensorDiscoveryConfigs(sensorID, m.cfg.SensorTopicPrefix, m.cfg.HADiscoveryPrefix)
	for i := range configs {
		// Discovery configs are always retained so HA picks them up on restart.
		token := client.Publish(configs[i].Topic, m.cfg.QoSNormal, true, configs[i].Payload)
		if !token.WaitTimeout(m.cfg.Timeout) {
			m.logger.Warn("ha discovery publish timed out",
				zap.String("topic", configs[i].Topic),
			)
			continue
		}
		if err := token.Error(); err != nil {
			m.logger.Warn("ha discovery publish failed",
				zap.String("topic", configs[i].Topic),
				zap.Error(err),
			)
		}
	}
	m.logger.Info("sensor announced to home assistant", zap.String("sensor_id", sensorID))
}

package engine

import (
	"context"

	"go.uber.org/zap"

	"github.com/carbonloop/edgesentry/pkg/models"
	"github.com/carbonloop/edgesentry/pkg/plugin"
)

// Compile-time interface guards.
var (
	_ plugin.Plugin          = (*Module)(nil)
	_ plugin.EventSubscriber = (*Module)(nil)
	_ plugin.HealthChecker   = (*Module)(nil)
)

// Module wraps the processing engine as an EdgeSentry plugin. The
// composition root wires the publisher, cache, and escalation hooks
// through the setters between Init and Start.
type Module struct {
	logger  *zap.Logger
	cfg     Config
	manager *Manager

	escalator *Escalator
	resyncer  *Resyncer

	publisher Publisher
	cache     Cache
}

// New creates the engine module.
func New() *Module {
	return &Module{}
}

func (m *Module) Info() plugin.PluginInfo {
	return plugin.PluginInfo{
		Name:         "engine",
		Version:      "0.1.0",
		Description:  "Edge telemetry processing and transmission policy",
		Dependencies: []string{"cache"},
		Required:     true,
	}
}

func (m *Module) Init(ctx context.Context, deps plugin.Dependencies) error {
	m.logger = deps.Logger
	m.cfg = DefaultConfig()
	m.cfg.applyOverrides(deps.Config)

	m.escalator = NewEscalator(m.cfg, m.logger.Named("escalator"))
	m.manager = NewManager(m.cfg, m.logger, m.escalator)
	m.manager.SetBus(deps.Bus)

	m.logger.Info("engine module initialized",
		zap.Int("window_size", m.cfg.WindowSize),
		zap.Float64("bandwidth_save_target", m.cfg.BandwidthSaveTarget))
	return nil
}

func (m *Module) Start(ctx context.Context) error {
	m.resyncer = NewResyncer(m.cfg, m.logger.Named("resync"), m.cache, m.publisher)
	m.resyncer.Start(ctx)
	m.logger.Info("engine module started")
	return nil
}

func (m *Module) Stop(ctx context.Context) error {
	if m.resyncer != nil {
		m.resyncer.Stop()
	}
	if m.manager != nil {
		m.manager.Stop()
	}
	m.logger.Info("engine module stopped")
	return nil
}

// Health implements plugin.HealthChecker.
func (m *Module) Health(ctx context.Context) plugin.HealthStatus {
	if m.manager == nil {
		return plugin.HealthStatus{Status: "unhealthy", Message: "not initialized"}
	}
	if m.publisher == nil {
		return plugin.HealthStatus{Status: "degraded", Message: "no upstream publisher, running offline"}
	}
	return plugin.HealthStatus{Status: "healthy"}
}

// Subscriptions implements plugin.EventSubscriber: the engine consumes
// raw readings from the sensor module's bus topic.
func (m *Module) Subscriptions() []plugin.Subscription {
	return []plugin.Subscription{
		{Topic: topicSensorReading, Handler: m.onReading},
	}
}

func (m *Module) onReading(ctx context.Context, event plugin.Event) {
	reading, ok := ReadingFromEvent(event)
	if !ok {
		m.logger.Warn("unexpected payload on reading topic", zap.String("source", event.Source))
		return
	}
	if !m.manager.Submit(ctx, reading) {
		m.logger.Debug("reading dropped during shutdown", zap.String("sensor_id", reading.SensorID))
	}
}

// SetPublisher wires the upstream publisher into the pipeline, the
// escalator, and the resync loop. Call before Start.
func (m *Module) SetPublisher(p Publisher) {
	m.publisher = p
	m.manager.SetPublisher(p)
	m.escalator.SetPublisher(p)
}

// SetCache wires the local persistence layer. Call before Start.
func (m *Module) SetCache(c Cache) {
	m.cache = c
	m.manager.SetCache(c)
	m.escalator.SetCache(c)
}

// SetEmergencyHandler wires the critical-severity escalation hook.
func (m *Module) SetEmergencyHandler(h EmergencyHandler) {
	m.escalator.SetEmergencyHandler(h)
}

// SetSamplingController wires the high-severity escalation hook.
func (m *Module) SetSamplingController(s SamplingController) {
	m.escalator.SetSamplingController(s)
}

// SetMaintenanceScheduler wires the medium-severity escalation hook.
func (m *Module) SetMaintenanceScheduler(s MaintenanceScheduler) {
	m.escalator.SetMaintenanceScheduler(s)
}

// Submit feeds one reading into the pipeline directly, bypassing the bus.
func (m *Module) Submit(ctx context.Context, r models.SensorReading) bool {
	return m.manager.Submit(ctx, r)
}

// Report returns per-sensor statistics snapshots.
func (m *Module) Report() []models.EngineStats {
	return m.manager.Report()
}

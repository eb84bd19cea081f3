package sensor

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/carbonloop/edgesentry/pkg/plugin"
)

// Compile-time interface guard.
var _ plugin.Plugin = (*Module)(nil)

// TopicReadingCollected is where simulated readings are published. The
// engine subscribes to it.
const TopicReadingCollected = "sensor.reading.collected"

// Config holds simulator parameters.
type Config struct {
	SensorIDs []string      `mapstructure:"sensor_ids"`
	Interval  time.Duration `mapstructure:"interval"`

	BaselinePPM      float64 `mapstructure:"baseline_ppm"`
	DiurnalAmplitude float64 `mapstructure:"diurnal_amplitude"`
	NoiseAmplitude   float64 `mapstructure:"noise_amplitude"`
	DriftStep        float64 `mapstructure:"drift_step"`

	BatteryDrainPerReading float64 `mapstructure:"battery_drain_per_reading"`
	SignalBase             int     `mapstructure:"signal_base"`
	SignalJitter           int     `mapstructure:"signal_jitter"`

	Latitude  float64 `mapstructure:"lat"`
	Longitude float64 `mapstructure:"lon"`

	// BoostFactor multiplies the sampling rate while a boost is active.
	BoostFactor int `mapstructure:"boost_factor"`
}

// DefaultConfig returns a single indoor sensor sampling every 30 seconds.
func DefaultConfig() Config {
	return Config{
		SensorIDs:              []string{"co2-001"},
		Interval:               30 * time.Second,
		BaselinePPM:            420,
		DiurnalAmplitude:       120,
		NoiseAmplitude:         15,
		DriftStep:              0.05,
		BatteryDrainPerReading: 0.01,
		SignalBase:             -55,
		SignalJitter:           10,
		BoostFactor:            4,
	}
}

// Module runs one simulator goroutine per configured sensor.
type Module struct {
	logger *zap.Logger
	cfg    Config
	bus    plugin.EventBus

	mu     sync.Mutex
	pacers map[string]*pacer

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates the sensor simulator module.
func New() *Module {
	return &Module{pacers: make(map[string]*pacer)}
}

func (m *Module) Info() plugin.PluginInfo {
	return plugin.PluginInfo{
		Name:        "sensor",
		Version:     "0.1.0",
		Description: "Simulated CO2 sensors for bench runs",
	}
}

func (m *Module) Init(_ context.Context, deps plugin.Dependencies) error {
	m.logger = deps.Logger
	m.bus = deps.Bus
	m.cfg = DefaultConfig()

	if cfg := deps.Config; cfg != nil {
		if err := cfg.Unmarshal(&m.cfg); err != nil {
			return fmt.Errorf("sensor config: %w", err)
		}
		if m.cfg.Interval <= 0 {
			m.cfg.Interval = DefaultConfig().Interval
		}
		if len(m.cfg.SensorIDs) == 0 {
			m.cfg.SensorIDs = DefaultConfig().SensorIDs
		}
	}

	m.logger.Info("sensor module initialized",
		zap.Strings("sensors", m.cfg.SensorIDs),
		zap.Duration("interval", m.cfg.Interval))
	return nil
}

func (m *Module) Start(ctx context.Context) error {
	ctx, m.cancel = context.WithCancel(context.Background())

	for _, id := range m.cfg.SensorIDs {
		p := newPacer(m.cfg.Interval, m.cfg.BoostFactor)
		m.mu.Lock()
		m.pacers[id] = p
		m.mu.Unlock()

		sim := NewSimulator(id, m.cfg, seedFor(id))
		m.wg.Add(1)
		go m.run(ctx, sim, p)
	}

	m.logger.Info("sensor module started", zap.Int("sensors", len(m.cfg.SensorIDs)))
	return nil
}

func (m *Module) Stop(_ context.Context) error {
	if m.cancel != nil {
		m.cancel()
		m.wg.Wait()
	}
	m.logger.Info("sensor module stopped")
	return nil
}

// BoostSampling raises a sensor's sampling rate for d. Unknown sensor IDs
// are ignored. Satisfies the engine's sampling controller hook.
func (m *Module) BoostSampling(sensorID string, d time.Duration) {
	m.mu.Lock()
	p, ok := m.pacers[sensorID]
	m.mu.Unlock()
	if !ok {
		m.logger.Warn("boost requested for unknown sensor", zap.String("sensor_id", sensorID))
		return
	}
	p.Boost(d)
	m.logger.Info("sampling boosted",
		zap.String("sensor_id", sensorID),
		zap.Duration("duration", d))
}

func (m *Module) run(ctx context.Context, sim *Simulator, p *pacer) {
	defer m.wg.Done()

	for {
		if err := p.Wait(ctx); err != nil {
			return
		}
		reading := sim.Next(time.Now())
		// Synchronous publish: async dispatch could reorder consecutive
		// readings, and the engine expects non-decreasing timestamps.
		if err := m.bus.Publish(ctx, plugin.Event{
			Topic:     TopicReadingCollected,
			Source:    "sensor",
			Timestamp: reading.Timestamp,
			Payload:   reading,
		}); err != nil {
			m.logger.Warn("reading publish failed",
				zap.String("sensor_id", reading.SensorID),
				zap.Error(err))
		}
	}
}

// seedFor derives a stable per-sensor seed so restarts replay comparable
// profiles per sensor without all sensors marching in lockstep.
func seedFor(sensorID string) int64 {
	h := fnv.New64a()
	h.Write([]byte(sensorID))
	return int64(h.Sum64())
}

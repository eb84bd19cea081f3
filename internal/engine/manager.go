package engine

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/carbonloop/edgesentry/pkg/models"
	"github.com/carbonloop/edgesentry/pkg/plugin"
)

// Manager fans readings out to per-sensor pipelines. Each sensor gets one
// Engine and one goroutine, so readings for the same sensor are processed
// in submission order while different sensors proceed in parallel.
type Manager struct {
	cfg    Config
	logger *zap.Logger

	classifier *Classifier
	policy     *TransmissionPolicy
	escalator  *Escalator

	publisher Publisher
	cache     Cache
	bus       plugin.EventBus

	mu       sync.Mutex
	pipes    map[string]*pipeline
	stopped  bool
	draining sync.WaitGroup

	// sendMu is read-held across every channel send so Stop cannot close
	// a pipeline while a Submit is still using it.
	sendMu sync.RWMutex
}

type pipeline struct {
	engine *Engine
	in     chan models.SensorReading
}

// NewManager creates a manager; pipelines spawn lazily on first reading
// per sensor.
func NewManager(cfg Config, logger *zap.Logger, escalator *Escalator) *Manager {
	return &Manager{
		cfg:        cfg,
		logger:     logger,
		classifier: NewClassifier(cfg),
		policy:     NewTransmissionPolicy(cfg),
		escalator:  escalator,
		pipes:      make(map[string]*pipeline),
	}
}

// SetPublisher wires the upstream publisher into new and existing pipelines.
func (m *Manager) SetPublisher(p Publisher) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publisher = p
	for _, pipe := range m.pipes {
		pipe.engine.SetPublisher(p)
	}
}

// SetCache wires the local persistence layer.
func (m *Manager) SetCache(c Cache) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache = c
	for _, pipe := range m.pipes {
		pipe.engine.SetCache(c)
	}
}

// SetBus wires the event bus.
func (m *Manager) SetBus(bus plugin.EventBus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bus = bus
	for _, pipe := range m.pipes {
		pipe.engine.SetBus(bus)
	}
}

// Submit queues a reading for its sensor's pipeline, blocking when the
// pipeline's buffer is full so a slow consumer exerts backpressure on the
// producer. Returns false after Stop or when ctx is cancelled.
func (m *Manager) Submit(ctx context.Context, r models.SensorReading) bool {
	m.sendMu.RLock()
	defer m.sendMu.RUnlock()

	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return false
	}
	pipe, ok := m.pipes[r.SensorID]
	if !ok {
		pipe = m.spawnLocked(r.SensorID)
	}
	m.mu.Unlock()

	select {
	case pipe.in <- r:
		return true
	case <-ctx.Done():
		return false
	}
}

// spawnLocked creates and starts a pipeline; the caller holds m.mu.
func (m *Manager) spawnLocked(sensorID string) *pipeline {
	eng := NewEngine(sensorID, m.cfg, m.logger, m.classifier, m.policy, m.escalator)
	eng.SetPublisher(m.publisher)
	eng.SetCache(m.cache)
	eng.SetBus(m.bus)

	buffer := m.cfg.IngestBuffer
	if buffer < 1 {
		buffer = DefaultConfig().IngestBuffer
	}
	pipe := &pipeline{engine: eng, in: make(chan models.SensorReading, buffer)}
	m.pipes[sensorID] = pipe

	m.draining.Add(1)
	go m.run(pipe)

	m.logger.Info("sensor pipeline started", zap.String("sensor_id", sensorID))
	return pipe
}

func (m *Manager) run(pipe *pipeline) {
	defer m.draining.Done()
	for r := range pipe.in {
		pipe.engine.Ingest(context.Background(), r)
	}
}

// Stop refuses further submissions, lets in-flight Submits finish, drains
// every queued reading, and waits for the pipelines to finish.
func (m *Manager) Stop() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	m.mu.Unlock()

	// The pipelines keep consuming, so blocked senders clear; the write
	// lock waits for all of them before the channels close.
	m.sendMu.Lock()
	m.mu.Lock()
	for _, pipe := range m.pipes {
		close(pipe.in)
	}
	m.mu.Unlock()
	m.sendMu.Unlock()

	m.draining.Wait()
}

// Report returns per-sensor statistics snapshots ordered by sensor ID.
func (m *Manager) Report() []models.EngineStats {
	m.mu.Lock()
	engines := make([]*Engine, 0, len(m.pipes))
	for _, pipe := range m.pipes {
		engines = append(engines, pipe.engine)
	}
	m.mu.Unlock()

	stats := make([]models.EngineStats, 0, len(engines))
	for _, eng := range engines {
		stats = append(stats, eng.Report())
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].SensorID < stats[j].SensorID })
	return stats
}

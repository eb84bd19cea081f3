package cache

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/carbonloop/edgesentry/pkg/plugin"
)

// Compile-time interface guards.
var (
	_ plugin.Plugin        = (*Module)(nil)
	_ plugin.HealthChecker = (*Module)(nil)
)

const (
	defaultRetention     = 7 * 24 * time.Hour
	defaultPruneInterval = time.Hour
)

// Module wraps the local cache as an EdgeSentry plugin. It owns the
// cache tables on the shared store and runs the retention pruner.
type Module struct {
	logger *zap.Logger
	store  *CacheStore

	retention     time.Duration
	pruneInterval time.Duration

	cancel context.CancelFunc
	done   chan struct{}
}

// New creates the cache module.
func New() *Module {
	return &Module{}
}

func (m *Module) Info() plugin.PluginInfo {
	return plugin.PluginInfo{
		Name:        "cache",
		Version:     "0.1.0",
		Description: "Local store-and-forward telemetry cache",
		Required:    true,
	}
}

func (m *Module) Init(ctx context.Context, deps plugin.Dependencies) error {
	m.logger = deps.Logger
	if deps.Store == nil {
		return fmt.Errorf("cache module requires the shared store")
	}
	if err := deps.Store.Migrate(ctx, "cache", migrations()); err != nil {
		return fmt.Errorf("migrating cache schema: %w", err)
	}
	m.store = NewCacheStore(deps.Store.DB())

	m.retention = defaultRetention
	m.pruneInterval = defaultPruneInterval
	if cfg := deps.Config; cfg != nil {
		if d := cfg.GetDuration("retention"); d > 0 {
			m.retention = d
		}
		if d := cfg.GetDuration("prune_interval"); d > 0 {
			m.pruneInterval = d
		}
	}

	m.logger.Info("cache module initialized", zap.Duration("retention", m.retention))
	return nil
}

func (m *Module) Start(ctx context.Context) error {
	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})

	go m.pruneLoop(ctx)
	m.logger.Info("cache module started")
	return nil
}

func (m *Module) Stop(ctx context.Context) error {
	if m.cancel != nil {
		m.cancel()
		<-m.done
	}
	m.logger.Info("cache module stopped")
	return nil
}

// Health implements plugin.HealthChecker.
func (m *Module) Health(ctx context.Context) plugin.HealthStatus {
	if m.store == nil {
		return plugin.HealthStatus{Status: "unhealthy", Message: "not initialized"}
	}
	if err := m.store.db.PingContext(ctx); err != nil {
		return plugin.HealthStatus{Status: "unhealthy", Message: err.Error()}
	}
	return plugin.HealthStatus{Status: "healthy"}
}

// Store exposes the cache store for wiring into the engine.
func (m *Module) Store() *CacheStore {
	return m.store
}

func (m *Module) pruneLoop(ctx context.Context) {
	defer close(m.done)
	ticker := time.NewTicker(m.pruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-m.retention)
			n, err := m.store.PruneBefore(ctx, cutoff)
			if err != nil {
				m.logger.Warn("cache prune failed", zap.Error(err))
				continue
			}
			if n > 0 {
				m.logger.Info("cache pruned", zap.Int64("rows", n), zap.Time("cutoff", cutoff))
			}
		}
	}
}

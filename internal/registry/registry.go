// Package registry manages module lifecycle: registration, dependency
// resolution, initialization, and shutdown of EdgeSentry modules.
package registry

import (
	"context"
	"fmt"
	"sync"

	"github.com/carbonloop/edgesentry/pkg/plugin"
	"go.uber.org/zap"
)

// Registry manages the lifecycle of all registered modules.
type Registry struct {
	mu      sync.RWMutex
	modules map[string]plugin.Plugin
	infos   map[string]plugin.PluginInfo
	order   []string // topological order after Validate
	skipped map[string]bool
	logger  *zap.Logger
}

// New creates a new module registry.
func New(logger *zap.Logger) *Registry {
	return &Registry{
		modules: make(map[string]plugin.Plugin),
		infos:   make(map[string]plugin.PluginInfo),
		skipped: make(map[string]bool),
		logger:  logger,
	}
}

// Register adds a module to the registry. Must be called before Validate.
func (r *Registry) Register(m plugin.Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	info := m.Info()
	if info.Name == "" {
		return fmt.Errorf("module has empty name")
	}
	if _, exists := r.modules[info.Name]; exists {
		return fmt.Errorf("module %q already registered", info.Name)
	}

	r.modules[info.Name] = m
	r.infos[info.Name] = info
	r.logger.Info("module registered",
		zap.String("name", info.Name),
		zap.String("version", info.Version),
	)
	return nil
}

// Validate resolves dependencies via topological sort and verifies there
// are no cycles or missing dependencies. A missing dependency is fatal for
// Required modules and skips optional ones.
func (r *Registry) Validate() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for name, info := range r.infos {
		for _, dep := range info.Dependencies {
			if _, ok := r.modules[dep]; ok {
				continue
			}
			if info.Required {
				return fmt.Errorf("module %q depends on %q which is not registered", name, dep)
			}
			r.logger.Warn("skipping module: missing dependency",
				zap.String("name", name),
				zap.String("missing_dep", dep),
			)
			r.skipped[name] = true
			break
		}
	}

	// Skipping cascades: anything depending on a skipped module is skipped too.
	for changed := true; changed; {
		changed = false
		for name, info := range r.infos {
			if r.skipped[name] {
				continue
			}
			for _, dep := range info.Dependencies {
				if !r.skipped[dep] {
					continue
				}
				if info.Required {
					return fmt.Errorf("required module %q cannot start: dependency %q was skipped", name, dep)
				}
				r.skipped[name] = true
				changed = true
				break
			}
		}
	}

	order, err := r.topologicalSort()
	if err != nil {
		return err
	}
	r.order = order

	r.logger.Info("module dependency resolution complete",
		zap.Strings("start_order", r.order),
		zap.Int("skipped", len(r.skipped)),
	)
	return nil
}

// InitAll initializes all active modules in dependency order.
func (r *Registry) InitAll(ctx context.Context, depsFn func(name string) plugin.Dependencies) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, name := range r.order {
		r.logger.Info("initializing module", zap.String("name", name))
		if err := r.modules[name].Init(ctx, depsFn(name)); err != nil {
			if r.infos[name].Required {
				return fmt.Errorf("required module %q failed to initialize: %w", name, err)
			}
			r.logger.Error("optional module failed to initialize, skipping",
				zap.String("name", name),
				zap.Error(err),
			)
			r.skipped[name] = true
		}
	}
	return nil
}

// StartAll starts all initialized modules in dependency order.
func (r *Registry) StartAll(ctx context.Context) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, name := range r.order {
		if r.skipped[name] {
			continue
		}
		r.logger.Info("starting module", zap.String("name", name))
		if err := r.modules[name].Start(ctx); err != nil {
			if r.infos[name].Required {
				return fmt.Errorf("required module %q failed to start: %w", name, err)
			}
			r.logger.Error("optional module failed to start, skipping",
				zap.String("name", name),
				zap.Error(err),
			)
			r.skipped[name] = true
		}
	}
	return nil
}

// StopAll stops all active modules in reverse dependency order.
func (r *Registry) StopAll(ctx context.Context) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for i := len(r.order) - 1; i >= 0; i-- {
		name := r.order[i]
		if r.skipped[name] {
			continue
		}
		r.logger.Info("stopping module", zap.String("name", name))
		if err := r.modules[name].Stop(ctx); err != nil {
			r.logger.Error("failed to stop module", zap.String("name", name), zap.Error(err))
		}
	}
}

// Get returns an active module by name.
func (r *Registry) Get(name string) (plugin.Plugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.modules[name]
	if ok && r.skipped[name] {
		return nil, false
	}
	return m, ok
}

// All returns all active modules in dependency order.
func (r *Registry) All() []plugin.Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]plugin.Plugin, 0, len(r.order))
	for _, name := range r.order {
		if !r.skipped[name] {
			result = append(result, r.modules[name])
		}
	}
	return result
}

// IsSkipped reports whether a module was skipped during validation or startup.
func (r *Registry) IsSkipped(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.skipped[name]
}

// topologicalSort returns module names in dependency order using Kahn's algorithm.
func (r *Registry) topologicalSort() ([]string, error) {
	active := make(map[string]bool)
	for name := range r.modules {
		if !r.skipped[name] {
			active[name] = true
		}
	}

	inDegree := make(map[string]int)
	dependents := make(map[string][]string) // dep -> modules that depend on it

	for name := range active {
		inDegree[name] = 0
	}
	for name := range active {
		for _, dep := range r.infos[name].Dependencies {
			if active[dep] {
				inDegree[name]++
				dependents[dep] = append(dependents[dep], name)
			}
		}
	}

	var queue []string
	for name, degree := range inDegree {
		if degree == 0 {
			queue = append(queue, name)
		}
	}

	var order []string
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		order = append(order, name)

		for _, dependent := range dependents[name] {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
	}

	if len(order) != len(active) {
		var cycled []string
		for name := range active {
			if inDegree[name] > 0 {
				cycled = append(cycled, name)
			}
		}
		return nil, fmt.Errorf("dependency cycle detected among modules: %v", cycled)
	}

	return order, nil
}

// Package manager composes the registry, locator, loader, and factory
// behind a single facade. Nothing in this package is process-global:
// every Manager owns its components, and each one can be injected
// through options when callers need to share or pre-seed them.
package manager

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/petal-labs/pollen/core"
	"github.com/petal-labs/pollen/factory"
	"github.com/petal-labs/pollen/loader"
	"github.com/petal-labs/pollen/registry"
)

// ErrStrategyNotFound is returned by UseStrategy for an unknown label.
var ErrStrategyNotFound = errors.New("manager: fallback strategy not found")

// Manager is the facade over adapter registration, configuration
// loading, and instance construction.
type Manager struct {
	registry *registry.Registry
	locator  *registry.Locator
	loader   *loader.Loader
	factory  *factory.Factory
	logger   *slog.Logger

	mu         sync.RWMutex
	strategies map[string][]string
}

type managerOptions struct {
	logger    *slog.Logger
	registry  *registry.Registry
	locator   *registry.Locator
	cacheSize int
	envPrefix string
}

// Option customizes manager construction.
type Option func(*managerOptions)

// WithLogger sets the logger shared by the composed components.
func WithLogger(logger *slog.Logger) Option {
	return func(o *managerOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithRegistry injects an existing registry instead of constructing one.
func WithRegistry(reg *registry.Registry) Option {
	return func(o *managerOptions) {
		o.registry = reg
	}
}

// WithLocator injects an existing locator instead of constructing one.
func WithLocator(loc *registry.Locator) Option {
	return func(o *managerOptions) {
		o.locator = loc
	}
}

// WithCacheSize sets the factory instance cache capacity.
func WithCacheSize(n int) Option {
	return func(o *managerOptions) {
		o.cacheSize = n
	}
}

// WithEnvPrefix overrides the loader's environment variable prefix.
func WithEnvPrefix(prefix string) Option {
	return func(o *managerOptions) {
		o.envPrefix = prefix
	}
}

// New constructs a manager and the components it composes.
func New(opts ...Option) (*Manager, error) {
	options := managerOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(&options)
	}

	reg := options.registry
	if reg == nil {
		reg = registry.New(registry.WithLogger(options.logger))
	}
	loc := options.locator
	if loc == nil {
		loc = registry.NewLocator()
	}

	factoryOpts := []factory.Option{factory.WithLogger(options.logger)}
	if options.cacheSize > 0 {
		factoryOpts = append(factoryOpts, factory.WithCacheSize(options.cacheSize))
	}
	f, err := factory.New(reg, factoryOpts...)
	if err != nil {
		return nil, err
	}

	loaderOpts := []loader.Option{loader.WithLogger(options.logger)}
	if options.envPrefix != "" {
		loaderOpts = append(loaderOpts, loader.WithEnvPrefix(options.envPrefix))
	}
	l, err := loader.New(reg, loc, loaderOpts...)
	if err != nil {
		return nil, err
	}

	return &Manager{
		registry:   reg,
		locator:    loc,
		loader:     l,
		factory:    f,
		logger:     options.logger,
		strategies: make(map[string][]string),
	}, nil
}

// Registry returns the composed adapter registry.
func (m *Manager) Registry() *registry.Registry { return m.registry }

// Locator returns the composed module locator.
func (m *Manager) Locator() *registry.Locator { return m.locator }

// Loader returns the composed configuration loader.
func (m *Manager) Loader() *loader.Loader { return m.loader }

// Factory returns the composed instance factory.
func (m *Manager) Factory() *factory.Factory { return m.factory }

// LoadConfig loads adapter descriptors from a YAML or JSON file and
// returns the count registered.
func (m *Manager) LoadConfig(path string) (int, error) {
	return m.loader.LoadFile(path)
}

// LoadConfigMap loads adapter descriptors from an in-memory document.
func (m *Manager) LoadConfigMap(doc map[string]any) (int, error) {
	return m.loader.LoadMap(doc)
}

// LoadEnv loads adapter descriptors from environment entries, typically
// os.Environ().
func (m *Manager) LoadEnv(environ []string) (int, error) {
	return m.loader.LoadEnv(environ)
}

// Get returns an adapter instance for name, configured with config.
func (m *Manager) Get(name string, config map[string]any) (core.Adapter, error) {
	return m.factory.Create(name, config)
}

// GetWithFallback tries each candidate in order and returns the first
// (name, adapter) pair that constructs.
func (m *Manager) GetWithFallback(names []string, config map[string]any) (string, core.Adapter, error) {
	return m.factory.CreateWithFallback(names, config)
}

// RegisterStrategy stores a reusable named fallback chain. Registering
// an existing label replaces its chain.
func (m *Manager) RegisterStrategy(label string, names []string) error {
	if label == "" {
		return errors.New("manager: strategy label is required")
	}
	if len(names) == 0 {
		return fmt.Errorf("manager: strategy %q has no candidates", label)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.strategies[label] = slices.Clone(names)
	return nil
}

// Strategy returns the candidate chain stored under label.
func (m *Manager) Strategy(label string) ([]string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names, ok := m.strategies[label]
	if !ok {
		return nil, false
	}
	return slices.Clone(names), true
}

// Strategies returns the registered strategy labels in sorted order.
func (m *Manager) Strategies() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	labels := make([]string, 0, len(m.strategies))
	for label := range m.strategies {
		labels = append(labels, label)
	}
	slices.Sort(labels)
	return labels
}

// UseStrategy resolves the chain stored under label through fallback
// construction.
func (m *Manager) UseStrategy(label string, config map[string]any) (string, core.Adapter, error) {
	names, ok := m.Strategy(label)
	if !ok {
		return "", nil, fmt.Errorf("fallback strategy %q: %w", label, ErrStrategyNotFound)
	}
	return m.factory.CreateWithFallback(names, config)
}

// Reload clears the cached instances for name and demotes its registry
// entry to lazy, forcing re-resolution on the next lookup. Eagerly
// registered adapters have no resolver to re-run; for those only the
// cache is cleared.
func (m *Manager) Reload(name string) error {
	removed := m.factory.ClearCache(name)
	if err := m.registry.Reset(name); err != nil {
		return fmt.Errorf("reload adapter %q: %w", name, err)
	}
	m.logger.Debug("adapter reloaded", "adapter", name, "cache_removed", removed)
	return nil
}

// ReloadAll reloads every registered adapter, collecting per-adapter
// failures without aborting the batch.
func (m *Manager) ReloadAll() error {
	var errs []error
	for _, name := range m.registry.Names() {
		if err := m.Reload(name); err != nil {
			m.logger.Warn("adapter reload failed", "adapter", name, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

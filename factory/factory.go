// Package factory constructs adapter instances for Pollen. Construction
// sources are custom builders and registry resolution; results are memoized
// in an LRU cache keyed by adapter name and canonicalized configuration, and
// ordered fallback chains return the first candidate that builds.
package factory

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/petal-labs/pollen/core"
	"github.com/petal-labs/pollen/registry"
)

// DefaultCacheSize bounds the instance cache when no size is configured.
const DefaultCacheSize = 128

// Builder constructs an adapter from configuration, bypassing the registry.
type Builder func(config map[string]any) (core.Adapter, error)

// Factory builds adapters by name.
type Factory struct {
	registry *registry.Registry
	mu       sync.RWMutex
	builders map[string]Builder
	cache    *lru.Cache[string, core.Adapter]
	logger   *slog.Logger
}

type factoryOptions struct {
	cacheSize int
	logger    *slog.Logger
}

// Option configures a Factory.
type Option func(*factoryOptions)

// WithCacheSize sets the instance cache capacity.
func WithCacheSize(size int) Option {
	return func(o *factoryOptions) {
		if size > 0 {
			o.cacheSize = size
		}
	}
}

// WithLogger sets the logger used for cache and fallback diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(o *factoryOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// New creates a factory backed by reg.
func New(reg *registry.Registry, opts ...Option) (*Factory, error) {
	if reg == nil {
		return nil, errors.New("factory: nil registry")
	}
	fo := factoryOptions{cacheSize: DefaultCacheSize, logger: slog.Default()}
	for _, opt := range opts {
		opt(&fo)
	}
	cache, err := lru.New[string, core.Adapter](fo.cacheSize)
	if err != nil {
		return nil, fmt.Errorf("factory: cache: %w", err)
	}
	return &Factory{
		registry: reg,
		builders: make(map[string]Builder),
		cache:    cache,
		logger:   fo.logger,
	}, nil
}

// RegisterBuilder binds a custom builder for name, taking precedence over
// registry resolution. Later bindings replace earlier ones.
func (f *Factory) RegisterBuilder(name string, b Builder) error {
	if name == "" {
		return errors.New("factory: empty builder name")
	}
	if b == nil {
		return errors.New("factory: nil builder")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.builders[name] = b
	return nil
}

type createOptions struct {
	skipCache bool
}

// CreateOption adjusts a single Create call.
type CreateOption func(*createOptions)

// WithoutCache bypasses both the cache lookup and the cache store.
func WithoutCache() CreateOption {
	return func(o *createOptions) { o.skipCache = true }
}

// Create returns an adapter for name configured with config. Results are
// memoized under a key derived from name and the canonicalized
// configuration, so key order never affects identity. Two goroutines racing
// a cold key may both construct; the cache keeps one winner, which is
// harmless for stateless adapters.
func (f *Factory) Create(name string, config map[string]any, opts ...CreateOption) (core.Adapter, error) {
	var co createOptions
	for _, opt := range opts {
		opt(&co)
	}

	key := cacheKey(name, config)
	if !co.skipCache {
		if adapter, ok := f.cache.Get(key); ok {
			f.logger.Debug("adapter cache hit", "adapter", name)
			return adapter, nil
		}
	}

	adapter, err := f.build(name, config)
	if err != nil {
		return nil, err
	}
	if !co.skipCache {
		f.cache.Add(key, adapter)
	}
	return adapter, nil
}

// build constructs without touching the cache: a custom builder when one is
// bound, otherwise registry resolution plus optional configuration.
func (f *Factory) build(name string, config map[string]any) (core.Adapter, error) {
	f.mu.RLock()
	builder, bound := f.builders[name]
	f.mu.RUnlock()
	if bound {
		adapter, err := builder(config)
		if err != nil {
			return nil, fmt.Errorf("build adapter %q: %w", name, err)
		}
		if adapter == nil {
			return nil, fmt.Errorf("build adapter %q: builder returned nil", name)
		}
		return adapter, nil
	}

	adapter, err := f.registry.Resolve(name)
	if err != nil {
		return nil, err
	}
	if configurable, ok := adapter.(core.Configurable); ok && len(config) > 0 {
		configured, err := configurable.Configure(config)
		if err != nil {
			return nil, fmt.Errorf("configure adapter %q: %w", name, err)
		}
		if configured == nil {
			return nil, fmt.Errorf("configure adapter %q: returned nil", name)
		}
		return configured, nil
	}
	return adapter, nil
}

// CreateWithFallback tries each candidate in order and returns the first
// that constructs, along with its name. Once a candidate succeeds the rest
// are never attempted. When every candidate fails, the error is a
// *core.FallbackError carrying each (name, reason) pair.
func (f *Factory) CreateWithFallback(names []string, config map[string]any) (string, core.Adapter, error) {
	if len(names) == 0 {
		return "", nil, errors.New("factory: no fallback candidates")
	}
	attempts := make([]core.FallbackAttempt, 0, len(names))
	for _, name := range names {
		adapter, err := f.Create(name, config)
		if err == nil {
			return name, adapter, nil
		}
		f.logger.Debug("fallback candidate failed", "adapter", name, "error", err)
		attempts = append(attempts, core.FallbackAttempt{Name: name, Err: err})
	}
	return "", nil, &core.FallbackError{Attempts: attempts}
}

// ClearCache drops every cached instance of name across all configurations
// and reports how many were removed.
func (f *Factory) ClearCache(name string) int {
	prefix := name + ":"
	removed := 0
	for _, key := range f.cache.Keys() {
		if strings.HasPrefix(key, prefix) && f.cache.Remove(key) {
			removed++
		}
	}
	return removed
}

// PurgeCache empties the instance cache.
func (f *Factory) PurgeCache() {
	f.cache.Purge()
}

// CacheLen returns the number of cached instances.
func (f *Factory) CacheLen() int {
	return f.cache.Len()
}

// cacheKey is name plus a short hash of the canonicalized configuration.
func cacheKey(name string, config map[string]any) string {
	sum := sha256.Sum256([]byte(canonicalConfig(config)))
	return name + ":" + hex.EncodeToString(sum[:])[:16]
}

// canonicalConfig renders config deterministically. json.Marshal sorts map
// keys at every depth, so two configs differing only in key order produce
// the same string. Configurations that cannot serialize fall back to a
// sorted key=value join, keeping the mapping stable for the same input.
func canonicalConfig(config map[string]any) string {
	if len(config) == 0 {
		return "{}"
	}
	if raw, err := json.Marshal(config); err == nil {
		return string(raw)
	}
	keys := make([]string, 0, len(config))
	for k := range config {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, config[k]))
	}
	return strings.Join(parts, "&")
}

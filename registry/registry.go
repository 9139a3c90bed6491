// Package registry maps adapter names to registrations for Pollen. Entries
// are eager (adapter supplied up front) or lazy (resolver runs on first
// lookup); promotion is memoized and synchronized, and failed resolutions
// stay lazy so a later lookup can retry.
package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"slices"
	"strings"
	"sync"

	"github.com/petal-labs/pollen/core"
)

// ErrNotRegistered is returned for lookups against unknown names.
var ErrNotRegistered = errors.New("registry: adapter not registered")

// Resolver produces an adapter on demand. A resolver runs at most once
// successfully; after promotion it is retained so the entry can be demoted
// back to lazy on reload.
type Resolver func() (core.Adapter, error)

type entry struct {
	adapter  core.Adapter
	resolver Resolver
	metadata map[string]any
	lazy     bool
}

// Registry holds adapter registrations. A name maps to exactly one
// registration at any instant; all mutation happens under one lock.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
	order   []string // preserves registration order
	logger  *slog.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger used for discovery and resolution warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// New creates an empty registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		entries: make(map[string]*entry),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type registerOptions struct {
	override bool
	metadata map[string]any
}

// RegisterOption adjusts a single registration.
type RegisterOption func(*registerOptions)

// WithOverride allows replacing an existing registration of the same name.
func WithOverride() RegisterOption {
	return func(o *registerOptions) { o.override = true }
}

// WithMetadata attaches metadata to the registration. Repeated uses merge.
func WithMetadata(md map[string]any) RegisterOption {
	return func(o *registerOptions) {
		if len(md) == 0 {
			return
		}
		if o.metadata == nil {
			o.metadata = make(map[string]any, len(md))
		}
		for k, v := range md {
			o.metadata[k] = v
		}
	}
}

func applyRegisterOptions(opts []RegisterOption) registerOptions {
	var ro registerOptions
	for _, opt := range opts {
		opt(&ro)
	}
	return ro
}

// Register adds an eager registration for name. Without WithOverride, a
// second registration of an existing name is a *core.ConflictError.
func (r *Registry) Register(name string, adapter core.Adapter, opts ...RegisterOption) error {
	if name == "" {
		return errors.New("registry: empty adapter name")
	}
	if adapter == nil {
		return errors.New("registry: nil adapter")
	}
	ro := applyRegisterOptions(opts)

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[name]; exists && !ro.override {
		return &core.ConflictError{Name: name}
	}
	r.put(name, &entry{adapter: adapter, metadata: ro.metadata})
	return nil
}

// RegisterLazy adds a deferred registration whose resolver runs on the first
// lookup. The same conflict rules as Register apply.
func (r *Registry) RegisterLazy(name string, resolver Resolver, opts ...RegisterOption) error {
	if name == "" {
		return errors.New("registry: empty adapter name")
	}
	if resolver == nil {
		return errors.New("registry: nil resolver")
	}
	ro := applyRegisterOptions(opts)

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[name]; exists && !ro.override {
		return &core.ConflictError{Name: name}
	}
	r.put(name, &entry{resolver: resolver, metadata: ro.metadata, lazy: true})
	return nil
}

// put assumes r.mu is held.
func (r *Registry) put(name string, e *entry) {
	if _, exists := r.entries[name]; !exists {
		r.order = append(r.order, name)
	}
	r.entries[name] = e
}

// Resolve returns the adapter registered under name. Lazy entries run their
// resolver under the write lock, so promotion happens exactly once; a failed
// resolution returns *core.ResolutionError and leaves the entry lazy.
func (r *Registry) Resolve(name string) (core.Adapter, error) {
	r.mu.RLock()
	if e, ok := r.entries[name]; ok && !e.lazy {
		adapter := e.adapter
		r.mu.RUnlock()
		return adapter, nil
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[name]
	if !ok {
		return nil, fmt.Errorf("adapter %q: %w", name, ErrNotRegistered)
	}
	if !e.lazy {
		return e.adapter, nil
	}

	adapter, err := e.resolver()
	if err != nil {
		return nil, &core.ResolutionError{Name: name, Cause: err}
	}
	if adapter == nil {
		return nil, &core.ResolutionError{Name: name, Cause: errors.New("resolver returned nil adapter")}
	}
	e.adapter = adapter
	e.lazy = false
	return adapter, nil
}

// Reset demotes a resolver-bearing entry back to lazy so the next lookup
// re-resolves. Entries registered eagerly, with no resolver to re-run, are
// left as-is. Unknown names return ErrNotRegistered.
func (r *Registry) Reset(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[name]
	if !ok {
		return fmt.Errorf("adapter %q: %w", name, ErrNotRegistered)
	}
	if e.resolver == nil {
		return nil
	}
	e.adapter = nil
	e.lazy = true
	return nil
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[name]
	return ok
}

// IsLazy reports whether name is registered and still awaiting resolution.
func (r *Registry) IsLazy(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	return ok && e.lazy
}

// Names returns registered names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.order)
}

// Len returns the number of registrations.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Metadata returns a copy of the metadata attached to name.
func (r *Registry) Metadata(name string) (map[string]any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	if !ok {
		return nil, false
	}
	md := make(map[string]any, len(e.metadata))
	for k, v := range e.metadata {
		md[k] = v
	}
	return md, true
}

// Registration is a point-in-time view of one entry.
type Registration struct {
	Name     string
	Lazy     bool
	Metadata map[string]any
}

// Registrations returns a snapshot of every entry in registration order.
func (r *Registry) Registrations() []Registration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Registration, 0, len(r.order))
	for _, name := range r.order {
		e := r.entries[name]
		md := make(map[string]any, len(e.metadata))
		for k, v := range e.metadata {
			md[k] = v
		}
		out = append(out, Registration{Name: name, Lazy: e.lazy, Metadata: md})
	}
	return out
}

// Unregister removes a registration. It reports whether one was removed.
func (r *Registry) Unregister(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[name]; !ok {
		return false
	}
	delete(r.entries, name)
	r.order = slices.DeleteFunc(r.order, func(n string) bool { return n == name })
	return true
}

// DiscoverFrom registers every member of the given map that satisfies the
// adapter protocol and is not already registered. The registered name derives
// from the member's type (an "Adapter" suffix stripped, lowercased); map keys
// label log lines only. Per-member failures are logged and non-fatal. Returns
// the count newly registered.
func (r *Registry) DiscoverFrom(members map[string]any) int {
	keys := make([]string, 0, len(members))
	for key := range members {
		keys = append(keys, key)
	}
	slices.Sort(keys)

	count := 0
	for _, key := range keys {
		member := members[key]
		if member == nil {
			r.logger.Warn("discovery skipped nil member", "member", key)
			continue
		}
		if err := core.VerifyAdapter(member); err != nil {
			r.logger.Warn("discovery skipped non-conforming member", "member", key, "error", err)
			continue
		}
		adapter := member.(core.Adapter)
		name := defaultAdapterName(adapter)
		if r.Has(name) {
			continue
		}
		if err := r.Register(name, adapter); err != nil {
			r.logger.Warn("discovery could not register member", "member", key, "name", name, "error", err)
			continue
		}
		r.logger.Debug("discovered adapter", "member", key, "name", name)
		count++
	}
	return count
}

// defaultAdapterName derives a registry name from the member's type:
// *pkg.IrisAdapter becomes "iris". A type named exactly "Adapter" falls back
// to its package name with any "adapter" suffix stripped.
func defaultAdapterName(v any) string {
	t := reflect.TypeOf(v)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil {
		return ""
	}
	name := strings.TrimSuffix(t.Name(), "Adapter")
	if name == "" {
		if pkg := t.PkgPath(); pkg != "" {
			name = strings.TrimSuffix(pkg[strings.LastIndex(pkg, "/")+1:], "adapter")
		}
	}
	if name == "" {
		name = t.Name()
	}
	return strings.ToLower(name)
}

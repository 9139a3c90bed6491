package registry

import (
	"fmt"
	"plugin"
	"slices"
	"strings"
	"sync"

	"github.com/petal-labs/pollen/core"
)

// PluginSymbol is the exported symbol looked up in adapter plugins.
const PluginSymbol = "Adapter"

// Locator maps module references from configuration onto resolvers. Builtin
// references live in an explicit table filled at composition time;
// references ending in ".so" load through the Go plugin facility.
type Locator struct {
	mu       sync.RWMutex
	builtins map[string]Resolver
}

// NewLocator creates a locator with no builtin references.
func NewLocator() *Locator {
	return &Locator{builtins: make(map[string]Resolver)}
}

// Register binds a builtin module reference to a resolver. Later bindings of
// the same reference replace earlier ones.
func (l *Locator) Register(ref string, resolver Resolver) {
	if ref == "" || resolver == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.builtins[ref] = resolver
}

// Refs returns registered builtin references in deterministic order.
func (l *Locator) Refs() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	refs := make([]string, 0, len(l.builtins))
	for ref := range l.builtins {
		refs = append(refs, ref)
	}
	slices.Sort(refs)
	return refs
}

// Resolve returns a resolver for the given module reference. Resolution is
// deferred: unknown builtins and unreadable plugins surface when the resolver
// runs, not here.
func (l *Locator) Resolve(ref string) Resolver {
	return func() (core.Adapter, error) {
		l.mu.RLock()
		builtin, ok := l.builtins[ref]
		l.mu.RUnlock()
		if ok {
			return builtin()
		}
		if strings.HasSuffix(ref, ".so") {
			return loadPlugin(ref)
		}
		return nil, fmt.Errorf("unknown adapter reference %q", ref)
	}
}

// loadPlugin opens a compiled plugin and extracts its Adapter symbol. The
// symbol may be an adapter value, a pointer to one (a package-level var), or
// a constructor func() (core.Adapter, error).
func loadPlugin(path string) (core.Adapter, error) {
	p, err := plugin.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open plugin %s: %w", path, err)
	}
	sym, err := p.Lookup(PluginSymbol)
	if err != nil {
		return nil, fmt.Errorf("plugin %s: %w", path, err)
	}

	switch v := sym.(type) {
	case *core.Adapter:
		if v == nil || *v == nil {
			return nil, fmt.Errorf("plugin %s: %s symbol is nil", path, PluginSymbol)
		}
		return *v, nil
	case func() (core.Adapter, error):
		return v()
	case *func() (core.Adapter, error):
		if v == nil || *v == nil {
			return nil, fmt.Errorf("plugin %s: %s symbol is nil", path, PluginSymbol)
		}
		return (*v)()
	default:
		if err := core.VerifyAdapter(sym); err != nil {
			return nil, fmt.Errorf("plugin %s: %w", path, err)
		}
		return sym.(core.Adapter), nil
	}
}

// Package loader ingests adapter descriptors for Pollen from configuration
// documents, plain maps, and the process environment. Each valid descriptor
// becomes one lazy registration; malformed descriptors are logged and
// skipped so one bad entry never blocks the rest.
package loader

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/petal-labs/pollen/core"
	"github.com/petal-labs/pollen/registry"
)

// DefaultEnvPrefix is the prefix scanned by LoadEnv.
const DefaultEnvPrefix = "POLLEN_ADAPTER_"

// envDelimiter separates the adapter name from the field key in environment
// entries: POLLEN_ADAPTER_<NAME>__<KEY>.
const envDelimiter = "__"

// Descriptor is one adapter entry from a configuration document.
type Descriptor struct {
	Name     string         `json:"name"`
	Module   string         `json:"module"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Config   map[string]any `json:"config,omitempty"`
	Enabled  *bool          `json:"enabled,omitempty"`
}

// IsEnabled reports the Enabled flag, defaulting to true when unset.
func (d Descriptor) IsEnabled() bool {
	return d.Enabled == nil || *d.Enabled
}

// Config is the root shape of an adapter configuration document.
type Config struct {
	Adapters []Descriptor `json:"adapters"`
}

// Loader registers adapter descriptors against a registry, resolving module
// references through a locator.
type Loader struct {
	registry *registry.Registry
	locator  *registry.Locator
	prefix   string
	logger   *slog.Logger
}

// Option configures a Loader.
type Option func(*Loader)

// WithLogger sets the logger used for skipped-descriptor warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loader) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithEnvPrefix overrides the environment prefix scanned by LoadEnv.
func WithEnvPrefix(prefix string) Option {
	return func(l *Loader) {
		if prefix != "" {
			l.prefix = prefix
		}
	}
}

// New creates a loader that registers descriptors against reg, resolving
// module references through loc.
func New(reg *registry.Registry, loc *registry.Locator, opts ...Option) (*Loader, error) {
	if reg == nil {
		return nil, errors.New("loader: nil registry")
	}
	if loc == nil {
		return nil, errors.New("loader: nil locator")
	}
	l := &Loader{
		registry: reg,
		locator:  loc,
		prefix:   DefaultEnvPrefix,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// LoadFile reads a YAML or JSON document and registers its descriptors.
// It returns the number registered. Per-descriptor failures are logged and
// skipped; an unreadable or structurally invalid document is an error.
func (l *Loader) LoadFile(path string) (int, error) {
	cfg, err := ParseFile(path)
	if err != nil {
		return 0, err
	}
	return l.register(cfg.Adapters), nil
}

// LoadMap registers descriptors from an already-parsed document. The root
// must contain an "adapters" list.
func (l *Loader) LoadMap(doc map[string]any) (int, error) {
	if doc == nil {
		return 0, errors.New("loader: nil document")
	}
	if _, ok := doc["adapters"]; !ok {
		return 0, errors.New(`loader: document has no "adapters" list`)
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return 0, fmt.Errorf("loader: encode document: %w", err)
	}
	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return 0, fmt.Errorf("loader: decode document: %w", err)
	}
	return l.register(cfg.Adapters), nil
}

// LoadEnv registers descriptors assembled from environment entries of the
// form <prefix><NAME>__<KEY>=<value>. MODULE is required and entries without
// it are skipped; ENABLED defaults to true; every other key lands in the
// descriptor's config map under its lowercased name. Pass os.Environ() for
// the process environment.
func (l *Loader) LoadEnv(environ []string) (int, error) {
	descriptors := make(map[string]*Descriptor)
	invalid := make(map[string]error)
	var names []string

	for _, kv := range environ {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, l.prefix) {
			continue
		}
		rest := strings.TrimPrefix(key, l.prefix)
		name, field, ok := strings.Cut(rest, envDelimiter)
		if !ok || name == "" || field == "" {
			continue
		}
		name = strings.ToLower(name)
		d, seen := descriptors[name]
		if !seen {
			d = &Descriptor{Name: name}
			descriptors[name] = d
			names = append(names, name)
		}
		switch strings.ToUpper(field) {
		case "MODULE":
			d.Module = value
		case "ENABLED":
			enabled, err := strconv.ParseBool(value)
			if err != nil {
				invalid[name] = &core.ConfigError{Source: key, Message: fmt.Sprintf("enabled value %q is not a boolean", value)}
				continue
			}
			d.Enabled = &enabled
		default:
			if d.Config == nil {
				d.Config = make(map[string]any)
			}
			d.Config[strings.ToLower(field)] = value
		}
	}

	list := make([]Descriptor, 0, len(names))
	for _, name := range names {
		if err, bad := invalid[name]; bad {
			l.logger.Warn("skipping adapter from environment", "adapter", name, "error", err)
			continue
		}
		list = append(list, *descriptors[name])
	}
	return l.register(list), nil
}

// register adds one lazy registration per valid descriptor and reports how
// many succeeded.
func (l *Loader) register(descriptors []Descriptor) int {
	count := 0
	for i, d := range descriptors {
		if err := CheckDescriptor(d); err != nil {
			l.logger.Warn("skipping adapter descriptor", "index", i, "error", err)
			continue
		}
		if !d.IsEnabled() {
			l.logger.Debug("adapter disabled, skipping", "adapter", d.Name)
			continue
		}

		md := make(map[string]any, len(d.Metadata)+2)
		for k, v := range d.Metadata {
			md[k] = v
		}
		// Reserved keys record provenance for inspection.
		md["module"] = d.Module
		if len(d.Config) > 0 {
			md["config"] = d.Config
		}

		err := l.registry.RegisterLazy(d.Name, l.locator.Resolve(d.Module), registry.WithMetadata(md))
		if err != nil {
			l.logger.Warn("could not register adapter", "adapter", d.Name, "error", err)
			continue
		}
		l.logger.Debug("registered adapter", "adapter", d.Name, "module", d.Module)
		count++
	}
	return count
}

// ParseFile reads and decodes an adapter configuration document without
// registering anything. The validate command uses it directly.
func ParseFile(path string) (*Config, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path from caller
	if err != nil {
		return nil, fmt.Errorf("reading file %s: %w", path, err)
	}

	jsonData := data
	if !isJSON(path) {
		if jsonData, err = yamlToJSON(data); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	}

	var probe map[string]any
	if err := json.Unmarshal(jsonData, &probe); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if _, ok := probe["adapters"]; !ok {
		return nil, fmt.Errorf(`%s: document has no "adapters" list`, path)
	}

	var cfg Config
	if err := json.Unmarshal(jsonData, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &cfg, nil
}

// CheckDescriptor validates a single descriptor, returning a
// *core.ConfigError naming the first failure or nil.
func CheckDescriptor(d Descriptor) error {
	if d.Name == "" {
		return &core.ConfigError{Source: "adapter descriptor", Message: `missing required field "name"`}
	}
	if d.Module == "" {
		return &core.ConfigError{Source: d.Name, Message: `missing required field "module"`}
	}
	return nil
}

// isJSON returns true if the file path has a JSON extension. Everything else
// parses as YAML, which accepts JSON content anyway.
func isJSON(path string) bool {
	return strings.ToLower(filepath.Ext(path)) == ".json"
}

// yamlToJSON converts raw bytes from YAML format to JSON bytes.
// YAML -> map[string]any -> JSON bytes -> typed struct is the canonical
// parsing strategy; it keeps one set of struct tags authoritative.
func yamlToJSON(data []byte) ([]byte, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	return json.Marshal(raw)
}

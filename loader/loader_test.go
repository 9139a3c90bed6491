package loader

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/petal-labs/pollen/core"
	"github.com/petal-labs/pollen/registry"
)

// staticAdapter is a minimal conforming adapter for loader tests.
type staticAdapter struct{ id string }

func (a *staticAdapter) ConvertTool(t *core.Tool) (map[string]any, error) {
	return map[string]any{"name": t.Name()}, nil
}

func (a *staticAdapter) ConvertTools(ts []*core.Tool) ([]map[string]any, error) {
	out := make([]map[string]any, 0, len(ts))
	for _, t := range ts {
		m, err := a.ConvertTool(t)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

func (a *staticAdapter) ExecuteTool(ctx context.Context, name string, input map[string]any, tools *core.Toolset) (any, error) {
	return core.ExecuteToolByName(ctx, name, input, tools)
}

var _ core.Adapter = (*staticAdapter)(nil)

func newTestLoader(t *testing.T) (*Loader, *registry.Registry, *registry.Locator) {
	t.Helper()
	reg := registry.New()
	loc := registry.NewLocator()
	loc.Register("builtin/iris", func() (core.Adapter, error) { return &staticAdapter{id: "iris"}, nil })
	loc.Register("builtin/openai", func() (core.Adapter, error) { return &staticAdapter{id: "openai"}, nil })
	l, err := New(reg, loc)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return l, reg, loc
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
	return path
}

func TestLoader_LoadFile_YAML(t *testing.T) {
	l, reg, _ := newTestLoader(t)
	path := writeFile(t, "adapters.yaml", `
adapters:
  - name: primary
    module: builtin/iris
    metadata:
      tier: gold
  - name: secondary
    module: builtin/openai
    config:
      base_url: http://localhost:8080
`)

	count, err := l.LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if count != 2 {
		t.Errorf("LoadFile() = %d, want 2", count)
	}
	for _, name := range []string{"primary", "secondary"} {
		if !reg.IsLazy(name) {
			t.Errorf("IsLazy(%s) = false, want lazy registration", name)
		}
	}

	md, ok := reg.Metadata("primary")
	if !ok {
		t.Fatal("Metadata(primary) ok = false")
	}
	if md["tier"] != "gold" {
		t.Errorf("Metadata()[tier] = %v, want %q", md["tier"], "gold")
	}
	if md["module"] != "builtin/iris" {
		t.Errorf("Metadata()[module] = %v, want %q", md["module"], "builtin/iris")
	}

	adapter, err := reg.Resolve("primary")
	if err != nil {
		t.Fatalf("Resolve(primary) error = %v", err)
	}
	if got := adapter.(*staticAdapter).id; got != "iris" {
		t.Errorf("resolved adapter id = %q, want %q", got, "iris")
	}
}

func TestLoader_LoadFile_JSON(t *testing.T) {
	l, reg, _ := newTestLoader(t)
	path := writeFile(t, "adapters.json", `{
  "adapters": [
    {"name": "primary", "module": "builtin/iris"}
  ]
}`)

	count, err := l.LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if count != 1 {
		t.Errorf("LoadFile() = %d, want 1", count)
	}
	if !reg.Has("primary") {
		t.Error("Has(primary) = false")
	}
}

func TestLoader_LoadFile_MalformedDescriptorSkipped(t *testing.T) {
	l, reg, _ := newTestLoader(t)
	path := writeFile(t, "adapters.yaml", `
adapters:
  - name: good
    module: builtin/iris
  - name: missing-module
  - module: builtin/openai
  - name: trailing
    module: builtin/openai
`)

	count, err := l.LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if count != 2 {
		t.Errorf("LoadFile() = %d, want 2 (malformed entries skipped)", count)
	}
	if !reg.Has("good") || !reg.Has("trailing") {
		t.Error("valid descriptors were not registered")
	}
	if reg.Has("missing-module") {
		t.Error("Has(missing-module) = true, want skipped")
	}
	if reg.Len() != 2 {
		t.Errorf("Len() = %d, want 2", reg.Len())
	}
}

func TestLoader_LoadFile_PriorEntriesIntact(t *testing.T) {
	l, reg, _ := newTestLoader(t)
	if err := reg.Register("existing", &staticAdapter{id: "pre"}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	path := writeFile(t, "adapters.yaml", `
adapters:
  - name: broken
  - name: fresh
    module: builtin/iris
`)
	count, err := l.LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if count != 1 {
		t.Errorf("LoadFile() = %d, want 1", count)
	}
	if !reg.Has("existing") {
		t.Error("prior registration lost during load")
	}
}

func TestLoader_LoadFile_DocumentErrors(t *testing.T) {
	l, _, _ := newTestLoader(t)

	t.Run("missing file", func(t *testing.T) {
		if _, err := l.LoadFile(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
			t.Error("LoadFile(absent) error = nil, want error")
		}
	})

	t.Run("no adapters key", func(t *testing.T) {
		path := writeFile(t, "bad.yaml", "tools:\n  - name: x\n")
		if _, err := l.LoadFile(path); err == nil {
			t.Error("LoadFile() error = nil, want missing adapters error")
		}
	})

	t.Run("unparseable", func(t *testing.T) {
		path := writeFile(t, "bad.json", "{not json")
		if _, err := l.LoadFile(path); err == nil {
			t.Error("LoadFile() error = nil, want parse error")
		}
	})

	t.Run("adapters not a list", func(t *testing.T) {
		path := writeFile(t, "bad2.yaml", "adapters: nope\n")
		if _, err := l.LoadFile(path); err == nil {
			t.Error("LoadFile() error = nil, want shape error")
		}
	})
}

func TestLoader_LoadFile_DisabledDescriptor(t *testing.T) {
	l, reg, _ := newTestLoader(t)
	path := writeFile(t, "adapters.yaml", `
adapters:
  - name: off
    module: builtin/iris
    enabled: false
  - name: on
    module: builtin/iris
    enabled: true
`)

	count, err := l.LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if count != 1 {
		t.Errorf("LoadFile() = %d, want 1", count)
	}
	if reg.Has("off") {
		t.Error("Has(off) = true, want disabled descriptor skipped")
	}
}

func TestLoader_LoadMap(t *testing.T) {
	l, reg, _ := newTestLoader(t)
	count, err := l.LoadMap(map[string]any{
		"adapters": []any{
			map[string]any{"name": "primary", "module": "builtin/iris"},
			map[string]any{"name": "", "module": "builtin/iris"},
		},
	})
	if err != nil {
		t.Fatalf("LoadMap() error = %v", err)
	}
	if count != 1 {
		t.Errorf("LoadMap() = %d, want 1", count)
	}
	if !reg.Has("primary") {
		t.Error("Has(primary) = false")
	}
}

func TestLoader_LoadMap_Errors(t *testing.T) {
	l, _, _ := newTestLoader(t)
	if _, err := l.LoadMap(nil); err == nil {
		t.Error("LoadMap(nil) error = nil, want error")
	}
	if _, err := l.LoadMap(map[string]any{"other": 1}); err == nil {
		t.Error("LoadMap(no adapters) error = nil, want error")
	}
}

func TestLoader_LoadEnv(t *testing.T) {
	l, reg, _ := newTestLoader(t)
	environ := []string{
		"POLLEN_ADAPTER_PRIMARY__MODULE=builtin/iris",
		"POLLEN_ADAPTER_PRIMARY__API_KEY=sk-test",
		"POLLEN_ADAPTER_SECONDARY__MODULE=builtin/openai",
		"POLLEN_ADAPTER_SECONDARY__ENABLED=false",
		"POLLEN_ADAPTER_NOMODULE__API_KEY=sk-test",
		"UNRELATED=1",
		"POLLEN_ADAPTER_MALFORMED=novalue",
	}

	count, err := l.LoadEnv(environ)
	if err != nil {
		t.Fatalf("LoadEnv() error = %v", err)
	}
	if count != 1 {
		t.Errorf("LoadEnv() = %d, want 1", count)
	}
	if !reg.Has("primary") {
		t.Error("Has(primary) = false")
	}
	if reg.Has("secondary") {
		t.Error("Has(secondary) = true, want disabled entry skipped")
	}
	if reg.Has("nomodule") {
		t.Error("Has(nomodule) = true, want module-less entry skipped")
	}

	md, _ := reg.Metadata("primary")
	config, ok := md["config"].(map[string]any)
	if !ok {
		t.Fatalf("Metadata()[config] = %T, want map", md["config"])
	}
	if config["api_key"] != "sk-test" {
		t.Errorf("config[api_key] = %v, want %q", config["api_key"], "sk-test")
	}
}

func TestLoader_LoadEnv_MalformedEnabled(t *testing.T) {
	l, reg, _ := newTestLoader(t)
	environ := []string{
		"POLLEN_ADAPTER_BROKEN__MODULE=builtin/iris",
		"POLLEN_ADAPTER_BROKEN__ENABLED=sometimes",
	}

	count, err := l.LoadEnv(environ)
	if err != nil {
		t.Fatalf("LoadEnv() error = %v", err)
	}
	if count != 0 {
		t.Errorf("LoadEnv() = %d, want 0", count)
	}
	if reg.Has("broken") {
		t.Error("Has(broken) = true, want malformed entry skipped")
	}
}

func TestLoader_LoadEnv_CustomPrefix(t *testing.T) {
	reg := registry.New()
	loc := registry.NewLocator()
	loc.Register("builtin/iris", func() (core.Adapter, error) { return &staticAdapter{}, nil })
	l, err := New(reg, loc, WithEnvPrefix("APP_TOOLS_"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	count, err := l.LoadEnv([]string{"APP_TOOLS_MAIN__MODULE=builtin/iris"})
	if err != nil {
		t.Fatalf("LoadEnv() error = %v", err)
	}
	if count != 1 || !reg.Has("main") {
		t.Errorf("LoadEnv() = %d, Has(main) = %v, want custom prefix honored", count, reg.Has("main"))
	}
}

func TestLoader_DuplicateName(t *testing.T) {
	l, reg, _ := newTestLoader(t)
	path := writeFile(t, "adapters.yaml", `
adapters:
  - name: dup
    module: builtin/iris
  - name: dup
    module: builtin/openai
`)

	count, err := l.LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if count != 1 {
		t.Errorf("LoadFile() = %d, want 1 (second entry conflicts)", count)
	}

	adapter, err := reg.Resolve("dup")
	if err != nil {
		t.Fatalf("Resolve(dup) error = %v", err)
	}
	if got := adapter.(*staticAdapter).id; got != "iris" {
		t.Errorf("resolved adapter id = %q, want first registration to win", got)
	}
}

func TestCheckDescriptor(t *testing.T) {
	tests := []struct {
		name    string
		d       Descriptor
		wantErr string
	}{
		{"valid", Descriptor{Name: "a", Module: "m"}, ""},
		{"missing name", Descriptor{Module: "m"}, `"name"`},
		{"missing module", Descriptor{Name: "a"}, `"module"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckDescriptor(tt.d)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("CheckDescriptor() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("CheckDescriptor() error = %v, want mention of %s", err, tt.wantErr)
			}
		})
	}
}

func TestDescriptor_IsEnabled(t *testing.T) {
	on := true
	off := false
	tests := []struct {
		name     string
		d        Descriptor
		expected bool
	}{
		{"default", Descriptor{}, true},
		{"explicit true", Descriptor{Enabled: &on}, true},
		{"explicit false", Descriptor{Enabled: &off}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.d.IsEnabled(); got != tt.expected {
				t.Errorf("IsEnabled() = %v, want %v", got, tt.expected)
			}
		})
	}
}

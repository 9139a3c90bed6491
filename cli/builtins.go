package cli

import (
	"time"

	"github.com/petal-labs/pollen/core"
	"github.com/petal-labs/pollen/irisadapter"
	"github.com/petal-labs/pollen/manager"
	"github.com/petal-labs/pollen/openaiadapter"
	"github.com/petal-labs/pollen/registry"
)

// builtinResolvers maps the module references compiled into the binary onto
// their adapter constructors.
func builtinResolvers() map[string]registry.Resolver {
	return map[string]registry.Resolver{
		"iris":   func() (core.Adapter, error) { return irisadapter.New(), nil },
		"openai": func() (core.Adapter, error) { return openaiadapter.New(), nil },
	}
}

// builtinLocator returns a locator seeded with the builtin references.
func builtinLocator() *registry.Locator {
	loc := registry.NewLocator()
	for ref, resolver := range builtinResolvers() {
		loc.Register(ref, resolver)
	}
	return loc
}

// registerBuiltins adds one lazy registration per builtin reference so the
// builtins appear in listings and resolve by name without a configuration
// file.
func registerBuiltins(m *manager.Manager) {
	loc := m.Locator()
	for _, ref := range loc.Refs() {
		_ = m.Registry().RegisterLazy(ref, loc.Resolve(ref), registry.WithMetadata(map[string]any{
			"module":  ref,
			"builtin": true,
		}))
	}
}

type echoArgs struct {
	Text string `json:"text" desc:"Text to echo back"`
}

type clockArgs struct {
	Format string `json:"format" desc:"Go reference-time layout for the output" default:"2006-01-02T15:04:05Z"`
}

type addArgs struct {
	A float64 `json:"a" desc:"First addend"`
	B float64 `json:"b" desc:"Second addend"`
}

// builtinTools constructs the demo tools every run exposes to the model.
func builtinTools() ([]*core.Tool, error) {
	echo, err := core.NewTool(func(args echoArgs) (string, error) {
		return args.Text, nil
	}, core.WithName("echo"), core.WithDescription("Echo the provided text back unchanged."))
	if err != nil {
		return nil, err
	}

	clock, err := core.NewTool(func(args clockArgs) (string, error) {
		return time.Now().UTC().Format(args.Format), nil
	}, core.WithName("clock"), core.WithDescription("Report the current UTC time in the given layout."))
	if err != nil {
		return nil, err
	}

	add, err := core.NewTool(func(args addArgs) (float64, error) {
		return args.A + args.B, nil
	}, core.WithName("add"), core.WithDescription("Add two numbers and return the sum."))
	if err != nil {
		return nil, err
	}

	return []*core.Tool{echo, clock, add}, nil
}

// builtinToolset wraps the demo tools in a toolset.
func builtinToolset() (*core.Toolset, error) {
	tools, err := builtinTools()
	if err != nil {
		return nil, err
	}
	return core.NewToolset(tools...)
}

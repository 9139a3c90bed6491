package core

import (
	"context"
	"errors"
	"fmt"
	"slices"
)

// ToolParameter describes a single named parameter of a tool.
// Values are fixed when the schema is derived and never mutated afterward.
type ToolParameter struct {
	Name        string    `json:"name"`
	Type        ParamType `json:"type"`
	Description string    `json:"description,omitempty"`
	Required    bool      `json:"required,omitempty"`
	Default     any       `json:"default,omitempty"`
}

// ToolSchema is the provider-neutral description of a tool. It is derived
// once at construction and never re-derived; accessors hand out copies so
// callers cannot mutate the original.
type ToolSchema struct {
	Name        string                   `json:"name"`
	Description string                   `json:"description,omitempty"`
	Parameters  map[string]ToolParameter `json:"parameters,omitempty"`
	Capability  Capability               `json:"capability,omitempty"`
	AIRequired  bool                     `json:"ai_required,omitempty"`
	Returns     ParamType                `json:"returns,omitempty"`
}

// ParameterNames returns parameter names in deterministic order.
func (s ToolSchema) ParameterNames() []string {
	names := make([]string, 0, len(s.Parameters))
	for name := range s.Parameters {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// RequiredParameters returns the names of required parameters in
// deterministic order.
func (s ToolSchema) RequiredParameters() []string {
	names := make([]string, 0, len(s.Parameters))
	for name, p := range s.Parameters {
		if p.Required {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names
}

func (s ToolSchema) clone() ToolSchema {
	out := s
	if s.Parameters != nil {
		out.Parameters = make(map[string]ToolParameter, len(s.Parameters))
		for name, p := range s.Parameters {
			out.Parameters[name] = p
		}
	}
	return out
}

// ToolFunc is the callable behind a map-argument tool.
type ToolFunc func(ctx context.Context, args map[string]any) (any, error)

// Tool pairs a callable with its schema. Construct with NewTool (schema
// reflected from a typed function) or NewFuncTool (explicit schema); either
// way, registration stays a separate, explicit step.
type Tool struct {
	schema ToolSchema
	fn     ToolFunc
}

// NewFuncTool creates a tool from an explicit parameter list and a
// map-argument function.
func NewFuncTool(name, description string, params []ToolParameter, fn ToolFunc) *Tool {
	schema := ToolSchema{
		Name:        name,
		Description: description,
		Capability:  CapabilityGeneral,
		Returns:     TypeAny,
	}
	if len(params) > 0 {
		schema.Parameters = make(map[string]ToolParameter, len(params))
		for _, p := range params {
			schema.Parameters[p.Name] = p
		}
	}
	return &Tool{schema: schema, fn: fn}
}

// Name returns the tool's unique name.
func (t *Tool) Name() string {
	return t.schema.Name
}

// Schema returns a copy of the tool's schema.
func (t *Tool) Schema() ToolSchema {
	return t.schema.clone()
}

// Execute runs the tool with the given arguments. Declared defaults fill in
// absent optional arguments first; the callable's result and error are then
// returned unmodified, with no wrapping or retry.
func (t *Tool) Execute(ctx context.Context, args map[string]any) (any, error) {
	if t == nil || t.fn == nil {
		return nil, errors.New("tool has no callable")
	}
	return t.fn(ctx, t.withDefaults(args))
}

func (t *Tool) withDefaults(args map[string]any) map[string]any {
	missing := 0
	for name, p := range t.schema.Parameters {
		if p.Default == nil {
			continue
		}
		if _, ok := args[name]; !ok {
			missing++
		}
	}
	if missing == 0 {
		return args
	}
	out := make(map[string]any, len(args)+missing)
	for k, v := range args {
		out[k] = v
	}
	for name, p := range t.schema.Parameters {
		if p.Default == nil {
			continue
		}
		if _, ok := out[name]; !ok {
			out[name] = p.Default
		}
	}
	return out
}

// Toolset is an ordered, name-unique collection of tools. It is the unit
// handed to adapters for conversion and execution.
type Toolset struct {
	tools map[string]*Tool
	order []string
}

// NewToolset builds a toolset from the given tools.
// Nil tools and duplicate names are rejected.
func NewToolset(tools ...*Tool) (*Toolset, error) {
	ts := &Toolset{tools: make(map[string]*Tool, len(tools))}
	for _, t := range tools {
		if err := ts.Add(t); err != nil {
			return nil, err
		}
	}
	return ts, nil
}

// Add appends a tool to the set.
func (ts *Toolset) Add(t *Tool) error {
	if t == nil {
		return errors.New("toolset: nil tool")
	}
	name := t.Name()
	if name == "" {
		return errors.New("toolset: tool has empty name")
	}
	if ts.tools == nil {
		ts.tools = make(map[string]*Tool)
	}
	if _, exists := ts.tools[name]; exists {
		return fmt.Errorf("toolset: duplicate tool %q", name)
	}
	ts.tools[name] = t
	ts.order = append(ts.order, name)
	return nil
}

// Get returns the tool with the exact given name.
func (ts *Toolset) Get(name string) (*Tool, bool) {
	if ts == nil {
		return nil, false
	}
	t, ok := ts.tools[name]
	return t, ok
}

// All returns the tools in insertion order.
func (ts *Toolset) All() []*Tool {
	if ts == nil {
		return nil
	}
	out := make([]*Tool, 0, len(ts.order))
	for _, name := range ts.order {
		out = append(out, ts.tools[name])
	}
	return out
}

// Names returns tool names in insertion order.
func (ts *Toolset) Names() []string {
	if ts == nil {
		return nil
	}
	return slices.Clone(ts.order)
}

// Len returns the number of tools in the set.
func (ts *Toolset) Len() int {
	if ts == nil {
		return 0
	}
	return len(ts.tools)
}

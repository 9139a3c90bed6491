package irisadapter

import (
	"context"
	"errors"

	"github.com/petal-labs/pollen/core"
)

// Adapter implements the tool protocol for iris-backed clients. The
// converted shape is a flat map with a JSON-schema parameters object:
// {"name", "description", "parameters"}.
type Adapter struct{}

// New returns a stateless iris protocol adapter.
func New() Adapter {
	return Adapter{}
}

// ConvertTool converts a tool definition into the iris schema shape.
func (Adapter) ConvertTool(t *core.Tool) (map[string]any, error) {
	if t == nil {
		return nil, errors.New("irisadapter: nil tool")
	}
	schema := t.Schema()

	properties := make(map[string]any, len(schema.Parameters))
	required := make([]string, 0, len(schema.Parameters))
	for _, name := range schema.ParameterNames() {
		p := schema.Parameters[name]
		properties[name] = propertySchema(p)
		if p.Required {
			required = append(required, name)
		}
	}

	parameters := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		parameters["required"] = required
	}

	return map[string]any{
		"name":        schema.Name,
		"description": schema.Description,
		"parameters":  parameters,
	}, nil
}

// ConvertTools converts every tool in order.
func (a Adapter) ConvertTools(ts []*core.Tool) ([]map[string]any, error) {
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

// ExecuteTool looks the tool up by exact name and invokes it, returning
// its result verbatim.
func (Adapter) ExecuteTool(ctx context.Context, name string, input map[string]any, tools *core.Toolset) (any, error) {
	return core.ExecuteToolByName(ctx, name, input, tools)
}

// propertySchema renders one parameter as a JSON-schema property. The
// "any" type tag has no JSON-schema equivalent and is left untyped.
func propertySchema(p core.ToolParameter) map[string]any {
	prop := map[string]any{}
	if p.Type != core.TypeAny {
		prop["type"] = string(p.Type)
	}
	if p.Description != "" {
		prop["description"] = p.Description
	}
	if p.Default != nil {
		prop["default"] = p.Default
	}
	return prop
}

// Ensure interface compliance at compile time.
var _ core.Adapter = Adapter{}

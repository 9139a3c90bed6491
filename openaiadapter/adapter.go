package openaiadapter

import (
	"context"
	"errors"

	"github.com/petal-labs/pollen/core"
)

// Adapter converts provider-neutral tool schemas into the OpenAI
// function-calling shape: a "function" object nested under a typed wrapper.
type Adapter struct{}

// New returns an adapter for OpenAI-compatible endpoints.
func New() Adapter {
	return Adapter{}
}

// ConvertTool renders one tool schema in the function-calling format.
func (Adapter) ConvertTool(t *core.Tool) (map[string]any, error) {
	if t == nil {
		return nil, errors.New("openaiadapter: nil tool")
	}
	schema := t.Schema()

	properties := make(map[string]any, len(schema.Parameters))
	var required []string
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
		"type": "function",
		"function": map[string]any{
			"name":        schema.Name,
			"description": schema.Description,
			"parameters":  parameters,
		},
	}, nil
}

// ConvertTools renders every tool, preserving input order.
func (a Adapter) ConvertTools(tools []*core.Tool) ([]map[string]any, error) {
	schemas := make([]map[string]any, 0, len(tools))
	for _, t := range tools {
		schema, err := a.ConvertTool(t)
		if err != nil {
			return nil, err
		}
		schemas = append(schemas, schema)
	}
	return schemas, nil
}

// ExecuteTool runs the named tool from the given collection.
func (Adapter) ExecuteTool(ctx context.Context, name string, input map[string]any, tools *core.Toolset) (any, error) {
	return core.ExecuteToolByName(ctx, name, input, tools)
}

// propertySchema renders a single parameter as a JSON-schema property.
// The "any" type tag has no JSON-schema equivalent and is left untyped.
func propertySchema(p core.ToolParameter) map[string]any {
	prop := map[string]any{}
	if p.Type != core.TypeAny && p.Type != "" {
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

package core

import (
	"context"
	"errors"
	"testing"
)

func TestParamType_Valid(t *testing.T) {
	tests := []struct {
		tag      ParamType
		expected bool
	}{
		{TypeString, true},
		{TypeInteger, true},
		{TypeNumber, true},
		{TypeBoolean, true},
		{TypeArray, true},
		{TypeObject, true},
		{TypeAny, true},
		{ParamType("float"), false},
		{ParamType(""), false},
	}

	for _, tt := range tests {
		t.Run(string(tt.tag), func(t *testing.T) {
			if got := ValidParamType(tt.tag); got != tt.expected {
				t.Errorf("ValidParamType(%q) = %v, want %v", tt.tag, got, tt.expected)
			}
		})
	}
}

func TestNewFuncTool_Schema(t *testing.T) {
	tool := NewFuncTool("echo", "Echo the input text.", []ToolParameter{
		{Name: "text", Type: TypeString, Description: "text to echo", Required: true},
		{Name: "upper", Type: TypeBoolean, Default: false},
	}, func(ctx context.Context, args map[string]any) (any, error) {
		return args["text"], nil
	})

	schema := tool.Schema()
	if schema.Name != "echo" {
		t.Errorf("Schema().Name = %q, want %q", schema.Name, "echo")
	}
	if schema.Description != "Echo the input text." {
		t.Errorf("Schema().Description = %q, want %q", schema.Description, "Echo the input text.")
	}
	if schema.Capability != CapabilityGeneral {
		t.Errorf("Schema().Capability = %q, want %q", schema.Capability, CapabilityGeneral)
	}
	if len(schema.Parameters) != 2 {
		t.Fatalf("len(Parameters) = %d, want 2", len(schema.Parameters))
	}
	if p := schema.Parameters["text"]; !p.Required || p.Type != TypeString {
		t.Errorf("parameter text = %+v, want required string", p)
	}
}

func TestTool_SchemaCopy(t *testing.T) {
	tool := NewFuncTool("echo", "", []ToolParameter{
		{Name: "text", Type: TypeString, Required: true},
	}, nil)

	first := tool.Schema()
	first.Parameters["text"] = ToolParameter{Name: "text", Type: TypeInteger}
	first.Name = "mutated"

	second := tool.Schema()
	if second.Name != "echo" {
		t.Errorf("Schema().Name after mutation = %q, want %q", second.Name, "echo")
	}
	if got := second.Parameters["text"].Type; got != TypeString {
		t.Errorf("Schema().Parameters[text].Type after mutation = %q, want %q", got, TypeString)
	}
}

func TestToolSchema_ParameterNames(t *testing.T) {
	schema := ToolSchema{
		Parameters: map[string]ToolParameter{
			"zulu":  {Name: "zulu", Type: TypeString},
			"alpha": {Name: "alpha", Type: TypeString, Required: true},
			"mike":  {Name: "mike", Type: TypeString, Required: true},
		},
	}

	names := schema.ParameterNames()
	want := []string{"alpha", "mike", "zulu"}
	if len(names) != len(want) {
		t.Fatalf("len(ParameterNames()) = %d, want %d", len(names), len(want))
	}
	for i, name := range want {
		if names[i] != name {
			t.Errorf("ParameterNames()[%d] = %q, want %q", i, names[i], name)
		}
	}

	required := schema.RequiredParameters()
	wantRequired := []string{"alpha", "mike"}
	if len(required) != len(wantRequired) {
		t.Fatalf("len(RequiredParameters()) = %d, want %d", len(required), len(wantRequired))
	}
	for i, name := range wantRequired {
		if required[i] != name {
			t.Errorf("RequiredParameters()[%d] = %q, want %q", i, required[i], name)
		}
	}
}

func TestTool_Execute_ResultVerbatim(t *testing.T) {
	want := map[string]any{"nested": []int{1, 2, 3}}
	tool := NewFuncTool("passthrough", "", nil, func(ctx context.Context, args map[string]any) (any, error) {
		return want, nil
	})

	got, err := tool.Execute(context.Background(), nil)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if gotMap, ok := got.(map[string]any); !ok || len(gotMap) != 1 {
		t.Errorf("Execute() = %v, want the callable's result unmodified", got)
	}
}

func TestTool_Execute_ErrorVerbatim(t *testing.T) {
	sentinel := errors.New("boom")
	tool := NewFuncTool("fails", "", nil, func(ctx context.Context, args map[string]any) (any, error) {
		return nil, sentinel
	})

	_, err := tool.Execute(context.Background(), nil)
	if !errors.Is(err, sentinel) {
		t.Errorf("Execute() error = %v, want %v", err, sentinel)
	}
}

func TestTool_Execute_AppliesDefaults(t *testing.T) {
	var seen map[string]any
	tool := NewFuncTool("greet", "", []ToolParameter{
		{Name: "name", Type: TypeString, Required: true},
		{Name: "greeting", Type: TypeString, Default: "hello"},
	}, func(ctx context.Context, args map[string]any) (any, error) {
		seen = args
		return nil, nil
	})

	input := map[string]any{"name": "ada"}
	if _, err := tool.Execute(context.Background(), input); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if seen["greeting"] != "hello" {
		t.Errorf("default greeting = %v, want %q", seen["greeting"], "hello")
	}
	if seen["name"] != "ada" {
		t.Errorf("name = %v, want %q", seen["name"], "ada")
	}
	if _, ok := input["greeting"]; ok {
		t.Error("Execute() mutated the caller's argument map")
	}
}

func TestTool_Execute_DefaultNotOverriding(t *testing.T) {
	var seen map[string]any
	tool := NewFuncTool("greet", "", []ToolParameter{
		{Name: "greeting", Type: TypeString, Default: "hello"},
	}, func(ctx context.Context, args map[string]any) (any, error) {
		seen = args
		return nil, nil
	})

	if _, err := tool.Execute(context.Background(), map[string]any{"greeting": "hi"}); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if seen["greeting"] != "hi" {
		t.Errorf("greeting = %v, want caller value %q", seen["greeting"], "hi")
	}
}

func TestTool_Execute_NoCallable(t *testing.T) {
	tool := NewFuncTool("empty", "", nil, nil)
	if _, err := tool.Execute(context.Background(), nil); err == nil {
		t.Error("Execute() error = nil, want error for missing callable")
	}
}

func TestNewToolset(t *testing.T) {
	a := NewFuncTool("a", "", nil, nil)
	b := NewFuncTool("b", "", nil, nil)

	ts, err := NewToolset(a, b)
	if err != nil {
		t.Fatalf("NewToolset() error = %v", err)
	}
	if ts.Len() != 2 {
		t.Errorf("Len() = %d, want 2", ts.Len())
	}

	names := ts.Names()
	if len(names) != 2 || names[0] != "a" || names[1] != "b" {
		t.Errorf("Names() = %v, want [a b]", names)
	}

	got, ok := ts.Get("b")
	if !ok || got != b {
		t.Errorf("Get(b) = %v, %v, want the registered tool", got, ok)
	}
	if _, ok := ts.Get("missing"); ok {
		t.Error("Get(missing) = true, want false")
	}
}

func TestNewToolset_Duplicate(t *testing.T) {
	a1 := NewFuncTool("a", "first", nil, nil)
	a2 := NewFuncTool("a", "second", nil, nil)

	if _, err := NewToolset(a1, a2); err == nil {
		t.Error("NewToolset() error = nil, want duplicate error")
	}
}

func TestNewToolset_NilTool(t *testing.T) {
	if _, err := NewToolset(nil); err == nil {
		t.Error("NewToolset(nil) error = nil, want error")
	}
}

func TestToolset_All_PreservesOrder(t *testing.T) {
	ts, err := NewToolset(
		NewFuncTool("charlie", "", nil, nil),
		NewFuncTool("alpha", "", nil, nil),
		NewFuncTool("bravo", "", nil, nil),
	)
	if err != nil {
		t.Fatalf("NewToolset() error = %v", err)
	}

	all := ts.All()
	want := []string{"charlie", "alpha", "bravo"}
	for i, name := range want {
		if all[i].Name() != name {
			t.Errorf("All()[%d].Name() = %q, want %q", i, all[i].Name(), name)
		}
	}
}

func TestToolset_NilReceiver(t *testing.T) {
	var ts *Toolset
	if ts.Len() != 0 {
		t.Errorf("nil Toolset Len() = %d, want 0", ts.Len())
	}
	if _, ok := ts.Get("x"); ok {
		t.Error("nil Toolset Get() = true, want false")
	}
	if names := ts.Names(); names != nil {
		t.Errorf("nil Toolset Names() = %v, want nil", names)
	}
}

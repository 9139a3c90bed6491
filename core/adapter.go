package core

import (
	"context"
	"fmt"
	"reflect"
	"strings"
)

// Adapter converts provider-neutral tool schemas into a target representation
// and executes named tools against a supplied collection. The method set is
// the protocol: implementing it is conformance.
type Adapter interface {
	// ConvertTool renders one tool in the adapter's target shape.
	ConvertTool(t *Tool) (map[string]any, error)

	// ConvertTools renders a batch in input order.
	ConvertTools(ts []*Tool) ([]map[string]any, error)

	// ExecuteTool looks up name in tools by exact match and runs it with the
	// given input, returning the tool's result verbatim.
	ExecuteTool(ctx context.Context, name string, input map[string]any, tools *Toolset) (any, error)
}

// Configurable is implemented by adapters that derive configured instances
// from constructor parameters. The factory calls Configure when a non-empty
// configuration is supplied; adapters without it are used as-is.
type Configurable interface {
	Configure(config map[string]any) (Adapter, error)
}

// ExecuteToolByName is the common ExecuteTool implementation: exact-name
// lookup in the supplied collection, then execution with the given input.
// The tool's result and error pass through unmodified.
func ExecuteToolByName(ctx context.Context, name string, input map[string]any, tools *Toolset) (any, error) {
	t, ok := tools.Get(name)
	if !ok {
		return nil, &ToolNotFoundError{Tool: name, Available: tools.Names()}
	}
	return t.Execute(ctx, input)
}

var adapterType = reflect.TypeOf((*Adapter)(nil)).Elem()

// VerifyAdapter reports whether v satisfies the adapter protocol. It returns
// nil for conforming values and a *ProtocolError naming each missing or
// mismatched method otherwise. Static implementations should rely on the
// compiler; this exists for dynamic paths such as plugin symbols and
// discovery members.
func VerifyAdapter(v any) error {
	if v == nil {
		return &ProtocolError{Type: "<nil>", Problems: []string{"value is nil"}}
	}
	if _, ok := v.(Adapter); ok {
		return nil
	}

	rt := reflect.TypeOf(v)
	problems := make([]string, 0, adapterType.NumMethod())
	for i := 0; i < adapterType.NumMethod(); i++ {
		want := adapterType.Method(i)
		got, ok := rt.MethodByName(want.Name)
		if !ok {
			problem := fmt.Sprintf("missing method %s", want.Name)
			if rt.Kind() != reflect.Pointer {
				if _, onPtr := reflect.PointerTo(rt).MethodByName(want.Name); onPtr {
					problem = fmt.Sprintf("method %s has a pointer receiver; pass a pointer", want.Name)
				}
			}
			problems = append(problems, problem)
			continue
		}
		if !methodMatches(want.Type, got.Type) {
			problems = append(problems, fmt.Sprintf("method %s has signature %s, want %s", want.Name, methodSignature(got.Type), want.Type))
		}
	}
	return &ProtocolError{Type: rt.String(), Problems: problems}
}

// methodMatches compares an interface method type against a concrete method
// type, skipping the concrete receiver.
func methodMatches(want, got reflect.Type) bool {
	if got.NumIn()-1 != want.NumIn() || got.NumOut() != want.NumOut() {
		return false
	}
	for i := 0; i < want.NumIn(); i++ {
		if got.In(i+1) != want.In(i) {
			return false
		}
	}
	for i := 0; i < want.NumOut(); i++ {
		if got.Out(i) != want.Out(i) {
			return false
		}
	}
	return true
}

// methodSignature formats a concrete method type without its receiver.
func methodSignature(m reflect.Type) string {
	in := make([]string, 0, m.NumIn())
	for i := 1; i < m.NumIn(); i++ {
		in = append(in, m.In(i).String())
	}
	out := make([]string, 0, m.NumOut())
	for i := 0; i < m.NumOut(); i++ {
		out = append(out, m.Out(i).String())
	}
	switch len(out) {
	case 0:
		return fmt.Sprintf("func(%s)", strings.Join(in, ", "))
	case 1:
		return fmt.Sprintf("func(%s) %s", strings.Join(in, ", "), out[0])
	default:
		return fmt.Sprintf("func(%s) (%s)", strings.Join(in, ", "), strings.Join(out, ", "))
	}
}

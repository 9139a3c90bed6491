package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"runtime"
	"strconv"
	"strings"
	"unicode"
)

var (
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
)

// ToolOption adjusts the schema derived by NewTool.
type ToolOption func(*ToolSchema)

// WithName overrides the name derived from the function symbol.
func WithName(name string) ToolOption {
	return func(s *ToolSchema) { s.Name = name }
}

// WithDescription sets the tool description.
func WithDescription(desc string) ToolOption {
	return func(s *ToolSchema) { s.Description = desc }
}

// WithCapability tags the tool with a capability.
func WithCapability(c Capability) ToolOption {
	return func(s *ToolSchema) { s.Capability = c }
}

// WithAIRequired marks the tool as one the model must always be offered.
func WithAIRequired(required bool) ToolOption {
	return func(s *ToolSchema) { s.AIRequired = required }
}

// WithReturns overrides the derived return type tag.
func WithReturns(t ParamType) ToolOption {
	return func(s *ToolSchema) { s.Returns = t }
}

// NewTool derives a tool from a typed function. Supported shapes:
//
//	func(ctx context.Context, args T) (R, error)
//	func(args T) (R, error)
//
// T must be a struct or pointer to one. Struct tags drive the schema: `json`
// names the parameter, `desc` documents it, and `default` supplies a value
// for callers that omit it. A parameter is required exactly when it declares
// no default. The schema is derived once here and never re-derived; Execute
// decodes the argument map into T and returns the function's result and
// error unmodified.
func NewTool(fn any, opts ...ToolOption) (*Tool, error) {
	if fn == nil {
		return nil, errors.New("tool: nil function")
	}
	fv := reflect.ValueOf(fn)
	ft := fv.Type()
	if ft.Kind() != reflect.Func {
		return nil, fmt.Errorf("tool: %T is not a function", fn)
	}

	wantsCtx := false
	var argType reflect.Type
	switch ft.NumIn() {
	case 1:
		argType = ft.In(0)
	case 2:
		if !ft.In(0).Implements(contextType) {
			return nil, fmt.Errorf("tool: first parameter must be context.Context, got %s", ft.In(0))
		}
		wantsCtx = true
		argType = ft.In(1)
	default:
		return nil, fmt.Errorf("tool: want func(ctx, args) (result, error) or func(args) (result, error), got %s", ft)
	}
	if ft.NumOut() != 2 || !ft.Out(1).Implements(errorType) {
		return nil, fmt.Errorf("tool: function must return (result, error), got %s", ft)
	}

	structType := argType
	if structType.Kind() == reflect.Pointer {
		structType = structType.Elem()
	}
	if structType.Kind() != reflect.Struct {
		return nil, fmt.Errorf("tool: argument type %s is not a struct", argType)
	}

	schema := ToolSchema{
		Name:       functionName(fv),
		Capability: CapabilityGeneral,
		Returns:    paramTypeOf(ft.Out(0)),
	}
	params := make(map[string]ToolParameter)
	for i := 0; i < structType.NumField(); i++ {
		field := structType.Field(i)
		if !field.IsExported() {
			continue
		}
		name := strings.ToLower(field.Name)
		if tag, ok := field.Tag.Lookup("json"); ok {
			tagName, _, _ := strings.Cut(tag, ",")
			if tagName == "-" {
				continue
			}
			if tagName != "" {
				name = tagName
			}
		}
		p := ToolParameter{
			Name:        name,
			Type:        paramTypeOf(field.Type),
			Description: field.Tag.Get("desc"),
			Required:    true,
		}
		if raw, ok := field.Tag.Lookup("default"); ok {
			def, err := parseDefault(raw, p.Type)
			if err != nil {
				return nil, fmt.Errorf("tool: field %s: %w", field.Name, err)
			}
			p.Default = def
			p.Required = false
		}
		params[name] = p
	}
	if len(params) > 0 {
		schema.Parameters = params
	}
	for _, opt := range opts {
		opt(&schema)
	}
	if schema.Name == "" {
		return nil, errors.New("tool: could not derive a name; use WithName")
	}

	name := schema.Name
	call := func(ctx context.Context, args map[string]any) (any, error) {
		argv := reflect.New(structType)
		if len(args) > 0 {
			raw, err := json.Marshal(args)
			if err != nil {
				return nil, fmt.Errorf("tool %q: encode arguments: %w", name, err)
			}
			if err := json.Unmarshal(raw, argv.Interface()); err != nil {
				return nil, fmt.Errorf("tool %q: decode arguments: %w", name, err)
			}
		}
		in := argv.Elem()
		if argType.Kind() == reflect.Pointer {
			in = argv
		}
		if ctx == nil {
			ctx = context.Background()
		}
		var results []reflect.Value
		if wantsCtx {
			results = fv.Call([]reflect.Value{reflect.ValueOf(ctx), in})
		} else {
			results = fv.Call([]reflect.Value{in})
		}
		if errv := results[1].Interface(); errv != nil {
			return nil, errv.(error)
		}
		return results[0].Interface(), nil
	}
	return &Tool{schema: schema, fn: call}, nil
}

// functionName derives a tool name from the function symbol: the package
// path and method markers are stripped and the remainder lower-snake-cased.
func functionName(fv reflect.Value) string {
	f := runtime.FuncForPC(fv.Pointer())
	if f == nil {
		return ""
	}
	name := f.Name()
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	if i := strings.Index(name, "."); i >= 0 {
		name = name[i+1:]
	}
	name = strings.TrimSuffix(name, "-fm")
	name = strings.ReplaceAll(name, ".", "_")
	return snakeCase(name)
}

func snakeCase(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 4)
	var prev rune
	for i, r := range s {
		if unicode.IsUpper(r) {
			if i > 0 && (unicode.IsLower(prev) || unicode.IsDigit(prev)) {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
		} else {
			b.WriteRune(r)
		}
		prev = r
	}
	return b.String()
}

// paramTypeOf maps a Go type onto the declared parameter type tags.
func paramTypeOf(t reflect.Type) ParamType {
	if t == nil {
		return TypeAny
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.String:
		return TypeString
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return TypeInteger
	case reflect.Float32, reflect.Float64:
		return TypeNumber
	case reflect.Bool:
		return TypeBoolean
	case reflect.Slice, reflect.Array:
		return TypeArray
	case reflect.Map, reflect.Struct:
		return TypeObject
	default:
		return TypeAny
	}
}

// parseDefault interprets a `default` tag literal according to the declared
// parameter type.
func parseDefault(raw string, t ParamType) (any, error) {
	switch t {
	case TypeString:
		return raw, nil
	case TypeInteger:
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("default %q is not an integer", raw)
		}
		return n, nil
	case TypeNumber:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("default %q is not a number", raw)
		}
		return f, nil
	case TypeBoolean:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("default %q is not a boolean", raw)
		}
		return b, nil
	default:
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return nil, fmt.Errorf("default %q is not valid JSON", raw)
		}
		return v, nil
	}
}

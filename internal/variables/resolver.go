package variables

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/rendis/blockrun/pkg/schema"
)

// Options configures deep resolution.
type Options struct {
	// RemoveEmptyStrings omits leaves that resolve to "" instead of keeping
	// them, so optional fields vanish rather than appear configured-but-empty.
	RemoveEmptyStrings bool
}

// Resolver substitutes {{name}} references and evaluates {{= expr =}} inline
// expressions against a session's variables.
// Thread-safe: compiled expression programs are cached and reused.
type Resolver struct {
	mu    sync.RWMutex
	cache map[string]*vm.Program
}

// NewResolver creates a Resolver with an empty program cache.
func NewResolver() *Resolver {
	return &Resolver{cache: make(map[string]*vm.Program)}
}

// Default is the process-wide resolver used by the package-level helpers.
var Default = NewResolver()

// ResolveScalar resolves template with the Default resolver.
func ResolveScalar(template string, vars []schema.Variable) string {
	return Default.ResolveScalar(template, vars)
}

// ResolveDeep resolves value with the Default resolver.
func ResolveDeep(value any, vars []schema.Variable, opts Options) any {
	return Default.ResolveDeep(value, vars, opts)
}

// ResolveScalar replaces every {{name}} with the current value of the variable
// called name ("" when it has no value). References to unknown names are left
// untouched. Resolved values are not scanned again.
func (r *Resolver) ResolveScalar(template string, vars []schema.Variable) string {
	if !strings.Contains(template, "{{") {
		return template
	}

	var result strings.Builder
	result.Grow(len(template))

	i := 0
	for i < len(template) {
		idx := strings.Index(template[i:], "{{")
		if idx == -1 {
			result.WriteString(template[i:])
			break
		}
		result.WriteString(template[i : i+idx])
		open := i + idx
		start := open + 2

		if strings.HasPrefix(template[start:], "=") {
			end := strings.Index(template[start+1:], "=}}")
			if end == -1 {
				// Unterminated expression: keep "{{" and scan on.
				result.WriteString("{{")
				i = start
				continue
			}
			end += start + 1
			result.WriteString(r.evaluate(template[start+1:end], vars))
			i = end + 3
			continue
		}

		end := strings.Index(template[start:], "}}")
		if end == -1 {
			result.WriteString(template[open:])
			break
		}
		end += start

		// "{{a {{b}}": the outer "{{" is literal text.
		inner := template[start:end]
		if k := strings.LastIndex(inner, "{{"); k != -1 {
			result.WriteString(template[open : start+k])
			i = start + k
			continue
		}

		if v, ok := findByName(vars, strings.TrimSpace(inner)); ok {
			result.WriteString(v.StringValue())
		} else {
			result.WriteString(template[open : end+2])
		}
		i = end + 2
	}

	return result.String()
}

// ResolveDeep walks maps, sequences and scalars, resolving every string leaf.
// It returns a new structure and never mutates value.
func (r *Resolver) ResolveDeep(value any, vars []schema.Variable, opts Options) any {
	out, _ := r.resolveValue(value, vars, opts)
	return out
}

func (r *Resolver) resolveValue(value any, vars []schema.Variable, opts Options) (any, bool) {
	switch v := value.(type) {
	case string:
		s := r.ResolveScalar(v, vars)
		if s == "" && opts.RemoveEmptyStrings {
			return nil, false
		}
		return s, true
	case map[string]any:
		if v == nil {
			return v, true
		}
		out := make(map[string]any, len(v))
		for k, elem := range v {
			if resolved, keep := r.resolveValue(elem, vars, opts); keep {
				out[k] = resolved
			}
		}
		return out, true
	case []any:
		if v == nil {
			return v, true
		}
		out := make([]any, 0, len(v))
		for _, elem := range v {
			if resolved, keep := r.resolveValue(elem, vars, opts); keep {
				out = append(out, resolved)
			}
		}
		return out, true
	default:
		return value, true
	}
}

// ResolveInto deep-resolves a typed configuration by converting it to the
// structural JSON model and back. Numbers survive the round trip unchanged.
func ResolveInto[T any](cfg T, vars []schema.Variable, opts Options) (T, error) {
	var out T

	raw, err := json.Marshal(cfg)
	if err != nil {
		return out, schema.NewError(schema.ErrCodeInterpolation, "failed to encode options").WithCause(err)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var tree any
	if err := dec.Decode(&tree); err != nil {
		return out, schema.NewError(schema.ErrCodeInterpolation, "failed to decode options").WithCause(err)
	}

	resolved, err := json.Marshal(Default.ResolveDeep(tree, vars, opts))
	if err != nil {
		return out, schema.NewError(schema.ErrCodeInterpolation, "failed to encode resolved options").WithCause(err)
	}
	if err := json.Unmarshal(resolved, &out); err != nil {
		return out, schema.NewError(schema.ErrCodeInterpolation, "failed to decode resolved options").WithCause(err)
	}
	return out, nil
}

// evaluate runs an inline expression with the variables exposed by name.
// Any compile or runtime failure yields "".
func (r *Resolver) evaluate(code string, vars []schema.Variable) string {
	code = strings.TrimSpace(code)
	if code == "" {
		return ""
	}

	prg, err := r.getOrCompile(code)
	if err != nil {
		return ""
	}

	out, err := vm.Run(prg, envOf(vars))
	if err != nil {
		return ""
	}
	return stringify(out)
}

// getOrCompile returns a cached compiled program or compiles and caches a new one.
func (r *Resolver) getOrCompile(code string) (*vm.Program, error) {
	r.mu.RLock()
	if prg, ok := r.cache[code]; ok {
		r.mu.RUnlock()
		return prg, nil
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	if prg, ok := r.cache[code]; ok {
		return prg, nil
	}

	prg, err := expr.Compile(code, expr.AllowUndefinedVariables())
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeInterpolation,
			"expression compile failed for %q: %s", code, err.Error()).WithCause(err)
	}
	r.cache[code] = prg
	return prg, nil
}

func envOf(vars []schema.Variable) map[string]any {
	env := make(map[string]any, len(vars))
	for _, v := range vars {
		if _, seen := env[v.Name]; seen {
			continue
		}
		if v.Value == nil {
			env[v.Name] = nil
			continue
		}
		env[v.Name] = *v.Value
	}
	return env
}

func findByName(vars []schema.Variable, name string) (schema.Variable, bool) {
	if name == "" {
		return schema.Variable{}, false
	}
	for _, v := range vars {
		if v.Name == name {
			return v, true
		}
	}
	return schema.Variable{}, false
}

// stringify converts an expression result to its text form.
func stringify(val any) string {
	switch v := val.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool, int, int64, float64:
		return fmt.Sprintf("%v", v)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	}
}

package actions

import (
	"github.com/rendis/blockrun/internal/variables"
	"github.com/rendis/blockrun/pkg/schema"
)

// ResolveOptions deep-resolves every placeholder of a handler's options
// against the session variables. Fields that resolve to "" are dropped.
func ResolveOptions[T schema.ActionOptions](opts T, ec ExecContext) (T, error) {
	return variables.ResolveInto(opts, ec.Variables(), variables.Options{RemoveEmptyStrings: true})
}

// RequireInput validates one required input of already resolved options.
// The value is resolved once more so a placeholder produced by a variable
// value is expanded. On failure the returned result carries one error log:
// missing when the field is empty, invalid when it resolves to "".
func (ec ExecContext) RequireInput(value, missing, invalid string) (string, *schema.ExecutionResult) {
	if value == "" {
		return "", ec.Fail(missing)
	}
	resolved := variables.ResolveScalar(value, ec.Variables())
	if resolved == "" {
		return "", ec.Fail(invalid)
	}
	return resolved, nil
}

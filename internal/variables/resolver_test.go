package variables

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/blockrun/pkg/schema"
)

func strPtr(s string) *string { return &s }

func testVars() []schema.Variable {
	return []schema.Variable{
		{ID: "v1", Name: "placa", Value: strPtr("ABC1234")},
		{ID: "v2", Name: "cpf", Value: strPtr("123.456.789-00")},
		{ID: "v3", Name: "unset"},
		{ID: "v4", Name: "Nome completo", Value: strPtr("Maria Silva")},
		{ID: "v5", Name: "dias", Value: strPtr("7")},
	}
}

// --- ResolveScalar ---

func TestResolveScalar_NoPlaceholders(t *testing.T) {
	assert.Equal(t, "plain text", ResolveScalar("plain text", testVars()))
	assert.Equal(t, "", ResolveScalar("", testVars()))
}

func TestResolveScalar_Substitution(t *testing.T) {
	vars := testVars()
	assert.Equal(t, "ABC1234", ResolveScalar("{{placa}}", vars))
	assert.Equal(t, "placa=ABC1234 cpf=123.456.789-00", ResolveScalar("placa={{placa}} cpf={{cpf}}", vars))
	assert.Equal(t, "ABC1234", ResolveScalar("{{ placa }}", vars))
	assert.Equal(t, "Olá Maria Silva", ResolveScalar("Olá {{Nome completo}}", vars))
}

func TestResolveScalar_UnsetIsEmpty(t *testing.T) {
	assert.Equal(t, "x--y", ResolveScalar("x-{{unset}}-y", testVars()))
}

func TestResolveScalar_UnknownLeftUntouched(t *testing.T) {
	assert.Equal(t, "{{nope}}", ResolveScalar("{{nope}}", testVars()))
	assert.Equal(t, "a {{nope}} ABC1234", ResolveScalar("a {{nope}} {{placa}}", testVars()))
	assert.Equal(t, "{{}}", ResolveScalar("{{}}", testVars()))
}

func TestResolveScalar_Unclosed(t *testing.T) {
	assert.Equal(t, "ABC1234 {{placa", ResolveScalar("{{placa}} {{placa", testVars()))
	assert.Equal(t, "{{= 1 + 1", ResolveScalar("{{= 1 + 1", testVars()))
}

func TestResolveScalar_UnclosedExpressionKeepsScanning(t *testing.T) {
	assert.Equal(t, "{{=x}} ABC1234", ResolveScalar("{{=x}} {{placa}}", testVars()))
	assert.Equal(t, "{{= len(placa) ABC1234 7", ResolveScalar("{{= len(placa) {{placa}} {{dias}}", testVars()))
}

func TestResolveScalar_NestedOpenIsLiteral(t *testing.T) {
	assert.Equal(t, "{{x ABC1234", ResolveScalar("{{x {{placa}}", testVars()))
}

func TestResolveScalar_ValuesAreNotRescanned(t *testing.T) {
	vars := []schema.Variable{
		{ID: "a", Name: "a", Value: strPtr("{{b}}")},
		{ID: "b", Name: "b", Value: strPtr("deep")},
	}
	assert.Equal(t, "{{b}}", ResolveScalar("{{a}}", vars))
}

func TestResolveScalar_DuplicateNamesUseFirst(t *testing.T) {
	vars := []schema.Variable{
		{ID: "a1", Name: "x", Value: strPtr("first")},
		{ID: "a2", Name: "x", Value: strPtr("second")},
	}
	assert.Equal(t, "first", ResolveScalar("{{x}}", vars))
}

// --- inline expressions ---

func TestResolveScalar_InlineExpression(t *testing.T) {
	vars := testVars()
	assert.Equal(t, "abc1234", ResolveScalar("{{= lower(placa) =}}", vars))
	assert.Equal(t, "7", ResolveScalar("{{= len(placa) =}}", vars))
	assert.Equal(t, "ABC1234!", ResolveScalar(`{{= placa + "!" =}}`, vars))
	assert.Equal(t, "true", ResolveScalar("{{= unset == nil =}}", vars))
	assert.Equal(t, "placa: ABC1234, n=7", ResolveScalar("placa: {{placa}}, n={{= len(placa) =}}", vars))
}

func TestResolveScalar_InlineExpressionFailureIsEmpty(t *testing.T) {
	vars := testVars()
	assert.Equal(t, "", ResolveScalar("{{= 1 + =}}", vars))
	assert.Equal(t, "x", ResolveScalar("x{{= =}}", vars))
}

func TestResolver_CachesPrograms(t *testing.T) {
	r := NewResolver()
	vars := testVars()
	assert.Equal(t, "ABC1234", r.ResolveScalar("{{= upper(placa) =}}", vars))
	assert.Equal(t, "ABC1234", r.ResolveScalar("{{= upper(placa) =}}", vars))
	assert.Len(t, r.cache, 1)
}

// --- ResolveDeep ---

func TestResolveDeep_Nested(t *testing.T) {
	in := map[string]any{
		"placa": "{{placa}}",
		"count": float64(3),
		"flag":  true,
		"nested": map[string]any{
			"list": []any{"{{cpf}}", "literal", float64(1), map[string]any{"name": "{{Nome completo}}"}},
		},
	}

	out := ResolveDeep(in, testVars(), Options{})
	assert.Equal(t, map[string]any{
		"placa": "ABC1234",
		"count": float64(3),
		"flag":  true,
		"nested": map[string]any{
			"list": []any{"123.456.789-00", "literal", float64(1), map[string]any{"name": "Maria Silva"}},
		},
	}, out)
}

func TestResolveDeep_DoesNotMutateInput(t *testing.T) {
	in := map[string]any{"a": "{{placa}}", "b": []any{"{{unset}}"}}
	_ = ResolveDeep(in, testVars(), Options{RemoveEmptyStrings: true})
	assert.Equal(t, map[string]any{"a": "{{placa}}", "b": []any{"{{unset}}"}}, in)
}

func TestResolveDeep_RemoveEmptyStrings(t *testing.T) {
	in := map[string]any{
		"placa":  "{{placa}}",
		"empty":  "{{unset}}",
		"blank":  "",
		"list":   []any{"", "{{unset}}", "x"},
		"nested": map[string]any{"gone": ""},
	}

	out := ResolveDeep(in, testVars(), Options{RemoveEmptyStrings: true})
	assert.Equal(t, map[string]any{
		"placa":  "ABC1234",
		"list":   []any{"x"},
		"nested": map[string]any{},
	}, out)
	assertNoEmptyLeaf(t, out)
}

func TestResolveDeep_KeepEmptyStrings(t *testing.T) {
	in := map[string]any{"empty": "{{unset}}", "list": []any{""}}
	out := ResolveDeep(in, testVars(), Options{})
	assert.Equal(t, map[string]any{"empty": "", "list": []any{""}}, out)
}

func TestResolveDeep_Scalars(t *testing.T) {
	assert.Equal(t, "ABC1234", ResolveDeep("{{placa}}", testVars(), Options{}))
	assert.Nil(t, ResolveDeep("{{unset}}", testVars(), Options{RemoveEmptyStrings: true}))
	assert.Equal(t, float64(1), ResolveDeep(float64(1), testVars(), Options{}))
	assert.Nil(t, ResolveDeep(nil, testVars(), Options{}))
}

func TestResolveDeep_Idempotent(t *testing.T) {
	inputs := []any{
		map[string]any{"a": "{{placa}}", "b": "{{nope}}", "c": []any{"{{cpf}}", "{{unset}}"}},
		[]any{"x {{Nome completo}} y", float64(2), nil},
		"{{= upper(cpf) =}}",
	}
	for _, opts := range []Options{{}, {RemoveEmptyStrings: true}} {
		for _, in := range inputs {
			once := ResolveDeep(in, testVars(), opts)
			twice := ResolveDeep(once, testVars(), opts)
			assert.Equal(t, once, twice)
		}
	}
}

func assertNoEmptyLeaf(t *testing.T, v any) {
	t.Helper()
	switch x := v.(type) {
	case string:
		assert.NotEmpty(t, x)
	case map[string]any:
		for _, e := range x {
			assertNoEmptyLeaf(t, e)
		}
	case []any:
		for _, e := range x {
			assertNoEmptyLeaf(t, e)
		}
	}
}

// --- ResolveInto ---

func TestResolveInto_TypedOptions(t *testing.T) {
	in := schema.VehicleLookupOptions{
		BaseOptions:           schema.BaseOptions{CredentialsID: "cred"},
		Plate:                 "{{placa}}",
		VehicleCodeVariableID: "v9",
	}

	out, err := ResolveInto(in, testVars(), Options{RemoveEmptyStrings: true})
	require.NoError(t, err)
	assert.Equal(t, "ABC1234", out.Plate)
	assert.Equal(t, "cred", out.CredentialsID)
	assert.Equal(t, "v9", out.VehicleCodeVariableID)
	assert.Equal(t, "{{placa}}", in.Plate, "input must not change")
}

func TestResolveInto_EmptyBecomesZero(t *testing.T) {
	in := schema.MemberLookupOptions{CPF: "{{unset}}"}
	out, err := ResolveInto(in, testVars(), Options{RemoveEmptyStrings: true})
	require.NoError(t, err)
	assert.Equal(t, "", out.CPF)
}

func TestResolveInto_NumbersPreserved(t *testing.T) {
	before, after := 3, 45
	in := schema.InvoiceLookupOptions{VehicleCode: "{{dias}}", DaysBefore: &before, DaysAfter: &after}

	out, err := ResolveInto(in, testVars(), Options{RemoveEmptyStrings: true})
	require.NoError(t, err)
	assert.Equal(t, "7", out.VehicleCode)
	require.NotNil(t, out.DaysBefore)
	require.NotNil(t, out.DaysAfter)
	assert.Equal(t, 3, *out.DaysBefore)
	assert.Equal(t, 45, *out.DaysAfter)
}

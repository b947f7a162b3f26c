package hinova

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"unicode"

	"github.com/itchyny/gojq"

	"github.com/rendis/blockrun/internal/actions"
	"github.com/rendis/blockrun/pkg/schema"
)

// vehiclesQuery projects the member's vehicles to the fields saved in the
// session. A member without vehicles yields an empty array.
const vehiclesQuery = `.veiculos // [] | map({codigo_veiculo, placa, descricao_modelo, situacao})`

var vehiclesCode = mustCompile(vehiclesQuery)

func mustCompile(query string) *gojq.Code {
	parsed, err := gojq.Parse(query)
	if err != nil {
		panic(fmt.Sprintf("parse %q: %v", query, err))
	}
	// Empty environment: $ENV and env never see the process environment.
	code, err := gojq.Compile(parsed, gojq.WithEnvironLoader(func() []string { return nil }))
	if err != nil {
		panic(fmt.Sprintf("compile %q: %v", query, err))
	}
	return code
}

// memberVehicle fixes the key order of the saved JSON. Absent fields are
// omitted.
type memberVehicle struct {
	VehicleCode      any `json:"codigo_veiculo,omitempty"`
	Plate            any `json:"placa,omitempty"`
	ModelDescription any `json:"descricao_modelo,omitempty"`
	Status           any `json:"situacao,omitempty"`
}

// MemberLookup finds a member by CPF and saves their vehicles as a JSON
// array.
type MemberLookup struct {
	client *actions.APIClient
}

func (h *MemberLookup) Info() actions.HandlerInfo {
	return actions.HandlerInfo{
		Kind:        schema.ActionMemberLookup,
		Integration: schema.BlockTypeHinova,
		Description: "Look up a member by CPF and save their vehicles as a JSON array.",
	}
}

func (h *MemberLookup) Execute(ctx context.Context, raw schema.ActionOptions, ec actions.ExecContext) (*schema.ExecutionResult, error) {
	opts, ok := raw.(schema.MemberLookupOptions)
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "unexpected options %T", raw)
	}
	resolved, err := actions.ResolveOptions(opts, ec)
	if err != nil {
		return nil, err
	}
	cpf, fail := ec.RequireInput(resolved.CPF, "CPF not provided", "Invalid CPF")
	if fail != nil {
		return fail, nil
	}

	body, err := h.client.Get(ctx, "associado/buscar/"+url.PathEscape(CleanCPF(cpf)), ec.Token)
	var vehicles []memberVehicle
	if err == nil {
		vehicles, err = projectVehicles(ctx, body)
	}
	if err != nil {
		return ec.Result(actions.DescribeError(err, "While looking up member")), nil
	}
	if len(vehicles) == 0 {
		return ec.Result(actions.InfoLog("No vehicles found for the member")), nil
	}

	logs := []schema.LogEntry{actions.SuccessLog(fmt.Sprintf("%d vehicle(s) found", len(vehicles)))}
	encoded, err := json.Marshal(vehicles)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "failed to encode vehicles").WithCause(err)
	}
	out := actions.NewOutputs(ec.State)
	out.Set(opts.VehiclesVariableID, string(encoded))
	return out.Finish(ec, logs), nil
}

// CleanCPF strips the dots, dashes and whitespace of a formatted CPF.
func CleanCPF(cpf string) string {
	return strings.Map(func(r rune) rune {
		if r == '.' || r == '-' || unicode.IsSpace(r) {
			return -1
		}
		return r
	}, cpf)
}

func projectVehicles(ctx context.Context, body []byte) ([]memberVehicle, error) {
	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, schema.NewError(schema.ErrCodeUpstream, "response is not valid JSON").WithCause(err)
	}

	iter := vehiclesCode.RunWithContext(ctx, doc)
	val, ok := iter.Next()
	if !ok {
		return nil, nil
	}
	if err, isErr := val.(error); isErr {
		return nil, schema.NewError(schema.ErrCodeUpstream, "unexpected member response").WithCause(err)
	}

	items, _ := val.([]any)
	vehicles := make([]memberVehicle, 0, len(items))
	for _, item := range items {
		m, _ := item.(map[string]any)
		vehicles = append(vehicles, memberVehicle{
			VehicleCode:      m["codigo_veiculo"],
			Plate:            m["placa"],
			ModelDescription: m["descricao_modelo"],
			Status:           m["situacao"],
		})
	}
	return vehicles, nil
}

package hinova

import (
	"context"
	"fmt"
	"net/url"

	"github.com/tidwall/gjson"

	"github.com/rendis/blockrun/internal/actions"
	"github.com/rendis/blockrun/pkg/schema"
)

// VehicleLookup finds a vehicle by plate. When the plate yields nothing it
// is converted to the Mercosul format and looked up once more; if that also
// yields nothing every configured output receives NoRecord.
type VehicleLookup struct {
	client *actions.APIClient
}

func (h *VehicleLookup) Info() actions.HandlerInfo {
	return actions.HandlerInfo{
		Kind:        schema.ActionVehicleLookup,
		Integration: schema.BlockTypeHinova,
		Description: "Look up a vehicle by plate, retrying once with the Mercosul plate format.",
	}
}

func (h *VehicleLookup) Execute(ctx context.Context, raw schema.ActionOptions, ec actions.ExecContext) (*schema.ExecutionResult, error) {
	opts, ok := raw.(schema.VehicleLookupOptions)
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "unexpected options %T", raw)
	}
	resolved, err := actions.ResolveOptions(opts, ec)
	if err != nil {
		return nil, err
	}
	plate, fail := ec.RequireInput(resolved.Plate, "Plate not provided", "Invalid plate")
	if fail != nil {
		return fail, nil
	}

	var logs []schema.LogEntry
	vehicles, err := h.search(ctx, plate, ec.Token)
	if err == nil && len(vehicles) == 0 {
		fallback := MercosulPlate(plate)
		logs = append(logs, actions.InfoLog(fmt.Sprintf("Original plate not found, retrying with Mercosul format: %s", fallback)))
		vehicles, err = h.search(ctx, fallback, ec.Token)
	}
	if err != nil {
		return ec.Result(append(logs, actions.DescribeError(err, "While looking up vehicle"))...), nil
	}

	// Output IDs are taken from the unresolved options.
	out := actions.NewOutputs(ec.State)
	if len(vehicles) == 0 {
		logs = append(logs, actions.InfoLog("No vehicle found"))
		out.SetAll(NoRecord, opts.VehicleCodeVariableID, opts.FipeCodeVariableID, opts.StatusDescriptionVariableID)
		return out.Finish(ec, logs), nil
	}

	v := vehicles[0]
	logs = append(logs, actions.SuccessLog(fmt.Sprintf("Vehicle found: %s", v.Get("placa").String())))
	out.Set(opts.VehicleCodeVariableID, v.Get("codigo_veiculo").String())
	out.Set(opts.FipeCodeVariableID, v.Get("codigo_fipe").String())
	out.Set(opts.StatusDescriptionVariableID, v.Get("descricao_situacao").String())
	return out.Finish(ec, logs), nil
}

// search returns the records for plate. A null body is an empty result.
func (h *VehicleLookup) search(ctx context.Context, plate, token string) ([]gjson.Result, error) {
	body, err := h.client.Get(ctx, "veiculo/buscar/"+url.PathEscape(plate), token)
	if err != nil {
		return nil, err
	}
	return parseArray(body)
}

// parseArray accepts a JSON array or null; anything else is an error.
func parseArray(body []byte) ([]gjson.Result, error) {
	if !gjson.ValidBytes(body) {
		return nil, schema.NewError(schema.ErrCodeUpstream, "response is not valid JSON")
	}
	root := gjson.ParseBytes(body)
	switch {
	case root.Type == gjson.Null:
		return nil, nil
	case root.IsArray():
		return root.Array(), nil
	}
	return nil, schema.NewError(schema.ErrCodeUpstream, "expected a JSON array in response")
}

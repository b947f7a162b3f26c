package validation

import (
	"fmt"

	"github.com/rendis/blockrun/pkg/schema"
)

// field is one configured option of a block, addressed by its wire path.
type field struct {
	path  string
	value string
}

// requiredInputs lists the inputs an action cannot run without.
func requiredInputs(opts schema.ActionOptions) []field {
	switch o := opts.(type) {
	case schema.VehicleLookupOptions:
		return []field{{"options.placa", o.Plate}}
	case schema.InvoiceLookupOptions:
		return []field{{"options.codigoVeiculo", o.VehicleCode}}
	case schema.MemberLookupOptions:
		return []field{{"options.cpf", o.CPF}}
	}
	return nil
}

// outputTargets lists the variable IDs an action writes to, configured or not.
func outputTargets(opts schema.ActionOptions) []field {
	switch o := opts.(type) {
	case schema.VehicleLookupOptions:
		return []field{
			{"options.codigoVeiculoVariableId", o.VehicleCodeVariableID},
			{"options.codigoFipeVariableId", o.FipeCodeVariableID},
			{"options.descricaoSituacaoVariableId", o.StatusDescriptionVariableID},
		}
	case schema.InvoiceLookupOptions:
		return []field{
			{"options.situacaoBoletoVariableId", o.StatusVariableID},
			{"options.dataVencimentoVariableId", o.DueDateVariableID},
			{"options.pixCopiaColaVariableId", o.PixCopyPasteVariableID},
			{"options.linkBoletoVariableId", o.LinkVariableID},
			{"options.linhaDigitavelVariableId", o.DigitableLineVariableID},
			{"options.nossoNumeroVariableId", o.OurNumberVariableID},
			{"options.valorBoletoVariableId", o.AmountVariableID},
		}
	case schema.MemberLookupOptions:
		return []field{{"options.veiculosVariableId", o.VehiclesVariableID}}
	}
	return nil
}

// CheckBlock performs semantic analysis of a decoded block against the
// registered actions and, when given, the session it will run in.
// Problems the dispatcher reports at run time as log entries are warnings
// here; only configurations that can never run are errors.
func CheckBlock(block *schema.Block, state *schema.SessionState, lookup ActionLookup) *schema.ValidationResult {
	result := &schema.ValidationResult{}
	if block == nil {
		result.AddError("", schema.ErrCodeValidation, "block is nil")
		return result
	}

	opts := block.Options
	if opts == nil || opts.Kind() == "" {
		result.AddWarning("options.action", schema.ErrCodeValidation,
			"no action configured; the block only follows its outgoing edge")
		return result
	}

	kind := opts.Kind()
	if lookup != nil && !lookup.Has(kind) {
		result.AddError("options.action", schema.ErrCodeActionUnavailable,
			fmt.Sprintf("action %q not registered", kind))
	}
	if opts.CredentialsRef() == "" {
		result.AddWarning("options.credentialsId", schema.ErrCodeValidation,
			"no credentials selected; execution will log \"Missing credentialsId\"")
	}
	for _, f := range requiredInputs(opts) {
		if f.value == "" {
			result.AddWarning(f.path, schema.ErrCodeValidation,
				fmt.Sprintf("%s is empty; execution will fail", f.path))
		}
	}
	if o, ok := opts.(schema.InvoiceLookupOptions); ok {
		checkWindow(o, result)
	}

	configured := 0
	for _, f := range outputTargets(opts) {
		if f.value == "" {
			continue
		}
		configured++
		if state == nil {
			continue
		}
		if _, ok := state.FindVariable(f.value); !ok {
			result.AddWarning(f.path, schema.ErrCodeNotFound,
				fmt.Sprintf("variable %q not in session; its result will be discarded", f.value))
		}
	}
	if configured == 0 {
		result.AddWarning("options", schema.ErrCodeValidation,
			"no output variable configured; results will not be saved")
	}

	return result
}

func checkWindow(o schema.InvoiceLookupOptions, result *schema.ValidationResult) {
	if o.DaysBefore != nil && *o.DaysBefore < 0 {
		result.AddError("options.diasAntes", schema.ErrCodeValidation, "diasAntes must not be negative")
	}
	if o.DaysAfter != nil && *o.DaysAfter < 0 {
		result.AddError("options.diasDepois", schema.ErrCodeValidation, "diasDepois must not be negative")
	}
}

package hinova

import (
	"context"
	"fmt"
	"time"

	"github.com/tidwall/gjson"

	"github.com/rendis/blockrun/internal/actions"
	"github.com/rendis/blockrun/pkg/schema"
)

// Default invoice window around today, in days.
const (
	DefaultDaysBefore = 0
	DefaultDaysAfter  = 15
)

const invoiceDateLayout = "02/01/2006"

// InvoiceLookup lists the invoices of a vehicle whose original due date is
// inside a window around today and saves the first one.
type InvoiceLookup struct {
	client *actions.APIClient
	now    func() time.Time
}

type invoiceQuery struct {
	VehicleCode string `json:"codigo_veiculo"`
	DueFrom     string `json:"data_vencimento_original_inicial"`
	DueTo       string `json:"data_vencimento_original_final"`
}

func (h *InvoiceLookup) Info() actions.HandlerInfo {
	return actions.HandlerInfo{
		Kind:        schema.ActionInvoiceLookup,
		Integration: schema.BlockTypeHinova,
		Description: "Fetch the invoices of a vehicle due in a window around today and save the first.",
	}
}

func (h *InvoiceLookup) Execute(ctx context.Context, raw schema.ActionOptions, ec actions.ExecContext) (*schema.ExecutionResult, error) {
	opts, ok := raw.(schema.InvoiceLookupOptions)
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "unexpected options %T", raw)
	}
	resolved, err := actions.ResolveOptions(opts, ec)
	if err != nil {
		return nil, err
	}
	code, fail := ec.RequireInput(resolved.VehicleCode, "Vehicle code not provided", "Invalid vehicle code")
	if fail != nil {
		return fail, nil
	}

	body, err := h.client.Post(ctx, "listar/boleto-associado-veiculo", ec.Token, h.query(code, opts))
	var invoices []gjson.Result
	if err == nil {
		invoices, err = parseArray(body)
	}
	if err != nil {
		return ec.Result(actions.DescribeError(err, "While fetching invoices")), nil
	}
	if len(invoices) == 0 {
		return ec.Result(actions.InfoLog("No invoice found in the requested period")), nil
	}

	inv := invoices[0]
	link := inv.Get("link_boleto").String()
	if link == "" {
		link = "not provided"
	}
	pix := "absent"
	if inv.Get("pix.copia_cola").String() != "" {
		pix = "present"
	}
	logs := []schema.LogEntry{
		actions.SuccessLog(fmt.Sprintf("%d invoice(s) found. Processing the first: %s",
			len(invoices), inv.Get("nosso_numero").String())),
		actions.InfoLog(fmt.Sprintf("Invoice data: status=%s, due=%s, link=%s, pix=%s",
			inv.Get("situacao_boleto").String(), inv.Get("data_vencimento").String(), link, pix)),
	}

	out := actions.NewOutputs(ec.State)
	out.Set(opts.StatusVariableID, inv.Get("situacao_boleto").String())
	out.Set(opts.DueDateVariableID, inv.Get("data_vencimento").String())
	out.Set(opts.PixCopyPasteVariableID, inv.Get("pix.copia_cola").String())
	out.Set(opts.LinkVariableID, inv.Get("link_boleto").String())
	out.Set(opts.DigitableLineVariableID, inv.Get("linha_digitavel").String())
	out.Set(opts.OurNumberVariableID, ourNumber(inv.Get("nosso_numero")))
	out.Set(opts.AmountVariableID, inv.Get("valor_boleto").String())
	return out.Finish(ec, logs), nil
}

// query builds the request body. The window is counted in calendar days
// from today in the clock's location.
func (h *InvoiceLookup) query(code string, opts schema.InvoiceLookupOptions) invoiceQuery {
	before, after := DefaultDaysBefore, DefaultDaysAfter
	if opts.DaysBefore != nil {
		before = *opts.DaysBefore
	}
	if opts.DaysAfter != nil {
		after = *opts.DaysAfter
	}
	today := h.now()
	return invoiceQuery{
		VehicleCode: code,
		DueFrom:     today.AddDate(0, 0, -before).Format(invoiceDateLayout),
		DueTo:       today.AddDate(0, 0, after).Format(invoiceDateLayout),
	}
}

// ourNumber renders nosso_numero, which the API sends as a number or a
// string. Zero counts as absent.
func ourNumber(r gjson.Result) string {
	if r.Type == gjson.Number && r.Num == 0 {
		return ""
	}
	return r.String()
}

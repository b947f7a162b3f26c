package schema

import (
	"bytes"
	"encoding/json"
)

// BlockType identifies the integration a block belongs to.
type BlockType string

const BlockTypeHinova BlockType = "Hinova"

// ActionKind is the operation a block performs. Values are the persisted
// configuration strings and must not change.
type ActionKind string

const (
	ActionVehicleLookup ActionKind = "Consulta Veículo"
	ActionInvoiceLookup ActionKind = "Busca Boleto"
	ActionMemberLookup  ActionKind = "Busca Associado"
)

// HinovaActions is the closed set of action kinds of Hinova blocks.
var HinovaActions = []ActionKind{
	ActionVehicleLookup,
	ActionInvoiceLookup,
	ActionMemberLookup,
}

// IntegrationActions maps every integration to its closed set of action kinds.
var IntegrationActions = map[BlockType][]ActionKind{
	BlockTypeHinova: HinovaActions,
}

// ActionOptions is the per-action-kind configuration of a block.
// The set of implementations is closed to this package.
type ActionOptions interface {
	Kind() ActionKind
	CredentialsRef() string
	isActionOptions()
}

// BaseOptions holds the fields shared by every action kind.
type BaseOptions struct {
	CredentialsID string `json:"credentialsId,omitempty"`
}

func (b BaseOptions) CredentialsRef() string { return b.CredentialsID }
func (BaseOptions) isActionOptions()         {}

// NoActionOptions is a configuration where no action has been chosen yet.
type NoActionOptions struct {
	BaseOptions
}

func (NoActionOptions) Kind() ActionKind { return "" }

// VehicleLookupOptions configures a plate lookup.
type VehicleLookupOptions struct {
	BaseOptions
	Plate                       string `json:"placa,omitempty"`
	VehicleCodeVariableID       string `json:"codigoVeiculoVariableId,omitempty"`
	FipeCodeVariableID          string `json:"codigoFipeVariableId,omitempty"`
	StatusDescriptionVariableID string `json:"descricaoSituacaoVariableId,omitempty"`
}

func (VehicleLookupOptions) Kind() ActionKind { return ActionVehicleLookup }

// InvoiceLookupOptions configures an invoice (boleto) lookup for a vehicle.
type InvoiceLookupOptions struct {
	BaseOptions
	VehicleCode             string `json:"codigoVeiculo,omitempty"`
	DaysBefore              *int   `json:"diasAntes,omitempty"`
	DaysAfter               *int   `json:"diasDepois,omitempty"`
	StatusVariableID        string `json:"situacaoBoletoVariableId,omitempty"`
	DueDateVariableID       string `json:"dataVencimentoVariableId,omitempty"`
	PixCopyPasteVariableID  string `json:"pixCopiaColaVariableId,omitempty"`
	LinkVariableID          string `json:"linkBoletoVariableId,omitempty"`
	DigitableLineVariableID string `json:"linhaDigitavelVariableId,omitempty"`
	OurNumberVariableID     string `json:"nossoNumeroVariableId,omitempty"`
	AmountVariableID        string `json:"valorBoletoVariableId,omitempty"`
}

func (InvoiceLookupOptions) Kind() ActionKind { return ActionInvoiceLookup }

// MemberLookupOptions configures a member lookup by CPF.
type MemberLookupOptions struct {
	BaseOptions
	CPF                string `json:"cpf,omitempty"`
	VehiclesVariableID string `json:"veiculosVariableId,omitempty"`
}

func (MemberLookupOptions) Kind() ActionKind { return ActionMemberLookup }

// Block is one configured step of a workflow graph.
// A nil Options behaves like NoActionOptions.
type Block struct {
	ID             string        `json:"id"`
	Type           BlockType     `json:"type"`
	OutgoingEdgeID string        `json:"outgoingEdgeId,omitempty"`
	Options        ActionOptions `json:"-"`
}

type blockJSON struct {
	ID             string          `json:"id"`
	Type           BlockType       `json:"type"`
	OutgoingEdgeID string          `json:"outgoingEdgeId,omitempty"`
	Options        json.RawMessage `json:"options,omitempty"`
}

// UnmarshalJSON decodes a block, selecting the options variant by its
// "action" discriminator.
func (b *Block) UnmarshalJSON(data []byte) error {
	var raw blockJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	opts, err := DecodeOptions(raw.Options)
	if err != nil {
		return err
	}
	*b = Block{ID: raw.ID, Type: raw.Type, OutgoingEdgeID: raw.OutgoingEdgeID, Options: opts}
	return nil
}

// MarshalJSON encodes a block with the options discriminator inlined.
func (b Block) MarshalJSON() ([]byte, error) {
	raw := blockJSON{ID: b.ID, Type: b.Type, OutgoingEdgeID: b.OutgoingEdgeID}
	if b.Options != nil {
		opts, err := EncodeOptions(b.Options)
		if err != nil {
			return nil, err
		}
		raw.Options = opts
	}
	return json.Marshal(raw)
}

// DecodeOptions decodes raw options into their concrete variant.
// Absent options decode to nil.
func DecodeOptions(raw json.RawMessage) (ActionOptions, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}

	var probe struct {
		Action ActionKind `json:"action"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, NewError(ErrCodeValidation, "invalid block options").WithCause(err)
	}

	switch probe.Action {
	case "":
		return decodeVariant[NoActionOptions](raw)
	case ActionVehicleLookup:
		return decodeVariant[VehicleLookupOptions](raw)
	case ActionInvoiceLookup:
		return decodeVariant[InvoiceLookupOptions](raw)
	case ActionMemberLookup:
		return decodeVariant[MemberLookupOptions](raw)
	default:
		return nil, NewErrorf(ErrCodeValidation, "unknown action %q", probe.Action).
			WithDetails(map[string]any{"action": string(probe.Action)})
	}
}

func decodeVariant[T ActionOptions](raw json.RawMessage) (ActionOptions, error) {
	var opts T
	if err := json.Unmarshal(raw, &opts); err != nil {
		return nil, NewError(ErrCodeValidation, "invalid block options").WithCause(err)
	}
	return opts, nil
}

// EncodeOptions encodes options with their "action" discriminator.
func EncodeOptions(opts ActionOptions) (json.RawMessage, error) {
	b, err := json.Marshal(opts)
	if err != nil {
		return nil, err
	}
	if opts.Kind() == "" {
		return b, nil
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	m["action"] = string(opts.Kind())
	return json.Marshal(m)
}

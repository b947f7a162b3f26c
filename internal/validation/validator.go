package validation

import (
	"encoding/json"

	"github.com/rendis/blockrun/pkg/schema"
)

// Validator checks blocks and decrypted secrets before execution.
// Uses JSON Schema Draft 2020-12.
type Validator interface {
	ValidateBlock(raw []byte) error
	ValidateSecret(secret map[string]any, secretSchema []byte) error
}

// ActionLookup reports whether an action kind has a registered handler.
type ActionLookup interface {
	Has(kind schema.ActionKind) bool
}

// Validate runs the full pipeline on a raw block: structural schema check,
// decoding, then semantic checks. A structural or decoding failure returns
// an error and no block.
func Validate(v Validator, raw []byte, state *schema.SessionState, lookup ActionLookup) (*schema.Block, *schema.ValidationResult, error) {
	if err := v.ValidateBlock(raw); err != nil {
		return nil, nil, err
	}
	var block schema.Block
	if err := json.Unmarshal(raw, &block); err != nil {
		return nil, nil, err
	}
	return &block, CheckBlock(&block, state, lookup), nil
}

package validation

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/rendis/blockrun/pkg/schema"
)

const blockSchemaURL = "https://blockrun.dev/schemas/block.json"

// blockSchemaJSON describes the wire form of an integration block. Options
// are discriminated by "action"; an absent action is a block not configured
// yet. Fields that hold templates are plain strings.
const blockSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://blockrun.dev/schemas/block.json",
  "type": "object",
  "required": ["id", "type"],
  "properties": {
    "id": { "type": "string", "minLength": 1 },
    "type": { "type": "string", "enum": ["Hinova"] },
    "outgoingEdgeId": { "type": "string" },
    "options": { "$ref": "#/$defs/options" }
  },
  "$defs": {
    "options": {
      "type": "object",
      "properties": {
        "action": {
          "type": "string",
          "enum": ["Consulta Veículo", "Busca Boleto", "Busca Associado"]
        },
        "credentialsId": { "type": "string" }
      },
      "allOf": [
        {
          "if": { "required": ["action"], "properties": { "action": { "const": "Consulta Veículo" } } },
          "then": { "$ref": "#/$defs/vehicleLookup" }
        },
        {
          "if": { "required": ["action"], "properties": { "action": { "const": "Busca Boleto" } } },
          "then": { "$ref": "#/$defs/invoiceLookup" }
        },
        {
          "if": { "required": ["action"], "properties": { "action": { "const": "Busca Associado" } } },
          "then": { "$ref": "#/$defs/memberLookup" }
        }
      ]
    },
    "vehicleLookup": {
      "properties": {
        "action": true,
        "credentialsId": true,
        "placa": { "type": "string" },
        "codigoVeiculoVariableId": { "type": "string" },
        "codigoFipeVariableId": { "type": "string" },
        "descricaoSituacaoVariableId": { "type": "string" }
      },
      "additionalProperties": false
    },
    "invoiceLookup": {
      "properties": {
        "action": true,
        "credentialsId": true,
        "codigoVeiculo": { "type": "string" },
        "diasAntes": { "type": "integer", "minimum": 0 },
        "diasDepois": { "type": "integer", "minimum": 0 },
        "situacaoBoletoVariableId": { "type": "string" },
        "dataVencimentoVariableId": { "type": "string" },
        "pixCopiaColaVariableId": { "type": "string" },
        "linkBoletoVariableId": { "type": "string" },
        "linhaDigitavelVariableId": { "type": "string" },
        "nossoNumeroVariableId": { "type": "string" },
        "valorBoletoVariableId": { "type": "string" }
      },
      "additionalProperties": false
    },
    "memberLookup": {
      "properties": {
        "action": true,
        "credentialsId": true,
        "cpf": { "type": "string" },
        "veiculosVariableId": { "type": "string" }
      },
      "additionalProperties": false
    }
  }
}`

// credentialSchemas holds the shape of the decrypted secret per integration.
var credentialSchemas = map[schema.BlockType][]byte{
	schema.BlockTypeHinova: []byte(`{
  "type": "object",
  "required": ["token"],
  "properties": {
    "token": { "type": "string", "minLength": 1 }
  }
}`),
}

// CredentialSchema returns the JSON Schema of the decrypted secret of an
// integration, or nil when the integration declares none.
func CredentialSchema(t schema.BlockType) []byte {
	return credentialSchemas[t]
}

// JSONSchemaValidator implements the Validator interface using JSON Schema Draft 2020-12.
// It is safe for concurrent use.
type JSONSchemaValidator struct {
	blockSchema *jsonschema.Schema

	// mu guards the cache of dynamically compiled schemas.
	mu    sync.RWMutex
	cache map[string]*jsonschema.Schema
}

// NewJSONSchemaValidator creates a validator with the block schema pre-compiled.
func NewJSONSchemaValidator() (*JSONSchemaValidator, error) {
	c := newCompiler()

	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(blockSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("unmarshal block schema: %w", err)
	}
	if err := c.AddResource(blockSchemaURL, doc); err != nil {
		return nil, fmt.Errorf("add block schema resource: %w", err)
	}
	blockSchema, err := c.Compile(blockSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile block schema: %w", err)
	}

	return &JSONSchemaValidator{
		blockSchema: blockSchema,
		cache:       make(map[string]*jsonschema.Schema),
	}, nil
}

// ValidateBlock validates the wire form of a block.
func (v *JSONSchemaValidator) ValidateBlock(raw []byte) error {
	if len(raw) == 0 {
		return schema.NewError(schema.ErrCodeValidation, "block is empty")
	}
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(string(raw)))
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "block is not valid JSON").WithCause(err)
	}
	if err := v.blockSchema.Validate(doc); err != nil {
		return toSchemaError(err)
	}
	return nil
}

// ValidateSecret validates a decrypted credential against a JSON Schema given
// as raw bytes. Compiled schemas are cached by their text.
func (v *JSONSchemaValidator) ValidateSecret(secret map[string]any, secretSchema []byte) error {
	if len(secretSchema) == 0 {
		return nil
	}
	if secret == nil {
		return schema.NewError(schema.ErrCodeValidation, "secret is nil")
	}

	compiled, err := v.getOrCompile(secretSchema)
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "invalid secret schema").WithCause(err)
	}

	doc, err := toJSONValue(secret)
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "failed to serialize secret").WithCause(err)
	}
	if err := compiled.Validate(doc); err != nil {
		return toSchemaError(err)
	}
	return nil
}

// getOrCompile returns a cached compiled schema or compiles and caches a new one.
func (v *JSONSchemaValidator) getOrCompile(schemaBytes []byte) (*jsonschema.Schema, error) {
	key := string(schemaBytes)

	v.mu.RLock()
	if cached, ok := v.cache[key]; ok {
		v.mu.RUnlock()
		return cached, nil
	}
	v.mu.RUnlock()

	v.mu.Lock()
	defer v.mu.Unlock()

	if cached, ok := v.cache[key]; ok {
		return cached, nil
	}

	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(key))
	if err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}

	// Fresh compiler and URL per schema so resources never collide.
	url := fmt.Sprintf("blockrun://secret-schema/%d", len(v.cache))
	c := newCompiler()
	if err := c.AddResource(url, doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	compiled, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}

	v.cache[key] = compiled
	return compiled, nil
}

func newCompiler() *jsonschema.Compiler {
	c := jsonschema.NewCompiler()
	c.AssertFormat()
	return c
}

// toJSONValue round-trips a Go value through JSON so numbers become
// json.Number, as the jsonschema library expects.
func toJSONValue(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(strings.NewReader(string(b)))
}

// toSchemaError converts a jsonschema.ValidationError into a VALIDATION_ERROR
// listing every leaf violation with its instance location.
func toSchemaError(err error) *schema.Error {
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return schema.NewError(schema.ErrCodeValidation, err.Error())
	}

	violations := collectViolations(verr)
	switch len(violations) {
	case 0:
		return schema.NewError(schema.ErrCodeValidation, verr.Error())
	case 1:
		return schema.NewError(schema.ErrCodeValidation, violations[0]).
			WithDetails(map[string]any{"violations": violations})
	}
	return schema.NewErrorf(schema.ErrCodeValidation, "validation failed with %d errors", len(violations)).
		WithDetails(map[string]any{"violations": violations})
}

func collectViolations(verr *jsonschema.ValidationError) []string {
	if len(verr.Causes) == 0 {
		loc := "/" + strings.Join(verr.InstanceLocation, "/")
		return []string{fmt.Sprintf("%s: %s", loc, verr.Error())}
	}
	var violations []string
	for _, cause := range verr.Causes {
		violations = append(violations, collectViolations(cause)...)
	}
	return violations
}

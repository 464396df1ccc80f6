package llm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/joseph-ayodele/fiscal-extractor/constants"
)

// FiscalJSONSchema returns the JSON-Schema for MappedFields as a generic map.
// It is sent to the model as a structured output constraint and also used
// locally to validate the answer.
func FiscalJSONSchema() map[string]any {
	payment := make([]any, 0, 5)
	for _, pm := range constants.PaymentMethodsAsStrings() {
		payment = append(payment, pm)
	}
	payment = append(payment, nil)

	concepto := map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"descripcion":    map[string]any{"type": "string", "minLength": 1},
			"cantidad":       amountProp(),
			"valor_unitario": amountProp(),
			"importe":        amountProp(),
		},
		"required": []string{"descripcion"},
	}

	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"uuid": nullableString(map[string]any{
				"pattern": `^[0-9A-Fa-f]{8}-[0-9A-Fa-f]{4}-[0-9A-Fa-f]{4}-[0-9A-Fa-f]{4}-[0-9A-Fa-f]{12}$`,
			}),
			"rfc_emisor":      rfcProp(),
			"rfc_receptor":    rfcProp(),
			"total":           amountProp(),
			"subtotal":        amountProp(),
			"iva":             amountProp(),
			"fecha":           nullableString(map[string]any{"pattern": `^\d{4}-\d{2}-\d{2}$`}),
			"forma_pago":      map[string]any{"enum": payment},
			"establecimiento": nullableString(map[string]any{"minLength": 1}),
			"conceptos":       map[string]any{"type": "array", "items": concepto},
		},
	}
}

func nullableString(extra map[string]any) map[string]any {
	m := map[string]any{"type": []string{"string", "null"}}
	for k, v := range extra {
		m[k] = v
	}
	return m
}

func rfcProp() map[string]any {
	return nullableString(map[string]any{"minLength": 12, "maxLength": 13})
}

func amountProp() map[string]any {
	return map[string]any{"type": []string{"number", "null"}, "minimum": 0}
}

var (
	fiscalSchemaOnce sync.Once
	fiscalSchema     *jsonschema.Schema
	fiscalSchemaErr  error
)

// compiledFiscalSchema compiles FiscalJSONSchema once per process.
func compiledFiscalSchema() (*jsonschema.Schema, error) {
	fiscalSchemaOnce.Do(func() {
		fiscalSchema, fiscalSchemaErr = CompileSchema(FiscalJSONSchema())
	})
	return fiscalSchema, fiscalSchemaErr
}

// CompileSchema compiles a schema given as a generic map.
func CompileSchema(schemaMap map[string]any) (*jsonschema.Schema, error) {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}

// ValidateJSONAgainstSchema validates "data" against "schemaMap".
func ValidateJSONAgainstSchema(schemaMap map[string]any, data []byte) error {
	schema, err := CompileSchema(schemaMap)
	if err != nil {
		return err
	}
	return validateWith(schema, data)
}

func validateWith(schema *jsonschema.Schema, data []byte) error {
	var v any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("json does not match schema: %w", err)
	}
	return nil
}

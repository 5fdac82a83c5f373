package llm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// RequiredFields must be present for a model answer to count as recovered.
var RequiredFields = []string{"document_title"}

// BuildResultJSONSchema returns the JSON Schema of StructuredResult as a generic
// map. It is sent to providers as a formatting constraint and used locally
// to validate.
func BuildResultJSONSchema() map[string]any {
	str := map[string]any{"type": "string"}
	strList := map[string]any{"type": "array", "items": str}
	props := map[string]any{
		"document_title": str,
		"issuing_party":  str,
		"key_dates": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type":                 "object",
				"additionalProperties": false,
				"properties": map[string]any{
					"label": str,
					"date":  map[string]any{"type": "string", "pattern": `^\d{4}-\d{2}-\d{2}$`},
				},
				"required": []string{"date"},
			},
		},
		"monetary_values": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type":                 "object",
				"additionalProperties": false,
				"properties": map[string]any{
					"label":    str,
					"amount":   map[string]any{"type": "number"},
					"currency": map[string]any{"type": "string", "pattern": `^[A-Z]{3}$`},
				},
				"required": []string{"amount"},
			},
		},
		"notes":             str,
		"confidence":        map[string]any{"type": "number", "minimum": 0.0, "maximum": 1.0},
		"blocking_issues":   strList,
		"follow_up_actions": strList,
		"reference_number":  str,
		"outcome":           str,
		"property_address":  str,
	}
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           props,
		"required":             RequiredFields,
	}
}

var resultSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	return compileSchema(BuildResultJSONSchema())
})

func compileSchema(schemaMap map[string]any) (*jsonschema.Schema, error) {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("result.json", bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("result.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}

// ValidateResult validates a JSON document against the result schema.
func ValidateResult(data []byte) error {
	schema, err := resultSchema()
	if err != nil {
		return err
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("json does not match schema: %w", err)
	}
	return nil
}

package summarize

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// BuildSummaryJSONSchema returns a JSON-Schema (draft 2020-12 subset) as a
// generic map. We pass it to the model as a structured output constraint and
// also use it locally to validate before storing.
func BuildSummaryJSONSchema() map[string]any {
	props := map[string]any{
		"role":    map[string]any{"type": "string", "minLength": 1},
		"summary": map[string]any{"type": "string", "minLength": 1},
		"skills":  stringArrayProp(),
		"experience": map[string]any{
			"type":                 "object",
			"additionalProperties": false,
			"properties": map[string]any{
				"total_years":  map[string]any{"type": "number", "minimum": 0},
				"companies":    map[string]any{"type": "integer", "minimum": 0},
				"latest_title": map[string]any{"type": "string"},
			},
		},
		"strengths":      stringArrayProp(),
		"education":      stringArrayProp(),
		"certifications": stringArrayProp(),
		"contact": map[string]any{
			"type":                 "object",
			"additionalProperties": false,
			"properties": map[string]any{
				"email":    map[string]any{"type": "string"},
				"phone":    map[string]any{"type": "string"},
				"location": map[string]any{"type": "string"},
			},
		},
		"score":         map[string]any{"type": "integer", "minimum": 1, "maximum": 10},
		"justification": map[string]any{"type": "string", "minLength": 1},
	}
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           props,
		"required":             []string{"role", "summary", "score", "justification"},
	}
}

func stringArrayProp() map[string]any {
	return map[string]any{
		"type":  "array",
		"items": map[string]any{"type": "string"},
	}
}

// ValidateJSONAgainstSchema validates "data" against "schemaMap".
func ValidateJSONAgainstSchema(schemaMap map[string]any, data []byte) error {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(b)); err != nil {
		return fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
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

package model

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// BuildArtifactJSONSchema returns the JSON-Schema of a serialized pipeline as a generic map.
func BuildArtifactJSONSchema() map[string]any {
	label := map[string]any{"type": "string", "minLength": 1}
	finite := map[string]any{"type": "number"}

	vectorizer := map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"lowercase": map[string]any{"type": "boolean"},
			"ngram_range": map[string]any{
				"type":     "array",
				"items":    map[string]any{"type": "integer", "minimum": 1},
				"minItems": 2,
				"maxItems": 2,
			},
			"sublinear_tf": map[string]any{"type": "boolean"},
			"norm":         map[string]any{"type": "string", "enum": []string{"l2", "none"}},
			"vocabulary": map[string]any{
				"type":                 "object",
				"minProperties":        1,
				"additionalProperties": map[string]any{"type": "integer", "minimum": 0},
			},
			"idf": map[string]any{"type": "array", "minItems": 1, "items": finite},
		},
		"required": []string{"vocabulary", "idf"},
	}

	classifier := map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"coef": map[string]any{
				"type":     "array",
				"minItems": 1,
				"items":    map[string]any{"type": "array", "items": finite},
			},
			"intercept":   map[string]any{"type": "array", "minItems": 1, "items": finite},
			"temperature": map[string]any{"type": "number", "exclusiveMinimum": 0},
		},
		"required": []string{"coef", "intercept"},
	}

	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"model_type":             map[string]any{"type": "string", "enum": []string{TypeLogisticRegression, TypeLinearSVC}},
			"labels":                 map[string]any{"type": "array", "items": label, "minItems": 2, "uniqueItems": true},
			"accuracy":               map[string]any{"type": "number", "minimum": 0.0, "maximum": 1.0},
			"min_accuracy_threshold": map[string]any{"type": "number", "minimum": 0.0, "maximum": 1.0},
			"training_samples":       map[string]any{"type": "integer", "minimum": 0},
			"test_samples":           map[string]any{"type": "integer", "minimum": 0},
			"trained_at":             map[string]any{"type": "string"},
			"vectorizer":             vectorizer,
			"classifier":             classifier,
		},
		"required": []string{"model_type", "labels", "vectorizer", "classifier"},
	}
}

// ValidateJSONAgainstSchema validates "data" against "schemaMap".
func ValidateJSONAgainstSchema(schemaMap map[string]any, data []byte) error {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("artifact.schema.json", bytes.NewReader(b)); err != nil {
		return fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("artifact.schema.json")
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

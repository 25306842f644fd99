package llm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

var (
	resultSchemaOnce sync.Once
	resultSchemaC    *jsonschema.Schema
	resultSchemaErr  error
)

// ValidateJSONAgainstSchema validates "data" against "schemaMap".
func ValidateJSONAgainstSchema(schemaMap map[string]any, data []byte) error {
	schema, err := compileSchema(schemaMap)
	if err != nil {
		return err
	}
	return validateWith(schema, data)
}

// ParseResult validates a raw model reply against ValidationSchema and decodes it.
// Anything that does not fit is rejected, never coerced.
func ParseResult(data []byte) (Result, error) {
	resultSchemaOnce.Do(func() {
		resultSchemaC, resultSchemaErr = compileSchema(ValidationSchema())
	})
	if resultSchemaErr != nil {
		return Result{}, resultSchemaErr
	}
	if err := validateWith(resultSchemaC, data); err != nil {
		return Result{}, err
	}

	var out Result
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&out); err != nil {
		return Result{}, fmt.Errorf("unmarshal result: %w", err)
	}
	if out.Clauses == nil {
		out.Clauses = []Clause{}
	}
	if err := out.Validate(); err != nil {
		return Result{}, err
	}
	return out, nil
}

func compileSchema(schemaMap map[string]any) (*jsonschema.Schema, error) {
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

func validateWith(schema *jsonschema.Schema, data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("json does not match schema: %w", err)
	}
	return nil
}

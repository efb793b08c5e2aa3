package pipeline

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func compileForTest(t *testing.T, schema string) *SchemaValidator {
	t.Helper()
	validator, err := CompileSchema(json.RawMessage(schema))
	require.NoError(t, err)
	return validator
}

func TestSchemaValidatorReportsEveryViolation(t *testing.T) {
	validator := compileForTest(t, `{
		"type": "object",
		"required": ["name", "age"],
		"properties": {
			"name": {"type": "string", "pattern": "^[A-Z]"},
			"age": {"type": "integer", "minimum": 0},
			"tags": {"type": "array", "items": {"type": "string", "enum": ["a", "b"]}}
		}
	}`)

	assert.Empty(t, validator.Validate(map[string]any{"name": "Ada", "age": float64(36), "tags": []any{"a"}}))

	errs := validator.Validate(map[string]any{"name": "ada", "age": float64(-1), "tags": []any{"c"}})
	assert.GreaterOrEqual(t, len(errs), 3)

	errs = validator.Validate(map[string]any{})
	require.NotEmpty(t, errs)
	assert.Contains(t, errs[0], "name")
}

func TestSchemaValidatorStandardKeywords(t *testing.T) {
	tests := []struct {
		name    string
		schema  string
		valid   any
		invalid any
	}{
		{
			name:    "const",
			schema:  `{"properties": {"c": {"const": "x"}}}`,
			valid:   map[string]any{"c": "x"},
			invalid: map[string]any{"c": "y"},
		},
		{
			name:    "numeric exclusiveMinimum",
			schema:  `{"properties": {"n": {"type": "number", "exclusiveMinimum": 0}}}`,
			valid:   map[string]any{"n": 0.5},
			invalid: map[string]any{"n": float64(0)},
		},
		{
			name:    "dependentRequired",
			schema:  `{"dependentRequired": {"a": ["b"]}}`,
			valid:   map[string]any{"a": float64(1), "b": float64(2)},
			invalid: map[string]any{"a": float64(1)},
		},
		{
			name:    "draft-07 dependencies",
			schema:  `{"$schema": "http://json-schema.org/draft-07/schema#", "dependencies": {"a": ["b"]}}`,
			valid:   map[string]any{"b": float64(2)},
			invalid: map[string]any{"a": float64(1)},
		},
		{
			name:    "additionalProperties",
			schema:  `{"properties": {"a": {}}, "additionalProperties": false}`,
			valid:   map[string]any{"a": "x"},
			invalid: map[string]any{"a": "x", "b": "y"},
		},
		{
			name:    "integer",
			schema:  `{"type": "integer"}`,
			valid:   float64(3),
			invalid: 3.5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			validator := compileForTest(t, tt.schema)
			assert.Empty(t, validator.Validate(tt.valid))
			assert.NotEmpty(t, validator.Validate(tt.invalid))
		})
	}
}

func TestSchemaValidatorLocatesNestedErrors(t *testing.T) {
	validator := compileForTest(t, `{"properties": {"answer": {"type": "string"}}}`)

	errs := validator.Validate(map[string]any{"answer": float64(1)})
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "at /answer: ")
}

func TestCompileSchemaRefHandling(t *testing.T) {
	validator := compileForTest(t, `{
		"$defs": {"name": {"type": "string"}},
		"properties": {
			"$ref": {"type": "string"},
			"who": {"$ref": "#/$defs/name"},
			"kind": {"enum": [{"$ref": "literal"}]}
		}
	}`)
	assert.Empty(t, validator.Validate(map[string]any{"$ref": "x", "who": "ada", "kind": map[string]any{"$ref": "literal"}}))
	assert.NotEmpty(t, validator.Validate(map[string]any{"who": float64(1)}))

	_, err := CompileSchema(json.RawMessage(`{"$ref": "other.json"}`))
	assert.Error(t, err)
}

func TestCompileSchemaRejectsNonObjects(t *testing.T) {
	_, err := CompileSchema(nil)
	assert.ErrorIs(t, err, ErrMissingSchema)

	for _, raw := range []string{`true`, `[1]`, `"s"`, `{bad`} {
		_, err := CompileSchema(json.RawMessage(raw))
		assert.ErrorIs(t, err, ErrSchemaNotObject, raw)
	}
}

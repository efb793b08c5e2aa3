package pipeline

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const schemaResourceURL = "file:///llmpipe/output_schema.json"

var (
	errRemoteRef   = errors.New("remote $ref is not supported")
	messagePrinter = message.NewPrinter(language.English)
)

// SchemaValidator checks JSON values against a compiled output schema.
type SchemaValidator struct {
	schema *jsonschema.Schema
}

// noRemoteLoader refuses every external resource, so only references inside
// the output schema itself resolve.
type noRemoteLoader struct{}

func (noRemoteLoader) Load(url string) (any, error) {
	return nil, fmt.Errorf("%w: %s", errRemoteRef, url)
}

// CompileSchema parses raw as a JSON Schema object. Schemas without $schema
// are treated as draft 2020-12; local $ref pointers resolve, remote ones fail.
func CompileSchema(raw json.RawMessage) (*SchemaValidator, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, ErrMissingSchema
	}

	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(trimmed))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSchemaNotObject, err)
	}
	if _, ok := doc.(map[string]any); !ok {
		return nil, ErrSchemaNotObject
	}

	compiler := jsonschema.NewCompiler()
	compiler.DefaultDraft(jsonschema.Draft2020)
	compiler.UseLoader(noRemoteLoader{})
	if err := compiler.AddResource(schemaResourceURL, doc); err != nil {
		return nil, fmt.Errorf("output_schema: %w", err)
	}
	schema, err := compiler.Compile(schemaResourceURL)
	if err != nil {
		return nil, fmt.Errorf("output_schema: %w", err)
	}
	return &SchemaValidator{schema: schema}, nil
}

// Validate returns every violation found in value. An empty slice means the
// value conforms.
func (v *SchemaValidator) Validate(value any) []string {
	instance, err := normalizeInstance(value)
	if err != nil {
		return []string{err.Error()}
	}

	err = v.schema.Validate(instance)
	if err == nil {
		return nil
	}
	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		return []string{err.Error()}
	}
	return flattenSchemaErrors(verr)
}

// normalizeInstance re-decodes value so numbers arrive as json.Number, the
// representation the validator expects.
func normalizeInstance(value any) (any, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("encode answer: %w", err)
	}
	return jsonschema.UnmarshalJSON(bytes.NewReader(data))
}

// flattenSchemaErrors collects the leaves of the validation error tree.
func flattenSchemaErrors(err *jsonschema.ValidationError) []string {
	var messages []string
	var walk func(err *jsonschema.ValidationError)
	walk = func(err *jsonschema.ValidationError) {
		if len(err.Causes) == 0 {
			messages = append(messages, formatSchemaError(err))
			return
		}
		for _, cause := range err.Causes {
			walk(cause)
		}
	}
	walk(err)
	return messages
}

func formatSchemaError(err *jsonschema.ValidationError) string {
	reason := ""
	if err.ErrorKind != nil {
		reason = strings.TrimSpace(err.ErrorKind.LocalizedString(messagePrinter))
	}
	if reason == "" {
		reason = "value does not match schema"
	}
	if len(err.InstanceLocation) > 0 {
		return fmt.Sprintf("at /%s: %s", strings.Join(err.InstanceLocation, "/"), reason)
	}
	return reason
}

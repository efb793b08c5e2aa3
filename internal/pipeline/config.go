package pipeline

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/PetersonGuo/HTN25/internal/backend"
)

const (
	DefaultTemplateNamespace = "templates"
	DefaultTimeoutSeconds    = 60
	DefaultMaxOutputTokens   = 1024
	DefaultJSONRetryAttempts = 1
)

// Config holds the parameters of one pipeline invocation. It is read-only once
// validated and may be shared between concurrent runs.
type Config struct {
	DefaultModel      string          `json:"default_model" yaml:"default_model"`
	DefaultBackend    backend.Kind    `json:"default_backend" yaml:"default_backend"`
	TemplateNamespace string          `json:"template_namespace" yaml:"template_namespace"`
	TimeoutSeconds    int             `json:"timeout_seconds" yaml:"timeout_seconds"`
	MaxOutputTokens   int             `json:"max_output_tokens" yaml:"max_output_tokens"`
	OutputSchema      json.RawMessage `json:"output_schema" yaml:"-"`
	JSONRetryAttempts int             `json:"json_retry_attempts" yaml:"json_retry_attempts"`
}

// fileConfig distinguishes absent keys from explicit zero values.
type fileConfig struct {
	DefaultModel      *string         `json:"default_model"`
	DefaultBackend    *string         `json:"default_backend"`
	DefaultExecutor   *string         `json:"default_executor"`
	TemplateNamespace *string         `json:"template_namespace"`
	TimeoutSeconds    *int            `json:"timeout_seconds"`
	MaxOutputTokens   *int            `json:"max_output_tokens"`
	OutputSchema      json.RawMessage `json:"output_schema"`
	JSONRetryAttempts *int            `json:"json_retry_attempts"`
}

// DefaultConfig returns a config with every optional field at its default.
// DefaultModel and OutputSchema are left empty.
func DefaultConfig() Config {
	return Config{
		DefaultBackend:    backend.DefaultKind(),
		TemplateNamespace: DefaultTemplateNamespace,
		TimeoutSeconds:    DefaultTimeoutSeconds,
		MaxOutputTokens:   DefaultMaxOutputTokens,
		JSONRetryAttempts: DefaultJSONRetryAttempts,
	}
}

// ParseConfig decodes a JSON or YAML document and validates it.
func ParseConfig(data []byte) (Config, error) {
	cfg, err := DecodeConfig(data)
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// DecodeConfig decodes a JSON or YAML document and applies defaults for absent
// keys without validating, so callers can apply overrides first.
func DecodeConfig(data []byte) (Config, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return Config{}, configError("config document is empty")
	}

	raw := trimmed
	if trimmed[0] != '{' {
		converted, err := yamlToJSON(trimmed)
		if err != nil {
			return Config{}, wrapConfigError(err, "decode yaml config")
		}
		raw = converted
	}

	var file fileConfig
	if err := json.Unmarshal(raw, &file); err != nil {
		return Config{}, wrapConfigError(err, "decode config")
	}

	cfg := DefaultConfig()
	if file.DefaultModel != nil {
		cfg.DefaultModel = *file.DefaultModel
	}
	switch {
	case file.DefaultBackend != nil:
		cfg.DefaultBackend = backend.Kind(strings.ToLower(strings.TrimSpace(*file.DefaultBackend)))
	case file.DefaultExecutor != nil:
		cfg.DefaultBackend = backend.Kind(strings.ToLower(strings.TrimSpace(*file.DefaultExecutor)))
	}
	if file.TemplateNamespace != nil {
		cfg.TemplateNamespace = *file.TemplateNamespace
	}
	if file.TimeoutSeconds != nil {
		cfg.TimeoutSeconds = *file.TimeoutSeconds
	}
	if file.MaxOutputTokens != nil {
		cfg.MaxOutputTokens = *file.MaxOutputTokens
	}
	if file.JSONRetryAttempts != nil {
		cfg.JSONRetryAttempts = *file.JSONRetryAttempts
	}
	cfg.OutputSchema = file.OutputSchema
	return cfg, nil
}

// Validate checks every field. All failures wrap ErrConfig.
func (c Config) Validate() error {
	_, err := c.compile()
	return err
}

func (c Config) compile() (*SchemaValidator, error) {
	if strings.TrimSpace(c.DefaultModel) == "" {
		return nil, configError("default_model is required")
	}
	if !c.DefaultBackend.Valid() {
		return nil, configError("unknown default_backend %q", c.DefaultBackend)
	}
	if err := checkRange("timeout_seconds", c.TimeoutSeconds, 1, 600); err != nil {
		return nil, err
	}
	if err := checkRange("max_output_tokens", c.MaxOutputTokens, 16, 8192); err != nil {
		return nil, err
	}
	if err := checkRange("json_retry_attempts", c.JSONRetryAttempts, 1, 5); err != nil {
		return nil, err
	}

	validator, err := CompileSchema(c.OutputSchema)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfig, err)
	}
	return validator, nil
}

// Timeout returns the per-call backend timeout.
func (c Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func checkRange(field string, value, lo, hi int) error {
	if value < lo || value > hi {
		return configError("%s must be between %d and %d, got %d", field, lo, hi, value)
	}
	return nil
}

// yamlToJSON converts a YAML mapping to JSON, keeping mapping key order so the
// output schema reads in the prompt as it was written.
func yamlToJSON(data []byte) ([]byte, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	root := &doc
	if root.Kind == yaml.DocumentNode && len(root.Content) > 0 {
		root = root.Content[0]
	}
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("config must be a mapping")
	}

	var buf bytes.Buffer
	if err := writeYAMLNode(&buf, root); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeYAMLNode(buf *bytes.Buffer, node *yaml.Node) error {
	switch node.Kind {
	case yaml.DocumentNode:
		if len(node.Content) == 0 {
			buf.WriteString("null")
			return nil
		}
		return writeYAMLNode(buf, node.Content[0])
	case yaml.AliasNode:
		return writeYAMLNode(buf, node.Alias)
	case yaml.MappingNode:
		buf.WriteByte('{')
		for i := 0; i+1 < len(node.Content); i += 2 {
			if i > 0 {
				buf.WriteByte(',')
			}
			key, err := json.Marshal(node.Content[i].Value)
			if err != nil {
				return err
			}
			buf.Write(key)
			buf.WriteByte(':')
			if err := writeYAMLNode(buf, node.Content[i+1]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
		return nil
	case yaml.SequenceNode:
		buf.WriteByte('[')
		for i, item := range node.Content {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeYAMLNode(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil
	default:
		var value any
		if err := node.Decode(&value); err != nil {
			return err
		}
		encoded, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("line %d: %w", node.Line, err)
		}
		buf.Write(encoded)
		return nil
	}
}

package pipeline

import (
	"strings"

	"github.com/PetersonGuo/HTN25/internal/backend"
)

// DefaultTemplateName is used when the input does not name a template.
const DefaultTemplateName = "qna"

// Decision is the resolved model, template and backend for one invocation.
type Decision struct {
	Model        string         `json:"model"`
	TemplateName string         `json:"template_name"`
	Backend      backend.Kind   `json:"backend"`
	ToolsAllowed map[string]any `json:"tools_allowed,omitempty"`
}

// Agent maps an input and config to a Decision. Implementations must be pure:
// the same input and config always yield the same decision.
type Agent interface {
	Decide(input map[string]any, cfg Config) Decision
}

// AgentFunc adapts a function to the Agent interface.
type AgentFunc func(input map[string]any, cfg Config) Decision

func (f AgentFunc) Decide(input map[string]any, cfg Config) Decision {
	return f(input, cfg)
}

// DefaultAgent reads template_name and model from the input and falls back to
// the config defaults.
type DefaultAgent struct{}

func (DefaultAgent) Decide(input map[string]any, cfg Config) Decision {
	templateName := stringField(input, "template_name")
	if templateName == "" {
		templateName = DefaultTemplateName
	}
	model := stringField(input, "model")
	if model == "" {
		model = cfg.DefaultModel
	}
	return Decision{
		Model:        model,
		TemplateName: templateName,
		Backend:      cfg.DefaultBackend,
	}
}

func stringField(input map[string]any, key string) string {
	if input == nil {
		return ""
	}
	value, ok := input[key].(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(value)
}

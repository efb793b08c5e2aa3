package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/PetersonGuo/HTN25/internal/backend"
)

func TestDefaultAgentDecide(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DefaultModel = "default-model"
	cfg.DefaultBackend = backend.KindGemini

	tests := []struct {
		name  string
		input map[string]any
		want  Decision
	}{
		{
			name:  "defaults",
			input: map[string]any{"question": "hi"},
			want:  Decision{Model: "default-model", TemplateName: "qna", Backend: backend.KindGemini},
		},
		{
			name:  "input overrides",
			input: map[string]any{"template_name": "vision", "model": "gemini-2.0-flash"},
			want:  Decision{Model: "gemini-2.0-flash", TemplateName: "vision", Backend: backend.KindGemini},
		},
		{
			name:  "blank and non-string values ignored",
			input: map[string]any{"template_name": "  ", "model": 7},
			want:  Decision{Model: "default-model", TemplateName: "qna", Backend: backend.KindGemini},
		},
		{
			name:  "nil input",
			input: nil,
			want:  Decision{Model: "default-model", TemplateName: "qna", Backend: backend.KindGemini},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			first := DefaultAgent{}.Decide(tt.input, cfg)
			second := DefaultAgent{}.Decide(tt.input, cfg)
			assert.Equal(t, tt.want, first)
			assert.Equal(t, first, second)
		})
	}
}

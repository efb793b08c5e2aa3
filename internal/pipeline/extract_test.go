package pipeline

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestExtractJSONObject(t *testing.T) {
	tests := []struct {
		name string
		text string
		want map[string]any
		ok   bool
	}{
		{
			name: "fenced json block",
			text: "Here:\n```json\n{\"a\": 1}\n```",
			want: map[string]any{"a": float64(1)},
			ok:   true,
		},
		{
			name: "fenced block uppercase tag",
			text: "```JSON\n{\"a\": \"b\"}\n```",
			want: map[string]any{"a": "b"},
			ok:   true,
		},
		{
			name: "untagged fence",
			text: "```\n{\"x\": true}\n```",
			want: map[string]any{"x": true},
			ok:   true,
		},
		{
			name: "fence preferred over earlier prose object",
			text: "{\"draft\": 1}\n```json\n{\"final\": 2}\n```",
			want: map[string]any{"final": float64(2)},
			ok:   true,
		},
		{
			name: "brace inside string",
			text: `The answer is {"s": "a}b"} ok`,
			want: map[string]any{"s": "a}b"},
			ok:   true,
		},
		{
			name: "escaped quote inside string",
			text: `x {"s": "say \"}\" now"} y`,
			want: map[string]any{"s": `say "}" now`},
			ok:   true,
		},
		{
			name: "invalid span skipped",
			text: `{bad} then {"ok": true}`,
			want: map[string]any{"ok": true},
			ok:   true,
		},
		{
			name: "nested object",
			text: `result: {"outer": {"inner": [1, 2]}} done`,
			want: map[string]any{"outer": map[string]any{"inner": []any{float64(1), float64(2)}}},
			ok:   true,
		},
		{
			name: "stray closing brace",
			text: `} {"a": 1}`,
			want: map[string]any{"a": float64(1)},
			ok:   true,
		},
		{
			name: "no braces",
			text: "nothing to see here",
		},
		{
			name: "unbalanced",
			text: `{"a": 1`,
		},
		{
			name: "bad fence falls back to text",
			text: "```json\nnot json\n```\nbut later {\"z\": 0}",
			want: map[string]any{"z": float64(0)},
			ok:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractJSONObject(tt.text)
			if ok != tt.ok {
				t.Fatalf("expected ok=%v, got %v (value %v)", tt.ok, ok, got)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Fatalf("unexpected object (-want +got):\n%s", diff)
			}
		})
	}
}

package backend

import (
	"context"
	"strings"
	"time"
)

// Kind tags a generation backend variant.
type Kind string

const (
	KindCerebras Kind = "cerebras"
	KindOpenAI   Kind = "openai"
	KindGemini   Kind = "gemini"
)

// Kinds lists every variant the pipeline knows about.
func Kinds() []Kind {
	return []Kind{KindCerebras, KindOpenAI, KindGemini}
}

// ParseKind normalizes a backend name into a Kind.
func ParseKind(name string) (Kind, bool) {
	kind := Kind(strings.ToLower(strings.TrimSpace(name)))
	return kind, kind.Valid()
}

// Valid reports whether k is one of the known variants.
func (k Kind) Valid() bool {
	for _, known := range Kinds() {
		if k == known {
			return true
		}
	}
	return false
}

func (k Kind) String() string {
	return string(k)
}

// Request is a single generation call.
type Request struct {
	Prompt string
	Model  string
	// Images holds base64 payloads or data URLs.
	Images []string
}

// Result is the normalized output of every variant. Output is nil when the
// provider returned no text.
type Result struct {
	Output *string
	Usage  map[string]any
}

// Text returns the output or an empty string.
func (r Result) Text() string {
	if r.Output == nil {
		return ""
	}
	return *r.Output
}

// Options configures a backend at construction time.
type Options struct {
	APIKey          string
	BaseURL         string
	Timeout         time.Duration
	MaxOutputTokens int
}

// Backend defines the interface for generation providers.
type Backend interface {
	Generate(ctx context.Context, req Request) (Result, error)
	SupportsImages() bool
}

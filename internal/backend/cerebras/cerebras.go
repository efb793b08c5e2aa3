// Package cerebras talks to the Cerebras OpenAI-compatible completions endpoint.
// The completions API is text only.
package cerebras

import (
	"context"
	"net/http"
	"strings"

	"github.com/PetersonGuo/HTN25/internal/backend"
)

// DefaultAPIURL is the completions endpoint used when Options.BaseURL is empty.
const DefaultAPIURL = "https://api.cerebras.ai/v1/completions"

type Backend struct {
	apiKey          string
	apiURL          string
	maxOutputTokens int
	httpClient      *http.Client
}

type completionRequest struct {
	Model     string `json:"model"`
	Prompt    string `json:"prompt"`
	MaxTokens int    `json:"max_tokens,omitempty"`
}

type completionResponse struct {
	Choices []struct {
		Text    *string `json:"text"`
		Message struct {
			Content *string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage map[string]any `json:"usage"`
}

var _ backend.Backend = (*Backend)(nil)

func init() {
	if err := backend.Register(backend.Descriptor{
		Kind:           backend.KindCerebras,
		DefaultBaseURL: DefaultAPIURL,
		Factory:        func(opts backend.Options) (backend.Backend, error) { return New(opts) },
	}); err != nil {
		panic(err)
	}
}

// New returns a Cerebras backend. A missing API key is an auth error.
func New(opts backend.Options) (*Backend, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, backend.AuthError(backend.KindCerebras, nil)
	}
	apiURL := strings.TrimSpace(opts.BaseURL)
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	return &Backend{
		apiKey:          opts.APIKey,
		apiURL:          apiURL,
		maxOutputTokens: opts.MaxOutputTokens,
		httpClient:      backend.NewHTTPClient(opts.Timeout),
	}, nil
}

func (b *Backend) SupportsImages() bool {
	return false
}

func (b *Backend) Generate(ctx context.Context, req backend.Request) (backend.Result, error) {
	if len(req.Images) > 0 {
		return backend.Result{}, backend.UnsupportedError(backend.KindCerebras, "image inputs")
	}

	payload := completionRequest{
		Model:     req.Model,
		Prompt:    req.Prompt,
		MaxTokens: b.maxOutputTokens,
	}
	var resp completionResponse
	if err := backend.PostJSON(ctx, b.httpClient, backend.KindCerebras, b.apiURL, b.apiKey, payload, &resp); err != nil {
		return backend.Result{}, err
	}

	result := backend.Result{Usage: resp.Usage}
	if result.Usage == nil {
		result.Usage = map[string]any{}
	}
	if len(resp.Choices) > 0 {
		choice := resp.Choices[0]
		switch {
		case choice.Text != nil && *choice.Text != "":
			result.Output = choice.Text
		case choice.Message.Content != nil:
			result.Output = choice.Message.Content
		}
	}
	return result, nil
}

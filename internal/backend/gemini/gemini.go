// Package gemini implements the Gemini variant on top of the genai SDK.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"github.com/PetersonGuo/HTN25/internal/backend"
)

type Backend struct {
	client          *genai.Client
	maxOutputTokens int
}

var _ backend.Backend = (*Backend)(nil)

func init() {
	if err := backend.Register(backend.Descriptor{
		Kind:    backend.KindGemini,
		Images:  true,
		Factory: func(opts backend.Options) (backend.Backend, error) { return New(opts) },
	}); err != nil {
		panic(err)
	}
}

// New returns a Gemini backend. The API key must be supplied explicitly; the
// SDK's own environment lookup is never relied on.
func New(opts backend.Options) (*Backend, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, backend.AuthError(backend.KindGemini, nil)
	}

	config := &genai.ClientConfig{
		APIKey:     opts.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: backend.NewHTTPClient(opts.Timeout),
	}
	if baseURL := strings.TrimSpace(opts.BaseURL); baseURL != "" {
		config.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}

	client, err := genai.NewClient(context.Background(), config)
	if err != nil {
		return nil, backend.AuthError(backend.KindGemini, fmt.Errorf("create genai client: %w", err))
	}

	return &Backend{client: client, maxOutputTokens: opts.MaxOutputTokens}, nil
}

func (b *Backend) SupportsImages() bool {
	return true
}

func (b *Backend) Generate(ctx context.Context, req backend.Request) (backend.Result, error) {
	contents, err := buildContents(req)
	if err != nil {
		return backend.Result{}, err
	}

	config := &genai.GenerateContentConfig{}
	if b.maxOutputTokens > 0 {
		config.MaxOutputTokens = int32(b.maxOutputTokens)
	}
	if strings.Contains(strings.ToLower(req.Prompt), "json") {
		config.ResponseMIMEType = "application/json"
	}

	resp, err := b.client.Models.GenerateContent(ctx, req.Model, contents, config)
	if err != nil {
		return backend.Result{}, classifyError(err)
	}

	result := backend.Result{Usage: usageFromMetadata(resp.UsageMetadata)}
	if text := resp.Text(); text != "" {
		result.Output = &text
	}
	return result, nil
}

// classifyError maps SDK failures onto backend error kinds. API errors carry
// the HTTP status; anything else never got a response.
func classifyError(err error) error {
	var apiErr genai.APIError
	if !errors.As(err, &apiErr) {
		return backend.TransportError(backend.KindGemini, err)
	}
	if apiErr.Code == http.StatusUnauthorized || apiErr.Code == http.StatusForbidden {
		return &backend.Error{
			Kind:       backend.ErrorAuth,
			Backend:    backend.KindGemini,
			StatusCode: apiErr.Code,
			Body:       apiErr.Message,
		}
	}
	return backend.UpstreamError(backend.KindGemini, apiErr.Code, apiErr.Message)
}

func buildContents(req backend.Request) ([]*genai.Content, error) {
	parts := make([]*genai.Part, 0, len(req.Images)+1)
	parts = append(parts, genai.NewPartFromText(req.Prompt))
	for i, image := range req.Images {
		data, mime, err := backend.DecodeImage(image)
		if err != nil {
			return nil, &backend.Error{Kind: backend.ErrorUnsupported, Backend: backend.KindGemini, Err: fmt.Errorf("image %d: %w", i, err)}
		}
		parts = append(parts, genai.NewPartFromBytes(data, mime))
	}
	return []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}, nil
}

func usageFromMetadata(meta *genai.GenerateContentResponseUsageMetadata) map[string]any {
	usage := map[string]any{}
	if meta == nil {
		return usage
	}
	usage["prompt_tokens"] = int(meta.PromptTokenCount)
	usage["completion_tokens"] = int(meta.CandidatesTokenCount)
	usage["total_tokens"] = int(meta.TotalTokenCount)
	return usage
}

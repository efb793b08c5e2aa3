// Package openai implements the chat completions variant, including image inputs.
package openai

import (
	"context"
	"net/http"
	"strings"

	"github.com/PetersonGuo/HTN25/internal/backend"
)

// DefaultBaseURL is used when Options.BaseURL is empty.
const DefaultBaseURL = "https://api.openai.com/v1"

type Backend struct {
	apiKey          string
	baseURL         string
	maxOutputTokens int
	httpClient      *http.Client
}

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content *string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

var _ backend.Backend = (*Backend)(nil)

func init() {
	if err := backend.Register(backend.Descriptor{
		Kind:           backend.KindOpenAI,
		Images:         true,
		DefaultBaseURL: DefaultBaseURL,
		Factory:        func(opts backend.Options) (backend.Backend, error) { return New(opts) },
	}); err != nil {
		panic(err)
	}
}

// New returns an OpenAI backend. A missing API key is an auth error.
func New(opts backend.Options) (*Backend, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, backend.AuthError(backend.KindOpenAI, nil)
	}
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Backend{
		apiKey:          opts.APIKey,
		baseURL:         baseURL,
		maxOutputTokens: opts.MaxOutputTokens,
		httpClient:      backend.NewHTTPClient(opts.Timeout),
	}, nil
}

func (b *Backend) SupportsImages() bool {
	return true
}

func (b *Backend) Generate(ctx context.Context, req backend.Request) (backend.Result, error) {
	payload := chatRequest{
		Model:     req.Model,
		Messages:  []chatMessage{buildMessage(req.Prompt, req.Images)},
		MaxTokens: b.maxOutputTokens,
	}
	if strings.Contains(strings.ToLower(req.Prompt), "json") {
		payload.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	var resp chatResponse
	if err := backend.PostJSON(ctx, b.httpClient, backend.KindOpenAI, b.baseURL+"/chat/completions", b.apiKey, payload, &resp); err != nil {
		return backend.Result{}, err
	}

	result := backend.Result{Usage: map[string]any{}}
	if len(resp.Choices) > 0 {
		result.Output = resp.Choices[0].Message.Content
	}
	if resp.Usage != nil {
		result.Usage["prompt_tokens"] = resp.Usage.PromptTokens
		result.Usage["completion_tokens"] = resp.Usage.CompletionTokens
		result.Usage["total_tokens"] = resp.Usage.TotalTokens
	}
	return result, nil
}

func buildMessage(prompt string, images []string) chatMessage {
	if len(images) == 0 {
		return chatMessage{Role: "user", Content: prompt}
	}
	parts := make([]contentPart, 0, len(images)+1)
	parts = append(parts, contentPart{Type: "text", Text: prompt})
	for _, image := range images {
		parts = append(parts, contentPart{Type: "image_url", ImageURL: &imageURL{URL: imageDataURL(image)}})
	}
	return chatMessage{Role: "user", Content: parts}
}

func imageDataURL(image string) string {
	if strings.HasPrefix(image, "data:") {
		return image
	}
	return "data:image/jpeg;base64," + image
}

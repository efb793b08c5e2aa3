package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PetersonGuo/HTN25/internal/backend"
)

func newTestServer(t *testing.T, captured *map[string]any, body string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(captured))
		_, _ = w.Write([]byte(body))
	}))
}

func TestGenerateTextPrompt(t *testing.T) {
	var captured map[string]any
	srv := newTestServer(t, &captured, `{"choices":[{"message":{"content":"{\"ok\":true}"}}],"usage":{"prompt_tokens":3,"completion_tokens":4,"total_tokens":7}}`)
	defer srv.Close()

	b, err := New(backend.Options{APIKey: "key", BaseURL: srv.URL + "/v1/", MaxOutputTokens: 64})
	require.NoError(t, err)

	result, err := b.Generate(context.Background(), backend.Request{Prompt: "Return JSON please", Model: "gpt-4o-mini"})
	require.NoError(t, err)
	require.NotNil(t, result.Output)
	assert.Equal(t, `{"ok":true}`, *result.Output)
	assert.Equal(t, map[string]any{"prompt_tokens": 3, "completion_tokens": 4, "total_tokens": 7}, result.Usage)

	assert.Equal(t, "gpt-4o-mini", captured["model"])
	assert.Equal(t, float64(64), captured["max_tokens"])
	assert.Equal(t, map[string]any{"type": "json_object"}, captured["response_format"])
	messages := captured["messages"].([]any)
	require.Len(t, messages, 1)
	assert.Equal(t, "Return JSON please", messages[0].(map[string]any)["content"])
}

func TestGenerateOmitsResponseFormatWithoutJSONMention(t *testing.T) {
	var captured map[string]any
	srv := newTestServer(t, &captured, `{"choices":[{"message":{"content":"hello"}}]}`)
	defer srv.Close()

	b, err := New(backend.Options{APIKey: "key", BaseURL: srv.URL + "/v1"})
	require.NoError(t, err)

	result, err := b.Generate(context.Background(), backend.Request{Prompt: "say hello", Model: "m"})
	require.NoError(t, err)
	assert.NotContains(t, captured, "response_format")
	assert.Empty(t, result.Usage)
}

func TestGenerateWithImagesBuildsContentParts(t *testing.T) {
	var captured map[string]any
	srv := newTestServer(t, &captured, `{"choices":[{"message":{"content":null}}]}`)
	defer srv.Close()

	b, err := New(backend.Options{APIKey: "key", BaseURL: srv.URL + "/v1"})
	require.NoError(t, err)
	assert.True(t, b.SupportsImages())

	result, err := b.Generate(context.Background(), backend.Request{
		Prompt: "describe",
		Model:  "gpt-4o",
		Images: []string{"aGVsbG8=", "data:image/png;base64,aGk="},
	})
	require.NoError(t, err)
	assert.Nil(t, result.Output)

	messages := captured["messages"].([]any)
	parts := messages[0].(map[string]any)["content"].([]any)
	require.Len(t, parts, 3)
	assert.Equal(t, map[string]any{"type": "text", "text": "describe"}, parts[0])
	assert.Equal(t, "data:image/jpeg;base64,aGVsbG8=", parts[1].(map[string]any)["image_url"].(map[string]any)["url"])
	assert.Equal(t, "data:image/png;base64,aGk=", parts[2].(map[string]any)["image_url"].(map[string]any)["url"])
}

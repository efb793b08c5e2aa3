package gemini

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PetersonGuo/HTN25/internal/backend"
)

func TestNewRequiresAPIKey(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "from-env")
	t.Setenv("GOOGLE_API_KEY", "from-env")

	_, err := New(backend.Options{})
	assert.ErrorIs(t, err, backend.ErrMissingCredentials)
}

func TestBuildContentsDecodesImages(t *testing.T) {
	contents, err := buildContents(backend.Request{
		Prompt: "describe",
		Images: []string{"data:image/png;base64,aGk="},
	})
	require.NoError(t, err)
	require.Len(t, contents, 1)
	require.Len(t, contents[0].Parts, 2)
	assert.Equal(t, "describe", contents[0].Parts[0].Text)
	require.NotNil(t, contents[0].Parts[1].InlineData)
	assert.Equal(t, "image/png", contents[0].Parts[1].InlineData.MIMEType)
	assert.Equal(t, []byte("hi"), contents[0].Parts[1].InlineData.Data)
}

func TestBuildContentsRejectsBadImage(t *testing.T) {
	_, err := buildContents(backend.Request{Prompt: "describe", Images: []string{"%%%"}})
	kind, ok := backend.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, backend.ErrorUnsupported, kind)
}

func TestUsageFromNilMetadata(t *testing.T) {
	assert.Equal(t, map[string]any{}, usageFromMetadata(nil))
}

func newTestServer(t *testing.T, status int, body string, captured *map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("x-goog-api-key"))
		assert.True(t, strings.HasSuffix(r.URL.Path, "/models/gemini-test:generateContent"), r.URL.Path)
		if captured != nil {
			assert.NoError(t, json.NewDecoder(r.Body).Decode(captured))
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestGenerateSendsContentAndReadsUsage(t *testing.T) {
	var got map[string]any
	srv := newTestServer(t, http.StatusOK,
		`{"candidates":[{"content":{"role":"model","parts":[{"text":"{\"a\":1}"}]}}],"usageMetadata":{"promptTokenCount":3,"candidatesTokenCount":5,"totalTokenCount":8}}`,
		&got)

	b, err := New(backend.Options{APIKey: "secret", BaseURL: srv.URL, Timeout: time.Second, MaxOutputTokens: 128})
	require.NoError(t, err)

	result, err := b.Generate(context.Background(), backend.Request{Prompt: "answer in JSON", Model: "gemini-test"})
	require.NoError(t, err)
	require.NotNil(t, result.Output)
	assert.Equal(t, `{"a":1}`, *result.Output)
	assert.Equal(t, map[string]any{"prompt_tokens": 3, "completion_tokens": 5, "total_tokens": 8}, result.Usage)

	contents, ok := got["contents"].([]any)
	require.True(t, ok)
	require.Len(t, contents, 1)
	parts := contents[0].(map[string]any)["parts"].([]any)
	assert.Equal(t, "answer in JSON", parts[0].(map[string]any)["text"])

	generation, ok := got["generationConfig"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(128), generation["maxOutputTokens"])
	assert.Equal(t, "application/json", generation["responseMimeType"])
}

func TestGenerateLeavesMIMETypeUnsetForPlainPrompts(t *testing.T) {
	var got map[string]any
	srv := newTestServer(t, http.StatusOK, `{"candidates":[{"content":{"parts":[{"text":"hi"}]}}]}`, &got)

	b, err := New(backend.Options{APIKey: "secret", BaseURL: srv.URL, MaxOutputTokens: 64})
	require.NoError(t, err)

	_, err = b.Generate(context.Background(), backend.Request{Prompt: "say hi", Model: "gemini-test"})
	require.NoError(t, err)

	generation, ok := got["generationConfig"].(map[string]any)
	require.True(t, ok)
	assert.NotContains(t, generation, "responseMimeType")
}

func TestGenerateWithoutCandidatesReturnsNilOutput(t *testing.T) {
	srv := newTestServer(t, http.StatusOK, `{"candidates":[]}`, nil)

	b, err := New(backend.Options{APIKey: "secret", BaseURL: srv.URL})
	require.NoError(t, err)

	result, err := b.Generate(context.Background(), backend.Request{Prompt: "hi", Model: "gemini-test"})
	require.NoError(t, err)
	assert.Nil(t, result.Output)
	assert.Equal(t, map[string]any{}, result.Usage)
}

func TestGenerateClassifiesRejectedKeyAsAuth(t *testing.T) {
	srv := newTestServer(t, http.StatusUnauthorized,
		`{"error":{"code":401,"message":"API key not valid","status":"UNAUTHENTICATED"}}`, nil)

	b, err := New(backend.Options{APIKey: "secret", BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = b.Generate(context.Background(), backend.Request{Prompt: "hi", Model: "gemini-test"})
	var backendErr *backend.Error
	require.ErrorAs(t, err, &backendErr)
	assert.Equal(t, backend.ErrorAuth, backendErr.Kind)
	assert.Equal(t, backend.KindGemini, backendErr.Backend)
	assert.Equal(t, http.StatusUnauthorized, backendErr.StatusCode)
	assert.Equal(t, "API key not valid", backendErr.Body)
}

func TestGenerateSurfacesUpstreamStatusAndBody(t *testing.T) {
	srv := newTestServer(t, http.StatusInternalServerError,
		`{"error":{"code":500,"message":"backend exploded","status":"INTERNAL"}}`, nil)

	b, err := New(backend.Options{APIKey: "secret", BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = b.Generate(context.Background(), backend.Request{Prompt: "hi", Model: "gemini-test"})
	var backendErr *backend.Error
	require.ErrorAs(t, err, &backendErr)
	assert.Equal(t, backend.ErrorUpstream, backendErr.Kind)
	assert.Equal(t, http.StatusInternalServerError, backendErr.StatusCode)
	assert.Equal(t, "backend exploded", backendErr.Body)
	assert.Contains(t, err.Error(), "status 500")
}

func TestGenerateUnreachableServerIsTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	baseURL := srv.URL
	srv.Close()

	b, err := New(backend.Options{APIKey: "secret", BaseURL: baseURL, Timeout: time.Second})
	require.NoError(t, err)

	_, err = b.Generate(context.Background(), backend.Request{Prompt: "hi", Model: "gemini-test"})
	kind, ok := backend.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, backend.ErrorTransport, kind)
}

package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const maxErrorBody = 64 * 1024

// NewHTTPClient returns a client bounded by timeout.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

// PostJSON sends payload to url with bearer auth and decodes a 2xx body into out.
func PostJSON(ctx context.Context, client *http.Client, kind Kind, url, apiKey string, payload, out any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return TransportError(kind, fmt.Errorf("marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return TransportError(kind, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return TransportError(kind, fmt.Errorf("request failed: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			return &Error{Kind: ErrorAuth, Backend: kind, StatusCode: resp.StatusCode, Body: string(body)}
		}
		return UpstreamError(kind, resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return TransportError(kind, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

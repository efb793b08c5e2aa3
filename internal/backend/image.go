package backend

import (
	"encoding/base64"
	"fmt"
	"strings"
)

const defaultImageMIME = "image/jpeg"

// DecodeImage accepts a raw base64 payload or a data URL and returns the bytes
// with their MIME type. Raw payloads are assumed to be JPEG.
func DecodeImage(image string) ([]byte, string, error) {
	payload := strings.TrimSpace(image)
	mime := defaultImageMIME
	if strings.HasPrefix(payload, "data:") {
		header, data, ok := strings.Cut(payload, ",")
		if !ok {
			return nil, "", fmt.Errorf("malformed data URL")
		}
		meta := strings.TrimPrefix(header, "data:")
		if !strings.HasSuffix(meta, ";base64") {
			return nil, "", fmt.Errorf("data URL is not base64 encoded")
		}
		if value := strings.TrimSuffix(meta, ";base64"); value != "" {
			mime = value
		}
		payload = data
	}

	decoded, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", fmt.Errorf("decode image: %w", err)
	}
	return decoded, mime, nil
}

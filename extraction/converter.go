package extraction

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/poiesic/recordstream/core"
)

// Converter turns structured documents (office formats, PDFs, images)
// into plain text.
type Converter interface {
	Convert(ctx context.Context, kind core.ContentKind, name string, content []byte) (string, error)
}

// ConverterFunc adapts a function to the Converter interface.
type ConverterFunc func(ctx context.Context, kind core.ContentKind, name string, content []byte) (string, error)

// Convert calls f.
func (f ConverterFunc) Convert(ctx context.Context, kind core.ContentKind, name string, content []byte) (string, error) {
	return f(ctx, kind, name, content)
}

// HTTPConverter posts content to an external conversion service.
type HTTPConverter struct {
	baseURL string
	client  *http.Client
}

// NewHTTPConverter creates a converter for the service at baseURL.
func NewHTTPConverter(baseURL string, client *http.Client) *HTTPConverter {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Minute}
	}
	return &HTTPConverter{baseURL: strings.TrimSuffix(baseURL, "/"), client: client}
}

type convertRequest struct {
	Kind    string `json:"kind"`
	Name    string `json:"name"`
	Content []byte `json:"content"`
}

type convertResponse struct {
	Text  string `json:"text"`
	Error string `json:"error,omitempty"`
}

// Convert sends the document and returns the extracted text. A 4xx answer
// means the service rejected the document and is reported as an
// IndexingError; anything else is an infrastructure failure.
func (c *HTTPConverter) Convert(ctx context.Context, kind core.ContentKind, name string, content []byte) (string, error) {
	body, err := json.Marshal(convertRequest{Kind: kind.String(), Name: name, Content: content})
	if err != nil {
		return "", fmt.Errorf("failed to encode convert request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/convert", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build convert request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("convert request failed: %w", err)
	}
	defer resp.Body.Close()

	var out convertResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 256<<20)).Decode(&out); err != nil && resp.StatusCode < 300 {
		return "", fmt.Errorf("failed to decode convert response: %w", err)
	}

	switch {
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return "", core.NewIndexingError("", kind, "converter rejected document",
			fmt.Errorf("status %d: %s", resp.StatusCode, out.Error))
	case resp.StatusCode >= 300:
		return "", fmt.Errorf("converter returned status %d", resp.StatusCode)
	}
	return out.Text, nil
}

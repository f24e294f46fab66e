// Package httpocr calls an external OCR service that returns markdown text.
package httpocr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/formly/internal/core/domain"
	"github.com/kirillkom/formly/internal/infrastructure/resilience"
)

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	executor   *resilience.Executor
}

type Options struct {
	APIKey   string
	Timeout  time.Duration
	Executor *resilience.Executor
}

func New(baseURL string, opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     opts.APIKey,
		httpClient: &http.Client{Timeout: timeout},
		executor:   opts.Executor,
	}
}

// Extract posts the raw body to /v1/extract. A 415 response is reported as
// domain.ErrUnsupportedFormat.
func (c *Client) Extract(ctx context.Context, payload domain.FilePayload) (string, error) {
	var text string
	call := func(ctx context.Context) error {
		out, err := c.post(ctx, payload)
		if err != nil {
			return err
		}
		text = out
		return nil
	}

	var err error
	if c.executor != nil {
		err = c.executor.Execute(ctx, "ocr.extract", call, resilience.ClassifyTransportError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return "", resilience.WrapTemporary("ocr extract", err, resilience.ClassifyTransportError)
	}
	return text, nil
}

func (c *Client) post(ctx context.Context, payload domain.FilePayload) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/extract", bytes.NewReader(payload.Data))
	if err != nil {
		return "", fmt.Errorf("create ocr request: %w", err)
	}
	req.Header.Set("Content-Type", payload.MimeType)
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("ocr request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnsupportedMediaType {
		return "", domain.WrapError(domain.ErrUnsupportedFormat, "ocr extract", fmt.Errorf("service rejected %s", payload.MimeType))
	}
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", &resilience.HTTPStatusError{
			Service:    "ocr",
			Operation:  "extract",
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(body),
		}
	}

	var out struct {
		Markdown string `json:"markdown"`
		Text     string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode ocr response: %w", err)
	}
	if out.Markdown != "" {
		return strings.TrimSpace(out.Markdown), nil
	}
	return strings.TrimSpace(out.Text), nil
}

package ollama

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/formly/internal/infrastructure/resilience"
)

type Client struct {
	baseURL    string
	model      string
	httpClient *http.Client
	executor   *resilience.Executor
}

type Options struct {
	Timeout  time.Duration
	Executor *resilience.Executor
}

func New(baseURL, model string, opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
		executor:   opts.Executor,
	}
}

// CompleteJSON runs a JSON-mode generation; it satisfies extraction.Completer.
func (c *Client) CompleteJSON(ctx context.Context, prompt string) (string, error) {
	return c.generate(ctx, map[string]any{
		"model":  c.model,
		"prompt": prompt,
		"stream": false,
		"format": "json",
	})
}

func (c *Client) generateText(ctx context.Context, prompt string) (string, error) {
	return c.generate(ctx, map[string]any{
		"model":  c.model,
		"prompt": prompt,
		"stream": false,
	})
}

func (c *Client) generate(ctx context.Context, reqBody map[string]any) (string, error) {
	var response struct {
		Response string `json:"response"`
	}
	if err := c.call(ctx, "/api/generate", reqBody, &response, "generate"); err != nil {
		return "", err
	}
	return strings.TrimSpace(response.Response), nil
}

func (c *Client) call(ctx context.Context, path string, payload any, out any, operation string) error {
	call := func(ctx context.Context) error {
		return c.postJSON(ctx, path, payload, out, operation)
	}
	var err error
	if c.executor != nil {
		err = c.executor.Execute(ctx, "ollama."+operation, call, resilience.ClassifyTransportError)
	} else {
		err = call(ctx)
	}
	return resilience.WrapTemporary("ollama "+operation, err, resilience.ClassifyTransportError)
}

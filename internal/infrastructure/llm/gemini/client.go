// Package gemini adapts the Gemini API to the extraction, tool-use and brief
// contracts.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/kirillkom/formly/internal/core/domain"
	"github.com/kirillkom/formly/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/formly/internal/infrastructure/resilience"
)

type Client struct {
	client   *genai.Client
	model    string
	executor *resilience.Executor
}

type Options struct {
	// BaseURL overrides the API endpoint; used by tests.
	BaseURL  string
	Executor *resilience.Executor
	Timeout  time.Duration
}

func New(ctx context.Context, apiKey, model string, opts Options) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("gemini api key is required")
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}
	cfg := &genai.ClientConfig{APIKey: apiKey, Backend: genai.BackendGeminiAPI}
	if opts.BaseURL != "" {
		cfg.HTTPOptions.BaseURL = opts.BaseURL
	}
	if opts.Timeout > 0 {
		timeout := opts.Timeout
		cfg.HTTPOptions.Timeout = &timeout
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &Client{client: client, model: model, executor: opts.Executor}, nil
}

func (c *Client) CompleteJSON(ctx context.Context, prompt string) (string, error) {
	resp, err := c.generate(ctx, "generate_json", genai.Text(prompt), &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Text()), nil
}

// GenerateBrief reuses the prompt the Ollama adapter sends.
func (c *Client) GenerateBrief(ctx context.Context, eng *domain.Engagement, docs []*domain.Document) (string, error) {
	resp, err := c.generate(ctx, "generate_brief", genai.Text(ollama.BuildBriefPrompt(eng, docs)), nil)
	if err != nil {
		return "", fmt.Errorf("generate brief: %w", err)
	}
	return strings.TrimSpace(resp.Text()), nil
}

// Converse maps one tool-use turn onto GenerateContent with function
// declarations.
func (c *Client) Converse(ctx context.Context, messages []domain.ChatMessage, tools []domain.ToolSpec) (domain.ChatMessage, error) {
	config := &genai.GenerateContentConfig{}
	contents := make([]*genai.Content, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case domain.RoleSystem:
			config.SystemInstruction = genai.NewContentFromText(m.Content, genai.RoleUser)
		case domain.RoleTool:
			part := genai.NewPartFromFunctionResponse(m.ToolName, map[string]any{"output": m.Content})
			contents = append(contents, genai.NewContentFromParts([]*genai.Part{part}, genai.RoleUser))
		case domain.RoleAssistant:
			parts := []*genai.Part{}
			if m.Content != "" {
				parts = append(parts, genai.NewPartFromText(m.Content))
			}
			for _, tc := range m.ToolCalls {
				parts = append(parts, genai.NewPartFromFunctionCall(tc.Name, tc.Arguments))
			}
			contents = append(contents, genai.NewContentFromParts(parts, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}

	if len(tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, 0, len(tools))
		for _, t := range tools {
			decls = append(decls, &genai.FunctionDeclaration{
				Name:                 t.Name,
				Description:          t.Description,
				ParametersJsonSchema: t.Parameters,
			})
		}
		config.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}

	resp, err := c.generate(ctx, "chat", contents, config)
	if err != nil {
		return domain.ChatMessage{}, err
	}

	reply := domain.ChatMessage{Role: domain.RoleAssistant}
	for i, call := range resp.FunctionCalls() {
		args := call.Args
		if args == nil {
			args = map[string]any{}
		}
		id := call.ID
		if id == "" {
			id = fmt.Sprintf("call_%d", i+1)
		}
		reply.ToolCalls = append(reply.ToolCalls, domain.ToolCall{ID: id, Name: call.Name, Arguments: args})
	}
	if len(reply.ToolCalls) == 0 {
		reply.Content = strings.TrimSpace(resp.Text())
	}
	return reply, nil
}

func (c *Client) generate(ctx context.Context, operation string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	var resp *genai.GenerateContentResponse
	call := func(ctx context.Context) error {
		out, err := c.client.Models.GenerateContent(ctx, c.model, contents, config)
		if err != nil {
			return fmt.Errorf("gemini %s: %w", operation, err)
		}
		resp = out
		return nil
	}

	var err error
	if c.executor != nil {
		err = c.executor.Execute(ctx, "gemini."+operation, call, classifyGeminiError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return nil, resilience.WrapTemporary("gemini "+operation, err, classifyGeminiError)
	}
	return resp, nil
}

func classifyGeminiError(err error) resilience.ErrorClassification {
	code := 0
	var apiErr genai.APIError
	var apiErrPtr *genai.APIError
	switch {
	case errors.As(err, &apiErr):
		code = apiErr.Code
	case errors.As(err, &apiErrPtr):
		code = apiErrPtr.Code
	default:
		return resilience.ClassifyTransportError(err)
	}
	if resilience.IsRetryableHTTPStatus(code) {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}
	return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
}

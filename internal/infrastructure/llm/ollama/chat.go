package ollama

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kirillkom/formly/internal/core/domain"
)

type chatTool struct {
	Type     string       `json:"type"`
	Function chatFunction `json:"function"`
}

type chatFunction struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

type chatToolCall struct {
	Function struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	} `json:"function"`
}

type chatMessage struct {
	Role      string         `json:"role"`
	Content   string         `json:"content"`
	ToolCalls []chatToolCall `json:"tool_calls,omitempty"`
	ToolName  string         `json:"tool_name,omitempty"`
}

// Converse sends one non-streaming /api/chat turn with the tool catalog.
func (c *Client) Converse(ctx context.Context, messages []domain.ChatMessage, tools []domain.ToolSpec) (domain.ChatMessage, error) {
	wire := make([]chatMessage, 0, len(messages))
	for _, m := range messages {
		msg := chatMessage{Role: string(m.Role), Content: m.Content, ToolName: m.ToolName}
		for _, tc := range m.ToolCalls {
			var call chatToolCall
			call.Function.Name = tc.Name
			call.Function.Arguments = tc.Arguments
			msg.ToolCalls = append(msg.ToolCalls, call)
		}
		wire = append(wire, msg)
	}

	catalog := make([]chatTool, 0, len(tools))
	for _, t := range tools {
		catalog = append(catalog, chatTool{
			Type:     "function",
			Function: chatFunction{Name: t.Name, Description: t.Description, Parameters: t.Parameters},
		})
	}

	request := map[string]any{
		"model":    c.model,
		"messages": wire,
		"stream":   false,
	}
	if len(catalog) > 0 {
		request["tools"] = catalog
	}

	var response struct {
		Message chatMessage `json:"message"`
	}
	if err := c.call(ctx, "/api/chat", request, &response, "chat"); err != nil {
		return domain.ChatMessage{}, err
	}

	reply := domain.ChatMessage{Role: domain.RoleAssistant, Content: response.Message.Content}
	for i, tc := range response.Message.ToolCalls {
		if tc.Function.Name == "" {
			continue
		}
		args := tc.Function.Arguments
		if args == nil {
			args = map[string]any{}
		}
		reply.ToolCalls = append(reply.ToolCalls, domain.ToolCall{
			ID:        fmt.Sprintf("call_%d", i+1),
			Name:      tc.Function.Name,
			Arguments: args,
		})
	}
	return reply, nil
}

package domain

import (
	"encoding/json"
	"time"
)

// ClassificationInput is what both classifier front-ends need from a
// processed document.
type ClassificationInput struct {
	OCRText         string
	FileName        string
	ExpectedTaxYear int
}

type ChatRole string

const (
	RoleSystem    ChatRole = "system"
	RoleUser      ChatRole = "user"
	RoleAssistant ChatRole = "assistant"
	RoleTool      ChatRole = "tool"
)

type ToolCall struct {
	ID        string         `json:"id,omitempty"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

type ChatMessage struct {
	Role      ChatRole   `json:"role"`
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	// ToolName is set on tool result messages.
	ToolName string `json:"tool_name,omitempty"`
}

// ToolSpec describes a callable tool; Parameters is a JSON schema object.
type ToolSpec struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// AgentLimits bounds the tool-use classification conversation.
type AgentLimits struct {
	MaxTurns    int
	MaxAttempts int
	Timeout     time.Duration
	TurnTimeout time.Duration
}

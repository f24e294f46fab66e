package mcp

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kirillkom/formly/internal/core/domain"
	"github.com/kirillkom/formly/internal/core/usecase"
)

type classifierStub struct {
	got domain.ClassificationInput
}

func (c *classifierStub) Classify(_ context.Context, in domain.ClassificationInput) domain.ClassificationResult {
	c.got = in
	return domain.ClassificationResult{DocumentType: "W-2", Confidence: 0.9, Issues: []string{}, Attempts: 1}
}

func callRequest(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if result == nil || len(result.Content) == 0 {
		t.Fatalf("empty tool result")
	}
	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected text content, got %T", result.Content[0])
	}
	return text.Text
}

func TestClassifierToolsCatalog(t *testing.T) {
	specs := ClassifierTools()
	if len(specs) != 3 {
		t.Fatalf("expected 3 tools, got %d", len(specs))
	}
	names := []string{usecase.ToolExtractFields, usecase.ToolGradeExtraction, usecase.ToolSubmitClassification}
	for i, tool := range specs {
		if tool.Name != names[i] {
			t.Fatalf("tool %d = %s, want %s", i, tool.Name, names[i])
		}
		var schema map[string]any
		if err := json.Unmarshal(tool.Parameters, &schema); err != nil {
			t.Fatalf("tool %s parameters are not JSON: %v", tool.Name, err)
		}
		if schema["type"] != "object" {
			t.Fatalf("tool %s schema type = %v", tool.Name, schema["type"])
		}
	}
	if !strings.Contains(string(specs[2].Parameters), `"document_type"`) || !strings.Contains(string(specs[2].Parameters), `"required"`) {
		t.Fatalf("submit schema should require document_type: %s", specs[2].Parameters)
	}
}

func TestHandleClassifyPassesInput(t *testing.T) {
	stub := &classifierStub{}
	srv := NewServer(stub, nil)

	result, err := srv.handleClassify(context.Background(), callRequest(map[string]any{
		"ocr_text":          "Form W-2 Wage and Tax Statement",
		"file_name":         "w2.pdf",
		"expected_tax_year": float64(2024),
	}))
	if err != nil {
		t.Fatalf("handleClassify() error = %v", err)
	}
	if stub.got.ExpectedTaxYear != 2024 || stub.got.FileName != "w2.pdf" {
		t.Fatalf("unexpected classifier input: %+v", stub.got)
	}
	var got domain.ClassificationResult
	if err := json.Unmarshal([]byte(resultText(t, result)), &got); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if got.DocumentType != "W-2" {
		t.Fatalf("unexpected result: %+v", got)
	}
}

func TestHandleClassifyRequiresText(t *testing.T) {
	srv := NewServer(&classifierStub{}, nil)
	result, err := srv.handleClassify(context.Background(), callRequest(map[string]any{}))
	if err != nil {
		t.Fatalf("handleClassify() error = %v", err)
	}
	if !result.IsError {
		t.Fatalf("missing ocr_text should be a tool error")
	}
}

func TestHandleGradeRejectsBadJSON(t *testing.T) {
	srv := NewServer(&classifierStub{}, nil)
	result, err := srv.handleGrade(context.Background(), callRequest(map[string]any{"extraction": "{not json"}))
	if err != nil || !result.IsError {
		t.Fatalf("expected tool error, got %v %+v", err, result)
	}
}

func TestHandleGradeScoresExtraction(t *testing.T) {
	srv := NewServer(&classifierStub{}, nil)
	extraction := `{"likelyType":"OTHER","fields":{},"overallConfidence":0.1}`
	result, err := srv.handleGrade(context.Background(), callRequest(map[string]any{"extraction": extraction}))
	if err != nil || result.IsError {
		t.Fatalf("handleGrade() = %+v, %v", result, err)
	}
	var grade domain.GradeResult
	if err := json.Unmarshal([]byte(resultText(t, result)), &grade); err != nil {
		t.Fatalf("decode grade: %v", err)
	}
	if grade.Pass {
		t.Fatalf("a low-confidence empty extraction must not pass: %+v", grade)
	}
}

func TestHandleNormalizeIssue(t *testing.T) {
	srv := NewServer(&classifierStub{}, nil)
	result, err := srv.handleNormalize(context.Background(), callRequest(map[string]any{"issue": "[error:wrong_year:2024:2023] Wrong year"}))
	if err != nil || result.IsError {
		t.Fatalf("handleNormalize() = %+v, %v", result, err)
	}
	text := resultText(t, result)
	if !strings.Contains(text, "[ERROR:wrong_year:2024:2023]") {
		t.Fatalf("expected normalized raw issue, got %s", text)
	}
}

func TestHandleListForms(t *testing.T) {
	srv := NewServer(&classifierStub{}, nil)
	result, err := srv.handleListForms(context.Background(), callRequest(nil))
	if err != nil || result.IsError {
		t.Fatalf("handleListForms() = %+v, %v", result, err)
	}
	var out []formSummary
	if err := json.Unmarshal([]byte(resultText(t, result)), &out); err != nil {
		t.Fatalf("decode forms: %v", err)
	}
	if len(out) == 0 || out[0].Type == "" {
		t.Fatalf("expected form summaries, got %+v", out)
	}
}

func TestMCPServerRegistersTools(t *testing.T) {
	srv := NewServer(&classifierStub{}, nil).MCPServer()
	if srv == nil {
		t.Fatalf("expected server")
	}
}

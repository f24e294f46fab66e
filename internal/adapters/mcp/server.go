package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/formly/internal/core/domain"
	"github.com/kirillkom/formly/internal/core/forms"
	"github.com/kirillkom/formly/internal/core/grading"
	"github.com/kirillkom/formly/internal/core/issues"
	"github.com/kirillkom/formly/internal/core/ports"
)

const (
	ServerName    = "formly"
	ServerVersion = "1.0.0"
)

type Server struct {
	classifier ports.DocumentClassifier
	registry   *forms.Registry
	grader     *grading.Grader
}

func NewServer(classifier ports.DocumentClassifier, registry *forms.Registry) *Server {
	if registry == nil {
		registry = forms.Default()
	}
	return &Server{classifier: classifier, registry: registry, grader: grading.New(registry)}
}

// MCPServer registers the intake tools on a new MCP server.
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer(ServerName, ServerVersion, server.WithToolCapabilities(true))
	srv.AddTool(mcp.NewTool("classify_document",
		mcp.WithDescription("Classify OCR text of a tax document and return type, confidence, issues and review flag"),
		mcp.WithString("ocr_text", mcp.Required(), mcp.Description("Text extracted from the document")),
		mcp.WithString("file_name", mcp.Description("Original file name")),
		mcp.WithNumber("expected_tax_year", mcp.Description("Tax year of the engagement")),
	), s.handleClassify)
	srv.AddTool(mcp.NewTool("grade_extraction",
		mcp.WithDescription("Deterministically grade an extraction result against its form template"),
		mcp.WithString("extraction", mcp.Required(), mcp.Description("ExtractionResult JSON with likelyType, fields and overallConfidence")),
		mcp.WithString("ocr_text", mcp.Description("Source text")),
		mcp.WithNumber("expected_tax_year", mcp.Description("Tax year of the engagement")),
	), s.handleGrade)
	srv.AddTool(mcp.NewTool("normalize_issue",
		mcp.WithDescription("Normalize an issue string into [SEVERITY:TYPE:EXPECTED:DETECTED] form with a suggested action"),
		mcp.WithString("issue", mcp.Required(), mcp.Description("Raw issue text")),
	), s.handleNormalize)
	srv.AddTool(mcp.NewTool("list_form_types",
		mcp.WithDescription("List supported form types and their fields"),
	), s.handleListForms)
	return srv
}

// ServeStdio blocks serving requests on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.MCPServer())
}

func (s *Server) handleClassify(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := request.RequireString("ocr_text")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	result := s.classifier.Classify(ctx, domain.ClassificationInput{
		OCRText:         text,
		FileName:        request.GetString("file_name", ""),
		ExpectedTaxYear: int(request.GetFloat("expected_tax_year", 0)),
	})
	return jsonResult(result)
}

func (s *Server) handleGrade(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := request.RequireString("extraction")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var extraction domain.ExtractionResult
	if err := json.Unmarshal([]byte(raw), &extraction); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("extraction is not valid JSON: %v", err)), nil
	}
	grade := s.grader.Grade(grading.Input{
		Extraction:      extraction,
		OCRText:         request.GetString("ocr_text", ""),
		ExpectedTaxYear: int(request.GetFloat("expected_tax_year", 0)),
		AttemptNumber:   1,
	})
	return jsonResult(grade)
}

func (s *Server) handleNormalize(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := request.RequireString("issue")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	normalized := issues.Normalize(raw)
	views := issues.Explain([]string{normalized})
	return jsonResult(views[0])
}

type formSummary struct {
	Type        string   `json:"type"`
	DisplayName string   `json:"displayName"`
	Required    []string `json:"requiredFields"`
	Fields      []string `json:"fields"`
}

func (s *Server) handleListForms(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	out := make([]formSummary, 0, len(s.registry.Types()))
	for _, docType := range s.registry.Types() {
		tpl, ok := s.registry.Lookup(docType)
		if !ok {
			continue
		}
		summary := formSummary{Type: tpl.Type, DisplayName: tpl.DisplayName, Required: []string{}, Fields: []string{}}
		for _, f := range tpl.Fields {
			summary.Fields = append(summary.Fields, f.Name)
			if f.Required {
				summary.Required = append(summary.Required, f.Name)
			}
		}
		out = append(out, summary)
	}
	return jsonResult(out)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(strings.TrimSpace(string(raw))), nil
}

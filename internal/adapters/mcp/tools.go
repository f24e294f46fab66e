// Package mcp exposes the classification contract as MCP tools and builds
// the tool catalog the agentic classifier offers to its model.
package mcp

import (
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kirillkom/formly/internal/core/domain"
	"github.com/kirillkom/formly/internal/core/usecase"
)

func extractFieldsTool() mcp.Tool {
	return mcp.NewTool(usecase.ToolExtractFields,
		mcp.WithDescription("Run one field-extraction attempt over the document text. Each call consumes one attempt from the budget."),
		mcp.WithString("feedback", mcp.Description("Feedback from the previous grade to correct in this attempt")),
		mcp.WithString("document_type_hint", mcp.Description("Form type to focus the extraction on, for example W-2")),
	)
}

func gradeExtractionTool() mcp.Tool {
	return mcp.NewTool(usecase.ToolGradeExtraction,
		mcp.WithDescription("Grade the latest extraction against the form schema. Returns pass, score, issues, feedback and attemptsRemaining."),
	)
}

func submitClassificationTool() mcp.Tool {
	return mcp.NewTool(usecase.ToolSubmitClassification,
		mcp.WithDescription("Submit the final classification. Call once, after a passing grade or when no attempts remain."),
		mcp.WithString("document_type", mcp.Required(), mcp.Description("Form type such as W-2, 1099-NEC or OTHER")),
		mcp.WithNumber("confidence", mcp.Required(), mcp.Description("Confidence from 0 to 1"), mcp.Min(0), mcp.Max(1)),
		mcp.WithNumber("tax_year", mcp.Description("Tax year printed on the form")),
		mcp.WithArray("issues", mcp.WithStringItems(), mcp.Description("Issues in [SEVERITY:TYPE:EXPECTED:DETECTED] description format")),
		mcp.WithBoolean("needs_human_review", mcp.Description("Whether a reviewer must confirm the result")),
	)
}

// ClassifierTools is the catalog offered to the tool-use classifier.
func ClassifierTools() []domain.ToolSpec {
	tools := []mcp.Tool{extractFieldsTool(), gradeExtractionTool(), submitClassificationTool()}
	specs := make([]domain.ToolSpec, 0, len(tools))
	for _, tool := range tools {
		specs = append(specs, toSpec(tool))
	}
	return specs
}

func toSpec(tool mcp.Tool) domain.ToolSpec {
	params, err := json.Marshal(tool.InputSchema)
	if err != nil {
		params = json.RawMessage(`{"type":"object"}`)
	}
	return domain.ToolSpec{Name: tool.Name, Description: tool.Description, Parameters: params}
}

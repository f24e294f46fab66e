package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/kirillkom/formly/internal/core/domain"
	"github.com/kirillkom/formly/internal/core/forms"
	"github.com/kirillkom/formly/internal/core/grading"
	"github.com/kirillkom/formly/internal/core/issues"
	"github.com/kirillkom/formly/internal/core/ports"
)

const (
	ToolExtractFields        = "extract_fields"
	ToolGradeExtraction      = "grade_extraction"
	ToolSubmitClassification = "submit_classification"

	DefaultAgentMaxTurns = 10
)

// AgenticClassifier lets an external model orchestrate extraction and
// grading through tool calls. The grading budget is enforced by the tool
// layer and the conversation is cut off after MaxTurns model turns.
type AgenticClassifier struct {
	caller    ports.ModelCaller
	extractor ports.FieldExtractor
	grader    *grading.Grader
	registry  *forms.Registry
	tools     []domain.ToolSpec
	limits    domain.AgentLimits
	observer  ClassificationObserver
}

func NewAgenticClassifier(
	caller ports.ModelCaller,
	extractor ports.FieldExtractor,
	registry *forms.Registry,
	tools []domain.ToolSpec,
	limits domain.AgentLimits,
	observer ClassificationObserver,
) *AgenticClassifier {
	if registry == nil {
		registry = forms.Default()
	}
	if limits.MaxTurns <= 0 {
		limits.MaxTurns = DefaultAgentMaxTurns
	}
	if limits.MaxAttempts <= 0 {
		limits.MaxAttempts = DefaultMaxAttempts
	}
	if limits.Timeout <= 0 {
		limits.Timeout = 2 * time.Minute
	}
	if limits.TurnTimeout <= 0 {
		limits.TurnTimeout = 45 * time.Second
	}
	return &AgenticClassifier{
		caller:    caller,
		extractor: extractor,
		grader:    grading.New(registry),
		registry:  registry,
		tools:     tools,
		limits:    limits,
		observer:  observer,
	}
}

// agentRun is the per-classification state shared by the tool handlers.
type agentRun struct {
	in         domain.ClassificationInput
	attempts   int
	extraction *domain.ExtractionResult
	grade      *domain.GradeResult
	best       *attemptRecord
	final      *submittedAnswer
}

type submittedAnswer struct {
	DocumentType     string   `json:"document_type"`
	Confidence       float64  `json:"confidence"`
	TaxYear          int      `json:"tax_year"`
	Issues           []string `json:"issues"`
	NeedsHumanReview bool     `json:"needs_human_review"`
}

func (c *AgenticClassifier) Classify(ctx context.Context, in domain.ClassificationInput) domain.ClassificationResult {
	if result, ok := Precheck(in.OCRText); ok {
		c.observeResult(result)
		return result
	}

	loopCtx, cancel := context.WithTimeout(ctx, c.limits.Timeout)
	defer cancel()

	run := &agentRun{in: in}
	messages := []domain.ChatMessage{
		{Role: domain.RoleSystem, Content: agentSystemPrompt(c.registry.Types(), c.limits.MaxAttempts)},
		{Role: domain.RoleUser, Content: agentUserPrompt(in)},
	}

	termination := domain.TerminationReason("")
	turns := 0
	for turns < c.limits.MaxTurns {
		if loopCtx.Err() != nil {
			termination = domain.TerminationTurnLimit
			break
		}
		turns++
		turnCtx, turnCancel := context.WithTimeout(loopCtx, c.limits.TurnTimeout)
		reply, err := c.caller.Converse(turnCtx, messages, c.tools)
		turnCancel()
		if err != nil {
			slog.Warn("agent_turn_failed", "file_name", in.FileName, "turn", turns, "error", err)
			termination = domain.TerminationUnparsable
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				termination = domain.TerminationTurnLimit
			}
			break
		}
		reply.Role = domain.RoleAssistant
		messages = append(messages, reply)

		if len(reply.ToolCalls) == 0 {
			answer, ok := parseSubmittedAnswer(reply.Content)
			if !ok {
				termination = domain.TerminationUnparsable
				break
			}
			run.final = &answer
			break
		}

		for _, call := range reply.ToolCalls {
			output := c.executeTool(loopCtx, run, call)
			messages = append(messages, domain.ChatMessage{Role: domain.RoleTool, ToolName: call.Name, Content: output})
			if run.final != nil {
				break
			}
		}
		if run.final != nil {
			break
		}
	}

	var result domain.ClassificationResult
	switch {
	case run.final != nil:
		result = c.finalResult(run)
	case termination == "":
		result = c.abortedResult(run, domain.TerminationTurnLimit,
			fmt.Sprintf("Classification agent did not finish within %d turns", c.limits.MaxTurns))
	case termination == domain.TerminationTurnLimit:
		result = c.abortedResult(run, termination, "Classification agent timed out")
	default:
		result = c.abortedResult(run, termination, "Classification agent returned an unparsable answer")
	}
	slog.Info("agent_classification_finished",
		"file_name", in.FileName,
		"turns", turns,
		"attempts", run.attempts,
		"document_type", result.DocumentType,
		"termination", string(result.Termination),
	)
	c.observeResult(result)
	return result
}

func (c *AgenticClassifier) executeTool(ctx context.Context, run *agentRun, call domain.ToolCall) string {
	switch strings.ToLower(strings.TrimSpace(call.Name)) {
	case ToolExtractFields:
		if run.attempts >= c.limits.MaxAttempts {
			return toolError(fmt.Sprintf("extraction budget of %d attempts is used up; call %s with your best answer", c.limits.MaxAttempts, ToolSubmitClassification))
		}
		feedback := stringInput(call.Arguments, "feedback", "")
		if feedback == "" && run.grade != nil {
			feedback = run.grade.Feedback
		}
		if hint := stringInput(call.Arguments, "document_type_hint", ""); hint != "" {
			feedback = strings.TrimSpace(feedback + "\nThe document may be a " + hint + ".")
		}
		run.attempts++
		extraction := c.extractor.Extract(ctx, extractionRequest(c.registry, run.in, feedback))
		run.extraction = &extraction
		run.grade = nil
		return toolJSON(extraction)

	case ToolGradeExtraction:
		if run.extraction == nil {
			return toolError(fmt.Sprintf("no extraction to grade; call %s first", ToolExtractFields))
		}
		grade := c.grader.Grade(grading.Input{
			Extraction:      *run.extraction,
			OCRText:         run.in.OCRText,
			FileName:        run.in.FileName,
			ExpectedTaxYear: run.in.ExpectedTaxYear,
			AttemptNumber:   run.attempts,
		})
		run.grade = &grade
		if run.best == nil || grade.Score >= run.best.grade.Score {
			run.best = &attemptRecord{attempt: run.attempts, extraction: *run.extraction, grade: grade}
		}
		if c.observer != nil {
			c.observer.ObserveAttempt(run.attempts, grade)
		}
		return toolJSON(map[string]any{
			"pass":              grade.Pass,
			"score":             grade.Score,
			"documentType":      grade.DocumentType,
			"confidence":        grade.Confidence,
			"failureReasons":    grade.FailureReasons,
			"feedback":          grade.Feedback,
			"issues":            grade.Issues,
			"attemptsRemaining": c.limits.MaxAttempts - run.attempts,
		})

	case ToolSubmitClassification:
		answer := submittedAnswer{
			DocumentType:     stringInput(call.Arguments, "document_type", ""),
			Confidence:       floatInput(call.Arguments, "confidence", 0),
			TaxYear:          intInput(call.Arguments, "tax_year", 0),
			Issues:           stringSliceInput(call.Arguments, "issues"),
			NeedsHumanReview: boolInput(call.Arguments, "needs_human_review", false),
		}
		run.final = &answer
		return toolJSON(map[string]string{"status": "accepted"})

	default:
		return toolError(fmt.Sprintf("unknown tool %q", call.Name))
	}
}

// finalResult folds the model's answer with the grader's verdict. The
// grader stays authoritative for review flags.
func (c *AgenticClassifier) finalResult(run *agentRun) domain.ClassificationResult {
	answer := run.final
	docType := strings.TrimSpace(answer.DocumentType)
	if docType == "" {
		docType = domain.TypeOther
	}
	if tpl, ok := c.registry.Lookup(docType); ok {
		docType = tpl.Type
	}
	found := issues.NormalizeAll(answer.Issues)
	result := domain.ClassificationResult{
		DocumentType:    docType,
		Confidence:      math.Max(0, math.Min(1, answer.Confidence)),
		Issues:          found,
		ExtractedFields: map[string]domain.ExtractedField{},
		Attempts:        run.attempts,
		Termination:     domain.TerminationPassed,
	}
	if run.extraction != nil {
		result.ExtractedFields = run.extraction.Fields
	}
	if answer.TaxYear > 0 {
		year := answer.TaxYear
		result.TaxYear = &year
	} else if year, ok := domain.TaxYearOf(result.ExtractedFields); ok {
		result.TaxYear = &year
	}

	gradedPass := run.grade != nil && run.grade.Pass
	if !gradedPass {
		result.Termination = domain.TerminationExhausted
		if result.Confidence > ReviewConfidence {
			result.Confidence = ReviewConfidence
		}
	}
	result.NeedsHumanReview = answer.NeedsHumanReview || !gradedPass ||
		result.Confidence <= ReviewConfidence || issues.HasErrors(found)
	return result
}

func (c *AgenticClassifier) abortedResult(run *agentRun, termination domain.TerminationReason, description string) domain.ClassificationResult {
	if run.best == nil {
		return fallbackClassification(run.attempts, termination, description)
	}
	result := buildResult(run.best.extraction, run.best.grade, run.attempts, termination, true)
	result.Issues = append(result.Issues, issues.Warning(issues.TypeLowConfidence, "", fmt.Sprint(run.best.grade.Score), description))
	return result
}

func (c *AgenticClassifier) observeResult(result domain.ClassificationResult) {
	if c.observer != nil {
		c.observer.ObserveResult(result)
	}
}

func parseSubmittedAnswer(raw string) (submittedAnswer, bool) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return submittedAnswer{}, false
	}
	var answer submittedAnswer
	if err := json.Unmarshal([]byte(raw), &answer); err != nil {
		return submittedAnswer{}, false
	}
	if strings.TrimSpace(answer.DocumentType) == "" {
		return submittedAnswer{}, false
	}
	return answer, true
}

func agentSystemPrompt(types []string, maxAttempts int) string {
	return fmt.Sprintf(`You classify scanned US tax documents.
Supported document types: %s (use OTHER when none fits).
Work in this order:
1. Call %s to extract structured fields from the OCR text.
2. Call %s to check the extraction. If it does not pass, call %s again with the grader feedback.
   You have %d extraction attempts in total.
3. Call %s with the document type, a confidence in [0,1], the tax year when known, and the issues
   from the last grade in the form [SEVERITY:TYPE:EXPECTED:DETECTED] description.
Never invent field values that are not visible in the text.`,
		strings.Join(types, ", "), ToolExtractFields, ToolGradeExtraction, ToolExtractFields, maxAttempts, ToolSubmitClassification)
}

func agentUserPrompt(in domain.ClassificationInput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "File name: %s\n", in.FileName)
	if in.ExpectedTaxYear > 0 {
		fmt.Fprintf(&b, "Expected tax year: %d\n", in.ExpectedTaxYear)
	}
	b.WriteString("OCR text:\n")
	b.WriteString(domain.TruncateOCR(in.OCRText))
	return b.String()
}

func toolJSON(v any) string {
	payload, err := json.Marshal(v)
	if err != nil {
		return toolError(err.Error())
	}
	return string(payload)
}

func toolError(message string) string {
	payload, _ := json.Marshal(map[string]string{"error": message})
	return string(payload)
}

func stringInput(input map[string]any, key, fallback string) string {
	raw, ok := input[key]
	if !ok || raw == nil {
		return fallback
	}
	switch v := raw.(type) {
	case string:
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
		return fallback
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

func floatInput(input map[string]any, key string, fallback float64) float64 {
	switch v := input[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return f
		}
	}
	return fallback
}

func intInput(input map[string]any, key string, fallback int) int {
	f := floatInput(input, key, math.NaN())
	if math.IsNaN(f) {
		return fallback
	}
	return int(f)
}

func boolInput(input map[string]any, key string, fallback bool) bool {
	switch v := input[key].(type) {
	case bool:
		return v
	case string:
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			return b
		}
	}
	return fallback
}

func stringSliceInput(input map[string]any, key string) []string {
	switch v := input[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		if strings.TrimSpace(v) == "" {
			return nil
		}
		return []string{v}
	}
	return nil
}

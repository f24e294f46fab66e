package domain

import (
	"strconv"
	"strings"
)

// MaxOCRChars bounds the OCR prefix sent to the extractor.
const MaxOCRChars = 15000

// ExtractedField holds one extracted value. Value is a string, a float64 or
// nil; nil means the value was not visible on the document.
type ExtractedField struct {
	Value      any     `json:"value"`
	Confidence float64 `json:"confidence"`
	RawText    string  `json:"raw_text,omitempty"`
}

// Text renders the value for validators and prompts. Absent values render as "".
func (f ExtractedField) Text() string {
	switch v := f.Value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case bool:
		return strconv.FormatBool(v)
	default:
		return ""
	}
}

// IsEmpty reports a null or whitespace-only value.
func (f ExtractedField) IsEmpty() bool {
	return strings.TrimSpace(f.Text()) == ""
}

// IsBlank reports a null, empty or zero value. Currency-looking strings that
// parse to zero ("$0.00") count as blank.
func (f ExtractedField) IsBlank() bool {
	if f.IsEmpty() {
		return true
	}
	amount, ok := ParseAmount(f.Text())
	return ok && amount == 0
}

// ParseAmount strips currency punctuation and parses the remainder.
func ParseAmount(raw string) (float64, bool) {
	cleaned := strings.NewReplacer("$", "", ",", "", " ", "").Replace(strings.TrimSpace(raw))
	if cleaned == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

type ExtractionResult struct {
	LikelyType        string                    `json:"likelyType"`
	AlternativeTypes  []string                  `json:"alternativeTypes"`
	Fields            map[string]ExtractedField `json:"fields"`
	OverallConfidence float64                   `json:"overallConfidence"`
	Reasoning         string                    `json:"reasoning"`
}

type SchemaField struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Format      string `json:"format,omitempty"`
	Location    string `json:"location,omitempty"`
	Required    bool   `json:"required"`
}

type ExtractionRequest struct {
	SchemaFields    []SchemaField `json:"schemaFields"`
	DocumentTypes   []string      `json:"documentTypes"`
	OCRText         string        `json:"ocrText"`
	FileName        string        `json:"fileName"`
	PriorFeedback   string        `json:"priorFeedback,omitempty"`
	ExpectedTaxYear int           `json:"expectedTaxYear,omitempty"`
}

type FieldResult struct {
	Valid bool   `json:"valid"`
	Issue string `json:"issue,omitempty"`
}

type GradeResult struct {
	Pass           bool                   `json:"pass"`
	Score          int                    `json:"score"`
	DocumentType   string                 `json:"documentType"`
	Confidence     float64                `json:"confidence"`
	FieldResults   map[string]FieldResult `json:"fieldResults"`
	FailureReasons []string               `json:"failureReasons"`
	Feedback       string                 `json:"feedback"`
	Issues         []string               `json:"issues"`
	Blank          bool                   `json:"blank"`
}

// TerminationReason records which exit path produced a classification.
type TerminationReason string

const (
	TerminationPrecheck   TerminationReason = "precheck_failed"
	TerminationPassed     TerminationReason = "passed"
	TerminationExhausted  TerminationReason = "exhausted"
	TerminationTurnLimit  TerminationReason = "turn_limit"
	TerminationUnparsable TerminationReason = "unparsable_answer"
)

type ClassificationResult struct {
	DocumentType     string                    `json:"documentType"`
	Confidence       float64                   `json:"confidence"`
	TaxYear          *int                      `json:"taxYear,omitempty"`
	Issues           []string                  `json:"issues"`
	ExtractedFields  map[string]ExtractedField `json:"extractedFields,omitempty"`
	NeedsHumanReview bool                      `json:"needsHumanReview"`
	Attempts         int                       `json:"attempts"`
	Termination      TerminationReason         `json:"termination"`
}

// TruncateOCR keeps at most MaxOCRChars runes of text.
func TruncateOCR(text string) string {
	if len(text) <= MaxOCRChars {
		return text
	}
	runes := []rune(text)
	if len(runes) <= MaxOCRChars {
		return text
	}
	return string(runes[:MaxOCRChars])
}

// TaxYearOf reads the tax_year field as an integer.
func TaxYearOf(fields map[string]ExtractedField) (int, bool) {
	field, ok := fields["tax_year"]
	if !ok || field.IsEmpty() {
		return 0, false
	}
	raw := strings.TrimSpace(field.Text())
	if n, err := strconv.Atoi(raw); err == nil {
		return n, true
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil && f == float64(int(f)) {
		return int(f), true
	}
	return 0, false
}

// Package grading scores an extraction against its form template and writes
// the feedback used to steer the next extraction attempt.
package grading

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/kirillkom/formly/internal/core/domain"
	"github.com/kirillkom/formly/internal/core/forms"
	"github.com/kirillkom/formly/internal/core/issues"
)

const (
	PassScore = 70
	// FailedConfidenceCap bounds the reported confidence of a failed grade.
	FailedConfidenceCap = 0.5
)

type Input struct {
	Extraction      domain.ExtractionResult
	OCRText         string
	FileName        string
	ExpectedTaxYear int
	AttemptNumber   int
}

type Grader struct {
	registry *forms.Registry
}

func New(registry *forms.Registry) *Grader {
	if registry == nil {
		registry = forms.Default()
	}
	return &Grader{registry: registry}
}

// evaluation accumulates per-field outcomes while walking a template.
type evaluation struct {
	fieldResults    map[string]domain.FieldResult
	failureReasons  []string
	missingRequired []forms.Field
	requiredCount   int
	requiredFilled  int
	requiredValid   int
	evaluated       int
	valid           int
	presentValid    int
}

// Grade never fails: unknown types use the generic template and garbled
// fields score as missing or invalid.
func (g *Grader) Grade(in Input) domain.GradeResult {
	ext := in.Extraction
	tpl := g.registry.Resolve(ext.LikelyType)
	confidence := clamp01(ext.OverallConfidence)

	ev := g.evaluateFields(tpl, ext.Fields)
	g.checkMinimumFields(tpl, &ev)

	var found []string
	blank := isBlank(ext.Fields)
	if blank {
		ev.failureReasons = append(ev.failureReasons, "Form appears blank: no field values could be read")
		found = append(found, issues.Error(issues.TypeIncomplete, "", "", "Document appears to be blank or incomplete"))
	}

	found = append(found, checkTaxYear(ext.Fields, in.ExpectedTaxYear)...)
	found = append(found, crossFieldChecks(tpl.Type, ext.Fields)...)

	if confidence < tpl.ConfidenceThreshold {
		ev.failureReasons = append(ev.failureReasons, fmt.Sprintf(
			"Overall confidence %.2f is below the %.2f threshold for %s", confidence, tpl.ConfidenceThreshold, tpl.Type,
		))
	}

	score := computeScore(ev, tpl.MinRequiredFields, confidence, found)
	pass := len(ev.failureReasons) == 0 ||
		(score >= PassScore && confidence >= tpl.ConfidenceThreshold && !blank)
	if blank {
		pass = false
	}

	result := domain.GradeResult{
		Pass:           pass,
		Score:          score,
		DocumentType:   strings.TrimSpace(ext.LikelyType),
		Confidence:     confidence,
		FieldResults:   ev.fieldResults,
		FailureReasons: ev.failureReasons,
		Issues:         found,
		Blank:          blank,
	}
	if result.DocumentType == "" {
		result.DocumentType = domain.TypeOther
	}
	if result.Issues == nil {
		result.Issues = []string{}
	}
	if !pass {
		if blank {
			result.DocumentType = domain.TypeOther
		}
		result.Confidence = math.Min(result.Confidence, FailedConfidenceCap)
	}
	if len(ev.failureReasons) > 0 {
		result.Feedback = buildFeedback(ev, ext, in.AttemptNumber)
	}
	return result
}

func (g *Grader) evaluateFields(tpl forms.Template, fields map[string]domain.ExtractedField) evaluation {
	ev := evaluation{fieldResults: make(map[string]domain.FieldResult, len(tpl.Fields))}
	for _, f := range tpl.Fields {
		if f.Required {
			ev.requiredCount++
		}
		field, ok := fields[f.Name]
		if !ok || field.IsEmpty() {
			if f.Required {
				ev.failureReasons = append(ev.failureReasons, missingReason(f))
				ev.missingRequired = append(ev.missingRequired, f)
				ev.fieldResults[f.Name] = domain.FieldResult{Valid: false, Issue: "missing"}
				continue
			}
			ev.fieldResults[f.Name] = domain.FieldResult{Valid: true}
			continue
		}

		check := f.Check(field.Value)
		ev.evaluated++
		ev.fieldResults[f.Name] = domain.FieldResult{Valid: check.Valid, Issue: check.Issue}
		if f.Required {
			ev.requiredFilled++
		}
		if !check.Valid {
			if f.Required {
				ev.failureReasons = append(ev.failureReasons, fmt.Sprintf("Invalid %s: %s", f.Description, check.Issue))
			}
			continue
		}
		ev.valid++
		ev.presentValid++
		if f.Required {
			ev.requiredValid++
		}
	}
	return ev
}

// checkMinimumFields counts required fields that are present and valid. A
// template without required fields counts any present valid field instead.
func (g *Grader) checkMinimumFields(tpl forms.Template, ev *evaluation) {
	count := ev.requiredValid
	if ev.requiredCount == 0 {
		count = ev.presentValid
	}
	if count < tpl.MinRequiredFields {
		ev.failureReasons = append(ev.failureReasons, fmt.Sprintf(
			"Only %d of the minimum %d required fields were extracted with a valid format", count, tpl.MinRequiredFields,
		))
	}
}

func missingReason(f forms.Field) string {
	if f.Location == "" {
		return fmt.Sprintf("Missing %s", f.Description)
	}
	return fmt.Sprintf("Missing %s (%s)", f.Description, f.Location)
}

func isBlank(fields map[string]domain.ExtractedField) bool {
	for _, f := range fields {
		if !f.IsBlank() {
			return false
		}
	}
	return true
}

func checkTaxYear(fields map[string]domain.ExtractedField, expected int) []string {
	if expected <= 0 {
		return nil
	}
	detected, ok := domain.TaxYearOf(fields)
	if !ok {
		return []string{issues.Warning(issues.TypeMissingField, "tax_year", "", "Tax year could not be found on the document")}
	}
	if detected != expected {
		e, d := strconv.Itoa(expected), strconv.Itoa(detected)
		return []string{issues.Error(issues.TypeWrongYear, e, d, fmt.Sprintf("Document is for tax year %s, expected %s", d, e))}
	}
	return nil
}

// computeScore weighs fill, format validity, confidence and the no-error
// bonus. A template without required fields measures fill as valid fields
// against its minimum field count, so a blank generic form earns no fill.
func computeScore(ev evaluation, minFields int, confidence float64, found []string) int {
	fillRatio := 1.0
	switch {
	case ev.requiredCount > 0:
		fillRatio = float64(ev.requiredFilled) / float64(ev.requiredCount)
	case minFields > 0:
		fillRatio = math.Min(1, float64(ev.presentValid)/float64(minFields))
	}
	formatRatio := 0.0
	if ev.evaluated > 0 {
		formatRatio = float64(ev.valid) / float64(ev.evaluated)
	}
	score := 40*fillRatio + 30*formatRatio + 20*confidence
	if !issues.HasErrors(found) {
		score += 10
	}
	rounded := int(math.Round(score))
	switch {
	case rounded < 0:
		return 0
	case rounded > 100:
		return 100
	default:
		return rounded
	}
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

package grading

import (
	"regexp"
	"strings"
	"testing"

	"github.com/kirillkom/formly/internal/core/domain"
	"github.com/kirillkom/formly/internal/core/forms"
)

func field(v any) domain.ExtractedField {
	return domain.ExtractedField{Value: v, Confidence: 0.9}
}

func w2Extraction() domain.ExtractionResult {
	return domain.ExtractionResult{
		LikelyType:       "W-2",
		AlternativeTypes: []string{"1099-NEC"},
		Fields: map[string]domain.ExtractedField{
			"employee_ssn":         field("123-45-6789"),
			"employer_ein":         field("12-3456789"),
			"wages":                field(75000.0),
			"federal_tax_withheld": field(8500.0),
			"tax_year":             field("2024"),
		},
		OverallConfidence: 0.9,
	}
}

func newGrader() *Grader {
	return New(forms.Default())
}

func TestGradePassesCleanW2(t *testing.T) {
	got := newGrader().Grade(Input{Extraction: w2Extraction(), ExpectedTaxYear: 2024, AttemptNumber: 1})
	if !got.Pass {
		t.Fatalf("expected pass, got %+v", got)
	}
	if len(got.Issues) != 0 {
		t.Fatalf("expected no issues, got %v", got.Issues)
	}
	if got.DocumentType != "W-2" || got.Confidence != 0.9 {
		t.Fatalf("pass should keep type and confidence, got %s %.2f", got.DocumentType, got.Confidence)
	}
}

func TestGradeFlagsSocialSecurityWages(t *testing.T) {
	ext := w2Extraction()
	ext.Fields["ss_wages"] = field(90000.0)

	got := newGrader().Grade(Input{Extraction: ext, ExpectedTaxYear: 2024, AttemptNumber: 1})
	pattern := regexp.MustCompile(`Social security wages exceed`)
	matched := false
	for _, issue := range got.Issues {
		if pattern.MatchString(issue) {
			matched = true
		}
	}
	if !matched {
		t.Fatalf("expected social security warning, got %v", got.Issues)
	}
	if !got.Pass {
		t.Fatalf("warnings alone should not fail the grade")
	}
}

func TestGradeW2CrossChecks(t *testing.T) {
	ext := w2Extraction()
	ext.Fields["wages"] = field("-100")
	ext.Fields["medicare_wages"] = field("$5,000")
	ext.Fields["federal_tax_withheld"] = field("$8,500.00")

	got := newGrader().Grade(Input{Extraction: ext, AttemptNumber: 1})
	joined := strings.Join(got.Issues, "\n")
	for _, want := range []string{"[ERROR:suspicious_value:wages:-100]", "Medicare wages exceed", "Federal tax withheld exceeds wages"} {
		if !strings.Contains(joined, want) {
			t.Fatalf("expected %q in issues:\n%s", want, joined)
		}
	}
}

func TestGrade1099WithholdingCheck(t *testing.T) {
	ext := domain.ExtractionResult{
		LikelyType: "1099-INT",
		Fields: map[string]domain.ExtractedField{
			"payer_name":           field("First Bank"),
			"interest_income":      field("120.00"),
			"federal_tax_withheld": field("500.00"),
		},
		OverallConfidence: 0.95,
	}
	got := newGrader().Grade(Input{Extraction: ext, AttemptNumber: 1})
	if len(got.Issues) != 1 || !strings.Contains(got.Issues[0], "exceeds interest income") {
		t.Fatalf("expected withholding warning, got %v", got.Issues)
	}
}

func TestGradeBlankFormNeverPasses(t *testing.T) {
	extractions := []domain.ExtractionResult{
		{LikelyType: "W-2", OverallConfidence: 1, Fields: map[string]domain.ExtractedField{
			"employee_ssn": field(nil), "wages": field(0.0), "federal_tax_withheld": field("$0.00"), "employer_name": field(""),
		}},
		{LikelyType: "1099-NEC", OverallConfidence: 0.99, Fields: map[string]domain.ExtractedField{}},
		{LikelyType: "", OverallConfidence: 0.99},
	}
	for _, ext := range extractions {
		got := newGrader().Grade(Input{Extraction: ext, AttemptNumber: 1})
		if got.Pass {
			t.Fatalf("blank form passed: %+v", got)
		}
		if got.DocumentType != domain.TypeOther {
			t.Fatalf("blank form should be OTHER, got %s", got.DocumentType)
		}
		if got.Confidence > FailedConfidenceCap {
			t.Fatalf("failed grade confidence should be capped, got %.2f", got.Confidence)
		}
		if len(got.Issues) == 0 || !strings.HasPrefix(got.Issues[0], "[ERROR:incomplete::]") {
			t.Fatalf("expected incomplete issue, got %v", got.Issues)
		}
	}
}

func TestGradeTaxYear(t *testing.T) {
	ext := w2Extraction()
	ext.Fields["tax_year"] = field(2023.0)
	got := newGrader().Grade(Input{Extraction: ext, ExpectedTaxYear: 2024, AttemptNumber: 1})
	if len(got.Issues) != 1 || !strings.HasPrefix(got.Issues[0], "[ERROR:wrong_year:2024:2023]") {
		t.Fatalf("expected wrong year issue, got %v", got.Issues)
	}

	delete(ext.Fields, "tax_year")
	got = newGrader().Grade(Input{Extraction: ext, ExpectedTaxYear: 2024, AttemptNumber: 1})
	if len(got.Issues) != 1 || !strings.HasPrefix(got.Issues[0], "[WARNING:missing_field:tax_year:]") {
		t.Fatalf("expected missing tax year warning, got %v", got.Issues)
	}

	got = newGrader().Grade(Input{Extraction: ext, AttemptNumber: 1})
	if len(got.Issues) != 0 {
		t.Fatalf("no expected year means no tax-year issue, got %v", got.Issues)
	}
}

func TestGradeFailureCapsConfidenceAndKeepsType(t *testing.T) {
	ext := w2Extraction()
	delete(ext.Fields, "wages")
	delete(ext.Fields, "federal_tax_withheld")
	ext.Fields["employee_ssn"] = field("12-34")
	ext.OverallConfidence = 0.95

	got := newGrader().Grade(Input{Extraction: ext, AttemptNumber: 1})
	if got.Pass {
		t.Fatalf("expected failure, score %d reasons %v", got.Score, got.FailureReasons)
	}
	if got.DocumentType != "W-2" {
		t.Fatalf("expected best-guess type kept, got %s", got.DocumentType)
	}
	if got.Confidence != FailedConfidenceCap {
		t.Fatalf("expected capped confidence, got %.2f", got.Confidence)
	}
	if got.FieldResults["employee_ssn"].Valid {
		t.Fatalf("expected invalid ssn field result")
	}
	if !strings.Contains(got.Feedback, "Box 1") {
		t.Fatalf("expected location hint for wages, got %q", got.Feedback)
	}
}

func TestGradeLowConfidenceFails(t *testing.T) {
	ext := w2Extraction()
	ext.OverallConfidence = 0.4
	got := newGrader().Grade(Input{Extraction: ext, AttemptNumber: 1})
	if got.Pass {
		t.Fatalf("expected low confidence to fail")
	}
	found := false
	for _, r := range got.FailureReasons {
		if strings.Contains(r, "below the 0.70 threshold") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected threshold failure reason, got %v", got.FailureReasons)
	}
}

func TestGradeOptionalFormatIssueDoesNotBlock(t *testing.T) {
	ext := w2Extraction()
	ext.Fields["employer_name"] = field("Acme Corp")
	ext.Fields["ss_wages"] = field("12.345")
	got := newGrader().Grade(Input{Extraction: ext, AttemptNumber: 1})
	if got.FieldResults["ss_wages"].Valid {
		t.Fatalf("expected ss_wages format issue in field results")
	}
	for _, r := range got.FailureReasons {
		if strings.Contains(r, "social security wages") {
			t.Fatalf("optional field should not add failure reason: %v", got.FailureReasons)
		}
	}
	if !got.Pass {
		t.Fatalf("expected pass, got %+v", got)
	}
}

func TestGradeUnknownTypeUsesGenericTemplate(t *testing.T) {
	ext := domain.ExtractionResult{
		LikelyType: "K-1",
		Fields: map[string]domain.ExtractedField{
			"payer_name": field("Partnership LLC"),
			"amount":     field("1,200.00"),
		},
		OverallConfidence: 0.8,
	}
	got := newGrader().Grade(Input{Extraction: ext, AttemptNumber: 1})
	if !got.Pass {
		t.Fatalf("expected generic template pass, got %+v", got)
	}
	if got.DocumentType != "K-1" {
		t.Fatalf("expected type kept, got %s", got.DocumentType)
	}

	ext.Fields = map[string]domain.ExtractedField{"payer_name": field(nil), "misc": field("seen")}
	got = newGrader().Grade(Input{Extraction: ext, AttemptNumber: 1})
	if got.Pass {
		t.Fatalf("generic template needs at least one valid field, got %+v", got)
	}
}

func TestFeedbackEscalation(t *testing.T) {
	ext := w2Extraction()
	delete(ext.Fields, "wages")
	ext.OverallConfidence = 0.3
	ext.AlternativeTypes = []string{"1099-NEC", "1099-MISC"}

	first := newGrader().Grade(Input{Extraction: ext, AttemptNumber: 1})
	if !strings.Contains(first.Feedback, "alternative types: 1099-NEC, 1099-MISC") {
		t.Fatalf("feedback for attempt 2 should suggest alternatives, got %q", first.Feedback)
	}
	second := newGrader().Grade(Input{Extraction: ext, AttemptNumber: 2})
	if !strings.Contains(second.Feedback, "final attempt") || !strings.Contains(second.Feedback, "best guess") {
		t.Fatalf("feedback for attempt 3 should ask for a best guess, got %q", second.Feedback)
	}
	if !strings.Contains(second.Feedback, "- Missing wages, tips and other compensation (Box 1)") {
		t.Fatalf("expected bulleted failure reasons, got %q", second.Feedback)
	}
}

func TestScoreBounds(t *testing.T) {
	extractions := []domain.ExtractionResult{
		{},
		{LikelyType: "W-2", OverallConfidence: 5},
		{LikelyType: "W-2", OverallConfidence: -3},
		w2Extraction(),
		{LikelyType: "1098", OverallConfidence: 1, Fields: map[string]domain.ExtractedField{
			"lender_name": field("Bank"), "mortgage_interest": field("9,000"), "origination_date": field("garbage"),
		}},
	}
	for _, ext := range extractions {
		got := newGrader().Grade(Input{Extraction: ext, AttemptNumber: 3})
		if got.Score < 0 || got.Score > 100 {
			t.Fatalf("score out of bounds: %d", got.Score)
		}
		if got.Confidence < 0 || got.Confidence > 1 {
			t.Fatalf("confidence out of bounds: %.2f", got.Confidence)
		}
	}
}

func TestGradeGenericFillRatioUsesMinimumFields(t *testing.T) {
	blank := newGrader().Grade(Input{Extraction: domain.ExtractionResult{LikelyType: "K-1"}, AttemptNumber: 1})
	if blank.Score != 0 {
		t.Fatalf("blank generic extraction should earn no fill credit, got score %d", blank.Score)
	}

	one := newGrader().Grade(Input{Extraction: domain.ExtractionResult{
		LikelyType: "K-1",
		Fields:     map[string]domain.ExtractedField{"payer_name": field("Partnership LLC")},
	}, AttemptNumber: 1})
	if one.Score != 80 {
		t.Fatalf("one valid field meets the generic minimum: want 80, got %d", one.Score)
	}
}

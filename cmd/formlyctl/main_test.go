package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kirillkom/formly/internal/core/domain"
	"github.com/kirillkom/formly/internal/eval"
)

func runCLI(t *testing.T, args []string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func requireContains(t *testing.T, haystack, needle string) {
	t.Helper()
	if !strings.Contains(haystack, needle) {
		t.Fatalf("expected output to contain %q, got:\n%s", needle, haystack)
	}
}

const cleanW2 = `{
  "likelyType": "W-2",
  "fields": {
    "employee_ssn": {"value": "123-45-6789", "confidence": 0.9},
    "employer_ein": {"value": "12-3456789", "confidence": 0.9},
    "wages": {"value": 75000, "confidence": 0.9},
    "federal_tax_withheld": {"value": 8500, "confidence": 0.9},
    "tax_year": {"value": "2024", "confidence": 0.9}
  },
  "overallConfidence": 0.9
}`

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	target := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(target, []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return target
}

func TestFormsListsTemplates(t *testing.T) {
	out, err := runCLI(t, []string{"forms"})
	if err != nil {
		t.Fatalf("forms: %v", err)
	}
	requireContains(t, out, "W-2")
	requireContains(t, out, "Wage and Tax Statement")
	requireContains(t, out, "1099-NEC")
}

func TestGradeCleanExtraction(t *testing.T) {
	path := writeFile(t, "w2.json", cleanW2)
	out, err := runCLI(t, []string{"grade", "--file", path, "--tax-year", "2024"})
	if err != nil {
		t.Fatalf("grade: %v", err)
	}
	requireContains(t, out, "type: W-2")
	requireContains(t, out, "pass: true")
}

func TestGradeWrongYearShowsIssue(t *testing.T) {
	path := writeFile(t, "w2.json", cleanW2)
	out, err := runCLI(t, []string{"grade", "--file", path, "--tax-year", "2023", "--json"})
	if err != nil {
		t.Fatalf("grade: %v", err)
	}
	requireContains(t, out, "wrong_year")
}

func TestGradeRequiresFile(t *testing.T) {
	if _, err := runCLI(t, []string{"grade"}); err == nil {
		t.Fatalf("expected missing --file error")
	}
	path := writeFile(t, "bad.json", "{not json")
	if _, err := runCLI(t, []string{"grade", "--file", path}); err == nil || !strings.Contains(err.Error(), "decode extraction") {
		t.Fatalf("expected decode error, got %v", err)
	}
}

func TestNormalizeIssue(t *testing.T) {
	out, err := runCLI(t, []string{"normalize-issue", "[error:wrong_year:2024:2023] Wrong year"})
	if err != nil {
		t.Fatalf("normalize-issue: %v", err)
	}
	requireContains(t, out, "[ERROR:wrong_year:2024:2023]")
	requireContains(t, out, "ERROR")
}

func TestImportRejectsEmptyKey(t *testing.T) {
	_, err := runCLI(t, []string{"import", "eng-1", " "})
	if err == nil || !strings.Contains(err.Error(), "storage key") {
		t.Fatalf("expected empty key error, got %v", err)
	}
}

func TestRenderTableAlignsColumns(t *testing.T) {
	out := renderTable([]string{"Name", "Count"}, [][]string{{"a", "1"}, {"long-name", "22"}}, []columnAlignment{alignLeft, alignRight})
	requireContains(t, out, "long-name")
	requireContains(t, out, "    1 │")
	if renderTable(nil, nil, nil) != "" {
		t.Fatalf("empty headers should render nothing")
	}
}

func TestRenderReportSummarises(t *testing.T) {
	report := eval.Report{
		Results: []eval.CaseResult{{
			Case:          eval.Case{Name: "w2-acme", ExpectedType: "W-2"},
			Result:        domain.ClassificationResult{DocumentType: "W-2", Attempts: 1},
			TypeCorrect:   true,
			ReviewCorrect: true,
		}},
		TypeAccuracy:    1,
		ReviewRecall:    1,
		AverageAttempts: 1,
	}
	out := renderReport(report)
	requireContains(t, out, "w2-acme")
	requireContains(t, out, "type accuracy: 100%")
	requireContains(t, out, "average attempts: 1.00")
}

package issues

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseForms(t *testing.T) {
	cases := []struct {
		in   string
		want Parsed
	}{
		{
			in:   "[ERROR:wrong_year:2024:2023] Document is for 2023",
			want: Parsed{Severity: SeverityError, Type: "wrong_year", Expected: "2024", Detected: "2023", Description: "Document is for 2023"},
		},
		{
			in:   "[warning:missing_field:tax_year:] Tax year not found",
			want: Parsed{Severity: SeverityWarning, Type: "missing_field", Expected: "tax_year", Description: "Tax year not found"},
		},
		{
			in:   "[CRITICAL:incomplete] Blank page",
			want: Parsed{Severity: SeverityError, Type: "incomplete", Description: "Blank page"},
		},
		{
			in:   "[illegible] Scan is blurry",
			want: Parsed{Severity: SeverityError, Type: "illegible", Description: "Scan is blurry"},
		},
		{
			in:   "[duplicate] Same file uploaded twice",
			want: Parsed{Severity: SeverityWarning, Type: "duplicate", Description: "Same file uploaded twice"},
		},
		{
			in:   "just some text",
			want: Parsed{Severity: SeverityWarning, Type: TypeOther, Description: "just some text"},
		},
		{
			in:   "",
			want: Parsed{Severity: SeverityWarning, Type: TypeOther},
		},
		{
			in:   "[INFO:other:a:b] unknown severity",
			want: Parsed{Severity: SeverityWarning, Type: TypeOther, Description: "[INFO:other:a:b] unknown severity"},
		},
	}

	for _, tc := range cases {
		if diff := cmp.Diff(tc.want, Parse(tc.in)); diff != "" {
			t.Fatalf("Parse(%q) mismatch (-want +got):\n%s", tc.in, diff)
		}
	}
}

func TestNormalizeRepairsMalformedIssues(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"[ERROR:wrong_year:2024:2023] Already fine", "[ERROR:wrong_year:2024:2023] Already fine"},
		{"[ERROR:wrong_year:2024:2023]", "[ERROR:wrong_year:2024:2023] Document is for tax year 2023, expected 2024"},
		{"[WARNING:missing_field:tax_year:]", "[WARNING:missing_field:tax_year:] Missing required field: tax_year"},
		{"ERROR:wrong_type:W-2:1099-INT", "[ERROR:wrong_type:W-2:1099-INT] Document appears to be 1099-INT, expected W-2"},
		{"warning:suspicious_value:wages", "[WARNING:suspicious_value:wages:] Suspicious value for wages"},
		{"ERROR:incomplete", "[ERROR:incomplete::] Document appears incomplete or blank"},
		{"ERROR:inconsistent:a:b:Totals disagree: see box 1", "[ERROR:inconsistent:a:b] Totals disagree: see box 1"},
		{"Blurry photo of a receipt", "[WARNING:other::] Blurry photo of a receipt"},
		{"[illegible]", "[ERROR:illegible::] Illegible issue"},
	}

	for _, tc := range cases {
		if got := Normalize(tc.in); got != tc.want {
			t.Fatalf("Normalize(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestNormalizeIsIdempotent(t *testing.T) {
	inputs := []string{
		"",
		"   ",
		"[",
		"]",
		"[]",
		"[ ]",
		"[:]",
		"[ERROR]",
		"[ERROR:]",
		"[ERROR:wrong_year]",
		"[ERROR:wrong_year:2024]",
		"[ERROR:wrong_year:2024:2023]",
		"[error:wrong_year:2024:2023] described",
		"ERROR",
		"ERROR:",
		"error:wrong year:2024",
		"warning:low_confidence:::",
		"CRITICAL:parse_error:x:y:z",
		"Note: something odd",
		"[unclosed bracket",
		"[WARNING:other::] [nested] text",
		"totally free text with ] bracket",
		"💥 emoji issue",
		"[ERROR:wrong_year:20:24:] colons",
	}
	for _, in := range inputs {
		once := Normalize(in)
		twice := Normalize(once)
		if once != twice {
			t.Fatalf("Normalize not idempotent for %q: %q then %q", in, once, twice)
		}
		_ = Parse(once)
	}
}

func TestNormalizeOutputParses(t *testing.T) {
	p := Parse(Normalize("ERROR:wrong_year:2024:2023"))
	if p.Severity != SeverityError || p.Type != TypeWrongYear || p.Expected != "2024" || p.Detected != "2023" {
		t.Fatalf("unexpected parse of normalized issue: %+v", p)
	}
	if p.Description == "" {
		t.Fatalf("expected synthesized description")
	}
}

func TestNewSerializesCanonicalForm(t *testing.T) {
	got := Warning(TypeSuspiciousValue, "ss_wages", "90000", "Social security wages exceed wages by more than 10%")
	want := "[WARNING:suspicious_value:ss_wages:90000] Social security wages exceed wages by more than 10%"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
	if got := Error(TypeIncomplete, "", "", ""); !strings.HasPrefix(got, "[ERROR:incomplete::] ") {
		t.Fatalf("expected synthesized description, got %q", got)
	}
	if got := Error(TypeWrongType, "a:b", "c]d", "x"); got != "[ERROR:wrong_type:a b:c d] x" {
		t.Fatalf("delimiters should be stripped from slots, got %q", got)
	}
}

func TestSuggestedAction(t *testing.T) {
	action := SuggestedAction(Parse("[ERROR:wrong_year:2024:2023] x"))
	if !strings.Contains(action, "2024") || !strings.Contains(action, "2023") {
		t.Fatalf("expected years in action, got %q", action)
	}
	action = SuggestedAction(Parse("[ERROR:wrong_type:W-2:1099-INT] x"))
	if !strings.Contains(action, "W-2") || !strings.Contains(action, "1099-INT") {
		t.Fatalf("expected types in action, got %q", action)
	}
	for _, typ := range []string{TypeIncomplete, TypeIllegible, TypeDuplicate, TypeLowConfidence, "unheard_of"} {
		if SuggestedAction(Parsed{Type: typ}) == "" {
			t.Fatalf("expected action for %s", typ)
		}
	}
	if SuggestedAction(Parsed{Type: TypeWrongYear}) == SuggestedAction(Parse("[ERROR:wrong_year:2024:2023] x")) {
		t.Fatalf("expected detail-aware action to differ from generic one")
	}
}

func TestHasErrorsAndWarnings(t *testing.T) {
	list := []string{"[WARNING:missing_field:tax_year:] x", "plain text"}
	if HasErrors(list) {
		t.Fatalf("expected no errors")
	}
	if !HasWarnings(list) {
		t.Fatalf("expected warnings")
	}
	list = append(list, "[wrong_type] legacy")
	if !HasErrors(list) {
		t.Fatalf("legacy wrong_type should count as error")
	}
	if HasErrors(nil) || HasWarnings(nil) {
		t.Fatalf("empty list has neither")
	}
}

func TestExplainAttachesActions(t *testing.T) {
	views := Explain([]string{"[ERROR:wrong_year:2024:2023] Document is for tax year 2023, expected 2024", "smudged"})
	if len(views) != 2 {
		t.Fatalf("expected 2 views, got %d", len(views))
	}
	if views[0].Severity != SeverityError || !strings.Contains(views[0].SuggestedAction, "2024") {
		t.Fatalf("unexpected view: %+v", views[0])
	}
	if views[1].Type != TypeOther || views[1].Raw != "smudged" || views[1].SuggestedAction == "" {
		t.Fatalf("unexpected fallback view: %+v", views[1])
	}
}

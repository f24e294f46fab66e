package formats

import (
	"regexp"
	"testing"
)

func TestValidateAcceptsAndRejects(t *testing.T) {
	cases := []struct {
		name   string
		format Format
		value  any
		valid  bool
	}{
		{"ssn dashed", SSN, "123-45-6789", true},
		{"ssn digits", SSN, "123456789", true},
		{"ssn spaced", SSN, " 123 45 6789 ", true},
		{"ssn masked x", SSN, "XXX-XX-1234", true},
		{"ssn masked stars", SSN, "***-**-1234", true},
		{"ssn masked lower", SSN, "xxxxx1234", true},
		{"ssn too short", SSN, "12-345", false},
		{"ein dashed", EIN, "12-3456789", true},
		{"ein digits", EIN, "123456789", true},
		{"ein wrong dash", EIN, "123-456789", false},
		{"currency plain", Currency, "75000", true},
		{"currency dollars", Currency, "$75,000.00", true},
		{"currency negative", Currency, "-12.5", true},
		{"currency number", Currency, 8500.25, true},
		{"currency three decimals", Currency, "12.345", false},
		{"currency letters", Currency, "12O0", false},
		{"date iso", Date, "2024-01-31", true},
		{"date long", Date, "January 31, 2024", true},
		{"date junk", Date, "not a date", false},
		{"percentage plain", Percentage, "12.5%", true},
		{"percentage bare", Percentage, "7", true},
		{"percentage negative", Percentage, "-3%", false},
		{"unknown tag", Format("zip"), "anything", true},
		{"no tag", None, "anything", true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Validate(tc.format, tc.value)
			if got.Valid != tc.valid {
				t.Fatalf("Validate(%q, %v) valid = %v, want %v (issue %q)", tc.format, tc.value, got.Valid, tc.valid, got.Issue)
			}
			if !got.Valid && got.Issue == "" {
				t.Fatalf("expected an issue message for invalid value")
			}
		})
	}
}

func TestValidatorsTreatAbsenceAsValid(t *testing.T) {
	formats := []Format{SSN, EIN, Currency, Date, Percentage}
	for _, f := range formats {
		for _, v := range []any{nil, "", "   "} {
			if got := Validate(f, v); !got.Valid {
				t.Fatalf("Validate(%q, %#v) should be valid, got %+v", f, v, got)
			}
		}
	}
	if got := MatchPattern(regexp.MustCompile(`^\d+$`), nil); !got.Valid {
		t.Fatalf("pattern on nil should be valid")
	}
}

func TestRuleDispatch(t *testing.T) {
	year := Rule{Pattern: regexp.MustCompile(`^\d{4}$`)}
	if !year.Check("2024").Valid {
		t.Fatalf("expected year pattern to accept 2024")
	}
	if year.Check("24").Valid {
		t.Fatalf("expected year pattern to reject 24")
	}
	if !year.Check(2024.0).Valid {
		t.Fatalf("expected numeric year to be stringified")
	}

	tagged := Rule{Format: EIN, Pattern: regexp.MustCompile(`^never$`)}
	if !tagged.Check("12-3456789").Valid {
		t.Fatalf("format tag should take precedence over pattern")
	}

	if !(Rule{}).Check("whatever").Valid {
		t.Fatalf("empty rule should always pass")
	}
}

func TestValidatorsAreTotal(t *testing.T) {
	inputs := []any{"", "[", "$$$", "-", "%", "\x00", 0, -1.5, int64(9), struct{}{}, []string{"a"}}
	for _, f := range []Format{SSN, EIN, Currency, Date, Percentage} {
		for _, in := range inputs {
			_ = Validate(f, in)
		}
	}
}

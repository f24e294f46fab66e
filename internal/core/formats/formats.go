// Package formats validates scalar extracted values against semantic types.
//
// Every validator is total: it returns a Result for any input and treats
// null or empty input as valid, since absence is checked elsewhere.
package formats

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/araddon/dateparse"
)

type Format string

const (
	None       Format = ""
	SSN        Format = "ssn"
	EIN        Format = "ein"
	Currency   Format = "currency"
	Date       Format = "date"
	Percentage Format = "percentage"
)

type Result struct {
	Valid bool   `json:"valid"`
	Issue string `json:"issue,omitempty"`
}

var (
	ssnPattern        = regexp.MustCompile(`^(\d{3}-\d{2}-\d{4}|\d{9})$`)
	maskedSSNPattern  = regexp.MustCompile(`(?i)^([*x]{3}-[*x]{2}-\d{4}|[*x]{3,5}-?\d{4})$`)
	einPattern        = regexp.MustCompile(`^\d{2}-?\d{7}$`)
	currencyPattern   = regexp.MustCompile(`^-?(\d+(\.\d{0,2})?|\.\d{1,2})$`)
	percentagePattern = regexp.MustCompile(`^(\d+(\.\d*)?|\.\d+)%?$`)
	whitespace        = regexp.MustCompile(`\s+`)
)

var ok = Result{Valid: true}

func invalid(format string, args ...any) Result {
	return Result{Valid: false, Issue: fmt.Sprintf(format, args...)}
}

// Rule binds a field to either a format tag or a literal pattern.
type Rule struct {
	Format  Format
	Pattern *regexp.Regexp
}

// Check dispatches to the tagged validator, then to the pattern. A rule with
// neither always passes.
func (r Rule) Check(value any) Result {
	if r.Format != None {
		return Validate(r.Format, value)
	}
	if r.Pattern != nil {
		return MatchPattern(r.Pattern, value)
	}
	return ok
}

// Validate runs the validator for a format tag. Unknown tags pass.
func Validate(format Format, value any) Result {
	switch Format(strings.ToLower(string(format))) {
	case SSN:
		return ValidateSSN(value)
	case EIN:
		return ValidateEIN(value)
	case Currency:
		return ValidateCurrency(value)
	case Date:
		return ValidateDate(value)
	case Percentage:
		return ValidatePercentage(value)
	default:
		return ok
	}
}

func ValidateSSN(value any) Result {
	s := whitespace.ReplaceAllString(stringify(value), "")
	if s == "" {
		return ok
	}
	if ssnPattern.MatchString(s) || maskedSSNPattern.MatchString(s) {
		return ok
	}
	return invalid("SSN %q must look like XXX-XX-XXXX", s)
}

func ValidateEIN(value any) Result {
	s := whitespace.ReplaceAllString(stringify(value), "")
	if s == "" {
		return ok
	}
	if einPattern.MatchString(s) {
		return ok
	}
	return invalid("EIN %q must look like XX-XXXXXXX", s)
}

func ValidateCurrency(value any) Result {
	raw := stringify(value)
	s := strings.NewReplacer("$", "", ",", "").Replace(whitespace.ReplaceAllString(raw, ""))
	if strings.TrimSpace(raw) == "" {
		return ok
	}
	if currencyPattern.MatchString(s) {
		return ok
	}
	return invalid("amount %q is not a valid currency value", strings.TrimSpace(raw))
}

func ValidateDate(value any) Result {
	s := strings.TrimSpace(stringify(value))
	if s == "" {
		return ok
	}
	if _, err := dateparse.ParseAny(s); err != nil {
		return invalid("date %q could not be parsed", s)
	}
	return ok
}

func ValidatePercentage(value any) Result {
	s := whitespace.ReplaceAllString(stringify(value), "")
	if s == "" {
		return ok
	}
	if strings.HasPrefix(s, "-") {
		return invalid("percentage %q cannot be negative", s)
	}
	if percentagePattern.MatchString(s) {
		return ok
	}
	return invalid("percentage %q is not a valid number", s)
}

// MatchPattern tests the stringified value against a caller-supplied pattern.
func MatchPattern(pattern *regexp.Regexp, value any) Result {
	s := strings.TrimSpace(stringify(value))
	if s == "" || pattern == nil {
		return ok
	}
	if pattern.MatchString(s) {
		return ok
	}
	return invalid("value %q does not match the expected pattern", s)
}

func stringify(value any) string {
	switch v := value.(type) {
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
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

package grading

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/kirillkom/formly/internal/core/domain"
	"github.com/kirillkom/formly/internal/core/issues"
)

// W-2 social security and medicare wages may exceed box 1 wages by this factor.
const wageTolerance = 1.1

type incomeField struct {
	name  string
	label string
}

var primaryIncome = map[string]incomeField{
	"1099-NEC":  {name: "nonemployee_compensation", label: "nonemployee compensation"},
	"1099-INT":  {name: "interest_income", label: "interest income"},
	"1099-DIV":  {name: "total_dividends", label: "total dividends"},
	"1099-MISC": {name: "other_income", label: "other income"},
	"1099-R":    {name: "gross_distribution", label: "gross distribution"},
}

func crossFieldChecks(docType string, fields map[string]domain.ExtractedField) []string {
	key := strings.ToUpper(strings.TrimSpace(docType))
	if key == "W-2" {
		return w2Checks(fields)
	}
	income, ok := primaryIncome[key]
	if !ok {
		return nil
	}
	withheld, hasWithheld := amount(fields, "federal_tax_withheld")
	total, _ := amount(fields, income.name)
	if hasWithheld && withheld > total {
		return []string{issues.Warning(issues.TypeSuspiciousValue, "federal_tax_withheld", formatAmount(withheld),
			fmt.Sprintf("Federal tax withheld exceeds %s", income.label))}
	}
	return nil
}

func w2Checks(fields map[string]domain.ExtractedField) []string {
	wages, hasWages := amount(fields, "wages")
	if !hasWages {
		return nil
	}

	var out []string
	if wages < 0 {
		out = append(out, issues.Error(issues.TypeSuspiciousValue, "wages", formatAmount(wages), "Wages cannot be negative"))
	}
	if ss, ok := amount(fields, "ss_wages"); ok && ss > wageTolerance*wages {
		out = append(out, issues.Warning(issues.TypeSuspiciousValue, "ss_wages", formatAmount(ss),
			"Social security wages exceed wages by more than 10%"))
	}
	if medicare, ok := amount(fields, "medicare_wages"); ok && medicare > wageTolerance*wages {
		out = append(out, issues.Warning(issues.TypeSuspiciousValue, "medicare_wages", formatAmount(medicare),
			"Medicare wages exceed wages by more than 10%"))
	}
	if withheld, ok := amount(fields, "federal_tax_withheld"); ok && withheld > wages {
		out = append(out, issues.Warning(issues.TypeSuspiciousValue, "federal_tax_withheld", formatAmount(withheld),
			"Federal tax withheld exceeds wages"))
	}
	return out
}

// amount reports the parsed value and whether the field was present at all.
// Present but unparsable values count as zero.
func amount(fields map[string]domain.ExtractedField, name string) (float64, bool) {
	field, ok := fields[name]
	if !ok || field.IsEmpty() {
		return 0, false
	}
	if v, ok := field.Value.(float64); ok {
		return v, true
	}
	v, _ := domain.ParseAmount(field.Text())
	return v, true
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

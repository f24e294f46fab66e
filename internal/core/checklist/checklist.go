// Package checklist builds the initial engagement checklist from an intake
// questionnaire.
package checklist

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/kirillkom/formly/internal/core/domain"
)

var slugPattern = regexp.MustCompile(`[^a-z0-9]+`)

// Generate is deterministic: the same intake always yields the same items
// in the same order with the same IDs.
func Generate(intake domain.Intake, taxYear int) []domain.ChecklistItem {
	items := make([]domain.ChecklistItem, 0, len(intake.Employers)+8)
	seen := map[string]int{}

	for _, employer := range intake.Employers {
		name := strings.TrimSpace(employer)
		if name == "" {
			continue
		}
		id := uniqueID(seen, "w2-"+slug(name))
		items = append(items, newItem(id, fmt.Sprintf("W-2 from %s", name),
			fmt.Sprintf("Reports %d wages and withholding from %s", taxYear, name),
			domain.PriorityHigh, "W-2"))
	}
	if intake.HasContractIncome {
		items = append(items, newItem("1099-nec", "1099-NEC for contract income",
			"Reports nonemployee compensation paid to you", domain.PriorityHigh, "1099-NEC"))
	}
	if intake.HasInterestIncome {
		items = append(items, newItem("1099-int", "1099-INT for interest income",
			"Reports bank and brokerage interest", domain.PriorityMedium, "1099-INT"))
	}
	if intake.HasDividendIncome {
		items = append(items, newItem("1099-div", "1099-DIV for dividends",
			"Reports ordinary and qualified dividends", domain.PriorityMedium, "1099-DIV"))
	}
	if intake.HasMiscIncome {
		items = append(items, newItem("1099-misc", "1099-MISC for other income",
			"Reports rents, royalties and other income", domain.PriorityMedium, "1099-MISC"))
	}
	if intake.HasRetirementPayout {
		items = append(items, newItem("1099-r", "1099-R for retirement distributions",
			"Reports pension, annuity and IRA distributions", domain.PriorityMedium, "1099-R"))
	}
	if intake.HasMortgage {
		items = append(items, newItem("1098", "1098 mortgage interest statement",
			"Supports the mortgage interest deduction", domain.PriorityMedium, "1098"))
	}
	if intake.HasTuition {
		items = append(items, newItem("1098-t", "1098-T tuition statement",
			"Supports education credits", domain.PriorityLow, "1098-T"))
	}

	why := "Carries forward basis, carryovers and prior-year figures"
	if intake.ReturningClient {
		why = "Confirms figures carried forward from the return we prepared"
	}
	items = append(items, newItem("prior-year-return", fmt.Sprintf("%d tax return", taxYear-1),
		why, domain.PriorityLow, ""))
	return items
}

func newItem(id, title, why string, priority domain.Priority, expected string) domain.ChecklistItem {
	return domain.ChecklistItem{
		ID:                   id,
		Title:                title,
		Why:                  why,
		Priority:             priority,
		Status:               domain.ItemPending,
		DocumentIDs:          []string{},
		ExpectedDocumentType: expected,
	}
}

func slug(name string) string {
	s := strings.Trim(slugPattern.ReplaceAllString(strings.ToLower(name), "-"), "-")
	if s == "" {
		return "employer"
	}
	return s
}

func uniqueID(seen map[string]int, id string) string {
	seen[id]++
	if n := seen[id]; n > 1 {
		return fmt.Sprintf("%s-%d", id, n)
	}
	return id
}

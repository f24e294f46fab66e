package checklist

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/kirillkom/formly/internal/core/domain"
)

func ids(items []domain.ChecklistItem) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, item.ID)
	}
	return out
}

func TestGenerateFromIntake(t *testing.T) {
	intake := domain.Intake{
		Employers:         []string{"Acme Corp", "  ", "Beta LLC", "acme corp"},
		HasContractIncome: true,
		HasInterestIncome: true,
		HasMortgage:       true,
		HasTuition:        true,
	}
	items := Generate(intake, 2024)

	want := []string{"w2-acme-corp", "w2-beta-llc", "w2-acme-corp-2", "1099-nec", "1099-int", "1098", "1098-t", "prior-year-return"}
	if diff := cmp.Diff(want, ids(items)); diff != "" {
		t.Fatalf("item ids mismatch (-want +got):\n%s", diff)
	}
	if items[0].Priority != domain.PriorityHigh || items[0].ExpectedDocumentType != "W-2" {
		t.Fatalf("unexpected W-2 item: %+v", items[0])
	}
	last := items[len(items)-1]
	if last.ExpectedDocumentType != "" || last.Title != "2023 tax return" {
		t.Fatalf("prior-year item should not be matchable by type: %+v", last)
	}
	for _, item := range items {
		if item.Status != domain.ItemPending || item.DocumentIDs == nil {
			t.Fatalf("items start pending with empty links: %+v", item)
		}
	}
}

func TestGenerateIsDeterministic(t *testing.T) {
	intake := domain.Intake{Employers: []string{"Zeta"}, HasDividendIncome: true, HasRetirementPayout: true, HasMiscIncome: true}
	if diff := cmp.Diff(Generate(intake, 2024), Generate(intake, 2024)); diff != "" {
		t.Fatalf("generate should be deterministic:\n%s", diff)
	}
}

func TestGenerateEmptyIntakeStillAsksForPriorReturn(t *testing.T) {
	items := Generate(domain.Intake{}, 2024)
	if len(items) != 1 || items[0].ID != "prior-year-return" {
		t.Fatalf("unexpected items: %+v", items)
	}
}

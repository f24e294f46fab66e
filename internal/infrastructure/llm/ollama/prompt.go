package ollama

import (
	"context"
	"fmt"
	"strings"

	"github.com/kirillkom/formly/internal/core/domain"
)

type BriefGenerator struct {
	client *Client
}

func NewBriefGenerator(client *Client) *BriefGenerator {
	return &BriefGenerator{client: client}
}

func (g *BriefGenerator) GenerateBrief(ctx context.Context, eng *domain.Engagement, docs []*domain.Document) (string, error) {
	brief, err := g.client.generateText(ctx, BuildBriefPrompt(eng, docs))
	if err != nil {
		return "", fmt.Errorf("generate brief: %w", err)
	}
	return brief, nil
}

// BuildBriefPrompt summarizes the engagement for the preparer hand-off.
func BuildBriefPrompt(eng *domain.Engagement, docs []*domain.Document) string {
	var b strings.Builder
	fmt.Fprintf(&b, `Write a short preparation brief for an accountant.
Client: %s
Tax year: %d
`, eng.ClientName, eng.TaxYear)
	if eng.Reconciliation != nil {
		fmt.Fprintf(&b, "Checklist completion: %d%%\n", eng.Reconciliation.CompletionPercentage)
	}

	b.WriteString("\nChecklist:\n")
	for _, item := range eng.Checklist {
		fmt.Fprintf(&b, "- [%s] %s (%s priority)\n", item.Status, item.Title, item.Priority)
	}

	b.WriteString("\nDocuments:\n")
	for _, d := range docs {
		fmt.Fprintf(&b, "- %s: %s, confidence %.2f", d.FileName, d.DocumentType, d.Confidence)
		if len(d.Issues) > 0 {
			fmt.Fprintf(&b, ", issues: %s", strings.Join(d.Issues, "; "))
		}
		b.WriteString("\n")
	}
	b.WriteString("\nList what is ready, what needs attention, and any open questions for the client. Plain text, no markdown headers.")
	return b.String()
}

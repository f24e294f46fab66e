package extraction

import (
	"fmt"
	"strings"

	"github.com/kirillkom/formly/internal/core/domain"
)

const systemInstructions = `You extract structured data from US tax documents.
Return one strict JSON object with keys:
likelyType (string, one of the listed document types or OTHER),
alternativeTypes (array of strings),
fields (object mapping field name to {"value": string|number|null, "confidence": number 0-1, "rawText": string}),
overallConfidence (number from 0 to 1),
reasoning (string).
Never guess. When a value is not visible in the text, set "value" to null.
Copy identifiers exactly as printed, including masking characters.
No markdown, no extra keys.`

// BuildPrompt renders the extraction request as a single prompt.
func BuildPrompt(req domain.ExtractionRequest) string {
	var b strings.Builder
	b.WriteString(systemInstructions)
	b.WriteString("\n\nDocument types:\n")
	b.WriteString(strings.Join(req.DocumentTypes, ", "))

	b.WriteString("\n\nFields to extract:\n")
	for _, f := range req.SchemaFields {
		fmt.Fprintf(&b, "- %s: %s", f.Name, f.Description)
		if f.Format != "" {
			fmt.Fprintf(&b, " (format: %s)", f.Format)
		}
		if f.Location != "" {
			fmt.Fprintf(&b, " [location: %s]", f.Location)
		}
		if f.Required {
			b.WriteString(" required")
		}
		b.WriteString("\n")
	}

	if req.ExpectedTaxYear > 0 {
		fmt.Fprintf(&b, "\nThe engagement is for tax year %d.\n", req.ExpectedTaxYear)
	}
	if strings.TrimSpace(req.PriorFeedback) != "" {
		b.WriteString("\nA previous attempt was rejected. Fix these problems:\n")
		b.WriteString(req.PriorFeedback)
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "\nFile name: %s\n\nDocument text:\n", req.FileName)
	b.WriteString(domain.TruncateOCR(req.OCRText))
	return b.String()
}

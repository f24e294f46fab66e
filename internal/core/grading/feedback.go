package grading

import (
	"fmt"
	"strings"

	"github.com/kirillkom/formly/internal/core/domain"
)

// buildFeedback renders the prompt context for the attempt after the one
// being graded, so the escalation keys on attempt+1.
func buildFeedback(ev evaluation, ext domain.ExtractionResult, attempt int) string {
	if attempt < 1 {
		attempt = 1
	}
	next := attempt + 1

	var b strings.Builder
	b.WriteString("The previous extraction attempt did not pass validation:\n")
	for _, reason := range ev.failureReasons {
		b.WriteString("- ")
		b.WriteString(reason)
		b.WriteString("\n")
	}

	if len(ev.missingRequired) > 0 {
		b.WriteString("\nLook for:\n")
		for _, f := range ev.missingRequired {
			if f.Location != "" {
				fmt.Fprintf(&b, "- %s: typically found in %s\n", f.Description, f.Location)
			} else {
				fmt.Fprintf(&b, "- %s\n", f.Description)
			}
		}
	}

	b.WriteString("\nStrategy for the next attempt:\n")
	switch {
	case next == 2:
		alternatives := nonEmpty(ext.AlternativeTypes)
		if len(alternatives) > 0 {
			fmt.Fprintf(&b, "- The document may not be a %s. Try one of the alternative types: %s.\n",
				orUnknown(ext.LikelyType), strings.Join(alternatives, ", "))
		} else {
			fmt.Fprintf(&b, "- Reconsider whether the document is really a %s and name any alternative types that fit.\n",
				orUnknown(ext.LikelyType))
		}
		b.WriteString("- Re-read the text for each missing field before answering.\n")
	default:
		b.WriteString("- This is the final attempt. Focus only on the critical required fields.\n")
		b.WriteString("- Give a best guess with a low confidence score where the text is unclear; use null for values that are not visible.\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func nonEmpty(list []string) []string {
	out := make([]string, 0, len(list))
	for _, s := range list {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func orUnknown(docType string) string {
	if strings.TrimSpace(docType) == "" {
		return "recognized form"
	}
	return docType
}

package eval

import (
	"context"

	"github.com/kirillkom/formly/internal/core/domain"
	"github.com/kirillkom/formly/internal/core/ports"
)

type CaseResult struct {
	Case        Case
	Result      domain.ClassificationResult
	TypeCorrect bool
	// ReviewCorrect is true when the review flag matches ExpectReview; a
	// flagged clean case is tolerated but counted as a false positive.
	ReviewCorrect bool
}

type Report struct {
	Results         []CaseResult
	TypeAccuracy    float64
	ReviewRecall    float64
	FalsePositives  int
	AverageAttempts float64
}

// Run classifies each case in order and scores the results.
func Run(ctx context.Context, classifier ports.DocumentClassifier, cases []Case) Report {
	report := Report{Results: make([]CaseResult, 0, len(cases))}
	var typeHits, reviewExpected, reviewHits, attempts int
	for _, c := range cases {
		if ctx.Err() != nil {
			break
		}
		result := classifier.Classify(ctx, domain.ClassificationInput{
			OCRText:         c.OCRText,
			FileName:        c.FileName,
			ExpectedTaxYear: c.TaxYear,
		})
		cr := CaseResult{
			Case:          c,
			Result:        result,
			TypeCorrect:   result.DocumentType == c.ExpectedType,
			ReviewCorrect: result.NeedsHumanReview == c.ExpectReview(),
		}
		// A blank form only needs to reach a reviewer; its type is moot.
		if c.Blank && result.NeedsHumanReview {
			cr.TypeCorrect = true
		}
		if cr.TypeCorrect {
			typeHits++
		}
		if c.ExpectReview() {
			reviewExpected++
			if result.NeedsHumanReview {
				reviewHits++
			}
		} else if result.NeedsHumanReview {
			report.FalsePositives++
		}
		attempts += result.Attempts
		report.Results = append(report.Results, cr)
	}

	if n := len(report.Results); n > 0 {
		report.TypeAccuracy = float64(typeHits) / float64(n)
		report.AverageAttempts = float64(attempts) / float64(n)
	}
	if reviewExpected > 0 {
		report.ReviewRecall = float64(reviewHits) / float64(reviewExpected)
	}
	return report
}

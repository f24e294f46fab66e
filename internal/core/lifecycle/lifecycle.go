// Package lifecycle holds the per-document processing state machine rules.
package lifecycle

import (
	"fmt"
	"strings"
	"time"

	"github.com/kirillkom/formly/internal/core/domain"
	"github.com/kirillkom/formly/internal/core/issues"
)

const (
	// MaxRetries bounds full pipeline attempts per document.
	MaxRetries = 3
	// StuckThreshold is how long a document may stay in a non-terminal state.
	StuckThreshold = 5 * time.Minute
)

var inFlightStatuses = map[domain.ProcessingStatus]struct{}{
	domain.StatusDownloading: {},
	domain.StatusExtracting:  {},
	domain.StatusClassifying: {},
}

var transitions = map[domain.ProcessingStatus][]domain.ProcessingStatus{
	domain.StatusPending:     {domain.StatusDownloading, domain.StatusError},
	domain.StatusDownloading: {domain.StatusExtracting, domain.StatusError, domain.StatusPending},
	domain.StatusExtracting:  {domain.StatusClassifying, domain.StatusError, domain.StatusPending},
	domain.StatusClassifying: {domain.StatusClassified, domain.StatusError, domain.StatusPending},
	domain.StatusClassified:  {domain.StatusPending},
	domain.StatusError:       {domain.StatusPending},
}

func ParseStatus(value string) (domain.ProcessingStatus, bool) {
	status := domain.ProcessingStatus(strings.ToLower(strings.TrimSpace(value)))
	_, ok := transitions[status]
	return status, ok
}

// IsInFlight reports a status owned by a running pipeline.
func IsInFlight(status domain.ProcessingStatus) bool {
	_, ok := inFlightStatuses[status]
	return ok
}

func IsTerminal(status domain.ProcessingStatus) bool {
	return status == domain.StatusClassified || status == domain.StatusError
}

func CanTransition(from, to domain.ProcessingStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// RetryExhausted reports whether automatic retries are no longer allowed.
func RetryExhausted(doc *domain.Document) bool {
	return doc.RetryCount >= MaxRetries
}

// IsStuck reports a non-terminal document whose current attempt started
// before now-threshold. Pending documents that never started are not stuck.
func IsStuck(doc *domain.Document, now time.Time, threshold time.Duration) bool {
	if doc == nil || IsTerminal(doc.ProcessingStatus) || doc.ProcessingStartedAt == nil {
		return false
	}
	if threshold <= 0 {
		threshold = StuckThreshold
	}
	return now.Sub(*doc.ProcessingStartedAt) > threshold
}

// Begin starts a full pipeline attempt: it bumps the retry count and moves
// the document into downloading.
func Begin(doc *domain.Document, now time.Time) error {
	if RetryExhausted(doc) {
		return domain.WrapError(domain.ErrRetryExhausted, "begin processing",
			fmt.Errorf("document %s already attempted %d times", doc.ID, doc.RetryCount))
	}
	if IsInFlight(doc.ProcessingStatus) {
		return domain.WrapError(domain.ErrConflict, "begin processing",
			fmt.Errorf("document %s is already %s", doc.ID, doc.ProcessingStatus))
	}
	if doc.ProcessingStatus == "" {
		doc.ProcessingStatus = domain.StatusPending
	}
	if doc.ProcessingStatus != domain.StatusPending && doc.ProcessingStatus != domain.StatusError {
		return domain.WrapError(domain.ErrConflict, "begin processing",
			fmt.Errorf("document %s is %s", doc.ID, doc.ProcessingStatus))
	}
	doc.RetryCount++
	doc.ProcessingStatus = domain.StatusDownloading
	started := now.UTC()
	doc.ProcessingStartedAt = &started
	doc.ProcessingError = ""
	doc.UpdatedAt = started
	return nil
}

// Advance moves an in-flight document to the next state.
func Advance(doc *domain.Document, to domain.ProcessingStatus, now time.Time) error {
	if !CanTransition(doc.ProcessingStatus, to) {
		return domain.WrapError(domain.ErrConflict, "advance processing",
			fmt.Errorf("document %s cannot move from %s to %s", doc.ID, doc.ProcessingStatus, to))
	}
	doc.ProcessingStatus = to
	doc.UpdatedAt = now.UTC()
	return nil
}

// Complete records a terminal classification.
func Complete(doc *domain.Document, result domain.ClassificationResult, now time.Time) {
	doc.ApplyClassification(result)
	doc.ProcessingStatus = domain.StatusClassified
	doc.ProcessingStartedAt = nil
	doc.ProcessingError = ""
	doc.UpdatedAt = now.UTC()
}

// Fail records a failed attempt. Once the retry ceiling is reached the
// document is permanently failed with an explanatory issue.
func Fail(doc *domain.Document, cause error, now time.Time) {
	message := "processing failed"
	if cause != nil {
		message = cause.Error()
	}
	doc.ProcessingStatus = domain.StatusError
	doc.ProcessingStartedAt = nil
	doc.UpdatedAt = now.UTC()
	if RetryExhausted(doc) {
		doc.ProcessingError = ExhaustedMessage(doc.RetryCount)
		doc.Issues = appendIssue(doc.Issues, issues.Error(issues.TypeProcessing, "", fmt.Sprint(doc.RetryCount), doc.ProcessingError))
		return
	}
	doc.ProcessingError = message
}

// FailUnsupported permanently fails a document whose input type cannot be
// processed. The retry count is raised to the ceiling so nothing retries it.
func FailUnsupported(doc *domain.Document, mimeType string, now time.Time) {
	if doc.RetryCount < MaxRetries {
		doc.RetryCount = MaxRetries
	}
	doc.ProcessingStatus = domain.StatusError
	doc.ProcessingStartedAt = nil
	doc.ProcessingError = fmt.Sprintf("Unsupported file type %q; please upload a PDF, image, spreadsheet or text file", mimeType)
	doc.Issues = appendIssue(doc.Issues, issues.Error(issues.TypeUnsupported, "", mimeType, doc.ProcessingError))
	doc.UpdatedAt = now.UTC()
}

// ResetForRetry returns a document to pending. Without force an exhausted
// document stays failed; force clears the retry count.
func ResetForRetry(doc *domain.Document, force bool, now time.Time) error {
	if force {
		doc.RetryCount = 0
		doc.Issues = withoutProcessingIssues(doc.Issues)
	} else if RetryExhausted(doc) {
		return domain.WrapError(domain.ErrRetryExhausted, "reset for retry",
			fmt.Errorf("document %s reached %d attempts", doc.ID, doc.RetryCount))
	}
	doc.ProcessingStatus = domain.StatusPending
	doc.ProcessingStartedAt = nil
	doc.ProcessingError = ""
	doc.UpdatedAt = now.UTC()
	return nil
}

func ExhaustedMessage(attempts int) string {
	return fmt.Sprintf("Processing failed after %d attempts, please re-upload the document", attempts)
}

func appendIssue(list []string, issue string) []string {
	for _, existing := range list {
		if existing == issue {
			return list
		}
	}
	return append(list, issue)
}

func withoutProcessingIssues(list []string) []string {
	out := make([]string, 0, len(list))
	for _, s := range list {
		if issues.Parse(s).Type == issues.TypeProcessing {
			continue
		}
		out = append(out, s)
	}
	return out
}

package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/kirillkom/formly/internal/core/domain"
	"github.com/kirillkom/formly/internal/core/forms"
	"github.com/kirillkom/formly/internal/core/grading"
	"github.com/kirillkom/formly/internal/core/issues"
	"github.com/kirillkom/formly/internal/core/ports"
)

const (
	// MinOCRChars is the trimmed OCR length below which extraction is skipped.
	MinOCRChars        = 100
	DefaultMaxAttempts = 3
	// ReviewConfidence is the confidence at or below which a human must review.
	ReviewConfidence = 0.5
)

// ClassificationObserver receives per-attempt and terminal events. Metrics
// implement it; nil is allowed.
type ClassificationObserver interface {
	ObserveAttempt(attempt int, grade domain.GradeResult)
	ObserveResult(result domain.ClassificationResult)
}

// RetryState is the explicit state of the graded retry loop. Tests drive it
// attempt by attempt through Advance.
type RetryState struct {
	// Attempt is the attempt to run next, or the last one once Done.
	Attempt int
	// Completed counts graded attempts; it trails Attempt when the loop
	// stops before a scheduled attempt runs.
	Completed   int
	MaxAttempts int
	Feedback    string
	Termination domain.TerminationReason

	lastExtraction domain.ExtractionResult
	lastGrade      domain.GradeResult
	best           *attemptRecord
}

type attemptRecord struct {
	attempt    int
	extraction domain.ExtractionResult
	grade      domain.GradeResult
}

func NewRetryState(maxAttempts int) RetryState {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return RetryState{Attempt: 1, MaxAttempts: maxAttempts}
}

func (s RetryState) Done() bool {
	return s.Termination != ""
}

// Advance folds one graded attempt into the state. A pass terminates; a
// failure either schedules the next attempt with the grader's feedback or
// exhausts the budget.
func (s RetryState) Advance(extraction domain.ExtractionResult, grade domain.GradeResult) RetryState {
	if s.Done() {
		return s
	}
	s.Completed++
	s.lastExtraction = extraction
	s.lastGrade = grade
	if s.best == nil || grade.Score >= s.best.grade.Score {
		s.best = &attemptRecord{attempt: s.Attempt, extraction: extraction, grade: grade}
	}

	switch {
	case grade.Pass:
		s.Termination = domain.TerminationPassed
	case s.Attempt >= s.MaxAttempts:
		s.Termination = domain.TerminationExhausted
	default:
		s.Attempt++
		s.Feedback = grade.Feedback
	}
	return s
}

// Stop ends the loop early, keeping the best attempt so far.
func (s RetryState) Stop() RetryState {
	if !s.Done() {
		s.Termination = domain.TerminationExhausted
	}
	return s
}

// Result renders the terminal classification for a finished state.
func (s RetryState) Result() domain.ClassificationResult {
	if s.best == nil {
		return fallbackClassification(0, domain.TerminationExhausted, "No extraction attempt completed")
	}
	if s.Termination == domain.TerminationPassed {
		return buildResult(s.lastExtraction, s.lastGrade, s.Completed, s.Termination, false)
	}
	best := s.best
	result := buildResult(best.extraction, best.grade, s.Completed, domain.TerminationExhausted, true)
	reason := "Classification did not pass validation"
	if len(best.grade.FailureReasons) > 0 {
		reason = fmt.Sprintf("%s: %s", reason, best.grade.FailureReasons[0])
	}
	result.Issues = append(result.Issues, issues.Warning(issues.TypeLowConfidence, "",
		fmt.Sprint(best.grade.Score), fmt.Sprintf("%s after %d attempts", reason, s.Completed)))
	return result
}

func buildResult(ext domain.ExtractionResult, grade domain.GradeResult, attempts int, termination domain.TerminationReason, forceReview bool) domain.ClassificationResult {
	found := issues.NormalizeAll(grade.Issues)
	result := domain.ClassificationResult{
		DocumentType:    grade.DocumentType,
		Confidence:      grade.Confidence,
		Issues:          found,
		ExtractedFields: ext.Fields,
		Attempts:        attempts,
		Termination:     termination,
	}
	if year, ok := domain.TaxYearOf(ext.Fields); ok {
		result.TaxYear = &year
	}
	result.NeedsHumanReview = forceReview || result.Confidence <= ReviewConfidence || issues.HasErrors(found)
	return result
}

// Precheck short-circuits OCR text too short to be a real scan.
func Precheck(ocrText string) (domain.ClassificationResult, bool) {
	if utf8.RuneCountInString(strings.TrimSpace(ocrText)) >= MinOCRChars {
		return domain.ClassificationResult{}, false
	}
	return fallbackClassification(0, domain.TerminationPrecheck,
		"OCR text is empty or invalid; the scan may be blank or unreadable"), true
}

func fallbackClassification(attempts int, termination domain.TerminationReason, description string) domain.ClassificationResult {
	return domain.ClassificationResult{
		DocumentType:     domain.TypeOther,
		Confidence:       0,
		Issues:           []string{issues.Error(issues.TypeIncomplete, "", "", description)},
		ExtractedFields:  map[string]domain.ExtractedField{},
		NeedsHumanReview: true,
		Attempts:         attempts,
		Termination:      termination,
	}
}

// ClassifyUseCase is the host-driven extract, grade, retry loop.
type ClassifyUseCase struct {
	extractor   ports.FieldExtractor
	grader      *grading.Grader
	registry    *forms.Registry
	maxAttempts int
	observer    ClassificationObserver
}

func NewClassifyUseCase(
	extractor ports.FieldExtractor,
	registry *forms.Registry,
	maxAttempts int,
	observer ClassificationObserver,
) *ClassifyUseCase {
	if registry == nil {
		registry = forms.Default()
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &ClassifyUseCase{
		extractor:   extractor,
		grader:      grading.New(registry),
		registry:    registry,
		maxAttempts: maxAttempts,
		observer:    observer,
	}
}

// Classify never fails; every exit path yields a well-formed result.
func (uc *ClassifyUseCase) Classify(ctx context.Context, in domain.ClassificationInput) domain.ClassificationResult {
	if result, ok := Precheck(in.OCRText); ok {
		slog.Info("classification_precheck_failed", "file_name", in.FileName, "ocr_chars", len(strings.TrimSpace(in.OCRText)))
		uc.observeResult(result)
		return result
	}

	state := NewRetryState(uc.maxAttempts)
	for !state.Done() {
		if ctx.Err() != nil {
			state = state.Stop()
			break
		}
		extraction := uc.extractor.Extract(ctx, extractionRequest(uc.registry, in, state.Feedback))
		grade := uc.grader.Grade(grading.Input{
			Extraction:      extraction,
			OCRText:         in.OCRText,
			FileName:        in.FileName,
			ExpectedTaxYear: in.ExpectedTaxYear,
			AttemptNumber:   state.Attempt,
		})
		slog.Info("classification_attempt",
			"file_name", in.FileName,
			"attempt", state.Attempt,
			"likely_type", extraction.LikelyType,
			"score", grade.Score,
			"pass", grade.Pass,
		)
		if uc.observer != nil {
			uc.observer.ObserveAttempt(state.Attempt, grade)
		}
		state = state.Advance(extraction, grade)
	}

	result := state.Result()
	uc.observeResult(result)
	return result
}

func (uc *ClassifyUseCase) observeResult(result domain.ClassificationResult) {
	if uc.observer != nil {
		uc.observer.ObserveResult(result)
	}
}

func extractionRequest(registry *forms.Registry, in domain.ClassificationInput, feedback string) domain.ExtractionRequest {
	return domain.ExtractionRequest{
		SchemaFields:    registry.SchemaFields(),
		DocumentTypes:   registry.Types(),
		OCRText:         domain.TruncateOCR(in.OCRText),
		FileName:        in.FileName,
		PriorFeedback:   feedback,
		ExpectedTaxYear: in.ExpectedTaxYear,
	}
}

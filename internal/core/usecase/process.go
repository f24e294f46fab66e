package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kirillkom/formly/internal/core/domain"
	"github.com/kirillkom/formly/internal/core/lifecycle"
	"github.com/kirillkom/formly/internal/core/ports"
)

const DefaultPipelineBudget = 5 * time.Minute

type ProcessDocumentUseCase struct {
	repo        ports.DocumentRepository
	engagements ports.EngagementRepository
	downloader  ports.FileDownloader
	extractor   ports.TextExtractor
	classifier  ports.DocumentClassifier
	reconciler  ports.Reconciler
	queue       ports.MessageQueue
	locker      ports.DocumentLocker
	budget      time.Duration
	now         func() time.Time
}

// ProcessOptions carries the optional collaborators. A nil Queue disables
// automatic requeue after transient failures; a nil Locker disables the
// per-document lock.
type ProcessOptions struct {
	Queue  ports.MessageQueue
	Locker ports.DocumentLocker
	Budget time.Duration
}

func NewProcessDocumentUseCase(
	repo ports.DocumentRepository,
	engagements ports.EngagementRepository,
	downloader ports.FileDownloader,
	extractor ports.TextExtractor,
	classifier ports.DocumentClassifier,
	reconciler ports.Reconciler,
	options ProcessOptions,
) *ProcessDocumentUseCase {
	budget := options.Budget
	if budget <= 0 {
		budget = DefaultPipelineBudget
	}
	return &ProcessDocumentUseCase{
		repo:        repo,
		engagements: engagements,
		downloader:  downloader,
		extractor:   extractor,
		classifier:  classifier,
		reconciler:  reconciler,
		queue:       options.Queue,
		locker:      options.Locker,
		budget:      budget,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// ProcessByID runs one full pipeline attempt. Missing documents or
// engagements are hard errors; every other failure is recorded on the
// document before it is returned.
func (uc *ProcessDocumentUseCase) ProcessByID(ctx context.Context, documentID string) error {
	if uc.locker != nil {
		release, ok, err := uc.locker.TryLock(ctx, "document:"+documentID, uc.budget+30*time.Second)
		if err != nil {
			return domain.WrapError(domain.ErrTemporary, "lock document", err)
		}
		if !ok {
			slog.Info("document_process_skipped", "document_id", documentID, "reason", "locked")
			return nil
		}
		defer release()
	}

	doc, err := uc.repo.GetByID(ctx, documentID)
	if err != nil {
		return fmt.Errorf("fetch document by id: %w", err)
	}
	expectedYear, err := uc.expectedTaxYear(ctx, doc)
	if err != nil {
		return err
	}

	doc, err = uc.repo.Update(ctx, documentID, func(d *domain.Document) error {
		return lifecycle.Begin(d, uc.now())
	})
	if err != nil {
		if domain.IsKind(err, domain.ErrRetryExhausted) || domain.IsKind(err, domain.ErrConflict) {
			slog.Info("document_process_skipped", "document_id", documentID, "reason", err.Error())
			return nil
		}
		return fmt.Errorf("begin processing: %w", err)
	}

	pipelineCtx, cancel := context.WithTimeout(ctx, uc.budget)
	defer cancel()

	result, err := uc.runPipeline(pipelineCtx, doc, expectedYear)
	if err != nil {
		if domain.IsKind(err, domain.ErrConflict) {
			// Another actor changed the document; its state wins.
			slog.Warn("document_process_abandoned", "document_id", documentID, "error", err)
			return err
		}
		return uc.fail(ctx, doc, err)
	}

	if _, err := uc.repo.Update(ctx, documentID, func(d *domain.Document) error {
		if d.ProcessingStatus != domain.StatusClassifying {
			return domain.WrapError(domain.ErrConflict, "complete processing",
				fmt.Errorf("document %s moved to %s during processing", d.ID, d.ProcessingStatus))
		}
		lifecycle.Complete(d, result, uc.now())
		return nil
	}); err != nil {
		return fmt.Errorf("save classification: %w", err)
	}
	slog.Info("document_classified",
		"document_id", documentID,
		"document_type", result.DocumentType,
		"confidence", result.Confidence,
		"needs_review", result.NeedsHumanReview,
		"attempts", result.Attempts,
	)

	if doc.EngagementID != "" && uc.reconciler != nil {
		trigger := domain.ReconcileTrigger{Kind: domain.TriggerDocumentAssessed, DocumentID: documentID}
		if _, err := uc.reconciler.Reconcile(ctx, doc.EngagementID, trigger); err != nil {
			slog.Warn("reconciliation_after_classification_failed", "document_id", documentID, "engagement_id", doc.EngagementID, "error", err)
		}
	}
	return nil
}

func (uc *ProcessDocumentUseCase) runPipeline(ctx context.Context, doc *domain.Document, expectedYear int) (domain.ClassificationResult, error) {
	deadline, _ := ctx.Deadline()

	downloadCtx, cancel := context.WithTimeout(ctx, time.Until(deadline)/3)
	payload, err := uc.downloader.Download(downloadCtx, doc.StorageKey)
	cancel()
	if err != nil {
		return domain.ClassificationResult{}, stageError("download document", err)
	}
	if mime := strings.TrimSpace(doc.MimeType); mime != "" && mime != "application/octet-stream" {
		payload.MimeType = mime
	}

	if err := uc.advance(ctx, doc.ID, domain.StatusExtracting); err != nil {
		return domain.ClassificationResult{}, err
	}
	extractCtx, cancel := context.WithTimeout(ctx, time.Until(deadline)/2)
	text, err := uc.extractor.Extract(extractCtx, payload)
	cancel()
	if err != nil {
		return domain.ClassificationResult{}, stageError("extract text", err)
	}

	if err := uc.advance(ctx, doc.ID, domain.StatusClassifying); err != nil {
		return domain.ClassificationResult{}, err
	}
	classifyCtx, cancel := context.WithTimeout(ctx, time.Until(deadline))
	defer cancel()
	result := uc.classifier.Classify(classifyCtx, domain.ClassificationInput{
		OCRText:         text,
		FileName:        doc.FileName,
		ExpectedTaxYear: expectedYear,
	})
	if errors.Is(classifyCtx.Err(), context.DeadlineExceeded) {
		return domain.ClassificationResult{}, stageError("classify document", classifyCtx.Err())
	}
	return result, nil
}

func (uc *ProcessDocumentUseCase) advance(ctx context.Context, documentID string, status domain.ProcessingStatus) error {
	_, err := uc.repo.Update(ctx, documentID, func(d *domain.Document) error {
		return lifecycle.Advance(d, status, uc.now())
	})
	if err != nil {
		return fmt.Errorf("set status=%s: %w", status, err)
	}
	return nil
}

// fail records the failure and requeues transient ones below the ceiling.
func (uc *ProcessDocumentUseCase) fail(ctx context.Context, doc *domain.Document, processErr error) error {
	unsupported := domain.IsKind(processErr, domain.ErrUnsupportedFormat)
	updated, err := uc.repo.Update(ctx, doc.ID, func(d *domain.Document) error {
		if unsupported {
			lifecycle.FailUnsupported(d, doc.MimeType, uc.now())
			return nil
		}
		lifecycle.Fail(d, processErr, uc.now())
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w; mark failed status: %v", processErr, err)
	}
	slog.Warn("document_process_failed",
		"document_id", doc.ID,
		"retry_count", updated.RetryCount,
		"unsupported", unsupported,
		"error", processErr,
	)

	if !unsupported && domain.IsKind(processErr, domain.ErrTemporary) && !lifecycle.RetryExhausted(updated) && uc.queue != nil {
		if err := uc.queue.PublishDocumentQueued(ctx, doc.ID); err != nil {
			slog.Warn("document_requeue_failed", "document_id", doc.ID, "error", err)
		}
	}
	return processErr
}

func (uc *ProcessDocumentUseCase) expectedTaxYear(ctx context.Context, doc *domain.Document) (int, error) {
	if doc.EngagementID == "" || uc.engagements == nil {
		return 0, nil
	}
	eng, err := uc.engagements.GetByID(ctx, doc.EngagementID)
	if err != nil {
		return 0, fmt.Errorf("fetch engagement for document %s: %w", doc.ID, err)
	}
	return eng.TaxYear, nil
}

// stageError marks step timeouts as temporary so they count toward the
// retry ceiling like any other transient failure.
func stageError(op string, err error) error {
	if domain.IsKind(err, domain.ErrTemporary) || domain.IsKind(err, domain.ErrUnsupportedFormat) {
		return fmt.Errorf("%s: %w", op, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.WrapError(domain.ErrTemporary, op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

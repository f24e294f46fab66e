package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kirillkom/formly/internal/core/domain"
	"github.com/kirillkom/formly/internal/core/forms"
	"github.com/kirillkom/formly/internal/core/lifecycle"
	"github.com/kirillkom/formly/internal/core/ports"
)

type ReviewUseCase struct {
	docs       ports.DocumentRepository
	registry   *forms.Registry
	reconciler ports.Reconciler
	queue      ports.MessageQueue
	now        func() time.Time
}

func NewReviewUseCase(
	docs ports.DocumentRepository,
	registry *forms.Registry,
	reconciler ports.Reconciler,
	queue ports.MessageQueue,
) *ReviewUseCase {
	if registry == nil {
		registry = forms.Default()
	}
	return &ReviewUseCase{
		docs:       docs,
		registry:   registry,
		reconciler: reconciler,
		queue:      queue,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (uc *ReviewUseCase) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	return uc.docs.GetByID(ctx, id)
}

// Approve resolves a document's issues.
func (uc *ReviewUseCase) Approve(ctx context.Context, documentID string) (*domain.Document, error) {
	doc, err := uc.docs.Update(ctx, documentID, func(d *domain.Document) error {
		if d.IsArchived() {
			return domain.WrapError(domain.ErrConflict, "approve document", fmt.Errorf("document %s is archived", d.ID))
		}
		now := uc.now()
		d.ApprovedAt = &now
		d.NeedsHumanReview = false
		d.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("approve document: %w", err)
	}
	uc.reconcile(ctx, doc, domain.ReconcileTrigger{Kind: domain.TriggerDocumentAssessed, DocumentID: doc.ID})
	return doc, nil
}

// Reclassify overrides the document type. The first original type is kept
// across repeated reclassifications and approval is reset.
func (uc *ReviewUseCase) Reclassify(ctx context.Context, documentID, newType, note string) (*domain.Document, error) {
	newType = strings.TrimSpace(newType)
	if newType == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "reclassify document", errors.New("document type is required"))
	}
	if tpl, ok := uc.registry.Lookup(newType); ok {
		newType = tpl.Type
	} else if strings.EqualFold(newType, domain.TypeOther) {
		newType = domain.TypeOther
	}

	doc, err := uc.docs.Update(ctx, documentID, func(d *domain.Document) error {
		if d.IsArchived() {
			return domain.WrapError(domain.ErrConflict, "reclassify document", fmt.Errorf("document %s is archived", d.ID))
		}
		ApplyOverride(d, newType, note, uc.now())
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reclassify document: %w", err)
	}
	slog.Info("document_reclassified",
		"document_id", doc.ID,
		"original_type", doc.Override.OriginalType,
		"document_type", doc.DocumentType,
	)
	uc.reconcile(ctx, doc, domain.ReconcileTrigger{Kind: domain.TriggerDocumentAssessed, DocumentID: doc.ID})
	return doc, nil
}

// ApplyOverride records a manual type change on d.
func ApplyOverride(d *domain.Document, newType, note string, now time.Time) {
	previous := d.DocumentType
	if previous == "" {
		previous = domain.TypePending
	}
	if d.Override == nil {
		d.Override = &domain.Override{OriginalType: previous}
	}
	reason := fmt.Sprintf("Reclassified from %s to %s", previous, newType)
	if note = strings.TrimSpace(note); note != "" {
		reason += ": " + note
	}
	d.Override.Reason = reason
	d.DocumentType = newType
	d.ApprovedAt = nil
	d.UpdatedAt = now
}

// Archive hides a document from reconciliation.
func (uc *ReviewUseCase) Archive(ctx context.Context, documentID string) (*domain.Document, error) {
	doc, err := uc.docs.Update(ctx, documentID, func(d *domain.Document) error {
		if d.IsArchived() {
			return nil
		}
		now := uc.now()
		d.ArchivedAt = &now
		d.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("archive document: %w", err)
	}
	uc.reconcile(ctx, doc, domain.ReconcileTrigger{Kind: domain.TriggerCheckCompletion})
	return doc, nil
}

// Retry requeues a failed or stuck document. Without force the retry
// ceiling still applies.
func (uc *ReviewUseCase) Retry(ctx context.Context, documentID string, force bool) (*domain.Document, error) {
	doc, err := uc.docs.Update(ctx, documentID, func(d *domain.Document) error {
		now := uc.now()
		if lifecycle.IsInFlight(d.ProcessingStatus) && !lifecycle.IsStuck(d, now, lifecycle.StuckThreshold) {
			return domain.WrapError(domain.ErrConflict, "retry document", fmt.Errorf("document %s is %s", d.ID, d.ProcessingStatus))
		}
		return lifecycle.ResetForRetry(d, force, now)
	})
	if err != nil {
		return nil, fmt.Errorf("retry document: %w", err)
	}
	if uc.queue != nil {
		if err := uc.queue.PublishDocumentQueued(ctx, doc.ID); err != nil {
			return nil, fmt.Errorf("publish retry event: %w", err)
		}
	}
	slog.Info("document_retry_queued", "document_id", doc.ID, "force", force, "retry_count", doc.RetryCount)
	return doc, nil
}

func (uc *ReviewUseCase) reconcile(ctx context.Context, doc *domain.Document, trigger domain.ReconcileTrigger) {
	if uc.reconciler == nil || doc.EngagementID == "" {
		return
	}
	if _, err := uc.reconciler.Reconcile(ctx, doc.EngagementID, trigger); err != nil {
		slog.Warn("reconciliation_after_review_failed", "document_id", doc.ID, "engagement_id", doc.EngagementID, "error", err)
	}
}

package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/formly/internal/core/domain"
	"github.com/kirillkom/formly/internal/core/ports"
	"github.com/kirillkom/formly/internal/core/reconcile"
)

const AuditActionEngagementReady = "engagement_ready"

// ReconcileObserver receives one event per persisted reconciliation run.
type ReconcileObserver interface {
	ObserveReconciliation(trigger domain.TriggerKind, ready, transitioned bool)
}

type ReconcileUseCase struct {
	engagements ports.EngagementRepository
	documents   ports.DocumentRepository
	audit       ports.AuditLog
	briefs      ports.BriefGenerator
	observer    ReconcileObserver
	now         func() time.Time
}

func NewReconcileUseCase(
	engagements ports.EngagementRepository,
	documents ports.DocumentRepository,
	audit ports.AuditLog,
	briefs ports.BriefGenerator,
	observer ReconcileObserver,
) *ReconcileUseCase {
	return &ReconcileUseCase{
		engagements: engagements,
		documents:   documents,
		audit:       audit,
		briefs:      briefs,
		observer:    observer,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Reconcile recomputes the whole checklist from current document state, so
// repeated or concurrent runs only cost redundant work.
func (uc *ReconcileUseCase) Reconcile(ctx context.Context, engagementID string, trigger domain.ReconcileTrigger) (*domain.Reconciliation, error) {
	current, err := uc.engagements.GetByID(ctx, engagementID)
	if err != nil {
		return nil, fmt.Errorf("fetch engagement: %w", err)
	}
	if len(current.Checklist) == 0 {
		skipped := reconcile.Run(nil, nil, trigger, uc.now()).Reconciliation
		return &skipped, nil
	}

	docs, err := uc.documents.ListByEngagement(ctx, engagementID, false)
	if err != nil {
		return nil, fmt.Errorf("list engagement documents: %w", err)
	}

	var (
		outcome  reconcile.Outcome
		previous domain.EngagementStatus
	)
	eng, err := uc.engagements.Update(ctx, engagementID, func(e *domain.Engagement) error {
		now := uc.now()
		previous = e.Status
		outcome = reconcile.Run(e.Checklist, docs, trigger, now)
		if outcome.Skipped {
			return nil
		}
		e.Checklist = outcome.Checklist
		rec := outcome.Reconciliation
		e.Reconciliation = &rec
		if outcome.IsReady {
			e.Status = domain.EngagementReady
		} else {
			e.Status = domain.EngagementCollecting
		}
		e.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("save reconciliation: %w", err)
	}

	transitioned := previous != domain.EngagementReady && outcome.IsReady
	slog.Info("reconciliation_completed",
		"engagement_id", engagementID,
		"trigger", string(trigger.Kind),
		"completion", outcome.Reconciliation.CompletionPercentage,
		"ready", outcome.IsReady,
		"transitioned", transitioned,
	)
	if previous == domain.EngagementReady && !outcome.IsReady {
		slog.Warn("engagement_readiness_regressed", "engagement_id", engagementID, "trigger", string(trigger.Kind))
	}
	if uc.observer != nil {
		uc.observer.ObserveReconciliation(trigger.Kind, outcome.IsReady, transitioned)
	}
	if transitioned {
		uc.onReady(ctx, eng, docs, trigger, outcome.Reconciliation)
	}

	rec := outcome.Reconciliation
	return &rec, nil
}

// onReady runs the hand-off side effects. Their failures are logged and
// never fail the reconciliation.
func (uc *ReconcileUseCase) onReady(ctx context.Context, eng *domain.Engagement, docs []*domain.Document, trigger domain.ReconcileTrigger, rec domain.Reconciliation) {
	briefGenerated := false
	if uc.briefs != nil {
		brief, err := uc.briefs.GenerateBrief(ctx, eng, docs)
		if err != nil {
			slog.Warn("brief_generation_failed", "engagement_id", eng.ID, "error", err)
		} else if _, err := uc.engagements.Update(ctx, eng.ID, func(e *domain.Engagement) error {
			e.Brief = brief
			return nil
		}); err != nil {
			slog.Warn("brief_save_failed", "engagement_id", eng.ID, "error", err)
		} else {
			briefGenerated = true
		}
	}

	if uc.audit == nil {
		return
	}
	entry := domain.AuditEntry{
		ID:           uuid.NewString(),
		EngagementID: eng.ID,
		Action:       AuditActionEngagementReady,
		Trigger:      trigger.Kind,
		Outcome:      string(domain.EngagementReady),
		Details: map[string]any{
			"completion_percentage": rec.CompletionPercentage,
			"document_count":        len(docs),
			"brief_generated":       briefGenerated,
			"document_id":           trigger.DocumentID,
		},
		CreatedAt: rec.RanAt,
	}
	if err := uc.audit.Append(ctx, entry); err != nil {
		slog.Warn("audit_append_failed", "engagement_id", eng.ID, "error", err)
	}
}

package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/formly/internal/core/domain"
	"github.com/kirillkom/formly/internal/core/lifecycle"
	"github.com/kirillkom/formly/internal/core/ports"
)

// RecoveryUseCase finds documents stuck in a non-terminal state, resets
// the recoverable ones and republishes them.
type RecoveryUseCase struct {
	docs      ports.DocumentRepository
	queue     ports.MessageQueue
	threshold time.Duration
}

func NewRecoveryUseCase(docs ports.DocumentRepository, queue ports.MessageQueue, threshold time.Duration) *RecoveryUseCase {
	if threshold <= 0 {
		threshold = lifecycle.StuckThreshold
	}
	return &RecoveryUseCase{docs: docs, queue: queue, threshold: threshold}
}

func (uc *RecoveryUseCase) ListStuck(ctx context.Context, now time.Time) ([]*domain.Document, error) {
	candidates, err := uc.docs.ListInFlight(ctx, now.Add(-uc.threshold))
	if err != nil {
		return nil, fmt.Errorf("list in-flight documents: %w", err)
	}
	stuck := make([]*domain.Document, 0, len(candidates))
	for _, doc := range candidates {
		if lifecycle.IsStuck(doc, now, uc.threshold) {
			stuck = append(stuck, doc)
		}
	}
	return stuck, nil
}

func (uc *RecoveryUseCase) Recover(ctx context.Context, now time.Time) (domain.RecoveryReport, error) {
	report := domain.RecoveryReport{Stuck: []string{}, Requeued: []string{}, Exhausted: []string{}, Failed: []string{}}
	stuck, err := uc.ListStuck(ctx, now)
	if err != nil {
		return report, err
	}

	for _, candidate := range stuck {
		report.Stuck = append(report.Stuck, candidate.ID)
		exhausted := false
		_, err := uc.docs.Update(ctx, candidate.ID, func(d *domain.Document) error {
			if !lifecycle.IsStuck(d, now, uc.threshold) {
				return errRecoveredElsewhere
			}
			if lifecycle.RetryExhausted(d) {
				exhausted = true
				lifecycle.Fail(d, errors.New("processing stalled"), now)
				return nil
			}
			return lifecycle.ResetForRetry(d, false, now)
		})
		switch {
		case errors.Is(err, errRecoveredElsewhere):
			continue
		case err != nil:
			slog.Warn("stuck_recovery_failed", "document_id", candidate.ID, "error", err)
			report.Failed = append(report.Failed, candidate.ID)
			continue
		case exhausted:
			report.Exhausted = append(report.Exhausted, candidate.ID)
			continue
		}

		if uc.queue != nil {
			if err := uc.queue.PublishDocumentQueued(ctx, candidate.ID); err != nil {
				slog.Warn("stuck_requeue_failed", "document_id", candidate.ID, "error", err)
				report.Failed = append(report.Failed, candidate.ID)
				continue
			}
		}
		report.Requeued = append(report.Requeued, candidate.ID)
	}

	if len(report.Stuck) > 0 {
		slog.Warn("stuck_documents_recovered",
			"stuck", len(report.Stuck),
			"requeued", len(report.Requeued),
			"exhausted", len(report.Exhausted),
			"failed", len(report.Failed),
		)
	}
	return report, nil
}

var errRecoveredElsewhere = errors.New("document no longer stuck")

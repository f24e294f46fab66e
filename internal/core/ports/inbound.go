package ports

import (
	"context"
	"io"
	"time"

	"github.com/kirillkom/formly/internal/core/domain"
)

// DocumentIngestor is the inbound contract for document uploads and storage-sync hand-off.
type DocumentIngestor interface {
	Upload(ctx context.Context, engagementID, filename, mimeType string, body io.Reader) (*domain.Document, error)
	RegisterDiscovered(ctx context.Context, engagementID string, files []domain.DiscoveredFile) ([]*domain.Document, error)
}

// DocumentReader is the inbound read model for document state.
type DocumentReader interface {
	GetByID(ctx context.Context, id string) (*domain.Document, error)
}

// DocumentProcessor is the inbound contract for asynchronous document processing.
type DocumentProcessor interface {
	ProcessByID(ctx context.Context, documentID string) error
}

// DocumentReviewer covers the reviewer actions on a classified document.
type DocumentReviewer interface {
	Approve(ctx context.Context, documentID string) (*domain.Document, error)
	Reclassify(ctx context.Context, documentID, newType, note string) (*domain.Document, error)
	Archive(ctx context.Context, documentID string) (*domain.Document, error)
	Retry(ctx context.Context, documentID string, force bool) (*domain.Document, error)
}

// EngagementService creates and reads engagements.
type EngagementService interface {
	Create(ctx context.Context, req domain.CreateEngagementRequest) (*domain.Engagement, error)
	Get(ctx context.Context, id string) (*domain.Engagement, error)
	Documents(ctx context.Context, id string, includeArchived bool) ([]*domain.Document, error)
}

// Reconciler recomputes checklist state and readiness for an engagement.
type Reconciler interface {
	Reconcile(ctx context.Context, engagementID string, trigger domain.ReconcileTrigger) (*domain.Reconciliation, error)
}

// StuckRecoverer reports and recovers documents stuck in non-terminal states.
type StuckRecoverer interface {
	ListStuck(ctx context.Context, now time.Time) ([]*domain.Document, error)
	Recover(ctx context.Context, now time.Time) (domain.RecoveryReport, error)
}

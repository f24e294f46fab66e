package ports

import (
	"context"
	"io"
	"time"

	"github.com/kirillkom/formly/internal/core/domain"
)

// DocumentMutator changes a loaded document in place. Returning an error
// aborts the update.
type DocumentMutator func(doc *domain.Document) error

// EngagementMutator changes a loaded engagement in place.
type EngagementMutator func(eng *domain.Engagement) error

// DocumentRepository persists and reads document state.
type DocumentRepository interface {
	Create(ctx context.Context, doc *domain.Document) error
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	// Update is an atomic read-modify-write keyed by document id.
	Update(ctx context.Context, id string, mutate DocumentMutator) (*domain.Document, error)
	ListByEngagement(ctx context.Context, engagementID string, includeArchived bool) ([]*domain.Document, error)
	// ListInFlight returns non-terminal documents whose current attempt began before cutoff.
	ListInFlight(ctx context.Context, startedBefore time.Time) ([]*domain.Document, error)
}

// EngagementRepository persists engagements with their checklist and last reconciliation.
type EngagementRepository interface {
	Create(ctx context.Context, eng *domain.Engagement) error
	GetByID(ctx context.Context, id string) (*domain.Engagement, error)
	Update(ctx context.Context, id string, mutate EngagementMutator) (*domain.Engagement, error)
}

// AuditLog records engagement-level events.
type AuditLog interface {
	Append(ctx context.Context, entry domain.AuditEntry) error
	ListByEngagement(ctx context.Context, engagementID string, limit int) ([]domain.AuditEntry, error)
}

// ObjectStorage stores uploaded source documents.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// FileDownloader fetches a stored document body.
type FileDownloader interface {
	Download(ctx context.Context, key string) (domain.FilePayload, error)
}

// MessageQueue publishes/consumes processing events.
type MessageQueue interface {
	PublishDocumentQueued(ctx context.Context, documentID string) error
	SubscribeDocumentQueued(ctx context.Context, handler func(context.Context, string) error) error
}

// TextExtractor turns a document body into text. Unsupported inputs return
// an error of kind domain.ErrUnsupportedFormat.
type TextExtractor interface {
	Extract(ctx context.Context, payload domain.FilePayload) (string, error)
}

// FieldExtractor asks a model for structured fields. It never fails: call
// errors degrade to a fallback result.
type FieldExtractor interface {
	Extract(ctx context.Context, req domain.ExtractionRequest) domain.ExtractionResult
}

// ModelCaller runs one turn of a tool-use conversation.
type ModelCaller interface {
	Converse(ctx context.Context, messages []domain.ChatMessage, tools []domain.ToolSpec) (domain.ChatMessage, error)
}

// DocumentClassifier produces a terminal classification. It never fails.
type DocumentClassifier interface {
	Classify(ctx context.Context, in domain.ClassificationInput) domain.ClassificationResult
}

// BriefGenerator writes the accountant hand-off summary for a ready engagement.
type BriefGenerator interface {
	GenerateBrief(ctx context.Context, eng *domain.Engagement, docs []*domain.Document) (string, error)
}

// DocumentLocker serializes pipeline runs per document id. ok is false when
// another holder owns the lock.
type DocumentLocker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error)
}

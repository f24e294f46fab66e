package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/formly/internal/core/domain"
	"github.com/kirillkom/formly/internal/core/ports"
)

type IngestDocumentUseCase struct {
	repo        ports.DocumentRepository
	engagements ports.EngagementRepository
	storage     ports.ObjectStorage
	queue       ports.MessageQueue
	dispatcher  *Dispatcher
}

// NewIngestDocumentUseCase wires uploads to the queue. With a non-nil
// dispatcher, discovered batches are processed inline instead of queued.
func NewIngestDocumentUseCase(
	repo ports.DocumentRepository,
	engagements ports.EngagementRepository,
	storage ports.ObjectStorage,
	queue ports.MessageQueue,
	dispatcher *Dispatcher,
) *IngestDocumentUseCase {
	return &IngestDocumentUseCase{
		repo:        repo,
		engagements: engagements,
		storage:     storage,
		queue:       queue,
		dispatcher:  dispatcher,
	}
}

func (uc *IngestDocumentUseCase) Upload(
	ctx context.Context,
	engagementID, filename, mimeType string,
	body io.Reader,
) (*domain.Document, error) {
	if err := uc.checkEngagement(ctx, engagementID); err != nil {
		return nil, err
	}

	id := uuid.NewString()
	storageKey := fmt.Sprintf("%s/%s_%s", engagementID, id, sanitizeFilename(filename))
	counter := &countingReader{r: body}
	if err := uc.storage.Save(ctx, storageKey, counter); err != nil {
		return nil, fmt.Errorf("save to object storage: %w", err)
	}

	doc := newPendingDocument(id, engagementID, domain.DiscoveredFile{
		FileName:   filename,
		MimeType:   mimeType,
		StorageKey: storageKey,
		SizeBytes:  counter.n,
	})
	if err := uc.repo.Create(ctx, doc); err != nil {
		return nil, fmt.Errorf("create document metadata: %w", err)
	}
	if err := uc.queue.PublishDocumentQueued(ctx, doc.ID); err != nil {
		return nil, fmt.Errorf("publish processing event: %w", err)
	}
	return doc, nil
}

// RegisterDiscovered creates pending documents for files a storage sync
// already placed in object storage, then hands them to processing.
func (uc *IngestDocumentUseCase) RegisterDiscovered(ctx context.Context, engagementID string, files []domain.DiscoveredFile) ([]*domain.Document, error) {
	if err := uc.checkEngagement(ctx, engagementID); err != nil {
		return nil, err
	}
	docs := make([]*domain.Document, 0, len(files))
	ids := make([]string, 0, len(files))
	for _, file := range files {
		if strings.TrimSpace(file.StorageKey) == "" {
			return nil, domain.WrapError(domain.ErrInvalidInput, "register discovered", fmt.Errorf("file %q has no storage key", file.FileName))
		}
		doc := newPendingDocument(uuid.NewString(), engagementID, file)
		if err := uc.repo.Create(ctx, doc); err != nil {
			return nil, fmt.Errorf("create document metadata: %w", err)
		}
		docs = append(docs, doc)
		ids = append(ids, doc.ID)
	}

	if uc.dispatcher != nil {
		report := uc.dispatcher.Dispatch(ctx, ids)
		if len(report.Failed) > 0 {
			failed := make([]error, 0, len(report.Failed))
			for id, err := range report.Failed {
				failed = append(failed, fmt.Errorf("document %s: %w", id, err))
			}
			return docs, errors.Join(failed...)
		}
		return docs, nil
	}
	for _, id := range ids {
		if err := uc.queue.PublishDocumentQueued(ctx, id); err != nil {
			return docs, fmt.Errorf("publish processing event: %w", err)
		}
	}
	return docs, nil
}

func (uc *IngestDocumentUseCase) checkEngagement(ctx context.Context, engagementID string) error {
	if strings.TrimSpace(engagementID) == "" {
		return domain.WrapError(domain.ErrInvalidInput, "ingest document", errors.New("engagement id is required"))
	}
	if uc.engagements == nil {
		return nil
	}
	if _, err := uc.engagements.GetByID(ctx, engagementID); err != nil {
		return fmt.Errorf("fetch engagement: %w", err)
	}
	return nil
}

func newPendingDocument(id, engagementID string, file domain.DiscoveredFile) *domain.Document {
	now := time.Now().UTC()
	return &domain.Document{
		ID:               id,
		EngagementID:     engagementID,
		FileName:         file.FileName,
		MimeType:         file.MimeType,
		StorageKey:       file.StorageKey,
		SizeBytes:        file.SizeBytes,
		DocumentType:     domain.TypePending,
		Issues:           []string{},
		ProcessingStatus: domain.StatusPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" || base == "." {
		return "document.bin"
	}
	return base
}

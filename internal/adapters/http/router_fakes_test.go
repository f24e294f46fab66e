package httpadapter

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/kirillkom/formly/internal/config"
	"github.com/kirillkom/formly/internal/core/domain"
)

type ingestFake struct {
	err          error
	engagementID string
}

func (f *ingestFake) Upload(_ context.Context, engagementID, filename, mimeType string, body io.Reader) (*domain.Document, error) {
	if f.err != nil {
		return nil, f.err
	}
	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload", io.EOF)
	}
	f.engagementID = engagementID
	now := time.Now().UTC()
	return &domain.Document{
		ID:               "doc-1",
		EngagementID:     engagementID,
		FileName:         filename,
		MimeType:         mimeType,
		SizeBytes:        int64(len(raw)),
		DocumentType:     domain.TypePending,
		Issues:           []string{},
		ProcessingStatus: domain.StatusPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}, nil
}

func (f *ingestFake) RegisterDiscovered(context.Context, string, []domain.DiscoveredFile) ([]*domain.Document, error) {
	return nil, nil
}

type docsFake struct {
	err error
	doc *domain.Document
}

func (f docsFake) GetByID(_ context.Context, id string) (*domain.Document, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.doc != nil {
		return f.doc, nil
	}
	return &domain.Document{ID: id, DocumentType: "W-2", Issues: []string{}, ProcessingStatus: domain.StatusClassified}, nil
}

type reviewerFake struct {
	err       error
	lastType  string
	lastNote  string
	lastForce bool
}

func (f *reviewerFake) result(id string) (*domain.Document, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &domain.Document{ID: id, DocumentType: "W-2", Issues: []string{}}, nil
}

func (f *reviewerFake) Approve(_ context.Context, id string) (*domain.Document, error) {
	return f.result(id)
}

func (f *reviewerFake) Reclassify(_ context.Context, id, newType, note string) (*domain.Document, error) {
	f.lastType, f.lastNote = newType, note
	return f.result(id)
}

func (f *reviewerFake) Archive(_ context.Context, id string) (*domain.Document, error) {
	return f.result(id)
}

func (f *reviewerFake) Retry(_ context.Context, id string, force bool) (*domain.Document, error) {
	f.lastForce = force
	return f.result(id)
}

type engagementsFake struct {
	err     error
	created domain.CreateEngagementRequest
}

func (f *engagementsFake) Create(_ context.Context, req domain.CreateEngagementRequest) (*domain.Engagement, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.created = req
	return &domain.Engagement{ID: "eng-1", ClientName: req.ClientName, TaxYear: req.TaxYear, Status: domain.EngagementCollecting}, nil
}

func (f *engagementsFake) Get(_ context.Context, id string) (*domain.Engagement, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &domain.Engagement{ID: id, Status: domain.EngagementCollecting}, nil
}

func (f *engagementsFake) Documents(_ context.Context, id string, _ bool) ([]*domain.Document, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []*domain.Document{{ID: "doc-1", EngagementID: id, Issues: []string{"[WARNING:low_confidence::] review"}}}, nil
}

type reconcilerFake struct {
	trigger domain.ReconcileTrigger
}

func (f *reconcilerFake) Reconcile(_ context.Context, _ string, trigger domain.ReconcileTrigger) (*domain.Reconciliation, error) {
	f.trigger = trigger
	return &domain.Reconciliation{CompletionPercentage: 50, ItemStatuses: []domain.ItemState{}, Issues: []string{}}, nil
}

func testServices() Services {
	return Services{
		Engagements: &engagementsFake{},
		Ingest:      &ingestFake{},
		Documents:   docsFake{},
		Reviewer:    &reviewerFake{},
		Reconciler:  &reconcilerFake{},
	}
}

func newTestHandler(cfg config.Config) http.Handler {
	return NewRouter(cfg, testServices()).Handler()
}

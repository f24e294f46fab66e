package usecase

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/kirillkom/formly/internal/core/domain"
	"github.com/kirillkom/formly/internal/core/lifecycle"
	"github.com/kirillkom/formly/internal/core/ports"
)

type memDocRepo struct {
	mu        sync.Mutex
	docs      map[string]*domain.Document
	createErr error
	updates   []domain.ProcessingStatus
}

func newMemDocRepo(docs ...*domain.Document) *memDocRepo {
	r := &memDocRepo{docs: map[string]*domain.Document{}}
	for _, d := range docs {
		r.docs[d.ID] = cloneDoc(d)
	}
	return r
}

func cloneDoc(d *domain.Document) *domain.Document {
	c := *d
	c.Issues = append([]string(nil), d.Issues...)
	if d.Override != nil {
		o := *d.Override
		c.Override = &o
	}
	return &c
}

func (r *memDocRepo) Create(_ context.Context, doc *domain.Document) error {
	if r.createErr != nil {
		return r.createErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.docs[doc.ID] = cloneDoc(doc)
	return nil
}

func (r *memDocRepo) GetByID(_ context.Context, id string) (*domain.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", fmt.Errorf("id=%s", id))
	}
	return cloneDoc(doc), nil
}

func (r *memDocRepo) Update(_ context.Context, id string, mutate ports.DocumentMutator) (*domain.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrDocumentNotFound, "update document", fmt.Errorf("id=%s", id))
	}
	working := cloneDoc(doc)
	if err := mutate(working); err != nil {
		return nil, err
	}
	r.docs[id] = working
	r.updates = append(r.updates, working.ProcessingStatus)
	return cloneDoc(working), nil
}

func (r *memDocRepo) ListByEngagement(_ context.Context, engagementID string, includeArchived bool) ([]*domain.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*domain.Document{}
	for _, doc := range r.docs {
		if doc.EngagementID != engagementID || (!includeArchived && doc.IsArchived()) {
			continue
		}
		out = append(out, cloneDoc(doc))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memDocRepo) ListInFlight(_ context.Context, startedBefore time.Time) ([]*domain.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*domain.Document{}
	for _, doc := range r.docs {
		if lifecycle.IsTerminal(doc.ProcessingStatus) || doc.ProcessingStartedAt == nil {
			continue
		}
		if doc.ProcessingStartedAt.Before(startedBefore) {
			out = append(out, cloneDoc(doc))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memDocRepo) get(id string) *domain.Document {
	r.mu.Lock()
	defer r.mu.Unlock()
	return cloneDoc(r.docs[id])
}

type memEngagementRepo struct {
	mu   sync.Mutex
	engs map[string]*domain.Engagement
}

func newMemEngagementRepo(engs ...*domain.Engagement) *memEngagementRepo {
	r := &memEngagementRepo{engs: map[string]*domain.Engagement{}}
	for _, e := range engs {
		c := *e
		r.engs[e.ID] = &c
	}
	return r
}

func (r *memEngagementRepo) Create(_ context.Context, eng *domain.Engagement) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *eng
	r.engs[eng.ID] = &c
	return nil
}

func (r *memEngagementRepo) GetByID(_ context.Context, id string) (*domain.Engagement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	eng, ok := r.engs[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrEngagementNotFound, "get engagement", fmt.Errorf("id=%s", id))
	}
	c := *eng
	return &c, nil
}

func (r *memEngagementRepo) Update(_ context.Context, id string, mutate ports.EngagementMutator) (*domain.Engagement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	eng, ok := r.engs[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrEngagementNotFound, "update engagement", fmt.Errorf("id=%s", id))
	}
	working := *eng
	working.Checklist = append([]domain.ChecklistItem(nil), eng.Checklist...)
	if err := mutate(&working); err != nil {
		return nil, err
	}
	r.engs[id] = &working
	c := working
	return &c, nil
}

type memAuditLog struct {
	mu      sync.Mutex
	entries []domain.AuditEntry
}

func (l *memAuditLog) Append(_ context.Context, entry domain.AuditEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry)
	return nil
}

func (l *memAuditLog) ListByEngagement(_ context.Context, engagementID string, _ int) ([]domain.AuditEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := []domain.AuditEntry{}
	for _, e := range l.entries {
		if e.EngagementID == engagementID {
			out = append(out, e)
		}
	}
	return out, nil
}

type queueFake struct {
	mu         sync.Mutex
	published  []string
	publishErr error
}

func (q *queueFake) PublishDocumentQueued(_ context.Context, documentID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.publishErr != nil {
		return q.publishErr
	}
	q.published = append(q.published, documentID)
	return nil
}

func (q *queueFake) SubscribeDocumentQueued(context.Context, func(context.Context, string) error) error {
	return nil
}

type storageFake struct {
	saved map[string][]byte
	err   error
}

func (s *storageFake) Save(_ context.Context, key string, data io.Reader) error {
	if s.err != nil {
		return s.err
	}
	body, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	if s.saved == nil {
		s.saved = map[string][]byte{}
	}
	s.saved[key] = body
	return nil
}

func (s *storageFake) Open(context.Context, string) (io.ReadCloser, error) {
	return nil, fmt.Errorf("not implemented")
}

type downloaderFake struct {
	payload domain.FilePayload
	err     error
	block   bool
}

func (f *downloaderFake) Download(ctx context.Context, _ string) (domain.FilePayload, error) {
	if f.block {
		<-ctx.Done()
		return domain.FilePayload{}, ctx.Err()
	}
	if f.err != nil {
		return domain.FilePayload{}, f.err
	}
	return f.payload, nil
}

type textExtractorFake struct {
	text string
	err  error
}

func (f *textExtractorFake) Extract(context.Context, domain.FilePayload) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.text, nil
}

type classifierFake struct {
	result domain.ClassificationResult
	inputs []domain.ClassificationInput
}

func (f *classifierFake) Classify(_ context.Context, in domain.ClassificationInput) domain.ClassificationResult {
	f.inputs = append(f.inputs, in)
	return f.result
}

type reconcilerFake struct {
	mu       sync.Mutex
	triggers []domain.ReconcileTrigger
	err      error
}

func (f *reconcilerFake) Reconcile(_ context.Context, _ string, trigger domain.ReconcileTrigger) (*domain.Reconciliation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.triggers = append(f.triggers, trigger)
	if f.err != nil {
		return nil, f.err
	}
	return &domain.Reconciliation{}, nil
}

type lockerFake struct {
	held     map[string]bool
	released int
}

func (l *lockerFake) TryLock(_ context.Context, key string, _ time.Duration) (func(), bool, error) {
	if l.held == nil {
		l.held = map[string]bool{}
	}
	if l.held[key] {
		return nil, false, nil
	}
	l.held[key] = true
	return func() {
		delete(l.held, key)
		l.released++
	}, true, nil
}

type briefFake struct {
	calls int
	err   error
}

func (f *briefFake) GenerateBrief(context.Context, *domain.Engagement, []*domain.Document) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return "Client is ready for preparation.", nil
}

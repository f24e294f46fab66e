package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kirillkom/formly/internal/core/domain"
	"github.com/kirillkom/formly/internal/core/ports"
)

const documentColumns = `id, engagement_id, file_name, mime_type, storage_key, size_bytes, document_type,
	confidence, tax_year, issues, extracted_fields, needs_human_review, processing_status,
	processing_started_at, processing_error, retry_count, approved_at, override, archived_at,
	created_at, updated_at`

type DocumentRepository struct {
	db *sql.DB
}

func NewDocumentRepository(db *sql.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

func (r *DocumentRepository) Create(ctx context.Context, doc *domain.Document) error {
	args, err := documentArgs(doc)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
INSERT INTO documents (`+documentColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)
`, args...)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = $1`, id)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", fmt.Errorf("id=%s", id))
	}
	return doc, err
}

// Update runs mutate against the row locked with SELECT ... FOR UPDATE and
// writes the result back in the same transaction. A mutator error rolls back.
func (r *DocumentRepository) Update(ctx context.Context, id string, mutate ports.DocumentMutator) (*domain.Document, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin document tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	row := tx.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = $1 FOR UPDATE`, id)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.WrapError(domain.ErrDocumentNotFound, "update document", fmt.Errorf("id=%s", id))
	}
	if err != nil {
		return nil, err
	}

	if err := mutate(doc); err != nil {
		return nil, err
	}
	doc.ID = id
	doc.UpdatedAt = time.Now().UTC()

	args, err := documentArgs(doc)
	if err != nil {
		return nil, err
	}
	res, err := tx.ExecContext(ctx, `
UPDATE documents SET
	engagement_id = $2, file_name = $3, mime_type = $4, storage_key = $5, size_bytes = $6,
	document_type = $7, confidence = $8, tax_year = $9, issues = $10, extracted_fields = $11,
	needs_human_review = $12, processing_status = $13, processing_started_at = $14,
	processing_error = $15, retry_count = $16, approved_at = $17, override = $18,
	archived_at = $19, created_at = $20, updated_at = $21
WHERE id = $1
`, args...)
	if err != nil {
		return nil, fmt.Errorf("update document: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return nil, domain.WrapError(domain.ErrDocumentNotFound, "update document", fmt.Errorf("id=%s", id))
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit document tx: %w", err)
	}
	return doc, nil
}

func (r *DocumentRepository) ListByEngagement(ctx context.Context, engagementID string, includeArchived bool) ([]*domain.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE engagement_id = $1`
	if !includeArchived {
		query += " AND archived_at IS NULL"
	}
	query += " ORDER BY created_at, id"
	return r.list(ctx, query, engagementID)
}

// ListInFlight returns non-terminal documents whose run started before the cutoff.
func (r *DocumentRepository) ListInFlight(ctx context.Context, startedBefore time.Time) ([]*domain.Document, error) {
	return r.list(ctx, `SELECT `+documentColumns+` FROM documents
WHERE processing_status NOT IN ('classified', 'error')
	AND processing_started_at IS NOT NULL
	AND processing_started_at < $1
ORDER BY processing_started_at, id`, startedBefore)
}

func (r *DocumentRepository) list(ctx context.Context, query string, args ...any) ([]*domain.Document, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	out := make([]*domain.Document, 0)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return out, nil
}

func documentArgs(doc *domain.Document) ([]any, error) {
	issues := doc.Issues
	if issues == nil {
		issues = []string{}
	}
	issuesJSON, err := marshalJSON(issues, "issues")
	if err != nil {
		return nil, err
	}
	fields := doc.ExtractedFields
	if fields == nil {
		fields = map[string]domain.ExtractedField{}
	}
	fieldsJSON, err := marshalJSON(fields, "extracted fields")
	if err != nil {
		return nil, err
	}
	var overrideJSON []byte
	if doc.Override != nil {
		if overrideJSON, err = marshalJSON(doc.Override, "override"); err != nil {
			return nil, err
		}
	}
	var taxYear sql.NullInt64
	if doc.TaxYear != nil {
		taxYear = sql.NullInt64{Int64: int64(*doc.TaxYear), Valid: true}
	}

	return []any{
		doc.ID, doc.EngagementID, doc.FileName, doc.MimeType, doc.StorageKey, doc.SizeBytes,
		doc.DocumentType, doc.Confidence, taxYear, issuesJSON, fieldsJSON, doc.NeedsHumanReview,
		string(doc.ProcessingStatus), nullTime(doc.ProcessingStartedAt), doc.ProcessingError,
		doc.RetryCount, nullTime(doc.ApprovedAt), overrideJSON, nullTime(doc.ArchivedAt),
		doc.CreatedAt, doc.UpdatedAt,
	}, nil
}

func scanDocument(row rowScanner) (*domain.Document, error) {
	var (
		doc                          domain.Document
		taxYear                      sql.NullInt64
		issuesRaw, fieldsRaw         []byte
		overrideRaw                  []byte
		status                       string
		startedAt, approved, archive sql.NullTime
	)
	err := row.Scan(
		&doc.ID, &doc.EngagementID, &doc.FileName, &doc.MimeType, &doc.StorageKey, &doc.SizeBytes,
		&doc.DocumentType, &doc.Confidence, &taxYear, &issuesRaw, &fieldsRaw, &doc.NeedsHumanReview,
		&status, &startedAt, &doc.ProcessingError, &doc.RetryCount, &approved, &overrideRaw, &archive,
		&doc.CreatedAt, &doc.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan document: %w", err)
	}

	doc.Issues = []string{}
	if len(issuesRaw) > 0 {
		if err := json.Unmarshal(issuesRaw, &doc.Issues); err != nil {
			return nil, fmt.Errorf("unmarshal issues: %w", err)
		}
	}
	if len(fieldsRaw) > 0 {
		if err := json.Unmarshal(fieldsRaw, &doc.ExtractedFields); err != nil {
			return nil, fmt.Errorf("unmarshal extracted fields: %w", err)
		}
	}
	if len(overrideRaw) > 0 {
		doc.Override = &domain.Override{}
		if err := json.Unmarshal(overrideRaw, doc.Override); err != nil {
			return nil, fmt.Errorf("unmarshal override: %w", err)
		}
	}
	if taxYear.Valid {
		year := int(taxYear.Int64)
		doc.TaxYear = &year
	}
	doc.ProcessingStatus = domain.ProcessingStatus(status)
	doc.ProcessingStartedAt = timePtr(startedAt)
	doc.ApprovedAt = timePtr(approved)
	doc.ArchivedAt = timePtr(archive)
	return &doc, nil
}

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

const engagementColumns = `id, client_name, client_email, tax_year, status, checklist, reconciliation, brief, created_at, updated_at`

type EngagementRepository struct {
	db *sql.DB
}

func NewEngagementRepository(db *sql.DB) *EngagementRepository {
	return &EngagementRepository{db: db}
}

func (r *EngagementRepository) Create(ctx context.Context, eng *domain.Engagement) error {
	args, err := engagementArgs(eng)
	if err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx, `
INSERT INTO engagements (`+engagementColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
`, args...); err != nil {
		return fmt.Errorf("insert engagement: %w", err)
	}
	return nil
}

func (r *EngagementRepository) GetByID(ctx context.Context, id string) (*domain.Engagement, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+engagementColumns+` FROM engagements WHERE id = $1`, id)
	eng, err := scanEngagement(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.WrapError(domain.ErrEngagementNotFound, "get engagement", fmt.Errorf("id=%s", id))
	}
	return eng, err
}

// Update locks the engagement row for the duration of mutate.
func (r *EngagementRepository) Update(ctx context.Context, id string, mutate ports.EngagementMutator) (*domain.Engagement, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin engagement tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	row := tx.QueryRowContext(ctx, `SELECT `+engagementColumns+` FROM engagements WHERE id = $1 FOR UPDATE`, id)
	eng, err := scanEngagement(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.WrapError(domain.ErrEngagementNotFound, "update engagement", fmt.Errorf("id=%s", id))
	}
	if err != nil {
		return nil, err
	}
	if err := mutate(eng); err != nil {
		return nil, err
	}
	eng.ID = id
	eng.UpdatedAt = time.Now().UTC()

	args, err := engagementArgs(eng)
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `
UPDATE engagements SET
	client_name = $2, client_email = $3, tax_year = $4, status = $5, checklist = $6,
	reconciliation = $7, brief = $8, created_at = $9, updated_at = $10
WHERE id = $1
`, args...); err != nil {
		return nil, fmt.Errorf("update engagement: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit engagement tx: %w", err)
	}
	return eng, nil
}

func engagementArgs(eng *domain.Engagement) ([]any, error) {
	items := eng.Checklist
	if items == nil {
		items = []domain.ChecklistItem{}
	}
	checklistJSON, err := marshalJSON(items, "checklist")
	if err != nil {
		return nil, err
	}
	var reconciliationJSON []byte
	if eng.Reconciliation != nil {
		if reconciliationJSON, err = marshalJSON(eng.Reconciliation, "reconciliation"); err != nil {
			return nil, err
		}
	}
	return []any{
		eng.ID, eng.ClientName, eng.ClientEmail, eng.TaxYear, string(eng.Status),
		checklistJSON, reconciliationJSON, eng.Brief, eng.CreatedAt, eng.UpdatedAt,
	}, nil
}

func scanEngagement(row rowScanner) (*domain.Engagement, error) {
	var (
		eng                        domain.Engagement
		status                     string
		checklistRaw, reconcileRaw []byte
	)
	err := row.Scan(&eng.ID, &eng.ClientName, &eng.ClientEmail, &eng.TaxYear, &status,
		&checklistRaw, &reconcileRaw, &eng.Brief, &eng.CreatedAt, &eng.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan engagement: %w", err)
	}

	eng.Status = domain.EngagementStatus(status)
	eng.Checklist = []domain.ChecklistItem{}
	if len(checklistRaw) > 0 {
		if err := json.Unmarshal(checklistRaw, &eng.Checklist); err != nil {
			return nil, fmt.Errorf("unmarshal checklist: %w", err)
		}
	}
	if len(reconcileRaw) > 0 {
		eng.Reconciliation = &domain.Reconciliation{}
		if err := json.Unmarshal(reconcileRaw, eng.Reconciliation); err != nil {
			return nil, fmt.Errorf("unmarshal reconciliation: %w", err)
		}
	}
	return &eng, nil
}

package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/formly/internal/core/domain"
)

type AuditLog struct {
	db *sql.DB
}

func NewAuditLog(db *sql.DB) *AuditLog {
	return &AuditLog{db: db}
}

func (l *AuditLog) Append(ctx context.Context, entry domain.AuditEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	details := entry.Details
	if details == nil {
		details = map[string]any{}
	}
	detailsJSON, err := marshalJSON(details, "audit details")
	if err != nil {
		return err
	}
	if _, err := l.db.ExecContext(ctx, `
INSERT INTO audit_log (id, engagement_id, action, trigger_kind, outcome, details, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
`, entry.ID, entry.EngagementID, entry.Action, string(entry.Trigger), entry.Outcome, detailsJSON, entry.CreatedAt); err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

// ListByEngagement returns the newest entries first.
func (l *AuditLog) ListByEngagement(ctx context.Context, engagementID string, limit int) ([]domain.AuditEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := l.db.QueryContext(ctx, `
SELECT id, engagement_id, action, trigger_kind, outcome, details, created_at
FROM audit_log
WHERE engagement_id = $1
ORDER BY created_at DESC
LIMIT $2
`, engagementID, limit)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	out := make([]domain.AuditEntry, 0)
	for rows.Next() {
		var (
			entry      domain.AuditEntry
			trigger    string
			detailsRaw []byte
		)
		if err := rows.Scan(&entry.ID, &entry.EngagementID, &entry.Action, &trigger, &entry.Outcome, &detailsRaw, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		entry.Trigger = domain.TriggerKind(trigger)
		if len(detailsRaw) > 0 {
			if err := json.Unmarshal(detailsRaw, &entry.Details); err != nil {
				return nil, fmt.Errorf("unmarshal audit details: %w", err)
			}
		}
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}
	return out, nil
}

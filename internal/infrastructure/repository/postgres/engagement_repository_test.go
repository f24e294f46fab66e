package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/kirillkom/formly/internal/core/domain"
)

func TestEngagementGetByIDNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewEngagementRepository(db)

	mock.ExpectQuery("SELECT id, client_name").WithArgs("missing").WillReturnError(sql.ErrNoRows)
	if _, err := repo.GetByID(context.Background(), "missing"); !domain.IsKind(err, domain.ErrEngagementNotFound) {
		t.Fatalf("expected ErrEngagementNotFound, got %v", err)
	}
}

func TestEngagementUpdatePersistsReconciliation(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewEngagementRepository(db)
	created := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").WithArgs("eng-1").WillReturnRows(
		sqlmock.NewRows([]string{"id", "client_name", "client_email", "tax_year", "status", "checklist", "reconciliation", "brief", "created_at", "updated_at"}).
			AddRow("eng-1", "Jane Doe", "", 2024, "collecting", []byte(`[{"id":"w2-acme","status":"pending","priority":"high","document_ids":[]}]`), nil, "", created, created),
	)
	mock.ExpectExec("UPDATE engagements SET").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	got, err := repo.Update(context.Background(), "eng-1", func(e *domain.Engagement) error {
		e.Status = domain.EngagementReady
		e.Reconciliation = &domain.Reconciliation{CompletionPercentage: 100, IsReady: true}
		return nil
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if got.Status != domain.EngagementReady || len(got.Checklist) != 1 || got.Checklist[0].ID != "w2-acme" {
		t.Fatalf("unexpected engagement: %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestAuditAppendAssignsID(t *testing.T) {
	db, mock := newMockDB(t)
	audit := NewAuditLog(db)

	mock.ExpectExec("INSERT INTO audit_log").
		WithArgs(sqlmock.AnyArg(), "eng-1", "engagement_ready", "document_assessed", "ready", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := audit.Append(context.Background(), domain.AuditEntry{
		EngagementID: "eng-1",
		Action:       "engagement_ready",
		Trigger:      domain.TriggerDocumentAssessed,
		Outcome:      "ready",
	})
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

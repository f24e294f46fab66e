package httpadapter

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kirillkom/formly/internal/config"
	"github.com/kirillkom/formly/internal/core/domain"
)

func TestReclassifyForwardsTypeAndNote(t *testing.T) {
	reviewer := &reviewerFake{}
	svc := testServices()
	svc.Reviewer = reviewer
	handler := NewRouter(config.Config{}, svc).Handler()

	req := httptest.NewRequest(http.MethodPost, "/v1/documents/doc-1/reclassify", bytes.NewBufferString(`{"document_type":"1099-INT","note":"bank form"}`))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if reviewer.lastType != "1099-INT" || reviewer.lastNote != "bank form" {
		t.Fatalf("unexpected reclassify args: %+v", reviewer)
	}
}

func TestReclassifyRequiresDocumentType(t *testing.T) {
	handler := newTestHandler(config.Config{})
	req := httptest.NewRequest(http.MethodPost, "/v1/documents/doc-1/reclassify", bytes.NewBufferString(`{"note":"x"}`))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestRetryForceFlag(t *testing.T) {
	reviewer := &reviewerFake{}
	svc := testServices()
	svc.Reviewer = reviewer
	handler := NewRouter(config.Config{}, svc).Handler()

	req := httptest.NewRequest(http.MethodPost, "/v1/documents/doc-1/retry", bytes.NewBufferString(`{"force":true}`))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusAccepted || !reviewer.lastForce {
		t.Fatalf("expected forced retry, got %d force=%v", res.Code, reviewer.lastForce)
	}
}

func TestApproveAndArchive(t *testing.T) {
	handler := newTestHandler(config.Config{})
	for _, path := range []string{"/v1/documents/doc-1/approve", "/v1/documents/doc-1/archive"} {
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, httptest.NewRequest(http.MethodPost, path, nil))
		if res.Code != http.StatusOK {
			t.Fatalf("%s expected 200, got %d", path, res.Code)
		}
	}
}

func TestArchivedDocumentConflict(t *testing.T) {
	svc := testServices()
	svc.Reviewer = &reviewerFake{err: domain.WrapError(domain.ErrConflict, "approve", errors.New("document is archived"))}
	handler := NewRouter(config.Config{}, svc).Handler()

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodPost, "/v1/documents/doc-1/approve", nil))
	if res.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", res.Code)
	}
}

func TestManualReconcileTrigger(t *testing.T) {
	reconciler := &reconcilerFake{}
	svc := testServices()
	svc.Reconciler = reconciler
	handler := NewRouter(config.Config{}, svc).Handler()

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodPost, "/v1/engagements/eng-1/reconcile", nil))
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if reconciler.trigger.Kind != domain.TriggerManual || !reconciler.trigger.IsFullScan() {
		t.Fatalf("expected manual full-scan trigger, got %+v", reconciler.trigger)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	handler := newTestHandler(config.Config{})
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodDelete, "/v1/documents/doc-1", nil))
	if res.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", res.Code)
	}
}

package httpadapter

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/kirillkom/formly/internal/config"
	"github.com/kirillkom/formly/internal/core/domain"
	"github.com/kirillkom/formly/internal/core/issues"
	"github.com/kirillkom/formly/internal/core/ports"
)

// Services are the inbound use cases the API exposes. Nil members disable
// their routes with 503.
type Services struct {
	Engagements ports.EngagementService
	Ingest      ports.DocumentIngestor
	Documents   ports.DocumentReader
	Reviewer    ports.DocumentReviewer
	Reconciler  ports.Reconciler
}

type Router struct {
	cfg config.Config
	svc Services
}

func NewRouter(cfg config.Config, svc Services) *Router {
	return &Router{cfg: cfg, svc: svc}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)

	mux.HandleFunc("POST /v1/engagements", rt.createEngagement)
	mux.HandleFunc("GET /v1/engagements/{id}", rt.getEngagement)
	mux.HandleFunc("GET /v1/engagements/{id}/documents", rt.listDocuments)
	mux.HandleFunc("POST /v1/engagements/{id}/documents", rt.uploadDocument)
	mux.HandleFunc("POST /v1/engagements/{id}/reconcile", rt.reconcile)

	mux.HandleFunc("GET /v1/documents/{id}", rt.getDocument)
	mux.HandleFunc("POST /v1/documents/{id}/approve", rt.approveDocument)
	mux.HandleFunc("POST /v1/documents/{id}/reclassify", rt.reclassifyDocument)
	mux.HandleFunc("POST /v1/documents/{id}/archive", rt.archiveDocument)
	mux.HandleFunc("POST /v1/documents/{id}/retry", rt.retryDocument)

	var handler http.Handler = mux
	handler = bearerAuthMiddleware(handler, rt.cfg.APIKey)
	handler = backpressureMiddleware(handler, rt.cfg.APIMaxInFlight, rt.cfg.APIBackpressureWait)
	handler = rateLimitMiddleware(handler, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst)
	handler = accessLogMiddleware(handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) createEngagement(w http.ResponseWriter, r *http.Request) {
	if rt.svc.Engagements == nil {
		writeUnavailable(w)
		return
	}
	var req domain.CreateEngagementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	eng, err := rt.svc.Engagements.Create(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, eng)
}

func (rt *Router) getEngagement(w http.ResponseWriter, r *http.Request) {
	if rt.svc.Engagements == nil {
		writeUnavailable(w)
		return
	}
	eng, err := rt.svc.Engagements.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, eng)
}

func (rt *Router) listDocuments(w http.ResponseWriter, r *http.Request) {
	if rt.svc.Engagements == nil {
		writeUnavailable(w)
		return
	}
	includeArchived, _ := strconv.ParseBool(r.URL.Query().Get("include_archived"))
	docs, err := rt.svc.Engagements.Documents(r.Context(), r.PathValue("id"), includeArchived)
	if err != nil {
		writeError(w, err)
		return
	}
	views := make([]documentView, 0, len(docs))
	for _, doc := range docs {
		views = append(views, newDocumentView(doc))
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": views})
}

func (rt *Router) uploadDocument(w http.ResponseWriter, r *http.Request) {
	if rt.svc.Ingest == nil {
		writeUnavailable(w)
		return
	}
	if rt.cfg.APIMaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, rt.cfg.APIMaxUploadBytes)
	}

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "upload exceeds size limit"})
			return
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart field 'file' is required"})
		return
	}
	defer file.Close()

	doc, err := rt.svc.Ingest.Upload(
		r.Context(),
		r.PathValue("id"),
		fileHeader.Filename,
		fileHeader.Header.Get("Content-Type"),
		file,
	)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, newDocumentView(doc))
}

func (rt *Router) reconcile(w http.ResponseWriter, r *http.Request) {
	if rt.svc.Reconciler == nil {
		writeUnavailable(w)
		return
	}
	result, err := rt.svc.Reconciler.Reconcile(r.Context(), r.PathValue("id"), domain.ReconcileTrigger{Kind: domain.TriggerManual})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// documentView adds the parsed issue list with suggested reviewer actions.
type documentView struct {
	*domain.Document
	IssueDetails []issues.View `json:"issue_details"`
}

func newDocumentView(doc *domain.Document) documentView {
	return documentView{Document: doc, IssueDetails: issues.Explain(doc.Issues)}
}

func (rt *Router) getDocument(w http.ResponseWriter, r *http.Request) {
	if rt.svc.Documents == nil {
		writeUnavailable(w)
		return
	}
	doc, err := rt.svc.Documents.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newDocumentView(doc))
}

func (rt *Router) approveDocument(w http.ResponseWriter, r *http.Request) {
	if rt.svc.Reviewer == nil {
		writeUnavailable(w)
		return
	}
	doc, err := rt.svc.Reviewer.Approve(r.Context(), r.PathValue("id"))
	rt.writeDocument(w, doc, err)
}

func (rt *Router) reclassifyDocument(w http.ResponseWriter, r *http.Request) {
	if rt.svc.Reviewer == nil {
		writeUnavailable(w)
		return
	}
	var req struct {
		DocumentType string `json:"document_type"`
		Note         string `json:"note"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(req.DocumentType) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "document_type is required"})
		return
	}
	doc, err := rt.svc.Reviewer.Reclassify(r.Context(), r.PathValue("id"), req.DocumentType, req.Note)
	rt.writeDocument(w, doc, err)
}

func (rt *Router) archiveDocument(w http.ResponseWriter, r *http.Request) {
	if rt.svc.Reviewer == nil {
		writeUnavailable(w)
		return
	}
	doc, err := rt.svc.Reviewer.Archive(r.Context(), r.PathValue("id"))
	rt.writeDocument(w, doc, err)
}

func (rt *Router) retryDocument(w http.ResponseWriter, r *http.Request) {
	if rt.svc.Reviewer == nil {
		writeUnavailable(w)
		return
	}
	var req struct {
		Force bool `json:"force"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
			return
		}
	}
	doc, err := rt.svc.Reviewer.Retry(r.Context(), r.PathValue("id"), req.Force)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, newDocumentView(doc))
}

func (rt *Router) writeDocument(w http.ResponseWriter, doc *domain.Document, err error) {
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newDocumentView(doc))
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeUnavailable(w http.ResponseWriter) {
	writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "service not configured"})
}

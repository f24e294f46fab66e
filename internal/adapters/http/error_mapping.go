package httpadapter

import (
	"log/slog"
	"net/http"

	"github.com/kirillkom/formly/internal/core/domain"
)

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrDocumentNotFound), domain.IsKind(err, domain.ErrEngagementNotFound):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrConflict), domain.IsKind(err, domain.ErrRetryExhausted):
		return http.StatusConflict
	case domain.IsKind(err, domain.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType
	case domain.IsKind(err, domain.ErrTemporary):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError hides internal error text behind a generic message.
func writeError(w http.ResponseWriter, err error) {
	status := mapErrorToHTTPStatus(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		slog.Error("http_handler_failed", "error", err)
		message = "internal error"
	}
	writeJSON(w, status, map[string]string{"error": message})
}

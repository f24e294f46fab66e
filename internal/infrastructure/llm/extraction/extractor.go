// Package extraction implements the field-extraction contract on top of any
// model that can complete a JSON prompt.
package extraction

import (
	"context"
	"log/slog"
	"time"

	"github.com/kirillkom/formly/internal/core/domain"
)

// Completer returns the raw model text for a JSON-mode prompt.
type Completer interface {
	CompleteJSON(ctx context.Context, prompt string) (string, error)
}

// Extractor never returns an error; every failure degrades to Fallback.
type Extractor struct {
	completer Completer
	timeout   time.Duration
}

func NewExtractor(completer Completer, timeout time.Duration) *Extractor {
	return &Extractor{completer: completer, timeout: timeout}
}

func (e *Extractor) Extract(ctx context.Context, req domain.ExtractionRequest) domain.ExtractionResult {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	raw, err := e.completer.CompleteJSON(ctx, BuildPrompt(req))
	if err != nil {
		slog.Warn("extraction_call_failed", "file_name", req.FileName, "error", err)
		return Fallback(err)
	}
	result, err := Parse(raw)
	if err != nil {
		slog.Warn("extraction_output_invalid", "file_name", req.FileName, "error", err)
		return Fallback(err)
	}
	return result
}

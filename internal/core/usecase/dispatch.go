package usecase

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/formly/internal/core/ports"
)

const DefaultBatchSize = 5

// DispatchReport lists per-document failures of a batch run.
type DispatchReport struct {
	Processed int
	Failed    map[string]error
}

// Dispatcher runs the pipeline for many documents with bounded
// concurrency. One document's failure never cancels its siblings.
type Dispatcher struct {
	processor ports.DocumentProcessor
	batchSize int
}

func NewDispatcher(processor ports.DocumentProcessor, batchSize int) *Dispatcher {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Dispatcher{processor: processor, batchSize: batchSize}
}

func (d *Dispatcher) Dispatch(ctx context.Context, documentIDs []string) DispatchReport {
	report := DispatchReport{Failed: map[string]error{}}
	var mu sync.Mutex

	// Errors are collected, never returned to the group.
	var g errgroup.Group
	g.SetLimit(d.batchSize)
	for _, id := range documentIDs {
		g.Go(func() error {
			if ctx.Err() != nil {
				mu.Lock()
				report.Failed[id] = ctx.Err()
				mu.Unlock()
				return nil
			}
			err := d.processor.ProcessByID(ctx, id)
			mu.Lock()
			defer mu.Unlock()
			report.Processed++
			if err != nil {
				report.Failed[id] = err
				slog.Warn("dispatch_document_failed", "document_id", id, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()
	return report
}

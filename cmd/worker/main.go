package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kirillkom/formly/internal/bootstrap"
	"github.com/kirillkom/formly/internal/config"
	"github.com/kirillkom/formly/internal/observability/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config_load_failed", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(logging.NewJSONLogger("worker", cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{Service: "worker", WithMetrics: true})
	if err != nil {
		slog.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           app.WorkerMetrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("worker_metrics_server_failed", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	go runRecovery(ctx, app, cfg.RecoveryInterval)

	slog.Info("worker_subscribed", "subject", cfg.NATSSubject, "classifier_mode", cfg.ClassifierMode)
	err = app.Queue.SubscribeDocumentQueued(ctx, func(handlerCtx context.Context, documentID string) error {
		return processDocument(handlerCtx, app, documentID)
	})
	if err != nil {
		slog.Error("worker_subscribe_failed", "error", err)
		os.Exit(1)
	}
}

func processDocument(ctx context.Context, app *bootstrap.App, documentID string) error {
	if doc, err := app.Documents.GetByID(ctx, documentID); err == nil {
		app.WorkerMetrics.ObserveQueueLag(time.Since(doc.UpdatedAt))
	}

	start := time.Now()
	app.WorkerMetrics.StartDocument()
	err := app.ProcessUC.ProcessByID(ctx, documentID)
	app.WorkerMetrics.FinishDocument(time.Since(start), err)
	return err
}

// runRecovery sweeps stuck documents until ctx is done.
func runRecovery(ctx context.Context, app *bootstrap.App, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			report, err := app.RecoveryUC.Recover(ctx, now.UTC())
			if err != nil {
				slog.Warn("stuck_recovery_sweep_failed", "error", err)
				continue
			}
			app.WorkerMetrics.ObserveRecovery(report)
		}
	}
}

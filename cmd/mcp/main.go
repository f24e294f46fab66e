package main

import (
	"context"
	"log/slog"
	"os"

	mcpadapter "github.com/kirillkom/formly/internal/adapters/mcp"
	"github.com/kirillkom/formly/internal/bootstrap"
	"github.com/kirillkom/formly/internal/config"
	"github.com/kirillkom/formly/internal/core/forms"
	"github.com/kirillkom/formly/internal/observability/logging"
)

// stdout carries the MCP protocol, so logs go to stderr.
func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config_load_failed", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(logging.NewJSONLoggerTo(os.Stderr, "mcp", cfg.LogLevel))

	registry := forms.Default()
	classifier, err := bootstrap.NewClassifier(context.Background(), cfg, registry)
	if err != nil {
		slog.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}

	server := mcpadapter.NewServer(classifier, registry)
	if err := server.ServeStdio(); err != nil {
		slog.Error("mcp_server_failed", "error", err)
		os.Exit(1)
	}
}

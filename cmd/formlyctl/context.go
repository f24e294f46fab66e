package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/kirillkom/formly/internal/bootstrap"
	"github.com/kirillkom/formly/internal/config"
	"github.com/kirillkom/formly/internal/observability/logging"
)

type commandContext struct {
	configFlag *string
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) loadConfig() (config.Config, error) {
	if c.configFlag != nil && *c.configFlag != "" {
		if err := os.Setenv("CONFIG_FILE", *c.configFlag); err != nil {
			return config.Config{}, err
		}
	}
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}
	slog.SetDefault(logging.NewJSONLoggerTo(os.Stderr, "formlyctl", cfg.LogLevel))
	return cfg, nil
}

// withApp bootstraps the full stack for one command. withQueue connects
// NATS so that recovered or retried documents can be republished.
func (c *commandContext) withApp(ctx context.Context, withQueue bool, fn func(*bootstrap.App) error) error {
	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{Service: "formlyctl", SkipQueue: !withQueue})
	if err != nil {
		return err
	}
	defer app.Close()
	return fn(app)
}

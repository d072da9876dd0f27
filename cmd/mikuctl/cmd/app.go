package cmd

import (
	"context"

	"github.com/Specifix5/mikushare/internal/app"
	"github.com/Specifix5/mikushare/internal/config"
	"github.com/Specifix5/mikushare/internal/logger"
)

// openApp loads configuration from the environment and wires the services
// the same way the server does.
func openApp(ctx context.Context) (*app.App, error) {
	cfg := config.Load()
	logger.Init(cfg.IsDevelopment(), "")
	return app.New(ctx, cfg)
}

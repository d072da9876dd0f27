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

	"github.com/Specifix5/mikushare/internal/app"
	"github.com/Specifix5/mikushare/internal/cli"
	"github.com/Specifix5/mikushare/internal/config"
	"github.com/Specifix5/mikushare/internal/logger"
	"github.com/Specifix5/mikushare/internal/routes"
	"github.com/Specifix5/mikushare/internal/scheduler"
)

func main() {
	cfg := config.Load()

	logger.Init(cfg.IsDevelopment(), cfg.SentryDSN)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := app.New(ctx, cfg)
	if err != nil {
		slog.Error("failed to initialize app", "error", err)
		os.Exit(1)
	}
	defer func() {
		closeErr := app.Close()
		if closeErr != nil {
			slog.Error("failed to close app", "error", closeErr)
		}
	}()

	err = app.Bootstrap(ctx)
	if err != nil {
		slog.Error("failed to bootstrap", "error", err)
		return
	}

	if cfg.InitCleanup {
		sweeper := scheduler.New("sweep", scheduler.Schedule{Align: time.Hour, Period: cfg.CleanupPeriod}, scheduler.RealClock,
			func(ctx context.Context) error {
				_, err := app.SweepService.Run(ctx)
				return err
			})
		go sweeper.Run(ctx)
	}

	if cfg.EnableConsole {
		go func() {
			services := cli.Services{Users: app.UserService, Sweep: app.SweepService}
			if cli.Console(ctx, os.Stdin, os.Stdout, services) {
				stop()
			}
		}()
	}

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           routes.SetupRoutes(app),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	go func() {
		slog.Info("server starting", "port", cfg.Port, "env", cfg.AppEnv, "url", cfg.BaseURL)
		err := server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err = server.Shutdown(shutdownCtx)
	if err != nil {
		slog.Error("server shutdown failed", "error", err)
	}
}

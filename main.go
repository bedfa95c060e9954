package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"docloom/internal/app"
	"docloom/internal/config"
	"docloom/internal/logger"
)

func main() {
	handler := logger.NewContextHandler(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(slog.New(handler))

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	deps, err := app.Bootstrap(cfg)
	if err != nil {
		slog.Error("bootstrap failed", "error", err)
		os.Exit(1)
	}
	defer deps.DB.Close()

	a, err := app.New(cfg, deps)
	if err != nil {
		slog.Error("failed to build application", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := a.BootstrapRegistry(ctx); err != nil {
		slog.Error("failed to bootstrap embedding registry", "error", err)
		os.Exit(1)
	}

	if cfg.EnableWorker {
		if err := a.StartWorkers(); err != nil {
			slog.Error("failed to start workers", "error", err)
			os.Exit(1)
		}
		defer a.StopWorkers()

		// Recover a missed midnight dispatch, then keep the daily loop.
		if _, err := a.Scheduler.RunStartupCatchupIfMissed(ctx); err != nil {
			slog.Error("startup catch-up failed", "error", err)
		}
		go a.Scheduler.Run(ctx)
	}

	if !cfg.EnableAPI {
		slog.Info("api disabled, running workers only")
		<-ctx.Done()
		return
	}

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.ServerPort),
		Handler: a.Routes(),
	}

	go func() {
		slog.Info("server starting", "port", cfg.ServerPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown failed", "error", err)
	}
}

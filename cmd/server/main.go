package main

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/mcoot/snakesgame/internal/api"
	"github.com/mcoot/snakesgame/internal/config"
	"github.com/mcoot/snakesgame/internal/factory"
)

func main() {
	// A .env file is optional; real deployments set the environment directly
	dotenvErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	if dotenvErr != nil && !errors.Is(dotenvErr, fs.ErrNotExist) {
		logger.Warn("could not load .env file", slog.String("error", dotenvErr.Error()))
	}

	app, err := factory.New(cfg.Factory(logger))
	if err != nil {
		logger.Error("failed to create application", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if app.AuthService.Enabled() {
		logger.Info("admin endpoints enabled", slog.String("username", cfg.AdminUsername))
	}

	if err := app.Start(); err != nil {
		logger.Error("failed to start background jobs", slog.String("error", err.Error()))
		os.Exit(1)
	}

	server := api.NewServer(app.Router(), cfg.Server(), logger)
	if err := server.Listen(); err != nil {
		logger.Error("failed to listen", slog.String("error", err.Error()))
		_ = app.Close()
		os.Exit(1)
	}

	// Handle graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		logger.Info("shutdown signal received")
		cancel()
	}()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	logger.Info("server started",
		slog.String("addr", server.Addr()),
		slog.String("storage", app.StorageType),
	)

	exitCode := 0
	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("server error", slog.String("error", err.Error()))
			exitCode = 1
		}
	case <-ctx.Done():
		if err := server.Shutdown(context.Background()); err != nil {
			logger.Error("shutdown error", slog.String("error", err.Error()))
			exitCode = 1
		}
	}

	if err := app.Close(); err != nil {
		logger.Error("failed to release resources", slog.String("error", err.Error()))
		exitCode = 1
	}

	logger.Info("server stopped")
	os.Exit(exitCode)
}

func newLogger(cfg config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}
	if cfg.LogFormat == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

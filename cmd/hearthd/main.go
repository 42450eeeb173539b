// Package main is the hearthd entry point: it boots the runtime kernel,
// registers the built-in modules, and serves the HTTP gateway until a
// shutdown signal arrives.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/hearthd/hearthd/modules/adminmod"
	"github.com/hearthd/hearthd/modules/authmod"
	"github.com/hearthd/hearthd/modules/logmod"
	"github.com/hearthd/hearthd/modules/reqlogmod"
	"github.com/hearthd/hearthd/pkg/config"
	"github.com/hearthd/hearthd/pkg/kernel"
	"github.com/hearthd/hearthd/pkg/module"
)

func main() {
	var (
		configFile string
		listenAddr string
	)
	flag.StringVar(&configFile, "config", "", "Path to config file (optional; HEARTH_* env vars override)")
	flag.StringVar(&listenAddr, "listen", "", "Address to listen on (overrides config)")
	flag.Parse()

	cfg, err := config.Load(configFile)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if listenAddr != "" {
		cfg.ListenAddr = listenAddr
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	logger.Info("starting hearthd",
		"environment", cfg.Environment,
		"listen", cfg.ListenAddr,
		"storage", cfg.StorageBackend,
		"plugins_dir", cfg.PluginsDir,
	)

	rt, err := kernel.New(cfg, logger)
	if err != nil {
		logger.Error("failed to create runtime", "error", err)
		os.Exit(1)
	}

	rt.RegisterBuiltin(logmod.New(rt.Requests()), module.Required)
	rt.RegisterBuiltin(reqlogmod.New(rt.Requests(), rt.Policy()), module.Required)
	rt.RegisterBuiltin(authmod.New(rt.Auth()), module.Required)
	rt.RegisterBuiltin(adminmod.New(rt), module.Optional)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig.String())
		cancel()
	}()

	if err := rt.Start(ctx); err != nil {
		logger.Error("failed to start runtime", "error", err)
		os.Exit(1)
	}

	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: rt.BuildGateway(),
	}

	go func() {
		logger.Info("hearthd ready", "listen", cfg.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if err := rt.Shutdown(shutdownCtx); err != nil {
		logger.Error("runtime shutdown error", "error", err)
	}

	logger.Info("hearthd stopped")
}

// newLogger builds the process logger from the configured format and level.
func newLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

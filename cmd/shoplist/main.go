package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"shoplist/internal/backend"
	"shoplist/internal/cache"
	"shoplist/internal/cli"
	apphttp "shoplist/internal/http"
	"shoplist/internal/log"
)

func main() {
	cli.LoadEnvFile()

	cfg, err := cli.LoadAndValidateConfig()
	if err != nil {
		log.New(log.DefaultConfig()).Error("Startup failed", log.FieldError, err)
		os.Exit(1)
	}
	logger := cli.SetupLogger(cfg, log.ComponentApp, os.Stdout)

	ctx, stop := cli.GracefulShutdown(logger)
	defer stop()

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		cli.Fatal(logger, "Invalid backend configuration", err)
	}
	be, err := backend.NewFactory(logger).CreateBackend(ctx, backendCfg)
	if err != nil {
		cli.Fatal(logger, "Failed to initialize backend", err, "backend", cfg.DataBackend)
	}
	defer func() {
		if err := be.Cleanup(); err != nil {
			logger.Error("Backend cleanup failed", log.FieldError, err)
		}
	}()

	caches := cache.NewManager()
	caches.Register(be.Users.Cache())
	caches.StartCleanup(10 * time.Minute)
	defer caches.Stop()

	checks := map[string]apphttp.Pinger{"storage": be.Store}
	if be.Events != nil {
		checks["amqp"] = be.Events
	}

	srv := apphttp.NewServer(":"+cfg.Port, be.Lists, be.Users, apphttp.Options{
		RateLimitRPM:   cfg.RateLimitRPM,
		TrustedProxies: cfg.TrustedProxies,
		Logger:         logger,
		Checks:         checks,
	})

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Starting shoplist server",
			"port", cfg.Port,
			"backend", cfg.DataBackend,
			"events_enabled", be.Events != nil)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", log.FieldError, err)
	}
	logger.Info("Server stopped gracefully", log.FieldOperation, log.OpShutdown)
}

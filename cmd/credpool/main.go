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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	_ "golang.org/x/crypto/x509roots/fallback" // Embed CA certs for scratch container

	"github.com/ericfisherdev/credpool/internal/adapter/driven/backend"
	"github.com/ericfisherdev/credpool/internal/adapter/driven/events"
	"github.com/ericfisherdev/credpool/internal/adapter/driven/upstream"
	httphandler "github.com/ericfisherdev/credpool/internal/adapter/driving/http"
	"github.com/ericfisherdev/credpool/internal/application"
	"github.com/ericfisherdev/credpool/internal/config"
	"github.com/ericfisherdev/credpool/internal/domain/port/driven"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load configuration (fail fast on invalid settings).
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	slog.Info("config loaded",
		"listen_addr", cfg.ListenAddr,
		"store", cfg.Store,
		"admin_enabled", cfg.AdminEnabled(),
		"upstream_url", cfg.UpstreamURL,
		"redis_enabled", cfg.HasRedis(),
	)

	// 2. Setup signal-based context (SIGINT, SIGTERM).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Open the credential store and apply migrations.
	store, err := backend.Open(ctx, cfg, slog.Default())
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			slog.Error("error closing credential store", "error", closeErr)
		}
	}()

	// 4. Wire the event publisher (Redis when configured, log otherwise).
	var publisher driven.EventPublisher = events.NewLogPublisher(slog.Default())
	if cfg.HasRedis() {
		redisPub, err := events.NewRedisPublisher(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisChannel, slog.Default())
		if err != nil {
			return err
		}
		defer func() { _ = redisPub.Close() }()
		publisher = redisPub
		slog.Info("redis event publisher connected", "channel", cfg.RedisChannel)
	}

	// 5. Create the upstream client and seed the rotation pool.
	upstreamClient := upstream.NewClient(cfg.UpstreamURL, cfg.UpstreamTimeout, cfg.UpstreamRPS, slog.Default())
	pool := application.NewRotationPool(store, upstreamClient, slog.Default(),
		application.WithFailureThreshold(cfg.FailureThreshold),
	)
	if err := pool.Load(ctx); err != nil {
		return err
	}

	// 6. Create the admin service.
	adminSvc := application.NewAdminService(pool, publisher, slog.Default())

	// 7. Register metrics and HTTP routes.
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := httphandler.NewMetrics(reg)
	httphandler.RegisterPoolGauges(reg, adminSvc)

	apiHandler := httphandler.NewHandler(adminSvc, metrics, slog.Default())
	handler := httphandler.NewServeMux(apiHandler, httphandler.ServerOptions{
		AdminAPIKey: cfg.AdminAPIKey,
		Gatherer:    reg,
	}, slog.Default())

	if !cfg.AdminEnabled() {
		slog.Warn("admin api key not set, admin routes disabled")
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      cfg.UpstreamTimeout + 15*time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.Info("http server starting", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "error", err)
			stop()
		}
	}()

	// 8. Log startup complete.
	snap := pool.LiveSnapshot()
	slog.Info("credpool started",
		"listen_addr", cfg.ListenAddr,
		"credentials", len(snap.Entries),
		"available", snap.Available,
		"current", snap.CurrentID,
	)

	// 9. Wait for shutdown signal.
	<-ctx.Done()
	slog.Info("shutting down")

	// 10. Graceful shutdown with 10s timeout for in-flight requests.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}

	// 11. Log shutdown complete.
	slog.Info("shutdown complete")
	return nil
}

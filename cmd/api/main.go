package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/gigmarket-backend/api/routes"
	"github.com/angelmondragon/gigmarket-backend/internal/bootstrap"
	"github.com/angelmondragon/gigmarket-backend/pkg/db"
	"github.com/angelmondragon/gigmarket-backend/pkg/env"
	"github.com/angelmondragon/gigmarket-backend/pkg/metrics"
	"github.com/angelmondragon/gigmarket-backend/pkg/migrate"
	"github.com/angelmondragon/gigmarket-backend/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

func main() {
	proc := bootstrap.Start("api")
	cfg, logg := proc.Config, proc.Logger
	ctx, stop := proc.SignalContext()
	defer stop()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	proc.Require(ctx, "database", err)
	defer proc.Close("database", dbClient.Close)
	proc.Require(ctx, "dev migrations", migrate.MaybeRunDev(ctx, cfg, logg, dbClient))

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	proc.Require(ctx, "redis", err)
	defer proc.Close("redis", redisClient.Close)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	app, err := buildApp(ctx, appParams{
		Config:          cfg,
		Logger:          logg,
		DB:              dbClient,
		Redis:           redisClient,
		HTTPMetrics:     metrics.NewHTTPMetrics(registry),
		RealtimeMetrics: metrics.NewRealtimeMetrics(registry),
		MetricsHandler:  promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	})
	proc.Require(ctx, "api services", err)
	defer app.Close()

	go func() {
		if err := app.Deps.Hub.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logg.Error(ctx, "realtime hub stopped", err)
		}
	}()

	// PORT is injected by the hosting platform and wins over config.
	server := &http.Server{
		Addr:              ":" + env.Get("PORT", cfg.App.Port),
		Handler:           routes.NewRouter(cfg, logg, app.Deps),
		ReadHeaderTimeout: 10 * time.Second,
	}
	runCtx := logg.WithField(ctx, "addr", server.Addr)
	logg.Info(runCtx, "starting api server")

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(runCtx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		logg.Info(runCtx, "shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(runCtx, "api server shutdown failed", err)
		}
	}
}

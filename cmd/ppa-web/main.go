package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"personal-analytics/internal/analytics"
	"personal-analytics/internal/cli"
	"personal-analytics/internal/etl"
	"personal-analytics/internal/forecast"
	apphttp "personal-analytics/internal/http"
	"personal-analytics/internal/log"
	"personal-analytics/internal/normalize"
)

func main() {
	cfg, err := cli.LoadAndValidateConfig()
	if err != nil {
		log.FromContext(context.Background()).Error("Configuration validation failed", log.FieldError, err.Error())
		os.Exit(1)
	}

	logger, err := cli.SetupLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.FromContext(context.Background()).Error("Invalid log configuration", log.FieldError, err.Error())
		os.Exit(1)
	}

	store, err := cli.OpenStore(logger, cfg)
	if err != nil {
		os.Exit(1)
	}
	defer store.Close()

	m := cli.SetupMetrics(cfg)
	opts := []etl.Option{
		etl.WithLogger(logger.WithComponent(log.ComponentETL)),
		etl.WithMetrics(m),
		etl.WithMaxSkipSamples(cfg.MaxSkipSamples),
	}
	if client := cli.DialAMQP(logger, cfg); client != nil {
		defer client.Close()
		opts = append(opts, etl.WithNotifier(client))
	}

	loader := etl.NewLoader(store, normalize.New(store.Location()), opts...)
	aggregator := analytics.NewAggregator(store, store.Location(),
		analytics.WithLogger(logger.WithComponent(log.ComponentAggregator)))

	srv := apphttp.NewServer(cfg.WebAddr, apphttp.Dependencies{
		Inserter:   loader,
		Reader:     store,
		Health:     store,
		Aggregator: aggregator,
		Forecaster: forecast.New(),
		Metrics:    m,
		Logger:     logger,
		Horizon:    cfg.ForecastHorizon,
	})

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(shutdownCtx context.Context) {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err.Error())
		}
	})

	logger.Info("Starting web server", "addr", cfg.WebAddr, "db", cfg.DBPath, log.FieldOperation, log.OpStartup)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err.Error(), "addr", cfg.WebAddr)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}

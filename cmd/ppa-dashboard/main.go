package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"personal-analytics/internal/amqp"
	"personal-analytics/internal/analytics"
	"personal-analytics/internal/cli"
	"personal-analytics/internal/dashboard"
	"personal-analytics/internal/forecast"
	"personal-analytics/internal/log"
)

const reconnectDelay = 5 * time.Second

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

	dash, err := dashboard.NewServer(cfg.DashboardAddr, dashboard.Dependencies{
		Aggregator: analytics.NewAggregator(store, store.Location(),
			analytics.WithLogger(logger.WithComponent(log.ComponentAggregator))),
		Forecaster: forecast.New(),
		Health:     store,
		Metrics:    cli.SetupMetrics(cfg),
		Logger:     logger,
		CacheSize:  cfg.CacheSize,
		CacheTTL:   cfg.CacheTTL,
		Horizon:    cfg.ForecastHorizon,
	})
	if err != nil {
		logger.Error("Failed to create dashboard", log.FieldError, err.Error())
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Starting dashboard", "addr", cfg.DashboardAddr, log.FieldOperation, log.OpStartup)
		if err := dash.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down dashboard", log.FieldOperation, log.OpShutdown)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return dash.Shutdown(shutdownCtx)
	})

	if client := cli.DialAMQP(logger, cfg); client != nil {
		defer client.Close()
		g.Go(func() error {
			consume(gctx, client, dash, logger)
			return nil
		})
	} else {
		logger.Info("No ETL events, dashboard views expire after the cache TTL", "ttl", cfg.CacheTTL)
	}

	if err := g.Wait(); err != nil {
		logger.Error("Dashboard stopped with error", log.FieldError, err.Error())
		os.Exit(1)
	}
	logger.Info("Dashboard stopped gracefully")
}

// consume feeds ETL completion events to the dashboard until ctx is done,
// reconnecting after broker failures.
func consume(ctx context.Context, client *amqp.Client, dash *dashboard.Server, logger *log.Logger) {
	for {
		err := client.ConsumeETLCompleted(ctx, dash.HandleETLCompleted)
		if ctx.Err() != nil {
			return
		}
		logger.Warn("ETL event consumer stopped, retrying",
			log.FieldError, err.Error(), "delay", reconnectDelay, log.FieldOperation, log.OpConsume)

		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectDelay):
		}
	}
}

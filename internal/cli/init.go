// Package cli holds process bootstrap shared by cmd/ppa, cmd/ppa-web and
// cmd/ppa-dashboard, and the cobra commands of the ppa binary.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"personal-analytics/internal/amqp"
	"personal-analytics/internal/config"
	"personal-analytics/internal/log"
	"personal-analytics/internal/metrics"
	"personal-analytics/internal/sources"
	"personal-analytics/internal/sources/google"
	"personal-analytics/internal/storage"
)

// SetupLogger builds the process logger on stdout and installs it as the slog default.
func SetupLogger(level, format string) (*log.Logger, error) {
	return newLogger(level, format, os.Stdout)
}

func newLogger(level, format string, w io.Writer) (*log.Logger, error) {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	cfg := log.DefaultConfig()
	cfg.Level = lvl
	cfg.Format = format
	cfg.Output = w
	logger := log.New(cfg)
	log.SetDefault(logger)
	return logger, nil
}

// LoadEnvFile loads .env for local development. A missing file is fine.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig reads .env, then the layered configuration, and validates it.
func LoadAndValidateConfig() (*config.Config, error) {
	LoadEnvFile()
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// OpenStore opens the SQLite store at cfg.DBPath in the configured timezone.
func OpenStore(logger *log.Logger, cfg *config.Config) (*storage.SQLiteStore, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", cfg.Timezone, err)
	}
	store, err := storage.NewSQLiteStore(cfg.DBPath, loc)
	if err != nil {
		logger.Error("Failed to open store", log.FieldError, err.Error(), "path", cfg.DBPath)
		return nil, err
	}
	return store, nil
}

// SetupMetrics returns the process metrics manager. Disabled metrics still
// yield a usable manager whose Record methods are no-ops.
func SetupMetrics(cfg *config.Config) *metrics.Manager {
	return metrics.NewManager(metrics.WithMetricsEnabled(cfg.MetricsEnabled))
}

// DialAMQP connects to the broker when one is configured. It returns nil when
// AMQP is disabled or unreachable; callers then run without events.
func DialAMQP(logger *log.Logger, cfg *config.Config) *amqp.Client {
	if cfg.AMQPURL == "" {
		logger.Debug("AMQP disabled, ETL completion events are not published")
		return nil
	}
	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue,
		amqp.WithLogger(logger.WithComponent(log.ComponentAMQP)))
	if err != nil {
		logger.Warn("AMQP unavailable, continuing without events", log.FieldError, err.Error())
		return nil
	}
	return client
}

// Sources lists the inputs of an ETL run: the two CSV files, then any
// configured spreadsheet ranges.
func Sources(ctx context.Context, cfg *config.Config) ([]sources.Source, error) {
	srcs := []sources.Source{
		sources.NewCSVFile(cfg.TasksPath(), sources.KindTasks),
		sources.NewCSVFile(cfg.FinancePath(), sources.KindExpenses),
	}
	if !cfg.SheetsEnabled() {
		return srcs, nil
	}

	client, err := google.New(ctx, google.Config{
		SpreadsheetID:   cfg.GoogleSpreadsheetID,
		CredentialsJSON: cfg.GoogleCredentialsJSON,
		CredentialsFile: cfg.GoogleCredentialsFile,
	})
	if err != nil {
		return nil, fmt.Errorf("google sheets: %w", err)
	}
	if cfg.GoogleTasksRange != "" {
		srcs = append(srcs, client.Range(cfg.GoogleTasksRange, sources.KindTasks))
	}
	if cfg.GoogleExpensesRange != "" {
		srcs = append(srcs, client.Range(cfg.GoogleExpensesRange, sources.KindExpenses))
	}
	return srcs, nil
}

// GracefulShutdown returns a context cancelled on SIGINT or SIGTERM. After the
// signal, cleanup runs with a context bounded by timeout and done is closed.
func GracefulShutdown(logger *log.Logger, timeout time.Duration, cleanup func(context.Context)) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigChan)

		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String(), log.FieldOperation, log.OpShutdown)
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
		defer shutdownCancel()
		if cleanup != nil {
			cleanup(shutdownCtx)
		}
		if shutdownCtx.Err() != nil {
			logger.Warn("Shutdown timeout reached")
		} else {
			logger.Info("Shutdown complete")
		}
		close(done)
	}()

	return ctx, done
}

// WaitForShutdown blocks until the signal context is cancelled and cleanup finished.
func WaitForShutdown(ctx context.Context, done <-chan struct{}) {
	<-ctx.Done()
	<-done
}

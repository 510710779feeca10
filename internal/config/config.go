// Package config holds process configuration for the CLI, the web server and the dashboard.
package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

type Config struct {
	// Store and data files
	DBPath      string `koanf:"db_path"`
	DataDir     string `koanf:"data_dir"`
	TasksFile   string `koanf:"tasks_file"`
	FinanceFile string `koanf:"finance_file"`
	Timezone    string `koanf:"timezone"`

	// HTTP servers
	WebAddr       string `koanf:"web_addr"`
	DashboardAddr string `koanf:"dashboard_addr"`

	// AMQP. An empty URL disables ETL completion events.
	AMQPURL      string `koanf:"amqp_url"`
	AMQPExchange string `koanf:"amqp_exchange"`
	AMQPQueue    string `koanf:"amqp_queue"`

	// Logging
	LogLevel  string `koanf:"log_level"`
	LogFormat string `koanf:"log_format"`

	// ETL
	MaxSkipSamples int `koanf:"max_skip_samples"`

	// Forecast
	ForecastHorizon int `koanf:"forecast_horizon"`

	// Dashboard summary cache
	CacheSize int           `koanf:"cache_size"`
	CacheTTL  time.Duration `koanf:"cache_ttl"`

	// Google Sheets. Both ranges are optional.
	GoogleSpreadsheetID   string `koanf:"google_spreadsheet_id"`
	GoogleTasksRange      string `koanf:"google_tasks_range"`
	GoogleExpensesRange   string `koanf:"google_expenses_range"`
	GoogleCredentialsFile string `koanf:"google_credentials_file"`
	GoogleCredentialsJSON string `koanf:"google_credentials_json"`

	MetricsEnabled bool `koanf:"metrics_enabled"`
}

// New returns a Config populated with defaults.
func New() *Config {
	return &Config{
		DBPath:          "data/analytics.db",
		DataDir:         "data",
		TasksFile:       "tasks.csv",
		FinanceFile:     "finance.csv",
		Timezone:        "Local",
		WebAddr:         ":8081",
		DashboardAddr:   ":8082",
		AMQPExchange:    "ppa",
		AMQPQueue:       "etl_completed",
		LogLevel:        "info",
		LogFormat:       "text",
		MaxSkipSamples:  5,
		ForecastHorizon: 1,
		CacheSize:       64,
		CacheTTL:        5 * time.Minute,
		MetricsEnabled:  true,
	}
}

// TasksPath is the tasks CSV path, resolved against DataDir unless absolute.
func (c *Config) TasksPath() string {
	return c.dataPath(c.TasksFile)
}

// FinancePath is the expenses CSV path, resolved against DataDir unless absolute.
func (c *Config) FinancePath() string {
	return c.dataPath(c.FinanceFile)
}

func (c *Config) dataPath(name string) string {
	if name == "" || filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(c.DataDir, name)
}

// Location resolves Timezone. Timestamps without an offset are read in this location.
func (c *Config) Location() (*time.Location, error) {
	switch c.Timezone {
	case "", "Local":
		return time.Local, nil
	case "UTC":
		return time.UTC, nil
	}
	return time.LoadLocation(c.Timezone)
}

// SheetsEnabled reports whether any Google Sheets range should be read.
func (c *Config) SheetsEnabled() bool {
	return c.GoogleSpreadsheetID != "" && (c.GoogleTasksRange != "" || c.GoogleExpensesRange != "")
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if c.DBPath == "" {
		errors = append(errors, "database path cannot be empty")
	} else {
		dir := filepath.Dir(c.DBPath)
		if dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					errors = append(errors, fmt.Sprintf("cannot create database directory '%s': %v", dir, err))
				}
			}
		}
	}

	if c.TasksFile == "" {
		errors = append(errors, "tasks file cannot be empty")
	}
	if c.FinanceFile == "" {
		errors = append(errors, "finance file cannot be empty")
	}

	if _, err := c.Location(); err != nil {
		errors = append(errors, fmt.Sprintf("invalid timezone '%s': %v", c.Timezone, err))
	}

	if msg := validateAddr("web", c.WebAddr); msg != "" {
		errors = append(errors, msg)
	}
	if msg := validateAddr("dashboard", c.DashboardAddr); msg != "" {
		errors = append(errors, msg)
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be one of debug, info, warn, error", c.LogLevel))
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be 'text' or 'json'", c.LogFormat))
	}

	if c.MaxSkipSamples < 0 {
		errors = append(errors, fmt.Sprintf("invalid max skip samples %d: must not be negative", c.MaxSkipSamples))
	}
	if c.ForecastHorizon < 1 || c.ForecastHorizon > 24 {
		errors = append(errors, fmt.Sprintf("invalid forecast horizon %d: must be between 1 and 24", c.ForecastHorizon))
	}
	if c.CacheSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid cache size %d: must be at least 1", c.CacheSize))
	}
	if c.CacheTTL < time.Second {
		errors = append(errors, fmt.Sprintf("invalid cache ttl %v: must be at least 1 second", c.CacheTTL))
	}

	if c.GoogleSpreadsheetID != "" && c.GoogleCredentialsJSON == "" && c.GoogleCredentialsFile != "" {
		if _, err := os.Stat(c.GoogleCredentialsFile); os.IsNotExist(err) {
			errors = append(errors, fmt.Sprintf("Google credentials file does not exist: %s", c.GoogleCredentialsFile))
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

func validateAddr(name, addr string) string {
	if addr == "" {
		return fmt.Sprintf("%s address cannot be empty", name)
	}
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return fmt.Sprintf("invalid %s address '%s': %v", name, addr, err)
	}
	return ""
}

package cli

import (
	"context"
	"io"
	"time"

	"github.com/spf13/cobra"

	"personal-analytics/internal/analytics"
	"personal-analytics/internal/config"
	"personal-analytics/internal/etl"
	"personal-analytics/internal/forecast"
	"personal-analytics/internal/log"
	"personal-analytics/internal/normalize"
	"personal-analytics/internal/storage"
)

const defaultTimeout = 60 * time.Second

// RootCommand represents the base command when called without any subcommands
type RootCommand struct {
	cmd     *cobra.Command
	config  *config.Config
	logger  *log.Logger
	timeout time.Duration
	now     func() time.Time
}

// NewRootCommand creates the root cobra command with global flags
func NewRootCommand(cfg *config.Config) *RootCommand {
	root := &RootCommand{
		config:  cfg,
		timeout: defaultTimeout,
		now:     time.Now,
	}

	root.cmd = &cobra.Command{
		Use:   "ppa",
		Short: "Personal productivity and finance analytics",
		Long: `ppa loads task and expense records into a layered SQLite store and
reports on them.

EXAMPLES:
  ppa etl                                   # Load data/tasks.csv and data/finance.csv
  ppa etl --full-reload                     # Load, then rebuild staging and curated from raw
  ppa report --period 30d                   # Productivity, finance and forecast
  ppa fin --period today                    # Today's spending
  ppa forecast --horizon 3                  # Project the next 3 months of spending
  ppa add-task --title "Review" --category professional --duration 45
  ppa add-expense --category groceries --amount 12.50

CONFIGURATION:
  Flags override PPA_* environment variables, which override PPA_CONFIG (YAML).
    PPA_DB_PATH                             SQLite file (default: data/analytics.db)
    PPA_DATA_DIR                            CSV directory (default: data)
    PPA_TIMEZONE                            Timezone for dates and periods (default: UTC)
    PPA_AMQP_URL                            Publish ETL completion events when set

PERIODS:
  all, today, or a window of N days such as 7d, 30d, 365d`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := root.getConfigFromFlags(); err != nil {
				return err
			}
			return root.setupLogger(cmd.ErrOrStderr())
		},
	}

	root.addGlobalFlags()
	root.addSubcommands()

	return root
}

// Execute runs the root command
func (r *RootCommand) Execute() error {
	return r.cmd.Execute()
}

func (r *RootCommand) addGlobalFlags() {
	flags := r.cmd.PersistentFlags()
	flags.String("db", "", "SQLite database path (overrides PPA_DB_PATH)")
	flags.String("data-dir", "", "Directory of tasks.csv and finance.csv (overrides PPA_DATA_DIR)")
	flags.String("timezone", "", "IANA timezone (overrides PPA_TIMEZONE)")
	flags.String("log-level", "", "debug, info, warn or error (overrides PPA_LOG_LEVEL)")
	flags.String("log-format", "", "text or json (overrides PPA_LOG_FORMAT)")
	flags.Duration("timeout", 0, "Command timeout (default 60s)")
}

func (r *RootCommand) getConfigFromFlags() error {
	flags := r.cmd.PersistentFlags()
	for name, dst := range map[string]*string{
		"db":         &r.config.DBPath,
		"data-dir":   &r.config.DataDir,
		"timezone":   &r.config.Timezone,
		"log-level":  &r.config.LogLevel,
		"log-format": &r.config.LogFormat,
	} {
		if !flags.Changed(name) {
			continue
		}
		v, err := flags.GetString(name)
		if err != nil {
			return err
		}
		*dst = v
	}
	if flags.Changed("timeout") {
		d, err := flags.GetDuration("timeout")
		if err != nil {
			return err
		}
		r.timeout = d
	}
	return r.config.Validate()
}

func (r *RootCommand) setupLogger(w io.Writer) error {
	logger, err := newLogger(r.config.LogLevel, r.config.LogFormat, w)
	if err != nil {
		return err
	}
	r.logger = logger
	return nil
}

func (r *RootCommand) getAppTimeout() time.Duration {
	if r.timeout <= 0 {
		return defaultTimeout
	}
	return r.timeout
}

// session is what a command needs from the store.
type session struct {
	store      *storage.SQLiteStore
	loader     *etl.Loader
	aggregator *analytics.Aggregator
	forecaster *forecast.Forecaster
	close      func()
}

func (r *RootCommand) open() (*session, error) {
	logger := r.logger
	if logger == nil {
		logger = log.FromContext(context.Background())
	}
	store, err := OpenStore(logger, r.config)
	if err != nil {
		return nil, err
	}

	normalizer := normalize.New(store.Location())
	opts := []etl.Option{
		etl.WithLogger(logger.WithComponent(log.ComponentETL)),
		etl.WithMaxSkipSamples(r.config.MaxSkipSamples),
		etl.WithClock(r.now),
	}
	client := DialAMQP(logger, r.config)
	if client != nil {
		opts = append(opts, etl.WithNotifier(client))
	}

	return &session{
		store:  store,
		loader: etl.NewLoader(store, normalizer, opts...),
		aggregator: analytics.NewAggregator(store, store.Location(),
			analytics.WithClock(r.now),
			analytics.WithLogger(logger.WithComponent(log.ComponentAggregator))),
		forecaster: forecast.New(),
		close: func() {
			if client != nil {
				client.Close()
			}
			store.Close()
		},
	}, nil
}

// run opens a session and calls fn with a context bounded by the app timeout.
func (r *RootCommand) run(fn func(ctx context.Context, s *session) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), r.getAppTimeout())
	defer cancel()

	s, err := r.open()
	if err != nil {
		return err
	}
	defer s.close()
	return fn(ctx, s)
}

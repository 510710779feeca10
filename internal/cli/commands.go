package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"personal-analytics/internal/analytics"
	"personal-analytics/internal/core"
	"personal-analytics/internal/etl"
	"personal-analytics/internal/forecast"
	"personal-analytics/internal/normalize"
	"personal-analytics/internal/report"
	"personal-analytics/internal/sources"
)

// ErrAllFailed is returned by etl and reload when no file loaded.
var ErrAllFailed = errors.New("every source failed")

// addSubcommands adds all CLI subcommands to the root command
func (r *RootCommand) addSubcommands() {
	r.cmd.AddCommand(
		r.etlCommand(),
		r.reloadCommand(),
		r.summaryCommand("report", "Productivity, finance and forecast for a period", r.writeReport),
		r.summaryCommand("prod", "Productivity KPIs for a period", r.writeProductivity),
		r.summaryCommand("fin", "Spending for a period", r.writeFinance),
		r.forecastCommand(),
		r.addTaskCommand(),
		r.addExpenseCommand(),
	)
}

func (r *RootCommand) etlCommand() *cobra.Command {
	var fullReload bool
	cmd := &cobra.Command{
		Use:   "etl",
		Short: "Load the CSV files and configured spreadsheet ranges",
		Long: `Load every source into the raw layer, then validate, deduplicate and upsert
into staging and curated. With --full-reload, staging and curated are then
rebuilt from the whole raw layer.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.run(func(ctx context.Context, s *session) error {
				srcs, err := Sources(ctx, r.config)
				if err != nil {
					return err
				}
				res := s.loader.Run(ctx, srcs)
				report.Run(cmd.OutOrStdout(), res)
				if res.AllFailed() {
					return ErrAllFailed
				}
				if !fullReload {
					return nil
				}
				return reload(ctx, cmd.OutOrStdout(), s.loader)
			})
		},
	}
	cmd.Flags().BoolVar(&fullReload, "full-reload", false, "Rebuild staging and curated from the raw layer after loading")
	return cmd
}

func (r *RootCommand) reloadCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "reload",
		Short: "Rebuild staging and curated from the raw layer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.run(func(ctx context.Context, s *session) error {
				return reload(ctx, cmd.OutOrStdout(), s.loader)
			})
		},
	}
}

func reload(ctx context.Context, w io.Writer, loader *etl.Loader) error {
	res, err := loader.Reload(ctx)
	if err != nil {
		return err
	}
	report.Run(w, res)
	if res.AllFailed() {
		return ErrAllFailed
	}
	return nil
}

type summaryWriter func(ctx context.Context, w io.Writer, s *session, summary analytics.Summary) error

func (r *RootCommand) summaryCommand(use, short string, write summaryWriter) *cobra.Command {
	var period string
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := analytics.ParsePeriod(period)
			if err != nil {
				return err
			}
			return r.run(func(ctx context.Context, s *session) error {
				summary, err := s.aggregator.Summarize(ctx, p)
				if err != nil {
					return err
				}
				return write(ctx, cmd.OutOrStdout(), s, summary)
			})
		},
	}
	cmd.Flags().StringVarP(&period, "period", "p", "all", "all, today or Nd")
	return cmd
}

func (r *RootCommand) writeReport(ctx context.Context, w io.Writer, s *session, summary analytics.Summary) error {
	fc, fcErr := r.forecast(ctx, s, r.config.ForecastHorizon)
	if fcErr != nil && !insufficient(fcErr) {
		return fcErr
	}
	report.Summary(w, summary, fc, fcErr)
	return nil
}

func (r *RootCommand) writeProductivity(_ context.Context, w io.Writer, _ *session, summary analytics.Summary) error {
	report.Productivity(w, summary)
	return nil
}

func (r *RootCommand) writeFinance(_ context.Context, w io.Writer, _ *session, summary analytics.Summary) error {
	report.Finance(w, summary)
	return nil
}

func (r *RootCommand) forecastCommand() *cobra.Command {
	var horizon int
	cmd := &cobra.Command{
		Use:   "forecast",
		Short: "Project monthly spending with a linear trend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("horizon") {
				horizon = r.config.ForecastHorizon
			}
			if err := forecast.ValidateHorizon(horizon); err != nil {
				return err
			}
			return r.run(func(ctx context.Context, s *session) error {
				fc, err := r.forecast(ctx, s, horizon)
				if err != nil && !insufficient(err) {
					return err
				}
				report.Forecast(cmd.OutOrStdout(), fc, err)
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&horizon, "horizon", "n", 1, "Number of months to project")
	return cmd
}

func (r *RootCommand) forecast(ctx context.Context, s *session, horizon int) (forecast.Forecast, error) {
	history, err := s.aggregator.MonthlyExpenses(ctx)
	if err != nil {
		return forecast.Forecast{}, err
	}
	return s.forecaster.Forecast(history, horizon)
}

func insufficient(err error) bool {
	var ide *core.InsufficientDataError
	return errors.As(err, &ide)
}

func (r *RootCommand) addTaskCommand() *cobra.Command {
	var raw core.RawTask
	cmd := &cobra.Command{
		Use:   "add-task",
		Short: "Append a task to tasks.csv",
		Long: `Validate a task and append it to tasks.csv. The next etl loads it.
The id defaults to a new UUID and --completed-at to now.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			loc, err := r.config.Location()
			if err != nil {
				return err
			}
			if raw.ExternalID == "" {
				raw.ExternalID = uuid.NewString()
			}
			if raw.CompletedAt == "" {
				raw.CompletedAt = r.now().In(loc).Format(core.TimestampLayout)
			}
			t, err := normalize.New(loc).Task(raw)
			if err != nil {
				return err
			}
			if err := sources.AppendRecord(r.config.TasksPath(), sources.KindTasks, sources.TaskRecord(t)); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Task %s added to %s: %s (%s, %d min)\n",
				t.ExternalID, r.config.TasksPath(), t.Title, t.Category, t.DurationMinutes)
			return nil
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&raw.Title, "title", "", "Task title")
	flags.StringVar(&raw.Category, "category", "", "One of "+categoryList(core.TaskCategories))
	flags.StringVar(&raw.DurationMinutes, "duration", "0", "Duration in whole minutes")
	flags.StringVar(&raw.CompletedAt, "completed-at", "", "Completion time as YYYY-MM-DD HH:MM:SS")
	flags.StringVar(&raw.ExternalID, "id", "", "External id")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("category")
	return cmd
}

func (r *RootCommand) addExpenseCommand() *cobra.Command {
	var raw core.RawExpense
	cmd := &cobra.Command{
		Use:   "add-expense",
		Short: "Append an expense to finance.csv",
		Long:  "Validate an expense and append it to finance.csv. The next etl loads it. --date defaults to today.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			loc, err := r.config.Location()
			if err != nil {
				return err
			}
			if raw.Date == "" {
				raw.Date = r.now().In(loc).Format(core.DateLayout)
			}
			e, err := normalize.New(loc).Expense(raw)
			if err != nil {
				return err
			}
			if err := sources.AppendRecord(r.config.FinancePath(), sources.KindExpenses, sources.ExpenseRecord(e)); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Expense added to %s: %s %s %s\n",
				r.config.FinancePath(), e.Date, e.Category, report.Money(e.Amount.Float()))
			return nil
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&raw.Category, "category", "", "One of "+categoryList(core.ExpenseCategories))
	flags.StringVar(&raw.Amount, "amount", "", "Amount with up to 2 decimals")
	flags.StringVar(&raw.Description, "description", "", "Free text")
	flags.StringVar(&raw.Date, "date", "", "Date as YYYY-MM-DD")
	_ = cmd.MarkFlagRequired("category")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func categoryList[T ~string](cats []T) string {
	out := ""
	for i, c := range cats {
		if i > 0 {
			out += ", "
		}
		out += string(c)
	}
	return out
}

// Package report renders summaries, forecasts and ETL results as plain text.
package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"personal-analytics/internal/analytics"
	"personal-analytics/internal/etl"
	"personal-analytics/internal/forecast"
)

const moneyFormat = "#,###.##"

// Money renders a currency amount with thousands separators and 2 decimals.
func Money(v float64) string {
	return humanize.FormatFloat(moneyFormat, v)
}

// Hours renders minutes as hours with 2 decimals.
func Hours(minutes int) string {
	return humanize.FormatFloat(moneyFormat, float64(minutes)/60)
}

func periodLabel(p string) string {
	if p == "all" {
		return "all history"
	}
	return p
}

// Productivity writes the task section of s.
func Productivity(w io.Writer, s analytics.Summary) {
	p := s.Productivity
	fmt.Fprintf(w, "Productivity (%s)\n", periodLabel(s.Period))
	fmt.Fprintf(w, "  Tasks completed:      %s\n", humanize.Comma(int64(s.TaskCount)))
	fmt.Fprintf(w, "  Time logged:          %s h\n", Hours(s.TaskMinutes))
	fmt.Fprintf(w, "  Days in period:       %d\n", p.DaysInPeriod)
	fmt.Fprintf(w, "  Throughput:           %.2f tasks/day\n", p.Throughput)
	fmt.Fprintf(w, "  Average per task:     %.2f min\n", p.AvgMinutes)
	fmt.Fprintf(w, "  Focus hours per day:  %.2f h\n", p.FocusHoursPerDay)
	if p.TopCategory != "" {
		fmt.Fprintf(w, "  Top category:         %s (%.2f h)\n", p.TopCategory, p.TopCategoryHours)
	}
	if len(s.TasksByCategory) > 0 {
		fmt.Fprintln(w, "  By category:")
		for _, c := range s.TasksByCategory {
			fmt.Fprintf(w, "    %-14s %5d tasks %10s h\n", c.Category, c.Count, Hours(c.Minutes))
		}
	}
}

// Finance writes the expense section of s.
func Finance(w io.Writer, s analytics.Summary) {
	fmt.Fprintf(w, "Finance (%s)\n", periodLabel(s.Period))
	fmt.Fprintf(w, "  Total spent:          %s\n", Money(s.ExpenseTotal.Float()))
	fmt.Fprintf(w, "  Expenses:             %s\n", humanize.Comma(int64(s.ExpenseCount)))
	if len(s.ExpensesByCategory) > 0 {
		fmt.Fprintln(w, "  By category:")
		for _, c := range s.ExpensesByCategory {
			fmt.Fprintf(w, "    %-14s %12s\n", c.Category, Money(c.Amount.Float()))
		}
	}
}

// Forecast writes the projections of fc. err is an InsufficientDataError or nil.
func Forecast(w io.Writer, fc forecast.Forecast, err error) {
	fmt.Fprintln(w, "Forecast")
	if err != nil {
		fmt.Fprintf(w, "  Not available: %v\n", err)
		return
	}
	fmt.Fprintf(w, "  Trend:                %+.2f per month over %d months\n", fc.Slope, fc.Points)
	for _, p := range fc.Projections {
		fmt.Fprintf(w, "  %s:              %s\n", p.Start.Format("2006-01"), Money(p.Value))
	}
}

// Summary writes the full report: productivity, finance and forecast.
func Summary(w io.Writer, s analytics.Summary, fc forecast.Forecast, fcErr error) {
	Productivity(w, s)
	fmt.Fprintln(w)
	Finance(w, s)
	fmt.Fprintln(w)
	Forecast(w, fc, fcErr)
}

// Run writes one line per file, then a totals line.
func Run(w io.Writer, r etl.RunResult) {
	for _, f := range r.Files {
		fmt.Fprintln(w, f.Summary())
		for _, ve := range f.Samples {
			fmt.Fprintf(w, "  %v\n", ve)
		}
	}
	parts := []string{
		fmt.Sprintf("%s files", humanize.Comma(int64(len(r.Files)))),
		fmt.Sprintf("%s loaded", humanize.Comma(int64(r.Loaded()))),
		fmt.Sprintf("%s skipped", humanize.Comma(int64(r.Skipped()))),
	}
	if n := r.FailedCount(); n > 0 {
		parts = append(parts, fmt.Sprintf("%d failed", n))
	}
	fmt.Fprintf(w, "Run %s: %s in %s\n", shortID(r.RunID), strings.Join(parts, ", "),
		r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

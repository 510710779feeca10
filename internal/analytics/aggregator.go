// Package analytics derives summaries and time series from the curated layer.
package analytics

import (
	"context"
	"fmt"
	"math"
	"time"

	"personal-analytics/internal/core"
	"personal-analytics/internal/log"
	"personal-analytics/internal/storage"
)

// dailyLimit is the widest window still bucketed by day.
const dailyLimit = 31

// Granularity is the width of one series bucket.
type Granularity string

const (
	Daily   Granularity = "day"
	Weekly  Granularity = "week"
	Monthly Granularity = "month"
)

// Point is one bucket of a series. Value is in currency units.
type Point struct {
	Start time.Time `json:"start"`
	Value float64   `json:"value"`
}

// Productivity holds the task KPIs of a period.
type Productivity struct {
	DaysInPeriod     int               `json:"days_in_period"`
	Throughput       float64           `json:"throughput_per_day"`
	AvgMinutes       float64           `json:"avg_minutes_per_task"`
	FocusHoursPerDay float64           `json:"focus_hours_per_day"`
	TopCategory      core.TaskCategory `json:"top_category,omitempty"`
	TopCategoryHours float64           `json:"top_category_hours"`
}

// Summary is everything Summarize derives for one period.
type Summary struct {
	Period string `json:"period"`

	ExpenseTotal       core.Money            `json:"expense_total"`
	ExpenseCount       int                   `json:"expense_count"`
	ExpensesByCategory []core.CategoryAmount `json:"expenses_by_category"`

	TaskCount       int                  `json:"task_count"`
	TaskMinutes     int                  `json:"task_minutes"`
	TasksByCategory []core.CategoryTasks `json:"tasks_by_category"`

	Productivity Productivity `json:"productivity"`

	Granularity Granularity `json:"granularity"`
	Series      []Point     `json:"series"`
}

// Aggregator reads the curated layer only.
type Aggregator struct {
	reader storage.CuratedReader
	loc    *time.Location
	now    func() time.Time
	logger *log.Logger
}

type Option func(*Aggregator)

func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) {
		if now != nil {
			a.now = now
		}
	}
}

func WithLogger(logger *log.Logger) Option {
	return func(a *Aggregator) {
		if logger != nil {
			a.logger = logger.WithComponent(log.ComponentAggregator)
		}
	}
}

func NewAggregator(reader storage.CuratedReader, loc *time.Location, opts ...Option) *Aggregator {
	if loc == nil {
		loc = time.Local
	}
	a := &Aggregator{
		reader: reader,
		loc:    loc,
		now:    time.Now,
		logger: log.FromContext(context.Background()).WithComponent(log.ComponentAggregator),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Aggregator) Location() *time.Location { return a.loc }

// Summarize aggregates expenses and tasks within p. An empty store yields a
// zero Summary and no error.
func (a *Aggregator) Summarize(ctx context.Context, p Period) (Summary, error) {
	now := a.now().In(a.loc)
	r := p.Range(now, a.loc)
	s := Summary{
		Period:             p.String(),
		ExpensesByCategory: []core.CategoryAmount{},
		TasksByCategory:    []core.CategoryTasks{},
		Series:             []Point{},
	}

	byCategory, err := a.reader.ExpenseTotalsByCategory(ctx, r)
	if err != nil {
		return Summary{}, fmt.Errorf("summarize %s: %w", p, err)
	}
	for _, c := range byCategory {
		if c.Amount.IsZero() {
			continue
		}
		s.ExpensesByCategory = append(s.ExpensesByCategory, c)
		s.ExpenseTotal = s.ExpenseTotal.Add(c.Amount)
		s.ExpenseCount += c.Count
	}

	tasks, err := a.reader.TaskStatsByCategory(ctx, r)
	if err != nil {
		return Summary{}, fmt.Errorf("summarize %s: %w", p, err)
	}
	for _, c := range tasks {
		s.TasksByCategory = append(s.TasksByCategory, c)
		s.TaskCount += c.Count
		s.TaskMinutes += c.Minutes
	}

	days := 1
	first, last, ok, err := a.reader.TaskSpan(ctx, r)
	if err != nil {
		return Summary{}, fmt.Errorf("summarize %s: %w", p, err)
	}
	if ok {
		days = calendarDays(first.In(a.loc), last.In(a.loc))
	}
	s.Productivity = productivity(days, s.TaskCount, s.TaskMinutes, s.TasksByCategory)

	daily, err := a.reader.DailyExpenseTotals(ctx, r)
	if err != nil {
		return Summary{}, fmt.Errorf("summarize %s: %w", p, err)
	}
	from, to, ok := a.window(p, r, daily)
	if ok {
		s.Granularity = Daily
		if calendarDays(from, to) > dailyLimit {
			s.Granularity = Weekly
		}
		s.Series = bucket(daily, from, to, s.Granularity, a.loc)
	} else {
		s.Granularity = Daily
	}

	a.logger.DebugContext(ctx, "Summary computed",
		log.FieldPeriod, s.Period,
		"expenses", s.ExpenseCount,
		"tasks", s.TaskCount,
		"buckets", len(s.Series))
	return s, nil
}

// Series returns the expense series of p with the same bucketing as Summarize.
func (a *Aggregator) Series(ctx context.Context, p Period) ([]Point, Granularity, error) {
	s, err := a.Summarize(ctx, p)
	if err != nil {
		return nil, "", err
	}
	return s.Series, s.Granularity, nil
}

// MonthlyExpenses returns contiguous monthly totals from the first to the last
// month holding expenses. Months without expenses are zero.
func (a *Aggregator) MonthlyExpenses(ctx context.Context) ([]Point, error) {
	daily, err := a.reader.DailyExpenseTotals(ctx, storage.Range{})
	if err != nil {
		return nil, fmt.Errorf("monthly expenses: %w", err)
	}
	if len(daily) == 0 {
		return []Point{}, nil
	}
	from := daily[0].Date.Midnight(a.loc)
	to := daily[len(daily)-1].Date.Midnight(a.loc)
	return bucket(daily, from, to, Monthly, a.loc), nil
}

// window is the span the series covers: the period for bounded periods,
// the data itself for "all".
func (a *Aggregator) window(p Period, r storage.Range, daily []core.DayAmount) (from, to time.Time, ok bool) {
	if !p.IsAll() {
		return startOfDay(r.From), startOfDay(r.To), true
	}
	if len(daily) == 0 {
		return time.Time{}, time.Time{}, false
	}
	return daily[0].Date.Midnight(a.loc), daily[len(daily)-1].Date.Midnight(a.loc), true
}

func productivity(days, count, minutes int, byCategory []core.CategoryTasks) Productivity {
	p := Productivity{DaysInPeriod: max(days, 1)}
	p.Throughput = round2(float64(count) / float64(p.DaysInPeriod))
	if count > 0 {
		p.AvgMinutes = round2(float64(minutes) / float64(count))
	}
	p.FocusHoursPerDay = round2(float64(minutes) / 60 / float64(p.DaysInPeriod))

	best := -1
	for _, c := range byCategory {
		if c.Minutes > best {
			best = c.Minutes
			p.TopCategory = c.Category
		}
	}
	if best >= 0 {
		p.TopCategoryHours = round2(float64(best) / 60)
	}
	return p
}

// bucket sums daily totals into contiguous buckets covering [from, to].
func bucket(daily []core.DayAmount, from, to time.Time, g Granularity, loc *time.Location) []Point {
	start := bucketStart(from, g)
	end := bucketStart(to, g)

	var points []Point
	index := make(map[int64]int)
	for t := start; !t.After(end); t = next(t, g) {
		index[t.Unix()] = len(points)
		points = append(points, Point{Start: t})
	}

	cents := make([]int64, len(points))
	for _, d := range daily {
		i, ok := index[bucketStart(d.Date.Midnight(loc), g).Unix()]
		if !ok {
			continue
		}
		cents[i] += d.Total.Cents
	}
	for i := range points {
		points[i].Value = core.Money{Cents: cents[i]}.Float()
	}
	return points
}

func bucketStart(t time.Time, g Granularity) time.Time {
	t = startOfDay(t)
	switch g {
	case Weekly:
		offset := (int(t.Weekday()) + 6) % 7 // Monday is 0
		return t.AddDate(0, 0, -offset)
	case Monthly:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	}
	return t
}

func next(t time.Time, g Granularity) time.Time {
	switch g {
	case Weekly:
		return t.AddDate(0, 0, 7)
	case Monthly:
		return t.AddDate(0, 1, 0)
	}
	return t.AddDate(0, 0, 1)
}

// calendarDays counts the calendar days from a to b inclusive.
func calendarDays(a, b time.Time) int {
	da := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	db := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int(db.Sub(da).Hours()/24) + 1
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

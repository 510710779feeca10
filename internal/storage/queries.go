package storage

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"personal-analytics/internal/core"
)

type scanner interface {
	Scan(dest ...any) error
}

// queryAll runs query and scans every row with scan.
func queryAll[T any](ctx context.Context, db *sql.DB, op, query string, scan func(scanner) (T, error), args ...any) ([]T, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &core.StorageError{Op: op, Err: err}
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, &core.StorageError{Op: op, Err: fmt.Errorf("scan: %w", err)}
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, &core.StorageError{Op: op, Err: err}
	}
	return out, nil
}

// timeWhere builds a WHERE clause bounding a timestamp column by r.
func (s *SQLiteStore) timeWhere(col string, r Range) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if !r.From.IsZero() {
		conds = append(conds, col+" >= ?")
		args = append(args, s.formatTS(r.From))
	}
	if !r.To.IsZero() {
		conds = append(conds, col+" <= ?")
		args = append(args, s.formatTS(r.To))
	}
	return where(conds), args
}

// dateWhere bounds a YYYY-MM-DD column by the calendar dates of r in the store location.
func (s *SQLiteStore) dateWhere(col string, r Range) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if !r.From.IsZero() {
		conds = append(conds, col+" >= ?")
		args = append(args, r.From.In(s.loc).Format(core.DateLayout))
	}
	if !r.To.IsZero() {
		conds = append(conds, col+" <= ?")
		args = append(args, r.To.In(s.loc).Format(core.DateLayout))
	}
	return where(conds), args
}

func where(conds []string) string {
	if len(conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(conds, " AND ")
}

func (s *SQLiteStore) Tasks(ctx context.Context, r Range) ([]core.Task, error) {
	w, args := s.timeWhere("completed_at", r)
	return queryAll(ctx, s.db, "list tasks", `
		SELECT external_id, title, category, completed_at, duration_minutes
		FROM curated_tasks`+w+`
		ORDER BY completed_at, external_id`,
		func(sc scanner) (core.Task, error) {
			var (
				t        core.Task
				cat, raw string
			)
			if err := sc.Scan(&t.ExternalID, &t.Title, &cat, &raw, &t.DurationMinutes); err != nil {
				return t, err
			}
			t.Category = core.TaskCategory(cat)
			ts, err := s.parseTS(raw)
			if err != nil {
				return t, err
			}
			t.CompletedAt = ts
			return t, nil
		}, args...)
}

func (s *SQLiteStore) Expenses(ctx context.Context, r Range) ([]core.Expense, error) {
	w, args := s.dateWhere("date", r)
	return queryAll(ctx, s.db, "list expenses", `
		SELECT date, category, description, amount_cents
		FROM curated_expenses`+w+`
		ORDER BY date, category, description, amount_cents`,
		func(sc scanner) (core.Expense, error) {
			var (
				e         core.Expense
				date, cat string
			)
			if err := sc.Scan(&date, &cat, &e.Description, &e.Amount.Cents); err != nil {
				return e, err
			}
			d, err := core.ParseDate(date)
			if err != nil {
				return e, err
			}
			e.Date = d
			e.Category = core.ExpenseCategory(cat)
			return e, nil
		}, args...)
}

func (s *SQLiteStore) TimeLogs(ctx context.Context, r Range) ([]core.TimeLog, error) {
	w, args := s.timeWhere("logged_at", r)
	return queryAll(ctx, s.db, "list time logs", `
		SELECT task_external_id, category, duration_minutes, logged_at
		FROM curated_time_logs`+w+`
		ORDER BY logged_at, task_external_id`,
		func(sc scanner) (core.TimeLog, error) {
			var (
				l        core.TimeLog
				cat, raw string
			)
			if err := sc.Scan(&l.TaskExternalID, &cat, &l.DurationMinutes, &raw); err != nil {
				return l, err
			}
			l.Category = core.TaskCategory(cat)
			ts, err := s.parseTS(raw)
			if err != nil {
				return l, err
			}
			l.LoggedAt = ts
			return l, nil
		}, args...)
}

// ExpenseTotalsByCategory sums curated expenses per category, in category display order.
func (s *SQLiteStore) ExpenseTotalsByCategory(ctx context.Context, r Range) ([]core.CategoryAmount, error) {
	w, args := s.dateWhere("date", r)
	out, err := queryAll(ctx, s.db, "expense totals", `
		SELECT category, COALESCE(SUM(amount_cents), 0), COUNT(*)
		FROM curated_expenses`+w+`
		GROUP BY category`,
		func(sc scanner) (core.CategoryAmount, error) {
			var (
				ca  core.CategoryAmount
				cat string
			)
			err := sc.Scan(&cat, &ca.Amount.Cents, &ca.Count)
			ca.Category = core.ExpenseCategory(cat)
			return ca, err
		}, args...)
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		return expenseOrder(out[i].Category) < expenseOrder(out[j].Category)
	})
	return out, nil
}

// TaskStatsByCategory counts tasks and sums their minutes per category.
func (s *SQLiteStore) TaskStatsByCategory(ctx context.Context, r Range) ([]core.CategoryTasks, error) {
	w, args := s.timeWhere("completed_at", r)
	out, err := queryAll(ctx, s.db, "task stats", `
		SELECT category, COUNT(*), COALESCE(SUM(duration_minutes), 0)
		FROM curated_tasks`+w+`
		GROUP BY category`,
		func(sc scanner) (core.CategoryTasks, error) {
			var (
				ct  core.CategoryTasks
				cat string
			)
			err := sc.Scan(&cat, &ct.Count, &ct.Minutes)
			ct.Category = core.TaskCategory(cat)
			return ct, err
		}, args...)
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		return taskOrder(out[i].Category) < taskOrder(out[j].Category)
	})
	return out, nil
}

// DailyExpenseTotals returns one entry per day that has expenses, ascending.
func (s *SQLiteStore) DailyExpenseTotals(ctx context.Context, r Range) ([]core.DayAmount, error) {
	w, args := s.dateWhere("date", r)
	return queryAll(ctx, s.db, "daily expense totals", `
		SELECT date, SUM(amount_cents)
		FROM curated_expenses`+w+`
		GROUP BY date
		ORDER BY date`,
		func(sc scanner) (core.DayAmount, error) {
			var (
				da   core.DayAmount
				date string
			)
			if err := sc.Scan(&date, &da.Total.Cents); err != nil {
				return da, err
			}
			d, err := core.ParseDate(date)
			da.Date = d
			return da, err
		}, args...)
}

// TaskSpan returns the first and last completion times within r. ok is false when r holds no tasks.
func (s *SQLiteStore) TaskSpan(ctx context.Context, r Range) (first, last time.Time, ok bool, err error) {
	w, args := s.timeWhere("completed_at", r)
	var lo, hi sql.NullString
	if err := s.db.QueryRowContext(ctx, `
		SELECT MIN(completed_at), MAX(completed_at)
		FROM curated_tasks`+w, args...).Scan(&lo, &hi); err != nil {
		return time.Time{}, time.Time{}, false, &core.StorageError{Op: "task span", Err: err}
	}
	if !lo.Valid || !hi.Valid {
		return time.Time{}, time.Time{}, false, nil
	}
	if first, err = s.parseTS(lo.String); err != nil {
		return time.Time{}, time.Time{}, false, &core.StorageError{Op: "task span", Err: err}
	}
	if last, err = s.parseTS(hi.String); err != nil {
		return time.Time{}, time.Time{}, false, &core.StorageError{Op: "task span", Err: err}
	}
	return first, last, true, nil
}

// RawSources lists every source in the raw layer in order of first ingestion.
func (s *SQLiteStore) RawSources(ctx context.Context) ([]string, error) {
	return queryAll(ctx, s.db, "raw sources", `
		SELECT source FROM (
			SELECT source, ingested_at FROM raw_tasks
			UNION ALL
			SELECT source, ingested_at FROM raw_expenses
		)
		GROUP BY source
		ORDER BY MIN(ingested_at), source`,
		func(sc scanner) (string, error) {
			var src string
			err := sc.Scan(&src)
			return src, err
		})
}

// ReadRaw returns every raw row ingested for source, oldest first.
func (s *SQLiteStore) ReadRaw(ctx context.Context, source string) (RawBatch, error) {
	tasks, err := queryAll(ctx, s.db, "read raw tasks", `
		SELECT row_index, external_id, title, category, completed_at, duration_minutes
		FROM raw_tasks WHERE source = ?
		ORDER BY id`,
		func(sc scanner) (core.RawTask, error) {
			var r core.RawTask
			err := sc.Scan(&r.Row, &r.ExternalID, &r.Title, &r.Category, &r.CompletedAt, &r.DurationMinutes)
			return r, err
		}, source)
	if err != nil {
		return RawBatch{}, err
	}

	expenses, err := queryAll(ctx, s.db, "read raw expenses", `
		SELECT row_index, date, category, description, amount
		FROM raw_expenses WHERE source = ?
		ORDER BY id`,
		func(sc scanner) (core.RawExpense, error) {
			var r core.RawExpense
			err := sc.Scan(&r.Row, &r.Date, &r.Category, &r.Description, &r.Amount)
			return r, err
		}, source)
	if err != nil {
		return RawBatch{}, err
	}

	return RawBatch{Tasks: tasks, Expenses: expenses}, nil
}

// Counts returns row counts per entity for layer. The raw layer has no time logs.
func (s *SQLiteStore) Counts(ctx context.Context, layer Layer) (LayerCounts, error) {
	var c LayerCounts
	if _, ok := ParseLayer(string(layer)); !ok {
		return c, &core.StorageError{Op: "count", Err: fmt.Errorf("unknown layer %q", layer)}
	}
	targets := []struct {
		table string
		dst   *int
	}{
		{string(layer) + "_tasks", &c.Tasks},
		{string(layer) + "_expenses", &c.Expenses},
	}
	if layer != LayerRaw {
		targets = append(targets, struct {
			table string
			dst   *int
		}{string(layer) + "_time_logs", &c.TimeLogs})
	}

	for _, t := range targets {
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+t.table).Scan(t.dst); err != nil {
			return c, &core.StorageError{Op: "count " + t.table, Err: err}
		}
	}
	return c, nil
}

// Runs returns the most recent file runs, newest first.
func (s *SQLiteStore) Runs(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	return queryAll(ctx, s.db, "list runs", `
		SELECT run_id, source, state, rows_read, loaded, skipped, error, started_at, finished_at
		FROM etl_runs
		ORDER BY id DESC
		LIMIT ?`,
		func(sc scanner) (RunRecord, error) {
			var (
				r                 RunRecord
				started, finished string
			)
			if err := sc.Scan(&r.RunID, &r.Source, &r.State, &r.RowsRead, &r.Loaded, &r.Skipped, &r.Error, &started, &finished); err != nil {
				return r, err
			}
			r.StartedAt, _ = time.ParseInLocation(ingestLayout, started, time.UTC)
			r.FinishedAt, _ = time.ParseInLocation(ingestLayout, finished, time.UTC)
			return r, nil
		}, limit)
}

func expenseOrder(c core.ExpenseCategory) int {
	for i, v := range core.ExpenseCategories {
		if v == c {
			return i
		}
	}
	return len(core.ExpenseCategories)
}

func taskOrder(c core.TaskCategory) int {
	for i, v := range core.TaskCategories {
		if v == c {
			return i
		}
	}
	return len(core.TaskCategories)
}

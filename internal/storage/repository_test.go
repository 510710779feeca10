package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"personal-analytics/internal/core"
)

func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"), time.UTC)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func ts(s string) time.Time {
	t, err := core.ParseTimestamp(s, time.UTC)
	if err != nil {
		panic(err)
	}
	return t
}

func sampleTask(id string, minutes int) core.Task {
	return core.Task{
		ExternalID:      id,
		Title:           "Clean house",
		Category:        core.TaskPersonal,
		CompletedAt:     ts("2025-01-01 09:00:00"),
		DurationMinutes: minutes,
	}
}

func sampleExpense(date string, cat core.ExpenseCategory, cents int64) core.Expense {
	d, err := core.ParseDate(date)
	if err != nil {
		panic(err)
	}
	return core.Expense{Date: d, Category: cat, Description: "item", Amount: core.Money{Cents: cents}}
}

func batchOf(tasks []core.Task, expenses []core.Expense) Batch {
	b := Batch{Tasks: tasks, Expenses: expenses}
	for _, t := range tasks {
		if tl, ok := t.TimeLog(); ok {
			b.TimeLogs = append(b.TimeLogs, tl)
		}
	}
	return b
}

func TestNewSQLiteStoreIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "test.db")

	s1, err := NewSQLiteStore(path, time.UTC)
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := NewSQLiteStore(path, time.UTC)
	require.NoError(t, err)
	defer s2.Close()

	require.NoError(t, s2.Ping(context.Background()))
}

func TestUpsertCuratedTasks(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)

	stats, err := s.UpsertCurated(ctx, "tasks.csv", batchOf([]core.Task{sampleTask("1", 45)}, nil))
	require.NoError(t, err)
	assert.Equal(t, UpsertStats{Inserted: 1, TimeLogs: 1}, stats)

	stats, err = s.UpsertCurated(ctx, "tasks.csv", batchOf([]core.Task{sampleTask("1", 45)}, nil))
	require.NoError(t, err)
	assert.Equal(t, UpsertStats{Unchanged: 1}, stats)

	changed := sampleTask("1", 60)
	changed.Title = "Deep clean"
	stats, err = s.UpsertCurated(ctx, "tasks.csv", batchOf([]core.Task{changed}, nil))
	require.NoError(t, err)
	assert.Equal(t, UpsertStats{Updated: 1, TimeLogs: 1}, stats)

	tasks, err := s.Tasks(ctx, Range{})
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "Deep clean", tasks[0].Title)
	assert.Equal(t, 60, tasks[0].DurationMinutes)
	assert.True(t, tasks[0].CompletedAt.Equal(changed.CompletedAt))

	logs, err := s.TimeLogs(ctx, Range{})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, 60, logs[0].DurationMinutes)
}

func TestUpsertCuratedZeroDurationDropsTimeLog(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)

	_, err := s.UpsertCurated(ctx, "tasks.csv", batchOf([]core.Task{sampleTask("1", 45)}, nil))
	require.NoError(t, err)
	_, err = s.UpsertCurated(ctx, "tasks.csv", batchOf([]core.Task{sampleTask("1", 0)}, nil))
	require.NoError(t, err)

	c, err := s.Counts(ctx, LayerCurated)
	require.NoError(t, err)
	assert.Equal(t, LayerCounts{Tasks: 1, TimeLogs: 0}, c)
}

func TestUpsertCuratedExpensesInsertOrIgnore(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)

	e := sampleExpense("2025-01-02", core.ExpenseFood, 1250)
	stats, err := s.UpsertCurated(ctx, "finance.csv", Batch{Expenses: []core.Expense{e, e}})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Inserted)
	assert.Equal(t, 1, stats.Ignored)

	stats, err = s.UpsertCurated(ctx, "finance.csv", Batch{Expenses: []core.Expense{e}})
	require.NoError(t, err)
	assert.Equal(t, UpsertStats{Ignored: 1}, stats)

	expenses, err := s.Expenses(ctx, Range{})
	require.NoError(t, err)
	require.Len(t, expenses, 1)
	assert.Equal(t, e.Key(), expenses[0].Key())
}

func TestUpsertCuratedConstraintViolationRollsBack(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)

	bad := sampleExpense("2025-01-02", "gadgets", 100)
	b := Batch{
		Tasks:    []core.Task{sampleTask("1", 0)},
		Expenses: []core.Expense{sampleExpense("2025-01-01", core.ExpenseFood, 100), bad},
	}

	_, err := s.UpsertCurated(ctx, "finance.csv", b)

	var se *core.StorageError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "upsert curated", se.Op)

	c, err := s.Counts(ctx, LayerCurated)
	require.NoError(t, err)
	assert.Equal(t, LayerCounts{}, c, "nothing from the failed batch is committed")
}

func TestWriteStagingReplacesPerSource(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)

	first := batchOf([]core.Task{sampleTask("1", 45), sampleTask("1", 45)}, nil)
	require.NoError(t, s.WriteStaging(ctx, "tasks.csv", "run-1", first))
	require.NoError(t, s.WriteStaging(ctx, "finance.csv", "run-1", Batch{Expenses: []core.Expense{sampleExpense("2025-01-01", core.ExpenseFood, 1)}}))

	c, err := s.Counts(ctx, LayerStaging)
	require.NoError(t, err)
	assert.Equal(t, LayerCounts{Tasks: 2, Expenses: 1, TimeLogs: 2}, c)

	second := batchOf([]core.Task{sampleTask("2", 0)}, nil)
	require.NoError(t, s.WriteStaging(ctx, "tasks.csv", "run-2", second))

	c, err = s.Counts(ctx, LayerStaging)
	require.NoError(t, err)
	assert.Equal(t, LayerCounts{Tasks: 1, Expenses: 1, TimeLogs: 0}, c)
}

func TestRawLayerIsAppendOnly(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)

	raw := RawBatch{Tasks: []core.RawTask{{Row: 1, ExternalID: "1", Title: "x", Category: "invalid_cat", CompletedAt: "bad", DurationMinutes: "-1"}}}
	require.NoError(t, s.WriteRaw(ctx, "tasks.csv", "run-1", raw))
	require.NoError(t, s.WriteRaw(ctx, "tasks.csv", "run-2", raw))
	require.NoError(t, s.WriteRaw(ctx, "finance.csv", "run-2", RawBatch{Expenses: []core.RawExpense{{Row: 1, Date: "2025-01-01", Category: "food", Amount: "1"}}}))

	got, err := s.ReadRaw(ctx, "tasks.csv")
	require.NoError(t, err)
	require.Len(t, got.Tasks, 2)
	assert.Equal(t, raw.Tasks[0], got.Tasks[0], "raw rows are stored verbatim")

	sources, err := s.RawSources(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"tasks.csv", "finance.csv"}, sources)

	err = s.Truncate(ctx, LayerRaw)
	assert.ErrorIs(t, err, ErrRawAppendOnly)

	c, err := s.Counts(ctx, LayerRaw)
	require.NoError(t, err)
	assert.Equal(t, 2, c.Tasks)
}

func TestTruncateCurated(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)

	_, err := s.UpsertCurated(ctx, "x", batchOf([]core.Task{sampleTask("1", 45)}, []core.Expense{sampleExpense("2025-01-01", core.ExpenseFood, 1)}))
	require.NoError(t, err)

	require.NoError(t, s.Truncate(ctx, LayerCurated))

	c, err := s.Counts(ctx, LayerCurated)
	require.NoError(t, err)
	assert.Equal(t, LayerCounts{}, c)
}

func TestAggregateQueries(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)

	t1 := sampleTask("1", 45)
	t2 := sampleTask("2", 30)
	t2.Category = core.TaskStudy
	t2.CompletedAt = ts("2025-01-03 18:30:00")
	expenses := []core.Expense{
		sampleExpense("2025-01-01", core.ExpenseTransport, 300),
		sampleExpense("2025-01-01", core.ExpenseFood, 1200),
		sampleExpense("2025-01-05", core.ExpenseFood, 800),
	}
	_, err := s.UpsertCurated(ctx, "x", batchOf([]core.Task{t1, t2}, expenses))
	require.NoError(t, err)

	totals, err := s.ExpenseTotalsByCategory(ctx, Range{})
	require.NoError(t, err)
	assert.Equal(t, []core.CategoryAmount{
		{Category: core.ExpenseFood, Amount: core.Money{Cents: 2000}, Count: 2},
		{Category: core.ExpenseTransport, Amount: core.Money{Cents: 300}, Count: 1},
	}, totals)

	window := Range{From: ts("2025-01-02 00:00:00"), To: ts("2025-01-05 23:59:59")}
	totals, err = s.ExpenseTotalsByCategory(ctx, window)
	require.NoError(t, err)
	assert.Equal(t, []core.CategoryAmount{{Category: core.ExpenseFood, Amount: core.Money{Cents: 800}, Count: 1}}, totals)

	stats, err := s.TaskStatsByCategory(ctx, Range{})
	require.NoError(t, err)
	assert.Equal(t, []core.CategoryTasks{
		{Category: core.TaskPersonal, Count: 1, Minutes: 45},
		{Category: core.TaskStudy, Count: 1, Minutes: 30},
	}, stats)

	daily, err := s.DailyExpenseTotals(ctx, Range{})
	require.NoError(t, err)
	require.Len(t, daily, 2)
	assert.Equal(t, "2025-01-01", daily[0].Date.String())
	assert.Equal(t, int64(1500), daily[0].Total.Cents)

	first, last, ok, err := s.TaskSpan(ctx, Range{})
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, first.Equal(t1.CompletedAt))
	assert.True(t, last.Equal(t2.CompletedAt))

	_, _, ok, err = s.TaskSpan(ctx, Range{From: ts("2030-01-01 00:00:00")})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRecordRun(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)

	now := time.Now()
	require.NoError(t, s.RecordRun(ctx, RunRecord{RunID: "r1", Source: "tasks.csv", State: "done", RowsRead: 3, Loaded: 2, Skipped: 1, StartedAt: now, FinishedAt: now}))
	require.NoError(t, s.RecordRun(ctx, RunRecord{RunID: "r1", Source: "finance.csv", State: "failed", Error: "boom", StartedAt: now, FinishedAt: now}))

	runs, err := s.Runs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "finance.csv", runs[0].Source)
	assert.Equal(t, "boom", runs[0].Error)
	assert.Equal(t, 2, runs[1].Loaded)
}

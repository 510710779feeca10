package sources

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"personal-analytics/internal/core"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestCSVFileReadTasks(t *testing.T) {
	path := writeFile(t, "tasks.csv", "\ufeffexternal_id, Title ,category,completed_at,duration_minutes\n"+
		"1,Clean house,personal,2025-01-01 09:00:00,45\n"+
		"\n"+
		"2,\"Read, a lot\",study,2025-01-02 10:00:00\n")

	b, err := NewCSVFile(path, KindTasks).Read(context.Background())
	require.NoError(t, err)
	require.Len(t, b.Tasks, 2)
	assert.Empty(t, b.Expenses)

	assert.Equal(t, core.RawTask{Row: 1, ExternalID: "1", Title: "Clean house", Category: "personal", CompletedAt: "2025-01-01 09:00:00", DurationMinutes: "45"}, b.Tasks[0])
	assert.Equal(t, "Read, a lot", b.Tasks[1].Title)
	assert.Equal(t, "", b.Tasks[1].DurationMinutes, "short rows yield empty fields")
	assert.Equal(t, 2, b.Tasks[1].Row, "blank lines are not rows")
}

func TestCSVFileKeepsFieldsVerbatim(t *testing.T) {
	path := writeFile(t, "finance.csv", "date, category ,description,amount\n2025-01-02, food,  lunch , 12.50\n")

	b, err := NewCSVFile(path, KindExpenses).Read(context.Background())
	require.NoError(t, err)
	require.Len(t, b.Expenses, 1)
	assert.Equal(t, " food", b.Expenses[0].Category)
	assert.Equal(t, "  lunch ", b.Expenses[0].Description)
	assert.Equal(t, " 12.50", b.Expenses[0].Amount)
}

func TestCSVFileReadExpenses(t *testing.T) {
	path := writeFile(t, "finance.csv", "date,category,description,amount\n2025-01-02,food,lunch,12.50\n2025-01-02,food,lunch,12.50\n")

	f := NewCSVFile(path, KindExpenses)
	assert.Equal(t, "finance.csv", f.Name())
	assert.Equal(t, KindExpenses, f.Kind())

	b, err := f.Read(context.Background())
	require.NoError(t, err)
	require.Len(t, b.Expenses, 2)
	assert.Equal(t, "12.50", b.Expenses[1].Amount)
}

func TestCSVFileMissingFile(t *testing.T) {
	_, err := NewCSVFile(filepath.Join(t.TempDir(), "nope.csv"), KindTasks).Read(context.Background())

	var ioErr *core.IOError
	require.True(t, errors.As(err, &ioErr))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestCSVFileMissingColumn(t *testing.T) {
	path := writeFile(t, "finance.csv", "date,category,amount\n2025-01-02,food,1\n")

	_, err := NewCSVFile(path, KindExpenses).Read(context.Background())

	var ioErr *core.IOError
	require.ErrorAs(t, err, &ioErr)
	assert.ErrorIs(t, err, ErrMissingColumn)
	assert.Contains(t, err.Error(), `"description"`)
}

func TestAppendRecord(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data", "tasks.csv")

	task := core.Task{
		ExternalID:      "abc",
		Title:           "Write, then test",
		Category:        core.TaskProfessional,
		CompletedAt:     time.Date(2025, 3, 1, 8, 30, 0, 0, time.UTC),
		DurationMinutes: 90,
	}
	require.NoError(t, AppendRecord(path, KindTasks, TaskRecord(task)))
	require.NoError(t, AppendRecord(path, KindTasks, TaskRecord(task)))

	b, err := NewCSVFile(path, KindTasks).Read(context.Background())
	require.NoError(t, err)
	require.Len(t, b.Tasks, 2, "header is written once")
	assert.Equal(t, core.RawTask{Row: 1, ExternalID: "abc", Title: "Write, then test", Category: "professional", CompletedAt: "2025-03-01 08:30:00", DurationMinutes: "90"}, b.Tasks[0])
}

func TestExpenseRecord(t *testing.T) {
	e := core.Expense{Date: core.NewDate(2025, 1, 2), Category: core.ExpenseGroceries, Description: "market", Amount: core.Money{Cents: 4305}}
	assert.Equal(t, []string{"2025-01-02", "groceries", "market", "43.05"}, ExpenseRecord(e))
}

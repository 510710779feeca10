// Package sources reads task and expense rows from flat files and
// spreadsheet ranges into raw batches for the ETL loader.
package sources

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"personal-analytics/internal/core"
	"personal-analytics/internal/storage"
)

// Kind is the schema a source declares.
type Kind string

const (
	KindTasks    Kind = "tasks"
	KindExpenses Kind = "expenses"
)

var (
	TaskColumns    = []string{"external_id", "title", "category", "completed_at", "duration_minutes"}
	ExpenseColumns = []string{"date", "category", "description", "amount"}
)

// ErrMissingColumn is returned when a header lacks a required column.
var ErrMissingColumn = errors.New("missing column")

// Source yields the rows of one input. Read failures are *core.IOError.
type Source interface {
	Name() string
	Kind() Kind
	Read(ctx context.Context) (storage.RawBatch, error)
}

// Columns returns the header a source of kind k must carry.
func (k Kind) Columns() []string {
	if k == KindTasks {
		return TaskColumns
	}
	return ExpenseColumns
}

// Decode maps a header row plus data rows onto raw records of kind.
// Header names are trimmed and matched case-insensitively; a leading BOM is ignored.
// Short rows yield empty fields, which the normalizer later rejects.
func Decode(kind Kind, records [][]string) (storage.RawBatch, error) {
	if len(records) == 0 {
		return storage.RawBatch{}, nil
	}

	index := make(map[string]int, len(records[0]))
	for i, h := range records[0] {
		h = strings.TrimPrefix(h, "\ufeff")
		index[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, col := range kind.Columns() {
		if _, ok := index[col]; !ok {
			return storage.RawBatch{}, fmt.Errorf("%w %q", ErrMissingColumn, col)
		}
	}

	field := func(rec []string, col string) string {
		i := index[col]
		if i < len(rec) {
			return rec[i]
		}
		return ""
	}

	var b storage.RawBatch
	for n, rec := range records[1:] {
		if blank(rec) {
			continue
		}
		row := n + 1
		switch kind {
		case KindTasks:
			b.Tasks = append(b.Tasks, core.RawTask{
				Row:             row,
				ExternalID:      field(rec, "external_id"),
				Title:           field(rec, "title"),
				Category:        field(rec, "category"),
				CompletedAt:     field(rec, "completed_at"),
				DurationMinutes: field(rec, "duration_minutes"),
			})
		case KindExpenses:
			b.Expenses = append(b.Expenses, core.RawExpense{
				Row:         row,
				Date:        field(rec, "date"),
				Category:    field(rec, "category"),
				Description: field(rec, "description"),
				Amount:      field(rec, "amount"),
			})
		}
	}
	return b, nil
}

func blank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

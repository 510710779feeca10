package storage

import (
	"context"
	"time"

	"personal-analytics/internal/core"
)

// Layer names one of the three logical layers of the store.
type Layer string

const (
	LayerRaw     Layer = "raw"
	LayerStaging Layer = "staging"
	LayerCurated Layer = "curated"
)

func ParseLayer(s string) (Layer, bool) {
	switch l := Layer(s); l {
	case LayerRaw, LayerStaging, LayerCurated:
		return l, true
	}
	return "", false
}

type (
	// RawBatch is a set of source rows as read, before any validation.
	RawBatch struct {
		Tasks    []core.RawTask
		Expenses []core.RawExpense
	}

	// Batch holds canonical records bound for staging or curated.
	Batch struct {
		Tasks    []core.Task
		Expenses []core.Expense
		TimeLogs []core.TimeLog
	}

	// UpsertStats counts what a curated upsert did, row by row.
	UpsertStats struct {
		Inserted  int `json:"inserted"`
		Updated   int `json:"updated"`
		Unchanged int `json:"unchanged"`
		Ignored   int `json:"ignored"`
		TimeLogs  int `json:"time_logs"`
	}

	// Range bounds curated reads. A zero From or To leaves that side open.
	Range struct {
		From time.Time
		To   time.Time
	}

	// LayerCounts is the number of rows per entity in one layer.
	LayerCounts struct {
		Tasks    int `json:"tasks"`
		Expenses int `json:"expenses"`
		TimeLogs int `json:"time_logs"`
	}

	// RunRecord is one audited ETL file run.
	RunRecord struct {
		RunID      string
		Source     string
		State      string
		RowsRead   int
		Loaded     int
		Skipped    int
		Error      string
		StartedAt  time.Time
		FinishedAt time.Time
	}
)

func (b RawBatch) Len() int { return len(b.Tasks) + len(b.Expenses) }

func (b Batch) Len() int { return len(b.Tasks) + len(b.Expenses) }

// Loaded is the number of curated rows that were created or changed.
func (s UpsertStats) Loaded() int { return s.Inserted + s.Updated }

func (s *UpsertStats) Add(o UpsertStats) {
	s.Inserted += o.Inserted
	s.Updated += o.Updated
	s.Unchanged += o.Unchanged
	s.Ignored += o.Ignored
	s.TimeLogs += o.TimeLogs
}

// Writer is the write side of the store. Only the ETL loader holds one.
type Writer interface {
	WriteRaw(ctx context.Context, source, runID string, batch RawBatch) error
	WriteStaging(ctx context.Context, source, runID string, batch Batch) error
	UpsertCurated(ctx context.Context, source string, batch Batch) (UpsertStats, error)
	Truncate(ctx context.Context, layer Layer) error
	RecordRun(ctx context.Context, run RunRecord) error
}

// RawReader replays the raw layer for a full reload.
type RawReader interface {
	RawSources(ctx context.Context) ([]string, error)
	ReadRaw(ctx context.Context, source string) (RawBatch, error)
}

// CuratedReader is the read side used by analytics and the API.
type CuratedReader interface {
	Tasks(ctx context.Context, r Range) ([]core.Task, error)
	Expenses(ctx context.Context, r Range) ([]core.Expense, error)
	TimeLogs(ctx context.Context, r Range) ([]core.TimeLog, error)
	ExpenseTotalsByCategory(ctx context.Context, r Range) ([]core.CategoryAmount, error)
	TaskStatsByCategory(ctx context.Context, r Range) ([]core.CategoryTasks, error)
	DailyExpenseTotals(ctx context.Context, r Range) ([]core.DayAmount, error)
	TaskSpan(ctx context.Context, r Range) (first, last time.Time, ok bool, err error)
}

// Store is everything the SQLite implementation offers.
type Store interface {
	Writer
	RawReader
	CuratedReader
	Counts(ctx context.Context, layer Layer) (LayerCounts, error)
	Runs(ctx context.Context, limit int) ([]RunRecord, error)
	Ping(ctx context.Context) error
	Close() error
}

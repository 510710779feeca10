package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"personal-analytics/internal/core"

	_ "modernc.org/sqlite"
)

// ErrRawAppendOnly is returned when a caller asks to truncate the raw layer.
var ErrRawAppendOnly = errors.New("raw layer is append-only")

// ingestLayout sorts lexically, so MIN(ingested_at) is the first ingestion.
const ingestLayout = "2006-01-02 15:04:05.000000"

// SQLiteStore implements Store on a single SQLite database file.
type SQLiteStore struct {
	db  *sql.DB
	loc *time.Location
	now func() time.Time
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) the database at dbPath and applies migrations.
// Task timestamps are stored as wall clock text in loc.
func NewSQLiteStore(dbPath string, loc *time.Location) (*SQLiteStore, error) {
	if loc == nil {
		loc = time.Local
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteStore{db: db, loc: loc, now: time.Now}, nil
}

func dsn(path string) string {
	return path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Location is the zone task timestamps are interpreted in.
func (s *SQLiteStore) Location() *time.Location {
	return s.loc
}

// withTx runs fn in a transaction. Any failure rolls the whole batch back and
// surfaces as a *core.StorageError.
func (s *SQLiteStore) withTx(ctx context.Context, op string, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &core.StorageError{Op: op, Err: err}
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return &core.StorageError{Op: op, Err: err}
	}
	if err := tx.Commit(); err != nil {
		return &core.StorageError{Op: op, Err: err}
	}
	return nil
}

// WriteRaw appends rows to the raw layer exactly as they were read.
func (s *SQLiteStore) WriteRaw(ctx context.Context, source, runID string, b RawBatch) error {
	ingestedAt := s.now().UTC().Format(ingestLayout)

	err := s.withTx(ctx, "write raw", func(tx *sql.Tx) error {
		for _, r := range b.Tasks {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO raw_tasks (run_id, source, row_index, external_id, title, category, completed_at, duration_minutes, ingested_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				runID, source, r.Row, r.ExternalID, r.Title, r.Category, r.CompletedAt, r.DurationMinutes, ingestedAt); err != nil {
				return fmt.Errorf("insert raw task row %d: %w", r.Row, err)
			}
		}
		for _, r := range b.Expenses {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO raw_expenses (run_id, source, row_index, date, category, description, amount, ingested_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				runID, source, r.Row, r.Date, r.Category, r.Description, r.Amount, ingestedAt); err != nil {
				return fmt.Errorf("insert raw expense row %d: %w", r.Row, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	slog.DebugContext(ctx, "Raw rows written", "source", source, "run_id", runID, "rows", b.Len())
	return nil
}

// WriteStaging replaces the staging content of source with b.
func (s *SQLiteStore) WriteStaging(ctx context.Context, source, runID string, b Batch) error {
	err := s.withTx(ctx, "write staging", func(tx *sql.Tx) error {
		for _, table := range []string{"staging_time_logs", "staging_tasks", "staging_expenses"} {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE source = ?", source); err != nil {
				return fmt.Errorf("clear %s: %w", table, err)
			}
		}
		for _, t := range b.Tasks {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO staging_tasks (run_id, source, external_id, title, category, completed_at, duration_minutes)
				VALUES (?, ?, ?, ?, ?, ?, ?)`,
				runID, source, t.ExternalID, t.Title, string(t.Category), s.formatTS(t.CompletedAt), t.DurationMinutes); err != nil {
				return fmt.Errorf("insert staging task %s: %w", t.ExternalID, err)
			}
		}
		for _, e := range b.Expenses {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO staging_expenses (run_id, source, date, category, description, amount_cents)
				VALUES (?, ?, ?, ?, ?, ?)`,
				runID, source, e.Date.String(), string(e.Category), e.Description, e.Amount.Cents); err != nil {
				return fmt.Errorf("insert staging expense: %w", err)
			}
		}
		for _, l := range b.TimeLogs {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO staging_time_logs (run_id, source, task_external_id, category, duration_minutes, logged_at)
				VALUES (?, ?, ?, ?, ?, ?)`,
				runID, source, l.TaskExternalID, string(l.Category), l.DurationMinutes, s.formatTS(l.LoggedAt)); err != nil {
				return fmt.Errorf("insert staging time log %s: %w", l.TaskExternalID, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	slog.DebugContext(ctx, "Staging replaced", "source", source, "run_id", runID, "rows", b.Len())
	return nil
}

// UpsertCurated applies b to the curated layer in one transaction.
// Tasks are inserted or updated by external id, expenses are inserted or
// ignored by identity key, and time logs follow their task.
func (s *SQLiteStore) UpsertCurated(ctx context.Context, source string, b Batch) (UpsertStats, error) {
	var stats UpsertStats
	updatedAt := s.now().UTC().Format(ingestLayout)

	err := s.withTx(ctx, "upsert curated", func(tx *sql.Tx) error {
		stats = UpsertStats{}
		for _, t := range b.Tasks {
			outcome, err := s.upsertTask(ctx, tx, source, updatedAt, t)
			if err != nil {
				return err
			}
			switch outcome {
			case outcomeInserted:
				stats.Inserted++
			case outcomeUpdated:
				stats.Updated++
			default:
				stats.Unchanged++
			}
			if t.DurationMinutes == 0 {
				if _, err := tx.ExecContext(ctx, "DELETE FROM curated_time_logs WHERE task_external_id = ?", t.ExternalID); err != nil {
					return fmt.Errorf("drop time log %s: %w", t.ExternalID, err)
				}
			}
		}

		for _, e := range b.Expenses {
			res, err := tx.ExecContext(ctx, `
				INSERT INTO curated_expenses (date, category, description, amount_cents, source, created_at)
				VALUES (?, ?, ?, ?, ?, ?)
				ON CONFLICT (date, category, description, amount_cents) DO NOTHING`,
				e.Date.String(), string(e.Category), e.Description, e.Amount.Cents, source, updatedAt)
			if err != nil {
				return fmt.Errorf("insert curated expense: %w", err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("rows affected: %w", err)
			}
			if n == 0 {
				stats.Ignored++
			} else {
				stats.Inserted++
			}
		}

		for _, l := range b.TimeLogs {
			res, err := tx.ExecContext(ctx, `
				INSERT INTO curated_time_logs (task_external_id, category, duration_minutes, logged_at)
				VALUES (?, ?, ?, ?)
				ON CONFLICT (task_external_id) DO UPDATE SET
					category = excluded.category,
					duration_minutes = excluded.duration_minutes,
					logged_at = excluded.logged_at
				WHERE category <> excluded.category
					OR duration_minutes <> excluded.duration_minutes
					OR logged_at <> excluded.logged_at`,
				l.TaskExternalID, string(l.Category), l.DurationMinutes, s.formatTS(l.LoggedAt))
			if err != nil {
				return fmt.Errorf("upsert time log %s: %w", l.TaskExternalID, err)
			}
			if n, _ := res.RowsAffected(); n > 0 {
				stats.TimeLogs++
			}
		}
		return nil
	})
	if err != nil {
		return UpsertStats{}, err
	}

	slog.DebugContext(ctx, "Curated upsert committed",
		"source", source,
		"inserted", stats.Inserted,
		"updated", stats.Updated,
		"unchanged", stats.Unchanged,
		"ignored", stats.Ignored)
	return stats, nil
}

type upsertOutcome int

const (
	outcomeUnchanged upsertOutcome = iota
	outcomeInserted
	outcomeUpdated
)

func (s *SQLiteStore) upsertTask(ctx context.Context, tx *sql.Tx, source, updatedAt string, t core.Task) (upsertOutcome, error) {
	completedAt := s.formatTS(t.CompletedAt)

	var (
		title, category, existingAt string
		minutes                     int
	)
	err := tx.QueryRowContext(ctx, `
		SELECT title, category, completed_at, duration_minutes
		FROM curated_tasks WHERE external_id = ?`, t.ExternalID).
		Scan(&title, &category, &existingAt, &minutes)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO curated_tasks (external_id, title, category, completed_at, duration_minutes, source, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			t.ExternalID, t.Title, string(t.Category), completedAt, t.DurationMinutes, source, updatedAt); err != nil {
			return 0, fmt.Errorf("insert curated task %s: %w", t.ExternalID, err)
		}
		return outcomeInserted, nil
	case err != nil:
		return 0, fmt.Errorf("lookup curated task %s: %w", t.ExternalID, err)
	}

	if title == t.Title && category == string(t.Category) && existingAt == completedAt && minutes == t.DurationMinutes {
		return outcomeUnchanged, nil
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE curated_tasks
		SET title = ?, category = ?, completed_at = ?, duration_minutes = ?, source = ?, updated_at = ?
		WHERE external_id = ?`,
		t.Title, string(t.Category), completedAt, t.DurationMinutes, source, updatedAt, t.ExternalID); err != nil {
		return 0, fmt.Errorf("update curated task %s: %w", t.ExternalID, err)
	}
	return outcomeUpdated, nil
}

// Truncate empties the staging or curated layer. The raw layer cannot be truncated.
func (s *SQLiteStore) Truncate(ctx context.Context, layer Layer) error {
	var tables []string
	switch layer {
	case LayerStaging:
		tables = []string{"staging_time_logs", "staging_tasks", "staging_expenses"}
	case LayerCurated:
		tables = []string{"curated_time_logs", "curated_tasks", "curated_expenses"}
	case LayerRaw:
		return &core.StorageError{Op: "truncate", Err: ErrRawAppendOnly}
	default:
		return &core.StorageError{Op: "truncate", Err: fmt.Errorf("unknown layer %q", layer)}
	}

	err := s.withTx(ctx, "truncate "+string(layer), func(tx *sql.Tx) error {
		for _, table := range tables {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
				return fmt.Errorf("clear %s: %w", table, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	slog.InfoContext(ctx, "Layer truncated", "layer", layer, "tables", strings.Join(tables, ","))
	return nil
}

// RecordRun stores the outcome of one file run in etl_runs.
func (s *SQLiteStore) RecordRun(ctx context.Context, run RunRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO etl_runs (run_id, source, state, rows_read, loaded, skipped, error, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.RunID, run.Source, run.State, run.RowsRead, run.Loaded, run.Skipped, run.Error,
		run.StartedAt.UTC().Format(ingestLayout), run.FinishedAt.UTC().Format(ingestLayout))
	if err != nil {
		return &core.StorageError{Op: "record run", Err: err}
	}
	return nil
}

func (s *SQLiteStore) formatTS(t time.Time) string {
	return t.In(s.loc).Format(core.TimestampLayout)
}

func (s *SQLiteStore) parseTS(v string) (time.Time, error) {
	return core.ParseTimestamp(v, s.loc)
}

// Package etl moves source rows through the raw, staging and curated layers.
//
// Each source is processed on its own:
//
//	Pending -> Read -> Normalized -> Deduplicated -> Staged -> Curated -> Done
//
// and any step may end in Failed. A failed source never stops the others.
package etl

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"personal-analytics/internal/core"
	"personal-analytics/internal/dedupe"
	"personal-analytics/internal/log"
	"personal-analytics/internal/metrics"
	"personal-analytics/internal/normalize"
	"personal-analytics/internal/sources"
	"personal-analytics/internal/storage"
)

// FormSourcePrefix marks single records submitted through a form.
const FormSourcePrefix = "form/"

// Store is the part of the layered store the loader writes and replays.
type Store interface {
	storage.Writer
	storage.RawReader
}

// Completion describes a finished Run, Reload or form insert.
type Completion struct {
	RunID      string
	Mode       string
	Files      int
	Failed     int
	Loaded     int
	Skipped    int
	FinishedAt time.Time
}

const (
	ModeRun    = "run"
	ModeReload = "reload"
	ModeInsert = "insert"
)

// Notifier is told about every completed load. Failures are logged, never returned.
type Notifier interface {
	NotifyCompleted(ctx context.Context, c Completion) error
}

// Loader is the only writer of the staging and curated layers.
type Loader struct {
	store      Store
	normalizer *normalize.Normalizer
	notifier   Notifier
	metrics    *metrics.Manager
	logger     *log.Logger
	structured *log.StructuredLogger
	maxSamples int
	now        func() time.Time
}

type Option func(*Loader)

func WithNotifier(n Notifier) Option {
	return func(l *Loader) { l.notifier = n }
}

func WithMetrics(m *metrics.Manager) Option {
	return func(l *Loader) { l.metrics = m }
}

func WithLogger(logger *log.Logger) Option {
	return func(l *Loader) {
		if logger != nil {
			l.logger = logger.WithComponent(log.ComponentETL)
		}
	}
}

// WithMaxSkipSamples bounds how many rejected rows are kept per file.
func WithMaxSkipSamples(n int) Option {
	return func(l *Loader) {
		if n >= 0 {
			l.maxSamples = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(l *Loader) {
		if now != nil {
			l.now = now
		}
	}
}

func NewLoader(store Store, normalizer *normalize.Normalizer, opts ...Option) *Loader {
	l := &Loader{
		store:      store,
		normalizer: normalizer,
		logger:     log.FromContext(context.Background()).WithComponent(log.ComponentETL),
		maxSamples: 5,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.structured = log.NewStructuredLogger(l.logger)
	return l
}

// Run loads every source in order. A source that fails to read or store is
// reported in its FileResult and the remaining sources still run.
func (l *Loader) Run(ctx context.Context, srcs []sources.Source) RunResult {
	run := RunResult{RunID: uuid.NewString(), StartedAt: l.now()}
	l.logger.InfoContext(ctx, "ETL run started", log.FieldRunID, run.RunID, "sources", len(srcs))

	for _, src := range srcs {
		res := l.loadSource(ctx, run.RunID, src)
		run.Files = append(run.Files, res)
	}

	run.FinishedAt = l.now()
	l.notify(ctx, ModeRun, run)
	return run
}

// Reload rebuilds staging and curated from the raw layer. Sources are replayed
// in order of first ingestion, so later rows still win over earlier ones.
func (l *Loader) Reload(ctx context.Context) (RunResult, error) {
	run := RunResult{RunID: uuid.NewString(), StartedAt: l.now()}
	l.logger.InfoContext(ctx, "Full reload started", log.FieldRunID, run.RunID)

	for _, layer := range []storage.Layer{storage.LayerStaging, storage.LayerCurated} {
		if err := l.store.Truncate(ctx, layer); err != nil {
			return run, fmt.Errorf("reload: %w", err)
		}
	}

	names, err := l.store.RawSources(ctx)
	if err != nil {
		return run, fmt.Errorf("reload: %w", err)
	}

	for _, name := range names {
		res := FileResult{Source: name, RunID: run.RunID, StartedAt: l.now()}
		raw, err := l.store.ReadRaw(ctx, name)
		if err != nil {
			res.fail(err)
		} else {
			res.Entity = entityOf(raw)
			res.advance(StateRead)
			res.RowsRead = raw.Len()
			l.process(ctx, &res, raw)
		}
		l.finish(ctx, &res)
		run.Files = append(run.Files, res)
	}

	run.FinishedAt = l.now()
	l.notify(ctx, ModeReload, run)
	return run, nil
}

// InsertTask loads one task as its own source. A *core.ValidationError is
// returned unchanged and nothing reaches staging or curated.
func (l *Loader) InsertTask(ctx context.Context, raw core.RawTask) (core.Task, FileResult, error) {
	raw.Row = 1
	t, verr := l.normalizer.Task(raw)
	res := l.insert(ctx, storage.RawBatch{Tasks: []core.RawTask{raw}})
	if err := insertErr(res, verr); err != nil {
		return core.Task{}, res, err
	}
	return t, res, nil
}

// InsertExpense is InsertTask for a single expense.
func (l *Loader) InsertExpense(ctx context.Context, raw core.RawExpense) (core.Expense, FileResult, error) {
	raw.Row = 1
	e, verr := l.normalizer.Expense(raw)
	res := l.insert(ctx, storage.RawBatch{Expenses: []core.RawExpense{raw}})
	if err := insertErr(res, verr); err != nil {
		return core.Expense{}, res, err
	}
	return e, res, nil
}

func insertErr(res FileResult, validation error) error {
	if res.Failed() {
		return res.Err
	}
	return validation
}

func (l *Loader) insert(ctx context.Context, raw storage.RawBatch) FileResult {
	runID := uuid.NewString()
	res := FileResult{Source: FormSourcePrefix + uuid.NewString(), Entity: entityOf(raw), RunID: runID, StartedAt: l.now()}

	if err := l.store.WriteRaw(ctx, res.Source, runID, raw); err != nil {
		res.fail(err)
	} else {
		res.advance(StateRead)
		res.RowsRead = raw.Len()
		l.process(ctx, &res, raw)
	}
	l.finish(ctx, &res)

	if res.Loaded > 0 {
		l.notify(ctx, ModeInsert, RunResult{RunID: runID, Files: []FileResult{res}, StartedAt: res.StartedAt, FinishedAt: res.FinishedAt})
	}
	return res
}

func (l *Loader) loadSource(ctx context.Context, runID string, src sources.Source) FileResult {
	res := FileResult{Source: src.Name(), Entity: string(src.Kind()), RunID: runID, StartedAt: l.now()}

	raw, err := src.Read(ctx)
	if err != nil {
		var ioErr *core.IOError
		if !errors.As(err, &ioErr) {
			err = &core.IOError{Path: src.Name(), Err: err}
		}
		res.fail(err)
		l.finish(ctx, &res)
		return res
	}
	res.advance(StateRead)
	res.RowsRead = raw.Len()
	l.metrics.RecordRowsRead(res.Entity, raw.Len())

	if err := l.store.WriteRaw(ctx, src.Name(), runID, raw); err != nil {
		res.fail(err)
		l.finish(ctx, &res)
		return res
	}

	l.process(ctx, &res, raw)
	l.finish(ctx, &res)
	return res
}

// process takes raw rows from Read to Done.
func (l *Loader) process(ctx context.Context, res *FileResult, raw storage.RawBatch) {
	staged := l.normalize(ctx, res, raw)
	res.Valid = staged.Len()
	res.advance(StateNormalized)

	tasks := dedupe.Tasks(staged.Tasks)
	expenses := dedupe.Expenses(staged.Expenses)
	res.Duplicates = tasks.Dropped + expenses.Dropped
	res.advance(StateDeduplicated)

	if err := l.store.WriteStaging(ctx, res.Source, res.RunID, staged); err != nil {
		res.fail(err)
		return
	}
	res.advance(StateStaged)

	curated := storage.Batch{
		Tasks:    tasks.Records,
		Expenses: expenses.Records,
		TimeLogs: timeLogs(tasks.Records),
	}
	stats, err := l.store.UpsertCurated(ctx, res.Source, curated)
	if err != nil {
		res.fail(err)
		return
	}
	res.Stats = stats
	res.Loaded = curated.Len()
	res.advance(StateCurated)

	l.metrics.RecordRowsLoaded(res.Entity, "inserted", stats.Inserted)
	l.metrics.RecordRowsLoaded(res.Entity, "updated", stats.Updated)
	l.metrics.RecordRowsLoaded(res.Entity, "unchanged", stats.Unchanged)
	l.metrics.RecordRowsLoaded(res.Entity, "ignored", stats.Ignored)

	res.advance(StateDone)
}

// normalize keeps the valid rows. Staging receives them before deduplication.
func (l *Loader) normalize(ctx context.Context, res *FileResult, raw storage.RawBatch) storage.Batch {
	var b storage.Batch
	for _, r := range raw.Tasks {
		t, err := l.normalizer.Task(r)
		if err != nil {
			l.reject(ctx, res, err)
			continue
		}
		b.Tasks = append(b.Tasks, t)
	}
	for _, r := range raw.Expenses {
		e, err := l.normalizer.Expense(r)
		if err != nil {
			l.reject(ctx, res, err)
			continue
		}
		b.Expenses = append(b.Expenses, e)
	}
	b.TimeLogs = timeLogs(b.Tasks)
	return b
}

func (l *Loader) reject(ctx context.Context, res *FileResult, err error) {
	var ve *core.ValidationError
	if !errors.As(err, &ve) {
		ve = &core.ValidationError{Field: "record", Reason: err.Error(), Err: err}
	}
	res.skip(ve, l.maxSamples)
	l.metrics.RecordRowSkipped(res.Entity, ve.Reason)
	l.logger.WarnContext(ctx, "Row skipped",
		log.NewFields().WithRun(res.RunID, res.Source).WithValidation(ve).ToSlice()...)
}

func (l *Loader) finish(ctx context.Context, res *FileResult) {
	res.FinishedAt = l.now()
	entity := res.Entity
	if entity == "" {
		entity = "unknown"
	}
	l.metrics.RecordFile(entity, res.State.String(), res.Duration())
	l.structured.LogFileResult(ctx, res.RunID, res.Source, res.State.String(), res.RowsRead, res.Loaded, res.Skipped, res.Err)

	if err := l.store.RecordRun(ctx, res.record()); err != nil {
		l.logger.WarnContext(ctx, "Run audit not recorded",
			log.NewFields().WithRun(res.RunID, res.Source).WithError(err).ToSlice()...)
	}
}

func (l *Loader) notify(ctx context.Context, mode string, run RunResult) {
	if l.notifier == nil {
		return
	}
	c := Completion{
		RunID:      run.RunID,
		Mode:       mode,
		Files:      len(run.Files),
		Failed:     run.FailedCount(),
		Loaded:     run.Loaded(),
		Skipped:    run.Skipped(),
		FinishedAt: run.FinishedAt,
	}
	err := l.notifier.NotifyCompleted(ctx, c)
	l.metrics.RecordEventPublished(err == nil)
	if err != nil {
		l.logger.WarnContext(ctx, "ETL completion not published",
			log.FieldRunID, run.RunID, log.FieldError, err.Error())
	}
}

func timeLogs(tasks []core.Task) []core.TimeLog {
	var logs []core.TimeLog
	for _, t := range tasks {
		if tl, ok := t.TimeLog(); ok {
			logs = append(logs, tl)
		}
	}
	return logs
}

func entityOf(raw storage.RawBatch) string {
	if len(raw.Expenses) > len(raw.Tasks) {
		return string(sources.KindExpenses)
	}
	return string(sources.KindTasks)
}

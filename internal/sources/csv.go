package sources

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"personal-analytics/internal/core"
	"personal-analytics/internal/storage"
)

// CSVFile is a delimited UTF-8 file with a header row.
type CSVFile struct {
	Path string
	kind Kind
}

var _ Source = (*CSVFile)(nil)

func NewCSVFile(path string, kind Kind) *CSVFile {
	return &CSVFile{Path: path, kind: kind}
}

// Name is the file's base name, which also keys its staging rows.
func (f *CSVFile) Name() string { return filepath.Base(f.Path) }

func (f *CSVFile) Kind() Kind { return f.kind }

func (f *CSVFile) Read(ctx context.Context) (storage.RawBatch, error) {
	fh, err := os.Open(f.Path)
	if err != nil {
		return storage.RawBatch{}, &core.IOError{Path: f.Path, Err: err}
	}
	defer fh.Close()

	r := csv.NewReader(fh)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var records [][]string
	for {
		if err := ctx.Err(); err != nil {
			return storage.RawBatch{}, err
		}
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return storage.RawBatch{}, &core.IOError{Path: f.Path, Err: err}
		}
		records = append(records, rec)
	}

	b, err := Decode(f.kind, records)
	if err != nil {
		return storage.RawBatch{}, &core.IOError{Path: f.Path, Err: err}
	}
	return b, nil
}

// AppendRecord adds one row to the CSV file at path, writing the header for kind first
// when the file is new or empty.
func AppendRecord(path string, kind Kind, record []string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return &core.IOError{Path: path, Err: err}
	}
	fh, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return &core.IOError{Path: path, Err: err}
	}
	defer fh.Close()

	info, err := fh.Stat()
	if err != nil {
		return &core.IOError{Path: path, Err: err}
	}

	w := csv.NewWriter(fh)
	if info.Size() == 0 {
		if err := w.Write(kind.Columns()); err != nil {
			return &core.IOError{Path: path, Err: err}
		}
	}
	if err := w.Write(record); err != nil {
		return &core.IOError{Path: path, Err: err}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return &core.IOError{Path: path, Err: fmt.Errorf("flush: %w", err)}
	}
	return nil
}

// TaskRecord renders a canonical task in tasks.csv column order.
func TaskRecord(t core.Task) []string {
	return []string{
		t.ExternalID,
		t.Title,
		string(t.Category),
		t.CompletedAt.Format(core.TimestampLayout),
		strconv.Itoa(t.DurationMinutes),
	}
}

// ExpenseRecord renders a canonical expense in finance.csv column order.
func ExpenseRecord(e core.Expense) []string {
	return []string{
		e.Date.String(),
		string(e.Category),
		e.Description,
		e.Amount.String(),
	}
}

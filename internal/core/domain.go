package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	// TimestampLayout is the only accepted format for task completion times.
	TimestampLayout = "2006-01-02 15:04:05"
	// DateLayout is the only accepted format for expense dates.
	DateLayout = "2006-01-02"
)

type (
	Date struct {
		time.Time
	}

	// Task is a completed unit of work. ExternalID is stable across re-imports.
	Task struct {
		ExternalID      string
		Title           string
		Category        TaskCategory
		CompletedAt     time.Time
		DurationMinutes int
	}

	Expense struct {
		Date        Date
		Category    ExpenseCategory
		Description string
		Amount      Money
	}

	// TimeLog is derived from a Task with a nonzero duration.
	TimeLog struct {
		TaskExternalID  string
		Category        TaskCategory
		DurationMinutes int
		LoggedAt        time.Time
	}

	// RawTask carries a source row verbatim. Row is the 1-based data row index.
	RawTask struct {
		Row             int
		ExternalID      string
		Title           string
		Category        string
		CompletedAt     string
		DurationMinutes string
	}

	RawExpense struct {
		Row         int
		Date        string
		Category    string
		Description string
		Amount      string
	}

	// ExpenseKey is the identity tuple of an expense.
	ExpenseKey struct {
		Date        string
		Category    ExpenseCategory
		Description string
		AmountCents int64
	}
)

var (
	ErrRequired = errors.New("required")
	ErrNegative = errors.New("negative value")
	ErrNotWhole = errors.New("not a whole number")
	ErrTooLarge = errors.New("value too large")
)

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar date as seen in t's location.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), int(t.Month()), t.Day())
}

// ParseDate parses a YYYY-MM-DD value.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, err
	}
	return Date{Time: t}, nil
}

// ParseTimestamp parses a YYYY-MM-DD HH:MM:SS value as wall clock time in loc.
func ParseTimestamp(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	return time.ParseInLocation(TimestampLayout, strings.TrimSpace(s), loc)
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

// Midnight returns the start of d in loc.
func (d Date) Midnight(loc *time.Location) time.Time {
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, loc)
}

func (d Date) Validate() error {
	if d.IsZero() {
		return errors.New("date cannot be zero")
	}
	return nil
}

func (t Task) Validate() error {
	if strings.TrimSpace(t.ExternalID) == "" {
		return fmt.Errorf("external_id: %w", ErrRequired)
	}
	if strings.TrimSpace(t.Title) == "" {
		return fmt.Errorf("title: %w", ErrRequired)
	}
	if !t.Category.Valid() {
		return fmt.Errorf("category %q: %w", t.Category, ErrUnknownCategory)
	}
	if t.CompletedAt.IsZero() {
		return fmt.Errorf("completed_at: %w", ErrRequired)
	}
	if t.DurationMinutes < 0 {
		return fmt.Errorf("duration_minutes: %w", ErrNegative)
	}
	return nil
}

// TimeLog returns the derived time log entry, or false when the task carries no duration.
func (t Task) TimeLog() (TimeLog, bool) {
	if t.DurationMinutes <= 0 {
		return TimeLog{}, false
	}
	return TimeLog{
		TaskExternalID:  t.ExternalID,
		Category:        t.Category,
		DurationMinutes: t.DurationMinutes,
		LoggedAt:        t.CompletedAt,
	}, true
}

func (e Expense) Validate() error {
	if err := e.Date.Validate(); err != nil {
		return err
	}
	if !e.Category.Valid() {
		return fmt.Errorf("category %q: %w", e.Category, ErrUnknownCategory)
	}
	return e.Amount.Validate()
}

func (e Expense) Key() ExpenseKey {
	return ExpenseKey{
		Date:        e.Date.String(),
		Category:    e.Category,
		Description: e.Description,
		AmountCents: e.Amount.Cents,
	}
}

// Less orders keys by date, category, description, then amount.
func (k ExpenseKey) Less(o ExpenseKey) bool {
	if k.Date != o.Date {
		return k.Date < o.Date
	}
	if k.Category != o.Category {
		return k.Category < o.Category
	}
	if k.Description != o.Description {
		return k.Description < o.Description
	}
	return k.AmountCents < o.AmountCents
}

func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

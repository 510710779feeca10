// Package normalize turns raw source rows into canonical task and expense
// records. Every function here is pure: a row either becomes a record or a
// *core.ValidationError naming the field and the reason.
package normalize

import (
	"errors"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"personal-analytics/internal/core"
)

// MaxDurationMinutes bounds a task duration.
const MaxDurationMinutes = math.MaxInt32

// Normalizer parses raw rows. Task timestamps are read as wall clock time in Location.
type Normalizer struct {
	Location *time.Location
}

func New(loc *time.Location) *Normalizer {
	if loc == nil {
		loc = time.Local
	}
	return &Normalizer{Location: loc}
}

// Task validates one raw task row.
func (n *Normalizer) Task(raw core.RawTask) (core.Task, error) {
	var t core.Task

	t.ExternalID = strings.TrimSpace(raw.ExternalID)
	if t.ExternalID == "" {
		return core.Task{}, invalid(raw.Row, "external_id", core.ReasonRequired, raw.ExternalID, core.ErrRequired)
	}

	t.Title = strings.TrimSpace(raw.Title)
	if t.Title == "" {
		return core.Task{}, invalid(raw.Row, "title", core.ReasonRequired, raw.Title, core.ErrRequired)
	}

	cat, err := core.ParseTaskCategory(raw.Category)
	if err != nil {
		return core.Task{}, invalid(raw.Row, "category", core.ReasonUnknownCategory, raw.Category, err)
	}
	t.Category = cat

	if strings.TrimSpace(raw.CompletedAt) == "" {
		return core.Task{}, invalid(raw.Row, "completed_at", core.ReasonRequired, raw.CompletedAt, core.ErrRequired)
	}
	t.CompletedAt, err = core.ParseTimestamp(raw.CompletedAt, n.Location)
	if err != nil {
		return core.Task{}, invalid(raw.Row, "completed_at", core.ReasonInvalidTime, raw.CompletedAt, err)
	}

	t.DurationMinutes, err = parseMinutes(raw.DurationMinutes)
	if err != nil {
		return core.Task{}, invalid(raw.Row, "duration_minutes", reasonFor(err), raw.DurationMinutes, err)
	}

	return t, nil
}

// Expense validates one raw expense row. The description may be empty.
func (n *Normalizer) Expense(raw core.RawExpense) (core.Expense, error) {
	var e core.Expense

	if strings.TrimSpace(raw.Date) == "" {
		return core.Expense{}, invalid(raw.Row, "date", core.ReasonRequired, raw.Date, core.ErrRequired)
	}
	d, err := core.ParseDate(raw.Date)
	if err != nil {
		return core.Expense{}, invalid(raw.Row, "date", core.ReasonInvalidDate, raw.Date, err)
	}
	e.Date = d

	cat, err := core.ParseExpenseCategory(raw.Category)
	if err != nil {
		return core.Expense{}, invalid(raw.Row, "category", core.ReasonUnknownCategory, raw.Category, err)
	}
	e.Category = cat

	e.Description = strings.TrimSpace(raw.Description)

	e.Amount, err = core.ParseMoney(raw.Amount)
	if err != nil {
		return core.Expense{}, invalid(raw.Row, "amount", reasonFor(err), raw.Amount, err)
	}

	return e, nil
}

func parseMinutes(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, core.ErrRequired
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, core.ErrInvalidAmount
	}
	if d.IsNegative() {
		return 0, core.ErrNegative
	}
	if !d.IsInteger() {
		return 0, core.ErrNotWhole
	}
	if d.GreaterThan(decimal.NewFromInt(MaxDurationMinutes)) {
		return 0, core.ErrTooLarge
	}
	return int(d.IntPart()), nil
}

func reasonFor(err error) string {
	switch {
	case errors.Is(err, core.ErrRequired):
		return core.ReasonRequired
	case errors.Is(err, core.ErrNegative):
		return core.ReasonNegative
	case errors.Is(err, core.ErrNotWhole):
		return core.ReasonNotWhole
	case errors.Is(err, core.ErrTooLarge):
		return core.ReasonTooLarge
	default:
		return core.ReasonInvalidNumber
	}
}

func invalid(row int, field, reason, value string, err error) *core.ValidationError {
	return &core.ValidationError{
		Row:    row,
		Field:  field,
		Reason: reason,
		Value:  strings.TrimSpace(value),
		Err:    err,
	}
}

package analytics

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"personal-analytics/internal/core"
	"personal-analytics/internal/storage"
)

// ErrInvalidPeriod is wrapped by ParsePeriod failures.
var ErrInvalidPeriod = errors.New("invalid period")

const maxPeriodDays = 3660

// Period is a window ending now: every record, today only, or the last N calendar days.
type Period struct {
	days  int // 0 means all
	label string
}

var (
	PeriodAll   = Period{label: "all"}
	PeriodToday = Period{days: 1, label: "today"}
)

// LastDays is the window covering today and the N-1 calendar days before it.
func LastDays(n int) Period {
	return Period{days: n, label: fmt.Sprintf("%dd", n)}
}

// ParsePeriod accepts "all", "today" and "Nd" such as "7d" or "30d".
func ParsePeriod(s string) (Period, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	switch v {
	case "", "all":
		return PeriodAll, nil
	case "today":
		return PeriodToday, nil
	}
	if n, ok := strings.CutSuffix(v, "d"); ok {
		if days, err := strconv.Atoi(n); err == nil && days >= 1 && days <= maxPeriodDays {
			return LastDays(days), nil
		}
	}
	return Period{}, &core.ValidationError{Field: "period", Reason: ErrInvalidPeriod.Error(), Value: s, Err: ErrInvalidPeriod}
}

func (p Period) String() string {
	if p.label == "" {
		return "all"
	}
	return p.label
}

// Days is the number of calendar days covered, 0 for all.
func (p Period) Days() int { return p.days }

func (p Period) IsAll() bool { return p.days == 0 }

// Range is the storage range of p at now. Both ends are inclusive.
func (p Period) Range(now time.Time, loc *time.Location) storage.Range {
	if p.IsAll() {
		return storage.Range{}
	}
	now = now.In(loc)
	start := startOfDay(now).AddDate(0, 0, -(p.days - 1))
	return storage.Range{From: start, To: now}
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

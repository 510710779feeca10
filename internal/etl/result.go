package etl

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"personal-analytics/internal/core"
	"personal-analytics/internal/storage"
)

// State is the position of one file in the load pipeline.
type State int

const (
	StatePending State = iota
	StateRead
	StateNormalized
	StateDeduplicated
	StateStaged
	StateCurated
	StateDone
	StateFailed
)

var stateNames = [...]string{"pending", "read", "normalized", "deduplicated", "staged", "curated", "done", "failed"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// FileResult is the outcome of loading one source.
type FileResult struct {
	Source string
	// Entity is "tasks" or "expenses", the kind of rows the source carried.
	Entity string
	RunID  string
	State  State
	// FailedIn is the last state reached before a failure.
	FailedIn State
	Err      error

	RowsRead   int
	Valid      int
	Duplicates int
	// Loaded is the number of deduplicated records applied to curated.
	Loaded int
	Stats  storage.UpsertStats

	Skipped     int
	SkipReasons map[string]int
	Samples     []*core.ValidationError

	StartedAt  time.Time
	FinishedAt time.Time
}

func (r *FileResult) advance(s State) { r.State = s }

func (r *FileResult) fail(err error) {
	r.FailedIn = r.State
	r.State = StateFailed
	r.Err = err
}

func (r *FileResult) skip(ve *core.ValidationError, maxSamples int) {
	r.Skipped++
	if r.SkipReasons == nil {
		r.SkipReasons = make(map[string]int)
	}
	r.SkipReasons[ve.Reason]++
	if len(r.Samples) < maxSamples {
		r.Samples = append(r.Samples, ve)
	}
}

func (r FileResult) Failed() bool { return r.State == StateFailed }

func (r FileResult) Duration() time.Duration { return r.FinishedAt.Sub(r.StartedAt) }

// Summary renders the result on one line, e.g.
// "tasks.csv: 120 rows loaded, 3 skipped: unknown category (3)".
func (r FileResult) Summary() string {
	if r.Failed() {
		return fmt.Sprintf("%s: failed while %s: %v", r.Source, r.FailedIn, r.Err)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %d rows loaded", r.Source, r.Loaded)
	if r.Skipped > 0 {
		fmt.Fprintf(&b, ", %d skipped: %s", r.Skipped, r.reasonList())
	}
	return b.String()
}

func (r FileResult) reasonList() string {
	reasons := make([]string, 0, len(r.SkipReasons))
	for reason := range r.SkipReasons {
		reasons = append(reasons, reason)
	}
	sort.Slice(reasons, func(i, j int) bool {
		ci, cj := r.SkipReasons[reasons[i]], r.SkipReasons[reasons[j]]
		if ci != cj {
			return ci > cj
		}
		return reasons[i] < reasons[j]
	})
	parts := make([]string, len(reasons))
	for i, reason := range reasons {
		parts[i] = fmt.Sprintf("%s (%d)", reason, r.SkipReasons[reason])
	}
	return strings.Join(parts, ", ")
}

func (r FileResult) record() storage.RunRecord {
	rec := storage.RunRecord{
		RunID:      r.RunID,
		Source:     r.Source,
		State:      r.State.String(),
		RowsRead:   r.RowsRead,
		Loaded:     r.Loaded,
		Skipped:    r.Skipped,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
	}
	if r.Err != nil {
		rec.Error = r.Err.Error()
	}
	return rec
}

// RunResult collects the file results of one Run or Reload.
type RunResult struct {
	RunID      string
	Files      []FileResult
	StartedAt  time.Time
	FinishedAt time.Time
}

// Failed reports whether any file failed.
func (r RunResult) Failed() bool {
	for _, f := range r.Files {
		if f.Failed() {
			return true
		}
	}
	return false
}

// AllFailed reports whether there were files and none of them succeeded.
func (r RunResult) AllFailed() bool {
	if len(r.Files) == 0 {
		return false
	}
	for _, f := range r.Files {
		if !f.Failed() {
			return false
		}
	}
	return true
}

func (r RunResult) Loaded() int {
	n := 0
	for _, f := range r.Files {
		n += f.Loaded
	}
	return n
}

func (r RunResult) Skipped() int {
	n := 0
	for _, f := range r.Files {
		n += f.Skipped
	}
	return n
}

func (r RunResult) FailedCount() int {
	n := 0
	for _, f := range r.Files {
		if f.Failed() {
			n++
		}
	}
	return n
}

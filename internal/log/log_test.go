package log

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"personal-analytics/internal/core"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		m := map[string]any{}
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

func TestLoggerComponent(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: slog.LevelDebug, Format: "json", Component: ComponentETL, Output: &buf})

	l.With(FieldRunID, "r1").WithComponent(ComponentStorage).Info("stored")
	l.Debug("debug line")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 2)
	assert.Equal(t, "storage", lines[0][FieldComponent])
	assert.Equal(t, "r1", lines[0][FieldRunID])
	assert.Equal(t, "etl", lines[1][FieldComponent])
	assert.Equal(t, ComponentStorage, l.With().WithComponent(ComponentStorage).Component())
}

func TestParseLevel(t *testing.T) {
	lvl, err := ParseLevel("warn")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelWarn, lvl)

	_, err = ParseLevel("loud")
	assert.Error(t, err)
}

func TestFieldsWithError(t *testing.T) {
	f := NewFields().WithError(&core.StorageError{Op: "upsert", Err: errors.New("boom")})
	assert.Equal(t, core.KindStorage, f[FieldErrorKind])
	assert.Equal(t, "storage upsert: boom", f[FieldError])

	ve := &core.ValidationError{Row: 4, Field: "category", Reason: core.ReasonUnknownCategory}
	f = NewFields().WithValidation(ve)
	assert.Equal(t, 4, f[FieldRow])
	assert.Equal(t, []any{FieldReason, core.ReasonUnknownCategory, FieldRow, 4}, f.ToSlice())
}

func TestContextCarriesLogger(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Format: "json", Output: &buf}).WithComponent(ComponentHTTP).With(FieldRequestID, "req-1")

	ctx := NewContext(context.Background(), l)
	FromContext(ctx).Info("handled")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "req-1", lines[0][FieldRequestID])
	assert.Equal(t, "http", lines[0][FieldComponent])
}

func TestFromContextFallsBack(t *testing.T) {
	assert.Equal(t, "unknown", FromContext(context.Background()).Component())
}

func TestLogFileResult(t *testing.T) {
	var buf bytes.Buffer
	sl := NewStructuredLogger(New(Config{Format: "json", Output: &buf, Component: ComponentETL}))

	sl.LogFileResult(context.Background(), "run", "tasks.csv", "done", 10, 8, 2, nil)
	sl.LogFileResult(context.Background(), "run", "missing.csv", "failed", 0, 0, 0, &core.IOError{Path: "missing.csv", Err: errors.New("no such file")})

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 2)
	assert.Equal(t, "INFO", lines[0]["level"])
	assert.EqualValues(t, 8, lines[0][FieldLoaded])
	assert.Equal(t, "ERROR", lines[1]["level"])
	assert.Equal(t, core.KindIO, lines[1][FieldErrorKind])
}

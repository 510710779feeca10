package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"personal-analytics/internal/analytics"
	"personal-analytics/internal/core"
	"personal-analytics/internal/forecast"
)

const maxBodyBytes = 1 << 20

// errBadRequest marks bodies that could not be decoded at all.
var errBadRequest = errors.New("bad request")

// TaskRequest is the JSON body of POST /api/tasks. Omitted fields get the
// same defaults as the HTML form.
type TaskRequest struct {
	ExternalID      string      `json:"external_id"`
	Title           string      `json:"title"`
	Category        string      `json:"category"`
	CompletedAt     string      `json:"completed_at"`
	DurationMinutes json.Number `json:"duration_minutes"`
}

// ExpenseRequest is the JSON body of POST /api/expenses.
type ExpenseRequest struct {
	Date        string      `json:"date"`
	Category    string      `json:"category"`
	Description string      `json:"description"`
	Amount      json.Number `json:"amount"`
}

// Raw applies defaults: a generated id and the current time.
func (t TaskRequest) Raw(now time.Time) core.RawTask {
	raw := core.RawTask{
		ExternalID:      sanitizeInput(t.ExternalID),
		Title:           sanitizeInput(t.Title),
		Category:        sanitizeInput(t.Category),
		CompletedAt:     strings.TrimSpace(t.CompletedAt),
		DurationMinutes: strings.TrimSpace(t.DurationMinutes.String()),
	}
	if raw.ExternalID == "" {
		raw.ExternalID = uuid.NewString()
	}
	if raw.CompletedAt == "" {
		raw.CompletedAt = now.Format(core.TimestampLayout)
	}
	return raw
}

// Raw applies the default date, today.
func (e ExpenseRequest) Raw(now time.Time) core.RawExpense {
	raw := core.RawExpense{
		Date:        strings.TrimSpace(e.Date),
		Category:    sanitizeInput(e.Category),
		Description: sanitizeInput(e.Description),
		Amount:      strings.TrimSpace(e.Amount.String()),
	}
	if raw.Date == "" {
		raw.Date = now.Format(core.DateLayout)
	}
	return raw
}

func taskRequestFromForm(form url.Values) TaskRequest {
	return TaskRequest{
		ExternalID:      form.Get("external_id"),
		Title:           form.Get("title"),
		Category:        form.Get("category"),
		CompletedAt:     formTimestamp(form.Get("completed_at")),
		DurationMinutes: json.Number(strings.TrimSpace(form.Get("duration_minutes"))),
	}
}

func expenseRequestFromForm(form url.Values) ExpenseRequest {
	return ExpenseRequest{
		Date:        form.Get("date"),
		Category:    form.Get("category"),
		Description: form.Get("description"),
		Amount:      json.Number(strings.TrimSpace(form.Get("amount"))),
	}
}

// formTimestamp accepts the datetime-local input format alongside the
// canonical layout.
func formTimestamp(v string) string {
	v = strings.TrimSpace(v)
	if t, err := time.Parse("2006-01-02T15:04", v); err == nil {
		return t.Format(core.TimestampLayout)
	}
	return v
}

// decodeJSON reads one JSON object from the body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: body must hold a single JSON object", errBadRequest)
	}
	return nil
}

// parsePeriod reads ?period=, defaulting to all.
func parsePeriod(query url.Values) (analytics.Period, error) {
	return analytics.ParsePeriod(query.Get("period"))
}

// parseHorizon reads ?horizon=, defaulting to def.
func parseHorizon(query url.Values, def int) (int, error) {
	v := strings.TrimSpace(query.Get("horizon"))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, &core.ValidationError{Field: "horizon", Reason: core.ReasonInvalidNumber, Value: v, Err: err}
	}
	if err := forecast.ValidateHorizon(n); err != nil {
		return 0, err
	}
	return n, nil
}

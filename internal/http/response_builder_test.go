package http

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"personal-analytics/internal/core"
)

func TestHTMXResponseBuilder_Triggers(t *testing.T) {
	w := httptest.NewRecorder()

	SuccessResponse("Saved <now>").
		TriggerRecordCreated("tasks", 1).
		Write(w)

	if w.Code != http.StatusOK {
		t.Errorf("Status code = %d, want %d", w.Code, http.StatusOK)
	}
	trigger := w.Header().Get("HX-Trigger")
	for _, part := range []string{`"tasks:created"`, `"loaded":1`} {
		if !strings.Contains(trigger, part) {
			t.Errorf("HX-Trigger %q missing %s", trigger, part)
		}
	}
	if !strings.Contains(w.Body.String(), "Saved &lt;now&gt;") {
		t.Errorf("Body should be escaped, got %q", w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/html; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}
}

func TestErrorResponse(t *testing.T) {
	w := httptest.NewRecorder()
	ErrorResponse(http.StatusUnprocessableEntity, `amount: negative value ("-1")`).Write(w)

	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("Status code = %d", w.Code)
	}
	if w.Header().Get("HX-Trigger") != "" {
		t.Error("error responses carry no trigger")
	}
	if !strings.Contains(w.Body.String(), `<div class="error">amount: negative value (&#34;-1&#34;)</div>`) {
		t.Errorf("Body = %q", w.Body.String())
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		field  string
	}{
		{"validation", &core.ValidationError{Field: "amount", Reason: core.ReasonNegative}, http.StatusUnprocessableEntity, "amount"},
		{"wrapped validation", fmt.Errorf("insert: %w", &core.ValidationError{Field: "date", Reason: core.ReasonInvalidDate}), http.StatusUnprocessableEntity, "date"},
		{"insufficient data", &core.InsufficientDataError{Points: 1, Need: 2}, http.StatusUnprocessableEntity, ""},
		{"bad request", fmt.Errorf("%w: eof", errBadRequest), http.StatusBadRequest, ""},
		{"storage", &core.StorageError{Op: "upsert", Err: errors.New("disk full")}, http.StatusInternalServerError, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := statusFor(tt.err)
			if status != tt.status {
				t.Errorf("status = %d, want %d", status, tt.status)
			}
			if body.Field != tt.field {
				t.Errorf("field = %q, want %q", body.Field, tt.field)
			}
			if status == http.StatusInternalServerError && strings.Contains(body.Error, "disk full") {
				t.Error("internal errors must not leak their cause")
			}
		})
	}
}

package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"personal-analytics/internal/core"
)

func TestTaskRequestRawDefaults(t *testing.T) {
	now := time.Date(2025, 3, 12, 15, 30, 0, 0, time.UTC)

	raw := TaskRequest{Title: "  Plan week ", Category: "personal\x00", DurationMinutes: "20"}.Raw(now)

	if raw.ExternalID == "" {
		t.Error("ExternalID should be generated")
	}
	if raw.CompletedAt != "2025-03-12 15:30:00" {
		t.Errorf("CompletedAt = %q, want now", raw.CompletedAt)
	}
	if raw.Title != "Plan week" {
		t.Errorf("Title = %q, want trimmed", raw.Title)
	}
	if raw.Category != "personal" {
		t.Errorf("Category = %q, want control characters removed", raw.Category)
	}

	kept := TaskRequest{ExternalID: "abc", CompletedAt: "2025-01-01 08:00:00"}.Raw(now)
	if kept.ExternalID != "abc" || kept.CompletedAt != "2025-01-01 08:00:00" {
		t.Errorf("explicit values overwritten: %+v", kept)
	}
}

func TestExpenseRequestRawDefaults(t *testing.T) {
	now := time.Date(2025, 3, 12, 15, 30, 0, 0, time.UTC)

	raw := ExpenseRequest{Category: "food", Amount: json.Number("9.90")}.Raw(now)

	if raw.Date != "2025-03-12" {
		t.Errorf("Date = %q, want today", raw.Date)
	}
	if raw.Amount != "9.90" {
		t.Errorf("Amount = %q", raw.Amount)
	}
}

func TestRequestsFromForm(t *testing.T) {
	task := taskRequestFromForm(url.Values{
		"title":            {"Gym"},
		"category":         {"health"},
		"duration_minutes": {" 60 "},
		"completed_at":     {"2025-03-10T07:45"},
	})
	if task.CompletedAt != "2025-03-10 07:45:00" {
		t.Errorf("CompletedAt = %q, want canonical layout", task.CompletedAt)
	}
	if task.DurationMinutes.String() != "60" {
		t.Errorf("DurationMinutes = %q", task.DurationMinutes)
	}

	expense := expenseRequestFromForm(url.Values{"amount": {"3,20"}, "category": {"food"}})
	if expense.Amount.String() != "3,20" {
		t.Errorf("Amount = %q, want the submitted text", expense.Amount)
	}
}

func TestDecodeJSON(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{"valid", `{"title":"x","duration_minutes":5}`, false},
		{"duration as string", `{"duration_minutes":"5"}`, false},
		{"unknown field", `{"titel":"x"}`, true},
		{"trailing data", `{"title":"x"} {"title":"y"}`, true},
		{"truncated", `{"title":`, true},
		{"not a number", `{"duration_minutes":"five"}`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/api/tasks", strings.NewReader(tt.body))
			var req TaskRequest
			err := decodeJSON(httptest.NewRecorder(), r, &req)
			if (err != nil) != tt.wantErr {
				t.Fatalf("decodeJSON() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, errBadRequest) {
				t.Errorf("error should wrap errBadRequest, got %v", err)
			}
		})
	}
}

func TestParseHorizon(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"", 3, false},
		{"6", 6, false},
		{"0", 0, false},
		{"-2", 0, true},
		{"soon", 0, true},
		{"120", 120, false},
		{"121", 0, true},
		{"1000000000", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseHorizon(url.Values{"horizon": {tt.in}}, 3)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseHorizon(%q) error = %v", tt.in, err)
			}
			if err != nil {
				var ve *core.ValidationError
				if !errors.As(err, &ve) || ve.Field != "horizon" {
					t.Errorf("want horizon validation error, got %v", err)
				}
				return
			}
			if got != tt.want {
				t.Errorf("parseHorizon(%q) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestSanitizeInput(t *testing.T) {
	if got := sanitizeInput("  a\tb\x07c\n "); got != "a\tbc" {
		t.Errorf("sanitizeInput() = %q", got)
	}
}

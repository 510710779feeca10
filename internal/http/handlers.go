package http

import (
	"fmt"
	"net/http"
	"time"

	"personal-analytics/internal/analytics"
	"personal-analytics/internal/core"
	"personal-analytics/internal/forecast"
	"personal-analytics/internal/log"
	"personal-analytics/internal/sources"
)

// TaskJSON is the API representation of a curated task.
type TaskJSON struct {
	ExternalID      string            `json:"external_id"`
	Title           string            `json:"title"`
	Category        core.TaskCategory `json:"category"`
	CompletedAt     time.Time         `json:"completed_at"`
	DurationMinutes int               `json:"duration_minutes"`
}

// ExpenseJSON is the API representation of a curated expense.
type ExpenseJSON struct {
	Date        core.Date            `json:"date"`
	Category    core.ExpenseCategory `json:"category"`
	Description string               `json:"description"`
	Amount      core.Money           `json:"amount"`
}

// ForecastJSON pairs the monthly expense history with its projection.
type ForecastJSON struct {
	Granularity analytics.Granularity `json:"granularity"`
	History     []analytics.Point     `json:"history"`
	Forecast    forecast.Forecast     `json:"forecast"`
}

func taskJSON(t core.Task) TaskJSON {
	return TaskJSON{
		ExternalID:      t.ExternalID,
		Title:           t.Title,
		Category:        t.Category,
		CompletedAt:     t.CompletedAt,
		DurationMinutes: t.DurationMinutes,
	}
}

func expenseJSON(e core.Expense) ExpenseJSON {
	return ExpenseJSON{Date: e.Date, Category: e.Category, Description: e.Description, Amount: e.Amount}
}

func (s *Server) localNow() time.Time {
	return s.now().In(s.aggregator.Location())
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	p, err := parsePeriod(r.URL.Query())
	if err != nil {
		writeError(w, r, log.OpRead, err)
		return
	}
	tasks, err := s.reader.Tasks(r.Context(), p.Range(s.localNow(), s.aggregator.Location()))
	if err != nil {
		writeError(w, r, log.OpRead, err)
		return
	}
	out := make([]TaskJSON, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, taskJSON(t))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	p, err := parsePeriod(r.URL.Query())
	if err != nil {
		writeError(w, r, log.OpRead, err)
		return
	}
	expenses, err := s.reader.Expenses(r.Context(), p.Range(s.localNow(), s.aggregator.Location()))
	if err != nil {
		writeError(w, r, log.OpRead, err)
		return
	}
	out := make([]ExpenseJSON, 0, len(expenses))
	for _, e := range expenses {
		out = append(out, expenseJSON(e))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	p, err := parsePeriod(r.URL.Query())
	if err != nil {
		writeError(w, r, log.OpSummarize, err)
		return
	}
	summary, err := s.aggregator.Summarize(r.Context(), p)
	if err != nil {
		writeError(w, r, log.OpSummarize, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleForecast(w http.ResponseWriter, r *http.Request) {
	horizon, err := parseHorizon(r.URL.Query(), s.horizon)
	if err != nil {
		writeError(w, r, log.OpForecast, err)
		return
	}
	history, err := s.aggregator.MonthlyExpenses(r.Context())
	if err != nil {
		writeError(w, r, log.OpForecast, err)
		return
	}
	fc, err := s.forecaster.Forecast(history, horizon)
	if err != nil {
		writeError(w, r, log.OpForecast, err)
		return
	}
	writeJSON(w, http.StatusOK, ForecastJSON{Granularity: analytics.Monthly, History: history, Forecast: fc})
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req TaskRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, log.OpInsert, err)
		return
	}
	task, _, err := s.inserter.InsertTask(r.Context(), req.Raw(s.localNow()))
	if err != nil {
		writeError(w, r, log.OpInsert, err)
		return
	}
	writeJSON(w, http.StatusCreated, taskJSON(task))
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	var req ExpenseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, log.OpInsert, err)
		return
	}
	expense, _, err := s.inserter.InsertExpense(r.Context(), req.Raw(s.localNow()))
	if err != nil {
		writeError(w, r, log.OpInsert, err)
		return
	}
	writeJSON(w, http.StatusCreated, expenseJSON(expense))
}

type indexData struct {
	TaskCategories    []core.TaskCategory
	ExpenseCategories []core.ExpenseCategory
	Now               string
	Today             string
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if s.templates == nil {
		http.Error(w, "templates not loaded", http.StatusInternalServerError)
		return
	}
	now := s.localNow()
	data := indexData{
		TaskCategories:    core.TaskCategories,
		ExpenseCategories: core.ExpenseCategories,
		Now:               now.Format("2006-01-02T15:04"),
		Today:             now.Format(core.DateLayout),
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.templates.ExecuteTemplate(w, "index.html", data); err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Index template execution failed",
			log.FieldError, err.Error(), log.FieldOperation, log.OpRender)
	}
}

func (s *Server) handleTaskForm(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		ErrorResponse(http.StatusBadRequest, "Invalid form submission").Write(w)
		return
	}
	task, res, err := s.inserter.InsertTask(r.Context(), taskRequestFromForm(r.PostForm).Raw(s.localNow()))
	if err != nil {
		writeErrorHTML(w, r, log.OpInsert, err)
		return
	}
	SuccessResponse(fmt.Sprintf("Task saved: %s (%s, %d min)", task.Title, task.Category, task.DurationMinutes)).
		TriggerRecordCreated(string(sources.KindTasks), res.Loaded).
		Write(w)
}

func (s *Server) handleExpenseForm(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		ErrorResponse(http.StatusBadRequest, "Invalid form submission").Write(w)
		return
	}
	expense, res, err := s.inserter.InsertExpense(r.Context(), expenseRequestFromForm(r.PostForm).Raw(s.localNow()))
	if err != nil {
		writeErrorHTML(w, r, log.OpInsert, err)
		return
	}
	SuccessResponse(fmt.Sprintf("Expense saved: %s %s (%s)", expense.Date, expense.Amount, expense.Category)).
		TriggerRecordCreated(string(sources.KindExpenses), res.Loaded).
		Write(w)
}

// Package http serves the JSON API and the data entry form.
package http

import (
	"context"
	"html/template"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"personal-analytics/internal/analytics"
	"personal-analytics/internal/core"
	"personal-analytics/internal/etl"
	"personal-analytics/internal/forecast"
	"personal-analytics/internal/log"
	"personal-analytics/internal/metrics"
	"personal-analytics/internal/storage"
	appweb "personal-analytics/web"
)

// Inserter loads single records submitted through the API or the form.
type Inserter interface {
	InsertTask(ctx context.Context, raw core.RawTask) (core.Task, etl.FileResult, error)
	InsertExpense(ctx context.Context, raw core.RawExpense) (core.Expense, etl.FileResult, error)
}

// Pinger reports whether the store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Dependencies are the collaborators of the web server.
type Dependencies struct {
	Inserter   Inserter
	Reader     storage.CuratedReader
	Health     Pinger
	Aggregator *analytics.Aggregator
	Forecaster *forecast.Forecaster
	Metrics    *metrics.Manager
	Logger     *log.Logger
	// Horizon is the default forecast horizon in months.
	Horizon int
	// RateLimit is the number of writes per minute per client.
	RateLimit int
}

type Server struct {
	http.Server
	inserter   Inserter
	reader     storage.CuratedReader
	health     Pinger
	aggregator *analytics.Aggregator
	forecaster *forecast.Forecaster
	metrics    *metrics.Manager
	logger     *log.Logger
	templates  *template.Template
	limiter    *RateLimiter
	horizon    int
	now        func() time.Time

	shutdownOnce sync.Once
}

// NewServer configures routes and templates, returning a ready-to-run server.
func NewServer(addr string, deps Dependencies) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = log.FromContext(context.Background())
	}
	logger = logger.WithComponent(log.ComponentHTTP)

	forecaster := deps.Forecaster
	if forecaster == nil {
		forecaster = forecast.New()
	}
	horizon := deps.Horizon
	if horizon <= 0 {
		horizon = 1
	}

	s := &Server{
		inserter:   deps.Inserter,
		reader:     deps.Reader,
		health:     deps.Health,
		aggregator: deps.Aggregator,
		forecaster: forecaster,
		metrics:    deps.Metrics,
		logger:     logger,
		limiter:    NewRateLimiter(deps.RateLimit),
		horizon:    horizon,
		now:        time.Now,
	}

	t, err := template.ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		logger.Warn("Failed parsing templates", log.FieldError, err.Error())
	}
	s.templates = t

	mux := http.NewServeMux()
	mountStatic(mux, logger)
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("POST /tasks", s.handleTaskForm)
	mux.HandleFunc("POST /expenses", s.handleExpenseForm)

	mux.HandleFunc("GET /api/tasks", s.handleListTasks)
	mux.HandleFunc("POST /api/tasks", s.handleCreateTask)
	mux.HandleFunc("GET /api/expenses", s.handleListExpenses)
	mux.HandleFunc("POST /api/expenses", s.handleCreateExpense)
	mux.HandleFunc("GET /api/summary", s.handleSummary)
	mux.HandleFunc("GET /api/forecast", s.handleForecast)

	mux.HandleFunc("GET /healthz", HealthHandler(s.health))
	mux.Handle("GET /metrics", s.metrics.Handler())

	s.Server = http.Server{
		Addr: addr,
		Handler: Chain(mux,
			Trace(logger, s.metrics),
			SecurityHeaders(DefaultHeadersConfig(), logger),
			s.limiter.Middleware(logger),
		),
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   30 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 16,
	}
	return s
}

// mountStatic serves the embedded assets under /static/.
func mountStatic(mux *http.ServeMux, logger *log.Logger) {
	sub, err := fs.Sub(appweb.StaticFS, "static")
	if err != nil {
		logger.Warn("Failed to mount embedded static FS", log.FieldError, err.Error())
		return
	}
	static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
	mux.Handle("GET /static/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=3600, immutable")
		static.ServeHTTP(w, r)
	}))
}

// HealthHandler answers 200 when p can be pinged and 503 otherwise.
func HealthHandler(p Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if p != nil {
			if err := p.Ping(ctx); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{
					"status": "unavailable",
					"error":  err.Error(),
				})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{
			"status":    "ok",
			"timestamp": time.Now().Format(time.RFC3339),
		})
	}
}

// Shutdown stops the rate limiter and then the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}

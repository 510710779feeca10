// Package dashboard renders the read-only HTML dashboard. Rendered views are
// cached per period and dropped whenever an ETL completion event arrives.
package dashboard

import (
	"context"
	"errors"
	"html/template"
	"io/fs"
	"net/http"
	"time"

	"personal-analytics/internal/amqp"
	"personal-analytics/internal/analytics"
	"personal-analytics/internal/cache"
	"personal-analytics/internal/core"
	"personal-analytics/internal/forecast"
	apphttp "personal-analytics/internal/http"
	"personal-analytics/internal/log"
	"personal-analytics/internal/metrics"
	"personal-analytics/internal/report"
	appweb "personal-analytics/web"
)

// Periods offered in the period switcher.
var Periods = []string{"today", "7d", "30d", "90d", "365d", "all"}

type Dependencies struct {
	Aggregator *analytics.Aggregator
	Forecaster *forecast.Forecaster
	Health     apphttp.Pinger
	Metrics    *metrics.Manager
	Logger     *log.Logger
	CacheSize  int
	CacheTTL   time.Duration
	Horizon    int
}

type Server struct {
	http.Server
	aggregator *analytics.Aggregator
	forecaster *forecast.Forecaster
	views      *cache.Loading[View]
	cleanup    *cache.Manager
	templates  *template.Template
	logger     *log.Logger
	horizon    int
	now        func() time.Time
}

func NewServer(addr string, deps Dependencies) (*Server, error) {
	logger := deps.Logger
	if logger == nil {
		logger = log.FromContext(context.Background())
	}
	logger = logger.WithComponent(log.ComponentDashboard)

	t, err := template.ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		return nil, err
	}

	ttl := deps.CacheTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	lru := cache.NewLRUCache[View](deps.CacheSize, ttl)
	cleanup := cache.NewManager(logger)
	cleanup.Register(lru)

	forecaster := deps.Forecaster
	if forecaster == nil {
		forecaster = forecast.New()
	}

	s := &Server{
		aggregator: deps.Aggregator,
		forecaster: forecaster,
		views:      cache.NewLoading[View](lru, deps.Metrics),
		cleanup:    cleanup,
		templates:  t,
		logger:     logger,
		horizon:    max(deps.Horizon, 1),
		now:        time.Now,
	}

	mux := http.NewServeMux()
	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.FS(sub))))
	}
	mux.HandleFunc("GET /{$}", s.handleDashboard)
	mux.HandleFunc("GET /healthz", apphttp.HealthHandler(deps.Health))
	mux.Handle("GET /metrics", deps.Metrics.Handler())

	s.Server = http.Server{
		Addr: addr,
		Handler: apphttp.Chain(mux,
			apphttp.Trace(logger, deps.Metrics),
			apphttp.SecurityHeaders(apphttp.DefaultHeadersConfig(), logger),
		),
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   30 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 16,
	}
	cleanup.StartCleanup(ttl)
	return s, nil
}

// HandleETLCompleted drops every cached view. It is the AMQP consumer callback.
func (s *Server) HandleETLCompleted(ctx context.Context, msg *amqp.ETLCompletedMessage) error {
	dropped := s.views.Invalidate()
	s.logger.InfoContext(ctx, "Dashboard cache invalidated",
		log.FieldRunID, msg.RunID,
		"mode", msg.Mode,
		log.FieldLoaded, msg.Loaded,
		"dropped", dropped)
	return nil
}

// Shutdown stops the cache cleanup and the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.cleanup.Stop()
	return s.Server.Shutdown(ctx)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	p, err := analytics.ParsePeriod(r.URL.Query().Get("period"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	v, err := s.views.GetOrLoad(r.Context(), p.String(), func(ctx context.Context) (View, error) {
		return s.build(ctx, p)
	})
	if err != nil {
		log.NewStructuredLogger(log.FromContext(r.Context())).
			LogError(r.Context(), "Dashboard build failed", err, log.OpSummarize, log.NewFields().WithComponent(log.ComponentDashboard))
		http.Error(w, "dashboard unavailable", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.templates.ExecuteTemplate(w, "dashboard.html", v); err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Dashboard template execution failed",
			log.FieldError, err.Error(), log.FieldOperation, log.OpRender)
	}
}

// View is everything dashboard.html renders, already formatted.
type View struct {
	Period        string
	Periods       []string
	Summary       analytics.Summary
	ExpenseTotal  string
	TaskHours     string
	ExpenseRows   []Row
	TaskRows      []Row
	Series        []Row
	Projections   []Row
	ForecastError string
	GeneratedAt   string
}

// Row is one labelled bar. Width is a percentage of the largest row.
type Row struct {
	Name   string
	Count  int
	Amount string
	Width  int
}

func (s *Server) build(ctx context.Context, p analytics.Period) (View, error) {
	summary, err := s.aggregator.Summarize(ctx, p)
	if err != nil {
		return View{}, err
	}
	v := View{
		Period:       p.String(),
		Periods:      Periods,
		Summary:      summary,
		ExpenseTotal: report.Money(summary.ExpenseTotal.Float()),
		TaskHours:    report.Hours(summary.TaskMinutes),
		GeneratedAt:  s.now().In(s.aggregator.Location()).Format("2006-01-02 15:04"),
	}

	var expenseMax float64
	for _, c := range summary.ExpensesByCategory {
		expenseMax = max(expenseMax, c.Amount.Float())
	}
	for _, c := range summary.ExpensesByCategory {
		v.ExpenseRows = append(v.ExpenseRows, Row{Name: string(c.Category), Count: c.Count, Amount: report.Money(c.Amount.Float()), Width: width(c.Amount.Float(), expenseMax)})
	}

	var taskMax float64
	for _, c := range summary.TasksByCategory {
		taskMax = max(taskMax, float64(c.Minutes))
	}
	for _, c := range summary.TasksByCategory {
		v.TaskRows = append(v.TaskRows, Row{Name: string(c.Category), Count: c.Count, Amount: report.Hours(c.Minutes), Width: width(float64(c.Minutes), taskMax)})
	}

	var seriesMax float64
	for _, pt := range summary.Series {
		seriesMax = max(seriesMax, pt.Value)
	}
	for _, pt := range summary.Series {
		v.Series = append(v.Series, Row{Name: pt.Start.Format(core.DateLayout), Amount: report.Money(pt.Value), Width: width(pt.Value, seriesMax)})
	}

	history, err := s.aggregator.MonthlyExpenses(ctx)
	if err != nil {
		return View{}, err
	}
	fc, err := s.forecaster.Forecast(history, s.horizon)
	var insufficient *core.InsufficientDataError
	switch {
	case errors.As(err, &insufficient):
		v.ForecastError = err.Error()
	case err != nil:
		return View{}, err
	default:
		for _, pr := range fc.Projections {
			v.Projections = append(v.Projections, Row{Name: pr.Start.Format("2006-01"), Amount: report.Money(pr.Value)})
		}
	}
	return v, nil
}

// width scales v against top into a bar width. Small nonzero values stay visible.
func width(v, top float64) int {
	if top <= 0 || v <= 0 {
		return 0
	}
	w := int(v/top*100 + 0.5)
	return min(max(w, 2), 100)
}

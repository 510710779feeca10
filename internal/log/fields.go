package log

import (
	"sort"

	"personal-analytics/internal/core"
)

// Common field names for structured logging
const (
	FieldComponent  = "component"
	FieldRequestID  = "request_id"
	FieldClientIP   = "client_ip"
	FieldMethod     = "method"
	FieldPath       = "path"
	FieldQuery      = "query"
	FieldStatusCode = "status_code"
	FieldDuration   = "duration_ms"
	FieldUserAgent  = "user_agent"
	FieldReferer    = "referer"
	FieldSuccess    = "success"
	FieldError      = "error"
	FieldErrorKind  = "error_kind"
	FieldOperation  = "operation"
	FieldSource     = "source"
	FieldRunID      = "run_id"
	FieldState      = "state"
	FieldRow        = "row"
	FieldReason     = "reason"
	FieldPeriod     = "period"
	FieldRowsRead   = "rows_read"
	FieldLoaded     = "loaded"
	FieldSkipped    = "skipped"
)

// Components defines standard component names
const (
	ComponentApp        = "app"
	ComponentETL        = "etl"
	ComponentStorage    = "storage"
	ComponentSource     = "source"
	ComponentAggregator = "aggregator"
	ComponentForecast   = "forecast"
	ComponentHTTP       = "http"
	ComponentDashboard  = "dashboard"
	ComponentAMQP       = "amqp"
	ComponentCache      = "cache"
	ComponentSecurity   = "security"
	ComponentRateLimit  = "rate_limit"
)

// Operations defines standard operation names
const (
	OpRead      = "read"
	OpNormalize = "normalize"
	OpDedupe    = "dedupe"
	OpStage     = "stage"
	OpCurate    = "curate"
	OpReload    = "reload"
	OpInsert    = "insert"
	OpSummarize = "summarize"
	OpForecast  = "forecast"
	OpPublish   = "publish"
	OpConsume   = "consume"
	OpRender    = "render"
	OpShutdown  = "shutdown"
	OpStartup   = "startup"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

// NewFields creates a new LogFields instance
func NewFields() LogFields {
	return make(LogFields)
}

func (f LogFields) WithComponent(component string) LogFields {
	f[FieldComponent] = component
	return f
}

func (f LogFields) WithClientIP(ip string) LogFields {
	f[FieldClientIP] = ip
	return f
}

// WithError adds the error message and its kind
func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
		f[FieldErrorKind] = core.KindOf(err)
	}
	return f
}

func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithRun adds the ETL run identity
func (f LogFields) WithRun(runID, source string) LogFields {
	f[FieldRunID] = runID
	f[FieldSource] = source
	return f
}

// WithCounts adds per-file row counters
func (f LogFields) WithCounts(read, loaded, skipped int) LogFields {
	f[FieldRowsRead] = read
	f[FieldLoaded] = loaded
	f[FieldSkipped] = skipped
	return f
}

// WithValidation adds the row and reason of a rejected record
func (f LogFields) WithValidation(ve *core.ValidationError) LogFields {
	if ve != nil {
		f[FieldRow] = ve.Row
		f[FieldReason] = ve.Reason
	}
	return f
}

// WithHTTPRequest adds HTTP request fields
func (f LogFields) WithHTTPRequest(method, path, query, userAgent, referer string) LogFields {
	f[FieldMethod] = method
	f[FieldPath] = path
	f[FieldQuery] = query
	f[FieldUserAgent] = userAgent
	f[FieldReferer] = referer
	return f
}

// WithHTTPResponse adds HTTP response fields
func (f LogFields) WithHTTPResponse(statusCode int, durationMs int64, success bool) LogFields {
	f[FieldStatusCode] = statusCode
	f[FieldDuration] = durationMs
	f[FieldSuccess] = success
	return f
}

// ToSlice converts LogFields to a key-sorted slice for slog
func (f LogFields) ToSlice() []any {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	slice := make([]any, 0, len(f)*2)
	for _, k := range keys {
		slice = append(slice, k, f[k])
	}
	return slice
}

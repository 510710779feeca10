// Package forecast fits a least-squares line through a bucketed series and
// projects it forward.
package forecast

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"personal-analytics/internal/analytics"
	"personal-analytics/internal/core"
)

// MinPoints is the fewest distinct bucket starts a fit needs.
const MinPoints = 2

// MaxHorizon is the furthest a forecast projects, in buckets.
const MaxHorizon = 120

var (
	// ErrNegativeHorizon is wrapped by the validation error for horizon < 0.
	ErrNegativeHorizon = errors.New("negative horizon")
	// ErrHorizonTooLarge is wrapped by the validation error for horizon > MaxHorizon.
	ErrHorizonTooLarge = errors.New("horizon too large")
)

// ValidateHorizon reports a *core.ValidationError on field horizon when n is
// outside [0, MaxHorizon].
func ValidateHorizon(n int) error {
	switch {
	case n < 0:
		return &core.ValidationError{
			Field:  "horizon",
			Reason: core.ReasonNegative,
			Value:  fmt.Sprint(n),
			Err:    ErrNegativeHorizon,
		}
	case n > MaxHorizon:
		return &core.ValidationError{
			Field:  "horizon",
			Reason: core.ReasonTooLarge,
			Value:  fmt.Sprint(n),
			Err:    ErrHorizonTooLarge,
		}
	}
	return nil
}

// Projection is the fitted value of one future bucket.
type Projection struct {
	Index int       `json:"index"`
	Start time.Time `json:"start"`
	// Value is Raw clamped at zero.
	Value float64 `json:"value"`
	Raw   float64 `json:"raw"`
}

// Forecast is the fitted line y = Intercept + Slope*x, x being the bucket index.
type Forecast struct {
	Slope       float64      `json:"slope"`
	Intercept   float64      `json:"intercept"`
	Points      int          `json:"points"`
	Projections []Projection `json:"projections"`
}

// Next is the first projection, or zero when the horizon was 0.
func (f Forecast) Next() (Projection, bool) {
	if len(f.Projections) == 0 {
		return Projection{}, false
	}
	return f.Projections[0], true
}

// Forecaster is stateless; the zero value is ready to use.
type Forecaster struct{}

func New() *Forecaster { return &Forecaster{} }

// Forecast fits series and projects horizon buckets past its last point.
// Points sharing a start are summed. Fewer than MinPoints distinct starts
// yield *core.InsufficientDataError.
func (Forecaster) Forecast(series []analytics.Point, horizon int) (Forecast, error) {
	if err := ValidateHorizon(horizon); err != nil {
		return Forecast{}, err
	}

	points := collapse(series)
	if len(points) < MinPoints {
		return Forecast{}, &core.InsufficientDataError{Points: len(points), Need: MinPoints}
	}

	xs := make([]float64, len(points))
	ys := make([]float64, len(points))
	for i, p := range points {
		xs[i] = float64(i)
		ys[i] = p.Value
	}
	alpha, beta := stat.LinearRegression(xs, ys, nil, false)

	f := Forecast{Slope: beta, Intercept: alpha, Points: len(points), Projections: make([]Projection, 0, horizon)}
	step := stepOf(points)
	last := points[len(points)-1]
	for h := 1; h <= horizon; h++ {
		x := len(points) - 1 + h
		raw := alpha + beta*float64(x)
		f.Projections = append(f.Projections, Projection{
			Index: x,
			Start: step(last.Start, h),
			Value: max(raw, 0),
			Raw:   raw,
		})
	}
	return f, nil
}

// collapse orders points by start and sums duplicates.
func collapse(series []analytics.Point) []analytics.Point {
	out := make([]analytics.Point, 0, len(series))
	seen := make(map[int64]int, len(series))
	for _, p := range series {
		if i, ok := seen[p.Start.UnixNano()]; ok {
			out[i].Value += p.Value
			continue
		}
		seen[p.Start.UnixNano()] = len(out)
		out = append(out, p)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out
}

// stepOf infers the bucket width from the last two points: monthly when they
// are a calendar month apart, otherwise their distance.
func stepOf(ps []analytics.Point) func(time.Time, int) time.Time {
	a, b := ps[len(ps)-2].Start, ps[len(ps)-1].Start
	if a.AddDate(0, 1, 0).Equal(b) {
		return func(t time.Time, n int) time.Time { return t.AddDate(0, n, 0) }
	}
	d := b.Sub(a)
	if d%(24*time.Hour) == 0 {
		days := int(d / (24 * time.Hour))
		return func(t time.Time, n int) time.Time { return t.AddDate(0, 0, days*n) }
	}
	return func(t time.Time, n int) time.Time { return t.Add(d * time.Duration(n)) }
}

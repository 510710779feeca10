package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestManager(t *testing.T) {
	Convey("Given a metrics manager on a fresh registry", t, func() {
		registry := prometheus.NewRegistry()
		m := NewManager(WithRegistry(registry), WithNamespace("test"))

		Convey("When ETL outcomes are recorded", func() {
			m.RecordRowsRead("tasks", 10)
			m.RecordRowsLoaded("tasks", "inserted", 7)
			m.RecordRowsLoaded("tasks", "updated", 0)
			m.RecordRowSkipped("tasks", "unknown category")
			m.RecordFile("tasks", "done", 20*time.Millisecond)

			Convey("Then the counters reflect them", func() {
				So(testutil.ToFloat64(m.rowsRead.WithLabelValues("tasks")), ShouldEqual, 10)
				So(testutil.ToFloat64(m.rowsLoaded.WithLabelValues("tasks", "inserted")), ShouldEqual, 7)
				So(testutil.ToFloat64(m.rowsSkipped.WithLabelValues("tasks", "unknown category")), ShouldEqual, 1)
				So(testutil.ToFloat64(m.files.WithLabelValues("done")), ShouldEqual, 1)
			})
		})

		Convey("When the handler is scraped", func() {
			m.RecordHTTPRequest("/api/summary", "GET", 200, time.Millisecond)
			m.RecordCacheLookup(true)

			rec := httptest.NewRecorder()
			m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
			body, _ := io.ReadAll(rec.Body)

			Convey("Then it exposes the namespaced series", func() {
				So(rec.Code, ShouldEqual, 200)
				So(string(body), ShouldContainSubstring, `test_http_requests_total{endpoint="/api/summary",method="GET",status_code="200"} 1`)
				So(string(body), ShouldContainSubstring, `test_cache_lookups_total{result="hit"} 1`)
			})
		})
	})

	Convey("Given a disabled manager", t, func() {
		m := NewManager(WithMetricsEnabled(false))
		m.RecordRowsRead("expenses", 3)

		Convey("Then nothing is recorded", func() {
			So(testutil.ToFloat64(m.rowsRead.WithLabelValues("expenses")), ShouldEqual, 0)
		})
	})

	Convey("Given a nil manager", t, func() {
		var m *Manager

		Convey("Then recording is a no-op", func() {
			So(func() { m.RecordFile("tasks", "failed", time.Second) }, ShouldNotPanic)
		})
	})
}

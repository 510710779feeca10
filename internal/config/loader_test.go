package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, kv := range os.Environ() {
		key, _, _ := strings.Cut(kv, "=")
		if strings.HasPrefix(key, "PPA_") {
			t.Setenv(key, "")
			os.Unsetenv(key)
		}
	}
	t.Setenv("DATABASE_URL", "")
	t.Setenv("DB_FILENAME", "")
}

func TestLoad(t *testing.T) {
	Convey("Given a config loader", t, func() {
		clearConfigEnv(t)

		Convey("When loading with defaults only", func() {
			cfg, err := Load()

			Convey("Then the defaults are returned", func() {
				So(err, ShouldBeNil)
				So(cfg.DBPath, ShouldEqual, "data/analytics.db")
				So(cfg.TasksPath(), ShouldEqual, filepath.Join("data", "tasks.csv"))
				So(cfg.MaxSkipSamples, ShouldEqual, 5)
				So(cfg.CacheTTL, ShouldEqual, 5*time.Minute)
				So(cfg.MetricsEnabled, ShouldBeTrue)
			})
		})

		Convey("When PPA_ environment variables are set", func() {
			t.Setenv("PPA_DB_PATH", "/tmp/x.db")
			t.Setenv("PPA_MAX_SKIP_SAMPLES", "9")
			t.Setenv("PPA_CACHE_TTL", "30s")
			t.Setenv("PPA_METRICS_ENABLED", "false")
			t.Setenv("PPA_GOOGLE_TASKS_RANGE", "Tasks!A:E")

			cfg, err := Load()

			Convey("Then they override the defaults", func() {
				So(err, ShouldBeNil)
				So(cfg.DBPath, ShouldEqual, "/tmp/x.db")
				So(cfg.MaxSkipSamples, ShouldEqual, 9)
				So(cfg.CacheTTL, ShouldEqual, 30*time.Second)
				So(cfg.MetricsEnabled, ShouldBeFalse)
				So(cfg.GoogleTasksRange, ShouldEqual, "Tasks!A:E")
			})
		})

		Convey("When DATABASE_URL is set", func() {
			t.Setenv("DATABASE_URL", "sqlite:///var/lib/ppa/analytics.db")
			t.Setenv("DB_FILENAME", "ignored.db")

			cfg, err := Load()

			Convey("Then it provides the database path", func() {
				So(err, ShouldBeNil)
				So(cfg.DBPath, ShouldEqual, "/var/lib/ppa/analytics.db")
			})
		})

		Convey("When only DB_FILENAME is set", func() {
			t.Setenv("DB_FILENAME", "local.db")

			cfg, err := Load()

			Convey("Then it provides the database path", func() {
				So(err, ShouldBeNil)
				So(cfg.DBPath, ShouldEqual, "local.db")
			})
		})

		Convey("When a YAML file is given", func() {
			path := filepath.Join(t.TempDir(), "ppa.yaml")
			So(os.WriteFile(path, []byte("data_dir: /srv/data\nforecast_horizon: 3\nlog_format: json\n"), 0o600), ShouldBeNil)
			t.Setenv("PPA_CONFIG", path)
			t.Setenv("PPA_FORECAST_HORIZON", "6")

			cfg, err := Load()

			Convey("Then file values apply and env still wins", func() {
				So(err, ShouldBeNil)
				So(cfg.DataDir, ShouldEqual, "/srv/data")
				So(cfg.LogFormat, ShouldEqual, "json")
				So(cfg.ForecastHorizon, ShouldEqual, 6)
				So(cfg.FinancePath(), ShouldEqual, "/srv/data/finance.csv")
			})
		})

		Convey("When the YAML file is missing", func() {
			t.Setenv("PPA_CONFIG", filepath.Join(t.TempDir(), "nope.yaml"))

			_, err := Load()

			Convey("Then loading fails", func() {
				So(err, ShouldNotBeNil)
			})
		})
	})
}

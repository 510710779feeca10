package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Load builds a Config by layering defaults, an optional file and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. DATABASE_URL / DB_FILENAME fallbacks for db_path
//  3. YAML file if PPA_CONFIG is set
//  4. env (prefix PPA_)
func Load() (*Config, error) {
	cfg := *New()
	if p := dbPathFromEnv(); p != "" {
		cfg.DBPath = p
	}

	k := koanf.New(".")

	if path := os.Getenv("PPA_CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	// PPA_DB_PATH -> db_path. Keys are flat, so underscores are kept.
	envProvider := env.Provider("PPA_", ".", func(s string) string {
		s = strings.ToLower(s)
		s = strings.TrimPrefix(s, "ppa_")
		return s
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("load config env: %w", err)
	}
	k.Delete("config")

	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

// dbPathFromEnv honours DATABASE_URL (sqlite:///path) and DB_FILENAME.
func dbPathFromEnv() string {
	if raw := os.Getenv("DATABASE_URL"); raw != "" {
		if u, err := url.Parse(raw); err == nil && strings.HasPrefix(u.Scheme, "sqlite") && u.Path != "" {
			return u.Path
		}
	}
	return os.Getenv("DB_FILENAME")
}

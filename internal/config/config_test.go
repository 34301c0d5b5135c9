package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"swissdamed/internal/config"
	"swissdamed/internal/domain"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "swissdamed.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

// ─────────────────────────────────────────────────────────────
// Loading
// ─────────────────────────────────────────────────────────────

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
output_dir: out
source:
  file: data/snapshot.json
  page_size: 250
  timeout: 45s
outputs:
  csv: true
deploy:
  enabled: true
  target: ${DEPLOY_HOST:-deploy@example.org:/srv/db}
publish:
  - name: warehouse
    driver: postgres
    host: localhost
    port: 5432
    database: catalog
    table: swissdamed
migel:
  file: lists/migel.xlsx
`)
	cfg, err := config.Load(path, envMap(nil))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	base := filepath.Dir(path)
	if cfg.OutputDir != filepath.Join(base, "out") {
		t.Errorf("output_dir = %q", cfg.OutputDir)
	}
	if cfg.Source.File != filepath.Join(base, "data", "snapshot.json") {
		t.Errorf("source.file = %q", cfg.Source.File)
	}
	if cfg.Source.PageSize != 250 || cfg.Source.Timeout != 45*time.Second {
		t.Errorf("source = %+v", cfg.Source)
	}
	if cfg.Source.MaxRetries != 3 {
		t.Errorf("max_retries default lost: %d", cfg.Source.MaxRetries)
	}
	if cfg.Deploy.Target != "deploy@example.org:/srv/db" {
		t.Errorf("deploy.target = %q", cfg.Deploy.Target)
	}
	if len(cfg.Publish) != 1 || cfg.Publish[0].Port != 5432 {
		t.Errorf("publish = %+v", cfg.Publish)
	}
	if cfg.Migel.File != filepath.Join(base, "lists", "migel.xlsx") {
		t.Errorf("migel.file = %q", cfg.Migel.File)
	}
	if cfg.Migel.URL == "" || cfg.Migel.Timeout != 120*time.Second {
		t.Errorf("migel defaults lost: %+v", cfg.Migel)
	}
}

func TestLoad_NoFileUsesDefaults(t *testing.T) {
	dir := t.TempDir()
	wd, _ := os.Getwd()
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	defer os.Chdir(wd)

	cfg, err := config.Load("", envMap(nil))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Prefix != "swissdamed" || cfg.Source.PageSize != 100 || cfg.Source.Concurrency != 1 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestLoad_ExplicitMissingFile(t *testing.T) {
	if _, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"), envMap(nil)); err == nil {
		t.Fatal("expected error for missing explicit config")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, "source:\n  page_size: 10\n")
	cfg, err := config.Load(path, envMap(map[string]string{
		"SWISSDAMED_PAGE_SIZE":      "500",
		"SWISSDAMED_RATE_LIMIT_RPS": "2.5",
		"SWISSDAMED_TIMEOUT":        "1m",
		"SWISSDAMED_WATCH":          "true",
		"SWISSDAMED_CRON":           "0 3 * * *",
	}))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Source.PageSize != 500 || cfg.Source.RateLimitRPS != 2.5 || cfg.Source.Timeout != time.Minute {
		t.Fatalf("source = %+v", cfg.Source)
	}
	if !cfg.Schedule.Watch || cfg.Schedule.Cron != "0 3 * * *" {
		t.Fatalf("schedule = %+v", cfg.Schedule)
	}
}

func TestLoad_InvalidEnv(t *testing.T) {
	path := writeConfig(t, "prefix: x\n")
	_, err := config.Load(path, envMap(map[string]string{"SWISSDAMED_PAGE_SIZE": "lots"}))
	if err == nil || !strings.Contains(err.Error(), "SWISSDAMED_PAGE_SIZE") {
		t.Fatalf("err = %v", err)
	}
}

func TestValidate(t *testing.T) {
	cfg := config.Defaults()
	cfg.Source.PageSize = 0
	cfg.Deploy.Enabled = true
	cfg.Publish = []domain.DatabaseConnection{{Name: "x", Driver: "oracle"}}
	err := config.Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"page_size", "deploy.target", "oracle"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}

// ─────────────────────────────────────────────────────────────
// Artifact naming and selection
// ─────────────────────────────────────────────────────────────

func TestOutputPath(t *testing.T) {
	now := time.Date(2026, 1, 5, 23, 59, 0, 0, time.UTC)
	got := config.OutputPath("out", "swissdamed", "db", now)
	if want := filepath.Join("out", "swissdamed_05.01.2026.db"); got != want {
		t.Fatalf("OutputPath = %q, want %q", got, want)
	}
}

func TestOutputConfig_Resolve(t *testing.T) {
	tests := []struct {
		name       string
		out        config.OutputConfig
		deploy     bool
		csv, sqlDB bool
	}{
		{"neither means both", config.OutputConfig{}, false, true, true},
		{"csv only", config.OutputConfig{CSV: true}, false, true, false},
		{"sqlite only", config.OutputConfig{SQLite: true}, false, false, true},
		{"deploy implies sqlite", config.OutputConfig{CSV: true}, true, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			csv, db := tt.out.Resolve(tt.deploy)
			if csv != tt.csv || db != tt.sqlDB {
				t.Fatalf("Resolve = (%v, %v), want (%v, %v)", csv, db, tt.csv, tt.sqlDB)
			}
		})
	}
}

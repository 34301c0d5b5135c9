package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"swissdamed/internal/domain"
)

// DefaultFile is looked up in the working directory when no path is given.
const DefaultFile = "swissdamed.yaml"

// Load builds the configuration: defaults, then the YAML file (with
// ${VAR} / ${VAR:-default} interpolation), then SWISSDAMED_* overrides.
// A missing file is only an error when a path was given explicitly.
func Load(configPath string, getenv func(string) string) (*Config, error) {
	cfg := Defaults()

	path, err := resolveConfigPath(configPath, getenv)
	if err != nil {
		return nil, err
	}
	if path != "" {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve config path: %w", err)
		}
		data, err := os.ReadFile(absPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		data = interpolateEnv(data, getenv)
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
		cfg.BaseDir = filepath.Dir(absPath)
		cfg.resolvePaths()
	}

	if err := applyEnv(cfg, getenv); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func resolveConfigPath(explicit string, getenv func(string) string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}
	if envPath := getenv("SWISSDAMED_CONFIG"); envPath != "" {
		if _, err := os.Stat(envPath); err != nil {
			return "", fmt.Errorf("SWISSDAMED_CONFIG file not found: %s", envPath)
		}
		return envPath, nil
	}
	if _, err := os.Stat(DefaultFile); err == nil {
		return DefaultFile, nil
	}
	return "", nil
}

// resolvePaths makes relative paths in the file relative to its directory.
func (c *Config) resolvePaths() {
	for _, p := range []*string{
		&c.OutputDir, &c.StateDB, &c.DiffDir,
		&c.Source.File, &c.Source.CSV,
		&c.Deploy.KeyFile, &c.Deploy.KnownHosts,
		&c.Migel.File,
	} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(c.BaseDir, *p)
		}
	}
	for i := range c.Publish {
		pub := &c.Publish[i]
		if pub.Driver == domain.DatabaseDriverSQLite && pub.Host != "" && !filepath.IsAbs(pub.Host) {
			pub.Host = filepath.Join(c.BaseDir, pub.Host)
		}
	}
}

var envPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-([^}]*))?\}`)

func interpolateEnv(data []byte, getenv func(string) string) []byte {
	return envPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		parts := envPattern.FindSubmatch(match)
		if len(parts) < 2 {
			return match
		}
		value := getenv(string(parts[1]))
		if value == "" && len(parts) >= 3 && len(parts[2]) > 0 {
			value = string(parts[2])
		}
		return []byte(value)
	})
}

// ── Environment overrides ──────────────────────────────────

func applyEnv(cfg *Config, getenv func(string) string) error {
	var err error
	str := func(name string, dst *string) {
		if v := strings.TrimSpace(getenv(name)); v != "" {
			*dst = v
		}
	}
	str("SWISSDAMED_OUTPUT_DIR", &cfg.OutputDir)
	str("SWISSDAMED_STATE_DB", &cfg.StateDB)
	str("SWISSDAMED_URL", &cfg.Source.URL)
	str("SWISSDAMED_FILE", &cfg.Source.File)
	str("SWISSDAMED_DEPLOY_TARGET", &cfg.Deploy.Target)
	str("SWISSDAMED_CRON", &cfg.Schedule.Cron)
	str("SWISSDAMED_MIGEL_FILE", &cfg.Migel.File)

	if cfg.Source.PageSize, err = envInt(getenv, "SWISSDAMED_PAGE_SIZE", cfg.Source.PageSize); err != nil {
		return err
	}
	if cfg.Source.Concurrency, err = envInt(getenv, "SWISSDAMED_CONCURRENCY", cfg.Source.Concurrency); err != nil {
		return err
	}
	if cfg.Source.MaxRetries, err = envInt(getenv, "SWISSDAMED_MAX_RETRIES", cfg.Source.MaxRetries); err != nil {
		return err
	}
	if cfg.Source.RateLimitRPS, err = envFloat(getenv, "SWISSDAMED_RATE_LIMIT_RPS", cfg.Source.RateLimitRPS); err != nil {
		return err
	}
	if cfg.Source.Timeout, err = envDuration(getenv, "SWISSDAMED_TIMEOUT", cfg.Source.Timeout); err != nil {
		return err
	}
	if cfg.Schedule.Watch, err = envBool(getenv, "SWISSDAMED_WATCH", cfg.Schedule.Watch); err != nil {
		return err
	}
	return nil
}

func envInt(getenv func(string) string, varName string, fallback int) (int, error) {
	v := strings.TrimSpace(getenv(varName))
	if v == "" {
		return fallback, nil
	}
	out, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s=%q: %w", varName, v, err)
	}
	return out, nil
}

func envFloat(getenv func(string) string, varName string, fallback float64) (float64, error) {
	v := strings.TrimSpace(getenv(varName))
	if v == "" {
		return fallback, nil
	}
	out, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s=%q: %w", varName, v, err)
	}
	return out, nil
}

func envDuration(getenv func(string) string, varName string, fallback time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(getenv(varName))
	if v == "" {
		return fallback, nil
	}
	out, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s=%q: %w", varName, v, err)
	}
	return out, nil
}

func envBool(getenv func(string) string, varName string, fallback bool) (bool, error) {
	v := strings.TrimSpace(getenv(varName))
	if v == "" {
		return fallback, nil
	}
	out, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s=%q: %w", varName, v, err)
	}
	return out, nil
}

// ── Validation ─────────────────────────────────────────────

// Validate checks the configuration for errors. Call it again after
// applying CLI flags.
func Validate(cfg *Config) error {
	var errs []string

	if cfg.Source.PageSize < 1 {
		errs = append(errs, fmt.Sprintf("invalid source.page_size: %d (must be >= 1)", cfg.Source.PageSize))
	}
	if cfg.Source.Concurrency < 1 {
		errs = append(errs, fmt.Sprintf("invalid source.concurrency: %d (must be >= 1)", cfg.Source.Concurrency))
	}
	if cfg.Source.MaxRetries < 0 {
		errs = append(errs, fmt.Sprintf("invalid source.max_retries: %d", cfg.Source.MaxRetries))
	}
	if cfg.Source.File == "" && cfg.Source.CSV == "" && cfg.Source.URL == "" {
		errs = append(errs, "no source: set source.url, source.file or source.csv")
	}
	if cfg.Prefix == "" {
		errs = append(errs, "prefix must not be empty")
	}
	if cfg.Deploy.Enabled && cfg.Deploy.Target == "" {
		errs = append(errs, "deploy.target is required when deploy is enabled")
	}
	for i, p := range cfg.Publish {
		switch p.Driver {
		case domain.DatabaseDriverMySQL, domain.DatabaseDriverPostgres,
			domain.DatabaseDriverMongoDB, domain.DatabaseDriverSQLite:
		default:
			errs = append(errs, fmt.Sprintf("publish[%d]: unsupported driver %q", i, p.Driver))
		}
	}

	if len(errs) > 0 {
		return errors.New("configuration errors:\n  - " + strings.Join(errs, "\n  - "))
	}
	return nil
}

package config

import (
	"fmt"
	"path/filepath"
	"time"

	"swissdamed/internal/domain"
	"swissdamed/internal/migel"
)

// Config is the complete build configuration.
type Config struct {
	BaseDir   string `yaml:"-"`          // directory of the config file, for relative paths
	OutputDir string `yaml:"output_dir"` // where dated artifacts are written
	Prefix    string `yaml:"prefix"`     // artifact name prefix (default "swissdamed")
	Table     string `yaml:"table"`      // SQLite table name
	StateDB   string `yaml:"state_db"`   // build history database
	DiffDir   string `yaml:"diff_dir"`   // where diff reports are written

	Source   SourceConfig                `yaml:"source"`
	Outputs  OutputConfig                `yaml:"outputs"`
	Deploy   DeployConfig                `yaml:"deploy"`
	Schedule ScheduleConfig              `yaml:"schedule"`
	Migel    MigelConfig                 `yaml:"migel"`
	Publish  []domain.DatabaseConnection `yaml:"publish"`
}

// SourceConfig selects and tunes the record source. File wins over URL.
type SourceConfig struct {
	URL            string        `yaml:"url"`
	File           string        `yaml:"file"` // local JSON snapshot
	CSV            string        `yaml:"csv"`  // previously written CSV artifact
	PageSize       int           `yaml:"page_size"`
	Concurrency    int           `yaml:"concurrency"`
	MaxPages       int           `yaml:"max_pages"`
	RateLimitRPS   float64       `yaml:"rate_limit_rps"`
	Timeout        time.Duration `yaml:"timeout"`
	MaxRetries     int           `yaml:"max_retries"`
	BackoffInitial time.Duration `yaml:"backoff_initial"`
	BackoffMax     time.Duration `yaml:"backoff_max"`
}

// OutputConfig selects the artifacts. Neither set means both.
type OutputConfig struct {
	CSV    bool `yaml:"csv"`
	SQLite bool `yaml:"sqlite"`
}

// Resolve applies the selection rules: no explicit choice writes both
// artifacts, and deploying always needs the SQLite file.
func (o OutputConfig) Resolve(deploy bool) (csv, sqlite bool) {
	if !o.CSV && !o.SQLite {
		return true, true
	}
	return o.CSV, o.SQLite || deploy
}

// DeployConfig describes the SFTP upload of the SQLite artifact.
type DeployConfig struct {
	Enabled     bool          `yaml:"enabled"`
	Target      string        `yaml:"target"`       // user@host:/path or sftp://user@host:port/path
	KeyFile     string        `yaml:"key_file"`     // private key; empty tries password auth only
	PasswordEnv string        `yaml:"password_env"` // env var holding the password or key passphrase
	KnownHosts  string        `yaml:"known_hosts"`  // known_hosts file; empty disables host key checking
	Timeout     time.Duration `yaml:"timeout"`
}

// ScheduleConfig drives `serve`.
type ScheduleConfig struct {
	Cron  string `yaml:"cron"`  // robfig/cron expression, e.g. "0 3 * * *"
	Watch bool   `yaml:"watch"` // rebuild when source.file changes
}

// MigelConfig locates the BAG MiGeL workbook for `build --migel`.
// File wins over URL; a download is cached as migel.xlsx in OutputDir.
type MigelConfig struct {
	URL     string        `yaml:"url"`
	File    string        `yaml:"file"`
	Timeout time.Duration `yaml:"timeout"`
}

// Defaults returns a Config with every default applied.
func Defaults() *Config {
	return &Config{
		OutputDir: ".",
		Prefix:    "swissdamed",
		Table:     "swissdamed",
		StateDB:   filepath.Join(".swissdamed", "state.db"),
		DiffDir:   "diff",
		Source: SourceConfig{
			URL:            "https://swissdamed.ch/public/udi/basic-udis",
			PageSize:       100,
			Concurrency:    1,
			Timeout:        30 * time.Second,
			MaxRetries:     3,
			BackoffInitial: 500 * time.Millisecond,
			BackoffMax:     10 * time.Second,
		},
		Deploy: DeployConfig{
			PasswordEnv: "SWISSDAMED_DEPLOY_PASSWORD",
			Timeout:     30 * time.Second,
		},
		Migel: MigelConfig{
			URL:     migel.DefaultURL,
			Timeout: 120 * time.Second,
		},
	}
}

// OutputPath returns <dir>/<prefix>_DD.MM.YYYY.<ext>.
func OutputPath(dir, prefix, ext string, now time.Time) string {
	return filepath.Join(dir, fmt.Sprintf("%s_%s.%s", prefix, now.Format("02.01.2006"), ext))
}

// ArtifactPath returns the dated artifact path for ext under OutputDir.
func (c *Config) ArtifactPath(ext string, now time.Time) string {
	return OutputPath(c.OutputDir, c.Prefix, ext, now)
}

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"swissdamed/internal/config"
	"swissdamed/internal/domain"
	"swissdamed/internal/etl"
	"swissdamed/internal/etl/destinations"
	"swissdamed/internal/etl/sources"
	"swissdamed/internal/secret"
	"swissdamed/internal/service"
	"swissdamed/internal/storage"
)

// App wires configuration, storage and services for the CLI commands.
type App struct {
	cfg     *config.Config
	getenv  func(string) string
	secrets secret.Resolver

	mu     sync.Mutex
	db     *storage.DB
	runs   *storage.RunStore
	builds *service.BuildService
}

// New creates an App. Call Close when done.
func New(cfg *config.Config, getenv func(string) string) *App {
	resolver := secret.Resolver{Env: secret.EnvStore{Getenv: getenv}}
	if runtime.GOOS == "darwin" {
		resolver.Keychain = secret.NewKeychainStore()
	}
	return &App{cfg: cfg, getenv: getenv, secrets: resolver}
}

// Close releases the state database.
func (a *App) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.builds != nil {
		a.builds.Stop()
	}
	if a.db != nil {
		a.db.Close()
	}
}

// runStore opens the build history database on first use.
func (a *App) runStore() (*storage.RunStore, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.runs != nil {
		return a.runs, nil
	}
	db, err := storage.New(a.cfg.StateDB)
	if err != nil {
		return nil, fmt.Errorf("open state database: %w", err)
	}
	a.db = db
	a.runs = storage.NewRunStore(db)
	return a.runs, nil
}

// ── Sources and encoders ───────────────────────────────────

// NewSource selects the record source: a CSV artifact, then a JSON
// snapshot file, then the remote endpoint.
func NewSource(cfg config.SourceConfig) (etl.Source, error) {
	switch {
	case cfg.CSV != "":
		return &sources.CSVFileSource{Path: cfg.CSV}, nil
	case cfg.File != "":
		return &sources.JSONFileSource{Path: cfg.File}, nil
	default:
		return sources.NewHTTPSource(sources.HTTPConfig{
			URL:            cfg.URL,
			PageSize:       cfg.PageSize,
			Concurrency:    cfg.Concurrency,
			MaxPages:       cfg.MaxPages,
			RateLimitRPS:   cfg.RateLimitRPS,
			Timeout:        cfg.Timeout,
			MaxRetries:     cfg.MaxRetries,
			BackoffInitial: cfg.BackoffInitial,
			BackoffMax:     cfg.BackoffMax,
		})
	}
}

// BuildOptions select the steps that follow a build.
type BuildOptions struct {
	Deploy  bool
	Publish bool
	Migel   bool // also write <prefix>_migel_DD.MM.YYYY.db
}

// encoders returns the artifact encoders for a run at now.
func (a *App) encoders(opts BuildOptions, now time.Time) []etl.Encoder {
	wantCSV, wantSQLite := a.cfg.Outputs.Resolve(opts.Deploy)
	var encs []etl.Encoder
	if wantCSV {
		encs = append(encs, &destinations.CSV{Path: a.cfg.ArtifactPath("csv", now)})
	}
	if wantSQLite {
		encs = append(encs, &destinations.SQLite{Path: a.cfg.ArtifactPath("db", now), Table: a.cfg.Table})
	}
	return encs
}

func (a *App) jobFactory(opts BuildOptions) service.JobFactory {
	return func(_ context.Context, now time.Time) (*etl.Job, error) {
		src, err := NewSource(a.cfg.Source)
		if err != nil {
			return nil, err
		}
		return &etl.Job{Source: src, Encoders: a.encoders(opts, now)}, nil
	}
}

// buildService creates the BuildService with the after-build steps
// opts asks for.
func (a *App) buildService(opts BuildOptions, emitter service.EventEmitter) (*service.BuildService, error) {
	runs, err := a.runStore()
	if err != nil {
		return nil, err
	}
	var after []service.AfterBuild
	if opts.Migel {
		after = append(after, service.AfterBuild{Name: "migel", Fn: a.migelStep})
	}
	if opts.Deploy {
		after = append(after, service.AfterBuild{Name: "deploy", Fn: a.deployStep})
	}
	if opts.Publish && len(a.cfg.Publish) > 0 {
		after = append(after, service.AfterBuild{Name: "publish", Fn: a.publishStep})
	}
	svc := service.NewBuildService(a.jobFactory(opts), runs, emitter, after...)
	a.mu.Lock()
	a.builds = svc
	a.mu.Unlock()
	return svc, nil
}

// ── Commands ───────────────────────────────────────────────

// Build runs one rebuild and returns its result.
func (a *App) Build(ctx context.Context, opts BuildOptions) (*etl.Result, error) {
	svc, err := a.buildService(opts, service.LogEmitter{})
	if err != nil {
		return nil, err
	}
	res, err := svc.RunBuild(ctx, domain.BuildTriggerManual)
	if err != nil {
		return res, err
	}
	if res.Status == string(domain.BuildStatusEmpty) {
		log.Printf("No data found.")
	}
	return res, nil
}

// History lists the latest builds, newest first.
func (a *App) History(limit int) ([]domain.BuildRun, error) {
	runs, err := a.runStore()
	if err != nil {
		return nil, err
	}
	return runs.ListRuns(limit)
}

// LatestArtifact returns the newest "<prefix>_*.<ext>" file in the
// output directory.
func (a *App) LatestArtifact(ext string) (string, error) {
	pattern := filepath.Join(a.cfg.OutputDir, a.cfg.Prefix+"_*."+ext)
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return "", err
	}
	type candidate struct {
		path string
		mod  time.Time
	}
	var found []candidate
	for _, m := range matches {
		if strings.Contains(filepath.Base(m), ".tmp-") {
			continue
		}
		fi, err := os.Stat(m)
		if err != nil || fi.IsDir() {
			continue
		}
		found = append(found, candidate{m, fi.ModTime()})
	}
	if len(found) == 0 {
		return "", errors.New("no artifact matching " + pattern)
	}
	sort.Slice(found, func(i, j int) bool {
		if !found[i].mod.Equal(found[j].mod) {
			return found[i].mod.After(found[j].mod)
		}
		return found[i].path > found[j].path
	})
	return found[0].path, nil
}

package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"

	"swissdamed/internal/domain"
	"swissdamed/internal/etl"
)

// ─────────────────────────────────────────────────────────────
// Build Service: rebuilds, history, schedule and file watch
// ─────────────────────────────────────────────────────────────

// ErrBuildRunning is returned when a rebuild is requested while one is
// already in flight.
var ErrBuildRunning = errors.New("a build is already running")

// buildLock is the guard key shared by every trigger.
const buildLock = "build"

// DefaultWatchDebounce coalesces bursts of file events into one rebuild.
const DefaultWatchDebounce = 500 * time.Millisecond

// JobFactory assembles a fresh job for each run, so dated artifact
// names follow the clock.
type JobFactory func(ctx context.Context, now time.Time) (*etl.Job, error)

// AfterBuild runs once artifacts are written (deploy, publish). It only
// runs for successful builds.
type AfterBuild struct {
	Name string
	Fn   func(ctx context.Context, res *etl.Result) error
}

// BuildService runs rebuilds and records them in the history store.
type BuildService struct {
	newJob  JobFactory
	runs    domain.BuildRunStore
	emitter EventEmitter
	after   []AfterBuild
	engine  etl.Engine
	guard   runGuard

	// Timeout bounds one run; zero means no limit.
	Timeout time.Duration
	// Debounce is the quiet period before a watched file triggers a run.
	Debounce time.Duration
	// Now is the clock handed to the job factory.
	Now func() time.Time

	mu          sync.Mutex
	watchCancel context.CancelFunc
	watcher     *fsnotify.Watcher
	cronSched   *cron.Cron
}

// NewBuildService creates a BuildService. runs may be nil to skip history.
func NewBuildService(newJob JobFactory, runs domain.BuildRunStore, emitter EventEmitter, after ...AfterBuild) *BuildService {
	if emitter == nil {
		emitter = LogEmitter{}
	}
	return &BuildService{
		newJob:   newJob,
		runs:     runs,
		emitter:  emitter,
		after:    after,
		Debounce: DefaultWatchDebounce,
		Now:      time.Now,
	}
}

// ── Run ────────────────────────────────────────────────────

// RunBuild executes one rebuild end-to-end, runs the after-build steps,
// stores a history entry and emits build:completed or build:failed.
func (s *BuildService) RunBuild(ctx context.Context, trigger domain.BuildTrigger) (*etl.Result, error) {
	if !s.guard.TryLock(buildLock) {
		return nil, ErrBuildRunning
	}
	defer s.guard.Unlock(buildLock)

	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	started := s.Now()
	run := &domain.BuildRun{
		Trigger:   trigger,
		Status:    domain.BuildStatusRunning,
		StartedAt: started,
	}

	job, err := s.newJob(ctx, started)
	var result *etl.Result
	if err == nil {
		if job.Source != nil {
			run.Source = job.Source.Name()
		}
		result, err = s.engine.Run(ctx, job)
	}
	if err == nil && result.Status == string(domain.BuildStatusSuccess) {
		err = s.runAfter(ctx, result)
	}
	if result == nil {
		result = &etl.Result{Status: string(domain.BuildStatusError)}
	}
	if err != nil {
		result.Status = string(domain.BuildStatusError)
		result.Error = err.Error()
	}

	run.Status = domain.BuildStatus(result.Status)
	run.FinishedAt = s.Now()
	run.Records = result.Records
	run.Rows = result.Rows
	run.Columns = result.Columns
	run.Error = result.Error
	for _, a := range result.Artifacts {
		run.Artifacts = append(run.Artifacts, a.Path)
	}
	if s.runs != nil {
		if herr := s.runs.CreateRun(run); herr != nil {
			log.Printf("build: failed to record run: %v", herr)
		} else {
			result.JobID = run.ID
		}
	}

	if err != nil {
		s.emitter.Emit(ctx, EventBuildFailed, run)
		return result, err
	}
	s.emitter.Emit(ctx, EventBuildCompleted, run)
	return result, nil
}

func (s *BuildService) runAfter(ctx context.Context, res *etl.Result) error {
	for _, step := range s.after {
		if err := step.Fn(ctx, res); err != nil {
			return fmt.Errorf("%s: %w", step.Name, err)
		}
	}
	return nil
}

// Running reports whether a build is in flight.
func (s *BuildService) Running() bool {
	return s.guard.Running(buildLock)
}

// History returns the latest runs, newest first.
func (s *BuildService) History(limit int) ([]domain.BuildRun, error) {
	if s.runs == nil {
		return nil, errors.New("build history is not configured")
	}
	return s.runs.ListRuns(limit)
}

// ── Schedule (cron + file_watch) ──────────────────────────

// Schedule configures Start. Empty fields disable that trigger.
type Schedule struct {
	Cron      string // robfig/cron expression
	WatchFile string // snapshot file whose changes trigger a rebuild
}

// Start installs the cron schedule and the file watcher. Triggered
// builds run with ctx until Stop is called.
func (s *BuildService) Start(ctx context.Context, sched Schedule) error {
	s.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()

	if sched.Cron != "" {
		c := cron.New()
		_, err := c.AddFunc(sched.Cron, func() {
			log.Printf("build cron: starting scheduled build")
			s.triggered(ctx, domain.BuildTriggerSchedule)
		})
		if err != nil {
			return fmt.Errorf("invalid cron expression %q: %w", sched.Cron, err)
		}
		c.Start()
		s.cronSched = c
		log.Printf("build cron: scheduled %q", sched.Cron)
	}

	if sched.WatchFile != "" {
		if err := s.startWatch(ctx, sched.WatchFile); err != nil {
			s.stopLocked()
			return err
		}
	}
	return nil
}

func (s *BuildService) triggered(ctx context.Context, trigger domain.BuildTrigger) {
	if _, err := s.RunBuild(ctx, trigger); err != nil {
		if errors.Is(err, ErrBuildRunning) {
			log.Printf("build %s: skipped, previous build still running", trigger)
			return
		}
		log.Printf("build %s: failed: %v", trigger, err)
	}
}

// startWatch watches the file's directory, since editors and downloads
// usually replace the file rather than write it in place.
func (s *BuildService) startWatch(ctx context.Context, file string) error {
	absPath, err := filepath.Abs(file)
	if err != nil {
		return fmt.Errorf("bad watch path %q: %w", file, err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(absPath)); err != nil {
		watcher.Close()
		return fmt.Errorf("watch dir %q: %w", filepath.Dir(absPath), err)
	}
	s.watcher = watcher

	watchCtx, cancel := context.WithCancel(ctx)
	s.watchCancel = cancel
	debounce := s.Debounce
	if debounce <= 0 {
		debounce = DefaultWatchDebounce
	}

	go func() {
		var timer *time.Timer
		defer func() {
			if timer != nil {
				timer.Stop()
			}
		}()
		for {
			select {
			case <-watchCtx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
					continue
				}
				if p, _ := filepath.Abs(event.Name); p != absPath {
					continue
				}
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(debounce, func() {
					if watchCtx.Err() != nil {
						return
					}
					log.Printf("build watcher: file changed %q, rebuilding", absPath)
					s.triggered(watchCtx, domain.BuildTriggerWatch)
				})
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Printf("build watcher: error: %v", err)
			}
		}
	}()

	log.Printf("build watcher: watching %s", absPath)
	return nil
}

// WaitRunning blocks until the running build finishes or ctx is cancelled.
// Used for graceful shutdown.
func (s *BuildService) WaitRunning(ctx context.Context) {
	s.guard.WaitAll(ctx)
}

// Stop tears down the watcher and the scheduler. It is safe to call
// more than once.
func (s *BuildService) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

func (s *BuildService) stopLocked() {
	if s.watchCancel != nil {
		s.watchCancel()
		s.watchCancel = nil
	}
	if s.watcher != nil {
		s.watcher.Close()
		s.watcher = nil
	}
	if s.cronSched != nil {
		s.cronSched.Stop()
		s.cronSched = nil
	}
}

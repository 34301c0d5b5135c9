package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"swissdamed/internal/domain"
	mcpserver "swissdamed/internal/mcp"
	"swissdamed/internal/service"
)

// shutdownGrace bounds how long Serve waits for an in-flight build.
const shutdownGrace = 30 * time.Second

// ServeOptions configure the long-running rebuild loop.
type ServeOptions struct {
	BuildOptions
	RunOnStart bool
}

// Serve installs the configured cron schedule and file watch and blocks
// until ctx is cancelled, then waits for a running build to finish.
func (a *App) Serve(ctx context.Context, opts ServeOptions) error {
	sched := service.Schedule{Cron: a.cfg.Schedule.Cron}
	if a.cfg.Schedule.Watch {
		if a.cfg.Source.File == "" {
			return fmt.Errorf("schedule.watch needs source.file")
		}
		sched.WatchFile = a.cfg.Source.File
	}
	if sched.Cron == "" && sched.WatchFile == "" && !opts.RunOnStart {
		return fmt.Errorf("nothing to serve: set schedule.cron or schedule.watch")
	}

	svc, err := a.buildService(opts.BuildOptions, service.LogEmitter{})
	if err != nil {
		return err
	}
	if err := svc.Start(ctx, sched); err != nil {
		return err
	}
	defer svc.Stop()

	if opts.RunOnStart {
		if _, err := svc.RunBuild(ctx, domain.BuildTriggerManual); err != nil {
			log.Printf("serve: initial build failed: %v", err)
		}
	}

	<-ctx.Done()
	log.Printf("serve: shutting down")
	svc.Stop()

	waitCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	svc.WaitRunning(waitCtx)
	return nil
}

// ServeMCP serves the lookup tools over stdio for the artifact at
// dbPath, or the newest SQLite artifact when dbPath is empty. With
// withBuilds the rebuild tools are exposed too.
func (a *App) ServeMCP(ctx context.Context, dbPath string, withBuilds bool) error {
	if dbPath == "" {
		latest, err := a.LatestArtifact("db")
		if err != nil {
			return err
		}
		dbPath = latest
	}

	deps := mcpserver.Deps{ArtifactPath: dbPath, Table: a.cfg.Table}
	if withBuilds {
		svc, err := a.buildService(BuildOptions{}, service.LogEmitter{})
		if err != nil {
			return err
		}
		deps.Builds = svc
	}

	errCh := make(chan error, 1)
	go func() { errCh <- mcpserver.New(deps).ServeStdio() }()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return nil
	}
}

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"swissdamed/internal/config"
	"swissdamed/internal/dbclient"
	"swissdamed/internal/deploy"
	"swissdamed/internal/etl"
	"swissdamed/internal/etl/destinations"
	"swissdamed/internal/migel"
)

// ── After-build steps ──────────────────────────────────────

// sqliteArtifact returns the path written by the SQLite encoder.
func sqliteArtifact(res *etl.Result) (string, error) {
	for _, a := range res.Artifacts {
		if a.Encoder == "sqlite" {
			return a.Path, nil
		}
	}
	return "", errors.New("no SQLite artifact to deploy")
}

// deployConfig resolves the SFTP target and credentials.
func (a *App) deployConfig() (deploy.Config, error) {
	target, err := deploy.ParseTarget(a.cfg.Deploy.Target)
	if err != nil {
		return deploy.Config{}, err
	}
	password, err := a.secrets.Resolve(a.cfg.Deploy.PasswordEnv)
	if err != nil {
		return deploy.Config{}, fmt.Errorf("deploy password: %w", err)
	}
	return deploy.Config{
		Target:     target,
		KeyFile:    a.cfg.Deploy.KeyFile,
		Password:   password,
		KnownHosts: a.cfg.Deploy.KnownHosts,
		Timeout:    a.cfg.Deploy.Timeout,
	}, nil
}

func (a *App) deployStep(ctx context.Context, res *etl.Result) error {
	local, err := sqliteArtifact(res)
	if err != nil {
		return err
	}
	cfg, err := a.deployConfig()
	if err != nil {
		return err
	}
	_, err = deploy.Upload(ctx, cfg, local)
	return err
}

func (a *App) publishStep(ctx context.Context, res *etl.Result) error {
	if res.Table == nil {
		return errors.New("no table to publish")
	}
	_, err := dbclient.PublishAll(ctx, a.cfg.Publish, res.Table, a.secrets.Resolve)
	return err
}

// migelCatalog loads migel.file, or downloads migel.url into the
// output directory first.
func (a *App) migelCatalog(ctx context.Context) (*migel.Catalog, error) {
	path := a.cfg.Migel.File
	if path == "" {
		path = filepath.Join(a.cfg.OutputDir, "migel.xlsx")
		if _, err := migel.Download(ctx, a.cfg.Migel.URL, path, a.cfg.Migel.Timeout); err != nil {
			return nil, err
		}
	}
	c, err := migel.Load(path)
	if err != nil {
		return nil, err
	}
	log.Printf("migel: %d items, %d keywords", len(c.Items), c.Keywords())
	return c, nil
}

// migelStep writes the rows that match a MiGeL position, with the
// position appended, to a separate dated SQLite file.
func (a *App) migelStep(ctx context.Context, res *etl.Result) error {
	if res.Table == nil {
		return errors.New("no table to match")
	}
	catalog, err := a.migelCatalog(ctx)
	if err != nil {
		return err
	}
	matched, err := catalog.Annotate(ctx, res.Table)
	if err != nil {
		return err
	}
	log.Printf("migel: %d of %d rows matched", len(matched.Rows), len(res.Table.Rows))
	if len(matched.Rows) == 0 {
		log.Printf("No MiGeL matches found.")
		return nil
	}

	enc := &destinations.SQLite{
		Path:  config.OutputPath(a.cfg.OutputDir, a.cfg.Prefix+"_migel", "db", time.Now()),
		Table: a.cfg.Table,
	}
	path, err := enc.Encode(ctx, matched)
	if err != nil {
		return err
	}
	res.Artifacts = append(res.Artifacts, etl.Artifact{Encoder: "migel", Path: path})
	return nil
}

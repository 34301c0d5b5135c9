package etl

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/errgroup"
)

// ── Build ──────────────────────────────────────────────────
// Orchestrates: source.Read → Discover → Flatten → encoders.
// Stages never overlap; encoders share the immutable Table and
// run concurrently, each owning its own output handle.

// Job describes one full rebuild.
type Job struct {
	ID       string
	Source   Source
	Shape    Shape // zero value means DefaultShape
	Encoders []Encoder
}

// Artifact is one file produced by an encoder.
type Artifact struct {
	Encoder string `json:"encoder"`
	Path    string `json:"path"`
}

// Result is the outcome of running a job.
type Result struct {
	JobID     string        `json:"jobId"`
	Status    string        `json:"status"` // "success" | "error" | "empty"
	Records   int           `json:"records"`
	Rows      int           `json:"rows"`
	Columns   int           `json:"columns"`
	Artifacts []Artifact    `json:"artifacts"`
	Duration  time.Duration `json:"duration"`
	Error     string        `json:"error,omitempty"`

	// Table is the built table; nil when the run failed before flattening.
	Table *Table `json:"-"`
}

// Engine runs build jobs.
type Engine struct{}

// Run executes a job end-to-end. Source errors abort before discovery;
// encoder errors are collected per encoder and joined.
func (e *Engine) Run(ctx context.Context, job *Job) (*Result, error) {
	start := time.Now()
	result := &Result{JobID: job.ID}
	fail := func(err error) (*Result, error) {
		result.Status = "error"
		result.Error = err.Error()
		result.Duration = time.Since(start)
		return result, err
	}

	if job.Source == nil {
		return fail(errors.New("no source configured"))
	}

	// 1. Acquire the complete record set.
	records, err := job.Source.Read(ctx)
	if err != nil {
		return fail(err)
	}
	result.Records = len(records)
	if len(records) == 0 {
		log.Printf("build: source %s returned no data", job.Source.Name())
		result.Status = "empty"
		result.Duration = time.Since(start)
		return result, nil
	}

	// 2+3. Discover columns, then flatten against them.
	shape := job.Shape
	if shape.VariantsField == "" {
		shape = DefaultShape
	}
	table := shape.BuildTable(records)
	if table.Columns.Len() == 0 {
		// Records without fields or variants leave nothing to write.
		log.Printf("build: %d records from %s carry no fields", result.Records, job.Source.Name())
		result.Status = "empty"
		result.Duration = time.Since(start)
		return result, nil
	}
	result.Table = table
	result.Rows = len(table.Rows)
	result.Columns = table.Columns.Len()
	log.Printf("build: processed %d items, generated %d rows with %d columns", result.Records, result.Rows, result.Columns)

	// 4. Encode.
	artifacts, err := Encode(ctx, table, job.Encoders)
	result.Artifacts = artifacts
	if err != nil {
		return fail(err)
	}

	result.Status = "success"
	result.Duration = time.Since(start)
	return result, nil
}

// Encode runs every encoder concurrently over t. A failing encoder does
// not stop the others; successful artifacts are returned in encoder order
// together with the joined errors.
func Encode(ctx context.Context, t *Table, encoders []Encoder) ([]Artifact, error) {
	paths := make([]string, len(encoders))
	errs := make([]error, len(encoders))

	var g errgroup.Group
	for i, enc := range encoders {
		g.Go(func() error {
			path, err := enc.Encode(ctx, t)
			if err != nil {
				errs[i] = fmt.Errorf("encode %s: %w", enc.Name(), err)
				return errs[i]
			}
			paths[i] = path
			log.Printf("build: %s written: %s", enc.Name(), path)
			return nil
		})
	}
	_ = g.Wait()

	var artifacts []Artifact
	for i, enc := range encoders {
		if errs[i] == nil {
			artifacts = append(artifacts, Artifact{Encoder: enc.Name(), Path: paths[i]})
		}
	}
	return artifacts, errors.Join(errs...)
}

package etl

import "context"

// ── Source ──────────────────────────────────────────────────
// A Source extracts raw records from an external system.
// Implementations live in etl/sources/, one file per source type.
// Each source owns its transport (HTTP client, file handle); nothing
// is shared between sources or kept in package state.

// Source supplies the full, ordered record set of one run.
type Source interface {
	// Name identifies the source in logs and run history.
	Name() string

	// Read returns every record in source order. Pages fetched out of
	// order must be reassembled before Read returns.
	Read(ctx context.Context) ([]Record, error)
}

// SourceFunc adapts a plain function to the Source interface.
type SourceFunc struct {
	Label string
	Fn    func(ctx context.Context) ([]Record, error)
}

func (s SourceFunc) Name() string { return s.Label }

func (s SourceFunc) Read(ctx context.Context) ([]Record, error) { return s.Fn(ctx) }

// StaticSource serves a fixed record set.
type StaticSource []Record

func (s StaticSource) Name() string { return "static" }

func (s StaticSource) Read(context.Context) ([]Record, error) { return s, nil }

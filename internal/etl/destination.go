package etl

import (
	"context"
	"fmt"
)

// ── Destination ────────────────────────────────────────────
// An Encoder writes a finished Table as one self-contained artifact.
// Implementations live in etl/destinations/.

// Encoder persists a Table and reports where it went.
type Encoder interface {
	Name() string
	Encode(ctx context.Context, t *Table) (path string, err error)
}

// EncodeError carries the artifact path and stage of an encoder failure.
type EncodeError struct {
	Encoder string // "csv" | "sqlite" | ...
	Path    string
	Stage   string // "create" | "schema" | "insert" | "index" | "commit" | "write" | "rename"
	Err     error
}

func (e *EncodeError) Error() string {
	if e == nil {
		return "encode error"
	}
	return fmt.Sprintf("%s %s: %s: %v", e.Encoder, e.Path, e.Stage, e.Err)
}

func (e *EncodeError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

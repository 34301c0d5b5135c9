package sources

import (
	"context"
	"fmt"
	"log"
	"os"

	"swissdamed/internal/etl"
)

// ── JSON File Source ────────────────────────────────────────
// Reads a local snapshot: {"values": [...]} or a top-level array.

// JSONFileSource loads records from a snapshot file.
type JSONFileSource struct {
	Path string
}

func (s *JSONFileSource) Name() string { return "json_file" }

func (s *JSONFileSource) Read(ctx context.Context) ([]etl.Record, error) {
	if s.Path == "" {
		return nil, &AcquireError{Source: s.Name(), Page: -1, Err: fmt.Errorf("path is required")}
	}
	if err := ctx.Err(); err != nil {
		return nil, &AcquireError{Source: s.Name(), Page: -1, Err: err}
	}

	log.Printf("source json_file: loading %s", s.Path)
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, &AcquireError{Source: s.Name(), Page: -1, Err: fmt.Errorf("read file: %w", err)}
	}
	records, err := etl.DecodeSnapshot(data)
	if err != nil {
		return nil, &AcquireError{Source: s.Name(), Page: -1, Err: fmt.Errorf("%s: %w", s.Path, err)}
	}
	return records, nil
}

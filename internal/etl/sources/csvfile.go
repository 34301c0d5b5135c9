package sources

import (
	"context"
	"fmt"
	"log"

	"swissdamed/internal/etl"
	"swissdamed/internal/etl/destinations"
)

// ── CSV File Source ─────────────────────────────────────────
// Re-reads a CSV artifact as flat records, one per line. Every cell
// becomes a text field, so rebuilding from the artifact reproduces
// the same table (e.g. to regenerate the SQLite file without a download).

// CSVFileSource loads records from a previously written CSV artifact.
type CSVFileSource struct {
	Path string
}

func (s *CSVFileSource) Name() string { return "csv_file" }

func (s *CSVFileSource) Read(ctx context.Context) ([]etl.Record, error) {
	if s.Path == "" {
		return nil, &AcquireError{Source: s.Name(), Page: -1, Err: fmt.Errorf("path is required")}
	}
	if err := ctx.Err(); err != nil {
		return nil, &AcquireError{Source: s.Name(), Page: -1, Err: err}
	}

	log.Printf("source csv_file: loading %s", s.Path)
	header, rows, err := destinations.ReadCSVFile(s.Path)
	if err != nil {
		return nil, &AcquireError{Source: s.Name(), Page: -1, Err: fmt.Errorf("%s: %w", s.Path, err)}
	}

	records := make([]etl.Record, len(rows))
	for i, row := range rows {
		fields := make([]etl.Field, len(header))
		for j, name := range header {
			fields[j] = etl.Field{Name: name, Value: etl.Text(row[j])}
		}
		records[i] = etl.NewRecord(fields...)
	}
	return records, nil
}

package destinations

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"swissdamed/internal/etl"
)

// ── CSV Destination ─────────────────────────────────────────
// BOM-prefixed UTF-8 CSV: header line, then one line per row.
// Spreadsheet tools need the BOM to pick UTF-8 for accented names.

// BOM is the UTF-8 byte order mark written before the header.
var BOM = []byte{0xEF, 0xBB, 0xBF}

// WriteCSV writes t to w.
func WriteCSV(w io.Writer, t *etl.Table) error {
	if _, err := w.Write(BOM); err != nil {
		return fmt.Errorf("write bom: %w", err)
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Header()); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i, row := range t.Rows {
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write row %d: %w", i, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadCSV decodes a CSV artifact. A leading BOM is skipped. Every row
// must have as many cells as the header. encoding/csv reads CR LF inside
// a quoted field as LF; built cells never hold CR, so they read back as
// written.
func ReadCSV(r io.Reader) (header []string, rows []etl.Row, err error) {
	br := bufio.NewReader(r)
	if prefix, _ := br.Peek(len(BOM)); bytes.Equal(prefix, BOM) {
		_, _ = br.Discard(len(BOM))
	}

	cr := csv.NewReader(br)
	header, err = cr.Read()
	if err == io.EOF {
		return nil, nil, fmt.Errorf("read header: empty file")
	}
	if err != nil {
		return nil, nil, fmt.Errorf("read header: %w", err)
	}
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("read row: %w", err)
		}
		rows = append(rows, etl.Row(rec))
	}
	return header, rows, nil
}

// ReadCSVFile opens path and decodes it with ReadCSV.
func ReadCSVFile(path string) ([]string, []etl.Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()
	return ReadCSV(f)
}

// CSV writes the table to Path through a temporary file in the same
// directory, so an existing artifact is only replaced by a complete one.
type CSV struct {
	Path string
}

func (c *CSV) Name() string { return "csv" }

func (c *CSV) Encode(ctx context.Context, t *etl.Table) (string, error) {
	fail := func(stage string, err error) (string, error) {
		return "", &etl.EncodeError{Encoder: c.Name(), Path: c.Path, Stage: stage, Err: err}
	}
	if err := ctx.Err(); err != nil {
		return fail("create", err)
	}

	dir := filepath.Dir(c.Path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fail("create", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(c.Path)+".tmp-*")
	if err != nil {
		return fail("create", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	bw := bufio.NewWriter(tmp)
	if err := WriteCSV(bw, t); err != nil {
		return fail("write", err)
	}
	if err := bw.Flush(); err != nil {
		return fail("write", err)
	}
	if err := tmp.Chmod(0644); err != nil {
		return fail("write", err)
	}
	if err := tmp.Close(); err != nil {
		return fail("write", err)
	}
	if err := os.Rename(tmpPath, c.Path); err != nil {
		return fail("rename", err)
	}
	committed = true
	return c.Path, nil
}

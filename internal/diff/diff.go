package diff

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"swissdamed/internal/etl"
	"swissdamed/internal/etl/destinations"
)

// ── CSV diff ───────────────────────────────────────────────
// Compares two CSV artifacts keyed by the variant identifier.
// Several rows may share a key; rows of a key are compared as sets.

// Status labels one diff row.
type Status string

const (
	StatusAdded      Status = "added"
	StatusRemoved    Status = "removed"
	StatusChangedOld Status = "changed_old"
	StatusChangedNew Status = "changed_new"
)

// StatusColumn is prepended to the artifact header in the report.
const StatusColumn = "diff_status"

// ErrHeaderMismatch is returned when the two files have different columns.
var ErrHeaderMismatch = errors.New("CSV files have different headers, cannot diff")

// Entry is one reported row.
type Entry struct {
	Status Status
	Row    etl.Row
}

// Result is the outcome of a comparison. Entries are ordered: added rows
// in new-file order, removed rows in old-file order, then for every
// changed key (in new-file order) its old rows followed by its new rows.
type Result struct {
	Header  []string
	Entries []Entry

	Added   int
	Removed int
	Changed int // changed_new rows
}

// Empty reports whether the files are equivalent.
func (r *Result) Empty() bool { return len(r.Entries) == 0 }

type keyedRows struct {
	order []string
	rows  map[string][]etl.Row
}

func groupByKey(rows []etl.Row, keyIdx int) keyedRows {
	g := keyedRows{rows: make(map[string][]etl.Row)}
	for _, row := range rows {
		k := row[keyIdx]
		if _, seen := g.rows[k]; !seen {
			g.order = append(g.order, k)
		}
		g.rows[k] = append(g.rows[k], row)
	}
	return g
}

func rowKey(row etl.Row) string { return strings.Join(row, "\x00") }

func rowSet(rows []etl.Row) map[string]bool {
	s := make(map[string]bool, len(rows))
	for _, r := range rows {
		s[rowKey(r)] = true
	}
	return s
}

func sameSet(a, b map[string]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if !b[k] {
			return false
		}
	}
	return true
}

// Compare diffs two decoded artifacts on the key column.
func Compare(oldHeader, newHeader []string, oldRows, newRows []etl.Row, key string) (*Result, error) {
	if strings.Join(oldHeader, "\x00") != strings.Join(newHeader, "\x00") {
		return nil, ErrHeaderMismatch
	}
	keyIdx := -1
	for i, h := range oldHeader {
		if h == key {
			keyIdx = i
			break
		}
	}
	if keyIdx < 0 {
		return nil, fmt.Errorf("column %q not found in headers", key)
	}

	oldG := groupByKey(oldRows, keyIdx)
	newG := groupByKey(newRows, keyIdx)
	res := &Result{Header: oldHeader}

	for _, k := range newG.order {
		if _, ok := oldG.rows[k]; !ok {
			for _, row := range newG.rows[k] {
				res.Entries = append(res.Entries, Entry{StatusAdded, row})
				res.Added++
			}
		}
	}
	for _, k := range oldG.order {
		if _, ok := newG.rows[k]; !ok {
			for _, row := range oldG.rows[k] {
				res.Entries = append(res.Entries, Entry{StatusRemoved, row})
				res.Removed++
			}
		}
	}
	for _, k := range newG.order {
		oldSide, ok := oldG.rows[k]
		if !ok {
			continue
		}
		newSide := newG.rows[k]
		oldSet, newSet := rowSet(oldSide), rowSet(newSide)
		if sameSet(oldSet, newSet) {
			continue
		}
		for _, row := range oldSide {
			if !newSet[rowKey(row)] {
				res.Entries = append(res.Entries, Entry{StatusChangedOld, row})
			}
		}
		for _, row := range newSide {
			if !oldSet[rowKey(row)] {
				res.Entries = append(res.Entries, Entry{StatusChangedNew, row})
				res.Changed++
			}
		}
	}
	return res, nil
}

// Files reads two CSV artifacts and compares them on key.
func Files(oldPath, newPath, key string) (*Result, error) {
	oldHeader, oldRows, err := destinations.ReadCSVFile(oldPath)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", oldPath, err)
	}
	newHeader, newRows, err := destinations.ReadCSVFile(newPath)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", newPath, err)
	}
	return Compare(oldHeader, newHeader, oldRows, newRows, key)
}

// Write encodes the report as BOM-prefixed CSV with a leading status column.
func (r *Result) Write(w io.Writer) error {
	if _, err := w.Write(destinations.BOM); err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(append([]string{StatusColumn}, r.Header...)); err != nil {
		return err
	}
	for _, e := range r.Entries {
		if err := cw.Write(append([]string{string(e.Status)}, e.Row...)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteFile writes the report to path, creating its directory.
func (r *Result) WriteFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create diff directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	bw := bufio.NewWriter(f)
	if err := r.Write(bw); err != nil {
		f.Close()
		return err
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// DateFromFilename extracts DD.MM.YYYY from "<prefix>_DD.MM.YYYY.csv",
// or returns "unknown".
func DateFromFilename(path string) string {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	date := stem
	if i := strings.LastIndex(stem, "_"); i >= 0 {
		date = stem[i+1:]
	}
	if len(date) == 10 && strings.Count(date, ".") == 2 {
		return date
	}
	return "unknown"
}

// OutputPath names the report for a pair of artifacts:
// <dir>/diff_<prefix>_<oldDate>_<newDate>.csv.
func OutputPath(dir, prefix, oldPath, newPath string) string {
	name := fmt.Sprintf("diff_%s_%s_%s.csv", prefix, DateFromFilename(oldPath), DateFromFilename(newPath))
	return filepath.Join(dir, name)
}

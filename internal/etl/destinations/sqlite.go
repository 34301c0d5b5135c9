package destinations

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"swissdamed/internal/etl"
)

// ── SQLite Destination ──────────────────────────────────────
// One table, every column TEXT, filled inside a single transaction.
// The file is built under a temporary name and renamed into place
// after commit, so readers never see a half-written database.

// DefaultTable is the table name used when SQLite.Table is empty.
const DefaultTable = "swissdamed"

// SQLite writes the table to a fresh SQLite database at Path.
type SQLite struct {
	Path  string
	Table string
}

func (s *SQLite) Name() string { return "sqlite" }

func (s *SQLite) tableName() string {
	if s.Table == "" {
		return DefaultTable
	}
	return s.Table
}

func (s *SQLite) Encode(ctx context.Context, t *etl.Table) (path string, err error) {
	stage := "create"
	fail := func(err error) (string, error) {
		return "", &etl.EncodeError{Encoder: s.Name(), Path: s.Path, Stage: stage, Err: err}
	}

	if err := os.MkdirAll(filepath.Dir(s.Path), 0755); err != nil {
		return fail(err)
	}
	tmpPath := s.Path + ".tmp-" + uuid.NewString()
	defer func() {
		if err != nil {
			removeSQLiteFiles(tmpPath)
		}
	}()

	db, err := sql.Open("sqlite", tmpPath)
	if err != nil {
		return fail(err)
	}
	db.SetMaxOpenConns(1)
	closed := false
	defer func() {
		if !closed {
			db.Close()
		}
	}()

	if err := WriteSQLite(ctx, db, s.tableName(), t, &stage); err != nil {
		return fail(err)
	}

	stage = "commit"
	closed = true
	if err := db.Close(); err != nil {
		return fail(err)
	}
	stage = "rename"
	if err := os.Rename(tmpPath, s.Path); err != nil {
		return fail(err)
	}
	return s.Path, nil
}

// WriteSQLite creates table in db and loads t into it. stage, when not
// nil, is updated as the write progresses so callers can report where
// a failure happened.
func WriteSQLite(ctx context.Context, db *sql.DB, table string, t *etl.Table, stage *string) error {
	set := func(s string) {
		if stage != nil {
			*stage = s
		}
	}
	cols := t.Header()
	if len(cols) == 0 {
		set("schema")
		return errors.New("table has no columns")
	}

	set("schema")
	defs := make([]string, len(cols))
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = QuoteIdent(c)
		defs[i] = quoted[i] + " TEXT"
	}
	create := fmt.Sprintf("CREATE TABLE %s (%s)", QuoteIdent(table), strings.Join(defs, ", "))
	if _, err := db.ExecContext(ctx, create); err != nil {
		return fmt.Errorf("create table: %w", err)
	}

	set("insert")
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	insert := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", QuoteIdent(table), strings.Join(quoted, ", "), placeholders)
	stmt, err := tx.PrepareContext(ctx, insert)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	args := make([]any, len(cols))
	for n, row := range t.Rows {
		for i := range args {
			args[i] = row[i]
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("insert row %d: %w", n, err)
		}
	}

	set("commit")
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	set("index")
	for _, idx := range t.Columns.LookupColumns() {
		q := fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s(%s)",
			QuoteIdent("idx_"+idx), QuoteIdent(table), QuoteIdent(idx))
		if _, err := db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("create index on %s: %w", idx, err)
		}
	}
	return nil
}

// QuoteIdent quotes an SQL identifier with double quotes.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func removeSQLiteFiles(path string) {
	for _, suffix := range []string{"", "-journal", "-wal", "-shm"} {
		os.Remove(path + suffix)
	}
}

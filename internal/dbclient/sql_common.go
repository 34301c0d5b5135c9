package dbclient

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"swissdamed/internal/domain"
	"swissdamed/internal/etl"
)

// dialect captures what differs between the SQL targets.
type dialect struct {
	driverName string
	quote      func(ident string) string
	// placeholder returns the n-th (1-based) bind parameter.
	placeholder func(n int) string
	// indexColumn renders an indexed column; MySQL needs a prefix length on TEXT.
	indexColumn func(quoted string) string
	// transactionalDDL is false when DDL commits implicitly (MySQL).
	transactionalDDL bool
}

func doubleQuote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

func questionMark(int) string { return "?" }

func plainColumn(quoted string) string { return quoted }

// sqlPublisher is the shared implementation for MySQL, Postgres, and SQLite.
type sqlPublisher struct {
	d      dialect
	db     *sql.DB
	target string
	table  string
}

// newSQLPublisher opens a pooled connection for one publish.
func newSQLPublisher(d dialect, dsn string, conn *domain.DatabaseConnection) (*sqlPublisher, error) {
	db, err := sql.Open(d.driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", d.driverName, err)
	}
	db.SetMaxOpenConns(2)
	db.SetConnMaxLifetime(10 * time.Minute)
	return &sqlPublisher{d: d, db: db, target: targetName(conn), table: tableName(conn)}, nil
}

func (p *sqlPublisher) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return p.db.PingContext(ctx)
}

func (p *sqlPublisher) Close() error { return p.db.Close() }

// ── SQL generation ─────────────────────────────────────────

func createTableSQL(d dialect, table string, cols []string) string {
	defs := make([]string, len(cols))
	for i, c := range cols {
		defs[i] = d.quote(c) + " TEXT"
	}
	return fmt.Sprintf("CREATE TABLE %s (%s)", d.quote(table), strings.Join(defs, ", "))
}

func insertSQL(d dialect, table string, cols []string) string {
	names := make([]string, len(cols))
	marks := make([]string, len(cols))
	for i, c := range cols {
		names[i] = d.quote(c)
		marks[i] = d.placeholder(i + 1)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		d.quote(table), strings.Join(names, ", "), strings.Join(marks, ", "))
}

func indexSQL(d dialect, table, name, col string) string {
	return fmt.Sprintf("CREATE INDEX %s ON %s (%s)", d.quote(name), d.quote(table), d.indexColumn(d.quote(col)))
}

// ── Publish ────────────────────────────────────────────────

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

func (p *sqlPublisher) Publish(ctx context.Context, t *etl.Table) (*PublishResult, error) {
	cols := t.Header()
	if len(cols) == 0 {
		return nil, fmt.Errorf("table has no columns")
	}
	if p.d.transactionalDDL {
		return p.publishInTx(ctx, t, cols)
	}
	return p.publishStaged(ctx, t, cols)
}

// publishInTx drops, recreates and fills the table in one transaction.
func (p *sqlPublisher) publishInTx(ctx context.Context, t *etl.Table, cols []string) (*PublishResult, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+p.d.quote(p.table)); err != nil {
		return nil, fmt.Errorf("drop table: %w", err)
	}
	indexes, err := p.fill(ctx, tx, p.table, p.table, t, cols)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return &PublishResult{Target: p.target, Table: p.table, Rows: len(t.Rows), Indexes: indexes}, nil
}

// publishStaged fills a staging table, then swaps it in with one
// atomic RENAME TABLE.
func (p *sqlPublisher) publishStaged(ctx context.Context, t *etl.Table, cols []string) (*PublishResult, error) {
	staging := p.table + "__staging"
	old := p.table + "__old"
	q := p.d.quote

	for _, name := range []string{staging, old} {
		if _, err := p.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+q(name)); err != nil {
			return nil, fmt.Errorf("drop %s: %w", name, err)
		}
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()
	indexes, err := p.fill(ctx, tx, staging, p.table, t, cols)
	if err != nil {
		p.db.ExecContext(context.WithoutCancel(ctx), "DROP TABLE IF EXISTS "+q(staging))
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	// The swap needs an existing table to move aside.
	if _, err := p.db.ExecContext(ctx, fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s TEXT)", q(p.table), q(cols[0]))); err != nil {
		return nil, fmt.Errorf("ensure table: %w", err)
	}
	swap := fmt.Sprintf("RENAME TABLE %s TO %s, %s TO %s", q(p.table), q(old), q(staging), q(p.table))
	if _, err := p.db.ExecContext(ctx, swap); err != nil {
		return nil, fmt.Errorf("swap table: %w", err)
	}
	if _, err := p.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+q(old)); err != nil {
		return nil, fmt.Errorf("drop %s: %w", old, err)
	}
	return &PublishResult{Target: p.target, Table: p.table, Rows: len(t.Rows), Indexes: indexes}, nil
}

// fill creates table, inserts every row and builds the lookup indexes.
// Index names derive from indexBase so they survive a rename.
func (p *sqlPublisher) fill(ctx context.Context, x execer, table, indexBase string, t *etl.Table, cols []string) ([]string, error) {
	if _, err := x.ExecContext(ctx, createTableSQL(p.d, table, cols)); err != nil {
		return nil, fmt.Errorf("create table: %w", err)
	}

	stmt, err := x.PrepareContext(ctx, insertSQL(p.d, table, cols))
	if err != nil {
		return nil, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	args := make([]any, len(cols))
	for i, row := range t.Rows {
		for j := range args {
			args[j] = row[j]
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return nil, fmt.Errorf("insert row %d: %w", i, err)
		}
	}

	var indexes []string
	for _, col := range t.Columns.LookupColumns() {
		name := indexName(indexBase, col)
		if _, err := x.ExecContext(ctx, indexSQL(p.d, table, name, col)); err != nil {
			return nil, fmt.Errorf("create index %s: %w", name, err)
		}
		indexes = append(indexes, name)
	}
	return indexes, nil
}

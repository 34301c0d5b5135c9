package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"

	"swissdamed/internal/etl"
)

// ── Artifact ───────────────────────────────────────────────
// Read-only access to a built SQLite artifact, used by the MCP
// tools and by tests that check what the encoder wrote.

// Artifact is an opened SQLite artifact.
type Artifact struct {
	conn  *sql.DB
	path  string
	table string
	shape etl.Shape
}

// ResultSet is a slice of an artifact table.
type ResultSet struct {
	Columns []string  `json:"columns"`
	Rows    []etl.Row `json:"rows"`
}

// ColumnInfo describes one artifact column.
type ColumnInfo struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Indexed bool   `json:"indexed"`
}

// TableInfo describes the artifact table.
type TableInfo struct {
	Path      string       `json:"path"`
	Table     string       `json:"table"`
	Rows      int          `json:"rows"`
	Columns   []ColumnInfo `json:"columns"`
	Indexes   []string     `json:"indexes"`
	Languages []string     `json:"languages"`
}

// OpenArtifact opens the artifact at path. table defaults to "swissdamed".
func OpenArtifact(path, table string) (*Artifact, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("open artifact: %w", err)
	}
	if table == "" {
		table = "swissdamed"
	}
	conn, err := sql.Open("sqlite", path+"?_pragma=query_only(1)")
	if err != nil {
		return nil, fmt.Errorf("open artifact: %w", err)
	}
	conn.SetMaxOpenConns(1)

	a := &Artifact{conn: conn, path: path, table: table, shape: etl.DefaultShape}
	if _, err := a.columns(context.Background()); err != nil {
		conn.Close()
		return nil, err
	}
	return a, nil
}

func (a *Artifact) Close() error { return a.conn.Close() }

func (a *Artifact) Path() string { return a.path }

// Describe reports columns, indexes and row count.
func (a *Artifact) Describe(ctx context.Context) (*TableInfo, error) {
	info := &TableInfo{Path: a.path, Table: a.table}

	rows, err := a.conn.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", quoteIdent(a.table)))
	if err != nil {
		return nil, fmt.Errorf("table info: %w", err)
	}
	for rows.Next() {
		var (
			cid, notNull, pk int
			name, typ        string
			dflt             sql.NullString
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dflt, &pk); err != nil {
			rows.Close()
			return nil, err
		}
		info.Columns = append(info.Columns, ColumnInfo{Name: name, Type: typ})
		if lang, ok := strings.CutPrefix(name, a.shape.ColumnPrefix); ok {
			info.Languages = append(info.Languages, lang)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	idxRows, err := a.conn.QueryContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'index' AND tbl_name = ? ORDER BY name`, a.table)
	if err != nil {
		return nil, fmt.Errorf("list indexes: %w", err)
	}
	indexed := make(map[string]bool)
	for idxRows.Next() {
		var name string
		if err := idxRows.Scan(&name); err != nil {
			idxRows.Close()
			return nil, err
		}
		info.Indexes = append(info.Indexes, name)
		indexed[strings.TrimPrefix(name, "idx_")] = true
	}
	idxRows.Close()
	if err := idxRows.Err(); err != nil {
		return nil, err
	}
	for i := range info.Columns {
		info.Columns[i].Indexed = indexed[info.Columns[i].Name]
	}

	if err := a.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+quoteIdent(a.table)).Scan(&info.Rows); err != nil {
		return nil, fmt.Errorf("count rows: %w", err)
	}
	return info, nil
}

// ReadTable returns every row in insertion order.
func (a *Artifact) ReadTable(ctx context.Context) (*ResultSet, error) {
	return a.query(ctx, "SELECT * FROM "+quoteIdent(a.table)+" ORDER BY rowid")
}

// Lookup returns the rows whose identifier equals code.
func (a *Artifact) Lookup(ctx context.Context, code string) (*ResultSet, error) {
	q := fmt.Sprintf("SELECT * FROM %s WHERE %s = ? ORDER BY rowid",
		quoteIdent(a.table), quoteIdent(a.shape.IdentifierField))
	return a.query(ctx, q, strings.TrimSpace(code))
}

// SearchLocalized returns up to limit rows where any localized column
// contains term (case-insensitive for ASCII).
func (a *Artifact) SearchLocalized(ctx context.Context, term string, limit int) (*ResultSet, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, fmt.Errorf("search term is required")
	}
	if limit <= 0 {
		limit = 50
	}

	cols, err := a.columns(ctx)
	if err != nil {
		return nil, err
	}
	var (
		conds []string
		args  []any
	)
	pattern := "%" + escapeLike(term) + "%"
	for _, c := range cols {
		if strings.HasPrefix(c, a.shape.ColumnPrefix) {
			conds = append(conds, quoteIdent(c)+` LIKE ? ESCAPE '\'`)
			args = append(args, pattern)
		}
	}
	if len(conds) == 0 {
		return &ResultSet{Columns: cols}, nil
	}
	args = append(args, limit)
	q := fmt.Sprintf("SELECT * FROM %s WHERE %s ORDER BY rowid LIMIT ?",
		quoteIdent(a.table), strings.Join(conds, " OR "))
	return a.query(ctx, q, args...)
}

func (a *Artifact) columns(ctx context.Context) ([]string, error) {
	rows, err := a.conn.QueryContext(ctx, "SELECT * FROM "+quoteIdent(a.table)+" LIMIT 0")
	if err != nil {
		return nil, fmt.Errorf("read table %s: %w", a.table, err)
	}
	defer rows.Close()
	return rows.Columns()
}

func (a *Artifact) query(ctx context.Context, q string, args ...any) (*ResultSet, error) {
	rows, err := a.conn.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", a.table, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	rs := &ResultSet{Columns: cols}
	vals := make([]sql.NullString, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(etl.Row, len(cols))
		for i, v := range vals {
			row[i] = v.String
		}
		rs.Rows = append(rs.Rows, row)
	}
	return rs, rows.Err()
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

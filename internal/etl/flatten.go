package etl

import "strings"

// ── Flattening ─────────────────────────────────────────────
// Second pass: one row per variant, parent scalars duplicated on
// every row; a record without variants still yields one row.

// Row is one output line, aligned to a ColumnSet.
type Row []string

// Table is the immutable (columns, rows) pair handed to encoders.
type Table struct {
	Columns ColumnSet
	Rows    []Row
}

// Header returns the column names in order.
func (t *Table) Header() []string { return t.Columns.Names() }

// BuildTable runs discovery then flattening over the full record set.
func BuildTable(records []Record) *Table {
	return DefaultShape.BuildTable(records)
}

// BuildTable runs discovery then flattening over the full record set.
func (s Shape) BuildTable(records []Record) *Table {
	cols := s.Discover(records)
	return &Table{Columns: cols, Rows: s.Flatten(records, cols)}
}

// NewTable wraps rows that are already flat, such as a re-read artifact
// or an annotated copy of a built table. Every row must be as wide as names.
func NewTable(names []string, rows []Row) *Table {
	return &Table{Columns: FlatColumns(names), Rows: rows}
}

// Flatten expands records into rows using DefaultShape.
func Flatten(records []Record, cols ColumnSet) []Row {
	return DefaultShape.Flatten(records, cols)
}

// localizedJoin separates several texts for the same language on one variant.
const localizedJoin = " | "

// Flatten expands records into rows aligned to cols. Row order is record
// order, then variant declaration order. It never fails on data content.
func (s Shape) Flatten(records []Record, cols ColumnSet) []Row {
	width := cols.Len()
	idCol, hasID := cols.idCol, cols.identifier != ""

	rows := make([]Row, 0, len(records))
	for _, rec := range records {
		base := make(Row, width)
		for i := 0; i < cols.scalars; i++ {
			base[i] = rec.Get(cols.origin[i]).Text()
		}

		variants := s.variants(rec)
		if len(variants) == 0 {
			rows = append(rows, base)
			continue
		}

		for _, variant := range variants {
			row := make(Row, width)
			copy(row, base)
			if hasID {
				row[idCol] = variant.Get(s.IdentifierField).Text()
			}
			for lang, text := range s.textsByLanguage(variant) {
				if i, ok := cols.langCols[lang]; ok {
					row[i] = text
				}
			}
			rows = append(rows, row)
		}
	}
	return rows
}

// textsByLanguage groups a variant's non-empty localized texts by language.
func (s Shape) textsByLanguage(variant *Object) map[string]string {
	entries := s.localizedEntries(variant)
	if len(entries) == 0 {
		return nil
	}
	parts := make(map[string][]string)
	for _, e := range entries {
		if e.text == "" {
			continue
		}
		parts[e.lang] = append(parts[e.lang], e.text)
	}
	out := make(map[string]string, len(parts))
	for lang, texts := range parts {
		out[lang] = strings.Join(texts, localizedJoin)
	}
	return out
}

package etl

import (
	"strconv"
	"strings"
)

// ── Schema discovery ───────────────────────────────────────
// First pass over the full record set. Column order is a contract
// shared with both encoders: parent scalars (first seen), then the
// variant identifier, then one column per language (first seen).

// ColumnSet is the ordered, immutable set of output columns.
//
// Column names are unique ignoring case, since SQL identifiers are.
// A name that differs from an earlier one only by case gets a numeric
// suffix ("Name", "name_2"); origin keeps the name each column was
// requested under, so flattening still reads the right field.
type ColumnSet struct {
	names      []string
	index      map[string]int
	scalars    int
	origin     []string       // requested name per column
	identifier string         // column name; empty when no variant was seen
	idCol      int            // -1 when no variant was seen
	langs      []string       // language tags, first seen
	langCols   map[string]int // language tag -> column
	shape      Shape
}

// Names returns a copy of the column names in order.
func (c ColumnSet) Names() []string {
	out := make([]string, len(c.names))
	copy(out, c.names)
	return out
}

func (c ColumnSet) Len() int { return len(c.names) }

// Index returns the position of a column.
func (c ColumnSet) Index(name string) (int, bool) {
	i, ok := c.index[name]
	return i, ok
}

// Scalars returns the parent scalar column names.
func (c ColumnSet) Scalars() []string {
	return c.Names()[:c.scalars]
}

// Identifier returns the variant identifier column, if any variant was seen.
func (c ColumnSet) Identifier() (string, bool) {
	return c.identifier, c.identifier != ""
}

// Languages returns the discovered language tags in first-seen order.
func (c ColumnSet) Languages() []string {
	out := make([]string, len(c.langs))
	copy(out, c.langs)
	return out
}

// LocalizedColumns returns the per-language column names in order.
func (c ColumnSet) LocalizedColumns() []string {
	out := make([]string, len(c.langs))
	for i, l := range c.langs {
		out[i] = c.names[c.langCols[l]]
	}
	return out
}

// Discover computes the column set of records using DefaultShape.
func Discover(records []Record) ColumnSet {
	return DefaultShape.Discover(records)
}

// Discover computes the column set of records. It never fails: malformed
// variant lists are empty and every value shape is accepted.
func (s Shape) Discover(records []Record) ColumnSet {
	var (
		scalars      []string
		seenScalar   = make(map[string]bool)
		sawVariant   bool
		langs        []string
		seenLanguage = make(map[string]bool)
	)

	for _, rec := range records {
		for _, f := range rec.Fields() {
			if f.Name == s.VariantsField || seenScalar[f.Name] {
				continue
			}
			seenScalar[f.Name] = true
			scalars = append(scalars, f.Name)
		}

		for _, variant := range s.variants(rec) {
			sawVariant = true
			for _, e := range s.localizedEntries(variant) {
				if !seenLanguage[e.lang] {
					seenLanguage[e.lang] = true
					langs = append(langs, e.lang)
				}
			}
		}
	}

	cs := ColumnSet{idCol: -1, shape: s}
	cs.build(scalars)
	if sawVariant {
		cs.idCol = cs.add(s.IdentifierField, true)
		cs.identifier = cs.names[cs.idCol]
		cs.langCols = make(map[string]int, len(langs))
		for _, l := range langs {
			cs.langCols[l] = cs.add(s.LocalizedColumn(l), true)
		}
		cs.langs = langs
	}
	return cs
}

// build registers the scalar columns.
func (c *ColumnSet) build(scalars []string) {
	c.index = make(map[string]int)
	c.scalars = len(scalars)
	for _, name := range scalars {
		c.add(name, false)
	}
}

// add registers a column and returns its position. With share, a name
// already registered verbatim reuses that column (a parent field that
// repeats the identifier); otherwise a name clashing with an existing
// one, ignoring case, is renamed with the first free "_N" suffix.
func (c *ColumnSet) add(name string, share bool) int {
	if i, ok := c.index[name]; ok && share && c.origin[i] == name {
		return i
	}
	col := name
	for n := 2; c.taken(col); n++ {
		col = name + "_" + strconv.Itoa(n)
	}
	c.index[col] = len(c.names)
	c.names = append(c.names, col)
	c.origin = append(c.origin, name)
	return c.index[col]
}

func (c *ColumnSet) taken(name string) bool {
	for _, existing := range c.names {
		if strings.EqualFold(existing, name) {
			return true
		}
	}
	return false
}

// FlatColumns returns a ColumnSet of plain scalar columns, for tables
// assembled from already flat rows (a re-read artifact, an annotated
// copy). Names are made unique the same way as in Discover.
func FlatColumns(names []string) ColumnSet {
	cs := ColumnSet{idCol: -1, shape: DefaultShape}
	cs.build(names)
	return cs
}

// LookupColumns returns the columns worth indexing: the identifier, then
// every localized column. Columns are matched by name, so a flat table
// re-read from an artifact yields the same list as the original build.
func (c ColumnSet) LookupColumns() []string {
	var out []string
	if c.identifier != "" {
		out = append(out, c.identifier)
	} else if _, ok := c.index[c.shape.IdentifierField]; ok && c.shape.IdentifierField != "" {
		out = append(out, c.shape.IdentifierField)
	}
	for _, name := range c.names {
		if c.shape.ColumnPrefix != "" && strings.HasPrefix(name, c.shape.ColumnPrefix) {
			out = append(out, name)
		}
	}
	return out
}

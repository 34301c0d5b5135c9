package migel

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ── Catalog ────────────────────────────────────────────────
// The BAG "Mittel- und Gegenständeliste" workbook has one sheet per
// language (DE, FR, IT) with the same layout. Rows with a position
// number are items; rows without one are category headers.

// Spreadsheet columns, zero based.
const (
	colCode        = 7  // H: Positions-Nr.
	colDesignation = 9  // J: Bezeichnung
	colLimitation  = 10 // K: Limitation
)

// Language slots for per-language keywords.
const (
	langDE = iota
	langFR
	langIT
	numLangs
)

// Item is one MiGeL position.
type Item struct {
	Code        string // position number, e.g. "15.01.01.00.1"
	Designation string // first line of the German designation
	Limitation  string

	primary   [numLangs][]string // first-line keywords per language
	secondary [numLangs][]string // long keywords from further lines
	all       []string           // every keyword, for the candidate index
}

// Catalog is a parsed MiGeL list with its keyword index.
type Catalog struct {
	Items []Item
	index map[string][]int // keyword -> item positions
}

// Keywords returns the number of distinct indexed keywords.
func (c *Catalog) Keywords() int { return len(c.index) }

// Load parses the workbook at path.
func Load(path string) (*Catalog, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return parse(f)
}

// Read parses a workbook from r.
func Read(r io.Reader) (*Catalog, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()
	return parse(f)
}

func parse(f *excelize.File) (*Catalog, error) {
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook has no sheets")
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheets[0], err)
	}
	var items []Item
	for i, row := range rows {
		if i == 0 {
			continue // header
		}
		code := cell(row, colCode)
		if code == "" {
			continue // category header
		}
		designation := cell(row, colDesignation)
		limitation := cell(row, colLimitation)

		it := Item{
			Code:        code,
			Designation: firstLine(designation),
			Limitation:  limitation,
			all:         keywords(designation, 3),
		}
		it.primary[langDE] = primaryKeywords(designation)
		it.secondary[langDE] = secondaryKeywords(designation)
		if limitation != "" {
			it.all = append(it.all, keywords(limitation, 3)...)
		}
		items = append(items, it)
	}

	byCode := make(map[string]int, len(items))
	for i, it := range items {
		byCode[it.Code] = i
	}

	// French and Italian sheets only add keywords to known positions.
	for lang := langFR; lang < numLangs && lang < len(sheets); lang++ {
		rows, err := f.GetRows(sheets[lang])
		if err != nil {
			return nil, fmt.Errorf("read sheet %s: %w", sheets[lang], err)
		}
		for i, row := range rows {
			if i == 0 {
				continue
			}
			idx, ok := byCode[cell(row, colCode)]
			if !ok {
				continue
			}
			designation := cell(row, colDesignation)
			it := &items[idx]
			it.primary[lang] = primaryKeywords(designation)
			it.secondary[lang] = secondaryKeywords(designation)
			it.all = append(it.all, keywords(designation, 3)...)
			if limitation := cell(row, colLimitation); limitation != "" {
				it.all = append(it.all, keywords(limitation, 3)...)
			}
		}
	}

	c := &Catalog{Items: items, index: make(map[string][]int)}
	for i := range c.Items {
		c.Items[i].all = dedupe(c.Items[i].all)
		for _, kw := range c.Items[i].all {
			c.index[kw] = append(c.index[kw], i)
		}
	}
	return c, nil
}

// cell returns the trimmed cell at col; GetRows omits trailing empty cells.
func cell(row []string, col int) string {
	if col >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[col])
}

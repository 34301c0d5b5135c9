package migel

import (
	"context"
	"runtime"
	"strings"

	"golang.org/x/sync/errgroup"

	"swissdamed/internal/etl"
)

// ── Annotate ───────────────────────────────────────────────

// Columns appended to matched rows.
const (
	ColCode        = "migel_code"
	ColDesignation = "migel_bezeichnung"
	ColLimitation  = "migel_limitation"
)

// Parent columns that add to the product text.
const (
	colBrand  = "companyName"
	colDevice = "deviceName"
	colModel  = "modelName"
)

const tradeNamePrefix = "tradeName_"

// describer builds a Description from a row of a given header.
type describer struct {
	tradeNames []tradeNameCol
	brand      int
	extra      []int // deviceName, modelName
}

type tradeNameCol struct {
	idx  int
	lang int // langDE..langIT, or -1 for every language
}

func newDescriber(header []string) describer {
	d := describer{brand: -1}
	for i, h := range header {
		switch {
		case strings.HasPrefix(h, tradeNamePrefix):
			lang := -1
			switch strings.ToUpper(strings.TrimPrefix(h, tradeNamePrefix)) {
			case "DE":
				lang = langDE
			case "FR":
				lang = langFR
			case "IT":
				lang = langIT
			}
			d.tradeNames = append(d.tradeNames, tradeNameCol{idx: i, lang: lang})
		case h == colBrand:
			d.brand = i
		case h == colDevice, h == colModel:
			d.extra = append(d.extra, i)
		}
	}
	return d
}

// describe puts each trade name in its language bucket. ANY, EN and
// other languages go to all three, as do device and model names.
func (d describer) describe(row etl.Row) Description {
	var buckets [numLangs][]string
	add := func(lang int, text string) {
		if text == "" {
			return
		}
		if lang >= 0 {
			buckets[lang] = append(buckets[lang], text)
			return
		}
		for l := range buckets {
			buckets[l] = append(buckets[l], text)
		}
	}
	for _, tn := range d.tradeNames {
		add(tn.lang, row[tn.idx])
	}
	for _, i := range d.extra {
		add(-1, row[i])
	}
	desc := Description{
		DE: strings.Join(buckets[langDE], " "),
		FR: strings.Join(buckets[langFR], " "),
		IT: strings.Join(buckets[langIT], " "),
	}
	if d.brand >= 0 {
		desc.Brand = row[d.brand]
	}
	return desc
}

// Annotate matches every row of t and returns a new table holding only
// the matched rows, in order, with the code, designation and limitation
// of their MiGeL item appended.
func (c *Catalog) Annotate(ctx context.Context, t *etl.Table) (*etl.Table, error) {
	header := t.Header()
	d := newDescriber(header)
	matches := make([]*Item, len(t.Rows))

	g, ctx := errgroup.WithContext(ctx)
	workers := runtime.GOMAXPROCS(0)
	chunk := (len(t.Rows) + workers - 1) / workers
	for start := 0; start < len(t.Rows); start += chunk {
		end := min(start+chunk, len(t.Rows))
		g.Go(func() error {
			for i := start; i < end; i++ {
				if i%256 == 0 {
					if err := ctx.Err(); err != nil {
						return err
					}
				}
				matches[i] = c.Match(d.describe(t.Rows[i]))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	outHeader := append(append([]string(nil), header...), ColCode, ColDesignation, ColLimitation)
	var rows []etl.Row
	for i, it := range matches {
		if it == nil {
			continue
		}
		row := make(etl.Row, 0, len(outHeader))
		row = append(row, t.Rows[i]...)
		row = append(row, it.Code, it.Designation, it.Limitation)
		rows = append(rows, row)
	}
	return etl.NewTable(outHeader, rows), nil
}

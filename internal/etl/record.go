package etl

// ── Record ─────────────────────────────────────────────────
// Common intermediate data format.
// All sources emit Records; discovery and flattening read them.
// A record holds scalar fields plus one nested list of variants
// (UDI-DI entries), each with an identifier and localized names.

// Record is one raw catalog record.
type Record struct {
	*Object
}

// NewRecord builds a record from fields in declaration order.
func NewRecord(fields ...Field) Record {
	return Record{Object: NewObject(fields...)}
}

// Shape names the well-known fields of the nested variant relation.
type Shape struct {
	VariantsField   string   // list of variants on the parent record
	IdentifierField string   // identifier on each variant
	LocalizedField  string   // list of per-language entries on each variant
	LanguageKeys    []string // language tag keys, in lookup order
	TextKeys        []string // localized text keys, in lookup order
	ColumnPrefix    string   // prefix of per-language column names
	DefaultLanguage string   // language used when an entry names none
}

// DefaultShape describes the swissdamed basic-UDI layout.
var DefaultShape = Shape{
	VariantsField:   "udiDis",
	IdentifierField: "udiDiCode",
	LocalizedField:  "tradeNames",
	LanguageKeys:    []string{"language", "lang"},
	TextKeys:        []string{"textValue", "value", "name"},
	ColumnPrefix:    "tradeName_",
	DefaultLanguage: "ANY",
}

// LocalizedColumn returns the column name for a language tag.
func (s Shape) LocalizedColumn(lang string) string {
	return s.ColumnPrefix + lang
}

// variants returns the record's variant list. A missing or malformed
// list is empty. Non-object elements count as variants without fields.
func (s Shape) variants(r Record) []*Object {
	items := r.Get(s.VariantsField).Items()
	if len(items) == 0 {
		return nil
	}
	out := make([]*Object, len(items))
	for i, item := range items {
		if obj, ok := item.Object(); ok {
			out[i] = obj
		} else {
			out[i] = NewObject()
		}
	}
	return out
}

// localized is one per-language entry of a variant.
type localized struct {
	lang string
	text string
}

// localizedEntries lists a variant's per-language entries in order.
// Entries without a language use DefaultLanguage; a bare scalar entry
// is a DefaultLanguage text.
func (s Shape) localizedEntries(variant *Object) []localized {
	items := variant.Get(s.LocalizedField).Items()
	if len(items) == 0 {
		return nil
	}
	out := make([]localized, 0, len(items))
	for _, item := range items {
		obj, ok := item.Object()
		if !ok {
			out = append(out, localized{lang: s.DefaultLanguage, text: item.Text()})
			continue
		}
		lang := obj.First(s.LanguageKeys...).Text()
		if lang == "" {
			lang = s.DefaultLanguage
		}
		out = append(out, localized{lang: lang, text: obj.First(s.TextKeys...).Text()})
	}
	return out
}

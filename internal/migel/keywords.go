package migel

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ── Keywords ───────────────────────────────────────────────
// MiGeL designations and trade names are reduced to sets of lower-case,
// umlaut-free words. Short words and stop words carry no signal.

// stopWords are articles, prepositions and terms common to so many
// positions that they match unrelated products.
var stopWords = toSet(
	// German
	"der", "die", "das", "den", "dem", "des", "ein", "eine", "eines", "einem", "einen", "einer",
	"fuer", "mit", "von", "und", "oder", "bei", "auf", "nach", "ueber", "unter", "aus", "bis",
	"pro", "als", "inkl", "exkl", "max", "min", "per", "zur", "zum", "ins", "vom", "ohne",
	"auch", "sich", "noch", "wenn", "muss", "darf", "resp", "bzw",
	"kauf", "miete", "tag", "jahr", "monate", "stueck", "set", "alle", "nur",
	"wird", "ist", "kann", "sind", "werden", "wurde", "hat", "haben",
	"steril", "unsteril", "sterile", "non",
	"diverse", "divers", "diversi",
	"gross", "klein", "lang", "kurz",
	"position", "definierte", "einstellbare",
	// French
	"les", "pour", "avec", "par", "une", "dans", "sur", "qui", "que",
	"achat", "location", "piece", "sans",
	// Italian
	"acquisto", "noleggio", "pezzo", "senza",
	// English
	"the", "for", "and", "with",
	// generic product terms
	"material", "produkt", "products", "product", "medical", "device",
	"system", "systeme", "systems", "geraet", "geraete", "appareil",
	"compression", "compressione", "kompression",
	"verlaengerung", "extension", "estensione", "prolongation",
	"silikon", "silicone",
	"ecarteur", "divaricatore", "retraktor",
)

func toSet(words ...string) map[string]bool {
	s := make(map[string]bool, len(words))
	for _, w := range words {
		s[w] = true
	}
	return s
}

var umlauts = strings.NewReplacer(
	"ä", "ae", "ö", "oe", "ü", "ue", "ß", "ss",
	"Ä", "Ae", "Ö", "Oe", "Ü", "Ue",
	"é", "e", "è", "e", "ê", "e",
	"à", "a", "â", "a",
	"ù", "u", "û", "u",
	"ô", "o", "î", "i", "ç", "c",
)

// Normalize spells out umlauts and drops common accents, so ALL-CAPS
// text written without umlauts ("ABSAUGGERAETE") matches "Absauggeräte".
func Normalize(text string) string {
	return umlauts.Replace(text)
}

// fold normalizes and lower-cases text for matching.
func fold(text string) string {
	return strings.ToLower(Normalize(text))
}

// splitWords splits on anything that is not a letter or a digit.
func splitWords(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

// keywords returns the sorted, distinct words of text that are at least
// minLen bytes long and not stop words.
func keywords(text string, minLen int) []string {
	var out []string
	for _, w := range splitWords(fold(text)) {
		if len(w) >= minLen && !stopWords[w] {
			out = append(out, w)
		}
	}
	return dedupe(out)
}

func dedupe(words []string) []string {
	if len(words) == 0 {
		return nil
	}
	sort.Strings(words)
	out := words[:1]
	for _, w := range words[1:] {
		if w != out[len(out)-1] {
			out = append(out, w)
		}
	}
	return out
}

// lines splits a multi-line cell; CR LF counts as one break.
func lines(text string) []string {
	return strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
}

func firstLine(text string) string {
	return strings.TrimSpace(lines(text)[0])
}

// primaryKeywords come from the first line of a designation.
func primaryKeywords(text string) []string {
	return keywords(firstLine(text), 3)
}

// secondaryKeywords are the long (8+ byte) words of the following lines.
func secondaryKeywords(text string) []string {
	rest := lines(text)[1:]
	joined := strings.Join(rest, " ")
	if strings.TrimSpace(joined) == "" {
		return nil
	}
	return keywords(joined, 8)
}

// trimLast drops the final rune, to match a plural or case ending.
func trimLast(word string) string {
	_, size := utf8.DecodeLastRuneInString(word)
	return word[:len(word)-size]
}

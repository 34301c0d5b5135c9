package migel

import (
	"sort"
	"strings"
)

// ── Matching ───────────────────────────────────────────────
// Candidates come from a substring scan of every indexed keyword over
// the combined product text. Each candidate is then scored per language,
// German keywords against German text only and so on, so a French word
// never matches inside a German compound.

// Description is the text of one product, bucketed by language.
type Description struct {
	DE, FR, IT string
	Brand      string
}

type score struct {
	ratio  float64 // matched keyword bytes / all keyword bytes
	maxLen int     // longest matched keyword
	count  int     // matched keywords
}

// Match returns the best-scoring item for d, or nil. Ties go to the
// higher longest-keyword length, then to the earlier catalog position.
func (c *Catalog) Match(d Description) *Item {
	var texts [numLangs]string
	var words [numLangs][]string
	for lang, s := range [numLangs]string{d.DE, d.FR, d.IT} {
		texts[lang] = fold(s + " " + d.Brand)
		words[lang] = splitWords(texts[lang])
	}
	combined := strings.Join(texts[:], " ")

	seen := make(map[int]bool)
	var candidates []int
	for kw, items := range c.index {
		if !fuzzyContains(combined, kw) {
			continue
		}
		for _, i := range items {
			if !seen[i] {
				seen[i] = true
				candidates = append(candidates, i)
			}
		}
	}
	sort.Ints(candidates)

	best, bestIdx := score{}, -1
	for _, i := range candidates {
		s, ok := c.Items[i].score(words)
		if !ok {
			continue
		}
		if bestIdx < 0 || s.ratio > best.ratio || (s.ratio == best.ratio && s.maxLen > best.maxLen) {
			best, bestIdx = s, i
		}
	}
	if bestIdx < 0 {
		return nil
	}
	return &c.Items[bestIdx]
}

// score picks the best language for the item and applies the thresholds:
// two or more matched keywords need a ratio of 0.3 and a 6-byte keyword,
// a single keyword needs 0.5 and 10 bytes.
func (it *Item) score(words [numLangs][]string) (score, bool) {
	var best score
	for lang := 0; lang < numLangs; lang++ {
		german := lang == langDE
		s := keywordScore(words[lang], it.primary[lang], german, german)
		if s.count > 0 {
			// further lines only count once the first line matched
			sec := keywordScore(words[lang], it.secondary[lang], german, german)
			s.count += sec.count
			s.maxLen = max(s.maxLen, sec.maxLen)
		}
		if lang == 0 || s.ratio > best.ratio {
			best = s
		}
	}
	if best.count >= 2 {
		return best, best.ratio >= 0.3 && best.maxLen >= 6
	}
	return best, best.ratio >= 0.5 && best.maxLen >= 10
}

func keywordScore(words, keywords []string, suffix, fuzzy bool) score {
	total := 0
	for _, kw := range keywords {
		total += len(kw)
	}
	if total == 0 {
		return score{}
	}
	var s score
	matched := 0
	for _, kw := range keywords {
		if wordMatch(words, kw, suffix, fuzzy) {
			matched += len(kw)
			s.count++
			s.maxLen = max(s.maxLen, len(kw))
		}
	}
	s.ratio = float64(matched) / float64(total)
	return s
}

// wordMatch reports whether keyword is one of words. With suffix it may
// also end a longer compound ("katheter" in "verweilkatheter"); with
// fuzzy a 7+ byte keyword may drop its last letter ("orthesen").
func wordMatch(words []string, keyword string, suffix, fuzzy bool) bool {
	if matchesWord(words, keyword, suffix) {
		return true
	}
	return fuzzy && len(keyword) >= 7 && matchesWord(words, trimLast(keyword), suffix)
}

func matchesWord(words []string, keyword string, suffix bool) bool {
	for _, w := range words {
		if w == keyword {
			return true
		}
		if suffix && len(w) > len(keyword)+2 && strings.HasSuffix(w, keyword) {
			return true
		}
	}
	return false
}

// fuzzyContains is the candidate pre-filter: a plain substring test,
// also trying a 7+ byte keyword without its last letter.
func fuzzyContains(haystack, keyword string) bool {
	if strings.Contains(haystack, keyword) {
		return true
	}
	return len(keyword) >= 7 && strings.Contains(haystack, trimLast(keyword))
}

package similarity

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/agext/levenshtein"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// entitySuffixes are trailing legal-entity tokens dropped from business names.
// Dotted forms are listed for completeness; dots are removed before lookup.
var entitySuffixes = map[string]bool{
	"inc": true, "inc.": true, "incorporated": true,
	"llc": true, "l.l.c.": true, "l.l.c": true,
	"corp": true, "corp.": true, "corporation": true,
	"ltd": true, "ltd.": true, "limited": true,
	"co": true, "co.": true,
	"plc": true, "p.l.c.": true,
	"lp": true, "l.p.": true, "l.p": true,
	"pllc": true, "p.l.l.c.": true,
}

// nameSynonyms canonicalizes common word variants before comparison.
var nameSynonyms = map[string]string{
	"and":           "&",
	"company":       "co",
	"brothers":      "bros",
	"international": "intl",
	"associates":    "assoc",
	"saint":         "st",
	"mountain":      "mtn",
	"center":        "ctr",
	"centre":        "ctr",
}

// StripDiacritics removes combining marks, so "Café" becomes "Cafe".
func StripDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// NormalizeName lower-cases a business name, strips accents and punctuation
// (except "&"), canonicalizes synonyms and drops trailing entity suffixes.
func NormalizeName(name string) string {
	name = strings.ToLower(StripDiacritics(strings.TrimSpace(name)))
	if name == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case r == '.' || r == '\'' || r == '’':
			// Dropped without a gap so "l.l.c." collapses to "llc".
		case r == '&' || unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}

	words := strings.Fields(b.String())
	for i, w := range words {
		if syn, ok := nameSynonyms[w]; ok {
			words[i] = syn
		}
	}
	for len(words) > 1 && entitySuffixes[words[len(words)-1]] {
		words = words[:len(words)-1]
	}
	return strings.Join(words, " ")
}

// nameTokens returns words longer than two characters plus bigrams of
// adjacent kept words.
func nameTokens(normalized string) map[string]bool {
	var kept []string
	for _, w := range strings.Fields(normalized) {
		if utf8.RuneCountInString(w) > 2 {
			kept = append(kept, w)
		}
	}
	tokens := make(map[string]bool, len(kept)*2)
	for i, w := range kept {
		tokens[w] = true
		if i > 0 {
			tokens[kept[i-1]+" "+w] = true
		}
	}
	return tokens
}

// jaccard returns |a∩b| / |a∪b|.
func jaccard(a, b map[string]bool) (float64, int) {
	inter := 0
	for t := range a {
		if b[t] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0, 0
	}
	return float64(inter) / float64(union), inter
}

// EditSimilarity is 1 - Levenshtein distance / longest rune length.
func EditSimilarity(a, b string) float64 {
	if a == b {
		return 1.0
	}
	maxLen := utf8.RuneCountInString(a)
	if l := utf8.RuneCountInString(b); l > maxLen {
		maxLen = l
	}
	if maxLen == 0 {
		return 1.0
	}
	d := levenshtein.Distance(a, b, nil)
	return clamp01(1 - float64(d)/float64(maxLen))
}

// Name compares two business names.
func Name(a, b string) Result {
	n1, n2 := NormalizeName(a), NormalizeName(b)
	res := Result{
		Algorithm:   AlgoName,
		Normalized1: n1,
		Normalized2: n2,
		Metadata:    map[string]any{},
	}
	if n1 == "" || n2 == "" {
		return res
	}
	if n1 == n2 {
		res.Score = 1.0
		res.Metadata["match"] = "exact"
		return res
	}

	t1, t2 := nameTokens(n1), nameTokens(n2)
	if len(t1) == 0 || len(t2) == 0 {
		res.Algorithm = AlgoNameEdit
		res.Score = EditSimilarity(n1, n2)
		res.Metadata["match"] = "levenshtein"
		return res
	}

	score, shared := jaccard(t1, t2)
	res.Score = score
	res.Metadata["match"] = "tokens"
	res.Metadata["shared_tokens"] = shared
	res.Metadata["tokens_1"] = len(t1)
	res.Metadata["tokens_2"] = len(t2)
	return res
}

package search

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// SpanishStopwords are function words ignored when comparing descriptions.
var SpanishStopwords = []string{
	"a", "al", "algo", "ante", "con", "de", "del", "el", "ella", "ellos", "en",
	"entre", "es", "esta", "estan", "este", "esto", "ha", "hay", "la", "las",
	"le", "les", "lo", "los", "mas", "me", "mi", "muy", "no", "o", "para",
	"pero", "por", "que", "se", "si", "sin", "sobre", "son", "su", "sus",
	"tambien", "te", "tiene", "un", "una", "uno", "unos", "unas", "y", "ya",
	"yo", "veo", "creo", "como",
}

var lower = cases.Lower(language.Spanish)

// fold lowercases s and strips diacritics so "Niño" and "nino" compare equal.
func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, lower.String(s))
	if err != nil {
		return strings.ToLower(s)
	}
	return out
}

var wordRE = regexp.MustCompile(`\p{L}+\p{N}*`)

// Terms returns the folded content words of s in first-seen order,
// without duplicates or stopwords.
func Terms(s string, stop map[string]struct{}) []string {
	words := wordRE.FindAllString(fold(s), -1)
	seen := make(map[string]struct{}, len(words))
	out := make([]string, 0, len(words))
	for _, w := range words {
		if _, skip := stop[w]; skip {
			continue
		}
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
	}
	return out
}

// Words returns every folded word of s, repeats and stopwords included.
func Words(s string) []string {
	return wordRE.FindAllString(fold(s), -1)
}

func tokenize(s string, stop map[string]struct{}) map[string]struct{} {
	terms := Terms(s, stop)
	if len(terms) == 0 {
		return nil
	}
	out := make(map[string]struct{}, len(terms))
	for _, w := range terms {
		out[w] = struct{}{}
	}
	return out
}

func stopSet(words []string) map[string]struct{} {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		if w = fold(strings.TrimSpace(w)); w != "" {
			m[w] = struct{}{}
		}
	}
	if len(m) == 0 {
		return nil
	}
	return m
}

var sentenceRE = regexp.MustCompile(`[.!?;\n]+`)

// Sentences splits text on terminal punctuation and line breaks.
func Sentences(text string) []string {
	parts := sentenceRE.Split(text, -1)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(normalizeWhitespace(p)); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func normalizeWhitespace(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	prevSpace := false
	for _, r := range s {
		if r == ' ' || r == '\t' || r == '\r' {
			if !prevSpace {
				b.WriteByte(' ')
				prevSpace = true
			}
			continue
		}
		prevSpace = false
		b.WriteRune(r)
	}
	return b.String()
}

func overlap(a, b map[string]struct{}) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	n := 0
	if len(a) > len(b) {
		a, b = b, a
	}
	for k := range a {
		if _, ok := b[k]; ok {
			n++
		}
	}
	return n
}

// Jaccard returns |A ∩ B| / |A ∪ B| over the term sets of a and b.
func Jaccard(a, b string, stop map[string]struct{}) float64 {
	ta, tb := tokenize(a, stop), tokenize(b, stop)
	over := overlap(ta, tb)
	union := len(ta) + len(tb) - over
	if union <= 0 {
		return 0
	}
	return float64(over) / float64(union)
}

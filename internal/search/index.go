// Package search compares free-text image descriptions against a reference
// text. It holds no state beyond immutable indices and is safe for
// concurrent use.
//
// Similarity is Jaccard over folded content words (lowercased, diacritics
// removed, stopwords dropped): score = |Q ∩ D| / |Q ∪ D|.
package search

import (
	"sort"
	"strings"
	"unicode/utf8"
)

// Result is a ranked reference sentence with its similarity score.
type Result struct {
	Snippet string
	Score   float64
}

// Index ranks stored sentences against a query.
type Index interface {
	TopK(query string, k int) []Result
	Coverage(query string, minShare float64) (covered, missed []string)
}

// Option configures an index.
type Option func(*config)

type config struct {
	minRunes  int
	stopwords map[string]struct{}
	maxDocs   int
}

func defaultConfig() config {
	return config{minRunes: 3}
}

// WithMinRunes drops sentences shorter than n runes.
func WithMinRunes(n int) Option {
	return func(c *config) {
		if n >= 0 {
			c.minRunes = n
		}
	}
}

// WithStopwords sets the words ignored by tokenization.
func WithStopwords(words []string) Option {
	return func(c *config) {
		if m := stopSet(words); m != nil {
			c.stopwords = m
		}
	}
}

// WithMaxDocs caps how many sentences are indexed.
func WithMaxDocs(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.maxDocs = n
		}
	}
}

type doc struct {
	text   string
	tokens map[string]struct{}
	tLen   int
}

type index struct {
	cfg  config
	docs []doc
}

// NewIndex indexes sentences.
func NewIndex(sentences []string, opts ...Option) Index {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	return buildIndex(sentences, cfg)
}

// NewIndexFromText splits text into sentences and indexes them.
func NewIndexFromText(text string, opts ...Option) Index {
	return NewIndex(Sentences(text), opts...)
}

func buildIndex(sentences []string, cfg config) *index {
	docs := make([]doc, 0, len(sentences))
	for _, raw := range sentences {
		t := strings.TrimSpace(normalizeWhitespace(raw))
		if t == "" {
			continue
		}
		if cfg.minRunes > 0 && utf8.RuneCountInString(t) < cfg.minRunes {
			continue
		}
		toks := tokenize(t, cfg.stopwords)
		if len(toks) == 0 {
			continue
		}
		docs = append(docs, doc{text: t, tokens: toks, tLen: len(toks)})
		if cfg.maxDocs > 0 && len(docs) >= cfg.maxDocs {
			break
		}
	}
	return &index{cfg: cfg, docs: docs}
}

// TopK returns up to k best-matching sentences. Ties break on shorter
// sentence, then lexical order.
func (i *index) TopK(q string, k int) []Result {
	if len(i.docs) == 0 || strings.TrimSpace(q) == "" {
		return nil
	}
	if k <= 0 {
		k = 3
	}
	qTokens := tokenize(q, i.cfg.stopwords)
	if len(qTokens) == 0 {
		return nil
	}
	scored := i.score(qTokens)
	if len(scored) == 0 {
		return nil
	}
	if k > len(scored) {
		k = len(scored)
	}
	return scored[:k]
}

// Coverage reports, for each stored sentence in index order, whether at
// least minShare of its terms appear in q. It splits the sentences into
// covered and missed.
func (i *index) Coverage(q string, minShare float64) (covered, missed []string) {
	qTokens := tokenize(q, i.cfg.stopwords)
	for _, d := range i.docs {
		share := float64(overlap(qTokens, d.tokens)) / float64(d.tLen)
		if share >= minShare {
			covered = append(covered, d.text)
		} else {
			missed = append(missed, d.text)
		}
	}
	return covered, missed
}

func (i *index) score(qTokens map[string]struct{}) []Result {
	type scored struct {
		Result
		lenRunes int
	}
	qLen := len(qTokens)
	buf := make([]scored, 0, len(i.docs))
	for _, d := range i.docs {
		over := overlap(qTokens, d.tokens)
		if over == 0 {
			continue
		}
		union := float64(qLen + d.tLen - over)
		if union <= 0 {
			continue
		}
		buf = append(buf, scored{
			Result:   Result{Snippet: d.text, Score: float64(over) / union},
			lenRunes: utf8.RuneCountInString(d.text),
		})
	}
	sort.SliceStable(buf, func(a, b int) bool {
		if buf[a].Score != buf[b].Score {
			return buf[a].Score > buf[b].Score
		}
		if buf[a].lenRunes != buf[b].lenRunes {
			return buf[a].lenRunes < buf[b].lenRunes
		}
		return buf[a].Snippet < buf[b].Snippet
	})
	out := make([]Result, len(buf))
	for n, s := range buf {
		out[n] = s.Result
	}
	return out
}

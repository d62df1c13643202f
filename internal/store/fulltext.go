package store

import "strings"

// Tokenized relevance scoring for the in-memory backend. The SQLite
// backend uses FTS5/bm25 instead; this keeps the two primitives
// order-compatible for small corpora without pulling an index into
// memory.

// tokenize lowercases and splits on non-alphanumeric runes, dropping
// stopwords and tokens shorter than three characters.
func tokenize(text string) []string {
	text = strings.ToLower(text)
	raw := strings.FieldsFunc(text, func(r rune) bool {
		return !isAlphanumeric(r)
	})
	out := make([]string, 0, len(raw))
	for _, tok := range raw {
		if len(tok) > 2 && !stopwords[tok] {
			out = append(out, tok)
		}
	}
	return out
}

func isAlphanumeric(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
		(r >= '0' && r <= '9') || r == '_'
}

// termOverlap returns the fraction of query terms present in the
// document, in [0,1].
func termOverlap(queryTokens []string, doc string) float64 {
	if len(queryTokens) == 0 {
		return 0
	}
	docSet := map[string]bool{}
	for _, tok := range tokenize(doc) {
		docSet[tok] = true
	}
	matched := 0
	for _, q := range queryTokens {
		if docSet[q] {
			matched++
		}
	}
	return float64(matched) / float64(len(queryTokens))
}

var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "from": true,
	"was": true, "are": true, "been": true, "being": true, "have": true,
	"has": true, "had": true, "does": true, "did": true, "will": true,
	"would": true, "could": true, "should": true, "may": true, "might": true,
	"can": true, "this": true, "that": true, "these": true, "those": true,
	"you": true, "she": true, "they": true, "what": true, "which": true,
	"who": true, "when": true, "where": true, "why": true, "how": true,
	"not": true, "but": true,
}

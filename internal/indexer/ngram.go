package indexer

import (
	"path/filepath"
	"strings"

	"gallery-core/internal/storage"
)

// Ngrams returns the deterministic unigram+bigram token set for s: every
// length-1 and length-2 contiguous substring of the lowercased,
// whitespace-stripped input, space-joined. The same construction backs
// both the FTS token row written for an item and the query rewriting the
// search service does over free text, so a search term and the indexed
// path tokens are directly comparable.
func Ngrams(s string) string {
	s = stripWhitespace(strings.ToLower(s))
	if s == "" {
		return ""
	}

	runes := []rune(s)
	var b strings.Builder
	for i := range runes {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteRune(runes[i])
		if i+1 < len(runes) {
			b.WriteByte(' ')
			b.WriteRune(runes[i])
			b.WriteRune(runes[i+1])
		}
	}
	return b.String()
}

func stripWhitespace(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch r {
		case ' ', '\t', '\n', '\r':
			continue
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// TokensForItem builds the ngram token row for an item's FTS entry: the
// path with its extension and separators stripped, plus a trailing type
// label so "video" / "image" / "album" are themselves searchable terms.
func TokensForItem(path string, itemType storage.ItemType) string {
	withoutExt := strings.TrimSuffix(path, filepath.Ext(path))
	flattened := strings.ReplaceAll(withoutExt, "/", " ")
	return Ngrams(flattened + " " + string(itemType))
}

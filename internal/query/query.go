// Package query provides fuzzy matching over cache entry tags and providers
// for the list operation's free-text filter.
package query

import (
	"sort"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"
	sahilm "github.com/sahilm/fuzzy"

	"github.com/muralhq/mural/internal/domain"
)

// haystack returns the searchable text for an entry: provider plus tags.
func haystack(e domain.CacheEntry) string {
	parts := make([]string, 0, len(e.SourceTags)+1)
	if e.Provider != "" {
		parts = append(parts, e.Provider)
	}
	parts = append(parts, e.SourceTags...)
	return strings.ToLower(strings.Join(parts, " "))
}

// MatchEntry reports whether the query fuzzy-matches the entry's provider or
// any of its tags.
func MatchEntry(query string, e domain.CacheEntry) bool {
	query = strings.TrimSpace(strings.ToLower(query))
	if query == "" {
		return true
	}
	if fuzzy.MatchNormalizedFold(query, e.Provider) {
		return true
	}
	for _, tag := range e.SourceTags {
		if fuzzy.MatchNormalizedFold(query, tag) {
			return true
		}
	}
	return false
}

// entryIndex implements sahilm/fuzzy.Source over pre-computed haystacks so
// ranking does not re-join tags per comparison.
type entryIndex struct {
	entries   []domain.CacheEntry
	haystacks []string
}

func (idx *entryIndex) String(i int) string { return idx.haystacks[i] }
func (idx *entryIndex) Len() int            { return len(idx.entries) }

// Rank orders entries by fuzzy match quality against the query, best first.
// Entries that do not match at all are dropped. An empty query returns the
// input ranked by Levenshtein-free fallback: recency.
func Rank(query string, entries []domain.CacheEntry) []domain.CacheEntry {
	query = strings.TrimSpace(strings.ToLower(query))
	if query == "" {
		out := make([]domain.CacheEntry, len(entries))
		copy(out, entries)
		sort.Slice(out, func(i, j int) bool { return out[i].LastUse().After(out[j].LastUse()) })
		return out
	}

	idx := &entryIndex{
		entries:   entries,
		haystacks: make([]string, len(entries)),
	}
	for i, e := range entries {
		idx.haystacks[i] = haystack(e)
	}

	matches := sahilm.FindFrom(query, idx)
	out := make([]domain.CacheEntry, 0, len(matches))
	for _, m := range matches {
		out = append(out, idx.entries[m.Index])
	}
	return out
}

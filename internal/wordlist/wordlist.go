// Package wordlist turns raw OCR text blocks into a clean, stable
// unique-word set. Everything here is pure: same inputs, same output.
package wordlist

import (
	"regexp"
	"sort"
	"strings"
)

var wordPattern = regexp.MustCompile(`\w+`)

// DefaultExclusions is the built-in noise-word list used when no persisted
// exclusion set exists or the stored value is unreadable.
var DefaultExclusions = []string{
	"a", "an", "and", "are", "at", "but", "for", "in", "is", "it",
	"of", "on", "or", "the", "this", "to", "was", "were", "with",
}

// Unique tokenizes the given text blocks into word-like runs, lowercases
// them, drops purely numeric tokens (OCR noise: frame counters, timestamps)
// and excluded words, and returns the remainder deduplicated and sorted
// ascending.
func Unique(textBlocks []string, excluded []string) []string {
	skip := make(map[string]struct{}, len(excluded))
	for _, w := range excluded {
		skip[strings.ToLower(strings.TrimSpace(w))] = struct{}{}
	}

	seen := make(map[string]struct{})
	joined := strings.Join(textBlocks, " ")
	for _, token := range wordPattern.FindAllString(joined, -1) {
		word := strings.ToLower(token)
		if isNumeric(word) {
			continue
		}
		if _, ok := skip[word]; ok {
			continue
		}
		seen[word] = struct{}{}
	}

	words := make([]string, 0, len(seen))
	for w := range seen {
		words = append(words, w)
	}
	sort.Strings(words)
	return words
}

// Normalize trims, lowercases and deduplicates an exclusion list, dropping
// empties, and returns it sorted. Store implementations run every mutation
// through this so the persisted set stays canonical.
func Normalize(words []string) []string {
	seen := make(map[string]struct{}, len(words))
	for _, w := range words {
		w = strings.ToLower(strings.TrimSpace(w))
		if w == "" {
			continue
		}
		seen[w] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for w := range seen {
		out = append(out, w)
	}
	sort.Strings(out)
	return out
}

func isNumeric(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}

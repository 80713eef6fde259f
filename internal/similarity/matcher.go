// Package similarity decides whether a stored item already answers a free-text
// search query, so that the parse orchestrator can skip a scrape.
//
// Both strings are normalized (lowercase, punctuation to spaces, collapsed
// whitespace) and reduced to significant words: longer than two runes and not
// a short function word. Two words match when they are equal or when one is a
// prefix of the other and the shorter has at least four runes, which lets
// inflected forms ("стив" / "стива") count as the same word.
package similarity

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	// WordsThreshold is the share of query words that must appear in the title.
	WordsThreshold = 0.7
	// AuthorWordsThreshold applies when the author corroborates the query.
	AuthorWordsThreshold = 0.3

	minPrefixRunes = 4
)

// Reason codes returned by IsSimilar. Ratio-based codes carry a percentage suffix.
const (
	ReasonExactTitle        = "exact_title"
	ReasonSingleWordAuthor  = "single_word_author"
	ReasonSingleWordNoMatch = "single_word_no_author"
	reasonAuthorMatch       = "author_match_%d"
	reasonWordsMatch        = "words_match_%d"
	reasonNoMatch           = "no_match_%d"
)

var (
	punctuation = regexp.MustCompile(`[,.!?:;\-—()\[\]{}<>«»'"\\/]+`)
	whitespace  = regexp.MustCompile(`\s+`)
)

var shortWords = map[string]struct{}{
	"и": {}, "в": {}, "на": {}, "с": {}, "от": {}, "до": {}, "по": {}, "о": {}, "об": {}, "а": {},
	"но": {}, "ли": {}, "же": {}, "бы": {}, "их": {}, "её": {}, "его": {}, "это": {}, "то": {}, "как": {},
	"за": {}, "при": {}, "для": {}, "из": {}, "к": {}, "со": {}, "под": {}, "над": {}, "между": {}, "без": {},
	"ко": {},
}

// searchStopWords are dropped when building record-store search terms.
var searchStopWords = map[string]struct{}{
	"и": {}, "в": {}, "на": {}, "с": {}, "от": {}, "до": {}, "по": {}, "о": {}, "об": {}, "а": {}, "но": {}, "или": {},
}

// Normalize lowercases s, replaces punctuation with spaces and collapses whitespace.
func Normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = punctuation.ReplaceAllString(s, " ")
	s = whitespace.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// SignificantWords returns the distinct significant words of s in order of appearance.
func SignificantWords(s string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, w := range strings.Fields(Normalize(s)) {
		if utf8.RuneCountInString(w) <= 2 {
			continue
		}
		if _, short := shortWords[w]; short {
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

// SearchWords splits a query into the terms used for the loose record-store lookup.
func SearchWords(query string) []string {
	var out []string
	for _, w := range strings.Fields(Normalize(query)) {
		if _, stop := searchStopWords[w]; stop {
			continue
		}
		out = append(out, w)
	}
	return out
}

// WordsMatch reports whether two significant words denote the same word.
func WordsMatch(a, b string) bool {
	if a == b {
		return true
	}
	short, long := a, b
	if utf8.RuneCountInString(short) > utf8.RuneCountInString(long) {
		short, long = long, short
	}
	return utf8.RuneCountInString(short) >= minPrefixRunes && strings.HasPrefix(long, short)
}

// MatchRatio is the share of query words that match some title word.
func MatchRatio(queryWords, titleWords []string) float64 {
	if len(queryWords) == 0 {
		return 0
	}
	matched := 0
	for _, q := range queryWords {
		if containsWord(titleWords, q) {
			matched++
		}
	}
	return float64(matched) / float64(len(queryWords))
}

func containsWord(words []string, w string) bool {
	for _, candidate := range words {
		if WordsMatch(candidate, w) {
			return true
		}
	}
	return false
}

// IsSimilar decides whether an item with the given title and author answers
// query. author may be empty.
func IsSimilar(query, title, author string) (bool, string) {
	queryNorm := Normalize(query)
	titleNorm := Normalize(title)
	authorNorm := Normalize(author)

	if queryNorm == titleNorm {
		return true, ReasonExactTitle
	}

	queryWords := SignificantWords(query)
	if len(queryWords) <= 1 {
		if authorNorm != "" && strings.Contains(queryNorm, authorNorm) {
			return true, ReasonSingleWordAuthor
		}
		return false, ReasonSingleWordNoMatch
	}

	ratio := MatchRatio(queryWords, SignificantWords(title))
	pct := int(ratio * 100)

	if authorMatches(queryNorm, queryWords, authorNorm) && ratio >= AuthorWordsThreshold {
		return true, fmt.Sprintf(reasonAuthorMatch, pct)
	}
	if ratio >= WordsThreshold {
		return true, fmt.Sprintf(reasonWordsMatch, pct)
	}
	return false, fmt.Sprintf(reasonNoMatch, pct)
}

func authorMatches(queryNorm string, queryWords []string, authorNorm string) bool {
	if authorNorm == "" {
		return false
	}
	if strings.Contains(queryNorm, authorNorm) || strings.Contains(authorNorm, queryNorm) {
		return true
	}
	for _, aw := range SignificantWords(authorNorm) {
		if containsWord(queryWords, aw) {
			return true
		}
	}
	return false
}

// Package scoring turns classifier output and review text into the scores
// and keyword summaries stored with each review, and computes business
// aggregates over them. Everything here is pure.
package scoring

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	DefaultMaxKeywords = 5
	// GeneralFeedback is the summary of a review with no qualifying terms.
	GeneralFeedback = "general feedback"
	minKeywordLen   = 4
)

var stopWords = toSet(
	"i", "me", "my", "myself", "we", "our", "ours", "ourselves", "you", "your",
	"yours", "yourself", "yourselves", "he", "him", "his", "himself", "she",
	"her", "hers", "herself", "it", "its", "itself", "they", "them", "their",
	"theirs", "themselves", "what", "which", "who", "whom", "this", "that",
	"these", "those", "am", "is", "are", "was", "were", "be", "been", "being",
	"have", "has", "had", "having", "do", "does", "did", "doing", "a", "an",
	"the", "and", "but", "if", "or", "because", "as", "until", "while", "of",
	"at", "by", "for", "with", "about", "against", "between", "into", "through",
	"during", "before", "after", "above", "below", "to", "from", "up", "down",
	"in", "out", "on", "off", "over", "under", "again", "further", "then",
	"once", "very", "can", "will", "just", "should", "now",
)

func toSet(words ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}

// IsStopWord reports whether w is excluded from keyword extraction.
func IsStopWord(w string) bool {
	_, ok := stopWords[w]
	return ok
}

// Extract returns up to max keywords of text, most frequent first. Terms
// with equal frequency keep the order in which they first appear.
// max <= 0 selects DefaultMaxKeywords.
func Extract(text string, max int) []string {
	if max <= 0 {
		max = DefaultMaxKeywords
	}

	type term struct {
		word  string
		count int
	}
	var terms []term
	index := map[string]int{}
	for _, w := range strings.FieldsFunc(normalize(text), isSpace) {
		if IsStopWord(w) || utf8.RuneCountInString(w) < minKeywordLen {
			continue
		}
		if i, ok := index[w]; ok {
			terms[i].count++
			continue
		}
		index[w] = len(terms)
		terms = append(terms, term{word: w, count: 1})
	}

	sort.SliceStable(terms, func(i, j int) bool { return terms[i].count > terms[j].count })
	if len(terms) > max {
		terms = terms[:max]
	}
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		out = append(out, t.word)
	}
	return out
}

// Summarize joins extracted terms into the stored keyword summary.
func Summarize(terms []string) string {
	if len(terms) == 0 {
		return GeneralFeedback
	}
	return strings.Join(terms, ", ")
}

func ExtractSummary(text string, max int) string {
	return Summarize(Extract(text, max))
}

// normalize lowercases text and drops everything that is neither a word
// character (letter, number, underscore) nor whitespace. Combining marks
// are not word characters.
func normalize(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range strings.ToLower(text) {
		if r == '_' || unicode.IsLetter(r) || unicode.IsNumber(r) || isSpace(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// isSpace also counts the ASCII file, group, record and unit separators
// as whitespace.
func isSpace(r rune) bool {
	return unicode.IsSpace(r) || (r >= 0x1c && r <= 0x1f)
}

package enrich

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	DefaultKeywordCount     = 10
	DefaultMinKeywordLength = 4
)

var stopWords = toSet(
	"about", "above", "after", "again", "against", "also", "because", "been", "before",
	"being", "below", "between", "both", "could", "does", "doing", "down", "during",
	"each", "even", "ever", "every", "from", "further", "have", "having", "here", "how",
	"into", "just", "like", "more", "most", "much", "must", "only", "other", "ought",
	"ours", "over", "same", "should", "some", "such", "than", "that", "their", "theirs",
	"them", "then", "there", "these", "they", "this", "those", "through", "under",
	"until", "very", "want", "were", "what", "when", "where", "which", "while", "will",
	"with", "within", "without", "would", "your", "yours", "yourself", "make", "many",
	"well", "really", "things", "thing", "using", "used", "into", "onto", "upon",
)

func toSet(words ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

// isWordRune reports letters, digits and the combining marks (Mn, Mc) that
// belong to the letter before them.
func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsNumber(r) || unicode.In(r, unicode.Mn, unicode.Mc)
}

// ExtractKeywords tokenizes the lower-cased title and stripped body and
// returns at most k distinct tokens in order of first appearance, skipping
// stop words and tokens shorter than minLen runes.
func ExtractKeywords(title, body string, k, minLen int) []string {
	if k <= 0 {
		k = DefaultKeywordCount
	}
	if minLen <= 0 {
		minLen = DefaultMinKeywordLength
	}

	text := strings.ToLower(title + " " + body)
	tokens := strings.FieldsFunc(text, func(r rune) bool { return !isWordRune(r) })

	seen := make(map[string]struct{}, len(tokens))
	keywords := make([]string, 0, k)
	for _, tok := range tokens {
		if utf8.RuneCountInString(tok) < minLen {
			continue
		}
		if _, stop := stopWords[tok]; stop {
			continue
		}
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		keywords = append(keywords, tok)
		if len(keywords) == k {
			break
		}
	}
	return keywords
}

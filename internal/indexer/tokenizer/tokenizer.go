// Package tokenizer provides text tokenisation for the inverted index.
// It lower-cases input, strips diacritics, splits on non-alphanumeric
// boundaries, and optionally removes stop-words.
package tokenizer

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var stopWords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "and": {}, "or": {}, "but": {},
	"if": {}, "then": {}, "else": {}, "when": {}, "while": {}, "for": {},
	"to": {}, "of": {}, "in": {}, "on": {}, "at": {}, "by": {},
	"from": {}, "with": {}, "without": {}, "as": {}, "is": {}, "are": {},
	"was": {}, "were": {}, "be": {}, "been": {}, "being": {}, "that": {},
	"this": {}, "these": {}, "those": {}, "it": {}, "its": {}, "into": {},
	"over": {}, "under": {}, "again": {}, "once": {}, "no": {}, "not": {},
	"so": {}, "too": {}, "very": {}, "can": {}, "could": {}, "should": {},
	"would": {}, "do": {}, "does": {}, "did": {}, "done": {}, "have": {},
	"has": {}, "had": {}, "having": {}, "you": {}, "your": {}, "yours": {},
	"i": {}, "me": {}, "my": {}, "mine": {}, "we": {}, "our": {},
	"ours": {}, "he": {}, "him": {}, "his": {}, "she": {}, "her": {},
	"hers": {}, "they": {}, "them": {}, "their": {}, "theirs": {},
}

// accent folding: decompose, drop combining marks, recompose.
var stripper = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Tokenize breaks text into a slice of normalised terms: lowercased,
// diacritics stripped, split on any rune that is neither a letter nor a
// digit. With removeStopwords set, common English function words are
// dropped. The returned order follows the original text.
func Tokenize(text string, removeStopwords bool) []string {
	if text == "" {
		return nil
	}
	text = strings.ToLower(text)
	if folded, _, err := transform.String(stripper, text); err == nil {
		text = folded
	}
	words := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	terms := make([]string, 0, len(words))
	for _, word := range words {
		if word == "" {
			continue
		}
		if removeStopwords {
			if _, isStop := stopWords[word]; isStop {
				continue
			}
		}
		terms = append(terms, word)
	}
	return terms
}

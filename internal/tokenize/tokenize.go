// Package tokenize turns raw text into the lowercase word tokens the
// BM25 index and retriever reason about.
package tokenize

import (
	"regexp"
	"strings"
)

// wordRegex matches maximal runs of Unicode word characters: letters in
// any script, digits, and underscore.
var wordRegex = regexp.MustCompile(`[\p{L}\p{N}_]+`)

// minTokenLen is the shortest token kept; anything below it is dropped.
const minTokenLen = 2

// Tokenize lowercases text and extracts maximal runs of Unicode word
// characters, dropping runs shorter than two characters. It performs no
// stemming and no stopword removal, and is deterministic and total:
// empty input produces an empty, non-nil slice.
func Tokenize(text string) []string {
	lower := strings.ToLower(text)
	runs := wordRegex.FindAllString(lower, -1)

	tokens := make([]string, 0, len(runs))
	for _, r := range runs {
		if len([]rune(r)) >= minTokenLen {
			tokens = append(tokens, r)
		}
	}
	return tokens
}

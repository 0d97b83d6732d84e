// Package search derives the token index from the live cache and answers
// fuzzy filename queries against it.
package search

import (
	"strings"
	"unicode"
)

// Tokenize splits a filename into lower-case tokens. It breaks on every
// non-alphanumeric rune, on lower-to-upper case transitions and where a
// letter is followed by a digit, so "MyFile_v2.txt" yields
// [my file v 2 txt].
func Tokenize(name string) []string {
	var tokens []string
	var b strings.Builder
	var prev rune

	flush := func() {
		if b.Len() > 0 {
			tokens = append(tokens, b.String())
			b.Reset()
		}
	}

	for _, r := range name {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			flush()
			prev = 0
			continue
		}
		if prev != 0 && boundary(prev, r) {
			flush()
		}
		b.WriteRune(unicode.ToLower(r))
		prev = r
	}
	flush()
	return tokens
}

func boundary(prev, next rune) bool {
	if unicode.IsLower(prev) && unicode.IsUpper(next) {
		return true
	}
	return unicode.IsLetter(prev) && unicode.IsDigit(next)
}

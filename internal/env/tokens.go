package env

import (
	"slices"
	"strings"

	"github.com/kballard/go-shellquote"
)

// Splits value into tokens.
//
// A space separator splits with shell quoting rules, so quoted arguments such
// as '-DNAME="a b"' survive as one token. A value that is not valid shell
// falls back to whitespace splitting.
func splitTokens(value, sep string) []string {
	if sep == " " {
		words, err := shellquote.Split(value)
		if err == nil {
			return words
		}
		return strings.Fields(value)
	}
	return strings.Split(value, sep)
}

// Joins tokens produced by [splitTokens], quoting them again for a space
// separator.
func joinTokens(tokens []string, sep string) string {
	if sep == " " {
		return shellquote.Join(tokens...)
	}
	return strings.Join(tokens, sep)
}

// Removes every token of value that exactly matches one of drop.
func removeTokens(value, sep string, drop []string) string {
	tokens := splitTokens(value, sep)
	kept := tokens[:0]
	for _, tok := range tokens {
		if !slices.Contains(drop, tok) {
			kept = append(kept, tok)
		}
	}
	return joinTokens(kept, sep)
}

// Package answer canonicalizes free-text quiz answers so that guesses can be
// compared with the accepted answers regardless of accents, punctuation or case.
package answer

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalize decomposes s, strips combining marks, drops everything that is not
// an ASCII letter or digit and upper-cases the rest. "Éléphant !" becomes
// "ELEPHANT". The result only contains [A-Z0-9], so Normalize is idempotent.
func Normalize(s string) string {
	if s == "" {
		return ""
	}

	// transform.Chain keeps state, so build a fresh one per call.
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.M)))
	stripped, _, err := transform.String(t, s)
	if err != nil {
		stripped = s
	}

	var b strings.Builder
	b.Grow(len(stripped))
	for _, r := range stripped {
		switch {
		case r >= '0' && r <= '9', r >= 'A' && r <= 'Z':
			b.WriteRune(r)
		case r >= 'a' && r <= 'z':
			b.WriteRune(r - 'a' + 'A')
		}
	}
	return b.String()
}

// Matches reports whether the normalized guess equals the canonical answer or
// one of the canonical alternatives. An empty guess never matches.
func Matches(guess, canonical string, alternatives []string) bool {
	if guess == "" {
		return false
	}
	if guess == canonical {
		return true
	}
	for _, alt := range alternatives {
		if guess == alt {
			return true
		}
	}
	return false
}

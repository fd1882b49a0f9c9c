// Package normalize canonicalizes free-text payer and account names so they
// can be compared, used as alias keys, and fingerprinted. Normalization is
// pure and deterministic: the same input always yields the same output.
package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Result holds the canonical form of a name.
type Result struct {
	Normalized string
	Tokens     []string
}

// Empty reports whether the input produced no usable tokens. Callers must
// treat this as "cannot match", never as an error.
func (r Result) Empty() bool {
	return len(r.Tokens) == 0
}

// stripDiacritics removes combining marks after NFD decomposition, so that
// "Pérez" and "PEREZ" normalize identically.
var stripDiacritics = transform.Chain(
	norm.NFD,
	runes.Remove(runes.In(unicode.Mn)),
	norm.NFC,
)

const punctuation = `.,;:-_/\()[]{}'"`

// Normalize canonicalizes a payer or account name: trim, uppercase, strip
// diacritics, fold punctuation to spaces, collapse whitespace. Tokens are
// the normalized string split on whitespace with empty tokens discarded.
func Normalize(text string) Result {
	s := strings.TrimSpace(text)
	if s == "" {
		return Result{}
	}

	s = strings.ToUpper(s)

	if folded, _, err := transform.String(stripDiacritics, s); err == nil {
		s = folded
	}

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if strings.ContainsRune(punctuation, r) {
			b.WriteRune(' ')
		} else {
			b.WriteRune(r)
		}
	}

	tokens := strings.Fields(b.String())
	return Result{
		Normalized: strings.Join(tokens, " "),
		Tokens:     tokens,
	}
}

// Key returns the alias-lookup key for a raw payer string.
func Key(text string) string {
	return Normalize(text).Normalized
}

// Package normalize provides deterministic, locale-independent text
// normalization shared by content hashing and title comparison.
package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// stopwords are filtered from token output. Small fixed English set;
// the corpus is English-language lesson plans.
var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true,
	"at": true, "be": true, "by": true, "for": true, "from": true,
	"in": true, "is": true, "it": true, "of": true, "on": true,
	"or": true, "the": true, "to": true, "with": true,
}

// asciiFold strips combining marks after NFD decomposition, so
// "jalapeño" and "jalapeno" normalize identically.
var asciiFold = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Tokens normalizes raw text into a lowercase, punctuation-stripped,
// stopword-filtered token sequence. Empty input yields nil.
func Tokens(s string) []string {
	folded, _, err := transform.String(asciiFold, s)
	if err != nil {
		// Fold failures are not possible for valid UTF-8; fall back to raw.
		folded = s
	}

	var tokens []string
	var b strings.Builder
	flush := func() {
		if b.Len() == 0 {
			return
		}
		tok := b.String()
		b.Reset()
		if !stopwords[tok] {
			tokens = append(tokens, tok)
		}
	}

	for _, r := range folded {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(unicode.ToLower(r))
		default:
			flush()
		}
	}
	flush()
	return tokens
}

// String returns the fully-joined normalized form used for hashing.
// Texts differing only in case, punctuation, or whitespace produce the
// same output.
func String(s string) string {
	return strings.Join(Tokens(s), " ")
}

// TokenSet returns the distinct normalized tokens of s.
func TokenSet(s string) map[string]bool {
	toks := Tokens(s)
	if len(toks) == 0 {
		return nil
	}
	set := make(map[string]bool, len(toks))
	for _, t := range toks {
		set[t] = true
	}
	return set
}

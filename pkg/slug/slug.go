// Package slug derives URL-safe identifiers from subdivision names.
package slug

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	invalidRe   = regexp.MustCompile(`[^\w\s-]`)
	separatorRe = regexp.MustCompile(`[-\s]+`)
)

// Make lowercases s, folds accents to ASCII, drops punctuation and joins words with hyphens.
// "Provence-Alpes-Côte d'Azur" becomes "provence-alpes-cote-dazur".
func Make(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), runes.Remove(runes.Predicate(isNotASCII)))
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}

	folded = invalidRe.ReplaceAllString(strings.ToLower(folded), "")
	folded = separatorRe.ReplaceAllString(folded, "-")
	return strings.Trim(folded, "-_")
}

// Join slugs the parts joined with a hyphen, as used for EPCIs (name-siren) and communes (name-insee).
func Join(parts ...string) string {
	return Make(strings.Join(parts, "-"))
}

func isNotASCII(r rune) bool {
	return r > unicode.MaxASCII
}

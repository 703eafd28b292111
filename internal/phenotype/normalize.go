package phenotype

import (
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	combiningMarks = runes.In(unicode.Mn)
	nonAlnum       = runes.Predicate(func(r rune) bool { return !unicode.IsLetter(r) && !unicode.IsDigit(r) })
)

// RemoveDiacritics strips combining marks: "Dinárid" becomes "Dinarid".
func RemoveDiacritics(s string) string {
	out, _, _ := transform.String(transform.Chain(norm.NFD, runes.Remove(combiningMarks), norm.NFC), s)
	return out
}

// Normalize maps a free-text label to its lookup key. Compatibility forms and
// diacritics are folded, the result is lowercased and only letters and digits
// survive, so "Nord-ÍD" and "nordid" share a key. Normalize(Normalize(s)) ==
// Normalize(s).
func Normalize(name string) string {
	// transform.Chain keeps per-call state, so it is built fresh each time.
	t := transform.Chain(
		norm.NFKD,
		runes.Remove(combiningMarks),
		runes.Remove(nonAlnum),
		runes.Map(unicode.ToLower),
		norm.NFC,
	)
	out, _, _ := transform.String(t, name)
	return out
}

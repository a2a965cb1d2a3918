// Package citekey derives short, human-readable citation keys that do not
// collide with keys already in use.
package citekey

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/matsen/bipcite/internal/reference"
)

// Fallback is the seed prefix used when no author is known.
const Fallback = "ref"

// Suggest returns a citation key for the given authors and date that is not
// present in existing. The result depends only on the inputs and on
// membership tests against existing, never on its iteration order.
//
// Seed format: familyname + year (e.g. "smith2020"). Collisions append
// letters: "smith2020a", "smith2020b", ..., "smith2020z", "smith2020aa", ...
func Suggest(existing map[string]bool, authors []reference.Author, issued reference.PartialDate) string {
	seed := Seed(authors, issued)
	if !existing[seed] {
		return seed
	}
	for n := 1; ; n++ {
		candidate := seed + letterSuffix(n)
		if !existing[candidate] {
			return candidate
		}
	}
}

// SuggestFor is Suggest applied to an entry's authors and issued date.
func SuggestFor(existing map[string]bool, entry reference.Entry) string {
	return Suggest(existing, entry.Authors, entry.Issued)
}

// Seed builds the uncollided key: first author's family name (or the first
// token of a literal name) followed by the 4-digit year when known.
func Seed(authors []reference.Author, issued reference.PartialDate) string {
	name := ""
	if len(authors) > 0 {
		name = authorToken(authors[0])
	}
	year := issued.YearString()

	if name == "" {
		name = Fallback
	}
	return name + year
}

// authorToken returns the sanitized, lowercased family name.
func authorToken(a reference.Author) string {
	raw := a.Family
	if raw == "" {
		fields := strings.Fields(a.Literal)
		if len(fields) > 0 {
			raw = fields[0]
		}
	}
	if raw == "" {
		raw = a.Given
	}
	return sanitize(raw)
}

// sanitize lowercases s and keeps only ASCII letters and digits.
func sanitize(s string) string {
	// Strip combining marks ("Müller" -> "Muller"). Chains are stateful, so build one per call.
	fold := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(fold, s)
	if err != nil {
		folded = s
	}

	var b strings.Builder
	for _, r := range strings.ToLower(folded) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// letterSuffix maps 1 -> "a", 26 -> "z", 27 -> "aa", 28 -> "ab" (bijective base 26).
func letterSuffix(n int) string {
	var buf []byte
	for n > 0 {
		n--
		buf = append([]byte{byte('a' + n%26)}, buf...)
		n /= 26
	}
	return string(buf)
}

package reference

import "strings"

// Author is a contributor name. Literal is used for organisational
// authors that have no family/given split.
type Author struct {
	Family  string `json:"family,omitempty" yaml:"family,omitempty"`
	Given   string `json:"given,omitempty" yaml:"given,omitempty"`
	Literal string `json:"literal,omitempty" yaml:"literal,omitempty"`
}

// Name returns a display name: "Given Family", the family name alone, or the literal.
func (a Author) Name() string {
	switch {
	case a.Literal != "":
		return a.Literal
	case a.Given != "" && a.Family != "":
		return a.Given + " " + a.Family
	default:
		return a.Family + a.Given
	}
}

// Common name suffixes to keep with the family name.
var nameSuffixes = map[string]bool{
	"jr":   true,
	"jr.":  true,
	"sr":   true,
	"sr.":  true,
	"ii":   true,
	"iii":  true,
	"iv":   true,
	"phd":  true,
	"ph.d": true,
	"md":   true,
}

// ParseAuthorName splits a free-form name into family and given parts.
// "Last, First" and "First Last" are both accepted; a single word becomes
// the family name.
//
// Known limitations:
// - Multi-part surnames (von Neumann, van der Waals) split incorrectly in "First Last" form
// - Non-Western name formats may not be handled correctly
func ParseAuthorName(name string) Author {
	name = strings.TrimSpace(name)
	if name == "" {
		return Author{}
	}

	if family, given, ok := strings.Cut(name, ","); ok {
		return Author{Family: strings.TrimSpace(family), Given: strings.TrimSpace(given)}
	}

	parts := strings.Fields(name)
	if len(parts) == 1 {
		return Author{Family: parts[0]}
	}

	lastPart := strings.ToLower(parts[len(parts)-1])
	if nameSuffixes[lastPart] && len(parts) > 2 {
		return Author{
			Family: parts[len(parts)-2] + " " + parts[len(parts)-1],
			Given:  strings.Join(parts[:len(parts)-2], " "),
		}
	}

	return Author{
		Family: parts[len(parts)-1],
		Given:  strings.Join(parts[:len(parts)-1], " "),
	}
}

package reference

import (
	"regexp"
	"strings"
)

// doiPattern matches a DOI embedded in text: 10.XXXX/... where XXXX is 4-9 digits.
var doiPattern = regexp.MustCompile(`10\.\d{4,9}/[^\s<>"{}|\\^~\[\]` + "`" + `]+`)

// doiShape matches a string that is, in its entirety, a DOI with an optional
// "doi:" or resolver URL prefix.
var doiShape = regexp.MustCompile(`(?i)^(?:doi:\s*|https?://(?:dx\.)?doi\.org/)?10\.\d{4,9}/\S+$`)

// NormalizeDOI normalizes a DOI to a consistent format for comparison.
// It removes common URL prefixes (https://doi.org/, doi:) and converts to lowercase.
func NormalizeDOI(doi string) string {
	doi = strings.TrimSpace(doi)
	lower := strings.ToLower(doi)
	for _, prefix := range []string{"https://doi.org/", "http://doi.org/", "https://dx.doi.org/", "http://dx.doi.org/", "doi.org/", "doi:"} {
		if strings.HasPrefix(lower, prefix) {
			lower = strings.TrimSpace(lower[len(prefix):])
			break
		}
	}
	return lower
}

// LooksLikeDOI reports whether s is a single DOI-shaped string. It is a
// pure pattern test and never consults the network.
func LooksLikeDOI(s string) bool {
	return doiShape.MatchString(strings.TrimSpace(s))
}

// FindDOI returns the first DOI found in text, with trailing punctuation
// trimmed, or "" if none is present.
func FindDOI(text string) string {
	match := doiPattern.FindString(text)
	return strings.TrimRight(match, ".,;:)")
}

// StripDOIPrefix removes a resolver URL or "doi:" prefix, preserving case.
func StripDOIPrefix(s string) string {
	s = strings.TrimSpace(s)
	lower := strings.ToLower(s)
	for _, prefix := range []string{"https://doi.org/", "http://doi.org/", "https://dx.doi.org/", "http://dx.doi.org/", "doi:"} {
		if strings.HasPrefix(lower, prefix) {
			return strings.TrimSpace(s[len(prefix):])
		}
	}
	return s
}

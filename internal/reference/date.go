package reference

import (
	"regexp"
	"strconv"
	"strings"
)

// PartialDate is a publication date of uneven precision. Month and Day
// are zero when unknown. Raw keeps an unparsed value such as "Spring 2019".
type PartialDate struct {
	Year  int    `json:"year,omitempty" yaml:"year,omitempty"`
	Month int    `json:"month,omitempty" yaml:"month,omitempty"` // 1-12, 0 if unknown
	Day   int    `json:"day,omitempty" yaml:"day,omitempty"`     // 1-31, 0 if unknown
	Raw   string `json:"raw,omitempty" yaml:"raw,omitempty"`
}

var yearPattern = regexp.MustCompile(`\b(\d{4})\b`)

// IsZero reports whether nothing is known about the date.
func (d PartialDate) IsZero() bool {
	return d.Year == 0 && d.Raw == ""
}

// YearString returns the 4-digit year, falling back to a year found in Raw.
// Returns "" if no year is known.
func (d PartialDate) YearString() string {
	if d.Year > 0 {
		return strconv.Itoa(d.Year)
	}
	if m := yearPattern.FindStringSubmatch(d.Raw); m != nil {
		return m[1]
	}
	return ""
}

// ParsePartialDate parses YYYY, YYYY-MM or YYYY-MM-DD (also "/"-separated).
// Anything else is kept in Raw, with the year extracted when one is present.
func ParsePartialDate(s string) PartialDate {
	s = strings.TrimSpace(s)
	if s == "" {
		return PartialDate{}
	}

	parts := strings.FieldsFunc(s, func(r rune) bool { return r == '-' || r == '/' })
	year, err := strconv.Atoi(parts[0])
	if err != nil || len(parts[0]) != 4 {
		d := PartialDate{Raw: s}
		if y := d.YearString(); y != "" {
			d.Year, _ = strconv.Atoi(y)
		}
		return d
	}

	d := PartialDate{Year: year}
	if len(parts) >= 2 {
		if m, err := strconv.Atoi(parts[1]); err == nil && m >= 1 && m <= 12 {
			d.Month = m
		}
	}
	if len(parts) >= 3 && d.Month > 0 {
		if day, err := strconv.Atoi(parts[2]); err == nil && day >= 1 && day <= 31 {
			d.Day = day
		}
	}
	return d
}

// Package importer reads bibliography files (BibTeX/BibLaTeX, CSL-JSON and
// CSL-YAML) into reference entries.
package importer

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/matsen/bipcite/internal/reference"
)

// BibTeXEntry is one @type{key, ...} record before conversion.
type BibTeXEntry struct {
	Type   string
	Key    string
	Fields map[string]string
	Line   int
}

// ParseBibTeX parses BibTeX/BibLaTeX source and converts every entry.
// Entries that fail to convert are reported in errs; the rest are returned.
func ParseBibTeX(data []byte, providerKey string) ([]reference.Entry, []error) {
	raw, err := ParseBibTeXEntries(string(data))
	if err != nil {
		return nil, []error{err}
	}

	var entries []reference.Entry
	var errs []error
	for _, r := range raw {
		e, err := bibtexToEntry(r, providerKey)
		if err != nil {
			errs = append(errs, fmt.Errorf("entry %q (line %d): %w", r.Key, r.Line, err))
			continue
		}
		entries = append(entries, e)
	}
	return entries, errs
}

// bibParser is a small recursive-descent reader over BibTeX source.
type bibParser struct {
	src     []rune
	pos     int
	line    int
	strings map[string]string
}

var defaultMacros = map[string]string{
	"jan": "1", "feb": "2", "mar": "3", "apr": "4", "may": "5", "jun": "6",
	"jul": "7", "aug": "8", "sep": "9", "oct": "10", "nov": "11", "dec": "12",
}

// ParseBibTeXEntries returns the raw entries of a BibTeX document.
// @comment and @preamble blocks are skipped; @string macros are expanded.
func ParseBibTeXEntries(src string) ([]BibTeXEntry, error) {
	p := &bibParser{src: []rune(src), line: 1, strings: map[string]string{}}
	for k, v := range defaultMacros {
		p.strings[k] = v
	}

	var entries []BibTeXEntry
	for {
		if !p.skipTo('@') {
			return entries, nil
		}
		p.next() // '@'
		startLine := p.line
		typ := strings.ToLower(p.readIdent())
		p.skipSpace()

		open := p.peek()
		if open != '{' && open != '(' {
			continue // stray '@' in free text
		}
		closer := '}'
		if open == '(' {
			closer = ')'
		}
		p.next()

		switch typ {
		case "comment", "preamble":
			if err := p.skipBalanced(closer); err != nil {
				return nil, err
			}
		case "string":
			name, value, err := p.readField()
			if err != nil {
				return nil, err
			}
			p.strings[name] = value
			p.skipSpace()
			if p.peek() == closer {
				p.next()
			}
		default:
			e, err := p.readEntry(typ, closer)
			if err != nil {
				return nil, err
			}
			e.Line = startLine
			entries = append(entries, e)
		}
	}
}

func (p *bibParser) eof() bool { return p.pos >= len(p.src) }

func (p *bibParser) peek() rune {
	if p.eof() {
		return 0
	}
	return p.src[p.pos]
}

func (p *bibParser) next() rune {
	r := p.peek()
	p.pos++
	if r == '\n' {
		p.line++
	}
	return r
}

func (p *bibParser) skipTo(r rune) bool {
	for !p.eof() {
		if p.peek() == r {
			return true
		}
		p.next()
	}
	return false
}

func (p *bibParser) skipSpace() {
	for !p.eof() && unicode.IsSpace(p.peek()) {
		p.next()
	}
}

func (p *bibParser) readIdent() string {
	start := p.pos
	for !p.eof() {
		r := p.peek()
		if unicode.IsSpace(r) || strings.ContainsRune("{}()=,#\"", r) {
			break
		}
		p.next()
	}
	return string(p.src[start:p.pos])
}

func (p *bibParser) skipBalanced(closer rune) error {
	depth := 0
	for !p.eof() {
		r := p.next()
		switch {
		case r == '{':
			depth++
		case r == '}' && depth > 0:
			depth--
		case r == closer && depth == 0:
			return nil
		}
	}
	return fmt.Errorf("line %d: unterminated block", p.line)
}

func (p *bibParser) readEntry(typ string, closer rune) (BibTeXEntry, error) {
	p.skipSpace()
	key := strings.TrimSpace(p.readIdent())
	e := BibTeXEntry{Type: typ, Key: key, Fields: map[string]string{}}

	for {
		p.skipSpace()
		switch p.peek() {
		case ',':
			p.next()
			continue
		case closer:
			p.next()
			return e, nil
		case 0:
			return e, fmt.Errorf("line %d: unterminated entry %q", p.line, key)
		}

		name, value, err := p.readField()
		if err != nil {
			return e, err
		}
		if name != "" {
			e.Fields[name] = value
		}
	}
}

// readField reads `name = value # value ...`.
func (p *bibParser) readField() (string, string, error) {
	p.skipSpace()
	name := strings.ToLower(p.readIdent())
	p.skipSpace()
	if p.peek() != '=' {
		return "", "", fmt.Errorf("line %d: expected '=' after field %q", p.line, name)
	}
	p.next()

	var value strings.Builder
	for {
		p.skipSpace()
		switch r := p.peek(); {
		case r == '{':
			p.next()
			s, err := p.readBraced()
			if err != nil {
				return "", "", err
			}
			value.WriteString(s)
		case r == '"':
			p.next()
			s, err := p.readQuoted()
			if err != nil {
				return "", "", err
			}
			value.WriteString(s)
		default:
			word := p.readIdent()
			if word == "" {
				return "", "", fmt.Errorf("line %d: missing value for field %q", p.line, name)
			}
			if expanded, ok := p.strings[strings.ToLower(word)]; ok {
				word = expanded
			}
			value.WriteString(word)
		}

		p.skipSpace()
		if p.peek() != '#' {
			return name, value.String(), nil
		}
		p.next()
	}
}

// readBraced reads up to the matching '}', keeping inner braces.
func (p *bibParser) readBraced() (string, error) {
	start := p.pos
	depth := 0
	for !p.eof() {
		r := p.next()
		switch r {
		case '{':
			depth++
		case '}':
			if depth == 0 {
				return string(p.src[start : p.pos-1]), nil
			}
			depth--
		}
	}
	return "", fmt.Errorf("line %d: unbalanced braces", p.line)
}

func (p *bibParser) readQuoted() (string, error) {
	start := p.pos
	depth := 0
	for !p.eof() {
		r := p.next()
		switch {
		case r == '{':
			depth++
		case r == '}' && depth > 0:
			depth--
		case r == '"' && depth == 0:
			return string(p.src[start : p.pos-1]), nil
		}
	}
	return "", fmt.Errorf("line %d: unterminated string", p.line)
}

// bibtexKinds maps BibTeX entry types to CSL kinds.
var bibtexKinds = map[string]string{
	"article":       reference.KindArticleJournal,
	"book":          reference.KindBook,
	"mvbook":        reference.KindBook,
	"inbook":        reference.KindChapter,
	"incollection":  reference.KindChapter,
	"inproceedings": reference.KindPaperConference,
	"conference":    reference.KindPaperConference,
	"techreport":    reference.KindReport,
	"report":        reference.KindReport,
	"phdthesis":     reference.KindThesis,
	"mastersthesis": reference.KindThesis,
	"thesis":        reference.KindThesis,
	"online":        reference.KindWebpage,
	"www":           reference.KindWebpage,
	"electronic":    reference.KindWebpage,
	"dataset":       reference.KindDataset,
	"software":      reference.KindSoftware,
	"jurisdiction":  reference.KindLegalCase,
}

func bibtexToEntry(r BibTeXEntry, providerKey string) (reference.Entry, error) {
	if r.Key == "" {
		return reference.Entry{}, fmt.Errorf("missing citation key")
	}

	f := r.Fields
	kind, ok := bibtexKinds[r.Type]
	if !ok {
		kind = r.Type
	}

	e := reference.Entry{
		ID:             r.Key,
		ProviderKey:    providerKey,
		Kind:           kind,
		Title:          cleanLatex(f["title"]),
		ShortTitle:     cleanLatex(f["shorttitle"]),
		ContainerTitle: cleanLatex(firstNonEmpty(f["journaltitle"], f["journal"], f["booktitle"])),
		DOI:            reference.StripDOIPrefix(cleanLatex(f["doi"])),
		URL:            strings.TrimSpace(f["url"]),
		ISSN:           cleanLatex(f["issn"]),
		ISBN:           cleanLatex(f["isbn"]),
		Abstract:       cleanLatex(f["abstract"]),
		Publisher:      cleanLatex(firstNonEmpty(f["publisher"], f["institution"], f["school"])),
		Volume:         cleanLatex(f["volume"]),
		Issue:          cleanLatex(firstNonEmpty(f["number"], f["issue"])),
		Page:           strings.ReplaceAll(cleanLatex(f["pages"]), "--", "-"),
	}

	names := f["author"]
	if names == "" {
		names = f["editor"]
	}
	e.Authors = parseBibTeXNames(names)

	if date := strings.TrimSpace(f["date"]); date != "" {
		e.Issued = reference.ParsePartialDate(date)
	} else if year := cleanLatex(f["year"]); year != "" {
		e.Issued = reference.ParsePartialDate(year)
		if m := parseMonth(f["month"]); m > 0 && e.Issued.Year > 0 {
			e.Issued.Month = m
		}
	}

	return e, nil
}

var nameSplit = regexp.MustCompile(`\s+and\s+`)

// parseBibTeXNames splits an author list on top-level " and ". A name fully
// wrapped in braces is an organisation and becomes a literal.
func parseBibTeXNames(s string) []reference.Author {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}

	var authors []reference.Author
	for _, part := range splitTopLevel(s) {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if strings.HasPrefix(part, "{") && strings.HasSuffix(part, "}") && balancedInner(part) {
			authors = append(authors, reference.Author{Literal: cleanLatex(part)})
			continue
		}
		a := reference.ParseAuthorName(cleanLatex(part))
		authors = append(authors, a)
	}
	return authors
}

// splitTopLevel splits on " and " outside braces.
func splitTopLevel(s string) []string {
	var parts []string
	depth, start := 0, 0
	for i, r := range s {
		switch r {
		case '{':
			depth++
		case '}':
			if depth > 0 {
				depth--
			}
		}
		if depth == 0 {
			if loc := nameSplit.FindStringIndex(s[i:]); loc != nil && loc[0] == 0 && i > start {
				parts = append(parts, s[start:i])
				start = i + loc[1]
			}
		}
	}
	return append(parts, s[start:])
}

// balancedInner reports whether the outer braces of s enclose the whole string.
func balancedInner(s string) bool {
	depth := 0
	for i, r := range s {
		switch r {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 && i != len(s)-1 {
				return false
			}
		}
	}
	return depth == 0
}

func parseMonth(s string) int {
	s = strings.ToLower(strings.TrimSpace(cleanLatex(s)))
	if s == "" {
		return 0
	}
	if v, ok := defaultMacros[s]; ok {
		s = v
	} else if len(s) >= 3 {
		if v, ok := defaultMacros[s[:3]]; ok {
			s = v
		}
	}
	var m int
	if _, err := fmt.Sscanf(s, "%d", &m); err != nil || m < 1 || m > 12 {
		return 0
	}
	return m
}

var accentMarks = map[rune]rune{
	'"':  '\u0308', // diaeresis
	'\'': '\u0301', // acute
	'`':  '\u0300', // grave
	'^':  '\u0302', // circumflex
	'~':  '\u0303', // tilde
	'=':  '\u0304', // macron
	'.':  '\u0307', // dot above
	'c':  '\u0327', // cedilla
	'v':  '\u030C', // caron
	'u':  '\u0306', // breve
	'H':  '\u030B', // double acute
}

var accentPattern = regexp.MustCompile(`\\([\"'` + "`" + `^~=.]|[cvuH]\s*)\s*\{?([A-Za-z])\}?`)

// Escaped braces survive brace stripping via private-use placeholders.
const (
	openBrace  = "\uE000"
	closeBrace = "\uE001"
)

var latexEscapes = strings.NewReplacer(
	`\&`, "&",
	`\%`, "%",
	`\$`, "$",
	`\#`, "#",
	`\_`, "_",
	`\{`, openBrace,
	`\}`, closeBrace,
	`\textasciitilde{}`, "~",
	`\textasciicircum{}`, "^",
	`\textendash`, "\u2013",
	`\textemdash`, "\u2014",
	`\ss`, "\u00DF",
	"---", "\u2014",
	"~", " ",
)

// cleanLatex converts common LaTeX markup to plain text and strips
// grouping braces.
func cleanLatex(s string) string {
	if s == "" {
		return ""
	}
	s = accentPattern.ReplaceAllStringFunc(s, func(m string) string {
		sub := accentPattern.FindStringSubmatch(m)
		cmd := []rune(strings.TrimSpace(sub[1]))[0]
		return sub[2] + string(accentMarks[cmd])
	})
	s = latexEscapes.Replace(s)
	s = strings.Map(func(r rune) rune {
		if r == '{' || r == '}' {
			return -1
		}
		return r
	}, s)
	s = strings.NewReplacer(openBrace, "{", closeBrace, "}", "\u00A0", " ").Replace(s)
	return strings.Join(strings.Fields(norm.NFC.String(s)), " ")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

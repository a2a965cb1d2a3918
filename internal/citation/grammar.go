package citation

import "unicode"

// Span is a half-open rune range relative to the text it was parsed from.
type Span struct {
	From, To int
}

// Parsed is the result of matching the citation grammar.
type Parsed struct {
	// Length is the number of runes forming the longest valid prefix, or 0.
	Length int
	// Closed is set when the prefix ends with the closing bracket.
	Closed bool
	// IDs are the cite-id tokens, including their "@" or "-@" prefix.
	IDs []Span
}

// internalPunct may appear inside an identifier when a word character
// follows it.
const internalPunct = ":.#$%&-+?<>~/"

func isWord(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

func isInternalPunct(r rune) bool {
	for _, p := range internalPunct {
		if r == p {
			return true
		}
	}
	return false
}

// MatchCiteID returns the length in runes of the cite-id at the start of
// text: an optional "-", an "@", then an identifier that may be empty while
// it is being typed. It returns 0 if text does not start with a cite-id.
func MatchCiteID(text string) int {
	return matchCiteID([]rune(text))
}

func matchCiteID(r []rune) int {
	i := 0
	if i < len(r) && r[i] == '-' {
		i++
	}
	if i >= len(r) || r[i] != '@' {
		return 0
	}
	i++
	start := i
	for i < len(r) {
		switch {
		case isWord(r[i]):
			i++
		case i > start && isInternalPunct(r[i]) && i+1 < len(r) && isWord(r[i+1]):
			i++
		default:
			return i
		}
	}
	return i
}

// startsID reports whether a cite-id begins at r[i]. The "@" must not
// follow a word character, so e-mail addresses are not citations.
func startsID(r []rune, i int) bool {
	if i > 0 && isWord(r[i-1]) {
		return false
	}
	if r[i] == '@' {
		return true
	}
	return r[i] == '-' && i+1 < len(r) && r[i+1] == '@'
}

// MatchCitation returns the length of the longest valid citation prefix of
// text, which must start with "[".
func MatchCitation(text string) int {
	return ParseCitation(text).Length
}

// ParseCitation matches text against the citation grammar:
//
//	citation = "[" item { ";" item } "]"
//	item     = [ prefix ] cite-id [ suffix ]
//
// Prefix and suffix are free text without brackets or semicolons. A
// citation that is still open (no "]" before the end of the line) is valid
// as long as it holds at least one cite-id.
func ParseCitation(text string) Parsed {
	return parseCitation([]rune(text))
}

func parseCitation(r []rune) Parsed {
	if len(r) == 0 || r[0] != '[' {
		return Parsed{}
	}
	var ids []Span
	itemHasID := false
	i := 1
	for i < len(r) {
		c := r[i]
		switch {
		case c == '\n':
			return open(i, ids)
		case c == ']':
			if !itemHasID {
				return Parsed{}
			}
			return Parsed{Length: i + 1, Closed: true, IDs: ids}
		case c == ';':
			if !itemHasID {
				return Parsed{}
			}
			itemHasID = false
			i++
		case c == '[':
			return Parsed{}
		case startsID(r, i):
			n := matchCiteID(r[i:])
			ids = append(ids, Span{From: i, To: i + n})
			itemHasID = true
			i += n
		default:
			i++
		}
	}
	return open(len(r), ids)
}

func open(end int, ids []Span) Parsed {
	if len(ids) == 0 {
		return Parsed{}
	}
	return Parsed{Length: end, IDs: ids}
}

package citation

import (
	"strings"

	"github.com/matsen/bipcite/internal/reference"
)

// PasteKind classifies pasted content.
type PasteKind int

const (
	PasteText PasteKind = iota
	PasteDOI
)

// PasteHooks connect paste handling to the catalogue. KnownDOI reports
// whether a catalogue entry already has the DOI; ResolveDOI starts the
// asynchronous lookup and must not block. Either may be nil.
type PasteHooks struct {
	KnownDOI   func(doi string) bool
	ResolveDOI func(doi string, at Token)
}

// PasteResult describes what Paste did.
type PasteResult struct {
	Kind     PasteKind
	DOI      string
	Resolved bool // ResolveDOI was called
}

// Paste replaces [from, to) with text. Inside a citation a lone DOI is
// inserted as a bare placeholder and, unless the catalogue already knows
// it, handed to hooks.ResolveDOI. Classification is by pattern only.
// Pasted text outside citations is scanned for citations. Hooks run after
// the engine is unlocked and may call back into it.
func (e *Engine) Paste(from, to int, text string, hooks PasteHooks) PasteResult {
	res, at := e.paste(from, to, text)
	if res.Kind != PasteDOI {
		return res
	}
	if hooks.KnownDOI != nil && hooks.KnownDOI(res.DOI) {
		return res
	}
	if hooks.ResolveDOI != nil {
		hooks.ResolveDOI(res.DOI, at)
		res.Resolved = true
	}
	return res
}

func (e *Engine) paste(from, to int, text string) (PasteResult, Token) {
	e.mu.Lock()
	defer e.mu.Unlock()

	inside := e.insideLocked(from) || e.atOpenEndLocked(from)
	if inside && reference.LooksLikeDOI(text) {
		doi := reference.StripDOIPrefix(strings.TrimSpace(text))
		edit := e.applyLocked(Edit{From: from, To: to, Text: doi})
		return PasteResult{Kind: PasteDOI, DOI: doi}, e.pastedTokenLocked(edit, doi)
	}

	edit := e.applyLocked(Edit{From: from, To: to, Text: text})
	if !inside {
		start, end := e.lineBounds(edit.From, edit.From+edit.InsertedLen())
		e.scanLocked(start, end)
	}
	return PasteResult{Kind: PasteText}, Token{}
}

// atOpenEndLocked reports whether pos is the end of an open mark, where
// typing extends the citation.
func (e *Engine) atOpenEndLocked(pos int) bool {
	for _, m := range e.marks {
		if m.Validity == Partial && m.To == pos {
			return true
		}
	}
	return false
}

// pastedTokenLocked returns the token holding the pasted DOI: its id range
// when the DOI landed in one, otherwise just its position in the mark.
func (e *Engine) pastedTokenLocked(edit Edit, doi string) Token {
	for _, m := range e.marks {
		if edit.From < m.From || edit.From >= m.To {
			continue
		}
		for _, r := range m.IDs {
			if r.From < edit.From && edit.From <= r.To {
				return e.tokenLocked(m, r, r.To)
			}
		}
		return Token{Text: doi, RangeStart: edit.From, MarkID: m.ID}
	}
	return Token{Text: doi, RangeStart: edit.From}
}

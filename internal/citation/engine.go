// Package citation recognises and maintains citation marks in editable
// document text.
//
// Positions are rune indices. Every mutation goes through the Engine, which
// maps mark positions through the edit and re-validates the marks it
// touched against the citation grammar: marks shrink to their longest valid
// prefix or disappear.
package citation

import (
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// ErrRangeGone is returned when an id range no longer exists.
var ErrRangeGone = errors.New("citation range no longer exists")

// Validity classifies a citation mark.
type Validity int

const (
	Invalid Validity = iota
	// Partial marks are still open: no closing bracket yet.
	Partial
	Valid
)

func (v Validity) String() string {
	switch v {
	case Partial:
		return "partial"
	case Valid:
		return "valid"
	}
	return "invalid"
}

// IDRange marks one cite-id inside a citation, "@" included.
type IDRange struct {
	ID       uuid.UUID
	From, To int
}

// Mark is a citation span [From, To).
type Mark struct {
	ID       uuid.UUID
	From, To int
	Validity Validity
	IDs      []IDRange
}

func (m *Mark) clone() Mark {
	c := *m
	c.IDs = append([]IDRange(nil), m.IDs...)
	return c
}

// Token is the cite-id under the cursor, without its "@" or "-@" prefix.
// RangeStart is where the token text starts and Offset is the cursor
// position within it.
type Token struct {
	Text       string
	RangeStart int
	Offset     int
	MarkID     uuid.UUID
	RangeID    uuid.UUID
}

// Engine holds one document's text and citation marks. It is safe for
// concurrent use.
type Engine struct {
	mu    sync.Mutex
	buf   *Buffer
	marks []*Mark // sorted by From, never overlapping
	newID func() uuid.UUID
}

// NewEngine creates an engine over text and recognises the citations it
// already contains.
func NewEngine(text string) *Engine {
	e := &Engine{buf: NewBuffer(text), newID: uuid.New}
	e.scanLocked(0, e.buf.Len())
	return e
}

// Text returns the current document text.
func (e *Engine) Text() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.buf.String()
}

// Len returns the text length in runes.
func (e *Engine) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.buf.Len()
}

// Marks returns copies of the current marks in document order.
func (e *Engine) Marks() []Mark {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Mark, len(e.marks))
	for i, m := range e.marks {
		out[i] = m.clone()
	}
	return out
}

// Scan drops all marks and recognises closed citations in the whole text.
func (e *Engine) Scan() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.marks = nil
	e.scanLocked(0, e.buf.Len())
}

// ApplyEdit performs edit and re-validates the marks it touched.
func (e *Engine) ApplyEdit(edit Edit) Edit {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.applyLocked(edit)
}

// HandleTextInput inserts typed text at pos and runs the input rules: an
// "@" inside unbalanced brackets opens a citation, and "[" or "]" close
// around existing citation text. Rules never fire inside an existing mark.
func (e *Engine) HandleTextInput(pos int, text string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	edit := e.applyLocked(Insert(pos, text))
	if len([]rune(text)) != 1 {
		return
	}
	pos = edit.From
	if e.insideLocked(pos) {
		return
	}

	switch text {
	case "@":
		if open, _, ok := e.enclosingLocked(pos); ok {
			e.createLocked(open, true, pos)
		}
	case "[":
		e.createLocked(pos, false, pos)
	case "]":
		if open, _, ok := e.enclosingLocked(pos); ok {
			if m := e.createLocked(open, false, pos); m != nil && m.To != pos+1 {
				e.removeLocked(m)
			}
		}
	}
}

// TokenAt returns the cite-id token containing the cursor at pos.
func (e *Engine) TokenAt(pos int) (Token, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, m := range e.marks {
		if pos <= m.From || pos > m.To {
			continue
		}
		for _, r := range m.IDs {
			if pos > r.From && pos <= r.To {
				return e.tokenLocked(m, r, pos), true
			}
		}
	}
	return Token{}, false
}

func (e *Engine) tokenLocked(m *Mark, r IDRange, pos int) Token {
	start := r.From + 1
	if e.buf.At(r.From) == '-' {
		start++
	}
	if pos < start {
		pos = start
	}
	return Token{
		Text:       e.buf.Slice(start, r.To),
		RangeStart: start,
		Offset:     pos - start,
		MarkID:     m.ID,
		RangeID:    r.ID,
	}
}

// TokenByRange returns the current token of the id range with id.
func (e *Engine) TokenByRange(id uuid.UUID) (Token, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	m, r, ok := e.findRangeLocked(id)
	if !ok {
		return Token{}, false
	}
	return e.tokenLocked(m, r, r.To), true
}

// Stale returns a check that reports whether tok's id range has gone or
// its text has changed since tok was taken.
func (e *Engine) Stale(tok Token) func() bool {
	return func() bool {
		cur, ok := e.TokenByRange(tok.RangeID)
		return !ok || cur.Text != tok.Text
	}
}

// InsertCitation replaces the token text of the id range with id.
func (e *Engine) InsertCitation(rangeID uuid.UUID, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	m, r, ok := e.findRangeLocked(rangeID)
	if !ok {
		return ErrRangeGone
	}
	tok := e.tokenLocked(m, r, r.To)
	e.applyLocked(Edit{From: tok.RangeStart, To: r.To, Text: id})
	return nil
}

func (e *Engine) findRangeLocked(id uuid.UUID) (*Mark, IDRange, bool) {
	for _, m := range e.marks {
		for _, r := range m.IDs {
			if r.ID == id {
				return m, r, true
			}
		}
	}
	return nil, IDRange{}, false
}

// FindEnclosingBrackets returns the nearest unbalanced "[" before pos and
// the matching "]" after it on the same line. close is -1 when the bracket
// is not yet closed. Nested bracket pairs are skipped.
func (e *Engine) FindEnclosingBrackets(pos int) (open, close int, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.enclosingLocked(pos)
}

func (e *Engine) enclosingLocked(pos int) (int, int, bool) {
	open := -1
	depth := 0
	for i := pos - 1; i >= 0; i-- {
		c := e.buf.At(i)
		if c == '\n' {
			break
		}
		if c == ']' {
			depth++
		} else if c == '[' {
			if depth == 0 {
				open = i
				break
			}
			depth--
		}
	}
	if open < 0 {
		return 0, -1, false
	}

	depth = 0
	for i := pos; i < e.buf.Len(); i++ {
		c := e.buf.At(i)
		if c == '\n' {
			break
		}
		if c == '[' {
			depth++
		} else if c == ']' {
			if depth == 0 {
				return open, i, true
			}
			depth--
		}
	}
	return open, -1, true
}

func (e *Engine) insideLocked(pos int) bool {
	for _, m := range e.marks {
		if m.From < pos && pos < m.To {
			return true
		}
	}
	return false
}

func (e *Engine) applyLocked(edit Edit) Edit {
	edit = e.buf.Apply(edit)
	end := edit.From + edit.InsertedLen()

	var touched []*Mark
	for _, m := range e.marks {
		toAssoc := -1
		if m.Validity == Partial {
			toAssoc = 1
		}
		m.From = edit.MapPos(m.From, 1)
		m.To = edit.MapPos(m.To, toAssoc)
		for i := range m.IDs {
			m.IDs[i].From = edit.MapPos(m.IDs[i].From, 1)
			m.IDs[i].To = edit.MapPos(m.IDs[i].To, 1)
		}
		if m.From <= end && edit.From <= m.To {
			touched = append(touched, m)
		}
	}
	for _, m := range touched {
		e.revalidateLocked(m)
	}
	for _, m := range touched {
		if m.Validity == Partial && e.hasMarkLocked(m) {
			e.extendLocked(m)
		}
	}
	return edit
}

// revalidateLocked re-parses the mark's text, shrinking it to the valid
// prefix or removing it.
func (e *Engine) revalidateLocked(m *Mark) {
	if m.From >= m.To {
		e.removeLocked(m)
		return
	}
	p := parseCitation(e.buf.runes(m.From, m.To))
	if p.Length == 0 {
		e.removeLocked(m)
		return
	}
	e.setParsedLocked(m, p)
}

// extendLocked grows an open mark to the closed citation its line now
// holds, if that does not run into another mark.
func (e *Engine) extendLocked(m *Mark) {
	p := parseCitation(e.buf.runes(m.From, e.buf.LineEnd(m.From)))
	if !p.Closed {
		return
	}
	end := m.From + p.Length
	for _, o := range e.marks {
		if o != m && o.From < end && m.From < o.To {
			return
		}
	}
	e.setParsedLocked(m, p)
}

// setParsedLocked applies a parse of the text at m.From to m. Id ranges
// keep their identity when they overlap their previous extent.
func (e *Engine) setParsedLocked(m *Mark, p Parsed) {
	m.To = m.From + p.Length
	m.Validity = Partial
	if p.Closed {
		m.Validity = Valid
	}

	old := m.IDs
	used := make([]bool, len(old))
	ids := make([]IDRange, 0, len(p.IDs))
	for _, s := range p.IDs {
		r := IDRange{From: m.From + s.From, To: m.From + s.To}
		for i, o := range old {
			if !used[i] && o.From < r.To && r.From < o.To {
				r.ID = o.ID
				used[i] = true
				break
			}
		}
		if r.ID == uuid.Nil {
			r.ID = e.newID()
		}
		ids = append(ids, r)
	}
	m.IDs = ids
}

// createLocked parses a citation starting at open and adds a mark for it.
// The mark must contain at, must not overlap another mark, and must be
// closed unless allowOpen.
func (e *Engine) createLocked(open int, allowOpen bool, at int) *Mark {
	if e.buf.At(open) != '[' {
		return nil
	}
	p := parseCitation(e.buf.runes(open, e.buf.LineEnd(open)))
	if p.Length == 0 || (!p.Closed && !allowOpen) {
		return nil
	}
	m := &Mark{ID: e.newID(), From: open, To: open + p.Length}
	if at < m.From || at >= m.To {
		return nil
	}
	for _, o := range e.marks {
		if o.From < m.To && m.From < o.To {
			return nil
		}
	}
	m.Validity = Partial
	if p.Closed {
		m.Validity = Valid
	}
	for _, s := range p.IDs {
		m.IDs = append(m.IDs, IDRange{ID: e.newID(), From: open + s.From, To: open + s.To})
	}
	e.marks = append(e.marks, m)
	sort.Slice(e.marks, func(i, j int) bool { return e.marks[i].From < e.marks[j].From })
	return m
}

func (e *Engine) removeLocked(m *Mark) {
	for i, o := range e.marks {
		if o == m {
			e.marks = append(e.marks[:i], e.marks[i+1:]...)
			return
		}
	}
}

// scanLocked recognises closed citations starting in [from, to). A
// bracket followed by "(" or "[" is a link, not a citation.
func (e *Engine) scanLocked(from, to int) {
	for i := from; i < to; i++ {
		if e.buf.At(i) != '[' || e.insideLocked(i) || e.startsMarkLocked(i) {
			continue
		}
		p := parseCitation(e.buf.runes(i, e.buf.LineEnd(i)))
		if !p.Closed {
			continue
		}
		next := e.buf.At(i + p.Length)
		if next == '(' || next == '[' || e.buf.At(i-1) == '!' {
			continue
		}
		if m := e.createLocked(i, false, i); m != nil {
			i = m.To - 1
		}
	}
}

func (e *Engine) hasMarkLocked(m *Mark) bool {
	for _, o := range e.marks {
		if o == m {
			return true
		}
	}
	return false
}

func (e *Engine) startsMarkLocked(pos int) bool {
	for _, m := range e.marks {
		if m.From == pos {
			return true
		}
	}
	return false
}

// lineBounds returns the start and end of the lines covering [from, to].
func (e *Engine) lineBounds(from, to int) (int, int) {
	for from > 0 && e.buf.At(from-1) != '\n' {
		from--
	}
	return from, e.buf.LineEnd(to)
}

// String renders the text with marks bracketed by ‹ › and id ranges by « »,
// for debugging and tests.
func (e *Engine) String() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	opens := map[int]string{}
	closes := map[int]string{}
	for _, m := range e.marks {
		opens[m.From] += "‹"
		for _, r := range m.IDs {
			opens[r.From] += "«"
			closes[r.To] = "»" + closes[r.To]
		}
		closes[m.To] = closes[m.To] + "›"
	}
	var b strings.Builder
	for i := 0; i <= e.buf.Len(); i++ {
		b.WriteString(closes[i])
		b.WriteString(opens[i])
		if i < e.buf.Len() {
			b.WriteRune(e.buf.At(i))
		}
	}
	return b.String()
}

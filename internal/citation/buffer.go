package citation

// Edit replaces the runes in [From, To) with Text.
type Edit struct {
	From, To int
	Text     string
}

// Insert is an edit that inserts text at pos.
func Insert(pos int, text string) Edit { return Edit{From: pos, To: pos, Text: text} }

// Delete is an edit that removes [from, to).
func Delete(from, to int) Edit { return Edit{From: from, To: to} }

// Buffer is rune-indexed document text.
type Buffer struct {
	text []rune
}

// NewBuffer creates a buffer holding s.
func NewBuffer(s string) *Buffer {
	return &Buffer{text: []rune(s)}
}

// String returns the full text.
func (b *Buffer) String() string { return string(b.text) }

// Len returns the length in runes.
func (b *Buffer) Len() int { return len(b.text) }

// At returns the rune at i, or 0 outside the buffer.
func (b *Buffer) At(i int) rune {
	if i < 0 || i >= len(b.text) {
		return 0
	}
	return b.text[i]
}

// Slice returns the text in [from, to), clamped to the buffer.
func (b *Buffer) Slice(from, to int) string {
	from, to = b.clamp(from), b.clamp(to)
	if from >= to {
		return ""
	}
	return string(b.text[from:to])
}

func (b *Buffer) runes(from, to int) []rune {
	from, to = b.clamp(from), b.clamp(to)
	if from >= to {
		return nil
	}
	return b.text[from:to]
}

func (b *Buffer) clamp(i int) int {
	return max(0, min(i, len(b.text)))
}

// Apply performs e and returns it with its range clamped to the buffer.
func (b *Buffer) Apply(e Edit) Edit {
	e.From, e.To = b.clamp(e.From), b.clamp(e.To)
	if e.To < e.From {
		e.From, e.To = e.To, e.From
	}
	ins := []rune(e.Text)
	out := make([]rune, 0, len(b.text)-(e.To-e.From)+len(ins))
	out = append(out, b.text[:e.From]...)
	out = append(out, ins...)
	out = append(out, b.text[e.To:]...)
	b.text = out
	return e
}

// LineEnd returns the index of the newline ending the line holding pos, or
// the buffer length.
func (b *Buffer) LineEnd(pos int) int {
	for i := b.clamp(pos); i < len(b.text); i++ {
		if b.text[i] == '\n' {
			return i
		}
	}
	return len(b.text)
}

// InsertedLen is the rune length of the replacement text.
func (e Edit) InsertedLen() int {
	return len([]rune(e.Text))
}

// MapPos maps a position from before e to after it. assoc decides which
// side a position at an insertion point sticks to: negative stays before
// the inserted text, positive moves after it.
func (e Edit) MapPos(pos, assoc int) int {
	k := e.InsertedLen()
	switch {
	case pos < e.From:
		return pos
	case pos > e.To:
		return pos - (e.To - e.From) + k
	case pos == e.From && e.From == e.To:
		if assoc > 0 {
			return pos + k
		}
		return pos
	case pos == e.From:
		return pos
	case pos == e.To:
		return e.From + k
	default:
		// Inside the replaced range.
		if assoc < 0 {
			return e.From
		}
		return e.From + k
	}
}

package citation

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func typeText(e *Engine, pos int, s string) int {
	for _, r := range s {
		e.HandleTextInput(pos, string(r))
		pos++
	}
	return pos
}

func TestScan_RecognisesClosedCitations(t *testing.T) {
	e := NewEngine("As shown [@smith2020; -@doe] and [see @roe, p. 2].\nA [link](http://x) and [@open")
	marks := e.Marks()
	require.Len(t, marks, 2)
	assert.Equal(t, Valid, marks[0].Validity)
	assert.Len(t, marks[0].IDs, 2)
	assert.Equal(t, "As shown ‹[«@smith2020»; «-@doe»]› and ‹[see «@roe», p. 2]›.\nA [link](http://x) and [@open", e.String())
}

func TestScan_SkipsLinks(t *testing.T) {
	e := NewEngine("[@a](http://example.com) ![@b](img.png)")
	assert.Empty(t, e.Marks())
}

func TestMarkTruncation_SpaceInID(t *testing.T) {
	e := NewEngine("[@abc]")
	before := e.Marks()
	require.Len(t, before, 1)
	rangeID := before[0].IDs[0].ID

	e.ApplyEdit(Insert(4, " "))

	assert.Equal(t, "[@ab c]", e.Text(), "no characters are deleted")
	marks := e.Marks()
	require.Len(t, marks, 1)
	require.Len(t, marks[0].IDs, 1)
	r := marks[0].IDs[0]
	assert.Equal(t, 1, r.From)
	assert.Equal(t, 4, r.To)
	assert.Equal(t, rangeID, r.ID, "a truncated range keeps its identity")
	assert.Equal(t, "‹[«@ab» c]›", e.String())
}

func TestTyping_CreatesAndClosesCitation(t *testing.T) {
	e := NewEngine("")
	end := typeText(e, 0, "[@smith")
	marks := e.Marks()
	require.Len(t, marks, 1)
	assert.Equal(t, Partial, marks[0].Validity)
	assert.Equal(t, "‹[«@smith»›", e.String())

	typeText(e, end, "]")
	marks = e.Marks()
	require.Len(t, marks, 1)
	assert.Equal(t, Valid, marks[0].Validity)
	require.Len(t, marks[0].IDs, 1)
	assert.Equal(t, "‹[«@smith»]›", e.String())
}

func TestTyping_DeleteAtRemovesMarks(t *testing.T) {
	e := NewEngine("")
	typeText(e, 0, "[@smith]")
	require.Len(t, e.Marks(), 1)

	e.ApplyEdit(Delete(1, 2))
	assert.Equal(t, "[smith]", e.Text())
	assert.Empty(t, e.Marks(), "[smith] is not a citation")
}

func TestTyping_SecondItem(t *testing.T) {
	e := NewEngine("")
	typeText(e, 0, "[@a; @b]")
	assert.Equal(t, "‹[«@a»; «@b»]›", e.String())
}

func TestTyping_BracketBeforeExistingText(t *testing.T) {
	e := NewEngine("see @smith] now")
	assert.Empty(t, e.Marks())
	e.HandleTextInput(4, "[")
	assert.Equal(t, "see ‹[«@smith»]› now", e.String())
}

func TestTyping_ClosingBracketAfterUnmarkedText(t *testing.T) {
	e := NewEngine("x [@a")
	assert.Empty(t, e.Marks())
	e.HandleTextInput(5, "]")
	assert.Equal(t, "x ‹[«@a»]›", e.String())
}

func TestTyping_NoNestedSpans(t *testing.T) {
	e := NewEngine("[@a]")
	e.HandleTextInput(3, "[")
	assert.Equal(t, "[@a[]", e.Text())
	assert.Empty(t, e.Marks(), "an unbalanced bracket invalidates the citation")

	e = NewEngine("[@a b]")
	e.HandleTextInput(4, "@")
	marks := e.Marks()
	require.Len(t, marks, 1)
	assert.Len(t, marks[0].IDs, 2, "@ inside a span becomes an id of that span")
}

func TestTyping_NewlineEndsOpenCitation(t *testing.T) {
	e := NewEngine("")
	end := typeText(e, 0, "[@a b")
	e.HandleTextInput(end, "\n")
	marks := e.Marks()
	require.Len(t, marks, 1)
	assert.Equal(t, 5, marks[0].To)
}

func TestRevalidate_Idempotent(t *testing.T) {
	e := NewEngine("[@a; @b] text")
	before := e.Marks()
	e.ApplyEdit(Insert(13, "!"))
	e.ApplyEdit(Insert(8, ""))
	assert.Equal(t, before, e.Marks())
}

func TestRevalidate_ClosingBracketMidway(t *testing.T) {
	e := NewEngine("[@a b]")
	e.ApplyEdit(Insert(3, "]"))
	assert.Equal(t, "‹[«@a»]› b]", e.String())
}

func TestFindEnclosingBrackets(t *testing.T) {
	e := NewEngine("Note [see [a] @x] end")
	open, closeAt, ok := e.FindEnclosingBrackets(14)
	require.True(t, ok)
	assert.Equal(t, 5, open)
	assert.Equal(t, 16, closeAt)

	open, closeAt, ok = e.FindEnclosingBrackets(12)
	require.True(t, ok)
	assert.Equal(t, 10, open)
	assert.Equal(t, 12, closeAt)

	_, _, ok = e.FindEnclosingBrackets(2)
	assert.False(t, ok)

	e = NewEngine("[@a and more")
	_, closeAt, ok = e.FindEnclosingBrackets(5)
	assert.True(t, ok)
	assert.Equal(t, -1, closeAt)
}

func TestTokenAt(t *testing.T) {
	e := NewEngine("x [@smith2020; -@doe] y")

	tok, ok := e.TokenAt(8)
	require.True(t, ok)
	assert.Equal(t, "smith2020", tok.Text)
	assert.Equal(t, 4, tok.RangeStart)
	assert.Equal(t, 4, tok.Offset)

	tok, ok = e.TokenAt(20)
	require.True(t, ok)
	assert.Equal(t, "doe", tok.Text)
	assert.Equal(t, 17, tok.RangeStart)

	_, ok = e.TokenAt(0)
	assert.False(t, ok)
	_, ok = e.TokenAt(14)
	assert.False(t, ok, "between ids")
}

func TestTokenAt_EmptyToken(t *testing.T) {
	e := NewEngine("")
	typeText(e, 0, "[@")
	tok, ok := e.TokenAt(2)
	require.True(t, ok)
	assert.Equal(t, "", tok.Text)
	assert.Equal(t, 2, tok.RangeStart)
}

func TestStaleAndInsert(t *testing.T) {
	e := NewEngine("")
	end := typeText(e, 0, "[@smi")
	tok, ok := e.TokenAt(end)
	require.True(t, ok)
	stale := e.Stale(tok)
	assert.False(t, stale())

	// Edits elsewhere shift positions but keep identity.
	e.ApplyEdit(Insert(0, "Intro "))
	assert.False(t, stale())

	require.NoError(t, e.InsertCitation(tok.RangeID, "smith2020"))
	assert.Equal(t, "Intro ‹[«@smith2020»›", e.String())
	assert.True(t, stale(), "the token text changed")

	e.ApplyEdit(Delete(6, e.Len()))
	assert.ErrorIs(t, e.InsertCitation(tok.RangeID, "x"), ErrRangeGone)
	assert.ErrorIs(t, e.InsertCitation(uuid.New(), "x"), ErrRangeGone)
}

func TestPaste_DOIInsideCitation(t *testing.T) {
	e := NewEngine("")
	end := typeText(e, 0, "[@")

	var resolved string
	var at Token
	res := e.Paste(end, end, " https://doi.org/10.1234/ABC.5 ", PasteHooks{
		KnownDOI:   func(string) bool { return false },
		ResolveDOI: func(doi string, tok Token) { resolved, at = doi, tok },
	})
	assert.Equal(t, PasteDOI, res.Kind)
	assert.True(t, res.Resolved)
	assert.Equal(t, "10.1234/ABC.5", resolved)
	assert.Equal(t, "[@10.1234/ABC.5", e.Text())
	assert.Equal(t, "10.1234/ABC.5", at.Text)
	assert.NotEqual(t, uuid.Nil, at.RangeID)
}

func TestPaste_KnownDOINotResolved(t *testing.T) {
	e := NewEngine("[@a; @]")
	called := false
	res := e.Paste(6, 6, "10.1234/abc", PasteHooks{
		KnownDOI:   func(string) bool { return true },
		ResolveDOI: func(string, Token) { called = true },
	})
	assert.Equal(t, PasteDOI, res.Kind)
	assert.False(t, called)
}

func TestPaste_TextOutsideCitation(t *testing.T) {
	e := NewEngine("Intro. ")
	res := e.Paste(7, 7, "As in [@doe2019].", PasteHooks{
		ResolveDOI: func(string, Token) { t.Fatal("not a DOI paste") },
	})
	assert.Equal(t, PasteText, res.Kind)
	assert.Equal(t, "Intro. As in ‹[«@doe2019»]›.", e.String())

	res = e.Paste(0, 0, "10.1234/abc ", PasteHooks{})
	assert.Equal(t, PasteText, res.Kind, "a DOI outside a citation is plain text")
}

func TestPaste_HooksMayReadEngine(t *testing.T) {
	e := NewEngine("[@a]")
	done := make(chan bool, 1)
	go func() {
		var stale bool
		e.Paste(2, 3, "10.1234/abc", PasteHooks{
			KnownDOI: func(string) bool {
				_ = e.Marks()
				return false
			},
			ResolveDOI: func(_ string, at Token) { stale = e.Stale(at)() },
		})
		done <- stale
	}()

	select {
	case stale := <-done:
		assert.False(t, stale, "the pasted token is current when the hook runs")
	case <-time.After(2 * time.Second):
		t.Fatal("Paste did not return")
	}
	assert.Equal(t, "[@10.1234/abc]", e.Text())
}

func TestRevalidate_DeletionJoinsCitations(t *testing.T) {
	e := NewEngine("[@a] and [@b]")
	before := e.Marks()
	require.Len(t, before, 2)

	e.ApplyEdit(Delete(3, 10))

	assert.Equal(t, "[@a@b]", e.Text())
	marks := e.Marks()
	require.Len(t, marks, 1)
	assert.Equal(t, Valid, marks[0].Validity)
	assert.Equal(t, 6, marks[0].To)
	require.Len(t, marks[0].IDs, 1)
	assert.Equal(t, before[0].IDs[0].ID, marks[0].IDs[0].ID)
	assert.Equal(t, "‹[«@a»@b]›", e.String())
}

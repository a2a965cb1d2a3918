package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matsen/bipcite/internal/reference"
)

func catalogue() []reference.Entry {
	return []reference.Entry{
		{ID: "smith2020", Title: "Phylogenetics at scale",
			Authors: []reference.Author{{Family: "Smith", Given: "Jane"}},
			Issued:  reference.PartialDate{Year: 2020}},
		{ID: "doe2021", Title: "A note on Smith normal form",
			Authors: []reference.Author{{Family: "Doe", Given: "John"}},
			Issued:  reference.PartialDate{Year: 2021}},
		{ID: "godel1931", Title: "Über formal unentscheidbare Sätze",
			Authors: []reference.Author{{Family: "Gödel", Given: "Kurt"}},
			Issued:  reference.PartialDate{Year: 1931}},
		{ID: "who2019", Title: "Global report",
			Authors: []reference.Author{{Literal: "World Health Organization"}},
			Issued:  reference.PartialDate{Year: 2019}},
	}
}

func ids(results []Result) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.Entry.ID
	}
	return out
}

func TestSearch_RanksIDAndAuthorAboveTitle(t *testing.T) {
	ix := New()
	ix.Rebuild(catalogue())

	got := ids(ix.Search("smith", Options{}))
	require.NotEmpty(t, got)
	assert.Equal(t, "smith2020", got[0])
	assert.Contains(t, got, "doe2021")
}

func TestSearch_DiacriticInsensitive(t *testing.T) {
	ix := New()
	ix.Rebuild(catalogue())

	got := ids(ix.Search("GODEL", Options{}))
	require.NotEmpty(t, got)
	assert.Equal(t, "godel1931", got[0])
}

func TestSearch_AllTermsMustMatch(t *testing.T) {
	ix := New()
	ix.Rebuild(catalogue())

	got := ids(ix.Search("smith 2020", Options{}))
	assert.Equal(t, []string{"smith2020"}, got)
	assert.Empty(t, ix.Search("zzzz", Options{}))
}

func TestSearch_LiteralAuthor(t *testing.T) {
	ix := New()
	ix.Rebuild(catalogue())

	got := ids(ix.Search("world health", Options{}))
	require.NotEmpty(t, got)
	assert.Equal(t, "who2019", got[0])
}

func TestSearch_TiesByID(t *testing.T) {
	ix := New()
	ix.Rebuild([]reference.Entry{
		{ID: "b", Authors: []reference.Author{{Family: "Lee"}}},
		{ID: "a", Authors: []reference.Author{{Family: "Lee"}}},
		{ID: "c", Authors: []reference.Author{{Family: "Lee"}}},
	})
	assert.Equal(t, []string{"a", "b", "c"}, ids(ix.Search("lee", Options{})))
}

func TestSearch_EmptyQueryReturnsCatalogue(t *testing.T) {
	ix := New()
	ix.Rebuild(catalogue())

	assert.Equal(t, []string{"doe2021", "godel1931"}, ids(ix.Search("", Options{Limit: 2})))
	assert.Len(t, ix.Search("  ", Options{}), 4)
}

func TestSearch_Limit(t *testing.T) {
	ix := New()
	ix.Rebuild(catalogue())
	assert.Len(t, ix.Search("o", Options{Limit: 1}), 1)
}

func TestSearch_Exact(t *testing.T) {
	ix := New()
	ix.Rebuild(catalogue())

	got := ix.Search("smith2020", Options{Exact: true, Fields: []Field{FieldID}})
	require.Len(t, got, 1)
	assert.Equal(t, "smith2020", got[0].Entry.ID)

	assert.Empty(t, ix.Search("smith202", Options{Exact: true, Fields: []Field{FieldID}}))
	assert.Empty(t, ix.Search("Smith2020", Options{Exact: true, Fields: []Field{FieldID}}))

	got = ix.Search("gödel", Options{Exact: true, Fields: []Field{FieldFamily}})
	assert.Equal(t, []string{"godel1931"}, ids(got))
}

func TestRebuild_Replaces(t *testing.T) {
	ix := New()
	ix.Rebuild(catalogue())
	assert.Equal(t, 4, ix.Len())

	ix.Rebuild([]reference.Entry{{ID: "only"}})
	assert.Equal(t, 1, ix.Len())
	assert.Empty(t, ix.Search("smith", Options{}))
}

func TestFold(t *testing.T) {
	assert.Equal(t, "godel", Fold("Gödel"))
	assert.Equal(t, "sates", Fold("SÄtes"))
}

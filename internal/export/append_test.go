package export

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matsen/bipcite/internal/importer"
	"github.com/matsen/bipcite/internal/reference"
)

func sampleEntry() reference.Entry {
	return reference.Entry{
		ID:             "garcia2019",
		Kind:           reference.KindArticleJournal,
		Title:          "Cells & {Signals}: 50% Faster",
		ContainerTitle: "Cell",
		Authors:        []reference.Author{{Family: "García", Given: "Ana"}, {Literal: "ACME Lab"}},
		Issued:         reference.PartialDate{Year: 2019, Month: 7, Day: 2},
		DOI:            "10.1016/j.cell.2019.01.001",
		Volume:         "176",
		Page:           "12-20",
	}
}

func TestAppendEntry_RoundTrip(t *testing.T) {
	for _, name := range []string{"refs.bib", "refs.json", "refs.yaml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "sub", name)
			e := sampleEntry()

			require.NoError(t, AppendEntry(path, e))
			second := reference.Entry{ID: "other2020", Title: "Other", Issued: reference.PartialDate{Year: 2020}}
			require.NoError(t, AppendEntry(path, second))

			entries, errs := importer.ReadFile(path, name)
			require.Empty(t, errs)
			require.Len(t, entries, 2)

			got := entries[0]
			assert.Equal(t, e.ID, got.ID)
			assert.Equal(t, e.Title, got.Title)
			assert.Equal(t, e.ContainerTitle, got.ContainerTitle)
			assert.Equal(t, e.DOI, got.DOI)
			assert.Equal(t, e.Issued.Year, got.Issued.Year)
			assert.Equal(t, e.Issued.Month, got.Issued.Month)
			assert.Equal(t, e.Issued.Day, got.Issued.Day)
			assert.Equal(t, "12-20", got.Page)
			require.Len(t, got.Authors, 2)
			assert.Equal(t, "García", got.Authors[0].Family)
			assert.Equal(t, "ACME Lab", got.Authors[1].Literal)

			assert.Equal(t, "other2020", entries[1].ID)
		})
	}
}

func TestAppendEntry_Duplicate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "refs.bib")
	e := sampleEntry()
	require.NoError(t, AppendEntry(path, e))

	sameDOI := reference.Entry{ID: "different", DOI: "https://doi.org/10.1016/J.CELL.2019.01.001"}
	err := AppendEntry(path, sameDOI)
	assert.True(t, errors.Is(err, ErrDuplicate))

	sameKey := reference.Entry{ID: "garcia2019"}
	err = AppendEntry(path, sameKey)
	assert.True(t, errors.Is(err, ErrDuplicate))
}

func TestAppendEntry_KeepsBareYAMLList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "refs.yml")
	require.NoError(t, os.WriteFile(path, []byte("- id: first\n  title: First\n"), 0644))

	require.NoError(t, AppendEntry(path, reference.Entry{ID: "second", Title: "Second"}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "references:")

	entries, errs := importer.ReadFile(path, "refs.yml")
	require.Empty(t, errs)
	require.Len(t, entries, 2)
	assert.Equal(t, "second", entries[1].ID)
}

func TestAppendEntry_UnsupportedFormat(t *testing.T) {
	err := AppendEntry(filepath.Join(t.TempDir(), "refs.txt"), sampleEntry())
	assert.Error(t, err)
}

func TestIndexFile_Missing(t *testing.T) {
	idx, err := IndexFile(filepath.Join(t.TempDir(), "none.bib"))
	require.NoError(t, err)
	assert.False(t, idx.HasEntry("x", ""))
}

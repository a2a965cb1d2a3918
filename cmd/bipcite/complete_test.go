package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matsen/bipcite/internal/completion"
	"github.com/matsen/bipcite/internal/document"
)

func TestCommittedText_AddsBibliographyToFrontMatter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "paper.md")
	text := "---\nbibliography: refs.bib\n---\nSee [@smith2020a].\n"
	doc, err := document.Parse(path, text)
	require.NoError(t, err)
	doc.Bibliographies = append(doc.Bibliographies, "extra.yaml")

	out, err := committedText(text, doc, completion.CommitResult{AddedBibliography: true})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, []byte(text), 0o644))
	require.NoError(t, writeDocument(path, out))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	reopened, err := document.Parse(path, string(data))
	require.NoError(t, err)
	assert.Equal(t, []string{"refs.bib", "extra.yaml"}, reopened.Bibliographies)
	assert.Contains(t, string(data), "See [@smith2020a].")
}

func TestCommittedText_ListedBibliographyUnchanged(t *testing.T) {
	text := "---\nbibliography: refs.bib\n---\nSee [@smith2020a].\n"
	doc, err := document.Parse("paper.md", text)
	require.NoError(t, err)

	out, err := committedText(text, doc, completion.CommitResult{Bibliography: "refs.bib"})
	require.NoError(t, err)
	assert.Equal(t, text, out)
}

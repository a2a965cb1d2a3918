package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matsen/bipcite/internal/citation"
)

func TestScanCitations(t *testing.T) {
	eng := citation.NewEngine("See [@smith2020; -@lee2019, p. 3] and [@missing].\nAlso @inline and [@missing].")
	known := map[string]bool{"smith2020": true, "lee2019": true}

	resp := scanCitations(eng, func(id string) bool { return known[id] })

	require.Len(t, resp.Citations, 3)
	first := resp.Citations[0]
	assert.Equal(t, "[@smith2020; -@lee2019, p. 3]", first.Text)
	assert.Equal(t, 4, first.From)
	require.Len(t, first.IDs, 2)
	assert.Equal(t, "smith2020", first.IDs[0].ID)
	assert.True(t, first.IDs[0].Resolved)
	assert.Equal(t, "lee2019", first.IDs[1].ID)
	assert.True(t, first.IDs[1].Resolved)

	assert.Equal(t, []string{"missing"}, resp.Unresolved)
}

func TestScanCitations_Empty(t *testing.T) {
	resp := scanCitations(citation.NewEngine("no citations here"), func(string) bool { return true })
	assert.Empty(t, resp.Citations)
	assert.NotNil(t, resp.Citations)
	assert.Empty(t, resp.Unresolved)
}

func TestCiteID(t *testing.T) {
	tests := map[string]string{
		"@smith2020":  "smith2020",
		"-@smith2020": "smith2020",
		"smith2020":   "smith2020",
		"@":           "",
		"":            "",
	}
	for in, want := range tests {
		assert.Equal(t, want, citeID(in), in)
	}
}

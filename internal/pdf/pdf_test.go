package pdf

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDOIFromText(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"plain", "Published as doi:10.1038/nature12373.", "10.1038/nature12373"},
		{"url", "See https://doi.org/10.1093/sysbio/syy032)", "10.1093/sysbio/syy032"},
		{"first wins", "10.1000/first and 10.1000/second", "10.1000/first"},
		{"none", "no identifier here 10.12/short", ""},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DOIFromText(tt.text))
		})
	}
}

func TestTitleFromText(t *testing.T) {
	text := "Journal of Things, Volume 3\nShort\nA Remarkably Long Paper Title About Trees\nAuthors"
	assert.Equal(t, "A Remarkably Long Paper Title About Trees", TitleFromText(text))
	assert.Equal(t, "", TitleFromText("tiny\nlines"))
}

func TestExtractDOI_NotAPDF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fake.pdf")
	require.NoError(t, os.WriteFile(path, []byte("not a pdf"), 0o644))
	_, err := ExtractDOI(path)
	assert.Error(t, err)
}

package export

import (
	"errors"
	"os"

	"github.com/matsen/bipcite/internal/importer"
	"github.com/matsen/bipcite/internal/reference"
)

// BibIndex indexes the entries of an existing bibliography file for
// deduplication before an append.
type BibIndex struct {
	// Keys maps citation keys to true for existence check
	Keys map[string]bool
	// DOIs maps normalized DOI values to citation keys
	DOIs map[string]string
}

// NewBibIndex creates an empty index.
func NewBibIndex() *BibIndex {
	return &BibIndex{
		Keys: make(map[string]bool),
		DOIs: make(map[string]string),
	}
}

// Add records an entry in the index.
func (idx *BibIndex) Add(e reference.Entry) {
	idx.Keys[e.ID] = true
	if doi := reference.NormalizeDOI(e.DOI); doi != "" {
		idx.DOIs[doi] = e.ID
	}
}

// HasEntry returns true if the entry already exists (by DOI or key).
// DOI is the primary match; citation key is the fallback if no DOI.
func (idx *BibIndex) HasEntry(key, doi string) bool {
	if doi != "" {
		if _, exists := idx.DOIs[reference.NormalizeDOI(doi)]; exists {
			return true
		}
	}
	return idx.Keys[key]
}

// IndexFile builds an index from an existing bibliography file in any
// supported format. Returns an empty index if the file doesn't exist.
// Unparseable entries are skipped.
func IndexFile(path string) (*BibIndex, error) {
	idx := NewBibIndex()

	format, err := importer.DetectFormat(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return idx, nil
		}
		return nil, err
	}

	entries, _ := importer.Parse(format, data, path)
	for _, e := range entries {
		idx.Add(e)
	}
	return idx, nil
}

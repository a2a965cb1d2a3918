package importer

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/matsen/bipcite/internal/reference"
)

// Format identifies a bibliography file format.
type Format string

const (
	FormatBibTeX  Format = "bibtex"
	FormatCSLJSON Format = "csl-json"
	FormatCSLYAML Format = "csl-yaml"
)

// DetectFormat chooses a format from the file extension.
func DetectFormat(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".bib", ".bibtex", ".biblatex":
		return FormatBibTeX, nil
	case ".json":
		return FormatCSLJSON, nil
	case ".yaml", ".yml":
		return FormatCSLYAML, nil
	default:
		return "", fmt.Errorf("unsupported bibliography format: %s", filepath.Base(path))
	}
}

// Parse parses data in the given format.
func Parse(format Format, data []byte, providerKey string) ([]reference.Entry, []error) {
	switch format {
	case FormatBibTeX:
		return ParseBibTeX(data, providerKey)
	case FormatCSLJSON:
		return ParseCSLJSON(data, providerKey)
	case FormatCSLYAML:
		return ParseCSLYAML(data, providerKey)
	default:
		return nil, []error{fmt.Errorf("unsupported format %q", format)}
	}
}

// ReadFile reads and parses a bibliography file. A missing file is an
// error; per-entry problems are returned alongside the good entries.
func ReadFile(path, providerKey string) ([]reference.Entry, []error) {
	format, err := DetectFormat(path)
	if err != nil {
		return nil, []error{err}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, []error{fmt.Errorf("reading bibliography: %w", err)}
	}
	return Parse(format, data, providerKey)
}

// Package pdf reads the identifying metadata of a PDF: its DOI and a
// best-guess title.
package pdf

import (
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/matsen/bipcite/internal/reference"
)

// DOIPages is how many leading pages ExtractDOI searches.
const DOIPages = 3

// ExtractDOI returns the first DOI printed on the first pages of the PDF at
// path, or "" when there is none.
func ExtractDOI(path string) (string, error) {
	pages, err := pageTexts(path, DOIPages)
	if err != nil {
		return "", err
	}
	for _, text := range pages {
		if doi := DOIFromText(text); doi != "" {
			return doi, nil
		}
	}
	return "", nil
}

// DOIFromText returns the first well-formed DOI in text.
func DOIFromText(text string) string {
	// Extracted text often breaks "doi: 10.x/y" across words; the DOI
	// itself never contains whitespace.
	for _, field := range strings.Fields(text) {
		if doi := reference.FindDOI(field); doi != "" && reference.LooksLikeDOI(doi) {
			return doi
		}
	}
	return ""
}

// ExtractTitle guesses the title as the first long line of page one that
// is not running header text.
func ExtractTitle(path string) (string, error) {
	pages, err := pageTexts(path, 1)
	if err != nil || len(pages) == 0 {
		return "", err
	}
	return TitleFromText(pages[0]), nil
}

// TitleFromText applies the ExtractTitle heuristic to page text.
func TitleFromText(text string) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if len(line) > 20 && !isHeaderLine(line) {
			return line
		}
	}
	return ""
}

func pageTexts(path string, maxPages int) ([]string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer f.Close()

	if maxPages <= 0 || maxPages > r.NumPage() {
		maxPages = r.NumPage()
	}
	var pages []string
	for i := 1; i <= maxPages; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		pages = append(pages, text)
	}
	return pages, nil
}

func isHeaderLine(line string) bool {
	lower := strings.ToLower(line)
	switch {
	case strings.Contains(lower, "journal"):
		return true
	case strings.Contains(lower, "volume") && strings.Contains(lower, "issue"):
		return true
	case strings.Contains(lower, "copyright"):
		return true
	case strings.Contains(lower, "article") && strings.Contains(lower, "published"):
		return true
	}
	return false
}

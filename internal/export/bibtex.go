// Package export writes reference entries to bibliography files.
package export

import (
	"fmt"
	"strings"

	"github.com/matsen/bipcite/internal/reference"
)

// ToBibTeX converts an entry to BibLaTeX format.
func ToBibTeX(e reference.Entry) string {
	entryType := determineEntryType(e)
	var b strings.Builder

	b.WriteString(fmt.Sprintf("@%s{%s,\n", entryType, e.ID))

	if len(e.Authors) > 0 {
		b.WriteString(fmt.Sprintf("  author = {%s},\n", formatAuthors(e.Authors)))
	}

	if e.Title != "" {
		b.WriteString(fmt.Sprintf("  title = {%s},\n", escapeLatex(e.Title)))
	}
	if e.ShortTitle != "" {
		b.WriteString(fmt.Sprintf("  shorttitle = {%s},\n", escapeLatex(e.ShortTitle)))
	}

	if e.ContainerTitle != "" {
		fieldName := "journaltitle"
		switch entryType {
		case "inproceedings", "incollection":
			fieldName = "booktitle"
		case "online", "misc":
			fieldName = "organization"
		}
		b.WriteString(fmt.Sprintf("  %s = {%s},\n", fieldName, escapeLatex(e.ContainerTitle)))
	}

	if date := formatDate(e.Issued); date != "" {
		b.WriteString(fmt.Sprintf("  date = {%s},\n", date))
	}

	writeField(&b, "publisher", escapeLatex(e.Publisher))
	writeField(&b, "volume", e.Volume)
	writeField(&b, "number", e.Issue)
	writeField(&b, "pages", strings.ReplaceAll(e.Page, "-", "--"))
	writeField(&b, "doi", e.DOI)
	writeField(&b, "url", e.URL)
	writeField(&b, "issn", e.ISSN)
	writeField(&b, "isbn", e.ISBN)

	if e.Abstract != "" {
		b.WriteString(fmt.Sprintf("  abstract = {%s},\n", escapeLatex(e.Abstract)))
	}

	b.WriteString("}\n")

	return b.String()
}

// ToBibTeXList converts multiple entries to BibLaTeX format.
func ToBibTeXList(entries []reference.Entry) string {
	var out []string
	for _, e := range entries {
		out = append(out, ToBibTeX(e))
	}
	return strings.Join(out, "\n")
}

func writeField(b *strings.Builder, name, value string) {
	if value == "" {
		return
	}
	b.WriteString(fmt.Sprintf("  %s = {%s},\n", name, value))
}

var entryTypes = map[string]string{
	reference.KindArticle:         "article",
	reference.KindArticleJournal:  "article",
	reference.KindBook:            "book",
	reference.KindChapter:         "incollection",
	reference.KindPaperConference: "inproceedings",
	reference.KindReport:          "report",
	reference.KindThesis:          "thesis",
	reference.KindWebpage:         "online",
	reference.KindDataset:         "dataset",
	reference.KindSoftware:        "software",
	reference.KindLegalCase:       "jurisdiction",
}

// determineEntryType returns the BibLaTeX entry type for an entry.
// Unknown kinds fall back on the container title, then @misc.
func determineEntryType(e reference.Entry) string {
	if t, ok := entryTypes[e.Kind]; ok {
		return t
	}

	venue := strings.ToLower(e.ContainerTitle)

	// Conference proceedings
	if strings.Contains(venue, "proceedings") ||
		strings.Contains(venue, "conference") ||
		strings.Contains(venue, "workshop") ||
		strings.Contains(venue, "symposium") {
		return "inproceedings"
	}

	if venue != "" {
		return "article"
	}
	return "misc"
}

// formatAuthors formats authors in BibTeX style: "Last, First and Last, First".
// Literal names are braced so they are not split.
func formatAuthors(authors []reference.Author) string {
	var formatted []string
	for _, a := range authors {
		switch {
		case a.Family == "" && a.Literal != "":
			formatted = append(formatted, "{"+escapeLatex(a.Literal)+"}")
		case a.Given != "":
			formatted = append(formatted, fmt.Sprintf("%s, %s", escapeLatex(a.Family), escapeLatex(a.Given)))
		default:
			formatted = append(formatted, escapeLatex(a.Family))
		}
	}
	return strings.Join(formatted, " and ")
}

func formatDate(d reference.PartialDate) string {
	switch {
	case d.Year == 0:
		return d.Raw
	case d.Month == 0:
		return fmt.Sprintf("%04d", d.Year)
	case d.Day == 0:
		return fmt.Sprintf("%04d-%02d", d.Year, d.Month)
	default:
		return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
	}
}

// escapeLatex escapes special LaTeX characters.
func escapeLatex(s string) string {
	replacer := strings.NewReplacer(
		"&", `\&`,
		"%", `\%`,
		"$", `\$`,
		"#", `\#`,
		"_", `\_`,
		"{", `\{`,
		"}", `\}`,
		"~", `\textasciitilde{}`,
		"^", `\textasciicircum{}`,
	)
	return replacer.Replace(s)
}

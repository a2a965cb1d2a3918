package export

import (
	"strings"
	"testing"

	"github.com/matsen/bipcite/internal/reference"
)

func TestToBibTeX_BasicArticle(t *testing.T) {
	e := reference.Entry{
		ID:    "smith2026",
		Kind:  reference.KindArticleJournal,
		DOI:   "10.1234/test",
		Title: "Test Paper Title",
		Authors: []reference.Author{
			{Given: "John", Family: "Smith"},
			{Given: "Jane", Family: "Doe"},
		},
		Abstract:       "This is the abstract",
		ContainerTitle: "Nature",
		Issued:         reference.PartialDate{Year: 2026, Month: 3},
		Page:           "1-10",
	}

	got := ToBibTeX(e)

	for _, want := range []string{
		"@article{smith2026,",
		`author = {Smith, John and Doe, Jane}`,
		`title = {Test Paper Title}`,
		`journaltitle = {Nature}`,
		`date = {2026-03}`,
		`pages = {1--10}`,
		`doi = {10.1234/test}`,
		`abstract = {This is the abstract}`,
	} {
		if !strings.Contains(got, want) {
			t.Errorf("ToBibTeX() missing %q, got:\n%s", want, got)
		}
	}
	if !strings.HasSuffix(got, "}\n") {
		t.Errorf("ToBibTeX() should end with }\\n, got:\n%s", got)
	}
}

func TestToBibTeX_Inproceedings(t *testing.T) {
	e := reference.Entry{
		ID:             "lee2024",
		Kind:           reference.KindPaperConference,
		Title:          "Conference Paper",
		ContainerTitle: "Proceedings of NeurIPS",
		Issued:         reference.PartialDate{Year: 2024},
	}

	got := ToBibTeX(e)
	if !strings.HasPrefix(got, "@inproceedings{lee2024,") {
		t.Errorf("expected @inproceedings, got:\n%s", got)
	}
	if !strings.Contains(got, `booktitle = {Proceedings of NeurIPS}`) {
		t.Errorf("expected booktitle field, got:\n%s", got)
	}
	if !strings.Contains(got, `date = {2024}`) {
		t.Errorf("expected year-only date, got:\n%s", got)
	}
}

func TestDetermineEntryType(t *testing.T) {
	tests := []struct {
		kind  string
		venue string
		want  string
	}{
		{reference.KindBook, "", "book"},
		{reference.KindChapter, "Edited Volume", "incollection"},
		{reference.KindWebpage, "", "online"},
		{reference.KindDataset, "", "dataset"},
		{"", "Nature", "article"},
		{"", "International Conference on Machine Learning", "inproceedings"},
		{"", "Workshop on AI Safety", "inproceedings"},
		{"post-weblog", "", "misc"},
		{"", "", "misc"},
	}

	for _, tt := range tests {
		t.Run(tt.kind+"/"+tt.venue, func(t *testing.T) {
			got := determineEntryType(reference.Entry{Kind: tt.kind, ContainerTitle: tt.venue})
			if got != tt.want {
				t.Errorf("determineEntryType(%q, %q) = %q, want %q", tt.kind, tt.venue, got, tt.want)
			}
		})
	}
}

func TestFormatAuthors(t *testing.T) {
	tests := []struct {
		name    string
		authors []reference.Author
		want    string
	}{
		{
			name:    "single author",
			authors: []reference.Author{{Given: "John", Family: "Smith"}},
			want:    "Smith, John",
		},
		{
			name: "two authors",
			authors: []reference.Author{
				{Given: "John", Family: "Smith"},
				{Given: "Jane", Family: "Doe"},
			},
			want: "Smith, John and Doe, Jane",
		},
		{
			name:    "family only",
			authors: []reference.Author{{Family: "Plato"}},
			want:    "Plato",
		},
		{
			name: "organisation",
			authors: []reference.Author{
				{Given: "John", Family: "Smith"},
				{Literal: "World Health Organization"},
			},
			want: "Smith, John and {World Health Organization}",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := formatAuthors(tt.authors)
			if got != tt.want {
				t.Errorf("formatAuthors() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEscapeLatex(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"plain text", "plain text"},
		{"100% effective", `100\% effective`},
		{"A & B", `A \& B`},
		{"$100 price", `\$100 price`},
		{"section #1", `section \#1`},
		{"under_score", `under\_score`},
		{"{braces}", `\{braces\}`},
		{"test~tilde", `test\textasciitilde{}tilde`},
		{"x^2", `x\textasciicircum{}2`},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := escapeLatex(tt.input)
			if got != tt.want {
				t.Errorf("escapeLatex(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestToBibTeX_OptionalFields(t *testing.T) {
	e := reference.Entry{ID: "minimal", Title: "Minimal Paper"}

	got := ToBibTeX(e)
	for _, absent := range []string{"doi =", "abstract =", "date =", "author ="} {
		if strings.Contains(got, absent) {
			t.Errorf("ToBibTeX() should not contain %q, got:\n%s", absent, got)
		}
	}
}

func TestToBibTeXList(t *testing.T) {
	entries := []reference.Entry{
		{ID: "a2020", Title: "A"},
		{ID: "b2021", Title: "B"},
	}
	got := ToBibTeXList(entries)
	if strings.Count(got, "@misc{") != 2 {
		t.Errorf("expected two entries, got:\n%s", got)
	}
	if ToBibTeXList(nil) != "" {
		t.Error("ToBibTeXList(nil) should be empty")
	}
}

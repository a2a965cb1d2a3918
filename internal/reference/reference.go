// Package reference defines the core domain types for bibliographic entries.
package reference

import "strings"

// Entry represents one citable work in the aggregate catalogue.
// Entries are replaced wholesale when a provider reloads; they are never
// patched in place once published to the search index.
type Entry struct {
	// Identity
	ID          string `json:"id"`                 // Citation key
	ProviderKey string `json:"provider,omitempty"` // Provider that produced it
	Kind        string `json:"type,omitempty"`     // Open vocabulary (CSL types)
	DOI         string `json:"doi,omitempty"`      // Primary deduplication key
	URL         string `json:"url,omitempty"`
	ISSN        string `json:"issn,omitempty"`
	ISBN        string `json:"isbn,omitempty"`

	// Metadata
	Title          string      `json:"title,omitempty"`
	ContainerTitle string      `json:"container_title,omitempty"`
	ShortTitle     string      `json:"short_title,omitempty"`
	Authors        []Author    `json:"authors,omitempty"`
	Issued         PartialDate `json:"issued,omitempty"`
	Abstract       string      `json:"abstract,omitempty"`
	Publisher      string      `json:"publisher,omitempty"`
	Volume         string      `json:"volume,omitempty"`
	Issue          string      `json:"issue,omitempty"`
	Page           string      `json:"page,omitempty"`

	// Collections lists the provider collection keys the entry belongs to.
	Collections []string `json:"collections,omitempty"`
}

// Common entry kinds. Remote providers may introduce others.
const (
	KindArticle         = "article"
	KindArticleJournal  = "article-journal"
	KindBook            = "book"
	KindChapter         = "chapter"
	KindPaperConference = "paper-conference"
	KindReport          = "report"
	KindThesis          = "thesis"
	KindWebpage         = "webpage"
	KindDataset         = "dataset"
	KindLegalCase       = "legal_case"
	KindSoftware        = "software"
)

// Collection is a named grouping of entries inside a provider.
type Collection struct {
	Key       string `json:"key"`
	Name      string `json:"name"`
	ParentKey string `json:"parent_key,omitempty"`
}

// SameSource reports whether two entries describe the same logical work.
// DOIs are compared case-insensitively when both are present; otherwise
// the citation IDs must match exactly. No other field contributes.
func SameSource(a, b Entry) bool {
	if a.DOI != "" && b.DOI != "" {
		return NormalizeDOI(a.DOI) == NormalizeDOI(b.DOI)
	}
	return a.ID == b.ID
}

// FirstAuthor returns the first author, or false if there is none.
func (e Entry) FirstAuthor() (Author, bool) {
	if len(e.Authors) == 0 {
		return Author{}, false
	}
	return e.Authors[0], true
}

// AuthorsText joins author display names with ", ".
func (e Entry) AuthorsText() string {
	names := make([]string, 0, len(e.Authors))
	for _, a := range e.Authors {
		if n := a.Name(); n != "" {
			names = append(names, n)
		}
	}
	return strings.Join(names, ", ")
}

// FindByID searches for an entry by citation ID.
func FindByID(entries []Entry, id string) (int, bool) {
	for i, e := range entries {
		if e.ID == id {
			return i, true
		}
	}
	return -1, false
}

// FindByDOI searches for an entry by DOI, ignoring case and URL prefixes.
func FindByDOI(entries []Entry, doi string) (int, bool) {
	doi = NormalizeDOI(doi)
	if doi == "" {
		return -1, false
	}
	for i, e := range entries {
		if e.DOI != "" && NormalizeDOI(e.DOI) == doi {
			return i, true
		}
	}
	return -1, false
}

// IDSet returns the set of citation IDs present in entries.
func IDSet(entries []Entry) map[string]bool {
	ids := make(map[string]bool, len(entries))
	for _, e := range entries {
		ids[e.ID] = true
	}
	return ids
}

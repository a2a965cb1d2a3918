// Package csl maps between CSL-JSON/CSL-YAML items and reference entries.
//
// Only the fields the catalogue uses are modelled. Unknown fields are
// ignored on read.
package csl

import (
	"strings"

	"github.com/matsen/bipcite/internal/reference"
)

// Item represents one item of CSL data.
type Item struct {
	ID             string     `json:"id" yaml:"id"`
	Type           string     `json:"type,omitempty" yaml:"type,omitempty"`
	Title          Text       `json:"title,omitempty" yaml:"title,omitempty"`
	TitleShort     Text       `json:"title-short,omitempty" yaml:"title-short,omitempty"`
	ContainerTitle Text       `json:"container-title,omitempty" yaml:"container-title,omitempty"`
	Author         []Name     `json:"author,omitempty" yaml:"author,omitempty"`
	Editor         []Name     `json:"editor,omitempty" yaml:"editor,omitempty"`
	Issued         *Date      `json:"issued,omitempty" yaml:"issued,omitempty"`
	DOI            string     `json:"DOI,omitempty" yaml:"DOI,omitempty"`
	URL            string     `json:"URL,omitempty" yaml:"URL,omitempty"`
	ISSN           Text       `json:"ISSN,omitempty" yaml:"ISSN,omitempty"`
	ISBN           Text       `json:"ISBN,omitempty" yaml:"ISBN,omitempty"`
	Abstract       string     `json:"abstract,omitempty" yaml:"abstract,omitempty"`
	Publisher      string     `json:"publisher,omitempty" yaml:"publisher,omitempty"`
	Volume         FlexString `json:"volume,omitempty" yaml:"volume,omitempty"`
	Issue          FlexString `json:"issue,omitempty" yaml:"issue,omitempty"`
	Page           FlexString `json:"page,omitempty" yaml:"page,omitempty"`
}

// Name represents a person's name in CSL format.
type Name struct {
	Family  string `json:"family,omitempty" yaml:"family,omitempty"`
	Given   string `json:"given,omitempty" yaml:"given,omitempty"`
	Literal string `json:"literal,omitempty" yaml:"literal,omitempty"`
	// Name is used by Crossref for organisational authors.
	Name string `json:"name,omitempty" yaml:"-"`
}

// ToEntry converts a CSL item to a reference entry owned by providerKey.
func (it Item) ToEntry(providerKey string) reference.Entry {
	e := reference.Entry{
		ID:             strings.TrimSpace(it.ID),
		ProviderKey:    providerKey,
		Kind:           it.Type,
		Title:          it.Title.String(),
		ShortTitle:     it.TitleShort.String(),
		ContainerTitle: it.ContainerTitle.String(),
		DOI:            reference.StripDOIPrefix(it.DOI),
		URL:            it.URL,
		ISSN:           it.ISSN.String(),
		ISBN:           it.ISBN.String(),
		Abstract:       it.Abstract,
		Publisher:      it.Publisher,
		Volume:         string(it.Volume),
		Issue:          string(it.Issue),
		Page:           string(it.Page),
	}

	names := it.Author
	if len(names) == 0 {
		names = it.Editor
	}
	for _, n := range names {
		a := reference.Author{Family: n.Family, Given: n.Given, Literal: n.Literal}
		if a.Literal == "" && a.Family == "" && n.Name != "" {
			a.Literal = n.Name
		}
		e.Authors = append(e.Authors, a)
	}

	if it.Issued != nil {
		e.Issued = it.Issued.Partial()
	}
	return e
}

// FromEntry converts a reference entry to a CSL item.
func FromEntry(e reference.Entry) Item {
	it := Item{
		ID:             e.ID,
		Type:           e.Kind,
		Title:          Text(e.Title),
		TitleShort:     Text(e.ShortTitle),
		ContainerTitle: Text(e.ContainerTitle),
		DOI:            e.DOI,
		URL:            e.URL,
		ISSN:           Text(e.ISSN),
		ISBN:           Text(e.ISBN),
		Abstract:       e.Abstract,
		Publisher:      e.Publisher,
		Volume:         FlexString(e.Volume),
		Issue:          FlexString(e.Issue),
		Page:           FlexString(e.Page),
	}
	for _, a := range e.Authors {
		it.Author = append(it.Author, Name{Family: a.Family, Given: a.Given, Literal: a.Literal})
	}
	if !e.Issued.IsZero() {
		it.Issued = FromPartial(e.Issued)
	}
	return it
}

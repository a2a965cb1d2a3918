// Package datacite searches the DataCite REST API (datasets, software,
// preprints registered outside Crossref).
package datacite

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/matsen/bipcite/internal/csl"
	"github.com/matsen/bipcite/internal/logging"
	"github.com/matsen/bipcite/internal/provider"
	"github.com/matsen/bipcite/internal/provider/remote"
	"github.com/matsen/bipcite/internal/reference"
)

const (
	// Key identifies the provider.
	Key = "datacite"

	// BaseURL is the public DataCite REST API.
	BaseURL = "https://api.datacite.org"

	// DefaultPageSize is the number of records requested per search.
	DefaultPageSize = 20
)

// Provider is a search-only DataCite client.
type Provider struct {
	client   *remote.Client
	pageSize int
	logger   *zap.Logger
}

// New creates a DataCite provider using client.
func New(client *remote.Client, logger *zap.Logger) *Provider {
	return &Provider{client: client, pageSize: DefaultPageSize, logger: logging.OrNop(logger)}
}

// Key returns "datacite".
func (p *Provider) Key() string { return Key }

type doisResponse struct {
	Data []struct {
		ID         string     `json:"id"`
		Attributes attributes `json:"attributes"`
	} `json:"data"`
}

type attributes struct {
	DOI    string `json:"doi"`
	URL    string `json:"url"`
	Titles []struct {
		Title     string `json:"title"`
		TitleType string `json:"titleType"`
	} `json:"titles"`
	Creators        []creator       `json:"creators"`
	Publisher       json.RawMessage `json:"publisher"`
	PublicationYear csl.FlexString  `json:"publicationYear"`
	Container       struct {
		Title string `json:"title"`
	} `json:"container"`
	Types struct {
		ResourceTypeGeneral string `json:"resourceTypeGeneral"`
		Citeproc            string `json:"citeproc"`
	} `json:"types"`
}

type creator struct {
	Name       string `json:"name"`
	NameType   string `json:"nameType"`
	GivenName  string `json:"givenName"`
	FamilyName string `json:"familyName"`
}

// Search queries DOIs matching term.
func (p *Provider) Search(ctx context.Context, term string) provider.SearchResult {
	term = strings.TrimSpace(term)
	if term == "" {
		return provider.SearchResult{Status: provider.StatusNotFound, Message: "Empty query"}
	}

	q := url.Values{}
	q.Set("query", term)
	q.Set("page[size]", strconv.Itoa(p.pageSize))

	var resp doisResponse
	if err := p.client.GetJSON(ctx, "dois", q, &resp); err != nil {
		p.logger.Debug("datacite search failed", zap.String("term", term), zap.Error(err))
		return provider.ResultFromError("DataCite", err)
	}

	items := make([]provider.Candidate, 0, len(resp.Data))
	for _, d := range resp.Data {
		e := d.Attributes.toEntry()
		if e.DOI == "" {
			e.DOI = d.ID
		}
		items = append(items, provider.Candidate{Provider: Key, Remote: true, Entry: e})
	}
	if len(items) == 0 {
		return provider.SearchResult{Status: provider.StatusNotFound, Message: "No results from DataCite"}
	}
	return provider.SearchResult{Status: provider.StatusOK, Items: items}
}

func (a attributes) toEntry() reference.Entry {
	e := reference.Entry{
		ProviderKey:    Key,
		Kind:           kind(a.Types.Citeproc, a.Types.ResourceTypeGeneral),
		DOI:            a.DOI,
		URL:            a.URL,
		ContainerTitle: a.Container.Title,
		Publisher:      publisherName(a.Publisher),
		Issued:         reference.ParsePartialDate(string(a.PublicationYear)),
	}
	for _, t := range a.Titles {
		if t.TitleType == "" && e.Title == "" {
			e.Title = remote.StripMarkup(t.Title)
		}
	}
	if e.Title == "" && len(a.Titles) > 0 {
		e.Title = remote.StripMarkup(a.Titles[0].Title)
	}

	for _, c := range a.Creators {
		switch {
		case c.NameType == "Organizational":
			e.Authors = append(e.Authors, reference.Author{Literal: c.Name})
		case c.FamilyName != "":
			e.Authors = append(e.Authors, reference.Author{Family: c.FamilyName, Given: c.GivenName})
		case c.Name != "":
			e.Authors = append(e.Authors, reference.ParseAuthorName(c.Name))
		}
	}
	return e
}

// publisherName accepts both the legacy string form and the newer
// {"name": ...} object.
func publisherName(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var obj struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj.Name
	}
	return ""
}

func kind(citeproc, general string) string {
	if citeproc != "" && citeproc != "article" {
		return citeproc
	}
	switch strings.ToLower(general) {
	case "dataset":
		return reference.KindDataset
	case "software":
		return reference.KindSoftware
	case "text", "journalarticle":
		return reference.KindArticleJournal
	case "preprint":
		return reference.KindArticle
	case "dissertation":
		return reference.KindThesis
	case "report":
		return reference.KindReport
	case "book":
		return reference.KindBook
	case "bookchapter":
		return reference.KindChapter
	}
	if citeproc != "" {
		return citeproc
	}
	return reference.KindArticle
}

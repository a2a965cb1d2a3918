// Package pubmed searches PubMed through the NCBI E-utilities.
package pubmed

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/matsen/bipcite/internal/logging"
	"github.com/matsen/bipcite/internal/provider"
	"github.com/matsen/bipcite/internal/provider/remote"
	"github.com/matsen/bipcite/internal/reference"
)

const (
	// Key identifies the provider.
	Key = "pubmed"

	// BaseURL is the E-utilities endpoint.
	BaseURL = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils"

	// DefaultMax is the number of PMIDs fetched per search.
	DefaultMax = 20
)

// Provider is a search-only PubMed client: ESearch for PMIDs, then one
// batched EFetch for their metadata.
type Provider struct {
	client *remote.Client
	apiKey string
	max    int
	logger *zap.Logger
}

// New creates a PubMed provider. apiKey may be empty.
func New(client *remote.Client, apiKey string, logger *zap.Logger) *Provider {
	return &Provider{client: client, apiKey: apiKey, max: DefaultMax, logger: logging.OrNop(logger)}
}

// Key returns "pubmed".
func (p *Provider) Key() string { return Key }

// Search queries PubMed for term.
func (p *Provider) Search(ctx context.Context, term string) provider.SearchResult {
	term = strings.TrimSpace(term)
	if term == "" {
		return provider.SearchResult{Status: provider.StatusNotFound, Message: "Empty query"}
	}
	log := p.logger.With(zap.String("term", term))

	ids, err := p.searchIDs(ctx, term)
	if err != nil {
		log.Debug("pubmed esearch failed", zap.Error(err))
		return provider.ResultFromError("PubMed", err)
	}
	if len(ids) == 0 {
		return provider.SearchResult{Status: provider.StatusNotFound, Message: "No results from PubMed"}
	}

	entries, err := p.fetch(ctx, ids)
	if err != nil {
		log.Debug("pubmed efetch failed", zap.Error(err))
		return provider.ResultFromError("PubMed", err)
	}

	items := make([]provider.Candidate, 0, len(entries))
	for _, e := range entries {
		items = append(items, provider.Candidate{Provider: Key, Remote: true, Entry: e})
	}
	return provider.SearchResult{Status: provider.StatusOK, Items: items}
}

func (p *Provider) params() url.Values {
	q := url.Values{}
	q.Set("db", "pubmed")
	if p.apiKey != "" {
		q.Set("api_key", p.apiKey)
	}
	return q
}

func (p *Provider) searchIDs(ctx context.Context, term string) ([]string, error) {
	q := p.params()
	q.Set("term", term)
	q.Set("retmode", "json")
	q.Set("retmax", strconv.Itoa(p.max))

	var resp esearchResponse
	if err := p.client.GetJSON(ctx, "esearch.fcgi", q, &resp); err != nil {
		return nil, err
	}
	return resp.ESearchResult.IDList, nil
}

func (p *Provider) fetch(ctx context.Context, ids []string) ([]reference.Entry, error) {
	q := p.params()
	q.Set("id", strings.Join(ids, ","))
	q.Set("retmode", "xml")

	var set articleSet
	if err := p.client.GetXML(ctx, "efetch.fcgi", q, &set); err != nil {
		return nil, err
	}

	entries := make([]reference.Entry, 0, len(set.Articles))
	for i := range set.Articles {
		entries = append(entries, set.Articles[i].toEntry())
	}
	return entries, nil
}

func (a *article) toEntry() reference.Entry {
	art := a.MedlineCitation.Article
	e := reference.Entry{
		ProviderKey:    Key,
		Kind:           reference.KindArticleJournal,
		Title:          strings.TrimSuffix(remote.StripMarkup(art.Title), "."),
		ContainerTitle: art.Journal.Title,
		ISSN:           art.Journal.ISSN,
		Volume:         art.Journal.JournalIssue.Volume,
		Issue:          art.Journal.JournalIssue.Issue,
		Page:           art.Pagination.MedlinePgn,
		Abstract:       strings.Join(art.Abstract.Text, "\n"),
	}
	if pmid := a.MedlineCitation.PMID; pmid != "" {
		e.URL = "https://pubmed.ncbi.nlm.nih.gov/" + pmid + "/"
	}

	for _, au := range art.Authors {
		switch {
		case au.CollectiveName != "":
			e.Authors = append(e.Authors, reference.Author{Literal: au.CollectiveName})
		case au.LastName != "":
			given := au.ForeName
			if given == "" {
				given = au.Initials
			}
			e.Authors = append(e.Authors, reference.Author{Family: au.LastName, Given: given})
		}
	}

	for _, id := range a.PubmedData.ArticleIDs {
		if id.IDType == "doi" {
			e.DOI = strings.TrimSpace(id.Value)
		}
	}
	if e.DOI == "" {
		for _, loc := range art.ELocationID {
			if loc.IDType == "doi" {
				e.DOI = strings.TrimSpace(loc.Value)
			}
		}
	}

	e.Issued = pubDate(art.Journal.JournalIssue.PubDate.Year,
		art.Journal.JournalIssue.PubDate.Month,
		art.Journal.JournalIssue.PubDate.Day,
		art.Journal.JournalIssue.PubDate.MedlineDate)
	return e
}

var months = map[string]int{
	"jan": 1, "feb": 2, "mar": 3, "apr": 4, "may": 5, "jun": 6,
	"jul": 7, "aug": 8, "sep": 9, "oct": 10, "nov": 11, "dec": 12,
}

// pubDate builds a partial date from PubMed's Year/Month/Day, where Month
// may be a name ("Jul") or a number. MedlineDate ("2019 Jul-Aug") is kept raw.
func pubDate(year, month, day, medline string) reference.PartialDate {
	y, err := strconv.Atoi(year)
	if err != nil {
		return reference.ParsePartialDate(medline)
	}
	d := reference.PartialDate{Year: y}
	if m, ok := months[strings.ToLower(month)]; ok {
		d.Month = m
	} else if m, err := strconv.Atoi(month); err == nil && m >= 1 && m <= 12 {
		d.Month = m
	}
	if dd, err := strconv.Atoi(day); err == nil && d.Month > 0 && dd >= 1 && dd <= 31 {
		d.Day = dd
	}
	return d
}

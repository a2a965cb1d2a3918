// Package crossref searches the Crossref works API.
package crossref

import (
	"context"
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
	Key = "crossref"

	// BaseURL is the public Crossref REST API.
	BaseURL = "https://api.crossref.org"

	// DefaultRows is the number of works requested per search.
	DefaultRows = 20
)

var selectFields = strings.Join([]string{
	"DOI", "title", "short-title", "author", "editor", "issued", "published-print",
	"published-online", "type", "container-title", "volume", "issue", "page",
	"publisher", "ISSN", "ISBN", "URL",
}, ",")

// Provider is a search-only Crossref client.
type Provider struct {
	client *remote.Client
	mailto string
	rows   int
	logger *zap.Logger
}

// Option configures a Provider.
type Option func(*Provider)

// WithMailto sets the contact address for Crossref's polite pool.
func WithMailto(addr string) Option {
	return func(p *Provider) { p.mailto = addr }
}

// WithRows sets the number of results requested.
func WithRows(n int) Option {
	return func(p *Provider) {
		if n > 0 {
			p.rows = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Provider) { p.logger = logging.OrNop(l) }
}

// New creates a Crossref provider using client.
func New(client *remote.Client, opts ...Option) *Provider {
	p := &Provider{client: client, rows: DefaultRows, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Key returns "crossref".
func (p *Provider) Key() string { return Key }

type worksResponse struct {
	Status  string `json:"status"`
	Message struct {
		TotalResults int    `json:"total-results"`
		Items        []work `json:"items"`
	} `json:"message"`
}

type work struct {
	DOI             string         `json:"DOI"`
	Title           csl.Text       `json:"title"`
	ShortTitle      csl.Text       `json:"short-title"`
	Author          []csl.Name     `json:"author"`
	Editor          []csl.Name     `json:"editor"`
	Issued          *csl.Date      `json:"issued"`
	PublishedPrint  *csl.Date      `json:"published-print"`
	PublishedOnline *csl.Date      `json:"published-online"`
	Type            string         `json:"type"`
	ContainerTitle  csl.Text       `json:"container-title"`
	Volume          csl.FlexString `json:"volume"`
	Issue           csl.FlexString `json:"issue"`
	Page            csl.FlexString `json:"page"`
	Publisher       string         `json:"publisher"`
	ISSN            csl.Text       `json:"ISSN"`
	ISBN            csl.Text       `json:"ISBN"`
	URL             string         `json:"URL"`
}

// Search queries works matching term.
func (p *Provider) Search(ctx context.Context, term string) provider.SearchResult {
	term = strings.TrimSpace(term)
	if term == "" {
		return provider.SearchResult{Status: provider.StatusNotFound, Message: "Empty query"}
	}

	q := url.Values{}
	q.Set("query.bibliographic", term)
	q.Set("rows", strconv.Itoa(p.rows))
	q.Set("select", selectFields)
	if p.mailto != "" {
		q.Set("mailto", p.mailto)
	}

	var resp worksResponse
	if err := p.client.GetJSON(ctx, "works", q, &resp); err != nil {
		p.logger.Debug("crossref search failed", zap.String("term", term), zap.Error(err))
		return provider.ResultFromError("Crossref", err)
	}

	items := make([]provider.Candidate, 0, len(resp.Message.Items))
	for _, w := range resp.Message.Items {
		items = append(items, provider.Candidate{
			Provider: Key,
			Remote:   true,
			Entry:    w.toEntry(),
		})
	}
	if len(items) == 0 {
		return provider.SearchResult{Status: provider.StatusNotFound, Message: "No results from Crossref"}
	}
	return provider.SearchResult{Status: provider.StatusOK, Items: items}
}

func (w work) toEntry() reference.Entry {
	it := csl.Item{
		Type:           Kind(w.Type),
		Title:          csl.Text(remote.StripMarkup(w.Title.String())),
		TitleShort:     w.ShortTitle,
		ContainerTitle: w.ContainerTitle,
		Author:         w.Author,
		Editor:         w.Editor,
		Issued:         firstDate(w.Issued, w.PublishedPrint, w.PublishedOnline),
		DOI:            w.DOI,
		URL:            w.URL,
		ISSN:           w.ISSN,
		ISBN:           w.ISBN,
		Publisher:      w.Publisher,
		Volume:         w.Volume,
		Issue:          w.Issue,
		Page:           w.Page,
	}
	return it.ToEntry(Key)
}

func firstDate(dates ...*csl.Date) *csl.Date {
	for _, d := range dates {
		if d != nil && !d.Partial().IsZero() {
			return d
		}
	}
	return nil
}

var kinds = map[string]string{
	"journal-article":     reference.KindArticleJournal,
	"proceedings-article": reference.KindPaperConference,
	"book-chapter":        reference.KindChapter,
	"book-section":        reference.KindChapter,
	"book-part":           reference.KindChapter,
	"book":                reference.KindBook,
	"monograph":           reference.KindBook,
	"edited-book":         reference.KindBook,
	"reference-book":      reference.KindBook,
	"report":              reference.KindReport,
	"dissertation":        reference.KindThesis,
	"dataset":             reference.KindDataset,
	"posted-content":      reference.KindArticle,
}

// Kind maps a Crossref work type to a CSL kind. Unknown types pass through.
func Kind(t string) string {
	if k, ok := kinds[t]; ok {
		return k
	}
	return t
}

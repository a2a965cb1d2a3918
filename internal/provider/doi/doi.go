// Package doi resolves DOIs to CSL metadata through content negotiation.
package doi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/matsen/bipcite/internal/csl"
	"github.com/matsen/bipcite/internal/doicache"
	"github.com/matsen/bipcite/internal/logging"
	"github.com/matsen/bipcite/internal/provider"
	"github.com/matsen/bipcite/internal/provider/remote"
	"github.com/matsen/bipcite/internal/reference"
)

const (
	// Key identifies the provider.
	Key = "doi"

	// BaseURL is the DOI resolver.
	BaseURL = "https://doi.org"

	// CSLMediaType requests CSL-JSON from the registration agency.
	CSLMediaType = "application/vnd.citationstyles.csl+json"
)

// Result is the outcome of resolving one DOI.
type Result struct {
	Status  provider.Status
	Entry   reference.Entry
	Message string
	Err     error
	// Cached is set when the entry came from the cache.
	Cached bool
}

// Provider resolves DOIs. It doubles as a Searcher that answers only
// DOI-shaped terms.
type Provider struct {
	client *remote.Client
	cache  doicache.Cache
	logger *zap.Logger
}

// New creates a DOI provider. cache may be nil.
func New(client *remote.Client, cache doicache.Cache, logger *zap.Logger) *Provider {
	return &Provider{client: client, cache: cache, logger: logging.OrNop(logger)}
}

// Key returns "doi".
func (p *Provider) Key() string { return Key }

// Cached returns a cached resolution without touching the network.
func (p *Provider) Cached(ctx context.Context, doi string) (reference.Entry, bool) {
	if p.cache == nil {
		return reference.Entry{}, false
	}
	e, ok, err := p.cache.Get(ctx, doi)
	if err != nil {
		p.logger.Warn("doi cache read failed", zap.String("doi", doi), zap.Error(err))
		return reference.Entry{}, false
	}
	return e, ok
}

// FetchCSL resolves doi, consulting the cache first. timeoutHint bounds the
// network call when positive.
func (p *Provider) FetchCSL(ctx context.Context, doi string, timeoutHint time.Duration) Result {
	doi = reference.StripDOIPrefix(doi)
	if !reference.LooksLikeDOI(doi) {
		return Result{Status: provider.StatusNotFound, Message: fmt.Sprintf("%q is not a DOI", doi)}
	}

	if e, ok := p.Cached(ctx, doi); ok {
		return Result{Status: provider.StatusOK, Entry: e, Cached: true}
	}

	if timeoutHint > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeoutHint)
		defer cancel()
	}

	resp, err := p.client.Get(ctx, escapePath(doi), nil, http.Header{"Accept": {CSLMediaType}})
	if err != nil {
		status := provider.Classify(err)
		return Result{Status: status, Message: provider.Message("DOI lookup", status, err), Err: err}
	}

	var item csl.Item
	if err := json.Unmarshal(resp.Body, &item); err != nil {
		err = fmt.Errorf("%w: doi: %v", provider.ErrInvalidResponse, err)
		return Result{Status: provider.StatusError, Message: provider.Message("DOI lookup", provider.StatusError, err), Err: err}
	}

	e := item.ToEntry(Key)
	e.ID = ""
	e.Title = remote.StripMarkup(e.Title)
	if e.DOI == "" {
		e.DOI = doi
	}

	if p.cache != nil {
		if err := p.cache.Put(ctx, doi, e); err != nil {
			p.logger.Warn("doi cache write failed", zap.String("doi", doi), zap.Error(err))
		}
	}
	return Result{Status: provider.StatusOK, Entry: e}
}

// Search resolves term when it is DOI-shaped; other terms yield notfound.
func (p *Provider) Search(ctx context.Context, term string) provider.SearchResult {
	if !reference.LooksLikeDOI(term) {
		return provider.SearchResult{Status: provider.StatusNotFound, Message: "Not a DOI"}
	}
	r := p.FetchCSL(ctx, term, 0)
	if r.Status != provider.StatusOK {
		return provider.SearchResult{Status: r.Status, Message: r.Message, Err: r.Err}
	}
	return provider.SearchResult{
		Status: provider.StatusOK,
		Items:  []provider.Candidate{{Provider: Key, Remote: true, Entry: r.Entry}},
	}
}

// escapePath escapes each segment of a DOI, keeping the slashes.
func escapePath(doi string) string {
	parts := strings.Split(doi, "/")
	for i, s := range parts {
		parts[i] = url.PathEscape(s)
	}
	return strings.Join(parts, "/")
}

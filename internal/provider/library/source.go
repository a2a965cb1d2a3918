package library

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/matsen/bipcite/internal/citekey"
	"github.com/matsen/bipcite/internal/csl"
	"github.com/matsen/bipcite/internal/provider"
	"github.com/matsen/bipcite/internal/provider/remote"
	"github.com/matsen/bipcite/internal/reference"
	"github.com/matsen/bipcite/internal/storage"
)

// DefaultBaseURL is the web API of the reference manager.
const DefaultBaseURL = "https://api.zotero.org"

const defaultPageSize = 100

// FetchResult is the answer to a Source.Fetch. When NotModified is set the
// snapshot is empty and the caller keeps what it has.
type FetchResult struct {
	NotModified bool
	Snapshot    storage.LibrarySnapshot
}

// Source reads the external library.
//
// since is the version token of the snapshot the caller holds ("" for none).
type Source interface {
	Name() string
	Fetch(ctx context.Context, since string) (FetchResult, error)
}

// HTTPSource reads a user library over the reference manager's web API.
type HTTPSource struct {
	client   *remote.Client
	user     string
	apiKey   string
	pageSize int
}

// NewHTTPSource creates a source for the library of user.
func NewHTTPSource(client *remote.Client, user, apiKey string) *HTTPSource {
	return &HTTPSource{client: client, user: user, apiKey: apiKey, pageSize: defaultPageSize}
}

// Name identifies the library in the snapshot cache.
func (s *HTTPSource) Name() string {
	return "users/" + s.user
}

type apiCollection struct {
	Key  string `json:"key"`
	Data struct {
		Name             string          `json:"name"`
		ParentCollection json.RawMessage `json:"parentCollection"`
	} `json:"data"`
}

type apiItem struct {
	Key  string `json:"key"`
	Data struct {
		ItemType    string   `json:"itemType"`
		Collections []string `json:"collections"`
		CitationKey string   `json:"citationKey"`
		Extra       string   `json:"extra"`
	} `json:"data"`
	CSLJSON *csl.Item `json:"csljson"`
}

// Fetch downloads collections and top-level items unless the library
// version is still since.
func (s *HTTPSource) Fetch(ctx context.Context, since string) (FetchResult, error) {
	if s.user == "" {
		return FetchResult{}, fmt.Errorf("%w: library user not configured", provider.ErrAuth)
	}

	header := s.header()
	if since != "" {
		header.Set("If-Modified-Since-Version", since)
	}

	var items []apiItem
	resp, err := s.page(ctx, "items/top", 0, header, &items)
	if err != nil {
		return FetchResult{}, err
	}
	if resp.NotModified {
		return FetchResult{NotModified: true}, nil
	}
	version := resp.Header.Get("Last-Modified-Version")

	for start := len(items); hasMore(resp, start, s.pageSize); start = len(items) {
		var more []apiItem
		resp, err = s.page(ctx, "items/top", start, s.header(), &more)
		if err != nil {
			return FetchResult{}, err
		}
		if len(more) == 0 {
			break
		}
		items = append(items, more...)
	}

	var cols []apiCollection
	resp, err = s.page(ctx, "collections", 0, s.header(), &cols)
	if err != nil {
		return FetchResult{}, err
	}
	for start := len(cols); hasMore(resp, start, s.pageSize); start = len(cols) {
		var more []apiCollection
		resp, err = s.page(ctx, "collections", start, s.header(), &more)
		if err != nil {
			return FetchResult{}, err
		}
		if len(more) == 0 {
			break
		}
		cols = append(cols, more...)
	}

	return FetchResult{Snapshot: storage.LibrarySnapshot{
		Version:     version,
		Collections: toCollections(cols),
		Entries:     toEntries(items),
	}}, nil
}

func (s *HTTPSource) header() http.Header {
	h := http.Header{"Accept": {"application/json"}, "Zotero-API-Version": {"3"}}
	if s.apiKey != "" {
		h.Set("Zotero-API-Key", s.apiKey)
	}
	return h
}

func (s *HTTPSource) page(ctx context.Context, kind string, start int, header http.Header, v any) (*remote.Response, error) {
	q := url.Values{}
	q.Set("format", "json")
	q.Set("limit", strconv.Itoa(s.pageSize))
	q.Set("start", strconv.Itoa(start))
	if kind == "items/top" {
		q.Set("include", "data,csljson")
	}

	resp, err := s.client.Get(ctx, "users/"+url.PathEscape(s.user)+"/"+kind, q, header)
	if err != nil {
		return nil, err
	}
	if resp.NotModified {
		return resp, nil
	}
	if err := json.Unmarshal(resp.Body, v); err != nil {
		return nil, fmt.Errorf("%w: library %s: %v", provider.ErrInvalidResponse, kind, err)
	}
	return resp, nil
}

// hasMore uses Total-Results when present and otherwise assumes a full
// page means another follows.
func hasMore(resp *remote.Response, have, pageSize int) bool {
	if total, err := strconv.Atoi(resp.Header.Get("Total-Results")); err == nil {
		return have < total
	}
	return have > 0 && have%pageSize == 0
}

func toCollections(cols []apiCollection) []reference.Collection {
	out := make([]reference.Collection, 0, len(cols))
	for _, c := range cols {
		var parent string
		// parentCollection is false for roots.
		_ = json.Unmarshal(c.Data.ParentCollection, &parent)
		out = append(out, reference.Collection{Key: c.Key, Name: c.Data.Name, ParentKey: parent})
	}
	return out
}

var extraCitationKey = regexp.MustCompile(`(?mi)^\s*citation key:\s*(\S+)\s*$`)

func toEntries(items []apiItem) []reference.Entry {
	entries := make([]reference.Entry, 0, len(items))
	var pending []int
	ids := map[string]bool{}
	for _, it := range items {
		if it.CSLJSON == nil || it.Data.ItemType == "note" || it.Data.ItemType == "attachment" {
			continue
		}
		e := it.CSLJSON.ToEntry(Key)
		e.ID = strings.TrimSpace(it.Data.CitationKey)
		if e.ID == "" {
			if m := extraCitationKey.FindStringSubmatch(it.Data.Extra); m != nil {
				e.ID = m[1]
			}
		}
		e.Collections = append([]string(nil), it.Data.Collections...)
		if e.ID == "" || ids[e.ID] {
			pending = append(pending, len(entries))
		} else {
			ids[e.ID] = true
		}
		entries = append(entries, e)
	}
	// Items without a pinned key get one after every pinned key is known.
	for _, i := range pending {
		entries[i].ID = citekey.SuggestFor(ids, entries[i])
		ids[entries[i].ID] = true
	}
	return entries
}

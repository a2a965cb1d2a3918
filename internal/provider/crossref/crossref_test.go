package crossref

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matsen/bipcite/internal/provider"
	"github.com/matsen/bipcite/internal/provider/remote"
	"github.com/matsen/bipcite/internal/reference"
)

const worksBody = `{
  "status": "ok",
  "message": {
    "total-results": 2,
    "items": [
      {
        "DOI": "10.1038/nature12373",
        "title": ["Nanometre-scale <i>thermometry</i> in a living cell"],
        "author": [{"given": "G.", "family": "Kucsko"}, {"given": "P. C.", "family": "Maurer"}],
        "issued": {"date-parts": [[2013, 7, 31]]},
        "type": "journal-article",
        "container-title": ["Nature"],
        "volume": "500",
        "issue": "7460",
        "page": "54-58",
        "ISSN": ["0028-0836", "1476-4687"]
      },
      {
        "DOI": "10.5555/report",
        "title": ["Annual Report"],
        "author": [{"name": "Example Consortium"}],
        "issued": {"date-parts": [[null]]},
        "published-online": {"date-parts": [[2021]]},
        "type": "report"
      }
    ]
  }
}`

func TestSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/works", r.URL.Path)
		assert.Equal(t, "thermometry", r.URL.Query().Get("query.bibliographic"))
		assert.Equal(t, "5", r.URL.Query().Get("rows"))
		assert.Equal(t, "me@example.org", r.URL.Query().Get("mailto"))
		w.Write([]byte(worksBody))
	}))
	defer srv.Close()

	p := New(remote.NewClient("Crossref", srv.URL, remote.WithRateLimit(0)),
		WithMailto("me@example.org"), WithRows(5))
	res := p.Search(context.Background(), "thermometry")

	require.Equal(t, provider.StatusOK, res.Status)
	require.Len(t, res.Items, 2)

	first := res.Items[0]
	assert.True(t, first.Remote)
	assert.Equal(t, Key, first.Provider)
	e := first.Entry
	assert.Equal(t, "Nanometre-scale thermometry in a living cell", e.Title)
	assert.Equal(t, reference.KindArticleJournal, e.Kind)
	assert.Equal(t, "10.1038/nature12373", e.DOI)
	assert.Equal(t, "Nature", e.ContainerTitle)
	assert.Equal(t, "0028-0836", e.ISSN)
	assert.Equal(t, 2013, e.Issued.Year)
	assert.Equal(t, "Kucsko", e.Authors[0].Family)
	assert.Empty(t, e.ID)

	second := res.Items[1].Entry
	assert.Equal(t, "Example Consortium", second.Authors[0].Literal)
	assert.Equal(t, 2021, second.Issued.Year)
	assert.Equal(t, reference.KindReport, second.Kind)
}

func TestSearch_NoResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"ok","message":{"items":[]}}`))
	}))
	defer srv.Close()

	res := New(remote.NewClient("Crossref", srv.URL, remote.WithRateLimit(0))).Search(context.Background(), "zzz")
	assert.Equal(t, provider.StatusNotFound, res.Status)
	assert.Empty(t, res.Items)
}

func TestSearch_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	res := New(remote.NewClient("Crossref", srv.URL, remote.WithRateLimit(0))).Search(context.Background(), "x")
	assert.Equal(t, provider.StatusError, res.Status)
	assert.NotEmpty(t, res.Message)
	assert.Error(t, res.Err)
}

func TestKind(t *testing.T) {
	assert.Equal(t, reference.KindChapter, Kind("book-chapter"))
	assert.Equal(t, "peer-review", Kind("peer-review"))
}

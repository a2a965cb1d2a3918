package remote

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matsen/bipcite/internal/provider"
)

func TestGetJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/works", r.URL.Path)
		assert.Equal(t, "smith", r.URL.Query().Get("q"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		assert.Equal(t, "token", r.Header.Get("X-Key"))
		assert.Contains(t, r.Header.Get("User-Agent"), "bipcite")
		w.Write([]byte(`{"n": 3}`))
	}))
	defer srv.Close()

	c := NewClient("test", srv.URL+"/", WithHeader("X-Key", "token"), WithRateLimit(0))
	var out struct {
		N int `json:"n"`
	}
	require.NoError(t, c.GetJSON(context.Background(), "/works", url.Values{"q": {"smith"}}, &out))
	assert.Equal(t, 3, out.N)
}

func TestGet_StatusMapping(t *testing.T) {
	tests := []struct {
		status int
		check  func(error) bool
		class  provider.Status
	}{
		{404, provider.IsNotFound, provider.StatusNotFound},
		{401, provider.IsAuthError, provider.StatusError},
		{429, provider.IsRateLimited, provider.StatusError},
		{500, func(err error) bool {
			var apiErr *provider.APIError
			return errors.As(err, &apiErr) && apiErr.StatusCode == 500
		}, provider.StatusError},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			_, err := NewClient("test", srv.URL, WithRateLimit(0)).Get(context.Background(), "x", nil, nil)
			require.Error(t, err)
			assert.True(t, tt.check(err), "unexpected error %v", err)
			assert.Equal(t, tt.class, provider.Classify(err))
		})
	}
}

func TestGet_NotModified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("If-Modified-Since-Version") == "7" {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("Last-Modified-Version", "7")
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c := NewClient("library", srv.URL, WithRateLimit(0))
	resp, err := c.Get(context.Background(), "items", nil, nil)
	require.NoError(t, err)
	assert.False(t, resp.NotModified)
	assert.Equal(t, "7", resp.Header.Get("Last-Modified-Version"))

	resp, err = c.Get(context.Background(), "items", nil, http.Header{"If-Modified-Since-Version": {"7"}})
	require.NoError(t, err)
	assert.True(t, resp.NotModified)
}

func TestGet_NoHost(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := srv.URL
	srv.Close()

	_, err := NewClient("gone", addr, WithRateLimit(0)).Get(context.Background(), "x", nil, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, provider.ErrNoHost))
	assert.Equal(t, provider.StatusNoHost, provider.Classify(err))
}

func TestGetJSON_InvalidBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>`))
	}))
	defer srv.Close()

	var v map[string]any
	err := NewClient("test", srv.URL, WithRateLimit(0)).GetJSON(context.Background(), "x", nil, &v)
	assert.True(t, errors.Is(err, provider.ErrInvalidResponse))
}

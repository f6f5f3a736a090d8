package search

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const ddgPage = `<html><body>
<div class="result">
  <a class="result__a" href="//duckduckgo.com/l/?uddg=https%3A%2F%2Fgo.dev%2Fdoc%2F">Go <b>Documentation</b></a>
  <a class="result__snippet" href="#">Learn how to <b>write Go</b> code.</a>
</div>
<div class="result">
  <a class="result__a" href="https://example.com/page">Example Page</a>
  <a class="result__snippet" href="#">An example snippet.</a>
</div>
</body></html>`

const wikiJSON = `{"query":{"search":[
  {"title":"Go (programming language)","snippet":"Go is a <span>compiled</span> language"},
  {"title":"Example Page","snippet":"dup by title, distinct url"}
]}}`

func newTestClient(ddg, wiki string) *Client {
	c := New(nil)
	c.ddgURL = ddg
	c.wikiURL = wiki
	return c
}

func TestSearchMergesSources(t *testing.T) {
	ddgSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "golang", r.URL.Query().Get("q"))
		w.Write([]byte(ddgPage))
	}))
	defer ddgSrv.Close()
	wikiSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "golang", r.URL.Query().Get("srsearch"))
		w.Write([]byte(wikiJSON))
	}))
	defer wikiSrv.Close()

	c := newTestClient(ddgSrv.URL, wikiSrv.URL)
	results := c.Search(context.Background(), "golang", 10)
	require.Len(t, results, 4)

	assert.Equal(t, "Go Documentation", results[0].Title)
	assert.Equal(t, "https://go.dev/doc/", results[0].URL, "redirect links are unwrapped")
	assert.Equal(t, "Learn how to write Go code.", results[0].Snippet)
	assert.Equal(t, "duckduckgo", results[0].Source)

	assert.Equal(t, "wikipedia", results[2].Source)
	assert.Equal(t, "https://en.wikipedia.org/wiki/Go_%28programming_language%29", results[2].URL)
	assert.Equal(t, "Go is a compiled language", results[2].Snippet)
}

func TestSearchLimit(t *testing.T) {
	ddgSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(ddgPage))
	}))
	defer ddgSrv.Close()
	wikiSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(wikiJSON))
	}))
	defer wikiSrv.Close()

	c := newTestClient(ddgSrv.URL, wikiSrv.URL)
	results := c.Search(context.Background(), "golang", 2)
	assert.Len(t, results, 2)
}

func TestSearchSourceFailureIsNotFatal(t *testing.T) {
	ddgSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "blocked", http.StatusForbidden)
	}))
	defer ddgSrv.Close()
	wikiSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(wikiJSON))
	}))
	defer wikiSrv.Close()

	c := newTestClient(ddgSrv.URL, wikiSrv.URL)
	results := c.Search(context.Background(), "golang", 10)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.Equal(t, "wikipedia", r.Source)
	}
}

func TestSearchDedupesByURL(t *testing.T) {
	page := `<html><body>
<a class="result__a" href="https://example.com/page">First</a>
<a class="result__a" href="https://example.com/page">Second</a>
</body></html>`
	ddgSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(page))
	}))
	defer ddgSrv.Close()
	wikiSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"query":{"search":[]}}`))
	}))
	defer wikiSrv.Close()

	c := newTestClient(ddgSrv.URL, wikiSrv.URL)
	results := c.Search(context.Background(), "example", 10)
	require.Len(t, results, 1)
	assert.Equal(t, "First", results[0].Title)
}

func TestCleanDDGURL(t *testing.T) {
	assert.Equal(t, "https://go.dev/doc/", cleanDDGURL("//duckduckgo.com/l/?uddg=https%3A%2F%2Fgo.dev%2Fdoc%2F"))
	assert.Equal(t, "https://example.com/x", cleanDDGURL("https://example.com/x"))
}

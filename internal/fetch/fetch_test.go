package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samplePage = `<!DOCTYPE html>
<html>
<head>
  <title>Example  Domain</title>
  <style>body { color: red; }</style>
  <script>console.log("never shown");</script>
</head>
<body>
  <h1>Example Domain</h1>
  <p>This domain is for use in &quot;illustrative examples&quot;.</p>
</body>
</html>`

func TestExtractTitle(t *testing.T) {
	assert.Equal(t, "Example Domain", ExtractTitle(samplePage))
	assert.Equal(t, "", ExtractTitle("<html><body>no title</body></html>"))
}

func TestExtractText(t *testing.T) {
	text := ExtractText(samplePage)
	assert.Contains(t, text, "This domain is for use in \"illustrative examples\".")
	assert.NotContains(t, text, "console.log")
	assert.NotContains(t, text, "color: red")
	assert.NotContains(t, text, "<p>")
}

func TestFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.Header.Get("User-Agent"))
		w.Write([]byte(samplePage))
	}))
	defer srv.Close()

	c := New()
	title, text, err := c.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "Example Domain", title)
	assert.Contains(t, text, "Example Domain")
}

func TestFetchNonOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	c := New()
	_, _, err := c.Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestFetchTruncates(t *testing.T) {
	big := make([]byte, 50000)
	for i := range big {
		big[i] = 'a'
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(big)
	}))
	defer srv.Close()

	c := New()
	_, text, err := c.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(text), defaultMaxChars)
}

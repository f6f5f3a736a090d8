package search

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
)

const (
	defaultDDGURL  = "https://html.duckduckgo.com/html/"
	defaultWikiURL = "https://en.wikipedia.org/w/api.php"
	defaultLimit   = 5
	maxBodyBytes   = 2 << 20
)

var (
	ddgLinkRe    = regexp.MustCompile(`(?is)<a[^>]*class="result__a"[^>]*href="([^"]*)"[^>]*>(.*?)</a>`)
	ddgSnippetRe = regexp.MustCompile(`(?is)class="result__snippet"[^>]*>(.*?)</a>`)
	markupRe     = regexp.MustCompile(`(?s)<[^>]+>`)
	wsRe         = regexp.MustCompile(`\s+`)
)

// Result is one web search hit.
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet,omitempty"`
	Source  string `json:"source"`
}

// Client queries multiple public search sources and merges their results.
// Sources are best effort: one failing source never fails the search.
type Client struct {
	httpClient *http.Client
	ddgURL     string
	wikiURL    string
	logger     *slog.Logger
}

// New creates a web search client
func New(logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		ddgURL:     defaultDDGURL,
		wikiURL:    defaultWikiURL,
		logger:     logger,
	}
}

// Search queries the sources in order and returns up to limit results,
// deduplicated by URL.
func (c *Client) Search(ctx context.Context, query string, limit int) []Result {
	if limit <= 0 {
		limit = defaultLimit
	}

	var merged []Result
	seen := make(map[string]bool)

	for _, source := range []struct {
		name string
		fn   func(context.Context, string, int) ([]Result, error)
	}{
		{"duckduckgo", c.searchDDG},
		{"wikipedia", c.searchWikipedia},
	} {
		results, err := source.fn(ctx, query, limit)
		if err != nil {
			c.logger.Warn("search source failed", "source", source.name, "error", err)
			continue
		}
		for _, r := range results {
			if r.URL == "" || seen[r.URL] {
				continue
			}
			seen[r.URL] = true
			merged = append(merged, r)
			if len(merged) >= limit {
				return merged
			}
		}
	}
	return merged
}

func (c *Client) searchDDG(ctx context.Context, query string, limit int) ([]Result, error) {
	reqURL := fmt.Sprintf("%s?q=%s", c.ddgURL, url.QueryEscape(query))
	body, err := c.get(ctx, reqURL)
	if err != nil {
		return nil, err
	}

	links := ddgLinkRe.FindAllStringSubmatch(body, limit)
	snippets := ddgSnippetRe.FindAllStringSubmatch(body, limit)

	results := make([]Result, 0, len(links))
	for i, m := range links {
		r := Result{
			Title:  cleanText(m[2]),
			URL:    cleanDDGURL(m[1]),
			Source: "duckduckgo",
		}
		if i < len(snippets) {
			r.Snippet = cleanText(snippets[i][1])
		}
		results = append(results, r)
	}
	return results, nil
}

// cleanDDGURL unwraps the redirect links DuckDuckGo serves in its HTML
// results (the real target sits in the uddg query parameter).
func cleanDDGURL(raw string) string {
	if strings.HasPrefix(raw, "//") {
		raw = "https:" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	return raw
}

func (c *Client) searchWikipedia(ctx context.Context, query string, limit int) ([]Result, error) {
	params := url.Values{}
	params.Set("action", "query")
	params.Set("list", "search")
	params.Set("format", "json")
	params.Set("srsearch", query)
	params.Set("srlimit", fmt.Sprintf("%d", limit))

	body, err := c.get(ctx, c.wikiURL+"?"+params.Encode())
	if err != nil {
		return nil, err
	}

	var wikiResp struct {
		Query struct {
			Search []struct {
				Title   string `json:"title"`
				Snippet string `json:"snippet"`
			} `json:"search"`
		} `json:"query"`
	}
	if err := json.Unmarshal([]byte(body), &wikiResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	results := make([]Result, 0, len(wikiResp.Query.Search))
	for _, s := range wikiResp.Query.Search {
		results = append(results, Result{
			Title:   s.Title,
			URL:     "https://en.wikipedia.org/wiki/" + url.PathEscape(strings.ReplaceAll(s.Title, " ", "_")),
			Snippet: cleanText(s.Snippet),
			Source:  "wikipedia",
		})
	}
	return results, nil
}

func (c *Client) get(ctx context.Context, reqURL string) (string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("User-Agent", "LumaBridge/1.0 (+local gateway)")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("search returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func cleanText(s string) string {
	s = markupRe.ReplaceAllString(s, " ")
	s = html.UnescapeString(s)
	return strings.TrimSpace(wsRe.ReplaceAllString(s, " "))
}

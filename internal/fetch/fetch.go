package fetch

import (
	"context"
	"fmt"
	"html"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"
)

const (
	defaultUserAgent = "LumaBridge/1.0 (+local gateway)"
	maxBodyBytes     = 2 << 20
	defaultMaxChars  = 10000
)

var (
	titleRe  = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)
	scriptRe = regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`)
	styleRe  = regexp.MustCompile(`(?is)<style[^>]*>.*?</style>`)
	tagRe    = regexp.MustCompile(`(?s)<[^>]+>`)
	spaceRe  = regexp.MustCompile(`\s+`)
)

// Client fetches remote pages and reduces them to plain text. Callers are
// responsible for filtering URLs before handing them over.
type Client struct {
	httpClient *http.Client
	userAgent  string
	maxChars   int
}

// New creates a page fetch client
func New() *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		userAgent:  defaultUserAgent,
		maxChars:   defaultMaxChars,
	}
}

// Fetch downloads a page and returns its title and extracted text. The body
// read is capped and the text is truncated to keep responses bounded.
func (c *Client) Fetch(ctx context.Context, url string) (string, string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", "", fmt.Errorf("fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("fetch returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", "", fmt.Errorf("failed to read body: %w", err)
	}

	raw := string(body)
	title := ExtractTitle(raw)
	text := ExtractText(raw)
	if len(text) > c.maxChars {
		text = text[:c.maxChars]
	}
	return title, text, nil
}

// FetchHTML downloads a page and returns the raw body, capped at
// maxBodyBytes.
func (c *Client) FetchHTML(ctx context.Context, url string) (string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("failed to read body: %w", err)
	}
	return string(body), nil
}

// SanitizeHTML strips script blocks and anchors the document to its source
// URL so relative links keep working when the page is rendered elsewhere.
func SanitizeHTML(htmlSrc, baseURL string) string {
	sanitized := scriptRe.ReplaceAllString(htmlSrc, "")
	return fmt.Sprintf(`<html><head><base href="%s" target="_blank"></head><body>%s</body></html>`, baseURL, sanitized)
}

// ExtractTitle pulls the document title, empty when absent.
func ExtractTitle(htmlSrc string) string {
	m := titleRe.FindStringSubmatch(htmlSrc)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(html.UnescapeString(spaceRe.ReplaceAllString(m[1], " ")))
}

// ExtractText strips scripts, styles, and markup, unescapes entities, and
// collapses whitespace.
func ExtractText(htmlSrc string) string {
	cleaned := scriptRe.ReplaceAllString(htmlSrc, " ")
	cleaned = styleRe.ReplaceAllString(cleaned, " ")
	cleaned = tagRe.ReplaceAllString(cleaned, " ")
	cleaned = html.UnescapeString(cleaned)
	cleaned = spaceRe.ReplaceAllString(cleaned, " ")
	return strings.TrimSpace(cleaned)
}

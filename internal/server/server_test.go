package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumahub/luma-bridge/internal/backend"
	"github.com/lumahub/luma-bridge/internal/breaker"
	"github.com/lumahub/luma-bridge/internal/config"
	"github.com/lumahub/luma-bridge/internal/email"
	"github.com/lumahub/luma-bridge/internal/hub"
	"github.com/lumahub/luma-bridge/internal/knowledge"
	"github.com/lumahub/luma-bridge/internal/media"
	"github.com/lumahub/luma-bridge/internal/router"
	"github.com/lumahub/luma-bridge/internal/search"
)

type fakeRouter struct {
	content  string
	provider router.Provider
	err      error
	lastOpts router.Options
}

func (f *fakeRouter) Route(ctx context.Context, messages []backend.Message, opts router.Options) (string, router.Provider, error) {
	f.lastOpts = opts
	if f.err != nil {
		return "", router.ProviderNone, f.err
	}
	return f.content, f.provider, nil
}

func (f *fakeRouter) Status(ctx context.Context) map[string]interface{} {
	return map[string]interface{}{"routing": map[string]interface{}{"strategy": "auto"}}
}

type fakeKnowledge struct {
	ingestRes *knowledge.IngestResult
	ingestErr error
	hits      []knowledge.Hit
	lastReq   knowledge.IngestRequest
}

func (f *fakeKnowledge) Ingest(ctx context.Context, req knowledge.IngestRequest) (*knowledge.IngestResult, error) {
	f.lastReq = req
	if req.URL != "" && !knowledge.IsPublicHTTPURL(req.URL) {
		return nil, knowledge.ErrBlockedURL
	}
	return f.ingestRes, f.ingestErr
}

func (f *fakeKnowledge) Search(ctx context.Context, query string, limit int, threshold float64) ([]knowledge.Hit, error) {
	return f.hits, nil
}

func (f *fakeKnowledge) Stats(ctx context.Context) (map[string]interface{}, error) {
	return map[string]interface{}{"points": int64(7)}, nil
}

type fakeModels struct {
	models []backend.ModelInfo
	err    error
}

func (f *fakeModels) ListModels(ctx context.Context) ([]backend.ModelInfo, error) {
	return f.models, f.err
}
func (f *fakeModels) PullModel(ctx context.Context, name string) error   { return f.err }
func (f *fakeModels) DeleteModel(ctx context.Context, name string) error { return f.err }

type fakeVector struct{ err error }

func (f *fakeVector) Collection() string { return "luma_knowledge" }
func (f *fakeVector) CollectionInfo(ctx context.Context) (int64, error) {
	return 7, f.err
}

type fakeSearcher struct{ results []search.Result }

func (f *fakeSearcher) Search(ctx context.Context, query string, limit int) []search.Result {
	return f.results
}

type fakePages struct{}

func (f *fakePages) Fetch(ctx context.Context, url string) (string, string, error) {
	return "Example", "example body", nil
}
func (f *fakePages) FetchHTML(ctx context.Context, url string) (string, error) {
	return "<html><head><title>Example</title><script>x()</script></head><body>hi</body></html>", nil
}

type fakeMedia struct{}

func (f *fakeMedia) GenerateImage(ctx context.Context, req media.ImageRequest) (*media.ImageResult, error) {
	return &media.ImageResult{URL: "data:image/png;base64,xx", Backend: "local-media-inference"}, nil
}
func (f *fakeMedia) GenerateVideo(ctx context.Context, req media.VideoRequest) (*media.VideoResult, error) {
	return &media.VideoResult{URL: "/videos/out.mp4", Backend: "local-media-inference"}, nil
}

type fakeEmail struct{}

func (f *fakeEmail) Send(ctx context.Context, req email.Request) (*email.Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return &email.Result{Success: true, Provider: "console", MessageID: "dev-1"}, nil
}

func newTestServer(t *testing.T, rt ChatRouter) *Server {
	t.Helper()
	return newTestServerWithKnowledge(t, rt,
		&fakeKnowledge{ingestRes: &knowledge.IngestResult{Source: "manual", ChunksStored: 3, TotalLength: 1480}})
}

func newTestServerWithKnowledge(t *testing.T, rt ChatRouter, know *fakeKnowledge) *Server {
	t.Helper()
	cfg := config.Default()
	return New(cfg, Deps{
		Router:   rt,
		Know:     know,
		Models:   &fakeModels{models: []backend.ModelInfo{{Name: "llama3", Size: 4 << 30}}},
		Vector:   &fakeVector{},
		Searcher: &fakeSearcher{results: []search.Result{{Title: "Go", URL: "https://go.dev", Source: "duckduckgo"}}},
		Pages:    &fakePages{},
		Hub:      hub.New(nil, nil),
		Media:    &fakeMedia{},
		Email:    &fakeEmail{},
	}, nil)
}

func doJSON(t *testing.T, h http.Handler, method, path string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var out map[string]interface{}
	if rec.Body.Len() > 0 && strings.Contains(rec.Header().Get("Content-Type"), "application/json") {
		json.Unmarshal(rec.Body.Bytes(), &out)
	}
	return rec, out
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, &fakeRouter{})
	rec, body := doJSON(t, s.Handler(), http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])
}

func TestLocalAIChatSuccess(t *testing.T) {
	rt := &fakeRouter{content: "hello there", provider: router.ProviderLocal}
	s := newTestServer(t, rt)

	rec, body := doJSON(t, s.Handler(), http.MethodPost, "/api/local-ai/chat",
		map[string]interface{}{"message": "hi"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "hello there", body["content"])
	assert.Equal(t, "hello there", body["response"])
	assert.Equal(t, "local", body["provider"])
}

func TestLocalAIChatDegrades(t *testing.T) {
	rt := &fakeRouter{err: &backend.Error{Backend: "ollama", Err: errors.New("connection refused")}}
	s := newTestServer(t, rt)

	rec, body := doJSON(t, s.Handler(), http.MethodPost, "/api/local-ai/chat",
		map[string]interface{}{"message": "hi"})
	assert.Equal(t, http.StatusOK, rec.Code, "total failure still returns a renderable response")
	assert.Equal(t, "none", body["provider"])
	assert.Contains(t, body["content"], "AI models unavailable")
}

func TestLocalAIChatRequiresMessage(t *testing.T) {
	s := newTestServer(t, &fakeRouter{})
	rec, body := doJSON(t, s.Handler(), http.MethodPost, "/api/local-ai/chat",
		map[string]interface{}{"message": ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, body["error"], "message")
}

func TestHybridChatSurfacesCircuitOpen(t *testing.T) {
	rt := &fakeRouter{err: &breaker.OpenError{BackendID: "local-model", RetryAfter: 12 * time.Second}}
	s := newTestServer(t, rt)

	rec, body := doJSON(t, s.Handler(), http.MethodPost, "/api/hybrid/chat",
		map[string]interface{}{"messages": []map[string]string{{"role": "user", "content": "hi"}}})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "Local inference unavailable", body["error"])
	assert.Equal(t, "circuit_open_retry_in_12s", body["details"])
}

func TestHybridChatPassesOptions(t *testing.T) {
	rt := &fakeRouter{content: "cloud says hi", provider: router.ProviderCloud}
	s := newTestServer(t, rt)

	rec, body := doJSON(t, s.Handler(), http.MethodPost, "/api/hybrid/chat", map[string]interface{}{
		"messages":   []map[string]string{{"role": "user", "content": "hi"}},
		"forceCloud": true,
		"cloudMode":  "agent",
	})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "cloud-model", body["provider"])
	assert.Equal(t, "agent", body["cloudMode"])
	assert.True(t, rt.lastOpts.ForceCloud)
	assert.Equal(t, "agent", rt.lastOpts.CloudMode)
}

func TestChatStreamDegradedNonStream(t *testing.T) {
	rt := &fakeRouter{err: errors.New("down")}
	s := newTestServer(t, rt)

	rec, body := doJSON(t, s.Handler(), http.MethodPost, "/api/chat", map[string]interface{}{
		"messages": []map[string]string{{"role": "user", "content": "hi"}},
		"stream":   false,
	})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["degraded"])
	assert.Contains(t, body["content"], "currently unavailable")
}

func TestChatStreamSSE(t *testing.T) {
	rt := &fakeRouter{content: "one two three", provider: router.ProviderLocal}
	s := newTestServer(t, rt)

	rec, _ := doJSON(t, s.Handler(), http.MethodPost, "/api/chat", map[string]interface{}{
		"messages": []map[string]string{{"role": "user", "content": "hi"}},
	})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/event-stream")

	stream := rec.Body.String()
	assert.Contains(t, stream, `data: {"token":"one"}`)
	assert.Contains(t, stream, `data: {"token":"three"}`)
	assert.True(t, strings.HasSuffix(strings.TrimSpace(stream), "data: [DONE]"))
	assert.True(t, rt.lastOpts.ForceLocal, "token streaming always uses the local backend")
}

func TestKnowledgeIngestBlockedURL(t *testing.T) {
	s := newTestServer(t, &fakeRouter{})
	rec, body := doJSON(t, s.Handler(), http.MethodPost, "/api/local-ai/knowledge/ingest",
		map[string]interface{}{"url": "http://10.0.0.5/secret"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid or blocked URL", body["error"])
}

func TestKnowledgeIngestText(t *testing.T) {
	s := newTestServer(t, &fakeRouter{})
	rec, body := doJSON(t, s.Handler(), http.MethodPost, "/api/local-ai/knowledge/ingest",
		map[string]interface{}{"text": "some document text", "source": "manual"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, float64(3), body["chunks"])
	assert.Equal(t, float64(1480), body["totalLength"])
	doc := body["document"].(map[string]interface{})
	assert.Equal(t, float64(3), doc["chunks"])
}

func TestKnowledgeIngestForwardsMetadata(t *testing.T) {
	know := &fakeKnowledge{ingestRes: &knowledge.IngestResult{Source: "manual", ChunksStored: 1, TotalLength: 18}}
	s := newTestServerWithKnowledge(t, &fakeRouter{}, know)

	rec, _ := doJSON(t, s.Handler(), http.MethodPost, "/api/local-ai/knowledge/ingest",
		map[string]interface{}{
			"text":     "some document text",
			"metadata": map[string]interface{}{"project": "luma"},
		})
	assert.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, map[string]interface{}{"project": "luma"}, know.lastReq.Metadata)
}

func TestKnowledgeSearchRequiresQuery(t *testing.T) {
	s := newTestServer(t, &fakeRouter{})
	rec, _ := doJSON(t, s.Handler(), http.MethodPost, "/api/local-ai/knowledge/search",
		map[string]interface{}{"query": ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestKnowledgeStats(t *testing.T) {
	s := newTestServer(t, &fakeRouter{})
	rec, body := doJSON(t, s.Handler(), http.MethodGet, "/api/local-ai/knowledge/stats", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(7), body["totalChunks"])
}

func TestListModels(t *testing.T) {
	s := newTestServer(t, &fakeRouter{})
	rec, body := doJSON(t, s.Handler(), http.MethodGet, "/api/local-ai/models", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	models := body["models"].([]interface{})
	require.Len(t, models, 1)
	m := models[0].(map[string]interface{})
	assert.Equal(t, "llama3", m["name"])
	assert.Equal(t, "4.00 GB", m["size"])
}

func TestPullModelRequiresName(t *testing.T) {
	s := newTestServer(t, &fakeRouter{})
	rec, _ := doJSON(t, s.Handler(), http.MethodPost, "/api/local-ai/models",
		map[string]interface{}{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebSearch(t *testing.T) {
	s := newTestServer(t, &fakeRouter{})
	rec, body := doJSON(t, s.Handler(), http.MethodPost, "/api/search",
		map[string]interface{}{"query": "golang"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), body["count"])
}

func TestFetchPageBlockedURL(t *testing.T) {
	s := newTestServer(t, &fakeRouter{})
	rec, body := doJSON(t, s.Handler(), http.MethodPost, "/api/fetch-page",
		map[string]interface{}{"url": "http://localhost:9999"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid or blocked URL", body["error"])
}

func TestProxyExtract(t *testing.T) {
	s := newTestServer(t, &fakeRouter{})
	rec, body := doJSON(t, s.Handler(), http.MethodPost, "/api/proxy",
		map[string]interface{}{"action": "extract", "url": "https://example.com"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Example", body["title"])
	assert.Contains(t, body["text"], "hi")
	assert.NotContains(t, body["text"], "<body>")
}

func TestProxySanitizedHTML(t *testing.T) {
	s := newTestServer(t, &fakeRouter{})
	rec, body := doJSON(t, s.Handler(), http.MethodPost, "/api/proxy",
		map[string]interface{}{"url": "https://example.com"})
	assert.Equal(t, http.StatusOK, rec.Code)
	content := body["content"].(string)
	assert.Contains(t, content, `<base href="https://example.com"`)
	assert.NotContains(t, content, "<script>")
}

func TestWebhookFlow(t *testing.T) {
	s := newTestServer(t, &fakeRouter{})
	h := s.Handler()

	rec, body := doJSON(t, h, http.MethodPost, "/api/webhook/test",
		map[string]interface{}{"hello": "world"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])
	assert.NotEmpty(t, body["eventId"])

	rec, body = doJSON(t, h, http.MethodGet, "/api/webhook/events", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), body["eventCount"])

	rec, body = doJSON(t, h, http.MethodGet, "/api/webhook", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])
}

func TestNotificationOfflineTarget(t *testing.T) {
	s := newTestServer(t, &fakeRouter{})
	rec, body := doJSON(t, s.Handler(), http.MethodPost, "/api/notifications/send",
		map[string]interface{}{"title": "ping", "targetUserId": "nobody"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, body["sent"])
	assert.Equal(t, "user_not_connected", body["reason"])
}

func TestNotificationBroadcast(t *testing.T) {
	s := newTestServer(t, &fakeRouter{})
	rec, body := doJSON(t, s.Handler(), http.MethodPost, "/api/notifications/send",
		map[string]interface{}{"title": "ping"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["sent"])
	assert.Equal(t, "broadcast", body["target"])
}

func TestPresenceEmpty(t *testing.T) {
	s := newTestServer(t, &fakeRouter{})
	rec, body := doJSON(t, s.Handler(), http.MethodGet, "/api/presence", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(0), body["connectedClients"])
}

func TestGenerateImageRequiresPrompt(t *testing.T) {
	s := newTestServer(t, &fakeRouter{})
	rec, _ := doJSON(t, s.Handler(), http.MethodPost, "/api/generate-image",
		map[string]interface{}{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGenerateImage(t *testing.T) {
	s := newTestServer(t, &fakeRouter{})
	rec, body := doJSON(t, s.Handler(), http.MethodPost, "/api/generate-image",
		map[string]interface{}{"prompt": "a logo"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "local-media-inference", body["backend"])
}

func TestEmailSendValidation(t *testing.T) {
	s := newTestServer(t, &fakeRouter{})
	rec, _ := doJSON(t, s.Handler(), http.MethodPost, "/api/email/send",
		map[string]interface{}{"subject": "no recipient"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body := doJSON(t, s.Handler(), http.MethodPost, "/api/email/send",
		map[string]interface{}{"to": "a@b.c", "subject": "hi", "text": "hello"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])
}

func TestMethodNotAllowed(t *testing.T) {
	s := newTestServer(t, &fakeRouter{})
	rec, _ := doJSON(t, s.Handler(), http.MethodGet, "/api/local-ai/chat", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

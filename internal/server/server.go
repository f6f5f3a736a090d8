package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lumahub/luma-bridge/internal/backend"
	"github.com/lumahub/luma-bridge/internal/config"
	"github.com/lumahub/luma-bridge/internal/email"
	"github.com/lumahub/luma-bridge/internal/hub"
	"github.com/lumahub/luma-bridge/internal/knowledge"
	"github.com/lumahub/luma-bridge/internal/media"
	"github.com/lumahub/luma-bridge/internal/metrics"
	"github.com/lumahub/luma-bridge/internal/router"
	"github.com/lumahub/luma-bridge/internal/search"
	"github.com/lumahub/luma-bridge/internal/webhook"
)

// ChatRouter routes chat requests between local and cloud backends.
type ChatRouter interface {
	Route(ctx context.Context, messages []backend.Message, opts router.Options) (string, router.Provider, error)
	Status(ctx context.Context) map[string]interface{}
}

// KnowledgeStore is the ingestion and retrieval pipeline.
type KnowledgeStore interface {
	Ingest(ctx context.Context, req knowledge.IngestRequest) (*knowledge.IngestResult, error)
	Search(ctx context.Context, query string, limit int, threshold float64) ([]knowledge.Hit, error)
	Stats(ctx context.Context) (map[string]interface{}, error)
}

// LocalModels manages models on the local runtime.
type LocalModels interface {
	ListModels(ctx context.Context) ([]backend.ModelInfo, error)
	PullModel(ctx context.Context, name string) error
	DeleteModel(ctx context.Context, name string) error
}

// VectorStatus exposes collection stats for health reporting.
type VectorStatus interface {
	Collection() string
	CollectionInfo(ctx context.Context) (int64, error)
}

// WebSearcher runs multi-source web searches.
type WebSearcher interface {
	Search(ctx context.Context, query string, limit int) []search.Result
}

// PageFetcher retrieves remote pages.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (title, text string, err error)
	FetchHTML(ctx context.Context, url string) (string, error)
}

// PresenceHub is the realtime presence and notification fanout.
type PresenceHub interface {
	HandleWS(w http.ResponseWriter, r *http.Request)
	Snapshot() []hub.User
	ConnectedCount() int
	Notify(toUserID string, data map[string]interface{}) bool
	Broadcast(eventType string, data map[string]interface{})
}

// MediaClient proxies image and video generation.
type MediaClient interface {
	GenerateImage(ctx context.Context, req media.ImageRequest) (*media.ImageResult, error)
	GenerateVideo(ctx context.Context, req media.VideoRequest) (*media.VideoResult, error)
}

// EmailSender delivers outbound email.
type EmailSender interface {
	Send(ctx context.Context, req email.Request) (*email.Result, error)
}

// Server is the HTTP surface of the gateway.
type Server struct {
	cfg        *config.Config
	router     ChatRouter
	know       KnowledgeStore
	models     LocalModels
	vector     VectorStatus
	searcher   WebSearcher
	pages      PageFetcher
	hub        PresenceHub
	media      MediaClient
	email      EmailSender
	webhooks   *webhook.Log
	httpServer *http.Server
	startTime  time.Time
	logger     *slog.Logger
}

// Deps bundles the server's collaborators.
type Deps struct {
	Router   ChatRouter
	Know     KnowledgeStore
	Models   LocalModels
	Vector   VectorStatus
	Searcher WebSearcher
	Pages    PageFetcher
	Hub      PresenceHub
	Media    MediaClient
	Email    EmailSender
	Webhooks *webhook.Log
}

// New creates a new HTTP server
func New(cfg *config.Config, deps Deps, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	webhooks := deps.Webhooks
	if webhooks == nil {
		webhooks = webhook.NewLog(0)
	}

	s := &Server{
		cfg:       cfg,
		router:    deps.Router,
		know:      deps.Know,
		models:    deps.Models,
		vector:    deps.Vector,
		searcher:  deps.Searcher,
		pages:     deps.Pages,
		hub:       deps.Hub,
		media:     deps.Media,
		email:     deps.Email,
		webhooks:  webhooks,
		startTime: time.Now(),
		logger:    logger,
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.healthHandler)
	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/api/local-ai/chat", s.instrument("local_ai_chat", s.localAIChatHandler))
	mux.HandleFunc("/api/hybrid/chat", s.instrument("hybrid_chat", s.hybridChatHandler))
	mux.HandleFunc("/api/hybrid/status", s.instrument("hybrid_status", s.hybridStatusHandler))
	mux.HandleFunc("/api/chat", s.instrument("chat_stream", s.chatStreamHandler))

	mux.HandleFunc("/api/local-ai/status", s.instrument("local_ai_status", s.localAIStatusHandler))
	mux.HandleFunc("/api/local-ai/models", s.instrument("local_ai_models", s.modelsHandler))
	mux.HandleFunc("/api/local-ai/knowledge/ingest", s.instrument("knowledge_ingest", s.knowledgeIngestHandler))
	mux.HandleFunc("/api/local-ai/knowledge/search", s.instrument("knowledge_search", s.knowledgeSearchHandler))
	mux.HandleFunc("/api/local-ai/knowledge/stats", s.instrument("knowledge_stats", s.knowledgeStatsHandler))

	mux.HandleFunc("/api/search", s.instrument("web_search", s.webSearchHandler))
	mux.HandleFunc("/api/fetch-page", s.instrument("fetch_page", s.fetchPageHandler))
	mux.HandleFunc("/api/proxy", s.instrument("proxy", s.proxyHandler))

	mux.HandleFunc("/api/webhook", s.instrument("webhook_root", s.webhookRootHandler))
	mux.HandleFunc("/api/webhook/test", s.instrument("webhook_test", s.webhookRecordHandler("test")))
	mux.HandleFunc("/api/webhook/dispatch", s.instrument("webhook_dispatch", s.webhookRecordHandler("dispatch")))
	mux.HandleFunc("/api/webhook/events", s.instrument("webhook_events", s.webhookEventsHandler))

	mux.HandleFunc("/api/notifications/send", s.instrument("notifications_send", s.notificationsHandler))
	mux.HandleFunc("/api/presence", s.instrument("presence", s.presenceHandler))
	mux.HandleFunc("/ws", s.hub.HandleWS)

	mux.HandleFunc("/api/generate-image", s.instrument("generate_image", s.generateImageHandler))
	mux.HandleFunc("/api/generate-video", s.instrument("generate_video", s.generateVideoHandler))
	mux.HandleFunc("/api/email/send", s.instrument("email_send", s.emailSendHandler))

	return mux
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("HTTP server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (s *Server) instrument(name string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		h(rec, r)
		metrics.RequestCount.WithLabelValues(r.Method, name, strconv.Itoa(rec.status)).Inc()
		metrics.RequestDuration.WithLabelValues(r.Method, name).Observe(time.Since(start).Seconds())
	}
}

// healthHandler handles liveness checks.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(s.startTime).String(),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

func contextWithTimeout(r *http.Request, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), d)
}

func decodeJSON(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid JSON payload")
	}
	return nil
}

package knowledge

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lumahub/luma-bridge/internal/backend"
	"github.com/lumahub/luma-bridge/internal/metrics"
)

// DefaultScoreThreshold filters out low-similarity search hits.
const DefaultScoreThreshold = 0.7

// ErrBlockedURL means the requested URL failed the public-URL filter.
var ErrBlockedURL = fmt.Errorf("url is not a public http(s) address")

// ErrNoContent means the request carried nothing to ingest.
var ErrNoContent = fmt.Errorf("no content to ingest")

// VectorStore is the persistence side of the pipeline.
type VectorStore interface {
	Collection() string
	EnsureCollection(ctx context.Context, dim int) error
	Upsert(ctx context.Context, points []backend.Point) error
	Search(ctx context.Context, vector []float64, limit int, threshold float64) ([]backend.ScoredPoint, error)
	CollectionInfo(ctx context.Context) (int64, error)
}

// PageFetcher retrieves remote pages for URL ingestion.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (title, text string, err error)
}

// Pipeline is the knowledge ingestion and retrieval engine: chunk, embed
// with fallback, store, search.
type Pipeline struct {
	embedder  Embedder
	store     VectorStore
	fetcher   PageFetcher
	chunker   *Chunker
	threshold float64
	logger    *slog.Logger

	ensureMu sync.Mutex
	ensured  bool
}

// PipelineConfig holds pipeline dependencies
type PipelineConfig struct {
	Embedder       Embedder
	Store          VectorStore
	Fetcher        PageFetcher
	ChunkSize      int
	ChunkOverlap   int
	ScoreThreshold float64
	Logger         *slog.Logger
}

// NewPipeline creates a knowledge pipeline
func NewPipeline(cfg PipelineConfig) *Pipeline {
	threshold := cfg.ScoreThreshold
	if threshold == 0 {
		threshold = DefaultScoreThreshold
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		embedder:  cfg.Embedder,
		store:     cfg.Store,
		fetcher:   cfg.Fetcher,
		chunker:   NewChunker(cfg.ChunkSize, cfg.ChunkOverlap),
		threshold: threshold,
		logger:    logger,
	}
}

// IngestRequest carries either raw text or a URL to fetch and ingest.
// Metadata keys are stored verbatim on every chunk payload.
type IngestRequest struct {
	Text     string
	URL      string
	Source   string
	Title    string
	Metadata map[string]interface{}
}

// IngestResult summarizes one ingestion run. Skipped counts chunks whose
// embedding failed; they are dropped, not retried. TotalLength is the
// character length of the ingested document.
type IngestResult struct {
	Source        string `json:"source"`
	Title         string `json:"title,omitempty"`
	ChunksStored  int    `json:"chunks_stored"`
	ChunksSkipped int    `json:"chunks_skipped"`
	TotalLength   int    `json:"total_length"`
}

// Ingest chunks the content, embeds each chunk through the fallback chain,
// and upserts the survivors. Partial ingestion is success: a chunk whose
// embedding fails is skipped and counted, it never aborts the run.
func (p *Pipeline) Ingest(ctx context.Context, req IngestRequest) (*IngestResult, error) {
	text := req.Text
	title := req.Title
	source := req.Source

	if req.URL != "" {
		if !IsPublicHTTPURL(req.URL) {
			return nil, ErrBlockedURL
		}
		fetchedTitle, fetchedText, err := p.fetcher.Fetch(ctx, req.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch %s: %w", req.URL, err)
		}
		text = fetchedText
		if title == "" {
			title = fetchedTitle
		}
		if source == "" {
			source = req.URL
		}
	}
	if source == "" {
		source = "manual"
	}

	chunks := p.chunker.Split(text)
	if len(chunks) == 0 {
		return nil, ErrNoContent
	}

	now := time.Now().UTC().Format(time.RFC3339)
	var points []backend.Point
	skipped := 0
	for i, chunk := range chunks {
		vec, err := p.embedder.Embed(ctx, chunk)
		if err != nil {
			p.logger.Warn("skipping chunk, embedding failed", "source", source, "chunk", i, "error", err)
			skipped++
			continue
		}
		if err := p.ensureCollection(ctx, len(vec)); err != nil {
			return nil, err
		}
		payload := map[string]interface{}{
			"text":         chunk,
			"source":       source,
			"title":        title,
			"url":          req.URL,
			"chunk_index":  i,
			"total_chunks": len(chunks),
			"ingested_at":  now,
		}
		for k, v := range req.Metadata {
			payload[k] = v
		}
		points = append(points, backend.Point{
			ID:      uuid.NewString(),
			Vector:  vec,
			Payload: payload,
		})
	}

	if len(points) > 0 {
		if err := p.store.Upsert(ctx, points); err != nil {
			return nil, fmt.Errorf("failed to store chunks: %w", err)
		}
		metrics.ChunksIngested.Add(float64(len(points)))
	}

	p.logger.Info("ingested content", "source", source, "stored", len(points), "skipped", skipped)
	return &IngestResult{
		Source:        source,
		Title:         title,
		ChunksStored:  len(points),
		ChunksSkipped: skipped,
		TotalLength:   len(text),
	}, nil
}

// ensureCollection creates the collection once, sized to the first observed
// vector. Concurrent ingests serialize here so the check-then-create cannot
// race.
func (p *Pipeline) ensureCollection(ctx context.Context, dim int) error {
	p.ensureMu.Lock()
	defer p.ensureMu.Unlock()
	if p.ensured {
		return nil
	}
	if err := p.store.EnsureCollection(ctx, dim); err != nil {
		return fmt.Errorf("failed to ensure collection: %w", err)
	}
	p.ensured = true
	return nil
}

// Hit is one retrieval result.
type Hit struct {
	ID     string  `json:"id"`
	Score  float64 `json:"score"`
	Text   string  `json:"text"`
	Source string  `json:"source,omitempty"`
	Title  string  `json:"title,omitempty"`
	URL    string  `json:"url,omitempty"`
}

// Search embeds the query and returns scored hits above the threshold, in
// descending score order. A non-positive threshold uses the configured
// default.
func (p *Pipeline) Search(ctx context.Context, query string, limit int, threshold float64) ([]Hit, error) {
	if query == "" {
		return nil, fmt.Errorf("query is required")
	}
	if limit <= 0 {
		limit = 5
	}
	if threshold <= 0 {
		threshold = p.threshold
	}

	vec, err := p.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	scored, err := p.store.Search(ctx, vec, limit, threshold)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	hits := make([]Hit, 0, len(scored))
	for _, s := range scored {
		hit := Hit{ID: s.ID, Score: s.Score}
		if v, ok := s.Payload["text"].(string); ok {
			hit.Text = v
		}
		if v, ok := s.Payload["source"].(string); ok {
			hit.Source = v
		}
		if v, ok := s.Payload["title"].(string); ok {
			hit.Title = v
		}
		if v, ok := s.Payload["url"].(string); ok {
			hit.URL = v
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

// Stats reports the collection name and stored point count.
func (p *Pipeline) Stats(ctx context.Context) (map[string]interface{}, error) {
	count, err := p.store.CollectionInfo(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"collection": p.store.Collection(),
		"points":     count,
	}, nil
}

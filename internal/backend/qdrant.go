package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// QdrantConfig holds vector store client configuration
type QdrantConfig struct {
	URL        string
	Collection string
}

// QdrantClient drives a Qdrant instance over its REST API.
type QdrantClient struct {
	baseURL    string
	collection string
	httpClient *http.Client
}

// Point is a vector plus payload stored in the collection.
type Point struct {
	ID      string                 `json:"id"`
	Vector  []float64              `json:"vector"`
	Payload map[string]interface{} `json:"payload"`
}

// ScoredPoint is a search hit with its similarity score.
type ScoredPoint struct {
	ID      string                 `json:"id"`
	Score   float64                `json:"score"`
	Payload map[string]interface{} `json:"payload"`
}

// NewQdrantClient creates a new Qdrant client
func NewQdrantClient(cfg *QdrantConfig) (*QdrantClient, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("qdrant URL is required")
	}
	collection := cfg.Collection
	if collection == "" {
		collection = "luma_knowledge"
	}

	return &QdrantClient{
		baseURL:    cfg.URL,
		collection: collection,
		httpClient: newHTTPClient(30*time.Second, 10*time.Second),
	}, nil
}

// Collection returns the collection name this client operates on.
func (c *QdrantClient) Collection() string {
	return c.collection
}

// EnsureCollection creates the collection with the given vector dimension
// (cosine distance) if it does not already exist.
func (c *QdrantClient) EnsureCollection(ctx context.Context, dim int) error {
	exists, err := c.collectionExists(ctx)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	body, _ := json.Marshal(map[string]interface{}{
		"vectors": map[string]interface{}{
			"size":     dim,
			"distance": "Cosine",
		},
	})
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPut, c.collectionURL(""), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return &Error{Backend: "qdrant", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &Error{Backend: "qdrant", Status: resp.StatusCode}
	}
	return nil
}

func (c *QdrantClient) collectionExists(ctx context.Context) (bool, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.collectionURL(""), nil)
	if err != nil {
		return false, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return false, &Error{Backend: "qdrant", Err: err}
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK, nil
}

// Upsert writes points into the collection, waiting for the write to land.
func (c *QdrantClient) Upsert(ctx context.Context, points []Point) error {
	if len(points) == 0 {
		return nil
	}

	body, err := json.Marshal(map[string]interface{}{"points": points})
	if err != nil {
		return fmt.Errorf("failed to marshal points: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPut, c.collectionURL("/points?wait=true"), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return &Error{Backend: "qdrant", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &Error{Backend: "qdrant", Status: resp.StatusCode}
	}
	return nil
}

// Search runs a similarity search filtered by a minimum score threshold.
// Results come back in descending score order as the store ranks them.
func (c *QdrantClient) Search(ctx context.Context, vector []float64, limit int, threshold float64) ([]ScoredPoint, error) {
	body, err := json.Marshal(map[string]interface{}{
		"vector":          vector,
		"limit":           limit,
		"with_payload":    true,
		"score_threshold": threshold,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal query: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.collectionURL("/points/search"), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &Error{Backend: "qdrant", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &Error{Backend: "qdrant", Status: resp.StatusCode}
	}

	var searchResp struct {
		Result []struct {
			ID      json.RawMessage        `json:"id"`
			Score   float64                `json:"score"`
			Payload map[string]interface{} `json:"payload"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&searchResp); err != nil {
		return nil, &Error{Backend: "qdrant", Err: fmt.Errorf("failed to decode response: %w", err)}
	}

	hits := make([]ScoredPoint, 0, len(searchResp.Result))
	for _, r := range searchResp.Result {
		hits = append(hits, ScoredPoint{ID: pointID(r.ID), Score: r.Score, Payload: r.Payload})
	}
	return hits, nil
}

// pointID renders a raw point id as a string. Qdrant allows both UUID
// strings and unsigned integers.
func pointID(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return string(raw)
}

// CollectionInfo returns the number of points in the collection.
func (c *QdrantClient) CollectionInfo(ctx context.Context) (int64, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.collectionURL(""), nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return 0, &Error{Backend: "qdrant", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, &Error{Backend: "qdrant", Status: resp.StatusCode}
	}

	var infoResp struct {
		Result struct {
			PointsCount int64 `json:"points_count"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&infoResp); err != nil {
		return 0, &Error{Backend: "qdrant", Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	return infoResp.Result.PointsCount, nil
}

func (c *QdrantClient) collectionURL(suffix string) string {
	return fmt.Sprintf("%s/collections/%s%s", c.baseURL, url.PathEscape(c.collection), suffix)
}

package server

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/lumahub/luma-bridge/internal/knowledge"
)

// localAIStatusHandler reports local service reachability with measured
// latency. Failures degrade the status, they never fail the request.
func (s *Server) localAIStatusHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx, cancel := contextWithTimeout(r, 10*time.Second)
	defer cancel()

	status := "healthy"
	services := map[string]interface{}{}
	var modelNames []string

	started := time.Now()
	models, err := s.models.ListModels(ctx)
	latency := time.Since(started).Milliseconds()
	if err != nil {
		status = "degraded"
		services["ollama"] = map[string]interface{}{"connected": false, "latencyMs": latency, "error": err.Error()}
	} else {
		for _, m := range models {
			modelNames = append(modelNames, m.Name)
		}
		connected := len(modelNames) > 0
		if !connected {
			status = "degraded"
		}
		services["ollama"] = map[string]interface{}{"connected": connected, "latencyMs": latency, "version": "running"}
	}

	started = time.Now()
	if _, err := s.vector.CollectionInfo(ctx); err != nil {
		services["qdrant"] = map[string]interface{}{"connected": false, "latencyMs": time.Since(started).Milliseconds(), "error": err.Error()}
	} else {
		services["qdrant"] = map[string]interface{}{"connected": true, "latencyMs": time.Since(started).Milliseconds(), "version": "local"}
	}

	if modelNames == nil {
		modelNames = []string{}
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"services":  services,
		"models":    modelNames,
	})
}

// modelsHandler lists, pulls, and deletes models on the local runtime.
func (s *Server) modelsHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.listModels(w, r)
	case http.MethodPost:
		s.pullModel(w, r)
	case http.MethodDelete:
		s.deleteModel(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) listModels(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := contextWithTimeout(r, 15*time.Second)
	defer cancel()

	models, err := s.models.ListModels(ctx)
	if err != nil {
		s.logger.Warn("failed to list models", "error", err)
		s.writeJSON(w, http.StatusOK, map[string]interface{}{"models": []interface{}{}})
		return
	}

	out := make([]map[string]interface{}, 0, len(models))
	for _, m := range models {
		sizeStr := "Unknown"
		if m.Size > 0 {
			sizeStr = fmt.Sprintf("%.2f GB", float64(m.Size)/(1<<30))
		}
		out = append(out, map[string]interface{}{
			"name":     m.Name,
			"size":     sizeStr,
			"modified": m.ModifiedAt,
			"digest":   m.Digest,
			"details": map[string]interface{}{
				"family":             m.Details.Family,
				"parameter_size":     m.Details.ParameterSize,
				"quantization_level": m.Details.QuantizationLevel,
			},
		})
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"models": out})
}

func (s *Server) pullModel(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Model string `json:"model"`
	}
	if err := decodeJSON(r, &req); err != nil || req.Model == "" {
		s.writeError(w, http.StatusBadRequest, "model is required")
		return
	}

	if err := s.models.PullModel(r.Context(), req.Model); err != nil {
		s.writeError(w, http.StatusBadGateway, "Failed to pull model")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

func (s *Server) deleteModel(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Model string `json:"model"`
	}
	if err := decodeJSON(r, &req); err != nil || req.Model == "" {
		s.writeError(w, http.StatusBadRequest, "model is required")
		return
	}

	if err := s.models.DeleteModel(r.Context(), req.Model); err != nil {
		s.writeError(w, http.StatusBadGateway, "Failed to delete model")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

// knowledgeIngestHandler accepts raw text, a content field, or a URL to
// fetch, and ingests it into the vector store.
func (s *Server) knowledgeIngestHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Text     string                 `json:"text"`
		Content  string                 `json:"content"`
		URL      string                 `json:"url"`
		Title    string                 `json:"title"`
		Source   string                 `json:"source"`
		Metadata map[string]interface{} `json:"metadata"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	text := req.Content
	if text == "" {
		text = req.Text
	}
	ingestReq := knowledge.IngestRequest{
		Text:     text,
		Source:   req.Source,
		Title:    req.Title,
		Metadata: req.Metadata,
	}
	if text == "" {
		ingestReq.URL = req.URL
	}
	if text == "" && req.URL == "" {
		s.writeError(w, http.StatusBadRequest, "text, content, or url is required")
		return
	}

	res, err := s.know.Ingest(r.Context(), ingestReq)
	if err != nil {
		switch {
		case errors.Is(err, knowledge.ErrBlockedURL):
			s.writeError(w, http.StatusBadRequest, "Invalid or blocked URL")
		case errors.Is(err, knowledge.ErrNoContent):
			s.writeError(w, http.StatusBadRequest, "text, content, or url is required")
		default:
			s.writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":     true,
		"message":     fmt.Sprintf("Ingested %d chunks from document", res.ChunksStored),
		"chunks":      res.ChunksStored,
		"totalLength": res.TotalLength,
		"document": map[string]interface{}{
			"title":   res.Title,
			"source":  res.Source,
			"url":     req.URL,
			"chunks":  res.ChunksStored,
			"skipped": res.ChunksSkipped,
		},
	})
}

// knowledgeSearchHandler runs a similarity search over ingested content.
func (s *Server) knowledgeSearchHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Query     string  `json:"query"`
		Limit     int     `json:"limit"`
		Threshold float64 `json:"threshold"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Query == "" {
		s.writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	hits, err := s.know.Search(r.Context(), req.Query, req.Limit, req.Threshold)
	if err != nil {
		s.logger.Warn("knowledge search failed", "error", err)
		s.writeJSON(w, http.StatusOK, map[string]interface{}{
			"results": []interface{}{},
			"query":   req.Query,
			"count":   0,
			"error":   "Failed to search knowledge base",
		})
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"results": hits,
		"query":   req.Query,
		"count":   len(hits),
	})
}

// knowledgeStatsHandler reports collection counts, zeros when the store is
// unreachable.
func (s *Server) knowledgeStatsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx, cancel := contextWithTimeout(r, 10*time.Second)
	defer cancel()

	count := int64(0)
	if stats, err := s.know.Stats(ctx); err == nil {
		if v, ok := stats["points"].(int64); ok {
			count = v
		}
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"totalDocuments": count,
		"totalChunks":    count,
		"collections": []map[string]interface{}{
			{"name": s.vector.Collection(), "documentCount": count, "chunkCount": count},
		},
	})
}

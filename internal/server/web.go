package server

import (
	"net/http"

	"github.com/lumahub/luma-bridge/internal/fetch"
	"github.com/lumahub/luma-bridge/internal/knowledge"
	"github.com/lumahub/luma-bridge/internal/search"
)

// webSearchHandler runs a multi-source web search.
func (s *Server) webSearchHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Query string `json:"query"`
		Limit int    `json:"limit"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Query == "" {
		s.writeError(w, http.StatusBadRequest, "Query is required")
		return
	}
	if req.Limit <= 0 {
		req.Limit = 10
	}

	results := s.searcher.Search(r.Context(), req.Query, req.Limit)
	if results == nil {
		results = []search.Result{}
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"query":   req.Query,
		"results": results,
		"count":   len(results),
	})
}

// fetchPageHandler fetches a public page and returns its extracted text.
func (s *Server) fetchPageHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		URL string `json:"url"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.URL == "" {
		s.writeError(w, http.StatusBadRequest, "url is required")
		return
	}
	if !knowledge.IsPublicHTTPURL(req.URL) {
		s.writeError(w, http.StatusBadRequest, "Invalid or blocked URL")
		return
	}

	title, text, err := s.pages.Fetch(r.Context(), req.URL)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"url":     req.URL,
		"title":   title,
		"content": text,
	})
}

// proxyHandler fetches a public page on the client's behalf, either as
// sanitized renderable HTML or as extracted plain text.
func (s *Server) proxyHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Action string `json:"action"`
		URL    string `json:"url"`
		Query  string `json:"query"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if req.Action == "search" {
		results := s.searcher.Search(r.Context(), req.Query, 10)
		if results == nil {
			results = []search.Result{}
		}
		s.writeJSON(w, http.StatusOK, map[string]interface{}{"query": req.Query, "results": results})
		return
	}

	if req.URL == "" {
		s.writeError(w, http.StatusBadRequest, "url is required")
		return
	}
	if !knowledge.IsPublicHTTPURL(req.URL) {
		s.writeError(w, http.StatusBadRequest, "Invalid or blocked URL")
		return
	}

	raw, err := s.pages.FetchHTML(r.Context(), req.URL)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	title := fetch.ExtractTitle(raw)

	if req.Action == "extract" {
		text := fetch.ExtractText(raw)
		if len(text) > 8000 {
			text = text[:8000]
		}
		s.writeJSON(w, http.StatusOK, map[string]interface{}{"url": req.URL, "title": title, "text": text})
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"url":     req.URL,
		"title":   title,
		"content": fetch.SanitizeHTML(raw, req.URL),
	})
}

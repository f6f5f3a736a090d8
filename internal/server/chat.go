package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/lumahub/luma-bridge/internal/backend"
	"github.com/lumahub/luma-bridge/internal/breaker"
	"github.com/lumahub/luma-bridge/internal/router"
)

// Degraded responses keep chat endpoints returning 200 when every backend
// is down, so frontends render a message instead of an error page.
const (
	degradedChatMessage = "AI models unavailable. Please check Ollama or configure MOONSHOT_API_KEY."
	degradedStreamText  = "Local model is currently unavailable. I can still help with planning and execution steps while Ollama is offline."
)

type chatRequest struct {
	Message     string            `json:"message"`
	Messages    []backend.Message `json:"messages"`
	Model       string            `json:"model"`
	Temperature *float64          `json:"temperature"`
	Stream      *bool             `json:"stream"`
	ForceLocal  bool              `json:"forceLocal"`
	ForceCloud  bool              `json:"forceCloud"`
	CloudMode   string            `json:"cloudMode"`
}

func (c *chatRequest) options() router.Options {
	temperature := 0.7
	if c.Temperature != nil {
		temperature = *c.Temperature
	}
	return router.Options{
		Model:       c.Model,
		Temperature: temperature,
		ForceLocal:  c.ForceLocal,
		ForceCloud:  c.ForceCloud,
		CloudMode:   c.CloudMode,
	}
}

// localAIChatHandler is the compatibility chat endpoint: it accepts both the
// legacy single-message payload and a message list, and degrades to a safe
// response instead of erroring when no backend can serve.
func (s *Server) localAIChatHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	messages := router.Normalize(req.Message, req.Messages)
	if messages == nil {
		s.writeError(w, http.StatusBadRequest, "message or messages[] is required")
		return
	}

	content, provider, err := s.router.Route(r.Context(), messages, req.options())
	if err != nil {
		s.logger.Warn("chat degraded, no backend available", "error", err)
		s.writeJSON(w, http.StatusOK, map[string]interface{}{
			"response": degradedChatMessage,
			"content":  degradedChatMessage,
			"sources":  []interface{}{},
			"provider": router.ProviderNone.String(),
		})
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"response": content,
		"content":  content,
		"sources":  []interface{}{},
		"provider": provider.String(),
	})
}

// hybridChatHandler exposes routing controls and surfaces errors instead of
// degrading.
func (s *Server) hybridChatHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.Messages) == 0 {
		s.writeError(w, http.StatusBadRequest, "messages is required")
		return
	}

	content, provider, err := s.router.Route(r.Context(), router.Normalize("", req.Messages), req.options())
	if err != nil {
		s.writeChatError(w, err)
		return
	}

	resp := map[string]interface{}{
		"content":  content,
		"provider": provider.String(),
		"model":    req.Model,
	}
	if provider == router.ProviderCloud {
		resp["cloudMode"] = req.CloudMode
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) writeChatError(w http.ResponseWriter, err error) {
	var openErr *breaker.OpenError
	if errors.As(err, &openErr) {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error":   "Local inference unavailable",
			"details": openErr.Error(),
		})
		return
	}

	var backendErr *backend.Error
	if errors.As(err, &backendErr) {
		s.writeError(w, http.StatusBadGateway, backendErr.Error())
		return
	}

	s.writeError(w, http.StatusInternalServerError, err.Error())
}

// hybridStatusHandler reports provider availability and routing heuristics.
func (s *Server) hybridStatusHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx, cancel := contextWithTimeout(r, 5*time.Second)
	defer cancel()
	s.writeJSON(w, http.StatusOK, s.router.Status(ctx))
}

// chatStreamHandler serves local-only chat as a token stream over SSE. When
// the local backend fails it streams a degraded message instead, still as a
// well-formed event stream.
func (s *Server) chatStreamHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.Messages) == 0 {
		s.writeError(w, http.StatusBadRequest, "messages is required")
		return
	}

	stream := true
	if req.Stream != nil {
		stream = *req.Stream
	}

	opts := req.options()
	opts.ForceLocal = true
	content, _, err := s.router.Route(r.Context(), router.Normalize("", req.Messages), opts)

	if !stream {
		if err != nil {
			s.writeJSON(w, http.StatusOK, map[string]interface{}{"content": degradedStreamText, "degraded": true})
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]interface{}{"content": content})
		return
	}

	if err != nil {
		content = degradedStreamText
	}
	s.streamTokens(w, r, content)
}

// streamTokens emits the content word by word as SSE events and stops as
// soon as the client goes away.
func (s *Server) streamTokens(w http.ResponseWriter, r *http.Request, content string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	for _, word := range strings.Split(content, " ") {
		select {
		case <-r.Context().Done():
			return
		case <-time.After(10 * time.Millisecond):
		}
		token, _ := json.Marshal(map[string]string{"token": word})
		fmt.Fprintf(w, "data: %s\n\n", token)
		flusher.Flush()
	}
	fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()
}

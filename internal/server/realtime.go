package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/lumahub/luma-bridge/internal/email"
	"github.com/lumahub/luma-bridge/internal/hub"
	"github.com/lumahub/luma-bridge/internal/media"
)

// webhookRootHandler describes the webhook surface.
func (s *Server) webhookRootHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"message": "Webhook API is available",
		"routes":  []string{"/api/webhook/test", "/api/webhook/dispatch", "/api/webhook/events"},
	})
}

// webhookRecordHandler records an inbound delivery under the given id.
func (s *Server) webhookRecordHandler(webhookID string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		// empty bodies are fine, deliveries are recorded as-is
		var payload map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload == nil {
			payload = map[string]interface{}{}
		}

		ev := s.webhooks.Record(webhookID, payload)
		s.writeJSON(w, http.StatusOK, map[string]interface{}{
			"success":   true,
			"eventId":   ev.ID,
			"webhookId": webhookID,
			"message":   "Webhook event recorded",
			"timestamp": ev.Timestamp,
		})
	}
}

// webhookEventsHandler returns the most recent deliveries.
func (s *Server) webhookEventsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	recent := s.webhooks.Recent(s.cfg.Webhooks.RecentLimit)
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"webhookId":    "events",
		"eventCount":   len(recent),
		"recentEvents": recent,
	})
}

// notificationsHandler injects a notification into the hub over REST.
func (s *Server) notificationsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Type         string `json:"type"`
		Title        string `json:"title"`
		Message      string `json:"message"`
		UserID       string `json:"userId"`
		UserName     string `json:"userName"`
		UserColor    string `json:"userColor"`
		TargetUserID string `json:"targetUserId"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Type == "" {
		req.Type = "info"
	}

	data := map[string]interface{}{
		"type":    req.Type,
		"title":   req.Title,
		"message": req.Message,
	}
	if req.UserID != "" {
		data["userId"] = req.UserID
	}
	if req.UserName != "" {
		data["userName"] = req.UserName
	}
	if req.UserColor != "" {
		data["userColor"] = req.UserColor
	}

	if req.TargetUserID != "" {
		if !s.hub.Notify(req.TargetUserID, data) {
			s.writeJSON(w, http.StatusOK, map[string]interface{}{
				"success": true,
				"sent":    false,
				"reason":  "user_not_connected",
			})
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "sent": true, "target": "user"})
		return
	}

	s.hub.Broadcast(hub.EventNotification, data)
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":    true,
		"sent":       true,
		"target":     "broadcast",
		"recipients": s.hub.ConnectedCount(),
	})
}

// presenceHandler is the REST view of the hub roster.
func (s *Server) presenceHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"users":            s.hub.Snapshot(),
		"connectedClients": s.hub.ConnectedCount(),
	})
}

// generateImageHandler proxies to the local image backend.
func (s *Server) generateImageHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req media.ImageRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Prompt == "" {
		s.writeError(w, http.StatusBadRequest, "prompt is required")
		return
	}

	res, err := s.media.GenerateImage(r.Context(), req)
	if err != nil {
		s.writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

// generateVideoHandler proxies to the local video backend.
func (s *Server) generateVideoHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req media.VideoRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Prompt == "" {
		s.writeError(w, http.StatusBadRequest, "prompt is required")
		return
	}

	res, err := s.media.GenerateVideo(r.Context(), req)
	if err != nil {
		s.writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

// emailSendHandler sends an email via the configured provider chain.
func (s *Server) emailSendHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req email.Request
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := contextWithTimeout(r, 20*time.Second)
	defer cancel()

	res, err := s.email.Send(ctx, req)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Cloud request modes, mapped to model variants.
const (
	ModeInstant    = "instant"
	ModeThinking   = "thinking"
	ModeAgent      = "agent"
	ModeAgentSwarm = "agent-swarm"
)

var moonshotModeModels = map[string]string{
	ModeInstant:    "kimi-k2.5",
	ModeThinking:   "kimi-k2.5-thinking",
	ModeAgent:      "kimi-k2.5-agent",
	ModeAgentSwarm: "kimi-k2.5-agent-swarm",
}

// MoonshotConfig holds cloud model API client configuration
type MoonshotConfig struct {
	BaseURL        string
	APIKey         string
	ChatTimeout    time.Duration
	ConnectTimeout time.Duration
}

// MoonshotClient talks to the Moonshot chat completions API. Agent-swarm
// requests can run long, so the total timeout defaults to five minutes.
type MoonshotClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewMoonshotClient creates a new Moonshot client
func NewMoonshotClient(cfg *MoonshotConfig) *MoonshotClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.moonshot.ai/v1"
	}
	chatTimeout := cfg.ChatTimeout
	if chatTimeout == 0 {
		chatTimeout = 300 * time.Second
	}
	connectTimeout := cfg.ConnectTimeout
	if connectTimeout == 0 {
		connectTimeout = 15 * time.Second
	}

	return &MoonshotClient{
		baseURL:    baseURL,
		apiKey:     cfg.APIKey,
		httpClient: newHTTPClient(chatTimeout, connectTimeout),
	}
}

// Configured reports whether an API key is present.
func (c *MoonshotClient) Configured() bool {
	return c != nil && c.apiKey != ""
}

// ModelForMode maps a request mode to the model variant serving it. Unknown
// modes fall back to the instant model.
func ModelForMode(mode string) string {
	if m, ok := moonshotModeModels[mode]; ok {
		return m
	}
	return moonshotModeModels[ModeInstant]
}

// Modes lists the supported cloud request modes.
func Modes() []string {
	return []string{ModeInstant, ModeThinking, ModeAgent, ModeAgentSwarm}
}

// Chat sends a chat completion request and returns the assistant content.
func (c *MoonshotClient) Chat(ctx context.Context, messages []Message, temperature float64, mode string) (string, error) {
	if !c.Configured() {
		return "", ErrNotConfigured
	}

	body, err := json.Marshal(map[string]interface{}{
		"model":       ModelForMode(mode),
		"messages":    messages,
		"temperature": temperature,
		"stream":      false,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/chat/completions", c.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", &Error{Backend: "moonshot", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &Error{Backend: "moonshot", Status: resp.StatusCode}
	}

	var chatResp moonshotChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", &Error{Backend: "moonshot", Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	if len(chatResp.Choices) == 0 {
		return "", &Error{Backend: "moonshot", Err: fmt.Errorf("no choices in response")}
	}

	return chatResp.Choices[0].Message.Content, nil
}

type moonshotChatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index        int     `json:"index"`
		Message      Message `json:"message"`
		FinishReason string  `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

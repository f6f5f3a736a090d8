package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// OllamaConfig holds local model runtime client configuration
type OllamaConfig struct {
	URL            string
	DefaultModel   string
	EmbedModel     string
	ChatTimeout    time.Duration
	ConnectTimeout time.Duration
}

// OllamaClient talks to a local Ollama runtime. Chat calls carry a long
// total timeout because local inference on big prompts can take minutes.
type OllamaClient struct {
	baseURL      string
	defaultModel string
	embedModel   string
	chatClient   *http.Client
	fastClient   *http.Client
	embedClient  *http.Client
	pullClient   *http.Client
}

// NewOllamaClient creates a new Ollama client
func NewOllamaClient(cfg *OllamaConfig) (*OllamaClient, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("ollama URL is required")
	}
	chatTimeout := cfg.ChatTimeout
	if chatTimeout == 0 {
		chatTimeout = 180 * time.Second
	}
	connectTimeout := cfg.ConnectTimeout
	if connectTimeout == 0 {
		connectTimeout = 10 * time.Second
	}
	embedModel := cfg.EmbedModel
	if embedModel == "" {
		embedModel = "nomic-embed-text"
	}

	return &OllamaClient{
		baseURL:      cfg.URL,
		defaultModel: cfg.DefaultModel,
		embedModel:   embedModel,
		chatClient:   newHTTPClient(chatTimeout, connectTimeout),
		fastClient:   newHTTPClient(15*time.Second, connectTimeout),
		embedClient:  newHTTPClient(30*time.Second, connectTimeout),
		pullClient:   newHTTPClient(120*time.Second, connectTimeout),
	}, nil
}

// DefaultModel returns the model used when the caller asks for "auto".
func (c *OllamaClient) DefaultModel() string {
	return c.defaultModel
}

// Chat sends a chat request and returns the assistant message content.
func (c *OllamaClient) Chat(ctx context.Context, model string, messages []Message, temperature float64) (string, error) {
	if model == "" {
		model = c.defaultModel
	}

	body, err := json.Marshal(map[string]interface{}{
		"model":    model,
		"messages": messages,
		"stream":   false,
		"options":  map[string]interface{}{"temperature": temperature},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/api/chat", c.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.chatClient.Do(httpReq)
	if err != nil {
		return "", &Error{Backend: "ollama", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &Error{Backend: "ollama", Status: resp.StatusCode}
	}

	var chatResp ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return "", &Error{Backend: "ollama", Err: fmt.Errorf("failed to decode response: %w", err)}
	}

	return chatResp.Message.Content, nil
}

// ModelInfo describes an installed model as reported by the runtime.
type ModelInfo struct {
	Name       string `json:"name"`
	Size       int64  `json:"size"`
	ModifiedAt string `json:"modified_at"`
	Digest     string `json:"digest"`
	Details    struct {
		Family            string `json:"family"`
		ParameterSize     string `json:"parameter_size"`
		QuantizationLevel string `json:"quantization_level"`
	} `json:"details"`
}

// ListModels lists the models currently installed on the runtime.
func (c *OllamaClient) ListModels(ctx context.Context) ([]ModelInfo, error) {
	url := fmt.Sprintf("%s/api/tags", c.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.fastClient.Do(httpReq)
	if err != nil {
		return nil, &Error{Backend: "ollama", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &Error{Backend: "ollama", Status: resp.StatusCode}
	}

	var tags struct {
		Models []ModelInfo `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, &Error{Backend: "ollama", Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	return tags.Models, nil
}

// PullModel asks the runtime to download a model.
func (c *OllamaClient) PullModel(ctx context.Context, name string) error {
	body, _ := json.Marshal(map[string]interface{}{"model": name, "stream": false})
	url := fmt.Sprintf("%s/api/pull", c.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.pullClient.Do(httpReq)
	if err != nil {
		return &Error{Backend: "ollama", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &Error{Backend: "ollama", Status: resp.StatusCode}
	}
	return nil
}

// DeleteModel removes a model from the runtime.
func (c *OllamaClient) DeleteModel(ctx context.Context, name string) error {
	body, _ := json.Marshal(map[string]interface{}{"name": name})
	url := fmt.Sprintf("%s/api/delete", c.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.embedClient.Do(httpReq)
	if err != nil {
		return &Error{Backend: "ollama", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &Error{Backend: "ollama", Status: resp.StatusCode}
	}
	return nil
}

// Embed generates an embedding vector for the given text.
func (c *OllamaClient) Embed(ctx context.Context, text string) ([]float64, error) {
	body, err := json.Marshal(map[string]interface{}{
		"model":  c.embedModel,
		"prompt": text,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/api/embeddings", c.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.embedClient.Do(httpReq)
	if err != nil {
		return nil, &Error{Backend: "ollama", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &Error{Backend: "ollama", Status: resp.StatusCode}
	}

	var embResp struct {
		Embedding []float64 `json:"embedding"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&embResp); err != nil {
		return nil, &Error{Backend: "ollama", Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	if len(embResp.Embedding) == 0 {
		return nil, &Error{Backend: "ollama", Err: fmt.Errorf("empty embedding")}
	}
	return embResp.Embedding, nil
}

// Health checks if the runtime is reachable.
func (c *OllamaClient) Health(ctx context.Context) error {
	url := fmt.Sprintf("%s/api/tags", c.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create health request: %w", err)
	}

	resp, err := c.fastClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama health check returned status %d", resp.StatusCode)
	}
	return nil
}

type ollamaChatResponse struct {
	Model   string `json:"model"`
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	Done      bool `json:"done"`
	EvalCount int  `json:"eval_count"`
}

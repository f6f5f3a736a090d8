package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// openAIEmbedInputLimit bounds the text sent to the embeddings API.
const openAIEmbedInputLimit = 8000

// OpenAIEmbedConfig holds cloud embedding client configuration
type OpenAIEmbedConfig struct {
	BaseURL string
	APIKey  string
	Model   string
}

// OpenAIEmbedClient is the cloud fallback embedder.
type OpenAIEmbedClient struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewOpenAIEmbedClient creates a new OpenAI embeddings client
func NewOpenAIEmbedClient(cfg *OpenAIEmbedConfig) *OpenAIEmbedClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	model := cfg.Model
	if model == "" {
		model = "text-embedding-ada-002"
	}

	return &OpenAIEmbedClient{
		baseURL:    baseURL,
		apiKey:     cfg.APIKey,
		model:      model,
		httpClient: newHTTPClient(30*time.Second, 10*time.Second),
	}
}

// Configured reports whether an API key is present.
func (c *OpenAIEmbedClient) Configured() bool {
	return c != nil && c.apiKey != ""
}

// Embed generates an embedding vector for the given text.
func (c *OpenAIEmbedClient) Embed(ctx context.Context, text string) ([]float64, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}
	if len(text) > openAIEmbedInputLimit {
		text = text[:openAIEmbedInputLimit]
	}

	body, err := json.Marshal(map[string]interface{}{
		"model": c.model,
		"input": text,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/embeddings", c.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &Error{Backend: "openai-embed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &Error{Backend: "openai-embed", Status: resp.StatusCode}
	}

	var embResp struct {
		Data []struct {
			Embedding []float64 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&embResp); err != nil {
		return nil, &Error{Backend: "openai-embed", Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	if len(embResp.Data) == 0 || len(embResp.Data[0].Embedding) == 0 {
		return nil, &Error{Backend: "openai-embed", Err: fmt.Errorf("empty embedding")}
	}
	return embResp.Data[0].Embedding, nil
}

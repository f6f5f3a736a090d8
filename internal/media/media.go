package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Style presets for image prompt enhancement.
const (
	StyleLogo = "logo"
	StyleHero = "hero"
	StyleIcon = "icon"
)

// Config holds media backend endpoints
type Config struct {
	ImageURL string
	VideoURL string
}

// Client proxies generation requests to the local media inference backends.
type Client struct {
	imageURL    string
	videoURL    string
	imageClient *http.Client
	videoClient *http.Client
}

// New creates a media client
func New(cfg Config) *Client {
	return &Client{
		imageURL:    cfg.ImageURL,
		videoURL:    cfg.VideoURL,
		imageClient: &http.Client{Timeout: 90 * time.Second},
		videoClient: &http.Client{Timeout: 120 * time.Second},
	}
}

// ImageRequest describes a text-to-image generation.
type ImageRequest struct {
	Prompt string `json:"prompt"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Style  string `json:"style"`
}

// ImageResult carries the generated image as a data URL.
type ImageResult struct {
	URL      string `json:"url"`
	Prompt   string `json:"prompt"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	Backend  string `json:"backend"`
	Fallback bool   `json:"fallback"`
}

// VideoRequest describes a text-to-video generation.
type VideoRequest struct {
	Prompt          string `json:"prompt"`
	DurationSeconds int    `json:"durationSeconds"`
	FPS             int    `json:"fps"`
	Width           int    `json:"width"`
	Height          int    `json:"height"`
}

// VideoResult carries the generated video location.
type VideoResult struct {
	URL             string `json:"url"`
	Prompt          string `json:"prompt"`
	DurationSeconds int    `json:"durationSeconds"`
	FPS             int    `json:"fps"`
	Width           int    `json:"width"`
	Height          int    `json:"height"`
	Backend         string `json:"backend"`
	Fallback        bool   `json:"fallback"`
}

// EnhancePrompt prefixes the prompt with style guidance. Unknown styles pass
// the prompt through untouched.
func EnhancePrompt(prompt, style string) string {
	switch style {
	case StyleLogo:
		return "professional minimalist logo, vector style, clean lines, branding, " + prompt
	case StyleHero:
		return "cinematic hero image, high detail, modern commercial style, " + prompt
	case StyleIcon:
		return "flat icon design, simple composition, transparent background, " + prompt
	}
	return prompt
}

// GenerateImage runs a txt2img generation on the local image backend and
// returns the result as a base64 data URL.
func (c *Client) GenerateImage(ctx context.Context, req ImageRequest) (*ImageResult, error) {
	if req.Width <= 0 {
		req.Width = 512
	}
	if req.Height <= 0 {
		req.Height = 512
	}
	if req.Style == "" {
		req.Style = StyleLogo
	}
	enhanced := EnhancePrompt(req.Prompt, req.Style)

	body, err := json.Marshal(map[string]interface{}{
		"prompt":    enhanced,
		"width":     req.Width,
		"height":    req.Height,
		"steps":     24,
		"cfg_scale": 7,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/sdapi/v1/txt2img", c.imageURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.imageClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("image backend unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("image backend returned status %d", resp.StatusCode)
	}

	var genResp struct {
		Images []string `json:"images"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&genResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(genResp.Images) == 0 || genResp.Images[0] == "" {
		return nil, fmt.Errorf("no image returned from local backend")
	}

	return &ImageResult{
		URL:     "data:image/png;base64," + genResp.Images[0],
		Prompt:  enhanced,
		Width:   req.Width,
		Height:  req.Height,
		Backend: "local-media-inference",
	}, nil
}

// GenerateVideo runs a generation on the local video backend.
func (c *Client) GenerateVideo(ctx context.Context, req VideoRequest) (*VideoResult, error) {
	if req.DurationSeconds <= 0 {
		req.DurationSeconds = 4
	}
	if req.FPS <= 0 {
		req.FPS = 12
	}
	if req.Width <= 0 {
		req.Width = 512
	}
	if req.Height <= 0 {
		req.Height = 512
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/generate", c.videoURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.videoClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("video backend unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("video backend returned status %d", resp.StatusCode)
	}

	var genResp struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&genResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &VideoResult{
		URL:             genResp.URL,
		Prompt:          req.Prompt,
		DurationSeconds: req.DurationSeconds,
		FPS:             req.FPS,
		Width:           req.Width,
		Height:          req.Height,
		Backend:         "local-media-inference",
	}, nil
}

package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for Luma-Bridge
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Local    LocalConfig    `yaml:"local"`
	Cloud    CloudConfig    `yaml:"cloud"`
	Embed    EmbedConfig    `yaml:"embeddings"`
	Vector   VectorConfig   `yaml:"vector"`
	Breaker  BreakerConfig  `yaml:"breaker"`
	Hub      HubConfig      `yaml:"hub"`
	Relay    RelayConfig    `yaml:"relay,omitempty"`
	Media    MediaConfig    `yaml:"media,omitempty"`
	Email    EmailConfig    `yaml:"email,omitempty"`
	Webhooks WebhookConfig  `yaml:"webhooks,omitempty"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig defines HTTP server settings
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

// LocalConfig defines the local model runtime (Ollama) settings
type LocalConfig struct {
	URL            string `yaml:"url"`
	DefaultModel   string `yaml:"default_model"`
	EmbedModel     string `yaml:"embed_model"`
	ChatTimeout    string `yaml:"chat_timeout"`
	ConnectTimeout string `yaml:"connect_timeout"`
}

// GetChatTimeout returns the chat timeout as a time.Duration
func (l *LocalConfig) GetChatTimeout() time.Duration {
	return parseDuration(l.ChatTimeout, 180*time.Second)
}

// GetConnectTimeout returns the connect timeout as a time.Duration
func (l *LocalConfig) GetConnectTimeout() time.Duration {
	return parseDuration(l.ConnectTimeout, 10*time.Second)
}

// CloudConfig defines the cloud model API (Moonshot) settings
type CloudConfig struct {
	BaseURL        string `yaml:"base_url"`
	APIKey         string `yaml:"api_key"`
	DefaultMode    string `yaml:"default_mode"`
	ChatTimeout    string `yaml:"chat_timeout"`
	ConnectTimeout string `yaml:"connect_timeout"`
}

// GetChatTimeout returns the chat timeout as a time.Duration
func (c *CloudConfig) GetChatTimeout() time.Duration {
	return parseDuration(c.ChatTimeout, 300*time.Second)
}

// GetConnectTimeout returns the connect timeout as a time.Duration
func (c *CloudConfig) GetConnectTimeout() time.Duration {
	return parseDuration(c.ConnectTimeout, 15*time.Second)
}

// EmbedConfig defines the cloud embedding fallback settings
type EmbedConfig struct {
	OpenAIBaseURL string `yaml:"openai_base_url"`
	OpenAIAPIKey  string `yaml:"openai_api_key"`
	Model         string `yaml:"model"`
}

// VectorConfig defines the vector store (Qdrant) settings
type VectorConfig struct {
	URL        string `yaml:"url"`
	Collection string `yaml:"collection"`
	Dimension  int    `yaml:"dimension"`
	ChunkSize  int    `yaml:"chunk_size"`
	Overlap    int    `yaml:"overlap"`
}

// BreakerConfig defines circuit breaker settings
type BreakerConfig struct {
	Threshold int    `yaml:"threshold"`
	Cooldown  string `yaml:"cooldown"`
}

// GetCooldown returns the breaker cooldown as a time.Duration
func (b *BreakerConfig) GetCooldown() time.Duration {
	return parseDuration(b.Cooldown, 30*time.Second)
}

// HubConfig defines presence hub settings
type HubConfig struct {
	Enabled bool `yaml:"enabled"`
}

// RelayConfig defines the optional Redis Streams event relay
type RelayConfig struct {
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	Stream        string `yaml:"stream"`
}

// MediaConfig defines local media renderer endpoints
type MediaConfig struct {
	ImageURL string `yaml:"image_url"`
	VideoURL string `yaml:"video_url"`
}

// EmailConfig defines email delivery settings
type EmailConfig struct {
	ResendAPIKey string `yaml:"resend_api_key"`
	From         string `yaml:"from"`
}

// WebhookConfig defines webhook event log settings
type WebhookConfig struct {
	RecentLimit int `yaml:"recent_limit"`
}

// LoggingConfig defines logging settings
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

// Load loads configuration from a YAML file with environment variable overrides
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyDefaults()
	cfg.applyEnvOverrides()

	return &cfg, nil
}

// Default returns a configuration usable without a config file
func Default() *Config {
	cfg := &Config{
		Server: ServerConfig{Host: "0.0.0.0", Port: 8765},
		Hub:    HubConfig{Enabled: true},
	}
	cfg.applyDefaults()
	cfg.applyEnvOverrides()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8765
	}
	if c.Local.URL == "" {
		c.Local.URL = "http://127.0.0.1:11434"
	}
	if c.Local.DefaultModel == "" {
		c.Local.DefaultModel = "qwen2.5:14b-instruct-q4_K_M"
	}
	if c.Local.EmbedModel == "" {
		c.Local.EmbedModel = "nomic-embed-text"
	}
	if c.Cloud.BaseURL == "" {
		c.Cloud.BaseURL = "https://api.moonshot.ai/v1"
	}
	if c.Cloud.DefaultMode == "" {
		c.Cloud.DefaultMode = "thinking"
	}
	if c.Embed.OpenAIBaseURL == "" {
		c.Embed.OpenAIBaseURL = "https://api.openai.com/v1"
	}
	if c.Embed.Model == "" {
		c.Embed.Model = "text-embedding-ada-002"
	}
	if c.Vector.URL == "" {
		c.Vector.URL = "http://127.0.0.1:6333"
	}
	if c.Vector.Collection == "" {
		c.Vector.Collection = "luma_knowledge"
	}
	if c.Vector.Dimension == 0 {
		c.Vector.Dimension = 1536
	}
	if c.Vector.ChunkSize == 0 {
		c.Vector.ChunkSize = 500
	}
	if c.Vector.Overlap == 0 {
		c.Vector.Overlap = 50
	}
	if c.Breaker.Threshold == 0 {
		c.Breaker.Threshold = 3
	}
	if c.Relay.Stream == "" {
		c.Relay.Stream = "luma:events"
	}
	if c.Media.ImageURL == "" {
		c.Media.ImageURL = "http://127.0.0.1:7860"
	}
	if c.Media.VideoURL == "" {
		c.Media.VideoURL = "http://127.0.0.1:8000"
	}
	if c.Email.From == "" {
		c.Email.From = "Luma <noreply@lumahub.dev>"
	}
	if c.Webhooks.RecentLimit == 0 {
		c.Webhooks.RecentLimit = 20
	}
}

// applyEnvOverrides applies environment variable overrides to the config
func (c *Config) applyEnvOverrides() {
	if port := os.Getenv("BRIDGE_PORT"); port != "" {
		fmt.Sscanf(port, "%d", &c.Server.Port)
	}
	if url := os.Getenv("OLLAMA_URL"); url != "" {
		c.Local.URL = url
	}
	if key := os.Getenv("MOONSHOT_API_KEY"); key != "" {
		c.Cloud.APIKey = key
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		c.Embed.OpenAIAPIKey = key
	}
	if url := os.Getenv("QDRANT_URL"); url != "" {
		c.Vector.URL = url
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		c.Relay.RedisAddr = addr
	}
	if key := os.Getenv("RESEND_API_KEY"); key != "" {
		c.Email.ResendAPIKey = key
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Local.URL == "" {
		return fmt.Errorf("local model URL is required")
	}
	if c.Vector.URL == "" {
		return fmt.Errorf("vector store URL is required")
	}
	if c.Breaker.Threshold < 1 {
		return fmt.Errorf("breaker threshold must be at least 1")
	}
	if c.Vector.Overlap >= c.Vector.ChunkSize {
		return fmt.Errorf("chunk overlap %d must be smaller than chunk size %d", c.Vector.Overlap, c.Vector.ChunkSize)
	}
	return nil
}

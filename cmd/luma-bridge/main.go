package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lumahub/luma-bridge/internal/backend"
	"github.com/lumahub/luma-bridge/internal/breaker"
	"github.com/lumahub/luma-bridge/internal/config"
	"github.com/lumahub/luma-bridge/internal/email"
	"github.com/lumahub/luma-bridge/internal/fetch"
	"github.com/lumahub/luma-bridge/internal/hub"
	"github.com/lumahub/luma-bridge/internal/knowledge"
	"github.com/lumahub/luma-bridge/internal/logging"
	"github.com/lumahub/luma-bridge/internal/media"
	"github.com/lumahub/luma-bridge/internal/relay"
	"github.com/lumahub/luma-bridge/internal/router"
	"github.com/lumahub/luma-bridge/internal/scheduler"
	"github.com/lumahub/luma-bridge/internal/search"
	"github.com/lumahub/luma-bridge/internal/server"
	"github.com/lumahub/luma-bridge/internal/webhook"
)

const version = "1.0.0"

func main() {
	configPath := flag.String("config", "config.yaml", "Path to config file")
	flag.Parse()

	logger := logging.WithComponent("main")
	logger.Info("Starting Luma-Bridge", "version", version)

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Info("No config file found, using defaults", "path", *configPath)
			cfg = config.Default()
		} else {
			logger.Error("Failed to load config", "error", err)
			os.Exit(1)
		}
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("Invalid config", "error", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	logger = logging.WithComponent("main")

	// Backend clients
	ollama, err := backend.NewOllamaClient(&backend.OllamaConfig{
		URL:            cfg.Local.URL,
		DefaultModel:   cfg.Local.DefaultModel,
		EmbedModel:     cfg.Local.EmbedModel,
		ChatTimeout:    cfg.Local.GetChatTimeout(),
		ConnectTimeout: cfg.Local.GetConnectTimeout(),
	})
	if err != nil {
		logger.Error("Failed to create Ollama client", "error", err)
		os.Exit(1)
	}

	moonshot := backend.NewMoonshotClient(&backend.MoonshotConfig{
		BaseURL:        cfg.Cloud.BaseURL,
		APIKey:         cfg.Cloud.APIKey,
		ChatTimeout:    cfg.Cloud.GetChatTimeout(),
		ConnectTimeout: cfg.Cloud.GetConnectTimeout(),
	})
	if moonshot.Configured() {
		logger.Info("Cloud backend configured", "base_url", cfg.Cloud.BaseURL)
	} else {
		logger.Info("Cloud backend not configured, all traffic stays local")
	}

	qdrant, err := backend.NewQdrantClient(&backend.QdrantConfig{
		URL:        cfg.Vector.URL,
		Collection: cfg.Vector.Collection,
	})
	if err != nil {
		logger.Error("Failed to create Qdrant client", "error", err)
		os.Exit(1)
	}

	// Inference routing with a circuit breaker in front of the local runtime
	br := breaker.New(cfg.Breaker.Threshold, cfg.Breaker.GetCooldown())
	chatRouter := router.New(router.Config{
		Local:    ollama,
		Cloud:    moonshot,
		Breaker:  br,
		LocalURL: cfg.Local.URL,
		Logger:   logging.WithComponent("router"),
	})

	// Knowledge pipeline: local embeddings first, cloud fallback second
	embedders := knowledge.NewGroupEmbedder(logging.WithComponent("embed"))
	embedders.Add("ollama", ollama)
	embedders.Add("openai", backend.NewOpenAIEmbedClient(&backend.OpenAIEmbedConfig{
		BaseURL: cfg.Embed.OpenAIBaseURL,
		APIKey:  cfg.Embed.OpenAIAPIKey,
		Model:   cfg.Embed.Model,
	}))

	pipeline := knowledge.NewPipeline(knowledge.PipelineConfig{
		Embedder:     embedders,
		Store:        qdrant,
		Fetcher:      fetch.New(),
		ChunkSize:    cfg.Vector.ChunkSize,
		ChunkOverlap: cfg.Vector.Overlap,
		Logger:       logging.WithComponent("knowledge"),
	})

	// Optional Redis Streams relay. The gateway runs fine without it.
	var rl *relay.Relay
	if cfg.Relay.RedisAddr != "" {
		rl, err = relay.New(relay.Config{
			Addr:        cfg.Relay.RedisAddr,
			Password:    cfg.Relay.RedisPassword,
			DB:          cfg.Relay.RedisDB,
			EventStream: cfg.Relay.Stream,
		}, logging.WithComponent("relay"))
		if err != nil {
			logger.Warn("Event relay unavailable, continuing without it", "error", err)
			rl = nil
		} else {
			logger.Info("Event relay connected", "addr", cfg.Relay.RedisAddr)
		}
	}

	var eventRelay hub.EventRelay
	var heartbeater scheduler.Heartbeater
	if rl != nil {
		eventRelay = rl
		heartbeater = rl
	}

	presence := hub.New(eventRelay, logging.WithComponent("hub"))

	sched := scheduler.New(ollama, heartbeater, logging.WithComponent("scheduler"))
	sched.Start()
	logger.Info("Scheduler started")

	srv := server.New(cfg, server.Deps{
		Router:   chatRouter,
		Know:     pipeline,
		Models:   ollama,
		Vector:   qdrant,
		Searcher: search.New(logging.WithComponent("search")),
		Pages:    fetch.New(),
		Hub:      presence,
		Media: media.New(media.Config{
			ImageURL: cfg.Media.ImageURL,
			VideoURL: cfg.Media.VideoURL,
		}),
		Email: email.New(email.Config{
			APIKey: cfg.Email.ResendAPIKey,
			From:   cfg.Email.From,
		}, logging.WithComponent("email")),
		// retention capacity; RecentLimit only bounds the events read API
		Webhooks: webhook.NewLog(0),
	}, logging.WithComponent("server"))

	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	sched.Stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", "error", err)
	}
	if err := rl.Close(); err != nil {
		logger.Warn("Relay close error", "error", err)
	}

	logger.Info("Shutdown complete")
}

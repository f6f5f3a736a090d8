package knowledge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lumahub/luma-bridge/internal/backend"
)

// Embedder turns text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

type groupEntry struct {
	name     string
	embedder Embedder
}

// GroupEmbedder tries its embedders in registration order and returns the
// first successful vector. Unconfigured entries are skipped silently; when
// every entry fails the last real error comes back.
type GroupEmbedder struct {
	entries []groupEntry
	logger  *slog.Logger
}

// NewGroupEmbedder creates an empty embedder group
func NewGroupEmbedder(logger *slog.Logger) *GroupEmbedder {
	if logger == nil {
		logger = slog.Default()
	}
	return &GroupEmbedder{logger: logger}
}

// Add registers an embedder under a name. Nil embedders are ignored so
// callers can pass optional backends without checking.
func (g *GroupEmbedder) Add(name string, e Embedder) {
	if e == nil {
		return
	}
	g.entries = append(g.entries, groupEntry{name: name, embedder: e})
}

// Names lists the registered embedders in fallback order.
func (g *GroupEmbedder) Names() []string {
	names := make([]string, 0, len(g.entries))
	for _, e := range g.entries {
		names = append(names, e.name)
	}
	return names
}

// Embed walks the fallback chain.
func (g *GroupEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	if len(g.entries) == 0 {
		return nil, fmt.Errorf("no embedders registered")
	}

	var lastErr error
	for _, entry := range g.entries {
		vec, err := entry.embedder.Embed(ctx, text)
		if err == nil {
			return vec, nil
		}
		if errors.Is(err, backend.ErrNotConfigured) {
			continue
		}
		g.logger.Debug("embedder failed, trying next", "embedder", entry.name, "error", err)
		lastErr = err
	}

	if lastErr == nil {
		lastErr = backend.ErrNotConfigured
	}
	return nil, fmt.Errorf("all embedders failed: %w", lastErr)
}

package logging

import (
	"log/slog"
	"os"
	"strings"
)

var Logger *slog.Logger

func init() {
	Setup(os.Getenv("LOG_LEVEL"), "")
}

// Setup reconfigures the process logger. Format is "json" or "text",
// defaulting to json. LOG_LEVEL overrides the configured level.
func Setup(level, format string) {
	if env := os.Getenv("LOG_LEVEL"); env != "" {
		level = env
	}

	lvl := slog.LevelInfo
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler
	if strings.ToLower(format) == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	Logger = slog.New(handler)
	slog.SetDefault(Logger)
}

// WithComponent returns the process logger tagged with a component name.
func WithComponent(component string) *slog.Logger {
	return Logger.With("component", component)
}

package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Stream names used by the relay.
const (
	DefaultEventStream     = "luma:events"
	DefaultHeartbeatStream = "luma:heartbeats"
	maxStreamLen           = 10000
)

// Config holds relay connection settings
type Config struct {
	Addr            string
	Password        string
	DB              int
	EventStream     string
	HeartbeatStream string
}

// Relay mirrors gateway events onto Redis Streams so sibling services can
// consume them. A nil *Relay is valid and publishes nothing, which keeps the
// gateway fully functional without Redis.
type Relay struct {
	rdb             *redis.Client
	eventStream     string
	heartbeatStream string
	logger          *slog.Logger
}

// New creates a relay and validates the connection.
func New(cfg Config, logger *slog.Logger) (*Relay, error) {
	if logger == nil {
		logger = slog.Default()
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	eventStream := cfg.EventStream
	if eventStream == "" {
		eventStream = DefaultEventStream
	}
	heartbeatStream := cfg.HeartbeatStream
	if heartbeatStream == "" {
		heartbeatStream = DefaultHeartbeatStream
	}

	return &Relay{
		rdb:             rdb,
		eventStream:     eventStream,
		heartbeatStream: heartbeatStream,
		logger:          logger,
	}, nil
}

// PublishEvent appends an event to the event stream. Publishing is best
// effort: failures are logged, never returned, so a Redis outage cannot
// break the realtime path.
func (r *Relay) PublishEvent(ctx context.Context, eventType string, data map[string]interface{}) {
	if r == nil {
		return
	}

	payload, err := json.Marshal(data)
	if err != nil {
		r.logger.Warn("failed to marshal relay event", "type", eventType, "error", err)
		return
	}

	err = r.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: r.eventStream,
		MaxLen: maxStreamLen,
		Approx: true,
		Values: map[string]interface{}{
			"type":      eventType,
			"data":      string(payload),
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		},
	}).Err()
	if err != nil {
		r.logger.Warn("failed to publish relay event", "type", eventType, "error", err)
	}
}

// Heartbeat records a liveness entry for this gateway instance.
func (r *Relay) Heartbeat(ctx context.Context, instance string) {
	if r == nil {
		return
	}

	err := r.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: r.heartbeatStream,
		MaxLen: 1000,
		Approx: true,
		Values: map[string]interface{}{
			"instance":  instance,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		},
	}).Err()
	if err != nil {
		r.logger.Warn("failed to publish heartbeat", "error", err)
	}
}

// Ping checks if Redis is reachable.
func (r *Relay) Ping(ctx context.Context) error {
	if r == nil {
		return fmt.Errorf("relay not configured")
	}
	return r.rdb.Ping(ctx).Err()
}

// Close releases the underlying connection.
func (r *Relay) Close() error {
	if r == nil {
		return nil
	}
	return r.rdb.Close()
}

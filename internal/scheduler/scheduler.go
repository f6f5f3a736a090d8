package scheduler

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/lumahub/luma-bridge/internal/metrics"
)

// HealthChecker reports whether the local model runtime is reachable.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Heartbeater records gateway liveness on the relay stream.
type Heartbeater interface {
	Heartbeat(ctx context.Context, instance string)
}

// Scheduler runs the gateway's periodic jobs: local backend health refresh
// and relay heartbeats.
type Scheduler struct {
	cron     *cron.Cron
	local    HealthChecker
	relay    Heartbeater
	instance string
	logger   *slog.Logger
}

// New creates a scheduler with the periodic jobs registered
func New(local HealthChecker, relay Heartbeater, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	instance, _ := os.Hostname()
	if instance == "" {
		instance = "luma-bridge"
	}

	s := &Scheduler{
		cron:     cron.New(),
		local:    local,
		relay:    relay,
		instance: instance,
		logger:   logger,
	}
	s.scheduleStatusRefresh()
	s.scheduleHeartbeat()
	return s
}

// Start starts the scheduler
func (s *Scheduler) Start() {
	s.refreshStatus()
	s.cron.Start()
}

// Stop stops the scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

func (s *Scheduler) scheduleStatusRefresh() {
	if _, err := s.cron.AddFunc("@every 30s", s.refreshStatus); err != nil {
		s.logger.Error("failed to schedule status refresh", "error", err)
	}
}

func (s *Scheduler) scheduleHeartbeat() {
	if s.relay == nil {
		return
	}
	if _, err := s.cron.AddFunc("@every 1m", s.heartbeat); err != nil {
		s.logger.Error("failed to schedule heartbeat", "error", err)
	}
}

func (s *Scheduler) refreshStatus() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.local.Health(ctx); err != nil {
		metrics.LocalBackendUp.Set(0)
		s.logger.Debug("local backend health check failed", "error", err)
		return
	}
	metrics.LocalBackendUp.Set(1)
}

func (s *Scheduler) heartbeat() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.relay.Heartbeat(ctx, s.instance)
}
